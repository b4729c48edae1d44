// Package change computes the seven-horizon valuation deltas for a
// freshly built history entry, then flips it to available.
package change

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Horizon is one fixed lookback distance. Month-and-above horizons use
// calendar arithmetic, not fixed-length durations.
type Horizon struct {
	Name  string
	Shift func(time.Time) time.Time
}

// Horizons lists the seven fixed lookbacks, shortest first.
var Horizons = []Horizon{
	{"1hour", func(t time.Time) time.Time { return t.Add(-time.Hour) }},
	{"1day", func(t time.Time) time.Time { return t.Add(-24 * time.Hour) }},
	{"1week", func(t time.Time) time.Time { return t.Add(-7 * 24 * time.Hour) }},
	{"1month", func(t time.Time) time.Time { return t.AddDate(0, -1, 0) }},
	{"6months", func(t time.Time) time.Time { return t.AddDate(0, -6, 0) }},
	{"1year", func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) }},
	{"2years", func(t time.Time) time.Time { return t.AddDate(-2, 0, 0) }},
}

type Calculator struct {
	history valuationdomain.Repository
	genID   *snowflake.Node
	log     *zap.Logger
}

func New(history valuationdomain.Repository, genID *snowflake.Node, log *zap.Logger) *Calculator {
	return &Calculator{
		history: history,
		genID:   genID,
		log:     log.Named("valuation.change"),
	}
}

type subAccountKey struct {
	linkedAccountID snowflake.ID
	subAccountID    string
}

type itemKey struct {
	linkedAccountID snowflake.ID
	subAccountID    string
	itemType        string
	name            string
}

// reference holds one horizon's reference entry valuations, loaded
// once even when several horizons resolve to the same entry.
type reference struct {
	user           *valuationdomain.UserAccountValuation
	linkedAccounts map[snowflake.ID]decimal.Decimal
	subAccounts    map[subAccountKey]decimal.Decimal
	items          map[itemKey]decimal.Decimal
}

// Compute writes valuation changes for every level of the entry's tree
// and marks the entry available. Re-running on an available entry is a
// no-op.
func (c *Calculator) Compute(ctx context.Context, entryID snowflake.ID) error {
	baseline, err := c.history.FindEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if baseline.Available {
		return nil
	}

	// Floor lookup per horizon: the most recent available same-currency
	// entry at or before baseline_time - horizon. The baseline itself
	// is still unavailable, so it can never be its own reference.
	references := make([]*reference, len(Horizons))
	loaded := make(map[snowflake.ID]*reference)
	for i, horizon := range Horizons {
		refEntry, err := c.history.FloorEntry(ctx, baseline.UserAccountID, baseline.ValuationCcy, horizon.Shift(baseline.EffectiveAt))
		if err != nil {
			return err
		}
		if refEntry == nil {
			continue
		}
		if cached, ok := loaded[refEntry.ID]; ok {
			references[i] = cached
			continue
		}
		ref, err := c.loadReference(ctx, refEntry.ID)
		if err != nil {
			return err
		}
		loaded[refEntry.ID] = ref
		references[i] = ref
	}

	changes, err := c.buildChanges(ctx, baseline, references)
	if err != nil {
		return err
	}
	if err := c.history.SaveChanges(ctx, changes); err != nil {
		return err
	}

	c.log.Info("valuation changes committed",
		zap.Int64("history_entry_id", int64(entryID)),
		zap.Int("reference_entries", len(loaded)),
	)
	return nil
}

func (c *Calculator) loadReference(ctx context.Context, entryID snowflake.ID) (*reference, error) {
	user, err := c.history.UserValuation(ctx, entryID)
	if err != nil {
		return nil, err
	}
	linked, err := c.history.LinkedAccountValuations(ctx, entryID)
	if err != nil {
		return nil, err
	}
	subAccounts, err := c.history.SubAccountValuations(ctx, entryID)
	if err != nil {
		return nil, err
	}
	items, err := c.history.ItemValuations(ctx, entryID)
	if err != nil {
		return nil, err
	}

	ref := &reference{
		user:           user,
		linkedAccounts: make(map[snowflake.ID]decimal.Decimal, len(linked)),
		subAccounts:    make(map[subAccountKey]decimal.Decimal, len(subAccounts)),
		items:          make(map[itemKey]decimal.Decimal, len(items)),
	}
	for _, row := range linked {
		ref.linkedAccounts[row.LinkedAccountID] = row.Valuation
	}
	for _, row := range subAccounts {
		ref.subAccounts[subAccountKey{row.LinkedAccountID, row.SubAccountID}] = row.Valuation
	}
	for _, row := range items {
		ref.items[itemKey{row.LinkedAccountID, row.SubAccountID, row.ItemType, row.Name}] = row.Valuation
	}
	return ref, nil
}

func (c *Calculator) buildChanges(ctx context.Context, baseline *valuationdomain.HistoryEntry, references []*reference) (*valuationdomain.ChangeSet, error) {
	userValuation, err := c.history.UserValuation(ctx, baseline.ID)
	if err != nil {
		return nil, err
	}
	linked, err := c.history.LinkedAccountValuations(ctx, baseline.ID)
	if err != nil {
		return nil, err
	}
	subAccounts, err := c.history.SubAccountValuations(ctx, baseline.ID)
	if err != nil {
		return nil, err
	}
	items, err := c.history.ItemValuations(ctx, baseline.ID)
	if err != nil {
		return nil, err
	}

	changes := &valuationdomain.ChangeSet{
		HistoryEntryID: baseline.ID,
		LinkedAccounts: make(map[snowflake.ID]*valuationdomain.ValuationChange, len(linked)),
		SubAccounts:    make(map[snowflake.ID]*valuationdomain.ValuationChange, len(subAccounts)),
		Items:          make(map[snowflake.ID]*valuationdomain.ValuationChange, len(items)),
	}

	changes.UserAccount = c.changeRow(userValuation.Valuation, references, func(ref *reference) (decimal.Decimal, bool) {
		return ref.user.Valuation, true
	})
	for _, row := range linked {
		id := row.LinkedAccountID
		changes.LinkedAccounts[row.ID] = c.changeRow(row.Valuation, references, func(ref *reference) (decimal.Decimal, bool) {
			value, ok := ref.linkedAccounts[id]
			return value, ok
		})
	}
	for _, row := range subAccounts {
		key := subAccountKey{row.LinkedAccountID, row.SubAccountID}
		changes.SubAccounts[row.ID] = c.changeRow(row.Valuation, references, func(ref *reference) (decimal.Decimal, bool) {
			value, ok := ref.subAccounts[key]
			return value, ok
		})
	}
	for _, row := range items {
		key := itemKey{row.LinkedAccountID, row.SubAccountID, row.ItemType, row.Name}
		changes.Items[row.ID] = c.changeRow(row.Valuation, references, func(ref *reference) (decimal.Decimal, bool) {
			value, ok := ref.items[key]
			return value, ok
		})
	}
	return changes, nil
}

// changeRow computes one valuation-change record. Horizons without a
// reference entry, or whose reference lacks this tree node, yield nil
// deltas (outer-join semantics).
func (c *Calculator) changeRow(baseline decimal.Decimal, references []*reference, lookup func(*reference) (decimal.Decimal, bool)) *valuationdomain.ValuationChange {
	deltas := make([]*decimal.Decimal, len(Horizons))
	for i, ref := range references {
		if ref == nil {
			continue
		}
		value, ok := lookup(ref)
		if !ok {
			continue
		}
		delta := baseline.Sub(value)
		deltas[i] = &delta
	}
	return &valuationdomain.ValuationChange{
		ID:            c.genID.Generate(),
		Change1Hour:   deltas[0],
		Change1Day:    deltas[1],
		Change1Week:   deltas[2],
		Change1Month:  deltas[3],
		Change6Months: deltas[4],
		Change1Year:   deltas[5],
		Change2Years:  deltas[6],
	}
}
