// Package builder turns the raw results of a snapshot cycle into one
// normalized, atomically persisted valuation tree.
//
// The pass is deterministic and idempotent for a given snapshot: it
// reads only committed snapshot data, resolves every currency
// conversion up front, and either commits the whole tree or nothing.
package builder

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	fxdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/domain"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Builder struct {
	accounts  accountdomain.Repository
	snapshots snapshotdomain.Repository
	history   valuationdomain.Repository
	rates     fxdomain.Resolver
	genID     *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
}

func New(
	accounts accountdomain.Repository,
	snapshots snapshotdomain.Repository,
	history valuationdomain.Repository,
	rates fxdomain.Resolver,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) *Builder {
	return &Builder{
		accounts:  accounts,
		snapshots: snapshots,
		history:   history,
		rates:     rates,
		genID:     genID,
		clock:     clk,
		log:       log.Named("valuation.builder"),
	}
}

// consistentAccount is the carry-forward-resolved view of one linked
// account for this cycle.
type consistentAccount struct {
	account   accountdomain.LinkedAccount
	current   *snapshotdomain.LinkedAccountSnapshotEntry
	effective *snapshotdomain.EffectiveEntry
	tree      *snapshotdomain.EntryTree
}

// Build materializes and persists the history entry for a successful
// snapshot. Re-running for an already built snapshot returns the
// existing entry unchanged.
func (b *Builder) Build(ctx context.Context, snapshotID snowflake.ID) (*valuationdomain.HistoryEntry, error) {
	existing, err := b.history.FindEntryBySnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	snapshot, err := b.snapshots.FindSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status != snapshotdomain.SnapshotStatusSuccess {
		return nil, fmt.Errorf("%w: snapshot %d is %s, not %s",
			snapshotdomain.ErrInvalidTransition, snapshotID, snapshot.Status, snapshotdomain.SnapshotStatusSuccess)
	}

	consistent, err := b.resolveConsistentSnapshot(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	pairs := collectPairs(consistent, snapshot.RequestedCcy)
	resolved, err := b.rates.GetRates(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", valuationdomain.ErrMissingXccyRate, err)
	}
	if err := b.captureRates(ctx, snapshotID, resolved); err != nil {
		return nil, err
	}

	tree, err := b.materialize(snapshot, consistent, resolved)
	if err != nil {
		return nil, err
	}

	entry, err := b.history.SaveTree(ctx, tree)
	if err != nil {
		return nil, err
	}
	b.log.Info("valuation tree committed",
		zap.Int64("snapshot_id", int64(snapshotID)),
		zap.Int64("history_entry_id", int64(entry.ID)),
		zap.Int("linked_accounts", len(tree.LinkedAccounts)),
		zap.Int("items", len(tree.Items)),
	)
	return entry, nil
}

// resolveConsistentSnapshot applies the carry-forward policy: per
// linked account, the data source is the latest successful entry at or
// before this snapshot, which may predate it when this cycle failed.
func (b *Builder) resolveConsistentSnapshot(ctx context.Context, snapshot *snapshotdomain.UserAccountSnapshot) ([]consistentAccount, error) {
	linked, err := b.accounts.ListLinkedAccounts(ctx, snapshot.UserAccountID)
	if err != nil {
		return nil, err
	}
	effective, err := b.snapshots.LatestSuccessfulEntries(ctx, snapshot.UserAccountID, snapshot.ID)
	if err != nil {
		return nil, err
	}
	current, err := b.snapshots.CurrentEntries(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}

	consistent := make([]consistentAccount, 0, len(linked))
	for _, account := range linked {
		entry := consistentAccount{account: account}
		if row, ok := current[account.ID]; ok {
			rowCopy := row
			entry.current = &rowCopy
		}
		if row, ok := effective[account.ID]; ok {
			rowCopy := row
			entry.effective = &rowCopy
			tree, err := b.snapshots.LoadEntryTree(ctx, row.EntryID)
			if err != nil {
				return nil, err
			}
			entry.tree = tree
		}
		if entry.current == nil && entry.effective == nil {
			// Never fetched and nothing to carry forward: the account
			// does not participate in this cycle.
			continue
		}
		consistent = append(consistent, entry)
	}
	return consistent, nil
}

// collectPairs walks the consistent snapshot and gathers every FX pair
// the build needs, in the direction it will be applied.
func collectPairs(consistent []consistentAccount, valuationCcy string) []fxdomain.Pair {
	seen := make(map[fxdomain.Pair]bool)
	var pairs []fxdomain.Pair
	add := func(pair fxdomain.Pair) {
		if pair.Identity() || seen[pair] {
			return
		}
		seen[pair] = true
		pairs = append(pairs, pair)
	}

	for _, entry := range consistent {
		if entry.tree == nil {
			continue
		}
		for _, subAccount := range entry.tree.SubAccounts {
			subCcy := subAccount.SubAccount.Ccy
			add(fxdomain.NewPair(subCcy, valuationCcy))
			for _, item := range subAccount.Items {
				if item.ValueSubAccountCcy != nil {
					add(fxdomain.NewPair(subCcy, item.ItemCcy))
				} else {
					add(fxdomain.NewPair(item.ItemCcy, subCcy))
				}
			}
		}
	}
	return pairs
}

func (b *Builder) captureRates(ctx context.Context, snapshotID snowflake.ID, resolved map[fxdomain.Pair]decimal.Decimal) error {
	if len(resolved) == 0 {
		return nil
	}
	rates := make([]snapshotdomain.XccyRateSnapshotEntry, 0, len(resolved))
	for pair, rate := range resolved {
		rates = append(rates, snapshotdomain.XccyRateSnapshotEntry{
			ID:          b.genID.Generate(),
			SnapshotID:  snapshotID,
			DomesticCcy: pair.Domestic,
			ForeignCcy:  pair.Foreign,
			Rate:        rate,
		})
	}
	return b.snapshots.SaveXccyRates(ctx, rates)
}

func (b *Builder) materialize(
	snapshot *snapshotdomain.UserAccountSnapshot,
	consistent []consistentAccount,
	resolved map[fxdomain.Pair]decimal.Decimal,
) (*valuationdomain.Tree, error) {
	valuationCcy := snapshot.RequestedCcy
	rate := func(domestic, foreign string) (decimal.Decimal, error) {
		pair := fxdomain.NewPair(domestic, foreign)
		if pair.Identity() {
			return decimal.NewFromInt(1), nil
		}
		value, ok := resolved[pair]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", valuationdomain.ErrMissingXccyRate, pair)
		}
		return value, nil
	}

	effectiveAt := b.clock.Now()
	if snapshot.EndedAt != nil {
		effectiveAt = *snapshot.EndedAt
	}

	tree := &valuationdomain.Tree{
		Entry: valuationdomain.HistoryEntry{
			ID:            b.genID.Generate(),
			UserAccountID: snapshot.UserAccountID,
			SnapshotID:    snapshot.ID,
			ValuationCcy:  valuationCcy,
			EffectiveAt:   effectiveAt,
			Available:     false,
		},
	}

	userTotal := decimal.Zero
	userAssets := decimal.Zero
	userLiabilities := decimal.Zero

	for _, entry := range consistent {
		accountValuation := valuationdomain.LinkedAccountValuation{
			ID:              b.genID.Generate(),
			LinkedAccountID: entry.account.ID,
			Success:         entry.current == nil || entry.current.Success,
			Valuation:       decimal.Zero,
		}
		if entry.current != nil {
			accountValuation.FailureDetails = entry.current.FailureDetails
		}
		if entry.effective != nil {
			snapshotID := entry.effective.SnapshotID
			accountValuation.EffectiveSnapshotID = &snapshotID
		}

		if entry.tree != nil {
			for _, subAccount := range entry.tree.SubAccounts {
				subValuation, items, err := b.materializeSubAccount(entry.account.ID, subAccount, valuationCcy, rate)
				if err != nil {
					return nil, err
				}
				accountValuation.Valuation = accountValuation.Valuation.Add(subValuation.Valuation)
				userAssets = userAssets.Add(subValuation.TotalAssets)
				userLiabilities = userLiabilities.Add(subValuation.TotalLiabilities)
				tree.SubAccounts = append(tree.SubAccounts, *subValuation)
				tree.Items = append(tree.Items, items...)
			}
		}

		userTotal = userTotal.Add(accountValuation.Valuation)
		tree.LinkedAccounts = append(tree.LinkedAccounts, accountValuation)
	}

	tree.UserValuation = valuationdomain.UserAccountValuation{
		ID:               b.genID.Generate(),
		Valuation:        userTotal,
		TotalAssets:      userAssets,
		TotalLiabilities: userLiabilities,
	}
	return tree, nil
}

// materializeSubAccount converts one raw sub-account (kept even with
// zero items so chart series stay stable) into its valuation records.
func (b *Builder) materializeSubAccount(
	linkedAccountID snowflake.ID,
	raw snapshotdomain.SubAccountTree,
	valuationCcy string,
	rate func(domestic, foreign string) (decimal.Decimal, error),
) (*valuationdomain.SubAccountValuation, []valuationdomain.ItemValuation, error) {
	subCcy := raw.SubAccount.Ccy
	subToValuation, err := rate(subCcy, valuationCcy)
	if err != nil {
		return nil, nil, err
	}

	subValuation := &valuationdomain.SubAccountValuation{
		ID:               b.genID.Generate(),
		LinkedAccountID:  linkedAccountID,
		SubAccountID:     raw.SubAccount.SubAccountID,
		Ccy:              subCcy,
		Description:      raw.SubAccount.Description,
		Type:             raw.SubAccount.Type,
		SubType:          raw.SubAccount.SubType,
		Valuation:        decimal.Zero,
		ValuationSubCcy:  decimal.Zero,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
	}

	items := make([]valuationdomain.ItemValuation, 0, len(raw.Items))
	for _, rawItem := range raw.Items {
		var valueSubCcy, valueItemCcy decimal.Decimal
		switch {
		case rawItem.ValueSubAccountCcy != nil:
			valueSubCcy = *rawItem.ValueSubAccountCcy
			subToItem, err := rate(subCcy, rawItem.ItemCcy)
			if err != nil {
				return nil, nil, err
			}
			valueItemCcy = valueSubCcy.Mul(subToItem)
		case rawItem.ValueItemCcy != nil:
			valueItemCcy = *rawItem.ValueItemCcy
			itemToSub, err := rate(rawItem.ItemCcy, subCcy)
			if err != nil {
				return nil, nil, err
			}
			valueSubCcy = valueItemCcy.Mul(itemToSub)
		default:
			return nil, nil, fmt.Errorf("%w: item %q carries no value", valuationdomain.ErrDataIntegrity, rawItem.Name)
		}

		valuation := valueSubCcy.Mul(subToValuation)
		items = append(items, valuationdomain.ItemValuation{
			ID:                 b.genID.Generate(),
			LinkedAccountID:    linkedAccountID,
			SubAccountID:       raw.SubAccount.SubAccountID,
			ItemType:           rawItem.ItemType,
			Name:               rawItem.Name,
			ItemSubType:        rawItem.ItemSubType,
			ItemCcy:            rawItem.ItemCcy,
			Units:              rawItem.Units,
			ValueItemCcy:       valueItemCcy,
			ValueSubAccountCcy: valueSubCcy,
			Valuation:          valuation,
			ProviderMetadata:   rawItem.ProviderMetadata,
		})

		subValuation.Valuation = subValuation.Valuation.Add(valuation)
		subValuation.ValuationSubCcy = subValuation.ValuationSubCcy.Add(valueSubCcy)
		switch rawItem.ItemType {
		case snapshotdomain.ItemTypeAsset:
			subValuation.TotalAssets = subValuation.TotalAssets.Add(valuation)
		case snapshotdomain.ItemTypeLiability:
			subValuation.TotalLiabilities = subValuation.TotalLiabilities.Add(valuation)
		}
	}
	return subValuation, items, nil
}
