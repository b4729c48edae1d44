// Package report answers "valuation over time" queries: available
// history entries bucketed into calendar periods, aggregated per
// grouping key.
package report

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/period"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Grouping selects the tree level a series is aggregated at.
type Grouping string

const (
	// GroupAccount is the whole user account as one series.
	GroupAccount Grouping = "account"
	// GroupLinkedAccount yields one series per linked account.
	GroupLinkedAccount Grouping = "linked_account"
	// GroupAssetTypeClass yields one series per item type and class.
	GroupAssetTypeClass Grouping = "asset_type_class"
	// GroupAssetClass yields one series per item class.
	GroupAssetClass Grouping = "asset_class"
)

var ErrUnknownGrouping = errors.New("unknown_grouping")

// ParseGrouping validates a grouping string.
func ParseGrouping(value string) (Grouping, error) {
	switch Grouping(value) {
	case GroupAccount, GroupLinkedAccount, GroupAssetTypeClass, GroupAssetClass:
		return Grouping(value), nil
	}
	return "", ErrUnknownGrouping
}

// Request describes one aggregation query.
type Request struct {
	UserAccountID snowflake.ID
	From          *time.Time
	To            *time.Time
	Grouping      Grouping
	Frequency     period.Frequency
}

// Row is one (bucket, group) aggregate, chart-ready. GroupLabel is the
// display name for the group where the key itself is an identifier.
type Row struct {
	BucketStart time.Time        `json:"bucket_start"`
	BucketEnd   time.Time        `json:"bucket_end"`
	GroupKey    string           `json:"group_key"`
	GroupLabel  string           `json:"group_label,omitempty"`
	First       decimal.Decimal  `json:"first"`
	Last        decimal.Decimal  `json:"last"`
	Min         decimal.Decimal  `json:"min"`
	Max         decimal.Decimal  `json:"max"`
	AbsChange   decimal.Decimal  `json:"abs_change"`
	RelChange   *decimal.Decimal `json:"rel_change"`
}

// Engine runs aggregation queries against the valuation history.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

type seriesPoint struct {
	EffectiveAt time.Time
	GroupKey    string
	GroupLabel  string
	Value       decimal.Decimal
}

// Query returns one row per (bucket, group), ordered by bucket start
// then group key. An empty range yields an empty result, not an error.
func (e *Engine) Query(ctx context.Context, req Request) ([]Row, error) {
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return nil, valuationdomain.ErrInvalidTimeRange
	}
	if _, err := period.Parse(string(req.Frequency)); err != nil {
		return nil, err
	}
	if _, err := ParseGrouping(string(req.Grouping)); err != nil {
		return nil, err
	}

	points, err := e.fetchSeries(ctx, req)
	if err != nil {
		return nil, err
	}
	return bucketize(points, req.Frequency), nil
}

func (e *Engine) fetchSeries(ctx context.Context, req Request) ([]seriesPoint, error) {
	query, args := buildSeriesQuery(req)
	var points []seriesPoint
	if err := e.db.WithContext(ctx).Raw(query, args...).Scan(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func buildSeriesQuery(req Request) (string, []any) {
	rangeClause := ""
	args := []any{req.UserAccountID, true}
	if req.From != nil {
		rangeClause += " AND h.effective_at >= ?"
		args = append(args, *req.From)
	}
	if req.To != nil {
		rangeClause += " AND h.effective_at < ?"
		args = append(args, *req.To)
	}

	switch req.Grouping {
	case GroupLinkedAccount:
		// Soft-deleted linked accounts are excluded from grouped views.
		// Series are keyed by account id so two accounts sharing a
		// display name stay separate; the name rides along as a label.
		return `SELECT h.effective_at AS effective_at,
		               CAST(la.id AS TEXT) AS group_key,
		               la.account_name AS group_label,
		               v.valuation AS value
		        FROM linked_accounts_valuation_history_entries v
		        JOIN user_account_history_entries h ON h.id = v.history_entry_id
		        JOIN linked_accounts la ON la.id = v.linked_account_id AND la.deleted = ?
		        WHERE h.user_account_id = ? AND h.available = ?` + rangeClause + `
		        ORDER BY h.effective_at, h.id, la.id`,
			append([]any{false}, args...)
	case GroupAssetTypeClass:
		return `SELECT h.effective_at AS effective_at,
		               (i.item_type || '/' || i.item_sub_type) AS group_key,
		               SUM(i.valuation) AS value
		        FROM sub_accounts_items_valuation_history_entries i
		        JOIN user_account_history_entries h ON h.id = i.history_entry_id
		        JOIN linked_accounts la ON la.id = i.linked_account_id AND la.deleted = ?
		        WHERE h.user_account_id = ? AND h.available = ?` + rangeClause + `
		        GROUP BY h.effective_at, h.id, i.item_type, i.item_sub_type
		        ORDER BY h.effective_at, h.id`,
			append([]any{false}, args...)
	case GroupAssetClass:
		return `SELECT h.effective_at AS effective_at,
		               i.item_sub_type AS group_key,
		               SUM(i.valuation) AS value
		        FROM sub_accounts_items_valuation_history_entries i
		        JOIN user_account_history_entries h ON h.id = i.history_entry_id
		        JOIN linked_accounts la ON la.id = i.linked_account_id AND la.deleted = ?
		        WHERE h.user_account_id = ? AND h.available = ?` + rangeClause + `
		        GROUP BY h.effective_at, h.id, i.item_sub_type
		        ORDER BY h.effective_at, h.id`,
			append([]any{false}, args...)
	default: // GroupAccount
		return `SELECT h.effective_at AS effective_at,
		               '' AS group_key,
		               v.valuation AS value
		        FROM user_account_valuation_history_entries v
		        JOIN user_account_history_entries h ON h.id = v.history_entry_id
		        WHERE h.user_account_id = ? AND h.available = ?` + rangeClause + `
		        ORDER BY h.effective_at, h.id`,
			args
	}
}

type bucketKey struct {
	start time.Time
	group string
}

// bucketize folds an effective-time-ordered series into calendar
// buckets. Points arrive ordered, so the first point seen per bucket
// is the bucket's first and the latest is its last.
func bucketize(points []seriesPoint, freq period.Frequency) []Row {
	buckets := make(map[bucketKey]*Row)
	for _, point := range points {
		start := period.StartOf(point.EffectiveAt, freq)
		key := bucketKey{start: start, group: point.GroupKey}
		row, ok := buckets[key]
		if !ok {
			buckets[key] = &Row{
				BucketStart: start,
				BucketEnd:   period.Next(start, freq),
				GroupKey:    point.GroupKey,
				GroupLabel:  point.GroupLabel,
				First:       point.Value,
				Last:        point.Value,
				Min:         point.Value,
				Max:         point.Value,
			}
			continue
		}
		row.Last = point.Value
		if point.Value.LessThan(row.Min) {
			row.Min = point.Value
		}
		if point.Value.GreaterThan(row.Max) {
			row.Max = point.Value
		}
	}

	rows := make([]Row, 0, len(buckets))
	for _, row := range buckets {
		row.AbsChange = row.Last.Sub(row.First)
		if !row.First.IsZero() {
			rel := row.AbsChange.Div(row.First)
			row.RelChange = &rel
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].BucketStart.Equal(rows[j].BucketStart) {
			return rows[i].BucketStart.Before(rows[j].BucketStart)
		}
		return rows[i].GroupKey < rows[j].GroupKey
	})
	return rows
}
