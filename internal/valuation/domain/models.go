// Package domain contains the valuation history models: one immutable
// entry per point on a user's valuation timeline, with valuation
// records at four levels of the tree.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// HistoryEntry is one committed point on the valuation timeline,
// derived from a successful snapshot. It stays invisible to queries
// (Available=false) until change computation has committed.
type HistoryEntry struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserAccountID snowflake.ID `gorm:"not null;index" json:"user_account_id"`
	SnapshotID    snowflake.ID `gorm:"not null;uniqueIndex" json:"snapshot_id"`
	ValuationCcy  string       `gorm:"type:text;not null" json:"valuation_ccy"`
	EffectiveAt   time.Time    `gorm:"not null;index" json:"effective_at"`
	Available     bool         `gorm:"not null;default:false" json:"available"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (HistoryEntry) TableName() string { return "user_account_history_entries" }

// UserAccountValuation is the single whole-account valuation record of
// a history entry. Liability items carry negative values, so Valuation
// is TotalAssets plus TotalLiabilities and TotalLiabilities is never
// positive.
type UserAccountValuation struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	HistoryEntryID    snowflake.ID    `gorm:"not null;uniqueIndex" json:"history_entry_id"`
	Valuation         decimal.Decimal `gorm:"type:numeric;not null" json:"valuation"`
	TotalAssets       decimal.Decimal `gorm:"type:numeric;not null" json:"total_assets"`
	TotalLiabilities  decimal.Decimal `gorm:"type:numeric;not null" json:"total_liabilities"`
	ValuationChangeID *snowflake.ID   `gorm:"" json:"valuation_change_id,omitempty"`
}

// TableName sets the database table name.
func (UserAccountValuation) TableName() string { return "user_account_valuation_history_entries" }

// LinkedAccountValuation is the per-linked-account valuation record.
// EffectiveSnapshotID records which snapshot actually supplied the
// data (an older one when this cycle's fetch failed and data was
// carried forward).
type LinkedAccountValuation struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	HistoryEntryID      snowflake.ID    `gorm:"not null;index" json:"history_entry_id"`
	LinkedAccountID     snowflake.ID    `gorm:"not null;index" json:"linked_account_id"`
	EffectiveSnapshotID *snowflake.ID   `gorm:"" json:"effective_snapshot_id,omitempty"`
	Success             bool            `gorm:"not null" json:"success"`
	FailureDetails      datatypes.JSON  `gorm:"type:jsonb" json:"failure_details,omitempty"`
	Valuation           decimal.Decimal `gorm:"type:numeric;not null" json:"valuation"`
	ValuationChangeID   *snowflake.ID   `gorm:"" json:"valuation_change_id,omitempty"`
}

// TableName sets the database table name.
func (LinkedAccountValuation) TableName() string { return "linked_accounts_valuation_history_entries" }

// SubAccountValuation is the per-sub-account valuation record. A
// sub-account with zero items still gets a record with zero valuation
// so the tree shape stays stable across time.
type SubAccountValuation struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	HistoryEntryID    snowflake.ID    `gorm:"not null;index" json:"history_entry_id"`
	LinkedAccountID   snowflake.ID    `gorm:"not null" json:"linked_account_id"`
	SubAccountID      string          `gorm:"type:text;not null" json:"sub_account_id"`
	Ccy               string          `gorm:"type:text;not null" json:"ccy"`
	Description       string          `gorm:"type:text;not null" json:"description"`
	Type              string          `gorm:"type:text;not null" json:"type"`
	SubType           string          `gorm:"type:text" json:"sub_type"`
	Valuation         decimal.Decimal `gorm:"type:numeric;not null" json:"valuation"`
	ValuationSubCcy   decimal.Decimal `gorm:"type:numeric;not null" json:"valuation_sub_account_ccy"`
	TotalAssets       decimal.Decimal `gorm:"type:numeric;not null" json:"total_assets"`
	TotalLiabilities  decimal.Decimal `gorm:"type:numeric;not null" json:"total_liabilities"`
	ValuationChangeID *snowflake.ID   `gorm:"" json:"valuation_change_id,omitempty"`
}

// TableName sets the database table name.
func (SubAccountValuation) TableName() string { return "sub_accounts_valuation_history_entries" }

// ItemValuation is the per-item valuation record with all three
// currency representations populated.
type ItemValuation struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	HistoryEntryID     snowflake.ID      `gorm:"not null;index" json:"history_entry_id"`
	LinkedAccountID    snowflake.ID      `gorm:"not null" json:"linked_account_id"`
	SubAccountID       string            `gorm:"type:text;not null" json:"sub_account_id"`
	ItemType           string            `gorm:"type:text;not null" json:"item_type"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	ItemSubType        string            `gorm:"type:text" json:"item_sub_type"`
	ItemCcy            string            `gorm:"type:text;not null" json:"item_ccy"`
	Units              *decimal.Decimal  `gorm:"type:numeric" json:"units,omitempty"`
	ValueItemCcy       decimal.Decimal   `gorm:"type:numeric;not null" json:"value_item_ccy"`
	ValueSubAccountCcy decimal.Decimal   `gorm:"type:numeric;not null" json:"value_sub_account_ccy"`
	Valuation          decimal.Decimal   `gorm:"type:numeric;not null" json:"valuation"`
	ProviderMetadata   datatypes.JSONMap `gorm:"type:jsonb" json:"provider_metadata,omitempty"`
	ValuationChangeID  *snowflake.ID     `gorm:"" json:"valuation_change_id,omitempty"`
}

// TableName sets the database table name.
func (ItemValuation) TableName() string { return "sub_accounts_items_valuation_history_entries" }

// ValuationChange holds the signed deltas against the nearest
// at-or-before history entry for each of the seven fixed lookback
// horizons. A nil column means no reference entry existed at that
// horizon.
type ValuationChange struct {
	ID            snowflake.ID     `gorm:"primaryKey" json:"id"`
	Change1Hour   *decimal.Decimal `gorm:"type:numeric" json:"change_1hour"`
	Change1Day    *decimal.Decimal `gorm:"type:numeric" json:"change_1day"`
	Change1Week   *decimal.Decimal `gorm:"type:numeric" json:"change_1week"`
	Change1Month  *decimal.Decimal `gorm:"type:numeric" json:"change_1month"`
	Change6Months *decimal.Decimal `gorm:"type:numeric" json:"change_6months"`
	Change1Year   *decimal.Decimal `gorm:"type:numeric" json:"change_1year"`
	Change2Years  *decimal.Decimal `gorm:"type:numeric" json:"change_2years"`
}

// TableName sets the database table name.
func (ValuationChange) TableName() string { return "valuation_change_entries" }

// Tree is a fully materialized history entry ready for atomic
// persistence.
type Tree struct {
	Entry          HistoryEntry
	UserValuation  UserAccountValuation
	LinkedAccounts []LinkedAccountValuation
	SubAccounts    []SubAccountValuation
	Items          []ItemValuation
}
