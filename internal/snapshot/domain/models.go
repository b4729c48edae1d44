// Package domain contains persistence models for raw snapshot
// collection.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SnapshotStatusProcessing = "processing"
	SnapshotStatusSuccess    = "success"
	SnapshotStatusFailure    = "failure"
)

// UserAccountSnapshot is one attempt to collect data for a user across
// all its linked accounts, denominated in one requested currency.
// Status only ever moves forward: processing -> success|failure.
type UserAccountSnapshot struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserAccountID snowflake.ID `gorm:"not null;index" json:"user_account_id"`
	Status        string       `gorm:"type:text;not null;default:processing" json:"status"`
	RequestedCcy  string       `gorm:"type:text;not null" json:"requested_ccy"`

	// TraceID correlates this snapshot with the task runner invocation
	// that produced it.
	TraceID string `gorm:"type:text;not null" json:"trace_id"`

	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `gorm:"" json:"ended_at"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (UserAccountSnapshot) TableName() string { return "user_account_snapshots" }

// FailureDetail records one failed stage of a linked account fetch.
type FailureDetail struct {
	Scope string `json:"scope"`
	Error string `json:"error"`
}

// LinkedAccountSnapshotEntry is the per-linked-account outcome within
// one snapshot. A failed entry contributes no sub-accounts to this
// snapshot but never fails the snapshot as a whole.
type LinkedAccountSnapshotEntry struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	SnapshotID      snowflake.ID   `gorm:"not null;index" json:"snapshot_id"`
	LinkedAccountID snowflake.ID   `gorm:"not null;index" json:"linked_account_id"`
	Success         bool           `gorm:"not null" json:"success"`
	FailureDetails  datatypes.JSON `gorm:"type:jsonb" json:"failure_details,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (LinkedAccountSnapshotEntry) TableName() string { return "linked_accounts_snapshot_entries" }

// SubAccountSnapshotEntry is one logical account reported by a
// provider within a linked account fetch.
type SubAccountSnapshotEntry struct {
	ID                           snowflake.ID `gorm:"primaryKey" json:"id"`
	LinkedAccountSnapshotEntryID snowflake.ID `gorm:"not null;index" json:"linked_account_snapshot_entry_id"`
	SubAccountID                 string       `gorm:"type:text;not null" json:"sub_account_id"`
	Ccy                          string       `gorm:"type:text;not null" json:"ccy"`
	Description                  string       `gorm:"type:text;not null" json:"description"`
	Type                         string       `gorm:"type:text;not null" json:"type"`
	SubType                      string       `gorm:"type:text" json:"sub_type"`
	CreatedAt                    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (SubAccountSnapshotEntry) TableName() string { return "sub_accounts_snapshot_entries" }

const (
	ItemTypeAsset     = "asset"
	ItemTypeLiability = "liability"
)

// SubAccountItemSnapshotEntry is one asset or liability captured
// within a sub-account. Exactly one of ValueSubAccountCcy /
// ValueItemCcy was supplied by the provider; the other representation
// is derived at build time.
type SubAccountItemSnapshotEntry struct {
	ID                        snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubAccountSnapshotEntryID snowflake.ID      `gorm:"not null;index" json:"sub_account_snapshot_entry_id"`
	ItemType                  string            `gorm:"type:text;not null" json:"item_type"`
	Name                      string            `gorm:"type:text;not null" json:"name"`
	ItemSubType               string            `gorm:"type:text" json:"item_sub_type"`
	ItemCcy                   string            `gorm:"type:text;not null" json:"item_ccy"`
	Units                     *decimal.Decimal  `gorm:"type:numeric" json:"units,omitempty"`
	ValueSubAccountCcy        *decimal.Decimal  `gorm:"type:numeric" json:"value_sub_account_ccy,omitempty"`
	ValueItemCcy              *decimal.Decimal  `gorm:"type:numeric" json:"value_item_ccy,omitempty"`
	ProviderMetadata          datatypes.JSONMap `gorm:"type:jsonb" json:"provider_metadata,omitempty"`
	CreatedAt                 time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (SubAccountItemSnapshotEntry) TableName() string { return "sub_accounts_items_snapshot_entries" }

// XccyRateSnapshotEntry is the FX rate captured for one pair at
// snapshot time, persisted so historical valuations stay reproducible
// even if the live source later changes.
type XccyRateSnapshotEntry struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SnapshotID  snowflake.ID    `gorm:"not null;index" json:"snapshot_id"`
	DomesticCcy string          `gorm:"type:text;not null" json:"domestic_ccy"`
	ForeignCcy  string          `gorm:"type:text;not null" json:"foreign_ccy"`
	Rate        decimal.Decimal `gorm:"type:numeric;not null" json:"rate"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (XccyRateSnapshotEntry) TableName() string { return "xccy_rates_snapshot_entries" }
