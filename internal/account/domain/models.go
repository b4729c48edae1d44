// Package domain contains persistence models for user and linked
// accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserAccount is the owner of linked accounts and of the valuation
// timeline.
type UserAccount struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	ValuationCcy string       `gorm:"type:text;not null" json:"valuation_ccy"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (UserAccount) TableName() string { return "user_accounts" }

// LinkedAccount is a configured connection to one external financial
// provider. Rows are soft-deleted: history entries keep referencing
// them forever.
type LinkedAccount struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserAccountID snowflake.ID `gorm:"not null;index" json:"user_account_id"`
	ProviderID    string       `gorm:"type:text;not null" json:"provider_id"`
	AccountName   string       `gorm:"type:text;not null" json:"account_name"`

	// EncryptedCredentials is the provider credential blob, sealed by
	// the credential store. Plaintext never reaches this table.
	EncryptedCredentials []byte `gorm:"type:bytea" json:"-"`

	Frozen    bool       `gorm:"not null;default:false" json:"frozen"`
	Deleted   bool       `gorm:"not null;default:false" json:"deleted"`
	DeletedAt *time.Time `gorm:"" json:"-"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (LinkedAccount) TableName() string { return "linked_accounts" }

// Eligible reports whether the account should be included in a
// snapshot cycle.
func (a LinkedAccount) Eligible() bool {
	return !a.Deleted && !a.Frozen
}
