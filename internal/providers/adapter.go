// Package providers defines the capability contract every external
// financial provider adapter conforms to, plus the registry and the
// credential store the snapshot pipeline consumes.
package providers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorScope tags a provider failure with the stage it occurred in.
type ErrorScope string

const (
	ScopeAccounts      ErrorScope = "accounts"
	ScopeAssets        ErrorScope = "assets"
	ScopeLiabilities   ErrorScope = "liabilities"
	ScopeLinkedAccount ErrorScope = "linked_account"
)

// Error is a structured adapter failure, scoped to the stage that
// produced it.
type Error struct {
	Scope  ErrorScope `json:"scope"`
	Reason string     `json:"error"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Scope, e.Reason)
}

// NewError builds a scoped provider error.
func NewError(scope ErrorScope, reason string) Error {
	return Error{Scope: scope, Reason: reason}
}

// Account is a normalized sub-account reported by a provider.
type Account struct {
	// ID is the provider-scoped sub-account identifier, stable across
	// fetches.
	ID          string
	Name        string
	IsoCurrency string
	Type        string
	SubType     string
}

// LineItem is a normalized asset or liability within a sub-account.
// Exactly one of ValueInAccountCcy / ValueInItemCcy must be set; the
// consistency builder derives the other representation via FX.
// Liability values are negative: a debt carries the amount owed with a
// minus sign, so every rollup is a plain sum and a liability reduces
// the valuation it contributes to.
type LineItem struct {
	AccountID         string
	Name              string
	SubType           string
	IsoCurrency       string
	Units             *decimal.Decimal
	ValueInAccountCcy *decimal.Decimal
	ValueInItemCcy    *decimal.Decimal
	Metadata          map[string]any
}

// Validate checks the XOR value contract.
func (i LineItem) Validate() error {
	if (i.ValueInAccountCcy == nil) == (i.ValueInItemCcy == nil) {
		return fmt.Errorf("line item %q must carry exactly one of account-ccy or item-ccy value", i.Name)
	}
	return nil
}

// Adapter is the fixed capability contract implemented per
// institution. Implementations are out of scope for the pipeline: it
// only relies on this shape.
type Adapter interface {
	Initialize(ctx context.Context, credentials Credentials) error
	GetAccounts(ctx context.Context) ([]Account, error)
	GetAssets(ctx context.Context) ([]LineItem, error)
	GetLiabilities(ctx context.Context) ([]LineItem, error)
}

// Credentials is a decrypted provider credential payload.
type Credentials map[string]string
