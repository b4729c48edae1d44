// Package domain defines the FX rate resolution contract.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateUnavailable means a required pair could not be resolved.
	// Callers building a valuation tree must treat this as fatal for
	// the whole build: a partially converted valuation is worse than
	// none.
	ErrRateUnavailable = errors.New("xccy_rate_unavailable")
)

// Pair identifies a conversion from domestic units to foreign units:
// value_foreign = value_domestic * rate.
type Pair struct {
	Domestic string
	Foreign  string
}

// NewPair normalizes a currency pair.
func NewPair(domestic, foreign string) Pair {
	return Pair{Domestic: domestic, Foreign: foreign}
}

// Identity reports whether the pair converts a currency to itself.
func (p Pair) Identity() bool { return p.Domestic == p.Foreign }

// Inverse returns the opposite conversion direction.
func (p Pair) Inverse() Pair { return Pair{Domestic: p.Foreign, Foreign: p.Domestic} }

func (p Pair) String() string { return fmt.Sprintf("%s/%s", p.Domestic, p.Foreign) }

// RateSource serves point-in-time rate tables, one call per foreign
// base currency: the returned map is keyed by domestic currency, each
// value converting that domestic currency into the base.
type RateSource interface {
	GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// Resolver turns currency pairs into conversion rates, caching rate
// tables per base currency.
type Resolver interface {
	// GetRate resolves a single pair. Identity pairs yield exactly 1
	// without touching the source.
	GetRate(ctx context.Context, pair Pair) (decimal.Decimal, error)
	// GetRates resolves a set of pairs as one batch, failing on the
	// first unavailable pair.
	GetRates(ctx context.Context, pairs []Pair) (map[Pair]decimal.Decimal, error)
}
