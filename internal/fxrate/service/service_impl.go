// Package service implements the FX rate resolver.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jean-edouard-boulanger/finbot-sub000/internal/cache"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	fxdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rateTable map[string]decimal.Decimal

// Resolver resolves currency pairs against a rate source, reusing
// cached tables per base currency within a TTL window and inverting
// already-cached bases instead of issuing new fetches.
type Resolver struct {
	source fxdomain.RateSource
	cache  cache.Cache[string, rateTable]
	clock  clock.Clock
	ttl    time.Duration
	log    *zap.Logger
}

// NewResolver builds a resolver with its own TTL cache driven by the
// given clock.
func NewResolver(source fxdomain.RateSource, clk clock.Clock, ttl time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		source: source,
		cache:  cache.NewTTLCacheWithNow[string, rateTable](clk.Now),
		clock:  clk,
		ttl:    ttl,
		log:    log.Named("fxrate"),
	}
}

// GetRate resolves one pair: value_foreign = value_domestic * rate.
func (r *Resolver) GetRate(ctx context.Context, pair fxdomain.Pair) (decimal.Decimal, error) {
	if pair.Identity() {
		return decimal.NewFromInt(1), nil
	}

	// Serve from an already-cached base in either direction before
	// going to the source.
	if table, ok := r.cache.Get(pair.Foreign); ok {
		if rate, ok := table[pair.Domestic]; ok {
			return rate, nil
		}
	}
	if table, ok := r.cache.Get(pair.Domestic); ok {
		if rate, ok := table[pair.Foreign]; ok && !rate.IsZero() {
			return decimal.NewFromInt(1).Div(rate), nil
		}
	}

	table, err := r.source.GetRates(ctx, pair.Foreign)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching rates for base %s: %w", pair.Foreign, err)
	}
	r.cache.Set(pair.Foreign, rateTable(table), r.ttl)
	r.log.Debug("fetched rate table",
		zap.String("base", pair.Foreign),
		zap.Int("rates", len(table)),
	)

	rate, ok := table[pair.Domestic]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", fxdomain.ErrRateUnavailable, pair)
	}
	return rate, nil
}

// GetRates resolves a batch of pairs. Any unavailable pair fails the
// whole batch.
func (r *Resolver) GetRates(ctx context.Context, pairs []fxdomain.Pair) (map[fxdomain.Pair]decimal.Decimal, error) {
	resolved := make(map[fxdomain.Pair]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		if _, ok := resolved[pair]; ok {
			continue
		}
		rate, err := r.GetRate(ctx, pair)
		if err != nil {
			return nil, err
		}
		resolved[pair] = rate
	}
	return resolved, nil
}
