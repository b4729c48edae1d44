package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrHistoryEntryNotFound = errors.New("history_entry_not_found")
	// ErrMissingXccyRate aborts a whole tree build: a partially
	// converted valuation must never be committed.
	ErrMissingXccyRate = errors.New("missing_xccy_rate")
	// ErrDataIntegrity flags a programming-contract violation, e.g.
	// more than one user-account valuation row for one entry.
	ErrDataIntegrity = errors.New("valuation_data_integrity")
	// ErrInvalidTimeRange is a caller error: from must precede to.
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

// ChangeSet carries the change rows computed for one history entry,
// keyed back to the valuation rows they belong to.
type ChangeSet struct {
	HistoryEntryID snowflake.ID
	UserAccount    *ValuationChange
	// Level maps are keyed by valuation row id.
	LinkedAccounts map[snowflake.ID]*ValuationChange
	SubAccounts    map[snowflake.ID]*ValuationChange
	Items          map[snowflake.ID]*ValuationChange
}

// Repository persists and reads the valuation history.
type Repository interface {
	// SaveTree commits a whole history entry atomically, with
	// Available=false. Re-saving a tree for an already recorded
	// snapshot returns the existing entry (idempotent re-run).
	SaveTree(ctx context.Context, tree *Tree) (*HistoryEntry, error)
	FindEntry(ctx context.Context, id snowflake.ID) (*HistoryEntry, error)
	FindEntryBySnapshot(ctx context.Context, snapshotID snowflake.ID) (*HistoryEntry, error)

	// FloorEntry returns the most recent available entry for the user
	// at or before the given instant, denominated in the given
	// valuation currency. Nil when none exists.
	FloorEntry(ctx context.Context, userAccountID snowflake.ID, valuationCcy string, atOrBefore time.Time) (*HistoryEntry, error)

	// Valuation readers for the change calculator. UserValuation
	// enforces the exactly-one contract (ErrDataIntegrity otherwise).
	UserValuation(ctx context.Context, entryID snowflake.ID) (*UserAccountValuation, error)
	LinkedAccountValuations(ctx context.Context, entryID snowflake.ID) ([]LinkedAccountValuation, error)
	SubAccountValuations(ctx context.Context, entryID snowflake.ID) ([]SubAccountValuation, error)
	ItemValuations(ctx context.Context, entryID snowflake.ID) ([]ItemValuation, error)

	// SaveChanges commits the change rows, links them from their
	// valuation rows, and flips the entry to Available, atomically.
	SaveChanges(ctx context.Context, changes *ChangeSet) error

	// ListAvailableEntries returns available entries for a user in
	// [from, to), ordered by effective time. Nil bounds are open.
	ListAvailableEntries(ctx context.Context, userAccountID snowflake.ID, from, to *time.Time) ([]HistoryEntry, error)
}
