package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot_not_found")
	// ErrInvalidTransition means a snapshot status would move backward.
	ErrInvalidTransition = errors.New("invalid_snapshot_transition")
)

// EffectiveEntry points at the linked-account snapshot entry that best
// represents a linked account at a given point: the most recent
// successful entry at or before some snapshot.
type EffectiveEntry struct {
	LinkedAccountID snowflake.ID
	EntryID         snowflake.ID
	SnapshotID      snowflake.ID
}

// EntryTree is a fully loaded linked-account snapshot entry with its
// sub-accounts and items.
type EntryTree struct {
	Entry       LinkedAccountSnapshotEntry
	SubAccounts []SubAccountTree
}

// SubAccountTree pairs a sub-account entry with its items.
type SubAccountTree struct {
	SubAccount SubAccountSnapshotEntry
	Items      []SubAccountItemSnapshotEntry
}

// Repository persists raw snapshot data.
type Repository interface {
	CreateSnapshot(ctx context.Context, snapshot *UserAccountSnapshot) error
	FindSnapshot(ctx context.Context, id snowflake.ID) (*UserAccountSnapshot, error)
	// MarkSnapshotEnded transitions a processing snapshot to the given
	// terminal status. Idempotent: re-marking the same terminal status
	// is a no-op, any other transition is ErrInvalidTransition.
	MarkSnapshotEnded(ctx context.Context, id snowflake.ID, status string, endedAt time.Time) error

	// SaveEntryTree persists a linked-account entry with all its
	// sub-accounts and items, atomically.
	SaveEntryTree(ctx context.Context, tree *EntryTree) error
	SaveXccyRates(ctx context.Context, rates []XccyRateSnapshotEntry) error

	// LatestSuccessfulEntries returns, per linked account of the user,
	// the most recent successful entry at or before the given snapshot
	// id. This is the carry-forward query the consistency builder
	// depends on.
	LatestSuccessfulEntries(ctx context.Context, userAccountID, atOrBeforeSnapshotID snowflake.ID) (map[snowflake.ID]EffectiveEntry, error)
	// CurrentEntries returns the entries recorded under one snapshot,
	// keyed by linked account id.
	CurrentEntries(ctx context.Context, snapshotID snowflake.ID) (map[snowflake.ID]LinkedAccountSnapshotEntry, error)
	// LoadEntryTree loads an entry and its children.
	LoadEntryTree(ctx context.Context, entryID snowflake.ID) (*EntryTree, error)
}
