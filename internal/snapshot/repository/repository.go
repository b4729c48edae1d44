// Package repository implements gorm-backed persistence for raw
// snapshot data.
package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/pkg/repository"
	"gorm.io/gorm"
)

type Repository struct {
	db        *gorm.DB
	snapshots repository.Repository[snapshotdomain.UserAccountSnapshot]
	rates     repository.Repository[snapshotdomain.XccyRateSnapshotEntry]
}

func New(db *gorm.DB) *Repository {
	return &Repository{
		db:        db,
		snapshots: repository.ProvideStore[snapshotdomain.UserAccountSnapshot](db),
		rates:     repository.ProvideStore[snapshotdomain.XccyRateSnapshotEntry](db),
	}
}

func (r *Repository) CreateSnapshot(ctx context.Context, snapshot *snapshotdomain.UserAccountSnapshot) error {
	return r.snapshots.Create(ctx, snapshot)
}

func (r *Repository) FindSnapshot(ctx context.Context, id snowflake.ID) (*snapshotdomain.UserAccountSnapshot, error) {
	snapshot, err := r.snapshots.Find(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (r *Repository) MarkSnapshotEnded(ctx context.Context, id snowflake.ID, status string, endedAt time.Time) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE user_account_snapshots
		 SET status = ?, ended_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		endedAt,
		endedAt,
		id,
		snapshotdomain.SnapshotStatusProcessing,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	snapshot, err := r.FindSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snapshot.Status == status {
		// Re-run of an already completed stage.
		return nil
	}
	return snapshotdomain.ErrInvalidTransition
}

func (r *Repository) SaveEntryTree(ctx context.Context, tree *snapshotdomain.EntryTree) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tree.Entry).Error; err != nil {
			return err
		}
		for i := range tree.SubAccounts {
			subAccount := &tree.SubAccounts[i]
			subAccount.SubAccount.LinkedAccountSnapshotEntryID = tree.Entry.ID
			if err := tx.Create(&subAccount.SubAccount).Error; err != nil {
				return err
			}
			for j := range subAccount.Items {
				subAccount.Items[j].SubAccountSnapshotEntryID = subAccount.SubAccount.ID
			}
			if len(subAccount.Items) > 0 {
				if err := tx.Create(&subAccount.Items).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *Repository) SaveXccyRates(ctx context.Context, rates []snapshotdomain.XccyRateSnapshotEntry) error {
	return r.rates.CreateAll(ctx, rates)
}

func (r *Repository) LatestSuccessfulEntries(ctx context.Context, userAccountID, atOrBeforeSnapshotID snowflake.ID) (map[snowflake.ID]snapshotdomain.EffectiveEntry, error) {
	var rows []snapshotdomain.EffectiveEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT linked_account_id, entry_id, snapshot_id FROM (
		   SELECT e.linked_account_id AS linked_account_id,
		          e.id AS entry_id,
		          e.snapshot_id AS snapshot_id,
		          ROW_NUMBER() OVER (
		            PARTITION BY e.linked_account_id
		            ORDER BY e.snapshot_id DESC
		          ) AS rn
		   FROM linked_accounts_snapshot_entries e
		   JOIN user_account_snapshots s ON s.id = e.snapshot_id
		   WHERE s.user_account_id = ?
		     AND e.success = ?
		     AND e.snapshot_id <= ?
		 ) ranked
		 WHERE rn = 1`,
		userAccountID,
		true,
		atOrBeforeSnapshotID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make(map[snowflake.ID]snapshotdomain.EffectiveEntry, len(rows))
	for _, row := range rows {
		entries[row.LinkedAccountID] = row
	}
	return entries, nil
}

func (r *Repository) CurrentEntries(ctx context.Context, snapshotID snowflake.ID) (map[snowflake.ID]snapshotdomain.LinkedAccountSnapshotEntry, error) {
	var rows []snapshotdomain.LinkedAccountSnapshotEntry
	err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make(map[snowflake.ID]snapshotdomain.LinkedAccountSnapshotEntry, len(rows))
	for _, row := range rows {
		entries[row.LinkedAccountID] = row
	}
	return entries, nil
}

func (r *Repository) LoadEntryTree(ctx context.Context, entryID snowflake.ID) (*snapshotdomain.EntryTree, error) {
	var entry snapshotdomain.LinkedAccountSnapshotEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	var subAccounts []snapshotdomain.SubAccountSnapshotEntry
	err = r.db.WithContext(ctx).
		Where("linked_account_snapshot_entry_id = ?", entryID).
		Order("sub_account_id").
		Find(&subAccounts).Error
	if err != nil {
		return nil, err
	}

	tree := &snapshotdomain.EntryTree{Entry: entry, SubAccounts: make([]snapshotdomain.SubAccountTree, 0, len(subAccounts))}
	for _, subAccount := range subAccounts {
		var items []snapshotdomain.SubAccountItemSnapshotEntry
		err = r.db.WithContext(ctx).
			Where("sub_account_snapshot_entry_id = ?", subAccount.ID).
			Order("item_type, name").
			Find(&items).Error
		if err != nil {
			return nil, err
		}
		tree.SubAccounts = append(tree.SubAccounts, snapshotdomain.SubAccountTree{
			SubAccount: subAccount,
			Items:      items,
		})
	}
	return tree, nil
}
