// Package repository implements gorm-backed persistence for the
// valuation history.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveTree(ctx context.Context, tree *valuationdomain.Tree) (*valuationdomain.HistoryEntry, error) {
	existing, err := r.FindEntryBySnapshot(ctx, tree.Entry.SnapshotID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// The build stage was re-run after a crash; the committed tree
		// stands.
		return existing, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tree.Entry).Error; err != nil {
			return err
		}
		tree.UserValuation.HistoryEntryID = tree.Entry.ID
		if err := tx.Create(&tree.UserValuation).Error; err != nil {
			return err
		}
		for i := range tree.LinkedAccounts {
			tree.LinkedAccounts[i].HistoryEntryID = tree.Entry.ID
		}
		if len(tree.LinkedAccounts) > 0 {
			if err := tx.Create(&tree.LinkedAccounts).Error; err != nil {
				return err
			}
		}
		for i := range tree.SubAccounts {
			tree.SubAccounts[i].HistoryEntryID = tree.Entry.ID
		}
		if len(tree.SubAccounts) > 0 {
			if err := tx.Create(&tree.SubAccounts).Error; err != nil {
				return err
			}
		}
		for i := range tree.Items {
			tree.Items[i].HistoryEntryID = tree.Entry.ID
		}
		if len(tree.Items) > 0 {
			if err := tx.Create(&tree.Items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tree.Entry, nil
}

func (r *Repository) FindEntry(ctx context.Context, id snowflake.ID) (*valuationdomain.HistoryEntry, error) {
	var entry valuationdomain.HistoryEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, valuationdomain.ErrHistoryEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) FindEntryBySnapshot(ctx context.Context, snapshotID snowflake.ID) (*valuationdomain.HistoryEntry, error) {
	var entry valuationdomain.HistoryEntry
	err := r.db.WithContext(ctx).First(&entry, "snapshot_id = ?", snapshotID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) FloorEntry(ctx context.Context, userAccountID snowflake.ID, valuationCcy string, atOrBefore time.Time) (*valuationdomain.HistoryEntry, error) {
	var entries []valuationdomain.HistoryEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM user_account_history_entries
		 WHERE user_account_id = ?
		   AND valuation_ccy = ?
		   AND available = ?
		   AND effective_at <= ?
		 ORDER BY effective_at DESC, id DESC
		 LIMIT 1`,
		userAccountID,
		valuationCcy,
		true,
		atOrBefore,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *Repository) UserValuation(ctx context.Context, entryID snowflake.ID) (*valuationdomain.UserAccountValuation, error) {
	var rows []valuationdomain.UserAccountValuation
	err := r.db.WithContext(ctx).
		Where("history_entry_id = ?", entryID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("%w: expected exactly 1 user account valuation for entry %d, found %d",
			valuationdomain.ErrDataIntegrity, entryID, len(rows))
	}
	return &rows[0], nil
}

func (r *Repository) LinkedAccountValuations(ctx context.Context, entryID snowflake.ID) ([]valuationdomain.LinkedAccountValuation, error) {
	var rows []valuationdomain.LinkedAccountValuation
	err := r.db.WithContext(ctx).
		Where("history_entry_id = ?", entryID).
		Order("linked_account_id").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) SubAccountValuations(ctx context.Context, entryID snowflake.ID) ([]valuationdomain.SubAccountValuation, error) {
	var rows []valuationdomain.SubAccountValuation
	err := r.db.WithContext(ctx).
		Where("history_entry_id = ?", entryID).
		Order("linked_account_id, sub_account_id").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ItemValuations(ctx context.Context, entryID snowflake.ID) ([]valuationdomain.ItemValuation, error) {
	var rows []valuationdomain.ItemValuation
	err := r.db.WithContext(ctx).
		Where("history_entry_id = ?", entryID).
		Order("linked_account_id, sub_account_id, item_type, name").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) SaveChanges(ctx context.Context, changes *valuationdomain.ChangeSet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link := func(table string, rowID snowflake.ID, change *valuationdomain.ValuationChange) error {
			if change == nil {
				return nil
			}
			if err := tx.Create(change).Error; err != nil {
				return err
			}
			return tx.Exec(
				fmt.Sprintf(`UPDATE %s SET valuation_change_id = ? WHERE id = ?`, table),
				change.ID,
				rowID,
			).Error
		}

		if changes.UserAccount != nil {
			userValuation, err := r.UserValuation(ctx, changes.HistoryEntryID)
			if err != nil {
				return err
			}
			if err := link("user_account_valuation_history_entries", userValuation.ID, changes.UserAccount); err != nil {
				return err
			}
		}
		for rowID, change := range changes.LinkedAccounts {
			if err := link("linked_accounts_valuation_history_entries", rowID, change); err != nil {
				return err
			}
		}
		for rowID, change := range changes.SubAccounts {
			if err := link("sub_accounts_valuation_history_entries", rowID, change); err != nil {
				return err
			}
		}
		for rowID, change := range changes.Items {
			if err := link("sub_accounts_items_valuation_history_entries", rowID, change); err != nil {
				return err
			}
		}

		return tx.Exec(
			`UPDATE user_account_history_entries
			 SET available = ?, updated_at = ?
			 WHERE id = ?`,
			true,
			time.Now().UTC(),
			changes.HistoryEntryID,
		).Error
	})
}

func (r *Repository) ListAvailableEntries(ctx context.Context, userAccountID snowflake.ID, from, to *time.Time) ([]valuationdomain.HistoryEntry, error) {
	query := r.db.WithContext(ctx).
		Where("user_account_id = ? AND available = ?", userAccountID, true)
	if from != nil {
		query = query.Where("effective_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("effective_at < ?", *to)
	}
	var entries []valuationdomain.HistoryEntry
	err := query.Order("effective_at, id").Find(&entries).Error
	return entries, err
}
