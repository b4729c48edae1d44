package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/metrics"
	"gorm.io/gorm"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
)

// WorkRun is one claimed valuation_runs row.
type WorkRun struct {
	ID            snowflake.ID
	UserAccountID snowflake.ID
	Status        string
	NextRunAt     time.Time
	LastError     *string
}

// EnsureRun upserts the schedule row for a user account so the worker
// picks it up. Existing rows keep their state; there is never more
// than one row per user account.
func (s *Scheduler) EnsureRun(ctx context.Context, userAccountID snowflake.ID, nextRunAt time.Time) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO valuation_runs (id, user_account_id, status, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_account_id) DO NOTHING`,
		s.genID.Generate(),
		userAccountID,
		RunStatusPending,
		nextRunAt,
		now,
		now,
	).Error
}

// ClaimDueRuns atomically selects due pending rows and flips them to
// running. SKIP LOCKED keeps concurrent workers from claiming the same
// user account; the status check keeps a crashed claim from being
// doubled before its row is recovered.
func (s *Scheduler) ClaimDueRuns(ctx context.Context, limit int) ([]WorkRun, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	now := s.clock.Now()

	var runs []WorkRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Raw(
			`SELECT id, user_account_id, status, next_run_at, last_error
			 FROM valuation_runs
			 WHERE status = ? AND next_run_at <= ?
			 ORDER BY next_run_at ASC, id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			RunStatusPending,
			now,
			limit,
		).Scan(&runs).Error; err != nil {
			return err
		}
		for _, run := range runs {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE valuation_runs
				 SET status = ?, started_at = ?, updated_at = ?
				 WHERE id = ?`,
				RunStatusRunning,
				now,
				now,
				run.ID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Scheduler) updateBacklogMetrics(ctx context.Context) {
	now := s.clock.Now()
	var row struct {
		Pending int
		Oldest  *time.Time
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS pending, MIN(next_run_at) AS oldest
		 FROM valuation_runs
		 WHERE status = ? AND next_run_at <= ?`,
		RunStatusPending,
		now,
	).Scan(&row).Error; err != nil {
		return
	}
	metrics.Pipeline().SetRunBacklog(row.Pending)
	if row.Oldest != nil {
		metrics.Pipeline().SetRunBacklogOldest(now.Sub(*row.Oldest))
	} else {
		metrics.Pipeline().SetRunBacklogOldest(0)
	}
}

func (s *Scheduler) markRunCompleted(ctx context.Context, runID, snapshotID snowflake.ID, now, nextRunAt time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE valuation_runs
		 SET status = ?, last_snapshot_id = ?, last_error = NULL, last_error_at = NULL,
		     next_run_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		RunStatusPending,
		snapshotID,
		nextRunAt,
		now,
		runID,
		RunStatusRunning,
	).Error
}

func (s *Scheduler) markRunFailed(ctx context.Context, runID snowflake.ID, cause error, now, nextRunAt time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE valuation_runs
		 SET status = ?, last_error = ?, last_error_at = ?, next_run_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		RunStatusPending,
		cause.Error(),
		now,
		nextRunAt,
		now,
		runID,
		RunStatusRunning,
	).Error
}
