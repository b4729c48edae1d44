// Package scheduler drives periodic valuations. It keeps one work row
// per user account in valuation_runs and claims due rows with row
// locks, so any number of scheduler replicas can run side by side
// while each user account has at most one valuation in flight.
package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/metrics"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config tunes the polling worker.
type Config struct {
	// PollInterval is the pause between claim attempts.
	PollInterval time.Duration
	// RunInterval is the spacing between two scheduled valuations of
	// the same user account.
	RunInterval time.Duration
	// BatchSize caps how many due runs one poll claims.
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	return c
}

type Scheduler struct {
	db      *gorm.DB
	service *service.Service
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     Config
	log     *zap.Logger
}

func New(db *gorm.DB, svc *service.Service, genID *snowflake.Node, clk clock.Clock, cfg Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		db:      db,
		service: svc,
		genID:   genID,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		log:     log.Named("scheduler"),
	}
}

// RunForever polls until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.log.Warn("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims due runs and executes them sequentially. Fan-out
// parallelism lives inside the pipeline, not here.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.updateBacklogMetrics(ctx)
	runs, err := s.ClaimDueRuns(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, run := range runs {
		s.execute(ctx, run)
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, run WorkRun) {
	started := time.Now()
	summary, err := s.service.RunValuation(ctx, run.UserAccountID, service.Options{})
	now := s.clock.Now()
	if err != nil {
		metrics.Pipeline().ObserveRun("failed", time.Since(started))
		s.log.Warn("scheduled valuation failed",
			zap.Int64("user_account_id", int64(run.UserAccountID)),
			zap.Error(err),
		)
		if markErr := s.markRunFailed(ctx, run.ID, err, now, now.Add(s.cfg.RunInterval)); markErr != nil {
			s.log.Warn("failed to record run failure", zap.Int64("run_id", int64(run.ID)), zap.Error(markErr))
		}
		return
	}
	metrics.Pipeline().ObserveRun("success", time.Since(started))
	if err := s.markRunCompleted(ctx, run.ID, summary.SnapshotID, now, now.Add(s.cfg.RunInterval)); err != nil {
		s.log.Warn("failed to record run completion", zap.Int64("run_id", int64(run.ID)), zap.Error(err))
	}
}
