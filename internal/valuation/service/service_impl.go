// Package service composes the valuation pipeline stages into the
// entry points consumed by schedule-driven and user-triggered callers.
//
// Each stage is separately callable with serializable inputs and is
// idempotent, so an external durable task runner can drive stages
// individually under its own retry and timeout policy. Nothing here
// retries on its own.
package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/events"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/orchestrator"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/builder"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/change"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Options tunes one valuation run.
type Options struct {
	// LinkedAccountSubset restricts the refresh to the given linked
	// accounts; empty means all eligible accounts.
	LinkedAccountSubset []snowflake.ID
}

// Summary reports the outcome of a full valuation run.
type Summary struct {
	SnapshotID     snowflake.ID `json:"snapshot_id"`
	HistoryEntryID snowflake.ID `json:"history_entry_id"`
	TotalAccounts  int          `json:"total_accounts"`
	FailedAccounts int          `json:"failed_accounts"`
}

type Service struct {
	snapshots    snapshotdomain.Repository
	orchestrator *orchestrator.Orchestrator
	builder      *builder.Builder
	calculator   *change.Calculator
	outbox       *events.Outbox
	genID        *snowflake.Node
	clock        clock.Clock
	log          *zap.Logger
}

func New(
	snapshots snapshotdomain.Repository,
	orch *orchestrator.Orchestrator,
	bld *builder.Builder,
	calc *change.Calculator,
	outbox *events.Outbox,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		snapshots:    snapshots,
		orchestrator: orch,
		builder:      bld,
		calculator:   calc,
		outbox:       outbox,
		genID:        genID,
		clock:        clk,
		log:          log.Named("valuation.service"),
	}
}

// RunValuation executes the whole pipeline for one user account:
// snapshot fan-out, consistency build, change computation, completion
// event.
func (s *Service) RunValuation(ctx context.Context, userAccountID snowflake.ID, opts Options) (*Summary, error) {
	tracer := otel.Tracer("valuation")
	ctx, span := tracer.Start(ctx, "valuation.run")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_account_id", int64(userAccountID)))

	snapshot, outcomes, err := s.TakeSnapshot(ctx, userAccountID, opts)
	if err != nil {
		s.publishFailed(ctx, userAccountID, snapshot, err)
		return nil, err
	}

	entry, err := s.builder.Build(ctx, snapshot.ID)
	if err != nil {
		s.publishFailed(ctx, userAccountID, snapshot, err)
		return nil, err
	}

	if err := s.calculator.Compute(ctx, entry.ID); err != nil {
		s.publishFailed(ctx, userAccountID, snapshot, err)
		return nil, err
	}

	summary := &Summary{
		SnapshotID:     snapshot.ID,
		HistoryEntryID: entry.ID,
		TotalAccounts:  len(outcomes),
	}
	for _, outcome := range outcomes {
		if !outcome.Success() {
			summary.FailedAccounts++
		}
	}

	if len(opts.LinkedAccountSubset) > 0 {
		s.publishRefreshed(ctx, userAccountID, snapshot.ID, outcomes)
	}

	if err := s.outbox.Publish(ctx, events.Event{
		UserAccountID: userAccountID,
		Type:          events.EventValuationCompleted,
		Payload:       events.ValuationCompletedPayload(summary.SnapshotID, summary.HistoryEntryID, summary.TotalAccounts, summary.FailedAccounts),
		DedupeKey:     snapshot.ID.String() + ":" + events.EventValuationCompleted,
	}); err != nil {
		// The valuation itself is committed; a lost event is not worth
		// failing the run over.
		s.log.Warn("publishing completion event failed", zap.Error(err))
	}

	s.log.Info("valuation run complete",
		zap.Int64("user_account_id", int64(userAccountID)),
		zap.Int64("snapshot_id", int64(summary.SnapshotID)),
		zap.Int("total_accounts", summary.TotalAccounts),
		zap.Int("failed_accounts", summary.FailedAccounts),
	)
	return summary, nil
}

// TakeSnapshot runs the orchestration stage: creates the snapshot row,
// fans out provider fetches, persists every per-account outcome and
// marks the snapshot successful. Per-account failures become data;
// only the account-listing step itself can fail the stage.
func (s *Service) TakeSnapshot(ctx context.Context, userAccountID snowflake.ID, opts Options) (*snapshotdomain.UserAccountSnapshot, []orchestrator.FetchOutcome, error) {
	ctx, span := otel.Tracer("valuation").Start(ctx, "valuation.snapshot")
	defer span.End()

	snapshot := &snapshotdomain.UserAccountSnapshot{
		ID:            s.genID.Generate(),
		UserAccountID: userAccountID,
		Status:        snapshotdomain.SnapshotStatusProcessing,
		TraceID:       uuid.NewString(),
		StartedAt:     s.clock.Now(),
	}

	requests, err := s.orchestrator.PrepareRequests(ctx, userAccountID, opts.LinkedAccountSubset)
	if err != nil {
		return nil, nil, err
	}
	if len(requests) > 0 {
		snapshot.RequestedCcy = requests[0].ValuationCcy
	}
	if snapshot.RequestedCcy == "" {
		// No eligible accounts: still record the attempt in the user's
		// valuation currency.
		user, err := s.orchestrator.UserAccount(ctx, userAccountID)
		if err != nil {
			return nil, nil, err
		}
		snapshot.RequestedCcy = user.ValuationCcy
	}
	if err := s.snapshots.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, nil, err
	}

	outcomes := s.orchestrator.FetchAll(ctx, requests)
	for _, outcome := range outcomes {
		if err := s.persistOutcome(ctx, snapshot.ID, outcome); err != nil {
			return snapshot, nil, err
		}
	}

	endedAt := s.clock.Now()
	if err := s.snapshots.MarkSnapshotEnded(ctx, snapshot.ID, snapshotdomain.SnapshotStatusSuccess, endedAt); err != nil {
		return snapshot, nil, err
	}
	snapshot.Status = snapshotdomain.SnapshotStatusSuccess
	snapshot.EndedAt = &endedAt
	return snapshot, outcomes, nil
}

// BuildHistory exposes the consistency-build stage to the task runner.
func (s *Service) BuildHistory(ctx context.Context, snapshotID snowflake.ID) (snowflake.ID, error) {
	entry, err := s.builder.Build(ctx, snapshotID)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// ComputeChanges exposes the change-computation stage to the task
// runner.
func (s *Service) ComputeChanges(ctx context.Context, historyEntryID snowflake.ID) error {
	return s.calculator.Compute(ctx, historyEntryID)
}

// persistOutcome stores one fetch outcome as raw snapshot data. A
// failed outcome contributes its failure details and no children.
func (s *Service) persistOutcome(ctx context.Context, snapshotID snowflake.ID, outcome orchestrator.FetchOutcome) error {
	entry := snapshotdomain.LinkedAccountSnapshotEntry{
		ID:              s.genID.Generate(),
		SnapshotID:      snapshotID,
		LinkedAccountID: outcome.Request.LinkedAccountID,
		Success:         outcome.Success(),
	}
	if len(outcome.Failures) > 0 {
		details, err := json.Marshal(outcome.Failures)
		if err != nil {
			return err
		}
		entry.FailureDetails = details
	}

	tree := &snapshotdomain.EntryTree{Entry: entry}
	if outcome.Success() {
		tree.SubAccounts = s.buildSubAccountTrees(outcome)
	}
	return s.snapshots.SaveEntryTree(ctx, tree)
}

func (s *Service) buildSubAccountTrees(outcome orchestrator.FetchOutcome) []snapshotdomain.SubAccountTree {
	trees := make([]snapshotdomain.SubAccountTree, 0, len(outcome.Result.Accounts))
	index := make(map[string]int, len(outcome.Result.Accounts))
	for _, account := range outcome.Result.Accounts {
		index[account.ID] = len(trees)
		trees = append(trees, snapshotdomain.SubAccountTree{
			SubAccount: snapshotdomain.SubAccountSnapshotEntry{
				ID:           s.genID.Generate(),
				SubAccountID: account.ID,
				Ccy:          account.IsoCurrency,
				Description:  account.Name,
				Type:         account.Type,
				SubType:      account.SubType,
			},
		})
	}

	attach := func(items []providers.LineItem, itemType string) {
		for _, item := range items {
			position, ok := index[item.AccountID]
			if !ok {
				s.log.Warn("line item references unknown sub-account",
					zap.Int64("linked_account_id", int64(outcome.Request.LinkedAccountID)),
					zap.String("sub_account_id", item.AccountID),
					zap.String("item", item.Name),
				)
				continue
			}
			subCcy := trees[position].SubAccount.Ccy
			itemCcy := item.IsoCurrency
			if itemCcy == "" {
				itemCcy = subCcy
			}
			trees[position].Items = append(trees[position].Items, snapshotdomain.SubAccountItemSnapshotEntry{
				ID:                 s.genID.Generate(),
				ItemType:           itemType,
				Name:               item.Name,
				ItemSubType:        item.SubType,
				ItemCcy:            itemCcy,
				Units:              item.Units,
				ValueSubAccountCcy: item.ValueInAccountCcy,
				ValueItemCcy:       item.ValueInItemCcy,
				ProviderMetadata:   datatypes.JSONMap(item.Metadata),
			})
		}
	}
	attach(outcome.Result.Assets, snapshotdomain.ItemTypeAsset)
	attach(outcome.Result.Liabilities, snapshotdomain.ItemTypeLiability)
	return trees
}

// publishRefreshed emits one event per account of a selective refresh
// so subset callers can react without diffing the full valuation.
func (s *Service) publishRefreshed(ctx context.Context, userAccountID, snapshotID snowflake.ID, outcomes []orchestrator.FetchOutcome) {
	for _, outcome := range outcomes {
		err := s.outbox.Publish(ctx, events.Event{
			UserAccountID: userAccountID,
			Type:          events.EventLinkedAccountRefreshed,
			Payload:       events.LinkedAccountRefreshedPayload(snapshotID, outcome.Request.LinkedAccountID, outcome.Success()),
			DedupeKey:     snapshotID.String() + ":" + events.EventLinkedAccountRefreshed + ":" + outcome.Request.LinkedAccountID.String(),
		})
		if err != nil {
			s.log.Warn("publishing refresh event failed",
				zap.Int64("linked_account_id", int64(outcome.Request.LinkedAccountID)),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) publishFailed(ctx context.Context, userAccountID snowflake.ID, snapshot *snapshotdomain.UserAccountSnapshot, cause error) {
	event := events.Event{
		UserAccountID: userAccountID,
		Type:          events.EventValuationFailed,
		Payload:       map[string]any{"error": cause.Error()},
	}
	if snapshot != nil {
		event.Payload["snapshot_id"] = snapshot.ID.String()
		event.DedupeKey = snapshot.ID.String() + ":" + events.EventValuationFailed
	}
	if err := s.outbox.Publish(ctx, event); err != nil {
		s.log.Warn("publishing failure event failed", zap.Error(err))
	}
}
