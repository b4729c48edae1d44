// Package orchestrator fans out provider fetches for one snapshot
// cycle. It tolerates any per-account failure: failures are recorded
// as data on the outcome, never raised. Retries belong to the durable
// task runner driving the pipeline, not to this code.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/metrics"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"go.uber.org/zap"
)

// FetchRequest carries everything one provider fetch needs.
// Credentials are decrypted at preparation time and must never be
// persisted or logged.
type FetchRequest struct {
	LinkedAccountID snowflake.ID
	ProviderID      string
	AccountName     string
	ValuationCcy    string
	Credentials     providers.Credentials `json:"-"`
}

// FetchResult holds the normalized payload of a successful (or
// partially successful) fetch.
type FetchResult struct {
	Accounts    []providers.Account
	Assets      []providers.LineItem
	Liabilities []providers.LineItem
}

// FetchOutcome pairs a request with its result or structured failures.
type FetchOutcome struct {
	Request  FetchRequest
	Result   FetchResult
	Failures []snapshotdomain.FailureDetail
}

// Success reports whether every stage of the fetch succeeded.
func (o FetchOutcome) Success() bool { return len(o.Failures) == 0 }

// Orchestrator prepares and executes snapshot fan-out.
type Orchestrator struct {
	accounts    accountdomain.Repository
	credentials providers.CredentialStore
	registry    *providers.Registry
	cfg         Config
	log         *zap.Logger
}

func New(accounts accountdomain.Repository, credentials providers.CredentialStore, registry *providers.Registry, cfg Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		accounts:    accounts,
		credentials: credentials,
		registry:    registry,
		cfg:         cfg.withDefaults(),
		log:         log.Named("snapshot.orchestrator"),
	}
}

// UserAccount resolves the owning user account, mainly for its
// valuation currency.
func (o *Orchestrator) UserAccount(ctx context.Context, userAccountID snowflake.ID) (*accountdomain.UserAccount, error) {
	return o.accounts.FindUserAccount(ctx, userAccountID)
}

// PrepareRequests builds one fetch request per eligible linked account
// (not deleted, not frozen, in the subset when one is given). An error
// here fails the whole orchestration; there is nothing sensible to
// fan out.
func (o *Orchestrator) PrepareRequests(ctx context.Context, userAccountID snowflake.ID, subset []snowflake.ID) ([]FetchRequest, error) {
	user, err := o.accounts.FindUserAccount(ctx, userAccountID)
	if err != nil {
		return nil, err
	}
	linked, err := o.accounts.ListLinkedAccounts(ctx, userAccountID)
	if err != nil {
		return nil, fmt.Errorf("listing linked accounts: %w", err)
	}

	var wanted map[snowflake.ID]bool
	if len(subset) > 0 {
		wanted = make(map[snowflake.ID]bool, len(subset))
		for _, id := range subset {
			wanted[id] = true
		}
	}

	requests := make([]FetchRequest, 0, len(linked))
	for _, account := range linked {
		if !account.Eligible() {
			continue
		}
		if wanted != nil && !wanted[account.ID] {
			continue
		}
		credentials, err := o.credentials.Get(ctx, account.ID, account.EncryptedCredentials)
		if err != nil {
			return nil, fmt.Errorf("decrypting credentials for linked account %d: %w", account.ID, err)
		}
		requests = append(requests, FetchRequest{
			LinkedAccountID: account.ID,
			ProviderID:      account.ProviderID,
			AccountName:     account.AccountName,
			ValuationCcy:    user.ValuationCcy,
			Credentials:     credentials,
		})
	}
	return requests, nil
}

// FetchAll executes all requests concurrently, each under its own
// timeout, and returns outcomes in request order. It never returns
// early: every request resolves to success or recorded failure.
func (o *Orchestrator) FetchAll(ctx context.Context, requests []FetchRequest) []FetchOutcome {
	outcomes := make([]FetchOutcome, len(requests))
	semaphore := make(chan struct{}, o.cfg.MaxParallel)

	var wg sync.WaitGroup
	for i, request := range requests {
		wg.Add(1)
		go func(i int, request FetchRequest) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
			defer cancel()
			outcomes[i] = o.fetchOne(fetchCtx, request)
		}(i, request)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) fetchOne(ctx context.Context, request FetchRequest) FetchOutcome {
	outcome := FetchOutcome{Request: request}

	adapter, err := o.registry.Get(request.ProviderID)
	if err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeLinkedAccount, err))
		return outcome
	}
	if err := adapter.Initialize(ctx, request.Credentials); err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeLinkedAccount, err))
		return outcome
	}

	accounts, err := adapter.GetAccounts(ctx)
	if err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeAccounts, err))
	} else {
		outcome.Result.Accounts = accounts
	}

	assets, err := adapter.GetAssets(ctx)
	if err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeAssets, err))
	} else if err := validateItems(assets); err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeAssets, err))
	} else {
		outcome.Result.Assets = assets
	}

	liabilities, err := adapter.GetLiabilities(ctx)
	if err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeLiabilities, err))
	} else if err := validateItems(liabilities); err != nil {
		outcome.Failures = append(outcome.Failures, failure(providers.ScopeLiabilities, err))
	} else {
		outcome.Result.Liabilities = liabilities
	}

	if !outcome.Success() {
		for _, detail := range outcome.Failures {
			metrics.Pipeline().IncFetchFailure(detail.Scope)
		}
		o.log.Warn("linked account fetch failed",
			zap.Int64("linked_account_id", int64(request.LinkedAccountID)),
			zap.String("provider_id", request.ProviderID),
			zap.Int("failures", len(outcome.Failures)),
		)
	}
	return outcome
}

func validateItems(items []providers.LineItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func failure(scope providers.ErrorScope, err error) snapshotdomain.FailureDetail {
	return snapshotdomain.FailureDetail{Scope: string(scope), Error: err.Error()}
}
