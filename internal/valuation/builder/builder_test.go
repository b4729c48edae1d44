package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	fxdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/domain"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/change"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	valuationrepository "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeAccounts struct {
	user   *accountdomain.UserAccount
	linked []accountdomain.LinkedAccount
}

func (f *fakeAccounts) FindUserAccount(ctx context.Context, id snowflake.ID) (*accountdomain.UserAccount, error) {
	if f.user == nil || f.user.ID != id {
		return nil, accountdomain.ErrUserAccountNotFound
	}
	return f.user, nil
}

func (f *fakeAccounts) ListLinkedAccounts(ctx context.Context, userAccountID snowflake.ID) ([]accountdomain.LinkedAccount, error) {
	return f.linked, nil
}

type fakeSnapshots struct {
	snapshots map[snowflake.ID]*snapshotdomain.UserAccountSnapshot
	trees     map[snowflake.ID]*snapshotdomain.EntryTree
	effective map[snowflake.ID]snapshotdomain.EffectiveEntry
	current   map[snowflake.ID]snapshotdomain.LinkedAccountSnapshotEntry

	savedRates int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		snapshots: make(map[snowflake.ID]*snapshotdomain.UserAccountSnapshot),
		trees:     make(map[snowflake.ID]*snapshotdomain.EntryTree),
		effective: make(map[snowflake.ID]snapshotdomain.EffectiveEntry),
		current:   make(map[snowflake.ID]snapshotdomain.LinkedAccountSnapshotEntry),
	}
}

func (f *fakeSnapshots) CreateSnapshot(ctx context.Context, snapshot *snapshotdomain.UserAccountSnapshot) error {
	f.snapshots[snapshot.ID] = snapshot
	return nil
}

func (f *fakeSnapshots) FindSnapshot(ctx context.Context, id snowflake.ID) (*snapshotdomain.UserAccountSnapshot, error) {
	snapshot, ok := f.snapshots[id]
	if !ok {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (f *fakeSnapshots) MarkSnapshotEnded(ctx context.Context, id snowflake.ID, status string, endedAt time.Time) error {
	return nil
}

func (f *fakeSnapshots) SaveEntryTree(ctx context.Context, tree *snapshotdomain.EntryTree) error {
	f.trees[tree.Entry.ID] = tree
	return nil
}

func (f *fakeSnapshots) SaveXccyRates(ctx context.Context, rates []snapshotdomain.XccyRateSnapshotEntry) error {
	f.savedRates += len(rates)
	return nil
}

func (f *fakeSnapshots) LatestSuccessfulEntries(ctx context.Context, userAccountID, atOrBeforeSnapshotID snowflake.ID) (map[snowflake.ID]snapshotdomain.EffectiveEntry, error) {
	return f.effective, nil
}

func (f *fakeSnapshots) CurrentEntries(ctx context.Context, snapshotID snowflake.ID) (map[snowflake.ID]snapshotdomain.LinkedAccountSnapshotEntry, error) {
	return f.current, nil
}

func (f *fakeSnapshots) LoadEntryTree(ctx context.Context, entryID snowflake.ID) (*snapshotdomain.EntryTree, error) {
	tree, ok := f.trees[entryID]
	if !ok {
		return nil, snapshotdomain.ErrSnapshotNotFound
	}
	return tree, nil
}

type fakeResolver struct {
	rates map[fxdomain.Pair]decimal.Decimal
}

func (f *fakeResolver) GetRate(ctx context.Context, pair fxdomain.Pair) (decimal.Decimal, error) {
	if pair.Identity() {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := f.rates[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", fxdomain.ErrRateUnavailable, pair)
	}
	return rate, nil
}

func (f *fakeResolver) GetRates(ctx context.Context, pairs []fxdomain.Pair) (map[fxdomain.Pair]decimal.Decimal, error) {
	resolved := make(map[fxdomain.Pair]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		rate, err := f.GetRate(ctx, pair)
		if err != nil {
			return nil, err
		}
		resolved[pair] = rate
	}
	return resolved, nil
}

func newTestHistory(t *testing.T) valuationdomain.Repository {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&valuationdomain.HistoryEntry{},
		&valuationdomain.UserAccountValuation{},
		&valuationdomain.LinkedAccountValuation{},
		&valuationdomain.SubAccountValuation{},
		&valuationdomain.ItemValuation{},
		&valuationdomain.ValuationChange{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return valuationrepository.New(db)
}

type builderFixture struct {
	builder   *Builder
	accounts  *fakeAccounts
	snapshots *fakeSnapshots
	resolver  *fakeResolver
	history   valuationdomain.Repository
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	accounts := &fakeAccounts{
		user: &accountdomain.UserAccount{ID: 1, Email: "user@example.org", ValuationCcy: "EUR"},
	}
	snapshots := newFakeSnapshots()
	resolver := &fakeResolver{rates: make(map[fxdomain.Pair]decimal.Decimal)}
	history := newTestHistory(t)
	manual := clock.NewManual(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC))
	return &builderFixture{
		builder:   New(accounts, snapshots, history, resolver, node, manual, zap.NewNop()),
		accounts:  accounts,
		snapshots: snapshots,
		resolver:  resolver,
		history:   history,
	}
}

func (f *builderFixture) addSuccessfulSnapshot(id snowflake.ID) {
	f.snapshots.snapshots[id] = &snapshotdomain.UserAccountSnapshot{
		ID:            id,
		UserAccountID: 1,
		Status:        snapshotdomain.SnapshotStatusSuccess,
		RequestedCcy:  "EUR",
	}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestBuildConvertsAcrossCurrencies(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}

	// USD brokerage sub-account holding a position quoted in GBP and a
	// USD cash balance quoted in the sub-account currency.
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "brokerage", Ccy: "USD", Type: "investment"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 52, ItemType: snapshotdomain.ItemTypeAsset, Name: "GILT", ItemCcy: "GBP",
						ValueItemCcy: decimalPtr(decimal.NewFromInt(10))},
					{ID: 53, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "USD",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(100))},
				},
			},
		},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	f.resolver.rates[fxdomain.NewPair("GBP", "USD")] = decimal.NewFromFloat(1.25)
	f.resolver.rates[fxdomain.NewPair("USD", "EUR")] = decimal.NewFromFloat(0.8)

	entry, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	userValuation, err := f.history.UserValuation(ctx, entry.ID)
	if err != nil {
		t.Fatalf("user valuation: %v", err)
	}
	// 10 GBP -> 12.5 USD, plus 100 USD cash, converted to EUR at 0.8.
	if want := decimal.NewFromInt(90); !userValuation.Valuation.Equal(want) {
		t.Fatalf("expected %s, got %s", want, userValuation.Valuation)
	}
	if !userValuation.TotalAssets.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("unexpected total assets %s", userValuation.TotalAssets)
	}

	subAccounts, err := f.history.SubAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("sub valuations: %v", err)
	}
	if len(subAccounts) != 1 {
		t.Fatalf("expected 1 sub-account, got %d", len(subAccounts))
	}
	if want := decimal.NewFromFloat(112.5); !subAccounts[0].ValuationSubCcy.Equal(want) {
		t.Fatalf("sub-account valuation in USD should be %s, got %s", want, subAccounts[0].ValuationSubCcy)
	}

	items, err := f.history.ItemValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("item valuations: %v", err)
	}
	for _, item := range items {
		if item.Name == "GILT" && !item.ValueSubAccountCcy.Equal(decimal.NewFromFloat(12.5)) {
			t.Fatalf("derived sub-ccy value should be 12.5, got %s", item.ValueSubAccountCcy)
		}
		if item.Name == "Cash" && !item.ValueItemCcy.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("derived item-ccy value should be 100, got %s", item.ValueItemCcy)
		}
	}
	if f.snapshots.savedRates != 2 {
		t.Fatalf("resolved rates should be captured, got %d", f.snapshots.savedRates)
	}
}

func TestBuildCarriesForwardFailedAccounts(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(600)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}

	// The account's fetch failed this cycle, but an older snapshot had
	// a committed tree worth 90 EUR. The build uses that tree while
	// surfacing the failure.
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "checking", Ccy: "EUR", Type: "cash"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 52, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "EUR",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(90))},
				},
			},
		},
	}
	f.snapshots.current[10] = snapshotdomain.LinkedAccountSnapshotEntry{
		ID: 60, SnapshotID: 600, LinkedAccountID: 10, Success: false,
	}
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	entry, err := f.builder.Build(ctx, 600)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	linked, err := f.history.LinkedAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("linked valuations: %v", err)
	}
	if len(linked) != 1 {
		t.Fatalf("expected 1 linked account, got %d", len(linked))
	}
	if linked[0].Success {
		t.Fatalf("this cycle's failure must be surfaced")
	}
	if !linked[0].Valuation.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("carried-forward valuation should be 90, got %s", linked[0].Valuation)
	}
	if linked[0].EffectiveSnapshotID == nil || *linked[0].EffectiveSnapshotID != 500 {
		t.Fatalf("effective snapshot should point at the carried-forward source: %+v", linked[0])
	}
}

func TestBuildAbortsOnMissingRate(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "brokerage", Ccy: "USD", Type: "investment"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 52, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "USD",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(100))},
				},
			},
		},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	_, err := f.builder.Build(ctx, 500)
	if !errors.Is(err, valuationdomain.ErrMissingXccyRate) {
		t.Fatalf("expected missing rate error, got %v", err)
	}
	if existing, _ := f.history.FindEntryBySnapshot(ctx, 500); existing != nil {
		t.Fatalf("no partial tree may be committed")
	}
}

func TestBuildKeepsEmptySubAccounts(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "empty", Ccy: "EUR", Type: "cash"}},
		},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	entry, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	subAccounts, err := f.history.SubAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("sub valuations: %v", err)
	}
	if len(subAccounts) != 1 {
		t.Fatalf("empty sub-account should still get a record, got %d", len(subAccounts))
	}
	if !subAccounts[0].Valuation.IsZero() {
		t.Fatalf("empty sub-account valuation should be zero, got %s", subAccounts[0].Valuation)
	}
}

func TestBuildIsIdempotentPerSnapshot(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	first, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-build must return the committed entry, got %d and %d", first.ID, second.ID)
	}
}

func TestBuildRejectsUnfinishedSnapshot(t *testing.T) {
	f := newBuilderFixture(t)
	f.snapshots.snapshots[500] = &snapshotdomain.UserAccountSnapshot{
		ID: 500, UserAccountID: 1, Status: snapshotdomain.SnapshotStatusProcessing, RequestedCcy: "EUR",
	}
	_, err := f.builder.Build(context.Background(), 500)
	if !errors.Is(err, snapshotdomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestBuildNetsLiabilitiesAgainstAssets(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{{ID: 10, UserAccountID: 1, ProviderID: "static"}}

	// Liabilities arrive with negative values, so the loan reduces the
	// account valuation while staying visible in the liability total.
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "checking", Ccy: "EUR", Type: "cash"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 52, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "EUR",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(500))},
					{ID: 53, ItemType: snapshotdomain.ItemTypeLiability, Name: "Loan", ItemSubType: "loan", ItemCcy: "EUR",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(-200))},
				},
			},
		},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}

	entry, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	userValuation, err := f.history.UserValuation(ctx, entry.ID)
	if err != nil {
		t.Fatalf("user valuation: %v", err)
	}
	if !userValuation.Valuation.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("net worth should be 300, got %s", userValuation.Valuation)
	}
	if !userValuation.TotalAssets.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("assets should total 500, got %s", userValuation.TotalAssets)
	}
	if !userValuation.TotalLiabilities.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("liabilities should total -200, got %s", userValuation.TotalLiabilities)
	}

	linked, err := f.history.LinkedAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("linked valuations: %v", err)
	}
	if len(linked) != 1 || !linked[0].Valuation.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("linked account should net to 300: %+v", linked)
	}

	subAccounts, err := f.history.SubAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("sub valuations: %v", err)
	}
	if len(subAccounts) != 1 {
		t.Fatalf("expected 1 sub-account, got %d", len(subAccounts))
	}
	if !subAccounts[0].Valuation.Equal(decimal.NewFromInt(300)) ||
		!subAccounts[0].TotalLiabilities.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("sub-account totals should net the loan: %+v", subAccounts[0])
	}
}

func TestBuildTwoAccountScenario(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	f.addSuccessfulSnapshot(500)
	f.accounts.linked = []accountdomain.LinkedAccount{
		{ID: 10, UserAccountID: 1, ProviderID: "static"},
		{ID: 20, UserAccountID: 1, ProviderID: "static"},
	}

	// Account A holds 100 EUR, account B holds 125 USD worth 100 EUR at
	// the resolved rate. Each account contributes 100, the user totals
	// 200, and the very first entry has no change references.
	f.snapshots.trees[50] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 50, SnapshotID: 500, LinkedAccountID: 10, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 51, SubAccountID: "checking", Ccy: "EUR", Type: "cash"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 52, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "EUR",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(100))},
				},
			},
		},
	}
	f.snapshots.trees[60] = &snapshotdomain.EntryTree{
		Entry: snapshotdomain.LinkedAccountSnapshotEntry{ID: 60, SnapshotID: 500, LinkedAccountID: 20, Success: true},
		SubAccounts: []snapshotdomain.SubAccountTree{
			{
				SubAccount: snapshotdomain.SubAccountSnapshotEntry{ID: 61, SubAccountID: "brokerage", Ccy: "USD", Type: "investment"},
				Items: []snapshotdomain.SubAccountItemSnapshotEntry{
					{ID: 62, ItemType: snapshotdomain.ItemTypeAsset, Name: "Cash", ItemCcy: "USD",
						ValueSubAccountCcy: decimalPtr(decimal.NewFromInt(125))},
				},
			},
		},
	}
	f.snapshots.current[10] = f.snapshots.trees[50].Entry
	f.snapshots.current[20] = f.snapshots.trees[60].Entry
	f.snapshots.effective[10] = snapshotdomain.EffectiveEntry{LinkedAccountID: 10, EntryID: 50, SnapshotID: 500}
	f.snapshots.effective[20] = snapshotdomain.EffectiveEntry{LinkedAccountID: 20, EntryID: 60, SnapshotID: 500}
	f.resolver.rates[fxdomain.NewPair("USD", "EUR")] = decimal.NewFromFloat(0.8)

	entry, err := f.builder.Build(ctx, 500)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	userValuation, err := f.history.UserValuation(ctx, entry.ID)
	if err != nil {
		t.Fatalf("user valuation: %v", err)
	}
	if !userValuation.Valuation.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("user should total 200, got %s", userValuation.Valuation)
	}
	linked, err := f.history.LinkedAccountValuations(ctx, entry.ID)
	if err != nil {
		t.Fatalf("linked valuations: %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("expected 2 linked accounts, got %d", len(linked))
	}
	for _, account := range linked {
		if !account.Valuation.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("account %d should be worth 100, got %s", account.LinkedAccountID, account.Valuation)
		}
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	calculator := change.New(f.history, node, zap.NewNop())
	if err := calculator.Compute(ctx, entry.ID); err != nil {
		t.Fatalf("compute: %v", err)
	}
	committed, err := f.history.FindEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if !committed.Available {
		t.Fatalf("entry should be available after change computation")
	}
}
