package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/period"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type engineFixture struct {
	db     *gorm.DB
	engine *Engine
	nextID snowflake.ID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&accountdomain.LinkedAccount{},
		&valuationdomain.HistoryEntry{},
		&valuationdomain.UserAccountValuation{},
		&valuationdomain.LinkedAccountValuation{},
		&valuationdomain.ItemValuation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &engineFixture{db: db, engine: NewEngine(db), nextID: 1000}
}

func (f *engineFixture) id() snowflake.ID {
	f.nextID++
	return f.nextID
}

// addEntry records one available history entry for user 1 with the
// given whole-account valuation.
func (f *engineFixture) addEntry(t *testing.T, at time.Time, value int64) snowflake.ID {
	t.Helper()
	entryID := f.id()
	err := f.db.Create(&valuationdomain.HistoryEntry{
		ID: entryID, UserAccountID: 1, SnapshotID: entryID,
		ValuationCcy: "EUR", EffectiveAt: at, Available: true,
	}).Error
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	err = f.db.Create(&valuationdomain.UserAccountValuation{
		ID: f.id(), HistoryEntryID: entryID,
		Valuation:   decimal.NewFromInt(value),
		TotalAssets: decimal.NewFromInt(value),
	}).Error
	if err != nil {
		t.Fatalf("create valuation: %v", err)
	}
	return entryID
}

func (f *engineFixture) addLinkedAccount(t *testing.T, id snowflake.ID, name string, deleted bool) {
	t.Helper()
	err := f.db.Create(&accountdomain.LinkedAccount{
		ID: id, UserAccountID: 1, ProviderID: "static", AccountName: name, Deleted: deleted,
	}).Error
	if err != nil {
		t.Fatalf("create linked account: %v", err)
	}
}

func TestQueryDailyBuckets(t *testing.T) {
	f := newEngineFixture(t)
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	f.addEntry(t, day.Add(9*time.Hour), 100)
	f.addEntry(t, day.Add(12*time.Hour), 90)
	f.addEntry(t, day.Add(18*time.Hour), 120)
	f.addEntry(t, day.AddDate(0, 0, 1).Add(10*time.Hour), 110)

	rows, err := f.engine.Query(context.Background(), Request{
		UserAccountID: 1, Grouping: GroupAccount, Frequency: period.Daily,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(rows))
	}

	first := rows[0]
	if !first.BucketStart.Equal(day) {
		t.Fatalf("unexpected bucket start %s", first.BucketStart)
	}
	if !first.BucketEnd.Equal(day.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected bucket end %s", first.BucketEnd)
	}
	if !first.First.Equal(decimal.NewFromInt(100)) || !first.Last.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected first/last: %s/%s", first.First, first.Last)
	}
	if !first.Min.Equal(decimal.NewFromInt(90)) || !first.Max.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected min/max: %s/%s", first.Min, first.Max)
	}
	if !first.AbsChange.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected abs change %s", first.AbsChange)
	}
	if first.RelChange == nil || !first.RelChange.Equal(decimal.NewFromFloat(0.2)) {
		t.Fatalf("unexpected rel change %v", first.RelChange)
	}

	second := rows[1]
	if !second.First.Equal(decimal.NewFromInt(110)) || !second.Last.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("single-point bucket should repeat the value: %+v", second)
	}
}

func TestQueryWeeklyBucketsFollowISOWeeks(t *testing.T) {
	f := newEngineFixture(t)

	// 2024-03-04 is a Monday; the 10th is the Sunday of the same ISO
	// week and the 11th starts the next one.
	monday := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	f.addEntry(t, monday, 100)
	f.addEntry(t, time.Date(2024, time.March, 10, 22, 0, 0, 0, time.UTC), 130)
	f.addEntry(t, time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC), 140)

	rows, err := f.engine.Query(context.Background(), Request{
		UserAccountID: 1, Grouping: GroupAccount, Frequency: period.Weekly,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 weekly buckets, got %d", len(rows))
	}
	if !rows[0].BucketStart.Equal(time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("week should start on Monday, got %s", rows[0].BucketStart)
	}
	if !rows[0].Last.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("Sunday entry belongs to the same week: %s", rows[0].Last)
	}
}

func TestQueryRejectsInvalidRange(t *testing.T) {
	f := newEngineFixture(t)
	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)

	_, err := f.engine.Query(context.Background(), Request{
		UserAccountID: 1, From: &from, To: &to,
		Grouping: GroupAccount, Frequency: period.Daily,
	})
	if !errors.Is(err, valuationdomain.ErrInvalidTimeRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestQueryRejectsUnknownFrequencyAndGrouping(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Query(ctx, Request{UserAccountID: 1, Grouping: GroupAccount, Frequency: "hourly"})
	if !errors.Is(err, period.ErrUnknownFrequency) {
		t.Fatalf("expected unknown frequency, got %v", err)
	}
	_, err = f.engine.Query(ctx, Request{UserAccountID: 1, Grouping: "portfolio", Frequency: period.Daily})
	if !errors.Is(err, ErrUnknownGrouping) {
		t.Fatalf("expected unknown grouping, got %v", err)
	}
}

func TestQueryExcludesDeletedLinkedAccounts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	f.addLinkedAccount(t, 10, "Checking", false)
	f.addLinkedAccount(t, 20, "Old broker", true)
	entryID := f.addEntry(t, day.Add(9*time.Hour), 100)
	for _, linked := range []struct {
		id    snowflake.ID
		value int64
	}{{10, 60}, {20, 40}} {
		err := f.db.Create(&valuationdomain.LinkedAccountValuation{
			ID: f.id(), HistoryEntryID: entryID, LinkedAccountID: linked.id,
			Success: true, Valuation: decimal.NewFromInt(linked.value),
		}).Error
		if err != nil {
			t.Fatalf("create linked valuation: %v", err)
		}
	}

	rows, err := f.engine.Query(ctx, Request{
		UserAccountID: 1, Grouping: GroupLinkedAccount, Frequency: period.Daily,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].GroupKey != "10" || rows[0].GroupLabel != "Checking" {
		t.Fatalf("deleted accounts must not produce a series: %+v", rows)
	}
}

func TestQuerySeparatesSameNamedLinkedAccounts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	// Two distinct accounts sharing a display name must not fold into
	// one series with a phantom intra-bucket change.
	f.addLinkedAccount(t, 10, "Savings", false)
	f.addLinkedAccount(t, 20, "Savings", false)
	entryID := f.addEntry(t, day.Add(9*time.Hour), 150)
	for _, linked := range []struct {
		id    snowflake.ID
		value int64
	}{{10, 100}, {20, 50}} {
		err := f.db.Create(&valuationdomain.LinkedAccountValuation{
			ID: f.id(), HistoryEntryID: entryID, LinkedAccountID: linked.id,
			Success: true, Valuation: decimal.NewFromInt(linked.value),
		}).Error
		if err != nil {
			t.Fatalf("create linked valuation: %v", err)
		}
	}

	rows, err := f.engine.Query(ctx, Request{
		UserAccountID: 1, Grouping: GroupLinkedAccount, Frequency: period.Daily,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one series per account, got %+v", rows)
	}
	if rows[0].GroupKey != "10" || rows[1].GroupKey != "20" {
		t.Fatalf("series must be keyed by account id: %+v", rows)
	}
	for i, want := range []int64{100, 50} {
		if rows[i].GroupLabel != "Savings" {
			t.Fatalf("label should carry the display name: %+v", rows[i])
		}
		if !rows[i].First.Equal(decimal.NewFromInt(want)) || !rows[i].Last.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("series %d should hold its own valuation %d: %+v", i, want, rows[i])
		}
		if !rows[i].AbsChange.IsZero() {
			t.Fatalf("single-point series must not report a change: %+v", rows[i])
		}
	}
}

func TestQueryGroupsItemsByTypeAndClass(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	f.addLinkedAccount(t, 10, "Broker", false)
	entryID := f.addEntry(t, day.Add(9*time.Hour), 100)
	items := []struct {
		name    string
		subType string
		value   int64
	}{
		{"ACME", "equity", 40},
		{"GLOB", "equity", 30},
		{"Cash", "currency", 30},
	}
	for _, item := range items {
		err := f.db.Create(&valuationdomain.ItemValuation{
			ID: f.id(), HistoryEntryID: entryID, LinkedAccountID: 10,
			SubAccountID: "brokerage", ItemType: "asset", Name: item.name,
			ItemSubType: item.subType, ItemCcy: "EUR",
			ValueItemCcy:       decimal.NewFromInt(item.value),
			ValueSubAccountCcy: decimal.NewFromInt(item.value),
			Valuation:          decimal.NewFromInt(item.value),
		}).Error
		if err != nil {
			t.Fatalf("create item: %v", err)
		}
	}

	rows, err := f.engine.Query(ctx, Request{
		UserAccountID: 1, Grouping: GroupAssetTypeClass, Frequency: period.Daily,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 series, got %d", len(rows))
	}
	if rows[0].GroupKey != "asset/currency" || !rows[0].First.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected currency series: %+v", rows[0])
	}
	if rows[1].GroupKey != "asset/equity" || !rows[1].First.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("equity positions should be summed: %+v", rows[1])
	}
}

func TestQueryRelChangeNilWhenFirstIsZero(t *testing.T) {
	f := newEngineFixture(t)
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	f.addEntry(t, day.Add(9*time.Hour), 0)
	f.addEntry(t, day.Add(18*time.Hour), 50)

	rows, err := f.engine.Query(context.Background(), Request{
		UserAccountID: 1, Grouping: GroupAccount, Frequency: period.Daily,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(rows))
	}
	if rows[0].RelChange != nil {
		t.Fatalf("relative change is undefined from zero: %v", rows[0].RelChange)
	}
	if !rows[0].AbsChange.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected abs change %s", rows[0].AbsChange)
	}
}
