package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&accountdomain.UserAccount{}, &accountdomain.LinkedAccount{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestFindUserAccount(t *testing.T) {
	db := setupTestDB(t)
	r := New(db)
	ctx := context.Background()

	err := db.Create(&accountdomain.UserAccount{ID: 1, Email: "user@example.org", ValuationCcy: "EUR"}).Error
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	user, err := r.FindUserAccount(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.ValuationCcy != "EUR" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := r.FindUserAccount(ctx, 999); !errors.Is(err, accountdomain.ErrUserAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListLinkedAccountsExcludesDeleted(t *testing.T) {
	db := setupTestDB(t)
	r := New(db)
	ctx := context.Background()

	seed := []accountdomain.LinkedAccount{
		{ID: 30, UserAccountID: 1, ProviderID: "static", AccountName: "Broker"},
		{ID: 10, UserAccountID: 1, ProviderID: "static", AccountName: "Checking"},
		{ID: 20, UserAccountID: 1, ProviderID: "static", AccountName: "Closed", Deleted: true},
		{ID: 40, UserAccountID: 2, ProviderID: "static", AccountName: "Other user"},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	accounts, err := r.ListLinkedAccounts(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ID != 10 || accounts[1].ID != 30 {
		t.Fatalf("accounts should be ordered by id: %+v", accounts)
	}

	// A frozen account is still listed; eligibility filtering is the
	// caller's concern.
	if err := db.Create(&accountdomain.LinkedAccount{
		ID: 50, UserAccountID: 1, ProviderID: "static", AccountName: "Frozen", Frozen: true,
	}).Error; err != nil {
		t.Fatalf("seed frozen: %v", err)
	}
	accounts, err = r.ListLinkedAccounts(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("frozen accounts stay listed, got %d", len(accounts))
	}
}
