// Package seed bootstraps a demo user account with one static
// provider connection so a fresh development database can run the
// pipeline end to end.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	demoEmail       = "demo@finbot.local"
	demoCcy         = "EUR"
	demoAccountName = "Demo Bank"
)

// EnsureDemoUser seeds the demo user and its static linked account.
// Existing rows are left untouched, so the seed is safe to run on
// every startup.
func EnsureDemoUser(db *gorm.DB, store *providers.AESCredentialStore) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user accountdomain.UserAccount
		err := tx.WithContext(ctx).Where("email = ?", demoEmail).First(&user).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			user = accountdomain.UserAccount{
				ID:           node.Generate(),
				Email:        demoEmail,
				ValuationCcy: demoCcy,
				CreatedAt:    time.Now().UTC(),
				UpdatedAt:    time.Now().UTC(),
			}
			if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.WithContext(ctx).
			Model(&accountdomain.LinkedAccount{}).
			Where("user_account_id = ?", user.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		sealed, err := demoCredentials(store)
		if err != nil {
			return err
		}
		linked := accountdomain.LinkedAccount{
			ID:                   node.Generate(),
			UserAccountID:        user.ID,
			ProviderID:           providers.StaticProviderID,
			AccountName:          demoAccountName,
			EncryptedCredentials: sealed,
			CreatedAt:            time.Now().UTC(),
			UpdatedAt:            time.Now().UTC(),
		}
		return tx.WithContext(ctx).Create(&linked).Error
	})
}

func demoCredentials(store *providers.AESCredentialStore) ([]byte, error) {
	cash := decimal.NewFromInt(2500)
	stock := decimal.NewFromInt(40)
	stockValue := decimal.NewFromInt(820)
	// Liabilities carry negative values.
	loan := decimal.NewFromInt(-1200)
	payload := providers.StaticPayload{
		Accounts: []providers.Account{
			{ID: "checking", Name: "Checking", IsoCurrency: demoCcy, Type: "cash", SubType: "checking"},
			{ID: "brokerage", Name: "Brokerage", IsoCurrency: demoCcy, Type: "investment", SubType: "brokerage"},
		},
		Assets: []providers.LineItem{
			{AccountID: "checking", Name: "Cash", SubType: "currency", IsoCurrency: demoCcy, ValueInAccountCcy: &cash},
			{AccountID: "brokerage", Name: "ACME", SubType: "equity", IsoCurrency: "USD", Units: &stock, ValueInItemCcy: &stockValue},
		},
		Liabilities: []providers.LineItem{
			{AccountID: "checking", Name: "Personal loan", SubType: "loan", IsoCurrency: demoCcy, ValueInAccountCcy: &loan},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return store.Seal(providers.Credentials{"payload": string(raw)})
}
