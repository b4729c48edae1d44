// Package repository implements gorm-backed access to account models.
package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/pkg/repository"
	"gorm.io/gorm"
)

type Repository struct {
	db       *gorm.DB
	users    repository.Repository[accountdomain.UserAccount]
	accounts repository.Repository[accountdomain.LinkedAccount]
}

func New(db *gorm.DB) *Repository {
	return &Repository{
		db:       db,
		users:    repository.ProvideStore[accountdomain.UserAccount](db),
		accounts: repository.ProvideStore[accountdomain.LinkedAccount](db),
	}
}

func (r *Repository) FindUserAccount(ctx context.Context, id snowflake.ID) (*accountdomain.UserAccount, error) {
	user, err := r.users.Find(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, accountdomain.ErrUserAccountNotFound
	}
	return user, nil
}

func (r *Repository) ListLinkedAccounts(ctx context.Context, userAccountID snowflake.ID) ([]accountdomain.LinkedAccount, error) {
	var accounts []accountdomain.LinkedAccount
	err := r.db.WithContext(ctx).
		Where("user_account_id = ? AND deleted = ?", userAccountID, false).
		Order("id").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
