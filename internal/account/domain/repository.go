package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUserAccountNotFound   = errors.New("user_account_not_found")
	ErrLinkedAccountNotFound = errors.New("linked_account_not_found")
)

// Repository provides read access to user and linked accounts.
type Repository interface {
	FindUserAccount(ctx context.Context, id snowflake.ID) (*UserAccount, error)
	// ListLinkedAccounts returns all non-deleted linked accounts for a
	// user, ordered by id.
	ListLinkedAccounts(ctx context.Context, userAccountID snowflake.ID) ([]LinkedAccount, error)
}
