package account

import (
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	accountrepository "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("account",
	fx.Provide(func(db *gorm.DB) accountdomain.Repository {
		return accountrepository.New(db)
	}),
)
