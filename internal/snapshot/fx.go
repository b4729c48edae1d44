package snapshot

import (
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/orchestrator"
	snapshotrepository "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("snapshot",
	fx.Provide(func(db *gorm.DB) snapshotdomain.Repository {
		return snapshotrepository.New(db)
	}),
	fx.Provide(func(
		accounts accountdomain.Repository,
		credentials providers.CredentialStore,
		registry *providers.Registry,
		cfg config.Config,
		log *zap.Logger,
	) *orchestrator.Orchestrator {
		return orchestrator.New(accounts, credentials, registry, orchestrator.Config{
			FetchTimeout: cfg.Valuation.FetchTimeout,
		}, log)
	}),
)
