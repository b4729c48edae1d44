package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/account"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/events"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/logger"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/migration"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/tracing"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/providers"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/scheduler"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/seed"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/server"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation"
	"github.com/jean-edouard-boulanger/finbot-sub000/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Provide(events.NewOutbox),
		fx.Provide(func(cfg config.Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Tracing.Enabled,
				ServiceName:      "finbot",
				ServiceVersion:   version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Tracing.Endpoint,
			}
		}),
		fx.Invoke(tracing.NewProvider),
		providers.Module,
		account.Module,
		fxrate.Module,
		snapshot.Module,
		valuation.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
			if err := migration.RunMigrations(context.Background(), conn, log); err != nil {
				return err
			}
			if cfg.IsProduction() {
				return nil
			}
			store, err := providers.NewAESCredentialStore(cfg.Secrets.CredentialsKey)
			if err != nil {
				return err
			}
			return seed.EnsureDemoUser(conn, store)
		}),
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
