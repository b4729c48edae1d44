package valuation

import (
	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/account/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/events"
	fxdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/domain"
	snapshotdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/snapshot/orchestrator"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/builder"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/change"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/report"
	valuationrepository "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/repository"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("valuation",
	fx.Provide(func(db *gorm.DB) valuationdomain.Repository {
		return valuationrepository.New(db)
	}),
	fx.Provide(func(
		accounts accountdomain.Repository,
		snapshots snapshotdomain.Repository,
		history valuationdomain.Repository,
		rates fxdomain.Resolver,
		genID *snowflake.Node,
		clk clock.Clock,
		log *zap.Logger,
	) *builder.Builder {
		return builder.New(accounts, snapshots, history, rates, genID, clk, log)
	}),
	fx.Provide(func(history valuationdomain.Repository, genID *snowflake.Node, log *zap.Logger) *change.Calculator {
		return change.New(history, genID, log)
	}),
	fx.Provide(report.NewEngine),
	fx.Provide(func(
		snapshots snapshotdomain.Repository,
		orch *orchestrator.Orchestrator,
		bld *builder.Builder,
		calc *change.Calculator,
		outbox *events.Outbox,
		genID *snowflake.Node,
		clk clock.Clock,
		log *zap.Logger,
	) *service.Service {
		return service.New(snapshots, orch, bld, calc, outbox, genID, clk, log)
	}),
)
