package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("scheduler",
	fx.Provide(func(db *gorm.DB, svc *service.Service, genID *snowflake.Node, clk clock.Clock, cfg config.Config, log *zap.Logger) *Scheduler {
		return New(db, svc, genID, clk, Config{
			RunInterval: cfg.Valuation.RunInterval,
		}, log)
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					s.RunForever(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)
