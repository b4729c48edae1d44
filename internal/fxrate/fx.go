package fxrate

import (
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/clock"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	fxdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/service"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/fxrate/source"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("fxrate",
	fx.Provide(func(cfg config.Config) fxdomain.RateSource {
		return source.NewClient(cfg.Valuation.RateSourceURL)
	}),
	fx.Provide(func(source fxdomain.RateSource, clk clock.Clock, cfg config.Config, log *zap.Logger) fxdomain.Resolver {
		return service.NewResolver(source, clk, cfg.Valuation.RateTTL, log)
	}),
)
