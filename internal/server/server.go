// Package server exposes the thin HTTP surface of the valuation
// pipeline: triggering runs, reading the history timeline and running
// aggregation reports.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/logger"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/observability/metrics"
	valuationdomain "github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/domain"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/report"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	cfg          config.Config
	valuationSvc *service.Service
	history      valuationdomain.Repository
	reports      *report.Engine
	httpMetrics  *metrics.HTTPMetrics
	log          *zap.Logger
}

func NewServer(cfg config.Config, svc *service.Service, history valuationdomain.Repository, reports *report.Engine, log *zap.Logger) *Server {
	httpMetrics, err := metrics.NewHTTPMetrics(metrics.Config{
		ServiceName: "finbot",
		Environment: cfg.Environment,
	}, otel.GetMeterProvider())
	if err != nil {
		log.Warn("http metrics unavailable", zap.Error(err))
	}
	return &Server{
		cfg:          cfg,
		valuationSvc: svc,
		history:      history,
		reports:      reports,
		httpMetrics:  httpMetrics,
		log:          log.Named("server"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{SkipPaths: []string{"/healthz", "/metrics"}}))
	if s.httpMetrics != nil {
		engine.Use(metrics.GinMiddleware(s.httpMetrics))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.POST("/valuations", s.TriggerValuation)
	v1.GET("/history", s.GetHistory)
	v1.GET("/reports/valuation", s.GetValuationReport)
	return engine
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, log *zap.Logger) {
		httpServer := &http.Server{
			Addr:              s.cfg.HTTP.Addr,
			Handler:           s.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("http server stopped", zap.Error(err))
					}
				}()
				log.Info("http server listening", zap.String("addr", s.cfg.HTTP.Addr))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return httpServer.Shutdown(ctx)
			},
		})
	}),
)
