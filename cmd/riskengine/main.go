package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/peril-risk-service/internal/adapter/aiengine"
	httpadapter "github.com/couchcryptid/peril-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/peril-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/peril-risk-service/internal/adapter/offline"
	"github.com/couchcryptid/peril-risk-service/internal/adapter/rediscache"
	"github.com/couchcryptid/peril-risk-service/internal/adapter/satellite"
	"github.com/couchcryptid/peril-risk-service/internal/adapter/weather"
	"github.com/couchcryptid/peril-risk-service/internal/claims"
	"github.com/couchcryptid/peril-risk-service/internal/config"
	"github.com/couchcryptid/peril-risk-service/internal/domain"
	"github.com/couchcryptid/peril-risk-service/internal/fusion"
	"github.com/couchcryptid/peril-risk-service/internal/heatmap"
	"github.com/couchcryptid/peril-risk-service/internal/observability"
	"github.com/couchcryptid/peril-risk-service/internal/pipeline"
)

type aiCollaborator interface {
	domain.RiskAnalyzer
	domain.DamageAnalyzer
	domain.FraudDetector
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := domain.Clock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborators: an unset URL selects the offline implementation, which
	// routes every call through the fallback policy.
	kinds := map[string]string{"satellite": "offline", "weather": "offline", "ai": "offline"}

	var sat domain.SatelliteSource = offline.Satellite{}
	if cfg.SatelliteAPIURL != "" {
		sat = satellite.NewClient(cfg.SatelliteAPIURL, cfg.SatelliteAPIKey, cfg.SatelliteTimeout, logger)
		kinds["satellite"] = "live"
	}
	var wx domain.WeatherSource = offline.Weather{}
	if cfg.WeatherAPIURL != "" {
		wx = weather.NewClient(cfg.WeatherAPIURL, cfg.WeatherAPIKey, cfg.WeatherTimeout, logger)
		kinds["weather"] = "live"
	}
	var ai aiCollaborator = offline.AI{}
	if cfg.AIEngineURL != "" {
		ai = aiengine.NewClient(cfg.AIEngineURL, aiengine.Options{
			MaxAttempts:   cfg.AIMaxAttempts,
			BaseDelay:     cfg.AIRetryBaseDelay,
			RatePerSecond: cfg.AIRateLimit,
		}, clock, logger)
		kinds["ai"] = "live"
	}
	logger.Info("collaborators selected", "satellite", kinds["satellite"], "weather", kinds["weather"], "ai", kinds["ai"])

	// Assessment store (Redis when configured so replicas share the reuse window).
	var store fusion.Store
	var closers []io.Closer
	if cfg.RedisAddr != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		rs := rediscache.NewStore(client, cfg.AssessmentReuseWindow)
		store = rs
		closers = append(closers, rs)
		logger.Info("assessment cache: redis", "addr", cfg.RedisAddr)
	} else {
		store = fusion.NewMemoryStore(cfg.AssessmentCacheSize, cfg.AssessmentReuseWindow, clock)
		logger.Info("assessment cache: memory", "size", cfg.AssessmentCacheSize)
	}

	policy := domain.DefaultFallbackPolicy()
	aggregator, err := domain.NewRiskAggregator(domain.DefaultWeights(), policy)
	if err != nil {
		logger.Error("invalid scorer weights", "error", err)
		os.Exit(1)
	}

	orchestrator := fusion.New(
		fusion.Sources{Satellite: sat, Weather: wx, AI: ai},
		store, aggregator, policy,
		fusion.Options{
			SatelliteTimeout: cfg.SatelliteTimeout,
			WeatherTimeout:   cfg.WeatherTimeout,
			AITimeout:        cfg.AIRiskTimeout,
			ReuseWindow:      cfg.AssessmentReuseWindow,
			Validity:         cfg.AssessmentValidity,
		},
		clock, metrics, logger,
	)

	claimSvc := claims.NewService(ai, ai, policy,
		claims.Options{DamageTimeout: cfg.AIDamageTimeout, FraudTimeout: cfg.AIFraudTimeout},
		clock, metrics, logger,
	)

	sampler := heatmap.NewSampler(orchestrator, heatmap.Options{
		MaxPoints:     cfg.HeatmapMaxPoints,
		Concurrency:   cfg.HeatmapConcurrency,
		RatePerSecond: cfg.HeatmapRateLimit,
	}, metrics, logger)

	api := httpadapter.NewAPI(orchestrator, claimSvc, sampler, httpadapter.EngineInfo{
		Sources: kinds,
		Weights: aggregator.Weights(),
	}, cfg.ClaimBatchConcurrency, logger)

	// Claim decision pipeline (feature-flagged via KAFKA_ENABLED).
	var p *pipeline.Pipeline
	ready := []httpadapter.ReadinessChecker{orchestrator}
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		closers = append(closers, reader, writer)
		p = pipeline.New(reader, pipeline.NewTransformer(claimSvc, logger), writer, logger, metrics, pipeline.Options{
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.ClaimBatchConcurrency,
			Clock:       clock,
		})
		ready = append(ready, p)
		logger.Info("claim pipeline enabled", "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	} else {
		logger.Info("claim pipeline disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, api, httpadapter.AllReady(ready...), logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start claim pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
