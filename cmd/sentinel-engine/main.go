package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelstack/pkg-sentinel/internal/api"
	"github.com/sentinelstack/pkg-sentinel/internal/cache"
	"github.com/sentinelstack/pkg-sentinel/internal/config"
	"github.com/sentinelstack/pkg-sentinel/internal/engine"
	"github.com/sentinelstack/pkg-sentinel/internal/learning"
	"github.com/sentinelstack/pkg-sentinel/internal/metrics"
	"github.com/sentinelstack/pkg-sentinel/internal/monitor"
	"github.com/sentinelstack/pkg-sentinel/internal/oracles"
	"github.com/sentinelstack/pkg-sentinel/internal/providers"
	"github.com/sentinelstack/pkg-sentinel/internal/services"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pkg-sentinel", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := buildCache(cfg, logger)
	defer cacheProvider.Close()

	registryClient := providers.NewNPMRegistryClient(cfg.Providers.Registry.BaseURL, cfg.Providers.Registry.Timeout)
	auditClient := providers.NewHTTPAuditClient(cfg.Providers.Audit.BaseURL, cfg.Providers.Audit.Path, cfg.Providers.Audit.Timeout)
	gitProvider := providers.NewGitProvider()

	// Oracle order is fixed at startup; the fusion engine keys its override
	// on the policy oracle's name, not its position.
	oracleSet := []oracles.Oracle{
		oracles.NewRegistryOracle(registryClient),
		oracles.NewPolicyOracle(registryClient, auditClient, gitProvider, cacheProvider, cfg.Cache.HistoryTTL, utils.ComponentLogger(logger, "policy-oracle")),
		oracles.NewSourceHistoryOracle(gitProvider),
		oracles.NewArtifactOracle(),
		oracles.NewLocalStateOracle(),
		oracles.NewCachedResultOracle(cacheProvider, cfg.Cache.ResultTTL),
		oracles.NewSemverOracle(),
	}

	fusionEngine := engine.New(
		utils.ComponentLogger(logger, "engine"),
		oracleSet,
		cfg.Engine.OracleTimeout,
		cfg.Engine.ConsensusThreshold,
	)

	learningEngine := learning.NewEngine(
		utils.ComponentLogger(logger, "learning"),
		buildHistoryStore(cfg, logger),
		cfg.Learning.MaxRecords,
	)

	mon := monitor.New(utils.ComponentLogger(logger, "monitor"), monitor.Config{
		PollInterval:   cfg.Monitor.PollInterval,
		HistorySize:    cfg.Monitor.HistorySize,
		MaxIdle:        cfg.Monitor.MaxIdle,
		MaxFailureRate: cfg.Monitor.MaxFailureRate,
		MaxAvgResponse: cfg.Monitor.MaxAvgResponse,
		MinOracleCover: cfg.Monitor.MinOracleCover,
		MinConfidence:  cfg.Monitor.MinConfidence,
		MinSampleCount: cfg.Monitor.MinSuccessCount,
	})
	if err := mon.Start(); err != nil {
		logger.Error("failed to start monitor", slog.Any("error", err))
		os.Exit(1)
	}
	defer mon.Stop()

	service := services.NewAnalysisService(logger, fusionEngine, learningEngine, mon, cacheProvider, cfg.Cache.ResultTTL)

	server, err := api.NewServer(cfg.Server, logger, service)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("pkg-sentinel stopped")
}

func buildCache(cfg *config.Config, logger *slog.Logger) cache.Provider {
	if cfg.Cache.Backend == "redis" && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, using in-memory cache", slog.Any("error", err))
		} else {
			return provider
		}
	}
	return cache.NewMemoryProvider(time.Minute)
}

// buildHistoryStore opens the persistent outcome log. An unwritable store is
// not fatal: the learning engine degrades to in-memory history.
func buildHistoryStore(cfg *config.Config, logger *slog.Logger) learning.Store {
	store, err := learning.OpenBadgerStore(cfg.Learning.Path, cfg.Learning.MaxRecords)
	if err != nil {
		logger.Warn("persistent history unavailable, learning in memory only", slog.Any("error", err))
		return learning.NewMemoryStore(cfg.Learning.MaxRecords)
	}
	return store
}
