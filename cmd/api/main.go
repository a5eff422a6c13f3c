// Package main is the entry point of the timetable sync API server.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: timetable model, diffing, store contracts
// - Application: sync use cases (initial sync, incremental sync, refresh)
// - Infrastructure: postgres store, redis rate limiter, upstream client
// - Interface: HTTP JSON API
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glasir-hub/glasir-sync-api/config"
	appsync "github.com/glasir-hub/glasir-sync-api/internal/application/sync"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
	"github.com/glasir-hub/glasir-sync-api/internal/infrastructure/external/glasir"
	"github.com/glasir-hub/glasir-sync-api/internal/infrastructure/persistence/postgres"
	"github.com/glasir-hub/glasir-sync-api/internal/infrastructure/persistence/redis"
	httpserver "github.com/glasir-hub/glasir-sync-api/internal/interface/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Observability)
	slog.SetDefault(logger)

	logger.Info("starting service",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", string(cfg.App.Environment)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// Postgres
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolSettings{
		MaxConns:          int32(cfg.Database.MaxOpenConns),
		MinConns:          int32(cfg.Database.MinOpenConns),
		MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database ready")

	store := postgres.NewStore(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis rate limiter (optional)
	// ─────────────────────────────────────────────────────────────────────────
	// Testing mode runs without Redis regardless of the rate-limit flag.
	var rateLimiter *redis.RateLimiter
	if cfg.Redis.RateLimitingEnabled && !cfg.App.TestingMode {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer cache.Close()

		rateLimiter = redis.NewRateLimiter(cache, redis.RateLimiterConfig{
			MaxRequests: cfg.Redis.RateLimitPerMinute,
			Window:      time.Minute,
		})
		logger.Info("rate limiting enabled",
			slog.Int("per_minute", cfg.Redis.RateLimitPerMinute))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Upstream connector & sync service
	// ─────────────────────────────────────────────────────────────────────────
	// One shared transport for all upstream sessions; each session gets its
	// own cookie jar on top of it.
	upstreamClient := &http.Client{Timeout: cfg.Glasir.RequestTimeout}
	defer upstreamClient.CloseIdleConnections()

	fetcherConfig := glasir.DefaultFetcherConfig(cfg.Glasir.BaseURL)
	fetcherConfig.Timeout = cfg.Glasir.RequestTimeout
	fetcherConfig.MaxRetries = cfg.Glasir.MaxRetries
	fetcherConfig.Backoff = cfg.Glasir.Backoff
	fetcherConfig.HTTPClient = upstreamClient
	fetcherConfig.Logger = logger
	fetcherConfig.Debug = cfg.App.Debug

	// One process-wide AIMD window; every session's fetcher reports into it.
	if cfg.Glasir.AdaptiveConcurrency {
		fetcherConfig.Coordinator = glasir.NewAIMDCoordinator(glasir.DefaultAIMDConfig())
		logger.Info("adaptive upstream concurrency enabled")
	}

	connector := glasir.NewConnector(fetcherConfig, logger)
	connect := func(ctx context.Context, cookies []timetable.Cookie) (appsync.Session, string, error) {
		return connector.Connect(ctx, cookies)
	}

	syncService := appsync.NewService(store, connect, appsync.ServiceConfig{
		WeekConcurrency: cfg.Sync.WeekConcurrency,
		CookieMaxAge:    cfg.Sync.CookieMaxAge,
		Logger:          logger,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}, httpserver.Dependencies{
		Sync:        syncService,
		Health:      conn,
		RateLimiter: rateLimiter,
		Logger:      logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("service stopped")
	return nil
}

// newLogger builds the process logger from observability settings.
func newLogger(cfg config.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
