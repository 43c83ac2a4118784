// Package app builds the delivery engine from configuration. The server
// and the hookctl CLI share it.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Priya8975/hookrelay/internal/apikey"
	"github.com/Priya8975/hookrelay/internal/config"
	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/formatter"
	"github.com/Priya8975/hookrelay/internal/lock"
	"github.com/Priya8975/hookrelay/internal/metrics"
	"github.com/Priya8975/hookrelay/internal/registry"
	"github.com/Priya8975/hookrelay/internal/store"
)

// RetryLockKey names the lease shared by every process running sweeps.
const RetryLockKey = "retry-sweep"

type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store *store.PostgresStore
	Redis *store.RedisStore // nil without REDIS_URL

	Keys       *apikey.Manager
	Registry   *registry.Registry
	Notifier   *registry.RedisNotifier // nil without REDIS_URL
	Dispatcher *engine.Dispatcher
	Retry      *engine.RetryScheduler
	Pruner     *engine.Pruner

	Prometheus *prometheus.Registry
	Metrics    *metrics.Metrics
}

// NewLogger returns the JSON logger used by every binary.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New connects to Postgres (and Redis when configured), applies
// migrations and wires the delivery components.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.Store = pgStore
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("database migrations applied")

	var saltStore apikey.SaltStore = &apikey.MemoryStore{}
	if cfg.RedisURL != "" {
		rs, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rs
		saltStore = apikey.NewRedisStore(rs.Client())
		logger.Info("connected to Redis")
	}

	a.Keys = apikey.New(cfg.AppKey, cfg.APIKeySalt, saltStore, logger)

	a.Registry = registry.New(pgStore, logger)
	if a.Redis != nil {
		a.Notifier = registry.NewRedisNotifier(a.Redis.Client(), logger)
		a.Registry.SetNotifier(a.Notifier)
	}

	a.Prometheus = prometheus.NewRegistry()
	a.Metrics = metrics.NewMetrics(a.Prometheus)

	signer := engine.NewSigner(a.fallbackSecret(), logger)
	a.Dispatcher = engine.NewDispatcher(pgStore, formatter.Default{}, signer,
		engine.NewClient(cfg.WebhookTimeout), a.Keys, logger)
	a.Dispatcher.AddObserver(a.Metrics)

	a.Retry = engine.NewRetryScheduler(pgStore, a.Dispatcher, a.locker(), cfg.RetryLease, cfg.RetryBatchSize, logger)
	a.Retry.SetObserver(a.Metrics)

	a.Pruner = engine.NewPruner(pgStore, logger)
	a.Pruner.SetObserver(a.Metrics)

	return a, nil
}

// fallbackSecret signs for subscriptions without a secret of their own.
// Without WEBHOOK_FALLBACK_SECRET it follows the API key salt, including
// after regeneration.
func (a *App) fallbackSecret() func() string {
	if secret := a.Config.WebhookFallbackSecret; secret != "" {
		return func() string { return secret }
	}
	return func() string { return a.Keys.Salt(context.Background()) }
}

func (a *App) locker() lock.Locker {
	if a.Redis != nil {
		return lock.New(a.Redis.Client(), nil, RetryLockKey, a.Config.RetryLease)
	}
	return lock.New(nil, a.Store.DB(), RetryLockKey, a.Config.RetryLease)
}

// Ping checks Postgres and, when configured, Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return err
	}
	if a.Redis != nil {
		return a.Redis.Ping(ctx)
	}
	return nil
}

// Close releases the connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
