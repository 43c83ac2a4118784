package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Priya8975/hookrelay/internal/api"
	"github.com/Priya8975/hookrelay/internal/app"
	"github.com/Priya8975/hookrelay/internal/config"
	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/events"
	"github.com/Priya8975/hookrelay/internal/metrics"
	"github.com/Priya8975/hookrelay/internal/scheduler"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
	"github.com/Priya8975/hookrelay/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Live delivery feed
	hub := ws.NewHub(logger)
	a.Dispatcher.AddObserver(hub)

	// Event-triggered deliveries go through the worker pool
	pool := worker.NewPool(cfg.NumWorkers, cfg.QueueSize, a.Dispatcher.HandleJob, logger)
	metrics.RegisterQueueDepth(a.Prometheus, pool.QueueDepth)

	bus := events.NewBus(events.Default(), logger)
	bus.Subscribe(engine.NewFanOutEngine(a.Registry, pool, logger).HandleEvent)

	sched, err := scheduler.New(scheduler.Config{
		RetrySchedule: cfg.RetrySchedule,
		PruneSchedule: cfg.PruneSchedule,
		Retention:     cfg.LogRetention(),
	}, a.Retry, a.Pruner, logger)
	if err != nil {
		return err
	}

	if _, err := a.Registry.All(ctx); err != nil {
		return err
	}

	router := api.NewRouter(api.Dependencies{
		Registry:   a.Registry,
		Logs:       a.Store,
		Retrier:    a.Retry,
		Bus:        bus,
		Keys:       a.Keys,
		Hub:        hub,
		Metrics:    metrics.Handler(a.Prometheus),
		Health:     a,
		QueueDepth: pool.QueueDepth,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	pool.Start(gctx)
	sched.Start(gctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if a.Notifier != nil {
		g.Go(func() error {
			return a.Notifier.Listen(gctx, a.Registry, nil)
		})
	}

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		sched.Stop(shutdownCtx)
		pool.Stop()
		return err
	})

	return g.Wait()
}
