// Package scheduler runs the periodic retry sweep and log pruning jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Priya8975/hookrelay/internal/engine"
)

type Sweeper interface {
	Sweep(ctx context.Context) (engine.SweepResult, error)
}

type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

type Config struct {
	RetrySchedule string
	PruneSchedule string
	Retention     time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	pruner  Pruner
	cfg     Config
	logger  *slog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// New validates both schedules and registers the jobs. Jobs that are still
// running when their next tick fires are skipped.
func New(cfg Config, sweeper Sweeper, pruner Pruner, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		pruner:  pruner,
		cfg:     cfg,
		logger:  logger,
		ctx:     context.Background(),
	}

	if _, err := s.cron.AddFunc(cfg.RetrySchedule, func() { s.RunSweep(s.jobContext()) }); err != nil {
		return nil, fmt.Errorf("scheduling retry sweep %q: %w", cfg.RetrySchedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.PruneSchedule, func() { s.RunPrune(s.jobContext()) }); err != nil {
		return nil, fmt.Errorf("scheduling log pruning %q: %w", cfg.PruneSchedule, err)
	}
	return s, nil
}

// Start runs the jobs in the background under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started",
		"retry_schedule", s.cfg.RetrySchedule,
		"prune_schedule", s.cfg.PruneSchedule,
	)
}

// Stop prevents new runs and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// RunSweep runs one retry sweep and logs its failure.
func (s *Scheduler) RunSweep(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("retry sweep failed", "error", err)
	}
}

// RunPrune deletes delivery logs past the retention window.
func (s *Scheduler) RunPrune(ctx context.Context) {
	if _, err := s.pruner.Prune(ctx, s.cfg.Retention); err != nil {
		s.logger.Error("log pruning failed", "error", err)
	}
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
