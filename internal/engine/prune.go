package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultRetention = 30 * 24 * time.Hour

// PruneStore deletes old delivery log entries.
type PruneStore interface {
	DeleteDeliveryLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PruneObserver interface {
	LogsPruned(n int64)
}

type Pruner struct {
	store    PruneStore
	logger   *slog.Logger
	observer PruneObserver

	now func() time.Time
}

func NewPruner(store PruneStore, logger *slog.Logger) *Pruner {
	return &Pruner{store: store, logger: logger, now: time.Now}
}

func (p *Pruner) SetObserver(o PruneObserver) {
	p.observer = o
}

// Prune deletes entries created more than retention ago, finished or not.
func (p *Pruner) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}

	cutoff := p.now().Add(-retention)
	n, err := p.store.DeleteDeliveryLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	p.logger.Info("delivery logs pruned", "deleted", n, "cutoff", cutoff)
	if p.observer != nil {
		p.observer.LogsPruned(n)
	}
	return n, nil
}

// RetentionDays converts a day count to a retention window.
func RetentionDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
