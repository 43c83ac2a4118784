package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/lock"
)

const (
	DefaultBatchSize = 50
	DefaultLease     = 15 * time.Minute
)

var (
	ErrDeliveryFinished = errors.New("delivery is already finished")
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrSweepInProgress  = errors.New("retry sweep in progress")
)

// RetryStore is what a sweep reads and writes.
type RetryStore interface {
	GetDeliveryLog(ctx context.Context, id int64) (*domain.DeliveryLogEntry, error)
	ListUnfinishedDeliveryLogs(ctx context.Context, afterID int64, limit int) ([]domain.DeliveryLogEntry, error)
	UpdateDeliveryLog(ctx context.Context, e *domain.DeliveryLogEntry) error
	GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error)
}

// Deliverer makes one attempt for an entry. *Dispatcher implements it.
type Deliverer interface {
	Dispatch(ctx context.Context, sub domain.Subscription, event string, payload any, existing *domain.DeliveryLogEntry) bool
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned    int  `json:"scanned"`
	Dispatched int  `json:"dispatched"`
	Delivered  int  `json:"delivered"`
	Failed     int  `json:"failed"`
	NotDue     int  `json:"not_due"`
	Orphaned   int  `json:"orphaned"`
	Abandoned  int  `json:"abandoned"`
	LeaseHeld  bool `json:"lease_held"` // another sweep held the lease; nothing was done
}

// SweepObserver is told about every completed or skipped sweep.
type SweepObserver interface {
	SweepCompleted(r SweepResult, elapsed time.Duration)
}

type RetryScheduler struct {
	store     RetryStore
	deliverer Deliverer
	locker    lock.Locker
	lease     time.Duration
	batchSize int
	logger    *slog.Logger
	observer  SweepObserver

	// running keeps sweeps and manual retries in this process apart;
	// locker does the same across processes.
	running sync.Mutex

	now func() time.Time
}

// NewRetryScheduler returns a scheduler guarded by locker. A nil locker
// disables the cross-process guard.
func NewRetryScheduler(store RetryStore, d Deliverer, locker lock.Locker, lease time.Duration, batchSize int, logger *slog.Logger) *RetryScheduler {
	if lease <= 0 {
		lease = DefaultLease
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RetryScheduler{
		store:     store,
		deliverer: d,
		locker:    locker,
		lease:     lease,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *RetryScheduler) SetObserver(o SweepObserver) {
	r.observer = o
}

// Sweep visits every unfinished entry oldest first: orphans are closed,
// entries still in backoff are left alone and the rest get one more
// attempt. A sweep that finds the lease taken does nothing. The sweep
// stops early when the lease runs out.
func (r *RetryScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	start := r.now()
	var res SweepResult

	release, ok, err := r.acquire(ctx)
	if err != nil {
		return res, err
	}
	if !ok {
		r.logger.Info("retry sweep skipped, lease held elsewhere")
		res.LeaseHeld = true
		r.observe(res, start)
		return res, nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, r.lease)
	defer cancel()

	subs := map[int64]*domain.Subscription{}
	var afterID int64
	for {
		batch, err := r.store.ListUnfinishedDeliveryLogs(ctx, afterID, r.batchSize)
		if err != nil {
			r.observe(res, start)
			return res, err
		}

		for i := range batch {
			if err := ctx.Err(); err != nil {
				r.logger.Warn("retry sweep stopped early", "error", err, "last_log_id", afterID)
				r.observe(res, start)
				return res, err
			}
			entry := &batch[i]
			afterID = entry.ID
			res.Scanned++
			r.process(ctx, entry, subs, &res, true)
		}

		if len(batch) < r.batchSize {
			break
		}
	}

	r.logger.Info("retry sweep complete",
		"scanned", res.Scanned,
		"dispatched", res.Dispatched,
		"delivered", res.Delivered,
		"orphaned", res.Orphaned,
		"abandoned", res.Abandoned,
	)
	r.observe(res, start)
	return res, nil
}

// RetryNow gives one unfinished entry an attempt immediately, ignoring its
// backoff window. Orphans, attempt counting and abandonment follow the
// sweep rules. It takes the sweep lease and returns ErrSweepInProgress when
// a sweep or another manual retry holds it. The entry is read after the
// lease is taken and returned as stored after the attempt.
func (r *RetryScheduler) RetryNow(ctx context.Context, id int64) (*domain.DeliveryLogEntry, SweepResult, error) {
	var res SweepResult

	release, ok, err := r.acquire(ctx)
	if err != nil {
		return nil, res, err
	}
	if !ok {
		return nil, res, ErrSweepInProgress
	}
	defer release()

	entry, err := r.store.GetDeliveryLog(ctx, id)
	if err != nil {
		return nil, res, fmt.Errorf("loading delivery log: %w", err)
	}
	if entry == nil {
		return nil, res, ErrDeliveryNotFound
	}
	if entry.Finished {
		return entry, res, ErrDeliveryFinished
	}

	res.Scanned = 1
	r.process(ctx, entry, map[int64]*domain.Subscription{}, &res, false)
	return entry, res, nil
}

// acquire takes the in-process guard and then the lease. The returned func
// releases both.
func (r *RetryScheduler) acquire(ctx context.Context) (func(), bool, error) {
	if !r.running.TryLock() {
		return nil, false, nil
	}
	if r.locker == nil {
		return r.running.Unlock, true, nil
	}

	ok, err := r.locker.Acquire(ctx)
	if err != nil || !ok {
		r.running.Unlock()
		return nil, false, err
	}
	return func() {
		r.release()
		r.running.Unlock()
	}, true, nil
}

func (r *RetryScheduler) process(ctx context.Context, entry *domain.DeliveryLogEntry, subs map[int64]*domain.Subscription, res *SweepResult, honourBackoff bool) {
	sub, seen := subs[entry.SubscriptionID]
	if !seen {
		var err error
		sub, err = r.store.GetSubscription(ctx, entry.SubscriptionID)
		if err != nil {
			r.logger.Error("loading subscription for retry", "error", err, "log_id", entry.ID)
			return
		}
		subs[entry.SubscriptionID] = sub
	}

	if sub == nil {
		msg := domain.MissingWebhookError
		if err := entry.MarkFinished(&msg, r.now()); err != nil {
			r.logger.Error("closing orphaned delivery", "error", err, "log_id", entry.ID)
			return
		}
		r.save(ctx, entry)
		res.Orphaned++
		return
	}

	if honourBackoff && !entry.DueAt(r.now()) {
		res.NotDue++
		return
	}

	res.Dispatched++
	if r.deliverer.Dispatch(ctx, *sub, entry.EventName, json.RawMessage(entry.Payload), entry) {
		res.Delivered++
		return
	}

	res.Failed++
	if err := entry.IncrementAttempts(r.now()); err != nil {
		r.logger.Error("counting failed retry", "error", err, "log_id", entry.ID)
		return
	}
	r.save(ctx, entry)
	if entry.Finished {
		res.Abandoned++
		r.logger.Warn("delivery abandoned after max attempts",
			"log_id", entry.ID,
			"subscription_id", entry.SubscriptionID,
			"event", entry.EventName,
			"attempts", entry.Attempts,
		)
	}
}

// save outlives the caller's context so a counted attempt is never lost to
// an expired lease or a disconnected client.
func (r *RetryScheduler) save(ctx context.Context, entry *domain.DeliveryLogEntry) {
	if err := r.store.UpdateDeliveryLog(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("failed to update delivery log", "error", err, "log_id", entry.ID)
	}
}

func (r *RetryScheduler) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.locker.Release(ctx)
	switch {
	case errors.Is(err, lock.ErrNotHeld):
		r.logger.Warn("retry lease expired before the sweep finished")
	case err != nil:
		r.logger.Error("releasing retry lease", "error", err)
	}
}

func (r *RetryScheduler) observe(res SweepResult, start time.Time) {
	if r.observer != nil {
		r.observer.SweepCompleted(res, r.now().Sub(start))
	}
}
