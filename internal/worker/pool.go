package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Priya8975/hookrelay/internal/domain"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// Job is one event to deliver to one subscription.
type Job struct {
	Subscription domain.Subscription
	Event        domain.Event
}

// Handler processes a single job. It is called from worker goroutines.
type Handler func(ctx context.Context, job Job)

// Pool manages a fixed number of worker goroutines that process delivery jobs.
type Pool struct {
	numWorkers int
	jobs       chan Job
	handler    Handler
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu       sync.RWMutex
	stopped  bool
	quit     chan struct{}
	stopOnce sync.Once
}

// NewPool creates a worker pool with the given number of workers and
// queue capacity.
func NewPool(numWorkers, queueSize int, handler Handler, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, queueSize),
		handler:    handler,
		logger:     logger,
		quit:       make(chan struct{}),
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until Stop closes it.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.jobs))
}

// Submit queues a job. It blocks while the queue is full, until ctx is
// done or the pool stops.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// QueueDepth is the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Stop rejects new jobs, lets the workers drain what is queued and waits
// for them to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)

		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.handler(ctx, job)
	}
}
