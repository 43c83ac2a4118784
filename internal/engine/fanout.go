package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/worker"
)

// SubscriptionSource answers which subscriptions want an event.
// *registry.Registry implements it.
type SubscriptionSource interface {
	ForEvent(ctx context.Context, name string) ([]domain.Subscription, error)
}

// JobQueue accepts delivery jobs. *worker.Pool implements it.
type JobQueue interface {
	Submit(ctx context.Context, job worker.Job) error
}

// FanOutEngine turns a published event into one queued delivery job per
// matching subscription. It never performs network I/O itself.
type FanOutEngine struct {
	subs   SubscriptionSource
	queue  JobQueue
	logger *slog.Logger
}

func NewFanOutEngine(subs SubscriptionSource, queue JobQueue, logger *slog.Logger) *FanOutEngine {
	return &FanOutEngine{
		subs:   subs,
		queue:  queue,
		logger: logger,
	}
}

// FanOut queues a job for every subscription whose event filter and
// routing filter accept the event. Returns the number of jobs queued.
func (f *FanOutEngine) FanOut(ctx context.Context, event domain.Event) (int, error) {
	subscriptions, err := f.subs.ForEvent(ctx, event.Name)
	if err != nil {
		return 0, fmt.Errorf("finding matching subscriptions: %w", err)
	}

	queued := 0
	var errs []error
	for _, sub := range subscriptions {
		if !sub.MatchesRouting(event.RoutingKey) {
			continue
		}
		if err := f.queue.Submit(ctx, worker.Job{Subscription: sub, Event: event}); err != nil {
			errs = append(errs, fmt.Errorf("queuing delivery to subscription %d: %w", sub.ID, err))
			continue
		}
		queued++
	}

	if queued == 0 && len(errs) == 0 {
		f.logger.Debug("no matching subscriptions", "event", event.Name)
		return 0, nil
	}

	f.logger.Info("fan-out complete",
		"event", event.Name,
		"deliveries_queued", queued,
	)
	return queued, errors.Join(errs...)
}

// HandleEvent adapts FanOut to the event bus handler signature.
func (f *FanOutEngine) HandleEvent(ctx context.Context, event domain.Event) error {
	_, err := f.FanOut(ctx, event)
	return err
}
