// Package events is the publish boundary between the host application and
// webhook delivery.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Handler receives published events. Handlers must not perform network
// I/O; they run on the publisher's goroutine.
type Handler func(ctx context.Context, ev domain.Event) error

type Bus struct {
	vocab  *Vocabulary
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler

	now func() time.Time
}

func NewBus(vocab *Vocabulary, logger *slog.Logger) *Bus {
	if vocab == nil {
		vocab = Default()
	}
	return &Bus{vocab: vocab, logger: logger, now: time.Now}
}

func (b *Bus) Vocabulary() *Vocabulary { return b.vocab }

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish hands the event to every handler. When routingKey is nil and the
// payload carries its own key, that key is used.
func (b *Bus) Publish(ctx context.Context, name string, payload any, routingKey *int64) error {
	if !b.vocab.Known(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	if routingKey == nil {
		if rk, ok := payload.(domain.RoutingKeyer); ok {
			routingKey = rk.RoutingKey()
		}
	}

	ev := domain.Event{
		Name:       name,
		Payload:    payload,
		RoutingKey: routingKey,
		OccurredAt: b.now(),
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.logger.Error("event handler failed", "event", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
