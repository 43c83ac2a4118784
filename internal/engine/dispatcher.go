package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/formatter"
	"github.com/Priya8975/hookrelay/internal/store"
	"github.com/Priya8975/hookrelay/internal/worker"
)

// Outbound request headers.
const (
	HeaderEventName  = "X-Event-Name"
	HeaderSignature  = "X-Signature"
	HeaderAPIKey     = "X-Api-Key"
	HeaderDeliveryID = "X-Delivery-Id"
)

// DeliveryStore persists attempt outcomes.
type DeliveryStore interface {
	CreateDeliveryLog(ctx context.Context, e *domain.DeliveryLogEntry) error
	UpdateDeliveryLog(ctx context.Context, e *domain.DeliveryLogEntry) error
	UpdateSubscriptionHealth(ctx context.Context, id int64, at time.Time, lastError *string) error
}

// KeySource provides the API key sent with every webhook.
type KeySource interface {
	Current(ctx context.Context) string
}

// BeforeDispatchFunc may rewrite the formatted document before it is
// signed and sent. Returning an error fails the attempt.
type BeforeDispatchFunc func(ctx context.Context, sub domain.Subscription, event string, doc json.RawMessage) (json.RawMessage, error)

// Outcome describes one finished dispatch.
type Outcome struct {
	SubscriptionID int64         `json:"webhook_id"`
	LogID          int64         `json:"log_id"`
	Event          string        `json:"event"`
	URL            string        `json:"url"`
	StatusCode     *int          `json:"status_code,omitempty"`
	Error          string        `json:"error,omitempty"`
	Success        bool          `json:"success"`
	Finished       bool          `json:"finished"`
	Attempts       int           `json:"attempts"`
	Retry          bool          `json:"retry"`
	Duration       time.Duration `json:"duration_ns"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Observer is told about every dispatch outcome.
type Observer interface {
	DeliveryAttempted(o Outcome)
}

type Dispatcher struct {
	store     DeliveryStore
	formatter formatter.Formatter
	signer    *Signer
	client    *Client
	keys      KeySource
	logger    *slog.Logger

	mu        sync.RWMutex
	filters   []BeforeDispatchFunc
	observers []Observer

	now func() time.Time
}

func NewDispatcher(store DeliveryStore, f formatter.Formatter, signer *Signer, client *Client, keys KeySource, logger *slog.Logger) *Dispatcher {
	if f == nil {
		f = formatter.Default{}
	}
	return &Dispatcher{
		store:     store,
		formatter: f,
		signer:    signer,
		client:    client,
		keys:      keys,
		logger:    logger,
		now:       time.Now,
	}
}

// BeforeDispatch appends a filter to the chain. Filters run in
// registration order.
func (d *Dispatcher) BeforeDispatch(fn BeforeDispatchFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters = append(d.filters, fn)
}

func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Dispatch makes exactly one delivery attempt of event to sub and records
// it. With existing nil a new log entry is created; otherwise existing is
// updated in place. It reports whether the endpoint answered 2xx and
// never returns an error: every failure ends up in the log entry.
func (d *Dispatcher) Dispatch(ctx context.Context, sub domain.Subscription, event string, payload any, existing *domain.DeliveryLogEntry) bool {
	// Outcomes must be recorded even when the caller gives up.
	ctx = context.WithoutCancel(ctx)
	start := d.now()

	entry := existing
	if entry == nil {
		entry = domain.NewDeliveryLogEntry(sub.ID, event, start)
	}
	if !domain.CanTransition(entry.State(), domain.StateInFlight) {
		d.logger.Warn("skipping dispatch of finished delivery", "log_id", entry.ID, "subscription_id", sub.ID)
		return false
	}
	retry := entry.ID != 0

	var (
		statusCode *int
		errMsg     *string
	)

	doc, err := d.render(ctx, sub, event, payload)
	if err != nil {
		msg := err.Error()
		errMsg = &msg
		doc = entry.Payload
	} else {
		statusCode, errMsg = d.send(ctx, sub, event, doc)
	}

	finished := d.now()
	if err := entry.RecordResult(doc, statusCode, errMsg, finished); err != nil {
		d.logger.Error("recording delivery result", "error", err, "log_id", entry.ID)
		return false
	}
	d.persist(ctx, entry)

	success := entry.Delivered()
	if err := d.store.UpdateSubscriptionHealth(ctx, sub.ID, finished, errMsg); err != nil {
		d.logger.Error("updating subscription health", "error", err, "subscription_id", sub.ID)
	}

	if success {
		d.logger.Info("webhook delivered",
			"subscription_id", sub.ID,
			"event", event,
			"log_id", entry.ID,
			"status_code", *statusCode,
		)
	} else {
		d.logger.Warn("webhook delivery failed",
			"subscription_id", sub.ID,
			"event", event,
			"log_id", entry.ID,
			"status_code", statusCode,
			"error", *errMsg,
		)
	}

	o := Outcome{
		SubscriptionID: sub.ID,
		LogID:          entry.ID,
		Event:          event,
		URL:            sub.URL,
		StatusCode:     statusCode,
		Success:        success,
		Finished:       entry.Finished,
		Attempts:       entry.Attempts,
		Retry:          retry,
		Duration:       finished.Sub(start),
		Timestamp:      finished,
	}
	if errMsg != nil {
		o.Error = *errMsg
	}
	d.notify(o)

	return success
}

// HandleJob is the worker pool entry point for event-triggered deliveries.
func (d *Dispatcher) HandleJob(ctx context.Context, job worker.Job) {
	d.Dispatch(ctx, job.Subscription, job.Event.Name, job.Event.Payload, nil)
}

// render formats the payload, runs the filter chain and compacts the result.
func (d *Dispatcher) render(ctx context.Context, sub domain.Subscription, event string, payload any) (json.RawMessage, error) {
	doc, err := d.formatter.Format(payload, formatter.Options{Full: true})
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	filters := make([]BeforeDispatchFunc, len(d.filters))
	copy(filters, d.filters)
	d.mu.RUnlock()

	for _, fn := range filters {
		if doc, err = fn(ctx, sub, event, doc); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Dispatcher) send(ctx context.Context, sub domain.Subscription, event string, body []byte) (*int, *string) {
	headers := http.Header{}
	headers.Set(HeaderEventName, event)
	headers.Set(HeaderDeliveryID, uuid.NewString())
	if sig, ok := d.signer.Sign(body, sub); ok {
		headers.Set(HeaderSignature, sig)
	}
	if d.keys != nil {
		headers.Set(HeaderAPIKey, d.keys.Current(ctx))
	}

	code, err := d.client.Attempt(ctx, sub.URL, body, headers, 0)
	if err != nil {
		msg := err.Error()
		return nil, &msg
	}
	if domain.IsSuccessStatus(code) {
		return &code, nil
	}
	msg := domain.HTTPError(code)
	return &code, &msg
}

func (d *Dispatcher) persist(ctx context.Context, entry *domain.DeliveryLogEntry) {
	var err error
	if entry.ID == 0 {
		err = d.store.CreateDeliveryLog(ctx, entry)
	} else {
		err = d.store.UpdateDeliveryLog(ctx, entry)
	}
	if store.IsForeignKeyViolation(err) {
		d.logger.Warn("subscription deleted during dispatch, delivery log dropped",
			"subscription_id", entry.SubscriptionID,
		)
		return
	}
	if err != nil {
		d.logger.Error("failed to write delivery log",
			"error", err,
			"log_id", entry.ID,
			"subscription_id", entry.SubscriptionID,
		)
	}
}

func (d *Dispatcher) notify(o Outcome) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, obs := range observers {
		obs.DeliveryAttempted(o)
	}
}
