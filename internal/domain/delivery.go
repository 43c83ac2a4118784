package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxAttempts is the attempt ceiling after which an entry is abandoned.
const MaxAttempts = 10

// MissingWebhookError is recorded on entries whose subscription is gone.
const MissingWebhookError = "Missing webhook"

var ErrInvalidTransition = errors.New("invalid delivery state transition")

// DeliveryState is the lifecycle position of a DeliveryLogEntry.
type DeliveryState string

const (
	StatePendingFirst DeliveryState = "pending_first" // no row yet
	StateInFlight     DeliveryState = "in_flight"     // transient, never persisted
	StateRetrying     DeliveryState = "retrying"
	StateDone         DeliveryState = "done"
)

var allowedTransitions = map[DeliveryState][]DeliveryState{
	StatePendingFirst: {StateInFlight},
	StateInFlight:     {StateRetrying, StateDone},
	// Retrying may finish without a dispatch: orphaned rows and the attempt ceiling.
	StateRetrying: {StateInFlight, StateDone},
	StateDone:     {},
}

// CanTransition reports whether from -> to is an allowed transition.
func CanTransition(from, to DeliveryState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DeliveryLogEntry tracks every attempt to deliver one event occurrence to
// one subscription. It is mutated in place across retries.
type DeliveryLogEntry struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"webhookId"`
	EventName      string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
	StatusCode     *int            `json:"statusCode"`
	Error          *string         `json:"error"`
	Finished       bool            `json:"finished"`
	Attempts       int             `json:"attempts"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewDeliveryLogEntry starts the lineage for a new event occurrence.
func NewDeliveryLogEntry(subscriptionID int64, eventName string, now time.Time) *DeliveryLogEntry {
	return &DeliveryLogEntry{
		SubscriptionID: subscriptionID,
		EventName:      eventName,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// State derives the lifecycle state from the persisted fields.
func (e *DeliveryLogEntry) State() DeliveryState {
	switch {
	case e == nil || e.ID == 0:
		return StatePendingFirst
	case e.Finished:
		return StateDone
	default:
		return StateRetrying
	}
}

// RecordResult stores the outcome of one attempt. A 2xx status finishes
// the entry; anything else leaves it retrying. Attempts are not touched.
func (e *DeliveryLogEntry) RecordResult(payload json.RawMessage, statusCode *int, errMsg *string, now time.Time) error {
	from := e.State()
	if !CanTransition(from, StateInFlight) {
		return fmt.Errorf("%w: cannot dispatch entry in state %s", ErrInvalidTransition, from)
	}

	e.Payload = payload
	e.StatusCode = statusCode
	e.Error = errMsg
	e.Finished = statusCode != nil && IsSuccessStatus(*statusCode)
	e.UpdatedAt = now
	return nil
}

// IncrementAttempts counts a failed retry and abandons the entry once the
// ceiling is reached.
func (e *DeliveryLogEntry) IncrementAttempts(now time.Time) error {
	if e.Finished {
		return fmt.Errorf("%w: entry %d is already finished", ErrInvalidTransition, e.ID)
	}
	e.Attempts++
	if e.Attempts >= MaxAttempts {
		e.Finished = true
	}
	e.UpdatedAt = now
	return nil
}

// MarkFinished moves the entry to its terminal state, optionally
// recording an error.
func (e *DeliveryLogEntry) MarkFinished(errMsg *string, now time.Time) error {
	if !CanTransition(e.State(), StateDone) {
		return fmt.Errorf("%w: cannot finish entry in state %s", ErrInvalidTransition, e.State())
	}
	e.Finished = true
	if errMsg != nil {
		e.Error = errMsg
	}
	e.UpdatedAt = now
	return nil
}

// Delivered reports a finished entry whose last attempt succeeded.
func (e *DeliveryLogEntry) Delivered() bool {
	return e.Finished && e.StatusCode != nil && IsSuccessStatus(*e.StatusCode)
}

// Abandoned reports a finished entry that was never delivered.
func (e *DeliveryLogEntry) Abandoned() bool {
	return e.Finished && !e.Delivered()
}

// NextEligibleAt is the earliest time the retry sweep may dispatch again.
func (e *DeliveryLogEntry) NextEligibleAt() time.Time {
	return e.UpdatedAt.Add(Backoff(e.Attempts))
}

// DueAt reports whether the backoff window has elapsed at now.
func (e *DeliveryLogEntry) DueAt(now time.Time) bool {
	return !now.Before(e.NextEligibleAt())
}

// Backoff is the linear delay after the given attempt count:
// max(1, (attempts-1)*2) minutes.
func Backoff(attempts int) time.Duration {
	minutes := (attempts - 1) * 2
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// HTTPError formats the stored error for a non-2xx response.
func HTTPError(code int) string {
	return fmt.Sprintf("HTTP %d", code)
}
