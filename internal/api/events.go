package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/events"
)

type EventHandler struct {
	bus *events.Bus
}

func NewEventHandler(bus *events.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

type publishEventRequest struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	MailboxID *int64          `json:"mailbox_id,omitempty"`
}

type publishEventResponse struct {
	Event  string `json:"event"`
	Status string `json:"status"`
}

// Publish hands a host event to the bus. Deliveries happen asynchronously;
// the request only waits while the dispatch queue is full.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verr := &domain.ValidationError{}
	if req.Event == "" {
		verr.Add("event", "is required")
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		verr.Add("payload", "must be a JSON document")
	}
	if verr.HasErrors() {
		respondInvalid(w, verr)
		return
	}

	err := h.bus.Publish(r.Context(), req.Event, req.Payload, req.MailboxID)
	if errors.Is(err, events.ErrUnknownEvent) {
		verr.Add("event", "is not a known event")
		respondInvalid(w, verr)
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to queue deliveries")
		return
	}

	respondJSON(w, http.StatusAccepted, publishEventResponse{Event: req.Event, Status: "queued"})
}

// Names lists the event names webhooks may subscribe to.
func (h *EventHandler) Names(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.bus.Vocabulary().All())
}
