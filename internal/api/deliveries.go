package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/store"
)

// DeliveryLogReader is the read side of the delivery log store.
type DeliveryLogReader interface {
	GetDeliveryLog(ctx context.Context, id int64) (*domain.DeliveryLogEntry, error)
	ListDeliveryLogs(ctx context.Context, f store.DeliveryLogFilter) ([]domain.DeliveryLogEntry, error)
	GetDeliveryStats(ctx context.Context) (*store.DeliveryStats, error)
}

// Retrier re-attempts a single entry outside the sweep schedule.
type Retrier interface {
	RetryNow(ctx context.Context, id int64) (*domain.DeliveryLogEntry, engine.SweepResult, error)
}

type DeliveryHandler struct {
	logs    DeliveryLogReader
	retrier Retrier
}

func NewDeliveryHandler(logs DeliveryLogReader, retrier Retrier) *DeliveryHandler {
	return &DeliveryHandler{logs: logs, retrier: retrier}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.DeliveryLogFilter{Limit: limitParam(r)}

	if s := r.URL.Query().Get("finished"); s != "" {
		finished, err := strconv.ParseBool(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "finished must be true or false")
			return
		}
		f.Finished = &finished
	}
	if s := r.URL.Query().Get("webhook_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid webhook_id")
			return
		}
		f.SubscriptionID = &id
	}

	entries, err := h.logs.ListDeliveryLogs(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

type retryResponse struct {
	Delivered bool                     `json:"delivered"`
	Entry     *domain.DeliveryLogEntry `json:"delivery"`
}

// Retry makes one immediate attempt for an unfinished entry. It is refused
// while a sweep holds the retry lease.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid delivery id")
		return
	}

	entry, res, err := h.retrier.RetryNow(r.Context(), id)
	switch {
	case errors.Is(err, engine.ErrDeliveryNotFound):
		respondError(w, http.StatusNotFound, "delivery not found")
		return
	case errors.Is(err, engine.ErrDeliveryFinished):
		respondError(w, http.StatusConflict, "delivery is already finished")
		return
	case errors.Is(err, engine.ErrSweepInProgress):
		respondError(w, http.StatusConflict, "a retry sweep is in progress, try again later")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to retry delivery")
		return
	}

	respondJSON(w, http.StatusOK, retryResponse{Delivered: res.Delivered > 0, Entry: entry})
}

func (h *DeliveryHandler) load(w http.ResponseWriter, r *http.Request) (*domain.DeliveryLogEntry, bool) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid delivery id")
		return nil, false
	}

	entry, err := h.logs.GetDeliveryLog(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery")
		return nil, false
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "delivery not found")
		return nil, false
	}
	return entry, true
}
