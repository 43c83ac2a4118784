package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/registry"
	"github.com/Priya8975/hookrelay/internal/store"
)

type WebhookHandler struct {
	registry *registry.Registry
	logs     DeliveryLogReader
}

func NewWebhookHandler(reg *registry.Registry, logs DeliveryLogReader) *WebhookHandler {
	return &WebhookHandler{registry: reg, logs: logs}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscriptionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Create(r.Context(), req)
	if err != nil {
		if respondInvalid(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.registry.All(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	var req domain.SubscriptionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Update(r.Context(), id, req)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	case err != nil:
		if respondInvalid(w, err) {
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update webhook")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

// Delete removes the webhook together with its delivery logs.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	err := h.registry.Delete(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Logs lists the webhook's delivery log entries, newest first.
func (h *WebhookHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	sub, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	entries, err := h.logs.ListDeliveryLogs(r.Context(), store.DeliveryLogFilter{
		SubscriptionID: &id,
		Limit:          limitParam(r),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery logs")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}
