package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/hookrelay/internal/store"
)

// DeadLetterHandler lists abandoned deliveries: finished without ever
// getting a 2xx.
type DeadLetterHandler struct {
	logs DeliveryLogReader
}

func NewDeadLetterHandler(logs DeliveryLogReader) *DeadLetterHandler {
	return &DeadLetterHandler{logs: logs}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.DeliveryLogFilter{Abandoned: true, Limit: limitParam(r)}

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
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}
