package api

import (
	"net/http"

	"github.com/Priya8975/hookrelay/internal/store"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
)

type DashboardHandler struct {
	logs       DeliveryLogReader
	queueDepth func() int
	hub        *ws.Hub
}

func NewDashboardHandler(logs DeliveryLogReader, queueDepth func() int, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{logs: logs, queueDepth: queueDepth, hub: hub}
}

type statsResponse struct {
	store.DeliveryStats
	QueueDepth       int `json:"queue_depth"`
	WebSocketClients int `json:"websocket_clients"`
}

// Stats returns aggregated delivery statistics for the dashboard.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.logs.GetDeliveryStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{DeliveryStats: *stats}
	if h.queueDepth != nil {
		resp.QueueDepth = h.queueDepth()
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
