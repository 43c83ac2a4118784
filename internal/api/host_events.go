package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/events"
)

// HostEventHandler accepts host application actions and turns them into
// webhook events through the bridge.
type HostEventHandler struct {
	bridge *events.Bridge
}

func NewHostEventHandler(bridge *events.Bridge) *HostEventHandler {
	return &HostEventHandler{bridge: bridge}
}

type hostEventResponse struct {
	Action string `json:"action"`
	Status string `json:"status"`
}

func (h *HostEventHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var action events.HostAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verr := &domain.ValidationError{}
	if action.Action == "" {
		verr.Add("action", "is required")
		respondInvalid(w, verr)
		return
	}

	err := h.bridge.Apply(r.Context(), action)
	switch {
	case errors.Is(err, events.ErrUnknownAction):
		verr.Add("action", "is not a known host action")
		respondInvalid(w, verr)
		return
	case errors.Is(err, events.ErrMissingObject):
		verr.Add("action", err.Error())
		respondInvalid(w, verr)
		return
	case err != nil:
		respondError(w, http.StatusServiceUnavailable, "failed to queue deliveries")
		return
	}

	respondJSON(w, http.StatusAccepted, hostEventResponse{Action: action.Action, Status: "accepted"})
}
