package api

import (
	"context"
	"net/http"
)

// KeyRegenerator rotates the instance API key.
type KeyRegenerator interface {
	Regenerate(ctx context.Context) (string, error)
}

type APIKeyHandler struct {
	keys KeyRegenerator
}

func NewAPIKeyHandler(keys KeyRegenerator) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// Regenerate replaces the salt and returns the new key. Webhooks sent
// afterwards carry it in X-Api-Key.
func (h *APIKeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Regenerate(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to regenerate api key")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"api_key": key})
}
