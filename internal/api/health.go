package api

import (
	"context"
	"net/http"
	"time"
)

// Version is reported by the health check.
var Version = "1.0.0"

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthHandler returns the health check handler. A failing pinger turns
// the answer into 503.
func HealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Version: Version})
				return
			}
		}

		respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
	}
}
