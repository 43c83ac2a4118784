// Command mock-endpoints is a webhook receiver for local testing. It
// checks signatures and counts duplicate deliveries.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Priya8975/hookrelay/internal/engine"
)

type stats struct {
	Total      int64 `json:"total_requests"`
	BadSig     int64 `json:"bad_signatures"`
	Duplicates int64 `json:"duplicates"`
	Unique     int   `json:"unique_deliveries"`
}

type receiver struct {
	secret string
	hang   time.Duration
	logger *slog.Logger

	total  atomic.Int64
	badSig atomic.Int64
	dups   atomic.Int64
	flaps  atomic.Int64

	mu   sync.Mutex
	seen map[string]int
}

func newReceiver(secret string, hang time.Duration, logger *slog.Logger) *receiver {
	return &receiver{secret: secret, hang: hang, logger: logger, seen: make(map[string]int)}
}

func (rc *receiver) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/webhook/success", rc.handle(func() int { return http.StatusOK }))
	r.Post("/webhook/fail", rc.handle(func() int { return http.StatusInternalServerError }))
	r.Post("/webhook/redirect", rc.handle(func() int { return http.StatusFound }))
	// Alternates 500 and 200, starting with a failure.
	r.Post("/webhook/flap", rc.handle(func() int {
		if rc.flaps.Add(1)%2 == 1 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}))
	r.Post("/webhook/hang", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(rc.hang):
		case <-r.Context().Done():
			return
		}
		rc.handle(func() int { return http.StatusOK })(w, r)
	})
	r.Get("/stats", rc.stats)

	return r
}

func (rc *receiver) handle(status func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := rc.total.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		event := r.Header.Get(engine.HeaderEventName)
		signature := r.Header.Get(engine.HeaderSignature)
		if rc.secret != "" && !engine.VerifySignature(body, rc.secret, signature) {
			rc.badSig.Add(1)
			rc.logger.Warn("signature mismatch", "request", count, "path", r.URL.Path, "event", event)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		code := status()
		dup := false
		if code >= 200 && code < 300 {
			dup = rc.record(event, body)
		}

		rc.logger.Info("webhook received",
			"request", count,
			"path", r.URL.Path,
			"status", code,
			"event", event,
			"signature", truncate(signature, 16),
			"api_key", truncate(r.Header.Get(engine.HeaderAPIKey), 8),
			"duplicate", dup,
		)

		if code >= 300 && code < 400 {
			w.Header().Set("Location", "/webhook/success")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{"status": code, "duplicate": dup})
	}
}

// record remembers an accepted delivery by event name and payload hash and
// reports whether it was seen before.
func (rc *receiver) record(event string, body []byte) bool {
	sum := sha256.Sum256(body)
	key := event + ":" + hex.EncodeToString(sum[:])

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.seen[key]++
	if rc.seen[key] > 1 {
		rc.dups.Add(1)
		return true
	}
	return false
}

func (rc *receiver) stats(w http.ResponseWriter, r *http.Request) {
	rc.mu.Lock()
	unique := len(rc.seen)
	rc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats{
		Total:      rc.total.Load(),
		BadSig:     rc.badSig.Load(),
		Duplicates: rc.dups.Load(),
		Unique:     unique,
	})
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	hang := 45 * time.Second
	if d, err := time.ParseDuration(os.Getenv("HANG_FOR")); err == nil {
		hang = d
	}

	rc := newReceiver(os.Getenv("WEBHOOK_SECRET"), hang, logger)

	logger.Info("mock endpoint server starting",
		"port", port,
		"verifying_signatures", rc.secret != "",
		"routes", []string{"/webhook/success", "/webhook/fail", "/webhook/flap", "/webhook/hang", "/webhook/redirect", "/stats"},
	)

	if err := http.ListenAndServe(":"+port, rc.routes()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
