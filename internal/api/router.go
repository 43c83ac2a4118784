package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Priya8975/hookrelay/internal/events"
	"github.com/Priya8975/hookrelay/internal/registry"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
)

// Dependencies wires the handlers. Hub, Metrics, Health and QueueDepth are
// optional.
type Dependencies struct {
	Registry   *registry.Registry
	Logs       DeliveryLogReader
	Retrier    Retrier
	Bus        *events.Bus
	Keys       KeyRegenerator
	Hub        *ws.Hub
	Metrics    http.Handler
	Health     Pinger
	QueueDepth func() int
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	webhookHandler := NewWebhookHandler(deps.Registry, deps.Logs)
	deliveryHandler := NewDeliveryHandler(deps.Logs, deps.Retrier)
	dlqHandler := NewDeadLetterHandler(deps.Logs)
	eventHandler := NewEventHandler(deps.Bus)
	hostHandler := NewHostEventHandler(events.NewBridge(deps.Bus))
	keyHandler := NewAPIKeyHandler(deps.Keys)
	dashHandler := NewDashboardHandler(deps.Logs, deps.QueueDepth, deps.Hub)

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWebSocket)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(deps.Health))

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookHandler.Create)
			r.Get("/", webhookHandler.List)
			r.Get("/{id}", webhookHandler.Get)
			r.Put("/{id}", webhookHandler.Update)
			r.Delete("/{id}", webhookHandler.Delete)
			r.Get("/{id}/logs", webhookHandler.Logs)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Get("/{id}", deliveryHandler.Get)
			r.Post("/{id}/retry", deliveryHandler.Retry)
		})

		r.Get("/dead-letters", dlqHandler.List)

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Publish)
			r.Get("/names", eventHandler.Names)
		})
		r.Post("/host-events", hostHandler.Apply)

		r.Post("/api-key/regenerate", keyHandler.Regenerate)
		r.Get("/stats", dashHandler.Stats)
	})

	return r
}
