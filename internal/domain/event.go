package domain

import "time"

// Event is a named domain event published by the host application.
// Payload is an opaque domain object handed to the payload formatter.
type Event struct {
	Name       string    `json:"event"`
	Payload    any       `json:"payload"`
	RoutingKey *int64    `json:"routing_key,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RoutingKeyer is implemented by payloads that carry their own routing
// key, such as a conversation's mailbox id.
type RoutingKeyer interface {
	RoutingKey() *int64
}
