package websocket

import "github.com/google/uuid"

// EventPublisher defines the interface for publishing events to a user's subscribers
type EventPublisher interface {
	// Publish delivers an event to everything subscribed to the user
	Publish(userID uuid.UUID, event Event)
}

// Ensure Hub implements EventPublisher
var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher by broadcasting the event to the user's clients
func (h *Hub) Publish(userID uuid.UUID, event Event) {
	h.Broadcast(userID, event)
}

// NoOpPublisher is a publisher that does nothing (for testing or when realtime delivery is disabled)
type NoOpPublisher struct{}

// Publish does nothing
func (n *NoOpPublisher) Publish(userID uuid.UUID, event Event) {}

// MultiPublisher fans an event out to several publishers in order
type MultiPublisher []EventPublisher

// Publish implements EventPublisher
func (m MultiPublisher) Publish(userID uuid.UUID, event Event) {
	for _, p := range m {
		p.Publish(userID, event)
	}
}
