package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subscription is the set of entity types a client receives events for.
// The zero value receives everything.
type Subscription struct {
	entities map[EntityType]bool
}

// ParseSubscription parses a comma separated entity list such as
// "budget,goal". An empty string subscribes to every entity.
func ParseSubscription(raw string) (Subscription, error) {
	if strings.TrimSpace(raw) == "" {
		return Subscription{}, nil
	}
	return NewSubscription(strings.Split(raw, ",")...)
}

// NewSubscription builds a subscription from entity names
func NewSubscription(names ...string) (Subscription, error) {
	if len(names) == 0 {
		return Subscription{}, nil
	}
	entities := make(map[EntityType]bool, len(names))
	for _, name := range names {
		entity := EntityType(strings.ToLower(strings.TrimSpace(name)))
		if !entity.IsValid() {
			return Subscription{}, fmt.Errorf("unknown entity %q", name)
		}
		entities[entity] = true
	}
	return Subscription{entities: entities}, nil
}

// Matches reports whether events about entity should be delivered
func (s Subscription) Matches(entity EntityType) bool {
	return len(s.entities) == 0 || s.entities[entity]
}

// IsValid reports whether e is an entity events are published for
func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeBudget, EntityTypeGoal, EntityTypeIncome:
		return true
	}
	return false
}

// controlMessage is the only inbound frame clients send:
// {"action":"subscribe","entities":["budget"]}
type controlMessage struct {
	Action   string   `json:"action"`
	Entities []string `json:"entities"`
}

const actionSubscribe = "subscribe"

// parseControlMessage decodes an inbound frame into the subscription it asks for
func parseControlMessage(data []byte) (Subscription, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Subscription{}, fmt.Errorf("invalid control message: %w", err)
	}
	if msg.Action != actionSubscribe {
		return Subscription{}, fmt.Errorf("unknown action %q", msg.Action)
	}
	return NewSubscription(msg.Entities...)
}
