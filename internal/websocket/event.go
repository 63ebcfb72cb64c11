package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to an entity
type EventType string

const (
	EventTypeThresholdTriggered EventType = "threshold_triggered"
	EventTypeRecalculated       EventType = "recalculated"
	EventTypeRenewed            EventType = "renewed"
	EventTypeContributed        EventType = "contributed"
	EventTypeCompleted          EventType = "completed"
	EventTypeStatsUpdated       EventType = "stats_updated"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeBudget EntityType = "budget"
	EntityTypeGoal   EntityType = "goal"
	EntityTypeIncome EntityType = "income"
)

// Event represents a message pushed to a user's clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "budget.threshold_triggered"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "budget"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// BudgetThresholdTriggered creates a budget.threshold_triggered event
func BudgetThresholdTriggered(payload interface{}) Event {
	return NewEvent(EventTypeThresholdTriggered, EntityTypeBudget, payload)
}

// BudgetRecalculated creates a budget.recalculated event
func BudgetRecalculated(payload interface{}) Event {
	return NewEvent(EventTypeRecalculated, EntityTypeBudget, payload)
}

// BudgetRenewed creates a budget.renewed event
func BudgetRenewed(payload interface{}) Event {
	return NewEvent(EventTypeRenewed, EntityTypeBudget, payload)
}

// GoalContributed creates a goal.contributed event
func GoalContributed(payload interface{}) Event {
	return NewEvent(EventTypeContributed, EntityTypeGoal, payload)
}

// GoalCompleted creates a goal.completed event
func GoalCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypeGoal, payload)
}

// IncomeStatsUpdated creates an income.stats_updated event
func IncomeStatsUpdated(payload interface{}) Event {
	return NewEvent(EventTypeStatsUpdated, EntityTypeIncome, payload)
}
