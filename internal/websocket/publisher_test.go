package websocket

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(userID uuid.UUID, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	client := newMockClient("client-1", userID)
	hub.Register(client)

	var publisher EventPublisher = hub
	publisher.Publish(userID, GoalCompleted(map[string]interface{}{"id": float64(42)}))

	assert.Len(t, client.GetMessages(), 1)
}

func TestNoOpPublisher_Publish(t *testing.T) {
	publisher := &NoOpPublisher{}

	assert.NotPanics(t, func() {
		publisher.Publish(uuid.New(), GoalCompleted(map[string]interface{}{"id": float64(1)}))
	})
}

func TestMultiPublisher_FansOut(t *testing.T) {
	first, second := &recordingPublisher{}, &recordingPublisher{}
	multi := MultiPublisher{first, second}

	multi.Publish(uuid.New(), BudgetRecalculated(map[string]interface{}{"id": float64(7)}))

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
	assert.Equal(t, "budget.recalculated", second.events[0].Type)
}
