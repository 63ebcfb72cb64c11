package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscription(t *testing.T) {
	all, err := ParseSubscription("")
	require.NoError(t, err)
	assert.True(t, all.Matches(EntityTypeBudget))
	assert.True(t, all.Matches(EntityTypeIncome))

	some, err := ParseSubscription(" Budget , goal")
	require.NoError(t, err)
	assert.True(t, some.Matches(EntityTypeBudget))
	assert.True(t, some.Matches(EntityTypeGoal))
	assert.False(t, some.Matches(EntityTypeIncome))

	_, err = ParseSubscription("budget,loans")
	assert.Error(t, err)
}

func TestParseControlMessage(t *testing.T) {
	sub, err := parseControlMessage([]byte(`{"action":"subscribe","entities":["income"]}`))
	require.NoError(t, err)
	assert.True(t, sub.Matches(EntityTypeIncome))
	assert.False(t, sub.Matches(EntityTypeGoal))

	// An empty list goes back to receiving everything
	sub, err = parseControlMessage([]byte(`{"action":"subscribe","entities":[]}`))
	require.NoError(t, err)
	assert.True(t, sub.Matches(EntityTypeGoal))

	_, err = parseControlMessage([]byte(`{"action":"unsubscribe"}`))
	assert.Error(t, err)
	_, err = parseControlMessage([]byte(`not json`))
	assert.Error(t, err)
}
