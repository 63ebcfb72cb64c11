package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewWindow_NormalizesToDays(t *testing.T) {
	w, err := NewWindow(time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC), time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, date(2026, 3, 1), w.Start)
	assert.Equal(t, date(2026, 3, 31), w.End)
	assert.Equal(t, 31, w.TotalDays())
}

func TestNewWindow_RejectsInvertedBounds(t *testing.T) {
	_, err := NewWindow(date(2026, 3, 31), date(2026, 3, 1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWindow_ContainsIsInclusive(t *testing.T) {
	w := Window{Start: date(2026, 3, 1), End: date(2026, 3, 31)}

	assert.True(t, w.Contains(date(2026, 3, 1)))
	assert.True(t, w.Contains(time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(date(2026, 4, 1)))
	assert.False(t, w.Contains(date(2026, 2, 28)))
}

func TestWindow_Overlaps(t *testing.T) {
	march := Window{Start: date(2026, 3, 1), End: date(2026, 3, 31)}

	assert.True(t, march.Overlaps(Window{Start: date(2026, 3, 31), End: date(2026, 4, 30)}))
	assert.True(t, march.Overlaps(Window{Start: date(2026, 3, 10), End: date(2026, 3, 12)}))
	assert.False(t, march.Overlaps(Window{Start: date(2026, 4, 1), End: date(2026, 4, 30)}))
}

func TestWindow_DaysElapsed(t *testing.T) {
	w := Window{Start: date(2026, 3, 1), End: date(2026, 3, 31)}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"first instant clamps to one", date(2026, 3, 1), 1},
		{"partial day rounds up", time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), 1},
		{"ten and a bit days", time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC), 11},
		{"before window", date(2026, 2, 1), 1},
		{"after window clamps to total", date(2026, 5, 1), 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.DaysElapsed(tt.now))
		})
	}
}

func TestWindow_NextKeepsLength(t *testing.T) {
	w := Window{Start: date(2026, 3, 1), End: date(2026, 3, 31)}
	next := w.Next()

	assert.Equal(t, date(2026, 4, 1), next.Start)
	assert.Equal(t, date(2026, 5, 1), next.End)
	assert.Equal(t, w.TotalDays(), next.TotalDays())
	assert.False(t, w.Overlaps(next))
}

func TestWindow_Ended(t *testing.T) {
	w := Window{Start: date(2026, 3, 1), End: date(2026, 3, 31)}

	assert.False(t, w.Ended(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.True(t, w.Ended(date(2026, 4, 1)))
}
