package domain

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Window is a closed interval of calendar days [Start, End]. Both bounds are
// normalized to midnight UTC, so an expense dated on End is inside.
type Window struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// NewWindow builds a normalized window, rejecting End before Start
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: TruncateDay(start), End: TruncateDay(end)}
	if w.End.Before(w.Start) {
		return Window{}, ErrInvalidWindow
	}
	return w, nil
}

// TruncateDay returns midnight UTC of t's calendar day
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls on a day inside the window
func (w Window) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Overlaps reports whether the two windows share at least one day
func (w Window) Overlaps(o Window) bool {
	return !w.End.Before(o.Start) && !o.End.Before(w.Start)
}

// TotalDays is the number of calendar days covered, at least 1
func (w Window) TotalDays() int {
	return int(w.End.Sub(w.Start)/day) + 1
}

// DaysElapsed is ceil(now - Start) in days, clamped to [1, TotalDays].
func (w Window) DaysElapsed(now time.Time) int {
	elapsed := int(math.Ceil(now.Sub(w.Start).Hours() / 24))
	if elapsed < 1 {
		elapsed = 1
	}
	if total := w.TotalDays(); elapsed > total {
		elapsed = total
	}
	return elapsed
}

// DaysRemaining counts whole days from now until the end of the window
func (w Window) DaysRemaining(now time.Time) int {
	remaining := int(w.End.Sub(TruncateDay(now)) / day)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Ended reports whether the last day of the window is before now's day
func (w Window) Ended(now time.Time) bool {
	return w.End.Before(TruncateDay(now))
}

// Next returns the window of equal length starting the day after End
func (w Window) Next() Window {
	start := w.End.Add(day)
	return Window{Start: start, End: start.Add(w.End.Sub(w.Start))}
}
