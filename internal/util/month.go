package util

import "time"

// MonthStart returns midnight UTC on the first day of t's month
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBack returns the start of the month n months before t's month
func MonthsBack(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, -n, 0)
}

// ClampDay returns the given day of a month, pulled back to the month's last
// day when the month is shorter (day 31 in February returns Feb 28/29).
func ClampDay(year int, month time.Month, day int) time.Time {
	// Day 0 of the next month is the last day of this one
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t forward by n calendar months keeping its day of month
// where possible. Unlike time.AddDate it never spills into the following month.
func AddMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return ClampDay(first.Year(), first.Month(), t.Day())
}
