package crm

import "time"

// Window is a half-open time range [Start, End). A zero Start or End leaves
// that side unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// All matches every timestamp.
var All = Window{}

// Unbounded reports whether the window matches every timestamp.
func (w Window) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains returns true if t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// WeekOf returns the window from Monday 00:00 UTC of the week containing now
// up to now.
func WeekOf(now time.Time) Window {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysSinceMonday)
	return Window{Start: start, End: now}
}

// PreviousWeek returns the full calendar week before the one containing now.
func PreviousWeek(now time.Time) Window {
	current := WeekOf(now)
	return Window{Start: current.Start.AddDate(0, 0, -7), End: current.Start}
}
