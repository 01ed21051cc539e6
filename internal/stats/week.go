// Package stats turns a user's activity history into weekly aggregates and
// next-session distance recommendations. Every function is pure: it reads the
// slice it is given and never keeps or mutates it.
package stats

import (
	"fmt"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
)

// ErrInvalidArgument is returned for a zero reference date or an unknown sport
var ErrInvalidArgument = activity.ErrInvalidArgument

// Window is the Monday to Sunday week containing a reference date.
// Both bounds are calendar days at midnight UTC and End is inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveWeek returns the week window containing ref
func ResolveWeek(ref time.Time) (Window, error) {
	if ref.IsZero() {
		return Window{}, fmt.Errorf("%w: reference date is required", ErrInvalidArgument)
	}

	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	isoWeekday := int(day.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7 // Sunday
	}

	start := day.AddDate(0, 0, -(isoWeekday - 1))
	return Window{Start: start, End: start.AddDate(0, 0, 6)}, nil
}

// Contains reports whether day falls inside the window, bounds included
func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// Days returns the seven days of the window, Monday first
func (w Window) Days() []time.Time {
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = w.Start.AddDate(0, 0, i)
	}
	return days
}

// Label returns the ISO week label of the window, e.g. 2024-W03
func (w Window) Label() string {
	year, week := w.Start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
