package stats

import "github.com/joshdurbin/sportlog/internal/activity"

// IsWithin reports whether an activity date falls inside the window.
// A missing date or text that is not an ISO-8601 date is never within a
// window, so malformed records drop out of aggregates instead of failing them.
func IsWithin(d activity.Day, w Window) bool {
	day, ok := d.Parse()
	if !ok {
		return false
	}
	return w.Contains(day)
}
