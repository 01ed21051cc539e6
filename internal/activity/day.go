package activity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical text form of a Day
const DateLayout = "2006-01-02"

var dayLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// MinDay is the sentinel used to order activities whose date cannot be parsed.
// It sorts before every real date.
var MinDay = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day is an activity date as it was supplied upstream: a parsed calendar day,
// raw text that may or may not be an ISO-8601 date, or nothing at all.
type Day struct {
	t    time.Time
	text string
	set  bool
}

// DayOf returns the calendar day of t in t's own location
func DayOf(t time.Time) Day {
	if t.IsZero() {
		return Day{}
	}
	return Day{t: truncateDay(t), set: true}
}

// DayFromString wraps raw date text without validating it.
// Use Parse to find out whether it holds a real date.
func DayFromString(s string) Day {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}
	}
	return Day{text: s, set: true}
}

// ParseDay parses s as a calendar day
func ParseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// Parse returns the calendar day at midnight UTC, or false if the day is
// absent or its text is not a date.
func (d Day) Parse() (time.Time, bool) {
	if !d.set {
		return time.Time{}, false
	}
	if d.text == "" {
		return d.t, true
	}
	return ParseDay(d.text)
}

// SortKey returns the parsed day, or MinDay when it cannot be parsed
func (d Day) SortKey() time.Time {
	if t, ok := d.Parse(); ok {
		return t
	}
	return MinDay
}

// IsZero reports whether no date was supplied
func (d Day) IsZero() bool {
	return !d.set
}

// String returns the canonical date text when the day parses, otherwise the raw text
func (d Day) String() string {
	if t, ok := d.Parse(); ok {
		return t.Format(DateLayout)
	}
	return d.text
}

// Scan implements sql.Scanner. Unparsable text is kept as is.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Day{}
	case time.Time:
		*d = DayOf(v)
	case string:
		*d = DayFromString(v)
	case []byte:
		*d = DayFromString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into activity.Day", src)
	}
	return nil
}

// Value implements driver.Valuer
func (d Day) Value() (driver.Value, error) {
	if !d.set {
		return nil, nil
	}
	return d.String(), nil
}

func (d Day) MarshalJSON() ([]byte, error) {
	if !d.set {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Day{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = DayFromString(s)
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
