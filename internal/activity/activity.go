package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrInvalidArgument is returned when a caller passes a value the statistics
// functions cannot work with, such as an unknown sport or a zero date.
var ErrInvalidArgument = errors.New("invalid argument")

// SportType identifies the sport an activity was logged for
type SportType string

const (
	Running  SportType = "running"
	Cycling  SportType = "cycling"
	Swimming SportType = "swimming"
)

// KnownSports lists the supported sports in display order
var KnownSports = []SportType{Running, Cycling, Swimming}

var sportAliases = map[string]SportType{
	"running":  Running,
	"run":      Running,
	"course":   Running,
	"cycling":  Cycling,
	"ride":     Cycling,
	"cyclisme": Cycling,
	"swimming": Swimming,
	"swim":     Swimming,
	"natation": Swimming,
}

// ParseSportType resolves a sport name case-insensitively.
// The legacy French names (course, cyclisme, natation) are accepted as well.
func ParseSportType(s string) (SportType, error) {
	if sport, ok := sportAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return sport, nil
	}
	return "", fmt.Errorf("%w: unknown sport type %q", ErrInvalidArgument, s)
}

// Normalize returns the canonical sport for s, or false if s is not a known sport
func (s SportType) Normalize() (SportType, bool) {
	sport, err := ParseSportType(string(s))
	return sport, err == nil
}

// Unit returns the unit of the value computed by Speed for this sport
func (s SportType) Unit() string {
	switch s {
	case Running:
		return "min/km"
	case Cycling:
		return "km/h"
	case Swimming:
		return "min/100m"
	default:
		return ""
	}
}

// Activity is one logged sport session.
// DistanceMeters is always in meters whatever unit it is displayed in.
type Activity struct {
	ID             string        `json:"id,omitempty"`
	UserID         string        `json:"user_id"`
	Date           Day           `json:"date"`
	Sport          SportType     `json:"sport"`
	DistanceMeters float64       `json:"distance_meters"`
	Duration       time.Duration `json:"-"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Trace          string        `json:"trace,omitempty"`
}

// activityFields has the fields of Activity without its methods
type activityFields Activity

// MarshalJSON writes the duration as duration_seconds
func (a Activity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		activityFields
		DurationSeconds float64 `json:"duration_seconds"`
	}{activityFields(a), a.Duration.Seconds()})
}

func (a *Activity) UnmarshalJSON(b []byte) error {
	var v struct {
		activityFields
		DurationSeconds float64 `json:"duration_seconds"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Activity(v.activityFields)
	a.Duration = time.Duration(math.Round(v.DurationSeconds * float64(time.Second)))
	return nil
}

// SafeDistance returns the distance in meters, or 0 when the stored value is
// not a usable non-negative number.
func (a Activity) SafeDistance() float64 {
	d := a.DistanceMeters
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// SafeMinutes returns the duration in minutes, or 0 for a negative duration
func (a Activity) SafeMinutes() float64 {
	if a.Duration < 0 {
		return 0
	}
	return a.Duration.Minutes()
}

// Speed computes the sport-specific pace or speed of an activity:
//   - running: minutes per kilometer
//   - cycling: kilometers per hour
//   - swimming: minutes per 100 meters
//
// It returns 0 when the value is undefined (zero distance or duration, unknown sport).
func Speed(a Activity) float64 {
	sport, ok := a.Sport.Normalize()
	if !ok {
		return 0
	}

	meters := a.SafeDistance()
	minutes := a.SafeMinutes()

	switch sport {
	case Running:
		if meters <= 0 || minutes <= 0 {
			return 0
		}
		return minutes / (meters / 1000)
	case Cycling:
		hours := minutes / 60
		if hours <= 0 {
			return 0
		}
		return (meters / 1000) / hours
	case Swimming:
		if meters <= 0 || minutes <= 0 {
			return 0
		}
		return minutes / (meters / 100)
	}
	return 0
}

// Validate checks the invariants a new activity must satisfy before it is stored
func (a Activity) Validate() error {
	if _, err := ParseSportType(string(a.Sport)); err != nil {
		return err
	}
	if math.IsNaN(a.DistanceMeters) || math.IsInf(a.DistanceMeters, 0) || a.DistanceMeters < 0 {
		return fmt.Errorf("%w: distance must be a non-negative number of meters", ErrInvalidArgument)
	}
	if a.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument)
	}
	if _, ok := a.Date.Parse(); !ok {
		return fmt.Errorf("%w: date %q is not a calendar date", ErrInvalidArgument, a.Date.String())
	}
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return nil
}

// SortNewestFirst orders activities by date, most recent first. Activities
// without a readable date go last; ties keep their relative order.
func SortNewestFirst(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Date.SortKey().After(activities[j].Date.SortKey())
	})
}
