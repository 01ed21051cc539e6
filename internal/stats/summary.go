package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
)

// Summary aggregates the activities of one week
type Summary struct {
	Window          Window                         `json:"window"`
	Week            string                         `json:"week"`
	ActivityCount   int                            `json:"activity_count"`
	TotalMinutes    float64                        `json:"total_minutes"`
	TotalDuration   string                         `json:"total_duration"`
	TotalDistanceKm float64                        `json:"total_distance_km"`
	DistanceBySport map[activity.SportType]float64 `json:"distance_by_sport_km"`
	SpeedBySport    map[activity.SportType]float64 `json:"speed_by_sport"`
	Daily           []DayDuration                  `json:"daily"`
	SportDistances  []SportDistance                `json:"sport_distances"`
	// Malformed counts records dropped because their date could not be read
	Malformed int `json:"malformed,omitempty"`
}

// DayDuration is the training time of one day of the week
type DayDuration struct {
	Date    string  `json:"date"`
	Label   string  `json:"label"`
	Minutes float64 `json:"minutes"`
}

// SportDistance is the weekly distance of one sport, for charting
type SportDistance struct {
	Sport      activity.SportType `json:"sport"`
	DistanceKm float64            `json:"distance_km"`
	Unit       string             `json:"speed_unit,omitempty"`
}

var dayLabels = map[string][7]string{
	"en": {"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
	"fr": {"Lun", "Mar", "Mer", "Jeu", "Ven", "Sam", "Dim"},
}

type summaryOptions struct {
	locale string
}

// SummaryOption customizes Summarize
type SummaryOption func(*summaryOptions)

// WithLocale selects the language of the day labels ("en" or "fr").
// Unknown locales fall back to English.
func WithLocale(locale string) SummaryOption {
	return func(o *summaryOptions) {
		o.locale = strings.ToLower(locale)
	}
}

// Summarize aggregates the activities that fall in the week containing ref
func Summarize(activities []activity.Activity, ref time.Time, opts ...SummaryOption) (Summary, error) {
	options := summaryOptions{locale: "en"}
	for _, opt := range opts {
		opt(&options)
	}
	labels, ok := dayLabels[options.locale]
	if !ok {
		labels = dayLabels["en"]
	}

	window, err := ResolveWeek(ref)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Window:          window,
		Week:            window.Label(),
		DistanceBySport: make(map[activity.SportType]float64),
		SpeedBySport:    make(map[activity.SportType]float64),
	}

	var inWeek []activity.Activity
	for _, a := range activities {
		if _, ok := a.Date.Parse(); !ok {
			summary.Malformed++
			continue
		}
		if IsWithin(a.Date, window) {
			inWeek = append(inWeek, a)
		}
	}

	summary.ActivityCount = len(inWeek)

	var totalMeters float64
	metersBySport := make(map[activity.SportType]float64)
	minutesByDay := make(map[time.Time]float64)
	for _, a := range inWeek {
		minutes := a.SafeMinutes()
		meters := a.SafeDistance()

		summary.TotalMinutes += minutes
		totalMeters += meters
		metersBySport[sportKey(a.Sport)] += meters

		day, _ := a.Date.Parse()
		minutesByDay[day] += minutes
	}

	summary.TotalDuration = FormatDuration(summary.TotalMinutes)
	summary.TotalDistanceKm = round2(totalMeters / 1000)
	for sport, meters := range metersBySport {
		summary.DistanceBySport[sport] = round2(meters / 1000)
	}

	for _, sport := range activity.KnownSports {
		var speeds []float64
		seen := false
		for _, a := range inWeek {
			if s, ok := a.Sport.Normalize(); !ok || s != sport {
				continue
			}
			seen = true
			if v := activity.Speed(a); v > 0 {
				speeds = append(speeds, v)
			}
		}
		if seen {
			summary.SpeedBySport[sport] = round2(mean(speeds))
		}
	}

	for i, day := range window.Days() {
		summary.Daily = append(summary.Daily, DayDuration{
			Date:    day.Format(activity.DateLayout),
			Label:   labels[i],
			Minutes: round2(minutesByDay[day]),
		})
	}

	summary.SportDistances = sportDistances(summary.DistanceBySport)
	return summary, nil
}

// FormatDuration renders a number of minutes as "HHh MMmin SSs".
// Seconds are truncated, never rounded.
func FormatDuration(minutes float64) string {
	if minutes < 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		minutes = 0
	}
	// the epsilon absorbs float noise such as 71.99999999 for 72 minutes
	totalSeconds := int64(math.Floor(minutes*60 + 1e-9))
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02dh %02dmin %02ds", h, m, s)
}

// sportKey groups by canonical sport; unknown sports keep their lower-cased
// name so the per-sport totals still add up to the overall total.
func sportKey(s activity.SportType) activity.SportType {
	if sport, ok := s.Normalize(); ok {
		return sport
	}
	return activity.SportType(strings.ToLower(strings.TrimSpace(string(s))))
}

func sportDistances(bySport map[activity.SportType]float64) []SportDistance {
	result := make([]SportDistance, 0, len(bySport))
	for _, sport := range activity.KnownSports {
		if km, ok := bySport[sport]; ok {
			result = append(result, SportDistance{Sport: sport, DistanceKm: km, Unit: sport.Unit()})
		}
	}

	var others []activity.SportType
	for sport := range bySport {
		if _, known := sport.Normalize(); !known {
			others = append(others, sport)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	for _, sport := range others {
		result = append(result, SportDistance{Sport: sport, DistanceKm: bySport[sport]})
	}
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
