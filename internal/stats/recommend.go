package stats

import (
	"math"

	"github.com/joshdurbin/sportlog/internal/activity"
)

// DefaultLookback is the number of recent sessions a recommendation is based on
const DefaultLookback = 10

const (
	beginnerCoefficient  = 1.05
	improvingCoefficient = 1.10
	decliningCoefficient = 1.03
	steadyCoefficient    = 1.07
	trendThreshold       = 0.10
)

var defaultDistances = map[activity.SportType]float64{
	activity.Running:  5000,
	activity.Swimming: 500,
	activity.Cycling:  20000,
}

var roundingSteps = map[activity.SportType]float64{
	activity.Running:  500,
	activity.Swimming: 50,
	activity.Cycling:  1000,
}

// Recommendation is the suggested distance for the next session of a sport
type Recommendation struct {
	Sport          activity.SportType `json:"sport"`
	DistanceMeters float64            `json:"recommended_distance_meters"`
	BasedOn        int                `json:"based_on"`
	AverageMeters  float64            `json:"average_meters,omitempty"`
	Trend          float64            `json:"trend"`
	Coefficient    float64            `json:"coefficient"`
}

// Recommend proposes the distance of the next session of sport from the
// lookback most recent sessions of that sport. A lookback of zero or less
// uses DefaultLookback.
func Recommend(activities []activity.Activity, sport activity.SportType, lookback int) (Recommendation, error) {
	sport, err := activity.ParseSportType(string(sport))
	if err != nil {
		return Recommendation{}, err
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	candidates := recentSessions(activities, sport, lookback)
	if len(candidates) == 0 {
		return Recommendation{
			Sport:          sport,
			DistanceMeters: defaultDistances[sport],
			Coefficient:    1,
		}, nil
	}

	var sum float64
	for _, a := range candidates {
		sum += a.DistanceMeters
	}
	average := sum / float64(len(candidates))

	trend, coefficient := trendCoefficient(candidates)
	step := roundingSteps[sport]

	return Recommendation{
		Sport:          sport,
		DistanceMeters: math.Round(average*coefficient/step) * step,
		BasedOn:        len(candidates),
		AverageMeters:  average,
		Trend:          trend,
		Coefficient:    coefficient,
	}, nil
}

// recentSessions returns up to limit activities of sport, newest first.
// Activities with an unreadable date sort last; activities with an unusable
// distance are skipped.
func recentSessions(activities []activity.Activity, sport activity.SportType, limit int) []activity.Activity {
	var matching []activity.Activity
	for _, a := range activities {
		s, ok := a.Sport.Normalize()
		if !ok || s != sport {
			continue
		}
		if a.SafeDistance() != a.DistanceMeters {
			continue
		}
		matching = append(matching, a)
	}

	activity.SortNewestFirst(matching)

	if len(matching) > limit {
		matching = matching[:limit]
	}
	return matching
}

// trendCoefficient compares the most recent session to the third most recent
func trendCoefficient(recent []activity.Activity) (float64, float64) {
	if len(recent) < 3 {
		return 0, beginnerCoefficient
	}

	latest := recent[0].DistanceMeters
	third := recent[2].DistanceMeters

	var trend float64
	if third != 0 {
		trend = (latest - third) / third
	}

	switch {
	case trend > trendThreshold:
		return trend, improvingCoefficient
	case trend < -trendThreshold:
		return trend, decliningCoefficient
	default:
		return trend, steadyCoefficient
	}
}
