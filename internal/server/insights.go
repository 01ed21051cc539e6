package server

import (
	"fmt"
	"math"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/stats"
)

// Insight is a short observation attached to a tool result.
// Type is one of trend, achievement, warning or suggestion.
type Insight struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SuggestedAction points the assistant at a follow-up tool call
type SuggestedAction struct {
	Tool        string `json:"tool"`
	Description string `json:"description"`
	Priority    string `json:"priority"` // high, medium or low
}

// InsightGenerator turns computed statistics into insights
type InsightGenerator struct{}

// NewInsightGenerator returns an InsightGenerator
func NewInsightGenerator() *InsightGenerator {
	return &InsightGenerator{}
}

// GenerateWeekInsights describes the shape of one week of training
func (g *InsightGenerator) GenerateWeekInsights(summary stats.Summary) []Insight {
	var insights []Insight

	if summary.ActivityCount == 0 {
		return append(insights, Insight{
			Type:    "suggestion",
			Message: fmt.Sprintf("No activities logged for %s", summary.Week),
		})
	}

	var (
		topSport activity.SportType
		topKm    float64
	)
	for _, sd := range summary.SportDistances {
		if sd.DistanceKm > topKm {
			topSport, topKm = sd.Sport, sd.DistanceKm
		}
	}
	if topSport != "" && summary.TotalDistanceKm > 0 {
		insights = append(insights, Insight{
			Type:    "trend",
			Message: fmt.Sprintf("%s made up %.0f%% of the week's distance (%.2f km)", topSport, topKm/summary.TotalDistanceKm*100, topKm),
		})
	}

	active := 0
	for _, d := range summary.Daily {
		if d.Minutes > 0 {
			active++
		}
	}
	switch {
	case active == 7:
		insights = append(insights, Insight{Type: "warning", Message: "Trained every day this week - plan a rest day"})
	case active >= 4:
		insights = append(insights, Insight{Type: "achievement", Message: fmt.Sprintf("Consistent week: %d active days", active)})
	}

	if summary.Malformed > 0 {
		insights = append(insights, Insight{
			Type:    "warning",
			Message: fmt.Sprintf("%d logged activities have an unreadable date and were left out", summary.Malformed),
		})
	}

	return insights
}

// loadBands classify the current week's distance as a ratio of the average
// of the previous weeks. The first band whose floor the ratio exceeds wins.
var loadBands = []struct {
	floor   float64
	kind    string
	message string
}{
	{1.3, "warning", "This week's distance is %.0f%% over your recent average: schedule an easy day"},
	{1.1, "trend", "This week's distance is %.0f%% over your recent average, a steady build"},
	{0.9, "trend", "This week's distance is in line with your recent average (within %.0f%%)"},
	{0.7, "trend", "This week's distance is %.0f%% under your recent average"},
	{0, "suggestion", "This week's distance is %.0f%% under your recent average: recovery week or time to pick it back up?"},
}

// GenerateTrainingLoadInsights compares the current week with the average of
// the previous ones, by distance (km) and by number of sessions
func (g *InsightGenerator) GenerateTrainingLoadInsights(currentKm, avgKm float64, currentCount int, avgCount float64) []Insight {
	var insights []Insight
	if avgKm <= 0 {
		return insights
	}

	ratio := currentKm / avgKm
	for _, band := range loadBands {
		if ratio > band.floor || band.floor == 0 {
			insights = append(insights, Insight{
				Type:    band.kind,
				Message: fmt.Sprintf(band.message, math.Abs(ratio-1)*100),
			})
			break
		}
	}

	if avgCount <= 0 {
		return insights
	}
	switch sessions := float64(currentCount) / avgCount; {
	case sessions > 1.5:
		insights = append(insights, Insight{
			Type:    "trend",
			Message: fmt.Sprintf("More sessions than usual: %d this week against %.1f on average", currentCount, avgCount),
		})
	case sessions < 0.5 && currentCount > 0:
		insights = append(insights, Insight{
			Type:    "trend",
			Message: fmt.Sprintf("Fewer sessions than usual: %d this week against %.1f on average", currentCount, avgCount),
		})
	}
	return insights
}

// GenerateRecordInsight compares a recent best against the all-time best.
// higherIsBetter is false for paces.
func (g *InsightGenerator) GenerateRecordInsight(sport activity.SportType, category string, recent, best float64, higherIsBetter bool) []Insight {
	if recent <= 0 || best <= 0 {
		return nil
	}
	if recent == best {
		return []Insight{{
			Type:    "achievement",
			Message: fmt.Sprintf("Your %s %s record was set recently", sport, category),
		}}
	}

	gap := math.Abs(recent-best) / best * 100
	if !higherIsBetter {
		gap = math.Abs(best-recent) / recent * 100
	}
	if gap <= 5 {
		return []Insight{{
			Type:    "trend",
			Message: fmt.Sprintf("Within %.0f%% of your %s %s record", gap, sport, category),
		}}
	}
	return nil
}

var nextActions = map[string][]SuggestedAction{
	"activities": {
		{Tool: "get_week_summary", Description: "Get the totals of the week", Priority: "medium"},
		{Tool: "get_personal_records", Description: "Compare with your all-time bests", Priority: "low"},
	},
	"week_summary": {
		{Tool: "check_training_load", Description: "Compare this week with the previous ones", Priority: "high"},
		{Tool: "recommend_distance", Description: "Plan the distance of the next session", Priority: "medium"},
	},
	"logged": {
		{Tool: "get_week_summary", Description: "See how the session fits into the week", Priority: "medium"},
		{Tool: "recommend_distance", Description: "Get the target for the next session", Priority: "low"},
	},
	"deleted": {
		{Tool: "find_activities", Description: "Check what is left in the log", Priority: "medium"},
		{Tool: "get_week_summary", Description: "See the corrected week totals", Priority: "low"},
	},
	"training_load": {
		{Tool: "recommend_distance", Description: "Adjust the next session to the load", Priority: "high"},
		{Tool: "get_week_summary", Description: "Drill into a single week", Priority: "medium"},
	},
	"records": {
		{Tool: "find_activities", Description: "Find the sessions behind your records", Priority: "medium"},
		{Tool: "check_training_load", Description: "See if your volume supports new records", Priority: "low"},
	},
}

// SuggestNextActions returns the follow-up tool calls for a result context.
// Unknown contexts get an empty list.
func SuggestNextActions(context string) []SuggestedAction {
	suggestions := make([]SuggestedAction, 0, len(nextActions[context]))
	return append(suggestions, nextActions[context]...)
}
