package server

import (
	"context"
	"math"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultLoadWeeks = 4
	maxLoadWeeks     = 26
)

// CheckTrainingLoadInput - input for analyzing training load and volume
type CheckTrainingLoadInput struct {
	Weeks int    `json:"weeks,omitempty" jsonschema:"Number of weeks to analyze, including the current one. Range: 2-26. Default: 4 weeks."`
	Sport string `json:"sport,omitempty" jsonschema:"Filter analysis to one sport. Valid values: running, cycling, swimming. Leave empty to analyze total training load."`
	User  string `json:"user,omitempty" jsonschema:"User whose load is analyzed. Default: the configured user."`
}

type CheckTrainingLoadOutput struct {
	CurrentWeek       WeeklyLoadSummary   `json:"current_week"`
	RecentWeeks       []WeeklyLoadSummary `json:"recent_weeks"`
	AverageWeekly     WeeklyLoadSummary   `json:"average_weekly"`
	LoadStatus        string              `json:"load_status"` // "overreaching", "optimal", "maintaining", "undertraining"
	LoadChangePercent float64             `json:"load_change_percent"`
	Insights          []Insight           `json:"insights,omitempty"`
	SuggestedActions  []SuggestedAction   `json:"suggested_actions,omitempty"`
}

type WeeklyLoadSummary struct {
	Week          string  `json:"week,omitempty"`
	DateRange     string  `json:"date_range,omitempty"`
	ActivityCount float64 `json:"activity_count"`
	DistanceKm    float64 `json:"distance_km"`
	TotalDistance string  `json:"total_distance"`
	TotalDuration string  `json:"total_duration"`
}

// registerProgressTools registers the training load tool
func (s *Server) registerProgressTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "check_training_load",
		Description: `Analyze weekly training volume to detect overtraining or undertraining patterns.

Use when:
- User asks "Am I overtraining?" or "Am I doing too much?"
- User wants to compare this week to their average
- User asks "What's my weekly volume?" or "How consistent is my training?"

Parameters:
- weeks (integer): Number of weeks to analyze, the current one included. Range: 2-26. Default: 4.
- sport (string): running, cycling or swimming. Leave empty for total load.
- user (string): Whose load to analyze. Default: the configured user.

Returns: Current week summary, the previous weeks newest first, the average of the previous weeks, load status (overreaching/optimal/maintaining/undertraining), percentage change from average, and training load insights.

Example: {"weeks": 4, "sport": "running"} or {"weeks": 8}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Check Training Load",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("check_training_load", s.checkTrainingLoad))
}

// checkTrainingLoad compares the current week against the average of the
// weeks before it. Every week is computed with the same summary as
// get_week_summary so the numbers agree between tools.
func (s *Server) checkTrainingLoad(ctx context.Context, req *mcp.CallToolRequest, input CheckTrainingLoadInput) (*mcp.CallToolResult, CheckTrainingLoadOutput, error) {
	weeks := input.Weeks
	if weeks <= 0 {
		weeks = defaultLoadWeeks
	}
	if weeks < 2 {
		weeks = 2
	}
	if weeks > maxLoadWeeks {
		weeks = maxLoadWeeks
	}

	var sport activity.SportType
	if input.Sport != "" {
		parsed, err := activity.ParseSportType(input.Sport)
		if err != nil {
			return nil, CheckTrainingLoadOutput{}, NewInvalidInputErrorWithDetails("unknown sport", input.Sport)
		}
		sport = parsed
	}

	activities, err := s.listActivities(ctx, input.User)
	if err != nil {
		return nil, CheckTrainingLoadOutput{}, err
	}
	if sport != "" {
		activities = filterSport(activities, sport)
	}

	now := s.opts.Now()
	summaries := make([]stats.Summary, 0, weeks)
	for i := 0; i < weeks; i++ {
		summary, err := stats.Summarize(activities, now.AddDate(0, 0, -7*i))
		if err != nil {
			return nil, CheckTrainingLoadOutput{}, err
		}
		summaries = append(summaries, summary)
	}

	current := summaries[0]
	previous := summaries[1:]

	var avgKm, avgMinutes, avgCount float64
	recent := make([]WeeklyLoadSummary, 0, len(previous))
	for _, w := range previous {
		avgKm += w.TotalDistanceKm
		avgMinutes += w.TotalMinutes
		avgCount += float64(w.ActivityCount)
		recent = append(recent, weeklyLoad(w))
	}
	n := float64(len(previous))
	avgKm, avgMinutes, avgCount = avgKm/n, avgMinutes/n, avgCount/n

	loadStatus := "insufficient_data"
	var loadChangePercent float64
	if avgKm > 0 {
		loadChangePercent = math.Round((current.TotalDistanceKm-avgKm)/avgKm*1000) / 10

		switch {
		case loadChangePercent > 30:
			loadStatus = "overreaching"
		case loadChangePercent > 10:
			loadStatus = "optimal"
		case loadChangePercent > -10:
			loadStatus = "maintaining"
		default:
			loadStatus = "undertraining"
		}
	}

	output := CheckTrainingLoadOutput{
		CurrentWeek: weeklyLoad(current),
		RecentWeeks: recent,
		AverageWeekly: WeeklyLoadSummary{
			ActivityCount: math.Round(avgCount*10) / 10,
			DistanceKm:    math.Round(avgKm*100) / 100,
			TotalDistance: formatDistance(avgKm * 1000),
			TotalDuration: stats.FormatDuration(avgMinutes),
		},
		LoadStatus:        loadStatus,
		LoadChangePercent: loadChangePercent,
		Insights: NewInsightGenerator().GenerateTrainingLoadInsights(
			current.TotalDistanceKm, avgKm,
			current.ActivityCount, avgCount,
		),
		SuggestedActions: SuggestNextActions("training_load"),
	}
	return nil, output, nil
}

func weeklyLoad(w stats.Summary) WeeklyLoadSummary {
	return WeeklyLoadSummary{
		Week:          w.Week,
		DateRange:     formatDateRange(w.Window),
		ActivityCount: float64(w.ActivityCount),
		DistanceKm:    w.TotalDistanceKm,
		TotalDistance: formatDistance(w.TotalDistanceKm * 1000),
		TotalDuration: w.TotalDuration,
	}
}

func filterSport(activities []activity.Activity, sport activity.SportType) []activity.Activity {
	var out []activity.Activity
	for _, a := range activities {
		if got, ok := a.Sport.Normalize(); ok && got == sport {
			out = append(out, a)
		}
	}
	return out
}
