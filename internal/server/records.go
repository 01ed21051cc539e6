package server

import (
	"context"
	"strconv"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const recentRecordWindow = 30 * 24 * time.Hour

var recordCategories = []string{"fastest", "longest_distance", "longest_duration"}

// Input types

// GetPersonalRecordsInput - input for retrieving personal records
type GetPersonalRecordsInput struct {
	Sport      string   `json:"sport,omitempty" jsonschema:"Filter records to one sport. Valid values: running, cycling, swimming. Leave empty for the records of every sport."`
	Categories []string `json:"categories,omitempty" jsonschema:"Which record categories to include. Valid values: 'fastest' (best pace or speed), 'longest_distance' (furthest), 'longest_duration' (most time). Omit for all categories."`
	User       string   `json:"user,omitempty" jsonschema:"User whose records are returned. Default: the configured user."`
}

// Output types

type GetPersonalRecordsOutput struct {
	Sport            string            `json:"sport,omitempty"`
	Records          []PersonalRecord  `json:"records"`
	Summary          string            `json:"summary"`
	Insights         []Insight         `json:"insights,omitempty"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
}

type PersonalRecord struct {
	Sport        string          `json:"sport"`
	Category     string          `json:"category"`
	Activity     ActivitySummary `json:"activity"`
	RecordValue  string          `json:"record_value"`
	RecordMetric string          `json:"record_metric"`
}

// registerRecordsTools registers the personal records tool
func (s *Server) registerRecordsTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_personal_records",
		Description: `Get personal bests per sport: fastest pace or speed, longest distance and longest duration.

Use when:
- User asks "What are my PRs?" or "What's my longest ride?"
- User wants to see their all-time best performances

Parameters:
- sport (string): running, cycling or swimming. Leave empty for every sport.
- categories (array): "fastest", "longest_distance", "longest_duration". Omit for all categories.
- user (string): Whose records to return. Default: the configured user.

Returns: One record per sport and category with the activity that holds it, plus insights when a recent session came close to a record.

Example: {"sport": "running"} or {"categories": ["longest_distance"]}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Get Personal Records",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("get_personal_records", s.getPersonalRecords))
}

// getPersonalRecords finds the best activity of each sport and category
func (s *Server) getPersonalRecords(ctx context.Context, req *mcp.CallToolRequest, input GetPersonalRecordsInput) (*mcp.CallToolResult, GetPersonalRecordsOutput, error) {
	sports := activity.KnownSports
	if input.Sport != "" {
		sport, err := activity.ParseSportType(input.Sport)
		if err != nil {
			return nil, GetPersonalRecordsOutput{}, NewInvalidInputErrorWithDetails("unknown sport", input.Sport)
		}
		sports = []activity.SportType{sport}
	}

	categories := input.Categories
	if len(categories) == 0 {
		categories = recordCategories
	}
	for _, c := range categories {
		if !isRecordCategory(c) {
			return nil, GetPersonalRecordsOutput{}, NewInvalidInputErrorWithDetails("unknown record category", c)
		}
	}

	activities, err := s.listActivities(ctx, input.User)
	if err != nil {
		return nil, GetPersonalRecordsOutput{}, err
	}

	output := GetPersonalRecordsOutput{
		Sport:   input.Sport,
		Records: make([]PersonalRecord, 0),
	}
	generator := NewInsightGenerator()
	recentSince := s.opts.Now().Add(-recentRecordWindow)

	for _, sport := range sports {
		for _, category := range categories {
			best, ok := bestActivity(activities, sport, category, time.Time{})
			if !ok {
				continue
			}
			value := recordValue(best, category)
			output.Records = append(output.Records, PersonalRecord{
				Sport:        string(sport),
				Category:     category,
				Activity:     convertActivity(best),
				RecordValue:  formatRecordValue(sport, category, value),
				RecordMetric: recordMetric(sport, category),
			})

			if recent, ok := bestActivity(activities, sport, category, recentSince); ok {
				higherIsBetter := !(category == "fastest" && sport != activity.Cycling)
				output.Insights = append(output.Insights,
					generator.GenerateRecordInsight(sport, category, recordValue(recent, category), value, higherIsBetter)...)
			}
		}
	}

	output.Summary = generateRecordsSummary(output.Records, input.Sport)
	output.SuggestedActions = SuggestNextActions("records")
	return nil, output, nil
}

// bestActivity returns the record holder of sport for category among the
// activities dated on or after since; a zero since considers every activity.
func bestActivity(activities []activity.Activity, sport activity.SportType, category string, since time.Time) (activity.Activity, bool) {
	var (
		best  activity.Activity
		value float64
		found bool
	)
	lowerIsBetter := category == "fastest" && sport != activity.Cycling

	for _, a := range activities {
		if got, ok := a.Sport.Normalize(); !ok || got != sport {
			continue
		}
		if !since.IsZero() {
			day, ok := a.Date.Parse()
			if !ok || day.Before(since) {
				continue
			}
		}
		v := recordValue(a, category)
		if v <= 0 {
			continue
		}
		if !found || (lowerIsBetter && v < value) || (!lowerIsBetter && v > value) {
			best, value, found = a, v, true
		}
	}
	return best, found
}

func recordValue(a activity.Activity, category string) float64 {
	switch category {
	case "fastest":
		return activity.Speed(a)
	case "longest_distance":
		return a.SafeDistance()
	case "longest_duration":
		return a.SafeMinutes()
	}
	return 0
}

func formatRecordValue(sport activity.SportType, category string, v float64) string {
	switch category {
	case "fastest":
		return formatSpeed(sport, v)
	case "longest_distance":
		return formatDistance(v)
	default:
		return stats.FormatDuration(v)
	}
}

func recordMetric(sport activity.SportType, category string) string {
	switch category {
	case "fastest":
		return sport.Unit()
	case "longest_distance":
		return "meters"
	default:
		return "duration"
	}
}

func isRecordCategory(c string) bool {
	for _, known := range recordCategories {
		if c == known {
			return true
		}
	}
	return false
}

// generateRecordsSummary creates a one line summary of the records
func generateRecordsSummary(records []PersonalRecord, sport string) string {
	if len(records) == 0 {
		return "No personal records found"
	}

	scope := "across all sports"
	if sport != "" {
		scope = "for " + sport
	}

	return "Found " + strconv.Itoa(len(records)) + " personal records " + scope
}
