package server

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "sportlog"
	serverVersion = "1.0.0"
)

// ptr returns a pointer to the given value - useful for optional fields in structs
func ptr[T any](v T) *T {
	return &v
}

// Store is the activity persistence the tools read and write
type Store interface {
	CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error)
	GetActivity(ctx context.Context, id string) (activity.Activity, error)
	ListActivities(ctx context.Context, userID string) ([]activity.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	CountActivities(ctx context.Context, userID string) (int, error)
}

// Options holds the defaults applied when a tool call leaves a field empty
type Options struct {
	User     string
	Locale   string
	Lookback int
	// Now is the clock used for "current week"; defaults to time.Now
	Now func() time.Time
}

// Server wraps the MCP server and the activity store
type Server struct {
	mcp   *mcp.Server
	store Store
	opts  Options
}

// MCPServer returns the underlying MCP server (for use with HTTP/SSE transport)
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// New creates a new MCP server exposing the activity log
func New(st Store, opts Options) *Server {
	logging.Info("MCP server initializing", "name", serverName, "version", serverVersion)

	if opts.User == "" {
		opts.User = "default"
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Lookback <= 0 {
		opts.Lookback = stats.DefaultLookback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		store: st,
		opts:  opts,
	}

	logging.Debug("Registering MCP tools")
	s.registerTools()
	s.registerRecordsTools()
	s.registerProgressTools()
	s.registerResources()
	s.registerPrompts()

	logging.Info("MCP server initialized", "tools_registered", 7, "resources_registered", 3, "prompts_registered", 2, "user", opts.User)
	return s
}

// Run starts the MCP server over stdio transport
func (s *Server) Run(ctx context.Context) error {
	logging.Info("MCP server starting")
	defer logging.Info("MCP server stopped")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_week_summary",
		Description: `Get the training summary of one calendar week (Monday to Sunday).

Use when:
- User asks "How was my week?" or "This week's training"
- User wants totals per sport or the average pace/speed of a week
- User needs the per-day training time, e.g. for a chart

Parameters:
- date (string): Any day of the week to summarize, YYYY-MM-DD. Overrides week.
- week (string): "current", "last", or ISO week "YYYY-Www" (e.g., "2024-W03"). Default: "current".
- locale (string): Language of the day labels, "en" or "fr".
- user (string): Whose activities to summarize. Default: the configured user.

Returns: Week label, date range, activity count, total distance (km), total duration (HHh MMmin SSs), distance and average pace/speed per sport, per-day minutes and the week's activities.

Example: {"week": "last"} or {"date": "2024-01-17", "locale": "fr"}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Get Week Summary",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("get_week_summary", s.getWeekSummary))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "recommend_distance",
		Description: `Recommend the distance of the next session of a sport from recent history.

Use when:
- User asks "How far should I run next?" or "What distance for my next swim?"
- User wants a progressive target based on their trend

Parameters:
- sport (string, required): running, cycling or swimming.
- lookback (integer): How many recent sessions to consider. Default: 10.
- user (string): Whose history to use. Default: the configured user.

Returns: The recommended distance in meters (rounded to 500 m for running, 1 km for cycling, 50 m for swimming), the number of sessions it is based on, their average and the trend that drove the progression.

Example: {"sport": "running"} or {"sport": "swimming", "lookback": 5}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Recommend Distance",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("recommend_distance", s.recommendDistance))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "log_activity",
		Description: `Record a new sport session.

Use when:
- User says "I ran 10k this morning in 55 minutes" or "Log a 1500m swim"

Parameters:
- sport (string, required): running, cycling or swimming.
- date (string): Day of the session, YYYY-MM-DD. Default: today.
- distance_meters (number): Distance in meters.
- distance_km (number): Distance in kilometers; use instead of distance_meters.
- duration_minutes (number): Duration in minutes.
- title (string): Short name of the session.
- description (string): Free-form notes.
- trace (string): Reference to a GPS track; stored as-is.
- user (string): Who did the session. Default: the configured user.

Returns: The stored activity with its id.

Example: {"sport": "running", "distance_km": 10, "duration_minutes": 55, "title": "Morning run"}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Log Activity",
			ReadOnlyHint:    false,
			IdempotentHint:  false,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("log_activity", s.logActivity))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "find_activities",
		Description: `Search logged activities, newest first.

Use when:
- User asks "Show me my latest swims" or "What did I do in March?"
- User needs the details of an activity by id

Parameters:
- id (string): Get a specific activity by id. Overrides the other filters.
- sport (string): running, cycling or swimming.
- start_date (string): Include activities on or after this day, YYYY-MM-DD.
- end_date (string): Include activities on or before this day, YYYY-MM-DD.
- limit (integer): Number of activities to return. Default: 20, Max: 100.
- user (string): Whose activities to search. Default: the configured user.

Returns: Matching activities with id, title, sport, date, distance, duration and pace/speed.

Example: {"sport": "cycling", "start_date": "2024-03-01", "end_date": "2024-03-31"}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Find Activities",
			ReadOnlyHint:    true,
			IdempotentHint:  true,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(false),
		},
	}, instrument("find_activities", s.findActivities))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "delete_activity",
		Description: `Permanently delete a logged activity.

Use when:
- User says "Delete that run, I logged it twice" or "Remove activity <id>"
- Only after confirming which activity with find_activities

Parameters:
- id (string, required): Id of the activity to delete.
- user (string): Owner of the activity. Default: the configured user.

Returns: The deleted activity and the number of activities the user has left.

Example: {"id": "3f6c1a2e-8d4b-4c55-9a0e-1b2c3d4e5f60"}`,
		Annotations: &mcp.ToolAnnotations{
			Title:           "Delete Activity",
			ReadOnlyHint:    false,
			IdempotentHint:  false,
			OpenWorldHint:   ptr(false),
			DestructiveHint: ptr(true),
		},
	}, instrument("delete_activity", s.deleteActivity))
}

// Tool input/output types

// Default and max limits for activity queries
const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// WeekSummaryInput - input for retrieving weekly training summary
type WeekSummaryInput struct {
	Date   string `json:"date,omitempty" jsonschema:"Any day of the week to summarize. Format: YYYY-MM-DD. Overrides week."`
	Week   string `json:"week,omitempty" jsonschema:"Which week to summarize. Valid values: 'current' (this week), 'last' (previous week), or ISO week format 'YYYY-Www' (e.g., '2024-W03'). Default: current."`
	Locale string `json:"locale,omitempty" jsonschema:"Language of the day labels. Valid values: en, fr. Default: the server locale."`
	User   string `json:"user,omitempty" jsonschema:"User whose activities are summarized. Default: the configured user."`
}

type WeekSummaryOutput struct {
	Week             string             `json:"week"`
	DateRange        string             `json:"date_range"`
	ActivityCount    int                `json:"activity_count"`
	TotalDistanceKm  float64            `json:"total_distance_km"`
	TotalDistance    string             `json:"total_distance"`
	TotalMinutes     float64            `json:"total_minutes"`
	TotalDuration    string             `json:"total_duration"`
	Sports           []SportBreakdown   `json:"sports"`
	Daily            []DayBreakdown     `json:"daily"`
	Activities       []ActivitySummary  `json:"activities"`
	Excluded         int                `json:"excluded,omitempty"`
	Insights         []Insight          `json:"insights,omitempty"`
	SuggestedActions []SuggestedAction  `json:"suggested_actions,omitempty"`
	DistanceBySport  map[string]float64 `json:"distance_by_sport_km"`
	SpeedBySport     map[string]float64 `json:"speed_by_sport"`
}

// SportBreakdown is the weekly volume of one sport
type SportBreakdown struct {
	Sport      string  `json:"sport"`
	DistanceKm float64 `json:"distance_km"`
	Speed      float64 `json:"speed,omitempty"`
	SpeedUnit  string  `json:"speed_unit,omitempty"`
	Pace       string  `json:"pace,omitempty"`
}

// DayBreakdown is the training time of one day
type DayBreakdown struct {
	Date    string  `json:"date"`
	Label   string  `json:"label"`
	Minutes float64 `json:"minutes"`
}

// RecommendDistanceInput - input for the next session recommendation
type RecommendDistanceInput struct {
	Sport    string `json:"sport" jsonschema:"Sport of the next session. Valid values: running, cycling, swimming. Required."`
	Lookback int    `json:"lookback,omitempty" jsonschema:"Number of recent sessions to base the recommendation on. Default: 10."`
	User     string `json:"user,omitempty" jsonschema:"User whose history is used. Default: the configured user."`
}

type RecommendDistanceOutput struct {
	Sport             string  `json:"sport"`
	RecommendedMeters float64 `json:"recommended_distance_meters"`
	Recommended       string  `json:"recommended_distance"`
	BasedOn           int     `json:"based_on_sessions"`
	AverageMeters     float64 `json:"average_meters,omitempty"`
	Trend             float64 `json:"trend"`
	Coefficient       float64 `json:"coefficient"`
	Explanation       string  `json:"explanation"`
}

// LogActivityInput - input for recording a session
type LogActivityInput struct {
	Sport           string  `json:"sport" jsonschema:"Sport of the session. Valid values: running, cycling, swimming. Required."`
	Date            string  `json:"date,omitempty" jsonschema:"Day of the session. Format: YYYY-MM-DD. Default: today."`
	DistanceMeters  float64 `json:"distance_meters,omitempty" jsonschema:"Distance in meters."`
	DistanceKm      float64 `json:"distance_km,omitempty" jsonschema:"Distance in kilometers. Use instead of distance_meters."`
	DurationMinutes float64 `json:"duration_minutes,omitempty" jsonschema:"Duration of the session in minutes."`
	Title           string  `json:"title,omitempty" jsonschema:"Short name of the session."`
	Description     string  `json:"description,omitempty" jsonschema:"Free-form notes."`
	Trace           string  `json:"trace,omitempty" jsonschema:"Reference to a GPS track. Stored as-is, never interpreted."`
	User            string  `json:"user,omitempty" jsonschema:"User who did the session. Default: the configured user."`
}

type LogActivityOutput struct {
	Activity         ActivitySummary   `json:"activity"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
}

// FindActivitiesInput - input for activity search
type FindActivitiesInput struct {
	ID        string `json:"id,omitempty" jsonschema:"Get a specific activity by its id. When set, overrides other parameters."`
	Sport     string `json:"sport,omitempty" jsonschema:"Filter by sport. Valid values: running, cycling, swimming."`
	StartDate string `json:"start_date,omitempty" jsonschema:"Include activities on or after this date. Format: YYYY-MM-DD (e.g., 2024-01-15)."`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Include activities on or before this date. Format: YYYY-MM-DD (e.g., 2024-12-31)."`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of activities to return. Default: 20, Maximum: 100."`
	User      string `json:"user,omitempty" jsonschema:"User whose activities are searched. Default: the configured user."`
}

type FindActivitiesOutput struct {
	Activities       []ActivitySummary `json:"activities"`
	TotalMatching    int               `json:"total_matching"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
}

// DeleteActivityInput - input for removing a session
type DeleteActivityInput struct {
	ID   string `json:"id" jsonschema:"Id of the activity to delete. Required."`
	User string `json:"user,omitempty" jsonschema:"Owner of the activity. Default: the configured user."`
}

type DeleteActivityOutput struct {
	Deleted             ActivitySummary   `json:"deleted"`
	RemainingActivities int               `json:"remaining_activities"`
	SuggestedActions    []SuggestedAction `json:"suggested_actions,omitempty"`
}

type ActivitySummary struct {
	ID             string  `json:"id"`
	Title          string  `json:"title,omitempty"`
	Sport          string  `json:"sport"`
	Date           string  `json:"date,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
	Distance       string  `json:"distance,omitempty"`
	Duration       string  `json:"duration,omitempty"`
	Pace           string  `json:"pace,omitempty"`
	Description    string  `json:"description,omitempty"`
	Trace          string  `json:"trace,omitempty"`
}

// Tool handlers

func (s *Server) getWeekSummary(ctx context.Context, req *mcp.CallToolRequest, input WeekSummaryInput) (*mcp.CallToolResult, WeekSummaryOutput, error) {
	ref, err := s.resolveReference(input.Date, input.Week)
	if err != nil {
		return nil, WeekSummaryOutput{}, err
	}
	locale := input.Locale
	if locale == "" {
		locale = s.opts.Locale
	}

	activities, err := s.listActivities(ctx, input.User)
	if err != nil {
		return nil, WeekSummaryOutput{}, err
	}

	return nil, buildWeekSummary(activities, ref, locale), nil
}

// buildWeekSummary is shared by the tool and the current week resource.
// ref is always a valid date here so the summary cannot fail.
func buildWeekSummary(activities []activity.Activity, ref time.Time, locale string) WeekSummaryOutput {
	summary, err := stats.Summarize(activities, ref, stats.WithLocale(locale))
	if err != nil {
		logging.Warn("week summary failed", "error", err)
		return WeekSummaryOutput{}
	}

	var inWeek []activity.Activity
	for _, a := range activities {
		if stats.IsWithin(a.Date, summary.Window) {
			inWeek = append(inWeek, a)
		}
	}
	recordExclusions(summary, inWeek)

	output := WeekSummaryOutput{
		Week:            summary.Week,
		DateRange:       formatDateRange(summary.Window),
		ActivityCount:   summary.ActivityCount,
		TotalDistanceKm: summary.TotalDistanceKm,
		TotalDistance:   fmt.Sprintf("%.2f km", summary.TotalDistanceKm),
		TotalMinutes:    summary.TotalMinutes,
		TotalDuration:   summary.TotalDuration,
		Sports:          []SportBreakdown{},
		Daily:           make([]DayBreakdown, 0, len(summary.Daily)),
		Activities:      convertActivities(inWeek),
		Excluded:        summary.Malformed,
		DistanceBySport: make(map[string]float64, len(summary.DistanceBySport)),
		SpeedBySport:    make(map[string]float64, len(summary.SpeedBySport)),
	}

	for sport, km := range summary.DistanceBySport {
		output.DistanceBySport[string(sport)] = km
	}
	for sport, v := range summary.SpeedBySport {
		output.SpeedBySport[string(sport)] = v
	}
	for _, sd := range summary.SportDistances {
		b := SportBreakdown{Sport: string(sd.Sport), DistanceKm: sd.DistanceKm}
		if v, ok := summary.SpeedBySport[sd.Sport]; ok {
			b.Speed = v
			b.SpeedUnit = sd.Sport.Unit()
			b.Pace = formatSpeed(sd.Sport, v)
		}
		output.Sports = append(output.Sports, b)
	}
	for _, d := range summary.Daily {
		output.Daily = append(output.Daily, DayBreakdown(d))
	}

	output.Insights = NewInsightGenerator().GenerateWeekInsights(summary)
	output.SuggestedActions = SuggestNextActions("week_summary")
	return output
}

func (s *Server) recommendDistance(ctx context.Context, req *mcp.CallToolRequest, input RecommendDistanceInput) (*mcp.CallToolResult, RecommendDistanceOutput, error) {
	if strings.TrimSpace(input.Sport) == "" {
		return nil, RecommendDistanceOutput{}, NewInvalidInputError("sport is required")
	}
	sport, err := activity.ParseSportType(input.Sport)
	if err != nil {
		return nil, RecommendDistanceOutput{}, NewInvalidInputErrorWithDetails("unknown sport", input.Sport)
	}
	lookback := input.Lookback
	if lookback <= 0 {
		lookback = s.opts.Lookback
	}

	activities, err := s.listActivities(ctx, input.User)
	if err != nil {
		return nil, RecommendDistanceOutput{}, err
	}

	rec, err := stats.Recommend(activities, sport, lookback)
	if err != nil {
		return nil, RecommendDistanceOutput{}, err
	}

	return nil, RecommendDistanceOutput{
		Sport:             string(rec.Sport),
		RecommendedMeters: rec.DistanceMeters,
		Recommended:       formatDistance(rec.DistanceMeters),
		BasedOn:           rec.BasedOn,
		AverageMeters:     math.Round(rec.AverageMeters),
		Trend:             math.Round(rec.Trend*1000) / 1000,
		Coefficient:       rec.Coefficient,
		Explanation:       explainRecommendation(rec),
	}, nil
}

func (s *Server) logActivity(ctx context.Context, req *mcp.CallToolRequest, input LogActivityInput) (*mcp.CallToolResult, LogActivityOutput, error) {
	if strings.TrimSpace(input.Sport) == "" {
		return nil, LogActivityOutput{}, NewInvalidInputError("sport is required")
	}
	if input.DistanceMeters != 0 && input.DistanceKm != 0 {
		return nil, LogActivityOutput{}, NewInvalidInputError("set either distance_meters or distance_km, not both")
	}
	if input.DurationMinutes < 0 || math.IsNaN(input.DurationMinutes) {
		return nil, LogActivityOutput{}, NewInvalidInputErrorWithDetails("duration must not be negative", fmt.Sprint(input.DurationMinutes))
	}

	day := activity.DayOf(s.opts.Now())
	if input.Date != "" {
		if _, ok := activity.ParseDay(input.Date); !ok {
			return nil, LogActivityOutput{}, NewInvalidInputErrorWithDetails("invalid date, expected YYYY-MM-DD", input.Date)
		}
		day = activity.DayFromString(input.Date)
	}

	meters := input.DistanceMeters
	if input.DistanceKm != 0 {
		meters = input.DistanceKm * 1000
	}

	created, err := s.store.CreateActivity(ctx, activity.Activity{
		UserID:         s.user(input.User),
		Date:           day,
		Sport:          activity.SportType(input.Sport),
		DistanceMeters: meters,
		Duration:       time.Duration(input.DurationMinutes * float64(time.Minute)),
		Title:          input.Title,
		Description:    input.Description,
		Trace:          input.Trace,
	})
	if err != nil {
		if te := toToolError(err); te.Code == ErrInvalidInput {
			return nil, LogActivityOutput{}, te
		}
		return nil, LogActivityOutput{}, NewDatabaseErrorWithContext("insert", err)
	}

	logging.Info("activity logged", "id", created.ID, "user", created.UserID, "sport", created.Sport, "date", created.Date.String())
	return nil, LogActivityOutput{
		Activity:         convertActivity(created),
		SuggestedActions: SuggestNextActions("logged"),
	}, nil
}

func (s *Server) deleteActivity(ctx context.Context, req *mcp.CallToolRequest, input DeleteActivityInput) (*mcp.CallToolResult, DeleteActivityOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, DeleteActivityOutput{}, NewInvalidInputError("id is required")
	}
	user := s.user(input.User)

	a, err := s.store.GetActivity(ctx, id)
	if err != nil {
		if te := toToolError(err); te.Code == ErrNotFound {
			return nil, DeleteActivityOutput{}, NewNotFoundErrorWithID("activity", id)
		}
		return nil, DeleteActivityOutput{}, NewDatabaseErrorWithContext("query", err)
	}
	// someone else's activity looks the same as a missing one
	if a.UserID != user {
		return nil, DeleteActivityOutput{}, NewNotFoundErrorWithID("activity", id)
	}

	if err := s.store.DeleteActivity(ctx, a.ID); err != nil {
		if te := toToolError(err); te.Code == ErrNotFound {
			return nil, DeleteActivityOutput{}, NewNotFoundErrorWithID("activity", id)
		}
		return nil, DeleteActivityOutput{}, NewDatabaseErrorWithContext("delete", err)
	}

	remaining, err := s.store.CountActivities(ctx, user)
	if err != nil {
		return nil, DeleteActivityOutput{}, NewDatabaseErrorWithContext("count", err)
	}

	logging.Info("activity deleted", "id", a.ID, "user", user, "remaining", remaining)
	return nil, DeleteActivityOutput{
		Deleted:             convertActivity(a),
		RemainingActivities: remaining,
		SuggestedActions:    SuggestNextActions("deleted"),
	}, nil
}

func (s *Server) findActivities(ctx context.Context, req *mcp.CallToolRequest, input FindActivitiesInput) (*mcp.CallToolResult, FindActivitiesOutput, error) {
	output := FindActivitiesOutput{
		Activities: []ActivitySummary{},
	}

	if input.ID != "" {
		a, err := s.store.GetActivity(ctx, input.ID)
		if err != nil {
			if te := toToolError(err); te.Code == ErrNotFound {
				return nil, FindActivitiesOutput{}, NewNotFoundErrorWithID("activity", input.ID)
			}
			return nil, FindActivitiesOutput{}, NewDatabaseErrorWithContext("query", err)
		}
		output.Activities = []ActivitySummary{convertActivity(a)}
		output.TotalMatching = 1
		output.SuggestedActions = SuggestNextActions("activities")
		return nil, output, nil
	}

	var sport activity.SportType
	if input.Sport != "" {
		parsed, err := activity.ParseSportType(input.Sport)
		if err != nil {
			return nil, FindActivitiesOutput{}, NewInvalidInputErrorWithDetails("unknown sport", input.Sport)
		}
		sport = parsed
	}

	start, end, err := parseServerDateRange(input.StartDate, input.EndDate)
	if err != nil {
		return nil, FindActivitiesOutput{}, err
	}
	hasDateRange := !start.IsZero() || !end.IsZero()

	activities, err := s.listActivities(ctx, input.User)
	if err != nil {
		return nil, FindActivitiesOutput{}, err
	}

	limit := applyLimit(input.Limit)
	for _, a := range activities {
		if sport != "" {
			if got, ok := a.Sport.Normalize(); !ok || got != sport {
				continue
			}
		}
		if hasDateRange {
			day, ok := a.Date.Parse()
			if !ok || (!start.IsZero() && day.Before(start)) || (!end.IsZero() && day.After(end)) {
				continue
			}
		}
		output.TotalMatching++
		if len(output.Activities) < limit {
			output.Activities = append(output.Activities, convertActivity(a))
		}
	}

	output.SuggestedActions = SuggestNextActions("activities")
	return nil, output, nil
}

func (s *Server) user(u string) string {
	if u = strings.TrimSpace(u); u != "" {
		return u
	}
	return s.opts.User
}

func (s *Server) listActivities(ctx context.Context, user string) ([]activity.Activity, error) {
	activities, err := s.store.ListActivities(ctx, s.user(user))
	if err != nil {
		return nil, NewDatabaseErrorWithContext("query", err)
	}
	return activities, nil
}

// resolveReference turns the date/week selectors of a tool call into a day
// of the requested week
func (s *Server) resolveReference(date, week string) (time.Time, error) {
	if date != "" {
		t, ok := activity.ParseDay(date)
		if !ok {
			return time.Time{}, NewInvalidInputErrorWithDetails("invalid date, expected YYYY-MM-DD", date)
		}
		return t, nil
	}

	now := s.opts.Now()
	switch strings.ToLower(strings.TrimSpace(week)) {
	case "", "current":
		return now, nil
	case "last":
		return now.AddDate(0, 0, -7), nil
	}

	t, err := parseISOWeek(week)
	if err != nil {
		return time.Time{}, NewInvalidInputErrorWithDetails("invalid week, expected current, last or YYYY-Www", week)
	}
	return t, nil
}

// parseISOWeek returns the Monday of an ISO week such as "2024-W03"
func parseISOWeek(s string) (time.Time, error) {
	year, week, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), "-W")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed week %q", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed year in %q: %w", s, err)
	}
	w, err := strconv.Atoi(week)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed week number in %q: %w", s, err)
	}

	// January 4th is always in week 1
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(w-1)*7)

	if gotY, gotW := monday.ISOWeek(); gotY != y || gotW != w {
		return time.Time{}, fmt.Errorf("%q is not a week of %d", s, y)
	}
	return monday, nil
}

// parseServerDateRange parses inclusive YYYY-MM-DD bounds; empty bounds stay zero
func parseServerDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	var start, end time.Time

	if startDate != "" {
		t, ok := activity.ParseDay(startDate)
		if !ok {
			return start, end, NewInvalidInputErrorWithDetails("invalid start_date, expected YYYY-MM-DD", startDate)
		}
		start = t
	}

	if endDate != "" {
		t, ok := activity.ParseDay(endDate)
		if !ok {
			return start, end, NewInvalidInputErrorWithDetails("invalid end_date, expected YYYY-MM-DD", endDate)
		}
		end = t
	}

	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, NewInvalidInputError("end_date is before start_date")
	}
	return start, end, nil
}

func applyLimit(limit int) int {
	if limit <= 0 {
		return defaultActivityLimit
	}
	if limit > maxActivityLimit {
		return maxActivityLimit
	}
	return limit
}

func convertActivities(activities []activity.Activity) []ActivitySummary {
	result := make([]ActivitySummary, len(activities))
	for i, a := range activities {
		result[i] = convertActivity(a)
	}
	return result
}

func convertActivity(a activity.Activity) ActivitySummary {
	summary := ActivitySummary{
		ID:             a.ID,
		Title:          a.Title,
		Sport:          string(a.Sport),
		Date:           a.Date.String(),
		DistanceMeters: a.SafeDistance(),
		Description:    a.Description,
		Trace:          a.Trace,
	}
	if sport, ok := a.Sport.Normalize(); ok {
		summary.Sport = string(sport)
		summary.Pace = formatSpeed(sport, activity.Speed(a))
	}
	if meters := a.SafeDistance(); meters > 0 {
		summary.Distance = formatDistance(meters)
	}
	if minutes := a.SafeMinutes(); minutes > 0 {
		summary.Duration = stats.FormatDuration(minutes)
	}
	return summary
}

// formatDistance converts meters to human-readable format
func formatDistance(meters float64) string {
	km := meters / 1000
	if km >= 1 {
		return fmt.Sprintf("%.2f km", km)
	}
	return fmt.Sprintf("%.0f m", meters)
}

// formatSpeed renders the value computed by activity.Speed for sport:
// paces as minutes:seconds, cycling speed in km/h
func formatSpeed(sport activity.SportType, v float64) string {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	switch sport {
	case activity.Cycling:
		return fmt.Sprintf("%.1f km/h", v)
	case activity.Running, activity.Swimming:
		secs := int(math.Round(v * 60))
		return fmt.Sprintf("%d:%02d %s", secs/60, secs%60, sport.Unit())
	}
	return ""
}

func formatDateRange(w stats.Window) string {
	return fmt.Sprintf("%s to %s", w.Start.Format(activity.DateLayout), w.End.Format(activity.DateLayout))
}

func explainRecommendation(rec stats.Recommendation) string {
	if rec.BasedOn == 0 {
		return fmt.Sprintf("No %s history yet: starting with the default distance of %s.", rec.Sport, formatDistance(rec.DistanceMeters))
	}
	direction := "steady"
	switch {
	case rec.BasedOn < 3:
		direction = "short history"
	case rec.Trend > 0.10:
		direction = "rising"
	case rec.Trend < -0.10:
		direction = "falling"
	}
	return fmt.Sprintf("Average of the last %d %s sessions is %s; %s trend, progression x%.2f.",
		rec.BasedOn, rec.Sport, formatDistance(rec.AverageMeters), direction, rec.Coefficient)
}
