package server

import (
	"context"
	"fmt"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerPrompts registers all MCP prompts for the server
func (s *Server) registerPrompts() {
	logging.Debug("Registering MCP prompts")

	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "weekly_review",
		Description: "Generate a weekly training review with totals per sport and a plan for the coming week",
		Arguments: []*mcp.PromptArgument{
			{
				Name:        "week",
				Description: "Which week to review: 'current', 'last', or ISO format 'YYYY-Www' (e.g., '2024-W03')",
				Required:    false,
			},
			{
				Name:        "user",
				Description: "Whose training to review. Leave empty for the configured user.",
				Required:    false,
			},
		},
	}, s.weeklyReviewPrompt)

	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "next_session",
		Description: "Plan the next session of a sport from the recommended distance and the recent load",
		Arguments: []*mcp.PromptArgument{
			{
				Name:        "sport",
				Description: "Sport of the next session: running, cycling or swimming",
				Required:    true,
			},
			{
				Name:        "user",
				Description: "Whose session to plan. Leave empty for the configured user.",
				Required:    false,
			},
		},
	}, s.nextSessionPrompt)

	logging.Debug("MCP prompts registered", "count", 2)
}

// weeklyReviewPrompt generates a prompt for a weekly training review
func (s *Server) weeklyReviewPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	week := "current"
	userParam := ""
	if req.Params.Arguments != nil {
		if w, ok := req.Params.Arguments["week"]; ok && w != "" {
			week = w
		}
		if u, ok := req.Params.Arguments["user"]; ok && u != "" {
			userParam = fmt.Sprintf(`user="%s"`, u)
		}
	}
	weekParams := fmt.Sprintf(`week="%s"`, week)
	if userParam != "" {
		weekParams += ", " + userParam
	}

	logging.Info("MCP prompt requested", "prompt", "weekly_review", "week", week)

	promptText := fmt.Sprintf(`Please review my %s week's training.

Use the following tools to gather data:
1. **get_week_summary**%s to get the weekly totals and the per-day breakdown
2. **check_training_load**%s to compare the week with the previous ones
3. **get_personal_records**%s to spot any new bests

Then provide:
- **Summary**: Sessions, total distance and total time (as HHh MMmin SSs), per sport
- **Pace and Speed**: Average pace for running (min/km) and swimming (min/100m), speed for cycling (km/h)
- **Distribution**: Which days I trained and how the load was spread
- **Recovery Check**: Signs of overreaching or of too little training
- **Next Week**: Suggested sessions, using **recommend_distance** for each sport I practice

Please be specific with numbers and use the actual data from the tools.`, week, wrapParam(weekParams), wrapParam(userParam), wrapParam(userParam))

	return &mcp.GetPromptResult{
		Description: "Weekly training review prompt",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText},
			},
		},
	}, nil
}

// nextSessionPrompt generates a prompt for planning the next session
func (s *Server) nextSessionPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	raw, user := "", ""
	if req.Params.Arguments != nil {
		raw = req.Params.Arguments["sport"]
		user = req.Params.Arguments["user"]
	}
	sport, err := activity.ParseSportType(raw)
	if err != nil {
		return nil, NewInvalidInputErrorWithDetails("unknown sport", raw)
	}
	params := fmt.Sprintf(`sport="%s"`, sport)
	if user != "" {
		params += fmt.Sprintf(`, user="%s"`, user)
	}

	logging.Info("MCP prompt requested", "prompt", "next_session", "sport", sport)

	promptText := fmt.Sprintf(`Please plan my next %[1]s session.

Use the following tools to gather data:
1. **recommend_distance** with %[3]s to get the target distance and the trend behind it
2. **find_activities** with %[3]s, limit=5 to see my latest sessions
3. **check_training_load** with %[3]s to check my recent volume

Then provide:
- **Target**: The recommended distance and why (trend over my last sessions)
- **Pacing**: A realistic %[2]s target based on my recent sessions
- **Adjustments**: Whether to shorten or lengthen the session given my current load
- **Structure**: Warm-up, main set and cool-down

Keep it short and practical.`, sport, sport.Unit(), params)

	return &mcp.GetPromptResult{
		Description: "Next session planning prompt",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText},
			},
		},
	}, nil
}

// wrapParam adds " with " prefix if param is not empty
func wrapParam(param string) string {
	if param == "" {
		return ""
	}
	return " with " + param
}
