package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriCurrentWeek    = "sportlog://summary/week/current"
	uriLatestActivity = "sportlog://activities/latest"
	uriActivityPrefix = "sportlog://activities/"
)

// registerResources registers all MCP resources for the server
func (s *Server) registerResources() {
	logging.Debug("Registering MCP resources")

	s.mcp.AddResource(&mcp.Resource{
		URI:         uriCurrentWeek,
		Name:        "current_week_summary",
		Description: "Training summary of the current week for the configured user: totals, per-sport distance and pace, per-day minutes",
		MIMEType:    "application/json",
	}, s.readCurrentWeekSummary)

	s.mcp.AddResource(&mcp.Resource{
		URI:         uriLatestActivity,
		Name:        "latest_activity",
		Description: "The most recent activity of the configured user",
		MIMEType:    "application/json",
	}, s.readLatestActivity)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriActivityPrefix + "{id}",
		Name:        "activity_by_id",
		Description: "Fetch a specific activity by its id",
		MIMEType:    "application/json",
	}, s.readActivityByID)

	logging.Debug("MCP resources registered", "count", 3)
}

// readCurrentWeekSummary returns the current week's training summary
func (s *Server) readCurrentWeekSummary(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logging.Info("MCP resource read", "resource", "current_week_summary")

	activities, err := s.listActivities(ctx, "")
	if err != nil {
		logging.Error("readCurrentWeekSummary failed", "error", err)
		return nil, err
	}

	return jsonResource(uriCurrentWeek, buildWeekSummary(activities, s.opts.Now(), s.opts.Locale))
}

// readLatestActivity returns the most recent activity
func (s *Server) readLatestActivity(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logging.Info("MCP resource read", "resource", "latest_activity")

	activities, err := s.listActivities(ctx, "")
	if err != nil {
		logging.Error("readLatestActivity failed", "error", err)
		return nil, err
	}
	if len(activities) == 0 {
		return textResource(uriLatestActivity, `{"error": "No activities found"}`), nil
	}

	// listed newest first
	return jsonResource(uriLatestActivity, convertActivity(activities[0]))
}

// readActivityByID returns a specific activity by its id
func (s *Server) readActivityByID(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, uriActivityPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, NewInvalidInputErrorWithDetails("invalid activity URI format", uri)
	}

	logging.Info("MCP resource read", "resource", "activity_by_id", "id", id)

	a, err := s.store.GetActivity(ctx, id)
	if err != nil {
		if toToolError(err).Code == ErrNotFound {
			return textResource(uri, fmt.Sprintf(`{"error": "Activity %s not found"}`, id)), nil
		}
		logging.Error("readActivityByID failed", "error", err)
		return nil, NewDatabaseErrorWithContext("query", err)
	}

	return jsonResource(uri, convertActivity(a))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, NewInternalErrorWithCause("failed to marshal resource", err)
	}
	return textResource(uri, string(jsonData)), nil
}

func textResource(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     text,
			},
		},
	}
}
