package server

import (
	"context"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/metrics"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// instrument wraps a tool handler with call logging, Prometheus counters
// and the translation of lower layer errors into ToolErrors.
func instrument[In, Out any](tool string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		logging.Info("MCP tool call", "tool", tool)
		if logging.IsVerbose() {
			logging.Debug("MCP request params", "tool", tool, "input", logging.ToJSON(input))
		}

		result, output, err := h(ctx, req, input)
		elapsed := time.Since(start)
		metrics.RecordToolCall(tool, outcome(err), elapsed)

		if err != nil {
			te := toToolError(err)
			if te.Code == ErrInvalidInput || te.Code == ErrNotFound {
				logging.Info("MCP tool rejected", "tool", tool, "code", te.Code, "error", te.Message, "details", te.Details)
			} else {
				logging.Error("MCP tool failed", "tool", tool, "code", te.Code, "error", te.Error())
			}
			var zero Out
			return nil, zero, te
		}

		logging.Info("MCP tool completed", "tool", tool, "elapsed", elapsed.Round(time.Microsecond).String())
		if logging.IsVerbose() {
			logging.Debug("MCP response", "tool", tool, "output", logging.ToJSON(output))
		}
		return result, output, nil
	}
}

// recordExclusions publishes the records the last weekly summary had to
// leave out. Malformed dates are counted over the whole history.
func recordExclusions(summary stats.Summary, inWeek []activity.Activity) {
	metrics.SetExcluded(metrics.ReasonMalformedDate, summary.Malformed)

	// unknown sports still count toward the totals but never toward a speed
	unknown := 0
	for _, a := range inWeek {
		if _, ok := a.Sport.Normalize(); !ok {
			unknown++
		}
	}
	metrics.SetExcluded(metrics.ReasonUnknownSport, unknown)

	if summary.Malformed > 0 || unknown > 0 {
		logging.Debug("activities excluded from summary", "week", summary.Week, "malformed_date", summary.Malformed, "unknown_sport", unknown)
	}
}
