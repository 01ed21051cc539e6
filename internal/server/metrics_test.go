package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/metrics"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoInput struct {
	Value string `json:"value"`
}

type echoOutput struct {
	Value string `json:"value"`
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestInstrument(t *testing.T) {
	tests := []struct {
		name        string
		tool        string
		err         error
		wantCode    ErrorCode
		wantOutcome string
	}{
		{name: "success", tool: "instrument_ok", wantOutcome: metrics.OutcomeOK},
		{name: "tool error", tool: "instrument_invalid", err: NewInvalidInputError("bad"), wantCode: ErrInvalidInput, wantOutcome: metrics.OutcomeInvalidInput},
		{name: "not found", tool: "instrument_missing", err: fmt.Errorf("get: %w", store.ErrNotFound), wantCode: ErrNotFound, wantOutcome: metrics.OutcomeInvalidInput},
		{name: "invalid argument", tool: "instrument_argument", err: fmt.Errorf("wrap: %w", activity.ErrInvalidArgument), wantCode: ErrInvalidInput, wantOutcome: metrics.OutcomeInvalidInput},
		{name: "unexpected", tool: "instrument_error", err: errors.New("boom"), wantCode: ErrInternalError, wantOutcome: metrics.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := instrument(tt.tool, func(ctx context.Context, req *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, echoOutput, error) {
				return nil, echoOutput{Value: in.Value}, tt.err
			})

			_, out, err := h(context.Background(), nil, echoInput{Value: "hello"})
			if tt.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out.Value != "hello" {
					t.Errorf("expected output to pass through, got %+v", out)
				}
			} else {
				requireToolError(t, err, tt.wantCode)
				if out.Value != "" {
					t.Errorf("expected a zero output on error, got %+v", out)
				}
			}

			series := fmt.Sprintf(`sportlog_tool_calls_total{outcome="%s",tool="%s"} 1`, tt.wantOutcome, tt.tool)
			if body := scrapeMetrics(t); !strings.Contains(body, series) {
				t.Errorf("expected series %s in metrics output", series)
			}
		})
	}
}

func TestRecordExclusions(t *testing.T) {
	s, _ := newTestServer(
		createTestActivity("ok", "running", "2024-01-15", 5000, 30),
		createTestActivity("odd", "rowing", "2024-01-16", 3000, 20),
		createTestActivity("bad", "running", "yesterday", 5000, 30),
	)

	// repeated summaries report the same value instead of adding up
	var out WeekSummaryOutput
	for range 3 {
		var err error
		_, out, err = s.getWeekSummary(context.Background(), nil, WeekSummaryInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if out.ActivityCount != 2 || out.Excluded != 1 {
		t.Errorf("unexpected counts %d/%d", out.ActivityCount, out.Excluded)
	}
	if out.DistanceBySport["rowing"] != 3 {
		t.Errorf("unknown sports keep their distance: %v", out.DistanceBySport)
	}
	if _, ok := out.SpeedBySport["rowing"]; ok {
		t.Error("unknown sports never get a speed")
	}

	body := scrapeMetrics(t)
	for _, reason := range []string{metrics.ReasonMalformedDate, metrics.ReasonUnknownSport} {
		series := fmt.Sprintf(`sportlog_activities_excluded{reason="%s"} 1`, reason)
		if !strings.Contains(body, series) {
			t.Errorf("expected series %s in metrics output", series)
		}
	}

	// a clean history resets it
	clean, _ := newTestServer(createTestActivity("ok", "running", "2024-01-15", 5000, 30))
	if _, _, err := clean.getWeekSummary(context.Background(), nil, WeekSummaryInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body = scrapeMetrics(t)
	series := fmt.Sprintf(`sportlog_activities_excluded{reason="%s"} 0`, metrics.ReasonMalformedDate)
	if !strings.Contains(body, series) {
		t.Errorf("expected the gauge to clear, missing %s", series)
	}
}

func TestOutcome(t *testing.T) {
	if got := outcome(nil); got != metrics.OutcomeOK {
		t.Errorf("outcome(nil) = %s", got)
	}
	if got := outcome(NewDatabaseErrorWithContext("query", errors.New("locked"))); got != metrics.OutcomeError {
		t.Errorf("database errors are failures, got %s", got)
	}
	if got := outcome(NewNotFoundErrorWithID("activity", "x")); got != metrics.OutcomeInvalidInput {
		t.Errorf("not found is a caller error, got %s", got)
	}
}

func TestToolErrorMessage(t *testing.T) {
	err := NewNotFoundErrorWithID("activity", "abc")
	if err.Error() != "NOT_FOUND: activity not found (id=abc)" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if toToolError(nil) != nil {
		t.Error("nil stays nil")
	}
	if got := toToolError(err); got != err {
		t.Error("a ToolError must pass through unchanged")
	}
}
