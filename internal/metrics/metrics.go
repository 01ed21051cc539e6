// Package metrics exposes sportlog's Prometheus counters and gauges.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sportlog"

// Outcomes of a tool call
const (
	OutcomeOK           = "ok"
	OutcomeInvalidInput = "invalid_input"
	OutcomeError        = "error"
)

// Reasons an activity is left out of a computation
const (
	ReasonMalformedDate = "malformed_date"
	ReasonUnknownSport  = "unknown_sport"
)

var (
	toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Number of MCP tool calls by tool and outcome.",
	}, []string{"tool", "outcome"})

	toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_call_duration_seconds",
		Help:      "Latency of MCP tool calls.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 7),
	}, []string{"tool"})

	excluded = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "activities_excluded",
		Help:      "Activities left out of the last weekly summary, by reason.",
	}, []string{"reason"})

	synced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_activities_total",
		Help:      "Activities seen by the Strava import, by result.",
	}, []string{"result"})

	lastSync = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the last successful Strava import.",
	})
)

func init() {
	prometheus.MustRegister(toolCalls, toolDuration, excluded, synced, lastSync)
}

// RecordToolCall counts one tool invocation
func RecordToolCall(tool, outcome string, elapsed time.Duration) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// SetExcluded reports how many activities the last summary dropped for
// reason. Zero is recorded too so the value clears once the data is fixed.
func SetExcluded(reason string, n int) {
	excluded.WithLabelValues(reason).Set(float64(max(n, 0)))
}

// RecordSynced counts imported activities by result (imported, updated, skipped, failed)
func RecordSynced(result string, n int) {
	if n <= 0 {
		return
	}
	synced.WithLabelValues(result).Add(float64(n))
}

// RecordSyncCompleted updates the last successful sync watermark
func RecordSyncCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSync.Set(float64(ts.Unix()))
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
