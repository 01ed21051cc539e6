package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/joshdurbin/sportlog/internal/strava"
	syncsvc "github.com/joshdurbin/sportlog/internal/sync"
)

type fakeSyncer struct {
	calls atomic.Int32
	fulls atomic.Int32
	err   error
	ran   chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context, full bool, progress strava.ProgressCallback) (syncsvc.Result, error) {
	f.calls.Add(1)
	if full {
		f.fulls.Add(1)
	}
	if progress != nil {
		progress(strava.FetchResult{Page: 1, TotalFetched: 2})
	}
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return syncsvc.Result{Fetched: 2, Imported: 1, Updated: 1}, f.err
}

func TestNewActivitySyncer(t *testing.T) {
	t.Parallel()

	syncer := NewActivitySyncer(&fakeSyncer{}, "@every 15m")
	if syncer.schedule != "@every 15m" {
		t.Errorf("expected schedule @every 15m, got %q", syncer.schedule)
	}
}

func TestActivitySyncerRun(t *testing.T) {
	t.Parallel()

	fake := &fakeSyncer{ran: make(chan struct{}, 1)}
	syncer := NewActivitySyncer(fake, "@every 1h")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- syncer.Run(ctx) }()

	select {
	case <-fake.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("initial sync did not run")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("syncer did not stop")
	}

	if n := fake.calls.Load(); n != 1 {
		t.Errorf("expected 1 sync, got %d", n)
	}
	if n := fake.fulls.Load(); n != 0 {
		t.Errorf("scheduled syncs should be deltas, got %d full syncs", n)
	}
}

func TestActivitySyncerRunOnSchedule(t *testing.T) {
	t.Parallel()

	fake := &fakeSyncer{err: errors.New("strava unavailable")}
	syncer := NewActivitySyncer(fake, "@every 1s")

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	// failures are logged and the next tick tries again
	if err := syncer.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := fake.calls.Load(); n < 2 {
		t.Errorf("expected the schedule to trigger more syncs, got %d", n)
	}
}

func TestActivitySyncerInvalidSchedule(t *testing.T) {
	t.Parallel()

	fake := &fakeSyncer{}
	err := NewActivitySyncer(fake, "every now and then").Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid sync schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
	if fake.calls.Load() != 0 {
		t.Error("no sync should run with an invalid schedule")
	}
}

type fakeStats struct {
	stats store.Stats
	err   error
	run   *store.SyncRun
}

func (f fakeStats) Stats(ctx context.Context) (store.Stats, error) {
	return f.stats, f.err
}

func (f fakeStats) LastSyncRun(ctx context.Context, source string) (store.SyncRun, error) {
	if f.run == nil {
		return store.SyncRun{}, store.ErrNotFound
	}
	return *f.run, nil
}

// logLines decodes one JSON object per log line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("expected JSON log lines: %v (%s)", err, buf.String())
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogDatabaseStats(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, logging.LevelNormal, logging.FormatJSON)
	t.Cleanup(func() { logging.SetupWriter(&bytes.Buffer{}, logging.LevelNormal, logging.FormatConsole) })

	LogDatabaseStats(context.Background(), fakeStats{stats: store.Stats{
		Activities: 7,
		Users:      2,
		Undated:    1,
		BySport: []store.SportCount{
			{Sport: activity.Running, Count: 4},
			{Sport: activity.Swimming, Count: 2},
		},
	}})

	entries := logLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d (%s)", len(entries), buf.String())
	}
	if entries[1]["message"] != "no strava import recorded yet" {
		t.Errorf("unexpected sync history line %v", entries[1])
	}
	entry := entries[0]
	if entry["message"] != "database statistics" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	if entry["total_activities"] != float64(7) || entry["users"] != float64(2) || entry["undated"] != float64(1) {
		t.Errorf("unexpected counters %v", entry)
	}
	bySport, ok := entry["by_sport"].(map[string]any)
	if !ok || bySport["running"] != float64(4) || bySport["swimming"] != float64(2) {
		t.Errorf("unexpected by_sport %v", entry["by_sport"])
	}
}

func TestLogDatabaseStatsLastSync(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, logging.LevelNormal, logging.FormatJSON)
	t.Cleanup(func() { logging.SetupWriter(&bytes.Buffer{}, logging.LevelNormal, logging.FormatConsole) })

	LogDatabaseStats(context.Background(), fakeStats{run: &store.SyncRun{
		Source:     "strava",
		UserID:     "alice",
		FinishedAt: time.Date(2024, 1, 17, 8, 0, 0, 0, time.UTC),
		Imported:   3,
		Updated:    1,
	}})

	entries := logLines(t, &buf)
	last := entries[len(entries)-1]
	if last["message"] != "last strava import" {
		t.Fatalf("unexpected last line %v", last)
	}
	if last["user"] != "alice" || last["imported"] != float64(3) || last["updated"] != float64(1) {
		t.Errorf("unexpected sync fields %v", last)
	}
}

func TestLogDatabaseStatsError(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, logging.LevelNormal, logging.FormatJSON)
	t.Cleanup(func() { logging.SetupWriter(&bytes.Buffer{}, logging.LevelNormal, logging.FormatConsole) })

	LogDatabaseStats(context.Background(), fakeStats{err: errors.New("disk gone")})

	if !strings.Contains(buf.String(), "failed to read database statistics") {
		t.Errorf("expected a warning, got %s", buf.String())
	}
}
