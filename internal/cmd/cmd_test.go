package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/stats"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against a fresh flag state
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	logSport, logDate, logTitle, logNotes, logTrace = "", "", "", "", ""
	logDistance, logKm, logMinutes = 0, 0, 0
	listLimit, listSport = 20, ""
	summaryDate, summaryLocale = "", ""
	recommendSport, recommendLookback = "", 0
	jsonOutput = false
	logout, noBrowser, fullImport = false, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestActivityCommands(t *testing.T) {
	t.Setenv("SPORTLOG_CONFIG_PATH", "")
	db := filepath.Join(t.TempDir(), "cli.db")
	base := []string{"--db", db, "--user", "alice", "--env-file", filepath.Join(t.TempDir(), "missing.env")}
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, base...)...)
		require.NoError(t, err, "sportlog %v", args)
		return out
	}

	out := run("log", "--sport", "course", "--km", "5", "--minutes", "30", "--date", "2024-01-15", "--title", "easy")
	assert.Contains(t, out, "Logged running 5.00 km on 2024-01-15")
	run("log", "--sport", "running", "--meters", "7000", "--minutes", "42", "--date", "2024-01-17")
	run("log", "--sport", "swim", "--meters", "1500", "--minutes", "30", "--date", "2024-01-10")

	out = run("list", "--sport", "running")
	assert.Contains(t, out, "2024-01-17")
	assert.Contains(t, out, "6.00 min/km")
	assert.NotContains(t, out, "swimming")

	out = run("list", "--json", "--limit", "1")
	var listed []activity.Activity
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "2024-01-17", listed[0].Date.String())
	assert.Equal(t, 42*time.Minute, listed[0].Duration)
	assert.Contains(t, out, `"duration_seconds": 2520`)

	out = run("summary", "--date", "2024-01-17", "--json")
	var summary stats.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "2024-W03", summary.Week)
	assert.Equal(t, 2, summary.ActivityCount)
	assert.Equal(t, "01h 12min 00s", summary.TotalDuration)

	out = run("summary", "--date", "2024-01-17", "--locale", "fr")
	assert.Contains(t, out, "Lun 2024-01-15  00h 30min 00s")

	out = run("recommend", "--sport", "swimming")
	assert.Contains(t, out, "Next swimming session: 1.60 km")

	out = run("recommend", "--sport", "cycling")
	assert.Contains(t, out, "20.00 km")
	assert.Contains(t, out, "No history yet")
}

func TestDeleteCommand(t *testing.T) {
	t.Setenv("SPORTLOG_CONFIG_PATH", "")
	db := filepath.Join(t.TempDir(), "cli.db")
	env := filepath.Join(t.TempDir(), "missing.env")
	as := func(user string, args ...string) (string, error) {
		return execute(t, append(args, "--db", db, "--user", user, "--env-file", env)...)
	}

	out, err := as("alice", "log", "--sport", "running", "--km", "5", "--minutes", "30", "--date", "2024-01-15", "--json")
	require.NoError(t, err)
	var logged activity.Activity
	require.NoError(t, json.Unmarshal([]byte(out), &logged))
	_, err = as("alice", "log", "--sport", "swimming", "--meters", "1500", "--minutes", "30", "--date", "2024-01-16")
	require.NoError(t, err)

	// another user cannot delete it
	_, err = as("bob", "delete", logged.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, err = as("alice", "delete", logged.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted running 5.00 km on 2024-01-15, 1 activities left")

	_, err = as("alice", "delete", logged.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = as("alice", "delete")
	assert.Error(t, err)
}

func TestStravaLogoutAndStatus(t *testing.T) {
	t.Setenv("SPORTLOG_CONFIG_PATH", "")
	db := filepath.Join(t.TempDir(), "cli.db")
	base := []string{"--db", db, "--user", "alice", "--env-file", filepath.Join(t.TempDir(), "missing.env")}
	ctx := context.Background()

	out, err := execute(t, append([]string{"import", "strava", "status"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No Strava import yet")

	st, err := store.Open(ctx, db)
	require.NoError(t, err)
	finished := time.Date(2024, 1, 17, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveCredentials(ctx, store.Credentials{ClientID: "1", RefreshToken: "r"}))
	require.NoError(t, st.RecordSyncRun(ctx, store.SyncRun{
		Source: "strava", UserID: "alice",
		StartedAt: finished.Add(-3 * time.Second), FinishedAt: finished,
		Fetched: 4, Imported: 3, Skipped: 1, Error: "rate limited",
	}))
	require.NoError(t, st.Close())

	out, err = execute(t, append([]string{"import", "strava", "status"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Last strava import for alice")
	assert.Contains(t, out, "(took 3s)")
	assert.Contains(t, out, "Fetched 4, imported 3, updated 0, skipped 1")
	assert.Contains(t, out, "Failed: rate limited")

	// no client id is needed to log out
	out, err = execute(t, append([]string{"auth", "strava", "--logout"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Strava tokens removed")

	st, err = store.Open(ctx, db)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.LoadCredentials(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("SPORTLOG_CONFIG_PATH", "")
	t.Setenv("SPORTLOG_STRAVA_CLIENT_ID", "")
	db := filepath.Join(t.TempDir(), "cli.db")
	base := []string{"--db", db, "--env-file", filepath.Join(t.TempDir(), "missing.env")}

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown sport", args: []string{"log", "--sport", "rowing", "--meters", "100"}},
		{name: "both distances", args: []string{"log", "--sport", "running", "--meters", "100", "--km", "1"}},
		{name: "bad date", args: []string{"summary", "--date", "15/01/2024"}},
		{name: "missing sport", args: []string{"recommend"}},
		{name: "empty user", args: []string{"list", "--user", " "}},
		{name: "strava not configured", args: []string{"auth", "strava", "--no-browser"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(tt.args, base...)...)
			assert.Error(t, err)
		})
	}
}
