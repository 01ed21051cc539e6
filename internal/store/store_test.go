package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { s.Close() })
	return s
}

func run(user, day string, meters float64, d time.Duration) activity.Activity {
	return activity.Activity{
		UserID:         user,
		Date:           activity.DayFromString(day),
		Sport:          activity.Running,
		DistanceMeters: meters,
		Duration:       d,
		Title:          "run",
	}
}

func TestMigrations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"activities", "strava_credentials", "sync_runs"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s not found", table)
	}
}

func TestOpenTwice(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "twice.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	_, err = s.CreateActivity(context.Background(), run("u1", "2024-03-04", 5000, 30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountActivities(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateAndGetActivity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	in := run("u1", "2024-03-04T07:30:00Z", 5000, 25*time.Minute+30*time.Second)
	in.Sport = "Course"
	created, err := s.CreateActivity(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, activity.Running, created.Sport)
	assert.Equal(t, "2024-03-04", created.Date.String())

	got, err := s.GetActivity(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.GetActivity(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateActivityRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	bad := []activity.Activity{
		{UserID: "u1", Date: activity.DayFromString("2024-03-04"), Sport: "rowing"},
		{UserID: "u1", Date: activity.DayFromString("2024-03-04"), Sport: activity.Running, DistanceMeters: -1},
		{UserID: "u1", Date: activity.DayFromString("soon"), Sport: activity.Running},
		{Date: activity.DayFromString("2024-03-04"), Sport: activity.Running},
	}
	for _, a := range bad {
		_, err := s.CreateActivity(ctx, a)
		assert.ErrorIs(t, err, activity.ErrInvalidArgument)
	}

	n, err := s.CountActivities(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListActivitiesTolerantOfLegacyRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"2024-03-01", "2024-03-06", "2024-03-04"} {
		_, err := s.CreateActivity(ctx, run("u1", day, 5000, 30*time.Minute))
		require.NoError(t, err)
	}
	_, err := s.CreateActivity(ctx, run("u2", "2024-03-05", 1000, 5*time.Minute))
	require.NoError(t, err)

	// rows written by older versions without validation
	_, err = s.db.Exec(`INSERT INTO activities (id, user_id, date, sport, distance_meters, duration_seconds)
		VALUES ('legacy-1', 'u1', 'zz-not-a-date', 'Natation', 400, 480),
		       ('legacy-2', 'u1', NULL, 'running', 1000, 300)`)
	require.NoError(t, err)

	list, err := s.ListActivities(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 5)

	assert.Equal(t, "2024-03-06", list[0].Date.String())
	assert.Equal(t, "2024-03-04", list[1].Date.String())
	assert.Equal(t, "2024-03-01", list[2].Date.String())
	for _, a := range list[3:] {
		_, ok := a.Date.Parse()
		assert.False(t, ok)
	}

	legacy, err := s.GetActivity(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, "zz-not-a-date", legacy.Date.String())
	assert.Equal(t, activity.SportType("Natation"), legacy.Sport)
	assert.Equal(t, 8*time.Minute, legacy.Duration)

	latest, ok, err := s.LatestActivityDate(ctx, "u1", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), latest)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Activities)
	assert.Equal(t, 2, st.Users)
	assert.Equal(t, 2, st.Undated)
	assert.Equal(t, []SportCount{{Sport: activity.Running, Count: 5}, {Sport: activity.Swimming, Count: 1}}, st.BySport)
}

func TestUpsertExternal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.UpsertExternal(ctx, "strava", "42", run("u1", "2024-03-04", 5000, 30*time.Minute))
	require.NoError(t, err)
	assert.True(t, created)

	edited := run("u1", "2024-03-04", 5100, 31*time.Minute)
	edited.Title = "renamed"
	second, created, err := s.UpsertExternal(ctx, "strava", "42", edited)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetActivity(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, 5100.0, got.DistanceMeters)

	n, err := s.CountActivities(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	latest, ok, err := s.LatestActivityDate(ctx, "u1", "strava")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-04", latest.Format(activity.DateLayout))

	_, ok, err = s.LatestActivityDate(ctx, "u1", "garmin")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.UpsertExternal(ctx, "strava", "", edited)
	assert.ErrorIs(t, err, activity.ErrInvalidArgument)
}

func TestDeleteActivity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateActivity(ctx, run("u1", "2024-03-04", 5000, 30*time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.DeleteActivity(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteActivity(ctx, a.ID), ErrNotFound)
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadCredentials(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	expires := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.SaveCredentials(ctx, Credentials{ClientID: "1", RefreshToken: "r1", AccessToken: "a1", ExpiresAt: expires}))
	require.NoError(t, s.SaveCredentials(ctx, Credentials{ClientID: "1", RefreshToken: "r2", AccessToken: "a2", ExpiresAt: expires}))

	c, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", c.RefreshToken)
	assert.Equal(t, "a2", c.AccessToken)
	assert.True(t, expires.Equal(c.ExpiresAt))

	require.NoError(t, s.DeleteCredentials(ctx))
	_, err = s.LoadCredentials(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LastSyncRun(ctx, "strava")
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.RecordSyncRun(ctx, SyncRun{Source: "strava", UserID: "u1", StartedAt: base, FinishedAt: base.Add(time.Minute), Fetched: 3, Imported: 3}))
	require.NoError(t, s.RecordSyncRun(ctx, SyncRun{Source: "strava", UserID: "u1", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute), Error: "boom"}))

	last, err := s.LastSyncRun(ctx, "strava")
	require.NoError(t, err)
	assert.Equal(t, "boom", last.Error)
	assert.True(t, base.Add(time.Hour+time.Minute).Equal(last.FinishedAt))
}
