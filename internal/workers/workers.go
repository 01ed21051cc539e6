package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/joshdurbin/sportlog/internal/strava"
	syncsvc "github.com/joshdurbin/sportlog/internal/sync"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Syncer runs one import pass
type Syncer interface {
	Sync(ctx context.Context, full bool, progress strava.ProgressCallback) (syncsvc.Result, error)
}

// ActivitySyncer imports Strava activities on a cron schedule
type ActivitySyncer struct {
	syncer   Syncer
	schedule string
}

// NewActivitySyncer creates a new activity sync worker. schedule accepts
// standard cron expressions and descriptors such as "@every 15m".
func NewActivitySyncer(syncer Syncer, schedule string) *ActivitySyncer {
	return &ActivitySyncer{
		syncer:   syncer,
		schedule: schedule,
	}
}

// Run performs an initial sync, then syncs on every tick of the schedule
// until ctx is cancelled. A tick that fires while a sync is still running
// is skipped.
func (a *ActivitySyncer) Run(ctx context.Context) error {
	log := logging.Logger

	schedule, err := cron.ParseStandard(a.schedule)
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", a.schedule, err)
	}

	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(schedule, cron.FuncJob(func() { a.syncActivities(ctx) }))

	log.Info().Str("schedule", a.schedule).Time("next", schedule.Next(time.Now())).Msg("activity syncer started")
	a.syncActivities(ctx)

	c.Start()
	<-ctx.Done()

	// wait for a running sync to observe the cancellation
	<-c.Stop().Done()
	log.Info().Msg("activity syncer stopped")
	return nil
}

func (a *ActivitySyncer) syncActivities(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log := logging.Logger
	log.Info().Msg("starting activity sync")

	result, err := a.syncer.Sync(ctx, false, progressLogger(log))
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Int("imported", result.Imported).Msg("activity sync interrupted")
			return
		}
		log.Error().Err(err).
			Int("fetched", result.Fetched).
			Int("imported", result.Imported).
			Msg("activity sync failed")
		return
	}

	event := log.Info()
	if result.Fetched == 0 {
		event = log.Debug()
	}
	event.
		Int("fetched", result.Fetched).
		Int("imported", result.Imported).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("activity sync completed")
}

func progressLogger(log zerolog.Logger) strava.ProgressCallback {
	return func(result strava.FetchResult) {
		rl := result.RateLimit
		event := log.Debug()
		if rl.IsRateLimited {
			event = log.Info()
		}
		event.
			Int("page", result.Page).
			Int("activities_on_page", len(result.Activities)).
			Int("total_fetched", result.TotalFetched).
			Str("15min_usage", fmt.Sprintf("%d/%d", rl.Usage15Min, rl.Limit15Min)).
			Str("daily_usage", fmt.Sprintf("%d/%d", rl.UsageDaily, rl.LimitDaily)).
			Bool("rate_limited", rl.IsRateLimited).
			Msg("activity sync progress")
	}
}

// cronLogger routes the scheduler's own messages through zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// StatsSource reports database-wide counters and the sync history
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
	LastSyncRun(ctx context.Context, source string) (store.SyncRun, error)
}

// LogDatabaseStats logs current database statistics
func LogDatabaseStats(ctx context.Context, src StatsSource) {
	log := logging.Logger

	stats, err := src.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read database statistics")
		return
	}

	bySport := zerolog.Dict()
	for _, sc := range stats.BySport {
		bySport.Int(string(sc.Sport), sc.Count)
	}

	log.Info().
		Int("total_activities", stats.Activities).
		Int("users", stats.Users).
		Int("undated", stats.Undated).
		Dict("by_sport", bySport).
		Msg("database statistics")

	last, err := src.LastSyncRun(ctx, syncsvc.Source)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info().Msg("no strava import recorded yet")
	case err != nil:
		log.Warn().Err(err).Msg("failed to read sync history")
	default:
		log.Info().
			Time("finished_at", last.FinishedAt).
			Str("user", last.UserID).
			Int("imported", last.Imported).
			Int("updated", last.Updated).
			Str("error", last.Error).
			Msg("last strava import")
	}
}
