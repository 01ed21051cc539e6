package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/sportlog/internal/activity"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/metrics"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/joshdurbin/sportlog/internal/strava"
)

// Source is the store source name of imported Strava activities
const Source = "strava"

// deltaOverlap re-fetches the last day before the newest stored activity.
// Stored dates are local calendar days while Strava filters on UTC start
// times; imports are idempotent so the overlap only costs a few requests.
const deltaOverlap = 24 * time.Hour

var stravaSports = map[string]activity.SportType{
	"Run":               activity.Running,
	"TrailRun":          activity.Running,
	"VirtualRun":        activity.Running,
	"Ride":              activity.Cycling,
	"VirtualRide":       activity.Cycling,
	"GravelRide":        activity.Cycling,
	"MountainBikeRide":  activity.Cycling,
	"EBikeRide":         activity.Cycling,
	"EMountainBikeRide": activity.Cycling,
	"Swim":              activity.Swimming,
}

// Fetcher lists activities from Strava
type Fetcher interface {
	FetchActivities(ctx context.Context, after time.Time, progress strava.ProgressCallback) ([]strava.Activity, error)
}

// Store is the persistence the import writes to
type Store interface {
	UpsertExternal(ctx context.Context, source, externalID string, a activity.Activity) (activity.Activity, bool, error)
	LatestActivityDate(ctx context.Context, userID, source string) (time.Time, bool, error)
	RecordSyncRun(ctx context.Context, r store.SyncRun) error
}

// Result summarizes one import pass
type Result struct {
	Since    time.Time
	Fetched  int
	Imported int
	Updated  int
	Skipped  int
}

// Service imports Strava activities for one user
type Service struct {
	store  Store
	client Fetcher
	userID string
}

// NewService creates a new sync service
func NewService(st Store, client Fetcher, userID string) *Service {
	return &Service{
		store:  st,
		client: client,
		userID: userID,
	}
}

// Sync fetches activities and upserts the supported ones. Unless full is
// set only activities newer than the latest imported one are fetched.
// Every pass is recorded in the sync history, failed or not.
func (s *Service) Sync(ctx context.Context, full bool, progress strava.ProgressCallback) (Result, error) {
	started := time.Now()
	result, err := s.sync(ctx, full, progress)

	run := store.SyncRun{
		Source:     Source,
		UserID:     s.userID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Fetched:    result.Fetched,
		Imported:   result.Imported,
		Updated:    result.Updated,
		Skipped:    result.Skipped,
	}
	if err != nil {
		run.Error = err.Error()
	}
	// a cancelled context cannot write the history row either
	if recErr := s.store.RecordSyncRun(context.WithoutCancel(ctx), run); recErr != nil {
		logging.Logger.Warn().Err(recErr).Msg("could not record sync run")
	}

	metrics.RecordSynced("imported", result.Imported)
	metrics.RecordSynced("updated", result.Updated)
	metrics.RecordSynced("skipped", result.Skipped)
	if err == nil {
		metrics.RecordSyncCompleted(run.FinishedAt)
	}
	return result, err
}

func (s *Service) sync(ctx context.Context, full bool, progress strava.ProgressCallback) (Result, error) {
	log := logging.Logger
	var result Result

	if !full {
		latest, ok, err := s.store.LatestActivityDate(ctx, s.userID, Source)
		if err != nil {
			return result, fmt.Errorf("finding last import: %w", err)
		}
		if ok {
			result.Since = latest.Add(-deltaOverlap)
		}
	}

	activities, err := s.client.FetchActivities(ctx, result.Since, progress)
	result.Fetched = len(activities)
	if err != nil && len(activities) == 0 {
		return result, fmt.Errorf("fetching activities: %w", err)
	}
	fetchErr := err

	for _, sa := range activities {
		a, ok := ConvertActivity(sa, s.userID)
		if !ok {
			result.Skipped++
			log.Debug().Int64("strava_id", sa.ID).Str("type", sportTypeOf(sa)).Msg("skipping unsupported activity type")
			continue
		}

		_, created, err := s.store.UpsertExternal(ctx, Source, strconv.FormatInt(sa.ID, 10), a)
		if errors.Is(err, activity.ErrInvalidArgument) {
			result.Skipped++
			log.Warn().Err(err).Int64("strava_id", sa.ID).Msg("skipping invalid activity")
			continue
		}
		if err != nil {
			metrics.RecordSynced("failed", 1)
			return result, fmt.Errorf("saving activity %d (%s): %w", sa.ID, sa.Name, err)
		}
		if created {
			result.Imported++
		} else {
			result.Updated++
		}
	}

	// pages fetched before the failure are kept; the next pass resumes from them
	if fetchErr != nil {
		return result, fmt.Errorf("fetching activities: %w", fetchErr)
	}
	return result, nil
}

// ConvertActivity maps a Strava activity onto a sportlog activity for
// userID. It returns false for sports sportlog does not track.
func ConvertActivity(sa strava.Activity, userID string) (activity.Activity, bool) {
	sport, ok := stravaSports[sportTypeOf(sa)]
	if !ok {
		// sport_type is finer grained; fall back to the legacy type
		sport, ok = stravaSports[sa.Type]
	}
	if !ok {
		return activity.Activity{}, false
	}

	start := sa.StartDateLocal
	if start.IsZero() {
		start = sa.StartDate
	}

	seconds := sa.MovingTime
	if seconds <= 0 {
		seconds = sa.ElapsedTime
	}

	var notes []string
	if sa.Trainer {
		notes = append(notes, "indoor trainer")
	}
	if sa.Manual {
		notes = append(notes, "entered manually on Strava")
	}

	return activity.Activity{
		UserID:         userID,
		Date:           activity.DayOf(start),
		Sport:          sport,
		DistanceMeters: sa.Distance,
		Duration:       time.Duration(seconds) * time.Second,
		Title:          sa.Name,
		Description:    strings.Join(notes, ", "),
		Trace:          sa.Map.SummaryPolyline,
	}, true
}

func sportTypeOf(sa strava.Activity) string {
	if sa.SportType != "" {
		return sa.SportType
	}
	return sa.Type
}
