package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshdurbin/sportlog/internal/activity"
)

// SourceManual marks activities entered by hand
const SourceManual = "manual"

const activityColumns = `id, user_id, date, sport, distance_meters, duration_seconds, title, description, trace`

// CreateActivity validates and inserts a new activity, assigning it an ID.
// The sport is stored in its canonical form.
func (s *Store) CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	a, err := prepare(a)
	if err != nil {
		return activity.Activity{}, err
	}

	if err := insertActivity(ctx, s.db, a, SourceManual, nil); err != nil {
		return activity.Activity{}, err
	}
	return a, nil
}

// UpsertExternal inserts or refreshes an activity imported from source.
// Re-importing the same externalID updates the stored row in place and keeps
// its ID. The returned bool reports whether a new row was created.
func (s *Store) UpsertExternal(ctx context.Context, source, externalID string, a activity.Activity) (activity.Activity, bool, error) {
	if source == "" || externalID == "" {
		return activity.Activity{}, false, fmt.Errorf("%w: source and external id are required", activity.ErrInvalidArgument)
	}
	a, err := prepare(a)
	if err != nil {
		return activity.Activity{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return activity.Activity{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM activities WHERE source = ? AND external_id = ?`,
		source, externalID,
	).Scan(&existingID)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertActivity(ctx, tx, a, source, &externalID); err != nil {
			return activity.Activity{}, false, err
		}
		created = true
	case err != nil:
		return activity.Activity{}, false, fmt.Errorf("looking up %s activity %s: %w", source, externalID, err)
	default:
		a.ID = existingID
		_, err := tx.ExecContext(ctx, `
			UPDATE activities SET
				user_id = ?, date = ?, sport = ?, distance_meters = ?, duration_seconds = ?,
				title = ?, description = ?, trace = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			a.UserID, a.Date, string(a.Sport), a.DistanceMeters, a.Duration.Seconds(),
			a.Title, a.Description, a.Trace, a.ID,
		)
		if err != nil {
			return activity.Activity{}, false, fmt.Errorf("updating activity %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return activity.Activity{}, false, fmt.Errorf("committing: %w", err)
	}
	return a, created, nil
}

// GetActivity returns the activity with the given ID
func (s *Store) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Activity{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return activity.Activity{}, fmt.Errorf("getting activity %s: %w", id, err)
	}
	return a, nil
}

// ListActivities returns every activity of userID, newest first.
// Rows whose date is not a valid date are returned with the raw text and
// sort last.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]activity.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ?
		ORDER BY date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	var result []activity.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}

	// text ordering puts garbage anywhere; fix up with the parsed day
	activity.SortNewestFirst(result)
	return result, nil
}

// DeleteActivity removes an activity
func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting activity %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting activity %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountActivities returns the number of activities of userID, or of every
// user when userID is empty.
func (s *Store) CountActivities(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM activities`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return n, nil
}

// LatestActivityDate returns the most recent valid activity date of userID
// imported from source, or of any source when source is empty. The bool is
// false when there is none.
func (s *Store) LatestActivityDate(ctx context.Context, userID, source string) (time.Time, bool, error) {
	query := `SELECT date FROM activities WHERE user_id = ? AND date IS NOT NULL`
	args := []any{userID}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest activity: %w", err)
	}
	defer rows.Close()

	var latest time.Time
	found := false
	for rows.Next() {
		var d activity.Day
		if err := rows.Scan(&d); err != nil {
			return time.Time{}, false, fmt.Errorf("scanning date: %w", err)
		}
		if t, ok := d.Parse(); ok && (!found || t.After(latest)) {
			latest, found = t, true
		}
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest activity: %w", err)
	}
	return latest, found, nil
}

// SportCount is the number of stored activities of one sport
type SportCount struct {
	Sport activity.SportType
	Count int
}

// Stats summarizes the database content
type Stats struct {
	Activities int
	Users      int
	BySport    []SportCount
	// Undated counts rows whose date is missing or unreadable
	Undated int
}

// Stats returns database-wide counters
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id) FROM activities`,
	).Scan(&st.Activities, &st.Users); err != nil {
		return Stats{}, fmt.Errorf("counting activities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sport, date FROM activities`)
	if err != nil {
		return Stats{}, fmt.Errorf("reading activities: %w", err)
	}
	defer rows.Close()

	counts := make(map[activity.SportType]int)
	for rows.Next() {
		var sport string
		var d activity.Day
		if err := rows.Scan(&sport, &d); err != nil {
			return Stats{}, fmt.Errorf("scanning activity: %w", err)
		}
		if known, ok := activity.SportType(sport).Normalize(); ok {
			counts[known]++
		}
		if _, ok := d.Parse(); !ok {
			st.Undated++
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("reading activities: %w", err)
	}

	for _, sport := range activity.KnownSports {
		if n := counts[sport]; n > 0 {
			st.BySport = append(st.BySport, SportCount{Sport: sport, Count: n})
		}
	}
	return st, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func prepare(a activity.Activity) (activity.Activity, error) {
	if err := a.Validate(); err != nil {
		return activity.Activity{}, err
	}
	sport, _ := a.Sport.Normalize()
	a.Sport = sport
	// store the canonical text form of the day
	t, _ := a.Date.Parse()
	a.Date = activity.DayFromString(t.Format(activity.DateLayout))
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a, nil
}

func insertActivity(ctx context.Context, db execer, a activity.Activity, source string, externalID *string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO activities (
			id, user_id, date, sport, distance_meters, duration_seconds,
			title, description, trace, source, external_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Date, string(a.Sport), a.DistanceMeters, a.Duration.Seconds(),
		a.Title, a.Description, a.Trace, source, externalID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: activity %s already exists", activity.ErrInvalidArgument, a.ID)
	}
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

func scanActivity(row scanner) (activity.Activity, error) {
	var (
		a       activity.Activity
		sport   string
		seconds float64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Date, &sport, &a.DistanceMeters, &seconds,
		&a.Title, &a.Description, &a.Trace); err != nil {
		return activity.Activity{}, err
	}
	a.Sport = activity.SportType(sport)
	a.Duration = time.Duration(seconds * float64(time.Second))
	return a, nil
}
