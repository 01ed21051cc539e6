package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncRun records the outcome of one import pass
type SyncRun struct {
	Source     string
	UserID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Imported   int
	Updated    int
	Skipped    int
	Error      string
}

// RecordSyncRun appends a sync run to the history
func (s *Store) RecordSyncRun(ctx context.Context, r SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (source, user_id, started_at, finished_at, fetched, imported, updated, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Source, r.UserID, r.StartedAt.Unix(), r.FinishedAt.Unix(),
		r.Fetched, r.Imported, r.Updated, r.Skipped, r.Error,
	)
	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recent run for source, or ErrNotFound
func (s *Store) LastSyncRun(ctx context.Context, source string) (SyncRun, error) {
	var (
		r                 SyncRun
		started, finished int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source, user_id, started_at, finished_at, fetched, imported, updated, skipped, error
		FROM sync_runs
		WHERE source = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`,
		source,
	).Scan(&r.Source, &r.UserID, &started, &finished, &r.Fetched, &r.Imported, &r.Updated, &r.Skipped, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, fmt.Errorf("%s sync run: %w", source, ErrNotFound)
	}
	if err != nil {
		return SyncRun{}, fmt.Errorf("loading last sync run: %w", err)
	}

	r.StartedAt = time.Unix(started, 0)
	r.FinishedAt = time.Unix(finished, 0)
	return r, nil
}
