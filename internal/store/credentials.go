package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credentials is the latest Strava token pair. Strava rotates refresh tokens,
// so the newest one must be kept across restarts.
type Credentials struct {
	ClientID     string
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
}

// SaveCredentials replaces the stored Strava credentials
func (s *Store) SaveCredentials(ctx context.Context, c Credentials) error {
	var expires sql.NullInt64
	if !c.ExpiresAt.IsZero() {
		expires = sql.NullInt64{Int64: c.ExpiresAt.Unix(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strava_credentials (id, client_id, refresh_token, access_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		c.ClientID, c.RefreshToken, c.AccessToken, expires,
	)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored Strava credentials or ErrNotFound
func (s *Store) LoadCredentials(ctx context.Context) (Credentials, error) {
	var (
		c       Credentials
		access  sql.NullString
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id, refresh_token, access_token, expires_at FROM strava_credentials WHERE id = 1`,
	).Scan(&c.ClientID, &c.RefreshToken, &access, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, fmt.Errorf("strava credentials: %w", ErrNotFound)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}

	c.AccessToken = access.String
	if expires.Valid {
		c.ExpiresAt = time.Unix(expires.Int64, 0)
	}
	return c, nil
}

// DeleteCredentials forgets the stored Strava credentials
func (s *Store) DeleteCredentials(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM strava_credentials`); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}
