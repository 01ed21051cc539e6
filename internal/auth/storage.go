package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/store"
	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned when neither the database nor the
// configuration holds a refresh token.
var ErrNoCredentials = errors.New("no strava refresh token: run 'sportlog auth strava' or set SPORTLOG_STRAVA_REFRESH_TOKEN")

// CredentialStore persists the latest Strava token pair
type CredentialStore interface {
	LoadCredentials(ctx context.Context) (store.Credentials, error)
	SaveCredentials(ctx context.Context, c store.Credentials) error
}

// TokenSource returns a token source that refreshes access tokens with conf
// and writes every new token back to creds. The stored refresh token is
// preferred over configuredRefresh when it belongs to the same client,
// because Strava invalidates a refresh token once it has been rotated.
func TokenSource(ctx context.Context, creds CredentialStore, conf *oauth2.Config, configuredRefresh string) (oauth2.TokenSource, error) {
	seed := &oauth2.Token{RefreshToken: configuredRefresh}

	stored, err := creds.LoadCredentials(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading stored credentials: %w", err)
	case stored.ClientID == conf.ClientID && stored.RefreshToken != "":
		seed = &oauth2.Token{
			AccessToken:  stored.AccessToken,
			RefreshToken: stored.RefreshToken,
			Expiry:       stored.ExpiresAt,
		}
		logging.Logger.Debug().Time("expires_at", stored.ExpiresAt).Msg("using stored strava credentials")
	}

	if seed.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	return &persistingSource{
		ctx:      ctx,
		base:     conf.TokenSource(ctx, seed),
		creds:    creds,
		clientID: conf.ClientID,
		last:     seed.AccessToken,
	}, nil
}

// SaveToken stores a token obtained outside a TokenSource, e.g. by Authenticate
func SaveToken(ctx context.Context, creds CredentialStore, clientID string, token *oauth2.Token) error {
	return creds.SaveCredentials(ctx, store.Credentials{
		ClientID:     clientID,
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		ExpiresAt:    token.Expiry,
	})
}

type persistingSource struct {
	ctx      context.Context
	base     oauth2.TokenSource
	creds    CredentialStore
	clientID string

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing strava token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken == p.last {
		return token, nil
	}

	if err := SaveToken(p.ctx, p.creds, p.clientID, token); err != nil {
		// the token is still usable for this run
		logging.Logger.Warn().Err(err).Msg("could not persist refreshed strava token")
		return token, nil
	}
	p.last = token.AccessToken
	logging.Logger.Info().Time("expires_at", token.Expiry).Msg("strava access token refreshed")
	return token, nil
}
