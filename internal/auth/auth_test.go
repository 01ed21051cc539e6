package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer issues a new access/refresh pair on every request
func tokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+n)),
			"refresh_token": "refresh-" + string(rune('0'+n)),
			"token_type":    "Bearer",
			"expires_in":    21600,
			"grant_type":    r.PostForm.Get("grant_type"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(srv *httptest.Server) *oauth2.Config {
	conf := OAuthConfig("client-1", "secret")
	conf.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return conf
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenSourceRefreshesAndPersists(t *testing.T) {
	srv, calls := tokenServer(t)
	s := openStore(t)
	ctx := context.Background()

	ts, err := TokenSource(ctx, s, testConfig(srv), "configured-refresh")
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)

	// cached until expiry
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	stored, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "client-1", stored.ClientID)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), stored.ExpiresAt, time.Minute)
}

func TestTokenSourcePrefersStoredCredentials(t *testing.T) {
	srv, calls := tokenServer(t)
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, store.Credentials{
		ClientID:     "client-1",
		RefreshToken: "rotated",
		AccessToken:  "still-valid",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	ts, err := TokenSource(ctx, s, testConfig(srv), "stale-configured")
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-valid", token.AccessToken)
	assert.Zero(t, calls.Load())
}

func TestTokenSourceIgnoresOtherClient(t *testing.T) {
	srv, _ := tokenServer(t)
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCredentials(ctx, store.Credentials{ClientID: "someone-else", RefreshToken: "x"}))

	_, err := TokenSource(ctx, s, testConfig(srv), "")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthenticate(t *testing.T) {
	srv, _ := tokenServer(t)
	conf := testConfig(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := Authenticate(ctx, conf, FlowOptions{
		ListenAddr: "127.0.0.1:0",
		Out:        io.Discard,
		OpenURL: func(consent string) error {
			u, err := url.Parse(consent)
			if err != nil {
				return err
			}
			q := u.Query()
			assert.Equal(t, "read,activity:read_all", q.Get("scope"))
			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?code=abc&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", token.RefreshToken)
}

func TestAuthenticateRejectsBadState(t *testing.T) {
	srv, calls := tokenServer(t)

	_, err := Authenticate(context.Background(), testConfig(srv), FlowOptions{
		ListenAddr: "127.0.0.1:0",
		Out:        io.Discard,
		Timeout:    5 * time.Second,
		OpenURL: func(consent string) error {
			u, _ := url.Parse(consent)
			go func() {
				resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=abc&state=forged")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return errors.New("no browser here")
		},
	})
	assert.ErrorContains(t, err, "state mismatch")
	assert.Zero(t, calls.Load())
}
