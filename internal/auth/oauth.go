package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const (
	scopes          = "read,activity:read_all"
	callbackPath    = "/callback"
	defaultListen   = "localhost:8089"
	defaultDeadline = 5 * time.Minute
)

// StravaEndpoint is Strava's OAuth endpoint. Strava expects the client
// credentials in the request body.
var StravaEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.strava.com/oauth/authorize",
	TokenURL:  "https://www.strava.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// OAuthConfig returns an OAuth2 config for Strava
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     StravaEndpoint,
		Scopes:       []string{scopes},
	}
}

// FlowOptions tunes the interactive consent flow
type FlowOptions struct {
	// ListenAddr is where the callback server listens; defaults to localhost:8089
	ListenAddr string
	// OpenURL opens the consent page; defaults to the system browser
	OpenURL func(url string) error
	// Out receives instructions for the user; defaults to stderr
	Out     io.Writer
	Timeout time.Duration
}

// Authenticate runs the browser consent flow for conf and returns the token
// Strava issues. The refresh token in it is what the importer needs.
func Authenticate(ctx context.Context, conf *oauth2.Config, opts FlowOptions) (*oauth2.Token, error) {
	if opts.ListenAddr == "" {
		opts.ListenAddr = defaultListen
	}
	if opts.OpenURL == nil {
		opts.OpenURL = browser.OpenURL
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDeadline
	}

	listener, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	flowConf := *conf
	flowConf.RedirectURL = "http://" + listener.Addr().String() + callbackPath
	state := uuid.NewString()

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			sendErr(errChan, errors.New("authorization failed: state mismatch"))
			return
		}
		code := q.Get("code")
		if code == "" {
			msg := q.Get("error")
			if msg == "" {
				msg = "no authorization code received"
			}
			http.Error(w, msg, http.StatusBadRequest)
			sendErr(errChan, fmt.Errorf("authorization failed: %s", msg))
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>sportlog is authorized</h1><p>You can close this window.</p></body></html>`)
		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errChan, fmt.Errorf("callback server error: %w", err))
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := flowConf.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))
	fmt.Fprintf(opts.Out, "Opening browser for Strava authorization...\nIf it does not open, visit:\n%s\n\n", authURL)
	if err := opts.OpenURL(authURL); err != nil {
		fmt.Fprintf(opts.Out, "Could not open browser automatically: %v\n", err)
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("authorization timeout")
	}

	token, err := flowConf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
