package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joshdurbin/sportlog/internal/auth"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/joshdurbin/sportlog/internal/strava"
	"github.com/joshdurbin/sportlog/internal/sync"
	"github.com/spf13/cobra"
)

var (
	fullImport   bool
	callbackAddr string
	noBrowser    bool
	logout       bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to an activity provider",
}

var authStravaCmd = &cobra.Command{
	Use:   "strava",
	Short: "Authorize sportlog to read your Strava activities",
	Long: `Open the Strava consent page in a browser and store the resulting
refresh token in the database. Later imports refresh the access token
from it automatically.

Get the client id and secret from https://www.strava.com/settings/api and
set them as SPORTLOG_STRAVA_CLIENT_ID and SPORTLOG_STRAVA_CLIENT_SECRET (or
in the config file). The callback domain of the API application must
match --callback-addr.

Use --logout to forget the stored tokens.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logout {
			return logoutStrava(cmd)
		}
		if !cfg.Strava.Enabled() {
			return errors.New("strava client id and secret are required (SPORTLOG_STRAVA_CLIENT_ID, SPORTLOG_STRAVA_CLIENT_SECRET)")
		}

		ctx, stop := signalContext()
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		opts := auth.FlowOptions{
			ListenAddr: callbackAddr,
			Out:        cmd.ErrOrStderr(),
		}
		if noBrowser {
			opts.OpenURL = func(string) error { return errors.New("disabled by --no-browser") }
		}

		conf := auth.OAuthConfig(cfg.Strava.ClientID, cfg.Strava.ClientSecret)
		token, err := auth.Authenticate(ctx, conf, opts)
		if err != nil {
			return fmt.Errorf("OAuth flow failed: %w", err)
		}
		if err := auth.SaveToken(ctx, st, conf.ClientID, token); err != nil {
			return fmt.Errorf("saving tokens: %w", err)
		}

		logging.Logger.Info().Time("expires_at", token.Expiry).Msg("OAuth authentication successful")
		fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token expires: %s\n", token.Expiry.Format(time.RFC1123))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import activities from an external provider",
}

var importStravaCmd = &cobra.Command{
	Use:   "strava",
	Short: "Import running, cycling and swimming activities from Strava once",
	Long: `Import activities from Strava into the log of the configured user.

By default only activities newer than the latest imported one (minus a
day of overlap) are fetched. Use --full to fetch the whole history.
Re-importing an activity updates it instead of duplicating it.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc, err := newStravaService(ctx, st)
		if err != nil {
			return err
		}

		if last, err := st.LastSyncRun(ctx, sync.Source); err == nil {
			logging.Logger.Info().
				Time("finished_at", last.FinishedAt).
				Int("imported", last.Imported).
				Str("error", last.Error).
				Msg("previous strava import")
		}

		result, err := svc.Sync(ctx, fullImport, func(r strava.FetchResult) {
			logging.Logger.Info().
				Int("page", r.Page).
				Int("fetched", r.TotalFetched).
				Msg("fetched strava page")
		})

		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d, imported %d, updated %d, skipped %d\n",
			result.Fetched, result.Imported, result.Updated, result.Skipped)
		if err != nil {
			return fmt.Errorf("strava import: %w", err)
		}
		return nil
	},
}

var importStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last Strava import",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.LastSyncRun(ctx, sync.Source)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No Strava import yet")
			return nil
		}
		if err != nil {
			return err
		}
		printSyncRun(cmd.OutOrStdout(), run)
		return nil
	},
}

func logoutStrava(cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteCredentials(ctx); err != nil {
		return err
	}
	logging.Logger.Info().Msg("strava credentials deleted")
	fmt.Fprintln(cmd.OutOrStdout(), "Strava tokens removed")
	return nil
}

func printSyncRun(out io.Writer, r store.SyncRun) {
	fmt.Fprintf(out, "Last %s import for %s: %s (took %s)\n", r.Source, r.UserID,
		r.FinishedAt.Format(time.RFC1123), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(out, "Fetched %d, imported %d, updated %d, skipped %d\n", r.Fetched, r.Imported, r.Updated, r.Skipped)
	if r.Error != "" {
		fmt.Fprintf(out, "Failed: %s\n", r.Error)
	}
}

func init() {
	authStravaCmd.Flags().StringVar(&callbackAddr, "callback-addr", "localhost:8089", "address of the local OAuth callback server")
	authStravaCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")
	authStravaCmd.Flags().BoolVar(&logout, "logout", false, "delete the stored Strava tokens")
	authCmd.AddCommand(authStravaCmd)

	importStravaCmd.Flags().BoolVar(&fullImport, "full", false, "fetch the whole history instead of a delta")
	importStravaCmd.AddCommand(importStatusCmd)
	importCmd.AddCommand(importStravaCmd)

	rootCmd.AddCommand(authCmd, importCmd)
}
