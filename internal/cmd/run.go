package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshdurbin/sportlog/internal/auth"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/metrics"
	"github.com/joshdurbin/sportlog/internal/server"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/joshdurbin/sportlog/internal/strava"
	"github.com/joshdurbin/sportlog/internal/sync"
	"github.com/joshdurbin/sportlog/internal/workers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	mcpPort     int
	metricsAddr string
	noSync      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server, with scheduled Strava sync when configured",
	Long: `Run the MCP server exposing the activity log to AI assistants.

The server runs with:
- MCP over HTTP/SSE on --port, or over stdio with --port 0
- Prometheus metrics on --metrics-addr when set
- Periodic Strava import on the configured cron schedule when Strava
  client credentials and a refresh token are available
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&mcpPort, "port", "p", 8080, "MCP server port (0 for stdio mode)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address serving Prometheus /metrics, e.g. :9090 (disabled when empty)")
	serveCmd.Flags().BoolVar(&noSync, "no-sync", false, "run MCP server only without Strava import (offline mode)")
	rootCmd.AddCommand(serveCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// Run is the main entry point of the serve mode
func Run(ctx context.Context) error {
	log := logging.Logger

	log.Info().
		Str("db_path", cfg.DB.Path).
		Int("mcp_port", cfg.Server.Port).
		Str("metrics_addr", cfg.Server.MetricsAddr).
		Str("user", cfg.User).
		Bool("no_sync", noSync).
		Str("sync_schedule", cfg.Strava.Schedule).
		Msg("starting sportlog")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	workers.LogDatabaseStats(ctx, st)

	// the MCP session ending (stdin closed) stops the workers too
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start background workers with errgroup for graceful shutdown
	g, gCtx := errgroup.WithContext(ctx)

	if noSync {
		log.Info().Msg("running in offline mode (--no-sync), skipping Strava import")
	} else if syncer, err := newStravaService(ctx, st); err != nil {
		log.Warn().Err(err).Msg("strava import disabled")
	} else {
		log.Info().Msg("starting background workers")
		activitySyncer := workers.NewActivitySyncer(syncer, cfg.Strava.Schedule)
		g.Go(func() error {
			return activitySyncer.Run(gCtx)
		})
	}

	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			return serveHTTP(gCtx, "metrics", cfg.Server.MetricsAddr, metricsMux())
		})
	}

	srv := server.New(st, server.Options{
		User:     cfg.User,
		Locale:   cfg.Locale,
		Lookback: cfg.Lookback,
	})

	g.Go(func() error {
		defer cancel()
		if cfg.Server.Port > 0 {
			return runHTTPServer(gCtx, srv.MCPServer(), cfg.Server.Port)
		}
		log.Info().Msg("MCP server running via stdio")
		return srv.Run(gCtx)
	})

	log.Info().Msg("waiting for workers to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("all workers shut down gracefully")
	return nil
}

// newStravaService wires the token source, API client and sync service
// from the configuration. The refresh token may come from the config or
// from a previous 'sportlog auth strava'.
func newStravaService(ctx context.Context, st *store.Store) (*sync.Service, error) {
	if !cfg.Strava.Enabled() {
		return nil, errors.New("strava client id and secret are not configured")
	}

	conf := auth.OAuthConfig(cfg.Strava.ClientID, cfg.Strava.ClientSecret)
	tokens, err := auth.TokenSource(ctx, st, conf, cfg.Strava.RefreshToken)
	if err != nil {
		return nil, err
	}

	opts := []strava.Option{strava.WithRetryConfig(strava.DefaultRetryConfig())}
	if cfg.Strava.BaseURL != "" {
		opts = append(opts, strava.WithBaseURL(cfg.Strava.BaseURL))
	}
	return sync.NewService(st, strava.NewClient(tokens, opts...), cfg.User), nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// runHTTPServer runs the MCP server over HTTP/SSE
func runHTTPServer(ctx context.Context, mcpServer *mcp.Server, port int) error {
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	return serveHTTP(ctx, "mcp", fmt.Sprintf(":%d", port), handler)
}

// serveHTTP serves handler on addr until ctx is cancelled
func serveHTTP(ctx context.Context, name, addr string, handler http.Handler) error {
	log := logging.Logger

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().
			Str("server", name).
			Str("address", addr).
			Str("endpoint", fmt.Sprintf("http://localhost%s", addr)).
			Msg("HTTP server running")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Str("server", name).Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("%s server: %w", name, err)
	}
}
