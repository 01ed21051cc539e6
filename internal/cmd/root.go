package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joshdurbin/sportlog/internal/config"
	"github.com/joshdurbin/sportlog/internal/logging"
	"github.com/joshdurbin/sportlog/internal/store"
	"github.com/spf13/cobra"
)

var (
	verbosity  int
	configPath string
	envFile    string
	dbPath     string
	userID     string
	logFormat  string

	// cfg is resolved in PersistentPreRunE before any command runs
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sportlog",
	Short: "sportlog - log sport sessions and expose weekly stats via Model Context Protocol",
	Long: `sportlog records running, cycling and swimming sessions in a local SQLite
database and computes weekly summaries and next-session distance
recommendations from them.

The same data is available:
- From the command line (log, list, summary, recommend)
- To AI assistants through the Model Context Protocol (serve)
- Imported from Strava, once or on a schedule (auth strava, import strava)

Settings are read from defaults, an optional YAML file (--config or
SPORTLOG_CONFIG_PATH), a .env file and SPORTLOG_* environment variables.
Flags win over all of them.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("db") {
			loaded.DB.Path = dbPath
		}
		if flags.Changed("user") {
			loaded.User = userID
		}
		if flags.Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if flags.Changed("port") {
			loaded.Server.Port = mcpPort
		}
		if flags.Changed("metrics-addr") {
			loaded.Server.MetricsAddr = metricsAddr
		}

		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// Set up logging based on verbosity before any command runs
		logging.Setup(logging.Level(verbosity), logging.ParseFormat(loaded.Log.Format))
		cfg = loaded
		return nil
	},
}

func init() {
	// Logging verbosity
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v for debug, -vv for trace with payloads and HTTP headers)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading SPORTLOG_* variables")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "sportlog.db", "path to SQLite database file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "default", "user whose activities are read and written")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output format: console or json")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured database, running migrations if needed
func openStore(ctx context.Context) (*store.Store, error) {
	logging.Logger.Debug().Str("path", cfg.DB.Path).Msg("opening database")
	st, err := store.Open(ctx, cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}
