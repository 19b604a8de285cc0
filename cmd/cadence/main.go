// Command cadence ingests a directory of dated Markdown journal files into a
// local SQLite store and answers habit-tracking queries over it.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/config"
	"github.com/CleoKiama/cadence/internal/logging"
	"github.com/CleoKiama/cadence/internal/query"
	"github.com/CleoKiama/cadence/internal/store"
	"github.com/CleoKiama/cadence/internal/ui"
)

var (
	configFile string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Habit tracking over a Markdown journal",
	Long: `cadence reads numeric habit values from the front matter of dated journal
files (YYYY-MM-DD.md), keeps them in a local SQLite database, and reports
streaks, rollups and heatmaps.

Get started:
  cadence setup                     # pick the journal directory and habits
  cadence sync                      # ingest the journal
  cadence analytics                 # overview of every habit
  cadence daemon                    # watch the journal and serve the dashboard`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/cadence/cadence.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "sync", Title: "Ingestion:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// mustConfig loads the configuration, applying --db.
func mustConfig() *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		fatalf("%v", err)
	}
	if dbPath != "" {
		cfg.Database.Path = config.ExpandPath(dbPath)
	}
	return cfg
}

// mustLogs opens the log output. Pipeline logs reach stderr only with -v
// unless always is set.
func mustLogs(cfg *config.Config, always bool) *logging.Output {
	return logging.Open(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Quiet:      !verbose && !always,
	})
}

// mustStore opens and migrates the database.
func mustStore(cfg *config.Config) *store.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		fatalf("failed to create database directory: %v", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fatalf("opening database: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		fatalf("initializing schema: %v", err)
	}
	return st
}

// newEngine builds a query engine honoring query.week_start.
func newEngine(cfg *config.Config, st *store.Store, opts ...query.Option) *query.Engine {
	weekStart, err := query.ParseWeekday(cfg.Query.WeekStart)
	if err != nil {
		fatalf("query.week_start: %v", err)
	}
	return query.NewEngine(st, append([]query.Option{query.WithWeekStart(weekStart)}, opts...)...)
}
