package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CleoKiama/cadence/internal/config"
	"github.com/CleoKiama/cadence/internal/journal"
	"github.com/CleoKiama/cadence/internal/store"
	"github.com/CleoKiama/cadence/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: "setup",
	Short:   "Choose the journal directory and habits",
	Long: `Configure cadence interactively: pick the journal directory and the
front-matter keys to track, then ingest the journal.

When stdin is not a terminal, pass the answers as flags:
  cadence setup --root ~/journal --habit workout --habit reading`,
	Run: func(cmd *cobra.Command, args []string) {
		root, _ := cmd.Flags().GetString("root")
		habits, _ := cmd.Flags().GetStringSlice("habit")

		cfg := mustConfig()
		logs := mustLogs(cfg, false)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()
		ctx := context.Background()

		if root == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatalf("stdin is not a terminal; pass --root and --habit")
			}

			current, _, err := st.JournalRoot(ctx)
			if err != nil {
				fatalf("reading journal root: %v", err)
			}
			tracked, err := st.TrackedMetrics(ctx)
			if err != nil {
				fatalf("reading tracked habits: %v", err)
			}

			root, habits, err = runSetupForm(current, tracked)
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Setup cancelled")
					return
				}
				fatalf("%v", err)
			}
		}

		for _, name := range habits {
			err := st.AddTrackedMetric(ctx, name)
			if err != nil && !errors.Is(err, store.ErrMetricExists) {
				fatalf("adding %s: %v", name, err)
			}
		}

		// The tracked set may have changed: re-read everything.
		abs, err := journal.ResolveRoot(config.ExpandPath(root))
		if err != nil {
			fatalf("%v", err)
		}
		if err := st.SetJournalRoot(ctx, abs); err != nil {
			fatalf("saving journal root: %v", err)
		}
		result, stats, err := runResync(ctx, cfg, st, logs, abs, true, &progressLine{})
		if err != nil {
			fatalf("sync failed: %v", err)
		}
		printSyncResult(result, stats)
		fmt.Printf("%s Setup complete. Try 'cadence analytics'.\n", ui.RenderPass("✓"))
	},
}

// runSetupForm asks for the journal directory and a comma separated habit
// list, prefilled with the current values.
func runSetupForm(currentRoot string, tracked []string) (string, []string, error) {
	root := currentRoot
	habitList := strings.Join(tracked, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Journal directory").
				Description("Directory holding YYYY-MM-DD.md files").
				Value(&root).
				Validate(func(s string) error {
					_, err := journal.ResolveRoot(config.ExpandPath(strings.TrimSpace(s)))
					return err
				}),
			huh.NewInput().
				Title("Habits to track").
				Description("Front-matter keys, comma separated (e.g. workout, reading)").
				Value(&habitList),
		),
	)
	if err := form.Run(); err != nil {
		return "", nil, err
	}

	return config.ExpandPath(strings.TrimSpace(root)), splitHabits(habitList), nil
}

func splitHabits(s string) []string {
	var habits []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			habits = append(habits, name)
		}
	}
	return habits
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := configFile
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path, force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		emit(outputFormat(cmd), cfg, func() {
			source := cfg.File
			if source == "" {
				source = "defaults (no config file)"
			}
			fmt.Printf("Source: %s\n", source)
			fmt.Printf("database.path            = %s\n", cfg.Database.Path)
			fmt.Printf("watcher.flush_interval   = %v\n", cfg.Watcher.FlushInterval)
			fmt.Printf("watcher.max_batch        = %d\n", cfg.Watcher.MaxBatch)
			fmt.Printf("watcher.recursive        = %t\n", cfg.Watcher.Recursive)
			fmt.Printf("watcher.deletion_policy  = %s\n", cfg.Watcher.DeletionPolicy)
			fmt.Printf("ingest.workers           = %d\n", cfg.Ingest.Workers)
			fmt.Printf("ingest.queue_size        = %d\n", cfg.Ingest.QueueSize)
			fmt.Printf("ingest.progress_interval = %v\n", cfg.Ingest.ProgressInterval)
			fmt.Printf("query.week_start         = %s\n", cfg.Query.WeekStart)
			fmt.Printf("dashboard.host           = %s\n", cfg.Dashboard.Host)
			fmt.Printf("dashboard.port           = %d\n", cfg.Dashboard.Port)
			fmt.Printf("log.file                 = %s\n", cfg.Log.File)
		})
	},
}

func init() {
	setupCmd.Flags().String("root", "", "Journal directory (skips the interactive form)")
	setupCmd.Flags().StringSlice("habit", nil, "Habit to track (repeatable)")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	configShowCmd.Flags().String("format", formatText, "Output format: text, json or yaml")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(configCmd)
}
