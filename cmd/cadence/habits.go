package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/config"
	"github.com/CleoKiama/cadence/internal/journal"
	"github.com/CleoKiama/cadence/internal/logging"
	"github.com/CleoKiama/cadence/internal/store"
	"github.com/CleoKiama/cadence/internal/ui"
)

var rootDirCmd = &cobra.Command{
	Use:     "root",
	GroupID: "setup",
	Short:   "Show or change the journal directory",
}

var rootSetCmd = &cobra.Command{
	Use:   "set PATH",
	Short: "Set the journal directory and ingest it",
	Long: `Set the journal directory. The path must be an existing directory; on
failure the previous directory stays configured. The new directory is
ingested immediately.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logs := mustLogs(cfg, false)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()

		root := setRoot(context.Background(), cfg, st, logs, args[0])
		fmt.Printf("%s Journal directory set to %s\n", ui.RenderPass("✓"), root)
	},
}

var rootShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the journal directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		root, ok, err := st.JournalRoot(context.Background())
		if err != nil {
			fatalf("reading journal root: %v", err)
		}
		if !ok {
			fatalf("journal root not configured")
		}
		fmt.Println(root)
	},
}

// setRoot validates, persists and ingests a new journal root.
func setRoot(ctx context.Context, cfg *config.Config, st *store.Store, logs *logging.Output, path string) string {
	root, err := journal.ResolveRoot(config.ExpandPath(path))
	if err != nil {
		fatalf("%v", err)
	}
	if err := st.SetJournalRoot(ctx, root); err != nil {
		fatalf("saving journal root: %v", err)
	}

	result, stats, err := runResync(ctx, cfg, st, logs, root, false, &progressLine{})
	if err != nil {
		fatalf("sync failed: %v", err)
	}
	printSyncResult(result, stats)
	return root
}

// backfill re-extracts the whole journal after the tracked set changed.
// Without a journal root there is nothing to backfill.
func backfill(ctx context.Context, cfg *config.Config, st *store.Store, logs *logging.Output) {
	root, ok, err := st.JournalRoot(ctx)
	if err != nil {
		fatalf("reading journal root: %v", err)
	}
	if !ok {
		return
	}

	result, stats, err := runResync(ctx, cfg, st, logs, root, true, &progressLine{})
	if err != nil {
		fatalf("backfill failed: %v", err)
	}
	printSyncResult(result, stats)
}

var habitsCmd = &cobra.Command{
	Use:     "habits",
	GroupID: "setup",
	Short:   "Manage tracked habits",
	Long: `Manage the habits (front-matter keys) that cadence extracts.

Adding or renaming a habit re-reads the whole journal so past entries are
picked up. Removing a habit stops tracking it and deletes its stored values.`,
}

var habitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked habits",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		activity, err := st.TrackedActivity(context.Background())
		if err != nil {
			fatalf("listing habits: %v", err)
		}
		if len(activity) == 0 {
			fmt.Printf("%s No habits tracked (run 'cadence habits add NAME')\n", ui.RenderWarn("⚠"))
			return
		}

		rows := make([][]string, 0, len(activity))
		for _, m := range activity {
			last := "never"
			if !m.LastUpdated.IsZero() {
				last = m.LastUpdated.Local().Format("2006-01-02 15:04")
			}
			state := ui.RenderMuted("idle")
			if m.Active {
				state = ui.RenderPass("active")
			}
			rows = append(rows, []string{m.Name, fmt.Sprint(m.Entries), last, state})
		}
		fmt.Println(ui.Table([]string{"Habit", "Entries", "Last updated", "State"}, rows))
	},
}

var habitsAddCmd = &cobra.Command{
	Use:   "add NAME...",
	Short: "Track new habits",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logs := mustLogs(cfg, false)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()
		ctx := context.Background()

		added := 0
		for _, name := range args {
			err := st.AddTrackedMetric(ctx, name)
			switch {
			case errors.Is(err, store.ErrMetricExists):
				fmt.Printf("%s %s is already tracked\n", ui.RenderWarn("⚠"), name)
			case err != nil:
				fatalf("adding %s: %v", name, err)
			default:
				added++
				fmt.Printf("%s Tracking %s\n", ui.RenderPass("✓"), strings.TrimSpace(name))
			}
		}
		if added > 0 {
			backfill(ctx, cfg, st, logs)
		}
	},
}

var habitsRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a habit",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		if err := st.RemoveTrackedMetric(context.Background(), args[0]); err != nil {
			fatalf("removing %s: %v", args[0], err)
		}
		fmt.Printf("%s Stopped tracking %s\n", ui.RenderPass("✓"), args[0])
	},
}

var habitsRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a tracked habit",
	Long: `Rename a tracked habit and its stored values, then re-read the journal so
entries using the new key are ingested.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logs := mustLogs(cfg, false)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()
		ctx := context.Background()

		if err := st.RenameTrackedMetric(ctx, args[0], args[1]); err != nil {
			fatalf("renaming %s: %v", args[0], err)
		}
		fmt.Printf("%s Renamed %s to %s\n", ui.RenderPass("✓"), args[0], args[1])
		backfill(ctx, cfg, st, logs)
	},
}

func init() {
	rootDirCmd.AddCommand(rootSetCmd)
	rootDirCmd.AddCommand(rootShowCmd)
	rootCmd.AddCommand(rootDirCmd)

	habitsCmd.AddCommand(habitsListCmd)
	habitsCmd.AddCommand(habitsAddCmd)
	habitsCmd.AddCommand(habitsRemoveCmd)
	habitsCmd.AddCommand(habitsRenameCmd)
	rootCmd.AddCommand(habitsCmd)
}
