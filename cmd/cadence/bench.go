package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/loadtest"
	"github.com/CleoKiama/cadence/internal/store"
	"github.com/CleoKiama/cadence/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure query latency during ingestion",
	Long: `Generate a synthetic journal in a temporary directory, ingest it into a
scratch database, and run concurrent queries against the engine while the
ingestion is in flight. Your own database is not touched.

Examples:
  cadence bench
  cadence bench --days 730 --readers 32 --queries 100
  cadence bench --format json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")
		workers, _ := cmd.Flags().GetInt("workers")
		habits, _ := cmd.Flags().GetStringSlice("habits")
		seed, _ := cmd.Flags().GetInt64("seed")
		format := outputFormat(cmd)

		tmp, err := os.MkdirTemp("", "cadence-bench-")
		if err != nil {
			fatalf("creating temp dir: %v", err)
		}
		defer os.RemoveAll(tmp)

		journalDir := filepath.Join(tmp, "journal")
		if _, err := loadtest.GenerateJournal(journalDir, days, habits, seed); err != nil {
			fatalf("%v", err)
		}

		st, err := store.Open(filepath.Join(tmp, "bench.db"))
		if err != nil {
			fatalf("opening scratch database: %v", err)
		}
		defer st.Close()
		if err := st.InitSchema(); err != nil {
			fatalf("initializing schema: %v", err)
		}

		if format == formatText {
			fmt.Printf("%s Benchmarking %d days x %d habits, %d readers x %d queries...\n",
				ui.RenderAccent("⏱"), days, len(habits), readers, queries)
		}

		start := time.Now()
		stats, err := loadtest.Run(context.Background(), st, loadtest.Options{
			Root:             journalDir,
			Readers:          readers,
			QueriesPerReader: queries,
			Workers:          workers,
			Habits:           habits,
		})
		if err != nil {
			fatalf("benchmark failed: %v", err)
		}

		emit(format, stats, func() {
			fmt.Printf("%s Done in %v\n\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
			stats.WriteStats(os.Stdout)
		})
	},
}

func init() {
	benchCmd.Flags().Int("days", 365, "Journal days to generate")
	benchCmd.Flags().Int("readers", 16, "Concurrent query goroutines")
	benchCmd.Flags().Int("queries", 50, "Queries per reader")
	benchCmd.Flags().Int("workers", 4, "Ingestion workers")
	benchCmd.Flags().StringSlice("habits", []string{"workout", "reading", "meditation"}, "Habits in the synthetic journal")
	benchCmd.Flags().Int64("seed", 42, "Random seed")
	benchCmd.Flags().String("format", formatText, "Output format: text, json or yaml")

	rootCmd.AddCommand(benchCmd)
}
