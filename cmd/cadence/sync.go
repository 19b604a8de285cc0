package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/config"
	"github.com/CleoKiama/cadence/internal/ingest"
	"github.com/CleoKiama/cadence/internal/logging"
	"github.com/CleoKiama/cadence/internal/store"
	"github.com/CleoKiama/cadence/internal/ui"
)

// progressLine redraws a single progress bar line while a resync runs.
type progressLine struct {
	ingest.NopObserver
	total int
}

func (p *progressLine) SyncStarted(root string, total int) {
	p.total = total
	fmt.Printf("%s Syncing %d journal files from %s\n", ui.RenderAccent("🔄"), total, root)
}

func (p *progressLine) SyncProgress(percent int) {
	fmt.Printf("\r   %s", ui.ProgressBar(percent, 30))
}

func (p *progressLine) SyncComplete(result ingest.SyncResult) {
	if p.total > 0 {
		fmt.Println()
	}
}

// runResync ingests root once through a fresh worker pool and waits until
// every submitted file has been processed.
func runResync(ctx context.Context, cfg *config.Config, st *store.Store, logs *logging.Output, root string, force bool, observer ingest.Observer) (ingest.SyncResult, ingest.Stats, error) {
	deletion, err := ingest.ParseDeletionPolicy(cfg.Watcher.DeletionPolicy)
	if err != nil {
		return ingest.SyncResult{}, ingest.Stats{}, err
	}

	pool := ingest.NewPool(st, ingest.PoolConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Deletion:  deletion,
		Logger:    logs.Logger("ingest"),
	})
	pool.Start()

	coord := ingest.NewCoordinator(st, pool, observer, ingest.ResyncConfig{
		ProgressInterval: cfg.Ingest.ProgressInterval,
		Recursive:        cfg.Watcher.Recursive,
		Logger:           logs.Logger("resync"),
	})

	result, err := coord.Resync(ctx, root, ingest.ResyncOptions{ForceAll: force})
	if closeErr := pool.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return result, pool.Stats(), err
}

// printSyncResult reports a finished resync.
func printSyncResult(result ingest.SyncResult, stats ingest.Stats) {
	if result.Cancelled {
		fmt.Printf("%s Sync cancelled after %d of %d files\n", ui.RenderWarn("⚠"), result.Submitted, result.Total)
		return
	}
	fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), result.Duration.Round(time.Millisecond))
	fmt.Printf("   Files: %d\n", result.Total)
	fmt.Printf("   Ingested: %d, unchanged: %d, failed: %d\n", stats.Ingested, stats.Skipped, stats.Failed)
	if stats.Deleted > 0 {
		fmt.Printf("   Purged: %d\n", stats.Deleted)
	}
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Ingest the journal once",
	Long: `Scan the journal directory and ingest every new or modified file.

Files whose modification time matches the stored fingerprint are skipped
unless --force is given, which re-extracts every file (use it after editing
the tracked habit list by hand).`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		cfg := mustConfig()
		logs := mustLogs(cfg, false)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		root, ok, err := st.JournalRoot(ctx)
		if err != nil {
			fatalf("reading journal root: %v", err)
		}
		if !ok {
			fatalf("journal root not configured (run 'cadence root set PATH' or 'cadence setup')")
		}

		result, stats, err := runResync(ctx, cfg, st, logs, root, force, &progressLine{})
		if err != nil && !result.Cancelled {
			fatalf("sync failed: %v", err)
		}
		printSyncResult(result, stats)
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show database and journal status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()
		ctx := context.Background()

		root, hasRoot, err := st.JournalRoot(ctx)
		if err != nil {
			fatalf("reading journal root: %v", err)
		}
		tracked, err := st.TrackedMetrics(ctx)
		if err != nil {
			fatalf("reading tracked habits: %v", err)
		}
		files, err := st.FileCount(ctx)
		if err != nil {
			fatalf("counting files: %v", err)
		}
		rows, err := st.MetricCount(ctx)
		if err != nil {
			fatalf("counting metrics: %v", err)
		}
		first, last, hasData, err := st.DateRange(ctx)
		if err != nil {
			fatalf("reading date range: %v", err)
		}

		fmt.Printf("\n%s Cadence Status\n\n", ui.RenderAccent("📊"))
		if hasRoot {
			fmt.Printf("Journal: %s\n", root)
		} else {
			fmt.Printf("Journal: %s\n", ui.RenderWarn("not configured"))
		}
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		if info, err := os.Stat(cfg.Database.Path); err == nil {
			fmt.Printf("Size: %s\n", formatSize(info.Size()))
		}
		if cfg.File != "" {
			fmt.Printf("Config: %s\n", cfg.File)
		}
		fmt.Printf("Tracked habits: %d %v\n", len(tracked), tracked)
		fmt.Printf("Files: %d\n", files)
		fmt.Printf("Metric rows: %d\n", rows)
		if hasData {
			fmt.Printf("Dates: %s to %s\n", first.Format(store.DateLayout), last.Format(store.DateLayout))
		}
		fmt.Println()
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	syncCmd.Flags().BoolP("force", "f", false, "Re-extract every file regardless of fingerprints")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
