package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/daemon"
	"github.com/CleoKiama/cadence/internal/dashboard"
	"github.com/CleoKiama/cadence/internal/ingest"
	"github.com/CleoKiama/cadence/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Watch the journal and serve the live dashboard (foreground)",
	Long: `Run the ingestion daemon in the foreground.

The daemon resyncs the configured journal directory, then watches it and
ingests files as they change. Rapid successive writes are coalesced into one
batch per flush interval.

Unless --no-dashboard is given, a dashboard server is started alongside:
  ws://HOST:PORT/ws              sync_start, sync_progress, sync_complete,
                                 file_ingested and watch_error messages
  http://HOST:PORT/api/summary   analytics summary
  http://HOST:PORT/api/dashboard habit cards

Example usage:
  cadence daemon                      # watch the stored journal directory
  cadence daemon --root ~/journal     # switch directory first
  cadence daemon --port 9000
  cadence daemon --no-dashboard`,
	Run: func(cmd *cobra.Command, args []string) {
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		newRoot, _ := cmd.Flags().GetString("root")

		cfg := mustConfig()
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("host") {
			cfg.Dashboard.Host, _ = cmd.Flags().GetString("host")
		}

		logs := mustLogs(cfg, true)
		defer logs.Close()
		st := mustStore(cfg)
		defer st.Close()

		deletion, err := ingest.ParseDeletionPolicy(cfg.Watcher.DeletionPolicy)
		if err != nil {
			fatalf("watcher.deletion_policy: %v", err)
		}

		dcfg := &daemon.Config{
			FlushInterval:    cfg.Watcher.FlushInterval,
			MaxBatch:         cfg.Watcher.MaxBatch,
			Recursive:        cfg.Watcher.Recursive,
			Deletion:         deletion,
			Workers:          cfg.Ingest.Workers,
			QueueSize:        cfg.Ingest.QueueSize,
			ProgressInterval: cfg.Ingest.ProgressInterval,
			Observer:         &progressLine{},
			Logger:           logs.Logger("daemon"),
			IngestLogger:     logs.Logger("ingest"),
			ResyncLogger:     logs.Logger("resync"),
		}

		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   cfg.Dashboard.Port,
				Engine: newEngine(cfg, st),
				Logger: logs.Logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}

			handler := dashboard.NewHandler(server, logs.Logger("dashboard"))
			dcfg.Observer = ingest.MultiObserver{dcfg.Observer, handler}
			dcfg.OnResult = handler.OnResult
			dcfg.OnWatchError = handler.OnWatchError

			addr := server.GetAddr()
			fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("📡"), addr)
			fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", addr)
		}

		d, err := daemon.NewWithConfig(st, dcfg)
		if err != nil {
			fatalf("creating daemon: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Starting cadence daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", cfg.Database.Path)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fatalf("starting daemon: %v", err)
		}

		if newRoot != "" {
			if _, err := d.SetJournalRoot(ctx, newRoot); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		if d.Root() == "" {
			fmt.Printf("%s No journal directory is being watched (use --root or 'cadence root set PATH')\n", ui.RenderWarn("⚠"))
		}

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := d.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		if server != nil {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			}
		}

		stats := d.Stats()
		fmt.Printf("%s Daemon stopped (ingested %d, unchanged %d, failed %d)\n",
			ui.RenderPass("✓"), stats.Ingested, stats.Skipped, stats.Failed)
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (overrides dashboard.port)")
	daemonCmd.Flags().String("host", "127.0.0.1", "Dashboard host (overrides dashboard.host)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the dashboard server")
	daemonCmd.Flags().String("root", "", "Switch to this journal directory before watching")

	rootCmd.AddCommand(daemonCmd)
}
