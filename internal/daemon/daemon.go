package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/CleoKiama/cadence/internal/ingest"
	"github.com/CleoKiama/cadence/internal/journal"
	"github.com/CleoKiama/cadence/internal/store"
)

// ErrNoJournalRoot is returned by operations that need a journal root when
// none has been configured.
var ErrNoJournalRoot = errors.New("journal root not configured")

// Config holds configuration for the daemon.
type Config struct {
	// FlushInterval is the longest a changed path waits in the coalescing
	// buffer before it is submitted.
	FlushInterval time.Duration

	// MaxBatch flushes the coalescing buffer early once it holds this many
	// distinct paths.
	MaxBatch int

	// Recursive watches and scans subdirectories of the journal root.
	Recursive bool

	// Deletion decides whether deleted journal files lose their metrics.
	Deletion ingest.DeletionPolicy

	// Workers and QueueSize size the ingestion pool.
	Workers   int
	QueueSize int

	// ProgressInterval throttles resync progress notifications.
	ProgressInterval time.Duration

	// Observer receives resync progress. Optional.
	Observer ingest.Observer

	// OnResult is called after every ingestion job. Optional; must not block.
	OnResult func(ingest.Result)

	// OnWatchError is called for every watcher error. Optional; must not block.
	OnWatchError func(error)

	// Logger for daemon activity
	Logger *log.Logger

	// IngestLogger and ResyncLogger are handed to the pool and the resync
	// coordinator. Nil keeps their own "[ingest] " and "[resync] " loggers.
	IngestLogger *log.Logger
	ResyncLogger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FlushInterval:    500 * time.Millisecond,
		MaxBatch:         32,
		Deletion:         ingest.DeletionKeep,
		Workers:          4,
		QueueSize:        4,
		ProgressInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the change watcher, the coalescer, the ingestion pool and
// the resync coordinator around one metric store, and owns the lifecycle of
// the journal root.
type Daemon struct {
	store   *store.Store
	config  *Config
	logger  *log.Logger
	watcher *FileWatcher
	pool    *ingest.Pool
	coord   *ingest.Coordinator

	coalescer *Coalescer

	// rootMu serialises changes to the root and the tracked metric set so
	// the unwatch, resync, watch sequence runs as one action.
	rootMu sync.Mutex
	root   string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWithConfig creates a daemon with custom configuration.
// Use Start to begin watching and ingesting.
func NewWithConfig(st *store.Store, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := NewFileWatcher(WatcherOptions{Recursive: config.Recursive})
	if err != nil {
		return nil, err
	}

	pool := ingest.NewPool(st, ingest.PoolConfig{
		Workers:   config.Workers,
		QueueSize: config.QueueSize,
		Deletion:  config.Deletion,
		Logger:    config.IngestLogger,
		OnResult:  config.OnResult,
	})

	coord := ingest.NewCoordinator(st, pool, config.Observer, ingest.ResyncConfig{
		ProgressInterval: config.ProgressInterval,
		Recursive:        config.Recursive,
		Logger:           config.ResyncLogger,
	})

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		store:   st,
		config:  config,
		logger:  config.Logger,
		watcher: watcher,
		pool:    pool,
		coord:   coord,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.coalescer = NewCoalescer(config.MaxBatch, config.FlushInterval, d.submitBatch)
	return d, nil
}

// Start launches the pool, the watcher and the coalescer, then resyncs and
// watches the stored journal root, if any. It returns once the daemon is
// running; use Run to block until shutdown.
//
// A stored root that no longer exists is logged and left unwatched; the
// daemon keeps running so a new root can be set.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	d.pool.Start()
	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.watchErrors()
	go func() {
		defer d.wg.Done()
		d.coalescer.Run(d.ctx)
	}()

	settings, err := d.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	if len(settings.TrackedMetrics) == 0 {
		d.logger.Println("No habits tracked yet; files are fingerprinted but nothing is extracted")
	}
	if !settings.HasRoot {
		d.logger.Println("No journal root configured; waiting for one to be set")
		return nil
	}

	d.rootMu.Lock()
	defer d.rootMu.Unlock()

	root := settings.JournalRoot
	if _, err := d.coord.Resync(ctx, root, ingest.ResyncOptions{}); err != nil {
		d.logger.Printf("WARNING: initial resync of %s failed: %v", root, err)
		return nil
	}
	d.root = root
	d.watchLocked(root)
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		d.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
	case <-d.ctx.Done():
	}
	return d.Stop()
}

// Stop gracefully shuts down the daemon. Paths still waiting in the
// coalescing buffer are dropped; jobs already queued in the pool are
// finished.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Println("Stopping daemon")

		// Signal shutdown
		d.cancel()

		// Stopping the watcher closes its channels and ends the forwarders
		if werr := d.watcher.Stop(); werr != nil {
			d.logger.Printf("Error closing watcher: %v", werr)
		}

		d.wg.Wait()

		if perr := d.pool.Close(); perr != nil {
			err = fmt.Errorf("failed to stop workers: %w", perr)
		}

		d.logger.Println("Daemon stopped")
	})
	return err
}

// Root returns the active journal root, or "" before one was resynced.
// The root stays active when watching it failed.
func (d *Daemon) Root() string {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()
	return d.root
}

// Stats returns the ingestion counters since start.
func (d *Daemon) Stats() ingest.Stats {
	return d.pool.Stats()
}

// SetJournalRoot switches ingestion to a new journal directory: it resyncs
// the new root, persists it, stops watching the old one and watches the new
// one. The daemon must have been started.
//
// A path that is not an existing directory, or whose resync fails or is
// cancelled, is rejected and the previous root stays stored and watched.
// Watch failures are only logged; the new root is active either way.
func (d *Daemon) SetJournalRoot(ctx context.Context, path string) (ingest.SyncResult, error) {
	abs, err := journal.ResolveRoot(path)
	if err != nil {
		return ingest.SyncResult{}, err
	}

	d.rootMu.Lock()
	defer d.rootMu.Unlock()

	result, err := d.coord.Resync(ctx, abs, ingest.ResyncOptions{})
	if err != nil {
		return result, err
	}
	if err := d.store.SetJournalRoot(ctx, abs); err != nil {
		return result, err
	}

	if d.root != "" && d.root != abs {
		if uerr := d.watcher.Unwatch(d.root); uerr != nil {
			d.logger.Printf("WARNING: failed to unwatch %s: %v", d.root, uerr)
		}
		d.logger.Printf("Stopped watching: %s", d.root)
	}
	d.root = abs
	d.watchLocked(abs)
	return result, nil
}

// watchLocked starts watching root. Failures are logged and reported to
// OnWatchError, never returned. d.rootMu must be held.
func (d *Daemon) watchLocked(root string) {
	if err := d.watcher.Watch(root); err != nil {
		d.logger.Printf("WARNING: failed to watch %s: %v", root, err)
		if d.config.OnWatchError != nil {
			d.config.OnWatchError(err)
		}
		return
	}
	d.logger.Printf("Watching: %s", root)
}

// Resync rescans the current journal root. With force set, every file is
// re-extracted regardless of its fingerprint.
func (d *Daemon) Resync(ctx context.Context, force bool) (ingest.SyncResult, error) {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()
	return d.resyncLocked(ctx, force)
}

func (d *Daemon) resyncLocked(ctx context.Context, force bool) (ingest.SyncResult, error) {
	root := d.root
	if root == "" {
		stored, ok, err := d.store.JournalRoot(ctx)
		if err != nil {
			return ingest.SyncResult{}, fmt.Errorf("failed to read journal root: %w", err)
		}
		if !ok {
			return ingest.SyncResult{}, ErrNoJournalRoot
		}
		root = stored
	}
	return d.coord.Resync(ctx, root, ingest.ResyncOptions{ForceAll: force})
}

// AddHabit starts tracking a metric and back-fills it from the whole
// journal.
func (d *Daemon) AddHabit(ctx context.Context, name string) error {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()

	if err := d.store.AddTrackedMetric(ctx, name); err != nil {
		return err
	}
	return d.backfillLocked(ctx)
}

// RemoveHabit stops tracking a metric and deletes its stored values.
func (d *Daemon) RemoveHabit(ctx context.Context, name string) error {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()
	return d.store.RemoveTrackedMetric(ctx, name)
}

// RenameHabit renames a tracked metric and its stored values, then resyncs
// so values written under the new key are picked up.
func (d *Daemon) RenameHabit(ctx context.Context, oldName, newName string) error {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()

	if err := d.store.RenameTrackedMetric(ctx, oldName, newName); err != nil {
		return err
	}
	return d.backfillLocked(ctx)
}

// backfillLocked forces a resync after the tracked set changed. Having no
// root yet is not an error.
func (d *Daemon) backfillLocked(ctx context.Context) error {
	_, err := d.resyncLocked(ctx, true)
	if errors.Is(err, ErrNoJournalRoot) {
		return nil
	}
	return err
}

// watchFileEvents forwards journal file events to the coalescer.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}

			if event.Op == OpDelete && d.config.Deletion != ingest.DeletionPurge {
				continue
			}

			d.coalescer.Add(event.Path)
		}
	}
}

func (d *Daemon) watchErrors() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)
			if d.config.OnWatchError != nil {
				d.config.OnWatchError(err)
			}
		}
	}
}

// submitBatch hands a coalesced batch to the pool. Each job re-reads the
// tracked metric set so watcher ingestion follows habit changes.
func (d *Daemon) submitBatch(paths []string) {
	for _, path := range paths {
		if err := d.pool.Submit(d.ctx, ingest.Job{Path: path}); err != nil {
			if d.ctx.Err() == nil {
				d.logger.Printf("WARNING: failed to queue %s: %v", path, err)
			}
			return
		}
	}
}
