package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/CleoKiama/cadence/internal/journal"
)

// Submitter accepts ingestion jobs. *Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// ResyncStore is the part of the metric store a resync uses.
type ResyncStore interface {
	journal.FingerprintWriter
	TrackedMetrics(ctx context.Context) ([]string, error)
}

// ResyncConfig holds configuration for the resync coordinator.
type ResyncConfig struct {
	// ProgressInterval is the minimum time between two progress
	// notifications (default 500ms).
	ProgressInterval time.Duration
	// Recursive scans subdirectories of the journal root.
	Recursive bool
	// Logger for resync activity (default: stderr logger).
	Logger *log.Logger
}

// ResyncOptions tunes a single resync.
type ResyncOptions struct {
	// ForceAll re-extracts every file, bypassing the re-parse gate. Use it
	// after the tracked metric set changed, to back-fill history.
	ForceAll bool
}

// Coordinator runs full directory resyncs into a worker pool.
type Coordinator struct {
	store    ResyncStore
	pool     Submitter
	observer Observer
	config   ResyncConfig
	logger   *log.Logger

	// mu serialises resyncs so progress streams never interleave.
	mu sync.Mutex
}

// NewCoordinator creates a resync coordinator. A nil observer discards
// progress.
func NewCoordinator(st ResyncStore, pool Submitter, observer Observer, config ResyncConfig) *Coordinator {
	if observer == nil {
		observer = NopObserver{}
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[resync] ", log.LstdFlags)
	}

	return &Coordinator{
		store:    st,
		pool:     pool,
		observer: observer,
		config:   config,
		logger:   config.Logger,
	}
}

// Resync scans root and submits every journal file to the pool, in scan
// order, reporting progress to the observer.
//
// A scan failure (missing root, unreadable directory, store error) is
// returned before any notification is sent. Once the scan succeeded the
// observer always sees SyncStarted and SyncComplete.
//
// Cancelling ctx stops further submissions; files already submitted are
// still processed by the pool. Files left unsubmitted get their previous
// fingerprints back, so the next resync picks their changes up. The result
// then has Cancelled set and Resync returns ctx.Err().
//
// Resync returns when every file has been submitted, not when the pool has
// finished processing them.
func (c *Coordinator) Resync(ctx context.Context, root string, opts ResyncOptions) (SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := SyncResult{Root: root}

	candidates, err := journal.Scan(ctx, root, c.store, journal.ScanOptions{Recursive: c.config.Recursive})
	if err != nil {
		return result, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	// One snapshot of the tracked set for the whole run.
	tracked, err := c.store.TrackedMetrics(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read tracked metrics: %w", err)
	}
	if tracked == nil {
		tracked = []string{}
	}

	result.Total = len(candidates)
	c.logger.Printf("Starting resync of %s: %d files, %d tracked metrics", root, result.Total, len(tracked))
	c.observer.SyncStarted(root, result.Total)

	reporter := newProgressReporter(c.observer, c.config.ProgressInterval)
	reporter.start()

	lastPercent := -1
	var submitErr error
	for i, cand := range candidates {
		job := Job{
			Path:    cand.Path,
			Tracked: tracked,
			Force:   opts.ForceAll || cand.Changed,
		}
		if submitErr = c.pool.Submit(ctx, job); submitErr != nil {
			break
		}
		result.Submitted++

		percent := 100 * (i + 1) / result.Total
		if percent != lastPercent {
			reporter.update(percent)
			lastPercent = percent
		}
	}

	result.Cancelled = submitErr != nil && ctx.Err() != nil
	result.Duration = time.Since(start)

	if submitErr != nil {
		// The scan already stored fresh fingerprints for files that were
		// never queued.
		rest := candidates[result.Submitted:]
		if err := journal.Restore(context.WithoutCancel(ctx), c.store, rest); err != nil {
			c.logger.Printf("WARNING: failed to restore fingerprints after interrupted resync: %v", err)
		}
	}
	reporter.finish(result)

	if submitErr != nil {
		c.logger.Printf("Resync of %s stopped after %d/%d files: %v", root, result.Submitted, result.Total, submitErr)
		return result, submitErr
	}

	c.logger.Printf("Resync of %s submitted %d files in %v", root, result.Submitted, result.Duration.Round(time.Millisecond))
	return result, nil
}
