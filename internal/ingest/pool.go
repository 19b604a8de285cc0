package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CleoKiama/cadence/internal/journal"
	"github.com/CleoKiama/cadence/internal/store"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("ingest pool closed")

// MetricStore is the part of the metric store the workers use.
type MetricStore interface {
	journal.FingerprintStore
	TrackedMetrics(ctx context.Context) ([]string, error)
	UpsertMetrics(ctx context.Context, filePath string, metrics []store.Metric) error
	SetFingerprint(ctx context.Context, filePath string, modTime time.Time) error
	DeleteFile(ctx context.Context, filePath string) error
}

// DeletionPolicy decides what happens to the metrics of a journal file
// that no longer exists.
type DeletionPolicy string

const (
	// DeletionKeep leaves the metrics of deleted files in place as history.
	DeletionKeep DeletionPolicy = "keep"
	// DeletionPurge removes the metrics and fingerprint of deleted files.
	DeletionPurge DeletionPolicy = "purge"
)

// ParseDeletionPolicy validates a policy name. An empty name means keep.
func ParseDeletionPolicy(s string) (DeletionPolicy, error) {
	switch DeletionPolicy(s) {
	case "", DeletionKeep:
		return DeletionKeep, nil
	case DeletionPurge:
		return DeletionPurge, nil
	default:
		return "", fmt.Errorf("unknown deletion policy %q (want keep or purge)", s)
	}
}

// Job asks the pool to ingest one file.
type Job struct {
	Path string
	// Tracked, when non-nil, is used instead of re-reading the tracked
	// metric set from the store.
	Tracked []string
	// Force bypasses the re-parse gate.
	Force bool
}

// Outcome is what a worker did with a job.
type Outcome int

const (
	// OutcomeIngested means the file was extracted and stored.
	OutcomeIngested Outcome = iota
	// OutcomeSkipped means the gate found nothing to do.
	OutcomeSkipped
	// OutcomeNoTracked means no metric is tracked, so nothing was read.
	OutcomeNoTracked
	// OutcomeMissing means the file is gone and the metrics were kept.
	OutcomeMissing
	// OutcomeDeleted means the file is gone and its metrics were purged.
	OutcomeDeleted
	// OutcomeFailed means processing failed; Result.Err says why.
	OutcomeFailed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeIngested:
		return "ingested"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoTracked:
		return "no-tracked"
	case OutcomeMissing:
		return "missing"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes the processing of one job.
type Result struct {
	Path    string
	Outcome Outcome
	Records int
	Err     error
}

// Stats counts job outcomes since the pool started.
type Stats struct {
	Ingested int64
	Skipped  int64
	Deleted  int64
	Failed   int64
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent workers (default 4).
	Workers int
	// QueueSize is the capacity of the job channel (default 4).
	QueueSize int
	// Deletion decides what happens to files that vanished.
	Deletion DeletionPolicy
	// Logger for pool activity (default: stderr logger).
	Logger *log.Logger
	// OnResult, when set, is called by the worker after every job.
	// It must not block.
	OnResult func(Result)
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   4,
		QueueSize: 4,
		Deletion:  DeletionKeep,
		Logger:    log.New(os.Stderr, "[ingest] ", log.LstdFlags),
	}
}

// Pool is a fixed set of workers draining a bounded job channel.
type Pool struct {
	store  MetricStore
	config PoolConfig
	logger *log.Logger

	jobs chan Job
	g    errgroup.Group

	// mu guards closed and the send side of jobs.
	mu      sync.RWMutex
	closed  bool
	started atomic.Bool

	ingested atomic.Int64
	skipped  atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
}

// NewPool creates a worker pool. Call Start to launch the workers.
func NewPool(st MetricStore, config PoolConfig) *Pool {
	defaults := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Deletion == "" {
		config.Deletion = defaults.Deletion
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Pool{
		store:  st,
		config: config,
		logger: config.Logger,
		jobs:   make(chan Job, config.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for i := 0; i < p.config.Workers; i++ {
		id := i
		p.g.Go(func() error {
			p.worker(id)
			return nil
		})
	}
	p.logger.Printf("Started %d workers (queue size %d)", p.config.Workers, p.config.QueueSize)
}

// Submit queues a job, blocking while the queue is full.
// Returns ctx.Err() if ctx ends first and ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers drain the queue, and waits
// for them to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	if !p.started.Load() {
		return nil
	}

	err := p.g.Wait()
	p.logger.Println("Workers stopped")
	return err
}

// Stats returns a snapshot of the outcome counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Ingested: p.ingested.Load(),
		Skipped:  p.skipped.Load(),
		Deleted:  p.deleted.Load(),
		Failed:   p.failed.Load(),
	}
}

// worker drains the job channel until it is closed.
func (p *Pool) worker(id int) {
	ctx := context.Background()

	for job := range p.jobs {
		res := p.process(ctx, job)

		switch res.Outcome {
		case OutcomeIngested:
			p.ingested.Add(1)
		case OutcomeDeleted:
			p.deleted.Add(1)
		case OutcomeFailed:
			p.failed.Add(1)
			p.logger.Printf("WARNING: worker %d failed to ingest %s: %v", id, res.Path, res.Err)
		default:
			p.skipped.Add(1)
		}

		if p.config.OnResult != nil {
			p.config.OnResult(res)
		}
	}
}

// process runs gate, extractor and store for one job.
func (p *Pool) process(ctx context.Context, job Job) Result {
	res := Result{Path: job.Path}

	tracked := job.Tracked
	if tracked == nil {
		var err error
		if tracked, err = p.store.TrackedMetrics(ctx); err != nil {
			return failed(res, fmt.Errorf("failed to read tracked metrics: %w", err))
		}
	}
	if len(tracked) == 0 {
		res.Outcome = OutcomeNoTracked
		return res
	}

	decision, err := journal.Decide(ctx, job.Path, p.store)
	if err != nil {
		return failed(res, err)
	}

	if !decision.Exists {
		if p.config.Deletion != DeletionPurge {
			res.Outcome = OutcomeMissing
			return res
		}
		if err := p.store.DeleteFile(ctx, job.Path); err != nil {
			return failed(res, err)
		}
		p.logger.Printf("Purged metrics of deleted file %s", job.Path)
		res.Outcome = OutcomeDeleted
		return res
	}

	if decision.ModTime.IsZero() || (!decision.Process && !job.Force) {
		res.Outcome = OutcomeSkipped
		return res
	}

	records, err := journal.ExtractFile(job.Path, tracked)
	if err != nil {
		return failed(res, err)
	}

	metrics := make([]store.Metric, len(records))
	for i, r := range records {
		metrics[i] = store.Metric{FilePath: job.Path, Name: r.Name, Value: r.Value, Date: r.Date}
	}

	if err := p.store.UpsertMetrics(ctx, job.Path, metrics); err != nil {
		return failed(res, err)
	}
	if err := p.store.SetFingerprint(ctx, job.Path, decision.ModTime); err != nil {
		return failed(res, err)
	}

	res.Outcome = OutcomeIngested
	res.Records = len(records)
	return res
}

func failed(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}
