// Package loadtest measures query latency of the metric store while a resync
// writes into it.
//
// GenerateJournal writes a synthetic journal; Run ingests it through the
// regular worker pool while concurrent readers hit the query engine, and
// reports latency statistics for the readers.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CleoKiama/cadence/internal/ingest"
	"github.com/CleoKiama/cadence/internal/query"
	"github.com/CleoKiama/cadence/internal/store"
)

// LatencyStats captures performance metrics from a load run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration `json:"-" yaml:"-"`
}

// Options configures Run.
type Options struct {
	// Root is the journal directory resynced during the run. Empty skips the
	// resync and only measures reads.
	Root string
	// Readers is the number of concurrent query goroutines (default 8).
	Readers int
	// QueriesPerReader bounds each reader (default 50).
	QueriesPerReader int
	// Workers sizes the ingestion pool (default 4).
	Workers int
	// Habits are tracked before the resync and queried by readers.
	Habits []string
	// Now fixes "today" for the query engine (default time.Now).
	Now func() time.Time
	// Logger for pool activity (default: discarded).
	Logger *log.Logger
}

// GenerateJournal writes one journal file per day for the days before
// today, each with a random value per habit. Roughly one value in five is
// zero. The same seed always produces the same files.
func GenerateJournal(dir string, days int, habits []string, seed int64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	today := store.CivilDate(time.Now())
	paths := make([]string, 0, days)

	for i := days; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)

		var b strings.Builder
		b.WriteString("---\n")
		for _, habit := range habits {
			value := 0
			if rng.Intn(5) > 0 {
				value = 1 + rng.Intn(60)
			}
			fmt.Fprintf(&b, "%s: %d\n", habit, value)
		}
		b.WriteString("mood: synthetic\n---\n\n")
		fmt.Fprintf(&b, "Generated entry for %s.\n", day.Format(store.DateLayout))

		path := filepath.Join(dir, day.Format(store.DateLayout)+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// Run ingests opts.Root (when set) while opts.Readers goroutines run a mix
// of engine queries, and returns the readers' latency statistics. Query
// errors are counted, not fatal.
func Run(ctx context.Context, st *store.Store, opts Options) (*LatencyStats, error) {
	if opts.Readers <= 0 {
		opts.Readers = 8
	}
	if opts.QueriesPerReader <= 0 {
		opts.QueriesPerReader = 50
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	for _, habit := range opts.Habits {
		if err := st.AddTrackedMetric(ctx, habit); err != nil && !errors.Is(err, store.ErrMetricExists) {
			return nil, fmt.Errorf("failed to track %s: %w", habit, err)
		}
	}

	var engineOpts []query.Option
	if opts.Now != nil {
		engineOpts = append(engineOpts, query.WithClock(opts.Now))
	}
	engine := query.NewEngine(st, engineOpts...)

	pool := ingest.NewPool(st, ingest.PoolConfig{Workers: opts.Workers, Logger: opts.Logger})
	pool.Start()
	coord := ingest.NewCoordinator(st, pool, nil, ingest.ResyncConfig{Logger: opts.Logger})

	g, gctx := errgroup.WithContext(ctx)

	if opts.Root != "" {
		g.Go(func() error {
			if _, err := coord.Resync(gctx, opts.Root, ingest.ResyncOptions{}); err != nil {
				return fmt.Errorf("resync failed: %w", err)
			}
			return nil
		})
	}

	var mu sync.Mutex
	var allDurations []time.Duration
	var errorCount int

	for i := 0; i < opts.Readers; i++ {
		reader := i
		g.Go(func() error {
			durations := make([]time.Duration, 0, opts.QueriesPerReader)
			errs := 0

			for j := 0; j < opts.QueriesPerReader; j++ {
				if gctx.Err() != nil {
					break
				}

				start := time.Now()
				err := runQuery(gctx, engine, opts.Habits, reader+j)
				durations = append(durations, time.Since(start))

				if err != nil && gctx.Err() == nil {
					errs++
					opts.Logger.Printf("WARNING: reader %d query %d failed: %v", reader, j, err)
				}
			}

			mu.Lock()
			allDurations = append(allDurations, durations...)
			errorCount += errs
			mu.Unlock()
			return nil
		})
	}

	runErr := g.Wait()
	if err := pool.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return nil, runErr
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// runQuery issues one query, rotating through the dashboard's read paths.
func runQuery(ctx context.Context, engine *query.Engine, habits []string, n int) error {
	habit := ""
	if len(habits) > 0 {
		habit = habits[n%len(habits)]
	}

	var err error
	switch n % 5 {
	case 0:
		_, err = engine.CurrentStreak(ctx, habit)
	case 1:
		_, err = engine.HeatmapSeries(ctx, habit, 90)
	case 2:
		_, err = engine.Summary(ctx)
	case 3:
		_, err = engine.Dashboard(ctx)
	default:
		_, err = engine.WeeklyActivity(ctx)
	}
	return err
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	// Sort durations for percentile calculation
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// WriteStats formats latency statistics.
func (s *LatencyStats) WriteStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
