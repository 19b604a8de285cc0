package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CleoKiama/cadence/internal/journal"
)

// recordingObserver captures every notification of a resync.
type recordingObserver struct {
	mu       sync.Mutex
	events   []string
	percents []int
	stamps   []time.Time
	result   SyncResult
	done     chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{done: make(chan struct{})}
}

func (o *recordingObserver) SyncStarted(root string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf("start:%d", total))
}

func (o *recordingObserver) SyncProgress(percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "progress")
	o.percents = append(o.percents, percent)
	o.stamps = append(o.stamps, time.Now())
}

func (o *recordingObserver) SyncComplete(result SyncResult) {
	o.mu.Lock()
	o.events = append(o.events, "complete")
	o.result = result
	o.mu.Unlock()
	close(o.done)
}

func (o *recordingObserver) snapshot() ([]string, []int, []time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...), append([]int(nil), o.percents...), append([]time.Time(nil), o.stamps...)
}

func seedJournal(t *testing.T, dir string, days int) {
	t.Helper()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		name := start.AddDate(0, 0, i).Format("2006-01-02") + ".md"
		writeJournal(t, dir, name, fmt.Sprintf("---\nworkout: %d\n---\n", i+1))
	}
}

func TestResync_IngestsEveryFile(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	root := t.TempDir()
	seedJournal(t, root, 30)

	pool := newTestPool(st, nil, DeletionKeep)
	obs := newRecordingObserver()
	coord := NewCoordinator(st, pool, obs, ResyncConfig{ProgressInterval: 10 * time.Millisecond, Logger: quietLogger()})

	result, err := coord.Resync(ctx, root, ResyncOptions{})
	if err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}
	if result.Total != 30 || result.Submitted != 30 || result.Cancelled {
		t.Errorf("Resync() result = %+v", result)
	}

	select {
	case <-obs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for sync complete")
	}

	pool.Close()

	if n, _ := st.MetricCount(ctx); n != 30 {
		t.Errorf("MetricCount() = %d, want 30", n)
	}

	events, percents, _ := obs.snapshot()
	if events[0] != "start:30" {
		t.Errorf("first event = %s, want start:30", events[0])
	}
	if events[len(events)-1] != "complete" {
		t.Errorf("last event = %s, want complete", events[len(events)-1])
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("progress = %v, want it to end at 100", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("progress not strictly increasing: %v", percents)
			break
		}
	}
}

func TestResync_ThrottlesProgress(t *testing.T) {
	st := setupTestStore(t, "workout")
	root := t.TempDir()
	seedJournal(t, root, 200)

	interval := 50 * time.Millisecond
	pool := newTestPool(st, nil, DeletionKeep)
	defer pool.Close()

	obs := newRecordingObserver()
	coord := NewCoordinator(st, pool, obs, ResyncConfig{ProgressInterval: interval, Logger: quietLogger()})

	start := time.Now()
	if _, err := coord.Resync(context.Background(), root, ResyncOptions{}); err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}
	elapsed := time.Since(start)

	_, percents, stamps := obs.snapshot()

	// At most one flush per tick, the final one included.
	maxFlushes := int(elapsed/interval) + 1
	if len(percents) > maxFlushes {
		t.Errorf("got %d progress events in %v, want at most %d", len(percents), elapsed, maxFlushes)
	}

	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval/2 {
			t.Errorf("progress events %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestResync_EmptyDirectory(t *testing.T) {
	st := setupTestStore(t, "workout")
	pool := newTestPool(st, nil, DeletionKeep)
	defer pool.Close()

	obs := newRecordingObserver()
	coord := NewCoordinator(st, pool, obs, ResyncConfig{Logger: quietLogger()})

	result, err := coord.Resync(context.Background(), t.TempDir(), ResyncOptions{})
	if err != nil {
		t.Fatalf("Resync() failed: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}

	events, percents, _ := obs.snapshot()
	if len(events) != 2 || events[0] != "start:0" || events[1] != "complete" {
		t.Errorf("events = %v, want [start:0 complete]", events)
	}
	if len(percents) != 0 {
		t.Errorf("progress on empty scan = %v", percents)
	}
}

func TestResync_MissingRoot(t *testing.T) {
	st := setupTestStore(t, "workout")
	pool := newTestPool(st, nil, DeletionKeep)
	defer pool.Close()

	obs := newRecordingObserver()
	coord := NewCoordinator(st, pool, obs, ResyncConfig{Logger: quietLogger()})

	_, err := coord.Resync(context.Background(), filepath.Join(t.TempDir(), "gone"), ResyncOptions{})
	if !errors.Is(err, journal.ErrRootMissing) {
		t.Errorf("Resync() error = %v, want ErrRootMissing", err)
	}

	if events, _, _ := obs.snapshot(); len(events) != 0 {
		t.Errorf("failed scan notified the observer: %v", events)
	}
}

func TestResync_Cancelled(t *testing.T) {
	st := setupTestStore(t, "workout")
	root := t.TempDir()
	seedJournal(t, root, 20)

	// Unstarted pool with a tiny queue: submissions stall after two files.
	pool := NewPool(st, PoolConfig{Workers: 1, QueueSize: 2, Logger: quietLogger()})
	defer pool.Close()

	obs := newRecordingObserver()
	coord := NewCoordinator(st, pool, obs, ResyncConfig{ProgressInterval: 10 * time.Millisecond, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := coord.Resync(ctx, root, ResyncOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resync() error = %v, want DeadlineExceeded", err)
	}
	if !result.Cancelled || result.Submitted != 2 {
		t.Errorf("result = %+v, want cancelled after 2 submissions", result)
	}

	select {
	case <-obs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled resync never completed its progress stream")
	}
}

func TestResync_BackfillsNewMetric(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	root := t.TempDir()
	writeJournal(t, root, "2025-01-01.md", "---\nworkout: 5\nreading: 7\n---\n")

	pool := newTestPool(st, nil, DeletionKeep)
	defer pool.Close()
	coord := NewCoordinator(st, pool, nil, ResyncConfig{Logger: quietLogger()})

	path := filepath.Join(root, "2025-01-01.md")
	if _, err := coord.Resync(ctx, root, ResyncOptions{}); err != nil {
		t.Fatalf("first Resync() failed: %v", err)
	}
	waitFor(t, func() bool { ok, _ := st.HasMetrics(ctx, path); return ok })

	if err := st.AddTrackedMetric(ctx, "reading"); err != nil {
		t.Fatalf("AddTrackedMetric() failed: %v", err)
	}

	// Unchanged file with metrics: a plain resync leaves it alone.
	if _, err := coord.Resync(ctx, root, ResyncOptions{}); err != nil {
		t.Fatalf("second Resync() failed: %v", err)
	}
	if _, err := coord.Resync(ctx, root, ResyncOptions{ForceAll: true}); err != nil {
		t.Fatalf("forced Resync() failed: %v", err)
	}

	waitFor(t, func() bool {
		metrics, _ := st.MetricsForFile(ctx, path)
		return len(metrics) == 2
	})
}

// cancellingSubmitter cancels the resync on its first submission.
type cancellingSubmitter struct {
	cancel context.CancelFunc
}

func (s cancellingSubmitter) Submit(ctx context.Context, job Job) error {
	s.cancel()
	return ctx.Err()
}

func TestResync_CancelledKeepsEditsPending(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	root := t.TempDir()
	path := writeJournal(t, root, "2025-01-01.md", "---\nworkout: 10\n---\n")

	pool := newTestPool(st, nil, DeletionKeep)
	defer pool.Close()
	coord := NewCoordinator(st, pool, nil, ResyncConfig{Logger: quietLogger()})

	if _, err := coord.Resync(ctx, root, ResyncOptions{}); err != nil {
		t.Fatalf("first Resync() failed: %v", err)
	}
	waitFor(t, func() bool { ok, _ := st.HasMetrics(ctx, path); return ok })

	writeJournal(t, root, "2025-01-01.md", "---\nworkout: 20\n---\n")
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	interrupted := NewCoordinator(st, cancellingSubmitter{cancel: cancel}, nil, ResyncConfig{Logger: quietLogger()})
	result, err := interrupted.Resync(cctx, root, ResyncOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("interrupted Resync() error = %v, want context.Canceled", err)
	}
	if result.Submitted != 0 {
		t.Errorf("Submitted = %d, want 0", result.Submitted)
	}

	// The edit was never queued, so the next resync must still see it.
	if _, err := coord.Resync(ctx, root, ResyncOptions{}); err != nil {
		t.Fatalf("Resync() after cancel failed: %v", err)
	}
	waitFor(t, func() bool {
		metrics, _ := st.MetricsForFile(ctx, path)
		return len(metrics) == 1 && metrics[0].Value == 20
	})
}
