package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CleoKiama/cadence/internal/ingest"
	"github.com/CleoKiama/cadence/internal/journal"
	"github.com/CleoKiama/cadence/internal/store"
)

func setupTestStore(t *testing.T, tracked ...string) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	for _, name := range tracked {
		if err := st.AddTrackedMetric(context.Background(), name); err != nil {
			t.Fatalf("AddTrackedMetric(%s) failed: %v", name, err)
		}
	}
	return st
}

func writeJournal(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// testConfig returns a fast daemon configuration with a silent logger.
func testConfig() *Config {
	config := DefaultConfig()
	config.FlushInterval = 50 * time.Millisecond
	config.ProgressInterval = 10 * time.Millisecond
	config.Workers = 2
	config.Logger = log.New(io.Discard, "", 0)
	config.IngestLogger = config.Logger
	config.ResyncLogger = config.Logger
	return config
}

func startDaemon(t *testing.T, st *store.Store, config *Config) *Daemon {
	t.Helper()

	d, err := NewWithConfig(st, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for condition")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func metricValue(st *store.Store, path, name string) (int, bool) {
	metrics, err := st.MetricsForFile(context.Background(), path)
	if err != nil {
		return 0, false
	}
	for _, m := range metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

func TestNewWithConfig_NilStore(t *testing.T) {
	if _, err := NewWithConfig(nil, nil); err == nil {
		t.Error("NewWithConfig(nil) should fail")
	}
}

func TestDaemon_StartWithoutRoot(t *testing.T) {
	st := setupTestStore(t, "workout")
	d := startDaemon(t, st, testConfig())

	if d.Root() != "" {
		t.Errorf("Root() = %q, want empty", d.Root())
	}
	if _, err := d.Resync(context.Background(), false); !errors.Is(err, ErrNoJournalRoot) {
		t.Errorf("Resync() error = %v, want ErrNoJournalRoot", err)
	}
}

func TestDaemon_StartResyncsStoredRoot(t *testing.T) {
	st := setupTestStore(t, "workout")
	dir := t.TempDir()
	path := writeJournal(t, dir, "2025-03-01.md", "---\nworkout: 30\n---\n")

	if err := st.SetJournalRoot(context.Background(), dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	d := startDaemon(t, st, testConfig())
	if d.Root() != dir {
		t.Errorf("Root() = %q, want %q", d.Root(), dir)
	}

	waitFor(t, func() bool {
		v, ok := metricValue(st, path, "workout")
		return ok && v == 30
	})
}

func TestDaemon_WatchesNewFiles(t *testing.T) {
	st := setupTestStore(t, "workout")
	dir := t.TempDir()
	d := startDaemon(t, st, testConfig())

	if _, err := d.SetJournalRoot(context.Background(), dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	path := writeJournal(t, dir, "2025-03-02.md", "---\nworkout: 45\n---\n")
	waitFor(t, func() bool {
		v, ok := metricValue(st, path, "workout")
		return ok && v == 45
	})

	// Rewriting with a later mtime is picked up by the gate.
	future := time.Now().Add(time.Minute)
	writeJournal(t, dir, "2025-03-02.md", "---\nworkout: 50\n---\n")
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}
	waitFor(t, func() bool {
		v, _ := metricValue(st, path, "workout")
		return v == 50
	})
}

func TestDaemon_RapidWritesAreCoalesced(t *testing.T) {
	st := setupTestStore(t, "workout")
	dir := t.TempDir()

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	config := testConfig()
	config.FlushInterval = 300 * time.Millisecond
	config.OnResult = func(res ingest.Result) {
		mu.Lock()
		counts[filepath.Base(res.Path)]++
		mu.Unlock()
	}
	d := startDaemon(t, st, config)

	if _, err := d.SetJournalRoot(context.Background(), dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	path := filepath.Join(dir, "2025-03-03.md")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		f.WriteString("---\nworkout: 5\n---\n")
	}
	f.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["2025-03-03.md"] > 0
	})

	time.Sleep(2 * config.FlushInterval)

	mu.Lock()
	defer mu.Unlock()
	if counts["2025-03-03.md"] > 2 {
		t.Errorf("file processed %d times for one burst of writes", counts["2025-03-03.md"])
	}
}

func TestDaemon_SetJournalRoot_MissingKeepsPrevious(t *testing.T) {
	st := setupTestStore(t, "workout")
	dir := t.TempDir()
	ctx := context.Background()
	d := startDaemon(t, st, testConfig())

	if _, err := d.SetJournalRoot(ctx, dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	_, err := d.SetJournalRoot(ctx, filepath.Join(dir, "missing"))
	if !errors.Is(err, journal.ErrRootMissing) {
		t.Fatalf("SetJournalRoot(missing) error = %v, want ErrRootMissing", err)
	}

	if d.Root() != dir {
		t.Errorf("Root() = %q, want previous root %q", d.Root(), dir)
	}
	stored, _, _ := st.JournalRoot(ctx)
	if stored != dir {
		t.Errorf("stored root = %q, want %q", stored, dir)
	}
}

func TestDaemon_SetJournalRoot_FailedResyncKeepsPrevious(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	oldDir, newDir := t.TempDir(), t.TempDir()
	writeJournal(t, newDir, "2025-03-01.md", "---\nworkout: 3\n---\n")
	d := startDaemon(t, st, testConfig())

	if _, err := d.SetJournalRoot(ctx, oldDir); err != nil {
		t.Fatalf("SetJournalRoot(old) failed: %v", err)
	}

	// The directory exists, but the scan of it is interrupted.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.SetJournalRoot(cancelled, newDir); !errors.Is(err, context.Canceled) {
		t.Fatalf("SetJournalRoot(new) error = %v, want context.Canceled", err)
	}

	if d.Root() != oldDir {
		t.Errorf("Root() = %q, want previous root %q", d.Root(), oldDir)
	}
	stored, _, _ := st.JournalRoot(ctx)
	if stored != oldDir {
		t.Errorf("stored root = %q, want %q", stored, oldDir)
	}

	// The previous root is still watched.
	path := writeJournal(t, oldDir, "2025-03-02.md", "---\nworkout: 4\n---\n")
	waitFor(t, func() bool {
		v, ok := metricValue(st, path, "workout")
		return ok && v == 4
	})
}

func TestDaemon_SetJournalRoot_WatchFailureIsLogged(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJournal(t, dir, "2025-03-01.md", "---\nworkout: 9\n---\n")

	var mu sync.Mutex
	var watchErrs []error
	config := testConfig()
	config.OnWatchError = func(err error) {
		mu.Lock()
		watchErrs = append(watchErrs, err)
		mu.Unlock()
	}
	d := startDaemon(t, st, config)

	// Every Watch now fails.
	if err := d.watcher.Stop(); err != nil {
		t.Fatalf("watcher.Stop() failed: %v", err)
	}

	result, err := d.SetJournalRoot(ctx, dir)
	if err != nil {
		t.Fatalf("SetJournalRoot() error = %v, want nil when only watching fails", err)
	}
	if result.Total != 1 {
		t.Errorf("resync total = %d, want 1", result.Total)
	}
	if d.Root() != dir {
		t.Errorf("Root() = %q, want %q", d.Root(), dir)
	}
	stored, _, _ := st.JournalRoot(ctx)
	if stored != dir {
		t.Errorf("stored root = %q, want %q", stored, dir)
	}

	mu.Lock()
	got := append([]error(nil), watchErrs...)
	mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], ErrWatcherStopped) {
		t.Errorf("OnWatchError got %v, want one ErrWatcherStopped", got)
	}

	waitFor(t, func() bool {
		_, ok := metricValue(st, path, "workout")
		return ok
	})
}

func TestDaemon_WatcherServesWhilePoolStalled(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	dir, other := t.TempDir(), t.TempDir()

	release := make(chan struct{})
	config := testConfig()
	config.Workers = 1
	config.QueueSize = 1
	config.OnResult = func(ingest.Result) { <-release }
	d := startDaemon(t, st, config)
	defer close(release)

	if _, err := d.SetJournalRoot(ctx, dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	// The first file wedges the only worker, the queue fills up and the
	// coalescer's flush blocks on Submit. Events must keep being absorbed.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		name := start.AddDate(0, 0, i).Format("2006-01-02") + ".md"
		writeJournal(t, dir, name, fmt.Sprintf("---\nworkout: %d\n---\n", i))
	}
	waitFor(t, func() bool { return d.coalescer.Len() >= 150 })

	done := make(chan error, 1)
	go func() { done <- d.watcher.Watch(other) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher stopped serving commands while the pool was stalled")
	}
}

func TestDaemon_ComponentLoggers(t *testing.T) {
	st := setupTestStore(t, "workout")
	dir := t.TempDir()
	writeJournal(t, dir, "2025-03-01.md", "---\nworkout: 1\n---\n")

	var daemonBuf, ingestBuf, resyncBuf bytes.Buffer
	config := testConfig()
	config.Logger = log.New(&daemonBuf, "[daemon] ", 0)
	config.IngestLogger = log.New(&ingestBuf, "[ingest] ", 0)
	config.ResyncLogger = log.New(&resyncBuf, "[resync] ", 0)

	d, err := NewWithConfig(st, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if _, err := d.SetJournalRoot(context.Background(), dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if !strings.Contains(ingestBuf.String(), "[ingest] Started 2 workers") {
		t.Errorf("ingest log = %q, want the pool start line", ingestBuf.String())
	}
	if !strings.Contains(resyncBuf.String(), "[resync] Starting resync of "+dir) {
		t.Errorf("resync log = %q, want the resync start line", resyncBuf.String())
	}
	daemonLog := daemonBuf.String()
	if !strings.Contains(daemonLog, "[daemon] Watching: "+dir) {
		t.Errorf("daemon log = %q, want the watch line", daemonLog)
	}
	if strings.Contains(daemonLog, "Starting resync") || strings.Contains(daemonLog, "Started ") {
		t.Errorf("daemon log carries pool or resync lines: %q", daemonLog)
	}
}

func TestDaemon_SetJournalRoot_Switches(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	oldDir, newDir := t.TempDir(), t.TempDir()
	newPath := writeJournal(t, newDir, "2025-03-04.md", "---\nworkout: 12\n---\n")

	obs := &countingObserver{}
	config := testConfig()
	config.Observer = obs
	d := startDaemon(t, st, config)

	if _, err := d.SetJournalRoot(ctx, oldDir); err != nil {
		t.Fatalf("SetJournalRoot(old) failed: %v", err)
	}
	result, err := d.SetJournalRoot(ctx, newDir)
	if err != nil {
		t.Fatalf("SetJournalRoot(new) failed: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("resync total = %d, want 1", result.Total)
	}
	if obs.completed() != 2 {
		t.Errorf("observer saw %d completed syncs, want 2", obs.completed())
	}

	waitFor(t, func() bool {
		_, ok := metricValue(st, newPath, "workout")
		return ok
	})

	// The old root is no longer watched.
	oldPath := writeJournal(t, oldDir, "2025-03-05.md", "---\nworkout: 1\n---\n")
	time.Sleep(300 * time.Millisecond)
	if ok, _ := st.HasMetrics(ctx, oldPath); ok {
		t.Error("file in the old root was ingested after switching")
	}
}

func TestDaemon_AddHabitBackfills(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJournal(t, dir, "2025-03-06.md", "---\nworkout: 20\nreading: 15\n---\n")

	d := startDaemon(t, st, testConfig())
	if _, err := d.SetJournalRoot(ctx, dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := metricValue(st, path, "workout")
		return ok
	})

	if err := d.AddHabit(ctx, "reading"); err != nil {
		t.Fatalf("AddHabit() failed: %v", err)
	}
	waitFor(t, func() bool {
		v, ok := metricValue(st, path, "reading")
		return ok && v == 15
	})

	if err := d.AddHabit(ctx, "reading"); !errors.Is(err, store.ErrMetricExists) {
		t.Errorf("AddHabit(duplicate) error = %v, want ErrMetricExists", err)
	}

	if err := d.RemoveHabit(ctx, "reading"); err != nil {
		t.Fatalf("RemoveHabit() failed: %v", err)
	}
	if _, ok := metricValue(st, path, "reading"); ok {
		t.Error("RemoveHabit() kept stored values")
	}
}

func TestDaemon_RenameHabit(t *testing.T) {
	st := setupTestStore(t, "workout")
	ctx := context.Background()
	dir := t.TempDir()
	path := writeJournal(t, dir, "2025-03-07.md", "---\nexercise: 40\n---\n")

	d := startDaemon(t, st, testConfig())
	if _, err := d.SetJournalRoot(ctx, dir); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}

	if err := d.RenameHabit(ctx, "workout", "exercise"); err != nil {
		t.Fatalf("RenameHabit() failed: %v", err)
	}
	waitFor(t, func() bool {
		v, ok := metricValue(st, path, "exercise")
		return ok && v == 40
	})

	tracked, _ := st.TrackedMetrics(ctx)
	if len(tracked) != 1 || tracked[0] != "exercise" {
		t.Errorf("TrackedMetrics() = %v, want [exercise]", tracked)
	}
}

func TestDaemon_DeletionPolicy(t *testing.T) {
	tests := []struct {
		policy   ingest.DeletionPolicy
		wantKept bool
	}{
		{ingest.DeletionKeep, true},
		{ingest.DeletionPurge, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			st := setupTestStore(t, "workout")
			ctx := context.Background()
			dir := t.TempDir()
			path := writeJournal(t, dir, "2025-03-08.md", "---\nworkout: 8\n---\n")

			config := testConfig()
			config.Deletion = tt.policy
			d := startDaemon(t, st, config)
			if _, err := d.SetJournalRoot(ctx, dir); err != nil {
				t.Fatalf("SetJournalRoot() failed: %v", err)
			}
			waitFor(t, func() bool {
				_, ok := metricValue(st, path, "workout")
				return ok
			})

			if err := os.Remove(path); err != nil {
				t.Fatalf("Remove() failed: %v", err)
			}

			if tt.wantKept {
				time.Sleep(300 * time.Millisecond)
				if _, ok := metricValue(st, path, "workout"); !ok {
					t.Error("keep policy purged metrics of a deleted file")
				}
				return
			}
			waitFor(t, func() bool {
				ok, _ := st.HasMetrics(ctx, path)
				return !ok
			})
		})
	}
}

func TestDaemon_StopIsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	d, err := NewWithConfig(st, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	st := setupTestStore(t)
	d, err := NewWithConfig(st, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// countingObserver counts completed resyncs.
type countingObserver struct {
	ingest.NopObserver
	mu   sync.Mutex
	done int
}

func (o *countingObserver) SyncComplete(ingest.SyncResult) {
	o.mu.Lock()
	o.done++
	o.mu.Unlock()
}

func (o *countingObserver) completed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}
