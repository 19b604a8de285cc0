package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// testClock is a settable clock for deterministic updated_at stamps.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// setupTestStore opens a fresh store with schema in a temp dir.
func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "cadence.db"), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func day(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cadence.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	if st.Path() != path {
		t.Errorf("Path() = %q, want %q", st.Path(), path)
	}
}

func TestInitSchema_CreatesTables(t *testing.T) {
	st := setupTestStore(t)

	for _, table := range []string{"metrics", "file_meta", "settings", "tracked_metrics"} {
		var count int
		err := st.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	st := setupTestStore(t)

	if err := st.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestJournalMode_WAL(t *testing.T) {
	st := setupTestStore(t)

	var mode string
	if err := st.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestClose_Twice(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("First Close() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

func TestCivilDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	in := time.Date(2025, 3, 9, 23, 30, 0, 0, loc)

	got := CivilDate(in)
	want := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CivilDate() = %v, want %v", got, want)
	}
}

func TestSettings_JournalRoot(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.JournalRoot(ctx); err != nil || ok {
		t.Fatalf("JournalRoot() on empty store = ok %v, err %v; want false, nil", ok, err)
	}

	if err := st.SetJournalRoot(ctx, "/tmp/journal"); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}
	if err := st.SetJournalRoot(ctx, "/tmp/journal2"); err != nil {
		t.Fatalf("SetJournalRoot() overwrite failed: %v", err)
	}

	root, ok, err := st.JournalRoot(ctx)
	if err != nil {
		t.Fatalf("JournalRoot() failed: %v", err)
	}
	if !ok || root != "/tmp/journal2" {
		t.Errorf("JournalRoot() = %q, %v; want /tmp/journal2, true", root, ok)
	}
}

func TestGetSetting_NotFound(t *testing.T) {
	st := setupTestStore(t)

	_, err := st.GetSetting(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSetting() error = %v, want ErrNotFound", err)
	}
}

func TestSnapshot(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.SetJournalRoot(ctx, "/j"); err != nil {
		t.Fatalf("SetJournalRoot() failed: %v", err)
	}
	for _, name := range []string{"workout", "reading"} {
		if err := st.AddTrackedMetric(ctx, name); err != nil {
			t.Fatalf("AddTrackedMetric(%s) failed: %v", name, err)
		}
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if !snap.HasRoot || snap.JournalRoot != "/j" {
		t.Errorf("Snapshot root = %q, %v", snap.JournalRoot, snap.HasRoot)
	}
	if len(snap.TrackedMetrics) != 2 || snap.TrackedMetrics[0] != "reading" || snap.TrackedMetrics[1] != "workout" {
		t.Errorf("Snapshot tracked = %v, want [reading workout]", snap.TrackedMetrics)
	}
}
