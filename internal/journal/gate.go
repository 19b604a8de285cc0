package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FingerprintStore is the part of the metric store the re-parse gate reads.
type FingerprintStore interface {
	Fingerprint(ctx context.Context, path string) (time.Time, bool, error)
	HasMetrics(ctx context.Context, path string) (bool, error)
}

// Decision is the outcome of the re-parse gate for one file.
type Decision struct {
	// Process is true when the file must be extracted (or, when Exists is
	// false, handled as a deletion).
	Process bool
	// Exists is false when the file is gone.
	Exists bool
	// ModTime is the modification time observed by the gate. Record it as
	// the fingerprint once the file has been ingested.
	ModTime time.Time
}

// Decide runs the re-parse gate for path.
//
// A file is skipped only when it exists, its stored fingerprint equals its
// current modification time, and the store already holds at least one
// metric for it. Everything else is processed: a missing file, a stale or
// absent fingerprint, or a file that never produced metrics.
func Decide(ctx context.Context, path string, st FingerprintStore) (Decision, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Decision{Process: true, Exists: false}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Decision{Exists: true}, nil
	}

	d := Decision{Exists: true, ModTime: info.ModTime()}

	stored, ok, err := st.Fingerprint(ctx, path)
	if err != nil {
		return Decision{}, err
	}
	if !ok || !stored.Equal(d.ModTime) {
		d.Process = true
		return d, nil
	}

	hasMetrics, err := st.HasMetrics(ctx, path)
	if err != nil {
		return Decision{}, err
	}
	d.Process = !hasMetrics
	return d, nil
}

// ShouldProcess reports whether path needs extraction. See Decide.
func ShouldProcess(ctx context.Context, path string, st FingerprintStore) (bool, error) {
	d, err := Decide(ctx, path, st)
	if err != nil {
		return false, err
	}
	return d.Process, nil
}
