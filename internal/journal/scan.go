package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FingerprintWriter is the part of the metric store the scanner uses.
type FingerprintWriter interface {
	Fingerprint(ctx context.Context, path string) (time.Time, bool, error)
	SetFingerprint(ctx context.Context, path string, modTime time.Time) error
	ClearFingerprint(ctx context.Context, path string) error
}

// ScanOptions controls directory enumeration.
type ScanOptions struct {
	// Recursive descends into subdirectories (hidden ones are skipped).
	Recursive bool
}

// Candidate is a journal file found by Scan.
type Candidate struct {
	Path    string
	ModTime time.Time
	// Changed is true when the fingerprint recorded before this scan was
	// missing or differed from ModTime.
	Changed bool

	// PrevModTime is the fingerprint recorded before this scan, valid when
	// HadFingerprint is set.
	PrevModTime    time.Time
	HadFingerprint bool
}

// IsMarkdown reports whether name has the .md extension.
func IsMarkdown(name string) bool {
	return filepath.Ext(name) == ".md"
}

// IsJournalName reports whether a file name looks like a dated journal
// entry: a .md file whose name starts with a four digit year and a dash.
func IsJournalName(name string) bool {
	if !IsMarkdown(name) || len(name) < 5 {
		return false
	}
	for i := 0; i < 4; i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return name[4] == '-'
}

// ResolveRoot returns the absolute form of path, which must be an existing
// directory. Anything else wraps ErrRootMissing.
func ResolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootMissing, abs)
	}
	return abs, nil
}

// Scan enumerates the journal files under root, records the fingerprint of
// each one, and returns them sorted by path.
//
// Entries that are not regular dated .md files are skipped. A root that
// cannot be read is a hard error for the whole scan; a missing root wraps
// ErrRootMissing. Fingerprint write failures are returned as well, since
// they mean the store is unusable.
//
// Callers that end up not processing some candidates must hand them to
// Restore, or their changes would be hidden from the next scan. Scan does
// that itself when it fails part way.
func Scan(ctx context.Context, root string, st FingerprintWriter, opts ScanOptions) (_ []Candidate, err error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat journal root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootMissing, root)
	}

	var paths []string
	if opts.Recursive {
		paths, err = walkTree(ctx, root)
	} else {
		paths, err = readFlat(root)
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	candidates := make([]Candidate, 0, len(paths))
	defer func() {
		if err != nil {
			if rerr := Restore(context.WithoutCancel(ctx), st, candidates); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fi, err := os.Stat(path)
		if err != nil {
			// Vanished between listing and stat.
			continue
		}

		c := Candidate{Path: path, ModTime: fi.ModTime()}

		prev, ok, err := st.Fingerprint(ctx, path)
		if err != nil {
			return nil, err
		}
		c.PrevModTime, c.HadFingerprint = prev, ok
		c.Changed = !ok || !prev.Equal(c.ModTime)

		if err := st.SetFingerprint(ctx, path, c.ModTime); err != nil {
			return nil, err
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// Restore puts back the fingerprints Scan replaced for changed candidates,
// so the next scan still reports them as changed. Unchanged candidates are
// left alone.
func Restore(ctx context.Context, st FingerprintWriter, candidates []Candidate) error {
	var errs []error
	for _, c := range candidates {
		if !c.Changed {
			continue
		}
		var err error
		if c.HadFingerprint {
			err = st.SetFingerprint(ctx, c.Path, c.PrevModTime)
		} else {
			err = st.ClearFingerprint(ctx, c.Path)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paths returns the paths of candidates in order.
func Paths(candidates []Candidate) []string {
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}
	return paths
}

func readFlat(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal root: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsJournalName(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(root, entry.Name()))
	}
	return paths, nil
}

func walkTree(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subdirectory: skip it, keep the rest of the scan.
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() && IsJournalName(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk journal root: %w", err)
	}
	return paths, nil
}
