package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CleoKiama/cadence/internal/store"
)

// Delimiter is the line that opens and closes a front-matter block.
const Delimiter = "---"

// maxLineSize bounds a single journal line. Longer lines abort the read.
const maxLineSize = 1 << 20

var (
	// ErrInvalidDate is returned when a journal file name is not a calendar date.
	ErrInvalidDate = errors.New("file name is not a YYYY-MM-DD date")

	// ErrRootMissing is returned by Scan when the journal root does not
	// exist or is not a directory.
	ErrRootMissing = errors.New("journal root not found")
)

// Record is one metric value found in a journal file.
type Record struct {
	Name  string
	Value int
	Date  time.Time
}

// DateFromPath returns the calendar date encoded in the base name of path
// (without extension), e.g. /journal/2025-06-01.md -> 2025-06-01.
func DateFromPath(path string) (time.Time, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	d, err := time.Parse(store.DateLayout, stem)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, base)
	}
	return d, nil
}

// Extract reads the front matter of a journal file and returns one record
// per tracked metric it mentions.
//
// Only lines between the first and second delimiter lines are considered.
// A line is a candidate when it starts with a tracked name; it is split on
// the first ':' and the trimmed key must equal that name. The trimmed value
// is parsed as a non-negative integer and falls back to 0 when it is not
// one. When a key repeats, the last occurrence wins.
//
// The date comes from path. If path does not encode a date, Extract returns
// ErrInvalidDate and no records. A file without front matter or without
// tracked keys yields no records and no error.
func Extract(r io.Reader, path string, tracked []string) ([]Record, error) {
	date, err := DateFromPath(path)
	if err != nil {
		return nil, err
	}

	if len(tracked) == 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var (
		records []Record
		index   = make(map[string]int)
		inBlock bool
	)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if strings.TrimSpace(line) == Delimiter {
			if inBlock {
				break
			}
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}

		name, value, ok := parseLine(line, tracked)
		if !ok {
			continue
		}

		if i, seen := index[name]; seen {
			records[i].Value = value
			continue
		}
		index[name] = len(records)
		records = append(records, Record{Name: name, Value: value, Date: date})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return records, nil
}

// parseLine matches one front-matter line against the tracked names. A line
// that starts with a tracked name yields the trimmed text before its first
// colon as the metric name, so "workout_minutes: 30" is recorded as
// workout_minutes when workout is tracked.
func parseLine(line string, tracked []string) (string, int, bool) {
	for _, name := range tracked {
		if name == "" || !strings.HasPrefix(line, name) {
			continue
		}

		key, raw, found := strings.Cut(line, ":")
		if !found {
			return "", 0, false
		}
		return strings.TrimSpace(key), parseValue(raw), true
	}
	return "", 0, false
}

func parseValue(raw string) int {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// ExtractFile opens path and runs Extract over its content.
func ExtractFile(path string, tracked []string) ([]Record, error) {
	// Validate the name before touching the disk.
	if _, err := DateFromPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	return Extract(f, path, tracked)
}
