package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeyJournalRoot is the settings key holding the journal directory.
const KeyJournalRoot = "journal_root"

// Settings is a snapshot of the user configuration stored in the database.
// Fetch it once per logical operation instead of querying each value
// repeatedly.
type Settings struct {
	JournalRoot    string
	HasRoot        bool
	TrackedMetrics []string
}

// TrackedMetric describes one tracked habit and how much data it has.
type TrackedMetric struct {
	Name    string
	AddedAt time.Time
	Entries int
	// Active is true when a row for this metric was written in the last 7 days.
	Active      bool
	LastUpdated time.Time
}

// GetSetting returns the value stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// JournalRoot returns the configured journal directory. The boolean is
// false when no root has been configured yet.
func (s *Store) JournalRoot(ctx context.Context) (string, bool, error) {
	root, err := s.GetSetting(ctx, KeyJournalRoot)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return root, true, nil
}

// SetJournalRoot stores the journal directory.
func (s *Store) SetJournalRoot(ctx context.Context, root string) error {
	return s.SetSetting(ctx, KeyJournalRoot, root)
}

// TrackedMetrics returns the names of all tracked metrics, sorted.
func (s *Store) TrackedMetrics(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM tracked_metrics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked metrics: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tracked metric: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked metrics: %w", err)
	}
	return names, nil
}

// ValidateMetricName normalizes name and checks that it can appear as a
// front-matter key.
func ValidateMetricName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidMetricName)
	}
	if strings.ContainsAny(name, ":\r\n") {
		return "", fmt.Errorf("%w: %q may not contain ':' or line breaks", ErrInvalidMetricName, name)
	}
	if name == "---" {
		return "", fmt.Errorf("%w: %q is the front-matter delimiter", ErrInvalidMetricName, name)
	}
	return name, nil
}

// AddTrackedMetric starts tracking name.
// Returns ErrMetricExists if it is already tracked.
func (s *Store) AddTrackedMetric(ctx context.Context, name string) error {
	name, err := ValidateMetricName(name)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO tracked_metrics (name, added_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, formatStamp(s.now()))
	if err != nil {
		return fmt.Errorf("failed to add tracked metric %s: %w", name, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", name, ErrMetricExists)
	}
	return nil
}

// RemoveTrackedMetric stops tracking name and deletes its stored values.
// Returns ErrNotFound if it was not tracked.
func (s *Store) RemoveTrackedMetric(ctx context.Context, name string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tracked_metrics WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove tracked metric %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tracked metric %s: %w", name, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete values of %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal of %s: %w", name, err)
	}
	return nil
}

// RenameTrackedMetric renames a tracked metric and every stored value of it.
// Rows that already exist under the new name for the same file and date are
// replaced.
func (s *Store) RenameTrackedMetric(ctx context.Context, oldName, newName string) error {
	newName, err := ValidateMetricName(newName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_metrics WHERE name = ?`, newName).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check tracked metric %s: %w", newName, err)
	}
	if taken > 0 {
		return fmt.Errorf("%s: %w", newName, ErrMetricExists)
	}

	res, err := tx.ExecContext(ctx, `UPDATE tracked_metrics SET name = ? WHERE name = ?`, newName, oldName)
	if err != nil {
		return fmt.Errorf("failed to rename tracked metric %s: %w", oldName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tracked metric %s: %w", oldName, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE OR REPLACE metrics SET name = ? WHERE name = ?`, newName, oldName); err != nil {
		return fmt.Errorf("failed to rename values of %s: %w", oldName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename of %s: %w", oldName, err)
	}
	return nil
}

// TrackedActivity lists every tracked metric with its entry count and
// whether it saw writes in the last 7 days.
func (s *Store) TrackedActivity(ctx context.Context) ([]TrackedMetric, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT tm.name, tm.added_at, COUNT(m.name), MAX(m.updated_at)
		FROM tracked_metrics tm
		LEFT JOIN metrics m ON m.name = tm.name
		GROUP BY tm.name, tm.added_at
		ORDER BY tm.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked activity: %w", err)
	}
	defer rows.Close()

	cutoff := s.now().Add(-7 * 24 * time.Hour)

	var out []TrackedMetric
	for rows.Next() {
		var (
			tm      TrackedMetric
			addedAt string
			last    sql.NullString
		)
		if err := rows.Scan(&tm.Name, &addedAt, &tm.Entries, &last); err != nil {
			return nil, fmt.Errorf("failed to scan tracked activity: %w", err)
		}
		if tm.AddedAt, err = parseStamp(addedAt); err != nil {
			return nil, fmt.Errorf("invalid added_at %q: %w", addedAt, err)
		}
		if last.Valid {
			if tm.LastUpdated, err = parseStamp(last.String); err != nil {
				return nil, fmt.Errorf("invalid updated_at %q: %w", last.String, err)
			}
			tm.Active = tm.LastUpdated.After(cutoff)
		}
		out = append(out, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked activity: %w", err)
	}
	return out, nil
}

// Snapshot reads the journal root and tracked metric set in one go.
func (s *Store) Snapshot(ctx context.Context) (Settings, error) {
	var snap Settings

	root, ok, err := s.JournalRoot(ctx)
	if err != nil {
		return Settings{}, err
	}
	snap.JournalRoot, snap.HasRoot = root, ok

	if snap.TrackedMetrics, err = s.TrackedMetrics(ctx); err != nil {
		return Settings{}, err
	}
	return snap, nil
}
