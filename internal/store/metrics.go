package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Metric is one stored measurement: the value of a habit on a date, as
// found in one journal file.
type Metric struct {
	FilePath  string
	Name      string
	Value     int
	Date      time.Time
	UpdatedAt time.Time
}

// UpsertMetrics stores every metric extracted from filePath in one
// transaction. Rows are keyed by (file_path, name, date); an existing row
// gets the new value and a fresh updated_at.
//
// The FilePath field of each metric is ignored in favour of filePath.
func (s *Store) UpsertMetrics(ctx context.Context, filePath string, metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO metrics (file_path, name, value, date, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(file_path, name, date) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare metric upsert: %w", err)
	}
	defer stmt.Close()

	stamp := formatStamp(s.now())
	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, filePath, m.Name, m.Value, formatDate(m.Date), stamp); err != nil {
			return fmt.Errorf("failed to upsert metric %s for %s: %w", m.Name, filePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics for %s: %w", filePath, err)
	}

	return nil
}

// HasMetrics reports whether at least one metric row exists for filePath.
func (s *Store) HasMetrics(ctx context.Context, filePath string) (bool, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM metrics WHERE file_path = ?)`, filePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check metrics for %s: %w", filePath, err)
	}
	return exists == 1, nil
}

// MetricsForFile returns the metrics stored for filePath ordered by date then name.
func (s *Store) MetricsForFile(ctx context.Context, filePath string) ([]Metric, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT file_path, name, value, date, updated_at
		FROM metrics
		WHERE file_path = ?
		ORDER BY date, name
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics for %s: %w", filePath, err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// MetricCount returns the total number of metric rows.
func (s *Store) MetricCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return count, nil
}

func scanMetrics(rows *sql.Rows) ([]Metric, error) {
	var metrics []Metric
	for rows.Next() {
		var (
			m         Metric
			date      string
			updatedAt string
		)
		if err := rows.Scan(&m.FilePath, &m.Name, &m.Value, &date, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		d, err := ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
		}
		m.Date = d

		if m.UpdatedAt, err = parseStamp(updatedAt); err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
		}

		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}

	return metrics, nil
}
