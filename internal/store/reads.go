package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QualifyingDates returns the distinct dates on which habit has a value
// greater than zero, ascending.
func (s *Store) QualifyingDates(ctx context.Context, habit string) ([]time.Time, error) {
	return s.queryDates(ctx,
		`SELECT DISTINCT date FROM metrics WHERE name = ? AND value > 0 ORDER BY date ASC`, habit)
}

// AllQualifyingDates returns the distinct dates on which any habit has a
// value greater than zero, ascending.
func (s *Store) AllQualifyingDates(ctx context.Context) ([]time.Time, error) {
	return s.queryDates(ctx, `SELECT DISTINCT date FROM metrics WHERE value > 0 ORDER BY date ASC`)
}

func (s *Store) queryDates(ctx context.Context, query string, args ...any) ([]time.Time, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", raw, err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dates: %w", err)
	}
	return dates, nil
}

// DailyValues returns the summed value of habit per date (YYYY-MM-DD) in
// the inclusive range [from, to]. Days without rows are absent.
func (s *Store) DailyValues(ctx context.Context, habit string, from, to time.Time) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT date, SUM(value)
		FROM metrics
		WHERE name = ? AND date BETWEEN ? AND ?
		GROUP BY date
	`, habit, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily values for %s: %w", habit, err)
	}
	defer rows.Close()

	values := make(map[string]int)
	for rows.Next() {
		var (
			date  string
			value int
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("failed to scan daily value: %w", err)
		}
		values[date] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily values: %w", err)
	}
	return values, nil
}

// ValuesInRange returns habit -> date -> summed value for every row in the
// inclusive range [from, to].
func (s *Store) ValuesInRange(ctx context.Context, from, to time.Time) (map[string]map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT name, date, SUM(value)
		FROM metrics
		WHERE date BETWEEN ? AND ?
		GROUP BY name, date
	`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query values in range: %w", err)
	}
	defer rows.Close()

	values := make(map[string]map[string]int)
	for rows.Next() {
		var (
			name, date string
			value      int
		)
		if err := rows.Scan(&name, &date, &value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		if values[name] == nil {
			values[name] = make(map[string]int)
		}
		values[name][date] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}
	return values, nil
}

// AverageValue returns the mean value of habit over the rows stored in
// [from, to]. Days without rows do not count towards the denominator.
// Returns 0 when there are no rows.
func (s *Store) AverageValue(ctx context.Context, habit string, from, to time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := s.conn.QueryRowContext(ctx,
		`SELECT AVG(value) FROM metrics WHERE name = ? AND date BETWEEN ? AND ?`,
		habit, formatDate(from), formatDate(to)).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average %s: %w", habit, err)
	}
	return avg.Float64, nil
}

// SumValue returns the total value of habit over [from, to].
func (s *Store) SumValue(ctx context.Context, habit string, from, to time.Time) (int, error) {
	var sum sql.NullInt64
	err := s.conn.QueryRowContext(ctx,
		`SELECT SUM(value) FROM metrics WHERE name = ? AND date BETWEEN ? AND ?`,
		habit, formatDate(from), formatDate(to)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s: %w", habit, err)
	}
	return int(sum.Int64), nil
}

// Habits returns every distinct metric name that has stored rows, sorted.
func (s *Store) Habits(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT name FROM metrics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	var habits []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}
	return habits, nil
}

// DateRange returns the earliest and latest stored dates. The boolean is
// false when the metrics table is empty.
func (s *Store) DateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var minDate, maxDate sql.NullString
	err := s.conn.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM metrics`).Scan(&minDate, &maxDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to query date range: %w", err)
	}
	if !minDate.Valid || !maxDate.Valid {
		return time.Time{}, time.Time{}, false, nil
	}

	first, err := ParseDate(minDate.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid min date %q: %w", minDate.String, err)
	}
	last, err := ParseDate(maxDate.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid max date %q: %w", maxDate.String, err)
	}
	return first, last, true, nil
}

// CountPositive returns the number of rows with a value greater than zero.
func (s *Store) CountPositive(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM metrics WHERE value > 0`)
}

// CountDistinctHabits returns the number of distinct metric names stored.
func (s *Store) CountDistinctHabits(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT name) FROM metrics`)
}

// CountPositiveHabits returns the number of metric names with at least one
// value greater than zero.
func (s *Store) CountPositiveHabits(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT name) FROM metrics WHERE value > 0`)
}

// ActiveDays returns the number of distinct dates with any value greater than zero.
func (s *Store) ActiveDays(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT date) FROM metrics WHERE value > 0`)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// LastUpdated returns the most recent updated_at of habit. The boolean is
// false when the habit has no rows.
func (s *Store) LastUpdated(ctx context.Context, habit string) (time.Time, bool, error) {
	var stamp string
	err := s.conn.QueryRowContext(ctx,
		`SELECT updated_at FROM metrics WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, habit).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last update of %s: %w", habit, err)
	}

	t, err := parseStamp(stamp)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid updated_at %q: %w", stamp, err)
	}
	return t, true, nil
}

// TrackedActivityByDate counts, per date in [from, to], how many tracked
// metrics have a value greater than zero.
func (s *Store) TrackedActivityByDate(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT m.date, COUNT(DISTINCT m.name)
		FROM metrics m
		INNER JOIN tracked_metrics tm ON m.name = tm.name
		WHERE m.value > 0 AND m.date BETWEEN ? AND ?
		GROUP BY m.date
	`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked activity by date: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			date string
			n    int
		)
		if err := rows.Scan(&date, &n); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		counts[date] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return counts, nil
}
