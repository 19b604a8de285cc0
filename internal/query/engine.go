// Package query implements the read side of cadence: streaks, calendar
// rollups, dense chart series and analytics over the metric store.
//
// Every function works on local calendar dates. The engine's clock decides
// what "today" is; tests inject a fixed clock with WithClock.
//
// Queries never coordinate with ingestion. A query that runs while a file is
// being ingested sees either the file's previous rows or its new ones.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CleoKiama/cadence/internal/store"
)

// Reader is the part of the metric store the engine reads from.
// *store.Store implements it.
type Reader interface {
	QualifyingDates(ctx context.Context, habit string) ([]time.Time, error)
	AllQualifyingDates(ctx context.Context) ([]time.Time, error)
	DailyValues(ctx context.Context, habit string, from, to time.Time) (map[string]int, error)
	ValuesInRange(ctx context.Context, from, to time.Time) (map[string]map[string]int, error)
	AverageValue(ctx context.Context, habit string, from, to time.Time) (float64, error)
	SumValue(ctx context.Context, habit string, from, to time.Time) (int, error)
	DateRange(ctx context.Context) (time.Time, time.Time, bool, error)
	CountPositive(ctx context.Context) (int, error)
	CountDistinctHabits(ctx context.Context) (int, error)
	CountPositiveHabits(ctx context.Context) (int, error)
	ActiveDays(ctx context.Context) (int, error)
	LastUpdated(ctx context.Context, habit string) (time.Time, bool, error)
	TrackedMetrics(ctx context.Context) ([]string, error)
	TrackedActivityByDate(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// Engine answers read-side queries.
type Engine struct {
	store     Reader
	now       func() time.Time
	weekStart time.Weekday
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to determine today's date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithWeekStart sets the first day of the week used by weekly rollups.
func WithWeekStart(day time.Weekday) Option {
	return func(e *Engine) {
		e.weekStart = day
	}
}

// NewEngine creates a query engine. Weeks start on Sunday unless
// WithWeekStart says otherwise.
func NewEngine(r Reader, opts ...Option) *Engine {
	e := &Engine{
		store:     r,
		now:       time.Now,
		weekStart: time.Sunday,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseWeekday parses an English weekday name such as "monday" or "Mon".
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Today returns the engine's current calendar date.
func (e *Engine) Today() time.Time {
	return store.CivilDate(e.now())
}

// weekBounds returns the first and last day of the week containing day.
func (e *Engine) weekBounds(day time.Time) (time.Time, time.Time) {
	offset := (int(day.Weekday()) - int(e.weekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// monthBounds returns the first and last day of the month containing day.
func monthBounds(day time.Time) (time.Time, time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

func dateKey(t time.Time) string {
	return t.Format(store.DateLayout)
}
