package query

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Trend describes how a habit's current week compares with the week before.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Summary is the analytics overview across every habit.
type Summary struct {
	LongestStreak  int `json:"longestStreak" yaml:"longest_streak"`
	TotalHabits    int `json:"totalHabits" yaml:"total_habits"`
	CompletionRate int `json:"completionRate" yaml:"completion_rate"`
	ActiveDays     int `json:"activeDays" yaml:"active_days"`
}

// HabitMetrics is one dashboard card.
type HabitMetrics struct {
	Name          string     `json:"name" yaml:"name"`
	CurrentStreak int        `json:"currentStreak" yaml:"current_streak"`
	LongestStreak int        `json:"longestStreak" yaml:"longest_streak"`
	WeeklyAverage float64    `json:"weeklyAverage" yaml:"weekly_average"`
	MonthlyTotal  int        `json:"monthlyTotal" yaml:"monthly_total"`
	LastUpdated   *time.Time `json:"lastUpdated,omitempty" yaml:"last_updated,omitempty"`
	Trend         Trend      `json:"trend" yaml:"trend"`
}

// CompletionRate returns the percentage of (day, habit) slots with a
// positive value, where days span the stored date range and habits are the
// distinct stored metric names. The result is truncated to an integer and
// never exceeds 100. An empty store yields 0.
func (e *Engine) CompletionRate(ctx context.Context) (int, error) {
	first, last, ok, err := e.store.DateRange(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute completion rate: %w", err)
	}
	if !ok {
		return 0, nil
	}

	days := int(last.Sub(first).Hours()/24) + 1
	habits, err := e.store.CountDistinctHabits(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute completion rate: %w", err)
	}
	if days <= 0 || habits <= 0 {
		return 0, nil
	}

	successes, err := e.store.CountPositive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute completion rate: %w", err)
	}

	rate := float64(successes) / (float64(days) * float64(habits)) * 100
	if rate > 100 {
		rate = 100
	}
	return int(rate), nil
}

// Summary gathers the analytics overview.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		err error
	)

	if sum.CompletionRate, err = e.CompletionRate(ctx); err != nil {
		return Summary{}, err
	}
	if sum.TotalHabits, err = e.store.CountPositiveHabits(ctx); err != nil {
		return Summary{}, fmt.Errorf("failed to count habits: %w", err)
	}
	if sum.ActiveDays, err = e.store.ActiveDays(ctx); err != nil {
		return Summary{}, fmt.Errorf("failed to count active days: %w", err)
	}
	if sum.LongestStreak, err = e.LongestStreakAny(ctx); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// WeeklyActivity returns, for each day of the current week, how many
// tracked habits had a positive value. Every day of the week is present.
func (e *Engine) WeeklyActivity(ctx context.Context) ([]Point, error) {
	from, to := e.weekBounds(e.Today())
	counts, err := e.store.TrackedActivityByDate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute weekly activity: %w", err)
	}
	return densify(counts, from, to), nil
}

// RecentActivity returns a dense series per tracked habit covering the
// days from one month ago through today.
func (e *Engine) RecentActivity(ctx context.Context) ([]HabitSeries, error) {
	to := e.Today()
	from := addMonthsClamped(to, -1)
	return e.seriesForTracked(ctx, from, to)
}

// StreakGrid returns a dense series per tracked habit for a calendar view of
// the given month, padded with the last week of the previous month and the
// first week of the next one.
func (e *Engine) StreakGrid(ctx context.Context, year int, month time.Month) ([]HabitSeries, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	from := first.AddDate(0, 0, -7)
	to := first.AddDate(0, 1, 6)
	return e.seriesForTracked(ctx, from, to)
}

// Dashboard returns one card per tracked habit, sorted by name.
func (e *Engine) Dashboard(ctx context.Context) ([]HabitMetrics, error) {
	habits, err := e.store.TrackedMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked habits: %w", err)
	}
	sort.Strings(habits)

	cards := make([]HabitMetrics, 0, len(habits))
	for _, habit := range habits {
		card, err := e.habitMetrics(ctx, habit)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Stats returns the dashboard card of one habit, tracked or not.
func (e *Engine) Stats(ctx context.Context, habit string) (HabitMetrics, error) {
	return e.habitMetrics(ctx, habit)
}

func (e *Engine) habitMetrics(ctx context.Context, habit string) (HabitMetrics, error) {
	card := HabitMetrics{Name: habit}
	var err error

	if card.CurrentStreak, err = e.CurrentStreak(ctx, habit); err != nil {
		return card, err
	}
	if card.LongestStreak, err = e.LongestStreak(ctx, habit); err != nil {
		return card, err
	}
	if card.WeeklyAverage, err = e.WeeklyAverage(ctx, habit); err != nil {
		return card, err
	}
	if card.MonthlyTotal, err = e.MonthlyTotal(ctx, habit); err != nil {
		return card, err
	}

	previous, err := e.previousWeekAverage(ctx, habit)
	if err != nil {
		return card, err
	}
	card.Trend = compareWeeks(card.WeeklyAverage, previous)

	updated, ok, err := e.store.LastUpdated(ctx, habit)
	if err != nil {
		return card, fmt.Errorf("failed to read last update of %s: %w", habit, err)
	}
	if ok {
		card.LastUpdated = &updated
	}
	return card, nil
}

func compareWeeks(current, previous float64) Trend {
	switch {
	case current > previous:
		return TrendUp
	case current < previous:
		return TrendDown
	default:
		return TrendStable
	}
}

// addMonthsClamped moves day by n months, clamping to the last day of the
// target month instead of overflowing into the next one.
func addMonthsClamped(day time.Time, n int) time.Time {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	_, last := monthBounds(first)
	if day.Day() > last.Day() {
		return last
	}
	return first.AddDate(0, 0, day.Day()-1)
}
