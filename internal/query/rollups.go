package query

import (
	"context"
	"fmt"
)

// WeeklyAverage returns the mean value of habit over the current week. Days
// without a stored row are left out of the denominator. Returns 0 when the
// week has no rows.
func (e *Engine) WeeklyAverage(ctx context.Context, habit string) (float64, error) {
	from, to := e.weekBounds(e.Today())
	avg, err := e.store.AverageValue(ctx, habit, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to compute weekly average for %s: %w", habit, err)
	}
	return avg, nil
}

// previousWeekAverage returns the mean value of habit over the week before
// the current one.
func (e *Engine) previousWeekAverage(ctx context.Context, habit string) (float64, error) {
	from, to := e.weekBounds(e.Today().AddDate(0, 0, -7))
	avg, err := e.store.AverageValue(ctx, habit, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to compute previous weekly average for %s: %w", habit, err)
	}
	return avg, nil
}

// MonthlyTotal returns the sum of habit's values over the current calendar
// month.
func (e *Engine) MonthlyTotal(ctx context.Context, habit string) (int, error) {
	from, to := monthBounds(e.Today())
	total, err := e.store.SumValue(ctx, habit, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to compute monthly total for %s: %w", habit, err)
	}
	return total, nil
}
