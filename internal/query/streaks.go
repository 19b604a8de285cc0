package query

import (
	"context"
	"fmt"
	"time"
)

// CurrentStreak counts the consecutive days with a positive value for habit,
// walking backwards from yesterday. Today never counts: a habit logged today
// but not yesterday has a streak of 0.
func (e *Engine) CurrentStreak(ctx context.Context, habit string) (int, error) {
	dates, err := e.store.QualifyingDates(ctx, habit)
	if err != nil {
		return 0, fmt.Errorf("failed to compute current streak for %s: %w", habit, err)
	}
	return currentStreak(dates, e.Today()), nil
}

// LongestStreak returns the longest run of consecutive days with a positive
// value for habit across all history.
func (e *Engine) LongestStreak(ctx context.Context, habit string) (int, error) {
	dates, err := e.store.QualifyingDates(ctx, habit)
	if err != nil {
		return 0, fmt.Errorf("failed to compute longest streak for %s: %w", habit, err)
	}
	return longestStreak(dates), nil
}

// LongestStreakAny returns the longest run of consecutive days on which any
// habit had a positive value.
func (e *Engine) LongestStreakAny(ctx context.Context) (int, error) {
	dates, err := e.store.AllQualifyingDates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute longest streak: %w", err)
	}
	return longestStreak(dates), nil
}

func currentStreak(dates []time.Time, today time.Time) int {
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		seen[dateKey(d)] = struct{}{}
	}

	streak := 0
	for day := today.AddDate(0, 0, -1); ; day = day.AddDate(0, 0, -1) {
		if _, ok := seen[dateKey(day)]; !ok {
			return streak
		}
		streak++
	}
}

// longestStreak expects distinct dates in ascending order.
func longestStreak(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	longest, run := 1, 1
	for i := 1; i < len(dates); i++ {
		if dates[i].Equal(dates[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
