package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CleoKiama/cadence/internal/store"
)

func march(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

// seedCompletion stores 4 positive (day, habit) slots across a 4 day range
// with 2 habits.
func seedCompletion(t *testing.T, st *store.Store) {
	t.Helper()

	record(t, st, "workout", march(1), 30)
	record(t, st, "workout", march(2), 45)
	record(t, st, "workout", march(3), 20)
	record(t, st, "reading", march(3), 5)
	record(t, st, "workout", march(4), 0)
}

func TestCompletionRate(t *testing.T) {
	engine, st := setupTestEngine(t, "workout", "reading")
	ctx := context.Background()

	rate, err := engine.CompletionRate(ctx)
	if err != nil {
		t.Fatalf("CompletionRate() failed: %v", err)
	}
	if rate != 0 {
		t.Errorf("CompletionRate() on empty store = %d, want 0", rate)
	}

	seedCompletion(t, st)
	if rate, _ = engine.CompletionRate(ctx); rate != 50 {
		t.Errorf("CompletionRate() = %d, want 50", rate)
	}
}

func TestCompletionRate_Truncates(t *testing.T) {
	engine, st := setupTestEngine(t, "workout")

	// 2 of 3 days: 66.67%.
	record(t, st, "workout", march(1), 1)
	record(t, st, "workout", march(2), 0)
	record(t, st, "workout", march(3), 1)

	rate, err := engine.CompletionRate(context.Background())
	if err != nil {
		t.Fatalf("CompletionRate() failed: %v", err)
	}
	if rate != 66 {
		t.Errorf("CompletionRate() = %d, want 66", rate)
	}
}

func TestCompletionRate_Clamped(t *testing.T) {
	engine, st := setupTestEngine(t, "workout")
	ctx := context.Background()

	// Several files logging the same habit on the same day.
	for _, path := range []string{"/a/2025-03-01.md", "/b/2025-03-01.md", "/c/2025-03-01.md"} {
		m := []store.Metric{{Name: "workout", Value: 1, Date: march(1)}}
		if err := st.UpsertMetrics(ctx, path, m); err != nil {
			t.Fatalf("UpsertMetrics() failed: %v", err)
		}
	}

	rate, err := engine.CompletionRate(ctx)
	if err != nil {
		t.Fatalf("CompletionRate() failed: %v", err)
	}
	if rate != 100 {
		t.Errorf("CompletionRate() = %d, want 100", rate)
	}
}

func TestSummary(t *testing.T) {
	engine, st := setupTestEngine(t, "workout", "reading")
	seedCompletion(t, st)

	sum, err := engine.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}

	want := Summary{LongestStreak: 3, TotalHabits: 2, CompletionRate: 50, ActiveDays: 3}
	if sum != want {
		t.Errorf("Summary() = %+v, want %+v", sum, want)
	}
}

func TestWeeklyActivity(t *testing.T) {
	engine, st := setupTestEngine(t, "workout", "reading")

	record(t, st, "reading", march(16), 3)
	record(t, st, "workout", march(17), 1)
	record(t, st, "reading", march(17), 1)
	record(t, st, "untracked", march(17), 1)
	record(t, st, "workout", march(18), 0)
	record(t, st, "workout", march(12), 9)

	points, err := engine.WeeklyActivity(context.Background())
	if err != nil {
		t.Fatalf("WeeklyActivity() failed: %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("WeeklyActivity() has %d days, want 7", len(points))
	}
	if points[0].Date != "2025-03-16" || points[6].Date != "2025-03-22" {
		t.Errorf("week = %s..%s, want 2025-03-16..2025-03-22", points[0].Date, points[6].Date)
	}

	want := []int{1, 2, 0, 0, 0, 0, 0}
	for i, p := range points {
		if p.Value != want[i] {
			t.Errorf("WeeklyActivity()[%s] = %d, want %d", p.Date, p.Value, want[i])
		}
	}
}

func TestRecentActivity(t *testing.T) {
	engine, st := setupTestEngine(t, "workout", "reading")
	record(t, st, "workout", march(10), 12)

	series, err := engine.RecentActivity(context.Background())
	if err != nil {
		t.Fatalf("RecentActivity() failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("RecentActivity() returned %d habits, want 2", len(series))
	}

	for _, s := range series {
		if len(s.Data) != 29 {
			t.Errorf("%s has %d days, want 29", s.Habit, len(s.Data))
			continue
		}
		if s.Data[0].Date != "2025-02-19" || s.Data[28].Date != "2025-03-19" {
			t.Errorf("%s covers %s..%s", s.Habit, s.Data[0].Date, s.Data[28].Date)
		}
	}

	// 2025-03-10 is 19 days after 2025-02-19.
	if got := series[1].Data[19]; series[1].Habit != "workout" || got.Value != 12 {
		t.Errorf("workout on 2025-03-10 = %+v", got)
	}
}

func TestStreakGrid(t *testing.T) {
	engine, st := setupTestEngine(t, "workout")
	record(t, st, "workout", time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC), 4)

	series, err := engine.StreakGrid(context.Background(), 2025, time.March)
	if err != nil {
		t.Fatalf("StreakGrid() failed: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("StreakGrid() returned %d habits, want 1", len(series))
	}

	data := series[0].Data
	if len(data) != 45 {
		t.Fatalf("StreakGrid() has %d days, want 45", len(data))
	}
	if data[0].Date != "2025-02-22" || data[44].Date != "2025-04-07" {
		t.Errorf("grid covers %s..%s, want 2025-02-22..2025-04-07", data[0].Date, data[44].Date)
	}
	if data[3].Value != 4 {
		t.Errorf("2025-02-25 = %d, want 4", data[3].Value)
	}

	if _, err := engine.StreakGrid(context.Background(), 2025, 13); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("StreakGrid(month 13) error = %v, want ErrInvalidMonth", err)
	}
}

func TestDashboard(t *testing.T) {
	engine, st := setupTestEngine(t, "workout", "reading")

	record(t, st, "workout", march(10), 5)
	record(t, st, "workout", march(16), 10)
	record(t, st, "workout", march(17), 20)
	record(t, st, "workout", march(18), 30)

	cards, err := engine.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() failed: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Dashboard() returned %d cards, want 2", len(cards))
	}

	reading := cards[0]
	if reading.Name != "reading" || reading.LastUpdated != nil || reading.Trend != TrendStable {
		t.Errorf("reading card = %+v", reading)
	}

	workout := cards[1]
	if workout.CurrentStreak != 3 || workout.LongestStreak != 3 {
		t.Errorf("workout streaks = %d/%d, want 3/3", workout.CurrentStreak, workout.LongestStreak)
	}
	if workout.WeeklyAverage != 20 {
		t.Errorf("workout weekly average = %v, want 20", workout.WeeklyAverage)
	}
	if workout.MonthlyTotal != 65 {
		t.Errorf("workout monthly total = %d, want 65", workout.MonthlyTotal)
	}
	if workout.Trend != TrendUp {
		t.Errorf("workout trend = %s, want up", workout.Trend)
	}
	if workout.LastUpdated == nil {
		t.Error("workout has no last update")
	}
}

func TestStats_UntrackedHabit(t *testing.T) {
	engine, st := setupTestEngine(t)

	record(t, st, "meditation", march(17), 15)
	record(t, st, "meditation", march(18), 15)

	card, err := engine.Stats(context.Background(), "meditation")
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if card.Name != "meditation" || card.CurrentStreak != 2 || card.MonthlyTotal != 30 {
		t.Errorf("Stats() = %+v", card)
	}
}

func TestCompareWeeks(t *testing.T) {
	tests := []struct {
		current, previous float64
		want              Trend
	}{
		{10, 5, TrendUp},
		{5, 10, TrendDown},
		{7.5, 7.5, TrendStable},
		{0, 0, TrendStable},
	}

	for _, tt := range tests {
		if got := compareWeeks(tt.current, tt.previous); got != tt.want {
			t.Errorf("compareWeeks(%v, %v) = %s, want %s", tt.current, tt.previous, got, tt.want)
		}
	}
}
