package store

import (
	"context"
	"testing"
)

// seedReads stores a small two-habit history used by the read-side tests.
func seedReads(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()

	rows := []struct {
		file, name, date string
		value            int
	}{
		{"/j/2025-03-01.md", "workout", "2025-03-01", 30},
		{"/j/2025-03-02.md", "workout", "2025-03-02", 0},
		{"/j/2025-03-03.md", "workout", "2025-03-03", 60},
		{"/j/2025-03-03.md", "reading", "2025-03-03", 15},
		{"/j/2025-03-05.md", "reading", "2025-03-05", 5},
	}
	for _, r := range rows {
		m := []Metric{{Name: r.name, Value: r.value, Date: day(r.date)}}
		if err := st.UpsertMetrics(ctx, r.file, m); err != nil {
			t.Fatalf("UpsertMetrics(%s) failed: %v", r.file, err)
		}
	}
}

func TestQualifyingDates(t *testing.T) {
	st := setupTestStore(t)
	seedReads(t, st)
	ctx := context.Background()

	dates, err := st.QualifyingDates(ctx, "workout")
	if err != nil {
		t.Fatalf("QualifyingDates() failed: %v", err)
	}
	if len(dates) != 2 || dates[0] != day("2025-03-01") || dates[1] != day("2025-03-03") {
		t.Errorf("QualifyingDates(workout) = %v", dates)
	}

	all, err := st.AllQualifyingDates(ctx)
	if err != nil {
		t.Fatalf("AllQualifyingDates() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("AllQualifyingDates() = %v, want 3 dates", all)
	}
}

func TestDailyValuesAndRollups(t *testing.T) {
	st := setupTestStore(t)
	seedReads(t, st)
	ctx := context.Background()

	values, err := st.DailyValues(ctx, "workout", day("2025-03-02"), day("2025-03-31"))
	if err != nil {
		t.Fatalf("DailyValues() failed: %v", err)
	}
	if len(values) != 2 || values["2025-03-02"] != 0 || values["2025-03-03"] != 60 {
		t.Errorf("DailyValues() = %v", values)
	}

	avg, err := st.AverageValue(ctx, "workout", day("2025-03-01"), day("2025-03-31"))
	if err != nil {
		t.Fatalf("AverageValue() failed: %v", err)
	}
	if avg != 30 {
		t.Errorf("AverageValue() = %v, want 30", avg)
	}

	empty, err := st.AverageValue(ctx, "workout", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("AverageValue() on empty range failed: %v", err)
	}
	if empty != 0 {
		t.Errorf("AverageValue() on empty range = %v, want 0", empty)
	}

	sum, err := st.SumValue(ctx, "workout", day("2025-03-01"), day("2025-03-31"))
	if err != nil {
		t.Fatalf("SumValue() failed: %v", err)
	}
	if sum != 90 {
		t.Errorf("SumValue() = %d, want 90", sum)
	}
}

func TestValuesInRange(t *testing.T) {
	st := setupTestStore(t)
	seedReads(t, st)

	values, err := st.ValuesInRange(context.Background(), day("2025-03-03"), day("2025-03-05"))
	if err != nil {
		t.Fatalf("ValuesInRange() failed: %v", err)
	}
	if values["workout"]["2025-03-03"] != 60 || values["reading"]["2025-03-05"] != 5 {
		t.Errorf("ValuesInRange() = %v", values)
	}
	if _, ok := values["workout"]["2025-03-01"]; ok {
		t.Error("ValuesInRange() included a date before the range")
	}
}

func TestCountsAndRange(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if _, _, ok, err := st.DateRange(ctx); err != nil || ok {
		t.Fatalf("DateRange() on empty store = %v, %v", ok, err)
	}

	seedReads(t, st)

	first, last, ok, err := st.DateRange(ctx)
	if err != nil || !ok {
		t.Fatalf("DateRange() = %v, %v", ok, err)
	}
	if first != day("2025-03-01") || last != day("2025-03-05") {
		t.Errorf("DateRange() = %v..%v", first, last)
	}

	tests := []struct {
		name string
		fn   func(context.Context) (int, error)
		want int
	}{
		{"CountPositive", st.CountPositive, 4},
		{"CountDistinctHabits", st.CountDistinctHabits, 2},
		{"CountPositiveHabits", st.CountPositiveHabits, 2},
		{"ActiveDays", st.ActiveDays, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx)
			if err != nil {
				t.Fatalf("%s() failed: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("%s() = %d, want %d", tt.name, got, tt.want)
			}
		})
	}

	habits, err := st.Habits(ctx)
	if err != nil {
		t.Fatalf("Habits() failed: %v", err)
	}
	if len(habits) != 2 || habits[0] != "reading" || habits[1] != "workout" {
		t.Errorf("Habits() = %v", habits)
	}
}

func TestLastUpdated(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.LastUpdated(ctx, "workout"); err != nil || ok {
		t.Fatalf("LastUpdated() on empty store = %v, %v", ok, err)
	}

	seedReads(t, st)

	if _, ok, err := st.LastUpdated(ctx, "workout"); err != nil || !ok {
		t.Errorf("LastUpdated() = %v, %v", ok, err)
	}
}

func TestTrackedActivityByDate(t *testing.T) {
	st := setupTestStore(t)
	seedReads(t, st)
	ctx := context.Background()

	if err := st.AddTrackedMetric(ctx, "workout"); err != nil {
		t.Fatalf("AddTrackedMetric() failed: %v", err)
	}

	counts, err := st.TrackedActivityByDate(ctx, day("2025-03-01"), day("2025-03-07"))
	if err != nil {
		t.Fatalf("TrackedActivityByDate() failed: %v", err)
	}

	want := map[string]int{"2025-03-01": 1, "2025-03-03": 1}
	if len(counts) != len(want) {
		t.Fatalf("TrackedActivityByDate() = %v, want %v", counts, want)
	}
	for d, n := range want {
		if counts[d] != n {
			t.Errorf("count[%s] = %d, want %d", d, counts[d], n)
		}
	}
}
