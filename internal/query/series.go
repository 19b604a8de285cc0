package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidMonth is returned for a month outside 1..12.
var ErrInvalidMonth = errors.New("invalid month")

// MaxLevel is the highest heatmap intensity level.
const MaxLevel = 4

// Point is one day of a dense series.
type Point struct {
	Date  string `json:"date" yaml:"date"`
	Value int    `json:"value" yaml:"value"`
}

// HeatmapPoint is a Point with its intensity level.
type HeatmapPoint struct {
	Date  string `json:"date" yaml:"date"`
	Value int    `json:"value" yaml:"value"`
	Level int    `json:"level" yaml:"level"`
}

// HabitSeries is a dense series for one habit.
type HabitSeries struct {
	Habit string  `json:"habitName" yaml:"habit"`
	Data  []Point `json:"data" yaml:"data"`
}

// Heatmap is a dense, levelled series for one habit.
type Heatmap struct {
	Habit string         `json:"habitName" yaml:"habit"`
	Max   int            `json:"max" yaml:"max"`
	Data  []HeatmapPoint `json:"data" yaml:"data"`
}

// Level buckets value relative to peak into 0..MaxLevel. Zero values are
// level 0; the window maximum is always MaxLevel.
func Level(value, peak int) int {
	if value <= 0 || peak <= 0 {
		return 0
	}
	level := int(math.Ceil(float64(value)/float64(peak)*3)) + 1
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// TrendSeries returns habit's value for each of the last days+1 calendar
// days, oldest first, today inclusive. Days without a row are 0.
func (e *Engine) TrendSeries(ctx context.Context, habit string, days int) ([]Point, error) {
	if days < 0 {
		return nil, fmt.Errorf("day count must not be negative, got %d", days)
	}

	to := e.Today()
	from := to.AddDate(0, 0, -days)
	values, err := e.store.DailyValues(ctx, habit, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build trend for %s: %w", habit, err)
	}
	return densify(values, from, to), nil
}

// HeatmapSeries is TrendSeries with an intensity level per day. Levels are
// relative to the largest value in the returned window.
func (e *Engine) HeatmapSeries(ctx context.Context, habit string, days int) (Heatmap, error) {
	points, err := e.TrendSeries(ctx, habit, days)
	if err != nil {
		return Heatmap{}, err
	}
	return levelled(habit, points), nil
}

// AllHeatmaps returns a heatmap over the last days+1 days for every tracked
// habit, sorted by habit name.
func (e *Engine) AllHeatmaps(ctx context.Context, days int) ([]Heatmap, error) {
	if days < 0 {
		return nil, fmt.Errorf("day count must not be negative, got %d", days)
	}

	to := e.Today()
	from := to.AddDate(0, 0, -days)
	series, err := e.seriesForTracked(ctx, from, to)
	if err != nil {
		return nil, err
	}

	heatmaps := make([]Heatmap, 0, len(series))
	for _, s := range series {
		heatmaps = append(heatmaps, levelled(s.Habit, s.Data))
	}
	return heatmaps, nil
}

// MonthHeatmap returns a dense, levelled series covering every day of the
// given month.
func (e *Engine) MonthHeatmap(ctx context.Context, habit string, year int, month time.Month) (Heatmap, error) {
	if month < time.January || month > time.December {
		return Heatmap{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	from, to := monthBounds(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	values, err := e.store.DailyValues(ctx, habit, from, to)
	if err != nil {
		return Heatmap{}, fmt.Errorf("failed to build heatmap for %s %d-%02d: %w", habit, year, month, err)
	}
	return levelled(habit, densify(values, from, to)), nil
}

// seriesForTracked builds one dense series per tracked habit over [from, to].
func (e *Engine) seriesForTracked(ctx context.Context, from, to time.Time) ([]HabitSeries, error) {
	habits, err := e.store.TrackedMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked habits: %w", err)
	}
	values, err := e.store.ValuesInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read values: %w", err)
	}

	sort.Strings(habits)
	series := make([]HabitSeries, 0, len(habits))
	for _, habit := range habits {
		series = append(series, HabitSeries{
			Habit: habit,
			Data:  densify(values[habit], from, to),
		})
	}
	return series, nil
}

// densify expands sparse date -> value pairs into one point per day of the
// inclusive range [from, to].
func densify(values map[string]int, from, to time.Time) []Point {
	n := int(to.Sub(from).Hours()/24) + 1
	if n < 0 {
		n = 0
	}

	points := make([]Point, 0, n)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := dateKey(day)
		points = append(points, Point{Date: key, Value: values[key]})
	}
	return points
}

func levelled(habit string, points []Point) Heatmap {
	peak := 0
	for _, p := range points {
		if p.Value > peak {
			peak = p.Value
		}
	}

	data := make([]HeatmapPoint, len(points))
	for i, p := range points {
		data[i] = HeatmapPoint{Date: p.Date, Value: p.Value, Level: Level(p.Value, peak)}
	}
	return Heatmap{Habit: habit, Max: peak, Data: data}
}
