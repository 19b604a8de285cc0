package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CleoKiama/cadence/internal/query"
	"github.com/CleoKiama/cadence/internal/ui"
)

// withEngine opens the store and runs fn with an engine honoring --as-of.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *query.Engine)) {
	cfg := mustConfig()
	st := mustStore(cfg)
	defer st.Close()

	engine := newEngine(cfg, st, query.WithClock(clockFlag(cmd)))
	fn(context.Background(), engine)
}

var streakCmd = &cobra.Command{
	Use:     "streak [HABIT]",
	GroupID: "query",
	Short:   "Show current and longest streaks",
	Long: `Show the current streak (consecutive qualifying days ending yesterday) and
the longest streak of a habit. Without a habit, show the longest streak across
every habit.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			if len(args) == 0 {
				longest, err := engine.LongestStreakAny(ctx)
				if err != nil {
					fatalf("%v", err)
				}
				emit(format, map[string]int{"longest": longest}, func() {
					fmt.Printf("Longest streak across all habits: %s days\n", ui.RenderBold(fmt.Sprint(longest)))
				})
				return
			}

			habit := args[0]
			current, err := engine.CurrentStreak(ctx, habit)
			if err != nil {
				fatalf("%v", err)
			}
			longest, err := engine.LongestStreak(ctx, habit)
			if err != nil {
				fatalf("%v", err)
			}

			out := struct {
				Habit   string `json:"habitName" yaml:"habit"`
				Current int    `json:"current" yaml:"current"`
				Longest int    `json:"longest" yaml:"longest"`
			}{habit, current, longest}
			emit(format, out, func() {
				glyph := ui.RenderMuted("○")
				if current > 0 {
					glyph = ui.RenderPass("🔥")
				}
				fmt.Printf("%s %s\n", glyph, ui.RenderBold(habit))
				fmt.Printf("   Current: %d days\n", current)
				fmt.Printf("   Longest: %d days\n", longest)
			})
		})
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats HABIT",
	GroupID: "query",
	Short:   "Show streaks, weekly average, monthly total and trend of a habit",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			card, err := engine.Stats(ctx, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			emit(format, card, func() {
				printCard(card)
			})
		})
	},
}

func printCard(card query.HabitMetrics) {
	fmt.Printf("%s %s\n", trendGlyph(card.Trend), ui.RenderBold(card.Name))
	fmt.Printf("   Current streak: %d days\n", card.CurrentStreak)
	fmt.Printf("   Longest streak: %d days\n", card.LongestStreak)
	fmt.Printf("   Weekly average: %.1f\n", card.WeeklyAverage)
	fmt.Printf("   Monthly total:  %d\n", card.MonthlyTotal)
	if card.LastUpdated != nil {
		fmt.Printf("   Last updated:   %s\n", card.LastUpdated.Local().Format("2006-01-02 15:04"))
	}
}

func trendGlyph(trend query.Trend) string {
	switch trend {
	case query.TrendUp:
		return ui.RenderPass("▲")
	case query.TrendDown:
		return ui.RenderFail("▼")
	default:
		return ui.RenderMuted("■")
	}
}

var trendCmd = &cobra.Command{
	Use:     "trend HABIT",
	GroupID: "query",
	Short:   "Show daily values of a habit",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		days, _ := cmd.Flags().GetInt("days")
		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			points, err := engine.TrendSeries(ctx, args[0], days)
			if err != nil {
				fatalf("%v", err)
			}
			emit(format, query.HabitSeries{Habit: args[0], Data: points}, func() {
				printBars(points)
			})
		})
	},
}

// printBars prints one horizontal bar per day, scaled to the peak.
func printBars(points []query.Point) {
	peak := 0
	for _, p := range points {
		peak = max(peak, p.Value)
	}
	for _, p := range points {
		width := 0
		if peak > 0 {
			width = p.Value * 40 / peak
		}
		fmt.Printf("%s %s %d\n", ui.RenderMuted(p.Date), ui.RenderAccent(strings.Repeat("█", width)), p.Value)
	}
}

var heatmapCmd = &cobra.Command{
	Use:     "heatmap [HABIT]",
	GroupID: "query",
	Short:   "Show a contribution-style heatmap",
	Long: `Show a heatmap of the last --days days (default 90) or of one calendar
month with --month YYYY-MM. Without a habit, show every tracked habit.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		days, _ := cmd.Flags().GetInt("days")
		month, _ := cmd.Flags().GetString("month")

		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			var heatmaps []query.Heatmap

			switch {
			case month != "":
				if len(args) == 0 {
					fatalf("--month needs a habit")
				}
				year, m, err := parseMonth(month)
				if err != nil {
					fatalf("%v", err)
				}
				hm, err := engine.MonthHeatmap(ctx, args[0], year, m)
				if err != nil {
					fatalf("%v", err)
				}
				heatmaps = append(heatmaps, hm)
			case len(args) == 1:
				hm, err := engine.HeatmapSeries(ctx, args[0], days)
				if err != nil {
					fatalf("%v", err)
				}
				heatmaps = append(heatmaps, hm)
			default:
				all, err := engine.AllHeatmaps(ctx, days)
				if err != nil {
					fatalf("%v", err)
				}
				heatmaps = all
			}

			var out any = heatmaps
			if len(args) == 1 {
				out = heatmaps[0]
			}
			emit(format, out, func() {
				for _, hm := range heatmaps {
					fmt.Printf("%s (max %d)\n", ui.RenderBold(hm.Habit), hm.Max)
					fmt.Println(ui.Heatmap(hm.Data))
					fmt.Println()
				}
				fmt.Println(ui.Legend())
			})
		})
	},
}

var analyticsCmd = &cobra.Command{
	Use:     "analytics",
	GroupID: "query",
	Short:   "Show the overview across every habit",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			summary, err := engine.Summary(ctx)
			if err != nil {
				fatalf("%v", err)
			}
			cards, err := engine.Dashboard(ctx)
			if err != nil {
				fatalf("%v", err)
			}

			out := struct {
				Summary query.Summary        `json:"summary" yaml:"summary"`
				Habits  []query.HabitMetrics `json:"habits" yaml:"habits"`
			}{summary, cards}

			emit(format, out, func() {
				fmt.Printf("\n%s Analytics\n\n", ui.RenderAccent("📊"))
				fmt.Printf("Longest streak:  %d days\n", summary.LongestStreak)
				fmt.Printf("Habits:          %d\n", summary.TotalHabits)
				fmt.Printf("Completion rate: %d%%\n", summary.CompletionRate)
				fmt.Printf("Active days:     %d\n\n", summary.ActiveDays)

				if len(cards) == 0 {
					fmt.Printf("%s No habits tracked\n", ui.RenderWarn("⚠"))
					return
				}
				rows := make([][]string, 0, len(cards))
				for _, c := range cards {
					rows = append(rows, []string{
						c.Name,
						fmt.Sprint(c.CurrentStreak),
						fmt.Sprint(c.LongestStreak),
						fmt.Sprintf("%.1f", c.WeeklyAverage),
						fmt.Sprint(c.MonthlyTotal),
						trendGlyph(c.Trend),
					})
				}
				fmt.Println(ui.Table([]string{"Habit", "Streak", "Longest", "Week avg", "Month", "Trend"}, rows))
			})
		})
	},
}

var activityCmd = &cobra.Command{
	Use:     "activity",
	GroupID: "query",
	Short:   "Show daily activity of tracked habits",
	Long: `Show the sum of tracked values per day of the current week (default),
per habit over the last month (--recent), or per habit over a padded calendar
month grid (--month YYYY-MM).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		format := outputFormat(cmd)
		recent, _ := cmd.Flags().GetBool("recent")
		month, _ := cmd.Flags().GetString("month")

		withEngine(cmd, func(ctx context.Context, engine *query.Engine) {
			if !recent && month == "" {
				points, err := engine.WeeklyActivity(ctx)
				if err != nil {
					fatalf("%v", err)
				}
				emit(format, points, func() { printBars(points) })
				return
			}

			var series []query.HabitSeries
			var err error
			if month != "" {
				year, m, perr := parseMonth(month)
				if perr != nil {
					fatalf("%v", perr)
				}
				series, err = engine.StreakGrid(ctx, year, m)
			} else {
				series, err = engine.RecentActivity(ctx)
			}
			if err != nil {
				fatalf("%v", err)
			}

			emit(format, series, func() {
				for _, s := range series {
					fmt.Println(ui.RenderBold(s.Habit))
					cells := make([]string, len(s.Data))
					for i, p := range s.Data {
						level := 0
						if p.Value > 0 {
							level = query.MaxLevel
						}
						cells[i] = ui.Cell(level)
					}
					if len(s.Data) > 0 {
						fmt.Printf("%s %s %s\n\n", ui.RenderMuted(s.Data[0].Date), strings.Join(cells, ""), ui.RenderMuted(s.Data[len(s.Data)-1].Date))
					}
				}
			})
		})
	},
}

func init() {
	trendCmd.Flags().Int("days", 30, "Number of days before the reference day")
	heatmapCmd.Flags().Int("days", 90, "Number of days before the reference day")
	heatmapCmd.Flags().String("month", "", "Calendar month (YYYY-MM)")
	activityCmd.Flags().Bool("recent", false, "Per-habit activity over the last month")
	activityCmd.Flags().String("month", "", "Per-habit grid of a calendar month (YYYY-MM)")

	for _, cmd := range []*cobra.Command{streakCmd, statsCmd, trendCmd, heatmapCmd, analyticsCmd, activityCmd} {
		addQueryFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
}
