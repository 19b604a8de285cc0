// Package ui renders cadence terminal output: status glyphs, progress bars,
// habit tables and contribution-style heatmaps.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/CleoKiama/cadence/internal/query"
	"github.com/CleoKiama/cadence/internal/store"
)

var (
	mu       sync.RWMutex
	renderer = lipgloss.NewRenderer(os.Stdout)
)

// Colors
var (
	accentColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	passColor   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	failColor   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}

	// levelColors index heatmap levels 0..4
	levelColors = [query.MaxLevel + 1]lipgloss.AdaptiveColor{
		{Light: "#D0D7DE", Dark: "#30363D"},
		{Light: "#9BE9A8", Dark: "#0E4429"},
		{Light: "#40C463", Dark: "#006D32"},
		{Light: "#30A14E", Dark: "#26A641"},
		{Light: "#216E39", Dark: "#39D353"},
	}
)

// levelGlyphs keep levels distinguishable without color.
var levelGlyphs = [query.MaxLevel + 1]string{"·", "░", "▒", "▓", "█"}

// Init binds rendering to w. Color is disabled when w is not a terminal or
// NO_COLOR is set.
func Init(w io.Writer) {
	r := lipgloss.NewRenderer(w)
	profile := termenv.NewOutput(w).EnvColorProfile()
	if termenv.EnvNoColor() {
		profile = termenv.Ascii
	}
	r.SetColorProfile(profile)

	mu.Lock()
	renderer = r
	mu.Unlock()
}

func style() lipgloss.Style {
	mu.RLock()
	defer mu.RUnlock()
	return renderer.NewStyle()
}

func RenderAccent(s string) string { return style().Foreground(accentColor).Render(s) }
func RenderPass(s string) string   { return style().Foreground(passColor).Render(s) }
func RenderWarn(s string) string   { return style().Foreground(warnColor).Render(s) }
func RenderFail(s string) string   { return style().Foreground(failColor).Render(s) }
func RenderMuted(s string) string  { return style().Foreground(mutedColor).Render(s) }
func RenderBold(s string) string   { return style().Bold(true).Render(s) }

// ProgressBar renders "[#####-----]  50%" with width cells.
func ProgressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if width <= 0 {
		width = 20
	}

	filled := percent * width / 100
	bar := RenderAccent(strings.Repeat("█", filled)) + RenderMuted(strings.Repeat("░", width-filled))
	return fmt.Sprintf("[%s] %3d%%", bar, percent)
}

// Cell renders one heatmap cell.
func Cell(level int) string {
	if level < 0 {
		level = 0
	}
	if level > query.MaxLevel {
		level = query.MaxLevel
	}
	return style().Foreground(levelColors[level]).Render(levelGlyphs[level])
}

var weekdayLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Heatmap renders points as a grid with one row per weekday and one column
// per week, oldest week on the left.
func Heatmap(points []query.HeatmapPoint) string {
	if len(points) == 0 {
		return ""
	}

	offset := 0
	if first, err := store.ParseDate(points[0].Date); err == nil {
		offset = int(first.Weekday())
	}
	cols := (offset + len(points) + 6) / 7

	grid := make([][]string, 7)
	for row := range grid {
		grid[row] = make([]string, cols)
		for col := range grid[row] {
			grid[row][col] = " "
		}
	}
	for i, p := range points {
		idx := offset + i
		grid[idx%7][idx/7] = Cell(p.Level)
	}

	var b strings.Builder
	for row := range grid {
		b.WriteString(RenderMuted(weekdayLabels[row]))
		b.WriteString(" ")
		b.WriteString(strings.Join(grid[row], " "))
		if row < len(grid)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Legend renders "less · ░ ▒ ▓ █ more".
func Legend() string {
	cells := make([]string, 0, query.MaxLevel+1)
	for level := 0; level <= query.MaxLevel; level++ {
		cells = append(cells, Cell(level))
	}
	return RenderMuted("less ") + strings.Join(cells, " ") + RenderMuted(" more")
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	mu.RLock()
	r := renderer
	mu.RUnlock()

	headerStyle := r.NewStyle().Bold(true).Foreground(accentColor).Padding(0, 1)
	cellStyle := r.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}
