package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// defaultHeatmapDays is the window of /api/habits/{name}/heatmap without a
// days parameter.
const defaultHeatmapDays = 90

// StreakData is the body of /api/habits/{name}/streak.
type StreakData struct {
	Habit   string `json:"habitName"`
	Current int    `json:"current"`
	Longest int    `json:"longest"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireEngine reports whether the API can answer, writing a 503 if not.
func (s *Server) requireEngine(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "query engine not configured")
		return false
	}
	return true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	summary, err := s.engine.Summary(r.Context())
	if err != nil {
		s.logger.Printf("Failed to compute summary: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	cards, err := s.engine.Dashboard(r.Context())
	if err != nil {
		s.logger.Printf("Failed to compute dashboard: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute dashboard")
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleWeeklyActivity(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	points, err := s.engine.WeeklyActivity(r.Context())
	if err != nil {
		s.logger.Printf("Failed to compute weekly activity: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute weekly activity")
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	days := defaultHeatmapDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 3660 {
			writeError(w, http.StatusBadRequest, "days must be an integer between 0 and 3660")
			return
		}
		days = n
	}

	habit := r.PathValue("name")
	heatmap, err := s.engine.HeatmapSeries(r.Context(), habit, days)
	if err != nil {
		s.logger.Printf("Failed to build heatmap for %s: %v", habit, err)
		writeError(w, http.StatusInternalServerError, "failed to build heatmap")
		return
	}
	writeJSON(w, http.StatusOK, heatmap)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	habit := r.PathValue("name")
	current, err := s.engine.CurrentStreak(r.Context(), habit)
	if err != nil {
		s.logger.Printf("Failed to compute streak for %s: %v", habit, err)
		writeError(w, http.StatusInternalServerError, "failed to compute streak")
		return
	}
	longest, err := s.engine.LongestStreak(r.Context(), habit)
	if err != nil {
		s.logger.Printf("Failed to compute streak for %s: %v", habit, err)
		writeError(w, http.StatusInternalServerError, "failed to compute streak")
		return
	}
	writeJSON(w, http.StatusOK, StreakData{Habit: habit, Current: current, Longest: longest})
}
