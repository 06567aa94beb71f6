package api

import (
	"net/http"
	"strconv"

	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/ratelimit"
	"github.com/foxzi/walink/internal/repository"
)

// handleGroupAnalytics handles GET /api/analytics/groups
func (s *Server) handleGroupAnalytics(w http.ResponseWriter, r *http.Request) {
	q := models.AnalyticsQuery{GroupID: r.URL.Query().Get("group")}

	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		q.Days = days
	}
	q.Days = repository.ClampDays(q.Days)

	if !q.AllGroups() {
		if _, err := s.deps.Groups.Get(r.Context(), q.GroupID); err != nil {
			s.handleError(w, r, err, groupNotFound)
			return
		}
	}

	data, err := s.deps.Clicks.GroupAnalytics(r.Context(), q)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	s.sendData(w, http.StatusOK, data)
}

// handleRateLimitStats handles GET /api/ratelimit/stats?level=&key=
func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		s.sendError(w, http.StatusNotFound, "rate limiting is disabled")
		return
	}

	level := ratelimit.Level(r.URL.Query().Get("level"))
	key := r.URL.Query().Get("key")

	switch level {
	case ratelimit.LevelGlobal:
		key = "global"
	case ratelimit.LevelGroup, ratelimit.LevelIP:
		if key == "" {
			s.sendError(w, http.StatusBadRequest, "key is required")
			return
		}
	default:
		s.sendError(w, http.StatusBadRequest, "level must be one of global, group, ip")
		return
	}

	stats, err := s.deps.Limiter.GetStats(r.Context(), level, key)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.sendData(w, http.StatusOK, stats)
}
