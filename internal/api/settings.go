package api

import (
	"net/http"
)

// SettingsRequest is the request body for POST /api/settings
type SettingsRequest struct {
	Strategy string `json:"strategy"`
}

// handleGetSettings handles GET /api/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.sendData(w, http.StatusOK, settings)
}

// handleSetSettings handles POST /api/settings
func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := s.deps.Settings.Set(r.Context(), req.Strategy)
	if err != nil {
		s.handleError(w, r, err, "settings not found")
		return
	}

	s.logger.Info("rotation strategy updated", "strategy", settings.Strategy)
	s.sendData(w, http.StatusOK, settings)
}
