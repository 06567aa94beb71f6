package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/foxzi/walink/internal/models"
)

const groupNotFound = "group not found"

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// GroupAgentsRequest is the request body for PUT /api/groups/{groupId}/agents
type GroupAgentsRequest struct {
	AgentIDs []string `json:"agentIds"`
}

// handleListGroups handles GET /api/groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Groups.List(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.sendData(w, http.StatusOK, groups)
}

// handleCreateGroup handles POST /api/groups
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in models.GroupInput
	if err := decodeJSON(r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := s.deps.Groups.Create(r.Context(), in)
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}

	s.logger.Info("group created", "id", group.ID, "slug", group.Slug)
	s.sendData(w, http.StatusCreated, group)
}

// handleGetGroup handles GET /api/groups/{groupId}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.deps.Groups.Get(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}
	s.sendData(w, http.StatusOK, group)
}

// handleUpdateGroup handles PUT /api/groups/{groupId}
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var in models.GroupInput
	if err := decodeJSON(r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := s.deps.Groups.Update(r.Context(), chi.URLParam(r, "groupId"), in)
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}
	s.sendData(w, http.StatusOK, group)
}

// handleDeleteGroup handles DELETE /api/groups/{groupId}
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupId")
	if err := s.deps.Groups.Delete(r.Context(), id); err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}

	s.logger.Info("group deleted", "id", id)
	s.sendData(w, http.StatusOK, nil)
}

// handleSetGroupAgents handles PUT /api/groups/{groupId}/agents
func (s *Server) handleSetGroupAgents(w http.ResponseWriter, r *http.Request) {
	var req GroupAgentsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentIDs == nil {
		req.AgentIDs = []string{}
	}

	group, err := s.deps.Groups.SetAgents(r.Context(), chi.URLParam(r, "groupId"), req.AgentIDs)
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}
	s.sendData(w, http.StatusOK, group)
}

// handleToggleGroup handles PATCH /api/groups/{groupId}/toggle
func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.deps.Groups.ToggleActive(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}

	s.logger.Info("group status toggled", "id", group.ID, "active", group.IsActive)
	s.sendData(w, http.StatusOK, group)
}

// handleGroupQR handles GET /api/groups/{groupId}/qr
func (s *Server) handleGroupQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			s.sendError(w, http.StatusBadRequest, "size must be between 64 and 1024")
			return
		}
		size = n
	}

	group, err := s.deps.Groups.Get(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		s.handleError(w, r, err, groupNotFound)
		return
	}

	png, err := qrcode.Encode(s.rotationLink(group.Slug), qrcode.Medium, size)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="`+group.Slug+`.png"`)
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// rotationLink is the public URL of a group
func (s *Server) rotationLink(slug string) string {
	return strings.TrimRight(s.config.Server.BaseURL, "/") + "/r/" + slug
}
