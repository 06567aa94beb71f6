package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/walink/internal/models"
)

const agentNotFound = "agent not found"

// handleListAgents handles GET /api/agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Agents.List(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.sendData(w, http.StatusOK, agents)
}

// handleCreateAgent handles POST /api/agents
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in models.AgentInput
	if err := decodeJSON(r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := s.deps.Agents.Create(r.Context(), in)
	if err != nil {
		s.handleError(w, r, err, agentNotFound)
		return
	}

	s.logger.Info("agent created", "id", agent.ID, "name", agent.Name)
	s.sendData(w, http.StatusCreated, agent)
}

// handleGetAgent handles GET /api/agents/{agentId}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.deps.Agents.Get(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		s.handleError(w, r, err, agentNotFound)
		return
	}
	s.sendData(w, http.StatusOK, agent)
}

// handleUpdateAgent handles PUT /api/agents/{agentId}
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var in models.AgentInput
	if err := decodeJSON(r, &in); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := s.deps.Agents.Update(r.Context(), chi.URLParam(r, "agentId"), in)
	if err != nil {
		s.handleError(w, r, err, agentNotFound)
		return
	}
	s.sendData(w, http.StatusOK, agent)
}

// handleDeleteAgent handles DELETE /api/agents/{agentId}
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentId")
	if err := s.deps.Agents.Delete(r.Context(), id); err != nil {
		s.handleError(w, r, err, agentNotFound)
		return
	}

	s.logger.Info("agent deleted", "id", id)
	s.sendData(w, http.StatusOK, nil)
}

// handleToggleAgent handles PATCH /api/agents/{agentId}/toggle
func (s *Server) handleToggleAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.deps.Agents.ToggleActive(r.Context(), chi.URLParam(r, "agentId"))
	if err != nil {
		s.handleError(w, r, err, agentNotFound)
		return
	}

	s.logger.Info("agent status toggled", "id", agent.ID, "active", agent.IsActive)
	s.sendData(w, http.StatusOK, agent)
}
