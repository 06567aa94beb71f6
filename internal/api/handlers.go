package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/repository"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Response is the JSON envelope of every API answer
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	s.sendJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendData sends a success envelope
func (s *Server) sendData(w http.ResponseWriter, status int, data any) {
	s.sendJSON(w, status, Response{Success: true, Data: data})
}

// sendError sends a failure envelope
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, Response{Success: false, Error: message})
}

// handleError translates store and validation errors into envelopes
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		s.sendError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, repository.ErrNotFound):
		s.sendError(w, http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrConflict):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.serverError(w, r, err)
	}
}

// serverError logs err and answers with a generic 500
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	s.sendError(w, http.StatusInternalServerError, "internal error")
}
