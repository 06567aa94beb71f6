package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/repository"
)

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// MeResponse describes the caller of an authenticated request
type MeResponse struct {
	User   *models.User `json:"user,omitempty"`
	APIKey bool         `json:"apiKey"`
}

// handleLogin handles POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.sendError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, repository.ErrInvalidCredentials) {
		s.logger.Warn("failed login", "email", req.Email, "remote_addr", r.RemoteAddr)
		s.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	session, err := s.deps.Sessions.Create(r.Context(), user.ID, s.config.Auth.SessionTTL)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.config.Auth.CookieSecure || s.config.HasTLS(),
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("operator logged in", "user_id", user.ID)
	s.sendData(w, http.StatusOK, LoginResponse{User: user, ExpiresAt: session.ExpiresAt})
}

// handleLogout handles POST /auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := s.deps.Sessions.Delete(r.Context(), cookie.Value); err != nil {
			s.serverError(w, r, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})

	s.sendData(w, http.StatusOK, nil)
}

// handleMe handles GET /api/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := userID(r.Context())
	if id == "" {
		s.sendData(w, http.StatusOK, MeResponse{APIKey: true})
		return
	}

	user, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err, "user not found")
		return
	}
	s.sendData(w, http.StatusOK, MeResponse{User: user})
}
