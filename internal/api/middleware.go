package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/walink/internal/repository"
)

const sessionCookie = "session"

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireAuth accepts the static API key or a valid session cookie
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.validAPIKey(r) {
			next.ServeHTTP(w, r)
			return
		}

		if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
			session, err := s.deps.Sessions.Get(r.Context(), cookie.Value)
			if err == nil {
				ctx := context.WithValue(r.Context(), ctxKeyUserID, session.UserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !errors.Is(err, repository.ErrNotFound) {
				s.serverError(w, r, err)
				return
			}
		}

		s.logger.Warn("unauthorized API request",
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path,
		)
		s.sendError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// validAPIKey checks Authorization: Bearer or X-API-Key against auth.api_key
func (s *Server) validAPIKey(r *http.Request) bool {
	key := s.config.Auth.APIKey
	if key == "" {
		return false
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		auth = r.Header.Get("X-API-Key")
	}
	auth = strings.TrimPrefix(auth, "Bearer ")
	if auth == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(auth), []byte(key)) == 1
}

// userID returns the operator of a session-authenticated request
func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}
