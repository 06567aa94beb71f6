package api

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/walink/internal/metrics"
	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/ratelimit"
	"github.com/foxzi/walink/internal/repository"
	"github.com/foxzi/walink/internal/rotation"
)

// handleRedirect handles GET /r/{slug}
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	ip := remoteIP(r)

	if s.deps.Limiter != nil {
		req := &ratelimit.Request{IP: ip}
		// Only existing groups get a group-level counter
		if models.ValidSlug(slug) {
			exists, err := s.deps.Groups.SlugExists(r.Context(), slug)
			if err != nil {
				s.serverError(w, r, err)
				return
			}
			if exists {
				req.Group = slug
			}
		}

		res, err := s.deps.Limiter.Allow(r.Context(), req)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !res.Allowed {
			metrics.IncRateLimitExceeded(string(res.DeniedBy))
			s.logger.Warn("click rate limited", "slug", slug, "ip", ip, "level", res.DeniedBy)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			s.sendError(w, http.StatusTooManyRequests, "too many clicks, try again later")
			return
		}
	}

	sel, err := s.deps.Selector.SelectBySlug(r.Context(), slug, models.ClickMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		RequestID: middleware.GetReqID(r.Context()),
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "link not found")
		return
	case errors.Is(err, rotation.ErrGroupInactive):
		s.sendError(w, http.StatusServiceUnavailable, "this link is currently disabled")
		return
	case errors.Is(err, rotation.ErrNoActiveAgents):
		s.sendError(w, http.StatusServiceUnavailable, "no agents are available right now")
		return
	default:
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, sel.URL, http.StatusFound)
}

// remoteIP strips the port from RemoteAddr, which the client resolver may
// already have replaced
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
