package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HTTPMiddleware records request count, latency and error class per route
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := normalizePath(r)
		m.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		if status >= http.StatusBadRequest {
			m.APIErrorsTotal.WithLabelValues(categorizeStatus(status)).Inc()
		}
	})
}

// normalizePath returns the chi route pattern, or a path with agent/group ids
// and link slugs collapsed when the request matched no route
func normalizePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	segments := strings.Split(r.URL.Path, "/")
	if len(segments) > 2 && segments[1] == "r" {
		return "/r/{slug}"
	}
	for i, seg := range segments {
		if isUUID(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// isUUID accepts only the canonical dashed form
func isUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

func categorizeStatus(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "auth_error"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusBadRequest:
		return "bad_request"
	case status >= http.StatusBadRequest:
		return "client_error"
	}
	return "unknown"
}
