package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/walink/internal/ipfilter"
)

// ServerOptions configures the metrics listener
type ServerOptions struct {
	Addr           string
	Path           string
	AllowedIPs     []string
	TrustedProxies []string // proxies allowed to set forwarding headers
}

// Server serves Prometheus metrics over HTTP
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	opts       ServerOptions
	logger     *slog.Logger
	filter     *ipfilter.Filter
	clients    *ipfilter.Resolver
}

// NewServer creates a new metrics HTTP server
func NewServer(m *Metrics, opts ServerOptions, logger *slog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}

	logger = logger.With("component", "metrics")
	s := &Server{
		metrics: m,
		opts:    opts,
		logger:  logger,
		filter:  ipfilter.New(opts.AllowedIPs, logger),
		clients: ipfilter.NewResolver(opts.TrustedProxies, logger),
	}

	if s.filter.Enabled() {
		logger.Info("metrics IP filtering enabled", "allowed_networks", s.filter.Count())
	}

	return s
}

// Handler returns the router serving the metrics and health endpoints
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.clients.Middleware)

	r.With(s.filter.Middleware(nil)).Handle(s.opts.Path, promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	// Health checks bypass IP filtering
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

// ListenAndServe starts the metrics HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting metrics server", "addr", s.opts.Addr, "path", s.opts.Path)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
