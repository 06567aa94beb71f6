package api

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/walink/internal/config"
	"github.com/foxzi/walink/internal/ipfilter"
	"github.com/foxzi/walink/internal/metrics"
	"github.com/foxzi/walink/internal/ratelimit"
	"github.com/foxzi/walink/internal/repository"
	"github.com/foxzi/walink/internal/rotation"
)

// Pinger reports storage health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the stores and services the API serves
type Deps struct {
	DB       Pinger
	Agents   *repository.AgentRepository
	Groups   *repository.GroupRepository
	Settings *repository.SettingsRepository
	Clicks   *repository.ClickRepository
	Users    *repository.UserRepository
	Sessions *repository.SessionRepository
	Selector *rotation.Selector
	Limiter  *ratelimit.Limiter // nil disables click limits

	// TLSConfig serves HTTPS when set
	TLSConfig *tls.Config
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	version    string
	logger     *slog.Logger
	startTime  time.Time
	operators  *ipfilter.Filter
	clients    *ipfilter.Resolver
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps, version string, logger *slog.Logger) *Server {
	logger = logger.With("component", "api")
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		version:   version,
		logger:    logger,
		startTime: time.Now(),
		operators: ipfilter.New(cfg.Auth.AllowedIPs, logger),
		clients:   ipfilter.NewResolver(cfg.Server.TrustedProxies, logger),
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		logger.Info("forwarding headers trusted", "proxies", len(cfg.Server.TrustedProxies))
	}
	if s.operators.Enabled() {
		logger.Info("operator IP filtering enabled", "allowed_networks", s.operators.Count())
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.clients.Middleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/health", s.handleHealth)

	// Public rotation link
	s.router.Get("/r/{slug}", s.handleRedirect)

	// Operator surfaces; the public link stays reachable from anywhere
	denied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusForbidden, "forbidden")
	})
	operatorsOnly := s.operators.Middleware(denied)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(operatorsOnly)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(operatorsOnly)
		r.Use(s.requireAuth)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)
			r.Get("/{agentId}", s.handleGetAgent)
			r.Put("/{agentId}", s.handleUpdateAgent)
			r.Delete("/{agentId}", s.handleDeleteAgent)
			r.Patch("/{agentId}/toggle", s.handleToggleAgent)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Get("/{groupId}", s.handleGetGroup)
			r.Put("/{groupId}", s.handleUpdateGroup)
			r.Delete("/{groupId}", s.handleDeleteGroup)
			r.Put("/{groupId}/agents", s.handleSetGroupAgents)
			r.Patch("/{groupId}/toggle", s.handleToggleGroup)
			r.Get("/{groupId}/qr", s.handleGroupQR)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSetSettings)

		r.Get("/analytics/groups", s.handleGroupAnalytics)
		r.Get("/ratelimit/stats", s.handleRateLimitStats)

		r.Get("/me", s.handleMe)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	cfg := s.config.Server
	s.httpServer = &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP server", "addr", cfg.ListenAddr, "tls", s.deps.TLSConfig != nil)

	var err error
	if s.deps.TLSConfig != nil {
		s.httpServer.TLSConfig = s.deps.TLSConfig
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
