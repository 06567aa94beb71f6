package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/walink/internal/api"
	"github.com/foxzi/walink/internal/config"
	"github.com/foxzi/walink/internal/db"
	"github.com/foxzi/walink/internal/events"
	"github.com/foxzi/walink/internal/metrics"
	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/ratelimit"
	"github.com/foxzi/walink/internal/repository"
	"github.com/foxzi/walink/internal/retention"
	"github.com/foxzi/walink/internal/rotation"
	walinkTLS "github.com/foxzi/walink/internal/tls"
)

// App is the main application
type App struct {
	config        *config.Config
	db            *db.DB
	state         *bolt.DB
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	rateLimiter   *ratelimit.Limiter
	publisher     events.Publisher
	selector      *rotation.Selector
	cleaner       *retention.Cleaner
	tlsConfig     *tls.Config
	acmeManager   *walinkTLS.ACMEManager
	acmeServer    *http.Server
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger := SetupLogger(cfg.Logging, os.Stdout)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateContext(ctx); err != nil {
		database.Close()
		return nil, err
	}

	a := &App{
		config: cfg,
		db:     database,
		logger: logger,
	}

	if err := a.init(ctx, version); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, version string) error {
	cfg := a.config

	state, err := OpenState(cfg.Database.StatePath)
	if err != nil {
		return err
	}
	a.state = state

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)

		a.collector, err = metrics.NewCollector(
			state, m,
			repository.NewInventoryRepository(a.db),
			cfg.Database.Path,
			cfg.Metrics.FlushInterval,
		)
		if err != nil {
			return fmt.Errorf("failed to create metrics collector: %w", err)
		}

		a.metricsServer = metrics.NewServer(m, metrics.ServerOptions{
			Addr:           cfg.Metrics.ListenAddr,
			Path:           cfg.Metrics.Path,
			AllowedIPs:     cfg.Metrics.AllowedIPs,
			TrustedProxies: cfg.Server.TrustedProxies,
		}, a.logger)
		a.logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	if cfg.RateLimit.Enabled {
		limits := RateLimitConfig(cfg.RateLimit)
		limits.Logger = a.logger
		a.rateLimiter, err = ratelimit.NewLimiter(state, limits)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		a.logger.Info("click rate limiting enabled")
	}

	a.publisher = events.Nop{}
	if cfg.Events.Enabled {
		a.publisher, err = events.NewAMQP(ctx, events.ConnectionOptions{
			URL:           cfg.Events.URL,
			RetryAttempts: cfg.Events.RetryAttempts,
			Delay:         cfg.Events.RetryDelay,
			Logger:        a.logger.With("component", "events"),
		}, cfg.Events.Exchange)
		if err != nil {
			a.publisher = nil
			return fmt.Errorf("failed to connect event broker: %w", err)
		}
		a.logger.Info("click events enabled", "exchange", cfg.Events.Exchange)
	}

	if err := a.setupTLS(); err != nil {
		return err
	}

	defaultStrategy := models.Strategy(cfg.Rotation.DefaultStrategy)
	a.selector = rotation.NewSelector(a.db, rotation.Options{
		DefaultStrategy: defaultStrategy,
		Publisher:       a.publisher,
		Logger:          a.logger,
	})

	clicks := repository.NewClickRepository(a.db)
	sessions := repository.NewSessionRepository(a.db)

	a.cleaner = retention.NewCleaner(clicks, sessions, RetentionConfig(cfg.Analytics), a.logger)

	a.apiServer = api.NewServer(cfg, api.Deps{
		DB:       a.db,
		Agents:   repository.NewAgentRepository(a.db),
		Groups:   repository.NewGroupRepository(a.db),
		Settings: repository.NewSettingsRepository(a.db, defaultStrategy),
		Clicks:   clicks,
		Users:    repository.NewUserRepository(a.db),
		Sessions: sessions,
		Selector: a.selector,
		Limiter:  a.rateLimiter,

		TLSConfig: a.tlsConfig,
	}, version, a.logger)

	return nil
}

// setupTLS prepares certificates for the public link server
func (a *App) setupTLS() error {
	if !a.config.HasTLS() {
		return nil
	}

	tlsCfg := a.config.Server.TLS
	if a.config.HasACME() {
		a.acmeManager = walinkTLS.NewACMEManager(tlsCfg.ACME.Email, tlsCfg.ACME.Domains, tlsCfg.ACME.CacheDir)
		a.tlsConfig = a.acmeManager.TLSConfig()
		a.acmeServer = &http.Server{
			Addr:              tlsCfg.ACME.HTTPAddr,
			Handler:           a.acmeManager.HTTPHandler(http.HandlerFunc(walinkTLS.RedirectToHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("ACME (Let's Encrypt) enabled", "domains", tlsCfg.ACME.Domains)
		return nil
	}

	var err error
	a.tlsConfig, err = walinkTLS.LoadCertificate(tlsCfg.CertFile, tlsCfg.KeyFile)
	if err != nil {
		return err
	}
	a.logger.Info("TLS enabled with manual certificates")
	return nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting walink",
		"listen_addr", a.config.Server.ListenAddr,
		"base_url", a.config.Server.BaseURL,
		"tls", a.config.HasTLS(),
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}
	a.cleaner.Start(ctx)

	errCh := make(chan error, 3)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// HTTP-01 challenges and plain HTTP redirects
	if a.acmeServer != nil {
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("acme server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop accepting clicks first
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	// In-flight click events need the broker connection
	a.selector.Wait()

	a.cleaner.Stop()
	a.close()

	a.logger.Info("shutdown complete")
	return nil
}

// close releases workers and storage of a possibly partial App
func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("event publisher close error", "error", err)
		}
	}

	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Error("state storage close error", "error", err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}
}

// OpenState opens the BoltDB file holding rate limit and metrics counters
func OpenState(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	state, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state storage: %w", err)
	}
	return state, nil
}

// RateLimitConfig maps file configuration to limiter settings
func RateLimitConfig(cfg config.RateLimitConfig) *ratelimit.Config {
	return &ratelimit.Config{
		Global:        limitConfig(cfg.Global),
		PerGroup:      limitConfig(cfg.PerGroup),
		PerIP:         limitConfig(cfg.PerIP),
		FlushInterval: cfg.FlushInterval,
	}
}

func limitConfig(v *config.LimitValues) *ratelimit.LimitConfig {
	if v == nil {
		return nil
	}
	return &ratelimit.LimitConfig{
		ClicksPerHour: v.ClicksPerHour,
		ClicksPerDay:  v.ClicksPerDay,
	}
}

// RetentionConfig maps analytics settings to cleaner settings
func RetentionConfig(cfg config.AnalyticsConfig) retention.Config {
	return retention.Config{
		MaxAge:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		Interval: cfg.CleanupInterval,
	}
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
