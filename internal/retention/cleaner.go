package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/walink/internal/metrics"
)

// ClickStore removes analytics events
type ClickStore interface {
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionStore removes expired operator sessions
type SessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config contains cleanup settings
type Config struct {
	// Click events older than this are deleted
	MaxAge   time.Duration
	Interval time.Duration
}

// Result describes one cleanup pass
type Result struct {
	Cutoff   time.Time `json:"cutoff"`
	Clicks   int64     `json:"clicks"`
	Sessions int64     `json:"sessions"`
	DryRun   bool      `json:"dryRun"`
}

// Cleaner handles automatic cleanup of old click events and sessions
type Cleaner struct {
	clicks   ClickStore
	sessions SessionStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleaner creates a new cleaner service. sessions may be nil.
func NewCleaner(clicks ClickStore, sessions SessionStore, cfg Config, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		clicks:   clicks,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "retention"),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup loop
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.MaxAge <= 0 || c.cfg.Interval <= 0 {
		c.logger.Info("retention cleanup disabled")
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("cleaner started",
		"max_age", c.cfg.MaxAge,
		"interval", c.cfg.Interval,
	)
}

// Stop stops the cleaner and waits for the loop to finish
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	c.logger.Info("cleaner stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

func (c *Cleaner) run(ctx context.Context) {
	res, err := c.RunOnce(ctx, c.cfg.MaxAge, false)
	if err != nil {
		c.logger.Error("failed to cleanup click events", "error", err)
		return
	}

	if res.Clicks > 0 || res.Sessions > 0 {
		c.logger.Info("cleaned up old data",
			"clicks", res.Clicks,
			"sessions", res.Sessions,
			"cutoff", res.Cutoff,
		)
	}
}

// RunOnce deletes click events older than maxAge and expired sessions. With
// dryRun it only counts the click events that would be deleted.
func (c *Cleaner) RunOnce(ctx context.Context, maxAge time.Duration, dryRun bool) (*Result, error) {
	now := c.now().UTC()
	res := &Result{Cutoff: now.Add(-maxAge), DryRun: dryRun}

	if dryRun {
		n, err := c.clicks.CountOlderThan(ctx, res.Cutoff)
		if err != nil {
			return nil, err
		}
		res.Clicks = n
		return res, nil
	}

	n, err := c.clicks.DeleteOlderThan(ctx, res.Cutoff)
	if err != nil {
		return nil, err
	}
	res.Clicks = n
	metrics.AddClickEventsPurged(n)

	if c.sessions != nil {
		n, err := c.sessions.DeleteExpired(ctx, now)
		if err != nil {
			return res, err
		}
		res.Sessions = n
	}

	return res, nil
}
