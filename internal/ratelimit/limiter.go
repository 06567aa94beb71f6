package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("click_rate_limits")

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Level is the scope a click limit applies to
type Level string

const (
	LevelGlobal Level = "global"
	LevelGroup  Level = "group"
	LevelIP     Level = "ip"
)

// Config contains rate limit configuration. A nil level is not limited.
type Config struct {
	Global   *LimitConfig
	PerGroup *LimitConfig
	PerIP    *LimitConfig

	// How often counters are written to the state store
	FlushInterval time.Duration

	Logger *slog.Logger
}

// LimitConfig contains rate limit values (0 = unlimited)
type LimitConfig struct {
	ClicksPerHour int `json:"clicks_per_hour"`
	ClicksPerDay  int `json:"clicks_per_day"`
}

// Counter is a fixed-window click counter for one key
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// counts returns the counts in effect at now without mutating the counter
func (c *Counter) counts(now time.Time) (hourly, daily int) {
	hourly, daily = c.HourlyCount, c.DailyCount
	if now.Sub(c.HourStart) >= hourWindow {
		hourly = 0
	}
	if now.Sub(c.DayStart) >= dayWindow {
		daily = 0
	}
	return hourly, daily
}

// roll starts new windows once the current ones have elapsed
func (c *Counter) roll(now time.Time) {
	if now.Sub(c.HourStart) >= hourWindow {
		c.HourlyCount = 0
		c.HourStart = now
	}
	if now.Sub(c.DayStart) >= dayWindow {
		c.DailyCount = 0
		c.DayStart = now
	}
}

// idle reports whether both windows elapsed, so the counter carries no state
func (c *Counter) idle(now time.Time) bool {
	return now.Sub(c.DayStart) >= dayWindow && now.Sub(c.HourStart) >= hourWindow
}

// Request identifies the click being limited
type Request struct {
	Group string // requested slug
	IP    string
}

// Result is the outcome of a limit check
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats is a snapshot of one counter
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourlyCount"`
	DailyCount  int       `json:"dailyCount"`
	HourStart   time.Time `json:"hourStart"`
	DayStart    time.Time `json:"dayStart"`
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

// verdict returns nil when the counts stay under the limit
func (lc limitCheck) verdict(c *Counter, hourly, daily int, now time.Time) *Result {
	switch {
	case lc.limit.ClicksPerHour > 0 && hourly >= lc.limit.ClicksPerHour:
		return &Result{DeniedBy: lc.level, DeniedKey: lc.key, RetryAfter: c.HourStart.Add(hourWindow).Sub(now)}
	case lc.limit.ClicksPerDay > 0 && daily >= lc.limit.ClicksPerDay:
		return &Result{DeniedBy: lc.level, DeniedKey: lc.key, RetryAfter: c.DayStart.Add(dayWindow).Sub(now)}
	}
	return nil
}

// Limiter enforces click limits at the global, group and ip levels
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
	logger   *slog.Logger
}

// NewLimiter restores persisted counters from db and starts the flush loop
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
		logger:   cfg.Logger.With("component", "ratelimit"),
	}

	if err := l.load(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l, nil
}

// Allow admits the click only if every level allows it. Counters of all
// levels are incremented together, so a denied click counts nowhere.
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checksFor(req)

	for _, lc := range checks {
		c, ok := l.counters[lc.key]
		if !ok {
			c = &Counter{HourStart: now, DayStart: now}
			l.counters[lc.key] = c
		}
		c.roll(now)

		if denied := lc.verdict(c, c.HourlyCount, c.DailyCount, now); denied != nil {
			return denied, nil
		}
	}

	for _, lc := range checks {
		c := l.counters[lc.key]
		c.HourlyCount++
		c.DailyCount++
	}

	return &Result{Allowed: true}, nil
}

// Check reports what Allow would decide without counting the click
func (l *Limiter) Check(ctx context.Context, req *Request) (*Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	for _, lc := range l.checksFor(req) {
		c, ok := l.counters[lc.key]
		if !ok {
			continue
		}
		hourly, daily := c.counts(now)
		if denied := lc.verdict(c, hourly, daily, now); denied != nil {
			return denied, nil
		}
	}

	return &Result{Allowed: true}, nil
}

// GetStats returns the counter for key at level. The global level uses the
// key "global".
func (l *Limiter) GetStats(ctx context.Context, level Level, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{Level: level, Key: key}

	c, ok := l.counters[makeKey(level, key)]
	if !ok {
		return stats, nil
	}

	stats.HourlyCount, stats.DailyCount = c.counts(l.now())
	stats.HourStart = c.HourStart
	stats.DayStart = c.DayStart
	return stats, nil
}

// Stop ends the flush loop and writes the counters one last time
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	return l.flush()
}

func (l *Limiter) checksFor(req *Request) []limitCheck {
	checks := make([]limitCheck, 0, 3)

	if l.config.Global != nil {
		checks = append(checks, limitCheck{LevelGlobal, makeKey(LevelGlobal, string(LevelGlobal)), l.config.Global})
	}
	if req.Group != "" && l.config.PerGroup != nil {
		checks = append(checks, limitCheck{LevelGroup, makeKey(LevelGroup, req.Group), l.config.PerGroup})
	}
	if req.IP != "" && l.config.PerIP != nil {
		checks = append(checks, limitCheck{LevelIP, makeKey(LevelIP, req.IP), l.config.PerIP})
	}

	return checks
}

func (l *Limiter) load() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var c Counter
			if err := json.Unmarshal(v, &c); err != nil {
				return nil // skip corrupt entries
			}
			l.counters[string(k)] = &c
			return nil
		})
	})
}

// flush writes live counters and removes idle ones from disk. Idle counters
// leave memory only after the write committed.
func (l *Limiter) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var idle []string

	err := l.db.Update(func(tx *bolt.Tx) error {
		idle = idle[:0]

		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for key, c := range l.counters {
			if c.idle(now) {
				if err := bucket.Delete([]byte(key)); err != nil {
					return err
				}
				idle = append(idle, key)
				continue
			}

			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to flush counters: %w", err)
	}

	for _, key := range idle {
		delete(l.counters, key)
	}
	return nil
}

func (l *Limiter) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.flush(); err != nil {
				l.logger.Error("rate limit flush failed", "error", err)
			}
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
