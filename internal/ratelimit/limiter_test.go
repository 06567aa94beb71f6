package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "state.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLimiter(t *testing.T, db *bolt.DB, cfg *Config) *Limiter {
	t.Helper()
	limiter, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	t.Cleanup(func() { limiter.Stop() })
	return limiter
}

func TestNewLimiterDefaultConfig(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), nil)

	if limiter.config.FlushInterval != 10*time.Second {
		t.Errorf("expected default FlushInterval=10s, got %v", limiter.config.FlushInterval)
	}
}

func TestAllowGlobalLimit(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{ClicksPerHour: 3, ClicksPerDay: 10},
		FlushInterval: time.Hour, // Don't flush during test
	})

	ctx := context.Background()
	req := &Request{Group: "sales", IP: "10.0.0.1"}

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, req)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !result.Allowed {
			t.Errorf("click %d should be allowed", i+1)
		}
	}

	result, err := limiter.Allow(ctx, &Request{Group: "support", IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if result.Allowed {
		t.Error("click 4 should be denied")
	}
	if result.DeniedBy != LevelGlobal {
		t.Errorf("expected DeniedBy=global, got %s", result.DeniedBy)
	}
	if result.RetryAfter <= 0 {
		t.Error("expected positive RetryAfter")
	}
}

func TestAllowGroupLimit(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		PerGroup:      &LimitConfig{ClicksPerHour: 2},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if result, _ := limiter.Allow(ctx, &Request{Group: "sales"}); !result.Allowed {
			t.Errorf("click %d should be allowed", i+1)
		}
	}

	result, _ := limiter.Allow(ctx, &Request{Group: "sales"})
	if result.Allowed || result.DeniedBy != LevelGroup {
		t.Errorf("third sales click = %+v, want denied by group", result)
	}

	// Other groups keep their own budget
	if result, _ := limiter.Allow(ctx, &Request{Group: "support"}); !result.Allowed {
		t.Error("support click should be allowed")
	}
}

func TestAllowIPLimit(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		PerIP:         &LimitConfig{ClicksPerHour: 1},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	if result, _ := limiter.Allow(ctx, &Request{Group: "sales", IP: "10.0.0.1"}); !result.Allowed {
		t.Error("first click should be allowed")
	}
	result, _ := limiter.Allow(ctx, &Request{Group: "support", IP: "10.0.0.1"})
	if result.Allowed || result.DeniedBy != LevelIP {
		t.Errorf("second click from same IP = %+v, want denied by ip", result)
	}
	if result.DeniedKey != "ip:10.0.0.1" {
		t.Errorf("DeniedKey = %s, want ip:10.0.0.1", result.DeniedKey)
	}

	if result, _ := limiter.Allow(ctx, &Request{Group: "sales", IP: "10.0.0.2"}); !result.Allowed {
		t.Error("click from another IP should be allowed")
	}
}

func TestAllowDailyLimit(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{ClicksPerHour: 100, ClicksPerDay: 3},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()
	req := &Request{Group: "sales"}

	for i := 0; i < 3; i++ {
		if result, _ := limiter.Allow(ctx, req); !result.Allowed {
			t.Errorf("click %d should be allowed", i+1)
		}
	}

	result, _ := limiter.Allow(ctx, req)
	if result.Allowed {
		t.Error("click 4 should be denied by daily limit")
	}
	if result.RetryAfter <= time.Hour {
		t.Errorf("RetryAfter = %v, want the rest of the day", result.RetryAfter)
	}
}

func TestDeniedClickDoesNotCount(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{ClicksPerHour: 10},
		PerIP:         &LimitConfig{ClicksPerHour: 1},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	limiter.Allow(ctx, &Request{IP: "10.0.0.1"})
	limiter.Allow(ctx, &Request{IP: "10.0.0.1"}) // denied by ip

	stats, _ := limiter.GetStats(ctx, LevelGlobal, "global")
	if stats.HourlyCount != 1 {
		t.Errorf("global HourlyCount = %d, want 1", stats.HourlyCount)
	}
}

func TestWindowReset(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		PerIP:         &LimitConfig{ClicksPerHour: 1},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	req := &Request{IP: "10.0.0.1"}
	limiter.Allow(ctx, req)
	if result, _ := limiter.Allow(ctx, req); result.Allowed {
		t.Fatal("second click in the same hour should be denied")
	}

	now = now.Add(time.Hour)
	if result, _ := limiter.Allow(ctx, req); !result.Allowed {
		t.Error("click after the hour window should be allowed")
	}
}

func TestCheck(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{ClicksPerHour: 2},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()
	req := &Request{Group: "sales"}

	// Check should not increment counters
	for i := 0; i < 5; i++ {
		result, err := limiter.Check(ctx, req)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !result.Allowed {
			t.Errorf("Check %d should return allowed", i+1)
		}
	}

	limiter.Allow(ctx, req)
	limiter.Allow(ctx, req)
	if result, _ := limiter.Check(ctx, req); result.Allowed {
		t.Error("Check should report denied once the limit is used up")
	}
}

func TestGetStatsNonExistent(t *testing.T) {
	limiter := newTestLimiter(t, setupTestDB(t), nil)

	stats, err := limiter.GetStats(context.Background(), LevelGroup, "nonexistent")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.HourlyCount != 0 {
		t.Errorf("expected HourlyCount=0, got %d", stats.HourlyCount)
	}
}

func TestPersistence(t *testing.T) {
	db := setupTestDB(t)
	cfg := &Config{
		Global:        &LimitConfig{ClicksPerHour: 10},
		FlushInterval: time.Hour,
	}

	limiter, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		limiter.Allow(ctx, &Request{Group: "sales"})
	}

	// Stop flushes the counters
	if err := limiter.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// A second Stop is harmless
	if err := limiter.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	limiter2 := newTestLimiter(t, db, cfg)
	stats, err := limiter2.GetStats(ctx, LevelGlobal, "global")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.HourlyCount != 5 {
		t.Errorf("expected persisted HourlyCount=5, got %d", stats.HourlyCount)
	}
}

func TestMakeKey(t *testing.T) {
	tests := []struct {
		level    Level
		key      string
		expected string
	}{
		{LevelGlobal, "global", "global:global"},
		{LevelGroup, "sales-team", "group:sales-team"},
		{LevelIP, "192.168.1.1", "ip:192.168.1.1"},
	}

	for _, tc := range tests {
		if result := makeKey(tc.level, tc.key); result != tc.expected {
			t.Errorf("makeKey(%s, %s) = %s, expected %s", tc.level, tc.key, result, tc.expected)
		}
	}
}

func TestZeroLimits(t *testing.T) {
	// Zero limits mean unlimited
	limiter := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{},
		FlushInterval: time.Hour,
	})

	for i := 0; i < 100; i++ {
		if result, _ := limiter.Allow(context.Background(), &Request{Group: "sales"}); !result.Allowed {
			t.Fatalf("click %d should be allowed with zero limits", i+1)
		}
	}
}

func TestFlushDropsIdleCounters(t *testing.T) {
	db := setupTestDB(t)
	cfg := &Config{
		PerIP:         &LimitConfig{ClicksPerHour: 5},
		FlushInterval: time.Hour,
	}

	limiter, err := NewLimiter(db, cfg)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	limiter.Allow(ctx, &Request{IP: "10.0.0.1"})
	if err := limiter.flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	now = now.Add(25 * time.Hour)
	if err := limiter.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(limiter.counters) != 0 {
		t.Errorf("expected idle counters to be dropped, have %d", len(limiter.counters))
	}

	db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRateLimits).Get([]byte("ip:10.0.0.1")); v != nil {
			t.Error("idle counter still persisted")
		}
		return nil
	})
}

func TestFailedFlushKeepsIdleCounters(t *testing.T) {
	db := setupTestDB(t)
	limiter, err := NewLimiter(db, &Config{
		PerIP:         &LimitConfig{ClicksPerHour: 5},
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	limiter.Allow(context.Background(), &Request{IP: "10.0.0.1"})

	now = now.Add(25 * time.Hour)
	db.Close()

	if err := limiter.Stop(); err == nil {
		t.Fatal("expected flush on a closed store to fail")
	}
	if _, ok := limiter.counters["ip:10.0.0.1"]; !ok {
		t.Error("idle counter dropped from memory although the write failed")
	}
}
