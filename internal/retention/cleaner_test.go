package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/foxzi/walink/internal/db"
	"github.com/foxzi/walink/internal/metrics"
	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "walink.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}

func seedClicks(t *testing.T, database *db.DB, ages ...time.Duration) {
	t.Helper()
	ctx := context.Background()

	agent, err := repository.NewAgentRepository(database).Create(ctx, models.AgentInput{Name: "A", Phone: "15550000001"})
	if err != nil {
		t.Fatalf("Create agent: %v", err)
	}
	group, err := repository.NewGroupRepository(database).Create(ctx, models.GroupInput{Name: "Sales", AgentIDs: []string{agent.ID}})
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}

	clicks := repository.NewClickRepository(database)
	for _, age := range ages {
		err := clicks.Record(ctx, &models.ClickEvent{
			GroupID:   group.ID,
			AgentID:   agent.ID,
			Strategy:  models.StrategyRoundRobin,
			ClickedAt: time.Now().Add(-age),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
}

func TestCleaner_RunOnce(t *testing.T) {
	database := setupTestDB(t)
	seedClicks(t, database, time.Hour, 10*24*time.Hour, 100*24*time.Hour, 200*24*time.Hour)

	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	clicks := repository.NewClickRepository(database)
	c := NewCleaner(clicks, repository.NewSessionRepository(database), Config{}, testLogger())
	ctx := context.Background()

	res, err := c.RunOnce(ctx, 90*24*time.Hour, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if res.Clicks != 2 || !res.DryRun {
		t.Errorf("dry run = %+v, want 2 clicks", res)
	}
	if n, _ := clicks.Count(ctx, ""); n != 4 {
		t.Fatalf("dry run deleted events: %d left", n)
	}

	res, err = c.RunOnce(ctx, 90*24*time.Hour, false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Clicks != 2 {
		t.Errorf("deleted = %d, want 2", res.Clicks)
	}
	if n, _ := clicks.Count(ctx, ""); n != 2 {
		t.Errorf("remaining = %d, want 2", n)
	}
	if got := testutil.ToFloat64(m.ClickEventsPurged); got != 2 {
		t.Errorf("purged metric = %f, want 2", got)
	}
}

func TestCleaner_KeepsAggregateCounters(t *testing.T) {
	database := setupTestDB(t)
	seedClicks(t, database, 200*24*time.Hour)
	ctx := context.Background()

	c := NewCleaner(repository.NewClickRepository(database), nil, Config{}, testLogger())
	if _, err := c.RunOnce(ctx, 90*24*time.Hour, false); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	groups, err := repository.NewGroupRepository(database).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(groups) != 1 || groups[0].ClickCount != 1 {
		t.Errorf("group click count changed: %+v", groups)
	}
}

type failingStore struct{}

func (failingStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func (failingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestCleaner_RunOnceError(t *testing.T) {
	c := NewCleaner(failingStore{}, nil, Config{}, testLogger())
	if _, err := c.RunOnce(context.Background(), time.Hour, false); err == nil {
		t.Error("expected error")
	}
}

type countingStore struct {
	calls chan time.Time
}

func (s *countingStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *countingStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	select {
	case s.calls <- cutoff:
	default:
	}
	return 0, nil
}

func TestCleaner_StartStop(t *testing.T) {
	store := &countingStore{calls: make(chan time.Time, 1)}
	c := NewCleaner(store, nil, Config{MaxAge: time.Hour, Interval: time.Hour}, testLogger())

	c.Start(context.Background())

	select {
	case cutoff := <-store.calls:
		if time.Since(cutoff) < time.Hour {
			t.Errorf("cutoff %v is newer than max age", cutoff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run on start")
	}

	c.Stop()
	c.Stop()
}
