package repository

import (
	"context"
	"testing"
	"time"

	"github.com/foxzi/walink/internal/models"
)

func TestClickRepository_RecordCountsClicks(t *testing.T) {
	database := setupTestDB(t)
	agents := NewAgentRepository(database)
	groups := NewGroupRepository(database)
	clicks := NewClickRepository(database)
	ctx := context.Background()

	a := createAgent(t, agents, "Alice", "62811111111")
	g := createGroup(t, groups, "Sales", a.ID)

	e := &models.ClickEvent{GroupID: g.ID, AgentID: a.ID, Strategy: models.StrategyRoundRobin, IP: "10.0.0.1"}
	if err := clicks.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == 0 {
		t.Error("Record() did not set the event ID")
	}
	if e.ClickedAt.IsZero() {
		t.Error("Record() did not set ClickedAt")
	}

	gotAgent, _ := agents.Get(ctx, a.ID)
	gotGroup, _ := groups.Get(ctx, g.ID)
	if gotAgent.ClickCount != 1 || gotGroup.ClickCount != 1 {
		t.Errorf("click counts = agent %d, group %d, want 1, 1", gotAgent.ClickCount, gotGroup.ClickCount)
	}

	n, err := clicks.Count(ctx, g.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestClickRepository_RecordUnknownGroupRollsBack(t *testing.T) {
	database := setupTestDB(t)
	agents := NewAgentRepository(database)
	clicks := NewClickRepository(database)
	ctx := context.Background()

	a := createAgent(t, agents, "Alice", "62811111111")
	if err := clicks.Record(ctx, &models.ClickEvent{GroupID: "missing", AgentID: a.ID, Strategy: models.StrategyRandom}); err == nil {
		t.Fatal("Record() expected error for unknown group")
	}

	got, _ := agents.Get(ctx, a.ID)
	if got.ClickCount != 0 {
		t.Errorf("agent click count = %d, want 0 after rollback", got.ClickCount)
	}
	if n, _ := clicks.Count(ctx, ""); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestClickRepository_GroupAnalytics(t *testing.T) {
	database := setupTestDB(t)
	agents := NewAgentRepository(database)
	groups := NewGroupRepository(database)
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	clicks := NewClickRepository(database).WithClock(func() time.Time { return now })
	ctx := context.Background()

	alice := createAgent(t, agents, "Alice", "62811111111")
	bob := createAgent(t, agents, "Bob", "62822222222")
	sales := createGroup(t, groups, "Sales", alice.ID, bob.ID)
	support := createGroup(t, groups, "Support", alice.ID)
	createGroup(t, groups, "Idle")

	events := []struct {
		group, agent string
		at           time.Time
	}{
		{sales.ID, alice.ID, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		{sales.ID, bob.ID, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{support.ID, alice.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{support.ID, alice.ID, time.Date(2026, 3, 3, 23, 59, 59, 0, time.UTC)}, // before the window
		{sales.ID, bob.ID, time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)},      // after now
	}
	for _, e := range events {
		if err := clicks.Record(ctx, &models.ClickEvent{GroupID: e.group, AgentID: e.agent, Strategy: models.StrategyRoundRobin, ClickedAt: e.at}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	data, err := clicks.GroupAnalytics(ctx, models.AnalyticsQuery{Days: 7, GroupID: "all"})
	if err != nil {
		t.Fatalf("GroupAnalytics() error = %v", err)
	}

	if data.TotalClicks != 3 {
		t.Errorf("TotalClicks = %d, want 3", data.TotalClicks)
	}
	if len(data.HourlyData) != 24 || len(data.DailyData) != 7 {
		t.Fatalf("rows = %d hourly, %d daily, want 24, 7", len(data.HourlyData), len(data.DailyData))
	}

	var hourly, daily int64
	for _, h := range data.HourlyData {
		hourly += h.Clicks
	}
	for _, d := range data.DailyData {
		daily += d.Clicks
	}
	if hourly != data.TotalClicks || daily != data.TotalClicks {
		t.Errorf("sum hourly = %d, daily = %d, want %d", hourly, daily, data.TotalClicks)
	}

	if data.DailyData[0].Date != "2026-03-04" || data.DailyData[0].Clicks != 1 {
		t.Errorf("DailyData[0] = %+v, want 2026-03-04: 1", data.DailyData[0])
	}
	if data.DailyData[6].Date != "2026-03-10" || data.DailyData[6].Clicks != 2 {
		t.Errorf("DailyData[6] = %+v, want 2026-03-10: 2", data.DailyData[6])
	}
	if data.HourlyData[9].Clicks != 1 || data.HourlyData[15].Clicks != 1 || data.HourlyData[0].Clicks != 1 {
		t.Errorf("HourlyData = %+v", data.HourlyData)
	}

	if len(data.AgentDistribution) != 2 || data.AgentDistribution[0].Name != "Alice" || data.AgentDistribution[0].Clicks != 2 {
		t.Errorf("AgentDistribution = %+v, want Alice: 2 first", data.AgentDistribution)
	}
	if len(data.GroupDistribution) != 2 || data.GroupDistribution[0].Name != "Sales" {
		t.Errorf("GroupDistribution = %+v, want Sales first", data.GroupDistribution)
	}
	if len(data.Groups) != 3 {
		t.Fatalf("Groups = %d, want 3", len(data.Groups))
	}
	for _, g := range data.Groups {
		if g.Name == "Idle" && g.TotalClicks != 0 {
			t.Errorf("Idle TotalClicks = %d, want 0", g.TotalClicks)
		}
		if g.Name == "Sales" && (g.TotalClicks != 2 || g.AgentCount != 2) {
			t.Errorf("Sales summary = %+v", g)
		}
	}

	filtered, err := clicks.GroupAnalytics(ctx, models.AnalyticsQuery{Days: 7, GroupID: support.ID})
	if err != nil {
		t.Fatalf("GroupAnalytics(filtered) error = %v", err)
	}
	if filtered.TotalClicks != 1 || len(filtered.Groups) != 1 || filtered.Groups[0].ID != support.ID {
		t.Errorf("filtered = total %d, groups %+v", filtered.TotalClicks, filtered.Groups)
	}
}

func TestClickRepository_DeleteOlderThan(t *testing.T) {
	database := setupTestDB(t)
	agents := NewAgentRepository(database)
	groups := NewGroupRepository(database)
	clicks := NewClickRepository(database)
	ctx := context.Background()

	a := createAgent(t, agents, "Alice", "62811111111")
	g := createGroup(t, groups, "Sales", a.ID)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{cutoff.Add(-48 * time.Hour), cutoff.Add(-time.Second), cutoff, cutoff.Add(time.Hour)} {
		if err := clicks.Record(ctx, &models.ClickEvent{GroupID: g.ID, AgentID: a.ID, Strategy: models.StrategyRandom, ClickedAt: at}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	old, err := clicks.CountOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("CountOlderThan() error = %v", err)
	}
	if old != 2 {
		t.Errorf("CountOlderThan() = %d, want 2", old)
	}

	deleted, err := clicks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteOlderThan() = %d, want 2", deleted)
	}
	if n, _ := clicks.Count(ctx, ""); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	got, _ := agents.Get(ctx, a.ID)
	if got.ClickCount != 4 {
		t.Errorf("agent click count = %d, want 4 after cleanup", got.ClickCount)
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 7}, {-3, 7}, {1, 1}, {30, 30}, {365, 365}, {1000, 365},
	}
	for _, tt := range tests {
		if got := ClampDays(tt.in); got != tt.want {
			t.Errorf("ClampDays(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
