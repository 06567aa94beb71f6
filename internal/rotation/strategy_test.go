package rotation

import (
	"testing"

	"github.com/foxzi/walink/internal/models"
)

func agents(specs ...string) []models.Agent {
	out := make([]models.Agent, 0, len(specs))
	for _, s := range specs {
		out = append(out, models.Agent{ID: s, Name: s, IsActive: true, Weight: 1})
	}
	return out
}

func TestPickRoundRobin(t *testing.T) {
	members := agents("a", "b", "c")

	tests := []struct {
		name     string
		last     string
		inactive string
		want     int
	}{
		{"no cursor starts at first", "", "", 0},
		{"after first", "a", "", 1},
		{"wraps", "c", "", 0},
		{"unknown cursor", "gone", "", 0},
		{"skips inactive", "a", "b", 2},
		{"last served now inactive", "b", "b", 2},
		{"wrap skips inactive", "c", "a", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := append([]models.Agent(nil), members...)
			for i := range ms {
				if ms[i].ID == tt.inactive {
					ms[i].IsActive = false
				}
			}
			if got := pickRoundRobin(ms, tt.last); got != tt.want {
				t.Errorf("pickRoundRobin(last=%q) = %d, want %d", tt.last, got, tt.want)
			}
		})
	}
}

func TestPickRoundRobinNoActive(t *testing.T) {
	ms := agents("a", "b")
	ms[0].IsActive = false
	ms[1].IsActive = false

	if got := pickRoundRobin(ms, "a"); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
	if got := pickRoundRobin(nil, ""); got != -1 {
		t.Errorf("expected -1 for empty members, got %d", got)
	}
}

func TestPickWeighted(t *testing.T) {
	active := agents("a", "b")
	active[0].ClickCount = 3 // weight 1/4
	active[1].ClickCount = 0 // weight 1

	// total 1.25, a covers [0, 0.25)
	tests := []struct {
		r    float64
		want int
	}{
		{0, 0},
		{0.19, 0},
		{0.2, 1},
		{0.5, 1},
		{0.999999, 1},
	}

	for _, tt := range tests {
		if got := pickWeighted(active, tt.r); got != tt.want {
			t.Errorf("pickWeighted(r=%v) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestPickWeightedFavoursLeastServed(t *testing.T) {
	active := agents("busy", "idle")
	active[0].ClickCount = 99
	active[1].ClickCount = 0

	idle := 0
	for i := 0; i < 100; i++ {
		if pickWeighted(active, float64(i)/100) == 1 {
			idle++
		}
	}
	if idle < 95 {
		t.Errorf("expected idle agent to win most draws, got %d/100", idle)
	}
}

func TestPickWeightedExplicitWeight(t *testing.T) {
	active := agents("a", "b")
	active[0].Weight = 3

	// total 4, a covers [0, 3)
	if got := pickWeighted(active, 0.7); got != 0 {
		t.Errorf("expected heavier agent, got %d", got)
	}
	if got := pickWeighted(active, 0.8); got != 1 {
		t.Errorf("expected lighter agent, got %d", got)
	}
}

func TestAgentWeight(t *testing.T) {
	tests := []struct {
		weight int
		clicks int64
		want   float64
	}{
		{1, 0, 1},
		{1, 1, 0.5},
		{4, 3, 1},
		{0, 0, 1},
		{-2, 1, 0.5},
	}

	for _, tt := range tests {
		got := agentWeight(models.Agent{Weight: tt.weight, ClickCount: tt.clicks})
		if got != tt.want {
			t.Errorf("agentWeight(%d, %d) = %v, want %v", tt.weight, tt.clicks, got, tt.want)
		}
	}
}

func TestPickRandomSeeded(t *testing.T) {
	active := agents("a", "b", "c")

	first := make([]int, 20)
	src := NewSeededSource(42)
	for i := range first {
		first[i] = pickRandom(active, src)
	}

	src = NewSeededSource(42)
	for i := range first {
		if got := pickRandom(active, src); got != first[i] {
			t.Fatalf("draw %d: got %d, want %d", i, got, first[i])
		}
	}

	seen := map[int]bool{}
	for _, idx := range first {
		if idx < 0 || idx >= len(active) {
			t.Fatalf("index out of range: %d", idx)
		}
		seen[idx] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected more than one agent in 20 draws, got %v", seen)
	}

	if got := pickRandom(nil, src); got != -1 {
		t.Errorf("expected -1 for empty set, got %d", got)
	}
}
