package rotation

import (
	"math/rand/v2"
	"sync"

	"github.com/foxzi/walink/internal/models"
)

// Source yields uniform floats in [0, 1) and ints in [0, n)
type Source interface {
	Float64() float64
	IntN(n int) int
}

// lockedSource guards a *rand.Rand, which is not safe for concurrent use
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource wraps r for concurrent use
func NewSource(r *rand.Rand) Source {
	return &lockedSource{r: r}
}

// NewSeededSource returns a deterministic source, for tests and replays
func NewSeededSource(seed uint64) Source {
	return NewSource(rand.New(rand.NewPCG(seed, seed)))
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// pickRoundRobin returns the index of the first active member after the last
// served agent, wrapping at the end. An unknown last agent scans from 0.
// Returns -1 when no member is active.
func pickRoundRobin(members []models.Agent, lastAgentID string) int {
	n := len(members)
	if n == 0 {
		return -1
	}

	start := 0
	for i, m := range members {
		if m.ID == lastAgentID {
			start = i + 1
			break
		}
	}

	for k := 0; k < n; k++ {
		i := (start + k) % n
		if members[i].IsActive {
			return i
		}
	}
	return -1
}

// pickRandom returns a uniformly chosen index into active
func pickRandom(active []models.Agent, src Source) int {
	if len(active) == 0 {
		return -1
	}
	return src.IntN(len(active))
}

// agentWeight favours agents with fewer clicks, scaled by their weight
func agentWeight(a models.Agent) float64 {
	w := a.Weight
	if w <= 0 {
		w = 1
	}
	clicks := a.ClickCount
	if clicks < 0 {
		clicks = 0
	}
	return float64(w) / float64(1+clicks)
}

// pickWeighted chooses an index from active by cumulative weight against
// r*total, with r in [0, 1).
func pickWeighted(active []models.Agent, r float64) int {
	if len(active) == 0 {
		return -1
	}

	total := 0.0
	for _, a := range active {
		total += agentWeight(a)
	}

	target := r * total
	cum := 0.0
	for i, a := range active {
		cum += agentWeight(a)
		if target < cum {
			return i
		}
	}
	// Float rounding at r close to 1
	return len(active) - 1
}

func activeMembers(members []models.Agent) []models.Agent {
	active := make([]models.Agent, 0, len(members))
	for _, m := range members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}
