package battle

import (
	"fmt"
	"sort"
	"sync"
)

// Rand is the randomness a judge may draw on. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Side identifies who took a stat comparison.
type Side string

// Sides.
const (
	SideChallenger Side = "challenger"
	SideOpponent   Side = "opponent"
	SideTie        Side = "tie"
)

// Reasons a judge reports for its decision.
const (
	ReasonStats = "stats"
	ReasonTotal = "total"
	ReasonSpeed = "speed"
	ReasonCoin  = "coin"
	ReasonScore = "score"
)

// Outcome is a judge's decision.
type Outcome struct {
	Mode            string          `json:"mode"`
	ChallengerWins  bool            `json:"challengerWins"`
	ChallengerScore float64         `json:"challengerScore"`
	OpponentScore   float64         `json:"opponentScore"`
	StatWins        map[string]Side `json:"statWins,omitempty"`
	Reason          string          `json:"reason"`
}

// Judge decides a battle between a challenger and an opponent.
// Adding a battle mode only requires implementing Judge and registering it.
type Judge interface {
	// Mode returns the registry key (e.g. "bot", "player").
	Mode() string
	Description() string
	Decide(challenger, opponent *Combatant, rng Rand) Outcome
}

// Registry holds judges by mode. It is safe for concurrent use.
type Registry struct {
	judges map[string]Judge
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{judges: make(map[string]Judge)}
}

// DefaultRegistry returns a registry holding the built-in judges.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(MajorityJudge{})
	_ = r.Register(WeightedJudge{})
	return r
}

// Register adds a judge, replacing any judge with the same mode.
func (r *Registry) Register(j Judge) error {
	if j == nil {
		return fmt.Errorf("cannot register nil judge")
	}
	if j.Mode() == "" {
		return fmt.Errorf("judge mode cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.judges[j.Mode()] = j
	return nil
}

// Get retrieves a judge by mode.
func (r *Registry) Get(mode string) (Judge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.judges[mode]
	return j, ok
}

// Modes returns the registered modes in sorted order.
func (r *Registry) Modes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes := make([]string, 0, len(r.judges))
	for m := range r.judges {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}

// Count returns the number of registered judges.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.judges)
}
