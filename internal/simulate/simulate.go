// Package simulate generates synthetic tournaments with known latent
// skills, used by tests and the demo binary to exercise the engine
// end to end.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default tournament configuration constants.
const (
	defaultAgents       = 8
	defaultRounds       = 10
	defaultSkillSpread  = 400.0
	defaultLogisticBase = 10.0
	defaultSeed         = 42
)

// Option applies a configuration option to the Tournament.
type Option func(*Tournament)

// WithAgents sets the number of simulated agents.
func WithAgents(n int) Option {
	return func(t *Tournament) {
		if n >= 2 {
			t.agents = n
		}
	}
}

// WithRounds sets the number of round-robin rounds to play.
func WithRounds(n int) Option {
	return func(t *Tournament) {
		if n > 0 {
			t.rounds = n
		}
	}
}

// WithSkillSpread sets the latent skill gap between the strongest and
// weakest agents, on the Elo scale.
func WithSkillSpread(spread float64) Option {
	return func(t *Tournament) {
		if spread > 0 {
			t.spread = spread
		}
	}
}

// WithSeed fixes the outcome sampling seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(t *Tournament) { t.seed = seed }
}

// Tournament samples round-robin outcomes from agents with fixed latent
// skills: the win probability of a against b follows the logistic model on
// their skill gap.
type Tournament struct {
	agents int
	rounds int
	spread float64
	seed   int64
}

// New constructs a tournament generator with default configuration.
func New(opts ...Option) *Tournament {
	t := &Tournament{
		agents: defaultAgents,
		rounds: defaultRounds,
		spread: defaultSkillSpread,
		seed:   defaultSeed,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Agents returns the simulated agent ids, strongest first.
func (t *Tournament) Agents() []types.AgentID {
	out := make([]types.AgentID, t.agents)
	for i := range out {
		out[i] = types.AgentID(fmt.Sprintf("agent-%02d", i))
	}
	return out
}

// Skills returns the latent skill of every agent on the Elo scale,
// evenly spaced across the configured spread.
func (t *Tournament) Skills() map[types.AgentID]float64 {
	agents := t.Agents()
	out := make(map[types.AgentID]float64, len(agents))
	for i, id := range agents {
		out[id] = t.spread / 2 * (1 - 2*float64(i)/float64(len(agents)-1))
	}
	return out
}

// winProbability is the logistic win chance of skill a over skill b.
func winProbability(a, b float64) float64 {
	return 1 / (1 + math.Pow(defaultLogisticBase, (b-a)/defaultSkillSpread))
}

// Play samples the full round-robin schedule and returns the outcomes in
// play order, ids drawn fresh per outcome.
func (t *Tournament) Play() ([]model.Outcome, error) {
	rng := rand.New(rand.NewSource(t.seed))
	skills := t.Skills()
	agents := t.Agents()
	start := time.Now()

	var outcomes []model.Outcome
	for round := 0; round < t.rounds; round++ {
		for i := 0; i < len(agents); i++ {
			for j := i + 1; j < len(agents); j++ {
				score := 0.0
				if rng.Float64() < winProbability(skills[agents[i]], skills[agents[j]]) {
					score = 1
				}
				o, err := model.NewOutcome(uuid.NewString(), []model.Participant{
					{AgentID: agents[i], Score: score},
					{AgentID: agents[j], Score: 1 - score},
				}, start.Add(time.Duration(round)*time.Minute))
				if err != nil {
					return nil, err
				}
				outcomes = append(outcomes, o)
			}
		}
	}
	return outcomes, nil
}

// Cycle returns the classic three-strategy cyclic tournament: each agent
// always beats the next one around the ring, n times per edge.
func Cycle(n int) []model.Outcome {
	agents := []types.AgentID{"rock", "paper", "scissors"}
	ts := time.Now()
	var outcomes []model.Outcome
	for i := range agents {
		winner, loser := agents[(i+1)%3], agents[i]
		for g := 0; g < n; g++ {
			o, _ := model.NewOutcome(uuid.NewString(), []model.Participant{
				{AgentID: winner, Score: 1},
				{AgentID: loser, Score: 0},
			}, ts)
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}
