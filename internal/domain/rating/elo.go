package rating

import (
	"context"
	"math"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default Elo configuration constants.
const (
	defaultEloInitial = 1500.0
	defaultEloK       = 20.0
	defaultEloBase    = 10.0
	defaultEloSpread  = 400.0
)

// EloState is the closed-form Elo rating scalar.
type EloState struct {
	Rating float64 `json:"rating"`
}

// Method implements State.
func (EloState) Method() types.Method { return types.MethodElo }

// Score implements rating.State.
func (s EloState) Score() float64 { return s.Rating }

// EloOption applies a configuration option to the Elo rater.
type EloOption func(*Elo)

// WithEloK sets the maximum adjustment per game.
func WithEloK(k float64) EloOption {
	return func(e *Elo) {
		if k > 0 {
			e.k = k
		}
	}
}

// WithEloInitial sets the rating assigned to unrated agents.
func WithEloInitial(r float64) EloOption {
	return func(e *Elo) { e.initial = r }
}

// Elo implements the classical closed-form Elo update. All games in a
// period are evaluated against the shared prior ratings and the summed
// score surplus is applied once, so the update is order-independent.
type Elo struct {
	k       float64
	initial float64
	base    float64
	spread  float64
}

// NewElo constructs an Elo rater with default configuration.
func NewElo(opts ...EloOption) *Elo {
	e := &Elo{
		k:       defaultEloK,
		initial: defaultEloInitial,
		base:    defaultEloBase,
		spread:  defaultEloSpread,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Method implements Rater.
func (e *Elo) Method() types.Method { return types.MethodElo }

func (e *Elo) expected(a, b float64) float64 {
	return 1 / (1 + math.Pow(e.base, (b-a)/e.spread))
}

// Update implements Rater.
func (e *Elo) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	_ = ctx

	ratings := make(map[types.AgentID]EloState)
	for id := range participants(prior, period) {
		st, err := stateAs(prior[id], EloState{Rating: e.initial})
		if err != nil {
			return nil, err
		}
		ratings[id] = st
	}

	expected := make(map[types.AgentID]float64, len(ratings))
	actual := make(map[types.AgentID]float64, len(ratings))
	for _, o := range period.PairwiseOutcomes() {
		a, b := o.Participants[0], o.Participants[1]
		ra, rb := ratings[a.AgentID].Rating, ratings[b.AgentID].Rating
		expected[a.AgentID] += e.expected(ra, rb)
		expected[b.AgentID] += e.expected(rb, ra)
		actual[a.AgentID] += a.Score
		actual[b.AgentID] += b.Score
	}

	next := make(map[types.AgentID]State, len(ratings))
	for id, st := range ratings {
		next[id] = EloState{Rating: st.Rating + e.k*(actual[id]-expected[id])}
	}
	return next, nil
}
