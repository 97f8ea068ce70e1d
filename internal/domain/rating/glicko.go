package rating

import (
	"context"
	"math"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default Glicko-1 configuration constants (Glickman's paper values).
const (
	defaultGlickoInitial       = 1500.0
	defaultGlickoDeviation     = 350.0
	defaultGlickoUncertaintyUp = 34.6 // RD growth per idle period
	defaultGlickoDeviationMin  = 30.0
)

// glickoQ is the logistic scale constant q = ln(10)/400.
var glickoQ = math.Ln10 / 400.0

// GlickoState is a Glicko-1 rating: a mean and a rating deviation.
type GlickoState struct {
	Rating    float64 `json:"rating"`
	Deviation float64 `json:"deviation"`
}

// Method implements State.
func (GlickoState) Method() types.Method { return types.MethodGlicko }

// Score implements rating.State.
func (s GlickoState) Score() float64 { return s.Rating }

// GlickoOption applies a configuration option to the Glicko rater.
type GlickoOption func(*Glicko)

// WithGlickoInitial sets rating and deviation for unrated agents.
func WithGlickoInitial(rating, deviation float64) GlickoOption {
	return func(g *Glicko) {
		g.initial = rating
		if deviation > 0 {
			g.maxDeviation = deviation
		}
	}
}

// WithGlickoUncertaintyIncrease sets the per-idle-period RD growth constant.
func WithGlickoUncertaintyIncrease(c float64) GlickoOption {
	return func(g *Glicko) {
		if c > 0 {
			g.uncertaintyUp = c
		}
	}
}

// WithGlickoDeviationFloor sets the lower clamp on rating deviation.
func WithGlickoDeviationFloor(floor float64) GlickoOption {
	return func(g *Glicko) {
		if floor > 0 {
			g.minDeviation = floor
		}
	}
}

// Glicko implements Glickman's original Glicko rating period update. All
// games in a period read the same onset-of-period state, so per-agent
// updates are independent and order-free.
type Glicko struct {
	initial       float64
	maxDeviation  float64
	minDeviation  float64
	uncertaintyUp float64
}

// NewGlicko constructs a Glicko-1 rater with default configuration.
func NewGlicko(opts ...GlickoOption) *Glicko {
	g := &Glicko{
		initial:       defaultGlickoInitial,
		maxDeviation:  defaultGlickoDeviation,
		minDeviation:  defaultGlickoDeviationMin,
		uncertaintyUp: defaultGlickoUncertaintyUp,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Method implements Rater.
func (g *Glicko) Method() types.Method { return types.MethodGlicko }

// reduceImpact is Glickman's g(RD): the factor discounting games against
// opponents with uncertain ratings.
func reduceImpact(deviation, q float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*deviation*deviation/(math.Pi*math.Pi))
}

func (g *Glicko) expected(rating, oppRating, oppDeviation float64) float64 {
	return 1 / (1 + math.Pow(10, -reduceImpact(oppDeviation, glickoQ)*(rating-oppRating)/400))
}

// Update implements Rater.
func (g *Glicko) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	_ = ctx

	// Onset-of-period inflation: every agent's RD grows for the elapsed
	// period, capped at the unrated deviation.
	onset := make(map[types.AgentID]GlickoState)
	for id := range participants(prior, period) {
		st, err := stateAs(prior[id], GlickoState{Rating: g.initial, Deviation: g.maxDeviation})
		if err != nil {
			return nil, err
		}
		st.Deviation = math.Min(
			math.Sqrt(st.Deviation*st.Deviation+g.uncertaintyUp*g.uncertaintyUp),
			g.maxDeviation,
		)
		onset[id] = st
	}

	// Accumulate the score surplus and the estimation variance d² per agent
	// against onset-of-period opponent state.
	surplus := make(map[types.AgentID]float64, len(onset))
	dsqInv := make(map[types.AgentID]float64, len(onset))
	for _, o := range period.PairwiseOutcomes() {
		a, b := o.Participants[0], o.Participants[1]
		sa, sb := onset[a.AgentID], onset[b.AgentID]

		ga := reduceImpact(sb.Deviation, glickoQ)
		ea := g.expected(sa.Rating, sb.Rating, sb.Deviation)
		surplus[a.AgentID] += ga * (a.Score - ea)
		dsqInv[a.AgentID] += ga * ga * ea * (1 - ea)

		gb := reduceImpact(sa.Deviation, glickoQ)
		eb := g.expected(sb.Rating, sa.Rating, sa.Deviation)
		surplus[b.AgentID] += gb * (b.Score - eb)
		dsqInv[b.AgentID] += gb * gb * eb * (1 - eb)
	}

	next := make(map[types.AgentID]State, len(onset))
	for id, st := range onset {
		if dsqInv[id] == 0 {
			// No games this period: only the idle inflation applies.
			next[id] = st
			continue
		}
		denom := 1/(st.Deviation*st.Deviation) + glickoQ*glickoQ*dsqInv[id]
		st.Rating += glickoQ / denom * surplus[id]
		st.Deviation = math.Max(math.Sqrt(1/denom), g.minDeviation)
		next[id] = st
	}
	return next, nil
}
