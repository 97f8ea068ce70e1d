package rating

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default Glicko-2 configuration constants (Glickman's paper values).
const (
	defaultGlicko2Initial    = 1500.0
	defaultGlicko2Deviation  = 350.0
	defaultGlicko2Volatility = 0.06
	defaultGlicko2Tau        = 0.5
	defaultGlicko2Epsilon    = 1e-6
	defaultGlicko2MaxIter    = 100
	defaultVolatilityFloor   = 1e-5

	// glicko2Scale converts between the display scale and the internal
	// mu/phi scale.
	glicko2Scale = 173.7178
)

// Glicko2State is a Glicko-2 rating on the display scale: mean, rating
// deviation and the volatility re-estimated at each period boundary.
type Glicko2State struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`
}

// Method implements State.
func (Glicko2State) Method() types.Method { return types.MethodGlicko2 }

// Score implements rating.State.
func (s Glicko2State) Score() float64 { return s.Rating }

// Glicko2Option applies a configuration option to the Glicko2 rater.
type Glicko2Option func(*Glicko2)

// WithGlicko2Tau sets the system constant constraining volatility change.
func WithGlicko2Tau(tau float64) Glicko2Option {
	return func(g *Glicko2) {
		if tau > 0 {
			g.tau = tau
		}
	}
}

// WithGlicko2Initial sets rating, deviation and volatility for unrated agents.
func WithGlicko2Initial(rating, deviation, volatility float64) Glicko2Option {
	return func(g *Glicko2) {
		g.initial = rating
		if deviation > 0 {
			g.maxDeviation = deviation
		}
		if volatility > 0 {
			g.initialVolatility = volatility
		}
	}
}

// WithGlicko2VolatilityFloor sets the lower clamp keeping volatility from
// collapsing to zero.
func WithGlicko2VolatilityFloor(floor float64) Glicko2Option {
	return func(g *Glicko2) {
		if floor > 0 {
			g.volatilityFloor = floor
		}
	}
}

// WithGlicko2Tolerance sets the convergence threshold of the volatility
// root-find.
func WithGlicko2Tolerance(eps float64) Glicko2Option {
	return func(g *Glicko2) {
		if eps > 0 {
			g.epsilon = eps
		}
	}
}

// WithGlicko2MaxIterations caps the volatility root-find iterations.
func WithGlicko2MaxIterations(n int) Glicko2Option {
	return func(g *Glicko2) {
		if n > 0 {
			g.maxIter = n
		}
	}
}

// Glicko2 implements Glickman's Glicko-2 rating period update, including
// the volatility re-estimation via an Illinois-style root-find.
type Glicko2 struct {
	initial           float64
	maxDeviation      float64
	initialVolatility float64
	volatilityFloor   float64
	tau               float64
	epsilon           float64
	maxIter           int
}

// NewGlicko2 constructs a Glicko-2 rater with default configuration.
func NewGlicko2(opts ...Glicko2Option) *Glicko2 {
	g := &Glicko2{
		initial:           defaultGlicko2Initial,
		maxDeviation:      defaultGlicko2Deviation,
		initialVolatility: defaultGlicko2Volatility,
		volatilityFloor:   defaultVolatilityFloor,
		tau:               defaultGlicko2Tau,
		epsilon:           defaultGlicko2Epsilon,
		maxIter:           defaultGlicko2MaxIter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Method implements Rater.
func (g *Glicko2) Method() types.Method { return types.MethodGlicko2 }

func (g *Glicko2) toInternal(st Glicko2State) (mu, phi float64) {
	return (st.Rating - g.initial) / glicko2Scale, st.Deviation / glicko2Scale
}

func (g *Glicko2) fromInternal(mu, phi, volatility float64) Glicko2State {
	return Glicko2State{
		Rating:     mu*glicko2Scale + g.initial,
		Deviation:  phi * glicko2Scale,
		Volatility: volatility,
	}
}

// impact is g(phi) on the Glicko-2 scale.
func impact(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expectedInternal is E(mu, mu_j, phi_j) under the logistic model.
func expectedInternal(mu, oppMu, oppPhi float64) float64 {
	return 1 / (1 + math.Exp(-impact(oppPhi)*(mu-oppMu)))
}

// solveVolatility runs the Illinois-style root-find of Glickman's step 5,
// returning the new volatility sigma'.
func (g *Glicko2) solveVolatility(phi, v, delta, volatility float64) (float64, error) {
	alpha := math.Log(volatility * volatility)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return num/den - (x-alpha)/(g.tau*g.tau)
	}

	a := alpha
	var b float64
	if delta*delta > phi*phi+v {
		b = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(alpha-k*g.tau) < 0 {
			k++
		}
		b = alpha - k*g.tau
	}

	fa, fb := f(a), f(b)
	for i := 0; math.Abs(b-a) > g.epsilon; i++ {
		if i >= g.maxIter {
			return 0, fmt.Errorf("volatility root-find: %w after %d iterations", ErrNonConvergence, g.maxIter)
		}
		c := a + (a-b)*fa/(fb-fa)
		fc := f(c)
		if fc*fb <= 0 {
			a, fa = b, fb
		} else {
			fa /= 2
		}
		b, fb = c, fc
	}
	return math.Max(math.Exp(a/2), g.volatilityFloor), nil
}

// Update implements Rater.
func (g *Glicko2) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	_ = ctx

	onset := make(map[types.AgentID]Glicko2State)
	for id := range participants(prior, period) {
		st, err := stateAs(prior[id], Glicko2State{
			Rating:     g.initial,
			Deviation:  g.maxDeviation,
			Volatility: g.initialVolatility,
		})
		if err != nil {
			return nil, err
		}
		onset[id] = st
	}

	// Per-agent accumulators on the internal scale, all reading
	// onset-of-period opponent state.
	varianceInv := make(map[types.AgentID]float64, len(onset))
	surplus := make(map[types.AgentID]float64, len(onset))
	for _, o := range period.PairwiseOutcomes() {
		a, b := o.Participants[0], o.Participants[1]
		muA, phiA := g.toInternal(onset[a.AgentID])
		muB, phiB := g.toInternal(onset[b.AgentID])

		ea := expectedInternal(muA, muB, phiB)
		varianceInv[a.AgentID] += impact(phiB) * impact(phiB) * ea * (1 - ea)
		surplus[a.AgentID] += impact(phiB) * (a.Score - ea)

		eb := expectedInternal(muB, muA, phiA)
		varianceInv[b.AgentID] += impact(phiA) * impact(phiA) * eb * (1 - eb)
		surplus[b.AgentID] += impact(phiA) * (b.Score - eb)
	}

	next := make(map[types.AgentID]State, len(onset))
	for id, st := range onset {
		mu, phi := g.toInternal(st)

		if varianceInv[id] == 0 {
			// Idle agent: deviation grows by the current volatility,
			// capped at the unrated deviation.
			phiStar := math.Sqrt(phi*phi + st.Volatility*st.Volatility)
			updated := g.fromInternal(mu, phiStar, st.Volatility)
			updated.Deviation = math.Min(updated.Deviation, g.maxDeviation)
			next[id] = updated
			continue
		}

		v := 1 / varianceInv[id]
		delta := v * surplus[id]

		volatility, err := g.solveVolatility(phi, v, delta, st.Volatility)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", id, err)
		}

		phiStar := math.Sqrt(phi*phi + volatility*volatility)
		phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
		muNew := mu + phiNew*phiNew*surplus[id]

		next[id] = g.fromInternal(muNew, phiNew, volatility)
	}
	return next, nil
}
