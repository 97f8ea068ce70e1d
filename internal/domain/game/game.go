// Package game builds empirical payoff matrices from observed outcomes.
package game

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInconsistentGame reports payoff data violating a declared
	// structural invariant.
	ErrInconsistentGame = errors.New("inconsistent empirical game")

	// ErrUnobservedPayoff reports access to a strategy pair with no
	// recorded games.
	ErrUnobservedPayoff = errors.New("unobserved strategy pair")
)

// defaultSymmetryTolerance bounds the allowed drift of P[i][j]+P[j][i]
// from 1 in a declared zero-sum game.
const defaultSymmetryTolerance = 1e-9

// EmpiricalGame is a payoff matrix over strategies estimated from observed
// outcomes. Entries for pairs with no observations are flagged, never
// silently 0.5.
type EmpiricalGame struct {
	agents []types.AgentID
	index  map[types.AgentID]int
	payoff *mat.Dense // mean score of row strategy against column strategy
	games  *mat.Dense // observation counts per ordered pair
}

// Builder aggregates outcomes into an EmpiricalGame.
type Builder struct {
	zeroSum   bool
	tolerance float64
}

// BuilderOption applies a configuration option to the Builder.
type BuilderOption func(*Builder)

// WithZeroSum declares the game zero-sum, enabling the skew-symmetry check.
func WithZeroSum() BuilderOption {
	return func(b *Builder) { b.zeroSum = true }
}

// WithSymmetryTolerance sets the numeric tolerance of the zero-sum check.
func WithSymmetryTolerance(tol float64) BuilderOption {
	return func(b *Builder) {
		if tol > 0 {
			b.tolerance = tol
		}
	}
}

// NewBuilder constructs a Builder with default configuration.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{tolerance: defaultSymmetryTolerance}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build aggregates all outcomes between each ordered strategy pair into an
// empirical win rate. Multi-agent outcomes are decomposed pairwise.
func (b *Builder) Build(outcomes []model.Outcome) (*EmpiricalGame, error) {
	var pairwise []model.Outcome
	for i, o := range outcomes {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("outcome %d: %w", i, err)
		}
		pairwise = append(pairwise, o.PairwiseDecomposition()...)
	}

	set := make(map[types.AgentID]struct{})
	for _, o := range pairwise {
		for _, p := range o.Participants {
			set[p.AgentID] = struct{}{}
		}
	}
	agents := make([]types.AgentID, 0, len(set))
	for id := range set {
		agents = append(agents, id)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })

	g := newGame(agents)
	for _, o := range pairwise {
		i := g.index[o.Participants[0].AgentID]
		j := g.index[o.Participants[1].AgentID]
		g.payoff.Set(i, j, g.payoff.At(i, j)+o.Participants[0].Score)
		g.payoff.Set(j, i, g.payoff.At(j, i)+o.Participants[1].Score)
		g.games.Set(i, j, g.games.At(i, j)+1)
		g.games.Set(j, i, g.games.At(j, i)+1)
	}
	for i := range agents {
		for j := range agents {
			if n := g.games.At(i, j); n > 0 {
				g.payoff.Set(i, j, g.payoff.At(i, j)/n)
			}
		}
	}

	if b.zeroSum {
		if err := g.checkSkewSymmetry(b.tolerance); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// FromMatrix wraps an externally estimated payoff matrix. A nil observed
// mask marks every entry observed. The zero-sum invariant is checked when
// declared on the builder.
func (b *Builder) FromMatrix(agents []types.AgentID, payoff *mat.Dense, observed *mat.Dense) (*EmpiricalGame, error) {
	r, c := payoff.Dims()
	if r != c || r != len(agents) {
		return nil, fmt.Errorf("%w: payoff is %dx%d for %d agents", ErrInconsistentGame, r, c, len(agents))
	}
	g := newGame(agents)
	g.payoff.Copy(payoff)
	if observed == nil {
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				g.games.Set(i, j, 1)
			}
		}
	} else {
		g.games.Copy(observed)
	}
	if b.zeroSum {
		if err := g.checkSkewSymmetry(b.tolerance); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func newGame(agents []types.AgentID) *EmpiricalGame {
	index := make(map[types.AgentID]int, len(agents))
	for i, id := range agents {
		index[id] = i
	}
	n := len(agents)
	return &EmpiricalGame{
		agents: agents,
		index:  index,
		payoff: mat.NewDense(n, n, nil),
		games:  mat.NewDense(n, n, nil),
	}
}

// checkSkewSymmetry verifies P[i][j] + P[j][i] = 1 for observed pairs of a
// zero-sum pairwise game.
func (g *EmpiricalGame) checkSkewSymmetry(tol float64) error {
	for i := 0; i < len(g.agents); i++ {
		for j := i + 1; j < len(g.agents); j++ {
			if !g.Observed(i, j) || !g.Observed(j, i) {
				if g.Observed(i, j) != g.Observed(j, i) {
					return fmt.Errorf("%w: pair (%s,%s) observed in one direction only",
						ErrInconsistentGame, g.agents[i], g.agents[j])
				}
				continue
			}
			if diff := math.Abs(g.payoff.At(i, j) + g.payoff.At(j, i) - 1); diff > tol {
				return fmt.Errorf("%w: P[%s][%s]+P[%s][%s] deviates from 1 by %g",
					ErrInconsistentGame, g.agents[i], g.agents[j], g.agents[j], g.agents[i], diff)
			}
		}
	}
	return nil
}

// Agents returns the strategy identities in matrix order.
func (g *EmpiricalGame) Agents() []types.AgentID {
	out := make([]types.AgentID, len(g.agents))
	copy(out, g.agents)
	return out
}

// Len returns the number of strategies.
func (g *EmpiricalGame) Len() int { return len(g.agents) }

// Observed reports whether any game between strategies i and j was recorded.
func (g *EmpiricalGame) Observed(i, j int) bool {
	if i == j {
		return true
	}
	return g.games.At(i, j) > 0
}

// FullyObserved reports whether every off-diagonal pair has observations.
func (g *EmpiricalGame) FullyObserved() bool {
	for i := 0; i < len(g.agents); i++ {
		for j := 0; j < len(g.agents); j++ {
			if !g.Observed(i, j) {
				return false
			}
		}
	}
	return true
}

// Payoff returns the empirical mean score of strategy i against j.
// Self-play is the neutral 0.5. It fails with ErrUnobservedPayoff for a
// pair with no recorded games.
func (g *EmpiricalGame) Payoff(i, j int) (float64, error) {
	if i == j {
		return 0.5, nil
	}
	if !g.Observed(i, j) {
		return 0, fmt.Errorf("%w: (%s,%s)", ErrUnobservedPayoff, g.agents[i], g.agents[j])
	}
	return g.payoff.At(i, j), nil
}

// Games returns the number of observations for the ordered pair.
func (g *EmpiricalGame) Games(i, j int) float64 { return g.games.At(i, j) }

// Advantage returns the zero-centered payoff matrix A[i][j] = P[i][j]-0.5
// with unobserved entries imputed to 0 (an even matchup). Callers that must
// not impute should check FullyObserved first.
func (g *EmpiricalGame) Advantage() *mat.Dense {
	n := len(g.agents)
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && g.Observed(i, j) {
				a.Set(i, j, g.payoff.At(i, j)-0.5)
			}
		}
	}
	return a
}

// WinRates returns the payoff matrix with unobserved entries imputed to
// the neutral 0.5.
func (g *EmpiricalGame) WinRates() *mat.Dense {
	n := len(g.agents)
	w := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i == j:
				w.Set(i, j, 0.5)
			case g.Observed(i, j):
				w.Set(i, j, g.payoff.At(i, j))
			default:
				w.Set(i, j, 0.5)
			}
		}
	}
	return w
}
