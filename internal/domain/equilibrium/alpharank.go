package equilibrium

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/poprank/internal/domain/game"
)

// Default AlphaRank configuration constants.
const (
	defaultAlpha          = 10.0
	defaultPopulationSize = 50
	defaultMutationMass   = 0.0
	defaultPowerIter      = 100_000
	defaultPowerTolerance = 1e-10
)

// AlphaRankOption applies a configuration option to the AlphaRanker.
type AlphaRankOption func(*AlphaRanker)

// WithAlpha sets the selection-pressure parameter; larger values push the
// chain toward the support of Nash-like equilibria.
func WithAlpha(alpha float64) AlphaRankOption {
	return func(s *AlphaRanker) {
		if alpha > 0 {
			s.alpha = alpha
		}
	}
}

// WithPopulationSize sets the finite-population granularity of the
// fixation probabilities.
func WithPopulationSize(m int) AlphaRankOption {
	return func(s *AlphaRanker) {
		if m > 1 {
			s.populationSize = m
		}
	}
}

// WithMutationMass mixes uniform mutation into every transition, forcing
// ergodicity on otherwise reducible chains. Zero keeps the pure chain.
func WithMutationMass(eps float64) AlphaRankOption {
	return func(s *AlphaRanker) {
		if eps >= 0 && eps < 1 {
			s.mutation = eps
		}
	}
}

// WithPowerIterations caps the stationary-distribution power iteration.
func WithPowerIterations(n int) AlphaRankOption {
	return func(s *AlphaRanker) {
		if n > 0 {
			s.maxIter = n
		}
	}
}

// WithPowerTolerance sets the L1 change ending the power iteration.
func WithPowerTolerance(tol float64) AlphaRankOption {
	return func(s *AlphaRanker) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// AlphaRanker ranks strategies by the stationary distribution of a
// single-population evolutionary Markov chain: a resident strategy is
// invaded by one mutant at a time, and the mutant fixates with the
// Fermi-selection probability of its payoff advantage. The stationary mass
// of each strategy is its ranking weight.
type AlphaRanker struct {
	alpha          float64
	populationSize int
	mutation       float64
	maxIter        int
	tolerance      float64
}

// NewAlphaRanker constructs a solver with default configuration.
func NewAlphaRanker(opts ...AlphaRankOption) *AlphaRanker {
	s := &AlphaRanker{
		alpha:          defaultAlpha,
		populationSize: defaultPopulationSize,
		mutation:       defaultMutationMass,
		maxIter:        defaultPowerIter,
		tolerance:      defaultPowerTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Method implements Solver.
func (s *AlphaRanker) Method() Method { return AlphaRank }

// fixation is the probability that a single mutant with payoff advantage
// delta takes over a resident population of size m under Fermi selection
// with intensity alpha.
func (s *AlphaRanker) fixation(delta float64) float64 {
	m := float64(s.populationSize)
	if math.Abs(delta) < 1e-15 {
		return 1 / m
	}
	num := 1 - math.Exp(-s.alpha*delta)
	den := 1 - math.Exp(-s.alpha*m*delta)
	return num / den
}

// transitionMatrix builds the row-stochastic chain over pure strategies.
func (s *AlphaRanker) transitionMatrix(g *game.EmpiricalGame) (*mat.Dense, error) {
	n := g.Len()
	t := mat.NewDense(n, n, nil)
	mutationRate := 1 / float64(n-1)
	for i := 0; i < n; i++ {
		var out float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			pji, err := g.Payoff(j, i)
			if err != nil {
				return nil, err
			}
			pij, err := g.Payoff(i, j)
			if err != nil {
				return nil, err
			}
			p := mutationRate * s.fixation(pji-pij)
			if s.mutation > 0 {
				p = (1-s.mutation)*p + s.mutation/float64(n-1)
			}
			t.Set(i, j, p)
			out += p
		}
		t.Set(i, i, 1-out)
	}
	return t, nil
}

// irreducible checks mutual reachability over the chain's positive
// transitions.
func irreducible(t *mat.Dense) bool {
	n, _ := t.Dims()
	reach := func(from int) []bool {
		seen := make([]bool, n)
		stack := []int{from}
		seen[from] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for w := 0; w < n; w++ {
				if w != v && !seen[w] && t.At(v, w) > 0 {
					seen[w] = true
					stack = append(stack, w)
				}
			}
		}
		return seen
	}
	from0 := reach(0)
	for i := 0; i < n; i++ {
		if !from0[i] {
			return false
		}
		if !reach(i)[0] {
			return false
		}
	}
	return true
}

// stationary runs power iteration x <- x T until the L1 change falls under
// tolerance, returning the fixed point and the iterations spent.
func (s *AlphaRanker) stationary(ctx context.Context, t *mat.Dense) ([]float64, int, error) {
	n, _ := t.Dims()
	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / float64(n)
	}
	next := mat.NewVecDense(n, nil)
	for iter := 0; iter < s.maxIter; iter++ {
		if iter%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, iter, err
			}
		}
		next.MulVec(t.T(), mat.NewVecDense(n, x))
		nx := next.RawVector().Data
		floats.Scale(1/floats.Sum(nx), nx)

		var change float64
		for i := range x {
			change += math.Abs(nx[i] - x[i])
		}
		copy(x, nx)
		if change < s.tolerance {
			return x, iter + 1, nil
		}
	}
	return nil, s.maxIter, fmt.Errorf("alpharank power iteration: %w after %d iterations", ErrNonConvergence, s.maxIter)
}

// Solve implements Solver.
func (s *AlphaRanker) Solve(ctx context.Context, g *game.EmpiricalGame) (Distribution, error) {
	n := g.Len()
	if n == 1 {
		return Distribution{Agents: g.Agents(), Weights: []float64{1}}, nil
	}

	t, err := s.transitionMatrix(g)
	if err != nil {
		return Distribution{}, fmt.Errorf("alpharank: %w", err)
	}

	if !irreducible(t) {
		return Distribution{}, fmt.Errorf("%w: reducible under alpha=%g, mutation=%g",
			ErrDegenerateChain, s.alpha, s.mutation)
	}

	x, iterations, err := s.stationary(ctx, t)
	if err != nil {
		return Distribution{}, err
	}
	return Distribution{Agents: g.Agents(), Weights: x, Iterations: iterations}, nil
}
