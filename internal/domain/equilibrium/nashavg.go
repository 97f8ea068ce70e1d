package equilibrium

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/poprank/internal/domain/game"
)

// Default Nash-averaging configuration constants.
const (
	defaultNashIterations = 100_000
	defaultNashTolerance  = 1e-3
	defaultNashRate       = 0.1
	defaultNashSupportTol = 1e-3
	defaultNashRestarts   = 8
	defaultNashSeed       = 42
)

// NashOption applies a configuration option to the NashAverager.
type NashOption func(*NashAverager)

// WithNashIterations caps the multiplicative-weights iterations per restart.
func WithNashIterations(n int) NashOption {
	return func(s *NashAverager) {
		if n > 0 {
			s.maxIter = n
		}
	}
}

// WithNashTolerance sets the exploitability gap that counts as converged.
func WithNashTolerance(tol float64) NashOption {
	return func(s *NashAverager) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithNashRate sets the multiplicative-weights learning rate.
func WithNashRate(eta float64) NashOption {
	return func(s *NashAverager) {
		if eta > 0 {
			s.rate = eta
		}
	}
}

// WithNashRestarts sets the number of random restarts used to search for
// disconnected equilibria.
func WithNashRestarts(n int) NashOption {
	return func(s *NashAverager) {
		if n > 0 {
			s.restarts = n
		}
	}
}

// WithNashSupportTolerance sets the weight under which a strategy is
// treated as outside the equilibrium support.
func WithNashSupportTolerance(tol float64) NashOption {
	return func(s *NashAverager) {
		if tol > 0 {
			s.supportTol = tol
		}
	}
}

// WithNashSeed fixes the restart sampling seed for reproducibility.
func WithNashSeed(seed int64) NashOption {
	return func(s *NashAverager) { s.seed = seed }
}

// NashAverager computes the maximum-entropy symmetric Nash equilibrium of
// the zero-sum meta-game induced by the payoff matrix. The solver runs
// averaged multiplicative-weights dynamics from a uniform start plus
// random restarts; dominated strategies decay out of the average, ties
// among surviving candidates are broken by maximum entropy, and restarts
// that settle on different supports surface ErrAmbiguousEquilibrium
// instead of an arbitrary pick.
type NashAverager struct {
	maxIter    int
	tolerance  float64
	rate       float64
	supportTol float64
	restarts   int
	seed       int64
}

// NewNashAverager constructs a solver with default configuration.
func NewNashAverager(opts ...NashOption) *NashAverager {
	s := &NashAverager{
		maxIter:    defaultNashIterations,
		tolerance:  defaultNashTolerance,
		rate:       defaultNashRate,
		supportTol: defaultNashSupportTol,
		restarts:   defaultNashRestarts,
		seed:       defaultNashSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Method implements Solver.
func (s *NashAverager) Method() Method { return NashAveraging }

// exploitability is the best response gain against x in the symmetric
// zero-sum game A; zero at a Nash equilibrium.
func exploitability(a *mat.Dense, x []float64) float64 {
	n := len(x)
	y := mat.NewVecDense(n, nil)
	y.MulVec(a, mat.NewVecDense(n, x))
	value := floats.Dot(x, y.RawVector().Data)
	best := y.RawVector().Data[0]
	for _, v := range y.RawVector().Data[1:] {
		best = math.Max(best, v)
	}
	return best - value
}

// run performs averaged multiplicative-weights dynamics from the start
// point, returning the pruned average iterate and the iterations spent.
func (s *NashAverager) run(ctx context.Context, a *mat.Dense, start []float64) ([]float64, int, error) {
	n := len(start)
	x := make([]float64, n)
	copy(x, start)
	avg := make([]float64, n)
	y := mat.NewVecDense(n, nil)

	for iter := 1; iter <= s.maxIter; iter++ {
		if iter%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, iter, err
			}
		}

		y.MulVec(a, mat.NewVecDense(n, x))
		for i := range x {
			x[i] *= math.Exp(s.rate * y.RawVector().Data[i])
		}
		floats.Scale(1/floats.Sum(x), x)

		// Running uniform average of iterates; the average, not the
		// oscillating iterate, converges to equilibrium.
		floats.AddScaled(avg, 1, x)

		if iter%256 == 0 || iter == s.maxIter {
			candidate := make([]float64, n)
			copy(candidate, avg)
			floats.Scale(1/float64(iter), candidate)
			if exploitability(a, candidate) <= s.tolerance {
				return s.prune(candidate), iter, nil
			}
		}
	}
	return nil, s.maxIter, fmt.Errorf("nash averaging: %w after %d iterations", ErrNonConvergence, s.maxIter)
}

// prune zeroes weights below the support tolerance and renormalizes. A
// tolerance above every weight would empty the support, so the heaviest
// strategy is kept in that case rather than dividing by a zero mass.
func (s *NashAverager) prune(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v >= s.supportTol {
			out[i] = v
		}
	}
	if floats.Sum(out) == 0 {
		out[floats.MaxIdx(x)] = 1
		return out
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func support(x []float64) string {
	mask := make([]byte, len(x))
	for i, v := range x {
		if v > 0 {
			mask[i] = '1'
		} else {
			mask[i] = '0'
		}
	}
	return string(mask)
}

// Solve implements Solver.
func (s *NashAverager) Solve(ctx context.Context, g *game.EmpiricalGame) (Distribution, error) {
	if !g.FullyObserved() {
		return Distribution{}, fmt.Errorf("nash averaging: %w", game.ErrUnobservedPayoff)
	}
	n := g.Len()
	if n == 1 {
		return Distribution{Agents: g.Agents(), Weights: []float64{1}}, nil
	}

	a := g.Advantage()
	rng := rand.New(rand.NewSource(s.seed))

	starts := make([][]float64, 0, s.restarts)
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1 / float64(n)
	}
	starts = append(starts, uniform)
	for len(starts) < s.restarts {
		x := make([]float64, n)
		for i := range x {
			x[i] = rng.ExpFloat64()
		}
		floats.Scale(1/floats.Sum(x), x)
		starts = append(starts, x)
	}

	var (
		candidates [][]float64
		iterations int
	)
	for _, start := range starts {
		c, iters, err := s.run(ctx, a, start)
		iterations += iters
		if err != nil {
			return Distribution{}, err
		}
		candidates = append(candidates, c)
	}

	// All restarts must settle on the same support; disconnected supports
	// mean the equilibrium choice is underdetermined.
	first := support(candidates[0])
	for _, c := range candidates[1:] {
		if support(c) != first {
			return Distribution{}, fmt.Errorf("%w: supports %s and %s", ErrAmbiguousEquilibrium, first, support(c))
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if stat.Entropy(c) > stat.Entropy(best) {
			best = c
		}
	}
	return Distribution{Agents: g.Agents(), Weights: best, Iterations: iterations}, nil
}
