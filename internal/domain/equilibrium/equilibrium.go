// Package equilibrium computes ranking weights over an empirical game:
// maximum-entropy Nash equilibria (Nash averaging) and evolutionary-chain
// stationary distributions (AlphaRank).
package equilibrium

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/poprank/internal/domain/game"
	"github.com/okian/poprank/internal/domain/types"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNonConvergence reports an iterative solve that exhausted its
	// iteration budget before meeting tolerance.
	ErrNonConvergence = errors.New("equilibrium solve did not converge")

	// ErrAmbiguousEquilibrium reports disconnected equilibria with no
	// principled single choice.
	ErrAmbiguousEquilibrium = errors.New("multiple disconnected equilibria")

	// ErrDegenerateChain reports a reducible evolutionary chain whose
	// stationary distribution is ill-defined.
	ErrDegenerateChain = errors.New("evolutionary chain is not ergodic")
)

// Method names an equilibrium solver variant.
type Method string

// Equilibrium solver variants selectable through configuration.
const (
	NashAveraging Method = "nash_averaging"
	AlphaRank     Method = "alpharank"
)

// Distribution is a probability vector over strategies: weights are
// non-negative and sum to 1. Iterations records the total solver work
// spent producing it.
type Distribution struct {
	Agents     []types.AgentID
	Weights    []float64
	Iterations int
}

// Weight returns the equilibrium mass assigned to the agent, zero when the
// agent is not part of the solved game.
func (d Distribution) Weight(id types.AgentID) float64 {
	for i, a := range d.Agents {
		if a == id {
			return d.Weights[i]
		}
	}
	return 0
}

// Ranking orders the agents by descending equilibrium weight, ties broken
// by agent id for determinism.
func (d Distribution) Ranking() types.Ranking {
	idx := make([]int, len(d.Agents))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if d.Weights[idx[a]] != d.Weights[idx[b]] {
			return d.Weights[idx[a]] > d.Weights[idx[b]]
		}
		return d.Agents[idx[a]] < d.Agents[idx[b]]
	})
	out := make(types.Ranking, len(idx))
	for i, j := range idx {
		out[i] = d.Agents[j]
	}
	return out
}

// Solver computes an equilibrium distribution over an empirical game.
type Solver interface {
	Method() Method
	Solve(ctx context.Context, g *game.EmpiricalGame) (Distribution, error)
}

// Solve runs the named method with its default configuration.
func Solve(ctx context.Context, g *game.EmpiricalGame, method Method) (Distribution, error) {
	switch method {
	case NashAveraging:
		return NewNashAverager().Solve(ctx, g)
	case AlphaRank:
		return NewAlphaRanker().Solve(ctx, g)
	}
	return Distribution{}, fmt.Errorf("unknown equilibrium method %q", method)
}
