// Package rating implements the rating algorithm family: closed-form
// updates (Elo, win-draw-lose), the Glicko Bayesian approximations, the
// TrueSkill factor-graph model and the BayesElo / Bradley-Terry
// maximum-likelihood solver.
//
// Conventions:
// - Each algorithm owns its state shape; no algorithm-specific fields
//   leak onto agents or other algorithms.
// - Raters receive prior state by value and return fresh state; they never
//   mutate their inputs, so callers may fan out updates across agents.
// - Every iterative routine is bounded by a configured iteration cap and
//   reports ErrNonConvergence instead of returning a best-effort answer.
package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNonConvergence reports an iterative solver that exhausted its
	// iteration budget before meeting tolerance.
	ErrNonConvergence = errors.New("solver did not converge")

	// ErrStateType reports a prior state of the wrong concrete type for
	// the algorithm it was handed to.
	ErrStateType = errors.New("unexpected rating state type")
)

// State is an algorithm-specific rating tuple. All fields of every concrete
// state are exported so callers can persist them losslessly.
type State interface {
	// Method names the algorithm that owns this state shape.
	Method() types.Method

	// Score is the algorithm's display value, suitable for ordering a
	// leaderboard. Higher is stronger.
	Score() float64
}

// Rater consumes a batch of outcomes plus prior state and produces updated
// state for every agent in the prior mapping. Agents absent from the period
// keep their prior state except for the algorithm's idle-decay adjustment.
type Rater interface {
	Method() types.Method

	// Update applies one rating period against a shared prior snapshot.
	// The returned mapping contains a state for every agent present in
	// prior or in the period.
	Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error)
}

// stateAs narrows a State to its concrete type, defaulting absent or nil
// entries to def.
func stateAs[T State](s State, def T) (T, error) {
	if s == nil {
		return def, nil
	}
	t, ok := s.(T)
	if !ok {
		return def, fmt.Errorf("%w: got %T", ErrStateType, s)
	}
	return t, nil
}

// participants collects the union of prior agents and period agents so a
// rater can return a complete population snapshot.
func participants(prior map[types.AgentID]State, period model.RatingPeriod) map[types.AgentID]struct{} {
	set := period.Agents()
	for id := range prior {
		set[id] = struct{}{}
	}
	return set
}
