package model

import (
	"fmt"

	"github.com/okian/poprank/internal/domain/types"
)

// RatingPeriod is a batch of outcomes grouped for simultaneous update.
// Every game in a period is evaluated against the same prior state for
// every participant; updates never become visible mid-period.
type RatingPeriod struct {
	Name     string
	Outcomes []Outcome
}

// NewRatingPeriod validates every outcome and returns the assembled period.
func NewRatingPeriod(name string, outcomes []Outcome) (RatingPeriod, error) {
	for i, o := range outcomes {
		if err := o.Validate(); err != nil {
			return RatingPeriod{}, fmt.Errorf("outcome %d: %w", i, err)
		}
	}
	cp := make([]Outcome, len(outcomes))
	copy(cp, outcomes)
	return RatingPeriod{Name: name, Outcomes: cp}, nil
}

// Agents returns the set of agents appearing in the period.
func (p RatingPeriod) Agents() map[types.AgentID]struct{} {
	set := make(map[types.AgentID]struct{})
	for _, o := range p.Outcomes {
		for _, pt := range o.Participants {
			set[pt.AgentID] = struct{}{}
		}
	}
	return set
}

// HasDraws reports whether any pairwise outcome in the period is a draw.
func (p RatingPeriod) HasDraws() bool {
	for _, o := range p.Outcomes {
		if o.IsDraw() {
			return true
		}
	}
	return false
}

// PairwiseOutcomes returns the period's outcomes with every multi-agent
// contest decomposed into its implied pairwise results.
func (p RatingPeriod) PairwiseOutcomes() []Outcome {
	var out []Outcome
	for _, o := range p.Outcomes {
		out = append(out, o.PairwiseDecomposition()...)
	}
	return out
}
