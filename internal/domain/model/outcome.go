// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/poprank/internal/domain/types"
)

// ErrInvalidOutcome marks malformed participant or score data.
var ErrInvalidOutcome = errors.New("invalid outcome")

// scoreSumTolerance bounds the allowed drift of pairwise score sums from 1.
const scoreSumTolerance = 1e-9

// Participant is one agent's realized result in a contest.
// Score is 1 for a win, 0 for a loss and 0.5 for a draw in pairwise
// contests; for multi-agent contests it is any real where a higher score
// means a better placement.
type Participant struct {
	AgentID types.AgentID
	Score   float64
}

// Outcome is an immutable record of one completed contest.
type Outcome struct {
	OutcomeID    string
	Participants []Participant
	TS           time.Time
}

// NewOutcome builds a validated outcome. An empty id is replaced with a
// fresh uuid so callers can rely on outcome identity for idempotency.
func NewOutcome(id string, participants []Participant, ts time.Time) (Outcome, error) {
	if id == "" {
		id = uuid.NewString()
	}
	o := Outcome{OutcomeID: id, Participants: participants, TS: ts}
	if err := o.Validate(); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

// Pairwise builds a validated two-agent outcome from agent a's score.
func Pairwise(a, b types.AgentID, scoreA float64, ts time.Time) (Outcome, error) {
	return NewOutcome("", []Participant{
		{AgentID: a, Score: scoreA},
		{AgentID: b, Score: 1 - scoreA},
	}, ts)
}

// Validate checks the structural invariants of the outcome: at least two
// participants, no duplicate agents, and pairwise scores summing to 1.
func (o Outcome) Validate() error {
	if len(o.Participants) < 2 {
		return fmt.Errorf("%w: need at least 2 participants, got %d",
			ErrInvalidOutcome, len(o.Participants))
	}
	seen := make(map[types.AgentID]struct{}, len(o.Participants))
	for _, p := range o.Participants {
		if p.AgentID == "" {
			return fmt.Errorf("%w: empty agent id", ErrInvalidOutcome)
		}
		if _, dup := seen[p.AgentID]; dup {
			return fmt.Errorf("%w: agent %q appears twice", ErrInvalidOutcome, p.AgentID)
		}
		seen[p.AgentID] = struct{}{}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return fmt.Errorf("%w: non-finite score for agent %q", ErrInvalidOutcome, p.AgentID)
		}
	}
	if len(o.Participants) == 2 {
		sum := o.Participants[0].Score + o.Participants[1].Score
		if math.Abs(sum-1) > scoreSumTolerance {
			return fmt.Errorf("%w: pairwise scores sum to %v, want 1", ErrInvalidOutcome, sum)
		}
	}
	return nil
}

// IsPairwise reports whether the outcome involves exactly two agents.
func (o Outcome) IsPairwise() bool { return len(o.Participants) == 2 }

// IsDraw reports whether a pairwise outcome ended level.
func (o Outcome) IsDraw() bool {
	return o.IsPairwise() && o.Participants[0].Score == o.Participants[1].Score
}

// Agents returns the participant ids in contest order.
func (o Outcome) Agents() []types.AgentID {
	ids := make([]types.AgentID, len(o.Participants))
	for i, p := range o.Participants {
		ids[i] = p.AgentID
	}
	return ids
}

// PairwiseDecomposition expands a multi-agent outcome into the implied set
// of pairwise outcomes: every pair of participants is compared by score,
// the better placed agent taking 1, a tie taking 0.5 each. A pairwise
// outcome decomposes to itself.
func (o Outcome) PairwiseDecomposition() []Outcome {
	if o.IsPairwise() {
		return []Outcome{o}
	}
	var out []Outcome
	for i := 0; i < len(o.Participants); i++ {
		for j := i + 1; j < len(o.Participants); j++ {
			a, b := o.Participants[i], o.Participants[j]
			score := 0.5
			switch {
			case a.Score > b.Score:
				score = 1
			case a.Score < b.Score:
				score = 0
			}
			out = append(out, Outcome{
				OutcomeID: fmt.Sprintf("%s/%s-%s", o.OutcomeID, a.AgentID, b.AgentID),
				Participants: []Participant{
					{AgentID: a.AgentID, Score: score},
					{AgentID: b.AgentID, Score: 1 - score},
				},
				TS: o.TS,
			})
		}
	}
	return out
}
