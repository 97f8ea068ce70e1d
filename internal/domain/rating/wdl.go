package rating

import (
	"context"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// WDLState counts an agent's wins, draws and losses.
type WDLState struct {
	Wins   uint64 `json:"wins"`
	Draws  uint64 `json:"draws"`
	Losses uint64 `json:"losses"`
}

// Method implements State.
func (WDLState) Method() types.Method { return types.MethodWDL }

// Score implements rating.State with the conventional 1 / 0.5 / 0 scoring.
func (s WDLState) Score() float64 { return s.Points(1, 0.5, 0) }

// Points scores the record with the given per-result values
// (e.g. football's 3/1/0).
func (s WDLState) Points(win, draw, loss float64) float64 {
	return win*float64(s.Wins) + draw*float64(s.Draws) + loss*float64(s.Losses)
}

// WDL tallies win-draw-lose records. Multi-agent outcomes award the top
// score a win (shared top scores draw) and every lower placement a loss,
// matching the pairwise semantics of win=1, draw=0.5, loss=0.
type WDL struct{}

// NewWDL constructs a WDL rater.
func NewWDL() *WDL { return &WDL{} }

// Method implements Rater.
func (w *WDL) Method() types.Method { return types.MethodWDL }

// Update implements Rater.
func (w *WDL) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	_ = ctx

	counts := make(map[types.AgentID]WDLState)
	for id := range participants(prior, period) {
		st, err := stateAs(prior[id], WDLState{})
		if err != nil {
			return nil, err
		}
		counts[id] = st
	}

	for _, o := range period.Outcomes {
		best := o.Participants[0].Score
		atBest := 0
		for _, p := range o.Participants {
			if p.Score > best {
				best = p.Score
			}
		}
		for _, p := range o.Participants {
			if p.Score == best {
				atBest++
			}
		}
		for _, p := range o.Participants {
			st := counts[p.AgentID]
			switch {
			case p.Score < best:
				st.Losses++
			case atBest > 1:
				st.Draws++
			default:
				st.Wins++
			}
			counts[p.AgentID] = st
		}
	}

	next := make(map[types.AgentID]State, len(counts))
	for id, st := range counts {
		next[id] = st
	}
	return next, nil
}
