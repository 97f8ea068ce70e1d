package rating

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default TrueSkill configuration constants (Herbrich's paper values).
const (
	defaultTrueSkillMu       = 25.0
	defaultTrueSkillSigma    = 25.0 / 3
	defaultTrueSkillBeta     = 25.0 / 6
	defaultTrueSkillDynamics = 1.0 / 12
	defaultTrueSkillDrawProb = 0.1
	defaultTrueSkillPasses   = 10
	defaultTrueSkillTol      = 1e-4
)

// TrueSkillState is a Gaussian belief over an agent's latent skill.
type TrueSkillState struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Method implements State.
func (TrueSkillState) Method() types.Method { return types.MethodTrueSkill }

// Score implements rating.State using the conservative display value.
func (s TrueSkillState) Score() float64 { return s.ConservativeRating() }

// ConservativeRating is the usual mu - 3*sigma display value.
func (s TrueSkillState) ConservativeRating() float64 { return s.Mu - 3*s.Sigma }

// TrueSkillOption applies a configuration option to the TrueSkill rater.
type TrueSkillOption func(*TrueSkill)

// WithTrueSkillInitial sets the prior belief for unrated agents.
func WithTrueSkillInitial(mu, sigma float64) TrueSkillOption {
	return func(t *TrueSkill) {
		t.initialMu = mu
		if sigma > 0 {
			t.initialSigma = sigma
		}
	}
}

// WithTrueSkillBeta sets the per-game performance noise.
func WithTrueSkillBeta(beta float64) TrueSkillOption {
	return func(t *TrueSkill) {
		if beta > 0 {
			t.beta = beta
		}
	}
}

// WithTrueSkillDynamics sets the skill drift added before each match.
func WithTrueSkillDynamics(tau float64) TrueSkillOption {
	return func(t *TrueSkill) {
		if tau >= 0 {
			t.dynamics = tau
		}
	}
}

// WithTrueSkillDrawProbability sets the probability mass of draws, which
// fixes the draw margin.
func WithTrueSkillDrawProbability(p float64) TrueSkillOption {
	return func(t *TrueSkill) {
		if p > 0 && p < 1 {
			t.drawProb = p
		}
	}
}

// WithTrueSkillConvergence sets the message-passing pass cap and the
// mean-shift tolerance ending the loop early.
func WithTrueSkillConvergence(passes int, tolerance float64) TrueSkillOption {
	return func(t *TrueSkill) {
		if passes > 0 {
			t.maxPasses = passes
		}
		if tolerance > 0 {
			t.tolerance = tolerance
		}
	}
}

// TrueSkill rates agents by sum-product message passing over a per-match
// factor graph. Two-sided matches resolve in a single pass; matches with
// more than two sides iterate the difference chain until the largest belief
// shift falls under tolerance or the pass cap is reached.
type TrueSkill struct {
	initialMu    float64
	initialSigma float64
	beta         float64
	dynamics     float64
	drawProb     float64
	maxPasses    int
	tolerance    float64
}

// NewTrueSkill constructs a TrueSkill rater with default configuration.
func NewTrueSkill(opts ...TrueSkillOption) *TrueSkill {
	t := &TrueSkill{
		initialMu:    defaultTrueSkillMu,
		initialSigma: defaultTrueSkillSigma,
		beta:         defaultTrueSkillBeta,
		dynamics:     defaultTrueSkillDynamics,
		drawProb:     defaultTrueSkillDrawProb,
		maxPasses:    defaultTrueSkillPasses,
		tolerance:    defaultTrueSkillTol,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Method implements Rater.
func (t *TrueSkill) Method() types.Method { return types.MethodTrueSkill }

// drawMargin converts the draw probability into the performance-space
// margin for a contest of the given size.
func (t *TrueSkill) drawMargin(size int) float64 {
	return distuv.UnitNormal.Quantile((t.drawProb+1)/2) * math.Sqrt(float64(size)) * t.beta
}

// ranked is one side of a match ordered best to worst.
type ranked struct {
	id    types.AgentID
	state TrueSkillState
	rank  int
}

// rankMatch orders participants by score and assigns dense ranks, equal
// scores sharing a rank (a draw between those sides).
func rankMatch(o model.Outcome, states map[types.AgentID]TrueSkillState) []ranked {
	sides := make([]ranked, len(o.Participants))
	scores := make([]float64, len(o.Participants))
	for i, p := range o.Participants {
		sides[i] = ranked{id: p.AgentID, state: states[p.AgentID]}
		scores[i] = p.Score
	}
	order := make([]int, len(sides))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	out := make([]ranked, len(sides))
	rank := 0
	for i, idx := range order {
		if i > 0 && scores[idx] != scores[order[i-1]] {
			rank = i
		}
		s := sides[idx]
		s.rank = rank
		out[i] = s
	}
	return out
}

// updateMatch builds the factor graph for one match and runs the message
// schedule, returning the posterior skills.
func (t *TrueSkill) updateMatch(sides []ranked) map[types.AgentID]TrueSkillState {
	n := len(sides)

	skillVars := make([]*variable, n)
	perfVars := make([]*variable, n)
	diffVars := make([]*variable, n-1)
	for i := range sides {
		skillVars[i] = newVariable()
		perfVars[i] = newVariable()
	}
	for i := range diffVars {
		diffVars[i] = newVariable()
	}

	priors := make([]*priorFactor, n)
	likelihoods := make([]*likelihoodFactor, n)
	for i, s := range sides {
		priors[i] = newPriorFactor(skillVars[i], s.state.Mu, s.state.Sigma, t.dynamics)
		likelihoods[i] = newLikelihoodFactor(skillVars[i], perfVars[i], t.beta*t.beta)
	}
	diffs := make([]*sumFactor, n-1)
	truncs := make([]*truncateFactor, n-1)
	margin := t.drawMargin(2)
	for i := range diffs {
		diffs[i] = newSumFactor(diffVars[i], []*variable{perfVars[i], perfVars[i+1]}, []float64{1, -1})
		vf, wf := vWin, wWin
		if sides[i].rank == sides[i+1].rank {
			vf, wf = vDraw, wDraw
		}
		truncs[i] = newTruncateFactor(diffVars[i], vf, wf, margin)
	}

	for i := range priors {
		priors[i].down()
		likelihoods[i].down()
	}

	if n == 2 {
		diffs[0].down()
		truncs[0].up()
	} else {
		// Multi-way: sweep the difference chain forward and backward
		// until marginals settle.
		for pass := 0; pass < t.maxPasses; pass++ {
			var delta float64
			for i := 0; i < n-2; i++ {
				diffs[i].down()
				delta = math.Max(delta, truncs[i].up())
				diffs[i].up(1)
			}
			for i := n - 2; i > 0; i-- {
				diffs[i].down()
				delta = math.Max(delta, truncs[i].up())
				diffs[i].up(0)
			}
			if delta <= t.tolerance {
				break
			}
		}
	}

	diffs[0].up(0)
	diffs[n-2].up(1)
	for i := range likelihoods {
		likelihoods[i].up()
	}

	out := make(map[types.AgentID]TrueSkillState, n)
	for i, s := range sides {
		out[s.id] = TrueSkillState{Mu: skillVars[i].mu(), Sigma: skillVars[i].sigma()}
	}
	return out
}

// Update implements Rater. Matches inside the period are applied in order;
// agents without games keep their mean and gain the dynamics drift on
// their uncertainty.
func (t *TrueSkill) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	states := make(map[types.AgentID]TrueSkillState)
	for id := range participants(prior, period) {
		st, err := stateAs(prior[id], TrueSkillState{Mu: t.initialMu, Sigma: t.initialSigma})
		if err != nil {
			return nil, err
		}
		states[id] = st
	}

	played := make(map[types.AgentID]bool, len(states))
	for _, o := range period.Outcomes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for id, st := range t.updateMatch(rankMatch(o, states)) {
			states[id] = st
			played[id] = true
		}
	}

	next := make(map[types.AgentID]State, len(states))
	for id, st := range states {
		if !played[id] {
			st.Sigma = math.Sqrt(st.Sigma*st.Sigma + t.dynamics*t.dynamics)
		}
		next[id] = st
	}
	return next, nil
}
