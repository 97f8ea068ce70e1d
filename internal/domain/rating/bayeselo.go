package rating

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

// Default BayesElo configuration constants (Coulom's bayeselo values).
const (
	defaultBayesEloBase      = 10.0
	defaultBayesEloSpread    = 400.0
	defaultBayesEloDraw      = 97.3 // draw likelihood in rating points
	defaultBayesEloAdvantage = 32.8 // first-mover advantage in rating points
	defaultBayesEloDrawPrior = 2.0  // pseudo-draws regularizing sparse data
	defaultBayesEloIter      = 10000
	defaultBayesEloTolerance = 1e-5
	defaultBayesEloGammaMin  = 1e-8
)

// BayesEloState is a Bradley-Terry strength estimate: the positive gamma
// parameter and its Elo-scale projection after normalization.
type BayesEloState struct {
	Gamma  float64 `json:"gamma"`
	Rating float64 `json:"rating"`
}

// Method implements State.
func (BayesEloState) Method() types.Method { return types.MethodBayesElo }

// Score implements rating.State.
func (s BayesEloState) Score() float64 { return s.Rating }

// pairCounts condenses all games between one agent and one opponent.
// The *First fields split results by which side moved first, which is what
// the first-mover bias term needs.
type pairCounts struct {
	opponent int

	winsFirst   float64 // wins with the agent moving first
	drawsFirst  float64
	lossesFirst float64
	winsSecond  float64 // opponent moved first, opponent won
	drawsSecond float64
	lossSecond  float64 // opponent moved first, opponent lost

	totalGames float64
}

// BayesEloOption applies a configuration option to the BayesElo rater.
type BayesEloOption func(*BayesElo)

// WithBayesEloIterations caps the MM sweeps.
func WithBayesEloIterations(n int) BayesEloOption {
	return func(b *BayesElo) {
		if n > 0 {
			b.maxIter = n
		}
	}
}

// WithBayesEloTolerance sets the max relative gamma change ending the MM loop.
func WithBayesEloTolerance(tol float64) BayesEloOption {
	return func(b *BayesElo) {
		if tol > 0 {
			b.tolerance = tol
		}
	}
}

// WithBayesEloDrawPrior sets the pseudo-draw mass spread over observed pairs.
// Zero disables the prior.
func WithBayesEloDrawPrior(prior float64) BayesEloOption {
	return func(b *BayesElo) {
		if prior >= 0 {
			b.drawPrior = prior
		}
	}
}

// WithBayesEloDrawElo sets the draw likelihood expressed in rating points.
func WithBayesEloDrawElo(drawElo float64) BayesEloOption {
	return func(b *BayesElo) { b.drawElo = drawElo }
}

// WithBayesEloAdvantage sets the first-mover advantage in rating points.
func WithBayesEloAdvantage(advantage float64) BayesEloOption {
	return func(b *BayesElo) { b.advantage = advantage }
}

// WithBayesEloGammaFloor sets the lower clamp keeping degenerate all-loss
// strengths from collapsing to zero.
func WithBayesEloGammaFloor(floor float64) BayesEloOption {
	return func(b *BayesElo) {
		if floor > 0 {
			b.gammaFloor = floor
		}
	}
}

// BayesElo estimates maximum-likelihood Bradley-Terry strengths with the
// minorization-maximization algorithm, generalized with Coulom's draw and
// first-mover bias terms.
//
// The sweep is Gauss-Seidel: agents are visited in descending lexical
// order of their ids and an opponent already visited in the current sweep
// is read from the fresh vector. The order is fixed so repeated runs over
// the same outcomes reproduce the same convergence path.
type BayesElo struct {
	base       float64
	spread     float64
	drawElo    float64
	advantage  float64
	drawPrior  float64
	maxIter    int
	tolerance  float64
	gammaFloor float64
}

// NewBayesElo constructs a BayesElo rater with default configuration.
func NewBayesElo(opts ...BayesEloOption) *BayesElo {
	b := &BayesElo{
		base:       defaultBayesEloBase,
		spread:     defaultBayesEloSpread,
		drawElo:    defaultBayesEloDraw,
		advantage:  defaultBayesEloAdvantage,
		drawPrior:  defaultBayesEloDrawPrior,
		maxIter:    defaultBayesEloIter,
		tolerance:  defaultBayesEloTolerance,
		gammaFloor: defaultBayesEloGammaMin,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Method implements Rater.
func (b *BayesElo) Method() types.Method { return types.MethodBayesElo }

// buildPairStats condenses outcomes into per-agent opponent statistics.
// Agent order is the sorted id order; outcomes must be pairwise.
func buildPairStats(agents []types.AgentID, outcomes []model.Outcome) [][]*pairCounts {
	index := make(map[types.AgentID]int, len(agents))
	for i, id := range agents {
		index[id] = i
	}

	stats := make([][]*pairCounts, len(agents))
	slot := make([]map[int]*pairCounts, len(agents))
	for i := range agents {
		slot[i] = make(map[int]*pairCounts)
	}
	entry := func(i, j int) *pairCounts {
		if c, ok := slot[i][j]; ok {
			return c
		}
		c := &pairCounts{opponent: j}
		slot[i][j] = c
		stats[i] = append(stats[i], c)
		return c
	}

	for _, o := range outcomes {
		first := index[o.Participants[0].AgentID]
		second := index[o.Participants[1].AgentID]
		fwd, rev := entry(first, second), entry(second, first)
		switch {
		case o.Participants[0].Score > o.Participants[1].Score:
			fwd.winsFirst++
			rev.winsSecond++
		case o.Participants[0].Score < o.Participants[1].Score:
			fwd.lossesFirst++
			rev.lossSecond++
		default:
			fwd.drawsFirst++
			rev.drawsSecond++
		}
		fwd.totalGames++
		rev.totalGames++
	}
	return stats
}

// addDrawPrior spreads pseudo-draw mass over every observed pair, keeping
// the likelihood bounded away from degenerate all-win configurations.
func (b *BayesElo) addDrawPrior(stats [][]*pairCounts) {
	if b.drawPrior == 0 {
		return
	}
	for i := range stats {
		var opponentGames float64
		for _, c := range stats[i] {
			opponentGames += c.totalGames
		}
		if opponentGames == 0 {
			continue
		}
		prior := b.drawPrior * 0.25 / opponentGames
		for _, c := range stats[i] {
			mass := prior * c.totalGames
			c.drawsFirst += mass
			c.drawsSecond += mass
			for _, rc := range stats[c.opponent] {
				if rc.opponent == i {
					rc.drawsFirst += mass
					rc.drawsSecond += mass
					break
				}
			}
		}
	}
}

// minorizeMaximize runs MM sweeps until the max relative gamma change drops
// below tolerance. Returns the gamma vector in agent order.
func (b *BayesElo) minorizeMaximize(ctx context.Context, stats [][]*pairCounts) ([]float64, error) {
	n := len(stats)
	homeBias := math.Pow(b.base, b.advantage/b.spread)
	drawBias := math.Pow(b.base, b.drawElo/b.spread)

	gammas := make([]float64, n)
	next := make([]float64, n)
	for i := range gammas {
		gammas[i] = 1
		next[i] = 1
	}

	for iter := 0; iter < b.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := n - 1; i >= 0; i-- {
			var wins, denom float64
			for _, c := range stats[i] {
				// Opponents later in the sweep already hold this
				// sweep's value.
				opp := gammas[c.opponent]
				if c.opponent > i {
					opp = next[c.opponent]
				}

				wins += c.winsFirst + c.drawsFirst + c.lossSecond + c.drawsSecond
				denom += (c.drawsFirst+c.winsFirst)*homeBias/
					(homeBias*gammas[i]+drawBias*opp) +
					(c.drawsFirst+c.lossesFirst)*drawBias*homeBias/
						(drawBias*homeBias*gammas[i]+opp) +
					(c.drawsSecond+c.winsSecond)*drawBias/
						(homeBias*opp+drawBias*gammas[i]) +
					(c.drawsSecond+c.lossSecond)/
						(drawBias*homeBias*opp+gammas[i])
			}
			if denom == 0 {
				next[i] = gammas[i]
				continue
			}
			next[i] = math.Max(wins/denom, b.gammaFloor)
		}

		var diff float64
		for i := range gammas {
			diff = math.Max(diff, math.Abs(gammas[i]-next[i])/(gammas[i]+next[i]))
		}
		gammas, next = next, gammas

		if diff < b.tolerance {
			return gammas, nil
		}
	}
	return nil, fmt.Errorf("minorization-maximization: %w after %d sweeps", ErrNonConvergence, b.maxIter)
}

// Estimate solves for Bradley-Terry strengths over the given outcomes.
// Multi-agent outcomes are decomposed pairwise. The returned gammas are
// normalized so their log-ratings sum to zero.
func (b *BayesElo) Estimate(ctx context.Context, outcomes []model.Outcome, agents []types.AgentID) (map[types.AgentID]float64, error) {
	sorted := make([]types.AgentID, len(agents))
	copy(sorted, agents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var pairwise []model.Outcome
	for _, o := range outcomes {
		pairwise = append(pairwise, o.PairwiseDecomposition()...)
	}

	stats := buildPairStats(sorted, pairwise)
	b.addDrawPrior(stats)

	gammas, err := b.minorizeMaximize(ctx, stats)
	if err != nil {
		return nil, err
	}

	// Remove the Bradley-Terry scale indeterminacy: shift log-gammas to
	// sum to zero.
	var logSum float64
	for _, g := range gammas {
		logSum += math.Log(g)
	}
	shift := math.Exp(-logSum / float64(len(gammas)))

	out := make(map[types.AgentID]float64, len(sorted))
	for i, id := range sorted {
		out[id] = gammas[i] * shift
	}
	return out, nil
}

// eloScale is Coulom's rescaling factor compressing ratings for the
// configured draw likelihood.
func (b *BayesElo) eloScale() float64 {
	x := math.Pow(b.base, -b.drawElo/b.spread)
	return x * 4 / ((1 + x) * (1 + x))
}

// Update implements Rater. Agents absent from the period keep their prior
// state; participants are re-estimated from the period's outcomes.
func (b *BayesElo) Update(ctx context.Context, prior map[types.AgentID]State, period model.RatingPeriod) (map[types.AgentID]State, error) {
	next := make(map[types.AgentID]State)
	for id := range prior {
		st, err := stateAs(prior[id], BayesEloState{Gamma: 1})
		if err != nil {
			return nil, err
		}
		next[id] = st
	}
	if len(period.Outcomes) == 0 {
		return next, nil
	}

	active := period.Agents()
	agents := make([]types.AgentID, 0, len(active))
	for id := range active {
		agents = append(agents, id)
	}

	gammas, err := b.Estimate(ctx, period.Outcomes, agents)
	if err != nil {
		return nil, err
	}

	scale := b.eloScale()
	for id, gamma := range gammas {
		next[id] = BayesEloState{
			Gamma:  gamma,
			Rating: math.Log(gamma) / math.Log(b.base) * b.spread * scale,
		}
	}
	return next, nil
}
