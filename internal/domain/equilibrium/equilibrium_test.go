package equilibrium_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"

	equilibrium "github.com/okian/poprank/internal/domain/equilibrium"
	"github.com/okian/poprank/internal/domain/game"
	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

var outcomeSeq int

func vs(a, b types.AgentID, scoreA float64) model.Outcome {
	outcomeSeq++
	o, err := model.NewOutcome(fmt.Sprintf("eq-%d", outcomeSeq), []model.Participant{
		{AgentID: a, Score: scoreA},
		{AgentID: b, Score: 1 - scoreA},
	}, time.Now())
	if err != nil {
		panic(err)
	}
	return o
}

// cycleGame is the rock-paper-scissors empirical game.
func cycleGame() *game.EmpiricalGame {
	g, err := game.NewBuilder().Build([]model.Outcome{
		vs("rock", "scissors", 1),
		vs("scissors", "paper", 1),
		vs("paper", "rock", 1),
	})
	if err != nil {
		panic(err)
	}
	return g
}

// dominanceGame has one strategy beating both others, which beat each
// other evenly.
func dominanceGame() *game.EmpiricalGame {
	g, err := game.NewBuilder().Build([]model.Outcome{
		vs("alpha", "beta", 1),
		vs("alpha", "gamma", 1),
		vs("beta", "gamma", 0.5),
	})
	if err != nil {
		panic(err)
	}
	return g
}

func TestDistribution(t *testing.T) {
	Convey("Given an equilibrium distribution", t, func() {
		d := equilibrium.Distribution{
			Agents:  []types.AgentID{"a", "b", "c"},
			Weights: []float64{0.2, 0.5, 0.3},
		}

		Convey("Weight looks up by agent and defaults to zero", func() {
			So(d.Weight("b"), ShouldEqual, 0.5)
			So(d.Weight("missing"), ShouldEqual, 0)
		})

		Convey("Ranking orders by descending weight", func() {
			So(d.Ranking(), ShouldResemble, types.Ranking{"b", "c", "a"})
		})

		Convey("Ties break by agent id", func() {
			tied := equilibrium.Distribution{
				Agents:  []types.AgentID{"z", "a"},
				Weights: []float64{0.5, 0.5},
			}
			So(tied.Ranking(), ShouldResemble, types.Ranking{"a", "z"})
		})
	})
}

func TestNashAveraging(t *testing.T) {
	ctx := context.Background()

	Convey("Given the rock-paper-scissors cycle", t, func() {
		dist, err := equilibrium.NewNashAverager().Solve(ctx, cycleGame())
		So(err, ShouldBeNil)

		Convey("The equilibrium is uniform over the cycle", func() {
			var sum float64
			for i := range dist.Agents {
				So(dist.Weights[i], ShouldAlmostEqual, 1.0/3, 0.02)
				sum += dist.Weights[i]
			}
			So(sum, ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("The iterations spent are reported", func() {
			So(dist.Iterations, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a dominant strategy", t, func() {
		// A support tolerance above the convergence residual prunes the
		// dominated strategies cleanly on every restart.
		s := equilibrium.NewNashAverager(equilibrium.WithNashSupportTolerance(0.05))
		dist, err := s.Solve(ctx, dominanceGame())
		So(err, ShouldBeNil)

		Convey("All mass lands on the dominant strategy", func() {
			So(dist.Weight("alpha"), ShouldAlmostEqual, 1, 1e-9)
			So(dist.Weight("beta"), ShouldEqual, 0)
			So(dist.Weight("gamma"), ShouldEqual, 0)
		})
	})

	Convey("Given a support tolerance above every averaged weight", t, func() {
		s := equilibrium.NewNashAverager(
			equilibrium.WithNashSupportTolerance(0.6),
			equilibrium.WithNashRestarts(1),
		)
		dist, err := s.Solve(ctx, cycleGame())
		So(err, ShouldBeNil)

		Convey("The heaviest strategy survives instead of an empty support", func() {
			var sum float64
			positive := 0
			for _, w := range dist.Weights {
				So(math.IsNaN(w), ShouldBeFalse)
				So(w, ShouldBeGreaterThanOrEqualTo, 0)
				if w > 0 {
					positive++
				}
				sum += w
			}
			So(sum, ShouldAlmostEqual, 1, 1e-9)
			So(positive, ShouldEqual, 1)
		})
	})

	Convey("Given an incompletely observed game", t, func() {
		g, err := game.NewBuilder().Build([]model.Outcome{
			vs("a", "b", 1),
			vs("b", "c", 1),
		})
		So(err, ShouldBeNil)

		Convey("The solver refuses to impute", func() {
			_, err := equilibrium.NewNashAverager().Solve(ctx, g)
			So(err, ShouldWrap, game.ErrUnobservedPayoff)
		})
	})

	Convey("Given a single-strategy game", t, func() {
		payoff := mat.NewDense(1, 1, []float64{0.5})
		g, err := game.NewBuilder().FromMatrix([]types.AgentID{"solo"}, payoff, nil)
		So(err, ShouldBeNil)

		Convey("The equilibrium is trivial", func() {
			dist, err := equilibrium.NewNashAverager().Solve(ctx, g)
			So(err, ShouldBeNil)
			So(dist.Weights, ShouldResemble, []float64{1})
		})
	})

	Convey("Given a starved iteration budget", t, func() {
		s := equilibrium.NewNashAverager(
			equilibrium.WithNashIterations(1),
			equilibrium.WithNashTolerance(1e-15),
		)

		Convey("The solver reports non-convergence", func() {
			_, err := s.Solve(ctx, dominanceGame())
			So(err, ShouldWrap, equilibrium.ErrNonConvergence)
		})
	})
}

func TestAlphaRank(t *testing.T) {
	ctx := context.Background()

	Convey("Given the rock-paper-scissors cycle", t, func() {
		dist, err := equilibrium.NewAlphaRanker().Solve(ctx, cycleGame())
		So(err, ShouldBeNil)

		Convey("The stationary distribution is uniform", func() {
			for i := range dist.Agents {
				So(dist.Weights[i], ShouldAlmostEqual, 1.0/3, 1e-6)
			}
		})

		Convey("The iterations spent are reported", func() {
			So(dist.Iterations, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a dominant strategy at high selection pressure", t, func() {
		Convey("The pure chain is reducible and rejected", func() {
			_, err := equilibrium.NewAlphaRanker(equilibrium.WithAlpha(100)).Solve(ctx, dominanceGame())
			So(err, ShouldWrap, equilibrium.ErrDegenerateChain)
		})

		Convey("Mutation mass restores ergodicity and concentrates on the dominator", func() {
			dist, err := equilibrium.NewAlphaRanker(
				equilibrium.WithAlpha(100),
				equilibrium.WithMutationMass(1e-6),
			).Solve(ctx, dominanceGame())
			So(err, ShouldBeNil)
			So(dist.Weight("alpha"), ShouldBeGreaterThan, 0.9)
			So(dist.Ranking()[0], ShouldEqual, types.AgentID("alpha"))
		})
	})

	Convey("Given a transitive game and its contraction toward even matchups", t, func() {
		// Fixation depends on payoffs only through alpha times the payoff
		// gap, so halving every gap while doubling alpha leaves the chain,
		// and with it the stationary distribution, unchanged.
		agents := []types.AgentID{"a", "b", "c"}
		payoff := mat.NewDense(3, 3, []float64{
			0.5, 0.8, 0.9,
			0.2, 0.5, 0.7,
			0.1, 0.3, 0.5,
		})
		contracted := mat.NewDense(3, 3, nil)
		contracted.Apply(func(_, _ int, v float64) float64 {
			return 0.5 + 0.5*(v-0.5)
		}, payoff)

		full, err := game.NewBuilder().FromMatrix(agents, payoff, nil)
		So(err, ShouldBeNil)
		half, err := game.NewBuilder().FromMatrix(agents, contracted, nil)
		So(err, ShouldBeNil)

		base, err := equilibrium.NewAlphaRanker(equilibrium.WithAlpha(0.2)).Solve(ctx, full)
		So(err, ShouldBeNil)
		scaled, err := equilibrium.NewAlphaRanker(equilibrium.WithAlpha(0.4)).Solve(ctx, half)
		So(err, ShouldBeNil)

		Convey("The stationary distributions coincide", func() {
			for i := range base.Weights {
				So(scaled.Weights[i], ShouldAlmostEqual, base.Weights[i], 1e-6)
			}
		})

		Convey("The strict strength ordering survives the rescale", func() {
			So(base.Ranking(), ShouldResemble, types.Ranking{"a", "b", "c"})
			So(scaled.Ranking(), ShouldResemble, base.Ranking())
		})
	})

	Convey("Given a single-strategy game", t, func() {
		payoff := mat.NewDense(1, 1, []float64{0.5})
		g, err := game.NewBuilder().FromMatrix([]types.AgentID{"solo"}, payoff, nil)
		So(err, ShouldBeNil)

		dist, err := equilibrium.NewAlphaRanker().Solve(ctx, g)
		So(err, ShouldBeNil)
		So(dist.Weights, ShouldResemble, []float64{1})
	})
}

func TestSolveDispatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given the method dispatcher", t, func() {
		Convey("Known methods run their solver", func() {
			dist, err := equilibrium.Solve(ctx, cycleGame(), equilibrium.NashAveraging)
			So(err, ShouldBeNil)
			So(dist.Agents, ShouldHaveLength, 3)
		})

		Convey("Unknown methods fail", func() {
			_, err := equilibrium.Solve(ctx, cycleGame(), equilibrium.Method("fictitious-play"))
			So(err, ShouldNotBeNil)
		})
	})
}
