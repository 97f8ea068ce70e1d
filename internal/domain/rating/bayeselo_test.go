package rating_test

import (
	"context"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/poprank/internal/domain/model"
	rating "github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

func TestBayesElo(t *testing.T) {
	ctx := context.Background()

	Convey("Given a one-sided series", t, func() {
		b := rating.NewBayesElo()
		var outcomes []model.Outcome
		for i := 0; i < 10; i++ {
			outcomes = append(outcomes, game("crusher", "victim", 1))
		}
		next, err := b.Update(ctx, nil, testPeriod(outcomes...))
		So(err, ShouldBeNil)

		Convey("The winner lands far above the loser", func() {
			cr := next["crusher"].(rating.BayesEloState)
			vi := next["victim"].(rating.BayesEloState)
			So(cr.Rating, ShouldBeGreaterThan, vi.Rating+200)
		})

		Convey("The draw prior keeps strengths finite", func() {
			vi := next["victim"].(rating.BayesEloState)
			So(math.IsInf(vi.Rating, -1), ShouldBeFalse)
			So(vi.Gamma, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a balanced head-to-head with alternating first mover", t, func() {
		b := rating.NewBayesElo()
		next, err := b.Update(ctx, nil, testPeriod(
			game("a", "b", 1), game("b", "a", 1),
			game("a", "b", 0), game("b", "a", 0),
		))
		So(err, ShouldBeNil)

		Convey("Both agents end up equal", func() {
			So(next["a"].(rating.BayesEloState).Rating,
				ShouldAlmostEqual, next["b"].(rating.BayesEloState).Rating, 0.1)
		})
	})

	Convey("Given log-gamma normalization", t, func() {
		b := rating.NewBayesElo()
		gammas, err := b.Estimate(ctx, []model.Outcome{
			game("a", "b", 1),
			game("b", "c", 1),
			game("c", "a", 0),
		}, []types.AgentID{"a", "b", "c"})
		So(err, ShouldBeNil)

		Convey("Log strengths sum to zero", func() {
			var logSum float64
			for _, g := range gammas {
				logSum += math.Log(g)
			}
			So(logSum, ShouldAlmostEqual, 0, 1e-9)
		})
	})

	Convey("Given the maximum-likelihood stationarity condition", t, func() {
		// With draws, biases and the prior switched off, the converged
		// gammas satisfy the plain Bradley-Terry fixed point
		// w_i = gamma_i * sum_j n_ij / (gamma_i + gamma_j).
		b := rating.NewBayesElo(
			rating.WithBayesEloDrawPrior(0),
			rating.WithBayesEloDrawElo(0),
			rating.WithBayesEloAdvantage(0),
			rating.WithBayesEloTolerance(1e-12),
		)
		outcomes := []model.Outcome{
			game("a", "b", 1), game("a", "b", 1), game("a", "b", 0),
			game("b", "c", 1), game("a", "c", 1), game("c", "a", 1),
		}
		agents := []types.AgentID{"a", "b", "c"}
		gammas, err := b.Estimate(ctx, outcomes, agents)
		So(err, ShouldBeNil)

		wins := map[types.AgentID]float64{"a": 3, "b": 2, "c": 1}
		pairs := map[types.AgentID]map[types.AgentID]float64{
			"a": {"b": 3, "c": 2},
			"b": {"a": 3, "c": 1},
			"c": {"a": 2, "b": 1},
		}

		Convey("Each agent's expected wins equal its observed wins", func() {
			for _, id := range agents {
				var expected float64
				for opp, n := range pairs[id] {
					expected += n * gammas[id] / (gammas[id] + gammas[opp])
				}
				So(expected, ShouldAlmostEqual, wins[id], 1e-5)
			}
		})
	})

	Convey("Given a starved iteration budget", t, func() {
		b := rating.NewBayesElo(rating.WithBayesEloIterations(1), rating.WithBayesEloTolerance(1e-12))

		Convey("The solver reports non-convergence", func() {
			_, err := b.Update(ctx, nil, testPeriod(
				game("a", "b", 1), game("b", "c", 1),
			))
			So(err, ShouldWrap, rating.ErrNonConvergence)
		})
	})

	Convey("Given agents missing from the period", t, func() {
		b := rating.NewBayesElo()
		prior := map[types.AgentID]rating.State{
			"resting": rating.BayesEloState{Gamma: 2, Rating: 120},
		}

		Convey("Their prior state carries through unchanged", func() {
			next, err := b.Update(ctx, prior, testPeriod(game("a", "b", 1)))
			So(err, ShouldBeNil)
			So(next["resting"].(rating.BayesEloState).Rating, ShouldEqual, 120)
		})
	})
}
