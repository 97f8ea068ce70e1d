package service_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/poprank/internal/app"
	"github.com/okian/poprank/internal/config"
	"github.com/okian/poprank/internal/domain/equilibrium"
	"github.com/okian/poprank/internal/domain/metric"
	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

func win(id string, a, b types.AgentID) model.Outcome {
	o, err := model.NewOutcome(id, []model.Participant{
		{AgentID: a, Score: 1},
		{AgentID: b, Score: 0},
	}, time.Now())
	if err != nil {
		panic(err)
	}
	return o
}

func period(name string, outcomes ...model.Outcome) model.RatingPeriod {
	p, err := model.NewRatingPeriod(name, outcomes)
	if err != nil {
		panic(err)
	}
	return p
}

func TestServiceDefaults(t *testing.T) {
	Convey("Given a service with default configuration", t, func() {
		s := service.New()

		Convey("All six rating algorithms are registered", func() {
			So(s.Methods(), ShouldHaveLength, 6)
			So(s.Methods(), ShouldContain, types.MethodElo)
			So(s.Methods(), ShouldContain, types.MethodTrueSkill)
			So(s.Methods(), ShouldContain, types.MethodBayesElo)
		})

		Convey("Unknown methods are rejected on reads", func() {
			_, err := s.Leaderboard(context.Background(), types.Method("chess960"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSubmitPeriod(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh service and a period where alice beats bob twice", t, func() {
		s := service.New(service.FromConfig(config.New())...)
		p := period("week-1",
			win("o1", "alice", "bob"),
			win("o2", "alice", "bob"),
		)
		So(s.SubmitPeriod(ctx, p), ShouldBeNil)

		Convey("Every algorithm ranks alice above bob", func() {
			for _, m := range s.Methods() {
				ranking, err := s.Ranking(ctx, m)
				So(err, ShouldBeNil)
				So(ranking, ShouldResemble, types.Ranking{"alice", "bob"})
			}
		})

		Convey("The leaderboard carries ranks and scores", func() {
			rows, err := s.Leaderboard(ctx, types.MethodElo)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Rank, ShouldEqual, 1)
			So(rows[0].AgentID, ShouldEqual, types.AgentID("alice"))
			So(rows[0].Score, ShouldBeGreaterThan, rows[1].Score)
		})

		Convey("Individual states are readable", func() {
			st, err := s.Rating(ctx, types.MethodWDL, "alice")
			So(err, ShouldBeNil)
			wdl, ok := st.(rating.WDLState)
			So(ok, ShouldBeTrue)
			So(wdl.Wins, ShouldEqual, 2)
		})

		Convey("The period is committed and snapshot-readable", func() {
			So(s.Periods(ctx, types.MethodElo), ShouldResemble, []string{"week-1"})
			rows, err := s.Snapshot(ctx, types.MethodElo, "week-1")
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
		})

		Convey("Resubmitting the same outcomes leaves Elo unchanged", func() {
			before, err := s.Rating(ctx, types.MethodElo, "alice")
			So(err, ShouldBeNil)

			So(s.SubmitPeriod(ctx, period("week-1-retry",
				win("o1", "alice", "bob"),
				win("o2", "alice", "bob"),
			)), ShouldBeNil)

			after, err := s.Rating(ctx, types.MethodElo, "alice")
			So(err, ShouldBeNil)
			So(after.Score(), ShouldEqual, before.Score())
		})
	})

	Convey("Given a bounded update parallelism", t, func() {
		s := service.New(append(
			service.FromConfig(config.New()),
			service.WithUpdateParallelism(1),
		)...)
		So(s.SubmitPeriod(ctx, period("serial",
			win("s1", "alice", "bob"),
		)), ShouldBeNil)

		Convey("Every algorithm still commits the period", func() {
			for _, m := range s.Methods() {
				ranking, err := s.Ranking(ctx, m)
				So(err, ShouldBeNil)
				So(ranking, ShouldResemble, types.Ranking{"alice", "bob"})
			}
		})
	})

	Convey("Given a period carrying an invalid outcome", t, func() {
		s := service.New()
		bad := model.Outcome{OutcomeID: "half", Participants: []model.Participant{
			{AgentID: "ghost", Score: 1},
		}}
		p := model.RatingPeriod{Name: "mixed", Outcomes: []model.Outcome{
			bad,
			win("ok-1", "alice", "bob"),
		}}

		Convey("The valid outcomes are rated and the invalid one is dropped", func() {
			So(s.SubmitPeriod(ctx, p), ShouldBeNil)
			ranking, err := s.Ranking(ctx, types.MethodElo)
			So(err, ShouldBeNil)
			So(ranking, ShouldResemble, types.Ranking{"alice", "bob"})
			_, err = s.Rating(ctx, types.MethodElo, "ghost")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an algorithm that cannot converge", t, func() {
		s := service.New(service.WithRater(rating.NewBayesElo(
			rating.WithBayesEloIterations(1),
			rating.WithBayesEloTolerance(1e-12),
		)))
		p := period("stuck",
			win("b1", "alice", "bob"),
			win("b2", "bob", "carol"),
		)
		first := s.SubmitPeriod(ctx, p)
		So(first, ShouldWrap, rating.ErrNonConvergence)

		Convey("The failed outcomes stay retryable instead of reading as duplicates", func() {
			retry := s.SubmitPeriod(ctx, p)
			So(retry, ShouldWrap, rating.ErrNonConvergence)
		})
	})
}

func TestEvaluateGame(t *testing.T) {
	ctx := context.Background()

	Convey("Given outcomes forming a three-way cycle", t, func() {
		s := service.New()
		outcomes := []model.Outcome{
			win("c1", "rock", "scissors"),
			win("c2", "scissors", "paper"),
			win("c3", "paper", "rock"),
		}

		Convey("Nash averaging spreads mass evenly over the cycle", func() {
			dist, err := s.EvaluateGame(ctx, outcomes, equilibrium.NashAveraging)
			So(err, ShouldBeNil)
			So(dist.Agents, ShouldHaveLength, 3)
			for _, id := range dist.Agents {
				So(dist.Weight(id), ShouldAlmostEqual, 1.0/3, 0.02)
			}
		})

		Convey("An unregistered solver method is rejected", func() {
			_, err := s.EvaluateGame(ctx, outcomes, equilibrium.Method("replicator"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCompareMethods(t *testing.T) {
	ctx := context.Background()

	Convey("Given a population with a clear strength order", t, func() {
		s := service.New()
		So(s.SubmitPeriod(ctx, period("qualifiers",
			win("m1", "ada", "bea"),
			win("m2", "ada", "cyn"),
			win("m3", "bea", "cyn"),
		)), ShouldBeNil)

		Convey("Elo and win counts agree on the order", func() {
			d, err := s.CompareMethods(ctx, types.MethodElo, types.MethodWDL, metric.KendallTau)
			So(err, ShouldBeNil)
			So(d, ShouldEqual, 0)
		})

		Convey("An unknown metric kind is rejected", func() {
			_, err := s.RankDistance(types.Ranking{"a"}, types.Ranking{"a"}, metric.Kind("cosine"))
			So(err, ShouldNotBeNil)
		})
	})
}
