package rating_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/poprank/internal/domain/model"
	rating "github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

func TestWDL(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mixed set of pairwise results", t, func() {
		w := rating.NewWDL()
		next, err := w.Update(ctx, nil, testPeriod(
			game("a", "b", 1),
			game("a", "b", 0.5),
			game("b", "a", 1),
		))
		So(err, ShouldBeNil)

		Convey("Records tally per agent", func() {
			a := next["a"].(rating.WDLState)
			So(a.Wins, ShouldEqual, 1)
			So(a.Draws, ShouldEqual, 1)
			So(a.Losses, ShouldEqual, 1)
		})

		Convey("Scores follow the 1/0.5/0 convention and custom point schemes", func() {
			a := next["a"].(rating.WDLState)
			So(a.Score(), ShouldAlmostEqual, 1.5)
			So(a.Points(3, 1, 0), ShouldAlmostEqual, 4)
		})
	})

	Convey("Given a free-for-all outcome", t, func() {
		w := rating.NewWDL()
		o, err := model.NewOutcome("ffa", []model.Participant{
			{AgentID: "gold", Score: 3},
			{AgentID: "silver", Score: 2},
			{AgentID: "bronze", Score: 1},
		}, time.Now())
		So(err, ShouldBeNil)

		next, err := w.Update(ctx, nil, testPeriod(o))
		So(err, ShouldBeNil)

		Convey("Only the top placement wins, the rest lose", func() {
			So(next["gold"].(rating.WDLState).Wins, ShouldEqual, 1)
			So(next["silver"].(rating.WDLState).Losses, ShouldEqual, 1)
			So(next["bronze"].(rating.WDLState).Losses, ShouldEqual, 1)
		})
	})

	Convey("Given a shared top score", t, func() {
		w := rating.NewWDL()
		o, err := model.NewOutcome("tie", []model.Participant{
			{AgentID: "x", Score: 2},
			{AgentID: "y", Score: 2},
			{AgentID: "z", Score: 0},
		}, time.Now())
		So(err, ShouldBeNil)

		next, err := w.Update(ctx, nil, testPeriod(o))
		So(err, ShouldBeNil)

		Convey("The leaders draw and the trailer loses", func() {
			So(next["x"].(rating.WDLState).Draws, ShouldEqual, 1)
			So(next["y"].(rating.WDLState).Draws, ShouldEqual, 1)
			So(next["z"].(rating.WDLState).Losses, ShouldEqual, 1)
		})
	})

	Convey("Given prior records", t, func() {
		w := rating.NewWDL()
		prior := map[types.AgentID]rating.State{
			"a": rating.WDLState{Wins: 5, Losses: 2},
		}

		Convey("New results accumulate on top", func() {
			next, err := w.Update(ctx, prior, testPeriod(game("a", "b", 1)))
			So(err, ShouldBeNil)
			So(next["a"].(rating.WDLState).Wins, ShouldEqual, 6)
			So(next["a"].(rating.WDLState).Losses, ShouldEqual, 2)
		})
	})
}
