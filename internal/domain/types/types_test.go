package types_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	types "github.com/okian/poprank/internal/domain/types"
)

func TestMethod(t *testing.T) {
	Convey("Given algorithm method names", t, func() {
		Convey("All known variants validate", func() {
			for _, m := range []types.Method{
				types.MethodElo, types.MethodWDL, types.MethodGlicko,
				types.MethodGlicko2, types.MethodTrueSkill, types.MethodBayesElo,
			} {
				So(m.Valid(), ShouldBeTrue)
			}
		})

		Convey("Unknown names do not", func() {
			So(types.Method("chessmetrics").Valid(), ShouldBeFalse)
			So(types.Method("").Valid(), ShouldBeFalse)
		})
	})
}

func TestRanking(t *testing.T) {
	Convey("Given an ordered ranking", t, func() {
		r := types.Ranking{"gold", "silver", "bronze"}

		Convey("Position maps each agent to its 1-based place", func() {
			pos := r.Position()
			So(pos["gold"], ShouldEqual, 1)
			So(pos["bronze"], ShouldEqual, 3)
			So(pos, ShouldHaveLength, 3)
		})
	})
}
