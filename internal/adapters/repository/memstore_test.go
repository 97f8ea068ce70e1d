package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/poprank/internal/domain/rating"
	"github.com/okian/poprank/internal/domain/types"
)

func pop(ratings map[types.AgentID]float64) map[types.AgentID]rating.State {
	out := make(map[types.AgentID]rating.State, len(ratings))
	for id, r := range ratings {
		out[id] = rating.EloState{Rating: r}
	}
	return out
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := NewMemStore()

		Convey("Reads of unknown methods and agents miss cleanly", func() {
			_, err := s.Get(ctx, types.MethodElo, "nobody")
			So(err, ShouldWrap, ErrNotFound)

			population, err := s.Population(ctx, types.MethodElo)
			So(err, ShouldBeNil)
			So(population, ShouldBeEmpty)

			So(s.Count(ctx, types.MethodElo), ShouldEqual, 0)
			So(s.Periods(ctx, types.MethodElo), ShouldBeEmpty)
		})
	})

	Convey("Given committed populations", t, func() {
		s := NewMemStore()
		So(s.Commit(ctx, types.MethodElo, "p1", pop(map[types.AgentID]float64{
			"a": 1510, "b": 1490,
		})), ShouldBeNil)

		Convey("Current state reads back", func() {
			st, err := s.Get(ctx, types.MethodElo, "a")
			So(err, ShouldBeNil)
			So(st.Score(), ShouldEqual, 1510)
			So(s.Count(ctx, types.MethodElo), ShouldEqual, 2)
		})

		Convey("Methods are isolated namespaces", func() {
			_, err := s.Get(ctx, types.MethodGlicko, "a")
			So(err, ShouldWrap, ErrNotFound)
		})

		Convey("A later commit replaces the whole population", func() {
			So(s.Commit(ctx, types.MethodElo, "p2", pop(map[types.AgentID]float64{
				"a": 1520,
			})), ShouldBeNil)
			So(s.Count(ctx, types.MethodElo), ShouldEqual, 1)
			_, err := s.Get(ctx, types.MethodElo, "b")
			So(err, ShouldWrap, ErrNotFound)
		})

		Convey("Period snapshots stay frozen as committed", func() {
			So(s.Commit(ctx, types.MethodElo, "p2", pop(map[types.AgentID]float64{
				"a": 1520,
			})), ShouldBeNil)

			snap, err := s.Snapshot(ctx, types.MethodElo, "p1")
			So(err, ShouldBeNil)
			So(snap["a"].Score(), ShouldEqual, 1510)
			So(s.Periods(ctx, types.MethodElo), ShouldResemble, []string{"p1", "p2"})
		})

		Convey("Unknown snapshots miss", func() {
			_, err := s.Snapshot(ctx, types.MethodElo, "p99")
			So(err, ShouldWrap, ErrNotFound)
		})

		Convey("Returned populations are copies", func() {
			population, err := s.Population(ctx, types.MethodElo)
			So(err, ShouldBeNil)
			population["intruder"] = rating.EloState{Rating: 9000}

			So(s.Count(ctx, types.MethodElo), ShouldEqual, 2)
		})
	})

	Convey("Given a bounded history", t, func() {
		s := NewMemStore(WithHistoryLimit(2))
		for i := 1; i <= 3; i++ {
			name := fmt.Sprintf("p%d", i)
			So(s.Commit(ctx, types.MethodElo, name, pop(map[types.AgentID]float64{
				"a": float64(1500 + i),
			})), ShouldBeNil)
		}

		Convey("Only the newest snapshots survive", func() {
			So(s.Periods(ctx, types.MethodElo), ShouldResemble, []string{"p2", "p3"})
			_, err := s.Snapshot(ctx, types.MethodElo, "p1")
			So(err, ShouldWrap, ErrNotFound)
		})

		Convey("The current population is unaffected by eviction", func() {
			st, err := s.Get(ctx, types.MethodElo, "a")
			So(err, ShouldBeNil)
			So(st.Score(), ShouldEqual, 1503)
		})
	})

	Convey("Given history disabled", t, func() {
		s := NewMemStore(WithHistoryLimit(0))
		So(s.Commit(ctx, types.MethodElo, "p1", pop(map[types.AgentID]float64{"a": 1500})), ShouldBeNil)

		Convey("Commits keep only the current population", func() {
			So(s.Periods(ctx, types.MethodElo), ShouldBeEmpty)
			_, err := s.Snapshot(ctx, types.MethodElo, "p1")
			So(err, ShouldWrap, ErrNotFound)
			So(s.Count(ctx, types.MethodElo), ShouldEqual, 1)
		})
	})

	Convey("Given concurrent committers and readers", t, func() {
		s := NewMemStore()
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					name := fmt.Sprintf("w%d-p%d", w, i)
					_ = s.Commit(ctx, types.MethodElo, name, pop(map[types.AgentID]float64{"a": 1500}))
					_, _ = s.Population(ctx, types.MethodElo)
					_, _ = s.Get(ctx, types.MethodElo, "a")
				}
			}(w)
		}
		wg.Wait()

		Convey("The store stays consistent", func() {
			So(s.Count(ctx, types.MethodElo), ShouldEqual, 1)
		})
	})

	Convey("Given a canceled context", t, func() {
		s := NewMemStore()
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Operations fail fast", func() {
			So(s.Commit(canceled, types.MethodElo, "p", nil), ShouldNotBeNil)
			_, err := s.Get(canceled, types.MethodElo, "a")
			So(err, ShouldNotBeNil)
		})
	})
}
