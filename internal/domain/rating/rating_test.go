package rating_test

import (
	"fmt"
	"time"

	"github.com/okian/poprank/internal/domain/model"
	"github.com/okian/poprank/internal/domain/types"
)

var outcomeSeq int

// game builds a pairwise outcome with a's score given.
func game(a, b types.AgentID, scoreA float64) model.Outcome {
	outcomeSeq++
	o, err := model.NewOutcome(fmt.Sprintf("test-%d", outcomeSeq), []model.Participant{
		{AgentID: a, Score: scoreA},
		{AgentID: b, Score: 1 - scoreA},
	}, time.Now())
	if err != nil {
		panic(err)
	}
	return o
}

func testPeriod(outcomes ...model.Outcome) model.RatingPeriod {
	p, err := model.NewRatingPeriod("test-period", outcomes)
	if err != nil {
		panic(err)
	}
	return p
}
