// Package metric implements distances and correlations between rankings.
// Every variant is a pure function of two permutations of the same agent
// set, exposed uniformly behind the Metric interface.
package metric

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/poprank/internal/domain/types"
)

// ErrRankingMismatch reports rankings that are not permutations of the
// same agent set.
var ErrRankingMismatch = errors.New("rankings are not comparable")

// Kind names a rank metric variant.
type Kind string

// Rank metric variants selectable through configuration.
const (
	Hamming     Kind = "hamming"
	KendallTau  Kind = "kendall"
	SpearmanRho Kind = "spearman"
	Footrule    Kind = "footrule"
	Lee         Kind = "lee"
	Max         Kind = "max"
)

// Metric computes a distance or correlation between two rankings.
type Metric interface {
	Kind() Kind
	// Distance fails with ErrRankingMismatch when a and b do not rank
	// the same agents.
	Distance(a, b types.Ranking) (float64, error)
}

// New returns the metric implementation for the given kind.
func New(kind Kind) (Metric, error) {
	switch kind {
	case Hamming:
		return hammingMetric{}, nil
	case KendallTau:
		return kendallMetric{}, nil
	case SpearmanRho:
		return spearmanMetric{}, nil
	case Footrule:
		return footruleMetric{}, nil
	case Lee:
		return leeMetric{}, nil
	case Max:
		return maxMetric{}, nil
	}
	return nil, fmt.Errorf("unknown rank metric %q", kind)
}

// positions validates that a and b are permutations of the same agents and
// returns, for each agent in a's order, its 1-based position in a and b.
func positions(a, b types.Ranking) (x, y []float64, err error) {
	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("%w: lengths %d and %d", ErrRankingMismatch, len(a), len(b))
	}
	posB := b.Position()
	if len(posB) != len(b) {
		return nil, nil, fmt.Errorf("%w: duplicate agent in second ranking", ErrRankingMismatch)
	}
	seen := make(map[types.AgentID]struct{}, len(a))
	x = make([]float64, len(a))
	y = make([]float64, len(a))
	for i, id := range a {
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate agent %q", ErrRankingMismatch, id)
		}
		seen[id] = struct{}{}
		p, ok := posB[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: agent %q missing from second ranking", ErrRankingMismatch, id)
		}
		x[i] = float64(i + 1)
		y[i] = float64(p)
	}
	return x, y, nil
}

type hammingMetric struct{}

func (hammingMetric) Kind() Kind { return Hamming }

// Distance counts positions ranked differently.
func (hammingMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	var d float64
	for i := range x {
		if x[i] != y[i] {
			d++
		}
	}
	return d, nil
}

type kendallMetric struct{}

func (kendallMetric) Kind() Kind { return KendallTau }

// Distance counts pairwise inversions between the two rankings.
func (kendallMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	var inversions float64
	for i := range x {
		for j := i + 1; j < len(x); j++ {
			if (x[i] < x[j] && y[i] > y[j]) || (x[i] > x[j] && y[i] < y[j]) {
				inversions++
			}
		}
	}
	return inversions, nil
}

type spearmanMetric struct{}

func (spearmanMetric) Kind() Kind { return SpearmanRho }

// Distance is the Spearman rank distance: the sum of squared rank
// displacements.
func (spearmanMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	var d float64
	for i := range x {
		d += (x[i] - y[i]) * (x[i] - y[i])
	}
	return d, nil
}

type footruleMetric struct{}

func (footruleMetric) Kind() Kind { return Footrule }

// Distance is Spearman's footrule: the 1-norm of rank displacements.
func (footruleMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	var d float64
	for i := range x {
		d += math.Abs(x[i] - y[i])
	}
	return d, nil
}

type leeMetric struct{}

func (leeMetric) Kind() Kind { return Lee }

// Distance is Lee's rule: displacement measured around the cyclic group of
// order n.
func (leeMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	n := float64(len(x))
	var d float64
	for i := range x {
		abs := math.Abs(x[i] - y[i])
		d += math.Min(abs, n-abs)
	}
	return d, nil
}

type maxMetric struct{}

func (maxMetric) Kind() Kind { return Max }

// Distance is the infinity norm of rank displacements.
func (maxMetric) Distance(a, b types.Ranking) (float64, error) {
	x, y, err := positions(a, b)
	if err != nil {
		return 0, err
	}
	var d float64
	for i := range x {
		d = math.Max(d, math.Abs(x[i]-y[i]))
	}
	return d, nil
}
