package rating

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// The Gaussian factor-graph machinery behind the TrueSkill rater: belief
// propagation over skill, performance and team-difference variables with a
// truncated-Gaussian correction at the observed outcome.

// gaussian is a Gaussian in precision form: pi is the precision (inverse
// variance) and tau the precision-adjusted mean. The zero value is the
// non-informative prior.
type gaussian struct {
	pi  float64
	tau float64
}

func newGaussian(mu, sigma float64) gaussian {
	pi := 1 / (sigma * sigma)
	return gaussian{pi: pi, tau: pi * mu}
}

func (g gaussian) mu() float64 {
	if g.pi == 0 {
		return 0
	}
	return g.tau / g.pi
}

func (g gaussian) sigma() float64 {
	if g.pi == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(1 / g.pi)
}

func (g gaussian) mul(o gaussian) gaussian {
	return gaussian{pi: g.pi + o.pi, tau: g.tau + o.tau}
}

func (g gaussian) div(o gaussian) gaussian {
	return gaussian{pi: g.pi - o.pi, tau: g.tau - o.tau}
}

// variable is a node in the factor graph holding the current marginal and
// the last message received from each attached factor.
type variable struct {
	gaussian
	messages map[factor]gaussian
}

func newVariable() *variable {
	return &variable{messages: make(map[factor]gaussian)}
}

// delta measures the belief shift caused by replacing the marginal,
// the quantity the convergence loop watches.
func (v *variable) delta(o gaussian) float64 {
	piDelta := math.Abs(v.pi - o.pi)
	if math.IsInf(piDelta, 1) {
		return 0
	}
	return math.Max(math.Abs(v.tau-o.tau), math.Sqrt(piDelta))
}

func (v *variable) set(o gaussian) float64 {
	d := v.delta(o)
	v.gaussian = o
	return d
}

func (v *variable) updateMessage(f factor, msg gaussian) float64 {
	old := v.messages[f]
	v.messages[f] = msg
	return v.set(v.div(old).mul(msg))
}

func (v *variable) updateValue(f factor, value gaussian) float64 {
	old := v.messages[f]
	v.messages[f] = value.mul(old).div(v.gaussian)
	return v.set(value)
}

// factor is a node coupling one or more variables. Concrete factors are
// compared by pointer identity when used as message keys.
type factor interface {
	isFactor()
}

type factorBase struct{}

func (*factorBase) isFactor() {}

func attach(f factor, vars ...*variable) {
	for _, v := range vars {
		v.messages[f] = gaussian{}
	}
}

// priorFactor anchors a skill variable to its prior rating, inflated by
// the dynamics variance.
type priorFactor struct {
	factorBase
	v       *variable
	rating  gaussian
	dynamic float64
}

func newPriorFactor(v *variable, mu, sigma, dynamic float64) *priorFactor {
	f := &priorFactor{v: v, rating: newGaussian(mu, sigma), dynamic: dynamic}
	attach(f, v)
	return f
}

func (f *priorFactor) down() float64 {
	sigma := math.Sqrt(1/f.rating.pi + f.dynamic*f.dynamic)
	return f.v.updateValue(f, newGaussian(f.rating.mu(), sigma))
}

// likelihoodFactor couples a skill variable to a performance variable
// through the per-game noise beta^2.
type likelihoodFactor struct {
	factorBase
	mean     *variable
	value    *variable
	variance float64
}

func newLikelihoodFactor(mean, value *variable, variance float64) *likelihoodFactor {
	f := &likelihoodFactor{mean: mean, value: value, variance: variance}
	attach(f, mean, value)
	return f
}

func (f *likelihoodFactor) down() float64 {
	msg := f.mean.div(f.mean.messages[f])
	a := 1 / (1 + f.variance*msg.pi)
	return f.value.updateMessage(f, gaussian{pi: a * msg.pi, tau: a * msg.tau})
}

func (f *likelihoodFactor) up() float64 {
	msg := f.value.div(f.value.messages[f])
	a := 1 / (1 + f.variance*msg.pi)
	return f.mean.updateMessage(f, gaussian{pi: a * msg.pi, tau: a * msg.tau})
}

// sumFactor constrains a variable to a weighted sum of its terms; with
// weights {1, -1} it expresses a performance difference.
type sumFactor struct {
	factorBase
	sum     *variable
	terms   []*variable
	weights []float64
}

func newSumFactor(sum *variable, terms []*variable, weights []float64) *sumFactor {
	f := &sumFactor{sum: sum, terms: terms, weights: weights}
	attach(f, sum)
	attach(f, terms...)
	return f
}

func (f *sumFactor) update(target *variable, values []*variable, weights []float64) float64 {
	var piInv, mu float64
	for i, value := range values {
		div := value.div(value.messages[f])
		mu += weights[i] * div.mu()
		if math.IsInf(piInv, 1) {
			continue
		}
		if div.pi == 0 {
			piInv = math.Inf(1)
			continue
		}
		piInv += weights[i] * weights[i] / div.pi
	}
	pi := 1 / piInv
	return target.updateMessage(f, gaussian{pi: pi, tau: pi * mu})
}

func (f *sumFactor) down() float64 {
	return f.update(f.sum, f.terms, f.weights)
}

func (f *sumFactor) up(index int) float64 {
	weight := f.weights[index]
	weights := make([]float64, len(f.weights))
	for i, w := range f.weights {
		switch {
		case weight == 0:
			weights[i] = 0
		case i == index:
			weights[i] = 1 / weight
		default:
			weights[i] = -w / weight
		}
	}
	values := make([]*variable, len(f.terms))
	copy(values, f.terms)
	values[index] = f.sum
	return f.update(f.terms[index], values, weights)
}

// truncateFactor applies the greater-than (or within-draw-margin)
// correction at the observed outcome.
type truncateFactor struct {
	factorBase
	v      *variable
	vFunc  func(diff, margin float64) float64
	wFunc  func(diff, margin float64) float64
	margin float64
}

func newTruncateFactor(v *variable, vFunc, wFunc func(diff, margin float64) float64, margin float64) *truncateFactor {
	f := &truncateFactor{v: v, vFunc: vFunc, wFunc: wFunc, margin: margin}
	attach(f, v)
	return f
}

func (f *truncateFactor) up() float64 {
	div := f.v.div(f.v.messages[f])
	sqrtPi := math.Sqrt(div.pi)
	diff := div.tau / sqrtPi
	margin := f.margin * sqrtPi

	v := f.vFunc(diff, margin)
	w := f.wFunc(diff, margin)
	// Guard against total certainty driving the correction out of range.
	w = math.Min(math.Max(w, 1e-10), 1-1e-10)

	denom := 1 - w
	pi := div.pi / denom
	tau := (div.tau + sqrtPi*v) / denom
	return f.v.updateValue(f, gaussian{pi: pi, tau: tau})
}

// vWin and wWin are the additive and multiplicative truncated-Gaussian
// corrections for a decisive result; vDraw and wDraw the versions for a
// result inside the draw margin.

func vWin(diff, margin float64) float64 {
	x := diff - margin
	denom := distuv.UnitNormal.CDF(x)
	if denom == 0 {
		return -x
	}
	return distuv.UnitNormal.Prob(x) / denom
}

func wWin(diff, margin float64) float64 {
	v := vWin(diff, margin)
	return v * (v + diff - margin)
}

func vDraw(diff, margin float64) float64 {
	absDiff := math.Abs(diff)
	a, b := margin-absDiff, -margin-absDiff
	denom := distuv.UnitNormal.CDF(a) - distuv.UnitNormal.CDF(b)
	sign := 1.0
	if diff < 0 {
		sign = -1
	}
	if denom == 0 {
		return a * sign
	}
	return (distuv.UnitNormal.Prob(b) - distuv.UnitNormal.Prob(a)) / denom * sign
}

func wDraw(diff, margin float64) float64 {
	absDiff := math.Abs(diff)
	a, b := margin-absDiff, -margin-absDiff
	denom := distuv.UnitNormal.CDF(a) - distuv.UnitNormal.CDF(b)
	if denom == 0 {
		return 1
	}
	v := vDraw(absDiff, margin)
	return v*v + (a*distuv.UnitNormal.Prob(a)-b*distuv.UnitNormal.Prob(b))/denom
}
