package stats

import "math"

// Welford computes a running mean and variance with Welford's online
// algorithm, avoiding the numerical instability of a naive sum-of-
// squares approach over long-running load tests.
type Welford struct {
	n      int64
	mean   float64
	m2     float64
	sample bool // sample variance (n-1) instead of population (n)
}

// NewWelford returns an accumulator. When sample is true, SD() and
// Variance() use Bessel's correction (n-1); the default is population
// variance (sample=false).
func NewWelford(sample bool) *Welford {
	return &Welford{sample: sample}
}

// Add folds one observation into the running statistics.
func (w *Welford) Add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// Count returns the number of observations folded in so far.
func (w *Welford) Count() int64 { return w.n }

// Mean returns the running mean (0 if no observations yet).
func (w *Welford) Mean() float64 { return w.mean }

// Variance returns the population (or sample, if configured) variance.
func (w *Welford) Variance() float64 {
	if w.n == 0 {
		return 0
	}
	if w.sample {
		if w.n < 2 {
			return 0
		}
		return w.m2 / float64(w.n-1)
	}
	return w.m2 / float64(w.n)
}

// SD returns the standard deviation.
func (w *Welford) SD() float64 {
	return math.Sqrt(w.Variance())
}
