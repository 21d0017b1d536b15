package stats

import (
	"math"
	"strconv"
)

// Summary is the {min,max,mean,sd,within_sd} shape reported for each
// of the four aggregate timings.
type Summary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	WithinSD float64 `json:"withinSd"`
}

// Samples accumulates a plain sequence of float64 observations (request
// time, connect time, ttfb, or per-client RPS) and reduces them to a
// Summary. Unlike Histogram, samples here are never bucketed by integer
// microsecond — they're few enough per run (one per request/client) that
// retaining them verbatim is cheap and lets WithinSD be computed exactly.
type Samples struct {
	values []float64
}

// NewSamples returns an empty Samples collector.
func NewSamples() *Samples { return &Samples{} }

// Add records one observation.
func (s *Samples) Add(v float64) {
	s.values = append(s.values, v)
}

// Merge appends another Samples' observations into this one.
func (s *Samples) Merge(other *Samples) {
	s.values = append(s.values, other.values...)
}

// Summarize reduces the collected observations to a Summary. Returns
// the zero Summary if no observations were recorded. sampleVariance
// selects Bessel's correction (n-1 divisor) over the default
// population variance (n divisor).
func (s *Samples) Summarize(sampleVariance bool) Summary {
	if len(s.values) == 0 {
		return Summary{}
	}

	w := NewWelford(sampleVariance)
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range s.values {
		w.Add(v)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	mean, sd := w.Mean(), w.SD()
	lo, hi := mean-sd, mean+sd
	var within int
	for _, v := range s.values {
		if v >= lo && v <= hi {
			within++
		}
	}

	return Summary{
		Min:      min,
		Max:      max,
		Mean:     mean,
		SD:       sd,
		WithinSD: 100 * float64(within) / float64(len(s.values)),
	}
}

// PercentileSet computes Percentile(p) for each p in percentiles,
// keyed by the stringified percentile (e.g. "50", "99.9").
func PercentileSet(h *Histogram, percentiles []float64) map[string]int64 {
	out := make(map[string]int64, len(percentiles))
	for _, p := range percentiles {
		out[formatPercentile(p)] = h.Percentile(p)
	}
	return out
}

func formatPercentile(p float64) string {
	if p == math.Trunc(p) {
		return strconv.FormatInt(int64(p), 10)
	}
	return strconv.FormatFloat(p, 'g', -1, 64)
}
