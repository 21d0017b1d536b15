package stats

import "sort"

// Histogram is the dense latency distribution: a count per microsecond
// value between the observed min and max RTT, inclusive. Storage is a
// sparse map keyed by microsecond value rather than a literal []uint64
// spanning [min,max] — for a long run with a wide RTT range a literal
// array would be wastefully large, and percentile selection only needs
// the buckets in increasing order with their counts, which a sorted
// map gives identically.
type Histogram struct {
	counts map[int64]uint64
	min    int64
	max    int64
	n      uint64
}

// NewHistogram returns an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[int64]uint64)}
}

// Record adds one RTT sample, in microseconds.
func (h *Histogram) Record(us int64) {
	if h.n == 0 {
		h.min, h.max = us, us
	} else {
		if us < h.min {
			h.min = us
		}
		if us > h.max {
			h.max = us
		}
	}
	h.counts[us]++
	h.n++
}

// Merge folds another histogram's samples into this one (used by the
// Orchestrator to reduce per-Worker histograms).
func (h *Histogram) Merge(other *Histogram) {
	for us, c := range other.counts {
		if h.n == 0 {
			h.min, h.max = us, us
		} else {
			if us < h.min {
				h.min = us
			}
			if us > h.max {
				h.max = us
			}
		}
		h.counts[us] += c
		h.n += c
	}
}

// Count returns the total number of recorded samples.
func (h *Histogram) Count() uint64 { return h.n }

// Min and Max return the observed RTT bounds in microseconds. Both are
// zero on an empty histogram.
func (h *Histogram) Min() int64 { return h.min }
func (h *Histogram) Max() int64 { return h.max }

func (h *Histogram) sortedKeys() []int64 {
	keys := make([]int64, 0, len(h.counts))
	for us := range h.counts {
		keys = append(keys, us)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Percentile returns the RTT, in microseconds, at rank ceil((p/100)*N)
// of the cumulative distribution, per the report contract. p is in
// (0,100]. Returns 0 on an empty histogram.
func (h *Histogram) Percentile(p float64) int64 {
	if h.n == 0 {
		return 0
	}
	rank := ceilDiv(p*float64(h.n), 100)
	if rank < 1 {
		rank = 1
	}
	var cum uint64
	for _, us := range h.sortedKeys() {
		cum += h.counts[us]
		if cum >= uint64(rank) {
			return us
		}
	}
	return h.max
}

func ceilDiv(num float64, den float64) int64 {
	v := num / den
	i := int64(v)
	if float64(i) < v {
		i++
	}
	return i
}

// WithinSD returns the percentage of samples whose value falls within
// [mean-sd, mean+sd], inclusive.
func (h *Histogram) WithinSD(mean, sd float64) float64 {
	if h.n == 0 {
		return 0
	}
	lo := mean - sd
	hi := mean + sd
	var within uint64
	for us, c := range h.counts {
		v := float64(us)
		if v >= lo && v <= hi {
			within += c
		}
	}
	return 100 * float64(within) / float64(h.n)
}
