package stats

import (
	"fmt"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/sirupsen/logrus"
)

// maxRTTMicros bounds the interval histogram's range: one day in
// microseconds, comfortably larger than any sane request timeout.
const maxRTTMicros = 24 * 60 * 60 * 1000000

// IntervalReporter prints a one-line periodic summary ("L: p95 p99")
// to logrus at debug level, in the style of BuoyantIO-strest-grpc's
// logIntervalReport/logFinalReport. It is purely additive convenience
// output driven off the live RTT stream; the authoritative report
// comes from the dense Histogram in Reducer.Finish.
type IntervalReporter struct {
	log    *logrus.Logger
	hist   *hdrhistogram.Histogram
	good   uint64
	bad    uint64
	bytes  uint64
	min    int64
	max    int64
}

// NewIntervalReporter returns a reporter writing to log.
func NewIntervalReporter(log *logrus.Logger) *IntervalReporter {
	return &IntervalReporter{
		log:  log,
		hist: hdrhistogram.New(0, maxRTTMicros, 3),
	}
}

// Observe folds one completed request's outcome into the current
// interval window.
func (r *IntervalReporter) Observe(success bool, rttMicros int64, bodyBytes uint64) {
	if success {
		r.good++
		r.bytes += bodyBytes
		r.hist.RecordValue(rttMicros)
		if r.min == 0 || rttMicros < r.min {
			r.min = rttMicros
		}
		if rttMicros > r.max {
			r.max = rttMicros
		}
	} else {
		r.bad++
	}
}

// Flush logs the current window's summary and resets it.
func (r *IntervalReporter) Flush(now time.Time, interval time.Duration) {
	r.log.Debugf("%s %7s %6d/%d %s L: %3dus [p95 %3dus p99 %3dus] max %dus",
		now.Format(time.RFC3339),
		formatBytes(r.bytes),
		r.good, r.bad,
		interval,
		r.min,
		r.hist.ValueAtQuantile(95),
		r.hist.ValueAtQuantile(99),
		r.max,
	)
	r.good, r.bad, r.bytes, r.min, r.max = 0, 0, 0, 0, 0
	r.hist.Reset()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for nn := n / unit; nn >= unit; nn /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGT"[exp])
}
