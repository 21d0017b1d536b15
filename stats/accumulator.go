// Package stats implements the Stats Accumulator (C1): append-only
// per-worker sample collection, and the end-of-run reduction that turns
// those samples into the summary report.
package stats

import "time"

// RequestStat records the lifecycle timestamps of one completed
// request/stream.
type RequestStat struct {
	RequestTime     time.Time
	WallRequestTime time.Time
	StreamCloseTime time.Time
	TTFB            time.Time
	Status          int
	Completed       bool
}

// Duration returns StreamCloseTime - RequestTime, the request's RTT.
func (r RequestStat) Duration() time.Duration {
	return r.StreamCloseTime.Sub(r.RequestTime)
}

// TTFBDuration returns TTFB - RequestTime, zero if TTFB was never recorded.
func (r RequestStat) TTFBDuration() time.Duration {
	if r.TTFB.IsZero() {
		return 0
	}
	return r.TTFB.Sub(r.RequestTime)
}

// ClientStat records one Client's connection lifecycle.
type ClientStat struct {
	ClientStartTime  time.Time
	ClientEndTime    time.Time
	ConnectStartTime time.Time
	ConnectTime      time.Time
	TTFB             time.Time
	ReqSuccess       uint64
}

// ConnectDuration returns ConnectTime - ConnectStartTime.
func (c ClientStat) ConnectDuration() time.Duration {
	if c.ConnectTime.IsZero() || c.ConnectStartTime.IsZero() {
		return 0
	}
	return c.ConnectTime.Sub(c.ConnectStartTime)
}

// RequestsPerSecond returns ReqSuccess / lifetime, 0 if the lifetime
// couldn't be computed.
func (c ClientStat) RequestsPerSecond() float64 {
	if c.ClientEndTime.IsZero() || c.ClientStartTime.IsZero() {
		return 0
	}
	elapsed := c.ClientEndTime.Sub(c.ClientStartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.ReqSuccess) / elapsed
}

// StatusBuckets classifies responses. HTTP indices 0..4 correspond to
// status classes 1xx..5xx; Bolt is indexed by raw BOLT response status
// code.
type StatusBuckets struct {
	HTTP [5]uint64
	Bolt map[uint16]uint64
}

func newStatusBuckets() StatusBuckets {
	return StatusBuckets{Bolt: make(map[uint16]uint64)}
}

// IncHTTPClass increments the bucket for a status code's class (1-5).
// Codes outside 100-599 are ignored (nothing to classify).
func (s *StatusBuckets) IncHTTPClass(code int) {
	class := code / 100
	if class < 1 || class > 5 {
		return
	}
	s.HTTP[class-1]++
}

// IncBolt increments the bucket for a raw BOLT status code.
func (s *StatusBuckets) IncBolt(code uint16) {
	if s.Bolt == nil {
		s.Bolt = make(map[uint16]uint64)
	}
	s.Bolt[code]++
}

func (s *StatusBuckets) merge(other StatusBuckets) {
	for i := range s.HTTP {
		s.HTTP[i] += other.HTTP[i]
	}
	if s.Bolt == nil {
		s.Bolt = make(map[uint16]uint64)
	}
	for code, c := range other.Bolt {
		s.Bolt[code] += c
	}
}

// Accumulator is the per-worker append-only sample store. It is owned
// exclusively by one Worker goroutine, so it needs no internal locking.
type Accumulator struct {
	ReqStats    []RequestStat
	ClientStats []ClientStat
	RTT         *Histogram
	Status      StatusBuckets

	ReqStarted uint64
	ReqDone    uint64
	ReqSuccess uint64 // stream closed cleanly at the transport level

	// ReqStatusSuccess counts only the subset of ReqSuccess whose
	// application-level status was also successful (HTTP 2xx/3xx, BOLT
	// StatusSuccess); a 4xx/5xx or non-success BOLT status still closes
	// the stream cleanly but doesn't count here.
	ReqStatusSuccess uint64

	ReqFailed   uint64
	ReqError    uint64
	ReqTimedOut uint64
	TotalBytes  uint64
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		RTT:    NewHistogram(),
		Status: newStatusBuckets(),
	}
}

// RecordRequest appends a completed request's stat and folds its RTT
// into the histogram when it completed successfully.
func (a *Accumulator) RecordRequest(rs RequestStat) {
	a.ReqStats = append(a.ReqStats, rs)
	if rs.Completed {
		a.RTT.Record(rs.Duration().Microseconds())
	}
}

// RecordClient appends a disconnected Client's lifetime stat.
func (a *Accumulator) RecordClient(cs ClientStat) {
	a.ClientStats = append(a.ClientStats, cs)
}
