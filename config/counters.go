package config

import (
	"math"
	"sync/atomic"
)

// Counters holds the two process-wide atomics that are the only
// mutable state shared across Workers: a single controller object,
// owned by the Orchestrator and passed by reference to each Worker.
type Counters struct {
	totalReqLeft int64
	totalReqSent uint64
}

// NewCounters seeds totalReqLeft at n (the effective request budget in
// count mode; see ResolveNreqs for timing-mode overrides). Values above
// math.MaxInt64 saturate there.
func NewCounters(n uint64) *Counters {
	if n > math.MaxInt64 {
		n = math.MaxInt64
	}
	return &Counters{totalReqLeft: int64(n)}
}

// TryTake attempts to decrement totalReqLeft by one, returning false
// once it has reached zero. Acquire/release semantics are sufficient
// for monotonic decrement and zero-observation across Workers.
func (c *Counters) TryTake() bool {
	for {
		left := atomic.LoadInt64(&c.totalReqLeft)
		if left <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&c.totalReqLeft, left, left-1) {
			return true
		}
	}
}

// Left reports the current budget with an atomic load. Clients and
// Workers use it to decide whether to submit a replacement, redial, or
// finish the run.
func (c *Counters) Left() int64 { return atomic.LoadInt64(&c.totalReqLeft) }

// Zero forces the budget to zero, used by the duration timer to cancel
// the entire workload once its time budget expires.
func (c *Counters) Zero() { atomic.StoreInt64(&c.totalReqLeft, 0) }

// Sent increments and returns the new total_req_sent.
func (c *Counters) Sent() uint64 { return atomic.AddUint64(&c.totalReqSent, 1) }

// SentCount reads total_req_sent.
func (c *Counters) SentCount() uint64 { return atomic.LoadUint64(&c.totalReqSent) }
