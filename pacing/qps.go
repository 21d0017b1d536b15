package pacing

import "math/rand"

// SlotsPerSecond is the QPS token-refill granularity: a tick every 5ms,
// 1000/5 = 200 slots per second.
const SlotsPerSecond = 1000 / 5

// Submitter is the narrow interface a blocked Client exposes to the
// QPSController so it can be re-driven once budget is available.
type Submitter interface {
	SubmitRequest() error
}

// QPSController implements the QPS pacing discipline: a token budget
// (qpsLeft) refilled every 5ms from a precomputed 200-slot array, with
// excess submission attempts parked on a LIFO queue and drained on
// each refill.
type QPSController struct {
	qpsLeft int64
	slots   []uint64
	slotIdx int
	blocked []Submitter
}

// NewQPSController builds the 200-slot array for a worker's qps share,
// assigning each of the share's tokens to a uniformly random slot so
// refills stay smooth across the second rather than bursting at slot 0.
// A share of 0 yields an all-zero slot array (no tokens ever refill, so
// every submission blocks).
func NewQPSController(share uint64) *QPSController {
	slots := make([]uint64, SlotsPerSecond)
	for i := uint64(0); i < share; i++ {
		slots[rand.Intn(SlotsPerSecond)]++
	}
	return &QPSController{slots: slots}
}

// Tick refills qpsLeft from the current slot and advances the index,
// called once every 5ms by the owning Worker.
func (q *QPSController) Tick() {
	q.qpsLeft += int64(q.slots[q.slotIdx])
	q.slotIdx = (q.slotIdx + 1) % len(q.slots)
}

// TryAcquire consumes one token if available.
func (q *QPSController) TryAcquire() bool {
	if q.qpsLeft <= 0 {
		return false
	}
	q.qpsLeft--
	return true
}

// QPSLeft reports the current token budget (for tests/introspection).
func (q *QPSController) QPSLeft() int64 { return q.qpsLeft }

// Block parks a Client that failed to acquire a token, pushed onto the
// LIFO queue.
func (q *QPSController) Block(s Submitter) {
	q.blocked = append(q.blocked, s)
}

// DrainBlocked re-attempts submission for blocked Clients in LIFO
// order, popping and resubmitting each while budget remains.
func (q *QPSController) DrainBlocked() {
	for q.qpsLeft > 0 && len(q.blocked) > 0 {
		n := len(q.blocked)
		s := q.blocked[n-1]
		q.blocked = q.blocked[:n-1]
		s.SubmitRequest()
	}
}

// BlockedLen reports how many Clients are currently parked (tests).
func (q *QPSController) BlockedLen() int { return len(q.blocked) }
