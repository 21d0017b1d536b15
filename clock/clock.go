// Package clock provides the monotonic and wall-clock readings used to
// time requests, connections, and streams. Centralizing it here keeps
// the rest of the module from sprinkling time.Now() calls that can't be
// substituted in tests.
package clock

import "time"

// Clock is the timing source a Client/Worker reads from. The default
// implementation wraps time.Now; tests can supply a fake.
type Clock interface {
	// Now returns a monotonic instant suitable for duration arithmetic
	// (Go's time.Time already carries a monotonic reading as long as it
	// comes from time.Now).
	Now() time.Time
}

type realClock struct{}

// Real is the process clock.
var Real Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

// Since is a convenience wrapper equivalent to clock.Now().Sub(t), using
// the supplied Clock rather than the global time package so call sites
// stay testable.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Micros converts a duration to an integer microsecond count, floored,
// never negative (a clock going backwards due to NTP would otherwise
// produce a nonsensical RTT).
func Micros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < 0 {
		return 0
	}
	return us
}

// FakeClock is a manually-advanced Clock for deterministic tests.
type FakeClock struct {
	now time.Time
}

// NewFake returns a FakeClock starting at t.
func NewFake(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (f *FakeClock) Now() time.Time { return f.now }

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}
