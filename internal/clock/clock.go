// Package clock provides an injectable source of time, used throughout the
// core for atime/mtime stamping and for the journal apply worker's head-poll
// timer, so that tests can drive time deterministically instead of sleeping.
package clock

import "time"

// Clock is the interface satisfied by RealClock, FakeClock and
// SimulatedClock. The core never calls time.Now or time.After directly;
// every component that needs wall time receives a Clock at construction.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = &FakeClock{}
	_ Clock = &SimulatedClock{}
)
