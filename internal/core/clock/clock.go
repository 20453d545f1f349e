// Package clock abstracts the passage of time so that components which
// schedule work can be driven by a virtual clock in tests.
package clock

import "time"

// Clock is the source of time and deferred callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc schedules f to run once d has elapsed. f runs on its own
	// goroutine for the real clock and on the advancing goroutine for a
	// virtual clock, so it must not assume either.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a callback scheduled with Clock.AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
	// Reset reschedules the callback to fire after d. It returns true if
	// the timer was still pending.
	Reset(d time.Duration) bool
}

// Real is a Clock backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
