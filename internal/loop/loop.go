// Package loop provides the single-threaded cooperative scheduler every
// popup callback runs on.
//
// Two implementations exist:
//   - Virtual: deterministic clock driven by the caller (tests, simulator)
//   - EventLoop: a real goroutine loop fed by wall-clock timers
//
// The browser host supplies its own implementation backed by setTimeout.
package loop

import "time"

// Loop schedules callbacks. Implementations never run two callbacks at the
// same time, and never run a callback synchronously inside Post/AfterFunc.
type Loop interface {
	Now() time.Time
	// Post runs fn on the next turn of the loop.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed. d <= 0 behaves like Post.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a handle to a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer (false if it already ran or was stopped).
	Stop() bool
}

// StopTimer stops t if it is non-nil.
func StopTimer(t Timer) {
	if t != nil {
		t.Stop()
	}
}
