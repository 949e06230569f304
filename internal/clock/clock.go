// Package clock abstracts timer scheduling so tests can drive time
// deterministically. Production code injects Real(); tests inject
// NewFake() and call Advance.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// AfterFunc waits for d, then calls f on its own goroutine. The
	// returned Timer cancels the pending call with Stop.
	AfterFunc(d time.Duration, f func()) Timer
	// NewTicker delivers ticks on C at the given interval.
	NewTicker(d time.Duration) Ticker
}

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the timer from firing. Returns false if it already
	// fired or was stopped. Safe to call more than once.
	Stop() bool
}

// Ticker is a periodic tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTimer struct{ t *time.Timer }

func (t realTimer) Stop() bool { return t.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.t.C }
func (t realTicker) Stop()               { t.t.Stop() }
