// Package clock abstracts time for the pool reaper, token expiry checks
// and the periodic cleanup tasks, so tests can drive timers without
// real wall-clock waits.
package clock

import "time"

// Clock provides the subset of the time package the service uses.
// Production code injects Real(); tests inject a Fake.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once the
	// duration has elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a ticker delivering on C every d. Call Stop
	// when done.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C, call Stop to
// release it. Stop does not close C.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off.
func (t *Ticker) Stop() { t.stop() }

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
