package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Now is frozen until Advance moves
// it forward; timers and tickers due within the advanced window fire in
// chronological order. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	ch       chan time.Time
	when     time.Time
	interval time.Duration // 0 for one-shot
	stopped  bool
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), when: f.now.Add(d)}
	f.timers = append(f.timers, t)
	return t.ch
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), when: f.now.Add(d), interval: d}
	f.timers = append(f.timers, t)
	return &Ticker{C: t.ch, stop: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		t.stopped = true
	}}
}

// Advance moves the clock forward by d, firing every timer and ticker
// that comes due, in order. Sends never block: each timer channel has
// capacity one and a tick is dropped if the previous one has not been
// consumed, matching time.Ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range f.timers {
			if t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			break
		}
		f.now = next.when
		select {
		case next.ch <- f.now:
		default:
		}
		if next.interval > 0 {
			next.when = next.when.Add(next.interval)
		} else {
			next.stopped = true
		}
	}
	f.now = target
	live := f.timers[:0]
	for _, t := range f.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	f.timers = live
}
