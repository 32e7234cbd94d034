package main

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// throttle is a trailing-edge rate limiter around action. The first call in a
// cold window fires synchronously; calls inside the window collapse into a
// single deferred fire carrying the most recent args.
//
// A throttle is not safe for concurrent use. Deferred fires are handed to
// post, which must run them on the goroutine that makes the calls.
type throttle[T any] struct {
	clock    clockwork.Clock
	interval time.Duration
	action   func(T)
	post     func(func())

	fired    bool
	lastFire time.Time

	timer   clockwork.Timer
	gen     uint64
	pending T
}

func newThrottle[T any](clock clockwork.Clock, interval time.Duration, action func(T), post func(func())) *throttle[T] {
	return &throttle[T]{
		clock:    clock,
		interval: interval,
		action:   action,
		post:     post,
	}
}

func (t *throttle[T]) call(args T) {
	now := t.clock.Now()
	if !t.fired || (t.timer == nil && now.Sub(t.lastFire) >= t.interval) {
		t.fire(args, now)
		return
	}
	t.pending = args
	t.schedule(t.interval - now.Sub(t.lastFire))
	mark("relay.deferred", 1)
}

// schedule replaces any outstanding timer with one that fires after d.
func (t *throttle[T]) schedule(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() {
		t.post(func() { t.expire(gen) })
	})
}

func (t *throttle[T]) expire(gen uint64) {
	// A newer call replaced this timer after its callback was queued.
	if gen != t.gen || t.timer == nil {
		return
	}
	now := t.clock.Now()
	if elapsed := now.Sub(t.lastFire); elapsed < t.interval {
		t.schedule(t.interval - elapsed)
		return
	}
	t.timer = nil
	args := t.pending
	var zero T
	t.pending = zero
	t.fire(args, now)
}

func (t *throttle[T]) fire(args T, now time.Time) {
	t.fired = true
	t.lastFire = now
	mark("relay.fires", 1)
	t.action(args)
}

// stop cancels the pending fire, if any. The throttle stays usable.
func (t *throttle[T]) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	var zero T
	t.pending = zero
}

// pendingFire reports whether a deferred fire is outstanding.
func (t *throttle[T]) pendingFire() bool {
	return t.timer != nil
}
