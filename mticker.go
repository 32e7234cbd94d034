package main

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// mTicker is one ticker shared by every connection writer; each tick asks the
// writers to ping their peer.
type mTicker struct {
	mux         sync.Mutex // Protects subscribers and stopped
	subscribers subscribers
	stopped     bool

	ticker clockwork.Ticker
	stopCh chan struct{}
}

type subscribers map[*subscriber]struct{}

type subscriber struct {
	tick chan time.Time
}

// newMTicker creates and starts a ticker that fans ticks out to its
// subscribers.
func newMTicker(clock clockwork.Clock, interval time.Duration) *mTicker {
	t := &mTicker{
		subscribers: make(subscribers),
		ticker:      clock.NewTicker(interval),
		stopCh:      make(chan struct{}),
	}
	go t.run()
	return t
}

// subscribe returns a subscriber whose channel receives ticks. Ticks that
// can't be delivered because the subscriber is not ready are discarded.
func (t *mTicker) subscribe() *subscriber {
	t.mux.Lock()
	defer t.mux.Unlock()

	sub := &subscriber{tick: make(chan time.Time, 1)}
	if t.stopped {
		close(sub.tick)
		return sub
	}
	t.subscribers[sub] = struct{}{}
	return sub
}

func (t *mTicker) unsubscribe(sub *subscriber) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, ok := t.subscribers[sub]; !ok {
		return
	}
	close(sub.tick)
	delete(t.subscribers, sub)
}

// stop stops the ticker and closes every subscribed channel.
func (t *mTicker) stop() {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	for sub := range t.subscribers {
		close(sub.tick)
		delete(t.subscribers, sub)
	}
	t.ticker.Stop()
	close(t.stopCh)
}

func (t *mTicker) size() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.subscribers)
}

func (t *mTicker) run() {
	for {
		select {
		case tick := <-t.ticker.Chan():
			t.mux.Lock()
			for sub := range t.subscribers {
				select {
				case sub.tick <- tick:
				default:
					mark("pings.dropped", 1)
				}
			}
			t.mux.Unlock()
		case <-t.stopCh:
			return
		}
	}
}
