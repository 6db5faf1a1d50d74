package sender

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ticker emits one cycle-start signal per frame interval, free-running and
// independent of how long the previous cycle took.
//
// The signal channel holds at most one pending tick: if the consumer is
// still busy when the next interval elapses, the new tick is dropped rather
// than queued, so a slow consumer never faces a backlog of stale
// cycle-starts.
type Ticker struct {
	interval time.Duration
	clock    Clock

	c    chan struct{}
	stop chan struct{}
	once sync.Once
}

// NewTicker creates and starts a ticker with the given period.
//
// Parameters:
//   - interval: The tick period (one frame interval)
//   - clock: Time source; SystemClock in production
//
// Returns:
//   - *Ticker: The running ticker
func NewTicker(interval time.Duration, clock Clock) *Ticker {
	t := &Ticker{
		interval: interval,
		clock:    clock,
		c:        make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	go t.loop()

	logrus.WithFields(logrus.Fields{
		"function": "NewTicker",
		"interval": interval,
	}).Info("Cycle ticker started")

	return t
}

// C returns the cycle-start signal channel.
func (t *Ticker) C() <-chan struct{} { return t.c }

// Stop halts the ticker. Safe to call more than once. Signals already
// pending on C remain readable.
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// loop fires ticks until stopped. A tick that finds the channel full is
// coalesced into the pending one.
func (t *Ticker) loop() {
	for {
		select {
		case <-t.stop:
			return
		case <-t.clock.After(t.interval):
		}

		select {
		case t.c <- struct{}{}:
		default:
			// Consumer still busy with a prior cycle; at most one pending
			// cycle-start is meaningful.
		}
	}
}
