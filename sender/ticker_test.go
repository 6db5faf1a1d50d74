package sender

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a hand-cranked time source. After returns a shared channel
// the test fires explicitly, so tick timing is fully deterministic.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	fire chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0), fire: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return c.fire
}

// tick fires the pending After. The send synchronizes with the waiter, so
// when tick returns the waiter has observed the expiry.
func (c *fakeClock) tick() {
	c.mu.Lock()
	c.now = c.now.Add(time.Millisecond)
	c.mu.Unlock()
	c.fire <- c.now
}

func TestTickerEmitsOnInterval(t *testing.T) {
	clock := newFakeClock()
	ticker := NewTicker(20*time.Millisecond, clock)
	defer ticker.Stop()

	clock.tick()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("expected a cycle-start signal")
	}
}

func TestTickerCoalescesWhenConsumerBusy(t *testing.T) {
	clock := newFakeClock()
	ticker := NewTicker(20*time.Millisecond, clock)
	defer ticker.Stop()

	// Three interval expiries with no consumer: the first fills the signal
	// channel, the rest are coalesced into it.
	clock.tick()
	clock.tick()
	clock.tick()
	time.Sleep(20 * time.Millisecond)

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("expected one pending cycle-start signal")
	}

	select {
	case <-ticker.C():
		t.Fatal("coalesced ticks must not queue up")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickerStop(t *testing.T) {
	clock := newFakeClock()
	ticker := NewTicker(20*time.Millisecond, clock)

	// A signal pending at Stop remains readable.
	clock.tick()
	time.Sleep(10 * time.Millisecond)

	ticker.Stop()
	ticker.Stop() // idempotent

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("pending signal should survive Stop")
	}

	select {
	case <-ticker.C():
		t.Fatal("no further signals after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickerChannelCapacity(t *testing.T) {
	clock := newFakeClock()
	ticker := NewTicker(20*time.Millisecond, clock)
	defer ticker.Stop()

	require.Equal(t, 1, cap(ticker.c))
	assert.Empty(t, ticker.c)
}
