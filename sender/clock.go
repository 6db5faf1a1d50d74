package sender

import "time"

// Clock abstracts time for deterministic testing. Production code uses
// SystemClock; tests substitute a fake to drive ticks and deadlines
// without real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the time after d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the default Clock backed by the runtime clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
