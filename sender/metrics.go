package sender

import (
	"go.uber.org/atomic"
)

// Metrics counts sender activity. Counters are atomic so monitoring code
// can snapshot them from any goroutine while the reactor runs.
type Metrics struct {
	ticks           atomic.Uint64
	cyclesStarted   atomic.Uint64
	framesSent      atomic.Uint64
	framesSkipped   atomic.Uint64
	cyclesAbandoned atomic.Uint64
	bytesSent       atomic.Uint64
	fragmentsSent   atomic.Uint64
	acksAccepted    atomic.Uint64
	acksForeign     atomic.Uint64
	lastEncodeUs    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Ticks           uint64
	CyclesStarted   uint64
	FramesSent      uint64
	FramesSkipped   uint64
	CyclesAbandoned uint64
	BytesSent       uint64
	FragmentsSent   uint64
	AcksAccepted    uint64
	AcksForeign     uint64
	LastEncodeUs    int64
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns a consistent-enough copy for reporting; individual
// counters are read atomically but not as a group.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Ticks:           m.ticks.Load(),
		CyclesStarted:   m.cyclesStarted.Load(),
		FramesSent:      m.framesSent.Load(),
		FramesSkipped:   m.framesSkipped.Load(),
		CyclesAbandoned: m.cyclesAbandoned.Load(),
		BytesSent:       m.bytesSent.Load(),
		FragmentsSent:   m.fragmentsSent.Load(),
		AcksAccepted:    m.acksAccepted.Load(),
		AcksForeign:     m.acksForeign.Load(),
		LastEncodeUs:    m.lastEncodeUs.Load(),
	}
}
