package sender

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framecast/packet"
	"github.com/opd-ai/framecast/video"
)

// ackQueueSize bounds buffered acknowledgments between the transport's
// receive goroutine and the reactor. Feedback is advisory; overflow drops
// are harmless.
const ackQueueSize = 64

// FrameSource supplies decoded rasters. Next blocks until a frame is
// available and returns io.EOF on clean end of stream.
type FrameSource interface {
	Next() (*video.VideoFrame, error)
}

// Transport is the outbound datagram channel fragments are sent over.
type Transport interface {
	Send(data []byte) error
}

// Sender is the reactor: a single-goroutine event loop that owns all
// mutable transmission state and serializes every transition.
//
// Per cycle it moves through Idle → CycleStarted → {Skipped, Sent,
// Abandoned} and back to Idle. All other goroutines (ticker, frame pump,
// encode attempts, ack ingest) communicate with it exclusively through
// channels; none of them touch reactor-owned state.
type Sender struct {
	config  *Config
	session Session

	source    FrameSource
	transport Transport
	clock     Clock

	controller *RateController
	metrics    *Metrics

	// Reactor-owned mutable state. Only the Run goroutine reads or writes
	// these.
	encoder       Encoder
	feedback      *FeedbackState
	table         *FragmentTable
	frameNo       uint32
	skipped       int
	lastFrame     *video.VideoFrame
	frameConsumed bool
	cycleActive   bool
	cycleJobs     int
	generation    uint64
	sourceDone    bool

	resolved chan cycleResult
	acks     chan *packet.AckPacket
}

// New creates a sender ready to Run.
//
// Parameters:
//   - config: Validated sender configuration
//   - source: The frame source (e.g. a video.Y4MReader)
//   - transport: Outbound datagram channel
//   - encoder: Encoder sized to the source's display dimensions
//
// Returns:
//   - *Sender: The sender
//   - error: Any error from configuration validation
func New(config *Config, source FrameSource, transport Transport, encoder Encoder) (*Sender, error) {
	if source == nil {
		return nil, errors.New("frame source cannot be nil")
	}
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if encoder == nil {
		return nil, errors.New("encoder cannot be nil")
	}

	session, err := NewSession(config)
	if err != nil {
		return nil, err
	}

	controller, err := NewRateController(config)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":      "New",
		"connection_id": session.ConnectionID,
		"mode":          config.Mode.String(),
		"fps":           config.FPS,
	}).Info("Creating sender")

	return &Sender{
		config:     config,
		session:    session,
		source:     source,
		transport:  transport,
		clock:      SystemClock{},
		controller: controller,
		metrics:    NewMetrics(),
		encoder:    encoder,
		feedback:   NewFeedbackState(config.MonotonicAcks),
		table:      NewFragmentTable(),
		resolved:   make(chan cycleResult, 1),
		acks:       make(chan *packet.AckPacket, ackQueueSize),
	}, nil
}

// SetClock substitutes the time source for deterministic testing. Must be
// called before Run.
func (s *Sender) SetClock(clock Clock) {
	s.clock = clock
}

// Metrics returns the sender's activity counters.
func (s *Sender) Metrics() *Metrics {
	return s.metrics
}

// HandleDatagram ingests one inbound datagram from the transport.
//
// Safe to call from any goroutine: it parses the acknowledgment and hands
// it to the reactor without touching shared state. Unparseable datagrams
// are dropped silently.
func (s *Sender) HandleDatagram(data []byte) {
	ack, err := packet.ParseAckPacket(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"bytes":    len(data),
		}).Debug("Dropping unparseable datagram")
		return
	}

	select {
	case s.acks <- ack:
	default:
		// Feedback queue full; newer acks supersede this one anyway.
		logrus.WithFields(logrus.Fields{
			"function": "HandleDatagram",
		}).Debug("Ack queue full, dropping acknowledgment")
	}
}

// Run executes the reactor loop until the context is cancelled or the
// frame source ends.
//
// Returns:
//   - error: ErrEndOfStream on clean input exhaustion, the context error on
//     cancellation, or a transport failure
func (s *Sender) Run(ctx context.Context) error {
	ticker := NewTicker(s.session.FrameInterval, s.clock)
	defer ticker.Stop()

	frames := make(chan *video.VideoFrame)
	go s.pumpFrames(ctx, frames)

	logrus.WithFields(logrus.Fields{
		"function": "Run",
	}).Info("Reactor started")

	defer s.logShutdown()

	for {
		select {
		case <-ctx.Done():
			// Immediate shutdown: outstanding encode attempts are not
			// awaited.
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				s.sourceDone = true
			} else {
				s.lastFrame = frame
				s.frameConsumed = false
			}

		case <-ticker.C():
			s.onTick()

		case result := <-s.resolved:
			if err := s.onCycleResolved(result); err != nil {
				return err
			}

		case ack := <-s.acks:
			s.onAck(ack)
		}

		if s.sourceDone && !s.cycleActive && (s.lastFrame == nil || s.frameConsumed) {
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"frame_no": s.frameNo,
			}).Info("Frame source exhausted, shutting down")
			return ErrEndOfStream
		}
	}
}

// pumpFrames reads the source until end of stream, delivering each frame
// to the reactor. The reactor always keeps only the newest frame.
func (s *Sender) pumpFrames(ctx context.Context, frames chan<- *video.VideoFrame) {
	defer close(frames)

	for {
		frame, err := s.source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithFields(logrus.Fields{
					"function": "pumpFrames",
					"error":    err,
				}).Error("Frame source failed, treating as end of stream")
			}
			return
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// onTick starts a new encode cycle if the reactor is idle and a frame is
// available.
func (s *Sender) onTick() {
	s.metrics.ticks.Inc()

	if s.cycleActive {
		// At most one outstanding cycle; this tick is coalesced away.
		return
	}
	if s.lastFrame == nil {
		return
	}

	decision := s.controller.Decide(s.feedback.Snapshot(), s.table.Total(), s.skipped)
	if decision.Skip {
		// Skipped: the sequence number is not consumed and no job starts.
		s.skipped++
		s.metrics.framesSkipped.Inc()
		return
	}

	jobs := []*EncodeJob{{
		FrameNo: s.frameNo,
		Frame:   s.lastFrame,
		Encoder: s.encoder.Clone(),
		Policy:  decision.Policy,
	}}

	s.cycleActive = true
	s.cycleJobs = len(jobs)
	s.generation++
	s.metrics.cyclesStarted.Inc()

	deadline := s.clock.Now().Add(s.session.FrameInterval)

	logrus.WithFields(logrus.Fields{
		"function": "onTick",
		"frame_no": s.frameNo,
		"policy":   decision.Policy.Kind.String(),
		"jobs":     len(jobs),
	}).Debug("Cycle started")

	runCycle(jobs, deadline, s.generation, s.clock, s.resolved)
}

// onCycleResolved applies the outcome of the outstanding cycle: adopt and
// send the first completed attempt, or abandon the cycle if none finished
// before the deadline.
func (s *Sender) onCycleResolved(result cycleResult) error {
	if !s.cycleActive || result.generation != s.generation {
		// A late resolution from an already-abandoned cycle; its encoder
		// state snapshot is discarded with it.
		return nil
	}
	s.cycleActive = false

	var output *EncodeOutput
	for i := 0; i < s.cycleJobs; i++ {
		if result.errs[i] != nil {
			if errors.Is(result.errs[i], ErrUnsupportedPolicy) {
				// A contract violation between controller and job runner,
				// not a recoverable encode failure. Stop the process.
				return result.errs[i]
			}
			logrus.WithFields(logrus.Fields{
				"function": "onCycleResolved",
				"frame_no": s.frameNo,
				"attempt":  i,
				"error":    result.errs[i],
			}).Error("Encode attempt failed")
			continue
		}
		if result.outputs[i] != nil {
			output = result.outputs[i]
			break
		}
	}

	if output == nil {
		// Abandoned: no attempt completed in time. The sequence number is
		// retried on the next tick with a freshly captured frame, and the
		// skip counter is left alone.
		s.metrics.cyclesAbandoned.Inc()
		s.frameConsumed = true
		logrus.WithFields(logrus.Fields{
			"function": "onCycleResolved",
			"frame_no": s.frameNo,
		}).Info("Cycle abandoned at deadline")
		return nil
	}

	return s.sendOutput(output)
}

// sendOutput fragments and transmits an adopted encode output, then
// updates the bookkeeping that depends on the send.
func (s *Sender) sendOutput(output *EncodeOutput) error {
	ff, err := packet.NewFragmentedFrame(
		s.session.ConnectionID,
		s.frameNo,
		uint32(s.session.FrameInterval.Microseconds()),
		output.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to fragment frame %d: %w", s.frameNo, err)
	}

	if err := ff.Send(s.transport); err != nil {
		return fmt.Errorf("failed to send frame %d: %w", s.frameNo, err)
	}

	total := s.table.Append(ff.FragmentCount())

	// The adopted attempt's encoder becomes the sequential state for the
	// next cycle; any other attempt's snapshot is discarded.
	s.encoder = output.Encoder
	s.skipped = 0
	s.frameConsumed = true
	s.frameNo++

	s.metrics.framesSent.Inc()
	s.metrics.bytesSent.Add(uint64(len(output.Payload)))
	s.metrics.fragmentsSent.Add(uint64(ff.FragmentCount()))
	s.metrics.lastEncodeUs.Store(output.EncodeTime.Microseconds())

	logrus.WithFields(logrus.Fields{
		"function":       "sendOutput",
		"frame_no":       s.frameNo - 1,
		"bytes":          len(output.Payload),
		"fragments":      ff.FragmentCount(),
		"total_sent":     total,
		"encode_time_us": output.EncodeTime.Microseconds(),
	}).Debug("Frame sent")

	return nil
}

// onAck folds one acknowledgment into the feedback state, ignoring acks
// that belong to another session.
func (s *Sender) onAck(ack *packet.AckPacket) {
	if ack.ConnectionID != s.session.ConnectionID {
		// Not an ack for this session; no state change.
		s.metrics.acksForeign.Inc()
		return
	}

	if s.feedback.Apply(ack, s.table) {
		s.metrics.acksAccepted.Inc()
	}
}

// logShutdown reports final counters once the reactor stops.
func (s *Sender) logShutdown() {
	snap := s.metrics.Snapshot()
	logrus.WithFields(logrus.Fields{
		"function":         "Run",
		"ticks":            snap.Ticks,
		"cycles_started":   snap.CyclesStarted,
		"frames_sent":      snap.FramesSent,
		"frames_skipped":   snap.FramesSkipped,
		"cycles_abandoned": snap.CyclesAbandoned,
		"bytes_sent":       snap.BytesSent,
		"fragments_sent":   snap.FragmentsSent,
		"acks_accepted":    snap.AcksAccepted,
		"acks_foreign":     snap.AcksForeign,
	}).Info("Reactor stopped")
}
