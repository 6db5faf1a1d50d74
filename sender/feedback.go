package sender

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framecast/packet"
)

// FragmentTable is the append-only cumulative fragments-per-frame table.
//
// Entry i holds the total number of fragments sent for frames 0..i, so a
// receiver-reported (frame, fragment-within-frame) pair translates to a
// single global fragment index comparable with the send-side total.
// Skipped frames have no entry. The reactor is the sole writer.
type FragmentTable struct {
	cumulative []uint64
}

// NewFragmentTable returns an empty table.
func NewFragmentTable() *FragmentTable {
	return &FragmentTable{}
}

// Append records the fragment count of the next sent frame and returns the
// new cumulative total.
func (t *FragmentTable) Append(fragments uint16) uint64 {
	var prev uint64
	if len(t.cumulative) > 0 {
		prev = t.cumulative[len(t.cumulative)-1]
	}
	t.cumulative = append(t.cumulative, prev+uint64(fragments))
	return t.cumulative[len(t.cumulative)-1]
}

// Len returns the number of frames recorded.
func (t *FragmentTable) Len() int { return len(t.cumulative) }

// Total returns the global index of the last fragment sent, or 0 if
// nothing has been sent yet.
func (t *FragmentTable) Total() uint64 {
	if len(t.cumulative) == 0 {
		return 0
	}
	return t.cumulative[len(t.cumulative)-1]
}

// At returns the cumulative fragment count through frame frameNo.
func (t *FragmentTable) At(frameNo uint32) (uint64, error) {
	if int(frameNo) >= len(t.cumulative) {
		return 0, fmt.Errorf("no table entry for frame %d (have %d)", frameNo, len(t.cumulative))
	}
	return t.cumulative[frameNo], nil
}

// GlobalIndex translates a (frame, fragment-within-frame) pair into a
// global fragment index: the cumulative count through the previous frame
// plus the fragment's index within its own frame.
func (t *FragmentTable) GlobalIndex(frameNo uint32, fragmentNo uint16) (uint64, error) {
	if int(frameNo) >= len(t.cumulative) {
		return 0, fmt.Errorf("no table entry for frame %d (have %d)", frameNo, len(t.cumulative))
	}
	if frameNo == 0 {
		return uint64(fragmentNo), nil
	}

	base, err := t.At(frameNo - 1)
	if err != nil {
		return 0, err
	}
	return base + uint64(fragmentNo), nil
}

// FeedbackSnapshot is the rate controller's read-only view of the latest
// receiver feedback.
type FeedbackSnapshot struct {
	// AvgDelayUs is the receiver's estimated average inter-fragment
	// arrival delay in microseconds.
	AvgDelayUs uint32

	// LastAcked is the global index of the last acknowledged fragment.
	LastAcked uint64

	// HasSample reports whether any acknowledgment has arrived yet; until
	// then the other fields hold saturated "unknown" values.
	HasSample bool
}

// FeedbackState holds the receiver feedback consumed by the rate
// controller.
//
// Only the reactor mutates it (acknowledgments are funneled through the
// reactor's event loop), so no locking is needed. Before the first
// acknowledgment both fields are saturated at their maximum, mirroring the
// reference sender's "unknown" initial state.
type FeedbackState struct {
	avgDelayUs uint32
	lastAcked  uint64
	hasSample  bool

	// monotonic clamps lastAcked to be non-decreasing. Off by default:
	// the reference accepts reordered acks, letting a stale ack move the
	// estimate backward.
	monotonic bool
}

// NewFeedbackState returns feedback in the saturated "unknown" state.
func NewFeedbackState(monotonic bool) *FeedbackState {
	return &FeedbackState{
		avgDelayUs: math.MaxUint32,
		lastAcked:  math.MaxUint64,
		monotonic:  monotonic,
	}
}

// Apply folds one acknowledgment into the feedback state.
//
// The caller has already verified the connection id. Acks referencing a
// frame the table does not know are dropped without any state change.
//
// Parameters:
//   - ack: The parsed acknowledgment
//   - table: The cumulative fragment table for index translation
//
// Returns:
//   - bool: Whether the state changed
func (f *FeedbackState) Apply(ack *packet.AckPacket, table *FragmentTable) bool {
	global, err := table.GlobalIndex(ack.FrameNo, ack.FragmentNo)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "FeedbackState.Apply",
			"frame_no":    ack.FrameNo,
			"fragment_no": ack.FragmentNo,
		}).Debug("Dropping ack for unknown frame")
		return false
	}

	f.avgDelayUs = ack.AvgDelayUs

	if f.monotonic && f.hasSample && global < f.lastAcked {
		logrus.WithFields(logrus.Fields{
			"function":   "FeedbackState.Apply",
			"global":     global,
			"last_acked": f.lastAcked,
		}).Debug("Clamping stale ack under monotonic mode")
	} else {
		f.lastAcked = global
	}

	f.hasSample = true

	logrus.WithFields(logrus.Fields{
		"function":     "FeedbackState.Apply",
		"avg_delay_us": f.avgDelayUs,
		"last_acked":   f.lastAcked,
	}).Debug("Feedback updated")

	return true
}

// Snapshot returns the current feedback values for a cycle decision.
func (f *FeedbackState) Snapshot() FeedbackSnapshot {
	return FeedbackSnapshot{
		AvgDelayUs: f.avgDelayUs,
		LastAcked:  f.lastAcked,
		HasSample:  f.hasSample,
	}
}
