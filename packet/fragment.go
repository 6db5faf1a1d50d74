package packet

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Destination is the outbound datagram channel a fragmented frame is sent
// over. transport.UDPTransport satisfies it.
type Destination interface {
	Send(data []byte) error
}

// FragmentedFrame is one encoded frame split into MTU-sized fragments,
// ready for transmission.
//
// Every frame yields at least one fragment, even when the encoded payload
// is empty, so the receiver always observes every frame number that was
// sent.
type FragmentedFrame struct {
	connectionID uint16
	frameNo      uint32
	fragments    []FragmentPacket
}

// NewFragmentedFrame splits an encoded payload into fragments tagged with
// the session and frame metadata.
//
// Parameters:
//   - connectionID: Session identifier stamped on every fragment
//   - frameNo: Frame sequence number
//   - timeToNextUs: Sender frame interval in microseconds, for receiver pacing
//   - payload: Encoded frame bytes (may be empty)
//
// Returns:
//   - *FragmentedFrame: The fragment set, in index order
//   - error: Any error (a frame too large for the 16-bit fragment count)
func NewFragmentedFrame(connectionID uint16, frameNo uint32, timeToNextUs uint32, payload []byte) (*FragmentedFrame, error) {
	count := (len(payload) + MTUPayloadSize - 1) / MTUPayloadSize
	if count == 0 {
		// An empty frame still occupies one fragment on the wire.
		count = 1
	}
	if count > 0xFFFF {
		return nil, fmt.Errorf("frame of %d bytes needs %d fragments, exceeding the fragment counter", len(payload), count)
	}

	ff := &FragmentedFrame{
		connectionID: connectionID,
		frameNo:      frameNo,
		fragments:    make([]FragmentPacket, count),
	}

	for i := 0; i < count; i++ {
		start := i * MTUPayloadSize
		end := start + MTUPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		var piece []byte
		if start < len(payload) {
			piece = payload[start:end]
		}

		ff.fragments[i] = FragmentPacket{
			ConnectionID:  connectionID,
			FrameNo:       frameNo,
			FragmentNo:    uint16(i),
			FragmentCount: uint16(count),
			TimeToNextUs:  timeToNextUs,
			Payload:       piece,
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewFragmentedFrame",
		"frame_no":  frameNo,
		"payload":   len(payload),
		"fragments": count,
	}).Debug("Frame fragmented")

	return ff, nil
}

// FragmentCount returns the number of fragments in this frame.
func (ff *FragmentedFrame) FragmentCount() uint16 {
	return uint16(len(ff.fragments))
}

// Fragments returns the fragment set in index order.
func (ff *FragmentedFrame) Fragments() []FragmentPacket {
	return ff.fragments
}

// Send transmits every fragment in index order over dest.
//
// The first transmission error aborts the send and is returned; the sender
// treats it as fatal, so the partially transmitted frame is never recorded.
func (ff *FragmentedFrame) Send(dest Destination) error {
	for i := range ff.fragments {
		data, err := ff.fragments[i].Serialize()
		if err != nil {
			return fmt.Errorf("failed to serialize fragment %d of frame %d: %w", i, ff.frameNo, err)
		}
		if err := dest.Send(data); err != nil {
			return fmt.Errorf("failed to send fragment %d of frame %d: %w", i, ff.frameNo, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "FragmentedFrame.Send",
		"frame_no":  ff.frameNo,
		"fragments": len(ff.fragments),
	}).Debug("Frame transmitted")

	return nil
}
