// Package packet implements the framecast wire formats: the fragment
// datagrams that carry encoded frame pieces to the receiver, and the
// acknowledgment datagrams the receiver returns.
//
// All multi-byte fields are big-endian. The layouts are a fixed contract
// with the receiver and must not change shape:
//
//	Fragment: [connection_id:2][frame_no:4][fragment_no:2]
//	          [fragment_count:2][time_to_next_us:4][payload:0..1400]
//	Ack:      [connection_id:2][frame_no:4][fragment_no:2][avg_delay_us:4]
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MTUPayloadSize is the most encoded payload bytes one fragment may
	// carry: one network MTU minus IP/UDP and fragment header overhead.
	MTUPayloadSize = 1400

	// FragmentHeaderSize is the byte length of the fragment header.
	FragmentHeaderSize = 14

	// AckSize is the exact byte length of an acknowledgment datagram.
	AckSize = 12
)

// Wire format errors.
var (
	// ErrPacketTooShort indicates a datagram shorter than its header.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrPayloadTooLarge indicates a fragment payload above MTUPayloadSize.
	ErrPayloadTooLarge = errors.New("fragment payload exceeds MTU payload size")

	// ErrBadAckLength indicates an ack datagram of the wrong size.
	ErrBadAckLength = errors.New("ack packet has wrong length")
)

// FragmentPacket is one MTU-sized piece of an encoded frame.
//
// TimeToNextUs carries the sender's frame interval in microseconds so the
// receiver can pace its playout without out-of-band signaling.
type FragmentPacket struct {
	ConnectionID  uint16
	FrameNo       uint32
	FragmentNo    uint16
	FragmentCount uint16
	TimeToNextUs  uint32
	Payload       []byte
}

// Serialize converts the fragment to its wire representation.
func (p *FragmentPacket) Serialize() ([]byte, error) {
	if len(p.Payload) > MTUPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	data := make([]byte, FragmentHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(data[0:2], p.ConnectionID)
	binary.BigEndian.PutUint32(data[2:6], p.FrameNo)
	binary.BigEndian.PutUint16(data[6:8], p.FragmentNo)
	binary.BigEndian.PutUint16(data[8:10], p.FragmentCount)
	binary.BigEndian.PutUint32(data[10:14], p.TimeToNextUs)
	copy(data[FragmentHeaderSize:], p.Payload)

	return data, nil
}

// ParseFragmentPacket converts a wire datagram back to a FragmentPacket.
func ParseFragmentPacket(data []byte) (*FragmentPacket, error) {
	if len(data) < FragmentHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(data))
	}
	if len(data) > FragmentHeaderSize+MTUPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data)-FragmentHeaderSize)
	}

	p := &FragmentPacket{
		ConnectionID:  binary.BigEndian.Uint16(data[0:2]),
		FrameNo:       binary.BigEndian.Uint32(data[2:6]),
		FragmentNo:    binary.BigEndian.Uint16(data[6:8]),
		FragmentCount: binary.BigEndian.Uint16(data[8:10]),
		TimeToNextUs:  binary.BigEndian.Uint32(data[10:14]),
		Payload:       make([]byte, len(data)-FragmentHeaderSize),
	}
	copy(p.Payload, data[FragmentHeaderSize:])

	return p, nil
}

// AckPacket is the receiver's report of reception progress: the last
// fragment it has seen for a frame, plus its running estimate of the
// average inter-fragment arrival delay.
type AckPacket struct {
	ConnectionID uint16
	FrameNo      uint32
	FragmentNo   uint16
	AvgDelayUs   uint32
}

// Serialize converts the ack to its wire representation.
func (a *AckPacket) Serialize() ([]byte, error) {
	data := make([]byte, AckSize)
	binary.BigEndian.PutUint16(data[0:2], a.ConnectionID)
	binary.BigEndian.PutUint32(data[2:6], a.FrameNo)
	binary.BigEndian.PutUint16(data[6:8], a.FragmentNo)
	binary.BigEndian.PutUint32(data[8:12], a.AvgDelayUs)

	return data, nil
}

// ParseAckPacket converts a wire datagram back to an AckPacket.
//
// Acks are fixed-size; anything else is rejected so that stray traffic on
// the socket never masquerades as feedback.
func ParseAckPacket(data []byte) (*AckPacket, error) {
	if len(data) != AckSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadAckLength, len(data))
	}

	return &AckPacket{
		ConnectionID: binary.BigEndian.Uint16(data[0:2]),
		FrameNo:      binary.BigEndian.Uint32(data[2:6]),
		FragmentNo:   binary.BigEndian.Uint16(data[6:8]),
		AvgDelayUs:   binary.BigEndian.Uint32(data[8:12]),
	}, nil
}
