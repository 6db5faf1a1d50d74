package sender

import (
	"github.com/opd-ai/framecast/video"
)

// Encoder is the sequential-state encoder seam the reactor drives.
//
// Implementations carry codec state that advances with every encode, so a
// concurrent attempt must run against its own Clone; the reactor adopts at
// most one clone's state per cycle.
type Encoder interface {
	// EncodeWithQuantizer encodes one frame at a fixed quantizer level.
	EncodeWithQuantizer(frame *video.VideoFrame, quantizer uint8) ([]byte, error)

	// EncodeWithTargetSize encodes one frame toward a byte-size ceiling.
	EncodeWithTargetSize(frame *video.VideoFrame, targetBytes int) ([]byte, error)

	// Clone returns an independent deep copy of the encoder state.
	Clone() Encoder
}

// blockEncoder adapts video.BlockEncoder to the Encoder seam.
type blockEncoder struct {
	*video.BlockEncoder
}

// WrapBlockEncoder adapts a concrete block encoder to the Encoder seam.
func WrapBlockEncoder(e *video.BlockEncoder) Encoder {
	return blockEncoder{BlockEncoder: e}
}

func (b blockEncoder) Clone() Encoder {
	return blockEncoder{BlockEncoder: b.BlockEncoder.Clone()}
}
