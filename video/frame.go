// Package video provides the video-side building blocks for the framecast
// sender: the YUV420 frame representation, the YUV4MPEG2 stream reader used
// as the frame source, and a pure Go block encoder with fixed-quantizer and
// target-size encoding modes.
//
// The video pipeline on the sending side:
//
//	YUV4MPEG2 Input → VideoFrame → Block Encoding → Fragmentation → UDP
//
// This package follows the same patterns as the rest of framecast for
// consistency: interface seams for collaborators, explicit error returns,
// and no CGo dependencies.
package video

import (
	"fmt"
)

// VideoFrame represents a decoded video frame in YUV420 format.
//
// A frame is owned by the frame source that produced it and is borrowed
// read-only by encode attempts; nothing in this package mutates a frame
// after construction.
type VideoFrame struct {
	Width   uint16
	Height  uint16
	Y       []byte // Luminance plane
	U       []byte // Chrominance U plane
	V       []byte // Chrominance V plane
	YStride int    // Stride for Y plane
	UStride int    // Stride for U plane
	VStride int    // Stride for V plane
}

// NewVideoFrame allocates a frame with correctly sized YUV420 planes.
//
// Width and height must be positive and even; YUV420 chroma subsampling
// requires even dimensions.
//
// Parameters:
//   - width: Frame width in pixels
//   - height: Frame height in pixels
//
// Returns:
//   - *VideoFrame: The allocated frame with zeroed planes
//   - error: Any error from dimension validation
func NewVideoFrame(width, height uint16) (*VideoFrame, error) {
	if err := ValidateFrameSize(width, height); err != nil {
		return nil, err
	}

	ySize := int(width) * int(height)
	cSize := ySize / 4

	return &VideoFrame{
		Width:   width,
		Height:  height,
		Y:       make([]byte, ySize),
		U:       make([]byte, cSize),
		V:       make([]byte, cSize),
		YStride: int(width),
		UStride: int(width) / 2,
		VStride: int(width) / 2,
	}, nil
}

// ValidateFrameSize checks that dimensions are usable for YUV420 encoding.
//
// Width and height must be even for 4:2:0 chroma subsampling, and large
// enough to hold at least one macroblock.
func ValidateFrameSize(width, height uint16) error {
	if width%2 != 0 {
		return fmt.Errorf("invalid frame width: %d - must be even", width)
	}
	if height%2 != 0 {
		return fmt.Errorf("invalid frame height: %d - must be even", height)
	}
	if width < 16 || height < 16 {
		return fmt.Errorf("invalid frame size: %dx%d - minimum size is 16x16", width, height)
	}
	return nil
}

// Validate checks that the frame's planes are consistent with its
// dimensions and strides.
func (f *VideoFrame) Validate() error {
	if err := ValidateFrameSize(f.Width, f.Height); err != nil {
		return err
	}

	ySize := f.YStride * int(f.Height)
	cSize := f.UStride * int(f.Height) / 2

	if len(f.Y) < ySize {
		return fmt.Errorf("Y plane too short: have %d, need %d", len(f.Y), ySize)
	}
	if len(f.U) < cSize {
		return fmt.Errorf("U plane too short: have %d, need %d", len(f.U), cSize)
	}
	if len(f.V) < cSize {
		return fmt.Errorf("V plane too short: have %d, need %d", len(f.V), cSize)
	}

	return nil
}
