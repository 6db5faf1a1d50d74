package sender

import "errors"

// Sentinel errors for sender package operations.
// These errors enable reliable error classification using errors.Is().

// Configuration errors.
var (
	// ErrInvalidFrameRate indicates a non-positive frames-per-second value.
	ErrInvalidFrameRate = errors.New("invalid frame rate")

	// ErrInvalidQuantizer indicates a startup quantizer outside the encoder range.
	ErrInvalidQuantizer = errors.New("invalid startup quantizer")

	// ErrInvalidControlMode indicates an unrecognized rate control mode.
	ErrInvalidControlMode = errors.New("invalid control mode")
)

// Cycle errors.
var (
	// ErrUnsupportedPolicy indicates an encode attempt was issued with a
	// policy the job runner does not recognize. This is a programming
	// contract violation, never an expected runtime condition.
	ErrUnsupportedPolicy = errors.New("unsupported encode policy")
)

// Lifecycle errors.
var (
	// ErrEndOfStream indicates the frame source ran out of input. This is
	// a clean shutdown request, distinguished from runtime failures.
	ErrEndOfStream = errors.New("frame source end of stream")
)
