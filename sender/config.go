package sender

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framecast/packet"
	"github.com/opd-ai/framecast/video"
)

// ControlMode selects how the rate controller chooses encode policies.
//
// The reference sender ships with a feedback-driven policy whose selection
// branch is unreachable (the fixed-quality branch is gated on a condition
// that is always true), so in practice it always encodes at the startup
// quantizer. Both behaviors are kept here as an explicit choice rather than
// silently fixing one or the other.
type ControlMode int

const (
	// ModeFixedQuality always encodes at the startup quantizer, matching
	// the reference sender's observable behavior.
	ModeFixedQuality ControlMode = iota

	// ModeFeedback sizes each frame from receiver feedback once the first
	// acknowledgment arrives, falling back to the startup quantizer before
	// that.
	ModeFeedback
)

// String returns a human-readable control mode name.
func (m ControlMode) String() string {
	switch m {
	case ModeFixedQuality:
		return "fixed"
	case ModeFeedback:
		return "feedback"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Config carries the tunable parameters of a sender.
//
// There is no configuration file; the CLI maps its arguments onto this
// struct and everything else keeps the defaults from DefaultConfig().
type Config struct {
	// ConnectionID identifies this session on the wire; acknowledgments
	// for other connection ids are ignored.
	ConnectionID uint16

	// FPS is the tick rate: one encode cycle starts every 1/FPS seconds.
	FPS int

	// Quantizer is the fixed-quality encoding level used at startup and in
	// ModeFixedQuality.
	Quantizer uint8

	// Mode selects fixed-quality or feedback-driven rate control.
	Mode ControlMode

	// MonotonicAcks, when set, clamps the last-acknowledged fragment index
	// to be non-decreasing, rejecting reordered or stale acknowledgments.
	// The default (false) is the reference behavior: any ack wins.
	MonotonicAcks bool

	// MTUPayloadSize is the fragment payload ceiling used by both the rate
	// controller arithmetic and the fragmenter.
	MTUPayloadSize int

	// MaxDelay is the in-flight delay budget the feedback controller
	// spends each cycle.
	MaxDelay time.Duration

	// MaxSkipped bounds consecutive skipped frames; one more zero-budget
	// decision after the bound forces a minimal one-MTU send.
	MaxSkipped int
}

// DefaultConfig returns configuration matching the reference sender's
// compiled-in constants.
func DefaultConfig() *Config {
	return &Config{
		FPS:            12,
		Mode:           ModeFixedQuality,
		MTUPayloadSize: packet.MTUPayloadSize,
		MaxDelay:       100 * time.Millisecond,
		MaxSkipped:     5,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("%w: %d fps", ErrInvalidFrameRate, c.FPS)
	}
	if c.Quantizer > video.MaxQuantizer {
		return fmt.Errorf("%w: %d", ErrInvalidQuantizer, c.Quantizer)
	}
	if c.Mode != ModeFixedQuality && c.Mode != ModeFeedback {
		return fmt.Errorf("%w: %d", ErrInvalidControlMode, int(c.Mode))
	}
	if c.MTUPayloadSize <= 0 {
		return fmt.Errorf("invalid MTU payload size: %d", c.MTUPayloadSize)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("invalid delay budget: %v", c.MaxDelay)
	}
	if c.MaxSkipped < 0 {
		return fmt.Errorf("invalid skip ceiling: %d", c.MaxSkipped)
	}
	return nil
}

// FrameInterval returns the tick period derived from FPS.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// Session is the immutable per-process transmission identity: which
// connection the fragments belong to and how often cycles fire. It never
// changes after startup.
type Session struct {
	ConnectionID  uint16
	FrameInterval time.Duration
}

// NewSession derives the session from a validated configuration.
func NewSession(config *Config) (Session, error) {
	if err := config.Validate(); err != nil {
		return Session{}, err
	}

	session := Session{
		ConnectionID:  config.ConnectionID,
		FrameInterval: config.FrameInterval(),
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewSession",
		"connection_id":  session.ConnectionID,
		"frame_interval": session.FrameInterval,
		"mode":           config.Mode.String(),
	}).Info("Session established")

	return session, nil
}
