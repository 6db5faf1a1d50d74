package sender

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// PolicyKind tags the encode policy variants.
type PolicyKind int

const (
	// PolicyFixedQuantizer encodes at a fixed quantizer level.
	PolicyFixedQuantizer PolicyKind = iota

	// PolicyTargetSize encodes toward a byte-size ceiling.
	PolicyTargetSize
)

// String returns a human-readable policy kind name.
func (k PolicyKind) String() string {
	switch k {
	case PolicyFixedQuantizer:
		return "fixed_quantizer"
	case PolicyTargetSize:
		return "target_size"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// EncodePolicy is the tagged choice of how to invoke the encoder for one
// cycle: a fixed quantizer level or a target payload size in bytes.
type EncodePolicy struct {
	Kind        PolicyKind
	Quantizer   uint8
	TargetBytes int
}

// Decision is a rate controller verdict for one cycle: either skip the
// frame entirely or encode it under Policy.
type Decision struct {
	Skip   bool
	Policy EncodePolicy
}

// RateController chooses the encode policy for each cycle from the latest
// receiver feedback.
//
// In ModeFixedQuality every decision is FixedQuantizer at the startup
// level. In ModeFeedback the controller spends a fixed in-flight delay
// budget: it estimates how many more fragments the path can absorb before
// the budget is exhausted and sizes the frame accordingly, skipping frames
// (up to the skip ceiling) when the budget is already spent.
//
// Decide is pure: it mutates nothing. Skip counting and all other side
// effects belong to the reactor that applies the decision.
type RateController struct {
	mode           ControlMode
	quantizer      uint8
	maxDelay       time.Duration
	mtuPayloadSize int
	maxSkipped     int
}

// NewRateController creates a controller from a validated configuration.
func NewRateController(config *Config) (*RateController, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewRateController",
		"mode":        config.Mode.String(),
		"quantizer":   config.Quantizer,
		"max_delay":   config.MaxDelay,
		"max_skipped": config.MaxSkipped,
	}).Info("Creating rate controller")

	return &RateController{
		mode:           config.Mode,
		quantizer:      config.Quantizer,
		maxDelay:       config.MaxDelay,
		mtuPayloadSize: config.MTUPayloadSize,
		maxSkipped:     config.MaxSkipped,
	}, nil
}

// Decide returns the encode policy (or skip) for the next cycle.
//
// Parameters:
//   - feedback: Latest feedback snapshot
//   - lastSent: Global index of the last fragment sent (cumulative total)
//   - skipped: Current consecutive-skip count
//
// Returns:
//   - Decision: The policy or skip verdict
func (rc *RateController) Decide(feedback FeedbackSnapshot, lastSent uint64, skipped int) Decision {
	if rc.mode == ModeFixedQuality || !feedback.HasSample {
		// No rate signal exists yet (or the controller is pinned to fixed
		// quality): encode at the startup quantizer.
		return Decision{Policy: EncodePolicy{Kind: PolicyFixedQuantizer, Quantizer: rc.quantizer}}
	}

	targetBytes := rc.targetSize(feedback, lastSent)

	switch {
	case targetBytes > 0:
		return Decision{Policy: EncodePolicy{Kind: PolicyTargetSize, TargetBytes: targetBytes}}

	case skipped < rc.maxSkipped:
		logrus.WithFields(logrus.Fields{
			"function": "RateController.Decide",
			"skipped":  skipped,
		}).Debug("Delay budget exhausted, skipping frame")
		return Decision{Skip: true}

	default:
		// Too many consecutive skips; bound staleness by sending one MTU
		// of the lowest quality that fits.
		logrus.WithFields(logrus.Fields{
			"function": "RateController.Decide",
			"skipped":  skipped,
		}).Info("Skip ceiling reached, forcing minimal send")
		return Decision{Policy: EncodePolicy{Kind: PolicyTargetSize, TargetBytes: rc.mtuPayloadSize}}
	}
}

// targetSize computes the feedback-driven payload budget in bytes.
//
// budget_fragments = max_delay / avg_delay - in_flight; the result is that
// many MTU payloads, floored at zero.
func (rc *RateController) targetSize(feedback FeedbackSnapshot, lastSent uint64) int {
	avgDelay := int64(feedback.AvgDelayUs)
	if avgDelay < 1 {
		avgDelay = 1
	}

	var inFlight int64
	if lastSent > feedback.LastAcked {
		inFlight = int64(lastSent - feedback.LastAcked)
	}

	budgetFragments := int64(rc.maxDelay.Microseconds())/avgDelay - inFlight
	if budgetFragments < 0 {
		budgetFragments = 0
	}

	logrus.WithFields(logrus.Fields{
		"function":         "RateController.targetSize",
		"in_flight":        inFlight,
		"avg_delay_us":     avgDelay,
		"imputed_delay_us": avgDelay * inFlight,
		"budget_fragments": budgetFragments,
	}).Debug("Computed fragment budget")

	return rc.mtuPayloadSize * int(budgetFragments)
}
