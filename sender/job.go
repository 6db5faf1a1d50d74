package sender

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/framecast/video"
)

// EncodeJob is one encode attempt: a frame, a private encoder state
// snapshot, and the policy to encode under.
//
// The encoder handle must be a clone private to this attempt; encoder state
// is sequential and single-owner, and concurrent attempts sharing a handle
// would corrupt each other's codec state.
type EncodeJob struct {
	FrameNo uint32
	Frame   *video.VideoFrame
	Encoder Encoder
	Policy  EncodePolicy
}

// EncodeOutput is a finished encode attempt: the payload plus the successor
// encoder state, which becomes the sender's encoder state if and only if
// this attempt is the one adopted for the cycle.
type EncodeOutput struct {
	Encoder    Encoder
	Payload    []byte
	EncodeTime time.Duration
}

// cycleResult is the one-shot resolution notification for a cycle: the
// outputs (or errors) of every attempt that had completed when the first
// completion or the deadline arrived, in job-list order.
type cycleResult struct {
	generation uint64
	outputs    []*EncodeOutput
	errs       []error
}

// attemptSlot is the result mailbox for a single attempt. The attempt
// goroutine is its only writer; the coordinator snapshots it once.
type attemptSlot struct {
	mu     sync.Mutex
	output *EncodeOutput
	err    error
	done   bool
}

func (s *attemptSlot) store(output *EncodeOutput, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = output
	s.err = err
	s.done = true
}

func (s *attemptSlot) snapshot() (*EncodeOutput, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output, s.err, s.done
}

// executeJob runs one encode attempt to completion under its policy.
//
// An unrecognized policy is a contract violation and fails the attempt
// immediately; the rate controller only emits known policies, so this path
// indicates a programming error, not a network condition.
func executeJob(job *EncodeJob, clock Clock) (*EncodeOutput, error) {
	start := clock.Now()

	var payload []byte
	var err error

	switch job.Policy.Kind {
	case PolicyFixedQuantizer:
		payload, err = job.Encoder.EncodeWithQuantizer(job.Frame, job.Policy.Quantizer)
	case PolicyTargetSize:
		payload, err = job.Encoder.EncodeWithTargetSize(job.Frame, job.Policy.TargetBytes)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPolicy, job.Policy.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("encode attempt for frame %d failed: %w", job.FrameNo, err)
	}

	return &EncodeOutput{
		Encoder:    job.Encoder,
		Payload:    payload,
		EncodeTime: clock.Now().Sub(start),
	}, nil
}

// runCycle launches every attempt on its own goroutine and delivers exactly
// one cycleResult on resolved when the first attempt completes or the
// deadline elapses, whichever is first.
//
// Attempts are never cancelled: the encoder has no preemption primitive, so
// an attempt that misses the deadline runs to completion and its result is
// simply never adopted. The errgroup supervises the stragglers only to log
// their eventual fate.
func runCycle(jobs []*EncodeJob, deadline time.Time, generation uint64, clock Clock, resolved chan<- cycleResult) {
	slots := make([]*attemptSlot, len(jobs))
	for i := range slots {
		slots[i] = &attemptSlot{}
	}

	completions := make(chan int, len(jobs))

	var group errgroup.Group
	for i := range jobs {
		i := i
		job := jobs[i]
		group.Go(func() error {
			output, err := executeJob(job, clock)
			slots[i].store(output, err)
			completions <- i
			return err
		})
	}

	go func() {
		if err := group.Wait(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "runCycle",
				"generation": generation,
				"error":      err,
			}).Error("Encode attempt failed")
		}
	}()

	go func() {
		select {
		case <-completions:
		case <-clock.After(deadline.Sub(clock.Now())):
		}

		result := cycleResult{
			generation: generation,
			outputs:    make([]*EncodeOutput, len(jobs)),
			errs:       make([]error, len(jobs)),
		}
		for i, slot := range slots {
			output, err, done := slot.snapshot()
			if !done {
				continue
			}
			result.outputs[i] = output
			result.errs[i] = err
		}

		// resolved is buffered for one outstanding cycle, so delivery never
		// blocks even if the reactor is already shutting down.
		resolved <- result
	}()
}
