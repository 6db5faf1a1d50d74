package sender

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/framecast/video"
)

// fakeEncoder is a scriptable Encoder. When release is non-nil every encode
// blocks until the channel is closed, which lets tests hold an attempt past
// its deadline.
type fakeEncoder struct {
	payload []byte
	err     error
	release chan struct{}

	mu            sync.Mutex
	encodeCalls   int
	lastQuantizer uint8
	lastTarget    int
}

func (f *fakeEncoder) encode() ([]byte, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.encodeCalls++
	f.mu.Unlock()
	return f.payload, f.err
}

func (f *fakeEncoder) EncodeWithQuantizer(frame *video.VideoFrame, quantizer uint8) ([]byte, error) {
	f.mu.Lock()
	f.lastQuantizer = quantizer
	f.mu.Unlock()
	return f.encode()
}

func (f *fakeEncoder) EncodeWithTargetSize(frame *video.VideoFrame, targetBytes int) ([]byte, error) {
	f.mu.Lock()
	f.lastTarget = targetBytes
	f.mu.Unlock()
	return f.encode()
}

func (f *fakeEncoder) Clone() Encoder { return f }

func (f *fakeEncoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encodeCalls
}

func testFrame(t *testing.T) *video.VideoFrame {
	t.Helper()
	frame, err := video.NewVideoFrame(16, 16)
	require.NoError(t, err)
	return frame
}

func TestExecuteJobFixedQuantizer(t *testing.T) {
	enc := &fakeEncoder{payload: []byte{1, 2, 3}}
	job := &EncodeJob{
		FrameNo: 4,
		Frame:   testFrame(t),
		Encoder: enc,
		Policy:  EncodePolicy{Kind: PolicyFixedQuantizer, Quantizer: 17},
	}

	output, err := executeJob(job, SystemClock{})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, output.Payload)
	assert.Equal(t, uint8(17), enc.lastQuantizer)
	assert.GreaterOrEqual(t, output.EncodeTime, time.Duration(0))
}

func TestExecuteJobTargetSize(t *testing.T) {
	enc := &fakeEncoder{payload: []byte{9}}
	job := &EncodeJob{
		Frame:   testFrame(t),
		Encoder: enc,
		Policy:  EncodePolicy{Kind: PolicyTargetSize, TargetBytes: 2800},
	}

	_, err := executeJob(job, SystemClock{})
	require.NoError(t, err)
	assert.Equal(t, 2800, enc.lastTarget)
}

func TestExecuteJobUnsupportedPolicy(t *testing.T) {
	job := &EncodeJob{
		Frame:   testFrame(t),
		Encoder: &fakeEncoder{},
		Policy:  EncodePolicy{Kind: PolicyKind(99)},
	}

	_, err := executeJob(job, SystemClock{})
	assert.ErrorIs(t, err, ErrUnsupportedPolicy)
}

func TestExecuteJobEncodeFailure(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("codec state corrupt")}
	job := &EncodeJob{
		FrameNo: 2,
		Frame:   testFrame(t),
		Encoder: enc,
		Policy:  EncodePolicy{Kind: PolicyFixedQuantizer},
	}

	_, err := executeJob(job, SystemClock{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 2")
}

func TestRunCycleFirstCompletionResolves(t *testing.T) {
	fast := &fakeEncoder{payload: []byte{1}}
	slow := &fakeEncoder{payload: []byte{2}, release: make(chan struct{})}
	defer close(slow.release)

	jobs := []*EncodeJob{
		{Frame: testFrame(t), Encoder: fast, Policy: EncodePolicy{Kind: PolicyFixedQuantizer}},
		{Frame: testFrame(t), Encoder: slow, Policy: EncodePolicy{Kind: PolicyFixedQuantizer}},
	}

	resolved := make(chan cycleResult, 1)
	runCycle(jobs, time.Now().Add(time.Minute), 3, SystemClock{}, resolved)

	var result cycleResult
	select {
	case result = <-resolved:
	case <-time.After(time.Second):
		t.Fatal("cycle did not resolve on first completion")
	}

	assert.Equal(t, uint64(3), result.generation)
	require.NotNil(t, result.outputs[0])
	assert.Equal(t, []byte{1}, result.outputs[0].Payload)
	assert.Nil(t, result.outputs[1], "the straggler had not completed at resolution")
}

func TestRunCycleDeadlineWithoutCompletion(t *testing.T) {
	blocked := &fakeEncoder{payload: []byte{1}, release: make(chan struct{})}
	defer close(blocked.release)

	jobs := []*EncodeJob{
		{Frame: testFrame(t), Encoder: blocked, Policy: EncodePolicy{Kind: PolicyFixedQuantizer}},
	}

	resolved := make(chan cycleResult, 1)
	runCycle(jobs, time.Now().Add(20*time.Millisecond), 1, SystemClock{}, resolved)

	var result cycleResult
	select {
	case result = <-resolved:
	case <-time.After(time.Second):
		t.Fatal("cycle did not resolve at deadline")
	}

	assert.Equal(t, uint64(1), result.generation)
	assert.Nil(t, result.outputs[0])
	assert.NoError(t, result.errs[0])
}

func TestRunCycleReportsAttemptError(t *testing.T) {
	failing := &fakeEncoder{err: errors.New("no headroom")}

	jobs := []*EncodeJob{
		{Frame: testFrame(t), Encoder: failing, Policy: EncodePolicy{Kind: PolicyFixedQuantizer}},
	}

	resolved := make(chan cycleResult, 1)
	runCycle(jobs, time.Now().Add(time.Minute), 1, SystemClock{}, resolved)

	var result cycleResult
	select {
	case result = <-resolved:
	case <-time.After(time.Second):
		t.Fatal("cycle did not resolve")
	}

	assert.Nil(t, result.outputs[0])
	assert.Error(t, result.errs[0])
}
