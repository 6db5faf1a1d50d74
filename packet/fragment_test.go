package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDest captures sent datagrams for inspection.
type recordingDest struct {
	datagrams [][]byte
	failAt    int // fail the nth send (1-based); 0 disables
}

func (d *recordingDest) Send(data []byte) error {
	if d.failAt > 0 && len(d.datagrams)+1 == d.failAt {
		return errors.New("socket gone")
	}
	d.datagrams = append(d.datagrams, data)
	return nil
}

func TestNewFragmentedFrameEmptyPayload(t *testing.T) {
	ff, err := NewFragmentedFrame(1, 0, 83333, nil)
	require.NoError(t, err)

	// Even an empty frame occupies one fragment on the wire.
	assert.Equal(t, uint16(1), ff.FragmentCount())
	require.Len(t, ff.Fragments(), 1)
	assert.Empty(t, ff.Fragments()[0].Payload)
	assert.Equal(t, uint16(1), ff.Fragments()[0].FragmentCount)
}

func TestNewFragmentedFrameSplitsAtMTU(t *testing.T) {
	tests := []struct {
		name     string
		payload  int
		expected uint16
	}{
		{"one byte", 1, 1},
		{"exactly one MTU", MTUPayloadSize, 1},
		{"one over", MTUPayloadSize + 1, 2},
		{"two and change", 2*MTUPayloadSize + 201, 3},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ff, err := NewFragmentedFrame(9, 5, 83333, make([]byte, test.payload))
			require.NoError(t, err)
			assert.Equal(t, test.expected, ff.FragmentCount())

			total := 0
			for i, frag := range ff.Fragments() {
				assert.Equal(t, uint16(i), frag.FragmentNo)
				assert.Equal(t, test.expected, frag.FragmentCount)
				assert.Equal(t, uint16(9), frag.ConnectionID)
				assert.Equal(t, uint32(5), frag.FrameNo)
				assert.LessOrEqual(t, len(frag.Payload), MTUPayloadSize)
				total += len(frag.Payload)
			}
			assert.Equal(t, test.payload, total)
		})
	}
}

func TestFragmentedFrameSendOrder(t *testing.T) {
	ff, err := NewFragmentedFrame(2, 1, 83333, make([]byte, MTUPayloadSize*2+1))
	require.NoError(t, err)

	dest := &recordingDest{}
	require.NoError(t, ff.Send(dest))
	require.Len(t, dest.datagrams, 3)

	for i, data := range dest.datagrams {
		frag, err := ParseFragmentPacket(data)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), frag.FragmentNo)
	}
}

func TestFragmentedFrameSendFailure(t *testing.T) {
	ff, err := NewFragmentedFrame(2, 1, 83333, make([]byte, MTUPayloadSize+1))
	require.NoError(t, err)

	dest := &recordingDest{failAt: 2}
	err = ff.Send(dest)
	require.Error(t, err)
	assert.Len(t, dest.datagrams, 1)
}
