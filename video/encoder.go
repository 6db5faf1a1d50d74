package video

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// MaxQuantizer is the coarsest quantizer level the encoder accepts.
	MaxQuantizer = 63

	// blockSize is the luma macroblock edge in pixels. Chroma blocks are
	// half this edge because of 4:2:0 subsampling.
	blockSize = 16
)

// ErrInvalidQuantizer indicates a quantizer level outside 0..MaxQuantizer.
var ErrInvalidQuantizer = errors.New("invalid quantizer level")

// BlockEncoder is a sequential-state intra-frame video encoder.
//
// Frames are split into 16x16 luma macroblocks (8x8 chroma). Each block's
// mean is predicted from its causal neighbors (above and left, falling back
// to mid-gray at the edges); residuals are quantized and run-length packed.
// The first frame after construction is a keyframe; later frames predict
// block means from the previously committed frame when dimensions match.
//
// Encoder state is single-owner and strictly sequential: an encode commits
// its successor state into the receiver. Concurrent encode attempts must
// each operate on their own Clone; exactly one clone's state may be adopted
// afterwards.
type BlockEncoder struct {
	width  uint16
	height uint16

	framesEncoded uint64

	// Committed per-block luma means of the last encoded frame, row-major
	// over macroblocks. Empty until the first commit.
	prevMeans []uint8
}

// encodeResult carries a finished payload together with the successor state
// it implies, so target-size probes can run without touching the encoder.
type encodeResult struct {
	payload []byte
	means   []uint8
}

// NewBlockEncoder creates an encoder for frames of the given dimensions.
//
// Parameters:
//   - width: Frame width in pixels (even, >= 16)
//   - height: Frame height in pixels (even, >= 16)
//
// Returns:
//   - *BlockEncoder: The new encoder
//   - error: Any error from dimension validation
func NewBlockEncoder(width, height uint16) (*BlockEncoder, error) {
	if err := ValidateFrameSize(width, height); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewBlockEncoder",
		"width":    width,
		"height":   height,
	}).Info("Creating new block encoder")

	return &BlockEncoder{
		width:  width,
		height: height,
	}, nil
}

// Clone returns an independent deep copy of the encoder state.
//
// Clones exist so that concurrent encode attempts within one cycle never
// alias the same mutable state; the attempt that wins the cycle hands its
// clone back as the next sequential state.
func (e *BlockEncoder) Clone() *BlockEncoder {
	cp := &BlockEncoder{
		width:         e.width,
		height:        e.height,
		framesEncoded: e.framesEncoded,
	}
	if len(e.prevMeans) > 0 {
		cp.prevMeans = make([]uint8, len(e.prevMeans))
		copy(cp.prevMeans, e.prevMeans)
	}
	return cp
}

// FramesEncoded returns the number of frames committed by this encoder.
func (e *BlockEncoder) FramesEncoded() uint64 { return e.framesEncoded }

// EncodeWithQuantizer encodes one frame at a fixed quantizer level and
// commits the successor state.
//
// Parameters:
//   - frame: The raster to encode (borrowed, not retained)
//   - quantizer: Quantizer level, 0 (finest) to MaxQuantizer (coarsest)
//
// Returns:
//   - []byte: The encoded payload
//   - error: Any error from validation or encoding
func (e *BlockEncoder) EncodeWithQuantizer(frame *VideoFrame, quantizer uint8) ([]byte, error) {
	result, err := e.encodeFrame(frame, quantizer)
	if err != nil {
		return nil, err
	}

	e.commit(result)

	logrus.WithFields(logrus.Fields{
		"function":  "BlockEncoder.EncodeWithQuantizer",
		"quantizer": quantizer,
		"bytes":     len(result.payload),
		"frame":     e.framesEncoded - 1,
	}).Debug("Frame encoded at fixed quantizer")

	return result.payload, nil
}

// EncodeWithTargetSize encodes one frame so the payload does not exceed
// targetBytes, choosing the finest quantizer that fits.
//
// The search probes quantizer levels by bisection without mutating encoder
// state; only the chosen result is committed. If even the coarsest level
// does not fit, its payload is returned anyway so the caller can still send
// something rather than stall.
//
// Parameters:
//   - frame: The raster to encode (borrowed, not retained)
//   - targetBytes: Payload ceiling in bytes (must be positive)
//
// Returns:
//   - []byte: The encoded payload
//   - error: Any error from validation or encoding
func (e *BlockEncoder) EncodeWithTargetSize(frame *VideoFrame, targetBytes int) ([]byte, error) {
	if targetBytes <= 0 {
		return nil, fmt.Errorf("invalid target size: %d", targetBytes)
	}

	// Payload size is non-increasing in the quantizer level, so bisect for
	// the smallest level whose payload fits.
	lo, hi := 0, MaxQuantizer
	var chosen *encodeResult

	for lo <= hi {
		mid := (lo + hi) / 2

		result, err := e.encodeFrame(frame, uint8(mid))
		if err != nil {
			return nil, err
		}

		if len(result.payload) <= targetBytes {
			chosen = result
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}

	if chosen == nil {
		// Nothing fits; fall back to the coarsest level.
		result, err := e.encodeFrame(frame, MaxQuantizer)
		if err != nil {
			return nil, err
		}
		chosen = result

		logrus.WithFields(logrus.Fields{
			"function":     "BlockEncoder.EncodeWithTargetSize",
			"target_bytes": targetBytes,
			"actual_bytes": len(chosen.payload),
		}).Debug("Target size unreachable, sending coarsest encoding")
	}

	e.commit(chosen)

	logrus.WithFields(logrus.Fields{
		"function":     "BlockEncoder.EncodeWithTargetSize",
		"target_bytes": targetBytes,
		"bytes":        len(chosen.payload),
		"frame":        e.framesEncoded - 1,
	}).Debug("Frame encoded at target size")

	return chosen.payload, nil
}

// commit adopts an encode result as the encoder's successor state.
func (e *BlockEncoder) commit(result *encodeResult) {
	e.prevMeans = result.means
	e.framesEncoded++
}

// lumaBlock is one macroblock's state during encoding. Blocks are built in
// a causal grid so each can read the predicted means of its upper and left
// neighbors before computing its own.
type lumaBlock struct {
	mean      uint8
	predicted uint8
}

// encodeFrame produces a payload and successor state without mutating the
// encoder.
func (e *BlockEncoder) encodeFrame(frame *VideoFrame, quantizer uint8) (*encodeResult, error) {
	if quantizer > MaxQuantizer {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantizer, quantizer)
	}
	if frame == nil {
		return nil, errors.New("frame cannot be nil")
	}
	if frame.Width != e.width || frame.Height != e.height {
		return nil, fmt.Errorf("frame size mismatch: expected %dx%d, got %dx%d",
			e.width, e.height, frame.Width, frame.Height)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	blockCols := (int(e.width) + blockSize - 1) / blockSize
	blockRows := (int(e.height) + blockSize - 1) / blockSize

	delta := len(e.prevMeans) == blockCols*blockRows

	// Payload header: dimensions, quantizer, keyframe flag.
	payload := make([]byte, 0, 6+blockCols*blockRows)
	payload = append(payload,
		byte(e.width>>8), byte(e.width),
		byte(e.height>>8), byte(e.height),
		quantizer)
	if delta {
		payload = append(payload, 0x01)
	} else {
		payload = append(payload, 0x00)
	}

	means := make([]uint8, 0, blockCols*blockRows)
	step := int(quantizer)*2 + 1

	// The grid constructor sees each block's already-built neighbors, which
	// is exactly the causal ordering spatial prediction needs.
	grid, err := NewGrid(blockCols, blockRows, func(ctx GridContext[lumaBlock]) lumaBlock {
		mean := blockMean(frame.Y, frame.YStride, ctx.Column*blockSize, ctx.Row*blockSize,
			int(e.width), int(e.height))

		var predicted int
		switch {
		case ctx.Above.Ok() && ctx.Left.Ok():
			predicted = (int(ctx.Above.Get().mean) + int(ctx.Left.Get().mean)) / 2
		case ctx.Above.Ok():
			predicted = int(ctx.Above.Get().mean)
		case ctx.Left.Ok():
			predicted = int(ctx.Left.Get().mean)
		default:
			predicted = 128
		}

		return lumaBlock{mean: mean, predicted: uint8(predicted)}
	})
	if err != nil {
		return nil, err
	}

	coder := newResidualCoder(step)
	grid.ForEach(func(block *lumaBlock, column, row int) {
		reference := int(block.predicted)
		if delta {
			reference = int(e.prevMeans[row*blockCols+column])
		}
		coder.write(int(block.mean) - reference)
		means = append(means, block.mean)
	})

	// Chroma planes ride along at quarter resolution, predicted only from
	// the previous frame's implied mid value.
	for _, plane := range []struct {
		data   []byte
		stride int
	}{{frame.U, frame.UStride}, {frame.V, frame.VStride}} {
		cw, ch := int(e.width)/2, int(e.height)/2
		cCols := (cw + blockSize/2 - 1) / (blockSize / 2)
		cRows := (ch + blockSize/2 - 1) / (blockSize / 2)
		for row := 0; row < cRows; row++ {
			for column := 0; column < cCols; column++ {
				mean := blockMeanSized(plane.data, plane.stride,
					column*blockSize/2, row*blockSize/2, cw, ch, blockSize/2)
				coder.write(int(mean) - 128)
			}
		}
	}

	payload = append(payload, coder.finish()...)

	return &encodeResult{payload: payload, means: means}, nil
}

// blockMean computes the average of one luma macroblock, clipped to the
// frame edge.
func blockMean(plane []byte, stride, x, y, width, height int) uint8 {
	return blockMeanSized(plane, stride, x, y, width, height, blockSize)
}

func blockMeanSized(plane []byte, stride, x, y, width, height, size int) uint8 {
	var sum, count int
	for row := y; row < y+size && row < height; row++ {
		base := row * stride
		for col := x; col < x+size && col < width; col++ {
			sum += int(plane[base+col])
			count++
		}
	}
	if count == 0 {
		return 128
	}
	return uint8(sum / count)
}

// residualCoder quantizes signed residuals and packs them with zero
// run-length coding: a zero byte followed by a run count, or a zig-zag
// encoded non-zero level.
type residualCoder struct {
	step    int
	zeroRun int
	out     []byte
}

func newResidualCoder(step int) *residualCoder {
	return &residualCoder{step: step}
}

func (c *residualCoder) write(residual int) {
	level := residual / c.step

	if level == 0 {
		c.zeroRun++
		if c.zeroRun == 255 {
			c.flushZeros()
		}
		return
	}

	c.flushZeros()

	// Zig-zag map signed levels into unsigned bytes, saturating at the
	// representable range; coarse quantizers keep levels tiny anyway.
	zz := level * 2
	if level < 0 {
		zz = -level*2 - 1
	}
	if zz > 253 {
		zz = 253
	}
	c.out = append(c.out, byte(zz+1))
}

func (c *residualCoder) flushZeros() {
	if c.zeroRun == 0 {
		return
	}
	c.out = append(c.out, 0x00, byte(c.zeroRun))
	c.zeroRun = 0
}

func (c *residualCoder) finish() []byte {
	c.flushZeros()
	return c.out
}
