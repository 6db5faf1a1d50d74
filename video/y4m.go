package video

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// y4mSignature is the magic word that opens every YUV4MPEG2 stream.
const y4mSignature = "YUV4MPEG2"

// ErrUnsupportedColorSpace indicates the stream uses a chroma layout other
// than 4:2:0, which the encoder cannot consume.
var ErrUnsupportedColorSpace = errors.New("unsupported YUV4MPEG2 color space")

// Y4MReader reads uncompressed YUV420 frames from a YUV4MPEG2 stream.
//
// This is the sender's frame source: it parses the stream header once at
// construction and then yields one VideoFrame per FRAME record. A clean end
// of stream is reported as io.EOF from Next; any other parse failure is a
// hard error.
//
// The reader is not safe for concurrent use; the reactor's frame pump is its
// only caller.
type Y4MReader struct {
	reader *bufio.Reader
	width  uint16
	height uint16

	fpsNumerator   uint32
	fpsDenominator uint32

	frameSize  int // Y + U + V bytes per frame
	framesRead uint64
}

// NewY4MReader parses the YUV4MPEG2 stream header and prepares to read
// frames.
//
// Accepted color space tags are C420, C420jpeg, C420paldv and C420mpeg2
// (all carry 4:2:0 planes; the sub-sample siting differences do not matter
// to the encoder). A missing C tag defaults to C420 per the format.
//
// Parameters:
//   - r: The raw stream, typically stdin
//
// Returns:
//   - *Y4MReader: The prepared reader
//   - error: Any error from header parsing
func NewY4MReader(r io.Reader) (*Y4MReader, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	header, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read YUV4MPEG2 header: %w", err)
	}
	header = strings.TrimSuffix(header, "\n")

	fields := strings.Split(header, " ")
	if len(fields) == 0 || fields[0] != y4mSignature {
		return nil, fmt.Errorf("not a YUV4MPEG2 stream: %q", header)
	}

	reader := &Y4MReader{
		reader:         br,
		fpsNumerator:   0,
		fpsDenominator: 1,
	}

	if err := reader.parseHeaderFields(fields[1:]); err != nil {
		return nil, err
	}

	if err := ValidateFrameSize(reader.width, reader.height); err != nil {
		return nil, fmt.Errorf("stream declares unusable dimensions: %w", err)
	}

	ySize := int(reader.width) * int(reader.height)
	reader.frameSize = ySize + ySize/2

	logrus.WithFields(logrus.Fields{
		"function": "NewY4MReader",
		"width":    reader.width,
		"height":   reader.height,
		"fps_num":  reader.fpsNumerator,
		"fps_den":  reader.fpsDenominator,
	}).Info("YUV4MPEG2 stream header parsed")

	return reader, nil
}

// parseHeaderFields interprets the tagged parameters of the stream header.
func (r *Y4MReader) parseHeaderFields(fields []string) error {
	for _, field := range fields {
		if field == "" {
			continue
		}

		tag, value := field[0], field[1:]
		switch tag {
		case 'W':
			w, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid width %q: %w", value, err)
			}
			r.width = uint16(w)
		case 'H':
			h, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid height %q: %w", value, err)
			}
			r.height = uint16(h)
		case 'F':
			num, den, ok := strings.Cut(value, ":")
			if !ok {
				return fmt.Errorf("invalid frame rate %q", value)
			}
			n, err := strconv.ParseUint(num, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid frame rate numerator %q: %w", num, err)
			}
			d, err := strconv.ParseUint(den, 10, 32)
			if err != nil || d == 0 {
				return fmt.Errorf("invalid frame rate denominator %q", den)
			}
			r.fpsNumerator = uint32(n)
			r.fpsDenominator = uint32(d)
		case 'C':
			switch value {
			case "420", "420jpeg", "420paldv", "420mpeg2":
				// 4:2:0 variants all carry the plane layout we need.
			default:
				return fmt.Errorf("%w: C%s", ErrUnsupportedColorSpace, value)
			}
		case 'I', 'A', 'X':
			// Interlacing, aspect ratio and extensions are irrelevant to a
			// raw-plane reader.
		default:
			logrus.WithFields(logrus.Fields{
				"function": "parseHeaderFields",
				"field":    field,
			}).Debug("Ignoring unknown YUV4MPEG2 header field")
		}
	}

	if r.width == 0 || r.height == 0 {
		return errors.New("YUV4MPEG2 header missing W or H field")
	}

	return nil
}

// Next reads the next frame from the stream.
//
// Returns:
//   - *VideoFrame: The decoded frame, freshly allocated
//   - error: io.EOF on clean end of stream, otherwise a parse/read error
func (r *Y4MReader) Next() (*VideoFrame, error) {
	marker, err := r.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && marker == "" {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read FRAME marker: %w", err)
	}

	// A frame record is "FRAME" optionally followed by parameters.
	marker = strings.TrimSuffix(marker, "\n")
	if marker != "FRAME" && !strings.HasPrefix(marker, "FRAME ") {
		return nil, fmt.Errorf("malformed FRAME marker: %q", marker)
	}

	frame, err := NewVideoFrame(r.width, r.height)
	if err != nil {
		return nil, err
	}

	for _, plane := range [][]byte{frame.Y, frame.U, frame.V} {
		if _, err := io.ReadFull(r.reader, plane); err != nil {
			return nil, fmt.Errorf("truncated frame %d: %w", r.framesRead, err)
		}
	}

	r.framesRead++

	logrus.WithFields(logrus.Fields{
		"function": "Y4MReader.Next",
		"frame":    r.framesRead - 1,
	}).Debug("Frame read from input stream")

	return frame, nil
}

// DisplayWidth returns the stream's declared frame width in pixels.
func (r *Y4MReader) DisplayWidth() uint16 { return r.width }

// DisplayHeight returns the stream's declared frame height in pixels.
func (r *Y4MReader) DisplayHeight() uint16 { return r.height }

// FrameRate returns the stream's declared frame rate as a rational, or
// (0, 1) if the stream did not declare one.
func (r *Y4MReader) FrameRate() (numerator, denominator uint32) {
	return r.fpsNumerator, r.fpsDenominator
}
