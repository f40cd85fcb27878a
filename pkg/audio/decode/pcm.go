// ABOUTME: Raw PCM source for headerless little-endian audio
// ABOUTME: Converts 16-bit and 24-bit samples to the 24-bit-in-int32 convention
package decode

import (
	"encoding/binary"
	"io"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// PCM reads raw interleaved samples of a known format
type PCM struct {
	r      io.ReadCloser
	format audio.Format
	meta   Metadata
	buf    []byte
	done   bool
}

// NewPCM takes ownership of r
func NewPCM(r io.ReadCloser, format audio.Format, meta Metadata) (*PCM, error) {
	if format.Codec != "pcm" {
		return nil, errors.Newf("invalid codec for PCM source: %s", format.Codec).
			Component("decode").
			Category(errors.CategoryValidation).
			Build()
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, errors.Newf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth).
			Component("decode").
			Category(errors.CategoryValidation).
			Build()
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, errors.Newf("invalid PCM format %d Hz, %d channels", format.SampleRate, format.Channels).
			Component("decode").
			Category(errors.CategoryValidation).
			Build()
	}
	return &PCM{r: r, format: format, meta: meta}, nil
}

func (s *PCM) Read(samples []int32) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	width := s.format.BitDepth / 8
	want := wholeFrames(len(samples), s.format.Channels)
	if cap(s.buf) < want*width {
		s.buf = make([]byte, want*width)
	}
	buf := s.buf[:want*width]

	n, err := io.ReadFull(s.r, buf)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		s.done = true
	default:
		return 0, decodeError(err, "pcm")
	}

	whole := wholeFrames(n/width, s.format.Channels)
	count := DecodePCM(samples, buf[:whole*width], s.format.BitDepth)
	if count == 0 && s.done {
		return 0, io.EOF
	}
	return count, nil
}

// DecodePCM converts little-endian 16 or 24-bit samples in data into dst
// and returns how many were written
func DecodePCM(dst []int32, data []byte, bitDepth int) int {
	if bitDepth == 24 {
		n := min(len(data)/3, len(dst))
		for i := 0; i < n; i++ {
			dst[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return n
	}
	n := min(len(data)/2, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return n
}

func (s *PCM) SampleRate() int    { return s.format.SampleRate }
func (s *PCM) Channels() int      { return s.format.Channels }
func (s *PCM) Metadata() Metadata { return s.meta }
func (s *PCM) Close() error       { return s.r.Close() }
