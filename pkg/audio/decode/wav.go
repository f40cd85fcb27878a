// ABOUTME: WAV source backed by go-audio/wav
// ABOUTME: Reads PCM chunks through an IntBuffer and normalizes bit depth
package decode

import (
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

// WAV decodes a RIFF WAVE file
type WAV struct {
	r        io.ReadSeekCloser
	decoder  *wav.Decoder
	rate     int
	channels int
	bitDepth int
	meta     Metadata
	buf      *goaudio.IntBuffer
}

// NewWAV takes ownership of r
func NewWAV(r io.ReadSeekCloser, meta Metadata) (*WAV, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV file").
			Component("decode").
			Category(errors.CategoryDecode).
			Context("codec", "wav").
			Build()
	}

	s := &WAV{
		r:        r,
		decoder:  decoder,
		rate:     int(decoder.SampleRate),
		channels: int(decoder.NumChans),
		bitDepth: int(decoder.BitDepth),
		meta:     meta,
	}
	switch s.bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Newf("unsupported WAV bit depth %d", s.bitDepth).
			Component("decode").
			Category(errors.CategoryDecode).
			Context("codec", "wav").
			Build()
	}
	s.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{SampleRate: s.rate, NumChannels: s.channels},
	}
	return s, nil
}

func (s *WAV) Read(samples []int32) (int, error) {
	want := wholeFrames(len(samples), s.channels)
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, decodeError(err, "wav")
	}
	n = wholeFrames(n, s.channels)
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		samples[i] = wavTo24(v, s.bitDepth)
	}
	return n, nil
}

// wavTo24 converts go-audio's integer sample to the 24-bit range.
// 8-bit WAV is unsigned.
func wavTo24(v, bitDepth int) int32 {
	switch bitDepth {
	case 8:
		return int32(v-128) << 16
	case 16:
		return int32(v) << 8
	case 32:
		return int32(v) >> 8
	default:
		return int32(v)
	}
}

func (s *WAV) SampleRate() int    { return s.rate }
func (s *WAV) Channels() int      { return s.channels }
func (s *WAV) Metadata() Metadata { return s.meta }
func (s *WAV) Close() error       { return s.r.Close() }
