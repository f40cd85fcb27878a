// ABOUTME: FLAC source backed by mewkiz/flac
// ABOUTME: Parses one frame at a time and carries partial frames across reads
package decode

import (
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// FLAC decodes a FLAC stream
type FLAC struct {
	r        io.ReadCloser
	stream   *flac.Stream
	rate     int
	channels int
	bitDepth int
	meta     Metadata

	frame *frame.Frame
	pos   int
}

// NewFLAC takes ownership of r
func NewFLAC(r io.ReadCloser, meta Metadata) (*FLAC, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, openError(err, "flac")
	}
	info := stream.Info
	return &FLAC{
		r:        r,
		stream:   stream,
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
		bitDepth: int(info.BitsPerSample),
		meta:     meta,
	}, nil
}

func (s *FLAC) Read(samples []int32) (int, error) {
	want := wholeFrames(len(samples), s.channels)
	n := 0
	for n < want {
		if s.frame == nil || s.pos >= int(s.frame.BlockSize) {
			f, err := s.stream.ParseNext()
			if err == io.EOF {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			if err != nil {
				return n, decodeError(err, "flac")
			}
			s.frame, s.pos = f, 0
		}
		for s.pos < int(s.frame.BlockSize) && n < want {
			for ch := 0; ch < s.channels; ch++ {
				samples[n] = scaleTo24(s.frame.Subframes[ch].Samples[s.pos], s.bitDepth)
				n++
			}
			s.pos++
		}
	}
	return n, nil
}

// scaleTo24 moves a sample of the given bit depth into the 24-bit range
func scaleTo24(sample int32, bitDepth int) int32 {
	shift := bitDepth - 24
	switch {
	case shift > 0:
		return sample >> shift
	case shift < 0:
		return sample << -shift
	default:
		return sample
	}
}

func (s *FLAC) SampleRate() int    { return s.rate }
func (s *FLAC) Channels() int      { return s.channels }
func (s *FLAC) Metadata() Metadata { return s.meta }
func (s *FLAC) Close() error       { return s.r.Close() }
