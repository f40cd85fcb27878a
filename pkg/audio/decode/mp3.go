// ABOUTME: MP3 source backed by go-mp3
// ABOUTME: go-mp3 always yields 16-bit stereo which is widened to 24-bit range
package decode

import (
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

const mp3Channels = 2

// MP3 decodes an MP3 stream
type MP3 struct {
	r       io.ReadCloser
	decoder *mp3.Decoder
	meta    Metadata
	buf     []byte
	done    bool
}

// NewMP3 takes ownership of r
func NewMP3(r io.ReadCloser, meta Metadata) (*MP3, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, openError(err, "mp3")
	}
	return &MP3{r: r, decoder: decoder, meta: meta}, nil
}

func (s *MP3) Read(samples []int32) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	want := wholeFrames(len(samples), mp3Channels)
	if cap(s.buf) < want*2 {
		s.buf = make([]byte, want*2)
	}
	buf := s.buf[:want*2]

	n, err := io.ReadFull(s.decoder, buf)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		s.done = true
	default:
		return 0, decodeError(err, "mp3")
	}

	count := wholeFrames(n/2, mp3Channels)
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if count == 0 && s.done {
		return 0, io.EOF
	}
	return count, nil
}

func (s *MP3) SampleRate() int    { return s.decoder.SampleRate() }
func (s *MP3) Channels() int      { return mp3Channels }
func (s *MP3) Metadata() Metadata { return s.meta }
func (s *MP3) Close() error       { return s.r.Close() }
