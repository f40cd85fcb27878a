// ABOUTME: Ogg Opus source backed by hraban/opus
// ABOUTME: Opus always decodes at 48 kHz; the channel count comes from the OpusHead packet
package decode

import (
	"bufio"
	"bytes"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// OpusRate is the rate libopusfile decodes every stream at
const OpusRate = 48000

// opusHeadScan is how far into the file the OpusHead packet is searched for
const opusHeadScan = 512

// Opus decodes an Ogg Opus file
type Opus struct {
	r        io.ReadSeekCloser
	stream   *opus.Stream
	channels int
	meta     Metadata
	pcm      []int16
}

// NewOpus takes ownership of r
func NewOpus(r io.ReadSeekCloser, meta Metadata) (*Opus, error) {
	head := make([]byte, opusHeadScan)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, openError(err, "opus")
	}
	channels, err := opusChannels(head[:n])
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, openError(err, "opus")
	}

	// bufio keeps the stream from closing r itself
	stream, err := opus.NewStream(bufio.NewReader(r))
	if err != nil {
		return nil, openError(err, "opus")
	}
	return &Opus{r: r, stream: stream, channels: channels, meta: meta}, nil
}

// opusChannels finds the channel count in the OpusHead identification packet
func opusChannels(head []byte) (int, error) {
	idx := bytes.Index(head, []byte("OpusHead"))
	if idx < 0 || idx+9 >= len(head) {
		return 0, errors.Newf("no OpusHead packet").
			Component("decode").
			Category(errors.CategoryDecode).
			Context("codec", "opus").
			Build()
	}
	channels := int(head[idx+9])
	if channels < 1 || channels > 2 {
		return 0, errors.Newf("unsupported opus channel count %d", channels).
			Component("decode").
			Category(errors.CategoryDecode).
			Context("codec", "opus").
			Build()
	}
	return channels, nil
}

func (s *Opus) Read(samples []int32) (int, error) {
	want := wholeFrames(len(samples), s.channels)
	if cap(s.pcm) < want {
		s.pcm = make([]int16, want)
	}
	pcm := s.pcm[:want]

	frames, err := s.stream.Read(pcm)
	if err != nil {
		return 0, decodeError(err, "opus")
	}
	n := frames * s.channels
	for i, v := range pcm[:n] {
		samples[i] = audio.SampleFromInt16(v)
	}
	return n, nil
}

func (s *Opus) SampleRate() int    { return OpusRate }
func (s *Opus) Channels() int      { return s.channels }
func (s *Opus) Metadata() Metadata { return s.meta }

func (s *Opus) Close() error {
	return errors.Join(s.stream.Close(), s.r.Close())
}
