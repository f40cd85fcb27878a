package engine

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
)

var errFakeOpen = errors.NewStd("fake device busy")

// fakeSink records every session and lets tests drive periods by hand
type fakeSink struct {
	mu        sync.Mutex
	streams   []*fakeStream
	failOpen  int
	failStart bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Open(cfg output.StreamConfig, cb output.Callbacks) (output.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen > 0 {
		f.failOpen--
		return nil, errFakeOpen
	}
	s := &fakeStream{cfg: cfg, cb: cb, failStart: f.failStart}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSink) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeSink) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeSink) rates() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	rates := make([]int, 0, len(f.streams))
	for _, s := range f.streams {
		rates = append(rates, s.cfg.SampleRate)
	}
	return rates
}

type fakeStream struct {
	cfg       output.StreamConfig
	cb        output.Callbacks
	failStart bool

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) SampleRate() int { return s.cfg.SampleRate }

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStart {
		return errFakeOpen
	}
	s.started = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// render runs one period into a buffer pre-filled with garbage so that
// zero-filling is observable
func (s *fakeStream) render(frames int) []byte {
	out := make([]byte, audio.FramesToBytes(frames))
	for i := range out {
		out[i] = 0xAA
	}
	res := s.cb.Render(out, frames)
	if res != output.Continue {
		panic("render must always continue")
	}
	return out
}

// finish simulates the backend ending the session on its own
func (s *fakeStream) finish() {
	s.cb.Finished()
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	e, err := New(sink, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, sink
}

// makeFrames builds n stereo frames where frame i is (i*step+1, -(i*step+1))
func makeFrames(n int, step audio.Sample) []byte {
	b := make([]byte, audio.FramesToBytes(n))
	for i := 0; i < n; i++ {
		v := audio.Sample(i)*step + 1
		audio.PutFrame(b[i*audio.FrameBytes:], v, -v)
	}
	return b
}

func frameAt(b []byte, i int) (audio.Sample, audio.Sample) {
	off := i * audio.FrameBytes
	return audio.ReadSample(b[off:]), audio.ReadSample(b[off+audio.SampleBytes:])
}

// fakeSource yields interleaved 24-bit samples
type fakeSource struct {
	rate     int
	channels int
	data     []int32
	pos      int
	err      error
}

func (s *fakeSource) SampleRate() int { return s.rate }
func (s *fakeSource) Channels() int   { return s.channels }

func (s *fakeSource) Read(samples []int32) (int, error) {
	if s.pos >= len(s.data) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(samples, s.data[s.pos:])
	s.pos += n
	return n, nil
}

// recordingMixer adds a constant to every byte it is handed
type recordingMixer struct {
	state *PlaybackState
	calls int
	lastN int
}

func (m *recordingMixer) Mix(out []byte, n int) {
	// must not be called with the state lock held
	if m.state != nil {
		_ = m.state.Status()
	}
	m.calls++
	m.lastN = n
	for i := 0; i < n; i++ {
		out[i]++
	}
}
