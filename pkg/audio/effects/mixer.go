// ABOUTME: Effects mixer that overlays queued PCM onto rendered periods
// ABOUTME: Producers queue sounds from any goroutine; Mix sums them in place with saturation
package effects

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/decode"
)

// ErrQueueFull is returned when a sound does not fit in the queue
var ErrQueueFull = errors.NewStd("effects queue full")

const (
	// DefaultQueueBytes holds two seconds of stereo audio at 48 kHz
	DefaultQueueBytes = 2 * 48000 * audio.FrameBytes
	// DefaultChunkBytes bounds how much is summed per pass
	DefaultChunkBytes = 4096 * audio.FrameBytes
)

// Config configures a Mixer. Zero values take defaults.
type Config struct {
	QueueBytes int
	ChunkBytes int
	Gain       audio.Fixed // unity when zero
	Logger     *slog.Logger
}

// Mixer queues S32 stereo frames and adds them to the engine's output.
// Effects play at the open session's rate; nothing is resampled.
type Mixer struct {
	mu      sync.Mutex // serializes producers
	queue   *ringbuffer.RingBuffer
	scratch []byte
	gain    atomic.Int32
	dropped atomic.Uint64
	logger  *slog.Logger
}

// New creates a mixer
func New(cfg Config) *Mixer {
	if cfg.QueueBytes <= 0 {
		cfg.QueueBytes = DefaultQueueBytes
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultChunkBytes
	}
	if cfg.Gain == 0 {
		cfg.Gain = audio.FixedOne
	}
	m := &Mixer{
		queue:   ringbuffer.New(audio.AlignFrames(cfg.QueueBytes)),
		scratch: make([]byte, max(audio.AlignFrames(cfg.ChunkBytes), audio.FrameBytes)),
		logger:  logger.OrDiscard(cfg.Logger),
	}
	m.gain.Store(int32(cfg.Gain))
	return m
}

// Play queues whole frames from p. A sound that does not fit is dropped
// entirely.
func (m *Mixer) Play(p []byte) error {
	p = p[:audio.AlignFrames(len(p))]
	if len(p) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue.Free() < len(p) {
		m.dropped.Add(1)
		m.logger.Debug("effect dropped", "bytes", len(p), "free", m.queue.Free())
		return errors.New(ErrQueueFull).
			Component("effects").
			Category(errors.CategoryBuffer).
			Context("bytes", len(p)).
			Build()
	}
	if _, err := m.queue.Write(p); err != nil {
		return errors.New(err).
			Component("effects").
			Category(errors.CategoryBuffer).
			Build()
	}
	return nil
}

// PlaySource decodes src completely and queues it
func (m *Mixer) PlaySource(src decode.Source) error {
	frames, err := Load(src)
	if err != nil {
		return err
	}
	return m.Play(frames)
}

// PlayFile opens, decodes and queues a sound file
func (m *Mixer) PlayFile(path string) error {
	src, err := decode.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	return m.PlaySource(src)
}

// Load reads src to the end and returns S32 stereo frames. Mono is
// duplicated and channels past the second are dropped.
func Load(src decode.Source) ([]byte, error) {
	channels := src.Channels()
	if channels < 1 {
		return nil, errors.Newf("source has %d channels", channels).
			Component("effects").
			Category(errors.CategoryDecode).
			Build()
	}

	var out []byte
	samples := make([]int32, 1024*channels)
	for {
		n, err := src.Read(samples)
		for i := 0; i+channels <= n; i += channels {
			left := audio.SampleFrom24(samples[i])
			right := left
			if channels > 1 {
				right = audio.SampleFrom24(samples[i+1])
			}
			var frame [audio.FrameBytes]byte
			audio.PutFrame(frame[:], left, right)
			out = append(out, frame[:]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Mix adds queued frames into the first n bytes of out. It runs on the
// render goroutine and does not allocate.
func (m *Mixer) Mix(out []byte, n int) {
	n = audio.AlignFrames(min(n, len(out)))
	gain := audio.Fixed(m.gain.Load())

	for off := 0; off < n; {
		chunk := min(n-off, len(m.scratch))
		read, err := m.queue.Read(m.scratch[:chunk])
		if err != nil || read == 0 {
			return
		}
		dst := out[off:]
		for i := 0; i < read; i += audio.SampleBytes {
			fx := audio.FixedMul(gain, audio.ReadSample(m.scratch[i:]))
			audio.PutSample(dst[i:], audio.MixSaturating(audio.ReadSample(dst[i:]), fx))
		}
		off += read
	}
}

// SetGain scales queued effects when they are mixed
func (m *Mixer) SetGain(g audio.Fixed) {
	m.gain.Store(int32(g))
}

// Gain returns the effects gain
func (m *Mixer) Gain() audio.Fixed {
	return audio.Fixed(m.gain.Load())
}

// Pending returns queued bytes not yet mixed
func (m *Mixer) Pending() int {
	return m.queue.Length()
}

// Dropped counts sounds rejected because the queue was full
func (m *Mixer) Dropped() uint64 {
	return m.dropped.Load()
}

// Clear discards queued sounds
func (m *Mixer) Clear() {
	m.mu.Lock()
	m.queue.Reset()
	m.mu.Unlock()
}
