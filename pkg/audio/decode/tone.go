// ABOUTME: Sine tone generator used for output checks and tests
// ABOUTME: Produces a fixed-frequency tone at any rate, optionally for a fixed duration
package decode

import (
	"io"
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// ToneConfig configures a Tone. Zero values take defaults.
type ToneConfig struct {
	Frequency  float64       // Hz, 440 when zero
	Amplitude  float64       // 0..1 of full scale, 0.5 when zero
	SampleRate int           // 44100 when zero
	Channels   int           // 2 when zero
	Duration   time.Duration // endless when zero
}

// Tone generates a sine wave
type Tone struct {
	cfg   ToneConfig
	index uint64
	limit uint64 // total frames, 0 for endless
}

// NewTone creates a tone generator
func NewTone(cfg ToneConfig) *Tone {
	if cfg.Frequency <= 0 {
		cfg.Frequency = 440
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		cfg.Amplitude = 0.5
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	t := &Tone{cfg: cfg}
	if cfg.Duration > 0 {
		t.limit = uint64(cfg.Duration.Seconds() * float64(cfg.SampleRate))
	}
	return t
}

func (t *Tone) Read(samples []int32) (int, error) {
	ch := t.cfg.Channels
	frames := len(samples) / ch
	if t.limit > 0 {
		left := t.limit - t.index
		if left == 0 {
			return 0, io.EOF
		}
		if uint64(frames) > left {
			frames = int(left)
		}
	}

	step := 2 * math.Pi * t.cfg.Frequency / float64(t.cfg.SampleRate)
	scale := t.cfg.Amplitude * audio.Max24Bit
	for i := 0; i < frames; i++ {
		v := int32(math.Sin(step*float64(t.index+uint64(i))) * scale)
		for c := 0; c < ch; c++ {
			samples[i*ch+c] = v
		}
	}
	t.index += uint64(frames)
	return frames * ch, nil
}

func (t *Tone) SampleRate() int { return t.cfg.SampleRate }
func (t *Tone) Channels() int   { return t.cfg.Channels }
func (t *Tone) Close() error    { return nil }

func (t *Tone) Metadata() Metadata {
	return Metadata{Title: "Test Tone", Artist: "playout"}
}
