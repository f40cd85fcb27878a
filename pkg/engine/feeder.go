// ABOUTME: Control-side producer that pumps a decoded source into the engine
// ABOUTME: Marks track start points and throttles on a ticker while the buffer is full
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
)

// Source yields interleaved samples in the 24-bit-in-int32 convention.
// Read returns io.EOF once exhausted.
type Source interface {
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
}

// FeederConfig configures a Feeder
type FeederConfig struct {
	ChunkFrames  int           // frames decoded per read, 4096 when zero
	PollInterval time.Duration // wait between attempts while the buffer is full, 10ms when zero
	Logger       *slog.Logger
}

// Feeder decodes sources into an engine's ring buffer
type Feeder struct {
	engine  *Engine
	chunk   int
	poll    time.Duration
	logger  *slog.Logger
	samples []int32
	frames  []byte
}

// NewFeeder creates a feeder for e
func NewFeeder(e *Engine, cfg FeederConfig) *Feeder {
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = 4096
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return &Feeder{
		engine: e,
		chunk:  cfg.ChunkFrames,
		poll:   cfg.PollInterval,
		logger: logger.OrDiscard(cfg.Logger),
		frames: make([]byte, audio.FramesToBytes(cfg.ChunkFrames)),
	}
}

// Play marks a start point at the source's rate and enqueues the whole
// source, waiting for buffer space as needed. It returns the frames
// enqueued; the audio may still be buffered when it returns.
func (f *Feeder) Play(ctx context.Context, src Source) (int64, error) {
	channels := src.Channels()
	if channels < 1 {
		return 0, errors.Newf("source has %d channels", channels).
			Component("feeder").
			Category(errors.CategoryDecode).
			Build()
	}
	rate := src.SampleRate()
	if clamped := f.engine.ClampRate(rate); clamped != rate {
		f.logger.Warn("source rate above engine maximum, playing at maximum",
			"source_rate", rate,
			"max_rate", clamped)
	}

	if need := f.chunk * channels; cap(f.samples) < need {
		f.samples = make([]int32, need)
	}
	samples := f.samples[:f.chunk*channels]

	f.engine.MarkStartPoint(rate)

	var total int64
	for {
		n, err := src.Read(samples)
		if n > 0 {
			frames := n / channels
			f.interleave(samples[:frames*channels], channels)
			if werr := f.write(ctx, f.frames[:audio.FramesToBytes(frames)]); werr != nil {
				return total, werr
			}
			total += int64(frames)
		}
		if err == io.EOF {
			f.logger.Debug("source exhausted", "frames", total, "sample_rate", rate)
			return total, nil
		}
		if err != nil {
			return total, errors.New(err).
				Component("feeder").
				Category(errors.CategoryDecode).
				Context("frames", total).
				Build()
		}
	}
}

// interleave converts source samples to full-scale stereo frames.
// Mono is duplicated, extra channels beyond two are dropped.
func (f *Feeder) interleave(samples []int32, channels int) {
	frames := len(samples) / channels
	for i := 0; i < frames; i++ {
		left := audio.SampleFrom24(samples[i*channels])
		right := left
		if channels > 1 {
			right = audio.SampleFrom24(samples[i*channels+1])
		}
		audio.PutFrame(f.frames[i*audio.FrameBytes:], left, right)
	}
}

// write enqueues p, polling while the buffer is full
func (f *Feeder) write(ctx context.Context, p []byte) error {
	p = p[f.engine.EnqueueSamples(p):]
	if len(p) == 0 {
		return nil
	}

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for len(p) > 0 {
		select {
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component("feeder").
				Category(errors.CategoryCancellation).
				Build()
		case <-ticker.C:
			p = p[f.engine.EnqueueSamples(p):]
		}
	}
	return nil
}

// WaitDrained blocks until the buffer is empty or ctx ends. A paused
// engine keeps it waiting; Stop empties the buffer and releases it.
func (f *Feeder) WaitDrained(ctx context.Context) error {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		if f.engine.BufferedBytes() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component("feeder").
				Category(errors.CategoryCancellation).
				Build()
		case <-ticker.C:
		}
	}
}
