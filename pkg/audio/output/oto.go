//go:build oto

// ABOUTME: Oto-based pull sink
// ABOUTME: Feeds an oto player from the render callback through a float32 reader
package output

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// oto only allows one context per process, so its rate is fixed by the
// first Open
var (
	otoOnce    sync.Once
	otoCtx     *oto.Context
	otoRate    int
	otoInitErr error
)

// Oto opens sessions on the process-wide oto context
type Oto struct{}

// NewOto creates a new Oto sink
func NewOto() *Oto {
	return &Oto{}
}

// Name identifies the backend
func (o *Oto) Name() string {
	return "oto"
}

func ensureOtoContext(cfg StreamConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: audio.Channels,
			Format:       oto.FormatFloat32LE,
		}
		if cfg.PeriodFrames > 0 {
			op.BufferSize = time.Duration(cfg.PeriodFrames) * time.Second / time.Duration(cfg.SampleRate)
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoInitErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = cfg.SampleRate
	})
	if otoInitErr != nil {
		return nil, errors.New(otoInitErr).
			Component("output").
			Category(errors.CategoryAudio).
			Build()
	}
	return otoCtx, nil
}

// Open creates a player at cfg.SampleRate. Once the context exists,
// any other rate fails with ErrRateUnsupported.
func (o *Oto) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cb.validate(); err != nil {
		return nil, err
	}
	if cfg.Device != "" {
		return nil, errors.New(ErrDeviceNotFound).
			Component("output").
			Category(errors.CategoryNotFound).
			Context("device", cfg.Device).
			Context("backend", "oto").
			Build()
	}

	ctx, err := ensureOtoContext(cfg)
	if err != nil {
		return nil, err
	}
	if otoRate != cfg.SampleRate {
		return nil, errors.New(ErrRateUnsupported).
			Component("output").
			Category(errors.CategoryAudio).
			Context("context_rate", otoRate).
			Context("sample_rate", cfg.SampleRate).
			Build()
	}

	s := &otoStream{rate: cfg.SampleRate, finished: cb.Finished}
	s.player = ctx.NewPlayer(newRenderReader(cb.Render, s.finish))
	return s, nil
}

type otoStream struct {
	player   *oto.Player
	rate     int
	finished func()
	closing  atomic.Bool
}

func (s *otoStream) SampleRate() int {
	return s.rate
}

func (s *otoStream) Start() error {
	if s.closing.Load() {
		return ErrSinkClosed
	}
	s.player.Play()
	return nil
}

func (s *otoStream) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	if err := s.player.Close(); err != nil {
		return errors.New(fmt.Errorf("oto player close: %w", err)).
			Component("output").
			Category(errors.CategoryAudio).
			Build()
	}
	return nil
}

func (s *otoStream) finish() {
	if !s.closing.Load() && s.finished != nil {
		s.finished()
	}
}
