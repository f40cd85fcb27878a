// ABOUTME: Pull-based audio sink interface definition
// ABOUTME: Sinks invoke a render callback once per period and report when a session ends
package output

import (
	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

// Result tells the sink whether to keep calling Render
type Result int

const (
	// Continue keeps the session running
	Continue Result = iota
	// Complete asks the sink to end the session after this period
	Complete
)

// RenderFunc fills out with frames interleaved stereo S32LE frames.
// len(out) is always frames*audio.FrameBytes. It runs on the sink's
// real-time goroutine and must not block.
type RenderFunc func(out []byte, frames int) Result

// Callbacks are installed on a stream when it is opened
type Callbacks struct {
	Render RenderFunc

	// Finished fires once when the sink ends a session on its own.
	// It is not called when the session ends through Stream.Close.
	Finished func()
}

// StreamConfig describes the session a sink should open
type StreamConfig struct {
	SampleRate   int
	PeriodFrames int    // 0 lets the backend choose
	Device       string // empty selects the default device
}

// Sink opens sessions on an audio backend
type Sink interface {
	// Open configures a session; playback begins with Stream.Start
	Open(cfg StreamConfig, cb Callbacks) (Stream, error)

	// Name identifies the backend in logs
	Name() string
}

// Stream is one open sink session at a fixed sample rate
type Stream interface {
	Start() error
	Close() error
	SampleRate() int
}

var (
	ErrInvalidConfig      = errors.NewStd("invalid stream config")
	ErrSinkClosed         = errors.NewStd("sink session closed")
	ErrRateUnsupported    = errors.NewStd("sample rate not supported by sink")
	ErrBackendUnavailable = errors.NewStd("audio backend not available in this build")
	ErrDeviceNotFound     = errors.NewStd("output device not found")
)

// Validate checks cfg and returns an enhanced error naming the bad field
func (cfg StreamConfig) Validate() error {
	if cfg.SampleRate <= 0 {
		return errors.New(ErrInvalidConfig).
			Component("output").
			Category(errors.CategoryValidation).
			Context("sample_rate", cfg.SampleRate).
			Build()
	}
	if cfg.PeriodFrames < 0 {
		return errors.New(ErrInvalidConfig).
			Component("output").
			Category(errors.CategoryValidation).
			Context("period_frames", cfg.PeriodFrames).
			Build()
	}
	return nil
}

func (cb Callbacks) validate() error {
	if cb.Render == nil {
		return errors.Newf("render callback is required: %w", ErrInvalidConfig).
			Component("output").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// New returns the sink registered under name: "malgo", "oto" or "wav".
// The wav sink writes into dir.
func New(name, dir string) (Sink, error) {
	switch name {
	case "", "malgo":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	case "wav", "file":
		return NewWAVFile(WAVFileConfig{Dir: dir, Realtime: true}), nil
	default:
		return nil, errors.Newf("unknown output backend %q", name).
			Component("output").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// DeviceInfo describes a playback device
type DeviceInfo struct {
	Name    string
	Default bool
}

// DeviceLister is implemented by sinks that can enumerate devices
type DeviceLister interface {
	ListDevices() ([]DeviceInfo, error)
}
