// ABOUTME: Playout engine tying state, renderer, request channel and lifecycle together
// ABOUTME: Control-side API for feeding samples, gains, trims, silence and rate changes
package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/mqueue"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
)

const (
	// DefaultRate is the rate a stopped engine returns to
	DefaultRate = 44100
	// DefaultMaxRate caps track and desired rates
	DefaultMaxRate = 48000
	// DefaultBufferBytes holds about four seconds at 48 kHz
	DefaultBufferBytes = 4 * DefaultMaxRate * audio.FrameBytes
	// MaxBufferBytes bounds the ring allocation
	MaxBufferBytes = 64 << 20
)

// ErrInvalidConfig is returned by New for unusable configurations
var ErrInvalidConfig = errors.NewStd("invalid engine config")

// Config configures an Engine. Zero values take defaults.
type Config struct {
	BufferBytes  int
	DefaultRate  int
	MaxRate      int
	PeriodFrames int
	Device       string
	RequestDepth int
	Mixer        Mixer
	Logger       *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BufferBytes == 0 {
		c.BufferBytes = DefaultBufferBytes
	}
	if c.DefaultRate == 0 {
		c.DefaultRate = DefaultRate
	}
	if c.MaxRate == 0 {
		c.MaxRate = DefaultMaxRate
	}
	if c.RequestDepth == 0 {
		c.RequestDepth = 1
	}
}

// Validate checks the config after defaults are applied
func (c Config) Validate() error {
	bad := func(field string, value any) error {
		return errors.New(ErrInvalidConfig).
			Component("engine").
			Category(errors.CategoryValidation).
			Context(field, value).
			Build()
	}
	switch {
	case c.BufferBytes <= 0 || c.BufferBytes > MaxBufferBytes:
		return bad("buffer_bytes", c.BufferBytes)
	case c.BufferBytes%audio.FrameBytes != 0:
		return bad("buffer_bytes", c.BufferBytes)
	case c.DefaultRate <= 0:
		return bad("default_rate", c.DefaultRate)
	case c.MaxRate < c.DefaultRate:
		return bad("max_rate", c.MaxRate)
	case c.PeriodFrames < 0:
		return bad("period_frames", c.PeriodFrames)
	case c.RequestDepth < 0:
		return bad("request_depth", c.RequestDepth)
	}
	return nil
}

// Stats are cumulative engine counters
type Stats struct {
	Callbacks       uint64
	Underruns       uint64
	Reopens         uint64
	OpenFailures    uint64
	DroppedRequests uint64
	TracksStarted   uint64
	TrimmedFrames   uint64
}

// Engine moves PCM from a control-side producer into a pull-based sink
type Engine struct {
	id       string
	cfg      Config
	sink     output.Sink
	state    *PlaybackState
	renderer *Renderer
	requests *mqueue.Channel
	manager  *streamManager
	logger   *slog.Logger
}

// New builds an engine around sink. Nothing is opened until Start or Stop.
func New(sink output.Sink, cfg Config) (*Engine, error) {
	if sink == nil {
		return nil, errors.Newf("sink is required: %w", ErrInvalidConfig).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := logger.OrDiscard(cfg.Logger).With("engine_id", id)

	state := NewPlaybackState(cfg.BufferBytes)
	state.SetDesiredRate(cfg.DefaultRate)

	requests := mqueue.NewChannel(cfg.RequestDepth)
	renderer := NewRenderer(state, requests, cfg.Mixer)

	e := &Engine{
		id:       id,
		cfg:      cfg,
		sink:     sink,
		state:    state,
		renderer: renderer,
		requests: requests,
		logger:   log,
	}
	e.manager = &streamManager{
		sink:         sink,
		state:        state,
		render:       renderer.Render,
		requests:     requests,
		stats:        renderer.stats,
		logger:       log,
		defaultRate:  cfg.DefaultRate,
		periodFrames: cfg.PeriodFrames,
		device:       cfg.Device,
	}

	log.Debug("engine created",
		"sink", sink.Name(),
		"buffer_bytes", cfg.BufferBytes,
		"default_rate", cfg.DefaultRate,
		"max_rate", cfg.MaxRate)
	return e, nil
}

// ID identifies this engine instance
func (e *Engine) ID() string {
	return e.id
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// State exposes the shared playback state
func (e *Engine) State() *PlaybackState {
	return e.state
}

// Run services sink requests until ctx ends. It must run on the control
// side; the render goroutine only posts to it.
func (e *Engine) Run(ctx context.Context) error {
	for {
		req, err := e.requests.Receive(ctx)
		if err != nil {
			return nil
		}
		e.manager.handle(req)
	}
}

// ProcessRequests services queued requests without blocking and returns
// how many were handled
func (e *Engine) ProcessRequests() int {
	n := 0
	for {
		req, ok := e.requests.TryReceive()
		if !ok {
			return n
		}
		e.manager.handle(req)
		n++
	}
}

// EnqueueSamples copies whole S32LE stereo frames into the buffer and
// returns the bytes accepted. A full buffer accepts nothing; the caller
// throttles.
func (e *Engine) EnqueueSamples(p []byte) int {
	return e.state.Enqueue(p)
}

// SetGain sets per-channel 16.16 gains
func (e *Engine) SetGain(left, right audio.Fixed) {
	e.state.SetGain(left, right)
}

// Gain returns per-channel gains
func (e *Engine) Gain() (left, right audio.Fixed) {
	return e.state.Gain()
}

// SetDesiredRate records a pending sink rate, clamped to MaxRate. The sink
// is reopened on the next finished event or start point.
func (e *Engine) SetDesiredRate(rate int) {
	e.state.SetDesiredRate(e.ClampRate(rate))
}

// ClampRate limits rate to the configured maximum
func (e *Engine) ClampRate(rate int) int {
	if rate > e.cfg.MaxRate {
		return e.cfg.MaxRate
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// MaxRate returns the highest rate the engine will open
func (e *Engine) MaxRate() int {
	return e.cfg.MaxRate
}

// RequestSilence schedules ms of silence before buffered audio
func (e *Engine) RequestSilence(ms int) {
	e.state.RequestSilence(ms)
}

// RequestTrim schedules bytes of buffered audio to be skipped
func (e *Engine) RequestTrim(bytes int) {
	e.state.RequestTrim(bytes)
}

// MarkStartPoint records that the next enqueued frame starts a track at rate
func (e *Engine) MarkStartPoint(rate int) {
	e.state.MarkStartPoint(e.ClampRate(rate))
}

// ElapsedSamples returns frames played or skipped
func (e *Engine) ElapsedSamples() uint64 {
	return e.state.ElapsedSamples()
}

// Start marks playback running and opens the sink at the desired rate
func (e *Engine) Start() error {
	e.state.setRunning(true)
	e.logger.Info("playback started")
	return e.manager.start()
}

// Stop halts playback, drops buffered audio and reopens the sink at the
// default rate
func (e *Engine) Stop() error {
	e.state.setRunning(false)
	e.state.Flush()
	e.logger.Info("playback stopped")
	return e.manager.stop()
}

// Pause keeps buffered audio and renders silence until Resume
func (e *Engine) Pause() {
	e.state.setRunning(false)
	e.manager.pause()
	e.logger.Debug("playback paused")
}

// Resume continues draining after Pause
func (e *Engine) Resume() {
	e.state.setRunning(true)
	e.manager.resume()
	e.logger.Debug("playback resumed")
}

// Flush drops buffered audio and pending trim and silence
func (e *Engine) Flush() {
	e.state.Flush()
}

// Status returns the status bits
func (e *Engine) Status() Status {
	return e.state.Status()
}

// Snapshot returns a consistent view of the playback state
func (e *Engine) Snapshot() Snapshot {
	return e.state.Snapshot()
}

// FreeBytes returns buffer space available to EnqueueSamples
func (e *Engine) FreeBytes() int {
	return e.state.FreeBytes()
}

// BufferedBytes returns audio waiting to be rendered
func (e *Engine) BufferedBytes() int {
	return e.state.BufferedBytes()
}

// StreamRate returns the open session's rate, zero when none is open
func (e *Engine) StreamRate() int {
	return e.state.StreamRate()
}

// Stats returns cumulative counters
func (e *Engine) Stats() Stats {
	c := e.renderer.stats
	return Stats{
		Callbacks:       c.callbacks.Load(),
		Underruns:       c.underruns.Load(),
		Reopens:         c.reopens.Load(),
		OpenFailures:    c.openFailures.Load(),
		DroppedRequests: c.droppedPosts.Load(),
		TracksStarted:   c.tracksStarted.Load(),
		TrimmedFrames:   c.trimmedFrames.Load(),
	}
}

// Close ends the sink session and releases the sink if it holds resources
func (e *Engine) Close() error {
	e.state.setRunning(false)
	err := e.manager.close()
	if c, ok := e.sink.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	e.logger.Info("engine closed")
	return err
}
