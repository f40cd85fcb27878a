// ABOUTME: Stream lifecycle manager that opens, closes and reopens sink sessions
// ABOUTME: Owns the reopen-on-rate-change protocol driven through the request channel
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/mqueue"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
)

// streamManager serializes every sink operation behind mu. Only the control
// goroutine calls into it; the sink goroutine only reaches finished.
type streamManager struct {
	mu sync.Mutex

	sink     output.Sink
	state    *PlaybackState
	render   output.RenderFunc
	requests *mqueue.Channel
	stats    *counters
	logger   *slog.Logger

	defaultRate  int
	periodFrames int
	device       string

	stream output.Stream

	// bumped before a session is torn down so late finished calls from it
	// are ignored
	generation atomic.Uint64
}

// start opens the sink at the desired rate and begins playback
func (m *streamManager) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked()
}

// stop resets the desired rate to the default and reopens, so the next
// track starts from a known configuration
func (m *streamManager) stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SetDesiredRate(m.defaultRate)
	return m.openLocked()
}

// pause is a no-op: render already emits silence when upstream stops
func (m *streamManager) pause() {}

// resume is a no-op, see pause
func (m *streamManager) resume() {}

// open closes any session and opens a new one at the desired rate
func (m *streamManager) open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked()
}

// close ends the current session without opening another
func (m *streamManager) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation.Add(1)
	return m.closeLocked()
}

// hasStream reports whether a session is open
func (m *streamManager) hasStream() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

func (m *streamManager) closeLocked() error {
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	m.state.setStreamRate(0)
	if err != nil {
		m.logger.Warn("sink close failed", errors.LogAttrs(err)...)
	}
	return err
}

func (m *streamManager) openLocked() error {
	gen := m.generation.Add(1)
	_ = m.closeLocked()

	rate := m.state.takeDesiredRate(m.defaultRate)

	cfg := output.StreamConfig{
		SampleRate:   rate,
		PeriodFrames: m.periodFrames,
		Device:       m.device,
	}
	stream, err := m.sink.Open(cfg, output.Callbacks{
		Render:   m.render,
		Finished: func() { m.finished(gen) },
	})
	if err != nil {
		return m.openFailed(rate, err)
	}

	m.state.setStreamRate(rate)
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		m.state.setStreamRate(0)
		return m.openFailed(rate, err)
	}

	m.stream = stream
	m.stats.reopens.Add(1)
	m.logger.Info("sink session opened",
		"sink", m.sink.Name(),
		"sample_rate", rate,
		"period_frames", m.periodFrames,
		"generation", gen)
	return nil
}

// openFailed keeps the engine usable: no stream, and the rate stays pending
// so the next start, stop or reopen retries it
func (m *streamManager) openFailed(rate int, err error) error {
	m.state.restoreDesiredRate(rate)
	m.stats.openFailures.Add(1)
	ee := errors.New(err).
		Component("engine").
		Category(errors.CategoryAudio).
		Context("sink", m.sink.Name()).
		Context("sample_rate", rate).
		Build()
	m.logger.Error("sink open failed", errors.LogAttrs(ee)...)
	return ee
}

// finished runs on the sink's goroutine when a session ends on its own.
// It never reopens directly; it asks the control goroutine to.
func (m *streamManager) finished(gen uint64) {
	if gen != m.generation.Load() {
		return
	}
	if m.state.DesiredRate() == 0 {
		m.logger.Debug("sink session finished", "generation", gen)
		return
	}
	if !m.requests.TryPost(mqueue.Reopen) {
		m.stats.droppedPosts.Add(1)
		m.logger.Debug("full request channel, dropped finished message", "generation", gen)
	}
}

// handle services one request from the channel and acknowledges it
func (m *streamManager) handle(req mqueue.Request) {
	defer m.requests.Done()

	switch req {
	case mqueue.Reopen:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state.DesiredRate() == 0 {
			return
		}
		_ = m.openLocked()
	default:
		m.logger.Warn("unknown request", "request", req.String())
	}
}
