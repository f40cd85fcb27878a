// ABOUTME: Playlist player orchestrating the engine, feeder and effects mixer
// ABOUTME: Maps remote and keyboard commands onto engine controls and reports status
package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/effects"
	"github.com/Resonate-Protocol/resonate-playout/pkg/engine"
)

// ErrUnknownCommand is returned by HandleCommand for unsupported commands
var ErrUnknownCommand = errors.NewStd("unknown command")

// Recorder receives player events; *metrics.Metrics implements it
type Recorder interface {
	RecordCommand(command string, err error)
	RecordTrack()
	RecordDecodeError()
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(string, error) {}
func (nopRecorder) RecordTrack()                {}
func (nopRecorder) RecordDecodeError()          {}

// OpenFunc opens a playlist entry
type OpenFunc func(ctx context.Context, path string) (decode.Source, error)

// Config holds player configuration
type Config struct {
	Volume   int    // 0-100
	Muted    bool
	LeadInMs int    // silence before the first track
	Loop     bool   // restart the playlist when it ends
	Chime    string // effect played when skipping to the next track

	Effects  *effects.Mixer // optional, also installed as the engine mixer by the caller
	Recorder Recorder
	Open     OpenFunc // decode.OpenContext when nil
	Logger   *slog.Logger
}

// Player plays a playlist through an engine
type Player struct {
	engine  *engine.Engine
	feeder  *engine.Feeder
	effects *effects.Mixer
	rec     Recorder
	open    OpenFunc
	logger  *slog.Logger
	cfg     Config

	mu       sync.Mutex
	playlist []string
	index    int
	track    *protocol.Track
	volume   int
	muted    bool
	paused   bool
	skip     context.CancelFunc
	skipped  bool
	stopRun  context.CancelFunc
}

// New creates a player for playlist
func New(e *engine.Engine, playlist []string, cfg Config) *Player {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Open == nil {
		cfg.Open = decode.OpenContext
	}
	log := logger.OrDiscard(cfg.Logger)

	p := &Player{
		engine:   e,
		feeder:   engine.NewFeeder(e, engine.FeederConfig{Logger: log}),
		effects:  cfg.Effects,
		rec:      cfg.Recorder,
		open:     cfg.Open,
		logger:   log,
		cfg:      cfg,
		playlist: append([]string(nil), playlist...),
		volume:   clampVolume(cfg.Volume),
		muted:    cfg.Muted,
	}
	p.applyGain()
	return p
}

// Run plays the playlist until it ends, ctx is cancelled or a stop
// command arrives. The engine is started on entry and stopped on return.
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.stopRun = cancel
	p.mu.Unlock()

	if err := p.engine.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.engine.Run(ctx)
	}()

	defer func() {
		cancel()
		wg.Wait()
		if err := p.engine.Stop(); err != nil {
			p.logger.Warn("engine stop failed", errors.LogAttrs(err)...)
		}
		p.setTrack(nil)
	}()

	if p.cfg.LeadInMs > 0 {
		p.engine.RequestSilence(p.cfg.LeadInMs)
	}

	for {
		played := 0
		for i := 0; ; i++ {
			path, ok := p.entry(i)
			if !ok {
				break
			}
			if p.playTrack(ctx, i, path) {
				played++
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		if err := p.feeder.WaitDrained(ctx); err != nil {
			return nil
		}
		if !p.cfg.Loop || played == 0 {
			p.logger.Info("playlist finished", "played", played)
			return nil
		}
	}
}

// entry returns playlist item i and makes it current
func (p *Player) entry(i int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.playlist) {
		return "", false
	}
	p.index = i
	return p.playlist[i], true
}

// Len is the number of playlist entries
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.playlist)
}

// Append adds paths to the end of the playlist
func (p *Player) Append(paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist = append(p.playlist, paths...)
}

// playTrack feeds one entry and reports whether any of it was enqueued.
// Entries that fail to open are skipped.
func (p *Player) playTrack(ctx context.Context, index int, path string) bool {
	src, err := p.open(ctx, path)
	if err != nil {
		p.rec.RecordDecodeError()
		p.logger.Warn("skipping track", append(errors.LogAttrs(err), "path", path)...)
		return false
	}
	defer src.Close()

	meta := src.Metadata()
	p.setTrack(&protocol.Track{
		Path:   path,
		Title:  meta.Title,
		Artist: meta.Artist,
		Album:  meta.Album,
		Index:  index,
		Count:  p.Len(),
	})
	p.logger.Info("playing track",
		"path", path,
		"title", meta.Title,
		"sample_rate", src.SampleRate(),
		"channels", src.Channels())

	trackCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.skip = cancel
	p.skipped = false
	p.mu.Unlock()

	frames, err := p.feeder.Play(trackCtx, src)

	p.mu.Lock()
	skipped := p.skipped
	p.skip = nil
	p.mu.Unlock()
	cancel()

	switch {
	case ctx.Err() != nil:
	case skipped:
		p.engine.Flush()
		p.logger.Info("track skipped", "path", path, "frames", frames)
	case err != nil:
		p.rec.RecordDecodeError()
		p.logger.Warn("track ended early", append(errors.LogAttrs(err), "path", path, "frames", frames)...)
	default:
		p.rec.RecordTrack()
		p.logger.Debug("track enqueued", "path", path, "frames", frames)
	}
	return frames > 0
}

func (p *Player) setTrack(t *protocol.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = t
}

// applyGain pushes the current volume and mute to the engine and effects
func (p *Player) applyGain() {
	g := volumeGain(p.volume, p.muted)
	p.engine.SetGain(g, g)
	if p.effects != nil {
		p.effects.SetGain(g)
	}
}

// SetVolume sets the volume, clamped to 0-100
func (p *Player) SetVolume(volume int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(volume)
	p.applyGain()
	p.logger.Debug("volume changed", "volume", p.volume)
}

// SetMuted mutes or unmutes without losing the volume
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	p.applyGain()
}

// Pause holds buffered audio and emits silence until Resume
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.engine.Pause()
}

// Resume continues after Pause
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.engine.Resume()
}

// Skip drops ms of upcoming audio
func (p *Player) Skip(ms int) {
	rate := p.rate()
	frames := int(int64(ms) * int64(rate) / 1000)
	p.engine.RequestTrim(audio.FramesToBytes(frames))
}

// Next abandons the track being fed and drops everything buffered. Once
// the last track is fully enqueued it only drops the buffered tail.
func (p *Player) Next() {
	p.mu.Lock()
	skip := p.skip
	if skip != nil {
		p.skipped = true
	}
	p.mu.Unlock()

	if skip != nil {
		skip()
	} else {
		p.engine.Flush()
	}

	if p.effects != nil && p.cfg.Chime != "" {
		if err := p.effects.PlayFile(p.cfg.Chime); err != nil {
			p.logger.Debug("chime not played", errors.LogAttrs(err)...)
		}
	}
}

// Stop ends Run
func (p *Player) Stop() {
	p.mu.Lock()
	stop := p.stopRun
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// rate is the rate buffered audio plays at
func (p *Player) rate() int {
	if r := p.engine.StreamRate(); r > 0 {
		return r
	}
	return p.engine.Config().DefaultRate
}

// HandleCommand applies a remote or keyboard command
func (p *Player) HandleCommand(cmd protocol.Command) error {
	err := p.handleCommand(cmd)
	p.rec.RecordCommand(cmd.Command, err)
	if err != nil {
		p.logger.Debug("command rejected", append(errors.LogAttrs(err), "command", cmd.Command)...)
	}
	return err
}

func (p *Player) handleCommand(cmd protocol.Command) error {
	switch cmd.Command {
	case protocol.CommandVolume:
		if cmd.Value < 0 || cmd.Value > 100 {
			return invalidValue(cmd)
		}
		p.SetVolume(cmd.Value)
	case protocol.CommandMute:
		p.SetMuted(true)
	case protocol.CommandUnmute:
		p.SetMuted(false)
	case protocol.CommandPause:
		p.Pause()
	case protocol.CommandResume:
		p.Resume()
	case protocol.CommandSkip:
		if cmd.Value <= 0 {
			return invalidValue(cmd)
		}
		p.Skip(cmd.Value)
	case protocol.CommandSilence:
		if cmd.Value <= 0 {
			return invalidValue(cmd)
		}
		p.engine.RequestSilence(cmd.Value)
	case protocol.CommandNext:
		p.Next()
	case protocol.CommandStop:
		p.Stop()
	case protocol.CommandStatus:
	default:
		return errors.New(ErrUnknownCommand).
			Component("player").
			Category(errors.CategoryValidation).
			Context("command", cmd.Command).
			Build()
	}
	return nil
}

func invalidValue(cmd protocol.Command) error {
	return errors.Newf("%s: value %d out of range", cmd.Command, cmd.Value).
		Component("player").
		Category(errors.CategoryValidation).
		Context("command", cmd.Command).
		Build()
}

// Status snapshots the player and engine
func (p *Player) Status() protocol.Status {
	snap := p.engine.Snapshot()
	stats := p.engine.Stats()

	p.mu.Lock()
	defer p.mu.Unlock()

	state := "idle"
	switch {
	case p.track == nil:
	case p.paused:
		state = "paused"
	default:
		state = "playing"
	}

	var track *protocol.Track
	if p.track != nil {
		t := *p.track
		if t.Title == "" {
			t.Title = filepath.Base(t.Path)
		}
		track = &t
	}

	rate := snap.StreamRate
	if rate <= 0 {
		rate = p.engine.Config().DefaultRate
	}

	return protocol.Status{
		State:      state,
		Volume:     p.volume,
		Muted:      p.muted,
		Track:      track,
		StreamRate: snap.StreamRate,
		TrackRate:  snap.TrackRate,
		ElapsedMs:  int64(snap.Elapsed * 1000 / uint64(rate)),
		Buffered:   snap.Buffered,
		Capacity:   snap.Capacity,
		Underrun:   snap.Status.Has(engine.StatusUnderrun),
		Stats: protocol.EngineStats{
			Callbacks:       stats.Callbacks,
			Underruns:       stats.Underruns,
			Reopens:         stats.Reopens,
			OpenFailures:    stats.OpenFailures,
			DroppedRequests: stats.DroppedRequests,
			TracksStarted:   stats.TracksStarted,
			TrimmedFrames:   stats.TrimmedFrames,
		},
	}
}
