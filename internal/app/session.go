// ABOUTME: Builds the sink, engine, effects mixer and metrics from settings
// ABOUTME: Runs a player with the optional remote server, mDNS advertisement and status view
package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	"github.com/Resonate-Protocol/resonate-playout/internal/discovery"
	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/metrics"
	"github.com/Resonate-Protocol/resonate-playout/internal/remote"
	"github.com/Resonate-Protocol/resonate-playout/internal/ui"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/effects"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-playout/pkg/engine"
)

// Session owns everything one playback run needs
type Session struct {
	Sink    output.Sink
	Engine  *engine.Engine
	Effects *effects.Mixer // nil when effects are disabled
	Metrics *metrics.Metrics

	settings *config.Settings
	logger   *slog.Logger
}

// NewSink builds the sink the output settings select
func NewSink(out config.OutputSettings) (output.Sink, error) {
	switch out.Backend {
	case "wav", "file":
		return output.NewWAVFile(output.WAVFileConfig{
			Dir:         out.WAV.Dir,
			Prefix:      out.WAV.Prefix,
			BitDepth:    out.WAV.BitDepth,
			Realtime:    out.WAV.Realtime,
			MaxDuration: out.WAV.MaxDuration,
		}), nil
	default:
		return output.New(out.Backend, out.WAV.Dir)
	}
}

// NewSession wires a session from settings
func NewSession(settings *config.Settings, log *slog.Logger) (*Session, error) {
	sink, err := NewSink(settings.Output)
	if err != nil {
		return nil, err
	}

	s := &Session{Sink: sink, settings: settings, logger: log}

	var mixer engine.Mixer
	if settings.Effects.Enabled {
		s.Effects = effects.New(effects.Config{
			QueueBytes: settings.EffectsQueueBytes(),
			Gain:       volumeGain(settings.Effects.Volume, false),
			Logger:     log.With("module", "effects"),
		})
		// a zero Config.Gain means unity
		s.Effects.SetGain(volumeGain(settings.Effects.Volume, false))
		mixer = s.Effects
	}

	s.Engine, err = engine.New(sink, engine.Config{
		BufferBytes:  settings.EngineBufferBytes(),
		DefaultRate:  settings.Engine.DefaultRate,
		MaxRate:      settings.Engine.MaxRate,
		PeriodFrames: settings.Output.PeriodFrames,
		Device:       settings.Output.Device,
		RequestDepth: settings.Engine.RequestDepth,
		Mixer:        mixer,
		Logger:       log.With("module", "engine"),
	})
	if err != nil {
		s.closeSink()
		return nil, err
	}

	s.Metrics, err = metrics.New(s.Engine)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Info("session ready",
		"backend", sink.Name(),
		"buffer_ms", settings.Engine.BufferMs,
		"default_rate", settings.Engine.DefaultRate,
		"max_rate", settings.Engine.MaxRate,
		"effects", settings.Effects.Enabled)
	return s, nil
}

// Play runs playlist until it ends, ctx is cancelled, a stop command
// arrives or the status view is closed
func (s *Session) Play(ctx context.Context, playlist []string, open OpenFunc) error {
	st := s.settings
	player := New(s.Engine, playlist, Config{
		Volume:   st.Player.Volume,
		Muted:    st.Player.Muted,
		LeadInMs: st.Player.LeadInMs,
		Loop:     st.Player.Loop,
		Chime:    st.Effects.Chime,
		Effects:  s.Effects,
		Recorder: s.Metrics,
		Open:     open,
		Logger:   s.logger.With("module", "player"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if st.Remote.Enabled {
		srv := remote.New(player, remote.Config{
			Addr:           st.Remote.Listen,
			Name:           st.Remote.Name,
			Backend:        s.Sink.Name(),
			StatusInterval: st.Remote.StatusInterval,
			Metrics:        s.Metrics.Handler(),
			OnClients:      s.Metrics.SetClients,
			Logger:         s.logger.With("module", "remote"),
		})
		g.Go(func() error { return srv.ListenAndServe(gctx) })

		if st.Remote.Advertise {
			if stop := s.advertise(); stop != nil {
				defer stop()
			}
		}
	}

	if st.UI.Enabled {
		g.Go(func() error {
			defer cancel()
			return ui.Run(gctx, player, st.Remote.Name, 0)
		})
	}

	g.Go(func() error {
		defer cancel()
		return player.Run(gctx)
	})

	return g.Wait()
}

// advertise publishes the remote server over mDNS and returns its stop
// function, or nil when advertising is not possible
func (s *Session) advertise() func() {
	st := s.settings
	_, portStr, err := net.SplitHostPort(st.Remote.Listen)
	port, convErr := strconv.Atoi(portStr)
	if err != nil || convErr != nil || port == 0 {
		s.logger.Warn("not advertising: listen address has no fixed port", "listen", st.Remote.Listen)
		return nil
	}

	mgr := discovery.NewManager(discovery.Config{
		ServiceName: st.Remote.Name,
		Port:        port,
		Backend:     s.Sink.Name(),
		Logger:      s.logger.With("module", "discovery"),
	})
	if err := mgr.Advertise(); err != nil {
		s.logger.Warn("mDNS advertisement failed", errors.LogAttrs(err)...)
		return nil
	}
	return func() { _ = mgr.Stop() }
}

// Close releases the engine and any backend context
func (s *Session) Close() error {
	var err error
	if s.Engine != nil {
		err = s.Engine.Close()
	}
	s.closeSink()
	return err
}

func (s *Session) closeSink() {
	if c, ok := s.Sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("sink close failed", "error", err)
		}
	}
}

