package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "malgo", s.Output.Backend)
	assert.Equal(t, 24, s.Output.WAV.BitDepth)
	assert.Equal(t, 44100, s.Engine.DefaultRate)
	assert.Equal(t, 48000, s.Engine.MaxRate)
	assert.Equal(t, 100, s.Player.Volume)
	assert.Equal(t, ":8927", s.Remote.Listen)
	assert.Equal(t, time.Second, s.Remote.StatusInterval)
	assert.Equal(t, 4000*48*8, s.EngineBufferBytes())
	assert.Equal(t, 2000*48*8, s.EffectsQueueBytes())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output:
  backend: wav
  wav:
    dir: /tmp/out
    bit_depth: 16
    max_duration: 90s
engine:
  buffer_ms: 500
player:
  volume: 40
  lead_in_ms: 250
log:
  level: debug
  file:
    enabled: true
    max_size_mb: 5
`), 0o600))

	s, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "wav", s.Output.Backend)
	assert.Equal(t, "/tmp/out", s.Output.WAV.Dir)
	assert.Equal(t, 16, s.Output.WAV.BitDepth)
	assert.Equal(t, 90*time.Second, s.Output.WAV.MaxDuration)
	assert.Equal(t, 500*48*8, s.EngineBufferBytes())
	assert.Equal(t, 40, s.Player.Volume)
	assert.Equal(t, 250, s.Player.LeadInMs)

	lc := s.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.File.Enabled)
	assert.Equal(t, 5, lc.File.MaxSizeMB)
	assert.Equal(t, "playout.log", lc.File.Path, "unset keys keep defaults")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLAYOUT_OUTPUT_BACKEND", "oto")
	t.Setenv("PLAYOUT_PLAYER_VOLUME", "55")
	t.Setenv("PLAYOUT_REMOTE_ENABLED", "true")

	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "oto", s.Output.Backend)
	assert.Equal(t, 55, s.Player.Volume)
	assert.True(t, s.Remote.Enabled)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Settings {
		t.Chdir(t.TempDir())
		s, err := Load(New(), "")
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		key    string
	}{
		{"backend", func(s *Settings) { s.Output.Backend = "alsa" }, "output.backend"},
		{"period", func(s *Settings) { s.Output.PeriodFrames = -1 }, "output.period_frames"},
		{"bit depth", func(s *Settings) { s.Output.WAV.BitDepth = 8 }, "output.wav.bit_depth"},
		{"buffer", func(s *Settings) { s.Engine.BufferMs = 0 }, "engine.buffer_ms"},
		{"huge buffer", func(s *Settings) { s.Engine.BufferMs = 10_000_000 }, "engine.buffer_ms"},
		{"default rate", func(s *Settings) { s.Engine.DefaultRate = 0 }, "engine.default_rate"},
		{"max rate", func(s *Settings) { s.Engine.MaxRate = 22050 }, "engine.max_rate"},
		{"volume", func(s *Settings) { s.Player.Volume = 101 }, "player.volume"},
		{"lead in", func(s *Settings) { s.Player.LeadInMs = -1 }, "player.lead_in_ms"},
		{"effects volume", func(s *Settings) { s.Effects.Volume = -1 }, "effects.volume"},
		{"effects queue", func(s *Settings) { s.Effects.QueueMs = -1 }, "effects.queue_ms"},
		{"listen", func(s *Settings) { s.Remote.Enabled = true; s.Remote.Listen = "" }, "remote.listen"},
		{"log format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid(t)
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSettings)

			var ee *errors.EnhancedError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.key, ee.GetContext()["key"])
		})
	}
}
