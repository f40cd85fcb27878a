package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", LevelFatal},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", LevelTrace)

	l.Log(t.Context(), LevelTrace, "render stats", "callbacks", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "TRACE", rec["level"])
	assert.Equal(t, "render stats", rec["msg"])
	assert.InDelta(t, 3, rec["callbacks"], 0)
}

func TestTextFormatFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text", slog.LevelWarn)

	l.Info("hidden")
	l.Warn("shown", "rate", 44100)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "rate=44100")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}

func TestInitWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "playout.log")

	l, err := Init(Config{
		Level:  "debug",
		Format: "json",
		File:   FileConfig{Enabled: true, Path: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close()
		_, _ = Init(Config{})
	})

	l.Debug("engine ready")
	Module("engine").Info("stream opened", "sample_rate", 48000)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine ready")
	assert.Contains(t, string(data), `"module":"engine"`)
}
