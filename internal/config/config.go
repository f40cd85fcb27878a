// ABOUTME: Viper-backed settings for the playout CLI and player
// ABOUTME: Defaults, optional YAML file, PLAYOUT_ environment overrides and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/engine"
)

// EnvPrefix prefixes every environment override, e.g. PLAYOUT_OUTPUT_BACKEND
const EnvPrefix = "PLAYOUT"

// ErrInvalidSettings wraps every validation failure
var ErrInvalidSettings = errors.NewStd("invalid settings")

// Settings is the full configuration tree
type Settings struct {
	Output  OutputSettings  `mapstructure:"output"`
	Engine  EngineSettings  `mapstructure:"engine"`
	Player  PlayerSettings  `mapstructure:"player"`
	Effects EffectsSettings `mapstructure:"effects"`
	Remote  RemoteSettings  `mapstructure:"remote"`
	Log     LogSettings     `mapstructure:"log"`
	UI      UISettings      `mapstructure:"ui"`
}

// OutputSettings selects and configures the sink
type OutputSettings struct {
	Backend      string      `mapstructure:"backend"` // malgo, oto or wav
	Device       string      `mapstructure:"device"`
	PeriodFrames int         `mapstructure:"period_frames"`
	WAV          WAVSettings `mapstructure:"wav"`
}

// WAVSettings configures the file sink
type WAVSettings struct {
	Dir         string        `mapstructure:"dir"`
	Prefix      string        `mapstructure:"prefix"`
	BitDepth    int           `mapstructure:"bit_depth"`
	Realtime    bool          `mapstructure:"realtime"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// EngineSettings sizes the engine
type EngineSettings struct {
	BufferMs     int `mapstructure:"buffer_ms"` // at MaxRate
	DefaultRate  int `mapstructure:"default_rate"`
	MaxRate      int `mapstructure:"max_rate"`
	RequestDepth int `mapstructure:"request_depth"`
}

// PlayerSettings configures playlist playback
type PlayerSettings struct {
	Volume   int  `mapstructure:"volume"` // 0-100
	Muted    bool `mapstructure:"muted"`
	LeadInMs int  `mapstructure:"lead_in_ms"`
	Loop     bool `mapstructure:"loop"`
}

// EffectsSettings configures the effects mixer
type EffectsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	QueueMs int    `mapstructure:"queue_ms"`
	Volume  int    `mapstructure:"volume"` // 0-100
	Chime   string `mapstructure:"chime"`  // played on track changes when set
}

// RemoteSettings configures the websocket control server
type RemoteSettings struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"`
	Name           string        `mapstructure:"name"`
	Advertise      bool          `mapstructure:"advertise"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

// LogSettings mirrors logger.Config
type LogSettings struct {
	Level  string          `mapstructure:"level"`
	Format string          `mapstructure:"format"`
	File   LogFileSettings `mapstructure:"file"`
}

// LogFileSettings configures the rotating log file
type LogFileSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// UISettings toggles the terminal status view
type UISettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// New returns a viper instance with defaults and environment overrides
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.backend", "malgo")
	v.SetDefault("output.device", "")
	v.SetDefault("output.period_frames", 0)
	v.SetDefault("output.wav.dir", ".")
	v.SetDefault("output.wav.prefix", "playout")
	v.SetDefault("output.wav.bit_depth", 24)
	v.SetDefault("output.wav.realtime", true)
	v.SetDefault("output.wav.max_duration", time.Duration(0))

	v.SetDefault("engine.buffer_ms", 4000)
	v.SetDefault("engine.default_rate", engine.DefaultRate)
	v.SetDefault("engine.max_rate", engine.DefaultMaxRate)
	v.SetDefault("engine.request_depth", 1)

	v.SetDefault("player.volume", 100)
	v.SetDefault("player.muted", false)
	v.SetDefault("player.lead_in_ms", 0)
	v.SetDefault("player.loop", false)

	v.SetDefault("effects.enabled", true)
	v.SetDefault("effects.queue_ms", 2000)
	v.SetDefault("effects.volume", 100)
	v.SetDefault("effects.chime", "")

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.listen", ":8927")
	v.SetDefault("remote.name", defaultName())
	v.SetDefault("remote.advertise", true)
	v.SetDefault("remote.status_interval", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "playout.log")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 28)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("ui.enabled", false)
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-playout"
}

// SearchPaths lists where Load looks for playout.yaml when no file is given
func SearchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "playout"))
	}
	return paths
}

// Load reads path, or playout.yaml from SearchPaths when path is empty,
// and returns validated settings. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("playout")
		v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("config").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks ranges and enumerations
func (s *Settings) Validate() error {
	bad := func(key string, value any) error {
		return errors.New(ErrInvalidSettings).
			Component("config").
			Category(errors.CategoryValidation).
			Context("key", key).
			Context("value", value).
			Build()
	}

	switch strings.ToLower(s.Output.Backend) {
	case "malgo", "oto", "wav", "file":
	default:
		return bad("output.backend", s.Output.Backend)
	}
	if s.Output.PeriodFrames < 0 {
		return bad("output.period_frames", s.Output.PeriodFrames)
	}
	switch s.Output.WAV.BitDepth {
	case 16, 24, 32:
	default:
		return bad("output.wav.bit_depth", s.Output.WAV.BitDepth)
	}
	if s.Engine.BufferMs <= 0 {
		return bad("engine.buffer_ms", s.Engine.BufferMs)
	}
	if s.Engine.DefaultRate <= 0 {
		return bad("engine.default_rate", s.Engine.DefaultRate)
	}
	if s.Engine.MaxRate < s.Engine.DefaultRate {
		return bad("engine.max_rate", s.Engine.MaxRate)
	}
	if s.EngineBufferBytes() > engine.MaxBufferBytes {
		return bad("engine.buffer_ms", s.Engine.BufferMs)
	}
	if s.Player.Volume < 0 || s.Player.Volume > 100 {
		return bad("player.volume", s.Player.Volume)
	}
	if s.Player.LeadInMs < 0 {
		return bad("player.lead_in_ms", s.Player.LeadInMs)
	}
	if s.Effects.Volume < 0 || s.Effects.Volume > 100 {
		return bad("effects.volume", s.Effects.Volume)
	}
	if s.Effects.QueueMs < 0 {
		return bad("effects.queue_ms", s.Effects.QueueMs)
	}
	if s.Remote.Enabled && s.Remote.Listen == "" {
		return bad("remote.listen", s.Remote.Listen)
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		return bad("log.format", s.Log.Format)
	}
	return nil
}

// EngineBufferBytes converts BufferMs at MaxRate to whole frames
func (s *Settings) EngineBufferBytes() int {
	frames := s.Engine.BufferMs * s.Engine.MaxRate / 1000
	return audio.FramesToBytes(frames)
}

// EffectsQueueBytes converts QueueMs at MaxRate to whole frames
func (s *Settings) EffectsQueueBytes() int {
	return audio.FramesToBytes(s.Effects.QueueMs * s.Engine.MaxRate / 1000)
}

// LoggerConfig maps log settings onto the logger package
func (s *Settings) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  s.Log.Level,
		Format: s.Log.Format,
		File: logger.FileConfig{
			Enabled:    s.Log.File.Enabled,
			Path:       s.Log.File.Path,
			MaxSizeMB:  s.Log.File.MaxSizeMB,
			MaxBackups: s.Log.File.MaxBackups,
			MaxAgeDays: s.Log.File.MaxAgeDays,
			Compress:   s.Log.File.Compress,
		},
	}
}
