// ABOUTME: Structured logging setup built on log/slog
// ABOUTME: Console text or JSON output, optional rotating file, module-scoped loggers
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Config controls where and how logs are written
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Quiet  bool   // no console output, file only
	File   FileConfig
}

// FileConfig enables a rotating log file alongside console output
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	mu      sync.RWMutex
	root    = slog.New(slog.NewTextHandler(os.Stderr, handlerOptions(slog.LevelInfo)))
	closers []io.Closer
)

// Init configures the process-wide root logger and returns it
func Init(cfg Config) (*slog.Logger, error) {
	level := ParseLevel(cfg.Level)

	var w io.Writer = os.Stderr
	if cfg.Quiet {
		w = io.Discard
	}
	var fileCloser io.Closer
	if cfg.File.Enabled && cfg.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		if cfg.Quiet {
			w = lj
		} else {
			w = io.MultiWriter(os.Stderr, lj)
		}
		fileCloser = lj
	}

	l := New(w, cfg.Format, level)

	mu.Lock()
	for _, c := range closers {
		_ = c.Close()
	}
	closers = nil
	if fileCloser != nil {
		closers = append(closers, fileCloser)
	}
	root = l
	mu.Unlock()

	slog.SetDefault(l)
	return l, nil
}

// New builds a logger writing to w in the given format ("json" or text)
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := handlerOptions(level)
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Module returns a logger tagged with the module attribute
func Module(name string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("module", name)
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Close flushes and closes any open log files
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	closers = nil
	return first
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				label, exists := levelNames[lvl]
				if !exists {
					label = lvl.String()
				}
				a.Value = slog.StringValue(label)
			}
			return a
		},
	}
}
