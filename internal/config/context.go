// ABOUTME: Shared CLI state handed to every subcommand
// ABOUTME: Binds flags to setting keys and loads settings plus the root logger once flags are parsed
package config

import (
	"log/slog"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
)

// Context carries settings and the root logger through the CLI
type Context struct {
	Viper      *viper.Viper
	ConfigFile string
	Settings   *Settings
	Logger     *slog.Logger
}

// NewContext returns a context with defaults loaded but no file read yet
func NewContext() *Context {
	return &Context{Viper: New(), Logger: logger.Discard()}
}

// settingAnnotation marks a flag with the setting key it overrides
const settingAnnotation = "playout_setting"

// MapFlags records which setting key each flag overrides, e.g. "volume" to
// "player.volume". Nothing is bound until BindFlags runs for the command
// actually executing, so several commands can map same-named flags.
func MapFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := fs.SetAnnotation(name, settingAnnotation, []string{key}); err != nil {
			return errors.New(err).
				Component("config").
				Category(errors.CategoryConfiguration).
				Context("flag", name).
				Context("key", key).
				Build()
		}
	}
	return nil
}

// BindFlags binds every mapped flag in fs to its setting key
func (c *Context) BindFlags(fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(flag *pflag.Flag) {
		keys := flag.Annotations[settingAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := c.Viper.BindPFlag(keys[0], flag); err != nil {
			bindErr = errors.New(err).
				Component("config").
				Category(errors.CategoryConfiguration).
				Context("flag", flag.Name).
				Build()
		}
	})
	return bindErr
}

// Initialize reads settings and sets up logging. With the UI enabled the
// console belongs to the status view, so logs go to the log file only.
func (c *Context) Initialize() error {
	settings, err := Load(c.Viper, c.ConfigFile)
	if err != nil {
		return err
	}

	logCfg := settings.LoggerConfig()
	if settings.UI.Enabled {
		logCfg.Quiet = true
		logCfg.File.Enabled = logCfg.File.Path != ""
	}
	log, err := logger.Init(logCfg)
	if err != nil {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("path", logCfg.File.Path).
			Build()
	}

	c.Settings = settings
	c.Logger = log
	return nil
}
