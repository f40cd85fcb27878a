// ABOUTME: Root cobra command for the playout CLI
// ABOUTME: Global flags bound to settings, subcommands registered, settings loaded before each run
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/cmd/devices"
	"github.com/Resonate-Protocol/resonate-playout/cmd/play"
	"github.com/Resonate-Protocol/resonate-playout/cmd/remote"
	"github.com/Resonate-Protocol/resonate-playout/cmd/tone"
	"github.com/Resonate-Protocol/resonate-playout/cmd/version"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	internalversion "github.com/Resonate-Protocol/resonate-playout/internal/version"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *config.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "playout",
		Short:         "Resonate Playout audio player",
		Version:       internalversion.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err)
	}

	versionCmd := version.Command()
	rootCmd.AddCommand(
		play.Command(ctx),
		tone.Command(ctx),
		devices.Command(ctx),
		remote.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// a log file given on the command line enables file logging
		if path, _ := cmd.Flags().GetString("log-file"); path != "" {
			ctx.Viper.Set("log.file.enabled", true)
			ctx.Viper.Set("log.file.path", path)
		}
		if err := ctx.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		return ctx.Initialize()
	}

	return rootCmd
}

// setupFlags defines flags shared by every subcommand
func setupFlags(rootCmd *cobra.Command, ctx *config.Context) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Config file (default: playout.yaml in . or the user config dir)")
	flags.StringP("backend", "b", "malgo", "Output backend: malgo, oto or wav")
	flags.StringP("device", "d", "", "Output device name (backend default when empty)")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this rotating file")

	return config.MapFlags(flags, map[string]string{
		"backend":    "output.backend",
		"device":     "output.device",
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}
