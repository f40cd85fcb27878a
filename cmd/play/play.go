// ABOUTME: play subcommand: plays files or URLs through the engine
// ABOUTME: Optional remote control server, mDNS advertisement and status view
package play

import (
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/internal/app"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
)

// Command creates the play command
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play FILE...",
		Short: "Play audio files",
		Long: `Play MP3, FLAC, WAV, Ogg Opus or raw PCM files, or HTTP MP3 streams, in order.
The output is reopened at each track's sample rate (up to engine.max_rate).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd, ctx, args, nil)
		},
	}

	SetupFlags(cmd, ctx)
	return cmd
}

// SetupFlags configures flags shared by commands that drive a player
func SetupFlags(cmd *cobra.Command, ctx *config.Context) {
	flags := cmd.Flags()
	flags.Int("volume", 100, "Initial volume 0-100")
	flags.Bool("mute", false, "Start muted")
	flags.Bool("loop", false, "Restart the playlist when it ends")
	flags.Int("lead-in", 0, "Silence before the first track, in milliseconds")
	flags.Bool("remote", false, "Serve remote control over websocket")
	flags.String("listen", ":8927", "Remote control listen address")
	flags.String("name", "", "Name shown to remote clients and on mDNS")
	flags.Bool("ui", false, "Show the terminal status view")
	flags.String("wav-dir", ".", "Directory the wav backend writes into")

	if err := config.MapFlags(flags, map[string]string{
		"volume":  "player.volume",
		"mute":    "player.muted",
		"loop":    "player.loop",
		"lead-in": "player.lead_in_ms",
		"remote":  "remote.enabled",
		"listen":  "remote.listen",
		"name":    "remote.name",
		"ui":      "ui.enabled",
		"wav-dir": "output.wav.dir",
	}); err != nil {
		panic(err)
	}
}

// Run plays playlist with open, or the default decoders when open is nil
func Run(cmd *cobra.Command, ctx *config.Context, playlist []string, open app.OpenFunc) error {
	sess, err := app.NewSession(ctx.Settings, ctx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	return sess.Play(cmd.Context(), playlist, open)
}
