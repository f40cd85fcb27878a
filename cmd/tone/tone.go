// ABOUTME: tone subcommand: plays a generated sine tone
// ABOUTME: Checks an output device or sample rate without any media files
package tone

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/cmd/play"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/decode"
)

// Command creates the tone command
func Command(ctx *config.Context) *cobra.Command {
	var tone decode.ToneConfig

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a test tone",
		Long:  `Play a sine tone at the given frequency and sample rate. A zero duration plays until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			open := func(context.Context, string) (decode.Source, error) {
				return decode.NewTone(tone), nil
			}
			return play.Run(cmd, ctx, []string{"tone"}, open)
		},
	}

	cmd.Flags().Float64VarP(&tone.Frequency, "frequency", "f", 440, "Tone frequency in Hz")
	cmd.Flags().Float64Var(&tone.Amplitude, "amplitude", 0.5, "Amplitude 0-1 of full scale")
	cmd.Flags().IntVarP(&tone.SampleRate, "rate", "r", 44100, "Sample rate in Hz")
	cmd.Flags().IntVar(&tone.Channels, "channels", 2, "Channels, 1 or 2")
	cmd.Flags().DurationVar(&tone.Duration, "duration", 5*time.Second, "How long to play, 0 for endless")
	play.SetupFlags(cmd, ctx)

	return cmd
}
