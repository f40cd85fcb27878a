// ABOUTME: devices subcommand: lists playback devices of the selected backend
// ABOUTME: Backends that cannot enumerate devices report so and exit cleanly
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/internal/app"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/output"
)

// Command creates the devices command
func Command(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := app.NewSink(ctx.Settings.Output)
			if err != nil {
				return err
			}
			return list(cmd, sink)
		},
	}
}

func list(cmd *cobra.Command, sink output.Sink) error {
	out := cmd.OutOrStdout()

	lister, ok := sink.(output.DeviceLister)
	if !ok {
		fmt.Fprintf(out, "backend %s cannot list devices\n", sink.Name())
		return nil
	}

	devices, err := lister.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintf(out, "no %s playback devices found\n", sink.Name())
		return nil
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, d.Name)
	}
	return nil
}
