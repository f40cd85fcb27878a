// ABOUTME: version subcommand
// ABOUTME: Prints the product version with the Go toolchain and platform
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-playout/internal/version"
)

// Command creates the version command
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s %s/%s)\n",
				version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
