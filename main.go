// ABOUTME: Entry point for the Resonate Playout player
// ABOUTME: Runs the cobra CLI with signal-aware cancellation
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-playout/cmd"
	"github.com/Resonate-Protocol/resonate-playout/internal/config"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewContext()
	rootCmd := cmd.RootCommand(cfg)
	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
