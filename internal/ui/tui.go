// ABOUTME: TUI initialization and control
// ABOUTME: Runs the bubbletea program until quit or context cancellation
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

// Run shows the status TUI for ctrl until the user quits or ctx ends
func Run(ctx context.Context, ctrl Controller, name string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(ctrl, name, interval),
		tea.WithAltScreen(),
		tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.New(err).
			Component("ui").
			Category(errors.CategoryGeneric).
			Build()
	}
	return nil
}
