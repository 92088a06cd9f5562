package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the practice screen until the user quits or ctx is done.
func Run(ctx context.Context, deps Deps) error {
	bridge := NewBridge()
	deps.Controller.SetListener(bridge)
	defer deps.Controller.SetListener(nil)

	program := tea.NewProgram(NewModel(ctx, deps, bridge), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
