package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fablegame/fable/internal/game"
	"github.com/fablegame/fable/internal/util"
)

// Run boots the TUI program and blocks until it exits.
func Run(ctx context.Context, svc *game.Service, cfg util.Config, version string) error {
	m := initialModel(ctx, svc, cfg, version)
	program := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
