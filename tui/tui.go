package tui

import (
	"fmt"

	"github.com/DachengChen/paiconsole/archive"
	"github.com/DachengChen/paiconsole/config"
	tea "github.com/charmbracelet/bubbletea"
)

// Start launches the TUI and blocks until it exits. store may be nil
// when no archive is configured.
func Start(client Client, cfg *config.AppConfig, store archive.Store, user string) error {
	var p *tea.Program
	send := func(msg tea.Msg) {
		if p != nil {
			p.Send(msg)
		}
	}

	app := NewApp(client, cfg, store, user, send)
	p = tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
