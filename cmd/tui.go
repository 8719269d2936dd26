package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songdesk/internal/session"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/desertthunder/songdesk/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive session status and overview browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/songdesk-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	changes := make(chan session.Snapshot, 8)
	s, err := r.open(stackOpts{
		onChange: func(snap session.Snapshot) {
			select {
			case changes <- snap:
			default:
			}
		},
		onExpired: func(loginURL string) {
			fileLogger.Warn("session expired", "login", loginURL)
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.manager.Start(ctx)

	model := ui.NewModel(ctx, s.manager, s.engine, changes)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
