package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/metalboot/internal/provisioning"
)

// RunFunc is the work shown by the dashboard.
type RunFunc func(ctx context.Context, observer provisioning.Observer) error

// Run shows the dashboard while fn runs and returns fn's error. Quitting the
// dashboard cancels fn's context, and Run still waits for fn to return.
func Run(ctx context.Context, clusterName string, nodeCount int, phases []string, fn RunFunc, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(clusterName, nodeCount, phases, cancel)
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx, NewObserver(p))
		errCh <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, uiErr := p.Run()
	if uiErr != nil {
		cancel()
		return errors.Join(fmt.Errorf("TUI error: %w", uiErr), <-errCh)
	}

	err := <-errCh
	if fm, ok := final.(Model); ok && fm.Interrupted && err == nil {
		err = context.Canceled
	}
	return err
}
