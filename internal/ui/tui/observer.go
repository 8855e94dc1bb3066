package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/metalboot/internal/provisioning"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer implements provisioning.Observer by feeding the dashboard.
type Observer struct {
	program Sender
	fields  map[string]string
}

// NewObserver creates an observer sending to p.
func NewObserver(p Sender) *Observer {
	return &Observer{program: p, fields: map[string]string{}}
}

// Printf implements provisioning.Logger.
func (o *Observer) Printf(format string, v ...any) {
	o.program.Send(LogMsg{Line: fmt.Sprintf(format, v...)})
}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	switch event.Type {
	case provisioning.EventPhaseStarted:
		o.program.Send(PhaseMsg{Phase: phaseName(event.Phase), State: PhaseActive, At: at})
	case provisioning.EventPhaseCompleted:
		o.program.Send(PhaseMsg{Phase: phaseName(event.Phase), State: PhaseDone, At: at})
	case provisioning.EventPhaseFailed:
		o.program.Send(PhaseMsg{Phase: phaseName(event.Phase), State: PhaseFailed, Err: event.Message, At: at})
	default:
		line := fmt.Sprintf("[%s] %s", event.Phase, event.Message)
		if event.Resource != "" {
			line += ": " + event.Resource
		}
		o.program.Send(LogMsg{Line: line, Warning: event.Type == provisioning.EventWarning})
	}
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(phase string, current, total int) {
	o.program.Send(StatusMsg{Phase: phase, Line: fmt.Sprintf("%d/%d", current, total)})
}

// Status implements provisioning.Observer.
func (o *Observer) Status(phase, line string) {
	o.program.Send(StatusMsg{Phase: phase, Line: line})
}

// Banner implements provisioning.Observer.
func (o *Observer) Banner(kind provisioning.BannerKind, message string) {
	o.program.Send(BannerMsg{Kind: kind, Message: message})
}

// WithFields implements provisioning.Observer. Fields are not shown.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	for k, v := range o.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Observer{program: o.program, fields: merged}
}

// phaseName strips the "(i/n)" suffix the pipeline adds to phase events.
func phaseName(s string) string {
	name, _, _ := strings.Cut(s, " (")
	return name
}
