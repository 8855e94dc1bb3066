// Package tui provides a Bubble Tea dashboard for a provisioning run.
package tui

import (
	"time"

	"github.com/imamik/metalboot/internal/provisioning"
)

// PhaseState is where a phase is in its lifecycle.
type PhaseState int

// Phase states.
const (
	PhasePending PhaseState = iota
	PhaseActive
	PhaseDone
	PhaseFailed
)

// PhaseMsg reports that a phase started or ended.
type PhaseMsg struct {
	Phase string
	State PhaseState
	Err   string
	At    time.Time
}

// StatusMsg carries the latest compact status line of a phase.
type StatusMsg struct {
	Phase string
	Line  string
}

// LogMsg is one line of run output.
type LogMsg struct {
	Line    string
	Warning bool
}

// BannerMsg carries the outcome banner of the run.
type BannerMsg struct {
	Kind    provisioning.BannerKind
	Message string
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// DoneMsg signals that the run returned.
type DoneMsg struct{ Err error }
