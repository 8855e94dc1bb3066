package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/metalboot/internal/ui/benchmarks"
)

const maxLogLines = 8

// PhaseRow is one line of the phase list.
type PhaseRow struct {
	Name     string
	State    PhaseState
	Started  time.Time
	Duration time.Duration
	Err      string
}

// Model is the Bubble Tea model of the provisioning dashboard.
type Model struct {
	ClusterName string
	NodeCount   int

	Phases   []PhaseRow
	Statuses map[string]string
	Logs     []string
	Warnings int
	Banners  []BannerMsg

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	SpinnerFrame int

	Width       int
	Height      int
	Err         error
	Done        bool
	Interrupted bool

	cancel context.CancelFunc
	now    func() time.Time
}

// NewModel creates a dashboard for the given phases. cancel is called when
// the operator quits before the run returned.
func NewModel(clusterName string, nodeCount int, phases []string, cancel context.CancelFunc) Model {
	rows := make([]PhaseRow, len(phases))
	for i, name := range phases {
		rows[i] = PhaseRow{Name: name}
	}
	return Model{
		ClusterName:      clusterName,
		NodeCount:        nodeCount,
		Phases:           rows,
		Statuses:         make(map[string]string),
		PerformanceScale: 1.0,
		StartTime:        time.Now(),
		cancel:           cancel,
		now:              time.Now,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.Done {
				m.Interrupted = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case PhaseMsg:
		m.updatePhase(msg)
		m.updateETA()

	case StatusMsg:
		m.Statuses[msg.Phase] = msg.Line

	case LogMsg:
		if msg.Warning {
			m.Warnings++
		}
		m.Logs = append(m.Logs, msg.Line)
		if len(m.Logs) > maxLogLines {
			m.Logs = m.Logs[len(m.Logs)-maxLogLines:]
		}

	case BannerMsg:
		m.Banners = append(m.Banners, msg)

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) updatePhase(msg PhaseMsg) {
	idx := -1
	for i, p := range m.Phases {
		if p.Name == msg.Phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	row := &m.Phases[idx]
	row.State = msg.State
	switch msg.State {
	case PhaseActive:
		row.Started = msg.At
	case PhaseDone, PhaseFailed:
		if !row.Started.IsZero() {
			row.Duration = msg.At.Sub(row.Started)
		}
		row.Err = msg.Err
		delete(m.Statuses, row.Name)
	}
}

func (m *Model) updateETA() {
	var (
		history []benchmarks.Record
		current string
		elapsed time.Duration
	)
	for _, p := range m.Phases {
		switch p.State {
		case PhaseDone:
			history = append(history, benchmarks.Record{Phase: p.Name, Duration: p.Duration})
		case PhaseActive:
			current = p.Name
			elapsed = m.clock().Sub(p.Started)
		}
	}
	if current == "" {
		m.EstimatedRemaining = 0
		return
	}

	m.PerformanceScale = benchmarks.PerformanceScale(current, elapsed, history)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(current, elapsed, history, m.PerformanceScale)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}

func (m Model) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// phaseWeight is a phase's share of the progress bar.
func phaseWeight(phase string) time.Duration {
	if secs, ok := benchmarks.DefaultTimings[phase]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
