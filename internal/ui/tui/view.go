package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/metalboot/internal/provisioning"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderPhases(&b, m)
	if len(m.Logs) > 0 {
		renderLogs(&b, m)
	}
	for _, banner := range m.Banners {
		b.WriteString("\n")
		b.WriteString(bannerStyle(banner.Kind).Render(banner.Message))
		b.WriteString("\n")
	}
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	b.WriteString(titleStyle.Render(fmt.Sprintf("metalboot: %s (%d nodes)", m.ClusterName, m.NodeCount)))

	status := " "
	switch {
	case m.Interrupted:
		status += failedStyle.Render("Interrupted")
	case m.Done && m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done && m.Warnings > 0:
		status += warningStyle.Render(fmt.Sprintf("Provisioned with %d warning(s)", m.Warnings))
	case m.Done:
		status += readyStyle.Render("Provisioned")
	default:
		if active, ok := m.activePhase(); ok {
			status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(active.Name)
		} else {
			status += dimStyle.Render("Starting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, int(progress*100), eta)
}

func renderPhases(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Phases"))
	b.WriteString("\n")

	for _, p := range m.Phases {
		var icon string
		var style styleFunc
		detail := ""
		switch p.State {
		case PhaseFailed:
			icon, style = crossMark, sf(failedStyle)
			detail = p.Err
		case PhaseDone:
			icon, style = checkMark, sf(readyStyle)
			detail = formatDuration(p.Duration)
		case PhaseActive:
			icon, style = currentSpinner(m.SpinnerFrame), sf(activeStyle)
			detail = m.Statuses[p.Name]
			if detail == "" {
				detail = formatDuration(m.clock().Sub(p.Started))
			}
		default:
			icon, style = pending, sf(dimStyle)
		}
		fmt.Fprintf(b, "    %s %-16s %s\n", style(icon), style(p.Name), dimStyle.Render(detail))
	}
}

func renderLogs(b *strings.Builder, m Model) {
	title := "  Recent Output"
	if m.Warnings > 0 {
		title += fmt.Sprintf(" (%d warning(s))", m.Warnings)
	}
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n")

	width := m.Width - 6
	for _, line := range m.Logs {
		if width > 10 && len(line) > width {
			line = line[:width-3] + "..."
		}
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(line))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	parts := []string{fmt.Sprintf("elapsed: %s", formatDuration(m.clock().Sub(m.StartTime)))}
	if m.Warnings > 0 {
		parts = append(parts, warningStyle.Render(fmt.Sprintf("%s %d warning(s)", warnMark, m.Warnings)))
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  %s  |  q: quit", strings.Join(parts, "  |  "))))
	b.WriteString("\n")
}

func (m Model) activePhase() (PhaseRow, bool) {
	for _, p := range m.Phases {
		if p.State == PhaseActive {
			return p, true
		}
	}
	return PhaseRow{}, false
}

func bannerStyle(kind provisioning.BannerKind) lipgloss.Style {
	color := colorGreen
	switch kind {
	case provisioning.BannerWarning:
		color = colorYellow
	case provisioning.BannerFailure:
		color = colorRed
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

// calculateProgress weighs every phase by its expected duration, so imaging
// dominates the bar the way it dominates the run.
func calculateProgress(m Model) float64 {
	if m.Done && m.Err == nil && !m.Interrupted {
		return 1.0
	}

	var total, done time.Duration
	for _, p := range m.Phases {
		w := phaseWeight(p.Name)
		total += w
		if p.State == PhaseDone {
			done += w
		}
	}
	if total == 0 {
		return 0
	}
	return min(float64(done)/float64(total), 1.0)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
