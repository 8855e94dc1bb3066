package provisioning

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Logger is the minimal printf-style output used by phases.
type Logger interface {
	Printf(format string, v ...any)
}

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// Status shows the compact, continuously updated status line of a phase.
	Status(phase, line string)

	// Banner reports the outcome of the run.
	Banner(kind BannerKind, message string)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "power", "imaging")
	Message   string            // Human-readable message
	Resource  string            // Resource name if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventResourceCreated indicates a resource was created.
	EventResourceCreated EventType = "resource.created"
	// EventResourceExists indicates an identical resource already exists.
	EventResourceExists EventType = "resource.exists"
	// EventResourceReplaced indicates a resource was deleted and recreated.
	EventResourceReplaced EventType = "resource.replaced"
	// EventResourceUpdated indicates a resource was patched in place.
	EventResourceUpdated EventType = "resource.updated"
	// EventResourceFailed indicates a resource operation failed.
	EventResourceFailed EventType = "resource.failed"

	// EventValidationWarning indicates a validation warning.
	EventValidationWarning EventType = "validation.warning"
	// EventValidationError indicates a validation error.
	EventValidationError EventType = "validation.error"

	// EventWarning indicates a non-fatal condition the run continues past.
	EventWarning EventType = "warning"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// BannerKind selects the banner style.
type BannerKind string

// Banner kinds.
const (
	BannerSuccess BannerKind = "success"
	BannerWarning BannerKind = "warning"
	BannerFailure BannerKind = "failure"
)

// consoleOutput is shared by a ConsoleObserver and everything derived from
// it with WithFields, so status lines and log lines never interleave.
type consoleOutput struct {
	mu         sync.Mutex
	w          io.Writer
	logger     *log.Logger
	renderer   *lipgloss.Renderer
	tty        bool
	statusOpen bool
	lastStatus map[string]string
}

// ConsoleObserver implements Observer on top of the standard log package.
// On a terminal the status line is rewritten in place; otherwise it is only
// printed when it changes.
type ConsoleObserver struct {
	out           *consoleOutput
	contextFields map[string]string
}

// NewConsoleObserver creates a console observer writing to stderr.
func NewConsoleObserver() *ConsoleObserver {
	return NewConsoleObserverTo(os.Stderr)
}

// NewConsoleObserverTo creates a console observer writing to w.
func NewConsoleObserverTo(w io.Writer) *ConsoleObserver {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleObserver{
		out: &consoleOutput{
			w:          w,
			logger:     log.New(w, "", log.LstdFlags),
			renderer:   lipgloss.NewRenderer(w),
			tty:        tty,
			lastStatus: make(map[string]string),
		},
		contextFields: make(map[string]string),
	}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	o.print(fmt.Sprintf(format, v...))
}

// Event implements Observer interface.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Merge context fields
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}

	o.print(formatEvent(event))
}

// Progress implements Observer interface.
func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total == 0 {
		o.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	percentage := (current * 100) / total
	o.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, percentage)
}

// Status implements Observer interface.
func (o *ConsoleObserver) Status(phase, line string) {
	out := o.out
	out.mu.Lock()
	defer out.mu.Unlock()

	text := fmt.Sprintf("[%s] %s", phase, line)
	if out.tty {
		_, _ = fmt.Fprintf(out.w, "\r\033[K%s", text)
		out.statusOpen = true
		return
	}
	if out.lastStatus[phase] == line {
		return
	}
	out.lastStatus[phase] = line
	out.logger.Print(text)
}

// Banner implements Observer interface.
func (o *ConsoleObserver) Banner(kind BannerKind, message string) {
	out := o.out
	out.mu.Lock()
	defer out.mu.Unlock()

	out.closeStatus()
	_, _ = fmt.Fprintln(out.w, bannerStyle(out.renderer, kind).Render(message))
}

// WithFields implements Observer interface.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &ConsoleObserver{
		out:           o.out,
		contextFields: newFields,
	}
}

func (o *ConsoleObserver) print(msg string) {
	out := o.out
	out.mu.Lock()
	defer out.mu.Unlock()

	out.closeStatus()
	out.logger.Print(msg)
}

// closeStatus ends an in-place status line so the next write starts on a
// fresh line. Callers hold mu.
func (c *consoleOutput) closeStatus() {
	if c.statusOpen {
		_, _ = fmt.Fprintln(c.w)
		c.statusOpen = false
	}
}

func bannerStyle(r *lipgloss.Renderer, kind BannerKind) lipgloss.Style {
	color := lipgloss.Color("10")
	switch kind {
	case BannerWarning:
		color = lipgloss.Color("11")
	case BannerFailure:
		color = lipgloss.Color("9")
	}
	return r.NewStyle().
		Bold(true).
		Foreground(color).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)
}

// formatEvent formats an event for console output.
func formatEvent(event Event) string {
	var parts []string

	parts = append(parts, string(event.Type))

	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}

	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}

	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogWarning logs a non-fatal condition.
func LogWarning(observer Observer, phase, message string) {
	observer.Event(Event{
		Type:    EventWarning,
		Phase:   phase,
		Message: message,
	})
}

// LogResource logs the outcome of a declarative write. outcome is one of
// created, unchanged, replaced or updated.
func LogResource(observer Observer, phase, resourceType, resourceName, outcome string) {
	eventType := EventResourceUpdated
	message := fmt.Sprintf("%s updated", resourceType)
	switch outcome {
	case "created":
		eventType, message = EventResourceCreated, fmt.Sprintf("%s created", resourceType)
	case "unchanged":
		eventType, message = EventResourceExists, fmt.Sprintf("%s already exists", resourceType)
	case "replaced":
		eventType, message = EventResourceReplaced, fmt.Sprintf("%s replaced", resourceType)
	}
	observer.Event(Event{
		Type:     eventType,
		Phase:    phase,
		Resource: resourceName,
		Message:  message,
		Fields: map[string]string{
			"type": resourceType,
		},
	})
}

// LogResourceFailed logs a failed resource operation.
func LogResourceFailed(observer Observer, phase, resourceType, resourceName string, err error) {
	observer.Event(Event{
		Type:     EventResourceFailed,
		Phase:    phase,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s failed: %v", resourceType, err),
		Fields: map[string]string{
			"type": resourceType,
		},
	})
}
