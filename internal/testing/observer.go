package testing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/metalboot/internal/provisioning"
)

// RecordingObserver is a provisioning.Observer that keeps everything it is
// told. Copies made with WithFields share the same record.
type RecordingObserver struct {
	rec    *record
	fields map[string]string
}

type record struct {
	mu       sync.Mutex
	events   []provisioning.Event
	messages []string
	statuses []string
	banners  []string
}

// NewRecordingObserver creates an empty observer.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{rec: &record{}, fields: map[string]string{}}
}

// Printf implements provisioning.Logger.
func (o *RecordingObserver) Printf(format string, v ...any) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.messages = append(o.rec.messages, fmt.Sprintf(format, v...))
}

// Event implements provisioning.Observer.
func (o *RecordingObserver) Event(event provisioning.Event) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.events = append(o.rec.events, event)
}

// Progress implements provisioning.Observer.
func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Phase:   phase,
		Message: fmt.Sprintf("%d/%d", current, total),
	})
}

// Status implements provisioning.Observer.
func (o *RecordingObserver) Status(phase, line string) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.statuses = append(o.rec.statuses, fmt.Sprintf("[%s] %s", phase, line))
}

// Banner implements provisioning.Observer.
func (o *RecordingObserver) Banner(kind provisioning.BannerKind, message string) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.banners = append(o.rec.banners, fmt.Sprintf("%s: %s", kind, message))
}

// WithFields implements provisioning.Observer.
func (o *RecordingObserver) WithFields(fields map[string]string) provisioning.Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	for k, v := range o.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &RecordingObserver{rec: o.rec, fields: merged}
}

// Events returns recorded events, optionally filtered by type.
func (o *RecordingObserver) Events(types ...provisioning.EventType) []provisioning.Event {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	var out []provisioning.Event
	for _, e := range o.rec.events {
		if len(types) == 0 || containsType(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

func containsType(types []provisioning.EventType, t provisioning.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// Statuses returns every status line.
func (o *RecordingObserver) Statuses() []string {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return append([]string(nil), o.rec.statuses...)
}

// Banners returns "kind: message" for every banner.
func (o *RecordingObserver) Banners() []string {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return append([]string(nil), o.rec.banners...)
}

// Output joins messages and event messages, for substring assertions.
func (o *RecordingObserver) Output() string {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	var b strings.Builder
	for _, m := range o.rec.messages {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	for _, e := range o.rec.events {
		b.WriteString(string(e.Type))
		b.WriteByte(' ')
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return b.String()
}
