package provisioning

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// LogrObserver implements Observer on top of logr. It is used when the run
// executes inside a Job, where output ends up in pod logs and must be
// machine-readable.
type LogrObserver struct {
	log    logr.Logger
	fields map[string]string
	status *statusCache
}

type statusCache struct {
	mu   sync.Mutex
	last map[string]string
}

// changed records line for phase and reports whether it differs from the
// previous one.
func (s *statusCache) changed(phase, line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last[phase] == line {
		return false
	}
	s.last[phase] = line
	return true
}

// NewLogrObserver wraps an existing logger.
func NewLogrObserver(l logr.Logger) *LogrObserver {
	return &LogrObserver{
		log:    l,
		fields: make(map[string]string),
		status: &statusCache{last: make(map[string]string)},
	}
}

// NewJSONObserver logs one JSON object per line to w.
func NewJSONObserver(w io.Writer) *LogrObserver {
	var mu sync.Mutex
	sink := func(obj string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(w, obj)
	}
	return NewLogrObserver(funcr.NewJSON(sink, funcr.Options{LogTimestamp: true}))
}

// Printf implements Logger.
func (o *LogrObserver) Printf(format string, v ...any) {
	o.log.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer interface.
func (o *LogrObserver) Event(event Event) {
	kv := []any{"type", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	kv = append(kv, sortedKV(event.Fields)...)

	switch event.Type {
	case EventPhaseFailed, EventResourceFailed, EventValidationError:
		o.log.Error(errors.New(event.Message), "provisioning error", kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// Progress implements Observer interface.
func (o *LogrObserver) Progress(phase string, current, total int) {
	o.log.Info("progress", "phase", phase, "current", current, "total", total)
}

// Status implements Observer interface. Unchanged lines are dropped.
func (o *LogrObserver) Status(phase, line string) {
	if !o.status.changed(phase, line) {
		return
	}
	o.log.Info(line, "type", "status", "phase", phase)
}

// Banner implements Observer interface.
func (o *LogrObserver) Banner(kind BannerKind, message string) {
	o.log.Info(message, "type", "banner", "kind", string(kind))
}

// WithFields implements Observer interface.
func (o *LogrObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.fields)+len(fields))
	for k, v := range o.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &LogrObserver{
		log:    o.log.WithValues(sortedKV(fields)...),
		fields: newFields,
		status: o.status,
	}
}

func sortedKV(fields map[string]string) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}
