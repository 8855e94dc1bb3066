package provisioning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a preflight error or warning.
type ValidationError struct {
	Field    string // Configuration field or dependency that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

// PreflightPhase checks everything a run needs before any node is touched.
type PreflightPhase struct{}

// NewPreflightPhase creates a new preflight phase.
func NewPreflightPhase() *PreflightPhase {
	return &PreflightPhase{}
}

// Name implements the Phase interface.
func (p *PreflightPhase) Name() string {
	return "preflight"
}

// Provision implements the Phase interface.
func (p *PreflightPhase) Provision(ctx *Context) error {
	ctx.Observer.Printf("[Preflight] Running preflight checks...")

	var errs []string
	for _, ve := range Preflight(ctx) {
		if !ve.IsError() {
			ctx.Observer.Event(Event{
				Type:     EventValidationWarning,
				Phase:    p.Name(),
				Resource: ve.Field,
				Message:  ve.Message,
			})
			ctx.State.Warnings = append(ctx.State.Warnings, fmt.Sprintf("%s: %s", p.Name(), ve.Message))
			continue
		}
		ctx.Observer.Event(Event{
			Type:     EventValidationError,
			Phase:    p.Name(),
			Resource: ve.Field,
			Message:  ve.Message,
		})
		errs = append(errs, ve.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("preflight failed:\n  %s", strings.Join(errs, "\n  "))
	}

	for _, n := range ctx.Registry.Nodes() {
		ctx.Observer.Printf("[Preflight] %s mac=%s", n, n.HardwareID())
	}
	return nil
}

// Preflight runs all checks and returns any errors or warnings.
func Preflight(ctx *Context) []ValidationError {
	var errs []ValidationError
	cfg := ctx.Config

	// --- Dependencies ---

	required := []struct {
		field string
		ok    bool
	}{
		{"NodeConfigAPI", ctx.Nodes != nil},
		{"WorkflowAPI", ctx.Workflows != nil},
		{"Prober", ctx.Prober != nil},
		{"Waker", ctx.Waker != nil},
		{"ClusterClient", ctx.ClusterClient != nil},
	}
	for _, r := range required {
		if !r.ok {
			errs = append(errs, ValidationError{
				Field:    r.field,
				Message:  "not configured",
				Severity: "error",
			})
		}
	}

	// --- Nodes ---

	if ctx.Registry == nil || ctx.Registry.Len() == 0 {
		errs = append(errs, ValidationError{
			Field:    "Nodes",
			Message:  "at least one node is required",
			Severity: "error",
		})
		return errs
	}

	cp := ctx.Registry.ControlPlaneCount()
	switch {
	case cp == 0:
		errs = append(errs, ValidationError{
			Field:    "ControlPlaneCount",
			Message:  "at least one control plane node is required to bootstrap the cluster",
			Severity: "error",
		})
	case cp%2 == 0:
		errs = append(errs, ValidationError{
			Field:    "ControlPlaneCount",
			Message:  fmt.Sprintf("%d control planes give etcd no extra fault tolerance over %d", cp, cp-1),
			Severity: "warning",
		})
	}

	// --- Configuration files ---

	if err := cfg.ValidateFiles(); err != nil {
		errs = append(errs, ValidationError{
			Field:    "Talos.ConfigDir",
			Message:  err.Error(),
			Severity: "error",
		})
	}

	for _, n := range ctx.Registry.Nodes() {
		path := filepath.Join(cfg.Talos.ConfigDir, "nodes", n.Name+".yaml")
		if info, err := os.Stat(path); err == nil && info.Size() == 0 {
			errs = append(errs, ValidationError{
				Field:    "Talos.ConfigDir",
				Message:  fmt.Sprintf("%s is empty, the %s base will be used", path, n.Role),
				Severity: "warning",
			})
		}
	}

	// --- Features ---

	if !ctx.Run.CNI {
		errs = append(errs, ValidationError{
			Field:    "CNI",
			Message:  "network plugin disabled, nodes stay NotReady until one is installed",
			Severity: "warning",
		})
	}

	if ctx.Secrets == nil {
		errs = append(errs, ValidationError{
			Field:    "Cluster.SecretNamespace",
			Message:  "no management cluster client, credentials will only be written locally",
			Severity: "warning",
		})
	}

	if cfg.Workflow.ImageServerBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:    "Workflow.ImageServerBaseURL",
			Message:  "no image server configured, hardware will use the engine default",
			Severity: "warning",
		})
	}

	return errs
}
