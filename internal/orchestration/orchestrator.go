package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/cluster"
	"github.com/imamik/metalboot/internal/provisioning/configure"
	"github.com/imamik/metalboot/internal/provisioning/imaging"
	"github.com/imamik/metalboot/internal/provisioning/power"
)

// Orchestrator runs the provisioning phases against a set of collaborators.
type Orchestrator struct {
	deps     provisioning.Deps
	observer provisioning.Observer
	phases   []provisioning.Phase
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver replaces the console observer.
func WithObserver(o provisioning.Observer) Option {
	return func(orch *Orchestrator) {
		orch.observer = o
	}
}

// WithPhases replaces the default phase list.
func WithPhases(phases ...provisioning.Phase) Option {
	return func(orch *Orchestrator) {
		orch.phases = phases
	}
}

// NewOrchestrator creates an orchestrator running DefaultPhases.
func NewOrchestrator(deps provisioning.Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		phases: DefaultPhases(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = provisioning.NewConsoleObserver()
	}
	return o
}

// DefaultPhases returns the full provisioning sequence.
func DefaultPhases() []provisioning.Phase {
	return []provisioning.Phase{
		provisioning.NewPreflightPhase(),
		imaging.NewNetbootPhase(),
		power.NewProvisioner(),
		imaging.NewProvisioner(),
		imaging.NewRebootPhase(),
		configure.NewProvisioner(),
		cluster.NewProvisioner(),
		cluster.NewVerifyPhase(),
	}
}

// PhaseNames lists the names of phases in order.
func PhaseNames(phases []provisioning.Phase) []string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.Name()
	}
	return names
}

// Run executes every phase and always returns a report. The error is non-nil
// only for a fatal abort; partial success is reported through the warnings.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config, run provisioning.RunConfig) (*Report, error) {
	start := time.Now()
	report := &Report{Cluster: cfg.ClusterName}

	registry, err := inventory.FromConfig(cfg)
	if err != nil {
		report.Err = fmt.Errorf("invalid inventory: %w", err)
		report.Duration = time.Since(start)
		report.Render(o.observer)
		return report, report.Err
	}

	pCtx := provisioning.NewContext(ctx, cfg, run, registry, o.deps, o.observer)
	pCtx.Observer.Printf("Provisioning cluster %s: %d node(s), %d control plane(s), mode %s",
		cfg.ClusterName, registry.Len(), registry.ControlPlaneCount(), run.Mode)

	runErr := provisioning.NewPipeline(o.phases...).Run(pCtx)

	if err := pCtx.Metrics.WriteTextfile(run.MetricsFile); err != nil {
		pCtx.Warn("metrics", "%v", err)
	}

	report.fill(registry, pCtx.State)
	report.Err = runErr
	report.Duration = time.Since(start)
	report.Render(o.observer)
	return report, runErr
}
