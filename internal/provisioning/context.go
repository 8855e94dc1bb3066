package provisioning

import (
	"context"
	"fmt"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/platform/talos"
	"github.com/imamik/metalboot/internal/probe"
)

// Mode selects where a run executes.
type Mode string

// Run modes.
const (
	// ModeLocal runs every phase in this process.
	ModeLocal Mode = "local"
	// ModeJob delegates the run to a Job in the management cluster.
	ModeJob Mode = "job"
)

// ParseMode validates a --mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeJob:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %s or %s)", s, ModeLocal, ModeJob)
	}
}

// RunConfig is built once from flags and never changes during a run.
type RunConfig struct {
	Mode Mode

	// CNI and ClusterDNS keep the default network plugin and CoreDNS.
	// Turning either off patches it out of every node's configuration.
	CNI        bool
	ClusterDNS bool

	// AssumeYes skips the confirmation before resetting running nodes.
	AssumeYes bool

	// Interactive is true when a terminal is attached.
	Interactive bool

	// MetricsFile, when set, receives the run metrics in textfile format.
	MetricsFile string

	// Image is the container image used in job mode.
	Image string
}

// Features converts the toggles into configuration patch features.
func (r RunConfig) Features() talos.Features {
	return talos.Features{
		CNIDisabled: !r.CNI,
		DNSDisabled: !r.ClusterDNS,
	}
}

// State holds the shared results of provisioning phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	// Power results
	Snapshot probe.Snapshot
	Online   []inventory.Node

	// Imaging results
	Imaged []string

	// Configuration results
	Configured   []string
	FailedConfig map[string]error

	// Cluster results
	Kubeconfig      []byte
	TalosConfig     []byte
	Readiness       k8s.Readiness
	CredentialsPath string
	ArchivedKeys    []string

	// Warnings collects every non-fatal condition of the run.
	Warnings []string
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{
		FailedConfig: make(map[string]error),
	}
}

// Deps are the external collaborators of a run. Secrets and Archive are
// optional.
type Deps struct {
	Nodes         NodeConfigAPI
	Workflows     WorkflowAPI
	Prober        Prober
	Waker         Waker
	ClusterClient ClusterClientFactory
	Secrets       SecretStore
	Archive       Archiver
	Confirm       Confirmer
}

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Deps

	Config   *config.Config
	Run      RunConfig
	Registry *inventory.Registry
	State    *State
	Observer Observer
	Timeouts config.Timeouts
	Metrics  *Metrics
}

// NewContext creates a new provisioning context.
func NewContext(
	ctx context.Context,
	cfg *config.Config,
	run RunConfig,
	registry *inventory.Registry,
	deps Deps,
	observer Observer,
) *Context {
	if observer == nil {
		observer = NewConsoleObserver()
	}
	return &Context{
		Context:  ctx,
		Deps:     deps,
		Config:   cfg,
		Run:      run,
		Registry: registry,
		State:    NewState(),
		Observer: observer,
		Timeouts: cfg.Timeouts,
		Metrics:  NewMetrics(cfg.ClusterName),
	}
}

// Warn records a non-fatal condition and reports it.
func (c *Context) Warn(phase, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	c.State.Warnings = append(c.State.Warnings, fmt.Sprintf("%s: %s", phase, msg))
	LogWarning(c.Observer, phase, msg)
}
