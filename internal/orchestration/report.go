package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
)

// Outcome classifies a finished run.
type Outcome string

// Run outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Report summarizes a run.
type Report struct {
	Cluster         string
	Nodes           int
	Imaged          []string
	Configured      []string
	Readiness       k8s.Readiness
	CredentialsPath string
	ArchivedKeys    []string
	Warnings        []string
	Duration        time.Duration
	Err             error
}

func (r *Report) fill(registry *inventory.Registry, state *provisioning.State) {
	r.Nodes = registry.Len()
	r.Imaged = state.Imaged
	r.Configured = state.Configured
	r.Readiness = state.Readiness
	r.CredentialsPath = state.CredentialsPath
	r.ArchivedKeys = state.ArchivedKeys
	r.Warnings = state.Warnings
}

// Outcome returns failure for a fatal abort, partial when anything was
// degraded and success otherwise.
func (r *Report) Outcome() Outcome {
	switch {
	case r.Err != nil:
		return OutcomeFailure
	case len(r.Warnings) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Summary is the banner text.
func (r *Report) Summary() string {
	var b strings.Builder
	switch r.Outcome() {
	case OutcomeFailure:
		fmt.Fprintf(&b, "Provisioning of %s failed after %s\n%v", r.Cluster, r.Duration.Round(time.Second), r.Err)
		return b.String()
	case OutcomePartial:
		fmt.Fprintf(&b, "Cluster %s provisioned with %d warning(s) in %s", r.Cluster, len(r.Warnings), r.Duration.Round(time.Second))
	default:
		fmt.Fprintf(&b, "Cluster %s provisioned in %s", r.Cluster, r.Duration.Round(time.Second))
	}

	fmt.Fprintf(&b, "\nConfigured: %d/%d node(s)", len(r.Configured), r.Nodes)
	if r.Readiness.Total() > 0 {
		fmt.Fprintf(&b, "\nReadiness:  %s", r.Readiness)
	}
	if r.CredentialsPath != "" {
		fmt.Fprintf(&b, "\nKubeconfig: %s", r.CredentialsPath)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  ! %s", w)
	}
	return b.String()
}

// Render writes the banner for the outcome.
func (r *Report) Render(o provisioning.Observer) {
	kind := provisioning.BannerSuccess
	switch r.Outcome() {
	case OutcomeFailure:
		kind = provisioning.BannerFailure
	case OutcomePartial:
		kind = provisioning.BannerWarning
	}
	o.Banner(kind, r.Summary())
}
