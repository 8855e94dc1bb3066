package cluster

import (
	"fmt"
	"strings"

	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/poll"
)

const verifyPhase = "verify"

// VerifyPhase waits for nodes to join and persists the credentials.
type VerifyPhase struct{}

// NewVerifyPhase creates a new verify phase.
func NewVerifyPhase() *VerifyPhase {
	return &VerifyPhase{}
}

// Name implements the provisioning.Phase interface.
func (p *VerifyPhase) Name() string {
	return verifyPhase
}

// ReadinessResult is what the verify phase observed.
type ReadinessResult struct {
	k8s.Readiness
	Want int

	// Skipped is set when no CNI was installed; nodes cannot become Ready.
	Skipped bool
}

// Partial reports whether fewer than Want nodes became Ready.
func (r ReadinessResult) Partial() bool {
	return !r.Skipped && len(r.Ready) < r.Want
}

// Provision implements the provisioning.Phase interface.
func (p *VerifyPhase) Provision(ctx *provisioning.Context) error {
	if len(ctx.State.Kubeconfig) == 0 {
		return fmt.Errorf("%w: nothing to verify", ErrCredentialsUnavailable)
	}

	if _, err := p.WaitReady(ctx); err != nil {
		return err
	}
	return Persist(ctx)
}

// WaitReady waits until every declared node reports Ready. Without a CNI
// nodes never become Ready, so it only gives them time to register.
func (p *VerifyPhase) WaitReady(ctx *provisioning.Context) (ReadinessResult, error) {
	want := ctx.Registry.Len()
	res := ReadinessResult{Want: want}

	if !ctx.Run.CNI {
		ctx.Observer.Printf("[%s] CNI disabled, nodes stay NotReady until one is installed; waiting %s for registration",
			verifyPhase, ctx.Timeouts.NodeRegistrationSettle)
		if err := poll.Sleep(ctx, ctx.Timeouts.NodeRegistrationSettle); err != nil {
			return res, err
		}
		res.Skipped = true
		return res, nil
	}

	client, err := ctx.ClusterClient(ctx.State.Kubeconfig)
	if err != nil {
		return res, fmt.Errorf("failed to create cluster client: %w", err)
	}

	ctx.Observer.Printf("[%s] Waiting for %d node(s) to become Ready...", verifyPhase, want)
	readiness, err := client.WaitReady(ctx, want, ctx.Timeouts.ClusterPollInterval, ctx.Timeouts.NodeReadyWait)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	res.Readiness = readiness
	ctx.State.Readiness = readiness

	if err != nil || res.Partial() {
		ctx.Warn(verifyPhase, "%s after %s, want %d (not ready: %s)",
			readiness, ctx.Timeouts.NodeReadyWait, want, missing(readiness))
		return res, nil
	}
	ctx.Observer.Printf("[%s] All %d node(s) Ready", verifyPhase, want)
	return res, nil
}

func missing(r k8s.Readiness) string {
	if len(r.NotReady) == 0 {
		return "none registered"
	}
	return strings.Join(r.NotReady, ", ")
}
