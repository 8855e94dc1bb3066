package imaging

import (
	"errors"
	"strings"

	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/naming"
)

const phase = "imaging"

// Provisioner submits the install workflows and waits for them.
type Provisioner struct{}

// NewProvisioner creates a new imaging provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	nodes := ctx.Registry.Nodes()
	ctx.Observer.Printf("[%s] Submitting %d install workflow(s)...", phase, len(nodes))

	names, err := submitAll(ctx, phase, naming.KindInstall, nodes)
	if err != nil {
		return err
	}

	poller := NewPoller(ctx)
	poller.OnPoll = func(c Counts, _ []tinkerbell.JobState) {
		ctx.Metrics.SetWorkflowBuckets(naming.KindInstall, c.Map())
		ctx.Observer.Status(phase, c.Bar(barWidth, len(names)))
		ctx.Observer.Progress(phase, c.Completed, len(names))
	}

	if _, err := poller.Wait(ctx, names); err != nil {
		var abort *AbortError
		if errors.As(err, &abort) {
			p.dump(ctx, abort.States)
		}
		return err
	}

	ctx.State.Imaged = names
	ctx.Observer.Printf("[%s] All %d install workflow(s) completed", phase, len(names))
	return nil
}

func (p *Provisioner) dump(ctx *provisioning.Context, states []tinkerbell.JobState) {
	var b strings.Builder
	Dump(ctx, &b, ctx.Workflows, states)
	ctx.Observer.Printf("[%s] Workflow state at abort:\n%s", phase, b.String())
}
