package imaging

import (
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/naming"
)

// RebootPhase submits the reboot workflows. They are not awaited; the
// configure phase confirms nodes came back by probing and only then turns
// netboot off, so the workflow path stays open until the reboot landed.
type RebootPhase struct{}

// NewRebootPhase creates the reboot phase.
func NewRebootPhase() *RebootPhase {
	return &RebootPhase{}
}

// Name implements the provisioning.Phase interface.
func (p *RebootPhase) Name() string {
	return "reboot"
}

// Provision implements the provisioning.Phase interface.
func (p *RebootPhase) Provision(ctx *provisioning.Context) error {
	nodes := ctx.Registry.Nodes()
	ctx.Observer.Printf("[%s] Submitting %d reboot workflow(s)...", p.Name(), len(nodes))

	if _, err := submitAll(ctx, p.Name(), naming.KindReboot, nodes); err != nil {
		ctx.Warn(p.Name(), "reboot workflows incomplete, nodes may need a manual power cycle: %v", err)
	}
	return nil
}
