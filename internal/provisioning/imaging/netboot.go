package imaging

import (
	"context"
	"fmt"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/async"
	"github.com/imamik/metalboot/internal/util/labels"
	"github.com/imamik/metalboot/internal/util/naming"
)

// NetbootPhase declares every node to the engine with PXE allowed.
type NetbootPhase struct{}

// NewNetbootPhase creates the netboot-enable phase.
func NewNetbootPhase() *NetbootPhase {
	return &NetbootPhase{}
}

// Name implements the provisioning.Phase interface.
func (p *NetbootPhase) Name() string {
	return "netboot-enable"
}

// Provision implements the provisioning.Phase interface.
func (p *NetbootPhase) Provision(ctx *provisioning.Context) error {
	ctx.Observer.Printf("[%s] Enabling netboot for %d node(s)...", p.Name(), ctx.Registry.Len())
	return SetNetboot(ctx, p.Name(), ctx.Registry.Nodes(), true)
}

// SetNetboot creates or patches the Hardware object of every node.
func SetNetboot(ctx *provisioning.Context, phase string, nodes []inventory.Node, enabled bool) error {
	return async.ForEach(ctx, nodes, 0, func(c context.Context, n inventory.Node) error {
		name := naming.Hardware(n.Name)
		if err := ctx.Workflows.PatchHardware(c, name, hardwareFor(ctx, n, enabled)); err != nil {
			provisioning.LogResourceFailed(ctx.Observer, phase, "hardware", name, err)
			return fmt.Errorf("failed to set netboot=%t on %s: %w", enabled, n.Name, err)
		}
		provisioning.LogResource(ctx.Observer, phase, "hardware", name, "updated")
		return nil
	})
}

func hardwareFor(ctx *provisioning.Context, n inventory.Node, netboot bool) tinkerbell.HardwareSpec {
	return tinkerbell.HardwareSpec{
		AgentID:            n.HardwareID(),
		MAC:                n.HardwareID(),
		Address:            n.Address.String(),
		Hostname:           n.Name,
		ImageServerBaseURL: ctx.Config.Workflow.ImageServerBaseURL,
		Netboot:            netboot,
		Labels: labels.NewLabelBuilder(ctx.Config.ClusterName).
			WithRole(string(n.Role)).
			WithNode(n.Name).
			Build(),
	}
}
