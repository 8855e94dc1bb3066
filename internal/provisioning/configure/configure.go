package configure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/platform/talos"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/imaging"
	"github.com/imamik/metalboot/internal/util/async"
	"github.com/imamik/metalboot/internal/util/poll"
	"github.com/imamik/metalboot/internal/util/retry"
)

const phase = "configure"

// Provisioner applies machine configuration to every reachable node.
type Provisioner struct{}

// NewProvisioner creates a new configure provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Result lists what happened to each node.
type Result struct {
	Applied  []inventory.Node
	NotReady []inventory.Node
	Failed   map[string]error

	// FellBack maps nodes that only took the role base to the reason.
	FellBack map[string]string
}

// Partial reports whether any node was left unconfigured.
func (r Result) Partial() bool {
	return len(r.NotReady) > 0 || len(r.Failed) > 0
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	nodes := ctx.Registry.Nodes()

	ready, notReady := p.WaitForPorts(ctx, nodes)
	if len(notReady) > 0 {
		ctx.Warn(phase, "configuration port closed on %s after %s, continuing with %d/%d node(s)",
			strings.Join(nodeNames(notReady), ", "), ctx.Timeouts.ConfigPortWait, len(ready), len(nodes))
	}

	// A node left netbooting reinstalls on its next boot.
	ctx.Observer.Printf("[%s] Disabling netboot...", phase)
	if err := imaging.SetNetboot(ctx, phase, nodes, false); err != nil {
		return err
	}

	res := p.ApplyAll(ctx, ready)
	res.NotReady = notReady

	for _, n := range res.Applied {
		ctx.State.Configured = append(ctx.State.Configured, n.Name)
	}
	for name, err := range res.Failed {
		ctx.State.FailedConfig[name] = err
	}
	for _, n := range res.Applied {
		if reason, ok := res.FellBack[n.Name]; ok {
			ctx.Warn(phase, "%s %s, applied the role base instead", n.Name, reason)
		}
	}

	if err := p.checkBootstrapNode(ctx, res); err != nil {
		return err
	}
	for _, n := range nodes {
		if err, ok := res.Failed[n.Name]; ok {
			ctx.Warn(phase, "%s not configured: %v", n.Name, err)
		}
	}

	ctx.Observer.Printf("[%s] Configured %d/%d node(s)", phase, len(res.Applied), len(nodes))
	return nil
}

// checkBootstrapNode fails the run when the node that will bootstrap etcd
// did not take its configuration.
func (p *Provisioner) checkBootstrapNode(ctx *provisioning.Context, res Result) error {
	bootstrap, ok := ctx.Registry.FirstControlPlane()
	if !ok {
		return nil
	}
	if err, failed := res.Failed[bootstrap.Name]; failed {
		return fmt.Errorf("bootstrap node %s not configured: %w", bootstrap.Name, err)
	}
	for _, n := range res.NotReady {
		if n.Name == bootstrap.Name {
			return fmt.Errorf("bootstrap node %s never opened its configuration port", bootstrap.Name)
		}
	}
	return nil
}

// WaitForPorts waits concurrently, per node, until the configuration API
// answers. It returns ready and not-ready nodes in registry order.
func (p *Provisioner) WaitForPorts(ctx *provisioning.Context, nodes []inventory.Node) (ready, notReady []inventory.Node) {
	ctx.Observer.Printf("[%s] Waiting for configuration port on %d node(s)...", phase, len(nodes))

	ok := make([]bool, len(nodes))
	var mu sync.Mutex
	var opened int

	_ = async.ForEach(ctx, indexes(len(nodes)), 0, func(c context.Context, i int) error {
		n := nodes[i]
		res := poll.Until(c, poll.Options{
			Interval: ctx.Timeouts.ConfigPortPoll,
			Timeout:  ctx.Timeouts.ConfigPortWait,
		}, func(c context.Context, _ poll.Tick) (poll.Observation, error) {
			return poll.Observation{Done: ctx.Prober.Probe(c, n) == probe.OnlineTargetRuntime}, nil
		})
		if res.OK() {
			mu.Lock()
			ok[i] = true
			opened++
			ctx.Observer.Status(phase, fmt.Sprintf("configuration port open on %d/%d node(s)", opened, len(nodes)))
			mu.Unlock()
		}
		return nil
	})

	for i, n := range nodes {
		if ok[i] {
			ready = append(ready, n)
		} else {
			notReady = append(notReady, n)
		}
	}
	return ready, notReady
}

// ApplyAll configures nodes concurrently.
func (p *Provisioner) ApplyAll(ctx *provisioning.Context, nodes []inventory.Node) Result {
	res := Result{Failed: make(map[string]error), FellBack: make(map[string]string)}
	applied := make([]bool, len(nodes))
	var mu sync.Mutex

	_ = async.ForEach(ctx, indexes(len(nodes)), 0, func(_ context.Context, i int) error {
		n := nodes[i]
		fallback, err := p.Apply(ctx, n)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed[n.Name] = err
			provisioning.LogResourceFailed(ctx.Observer, phase, "machine config", n.Name, err)
			return nil
		}
		applied[i] = true
		if fallback != "" {
			res.FellBack[n.Name] = fallback
		}
		provisioning.LogResource(ctx.Observer, phase, "machine config", n.Name, "updated")
		return nil
	})

	for i, n := range nodes {
		if applied[i] {
			res.Applied = append(res.Applied, n)
		}
	}
	return res
}

// Apply pushes a node's payload with bounded retry. When the node's own
// file fails, the role base is tried once with the same budget; the role is
// looked up again in the registry rather than taken from n. A non-empty
// fallback says why the role base was applied instead of the node's file.
func (p *Provisioner) Apply(ctx *provisioning.Context, n inventory.Node) (fallback string, err error) {
	patch, err := talos.BuildPatch(n.Name, ctx.Run.Features())
	if err != nil {
		return "", err
	}

	payload, err := Resolve(ctx.Config, n)
	if err != nil {
		return "", err
	}
	if payload.NodeErr != nil {
		ctx.Observer.Printf("[%s] %s: %v, using %s", phase, n.Name, payload.NodeErr, payload.Path)
		if err := p.push(ctx, n, payload, patch); err != nil {
			return "", fmt.Errorf("%w (own file: %v)", err, payload.NodeErr)
		}
		return fmt.Sprintf("could not read its own configuration (%v)", payload.NodeErr), nil
	}

	err = p.push(ctx, n, payload, patch)
	if err == nil || !payload.PerNode {
		return "", err
	}

	role, ok := ctx.Registry.RoleOf(n.Name)
	if !ok {
		return "", fmt.Errorf("%s is not in the inventory: %w", n.Name, err)
	}
	ctx.Observer.Printf("[%s] %s failed with %s, falling back to the %s base: %v",
		phase, n.Name, payload.Path, role, err)

	base, baseErr := RoleBase(ctx.Config, role)
	if baseErr != nil {
		return "", fmt.Errorf("%w (fallback: %v)", err, baseErr)
	}
	if baseErr = p.push(ctx, n, base, patch); baseErr != nil {
		return "", fmt.Errorf("%s: %w (fallback: %v)", payload.Path, err, baseErr)
	}
	return "rejected its own configuration", nil
}

func (p *Provisioner) push(ctx *provisioning.Context, n inventory.Node, payload Payload, patch []byte) error {
	address := n.Address.String()
	return retry.Do(ctx, func(c context.Context) error {
		err := ctx.Nodes.ApplyConfig(c, address, payload.Data, patch, true)
		if err != nil && talos.IsPermanent(err) {
			return retry.Fatal(err)
		}
		return err
	},
		retry.WithAttempts(ctx.Timeouts.ConfigApplyRetries),
		retry.WithInitialDelay(ctx.Timeouts.ConfigApplyBackoff),
		retry.WithOnRetry(func(attempt int, err error) {
			ctx.Observer.Printf("[%s] Applying %s to %s failed (attempt %d): %v",
				phase, payload.Path, n.Name, attempt, err)
		}),
	)
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func nodeNames(nodes []inventory.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
