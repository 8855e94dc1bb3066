package power

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/async"
	"github.com/imamik/metalboot/internal/util/poll"
)

const phase = "power"

// Provisioner resets or wakes every node.
type Provisioner struct{}

// NewProvisioner creates a new power provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// WaitResult is how a wait for nodes ended. Outcome is never Failed; a
// Timeout still carries the nodes that did answer.
type WaitResult struct {
	Outcome poll.Outcome
	Online  []inventory.Node
	Offline []inventory.Node
	Elapsed time.Duration
}

// Partial reports a success that left some nodes behind.
func (r WaitResult) Partial() bool {
	return r.Outcome == poll.Success && len(r.Offline) > 0
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	nodes := ctx.Registry.Nodes()

	snap := p.snapshot(ctx, nodes)
	ctx.Observer.Printf("[%s] Initial state: %s", phase, snap.Line())

	running, other := snap.Partition()
	if len(running) > 0 {
		if err := p.confirmReset(ctx, running); err != nil {
			return err
		}
	}

	reset := p.IssueResets(ctx, running)
	p.SendWakes(ctx, other)

	if len(reset) > 0 {
		if res := p.WaitDark(ctx, reset); res.Outcome == poll.Canceled {
			return ctx.Err()
		}
	}

	res := p.WaitOnline(ctx, nodes)
	if res.Outcome == poll.Canceled {
		return ctx.Err()
	}
	ctx.State.Online = res.Online
	return nil
}

func (p *Provisioner) snapshot(ctx *provisioning.Context, nodes []inventory.Node) probe.Snapshot {
	snap := ctx.Prober.ProbeAll(ctx, nodes)
	ctx.State.Snapshot = snap
	ctx.Metrics.SetNodeStatus(snap)
	ctx.Observer.Status(phase, snap.Line())
	return snap
}

func (p *Provisioner) confirmReset(ctx *provisioning.Context, running []inventory.Node) error {
	names := nodeNames(running)
	ctx.Observer.Printf("[%s] %d node(s) already run Talos and will be wiped: %s",
		phase, len(running), strings.Join(names, ", "))

	if ctx.Run.AssumeYes {
		return nil
	}
	if !ctx.Run.Interactive || ctx.Confirm == nil {
		return fmt.Errorf("refusing to reset %s without confirmation: rerun with --yes", strings.Join(names, ", "))
	}

	ok, err := ctx.Confirm(fmt.Sprintf("Reset %d running node(s)?", len(running)))
	if err != nil {
		return fmt.Errorf("failed to confirm reset: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// IssueResets fires a reset-and-reboot at every node concurrently and waits
// at most ResetIssue for the calls to return. It returns the nodes expected
// to go dark: every node except those whose call failed outright.
func (p *Provisioner) IssueResets(ctx *provisioning.Context, nodes []inventory.Node) []inventory.Node {
	if len(nodes) == 0 {
		return nil
	}
	ctx.Observer.Printf("[%s] Resetting %d node(s)...", phase, len(nodes))

	tasks := make([]async.Task, len(nodes))
	for i, n := range nodes {
		address := n.Address.String()
		tasks[i] = async.Task{
			Name: n.Name,
			Func: func(c context.Context) error { return ctx.Nodes.Reset(c, address) },
		}
	}

	var issued []inventory.Node
	for i, res := range async.RunBounded(ctx, ctx.Timeouts.ResetIssue, tasks) {
		switch {
		case res.Err == nil:
			issued = append(issued, nodes[i])
		case errors.Is(res.Err, async.ErrAbandoned), errors.Is(res.Err, context.DeadlineExceeded):
			// The node usually drops the connection while rebooting.
			ctx.Observer.Printf("[%s] Reset of %s still pending, assuming it landed", phase, res.Name)
			issued = append(issued, nodes[i])
		default:
			ctx.Warn(phase, "reset of %s failed: %v", res.Name, res.Err)
		}
	}
	return issued
}

// SendWakes sends one magic packet per node. Delivery is unacknowledged, so
// failures are warnings and are not retried.
func (p *Provisioner) SendWakes(ctx *provisioning.Context, nodes []inventory.Node) {
	if len(nodes) == 0 {
		return
	}
	ctx.Observer.Printf("[%s] Sending wake signal to %d node(s)...", phase, len(nodes))

	tasks := make([]async.Task, len(nodes))
	for i, n := range nodes {
		mac := n.MAC
		tasks[i] = async.Task{
			Name: n.Name,
			Func: func(c context.Context) error { return ctx.Waker.Wake(c, mac) },
		}
	}
	if err := async.RunParallel(ctx, tasks); err != nil {
		ctx.Warn(phase, "wake signal not sent: %v", err)
	}
}

// WaitDark polls the reset nodes until none of them serves the runtime port.
// A node counts as dark once the port is closed, whether it stopped answering
// pings or already came back in the netboot environment: a fast reboot can
// finish between two polls. An elapsed window is a warning.
func (p *Provisioner) WaitDark(ctx *provisioning.Context, nodes []inventory.Node) WaitResult {
	ctx.Observer.Printf("[%s] Waiting for %d reset node(s) to go dark...", phase, len(nodes))

	var last probe.Snapshot
	res := poll.Until(ctx, poll.Options{
		Interval: ctx.Timeouts.ResetPollInterval,
		Timeout:  ctx.Timeouts.ResetWindow,
	}, func(_ context.Context, _ poll.Tick) (poll.Observation, error) {
		last = ctx.Prober.ProbeAll(ctx, nodes)
		ctx.Observer.Status(phase, last.Line())
		return poll.Observation{
			Done:     last.Count(probe.OnlineTargetRuntime) == 0,
			Progress: last.Line(),
		}, nil
	})

	result := WaitResult{Outcome: res.Outcome, Elapsed: res.Elapsed}
	result.Offline, result.Online = splitRuntime(last)

	switch res.Outcome {
	case poll.Success:
		ctx.Observer.Printf("[%s] All reset nodes went dark after %s", phase, res.Elapsed.Round(time.Second))
	case poll.Timeout:
		ctx.Warn(phase, "%s still running Talos after %s, continuing",
			strings.Join(nodeNames(result.Online), ", "), ctx.Timeouts.ResetWindow)
	}
	return result
}

// WaitOnline waits for nodes to answer probes. All online is a success; at
// least one online after WakePartialFraction of the window is a partial
// success; anything else times out. Neither is fatal.
func (p *Provisioner) WaitOnline(ctx *provisioning.Context, nodes []inventory.Node) WaitResult {
	ctx.Observer.Printf("[%s] Waiting for %d node(s) to come online...", phase, len(nodes))

	fraction := ctx.Timeouts.WakePartialFraction
	var last probe.Snapshot
	res := poll.Until(ctx, poll.Options{
		Interval:     ctx.Timeouts.WakePollInterval,
		Timeout:      ctx.Timeouts.WakeWindow,
		InitialDelay: ctx.Timeouts.WakeSettle,
	}, func(_ context.Context, tick poll.Tick) (poll.Observation, error) {
		last = p.snapshot(ctx, nodes)
		online := last.Online()
		done := online == len(nodes) || (online > 0 && tick.Fraction() > fraction)
		return poll.Observation{Done: done, Progress: last.Line()}, nil
	})

	result := WaitResult{Outcome: res.Outcome, Elapsed: res.Elapsed}
	result.Online = last.Filter(probe.Status.Online)
	result.Offline = last.Filter(func(s probe.Status) bool { return !s.Online() })

	switch {
	case res.Outcome == poll.Canceled:
	case result.Partial():
		ctx.Warn(phase, "continuing with %d/%d node(s) online, missing: %s",
			len(result.Online), len(nodes), strings.Join(nodeNames(result.Offline), ", "))
	case res.Outcome == poll.Success:
		ctx.Observer.Printf("[%s] All %d node(s) online after %s", phase, len(nodes), res.Elapsed.Round(time.Second))
	default:
		ctx.Warn(phase, "only %d/%d node(s) online after %s, continuing",
			len(result.Online), len(nodes), ctx.Timeouts.WakeWindow)
	}
	return result
}

// splitRuntime returns the nodes that stopped serving the runtime port and
// those still serving it.
func splitRuntime(snap probe.Snapshot) (dark, running []inventory.Node) {
	running, dark = snap.Partition()
	return dark, running
}

func nodeNames(nodes []inventory.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
