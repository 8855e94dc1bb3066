package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/platform/talos"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/poll"
	"github.com/imamik/metalboot/internal/util/retry"
)

const phase = "bootstrap"

// ErrCredentialsUnavailable means no authorized kubeconfig could be obtained.
var ErrCredentialsUnavailable = errors.New("cluster credentials unavailable")

// Provisioner bootstraps the cluster and obtains its credentials.
type Provisioner struct{}

// NewProvisioner creates a new bootstrap provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	node, ok := ctx.Registry.FirstControlPlane()
	if !ok {
		return fmt.Errorf("%w: no control-plane node to bootstrap", ErrCredentialsUnavailable)
	}
	address := node.Address.String()

	ctx.Observer.Printf("[%s] Bootstrapping cluster %s on %s (%s)...",
		phase, ctx.Config.ClusterName, node.Name, address)
	if err := p.Bootstrap(ctx, address); err != nil {
		return err
	}

	p.WaitHealthy(ctx, address)

	kubeconfig, err := p.WaitCredentials(ctx, address)
	if err != nil {
		return err
	}
	ctx.State.Kubeconfig = kubeconfig
	ctx.State.TalosConfig = ctx.Nodes.TalosConfig()
	return nil
}

// Bootstrap issues the bootstrap call until it is accepted. A node that was
// already bootstrapped counts as accepted.
func (p *Provisioner) Bootstrap(ctx *provisioning.Context, address string) error {
	res := poll.Until(ctx, poll.Options{
		Interval: ctx.Timeouts.ClusterPollInterval,
		Timeout:  ctx.Timeouts.BootstrapRetry,
	}, func(c context.Context, tick poll.Tick) (poll.Observation, error) {
		err := ctx.Nodes.Bootstrap(c, address)
		switch {
		case err == nil:
			return poll.Observation{Done: true}, nil
		case talos.IsPermanent(err):
			return poll.Observation{}, retry.Fatal(err)
		default:
			ctx.Observer.Printf("[%s] Bootstrap not accepted yet (attempt %d): %v", phase, tick.Poll, err)
			return poll.Observation{}, err
		}
	})

	if !res.OK() {
		return fmt.Errorf("bootstrap of %s not accepted within %s: %w", address, ctx.Timeouts.BootstrapRetry, outcomeErr(res))
	}
	provisioning.LogResource(ctx.Observer, phase, "etcd", address, "created")
	return nil
}

// WaitHealthy polls the node API until it answers. A timeout is only a
// warning; the credential wait decides whether the cluster is usable.
func (p *Provisioner) WaitHealthy(ctx *provisioning.Context, address string) {
	ctx.Observer.Printf("[%s] Waiting for the node API on %s...", phase, address)
	res := poll.Until(ctx, poll.Options{
		Interval: ctx.Timeouts.ClusterPollInterval,
		Timeout:  ctx.Timeouts.HealthWait,
	}, func(c context.Context, tick poll.Tick) (poll.Observation, error) {
		ctx.Observer.Status(phase, fmt.Sprintf("node API on %s, %s elapsed", address, tick.Elapsed.Round(time.Second)))
		if err := ctx.Nodes.HealthCheck(c, address); err != nil {
			return poll.Observation{}, err
		}
		return poll.Observation{Done: true}, nil
	})
	if !res.OK() && res.Outcome != poll.Canceled {
		ctx.Warn(phase, "node API on %s not healthy after %s: %v", address, ctx.Timeouts.HealthWait, res.Err)
	}
}

// WaitCredentials fetches a kubeconfig from the bootstrap node until one is
// accepted by the cluster. Rejected credentials mean "not ready yet".
func (p *Provisioner) WaitCredentials(ctx *provisioning.Context, address string) ([]byte, error) {
	ctx.Observer.Printf("[%s] Waiting for cluster credentials...", phase)

	var kubeconfig []byte
	res := poll.Until(ctx, poll.Options{
		Interval: ctx.Timeouts.CredentialPoll,
		Timeout:  ctx.Timeouts.CredentialWait,
	}, func(c context.Context, tick poll.Tick) (poll.Observation, error) {
		data, err := ctx.Nodes.FetchCredentials(c, address)
		if err != nil {
			return poll.Observation{}, err
		}
		client, err := ctx.ClusterClient(data)
		if err != nil {
			return poll.Observation{}, err
		}
		err = client.Authorize(c)
		switch {
		case errors.Is(err, k8s.ErrUnauthorized):
			ctx.Observer.Status(phase, fmt.Sprintf("credentials not authorized yet (attempt %d)", tick.Poll))
			return poll.Observation{}, nil
		case err != nil:
			return poll.Observation{}, err
		}
		kubeconfig = data
		return poll.Observation{Done: true}, nil
	})

	if !res.OK() {
		return nil, fmt.Errorf("%w after %s: %w", ErrCredentialsUnavailable, res.Elapsed.Round(time.Second), outcomeErr(res))
	}
	provisioning.LogResource(ctx.Observer, phase, "kubeconfig", address, "created")
	return kubeconfig, nil
}

func outcomeErr(res poll.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return errors.New(res.Outcome.String())
}
