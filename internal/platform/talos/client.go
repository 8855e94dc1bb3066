package talos

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"github.com/siderolabs/talos/pkg/machinery/api/machine"
	"github.com/siderolabs/talos/pkg/machinery/client"
	"github.com/siderolabs/talos/pkg/machinery/client/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEmptyKubeconfig is returned when a node answers the kubeconfig request
// with no data, which happens while the control plane is still starting.
var ErrEmptyKubeconfig = errors.New("node returned an empty kubeconfig")

// machineService is the subset of the Talos client used here.
type machineService interface {
	ApplyConfiguration(ctx context.Context, req *machine.ApplyConfigurationRequest, opts ...grpc.CallOption) (*machine.ApplyConfigurationResponse, error)
	Bootstrap(ctx context.Context, req *machine.BootstrapRequest) error
	Kubeconfig(ctx context.Context) ([]byte, error)
	Version(ctx context.Context, opts ...grpc.CallOption) (*machine.VersionResponse, error)
	ResetGeneric(ctx context.Context, req *machine.ResetRequest) error
	Close() error
}

type connectFunc func(ctx context.Context, endpoint string, insecure bool) (machineService, error)

// Client issues machine API calls to single nodes addressed by IP.
type Client struct {
	talosConfig []byte
	connect     connectFunc
}

// NewClient creates a Client authenticating with the given talosconfig.
func NewClient(talosconfig []byte) (*Client, error) {
	cfg, err := config.FromString(string(talosconfig))
	if err != nil {
		return nil, fmt.Errorf("failed to parse talosconfig: %w", err)
	}

	return &Client{
		talosConfig: talosconfig,
		connect: func(ctx context.Context, endpoint string, insecure bool) (machineService, error) {
			if insecure {
				// Nodes in maintenance mode have no credentials yet.
				return client.New(ctx,
					client.WithEndpoints(endpoint),
					//nolint:gosec // InsecureSkipVerify is required for Talos maintenance mode
					client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
				)
			}
			return client.New(ctx,
				client.WithConfig(cfg),
				client.WithEndpoints(endpoint),
			)
		},
	}, nil
}

// NewClientFromFile reads the talosconfig at path and creates a Client.
func NewClientFromFile(path string) (*Client, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read talosconfig: %w", err)
	}
	return NewClient(data)
}

// TalosConfig returns the raw client configuration.
func (c *Client) TalosConfig() []byte {
	return c.talosConfig
}

// ApplyConfig merges patch into base and applies the result to the node at
// address. Nodes are rebooted into the new configuration.
func (c *Client) ApplyConfig(ctx context.Context, address string, base, patch []byte, insecure bool) error {
	data, err := MergeConfig(base, patch)
	if err != nil {
		return err
	}

	mc, err := c.connect(ctx, address, insecure)
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = mc.Close() }()

	_, err = mc.ApplyConfiguration(ctx, &machine.ApplyConfigurationRequest{
		Data: data,
		Mode: machine.ApplyConfigurationRequest_REBOOT,
	})
	if err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}
	return nil
}

// Bootstrap starts etcd on the node. A node that is already bootstrapped is
// not an error.
func (c *Client) Bootstrap(ctx context.Context, address string) error {
	mc, err := c.connect(ctx, address, false)
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = mc.Close() }()

	if err := mc.Bootstrap(ctx, &machine.BootstrapRequest{}); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
	return nil
}

// HealthCheck succeeds once the node answers an authenticated version call.
func (c *Client) HealthCheck(ctx context.Context, address string) error {
	mc, err := c.connect(ctx, address, false)
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = mc.Close() }()

	if _, err := mc.Version(ctx); err != nil {
		return fmt.Errorf("version check failed: %w", err)
	}
	return nil
}

// FetchCredentials returns the admin kubeconfig of the cluster.
func (c *Client) FetchCredentials(ctx context.Context, address string) ([]byte, error) {
	mc, err := c.connect(ctx, address, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = mc.Close() }()

	kubeconfig, err := mc.Kubeconfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve kubeconfig: %w", err)
	}
	if len(kubeconfig) == 0 {
		return nil, ErrEmptyKubeconfig
	}
	return kubeconfig, nil
}

// Reset wipes the node and reboots it without leaving etcd gracefully.
func (c *Client) Reset(ctx context.Context, address string) error {
	mc, err := c.connect(ctx, address, false)
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = mc.Close() }()

	if err := mc.ResetGeneric(ctx, &machine.ResetRequest{
		Graceful: false,
		Reboot:   true,
	}); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	return nil
}

// IsPermanent reports whether err will not go away by retrying the same call.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidConfig) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unimplemented:
		return true
	}
	return false
}
