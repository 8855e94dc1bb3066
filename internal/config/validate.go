package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
)

// Configuration errors. All of them are fatal and reported before any node is touched.
var (
	ErrInvalidNode         = errors.New("invalid node record")
	ErrControlPlaneCount   = errors.New("invalid control plane count")
	ErrDuplicateNode       = errors.New("duplicate node")
	ErrMissingFile         = errors.New("required file missing")
	ErrMissingWorkflowSpec = errors.New("incomplete workflow configuration")
)

// Validate checks the configuration for common errors and returns a detailed error if validation fails.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("clusterName is required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("%w: at least one node is required", ErrInvalidNode)
	}
	if c.ControlPlaneCount < 0 || c.ControlPlaneCount > len(c.Nodes) {
		return fmt.Errorf("%w: %d control planes requested but %d nodes declared",
			ErrControlPlaneCount, c.ControlPlaneCount, len(c.Nodes))
	}

	if err := c.validateNodes(); err != nil {
		return fmt.Errorf("node validation failed: %w", err)
	}

	if err := c.validateWorkflow(); err != nil {
		return fmt.Errorf("workflow validation failed: %w", err)
	}

	if c.Talos.ConfigDir == "" {
		return fmt.Errorf("%w: talos.configDir is required", ErrMissingFile)
	}

	return nil
}

// validateNodes checks each record's shape and global uniqueness of names and MACs.
func (c *Config) validateNodes() error {
	names := make(map[string]int, len(c.Nodes))
	macs := make(map[string]int, len(c.Nodes))

	for i, n := range c.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: node %d has no name", ErrInvalidNode, i)
		}
		mac, err := net.ParseMAC(n.MAC)
		if err != nil {
			return fmt.Errorf("%w: node %s has malformed mac %q", ErrInvalidNode, n.Name, n.MAC)
		}
		if _, err := netip.ParseAddr(n.Address); err != nil {
			return fmt.Errorf("%w: node %s has malformed address %q", ErrInvalidNode, n.Name, n.Address)
		}

		if prev, ok := names[n.Name]; ok {
			return fmt.Errorf("%w: name %q used by nodes %d and %d", ErrDuplicateNode, n.Name, prev, i)
		}
		names[n.Name] = i

		key := strings.ToLower(mac.String())
		if prev, ok := macs[key]; ok {
			return fmt.Errorf("%w: mac %s used by nodes %d and %d", ErrDuplicateNode, key, prev, i)
		}
		macs[key] = i
	}

	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.InstallTemplate == "" {
		return fmt.Errorf("%w: workflow.installTemplate is required", ErrMissingWorkflowSpec)
	}
	if c.Workflow.RebootTemplate == "" {
		return fmt.Errorf("%w: workflow.rebootTemplate is required", ErrMissingWorkflowSpec)
	}
	if c.Workflow.ManagementAddress == "" {
		return fmt.Errorf("%w: workflow.managementAddress is required", ErrMissingWorkflowSpec)
	}
	if c.Talos.Version == "" {
		return fmt.Errorf("%w: talos.version is required", ErrMissingWorkflowSpec)
	}
	return nil
}

// ValidateFiles checks that the role base configurations and the client
// config exist on disk. Per-node files are optional.
func (c *Config) ValidateFiles() error {
	required := []string{
		filepath.Join(c.Talos.ConfigDir, "controlplane.yaml"),
		c.TalosConfigFile(),
	}
	if c.ControlPlaneCount < len(c.Nodes) {
		required = append(required, filepath.Join(c.Talos.ConfigDir, "worker.yaml"))
	}

	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
	}
	return nil
}

// TalosConfigFile returns the path of the Talos client configuration.
func (c *Config) TalosConfigFile() string {
	if c.Talos.TalosConfigPath != "" {
		return c.Talos.TalosConfigPath
	}
	return filepath.Join(c.Talos.ConfigDir, "talosconfig")
}
