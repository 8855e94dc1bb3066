package testing

import (
	"fmt"
	"time"

	"github.com/imamik/metalboot/internal/config"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder with sensible defaults and
// FastTimeouts.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: config.Config{
			ClusterName: "homelab",
			Talos: config.TalosConfig{
				Version: "v1.9.2",
			},
			Workflow: config.WorkflowConfig{
				Namespace:          "tink-system",
				InstallTemplate:    "talos-install",
				RebootTemplate:     "reboot",
				DiskDevice:         "/dev/sda",
				ManagementAddress:  "10.0.0.2",
				ImageServerBaseURL: "http://10.0.0.2:8080",
			},
			Timeouts: FastTimeouts(),
		},
	}
}

// WithClusterName sets the cluster name.
func (b *ConfigBuilder) WithClusterName(name string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ClusterName = name
	return newBuilder
}

// WithNodes declares count nodes named node1..nodeN, the first cp of them
// control planes. MACs are aa:bb:cc:00:00:NN and addresses 10.0.0.(10+N).
func (b *ConfigBuilder) WithNodes(count, cp int) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ControlPlaneCount = cp
	newBuilder.cfg.Nodes = nil
	for i := 1; i <= count; i++ {
		newBuilder.cfg.Nodes = append(newBuilder.cfg.Nodes, config.NodeSpec{
			Name:    fmt.Sprintf("node%d", i),
			MAC:     fmt.Sprintf("aa:bb:cc:00:00:%02x", i),
			Address: fmt.Sprintf("10.0.0.%d", 10+i),
		})
	}
	return newBuilder
}

// WithTalosDir sets the machine configuration directory.
func (b *ConfigBuilder) WithTalosDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Talos.ConfigDir = dir
	return newBuilder
}

// WithOutputDir sets where credentials are written.
func (b *ConfigBuilder) WithOutputDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Cluster.OutputDir = dir
	return newBuilder
}

// WithTimeouts replaces the timeouts.
func (b *ConfigBuilder) WithTimeouts(t config.Timeouts) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Timeouts = t
	return newBuilder
}

// Build returns the config with defaults applied.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	cfg.ApplyDefaults()
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.Nodes = append([]config.NodeSpec(nil), b.cfg.Nodes...)
	return &ConfigBuilder{cfg: cfg}
}

// FastTimeouts shrinks every wait so a full run finishes in well under a
// second against fakes.
func FastTimeouts() config.Timeouts {
	return config.Timeouts{
		ProbeDial:              10 * time.Millisecond,
		ProbePing:              10 * time.Millisecond,
		ResetIssue:             50 * time.Millisecond,
		ResetPollInterval:      5 * time.Millisecond,
		ResetWindow:            100 * time.Millisecond,
		WakeSettle:             time.Millisecond,
		WakePollInterval:       5 * time.Millisecond,
		WakeWindow:             200 * time.Millisecond,
		WakePartialFraction:    0.75,
		WorkflowPollInterval:   5 * time.Millisecond,
		WorkflowStall:          100 * time.Millisecond,
		WorkflowTimeout:        2 * time.Second,
		ConfigPortWait:         100 * time.Millisecond,
		ConfigPortPoll:         5 * time.Millisecond,
		ConfigApplyRetries:     2,
		ConfigApplyBackoff:     time.Millisecond,
		ClusterPollInterval:    5 * time.Millisecond,
		BootstrapRetry:         200 * time.Millisecond,
		HealthWait:             200 * time.Millisecond,
		CredentialWait:         500 * time.Millisecond,
		CredentialPoll:         5 * time.Millisecond,
		NodeReadyWait:          200 * time.Millisecond,
		NodeRegistrationSettle: 10 * time.Millisecond,
		JobWait:                time.Second,
	}
}
