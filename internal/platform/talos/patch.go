package talos

import (
	"errors"
	"fmt"

	"github.com/siderolabs/talos/pkg/machinery/config/configpatcher"
	"sigs.k8s.io/yaml"
)

// ErrInvalidConfig is returned when a base configuration or patch cannot be
// loaded or merged. Retrying does not help.
var ErrInvalidConfig = errors.New("invalid machine configuration")

// Features toggles the cluster components that the patch switches off.
type Features struct {
	// CNIDisabled sets cluster.network.cni.name to none so the operator can
	// install a CNI of their choice after bootstrap.
	CNIDisabled bool

	// DNSDisabled turns off the CoreDNS deployment.
	DNSDisabled bool
}

// BuildPatch returns a strategic merge patch setting the node hostname and
// the requested cluster feature switches.
func BuildPatch(hostname string, f Features) ([]byte, error) {
	patch := map[string]any{}

	if hostname != "" {
		patch["machine"] = map[string]any{
			"network": map[string]any{
				"hostname": hostname,
			},
		}
	}

	cluster := map[string]any{}
	if f.CNIDisabled {
		cluster["network"] = map[string]any{
			"cni": map[string]any{"name": "none"},
		}
	}
	if f.DNSDisabled {
		cluster["coreDNS"] = map[string]any{"disabled": true}
	}
	if len(cluster) > 0 {
		patch["cluster"] = cluster
	}

	if len(patch) == 0 {
		return nil, nil
	}

	data, err := yaml.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	return data, nil
}

// MergeConfig applies patch on top of base. An empty patch returns base unchanged.
func MergeConfig(base, patch []byte) ([]byte, error) {
	if len(patch) == 0 {
		return base, nil
	}

	p, err := configpatcher.LoadPatch(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load patch: %v", ErrInvalidConfig, err)
	}

	patched, err := configpatcher.Apply(configpatcher.WithBytes(base), []configpatcher.Patch{p})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to apply patch: %v", ErrInvalidConfig, err)
	}

	out, err := patched.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode patched config: %v", ErrInvalidConfig, err)
	}
	return out, nil
}
