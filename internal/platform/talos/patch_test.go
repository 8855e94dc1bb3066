package talos

import (
	"testing"
	"time"

	"github.com/siderolabs/talos/pkg/machinery/config"
	"github.com/siderolabs/talos/pkg/machinery/config/configloader"
	"github.com/siderolabs/talos/pkg/machinery/config/generate"
	"github.com/siderolabs/talos/pkg/machinery/config/generate/secrets"
	"github.com/siderolabs/talos/pkg/machinery/config/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

// generateBase produces a machine config the same way `talosctl gen config` does.
func generateBase(t *testing.T, machineType machine.Type) []byte {
	t.Helper()

	vc, err := config.ParseContractFromVersion("v1.7.0")
	require.NoError(t, err)

	sb, err := secrets.NewBundle(secrets.NewFixedClock(time.Now()), vc)
	require.NoError(t, err)

	input, err := generate.NewInput("homelab", "https://192.168.1.11:6443", "1.30.0",
		generate.WithVersionContract(vc),
		generate.WithSecretsBundle(sb),
		generate.WithInstallDisk("/dev/sda"),
	)
	require.NoError(t, err)

	cfg, err := input.Config(machineType)
	require.NoError(t, err)

	data, err := cfg.Bytes()
	require.NoError(t, err)
	return data
}

func TestBuildPatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		hostname string
		features Features
		want     map[string]any
	}{
		{
			name:     "hostname only",
			hostname: "node1",
			want: map[string]any{
				"machine": map[string]any{"network": map[string]any{"hostname": "node1"}},
			},
		},
		{
			name:     "cni disabled",
			hostname: "node1",
			features: Features{CNIDisabled: true},
			want: map[string]any{
				"machine": map[string]any{"network": map[string]any{"hostname": "node1"}},
				"cluster": map[string]any{"network": map[string]any{"cni": map[string]any{"name": "none"}}},
			},
		},
		{
			name:     "dns disabled",
			hostname: "node2",
			features: Features{DNSDisabled: true},
			want: map[string]any{
				"machine": map[string]any{"network": map[string]any{"hostname": "node2"}},
				"cluster": map[string]any{"coreDNS": map[string]any{"disabled": true}},
			},
		},
		{
			name:     "both disabled",
			hostname: "node3",
			features: Features{CNIDisabled: true, DNSDisabled: true},
			want: map[string]any{
				"machine": map[string]any{"network": map[string]any{"hostname": "node3"}},
				"cluster": map[string]any{
					"network": map[string]any{"cni": map[string]any{"name": "none"}},
					"coreDNS": map[string]any{"disabled": true},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := BuildPatch(tt.hostname, tt.features)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, yaml.Unmarshal(data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPatch_Empty(t *testing.T) {
	t.Parallel()
	data, err := BuildPatch("", Features{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMergeConfig(t *testing.T) {
	t.Parallel()
	base := generateBase(t, machine.TypeControlPlane)

	patch, err := BuildPatch("node1", Features{CNIDisabled: true, DNSDisabled: true})
	require.NoError(t, err)

	merged, err := MergeConfig(base, patch)
	require.NoError(t, err)
	assert.Contains(t, string(merged), "hostname: node1")

	cfg, err := configloader.NewFromBytes(merged)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Cluster().Network().CNI().Name())
	assert.False(t, cfg.Cluster().CoreDNS().Enabled())
	assert.Equal(t, machine.TypeControlPlane, cfg.Machine().Type())
}

func TestMergeConfig_KeepsDefaultsWithoutFeatures(t *testing.T) {
	t.Parallel()
	base := generateBase(t, machine.TypeWorker)

	patch, err := BuildPatch("node2", Features{})
	require.NoError(t, err)

	merged, err := MergeConfig(base, patch)
	require.NoError(t, err)

	cfg, err := configloader.NewFromBytes(merged)
	require.NoError(t, err)
	assert.NotEqual(t, "none", cfg.Cluster().Network().CNI().Name())
	assert.True(t, cfg.Cluster().CoreDNS().Enabled())
}

func TestMergeConfig_EmptyPatchReturnsBase(t *testing.T) {
	t.Parallel()
	base := []byte("anything")
	merged, err := MergeConfig(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}

func TestMergeConfig_Invalid(t *testing.T) {
	t.Parallel()
	patch, err := BuildPatch("node1", Features{})
	require.NoError(t, err)

	_, err = MergeConfig([]byte("machine: [unclosed"), patch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = MergeConfig(generateBase(t, machine.TypeWorker), []byte("machine: [unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.True(t, IsPermanent(err))
}
