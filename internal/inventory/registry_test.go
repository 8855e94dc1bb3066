package inventory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/metalboot/internal/config"
)

func specs(n int) []config.NodeSpec {
	out := make([]config.NodeSpec, n)
	for i := range out {
		out[i] = config.NodeSpec{
			Name:    fmt.Sprintf("node%d", i+1),
			MAC:     fmt.Sprintf("aa:bb:cc:00:00:%02x", i+1),
			Address: fmt.Sprintf("192.168.1.%d", 11+i),
		}
	}
	return out
}

func TestNew_RolesArePositional(t *testing.T) {
	t.Parallel()
	for total := 1; total <= 6; total++ {
		for cp := 0; cp <= total; cp++ {
			t.Run(fmt.Sprintf("n=%d,c=%d", total, cp), func(t *testing.T) {
				t.Parallel()
				reg, err := New(specs(total), cp)
				require.NoError(t, err)

				for i, n := range reg.Nodes() {
					if i < cp {
						assert.Equal(t, RoleControlPlane, n.Role, "node %d", i)
					} else {
						assert.Equal(t, RoleWorker, n.Role, "node %d", i)
					}
					assert.Equal(t, i, n.Index)
				}
				assert.Len(t, reg.ControlPlanes(), cp)
				assert.Len(t, reg.Workers(), total-cp)
			})
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	dupMAC := specs(3)
	dupMAC[2].MAC = "AA:BB:CC:00:00:01"

	dupName := specs(3)
	dupName[1].Name = "node1"

	badMAC := specs(2)
	badMAC[0].MAC = "zz"

	tests := []struct {
		name    string
		specs   []config.NodeSpec
		cp      int
		wantErr error
	}{
		{"too many control planes", specs(3), 4, ErrControlPlaneCount},
		{"negative control planes", specs(3), -1, ErrControlPlaneCount},
		{"duplicate mac", dupMAC, 1, ErrDuplicateMAC},
		{"duplicate name", dupName, 1, ErrDuplicateName},
		{"malformed mac", badMAC, 1, config.ErrInvalidNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, err := New(tt.specs, tt.cp)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_Accessors(t *testing.T) {
	t.Parallel()
	reg, err := New(specs(4), 1)
	require.NoError(t, err)

	first, ok := reg.FirstControlPlane()
	require.True(t, ok)
	assert.Equal(t, "node1", first.Name)
	assert.Equal(t, "192.168.1.11", first.Address.String())
	assert.Equal(t, "aa:bb:cc:00:00:01", first.HardwareID())

	n3, ok := reg.ByName("node3")
	require.True(t, ok)
	assert.False(t, n3.IsControlPlane())

	role, ok := reg.RoleOf("node1")
	require.True(t, ok)
	assert.Equal(t, RoleControlPlane, role)

	_, ok = reg.ByName("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"node1", "node2", "node3", "node4"}, reg.Names())
	assert.Equal(t, 4, reg.Len())
	assert.Equal(t, 1, reg.ControlPlaneCount())
}

func TestRegistry_NoControlPlanes(t *testing.T) {
	t.Parallel()
	reg, err := New(specs(2), 0)
	require.NoError(t, err)

	_, ok := reg.FirstControlPlane()
	assert.False(t, ok)
}

func TestRegistry_NodesIsACopy(t *testing.T) {
	t.Parallel()
	reg, err := New(specs(2), 1)
	require.NoError(t, err)

	nodes := reg.Nodes()
	nodes[0].Role = RoleWorker
	nodes[0].Name = "changed"

	again := reg.Nodes()
	assert.Equal(t, "node1", again[0].Name)
	assert.Equal(t, RoleControlPlane, again[0].Role)
}
