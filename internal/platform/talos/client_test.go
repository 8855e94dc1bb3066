package talos

import (
	"context"
	"errors"
	"testing"

	"github.com/siderolabs/talos/pkg/machinery/api/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeMachine struct {
	applied    *machine.ApplyConfigurationRequest
	reset      *machine.ResetRequest
	bootstraps int
	closed     int

	applyErr     error
	bootstrapErr error
	versionErr   error
	resetErr     error
	kubeconfig   []byte
	kubeErr      error
}

func (f *fakeMachine) ApplyConfiguration(_ context.Context, req *machine.ApplyConfigurationRequest, _ ...grpc.CallOption) (*machine.ApplyConfigurationResponse, error) {
	f.applied = req
	return &machine.ApplyConfigurationResponse{}, f.applyErr
}

func (f *fakeMachine) Bootstrap(_ context.Context, _ *machine.BootstrapRequest) error {
	f.bootstraps++
	return f.bootstrapErr
}

func (f *fakeMachine) Kubeconfig(_ context.Context) ([]byte, error) {
	return f.kubeconfig, f.kubeErr
}

func (f *fakeMachine) Version(_ context.Context, _ ...grpc.CallOption) (*machine.VersionResponse, error) {
	return &machine.VersionResponse{}, f.versionErr
}

func (f *fakeMachine) ResetGeneric(_ context.Context, req *machine.ResetRequest) error {
	f.reset = req
	return f.resetErr
}

func (f *fakeMachine) Close() error {
	f.closed++
	return nil
}

type dialRecord struct {
	endpoint string
	insecure bool
}

func newTestClient(fm *fakeMachine, dials *[]dialRecord) *Client {
	return &Client{
		connect: func(_ context.Context, endpoint string, insecure bool) (machineService, error) {
			if dials != nil {
				*dials = append(*dials, dialRecord{endpoint, insecure})
			}
			return fm, nil
		},
	}
}

func TestClient_ApplyConfig(t *testing.T) {
	t.Parallel()
	fm := &fakeMachine{}
	var dials []dialRecord
	c := newTestClient(fm, &dials)

	base := []byte("version: v1alpha1\n")
	err := c.ApplyConfig(context.Background(), "192.168.1.11", base, nil, true)
	require.NoError(t, err)

	require.NotNil(t, fm.applied)
	assert.Equal(t, base, fm.applied.Data)
	assert.Equal(t, machine.ApplyConfigurationRequest_REBOOT, fm.applied.Mode)
	assert.Equal(t, []dialRecord{{"192.168.1.11", true}}, dials)
	assert.Equal(t, 1, fm.closed)
}

func TestClient_ApplyConfig_InvalidPatchDoesNotDial(t *testing.T) {
	t.Parallel()
	fm := &fakeMachine{}
	var dials []dialRecord
	c := newTestClient(fm, &dials)

	err := c.ApplyConfig(context.Background(), "192.168.1.11", []byte("x"), []byte("machine: [unclosed"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Empty(t, dials)
}

func TestClient_ApplyConfig_RPCError(t *testing.T) {
	t.Parallel()
	fm := &fakeMachine{applyErr: status.Error(codes.InvalidArgument, "bad config")}
	c := newTestClient(fm, nil)

	err := c.ApplyConfig(context.Background(), "192.168.1.11", []byte("x"), nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply configuration")
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, fm.closed)
}

func TestClient_Bootstrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"accepted", nil, false},
		{"already bootstrapped", status.Error(codes.AlreadyExists, "etcd already bootstrapped"), false},
		{"not ready", status.Error(codes.Unavailable, "connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fm := &fakeMachine{bootstrapErr: tt.err}
			var dials []dialRecord
			c := newTestClient(fm, &dials)

			err := c.Bootstrap(context.Background(), "192.168.1.11")
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, IsPermanent(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, 1, fm.bootstraps)
			assert.Equal(t, []dialRecord{{"192.168.1.11", false}}, dials)
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()
	c := newTestClient(&fakeMachine{}, nil)
	require.NoError(t, c.HealthCheck(context.Background(), "192.168.1.11"))

	c = newTestClient(&fakeMachine{versionErr: errors.New("tls: bad certificate")}, nil)
	err := c.HealthCheck(context.Background(), "192.168.1.11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad certificate")
}

func TestClient_FetchCredentials(t *testing.T) {
	t.Parallel()
	c := newTestClient(&fakeMachine{kubeconfig: []byte("apiVersion: v1")}, nil)
	data, err := c.FetchCredentials(context.Background(), "192.168.1.11")
	require.NoError(t, err)
	assert.Equal(t, []byte("apiVersion: v1"), data)

	c = newTestClient(&fakeMachine{}, nil)
	_, err = c.FetchCredentials(context.Background(), "192.168.1.11")
	assert.ErrorIs(t, err, ErrEmptyKubeconfig)

	c = newTestClient(&fakeMachine{kubeErr: errors.New("unavailable")}, nil)
	_, err = c.FetchCredentials(context.Background(), "192.168.1.11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to retrieve kubeconfig")
}

func TestClient_Reset(t *testing.T) {
	t.Parallel()
	fm := &fakeMachine{}
	c := newTestClient(fm, nil)

	require.NoError(t, c.Reset(context.Background(), "192.168.1.11"))
	require.NotNil(t, fm.reset)
	assert.False(t, fm.reset.Graceful)
	assert.True(t, fm.reset.Reboot)
}

func TestClient_ConnectError(t *testing.T) {
	t.Parallel()
	c := &Client{
		connect: func(context.Context, string, bool) (machineService, error) {
			return nil, errors.New("no route to host")
		},
	}

	err := c.Reset(context.Background(), "192.168.1.11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create talos client")
}

func TestNewClient_InvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := NewClient([]byte("context: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse talosconfig")
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	talosconfig := []byte(`context: homelab
contexts:
  homelab:
    endpoints:
      - 192.168.1.11
`)
	c, err := NewClient(talosconfig)
	require.NoError(t, err)
	assert.Equal(t, talosconfig, c.TalosConfig())
}
