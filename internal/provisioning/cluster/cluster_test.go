package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
	mbtest "github.com/imamik/metalboot/internal/testing"
)

type fixture struct {
	ctx      *provisioning.Context
	observer *mbtest.RecordingObserver
	nodes    *mbtest.FakeNodeConfig
	cluster  *mbtest.FakeCluster
	outDir   string
}

func newFixture(t *testing.T, run provisioning.RunConfig, deps provisioning.Deps) *fixture {
	t.Helper()
	f := &fixture{
		nodes:   &mbtest.FakeNodeConfig{},
		cluster: &mbtest.FakeCluster{},
		outDir:  filepath.Join(t.TempDir(), "out"),
	}
	deps.Nodes = f.nodes
	deps.ClusterClient = f.cluster.Factory()
	cfg := mbtest.NewConfigBuilder().WithNodes(3, 1).WithOutputDir(f.outDir).Build()
	f.ctx, f.observer = mbtest.NewContext(t, cfg, run, deps)
	return f
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "bootstrap", NewProvisioner().Name())
	assert.Equal(t, "verify", NewVerifyPhase().Name())
}

func TestBootstrap_ObtainsAuthorizedCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.cluster.AuthorizeFunc = func(attempt int) error {
		if attempt <= 2 {
			return fmt.Errorf("%w: forbidden", k8s.ErrUnauthorized)
		}
		return nil
	}

	require.NoError(t, NewProvisioner().Provision(f.ctx))

	assert.Equal(t, []string{"10.0.0.11"}, f.nodes.Bootstraps())
	assert.Equal(t, 3, f.cluster.Authorizations())
	assert.Equal(t, 3, f.nodes.Fetches())
	assert.Equal(t, mbtest.Kubeconfig("10.0.0.11"), f.ctx.State.Kubeconfig)
	assert.Equal(t, []byte(mbtest.TalosConfigYAML), f.ctx.State.TalosConfig)
	assert.Empty(t, f.ctx.State.Warnings)
}

func TestBootstrap_RetriesTransientErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	calls := 0
	f.nodes.BootstrapFunc = func(context.Context, string) error {
		calls++
		if calls < 3 {
			return status.Error(codes.Unavailable, "etcd not ready")
		}
		return nil
	}

	require.NoError(t, NewProvisioner().Provision(f.ctx))
	assert.Len(t, f.nodes.Bootstraps(), 3)
}

func TestBootstrap_PermanentErrorIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.nodes.BootstrapFunc = func(context.Context, string) error {
		return status.Error(codes.PermissionDenied, "not allowed")
	}

	err := NewProvisioner().Provision(f.ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepted")
	assert.Len(t, f.nodes.Bootstraps(), 1)
	assert.Empty(t, f.ctx.State.Kubeconfig)
}

func TestBootstrap_NeverAcceptedIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.nodes.BootstrapFunc = func(context.Context, string) error {
		return errors.New("connection refused")
	}

	err := NewProvisioner().Provision(f.ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Greater(t, len(f.nodes.Bootstraps()), 1)
}

func TestBootstrap_UnhealthyNodeIsWarning(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.nodes.HealthCheckFunc = func(context.Context, string) error {
		return errors.New("etcd members unhealthy")
	}

	require.NoError(t, NewProvisioner().Provision(f.ctx))

	require.Len(t, f.ctx.State.Warnings, 1)
	assert.Contains(t, f.ctx.State.Warnings[0], "not healthy")
	assert.NotEmpty(t, f.ctx.State.Kubeconfig)
}

func TestBootstrap_CredentialsNeverAuthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.cluster.AuthorizeFunc = func(int) error { return k8s.ErrUnauthorized }

	err := NewProvisioner().Provision(f.ctx)

	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
	assert.Empty(t, f.ctx.State.Kubeconfig)
	assert.Greater(t, f.cluster.Authorizations(), 1)
}

func TestBootstrap_NoControlPlane(t *testing.T) {
	t.Parallel()
	nodes := &mbtest.FakeNodeConfig{}
	cfg := mbtest.NewConfigBuilder().WithNodes(2, 0).Build()
	ctx, _ := mbtest.NewContext(t, cfg, mbtest.DefaultRun(), provisioning.Deps{Nodes: nodes})

	err := NewProvisioner().Provision(ctx)

	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
	assert.Empty(t, nodes.Bootstraps())
	assert.Empty(t, ctx.State.Kubeconfig)
}

func TestVerify_WaitsForAllNodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.ctx.State.Kubeconfig = mbtest.Kubeconfig("10.0.0.11")
	f.cluster.Readiness = k8s.Readiness{Ready: []string{"node1", "node2", "node3"}}

	require.NoError(t, NewVerifyPhase().Provision(f.ctx))

	assert.Equal(t, []int{3}, f.cluster.Waits())
	assert.Len(t, f.ctx.State.Readiness.Ready, 3)
	assert.Empty(t, f.ctx.State.Warnings)
	assert.Equal(t, filepath.Join(f.outDir, "kubeconfig"), f.ctx.State.CredentialsPath)
}

func TestVerify_PartialReadinessIsWarning(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	f.ctx.State.Kubeconfig = mbtest.Kubeconfig("10.0.0.11")
	f.cluster.Readiness = k8s.Readiness{Ready: []string{"node1", "node2"}, NotReady: []string{"node3"}}
	f.cluster.WaitReadyErr = context.DeadlineExceeded

	res, err := NewVerifyPhase().WaitReady(f.ctx)

	require.NoError(t, err)
	assert.True(t, res.Partial())
	require.Len(t, f.ctx.State.Warnings, 1)
	assert.Contains(t, f.ctx.State.Warnings[0], "2/3 ready")
	assert.Contains(t, f.ctx.State.Warnings[0], "node3")
}

func TestVerify_CNIDisabledSkipsReadiness(t *testing.T) {
	t.Parallel()
	run := mbtest.DefaultRun()
	run.CNI = false
	f := newFixture(t, run, provisioning.Deps{})
	f.ctx.State.Kubeconfig = mbtest.Kubeconfig("10.0.0.11")

	res, err := NewVerifyPhase().WaitReady(f.ctx)

	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Partial())
	assert.Empty(t, f.cluster.Waits())
	assert.Contains(t, f.observer.Output(), "CNI disabled")
}

func TestVerify_NoCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})

	err := NewVerifyPhase().Provision(f.ctx)

	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
	assert.Empty(t, f.cluster.Waits())
	assert.Empty(t, f.ctx.State.CredentialsPath)
}

func TestWriteCredentials(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "creds")

	path, err := WriteCredentials(dir, map[string][]byte{
		"kubeconfig":  []byte("kc"),
		"talosconfig": []byte("tc"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kubeconfig"), path)

	for name, want := range map[string]string{"kubeconfig": "kc", "talosconfig": "tc"} {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestPersist_MirrorsSecretAndArchive(t *testing.T) {
	t.Parallel()
	secrets := &mbtest.MockSecretStore{}
	archive := &mbtest.MockArchiver{}
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{Secrets: secrets, Archive: archive})
	f.ctx.State.Kubeconfig = []byte("kc")
	f.ctx.State.TalosConfig = []byte("tc")
	files := map[string][]byte{"kubeconfig": []byte("kc"), "talosconfig": []byte("tc")}

	secrets.On("EnsureNamespace", mock.Anything, "metalboot").Return(nil)
	secrets.On("CreateOrUpdateSecret", mock.Anything, "metalboot", "cluster-credentials", files,
		mock.MatchedBy(func(l map[string]string) bool { return len(l) > 0 })).Return(nil)
	archive.On("Store", mock.Anything, "homelab", files).
		Return([]string{"homelab/kubeconfig", "homelab/talosconfig"}, nil)

	require.NoError(t, Persist(f.ctx))

	secrets.AssertExpectations(t)
	archive.AssertExpectations(t)
	assert.Equal(t, []string{"homelab/kubeconfig", "homelab/talosconfig"}, f.ctx.State.ArchivedKeys)
	assert.Empty(t, f.ctx.State.Warnings)
}

func TestPersist_MirrorFailuresAreWarnings(t *testing.T) {
	t.Parallel()
	secrets := &mbtest.MockSecretStore{}
	archive := &mbtest.MockArchiver{}
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{Secrets: secrets, Archive: archive})
	f.ctx.State.Kubeconfig = []byte("kc")

	secrets.On("EnsureNamespace", mock.Anything, "metalboot").Return(errors.New("forbidden"))
	archive.On("Store", mock.Anything, "homelab", mock.Anything).Return(nil, errors.New("no such bucket"))

	require.NoError(t, Persist(f.ctx))

	assert.FileExists(t, filepath.Join(f.outDir, "kubeconfig"))
	assert.NoFileExists(t, filepath.Join(f.outDir, "talosconfig"))
	require.Len(t, f.ctx.State.Warnings, 2)
	assert.Contains(t, f.ctx.State.Warnings[0], "forbidden")
	assert.Contains(t, f.ctx.State.Warnings[1], "no such bucket")
	secrets.AssertNotCalled(t, "CreateOrUpdateSecret", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPersist_UnwritableOutputIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mbtest.DefaultRun(), provisioning.Deps{})
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	f.ctx.Config.Cluster.OutputDir = filepath.Join(blocker, "sub")
	f.ctx.State.Kubeconfig = []byte("kc")

	err := Persist(f.ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist credentials")
}
