package imaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
	mbtest "github.com/imamik/metalboot/internal/testing"
	"github.com/imamik/metalboot/internal/util/labels"
)

func newImagingContext(t *testing.T, count, cp int) (*provisioning.Context, *mbtest.RecordingObserver, *mbtest.FakeWorkflows) {
	t.Helper()
	wf := mbtest.NewFakeWorkflows()
	cfg := mbtest.NewConfigBuilder().WithNodes(count, cp).Build()
	ctx, obs := mbtest.NewContext(t, cfg, mbtest.DefaultRun(), provisioning.Deps{Workflows: wf})
	return ctx, obs, wf
}

// completeAll marks every stored job as succeeded on the given list call.
func completeAll(wf *mbtest.FakeWorkflows, onCall int) {
	wf.OnList = func(call int) {
		if call == onCall {
			for _, name := range wf.JobNames() {
				wf.SetState(name, v1alpha1.WorkflowStateSuccess, "")
			}
		}
	}
}

func gauge(t *testing.T, ctx *provisioning.Context, name string, match map[string]string) float64 {
	t.Helper()
	families, err := ctx.Metrics.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, match) {
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, match)
	return 0
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := match[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(match)
}

func TestJobFor(t *testing.T) {
	t.Parallel()
	ctx, _, _ := newImagingContext(t, 2, 1)
	node := ctx.Registry.Nodes()[1]

	install := JobFor(ctx, node, "install")
	assert.Equal(t, "homelab-node2-install", install.Name)
	assert.Equal(t, "talos-install", install.Template)
	assert.Equal(t, "node2", install.Hardware)
	assert.Equal(t, map[string]string{
		ParamDevice:       "aa:bb:cc:00:00:02",
		ParamMgmtAddress:  "10.0.0.2",
		ParamDestDisk:     "/dev/sda",
		ParamImageVersion: "v1.9.2",
	}, install.Params)
	assert.Equal(t, "worker", install.Labels[labels.KeyRole])
	assert.Equal(t, "install", install.Labels[labels.KeyJob])

	reboot := JobFor(ctx, node, "reboot")
	assert.Equal(t, "homelab-node2-reboot", reboot.Name)
	assert.Equal(t, "reboot", reboot.Template)
	assert.Equal(t, install.Params, reboot.Params)
}

func TestImaging_Success(t *testing.T) {
	t.Parallel()
	ctx, obs, wf := newImagingContext(t, 3, 1)
	completeAll(wf, 2)

	require.NoError(t, NewProvisioner().Provision(ctx))

	assert.Equal(t, []string{"homelab-node1-install", "homelab-node2-install", "homelab-node3-install"}, ctx.State.Imaged)
	assert.Len(t, obs.Events(provisioning.EventResourceCreated), 3)
	assert.NotEmpty(t, obs.Statuses())
	assert.InDelta(t, 3, gauge(t, ctx, "metalboot_workflow_jobs",
		map[string]string{"kind": "install", "bucket": "completed"}), 0)
}

func TestImaging_ResubmitIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, obs, wf := newImagingContext(t, 2, 1)
	for _, n := range ctx.Registry.Nodes() {
		_, err := wf.Submit(context.Background(), JobFor(ctx, n, "install"))
		require.NoError(t, err)
	}
	completeAll(wf, 1)

	require.NoError(t, NewProvisioner().Provision(ctx))

	assert.Len(t, obs.Events(provisioning.EventResourceExists), 2)
	assert.Len(t, wf.Submits(), 2)
}

func TestImaging_FinishedJobsRunAgain(t *testing.T) {
	t.Parallel()
	ctx, obs, wf := newImagingContext(t, 2, 1)
	for _, n := range ctx.Registry.Nodes() {
		job := JobFor(ctx, n, "install")
		_, err := wf.Submit(context.Background(), job)
		require.NoError(t, err)
		wf.SetState(job.Name, v1alpha1.WorkflowStateSuccess, "")
	}
	wf.SetState("homelab-node2-install", v1alpha1.WorkflowStateFailed, "stream-image")
	completeAll(wf, 2)

	require.NoError(t, NewProvisioner().Provision(ctx))

	assert.ElementsMatch(t, []string{"homelab-node1-install", "homelab-node2-install"}, wf.Deletes())
	assert.Len(t, obs.Events(provisioning.EventResourceCreated), 2)
	assert.Len(t, wf.Submits(), 4)
}

func TestImaging_FailedJobAbortsWithDump(t *testing.T) {
	t.Parallel()
	ctx, obs, wf := newImagingContext(t, 4, 1)
	wf.OnList = func(call int) {
		if call == 2 {
			wf.SetState("homelab-node1-install", v1alpha1.WorkflowStateSuccess, "")
			wf.SetState("homelab-node3-install", v1alpha1.WorkflowStateFailed, "stream-image")
		}
	}

	err := NewProvisioner().Provision(ctx)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Contains(t, err.Error(), "homelab-node3-install")
	assert.Empty(t, ctx.State.Imaged)

	out := obs.Output()
	assert.Contains(t, out, "WORKFLOW")
	assert.Contains(t, out, "stream-image")
	assert.Contains(t, out, "state: STATE_FAILED")
}

func TestImaging_SubmitError(t *testing.T) {
	t.Parallel()
	ctx, obs, wf := newImagingContext(t, 2, 1)
	wf.SubmitErr = errors.New("forbidden")

	err := NewProvisioner().Provision(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
	assert.NotEmpty(t, obs.Events(provisioning.EventResourceFailed))
}

func TestNetbootPhase(t *testing.T) {
	t.Parallel()
	ctx, _, wf := newImagingContext(t, 2, 1)

	require.NoError(t, NewNetbootPhase().Provision(ctx))

	hw, ok := wf.Hardware("node1")
	require.True(t, ok)
	assert.Equal(t, tinkerbell.HardwareSpec{
		AgentID:            "aa:bb:cc:00:00:01",
		MAC:                "aa:bb:cc:00:00:01",
		Address:            "10.0.0.11",
		Hostname:           "node1",
		ImageServerBaseURL: "http://10.0.0.2:8080",
		Netboot:            true,
		Labels: labels.NewLabelBuilder("homelab").
			WithRole("controlplane").
			WithNode("node1").
			Build(),
	}, hw)
	_, ok = wf.Hardware("node2")
	assert.True(t, ok)
}

func TestRebootPhase(t *testing.T) {
	t.Parallel()
	ctx, _, wf := newImagingContext(t, 2, 1)
	require.NoError(t, NewNetbootPhase().Provision(ctx))

	require.NoError(t, NewRebootPhase().Provision(ctx))

	assert.Equal(t, []string{"homelab-node1-reboot", "homelab-node2-reboot"}, wf.JobNames())
	for _, name := range []string{"node1", "node2"} {
		hw, ok := wf.Hardware(name)
		require.True(t, ok)
		assert.True(t, hw.Netboot, "netboot stays on until nodes are back: %s", name)
	}
	assert.Empty(t, ctx.State.Warnings)
}

func TestRebootPhase_SubmitErrorIsWarning(t *testing.T) {
	t.Parallel()
	ctx, _, wf := newImagingContext(t, 1, 1)
	wf.SubmitErr = errors.New("template missing")

	require.NoError(t, NewRebootPhase().Provision(ctx))

	require.Len(t, ctx.State.Warnings, 1)
	assert.Contains(t, ctx.State.Warnings[0], "template missing")
	_, ok := wf.Hardware("node1")
	assert.False(t, ok)
}

func TestDump_MissingWorkflow(t *testing.T) {
	t.Parallel()
	wf := mbtest.NewFakeWorkflows()
	var b strings.Builder
	Dump(context.Background(), &b, wf, []tinkerbell.JobState{{Name: "gone"}})

	assert.Contains(t, b.String(), "gone")
	assert.Contains(t, b.String(), "<missing>")
}
