package orchestration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
	mbtest "github.com/imamik/metalboot/internal/testing"
	"github.com/imamik/metalboot/internal/ui/benchmarks"
)

func TestReport_Outcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report Report
		want   Outcome
		banner string
	}{
		{
			name:   "success",
			report: Report{Cluster: "homelab", Nodes: 2, Configured: []string{"node1", "node2"}},
			want:   OutcomeSuccess,
			banner: "success: Cluster homelab provisioned",
		},
		{
			name:   "warnings make it partial",
			report: Report{Cluster: "homelab", Nodes: 2, Warnings: []string{"configure: node2 not configured"}},
			want:   OutcomePartial,
			banner: "warning: Cluster homelab provisioned with 1 warning(s)",
		},
		{
			name:   "error wins over warnings",
			report: Report{Cluster: "homelab", Warnings: []string{"w"}, Err: errors.New("imaging aborted")},
			want:   OutcomeFailure,
			banner: "failure: Provisioning of homelab failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.report.Outcome())

			obs := mbtest.NewRecordingObserver()
			tt.report.Render(obs)
			if assert.Len(t, obs.Banners(), 1) {
				assert.Contains(t, obs.Banners()[0], tt.banner)
			}
		})
	}
}

func TestReport_Summary(t *testing.T) {
	t.Parallel()
	r := Report{
		Cluster:         "homelab",
		Nodes:           3,
		Configured:      []string{"node1", "node2"},
		Readiness:       k8s.Readiness{Ready: []string{"node1"}, NotReady: []string{"node2"}},
		CredentialsPath: "/tmp/out/kubeconfig",
		Warnings:        []string{"verify: 1/2 ready"},
		Duration:        90 * time.Second,
	}

	s := r.Summary()

	assert.Contains(t, s, "Configured: 2/3 node(s)")
	assert.Contains(t, s, "Readiness:  1/2 ready")
	assert.Contains(t, s, "Kubeconfig: /tmp/out/kubeconfig")
	assert.Contains(t, s, "! verify: 1/2 ready")
	assert.Contains(t, s, "1m30s")
}

func TestDefaultPhases_Order(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{
		"preflight", "netboot-enable", "power", "imaging", "reboot", "configure", "bootstrap", "verify",
	}, PhaseNames(DefaultPhases()))
	assert.Equal(t, benchmarks.PhaseOrder, PhaseNames(DefaultPhases()))
}

func TestRun_InvalidInventory(t *testing.T) {
	t.Parallel()
	cfg := mbtest.NewConfigBuilder().WithNodes(1, 1).Build()
	cfg.ControlPlaneCount = 3
	obs := mbtest.NewRecordingObserver()

	report, err := NewOrchestrator(provisioning.Deps{}, WithObserver(obs)).Run(mbtest.TestContext(t), cfg, mbtest.DefaultRun())

	assert.ErrorIs(t, err, inventory.ErrControlPlaneCount)
	assert.Equal(t, OutcomeFailure, report.Outcome())
	assert.Len(t, obs.Banners(), 1)
}
