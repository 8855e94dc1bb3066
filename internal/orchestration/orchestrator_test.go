package orchestration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"k8s.io/client-go/kubernetes/fake"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/orchestration"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/imaging"
	mbtest "github.com/imamik/metalboot/internal/testing"
	"github.com/imamik/metalboot/internal/util/naming"
)

// harness wires every collaborator of a run to fakes that behave like a
// small lab: woken nodes netboot, install jobs succeed unless told
// otherwise and reboot jobs bring the node up in the target runtime.
type harness struct {
	cfg       *config.Config
	registry  *inventory.Registry
	prober    *mbtest.FakeProber
	waker     *mbtest.FakeWaker
	nodes     *mbtest.FakeNodeConfig
	workflows *mbtest.FakeWorkflows
	cluster   *mbtest.FakeCluster
	mgmt      *k8s.Client
	observer  *mbtest.RecordingObserver

	// failInstall names nodes whose install workflow fails.
	failInstall map[string]bool
}

func newHarness(nodeCount, controlPlanes int) *harness {
	dir := GinkgoT().TempDir()
	for name, data := range map[string]string{
		"controlplane.yaml": "machine:\n  type: controlplane\n",
		"worker.yaml":       "machine:\n  type: worker\n",
		"talosconfig":       mbtest.TalosConfigYAML,
	} {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600)).To(Succeed())
	}

	cfg := mbtest.NewConfigBuilder().
		WithNodes(nodeCount, controlPlanes).
		WithTalosDir(dir).
		WithOutputDir(filepath.Join(GinkgoT().TempDir(), "out")).
		Build()

	registry, err := inventory.FromConfig(cfg)
	Expect(err).NotTo(HaveOccurred())

	prober := mbtest.NewFakeProber()
	h := &harness{
		cfg:         cfg,
		registry:    registry,
		prober:      prober,
		waker:       &mbtest.FakeWaker{Prober: prober, WakeTo: probe.OnlineUnknownOS},
		nodes:       &mbtest.FakeNodeConfig{},
		workflows:   mbtest.NewFakeWorkflows(),
		cluster:     &mbtest.FakeCluster{Readiness: k8s.Readiness{Ready: registry.Names()}},
		mgmt:        k8s.NewForClientset(fake.NewSimpleClientset()),
		observer:    mbtest.NewRecordingObserver(),
		failInstall: map[string]bool{},
	}
	h.workflows.OnSubmit = h.settle
	h.nodes.ResetFunc = h.netboot
	return h
}

func (h *harness) settle(job tinkerbell.Job) {
	node := job.Hardware
	switch job.Name {
	case naming.InstallWorkflow(h.cfg.ClusterName, node):
		if h.failInstall[node] {
			h.workflows.SetState(job.Name, v1alpha1.WorkflowStateFailed, "stream-image")
			return
		}
		h.workflows.SetState(job.Name, v1alpha1.WorkflowStateSuccess, "")
	case naming.RebootWorkflow(h.cfg.ClusterName, node):
		h.workflows.SetState(job.Name, v1alpha1.WorkflowStateSuccess, "")
		if n, ok := h.registry.ByName(node); ok {
			h.prober.Set(n, probe.OnlineTargetRuntime)
		}
	}
}

// netboot makes a reset node come back in the network boot environment.
func (h *harness) netboot(_ context.Context, address string) error {
	for _, n := range h.registry.Nodes() {
		if n.Address.String() == address {
			h.prober.Set(n, probe.OnlineUnknownOS)
		}
	}
	return nil
}

func (h *harness) run(run provisioning.RunConfig) (*orchestration.Report, error) {
	orch := orchestration.NewOrchestrator(provisioning.Deps{
		Nodes:         h.nodes,
		Workflows:     h.workflows,
		Prober:        h.prober,
		Waker:         h.waker,
		ClusterClient: h.cluster.Factory(),
		Secrets:       h.mgmt,
	}, orchestration.WithObserver(h.observer))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return orch.Run(ctx, h.cfg, run)
}

func (h *harness) kubeconfigPath() string {
	return filepath.Join(h.cfg.Cluster.OutputDir, naming.KubeconfigFile)
}

var _ = Describe("Orchestrator", func() {
	Context("when one install workflow fails", func() {
		It("should abort with a state dump and write no credentials", func() {
			h := newHarness(4, 1)
			h.failInstall["node3"] = true

			report, err := h.run(mbtest.DefaultRun())

			var abort *imaging.AbortError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &abort)).To(BeTrue())
			Expect(abort.Counts.Failed).To(Equal(1))

			Expect(report.Outcome()).To(Equal(orchestration.OutcomeFailure))
			Expect(h.observer.Output()).To(ContainSubstring("Workflow state at abort"))
			Expect(h.observer.Output()).To(ContainSubstring("homelab-node3-install"))
			Expect(h.observer.Banners()).To(ConsistOf(HavePrefix("failure:")))

			Expect(h.nodes.Applies()).To(BeEmpty())
			Expect(h.nodes.Bootstraps()).To(BeEmpty())
			Expect(h.kubeconfigPath()).NotTo(BeAnExistingFile())
		})
	})

	Context("when no control plane is declared", func() {
		It("should fail before touching any node and write no credentials", func() {
			h := newHarness(2, 0)

			report, err := h.run(mbtest.DefaultRun())

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("ControlPlaneCount"))
			Expect(report.Outcome()).To(Equal(orchestration.OutcomeFailure))
			Expect(report.CredentialsPath).To(BeEmpty())
			Expect(h.waker.Woken()).To(BeEmpty())
			Expect(h.nodes.Bootstraps()).To(BeEmpty())
			Expect(h.kubeconfigPath()).NotTo(BeAnExistingFile())
		})
	})

	Context("when every step succeeds", func() {
		It("should bootstrap, verify and persist the credentials", func() {
			h := newHarness(4, 1)
			h.cluster.AuthorizeFunc = func(attempt int) error {
				if attempt <= 2 {
					return k8s.ErrUnauthorized
				}
				return nil
			}

			report, err := h.run(mbtest.DefaultRun())

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome()).To(Equal(orchestration.OutcomeSuccess), "warnings: %v", report.Warnings)
			Expect(report.Configured).To(HaveLen(4))
			Expect(report.Readiness.Ready).To(HaveLen(4))
			Expect(h.nodes.Bootstraps()).To(Equal([]string{"10.0.0.11"}))
			Expect(h.cluster.Authorizations()).To(Equal(3))
			Expect(h.cluster.Waits()).To(Equal([]int{4}))

			Expect(h.kubeconfigPath()).To(BeAnExistingFile())
			data, err := os.ReadFile(h.kubeconfigPath())
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(mbtest.Kubeconfig("10.0.0.11")))

			stored, err := h.mgmt.GetSecretData(context.Background(),
				config.DefaultSecretNamespace, config.DefaultSecretName, naming.KubeconfigFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(data))

			hw, ok := h.workflows.Hardware("node1")
			Expect(ok).To(BeTrue())
			Expect(hw.Netboot).To(BeFalse())
			Expect(h.observer.Banners()).To(ConsistOf(HavePrefix("success:")))
		})

		It("should be safe to run twice", func() {
			h := newHarness(2, 1)

			_, err := h.run(mbtest.DefaultRun())
			Expect(err).NotTo(HaveOccurred())
			Expect(h.nodes.Resets()).To(BeEmpty())

			report, err := h.run(mbtest.DefaultRun())
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome()).To(Equal(orchestration.OutcomeSuccess), "warnings: %v", report.Warnings)

			Expect(h.nodes.Resets()).To(Equal([]string{"10.0.0.11", "10.0.0.12"}))
			Expect(h.workflows.Deletes()).To(ConsistOf(
				"homelab-node1-install", "homelab-node2-install",
				"homelab-node1-reboot", "homelab-node2-reboot",
			))
			Expect(h.nodes.Bootstraps()).To(HaveLen(2))
			Expect(h.kubeconfigPath()).To(BeAnExistingFile())
		})
	})

	Context("when the network plugin is disabled", func() {
		It("should skip the readiness wait and patch every node", func() {
			h := newHarness(3, 1)
			run := mbtest.DefaultRun()
			run.CNI = false

			report, err := h.run(run)

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Outcome()).To(Equal(orchestration.OutcomePartial))
			Expect(h.cluster.Waits()).To(BeEmpty())
			Expect(h.observer.Output()).To(ContainSubstring("CNI disabled"))
			for _, a := range h.nodes.Applies() {
				Expect(string(a.Patch)).To(ContainSubstring("name: none"))
			}
			Expect(h.kubeconfigPath()).To(BeAnExistingFile())
		})
	})
})
