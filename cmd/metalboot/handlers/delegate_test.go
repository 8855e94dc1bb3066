package handlers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
)

func loadTestConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, extra))
	require.NoError(t, err)
	cfg.Cluster.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestDelegateInput(t *testing.T) {
	t.Parallel()
	cfg := loadTestConfig(t, map[string]string{"talos/nodes/node2.yaml": "node2-own"})

	data, items, err := DelegateInput(cfg)
	require.NoError(t, err)

	paths := map[string]string{}
	for _, it := range items {
		paths[it.Key] = it.Path
	}
	assert.Equal(t, map[string]string{
		"talos-controlplane.yaml": "talos/controlplane.yaml",
		"talos-worker.yaml":       "talos/worker.yaml",
		"talosconfig":             "talos/talosconfig",
		"talos-node-node2.yaml":   "talos/nodes/node2.yaml",
		"metalboot.yaml":          "metalboot.yaml",
	}, paths)
	assert.Equal(t, "node2-own", string(data["talos-node-node2.yaml"]))
	assert.NotContains(t, data, "talos-node-node1.yaml")

	var remote config.Config
	require.NoError(t, yaml.Unmarshal(data["metalboot.yaml"], &remote))
	assert.Equal(t, "/etc/metalboot/talos", remote.Talos.ConfigDir)
	assert.Empty(t, remote.Workflow.Kubeconfig)
	assert.Equal(t, "/tmp/metalboot", remote.Cluster.OutputDir)
	assert.Equal(t, cfg.Nodes, remote.Nodes)
	assert.Equal(t, cfg.Timeouts.ClusterPollInterval, remote.Timeouts.ClusterPollInterval)
}

func TestDelegateInput_MissingBase(t *testing.T) {
	t.Parallel()
	cfg := loadTestConfig(t, nil)
	require.NoError(t, os.Remove(filepath.Join(cfg.Talos.ConfigDir, "controlplane.yaml")))

	_, _, err := DelegateInput(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "controlplane.yaml")
}

func TestBuildJob(t *testing.T) {
	t.Parallel()
	cfg := loadTestConfig(t, nil)
	run := provisioning.RunConfig{Mode: provisioning.ModeJob, CNI: false, ClusterDNS: true, Image: "registry.local/metalboot:v1"}

	job := BuildJob(cfg, run, "provisioner", nil)

	assert.Equal(t, "homelab-provision", job.Name)
	assert.Equal(t, config.DefaultSecretNamespace, job.Namespace)
	pod := job.Spec.Template.Spec
	assert.True(t, pod.HostNetwork)
	assert.Equal(t, corev1.RestartPolicyNever, pod.RestartPolicy)
	assert.Equal(t, "provisioner", pod.ServiceAccountName)
	require.Len(t, pod.Containers, 1)
	c := pod.Containers[0]
	assert.Equal(t, "registry.local/metalboot:v1", c.Image)
	args := strings.Join(c.Args, " ")
	assert.Contains(t, args, "--mode local")
	assert.Contains(t, args, "--yes")
	assert.Contains(t, args, "--cni=false")
	assert.Contains(t, args, "--cluster-dns=true")
	assert.Equal(t, "homelab-provision-input", pod.Volumes[0].Secret.SecretName)
}

// finishJobs makes every created job finish with the given condition.
func finishJobs(cs *fake.Clientset, condition batchv1.JobConditionType) {
	cs.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		job := action.(k8stesting.CreateAction).GetObject().(*batchv1.Job)
		job.Status.Conditions = append(job.Status.Conditions, batchv1.JobCondition{
			Type:   condition,
			Status: corev1.ConditionTrue,
		})
		return false, nil, nil
	})
}

func jobPod(ns string) *corev1.Pod {
	return &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:      "homelab-provision-abcde",
		Namespace: ns,
		Labels:    map[string]string{"job-name": "homelab-provision"},
	}}
}

func TestDelegate_CopiesCredentials(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := loadTestConfig(t, nil)
	ns := cfg.Cluster.SecretNamespace
	cs := fake.NewSimpleClientset(
		jobPod(ns),
		&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: cfg.Cluster.SecretName, Namespace: ns},
			Data:       map[string][]byte{"kubeconfig": []byte("kc"), "talosconfig": []byte("tc")},
		},
	)
	finishJobs(cs, batchv1.JobComplete)
	newManagementClient = func(*config.Config) (*k8s.Client, error) { return k8s.NewForClientset(cs), nil }

	err := Delegate(context.Background(), cfg, "metalboot.yaml", provisioning.RunConfig{CNI: true, Image: DefaultImage}, DefaultServiceAccount)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Cluster.OutputDir, "kubeconfig"))
	require.NoError(t, err)
	assert.Equal(t, "kc", string(data))
	assert.FileExists(t, filepath.Join(cfg.Cluster.OutputDir, "talosconfig"))

	input, err := cs.CoreV1().Secrets(ns).Get(context.Background(), "homelab-provision-input", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Contains(t, input.Data, "metalboot.yaml")
}

func TestDelegate_JobFailed(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := loadTestConfig(t, nil)
	cs := fake.NewSimpleClientset(jobPod(cfg.Cluster.SecretNamespace))
	finishJobs(cs, batchv1.JobFailed)
	newManagementClient = func(*config.Config) (*k8s.Client, error) { return k8s.NewForClientset(cs), nil }

	err := Delegate(context.Background(), cfg, "metalboot.yaml", provisioning.RunConfig{Image: DefaultImage}, DefaultServiceAccount)

	assert.ErrorIs(t, err, ErrDelegatedRunFailed)
	assert.NoFileExists(t, filepath.Join(cfg.Cluster.OutputDir, "kubeconfig"))
}

func TestDelegate_JobNeverFinishes(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := loadTestConfig(t, nil)
	cfg.Timeouts.JobWait = 50 * cfg.Timeouts.ClusterPollInterval
	cs := fake.NewSimpleClientset()
	newManagementClient = func(*config.Config) (*k8s.Client, error) { return k8s.NewForClientset(cs), nil }

	err := Delegate(context.Background(), cfg, "metalboot.yaml", provisioning.RunConfig{Image: DefaultImage}, DefaultServiceAccount)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")
}
