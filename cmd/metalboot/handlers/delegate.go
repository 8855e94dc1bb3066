package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/cluster"
	"github.com/imamik/metalboot/internal/util/labels"
	"github.com/imamik/metalboot/internal/util/naming"
	"github.com/imamik/metalboot/internal/util/poll"
)

const (
	// DefaultImage runs the delegated job.
	DefaultImage = "ghcr.io/imamik/metalboot:latest"
	// DefaultServiceAccount needs rights on Tinkerbell objects and secrets.
	DefaultServiceAccount = "metalboot"

	delegatePhase   = "delegate"
	inputMountPath  = "/etc/metalboot"
	configKey       = "metalboot.yaml"
	jobOutputDir    = "/tmp/metalboot"
	jobLogTailLines = 200
)

// ErrDelegatedRunFailed is returned when the delegated job failed.
var ErrDelegatedRunFailed = errors.New("delegated run failed")

// DelegateInput builds the secret data for a delegated run and the volume
// items that lay it out under the mount path. The configuration is rewritten
// so every path points into the mount.
func DelegateInput(cfg *config.Config) (map[string][]byte, []corev1.KeyToPath, error) {
	data := map[string][]byte{}
	var items []corev1.KeyToPath

	add := func(key, path string, content []byte) {
		data[key] = content
		items = append(items, corev1.KeyToPath{Key: key, Path: path})
	}

	files := []struct {
		key, src, dst string
		required      bool
	}{
		{"talos-controlplane.yaml", filepath.Join(cfg.Talos.ConfigDir, "controlplane.yaml"), "talos/controlplane.yaml", true},
		{"talos-worker.yaml", filepath.Join(cfg.Talos.ConfigDir, "worker.yaml"), "talos/worker.yaml", false},
		{"talosconfig", cfg.TalosConfigFile(), "talos/talosconfig", true},
	}
	for _, n := range cfg.Nodes {
		files = append(files, struct {
			key, src, dst string
			required      bool
		}{
			key: "talos-node-" + n.Name + ".yaml",
			src: filepath.Join(cfg.Talos.ConfigDir, "nodes", n.Name+".yaml"),
			dst: "talos/nodes/" + n.Name + ".yaml",
		})
	}

	for _, f := range files {
		// #nosec G304
		content, err := os.ReadFile(f.src)
		switch {
		case err == nil:
			add(f.key, f.dst, content)
		case os.IsNotExist(err) && !f.required:
		default:
			return nil, nil, fmt.Errorf("failed to read %s: %w", f.src, err)
		}
	}

	remote := *cfg
	remote.Talos.ConfigDir = inputMountPath + "/talos"
	remote.Talos.TalosConfigPath = ""
	remote.Workflow.Kubeconfig = ""
	remote.Cluster.OutputDir = jobOutputDir
	out, err := yaml.Marshal(&remote)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render delegated config: %w", err)
	}
	add(configKey, configKey, out)

	return data, items, nil
}

// BuildJob returns the Job running the same binary in local mode on the host
// network, so wake packets and probes reach the nodes.
func BuildJob(cfg *config.Config, run provisioning.RunConfig, serviceAccount string, items []corev1.KeyToPath) *batchv1.Job {
	lbls := labels.NewLabelBuilder(cfg.ClusterName).WithJob("provision").Build()

	args := []string{
		"provision",
		"--config", inputMountPath + "/" + configKey,
		"--mode", string(provisioning.ModeLocal),
		"--yes",
		"--cni=" + strconv.FormatBool(run.CNI),
		"--cluster-dns=" + strconv.FormatBool(run.ClusterDNS),
		"--log-format", "json",
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      naming.DelegateJob(cfg.ClusterName),
			Namespace: cfg.Cluster.SecretNamespace,
			Labels:    lbls,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.To[int32](0),
			TTLSecondsAfterFinished: ptr.To[int32](24 * 60 * 60),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: lbls},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					HostNetwork:        true,
					DNSPolicy:          corev1.DNSClusterFirstWithHostNet,
					ServiceAccountName: serviceAccount,
					Containers: []corev1.Container{{
						Name:  "metalboot",
						Image: run.Image,
						Args:  args,
						SecurityContext: &corev1.SecurityContext{
							Capabilities: &corev1.Capabilities{
								Add: []corev1.Capability{"NET_RAW"},
							},
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      "input",
							MountPath: inputMountPath,
							ReadOnly:  true,
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "input",
						VolumeSource: corev1.VolumeSource{
							Secret: &corev1.SecretVolumeSource{
								SecretName: naming.DelegateSecret(cfg.ClusterName),
								Items:      items,
							},
						},
					}},
				},
			},
		},
	}
}

// Delegate hands the run to a Job in the management cluster, waits for it
// and copies the resulting kubeconfig next to the local config.
func Delegate(ctx context.Context, cfg *config.Config, configPath string, run provisioning.RunConfig, serviceAccount string) error {
	observer := observerFor("console")
	mgmt, err := newManagementClient(cfg)
	if err != nil {
		return err
	}

	data, items, err := DelegateInput(cfg)
	if err != nil {
		return err
	}

	ns := cfg.Cluster.SecretNamespace
	if err := mgmt.EnsureNamespace(ctx, ns); err != nil {
		return err
	}
	secretName := naming.DelegateSecret(cfg.ClusterName)
	lbls := labels.NewLabelBuilder(cfg.ClusterName).WithJob("provision").Build()
	if err := mgmt.CreateOrUpdateSecret(ctx, ns, secretName, data, lbls); err != nil {
		return err
	}
	provisioning.LogResource(observer, delegatePhase, "secret", ns+"/"+secretName, "updated")

	job := BuildJob(cfg, run, serviceAccount, items)
	if err := mgmt.CreateOrReplaceJob(ctx, job); err != nil {
		return err
	}
	provisioning.LogResource(observer, delegatePhase, "job", ns+"/"+job.Name, "created")
	observer.Printf("[%s] Delegated %s to job %s/%s", delegatePhase, configPath, ns, job.Name)

	phase, err := waitForJob(ctx, mgmt, observer, ns, job.Name, cfg.Timeouts)
	if logs, logErr := mgmt.JobLogs(ctx, ns, job.Name, jobLogTailLines); logErr == nil {
		observer.Printf("[%s] Last %d log lines of %s:\n%s", delegatePhase, jobLogTailLines, job.Name, strings.TrimRight(logs, "\n"))
	} else {
		observer.Printf("[%s] Logs unavailable: %v", delegatePhase, logErr)
	}
	if err != nil {
		return err
	}
	if phase == k8s.JobFailed {
		observer.Banner(provisioning.BannerFailure, fmt.Sprintf("Delegated run %s/%s failed", ns, job.Name))
		return fmt.Errorf("%w: job %s/%s", ErrDelegatedRunFailed, ns, job.Name)
	}

	return fetchCredentials(ctx, mgmt, observer, cfg)
}

func waitForJob(ctx context.Context, mgmt *k8s.Client, observer provisioning.Observer, ns, name string, t config.Timeouts) (k8s.JobPhase, error) {
	var phase k8s.JobPhase
	res := poll.Until(ctx, poll.Options{
		Interval: t.ClusterPollInterval,
		Timeout:  t.JobWait,
	}, func(c context.Context, tick poll.Tick) (poll.Observation, error) {
		p, err := mgmt.JobStatus(c, ns, name)
		if err != nil {
			return poll.Observation{}, err
		}
		phase = p
		observer.Status(delegatePhase, fmt.Sprintf("job %s %s, %s elapsed", name, p, tick.Elapsed.Round(time.Second)))
		return poll.Observation{Done: p.Finished()}, nil
	})
	if !res.OK() {
		if res.Err != nil {
			return phase, fmt.Errorf("job %s/%s did not finish (%s): %w", ns, name, res.Outcome, res.Err)
		}
		return phase, fmt.Errorf("job %s/%s did not finish within %s", ns, name, t.JobWait)
	}
	return phase, nil
}

func fetchCredentials(ctx context.Context, mgmt *k8s.Client, observer provisioning.Observer, cfg *config.Config) error {
	ns, name := cfg.Cluster.SecretNamespace, cfg.Cluster.SecretName
	kubeconfig, err := mgmt.GetSecretData(ctx, ns, name, naming.KubeconfigFile)
	if err != nil {
		observer.Banner(provisioning.BannerWarning,
			fmt.Sprintf("Delegated run finished, but credentials are not in %s/%s: %v", ns, name, err))
		return nil
	}

	files := map[string][]byte{naming.KubeconfigFile: kubeconfig}
	if talosconfig, err := mgmt.GetSecretData(ctx, ns, name, naming.TalosconfigFile); err == nil {
		files[naming.TalosconfigFile] = talosconfig
	}
	path, err := cluster.WriteCredentials(cfg.Cluster.OutputDir, files)
	if err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	observer.Banner(provisioning.BannerSuccess,
		fmt.Sprintf("Cluster %s provisioned by job\nKubeconfig: %s", cfg.ClusterName, path))
	return nil
}
