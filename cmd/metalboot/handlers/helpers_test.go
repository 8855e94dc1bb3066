package handlers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	mbtest "github.com/imamik/metalboot/internal/testing"
)

// saveAndRestoreFactories saves all factory variables and restores them
// after the test.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origLoad := loadConfigFile
	origFind := findConfigFile
	origDeps := newDeps
	origRunner := newRunner
	origMgmt := newManagementClient
	origTerminal := isTerminal
	origOutput := logOutput
	origProber := newProber
	origWorkflows := newWorkflowAPI
	origDashboard := runDashboard

	isTerminal = func() bool { return false }
	logOutput = &bytes.Buffer{}

	t.Cleanup(func() {
		loadConfigFile = origLoad
		findConfigFile = origFind
		newDeps = origDeps
		newRunner = origRunner
		newManagementClient = origMgmt
		isTerminal = origTerminal
		logOutput = origOutput
		newProber = origProber
		newWorkflowAPI = origWorkflows
		runDashboard = origDashboard
	})
}

const testConfig = `clusterName: homelab
controlPlaneCount: 1
nodes:
  - name: node1
    mac: aa:bb:cc:00:00:01
    address: 10.0.0.11
  - "node2;aa:bb:cc:00:00:02;10.0.0.12"
talos:
  configDir: talos
  version: v1.9.2
workflow:
  installTemplate: talos-install
  rebootTemplate: reboot
  managementAddress: 10.0.0.2
  kubeconfig: /home/op/.kube/tink
cluster:
  outputDir: out
timeouts:
  clusterPollInterval: 5ms
  jobWait: 2s
`

// writeConfig lays out a config file with its Talos directory and returns
// the config path.
func writeConfig(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"metalboot.yaml":          testConfig,
		"talos/controlplane.yaml": "machine:\n  type: controlplane\n",
		"talos/worker.yaml":       "machine:\n  type: worker\n",
		"talos/talosconfig":       mbtest.TalosConfigYAML,
	}
	for k, v := range extra {
		files[k] = v
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	}
	return filepath.Join(dir, "metalboot.yaml")
}
