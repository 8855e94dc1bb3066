package testing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/siderolabs/talos/pkg/machinery/config"
	"github.com/siderolabs/talos/pkg/machinery/config/generate"
	"github.com/siderolabs/talos/pkg/machinery/config/generate/secrets"
	"github.com/siderolabs/talos/pkg/machinery/config/machine"
)

// TestContext returns a context with a reasonable timeout for tests.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var (
	machineConfigsMu sync.Mutex
	machineConfigs   = map[machine.Type][]byte{}
)

// MachineConfig returns a real machine configuration of the given type.
// Generation is slow, so one config per type is shared by all tests.
func MachineConfig(t *testing.T, typ machine.Type) []byte {
	t.Helper()
	machineConfigsMu.Lock()
	defer machineConfigsMu.Unlock()

	if data, ok := machineConfigs[typ]; ok {
		return data
	}
	data, err := generateMachineConfig(typ)
	if err != nil {
		t.Fatalf("failed to generate %s config: %v", typ, err)
	}
	machineConfigs[typ] = data
	return data
}

func generateMachineConfig(typ machine.Type) ([]byte, error) {
	vc, err := config.ParseContractFromVersion("v1.7.0")
	if err != nil {
		return nil, err
	}
	bundle, err := secrets.NewBundle(secrets.NewFixedClock(time.Now()), vc)
	if err != nil {
		return nil, err
	}
	input, err := generate.NewInput("homelab", "https://10.0.0.10:6443", "1.30.0",
		generate.WithVersionContract(vc),
		generate.WithSecretsBundle(bundle),
		generate.WithInstallDisk("/dev/sda"),
	)
	if err != nil {
		return nil, err
	}
	cfg, err := input.Config(typ)
	if err != nil {
		return nil, err
	}
	return cfg.Bytes()
}

// TalosDir writes controlplane.yaml, worker.yaml and talosconfig into a new
// temp dir and returns it. extra maps relative paths to contents, for
// example "nodes/node2.yaml".
func TalosDir(t *testing.T, extra map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"controlplane.yaml": MachineConfig(t, machine.TypeControlPlane),
		"worker.yaml":       MachineConfig(t, machine.TypeWorker),
		"talosconfig":       []byte(TalosConfigYAML),
	}
	for k, v := range extra {
		files[k] = v
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

// TalosConfigYAML is a syntactically valid client configuration.
const TalosConfigYAML = `context: homelab
contexts:
  homelab:
    endpoints:
      - 10.0.0.10
    ca: ""
    crt: ""
    key: ""
`
