package testing

import (
	"testing"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/provisioning"
)

// DefaultRun is a local, non-interactive run with both cluster features on.
func DefaultRun() provisioning.RunConfig {
	return provisioning.RunConfig{
		Mode:       provisioning.ModeLocal,
		CNI:        true,
		ClusterDNS: true,
		AssumeYes:  true,
	}
}

// NewContext builds a provisioning context with a recording observer.
func NewContext(t *testing.T, cfg *config.Config, run provisioning.RunConfig, deps provisioning.Deps) (*provisioning.Context, *RecordingObserver) {
	t.Helper()
	reg, err := inventory.FromConfig(cfg)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	observer := NewRecordingObserver()
	return provisioning.NewContext(TestContext(t), cfg, run, reg, deps, observer), observer
}
