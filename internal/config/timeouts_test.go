package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	timeouts := LoadTimeouts()

	assert.Equal(t, 5*time.Minute, timeouts.WorkflowStall)
	assert.Equal(t, 30*time.Minute, timeouts.WorkflowTimeout)
	assert.Equal(t, 10*time.Second, timeouts.WorkflowPollInterval)
	assert.Equal(t, 30*time.Second, timeouts.WakeSettle)
	assert.InDelta(t, 0.75, timeouts.WakePartialFraction, 0.0001)
	assert.Equal(t, 3, timeouts.ConfigApplyRetries)
}

func TestLoadTimeouts_EnvVars(t *testing.T) {
	t.Setenv("METALBOOT_TIMEOUT_WORKFLOW_STALL", "90s")
	t.Setenv("METALBOOT_TIMEOUT_WORKFLOW", "1h")
	t.Setenv("METALBOOT_WAKE_PARTIAL_FRACTION", "0.5")
	t.Setenv("METALBOOT_CONFIG_APPLY_RETRIES", "7")

	timeouts := LoadTimeouts()

	assert.Equal(t, 90*time.Second, timeouts.WorkflowStall)
	assert.Equal(t, time.Hour, timeouts.WorkflowTimeout)
	assert.InDelta(t, 0.5, timeouts.WakePartialFraction, 0.0001)
	assert.Equal(t, 7, timeouts.ConfigApplyRetries)
}

func TestLoadTimeouts_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("METALBOOT_TIMEOUT_WORKFLOW_STALL", "soon")
	t.Setenv("METALBOOT_WAKE_PARTIAL_FRACTION", "1.5")
	t.Setenv("METALBOOT_CONFIG_APPLY_RETRIES", "-2")

	timeouts := LoadTimeouts()

	assert.Equal(t, 5*time.Minute, timeouts.WorkflowStall)
	assert.InDelta(t, 0.75, timeouts.WakePartialFraction, 0.0001)
	assert.Equal(t, 3, timeouts.ConfigApplyRetries)
}

func TestTimeouts_MaxStallPolls(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		interval time.Duration
		stall    time.Duration
		want     int
	}{
		{"exact multiple", 10 * time.Second, 5 * time.Minute, 30},
		{"rounds up", 7 * time.Second, 30 * time.Second, 5},
		{"stall shorter than interval", time.Minute, 10 * time.Second, 1},
		{"zero interval", 0, time.Minute, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			to := Timeouts{WorkflowPollInterval: tt.interval, WorkflowStall: tt.stall}
			assert.Equal(t, tt.want, to.MaxStallPolls())
		})
	}
}
