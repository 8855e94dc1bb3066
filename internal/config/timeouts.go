package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds every polling interval, window and retry budget used by a run.
// The defaults were tuned against a small home-lab network; every value can be
// overridden in the config file and again through environment variables.
type Timeouts struct {
	ProbeDial time.Duration `yaml:"probeDial"` // TCP connect budget per liveness probe
	ProbePing time.Duration `yaml:"probePing"` // ICMP echo budget per liveness probe

	ResetIssue        time.Duration `yaml:"resetIssue"`        // Bounded join for fire-and-forget reset calls
	ResetPollInterval time.Duration `yaml:"resetPollInterval"` // Interval while waiting for reset nodes to go dark
	ResetWindow       time.Duration `yaml:"resetWindow"`       // Max wait for reset nodes to go dark

	WakeSettle          time.Duration `yaml:"wakeSettle"`          // Delay before the first online check
	WakePollInterval    time.Duration `yaml:"wakePollInterval"`    // Interval while waiting for nodes to come online
	WakeWindow          time.Duration `yaml:"wakeWindow"`          // Max wait for nodes to come online
	WakePartialFraction float64       `yaml:"wakePartialFraction"` // Share of WakeWindow after which a partial set is accepted

	WorkflowPollInterval time.Duration `yaml:"workflowPollInterval"` // Interval between workflow state fetches
	WorkflowStall        time.Duration `yaml:"workflowStall"`        // Max time without progress before a stall abort
	WorkflowTimeout      time.Duration `yaml:"workflowTimeout"`      // Hard budget for all imaging workflows

	ConfigPortWait     time.Duration `yaml:"configPortWait"`     // Max wait for configuration API ports
	ConfigPortPoll     time.Duration `yaml:"configPortPoll"`     // Interval between configuration port checks
	ConfigApplyRetries int           `yaml:"configApplyRetries"` // Retries per config payload before falling back
	ConfigApplyBackoff time.Duration `yaml:"configApplyBackoff"` // Delay before the first retry of a config payload

	ClusterPollInterval    time.Duration `yaml:"clusterPollInterval"`    // Interval for bootstrap retries, health and readiness checks
	BootstrapRetry         time.Duration `yaml:"bootstrapRetry"`         // Budget for the bootstrap RPC to be accepted
	HealthWait             time.Duration `yaml:"healthWait"`             // Max wait for the configuration API to answer authenticated calls
	CredentialWait         time.Duration `yaml:"credentialWait"`         // Max wait for usable cluster credentials
	CredentialPoll         time.Duration `yaml:"credentialPoll"`         // Interval between credential attempts
	NodeReadyWait          time.Duration `yaml:"nodeReadyWait"`          // Max wait for all nodes to report Ready
	NodeRegistrationSettle time.Duration `yaml:"nodeRegistrationSettle"` // Sleep used instead of the Ready wait without a CNI

	JobWait time.Duration `yaml:"jobWait"` // Max wait for a delegated run to finish
}

// DefaultTimeouts returns the built-in values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ProbeDial:              2 * time.Second,
		ProbePing:              1 * time.Second,
		ResetIssue:             15 * time.Second,
		ResetPollInterval:      5 * time.Second,
		ResetWindow:            2 * time.Minute,
		WakeSettle:             30 * time.Second,
		WakePollInterval:       10 * time.Second,
		WakeWindow:             10 * time.Minute,
		WakePartialFraction:    0.75,
		WorkflowPollInterval:   10 * time.Second,
		WorkflowStall:          5 * time.Minute,
		WorkflowTimeout:        30 * time.Minute,
		ConfigPortWait:         10 * time.Minute,
		ConfigPortPoll:         5 * time.Second,
		ConfigApplyRetries:     3,
		ConfigApplyBackoff:     5 * time.Second,
		ClusterPollInterval:    10 * time.Second,
		BootstrapRetry:         5 * time.Minute,
		HealthWait:             10 * time.Minute,
		CredentialWait:         15 * time.Minute,
		CredentialPoll:         10 * time.Second,
		NodeReadyWait:          10 * time.Minute,
		NodeRegistrationSettle: 30 * time.Second,
		JobWait:                90 * time.Minute,
	}
}

// LoadTimeouts returns the defaults with environment overrides applied.
//
// Environment Variables:
//   - METALBOOT_TIMEOUT_PROBE_DIAL, METALBOOT_TIMEOUT_PROBE_PING
//   - METALBOOT_TIMEOUT_RESET_ISSUE, METALBOOT_TIMEOUT_RESET_POLL, METALBOOT_TIMEOUT_RESET_WINDOW
//   - METALBOOT_TIMEOUT_WAKE_SETTLE, METALBOOT_TIMEOUT_WAKE_POLL, METALBOOT_TIMEOUT_WAKE_WINDOW
//   - METALBOOT_WAKE_PARTIAL_FRACTION
//   - METALBOOT_TIMEOUT_WORKFLOW_POLL, METALBOOT_TIMEOUT_WORKFLOW_STALL, METALBOOT_TIMEOUT_WORKFLOW
//   - METALBOOT_TIMEOUT_CONFIG_PORT, METALBOOT_TIMEOUT_CONFIG_PORT_POLL, METALBOOT_CONFIG_APPLY_RETRIES,
//     METALBOOT_CONFIG_APPLY_BACKOFF
//   - METALBOOT_TIMEOUT_CLUSTER_POLL, METALBOOT_TIMEOUT_BOOTSTRAP, METALBOOT_TIMEOUT_HEALTH, METALBOOT_TIMEOUT_CREDENTIALS,
//     METALBOOT_TIMEOUT_CREDENTIALS_POLL, METALBOOT_TIMEOUT_NODE_READY,
//     METALBOOT_TIMEOUT_NODE_REGISTRATION
//   - METALBOOT_TIMEOUT_JOB
func LoadTimeouts() Timeouts {
	t := DefaultTimeouts()
	t.applyEnv()
	return t
}

// applyDefaults fills zero values with the built-in defaults.
func (t *Timeouts) applyDefaults() {
	d := DefaultTimeouts()
	setDuration(&t.ProbeDial, d.ProbeDial)
	setDuration(&t.ProbePing, d.ProbePing)
	setDuration(&t.ResetIssue, d.ResetIssue)
	setDuration(&t.ResetPollInterval, d.ResetPollInterval)
	setDuration(&t.ResetWindow, d.ResetWindow)
	setDuration(&t.WakeSettle, d.WakeSettle)
	setDuration(&t.WakePollInterval, d.WakePollInterval)
	setDuration(&t.WakeWindow, d.WakeWindow)
	if t.WakePartialFraction <= 0 || t.WakePartialFraction > 1 {
		t.WakePartialFraction = d.WakePartialFraction
	}
	setDuration(&t.WorkflowPollInterval, d.WorkflowPollInterval)
	setDuration(&t.WorkflowStall, d.WorkflowStall)
	setDuration(&t.WorkflowTimeout, d.WorkflowTimeout)
	setDuration(&t.ConfigPortWait, d.ConfigPortWait)
	setDuration(&t.ConfigPortPoll, d.ConfigPortPoll)
	if t.ConfigApplyRetries <= 0 {
		t.ConfigApplyRetries = d.ConfigApplyRetries
	}
	setDuration(&t.ConfigApplyBackoff, d.ConfigApplyBackoff)
	setDuration(&t.ClusterPollInterval, d.ClusterPollInterval)
	setDuration(&t.BootstrapRetry, d.BootstrapRetry)
	setDuration(&t.HealthWait, d.HealthWait)
	setDuration(&t.CredentialWait, d.CredentialWait)
	setDuration(&t.CredentialPoll, d.CredentialPoll)
	setDuration(&t.NodeReadyWait, d.NodeReadyWait)
	setDuration(&t.NodeRegistrationSettle, d.NodeRegistrationSettle)
	setDuration(&t.JobWait, d.JobWait)
}

// applyEnv overrides values from METALBOOT_* environment variables.
func (t *Timeouts) applyEnv() {
	t.ProbeDial = parseDuration("METALBOOT_TIMEOUT_PROBE_DIAL", t.ProbeDial)
	t.ProbePing = parseDuration("METALBOOT_TIMEOUT_PROBE_PING", t.ProbePing)
	t.ResetIssue = parseDuration("METALBOOT_TIMEOUT_RESET_ISSUE", t.ResetIssue)
	t.ResetPollInterval = parseDuration("METALBOOT_TIMEOUT_RESET_POLL", t.ResetPollInterval)
	t.ResetWindow = parseDuration("METALBOOT_TIMEOUT_RESET_WINDOW", t.ResetWindow)
	t.WakeSettle = parseDuration("METALBOOT_TIMEOUT_WAKE_SETTLE", t.WakeSettle)
	t.WakePollInterval = parseDuration("METALBOOT_TIMEOUT_WAKE_POLL", t.WakePollInterval)
	t.WakeWindow = parseDuration("METALBOOT_TIMEOUT_WAKE_WINDOW", t.WakeWindow)
	t.WakePartialFraction = parseFraction("METALBOOT_WAKE_PARTIAL_FRACTION", t.WakePartialFraction)
	t.WorkflowPollInterval = parseDuration("METALBOOT_TIMEOUT_WORKFLOW_POLL", t.WorkflowPollInterval)
	t.WorkflowStall = parseDuration("METALBOOT_TIMEOUT_WORKFLOW_STALL", t.WorkflowStall)
	t.WorkflowTimeout = parseDuration("METALBOOT_TIMEOUT_WORKFLOW", t.WorkflowTimeout)
	t.ConfigPortWait = parseDuration("METALBOOT_TIMEOUT_CONFIG_PORT", t.ConfigPortWait)
	t.ConfigPortPoll = parseDuration("METALBOOT_TIMEOUT_CONFIG_PORT_POLL", t.ConfigPortPoll)
	t.ConfigApplyRetries = parseInt("METALBOOT_CONFIG_APPLY_RETRIES", t.ConfigApplyRetries)
	t.ConfigApplyBackoff = parseDuration("METALBOOT_CONFIG_APPLY_BACKOFF", t.ConfigApplyBackoff)
	t.ClusterPollInterval = parseDuration("METALBOOT_TIMEOUT_CLUSTER_POLL", t.ClusterPollInterval)
	t.BootstrapRetry = parseDuration("METALBOOT_TIMEOUT_BOOTSTRAP", t.BootstrapRetry)
	t.HealthWait = parseDuration("METALBOOT_TIMEOUT_HEALTH", t.HealthWait)
	t.CredentialWait = parseDuration("METALBOOT_TIMEOUT_CREDENTIALS", t.CredentialWait)
	t.CredentialPoll = parseDuration("METALBOOT_TIMEOUT_CREDENTIALS_POLL", t.CredentialPoll)
	t.NodeReadyWait = parseDuration("METALBOOT_TIMEOUT_NODE_READY", t.NodeReadyWait)
	t.NodeRegistrationSettle = parseDuration("METALBOOT_TIMEOUT_NODE_REGISTRATION", t.NodeRegistrationSettle)
	t.JobWait = parseDuration("METALBOOT_TIMEOUT_JOB", t.JobWait)
}

// MaxStallPolls converts the stall window into a count of consecutive
// unchanged polls, rounding up so a stall never fires early.
func (t Timeouts) MaxStallPolls() int {
	if t.WorkflowPollInterval <= 0 {
		return 1
	}
	n := int(t.WorkflowStall / t.WorkflowPollInterval)
	if t.WorkflowStall%t.WorkflowPollInterval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}

func parseFraction(envVar string, defaultVal float64) float64 {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 || f > 1 {
		return defaultVal
	}

	return f
}
