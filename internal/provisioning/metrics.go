package provisioning

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/metalboot/internal/probe"
)

// Metrics records one run. It owns its registry so repeated runs in one
// process, and tests, never collide on the global one. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	cluster  string
	registry *prometheus.Registry

	phaseDuration *prometheus.HistogramVec
	phaseTotal    *prometheus.CounterVec
	workflowJobs  *prometheus.GaugeVec
	nodeStatus    *prometheus.GaugeVec
}

// NewMetrics creates the collectors for a cluster and registers them.
func NewMetrics(cluster string) *Metrics {
	m := &Metrics{
		cluster:  cluster,
		registry: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metalboot",
				Subsystem: "provisioning",
				Name:      "phase_duration_seconds",
				Help:      "Duration of provisioning phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
			[]string{"cluster", "phase"},
		),
		phaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metalboot",
				Subsystem: "provisioning",
				Name:      "phase_total",
				Help:      "Total number of provisioning phases by result",
			},
			[]string{"cluster", "phase", "result"},
		),
		workflowJobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "metalboot",
				Subsystem: "workflow",
				Name:      "jobs",
				Help:      "Number of workflow jobs by kind and state bucket at the last poll",
			},
			[]string{"cluster", "kind", "bucket"},
		),
		nodeStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "metalboot",
				Subsystem: "nodes",
				Name:      "status",
				Help:      "Number of nodes by probed liveness status at the last probe",
			},
			[]string{"cluster", "status"},
		),
	}

	m.registry.MustRegister(m.phaseDuration, m.phaseTotal, m.workflowJobs, m.nodeStatus)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePhase records the duration and result of a phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.phaseDuration.WithLabelValues(m.cluster, phase).Observe(d.Seconds())
	m.phaseTotal.WithLabelValues(m.cluster, phase, result).Inc()
}

// SetWorkflowBuckets records the bucket counts of one workflow kind.
func (m *Metrics) SetWorkflowBuckets(kind string, counts map[string]int) {
	if m == nil {
		return
	}
	for bucket, n := range counts {
		m.workflowJobs.WithLabelValues(m.cluster, kind, bucket).Set(float64(n))
	}
}

// SetNodeStatus records a probe snapshot.
func (m *Metrics) SetNodeStatus(s probe.Snapshot) {
	if m == nil {
		return
	}
	counts := s.Counts()
	for _, st := range []probe.Status{probe.Offline, probe.OnlineUnknownOS, probe.OnlineTargetRuntime} {
		m.nodeStatus.WithLabelValues(m.cluster, st.String()).Set(float64(counts[st]))
	}
}

// WriteTextfile writes the metrics for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
