// Package benchmarks provides timing estimates for provisioning phases.
package benchmarks

import "time"

// DefaultTimings are median phase durations of a small rack on gigabit
// links, in seconds.
var DefaultTimings = map[string]int{
	"preflight":      2,
	"netboot-enable": 3,
	"power":          90,
	"imaging":        420,
	"reboot":         120,
	"configure":      45,
	"bootstrap":      150,
	"verify":         180,
}

// PhaseOrder is the sequence of provisioning phases used for ETA calculation.
var PhaseOrder = []string{
	"preflight",
	"netboot-enable",
	"power",
	"imaging",
	"reboot",
	"configure",
	"bootstrap",
	"verify",
}

// Record is a finished phase and how long it took.
type Record struct {
	Phase    string
	Duration time.Duration
}

// EstimateRemaining calculates the estimated time remaining based on the
// current phase, its elapsed time and the phases already finished.
func EstimateRemaining(currentPhase string, phaseElapsed time.Duration, history []Record) time.Duration {
	return EstimateRemainingWithScale(currentPhase, phaseElapsed, history, PerformanceScale(currentPhase, phaseElapsed, history))
}

// EstimateRemainingWithScale calculates the ETA with a given performance scale.
func EstimateRemainingWithScale(currentPhase string, phaseElapsed time.Duration, history []Record, scale float64) time.Duration {
	currentIdx := -1
	for i, p := range PhaseOrder {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	var remaining time.Duration
	if expected, ok := expectedDuration(currentPhase); ok {
		expected = time.Duration(float64(expected) * scale)
		if expected > phaseElapsed {
			remaining += expected - phaseElapsed
		}
	}

	finished := make(map[string]bool, len(history))
	for _, rec := range history {
		finished[rec.Phase] = true
	}
	for _, phase := range PhaseOrder[currentIdx+1:] {
		if finished[phase] {
			continue
		}
		if expected, ok := expectedDuration(phase); ok {
			remaining += time.Duration(float64(expected) * scale)
		}
	}
	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected
// durations. Expected 2m and observed 3m gives 1.5. An overrunning current
// phase is folded in immediately so the ETA adapts.
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []Record) float64 {
	var expectedTotal, actualTotal time.Duration

	for _, rec := range history {
		expected, ok := expectedDuration(rec.Phase)
		if !ok {
			continue
		}
		expectedTotal += expected
		actualTotal += rec.Duration
	}

	if expected, ok := expectedDuration(currentPhase); ok && phaseElapsed > expected {
		expectedTotal += expected
		actualTotal += phaseElapsed
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the total estimated provisioning time.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, phase := range PhaseOrder {
		if d, ok := expectedDuration(phase); ok {
			total += d
		}
	}
	return total
}

func expectedDuration(phase string) (time.Duration, bool) {
	secs, ok := DefaultTimings[phase]
	if !ok {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
