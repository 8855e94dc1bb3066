package benchmarks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// overrunFuture is the default time left after the power phase, in nanoseconds.
var overrunFuture = float64(915 * time.Second)

func TestEstimateRemaining(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		phase   string
		elapsed time.Duration
		history []Record
		want    time.Duration
	}{
		{
			name:    "first phase without history",
			phase:   "preflight",
			elapsed: time.Second,
			want:    1009 * time.Second,
		},
		{
			name:    "overrunning phase stretches the rest",
			phase:   "power",
			elapsed: 180 * time.Second,
			history: []Record{{Phase: "preflight", Duration: 2 * time.Second}, {Phase: "netboot-enable", Duration: 3 * time.Second}},
			// scale (2+3+180)/(2+3+90), future (420+120+45+150+180)
			want: time.Duration(overrunFuture * (185.0 / 95.0)),
		},
		{
			name:    "slow history",
			phase:   "imaging",
			history: []Record{{Phase: "power", Duration: 135 * time.Second}},
			want:    1372500 * time.Millisecond,
		},
		{
			name:  "unknown phase",
			phase: "cleanup",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := EstimateRemaining(tt.phase, tt.elapsed, tt.history)
			assert.InDelta(t, float64(tt.want), float64(got), float64(time.Millisecond))
		})
	}
}

func TestEstimateRemaining_SkipsFinishedPhases(t *testing.T) {
	t.Parallel()
	history := []Record{{Phase: "verify", Duration: 180 * time.Second}}

	got := EstimateRemainingWithScale("bootstrap", 0, history, 1.0)

	assert.Equal(t, 150*time.Second, got)
}

func TestPerformanceScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []Record
		want    float64
	}{
		{name: "no history", want: 1.0},
		{name: "slower", history: []Record{{Phase: "power", Duration: 135 * time.Second}}, want: 1.5},
		{name: "clamped low", history: []Record{{Phase: "power", Duration: 10 * time.Second}}, want: 0.6},
		{name: "clamped high", history: []Record{{Phase: "power", Duration: time.Hour}}, want: 3.0},
		{name: "unknown phases ignored", history: []Record{{Phase: "other", Duration: time.Hour}}, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, PerformanceScale("imaging", 0, tt.history), 0.001)
		})
	}
}

func TestTotalEstimate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1010*time.Second, TotalEstimate())
	assert.Len(t, DefaultTimings, len(PhaseOrder))
}
