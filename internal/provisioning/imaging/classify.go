package imaging

import (
	"fmt"
	"strings"

	"github.com/imamik/metalboot/internal/platform/tinkerbell"
)

// Bucket groups raw workflow states.
type Bucket string

// Buckets.
const (
	Pending   Bucket = "pending"
	Running   Bucket = "running"
	Completed Bucket = "completed"
	Failed    Bucket = "failed"
)

// Classify maps any engine state string to a bucket. Unknown and empty
// states are pending.
func Classify(state string) Bucket {
	s := strings.ToUpper(strings.TrimSpace(state))
	s = strings.TrimPrefix(s, "STATE_")
	switch s {
	case "SUCCESS", "SUCCEEDED", "COMPLETED":
		return Completed
	case "FAILED", "TIMEOUT", "ERROR":
		return Failed
	case "RUNNING":
		return Running
	default:
		return Pending
	}
}

// Counts is the number of jobs per bucket.
type Counts struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Tally classifies every state.
func Tally(states []tinkerbell.JobState) Counts {
	var c Counts
	for _, s := range states {
		switch Classify(s.State) {
		case Completed:
			c.Completed++
		case Failed:
			c.Failed++
		case Running:
			c.Running++
		default:
			c.Pending++
		}
	}
	return c
}

// Total returns the number of jobs counted.
func (c Counts) Total() int {
	return c.Pending + c.Running + c.Completed + c.Failed
}

// Map returns the counts keyed by bucket name, for metrics.
func (c Counts) Map() map[string]int {
	return map[string]int{
		string(Pending):   c.Pending,
		string(Running):   c.Running,
		string(Completed): c.Completed,
		string(Failed):    c.Failed,
	}
}

// progressKey is what stall detection compares between polls.
func (c Counts) progressKey() string {
	return fmt.Sprintf("%d/%d", c.Completed, c.Running)
}

// Bar renders a proportional progress bar followed by the counts, e.g.
// "[#####-----] 2/4 completed, 1 running, 1 pending, 0 failed".
func (c Counts) Bar(width, expected int) string {
	if width <= 0 {
		width = 20
	}
	filled := 0
	if expected > 0 {
		filled = min(c.Completed*width/expected, width)
	}
	return fmt.Sprintf("[%s%s] %d/%d completed, %d running, %d pending, %d failed",
		strings.Repeat("#", filled), strings.Repeat("-", width-filled),
		c.Completed, expected, c.Running, c.Pending, c.Failed)
}
