package imaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/poll"
)

const barWidth = 30

// AbortError ends the imaging phase. Outcome is Failed, Stalled, Timeout or
// Canceled; States is the last observed snapshot.
type AbortError struct {
	Outcome poll.Outcome
	Counts  Counts
	States  []tinkerbell.JobState
	Elapsed time.Duration
	Err     error
}

func (e *AbortError) Error() string {
	var reason string
	switch e.Outcome {
	case poll.Failed:
		reason = fmt.Sprintf("%d workflow(s) failed: %s", e.Counts.Failed, strings.Join(e.failedNames(), ", "))
	case poll.Stalled:
		reason = fmt.Sprintf("no progress for %s", e.Elapsed.Round(time.Second))
	case poll.Timeout:
		reason = fmt.Sprintf("timed out after %s", e.Elapsed.Round(time.Second))
	default:
		reason = e.Outcome.String()
	}
	msg := fmt.Sprintf("imaging aborted, %s (%d/%d completed)", reason, e.Counts.Completed, len(e.States))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

func (e *AbortError) failedNames() []string {
	var names []string
	for _, s := range e.States {
		if Classify(s.State) == Failed {
			names = append(names, s.Name)
		}
	}
	return names
}

// Poller watches a fixed set of workflows until they settle.
type Poller struct {
	Workflows provisioning.WorkflowAPI
	Interval  time.Duration
	Timeout   time.Duration
	MaxStall  int

	// OnPoll is called after every successful fetch.
	OnPoll func(c Counts, states []tinkerbell.JobState)
}

// NewPoller creates a poller using the run's workflow timeouts.
func NewPoller(ctx *provisioning.Context) *Poller {
	return &Poller{
		Workflows: ctx.Workflows,
		Interval:  ctx.Timeouts.WorkflowPollInterval,
		Timeout:   ctx.Timeouts.WorkflowTimeout,
		MaxStall:  ctx.Timeouts.MaxStallPolls(),
	}
}

// Wait polls until every named workflow completed. Each poll checks, in
// order: any failed, all completed, stalled, timed out. Anything but success
// returns an *AbortError.
func (p *Poller) Wait(ctx context.Context, names []string) (Counts, error) {
	expected := len(names)
	var (
		last   []tinkerbell.JobState
		counts Counts
	)

	res := poll.Until(ctx, poll.Options{
		Interval:     p.Interval,
		Timeout:      p.Timeout,
		MaxUnchanged: p.MaxStall,
	}, func(ctx context.Context, _ poll.Tick) (poll.Observation, error) {
		states, err := p.Workflows.ListStates(ctx, names)
		if err != nil {
			return poll.Observation{}, err
		}
		last, counts = states, Tally(states)
		if p.OnPoll != nil {
			p.OnPoll(counts, states)
		}
		return poll.Observation{
			Failed:   counts.Failed > 0,
			Done:     counts.Completed == expected,
			Progress: counts.progressKey(),
		}, nil
	})

	if res.OK() {
		return counts, nil
	}
	return counts, &AbortError{
		Outcome: res.Outcome,
		Counts:  counts,
		States:  snapshotOrNames(last, names),
		Elapsed: res.Elapsed,
		Err:     res.Err,
	}
}

// snapshotOrNames keeps the dump useful when no fetch ever succeeded.
func snapshotOrNames(states []tinkerbell.JobState, names []string) []tinkerbell.JobState {
	if len(states) > 0 {
		return states
	}
	out := make([]tinkerbell.JobState, len(names))
	for i, n := range names {
		out[i] = tinkerbell.JobState{Name: n}
	}
	return out
}
