package poll

import (
	"context"
	"time"

	"github.com/imamik/metalboot/internal/util/retry"
)

// Outcome classifies how a poll loop ended.
type Outcome int

// Poll outcomes.
const (
	Success Outcome = iota
	Timeout
	Stalled
	Failed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Stalled:
		return "stalled"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Observation is what a single probe saw.
type Observation struct {
	// Done ends the loop with Success.
	Done bool
	// Failed ends the loop with Failed.
	Failed bool
	// Progress is an opaque key; the loop stalls when it stays the same for
	// Options.MaxUnchanged consecutive polls.
	Progress string
}

// Tick tells the probe where the loop is.
type Tick struct {
	Poll    int // 1-based poll number
	Elapsed time.Duration
	Timeout time.Duration
}

// Fraction returns Elapsed/Timeout, or 0 without a timeout.
func (t Tick) Fraction() float64 {
	if t.Timeout <= 0 {
		return 0
	}
	return float64(t.Elapsed) / float64(t.Timeout)
}

// Probe inspects external state once. Returned errors are transient and
// count as no progress unless marked with retry.Fatal.
type Probe func(ctx context.Context, tick Tick) (Observation, error)

// Options configures the loop.
type Options struct {
	Interval     time.Duration
	Timeout      time.Duration
	InitialDelay time.Duration

	// MaxUnchanged enables stall detection when positive.
	MaxUnchanged int
}

// Result describes how the loop ended.
type Result struct {
	Outcome Outcome
	Polls   int
	Elapsed time.Duration
	Last    Observation

	// Err is the last probe error, or the context error on Canceled.
	Err error
}

// OK reports whether the loop ended with Success.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Until probes after InitialDelay and then every Interval. Each poll checks,
// in order: failed, done, stalled, timed out. The last poll happens at the
// deadline so a slow final transition is still observed.
func Until(ctx context.Context, opts Options, probe Probe) Result {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	start := time.Now()
	var res Result

	if opts.InitialDelay > 0 {
		if err := sleep(ctx, opts.InitialDelay); err != nil {
			return Result{Outcome: Canceled, Elapsed: time.Since(start), Err: err}
		}
	}

	var (
		lastKey   string
		haveKey   bool
		unchanged int
	)

	for {
		res.Polls++
		tick := Tick{Poll: res.Polls, Elapsed: time.Since(start), Timeout: opts.Timeout}

		obs, err := probe(ctx, tick)
		res.Elapsed = time.Since(start)

		switch {
		case err != nil && retry.IsFatal(err):
			res.Outcome, res.Err = Failed, err
			return res
		case err != nil:
			res.Err = err
			if ctx.Err() != nil {
				res.Outcome, res.Err = Canceled, ctx.Err()
				return res
			}
			unchanged++
		default:
			res.Err = nil
			res.Last = obs
			if obs.Failed {
				res.Outcome = Failed
				return res
			}
			if obs.Done {
				res.Outcome = Success
				return res
			}
			if haveKey && obs.Progress == lastKey {
				unchanged++
			} else {
				unchanged = 0
			}
			lastKey, haveKey = obs.Progress, true
		}

		if opts.MaxUnchanged > 0 && unchanged >= opts.MaxUnchanged {
			res.Outcome = Stalled
			return res
		}
		if opts.Timeout > 0 && res.Elapsed >= opts.Timeout {
			res.Outcome = Timeout
			return res
		}

		wait := opts.Interval
		if opts.Timeout > 0 {
			if remaining := opts.Timeout - time.Since(start); remaining < wait {
				wait = max(remaining, 0)
			}
		}
		if err := sleep(ctx, wait); err != nil {
			res.Outcome, res.Err = Canceled, err
			res.Elapsed = time.Since(start)
			return res
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
