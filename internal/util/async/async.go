package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrAbandoned is reported for tasks still running when a bounded wait ends.
var ErrAbandoned = errors.New("task still running after bounded wait")

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of one task.
type Result struct {
	Name string
	Err  error
}

// RunParallel executes all tasks concurrently, waits for every one of them
// and returns the joined errors, each prefixed with its task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "node1", Func: wake(node1)},
//	    {Name: "node2", Func: wake(node2)},
//	}
//	if err := RunParallel(ctx, tasks); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task) error {
	var errs []error
	for _, res := range run(ctx, tasks) {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// RunBounded starts all tasks with a context that expires after wait and
// returns once every task has returned or wait plus a short grace period
// has passed. Tasks that ignore their context are reported with
// ErrAbandoned; their goroutines are left to finish on their own.
func RunBounded(ctx context.Context, wait time.Duration, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	bctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	results := make([]Result, len(tasks))
	for i, task := range tasks {
		results[i] = Result{Name: task.Name, Err: ErrAbandoned}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := task.Func(bctx)
			mu.Lock()
			results[i].Err = err
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(wait + wait/4)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Result, len(results))
	copy(out, results)
	return out
}

// ForEach calls fn for every item with at most limit calls in flight.
// The first error cancels the context passed to the remaining calls and is
// returned. A limit below one means no limit.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

func run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = Result{Name: task.Name, Err: task.Func(ctx)}
		}()
	}
	wg.Wait()
	return results
}
