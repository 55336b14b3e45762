package stepflow

import (
	"context"
	"time"
)

// Await polls the store until the execution has finished. It does not invoke anything itself and relies on a host
// (such as Run) to advance the execution.
func (w *Workflow) Await(ctx context.Context, executionID string, opts ...AwaitOption) (*Execution, error) {
	var opt awaitOpts
	for _, option := range opts {
		option(&opt)
	}

	pollFrequency := w.pollingFrequency
	if opt.pollFrequency.Nanoseconds() != 0 {
		pollFrequency = opt.pollFrequency
	}

	for {
		e, err := w.store.Lookup(ctx, executionID)
		if err != nil {
			return nil, err
		}

		if e.Status.Finished() {
			return e, nil
		}

		err = wait(ctx, w.clock, pollFrequency)
		if err != nil {
			return nil, err
		}
	}
}

type awaitOpts struct {
	pollFrequency time.Duration
}

type AwaitOption func(o *awaitOpts)

func WithAwaitPollingFrequency(d time.Duration) AwaitOption {
	return func(o *awaitOpts) {
		o.pollFrequency = d
	}
}
