package stepflow

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/andrewwormald/stepflow/internal/errorcounter"
	"github.com/andrewwormald/stepflow/internal/metrics"
)

type API interface {
	// Name returns the name of the implemented workflow.
	Name() string

	// Start creates a new execution at the workflow's entrypoint on behalf of the principal in rc. The payload is
	// stored with the execution and is readable, but not writable, by every step. The execution is due
	// immediately and the returned id is what hosts pass to Invoke.
	Start(ctx context.Context, rc RequestContext, payload map[string]any) (executionID string, err error)

	// Invoke advances the execution by exactly one step body or one predicate evaluation. It is the contract
	// between the engine and whatever hosts it (the built-in poller, a queue consumer, a cron trigger). Invoke is
	// safe to call for finished or not-yet-due executions, in which case it does nothing. The execution is claimed
	// before anything runs; when another invocation holds it ErrVersionConflict is returned.
	Invoke(ctx context.Context, executionID string) error

	// Lookup returns the stored execution.
	Lookup(ctx context.Context, executionID string) (*Execution, error)

	// Await is a blocking call that returns the execution once it has finished.
	Await(ctx context.Context, executionID string, opts ...AwaitOption) (*Execution, error)

	// Run starts the built-in poller which invokes due executions. Run only needs to be called once. Any
	// subsequent calls to run are safe and are noop.
	Run(ctx context.Context)

	// Stop tells the workflow to shut down gracefully.
	Stop()
}

type Workflow struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	clock  clock.Clock
	once   sync.Once
	logger *logger

	store     ExecutionStore
	scheduler RoleScheduler

	entrypoint string
	stepOrder  []string
	steps      map[string]StepFunc
	predicates map[string]PredicateFunc
	onFail     CompensateFunc

	pollingFrequency time.Duration
	errBackOff       time.Duration
	lagAlert         time.Duration
	batchSize        int
	invocationLease  time.Duration

	// invokeErrors counts consecutive poller invocation errors per execution.
	invokeErrors *errorcounter.Counter

	internalStateMu sync.Mutex
	// internalState holds the State of all expected background processes using their process names as the key.
	internalState map[string]ProcessState
	// launching tracks the number of goroutines initiated but not yet running so that Run only returns once all
	// of them are recorded in internalState.
	launching sync.WaitGroup
}

var _ API = (*Workflow)(nil)

func (w *Workflow) Name() string {
	return w.name
}

// Steps returns the registered step names in the order they were added.
func (w *Workflow) Steps() []string {
	return append([]string(nil), w.stepOrder...)
}

func (w *Workflow) Lookup(ctx context.Context, executionID string) (*Execution, error) {
	return w.store.Lookup(ctx, executionID)
}

func (w *Workflow) Run(ctx context.Context) {
	if w.scheduler == nil {
		panic("a RoleScheduler is required to run the poller: use WithRoleScheduler")
	}

	// Ensure that the background poller is only initialized once
	w.once.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		w.ctx = ctx
		w.cancel = cancel

		role := PollerRole(w.Name())
		processName := makeRole("poller")
		track(w, func() {
			w.run(role, processName, func(ctx context.Context) error {
				return pollDue(ctx, w, processName)
			}, w.errBackOff)
		})
	})

	w.launching.Wait()
}

// track starts a new goroutine to execute the provided function and ensures
// it is tracked using launching.
func track(w *Workflow, fn func()) {
	w.launching.Add(1)
	go fn()
}

// run is a standardise way of running blocking calls with a built-in retry mechanism.
func (w *Workflow) run(
	role string,
	processName string,
	process func(ctx context.Context) error,
	errBackOff time.Duration,
) {
	w.updateState(processName, ProcessStateIdle)
	defer w.updateState(processName, ProcessStateShutdown)
	// Mark that another go routine has launched and been added to internal state
	w.launching.Done()

	for {
		err := runOnce(
			w.ctx,
			w.Name(),
			role,
			processName,
			w.updateState,
			w.scheduler.Await,
			process,
			w.logger,
			w.clock,
			errBackOff,
		)
		if err != nil {
			w.logger.Debug(w.ctx, "shutting down process", MKV{
				"role":         role,
				"process_name": processName,
			})

			return
		}
	}
}

type (
	updateStateFn func(processName string, s ProcessState)
	awaitRoleFn   func(ctx context.Context, role string) (context.Context, context.CancelFunc, error)
)

func runOnce(
	ctx context.Context,
	workflowName string,
	role string,
	processName string,
	updateState updateStateFn,
	awaitRole awaitRoleFn,
	process func(ctx context.Context) error,
	logger Logger,
	clock clock.Clock,
	errBackOff time.Duration,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	updateState(processName, ProcessStateIdle)

	ctx, cancel, err := awaitRole(ctx, role)
	if errors.Is(err, context.Canceled) {
		// Exit cleanly if error returned is cancellation of context
		return err
	} else if err != nil {
		logger.Error(ctx, fmt.Errorf("run error [role=%s], [process=%s]: %v", role, processName, err))

		// Return nil to try again
		return nil
	}
	defer cancel()

	updateState(processName, ProcessStateRunning)

	err = process(ctx)
	if errors.Is(err, context.Canceled) {
		// Context can be cancelled by the role scheduler and thus return nil to attempt to gain the role again
		// and if the parent context was cancelled then that will exit safely.
		return nil
	} else if err != nil {
		logger.Error(ctx, fmt.Errorf("run error [role=%s], [process=%s]: %v", role, processName, err))
		metrics.ProcessErrors.WithLabelValues(workflowName, processName).Inc()

		timer := clock.NewTimer(errBackOff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C():
			// Return nil to try again
			return nil
		}
	}

	return nil
}

// pollDue invokes every due execution and then sleeps for the polling frequency. Invocation errors are logged and
// counted per execution; only listing errors end the pass.
func pollDue(ctx context.Context, w *Workflow, processName string) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		due, err := w.store.ListDue(ctx, w.Name(), w.clock.Now(), w.batchSize)
		if err != nil {
			return err
		}

		for _, e := range due {
			pushLagMetricAndAlerting(w.Name(), processName, e.DueAt, w.lagAlert, w.clock)

			err := w.Invoke(ctx, e.ID)
			if errors.Is(err, ErrVersionConflict) {
				// Another invocation won the race and already advanced the execution.
				continue
			} else if err != nil {
				// One failing execution must not hold up the rest of the batch.
				n := w.invokeErrors.Add(e.ID)
				metrics.ProcessErrors.WithLabelValues(w.Name(), processName).Inc()
				w.logger.Error(ctx, errors.Wrap(err, "invoke due execution", j.MKV{
					"execution_id":       e.ID,
					"consecutive_errors": strconv.Itoa(n),
				}))
				continue
			}

			w.invokeErrors.Clear(e.ID)
		}

		err = wait(ctx, w.clock, w.pollingFrequency)
		if err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, c clock.Clock, d time.Duration) error {
	if d == 0 {
		return nil
	}

	t := c.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// Stop cancels the context provided to all the background processes that the workflow launched and waits for all of
// them to shut down gracefully.
func (w *Workflow) Stop() {
	if w.cancel == nil {
		return
	}

	// Cancel the parent context of the workflow to gracefully shutdown.
	w.cancel()

	for {
		var runningProcesses int
		for _, state := range w.States() {
			switch state {
			case ProcessStateUnknown, ProcessStateShutdown:
				continue
			default:
				runningProcesses++
			}
		}

		// Once all processes have exited then return
		if runningProcesses == 0 {
			return
		}

		time.Sleep(time.Millisecond)
	}
}
