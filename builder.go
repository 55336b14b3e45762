package stepflow

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/andrewwormald/stepflow/internal/errorcounter"
	internal_logger "github.com/andrewwormald/stepflow/internal/logger"
)

const (
	defaultPollingFrequency = 500 * time.Millisecond
	defaultErrBackOff       = 1 * time.Second
	defaultLagAlert         = 5 * time.Minute
	defaultBatchSize        = 100
	defaultInvocationLease  = 5 * time.Minute
)

// StepFunc is the body of a step. Returning a non-nil error fails the execution and runs the compensator.
type StepFunc func(ctx context.Context, r *Run) (Outcome, error)

// PredicateFunc is polled by the engine on behalf of a WaitDirective. It must be safe to call repeatedly and may
// only rely on what is in the State. Returning false retries while attempts remain and a non-nil error fails the
// execution.
type PredicateFunc func(ctx context.Context, r *Run) (bool, error)

// CompensateFunc undoes partially applied work once an execution has failed. It runs at most once per execution.
type CompensateFunc func(ctx context.Context, r *Run) error

func NewBuilder(name string) *Builder {
	return &Builder{
		workflow: &Workflow{
			name:             name,
			clock:            clock.RealClock{},
			steps:            make(map[string]StepFunc),
			predicates:       make(map[string]PredicateFunc),
			pollingFrequency: defaultPollingFrequency,
			errBackOff:       defaultErrBackOff,
			lagAlert:         defaultLagAlert,
			batchSize:        defaultBatchSize,
			invocationLease:  defaultInvocationLease,
			internalState:    make(map[string]ProcessState),
			invokeErrors:     errorcounter.New(),
		},
	}
}

type Builder struct {
	workflow *Workflow
}

// AddStep registers a step body. The first step added is the entrypoint of the workflow.
func (b *Builder) AddStep(name string, fn StepFunc) *Builder {
	b.mustBeUnique(name)

	if b.workflow.entrypoint == "" {
		b.workflow.entrypoint = name
	}

	b.workflow.steps[name] = fn
	b.workflow.stepOrder = append(b.workflow.stepOrder, name)
	return b
}

// AddPredicate registers a predicate that wait directives can refer to by name.
func (b *Builder) AddPredicate(name string, fn PredicateFunc) *Builder {
	b.mustBeUnique(name)

	b.workflow.predicates[name] = fn
	return b
}

// OnFail registers the compensator that is run when any step or predicate fails or a wait is exhausted.
func (b *Builder) OnFail(fn CompensateFunc) *Builder {
	b.workflow.onFail = fn
	return b
}

func (b *Builder) mustBeUnique(name string) {
	if name == "" {
		panic("step names cannot be empty")
	}

	_, isStep := b.workflow.steps[name]
	_, isPredicate := b.workflow.predicates[name]
	if isStep || isPredicate {
		panic(fmt.Sprintf("step names need to be unique: %q", name))
	}
}

func (b *Builder) Build(store ExecutionStore, opts ...BuildOption) *Workflow {
	if len(b.workflow.steps) == 0 {
		panic("workflow requires at least one step")
	}

	b.workflow.store = store

	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	if bo.clock != nil {
		b.workflow.clock = bo.clock
	}

	inner := bo.logger
	if inner == nil {
		inner = internal_logger.New(nil)
	}

	b.workflow.logger = &logger{
		debugMode: bo.debugMode,
		inner:     inner,
	}

	b.workflow.scheduler = bo.roleScheduler
	if bo.pollingFrequency > 0 {
		b.workflow.pollingFrequency = bo.pollingFrequency
	}

	if bo.errBackOff > 0 {
		b.workflow.errBackOff = bo.errBackOff
	}

	if bo.lagAlert > 0 {
		b.workflow.lagAlert = bo.lagAlert
	}

	if bo.invocationLease > 0 {
		b.workflow.invocationLease = bo.invocationLease
	}

	if bo.batchSize > 0 {
		b.workflow.batchSize = bo.batchSize
	}

	return b.workflow
}

type buildOptions struct {
	clock            clock.Clock
	logger           Logger
	debugMode        bool
	roleScheduler    RoleScheduler
	pollingFrequency time.Duration
	errBackOff       time.Duration
	lagAlert         time.Duration
	invocationLease  time.Duration
	batchSize        int
}

type BuildOption func(w *buildOptions)

func WithClock(c clock.Clock) BuildOption {
	return func(bo *buildOptions) {
		bo.clock = c
	}
}

func WithLogger(l Logger) BuildOption {
	return func(bo *buildOptions) {
		bo.logger = l
	}
}

func WithDebugMode() BuildOption {
	return func(bo *buildOptions) {
		bo.debugMode = true
	}
}

// WithRoleScheduler is required for Run. Hosts that only call Invoke do not need one.
func WithRoleScheduler(rs RoleScheduler) BuildOption {
	return func(bo *buildOptions) {
		bo.roleScheduler = rs
	}
}

// WithPollingFrequency defines how often the poller started by Run looks for due executions.
func WithPollingFrequency(d time.Duration) BuildOption {
	return func(bo *buildOptions) {
		bo.pollingFrequency = d
	}
}

// WithErrBackOff defines how long the poller waits after an error before trying again.
func WithErrBackOff(d time.Duration) BuildOption {
	return func(bo *buildOptions) {
		bo.errBackOff = d
	}
}

// WithLagAlert defines the invocation lag after which the lag alert metric is raised.
func WithLagAlert(d time.Duration) BuildOption {
	return func(bo *buildOptions) {
		bo.lagAlert = d
	}
}

// WithInvocationLease defines how long an invocation holds an execution. It must be longer than the slowest step,
// predicate or compensator, otherwise another invocation may take the execution over.
func WithInvocationLease(d time.Duration) BuildOption {
	return func(bo *buildOptions) {
		bo.invocationLease = d
	}
}

// WithBatchSize limits the number of due executions fetched per poll.
func WithBatchSize(n int) BuildOption {
	return func(bo *buildOptions) {
		bo.batchSize = n
	}
}
