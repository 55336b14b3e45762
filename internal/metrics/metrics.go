package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	workflowName = "workflow_name"
	processName  = "process_name"
	step         = "step"
)

var (
	// InvocationLag is how long after its due time an execution was invoked
	InvocationLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stepflow_invocation_lag_seconds",
		Help: "Lag between now and the due time of the execution being invoked in seconds",
	}, []string{workflowName, processName})

	// InvocationLagAlert is whether the host is too far behind or not
	InvocationLagAlert = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stepflow_invocation_lag_alert",
		Help: "Whether or not the invocation lag crosses its alert threshold",
	}, []string{workflowName, processName})

	// ProcessStates reflects the states of all the processes for the instance that form part of the workflow
	ProcessStates = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stepflow_process_states",
		Help: "The current states of all the processes",
	}, []string{workflowName, processName})

	// ProcessErrors is the number of errors returned by the process loop
	ProcessErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_process_error_count",
		Help: "Number of errors invoking executions",
	}, []string{workflowName, processName})

	// StepLatency is how long a step body or predicate takes to run
	StepLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stepflow_step_latency_seconds",
		Help:    "Step and predicate latency in seconds",
		Buckets: []float64{0.01, 0.1, 1, 5, 10, 60, 300},
	}, []string{workflowName, step})

	// StepOutcomes counts step results by outcome (done, wait, error)
	StepOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_step_outcome_count",
		Help: "Number of step invocations by outcome",
	}, []string{workflowName, step, "outcome"})

	// PredicateChecks counts predicate results (true, false, error)
	PredicateChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_predicate_check_count",
		Help: "Number of predicate evaluations by result",
	}, []string{workflowName, step, "result"})

	// Compensations counts compensator runs by result
	Compensations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_compensation_count",
		Help: "Number of compensations run by result",
	}, []string{workflowName, "result"})

	// SkippedInvocations is the number of invocations that did not run any step
	SkippedInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_skipped_invocation_count",
		Help: "Number of invocations skipped",
	}, []string{workflowName, "reason"})
)

func init() {
	prometheus.MustRegister(
		InvocationLag,
		InvocationLagAlert,
		ProcessStates,
		ProcessErrors,
		StepLatency,
		StepOutcomes,
		PredicateChecks,
		Compensations,
		SkippedInvocations,
	)
}
