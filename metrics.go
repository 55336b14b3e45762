package stepflow

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/andrewwormald/stepflow/internal/metrics"
)

// pushLagMetricAndAlerting will push metrics around how late an execution is being invoked compared to its due
// time. If the lag is greater than the threshold then the processName for the workflow specified (workflowName)
// will be set to 1 which signals that this process for this workflow is in an alerting state.
//
// See internal/metrics/metrics.go for the prometheus metrics configured.
func pushLagMetricAndAlerting(workflowName string, processName string, dueAt time.Time, lagThreshold time.Duration, clock clock.Clock) {
	t0 := clock.Now()
	lag := t0.Sub(dueAt)
	if lag < 0 {
		lag = 0
	}

	metrics.InvocationLag.WithLabelValues(workflowName, processName).Set(lag.Seconds())

	if lagThreshold > 0 {
		alert := 0.0
		if lag > lagThreshold {
			alert = 1
		}

		metrics.InvocationLagAlert.WithLabelValues(workflowName, processName).Set(alert)
	}
}
