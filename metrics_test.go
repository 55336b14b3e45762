package stepflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/internal/metrics"
)

func TestMetrics(t *testing.T) {
	const name = "metrics"

	b := stepflow.NewBuilder(name).
		AddStep("deploy", func(ctx context.Context, r *stepflow.Run) (stepflow.Outcome, error) {
			return stepflow.WaitFor(10).MaxAttempts(2).Until("ready").ThenCall("finish"), nil
		}).
		AddPredicate("ready", func(ctx context.Context, r *stepflow.Run) (bool, error) {
			return false, nil
		}).
		AddStep("finish", done).
		OnFail(func(ctx context.Context, r *stepflow.Run) error {
			return nil
		})

	tw := build(t, b)
	id := tw.start(t)

	// Not due yet.
	tw.clock.SetTime(t0.Add(-time.Minute))
	tw.invoke(t, id)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.SkippedInvocations.WithLabelValues(name, "execution not yet due")))

	tw.clock.SetTime(t0)
	e := stepflow.Drive(t, tw.wf, tw.clock, id)
	require.Equal(t, stepflow.StatusFailed, e.Status)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.StepOutcomes.WithLabelValues(name, "deploy", "wait")))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.PredicateChecks.WithLabelValues(name, "ready", "false")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Compensations.WithLabelValues(name, "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.Compensations.WithLabelValues(name, "error")))

	tw.invoke(t, id)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.SkippedInvocations.WithLabelValues(name, "execution finished")))
}
