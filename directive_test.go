package stepflow_test

import (
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow"
)

func TestDirectiveBuilder(t *testing.T) {
	out := stepflow.WaitFor(20).MaxAttempts(60).Until("checkStackCompleted").ThenCall("createStorageGateway")
	require.True(t, out.IsWait())

	d, ok := out.Directive()
	require.True(t, ok)
	require.Equal(t, stepflow.WaitDirective{
		IntervalSeconds: 20,
		MaxAttempts:     60,
		Predicate:       "checkStackCompleted",
		Next:            "createStorageGateway",
	}, d)
	require.Equal(t, 20*time.Second, d.Interval())
	jtest.RequireNil(t, d.Validate())
}

func TestDirectiveDefaultsToOneAttempt(t *testing.T) {
	d, _ := stepflow.WaitFor(5).Until("validateGateway").ThenCall("addCacheToGateway").Directive()
	require.Equal(t, 1, d.MaxAttempts)
}

func TestDoneOutcome(t *testing.T) {
	out := stepflow.Done("sgw-1")
	require.False(t, out.IsWait())
	require.Equal(t, "sgw-1", out.Result())

	_, ok := out.Directive()
	require.False(t, ok)
}

func TestDirectiveValidate(t *testing.T) {
	testCases := []struct {
		name      string
		directive stepflow.WaitDirective
		err       error
	}{
		{
			name:      "Valid",
			directive: stepflow.WaitDirective{IntervalSeconds: 5, MaxAttempts: 5, Predicate: "p", Next: "n"},
		},
		{
			name:      "Negative interval",
			directive: stepflow.WaitDirective{IntervalSeconds: -1, MaxAttempts: 5, Predicate: "p", Next: "n"},
			err:       stepflow.ErrInvalidDirective,
		},
		{
			name:      "Zero attempts",
			directive: stepflow.WaitDirective{IntervalSeconds: 5, Predicate: "p", Next: "n"},
			err:       stepflow.ErrInvalidDirective,
		},
		{
			name:      "Missing predicate",
			directive: stepflow.WaitDirective{IntervalSeconds: 5, MaxAttempts: 5, Next: "n"},
			err:       stepflow.ErrInvalidDirective,
		},
		{
			name:      "Missing next",
			directive: stepflow.WaitDirective{IntervalSeconds: 5, MaxAttempts: 5, Predicate: "p"},
			err:       stepflow.ErrInvalidDirective,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jtest.Require(t, tc.err, tc.directive.Validate())
		})
	}
}

func TestWaitStateExhausted(t *testing.T) {
	ws := stepflow.WaitState{Directive: stepflow.WaitDirective{MaxAttempts: 3}}
	require.False(t, ws.Exhausted())

	ws.Attempts = 2
	require.False(t, ws.Exhausted())

	ws.Attempts = 3
	require.True(t, ws.Exhausted())
}
