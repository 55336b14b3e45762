package stepflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

// maxDriveInvocations bounds Drive so that a workflow that never finishes fails the test instead of hanging it.
const maxDriveInvocations = 1000

// Drive invokes the execution until it finishes, moving clock forward to every due time. It stands in for the
// poller in tests that need deterministic time. The workflow must have been built WithClock(clock).
func Drive(t testing.TB, api API, clock *clocktesting.FakeClock, executionID string) *Execution {
	if t == nil {
		panic("Drive can only be used for testing")
	}

	ctx := context.Background()
	for i := 0; i < maxDriveInvocations; i++ {
		e, err := api.Lookup(ctx, executionID)
		require.NoError(t, err)

		if e.Status.Finished() {
			return e
		}

		if e.DueAt.After(clock.Now()) {
			clock.SetTime(e.DueAt)
		}

		err = api.Invoke(ctx, executionID)
		require.NoError(t, err)
	}

	t.Fatalf("execution %s did not finish after %d invocations", executionID, maxDriveInvocations)
	return nil
}

// RequireResult asserts that the execution succeeded with expected as its result.
func RequireResult[T any](t testing.TB, e *Execution, expected T) {
	if t == nil {
		panic("RequireResult can only be used for testing")
	}

	require.Equal(t, StatusSucceeded, e.Status, "execution failed: %s", e.Err)

	var actual T
	err := Unmarshal(e.Result, &actual)
	require.NoError(t, err)

	// Round trip expected as well so that custom encodings compare like for like.
	encoded, err := Marshal(&expected)
	require.NoError(t, err)

	var normalisedExpected T
	err = Unmarshal(encoded, &normalisedExpected)
	require.NoError(t, err)

	require.Equal(t, normalisedExpected, actual)
}

// NewTestingRun should be used when unit testing a step, predicate or compensator on its own. State and payload
// values are JSON encoded the same way the engine stores them.
func NewTestingRun(t testing.TB, step string, payload map[string]any, state map[string]any) *Run {
	if t == nil {
		panic("Cannot use NewTestingRun without testing.TB parameter")
	}

	p, err := EncodeValues(payload)
	require.NoError(t, err)

	s, err := EncodeValues(state)
	require.NoError(t, err)

	e := &Execution{
		ID:           "testing",
		WorkflowName: "testing",
		Step:         step,
		Payload:      p,
		State:        s,
	}

	return newRun(e, step, 0)
}
