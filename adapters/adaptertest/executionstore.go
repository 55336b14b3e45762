package adaptertest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow"
)

// RunExecutionStoreTest runs the behaviour every ExecutionStore must have. factory must return an empty store.
func RunExecutionStoreTest(t *testing.T, factory func() stepflow.ExecutionStore) {
	tests := []func(t *testing.T, store stepflow.ExecutionStore){
		testCreateAndLookup,
		testLookupNotFound,
		testUpdate,
		testVersionConflict,
		testListDue,
		testList,
	}

	for _, test := range tests {
		test(t, factory())
	}
}

var baseTime = time.Date(2023, time.April, 1, 10, 0, 0, 0, time.UTC)

func newExecution(id, workflowName string, status stepflow.Status, dueAt time.Time) *stepflow.Execution {
	return &stepflow.Execution{
		ID:           id,
		WorkflowName: workflowName,
		Step:         "createNetworkInfrastructure",
		Status:       status,
		Payload: stepflow.Values{
			"requestContext": json.RawMessage(`{"principalIdentifier":{"uid":"u-1","ns":"internal"}}`),
		},
		State:     stepflow.Values{},
		DueAt:     dueAt,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func requireExecutionEqual(t *testing.T, expected, actual *stepflow.Execution) {
	t.Helper()

	require.Equal(t, expected.ID, actual.ID)
	require.Equal(t, expected.WorkflowName, actual.WorkflowName)
	require.Equal(t, expected.Step, actual.Step)
	require.Equal(t, expected.Status, actual.Status)
	require.Equal(t, expected.Wait, actual.Wait)
	require.Equal(t, expected.Err, actual.Err)
	require.Equal(t, expected.CompensationErr, actual.CompensationErr)
	require.Equal(t, expected.Compensated, actual.Compensated)
	require.Equal(t, expected.Version, actual.Version)
	require.True(t, expected.DueAt.Equal(actual.DueAt), "due at %v != %v", expected.DueAt, actual.DueAt)
	require.True(t, expected.CreatedAt.Equal(actual.CreatedAt))
	require.True(t, expected.UpdatedAt.Equal(actual.UpdatedAt))

	require.Equal(t, len(expected.Payload), len(actual.Payload))
	for k, v := range expected.Payload {
		require.JSONEq(t, string(v), string(actual.Payload[k]))
	}

	require.Equal(t, len(expected.State), len(actual.State))
	for k, v := range expected.State {
		require.JSONEq(t, string(v), string(actual.State[k]))
	}

	if expected.Result == nil {
		require.Nil(t, actual.Result)
	} else {
		require.JSONEq(t, string(expected.Result), string(actual.Result))
	}
}

func testCreateAndLookup(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("Create and Lookup", func(t *testing.T) {
		ctx := context.Background()
		e := newExecution("exec-1", "provision", stepflow.StatusRunning, baseTime)

		err := store.Create(ctx, e)
		jtest.RequireNil(t, err)
		require.Equal(t, int64(1), e.Version)

		actual, err := store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)
		requireExecutionEqual(t, e, actual)
	})
}

func testLookupNotFound(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("Lookup unknown execution", func(t *testing.T) {
		_, err := store.Lookup(context.Background(), "unknown")
		jtest.Require(t, stepflow.ErrExecutionNotFound, err)
	})
}

func testUpdate(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("Update", func(t *testing.T) {
		ctx := context.Background()
		e := newExecution("exec-1", "provision", stepflow.StatusRunning, baseTime)

		err := store.Create(ctx, e)
		jtest.RequireNil(t, err)

		e.Status = stepflow.StatusWaiting
		e.State["STATE_STACK_ID"] = json.RawMessage(`"arn:stack/1"`)
		e.Wait = &stepflow.WaitState{
			Directive: stepflow.WaitDirective{
				IntervalSeconds: 20,
				MaxAttempts:     60,
				Predicate:       "checkStackCompleted",
				Next:            "createStorageGateway",
			},
			Attempts: 2,
		}
		e.DueAt = baseTime.Add(20 * time.Second)
		e.UpdatedAt = baseTime.Add(time.Second)

		err = store.Update(ctx, e)
		jtest.RequireNil(t, err)
		require.Equal(t, int64(2), e.Version)

		actual, err := store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)
		requireExecutionEqual(t, e, actual)

		e.Status = stepflow.StatusFailed
		e.Err = "stack operation failed"
		e.CompensationErr = "delete stack: throttled"
		e.Compensated = true
		e.Result = json.RawMessage(`{"id":"arn:gateway/1"}`)
		e.DueAt = time.Time{}

		err = store.Update(ctx, e)
		jtest.RequireNil(t, err)
		require.Equal(t, int64(3), e.Version)

		actual, err = store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)
		requireExecutionEqual(t, e, actual)
	})
}

func testVersionConflict(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("Update with stale version", func(t *testing.T) {
		ctx := context.Background()
		e := newExecution("exec-1", "provision", stepflow.StatusRunning, baseTime)

		err := store.Create(ctx, e)
		jtest.RequireNil(t, err)

		first, err := store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)

		second, err := store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)

		first.Step = "checkStackCompleted"
		err = store.Update(ctx, first)
		jtest.RequireNil(t, err)

		second.Step = "createStorageGateway"
		err = store.Update(ctx, second)
		jtest.Require(t, stepflow.ErrVersionConflict, err)
		require.Equal(t, int64(1), second.Version)

		actual, err := store.Lookup(ctx, "exec-1")
		jtest.RequireNil(t, err)
		require.Equal(t, "checkStackCompleted", actual.Step)
		require.Equal(t, int64(2), actual.Version)
	})
}

func testListDue(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("ListDue", func(t *testing.T) {
		ctx := context.Background()

		executions := []*stepflow.Execution{
			newExecution("due-later", "provision", stepflow.StatusWaiting, baseTime.Add(-time.Second)),
			newExecution("due-first", "provision", stepflow.StatusRunning, baseTime.Add(-time.Minute)),
			newExecution("not-due", "provision", stepflow.StatusWaiting, baseTime.Add(time.Minute)),
			newExecution("due-now", "provision", stepflow.StatusWaiting, baseTime),
			newExecution("finished", "provision", stepflow.StatusSucceeded, time.Time{}),
			newExecution("failed", "provision", stepflow.StatusFailed, time.Time{}),
			newExecution("other-workflow", "decommission", stepflow.StatusRunning, baseTime.Add(-time.Hour)),
		}

		for _, e := range executions {
			err := store.Create(ctx, e)
			jtest.RequireNil(t, err)
		}

		due, err := store.ListDue(ctx, "provision", baseTime, 10)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"due-first", "due-later", "due-now"}, ids(due))

		due, err = store.ListDue(ctx, "provision", baseTime, 2)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"due-first", "due-later"}, ids(due))

		due, err = store.ListDue(ctx, "provision", baseTime.Add(-2*time.Minute), 10)
		jtest.RequireNil(t, err)
		require.Empty(t, due)
	})
}

func testList(t *testing.T, store stepflow.ExecutionStore) {
	t.Run("List", func(t *testing.T) {
		ctx := context.Background()

		executions := []*stepflow.Execution{
			newExecution("a", "provision", stepflow.StatusRunning, baseTime),
			newExecution("b", "provision", stepflow.StatusFailed, time.Time{}),
			newExecution("c", "decommission", stepflow.StatusRunning, baseTime),
			newExecution("d", "provision", stepflow.StatusRunning, baseTime),
			newExecution("e", "provision", stepflow.StatusSucceeded, time.Time{}),
		}

		executions[3].Step = "addCacheToGateway"

		for _, e := range executions {
			err := store.Create(ctx, e)
			jtest.RequireNil(t, err)
		}

		ls, err := store.List(ctx, "provision", 0, 10)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"a", "b", "d", "e"}, ids(ls))

		ls, err = store.List(ctx, "provision", 1, 2)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"b", "d"}, ids(ls))

		ls, err = store.List(ctx, "provision", 10, 2)
		jtest.RequireNil(t, err)
		require.Empty(t, ls)

		ls, err = store.List(ctx, "provision", 0, 10, stepflow.FilterByStatus(stepflow.StatusRunning))
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"a", "d"}, ids(ls))

		ls, err = store.List(ctx, "provision", 0, 10,
			stepflow.FilterByStatus(stepflow.StatusRunning),
			stepflow.FilterByStep("addCacheToGateway"),
		)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"d"}, ids(ls))

		ls, err = store.List(ctx, "", 0, 10)
		jtest.RequireNil(t, err)
		require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(ls))
	})
}

func ids(ls []stepflow.Execution) []string {
	var res []string
	for _, e := range ls {
		res = append(res, e.ID)
	}

	return res
}
