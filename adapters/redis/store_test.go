package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/luno/jettison/jtest"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/adapters/adaptertest"
	"github.com/andrewwormald/stepflow/adapters/redis"
	"github.com/andrewwormald/stepflow/provision"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	mr := miniredis.RunT(t)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})

	return mr, client
}

func TestExecutionStore(t *testing.T) {
	adaptertest.RunExecutionStoreTest(t, func() stepflow.ExecutionStore {
		_, client := newClient(t)
		return redis.New(client)
	})
}

func TestGatewayStore(t *testing.T) {
	adaptertest.RunGatewayRecordStoreTest(t, func() provision.RecordStore {
		_, client := newClient(t)
		return redis.NewGatewayStore(client)
	})
}

func TestRoleScheduler(t *testing.T) {
	adaptertest.RunRoleSchedulerTest(t, func(t *testing.T, instances int) []stepflow.RoleScheduler {
		_, client := newClient(t)

		var rs []stepflow.RoleScheduler
		for i := 0; i < instances; i++ {
			rs = append(rs, redis.NewRoleScheduler(client, redis.WithRolePollInterval(10*time.Millisecond)))
		}

		return rs
	})
}

func TestRoleReleasedOnCancel(t *testing.T) {
	mr, client := newClient(t)
	rs := redis.NewRoleScheduler(client)

	_, cancel, err := rs.Await(context.Background(), "provision-poller")
	jtest.RequireNil(t, err)
	require.True(t, mr.Exists("stepflow:role:provision-poller"))

	cancel()

	require.Eventually(t, func() bool {
		return !mr.Exists("stepflow:role:provision-poller")
	}, time.Second, 10*time.Millisecond)
}

func TestLostRoleCancelsContext(t *testing.T) {
	mr, client := newClient(t)
	rs := redis.NewRoleScheduler(client, redis.WithRoleTTL(300*time.Millisecond))

	ctx, cancel, err := rs.Await(context.Background(), "provision-poller")
	jtest.RequireNil(t, err)
	t.Cleanup(cancel)

	// Another holder takes over the role after it expired.
	mr.Set("stepflow:role:provision-poller", "someone-else")

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after losing the role")
	}

	v, err := mr.Get("stepflow:role:provision-poller")
	jtest.RequireNil(t, err)
	require.Equal(t, "someone-else", v)
}

func TestDueIndexIgnoresFinished(t *testing.T) {
	mr, client := newClient(t)
	store := redis.New(client)
	ctx := context.Background()
	now := time.Date(2023, time.April, 1, 10, 0, 0, 0, time.UTC)

	e := &stepflow.Execution{ID: "exec-1", WorkflowName: "provision", Status: stepflow.StatusRunning, DueAt: now}
	err := store.Create(ctx, e)
	jtest.RequireNil(t, err)

	members, err := mr.ZMembers("stepflow:due:provision")
	jtest.RequireNil(t, err)
	require.Equal(t, []string{"exec-1"}, members)

	e.Status = stepflow.StatusSucceeded
	e.DueAt = time.Time{}
	err = store.Update(ctx, e)
	jtest.RequireNil(t, err)

	due, err := store.ListDue(ctx, "provision", now, 10)
	jtest.RequireNil(t, err)
	require.Empty(t, due)
}
