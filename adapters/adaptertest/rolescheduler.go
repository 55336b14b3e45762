package adaptertest

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow"
)

type contextKey string

// RunRoleSchedulerTest runs the behaviour every RoleScheduler must have. factory returns the requested number of
// schedulers that contend for the same roles, as separate hosts would.
func RunRoleSchedulerTest(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler) {
	tests := []func(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler){
		testReturnedContext,
		testLocking,
		testReleasing,
		testIndependentRoles,
	}

	for _, test := range tests {
		test(t, factory)
	}
}

func testReturnedContext(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler) {
	t.Run("Returned context is a child of the provided context", func(t *testing.T) {
		rs := factory(t, 1)[0]
		ctx := context.WithValue(context.Background(), contextKey("parent"), "context")

		ctx2, cancel, err := rs.Await(ctx, "provision-poller")
		jtest.RequireNil(t, err)
		t.Cleanup(cancel)

		require.Equal(t, "context", ctx2.Value(contextKey("parent")))
	})
}

func testLocking(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler) {
	t.Run("Role is held until released", func(t *testing.T) {
		instances := factory(t, 2)

		_, cancel, err := instances[0].Await(context.Background(), "provision-poller")
		jtest.RequireNil(t, err)
		t.Cleanup(cancel)

		ctx, stop := context.WithCancel(context.Background())
		t.Cleanup(stop)

		acquired := make(chan context.CancelFunc, 1)
		go func() {
			_, cancel, err := instances[1].Await(ctx, "provision-poller")
			if err != nil {
				return
			}

			acquired <- cancel
		}()

		select {
		case <-time.After(time.Second):
		case cancel := <-acquired:
			cancel()
			t.Fatal("role acquired while held by another instance")
		}
	})
}

func testReleasing(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler) {
	t.Run("Role is released when the holder cancels", func(t *testing.T) {
		instances := factory(t, 2)

		_, cancel, err := instances[0].Await(context.Background(), "provision-poller")
		jtest.RequireNil(t, err)

		acquired := make(chan context.CancelFunc, 1)
		go func() {
			_, cancel, err := instances[1].Await(context.Background(), "provision-poller")
			if err != nil {
				return
			}

			acquired <- cancel
		}()

		cancel()

		select {
		case <-time.After(5 * time.Second):
			t.Fatal("role not released after cancellation")
		case cancel := <-acquired:
			cancel()
		}
	})
}

func testIndependentRoles(t *testing.T, factory func(t *testing.T, instances int) []stepflow.RoleScheduler) {
	t.Run("Different roles do not block each other", func(t *testing.T) {
		instances := factory(t, 2)

		_, cancel, err := instances[0].Await(context.Background(), "provision-poller")
		jtest.RequireNil(t, err)
		t.Cleanup(cancel)

		_, cancel2, err := instances[1].Await(context.Background(), "decommission-poller")
		jtest.RequireNil(t, err)
		t.Cleanup(cancel2)
	})
}
