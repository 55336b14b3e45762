package stepflow

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	internal_logger "github.com/andrewwormald/stepflow/internal/logger"
)

func TestPollerRole(t *testing.T) {
	require.Equal(t, "provision-storage-gateway-poller", PollerRole("provision-storage-gateway"))
	require.Equal(t, "user_sign_up-poller", PollerRole("User Sign Up"))
}

func TestDebugLogsGatedByDebugMode(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := &logger{inner: internal_logger.New(buf)}

	l.Debug(context.Background(), "waiting on predicate", MKV{"step": "deploy"})
	require.Empty(t, buf.String())

	l.Info(context.Background(), "gateway activated", nil)
	require.Contains(t, buf.String(), "gateway activated")

	buf.Reset()
	l.debugMode = true
	l.Debug(context.Background(), "waiting on predicate", MKV{"step": "deploy"})
	require.Contains(t, buf.String(), "waiting on predicate")
}

type lookupFailingStore struct {
	ExecutionStore

	mu      sync.Mutex
	due     []Execution
	errs    map[string]error
	lookups map[string]int
}

func (s *lookupFailingStore) ListDue(context.Context, string, time.Time, int) ([]Execution, error) {
	return s.due, nil
}

func (s *lookupFailingStore) Lookup(_ context.Context, id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups[id]++
	if err := s.errs[id]; err != nil {
		return nil, err
	}

	return &Execution{ID: id, WorkflowName: "poll", Status: StatusSucceeded}, nil
}

func (s *lookupFailingStore) lookupCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookups[id]
}

func TestPollDueContinuesPastFailingExecution(t *testing.T) {
	errLookup := errors.New("lookup failed", j.C("ERR_lookup"))
	store := &lookupFailingStore{
		due:     []Execution{{ID: "e-1", WorkflowName: "poll"}, {ID: "e-2", WorkflowName: "poll"}},
		errs:    map[string]error{"e-1": errLookup},
		lookups: make(map[string]int),
	}

	w := NewBuilder("poll").
		AddStep("deploy", func(ctx context.Context, r *Run) (Outcome, error) {
			return Done(nil), nil
		}).
		Build(store, WithClock(clocktesting.NewFakeClock(time.Now())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- pollDue(ctx, w, "poller")
	}()

	// The pass ends waiting on the fake clock, so exactly one pass runs.
	require.Eventually(t, func() bool {
		return store.lookupCount("e-2") == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, 1, store.lookupCount("e-1"))
	require.Equal(t, 1, w.invokeErrors.Count("e-1"))
	require.Equal(t, 0, w.invokeErrors.Count("e-2"))

	cancel()
	jtest.Require(t, context.Canceled, <-done)
}
