// Package memrolescheduler provides a RoleScheduler for a single process. Every Workflow sharing an instance
// contends for the same roles.
package memrolescheduler

import (
	"context"
	"sync"

	"github.com/andrewwormald/stepflow"
)

type RoleScheduler struct {
	mu    sync.Mutex
	roles map[string]chan struct{}
}

var _ stepflow.RoleScheduler = (*RoleScheduler)(nil)

func (r *RoleScheduler) Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error) {
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	// Lock the main mutex whilst checking and potentially creating the role's token
	r.mu.Lock()
	token, ok := r.roles[role]
	if !ok {
		token = make(chan struct{}, 1)
		r.roles[role] = token
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case token <- struct{}{}:
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		<-token
	}()

	return ctx, cancel, nil
}

func New() *RoleScheduler {
	return &RoleScheduler{
		roles: make(map[string]chan struct{}),
	}
}
