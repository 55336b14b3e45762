package stepflow

import (
	"context"
	"strings"
)

// RoleScheduler hands out named roles to one holder at a time. The poller holds the "<workflow>-poller" role while
// it invokes due executions so that two hosts never invoke the same execution concurrently.
//
// Implementations should all be tested with adaptertest.RunRoleSchedulerTest.
type RoleScheduler interface {
	// Await blocks until the role is assigned to the caller and returns a child context of ctx that is cancelled
	// when the role is lost. The returned context.CancelFunc releases the role and is called after every polling
	// pass, including one that ended in an error once the error back off has passed.
	Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error)
}

// makeRole joins the inputs into a lower case role name without spaces.
func makeRole(inputs ...string) string {
	joined := strings.Join(inputs, "-")
	lowered := strings.ToLower(joined)
	return strings.ReplaceAll(lowered, " ", "_")
}

// PollerRole returns the role the poller of the named workflow must hold.
func PollerRole(workflowName string) string {
	return makeRole(workflowName, "poller")
}
