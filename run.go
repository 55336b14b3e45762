package stepflow

// Run is the view of an execution given to steps, predicates and the compensator. Steps may only change the
// execution through State.
type Run struct {
	ExecutionID  string
	WorkflowName string
	Step         string
	// Attempt is the 1-based attempt number of the predicate being evaluated and zero for steps.
	Attempt int

	State   *State
	Payload Payload
}

func newRun(e *Execution, step string, attempt int) *Run {
	if e.State == nil {
		e.State = make(Values)
	}

	return &Run{
		ExecutionID:  e.ID,
		WorkflowName: e.WorkflowName,
		Step:         step,
		Attempt:      attempt,
		State:        newState(e.State),
		Payload:      Payload{values: e.Payload},
	}
}

// RequestContext decodes the request context the execution was started with.
func (r *Run) RequestContext() (RequestContext, error) {
	var rc RequestContext
	err := r.Payload.Object(PayloadKeyRequestContext, &rc)
	if err != nil {
		return RequestContext{}, err
	}

	return rc, nil
}
