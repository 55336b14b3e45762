package stepflow

import (
	"encoding/json"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Execution is one run of a workflow. It is the only thing that survives between invocations: the current step,
// the active wait and the state written by steps are all re-derived from it on every invocation.
type Execution struct {
	ID           string
	WorkflowName string
	Step         string
	Status       Status
	Payload      Values
	State        Values
	Wait         *WaitState
	Result       json.RawMessage

	// Err holds the cause of failure and CompensationErr the error returned by the compensator, if any.
	Err             string
	CompensationErr string
	Compensated     bool

	// Version is incremented by every successful store update and is used as a compare-and-swap guard.
	Version   int64
	DueAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Failure returns the terminal error of a failed execution, including any compensation error, and nil otherwise.
func (e *Execution) Failure() error {
	if e.Status != StatusFailed {
		return nil
	}

	meta := j.MKV{
		"execution_id": e.ID,
		"step":         e.Step,
		"cause":        e.Err,
	}

	if e.CompensationErr != "" {
		meta["compensation_error"] = e.CompensationErr
	}

	return errors.Wrap(ErrExecutionFailed, e.Err, meta)
}

// Clone returns a deep copy so that stores never share maps with callers.
func (e *Execution) Clone() *Execution {
	c := *e
	c.Payload = cloneValues(e.Payload)
	c.State = cloneValues(e.State)
	if e.Wait != nil {
		w := *e.Wait
		c.Wait = &w
	}

	if e.Result != nil {
		c.Result = append(json.RawMessage(nil), e.Result...)
	}

	return &c
}

func cloneValues(v Values) Values {
	if v == nil {
		return nil
	}

	c := make(Values, len(v))
	for k, val := range v {
		c[k] = append(json.RawMessage(nil), val...)
	}

	return c
}

// RequestContext identifies the principal on whose behalf an execution was started.
type RequestContext struct {
	PrincipalIdentifier PrincipalIdentifier `json:"principalIdentifier"`
}

type PrincipalIdentifier struct {
	UID string `json:"uid"`
	NS  string `json:"ns"`
}

// PayloadKeyRequestContext is the payload key under which Start stores the RequestContext.
const PayloadKeyRequestContext = "requestContext"
