package stepflow

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrExecutionNotFound  = errors.New("execution not found", j.C("ERR_5c1e0b2f9a7d4e61"))
	ErrVersionConflict    = errors.New("execution was updated concurrently", j.C("ERR_8b3f1a6c2d9e4077"))
	ErrKeyNotFound        = errors.New("state key not found", j.C("ERR_2a7d9c41e6b8f305"))
	ErrInvalidDirective   = errors.New("invalid wait directive", j.C("ERR_d41f6e2a9b3c7058"))
	ErrStepNotFound       = errors.New("step is not configured for workflow", j.C("ERR_6e0a3b9d7c1f2484"))
	ErrConvergenceTimeout = errors.New("predicate did not succeed within max attempts", j.C("ERR_a93c5e17b2d84f60"))
	ErrWorkflowMismatch   = errors.New("execution belongs to a different workflow", j.C("ERR_4f8b2e6d1a9c3705"))
	ErrExecutionFailed    = errors.New("execution failed", j.C("ERR_1b7e4c9a3f6d2850"))
)
