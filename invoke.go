package stepflow

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/internal/metrics"
)

func (w *Workflow) Start(ctx context.Context, rc RequestContext, payload map[string]any) (string, error) {
	values, err := EncodeValues(payload)
	if err != nil {
		return "", err
	}

	b, err := Marshal(&rc)
	if err != nil {
		return "", err
	}

	values[PayloadKeyRequestContext] = b

	uid, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}

	now := w.clock.Now()
	e := &Execution{
		ID:           uid.String(),
		WorkflowName: w.name,
		Step:         w.entrypoint,
		Status:       StatusRunning,
		Payload:      values,
		State:        make(Values),
		DueAt:        now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = w.store.Create(ctx, e)
	if err != nil {
		return "", err
	}

	w.logger.Debug(ctx, "execution started", MKV{
		"workflow_name": w.name,
		"execution_id":  e.ID,
		"step":          e.Step,
		"principal":     rc.PrincipalIdentifier.UID,
	})

	return e.ID, nil
}

func (w *Workflow) Invoke(ctx context.Context, executionID string) error {
	e, err := w.store.Lookup(ctx, executionID)
	if err != nil {
		return err
	}

	if e.WorkflowName != w.name {
		return errors.Wrap(ErrWorkflowMismatch, "", j.MKV{
			"execution_id":  e.ID,
			"workflow_name": e.WorkflowName,
			"expected":      w.name,
		})
	}

	if e.Status.Finished() {
		w.skip(ctx, e, "execution finished")
		return nil
	}

	if e.DueAt.After(w.clock.Now()) {
		w.skip(ctx, e, "execution not yet due")
		return nil
	}

	var next func(ctx context.Context, e *Execution) error
	switch {
	case e.Compensated:
		// An earlier invocation compensated but did not get to record the failure.
		next = w.markFailed
	case e.Status == StatusRunning:
		next = w.runStep
	case e.Status == StatusWaiting:
		next = w.checkPredicate
	default:
		return errors.New("execution has invalid status", j.MKV{
			"execution_id": e.ID,
			"status":       e.Status.String(),
		})
	}

	err = w.claim(ctx, e)
	if err != nil {
		return err
	}

	return next(ctx, e)
}

// claim moves DueAt out by the invocation lease before any step, predicate or compensator runs. Of two invocations
// that loaded the same version only one claim succeeds; the other gets ErrVersionConflict and does nothing. Should
// this invocation die, the execution becomes due again once the lease has passed.
func (w *Workflow) claim(ctx context.Context, e *Execution) error {
	now := w.clock.Now()
	e.DueAt = now.Add(w.invocationLease)

	err := w.update(ctx, e, now)
	if errors.Is(err, ErrVersionConflict) {
		w.skip(ctx, e, "claimed by another invocation")
		return err
	} else if err != nil {
		return err
	}

	return nil
}

func (w *Workflow) skip(ctx context.Context, e *Execution, reason string) {
	metrics.SkippedInvocations.WithLabelValues(w.name, reason).Inc()
	w.logger.Debug(ctx, "skipping invocation", MKV{
		"reason":       reason,
		"execution_id": e.ID,
		"status":       e.Status.String(),
		"step":         e.Step,
	})
}

func (w *Workflow) runStep(ctx context.Context, e *Execution) error {
	fn, ok := w.steps[e.Step]
	if !ok {
		return w.fail(ctx, e, errors.Wrap(ErrStepNotFound, "", j.KV("step", e.Step)))
	}

	t0 := w.clock.Now()
	out, err := fn(ctx, newRun(e, e.Step, 0))
	metrics.StepLatency.WithLabelValues(w.name, e.Step).Observe(w.clock.Since(t0).Seconds())
	if err != nil {
		metrics.StepOutcomes.WithLabelValues(w.name, e.Step, "error").Inc()
		return w.fail(ctx, e, err)
	}

	now := w.clock.Now()
	d, isWait := out.Directive()
	if !isWait {
		metrics.StepOutcomes.WithLabelValues(w.name, e.Step, "done").Inc()

		res := out.Result()
		result, err := Marshal(&res)
		if err != nil {
			return w.fail(ctx, e, errors.Wrap(err, "encode step result"))
		}

		e.Status = StatusSucceeded
		e.Result = result
		e.DueAt = time.Time{}
		return w.update(ctx, e, now)
	}

	metrics.StepOutcomes.WithLabelValues(w.name, e.Step, "wait").Inc()

	err = w.validateDirective(d)
	if err != nil {
		return w.fail(ctx, e, err)
	}

	e.Status = StatusWaiting
	e.Wait = &WaitState{Directive: d}
	e.DueAt = d.nextCheck(now)

	w.logger.Debug(ctx, "waiting on predicate", MKV{
		"execution_id": e.ID,
		"step":         e.Step,
		"predicate":    d.Predicate,
		"next":         d.Next,
		"max_attempts": strconv.Itoa(d.MaxAttempts),
		"due_at":       e.DueAt.Format(time.RFC3339),
	})

	return w.update(ctx, e, now)
}

func (w *Workflow) validateDirective(d WaitDirective) error {
	err := d.Validate()
	if err != nil {
		return err
	}

	if _, ok := w.predicates[d.Predicate]; !ok {
		return errors.Wrap(ErrStepNotFound, "unknown predicate", j.KV("predicate", d.Predicate))
	}

	if _, ok := w.steps[d.Next]; !ok {
		return errors.Wrap(ErrStepNotFound, "unknown next step", j.KV("next", d.Next))
	}

	return nil
}

// checkPredicate evaluates the active wait's predicate once. On success the execution moves to the next step but
// that step only runs on the following invocation.
func (w *Workflow) checkPredicate(ctx context.Context, e *Execution) error {
	if e.Wait == nil {
		return w.fail(ctx, e, errors.New("waiting execution has no directive", j.KV("execution_id", e.ID)))
	}

	d := e.Wait.Directive
	fn, ok := w.predicates[d.Predicate]
	if !ok {
		return w.fail(ctx, e, errors.Wrap(ErrStepNotFound, "unknown predicate", j.KV("predicate", d.Predicate)))
	}

	attempt := e.Wait.Attempts + 1

	t0 := w.clock.Now()
	ok, err := fn(ctx, newRun(e, d.Predicate, attempt))
	metrics.StepLatency.WithLabelValues(w.name, d.Predicate).Observe(w.clock.Since(t0).Seconds())
	if err != nil {
		metrics.PredicateChecks.WithLabelValues(w.name, d.Predicate, "error").Inc()
		e.Wait.Attempts = attempt
		return w.fail(ctx, e, err)
	}

	e.Wait.Attempts = attempt
	now := w.clock.Now()

	if ok {
		metrics.PredicateChecks.WithLabelValues(w.name, d.Predicate, "true").Inc()

		e.Step = d.Next
		e.Status = StatusRunning
		e.Wait = nil
		e.DueAt = now
		return w.update(ctx, e, now)
	}

	metrics.PredicateChecks.WithLabelValues(w.name, d.Predicate, "false").Inc()

	if e.Wait.Exhausted() {
		return w.fail(ctx, e, errors.Wrap(ErrConvergenceTimeout, "", j.MKV{
			"predicate":    d.Predicate,
			"attempts":     e.Wait.Attempts,
			"max_attempts": d.MaxAttempts,
		}))
	}

	e.DueAt = d.nextCheck(now)
	return w.update(ctx, e, now)
}

// fail runs the compensator, if one is configured and has not run yet, and marks the execution as failed. The
// state is kept as is so that the failure can be diagnosed.
func (w *Workflow) fail(ctx context.Context, e *Execution, cause error) error {
	w.logger.Error(ctx, errors.Wrap(cause, "execution failed", j.MKV{
		"workflow_name": w.name,
		"execution_id":  e.ID,
		"step":          e.Step,
	}))

	e.Err = cause.Error()

	if w.onFail != nil && !e.Compensated {
		// The flag is stored before the compensator runs: it runs at most once and only for the invocation holding
		// the execution.
		e.Compensated = true
		err := w.update(ctx, e, w.clock.Now())
		if err != nil {
			return err
		}

		err = w.onFail(ctx, newRun(e, e.Step, 0))
		if err != nil {
			metrics.Compensations.WithLabelValues(w.name, "error").Inc()
			e.CompensationErr = err.Error()
			w.logger.Error(ctx, errors.Wrap(err, "compensation failed", j.MKV{
				"workflow_name": w.name,
				"execution_id":  e.ID,
			}))
		} else {
			metrics.Compensations.WithLabelValues(w.name, "success").Inc()
		}
	}

	return w.markFailed(ctx, e)
}

func (w *Workflow) markFailed(ctx context.Context, e *Execution) error {
	e.Status = StatusFailed
	e.DueAt = time.Time{}
	return w.update(ctx, e, w.clock.Now())
}

func (w *Workflow) update(ctx context.Context, e *Execution, now time.Time) error {
	e.UpdatedAt = now
	return w.store.Update(ctx, e)
}
