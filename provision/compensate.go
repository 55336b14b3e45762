package provision

import (
	"context"
	stderrors "errors"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow"
)

// OnFail deletes whatever the execution managed to create. Each cleanup is attempted once, in order, and the
// errors of all of them are returned together.
func (s *Steps) OnFail(ctx context.Context, r *stepflow.Run) error {
	var errs []error

	stackID, ok, err := r.State.OptionalString(KeyStackID)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		err := s.deleteStack(ctx, r, stackID)
		if err != nil {
			errs = append(errs, err)
		}
	}

	arn, ok, err := r.State.OptionalString(KeyGatewayARN)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		err := s.deps.Gateways.Delete(ctx, arn)
		if err != nil {
			errs = append(errs, errors.Wrap(err, "delete gateway", j.KV("gateway_arn", arn)))
		} else {
			s.deps.Logger.Info(ctx, "deleted gateway", stepflow.MKV{
				"execution_id": r.ExecutionID,
				"gateway_arn":  arn,
			})
		}
	}

	return stderrors.Join(errs...)
}

func (s *Steps) deleteStack(ctx context.Context, r *stepflow.Run, stackID string) error {
	stack, err := s.deps.Deployments.Describe(ctx, stackID)
	if err != nil {
		return errors.Wrap(err, "describe stack", j.KV("stack_id", stackID))
	}

	s.deps.Logger.Info(ctx, "found stack status", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"stack_id":     stackID,
		"status":       stack.Status,
	})

	if classifyStackStatus(stack.Status) == stackDeleted {
		return nil
	}

	err = s.deps.Deployments.Delete(ctx, stackID)
	if err != nil {
		return errors.Wrap(err, "delete stack", j.KV("stack_id", stackID))
	}

	s.deps.Logger.Info(ctx, "deleted stack", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"stack_id":     stackID,
	})

	return nil
}
