package provision

import (
	"context"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow"
)

var (
	ErrStackFailed        = errors.New("stack operation failed", j.C("ERR_9d4b7e2c1a6f3085"))
	ErrMissingStackOutput = errors.New("stack output missing", j.C("ERR_0f6c3a9e4b2d7158"))
)

// CreateNetworkInfrastructure deploys the network infrastructure stack the gateway host runs in. The gateway itself
// has no stack resource type so it is created separately once the stack has completed.
func (s *Steps) CreateNetworkInfrastructure(ctx context.Context, r *stepflow.Run) (stepflow.Outcome, error) {
	rc, err := r.RequestContext()
	if err != nil {
		return stepflow.Outcome{}, err
	}

	ami, err := s.deps.Parameters.GetParameter(ctx, s.config.AMIParameter)
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "get gateway image parameter", j.KV("name", s.config.AMIParameter))
	}

	err = r.State.SetKey(KeyAMI, ami)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	err = r.State.SetKey(KeyRequestContext, rc)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	user, err := s.deps.Users.FindUser(ctx, rc.PrincipalIdentifier.UID)
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "find user", j.KV("uid", rc.PrincipalIdentifier.UID))
	}

	template, err := s.deps.Templates.GetTemplate(ctx, s.config.TemplateName)
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "get template", j.KV("template", s.config.TemplateName))
	}

	// The stack name is derived from the time of the invocation so that a retried start never collides with a
	// stack from an earlier attempt.
	stackName := s.config.StackNamePrefix + strconv.FormatInt(s.deps.Clock.Now().UnixMilli(), 10)

	stackID, err := s.deps.Deployments.Deploy(ctx, DeploymentRequest{
		Name:     stackName,
		Template: template,
		Parameters: []Parameter{
			{Key: "Namespace", Value: stackName},
			{Key: "AmiId", Value: ami},
		},
		Capabilities: []string{CapabilityIAM, CapabilityNamedIAM},
		Tags: []Tag{
			{Key: "Description", Value: "Created by " + user.Username + " for newly created AWS account"},
			{Key: "CreatedBy", Value: user.Username},
		},
	})
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "deploy stack", j.KV("stack_name", stackName))
	}

	err = r.State.SetKey(KeyStackID, stackID)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	err = r.State.SetKey(KeyUserID, user.Username)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	s.deps.Logger.Info(ctx, "network infrastructure stack submitted", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"stack_name":   stackName,
		"stack_id":     stackID,
	})

	return stepflow.WaitFor(s.config.StackPoll.IntervalSeconds).
		MaxAttempts(s.config.StackPoll.MaxAttempts).
		Until(StepCheckStackCompleted).
		ThenCall(StepCreateStorageGateway), nil
}

type stackPhase int

const (
	stackPending   stackPhase = 0
	stackFailed    stackPhase = 1
	stackCompleted stackPhase = 2
	stackDeleted   stackPhase = 3
)

// classifyStackStatus maps every provider status to a phase. Statuses that are not listed are still converging.
func classifyStackStatus(status string) stackPhase {
	switch status {
	case "CREATE_FAILED",
		"ROLLBACK_FAILED",
		"DELETE_FAILED",
		"UPDATE_ROLLBACK_FAILED",
		"ROLLBACK_COMPLETE",
		"UPDATE_ROLLBACK_COMPLETE":
		return stackFailed
	case "CREATE_COMPLETE", "UPDATE_COMPLETE":
		return stackCompleted
	case "DELETE_COMPLETE":
		return stackDeleted
	default:
		return stackPending
	}
}

// stackOutputs maps stack output names to the state keys they are stored under.
var stackOutputs = []struct {
	output string
	key    string
}{
	{output: "CacheVolume", key: KeyVolumeID},
	{output: "Region", key: KeyRegion},
	{output: "ElasticIP", key: KeyPublicIP},
	{output: "SecurityGroup", key: KeySecurityGroup},
	{output: "VpcPublicSubnet1", key: KeySubnetID},
	{output: "VPC", key: KeyVPCID},
	{output: "IAMRole", key: KeyIAMRole},
	{output: "EC2Instance", key: KeyInstanceID},
}

// CheckStackCompleted polls the stack. A stack deleted before it completed is treated as pending and is left to
// the attempt cap.
func (s *Steps) CheckStackCompleted(ctx context.Context, r *stepflow.Run) (bool, error) {
	stackID, err := r.State.String(KeyStackID)
	if err != nil {
		return false, err
	}

	stack, err := s.deps.Deployments.Describe(ctx, stackID)
	if err != nil {
		return false, errors.Wrap(err, "describe stack", j.KV("stack_id", stackID))
	}

	switch classifyStackStatus(stack.Status) {
	case stackFailed:
		return false, errors.Wrap(ErrStackFailed, "Stack operation failed with message: "+stack.StatusReason, j.MKV{
			"stack_id": stackID,
			"status":   stack.Status,
		})
	case stackCompleted:
		for _, o := range stackOutputs {
			v, ok := stack.Outputs[o.output]
			if !ok {
				return false, errors.Wrap(ErrMissingStackOutput, "", j.MKV{
					"stack_id": stackID,
					"output":   o.output,
				})
			}

			err := r.State.SetKey(o.key, v)
			if err != nil {
				return false, err
			}
		}

		s.deps.Logger.Info(ctx, "network infrastructure stack completed", stepflow.MKV{
			"execution_id": r.ExecutionID,
			"stack_id":     stackID,
			"attempt":      strconv.Itoa(r.Attempt),
		})

		return true, nil
	default:
		return false, nil
	}
}
