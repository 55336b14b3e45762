package awsprovider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/provision"
)

type cloudFormationClient interface {
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, opts ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, opts ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Deployments implements provision.DeploymentService with stacks.
type Deployments struct {
	client cloudFormationClient
}

func NewDeployments(client cloudFormationClient) *Deployments {
	return &Deployments{client: client}
}

var _ provision.DeploymentService = (*Deployments)(nil)

func (d *Deployments) Deploy(ctx context.Context, req provision.DeploymentRequest) (string, error) {
	in := &cloudformation.CreateStackInput{
		StackName:    aws.String(req.Name),
		TemplateBody: aws.String(req.Template),
	}

	for _, p := range req.Parameters {
		in.Parameters = append(in.Parameters, types.Parameter{
			ParameterKey:   aws.String(p.Key),
			ParameterValue: aws.String(p.Value),
		})
	}

	for _, c := range req.Capabilities {
		in.Capabilities = append(in.Capabilities, types.Capability(c))
	}

	for _, t := range req.Tags {
		in.Tags = append(in.Tags, types.Tag{
			Key:   aws.String(t.Key),
			Value: aws.String(t.Value),
		})
	}

	out, err := d.client.CreateStack(ctx, in)
	if err != nil {
		return "", err
	}

	return aws.ToString(out.StackId), nil
}

func (d *Deployments) Describe(ctx context.Context, stackID string) (*provision.Stack, error) {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackID),
	})
	if err != nil {
		return nil, err
	}

	if len(out.Stacks) == 0 {
		return nil, errors.New("stack not found", j.KV("stack_id", stackID))
	}

	return toStack(out.Stacks[0]), nil
}

func (d *Deployments) Delete(ctx context.Context, stackID string) error {
	_, err := d.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackID),
	})
	return err
}

func toStack(s types.Stack) *provision.Stack {
	outputs := make(map[string]string, len(s.Outputs))
	for _, o := range s.Outputs {
		outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}

	return &provision.Stack{
		ID:           aws.ToString(s.StackId),
		Status:       string(s.StackStatus),
		StatusReason: aws.ToString(s.StackStatusReason),
		Outputs:      outputs,
	}
}
