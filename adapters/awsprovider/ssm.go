package awsprovider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/provision"
)

type ssmClient interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameters implements provision.ParameterSource with the parameter store.
type Parameters struct {
	client ssmClient
}

func NewParameters(client ssmClient) *Parameters {
	return &Parameters{client: client}
}

var _ provision.ParameterSource = (*Parameters)(nil)

func (p *Parameters) GetParameter(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", err
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("parameter has no value", j.KV("name", name))
	}

	return *out.Parameter.Value, nil
}
