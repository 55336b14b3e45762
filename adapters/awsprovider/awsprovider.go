// Package awsprovider implements the provisioning collaborators on top of the AWS SDK.
package awsprovider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/storagegateway"
	"github.com/luno/jettison/errors"
)

// Config selects the region and, optionally, static credentials. Without static credentials the default
// credential chain is used.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func LoadConfig(ctx context.Context, c Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}

	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID,
			c.SecretAccessKey,
			c.SessionToken,
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "load aws config")
	}

	return cfg, nil
}

// Provider bundles every collaborator backed by the same account and region.
type Provider struct {
	Parameters  *Parameters
	Deployments *Deployments
	Gateways    *Gateways
	Compute     *Compute
	Records     *RecordStore
}

func New(cfg aws.Config, recordTable string) *Provider {
	return &Provider{
		Parameters:  NewParameters(ssm.NewFromConfig(cfg)),
		Deployments: NewDeployments(cloudformation.NewFromConfig(cfg)),
		Gateways:    NewGateways(storagegateway.NewFromConfig(cfg)),
		Compute:     NewCompute(ec2.NewFromConfig(cfg)),
		Records:     NewRecordStore(dynamodb.NewFromConfig(cfg), recordTable),
	}
}
