package awsprovider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/storagegateway"
	"github.com/aws/aws-sdk-go-v2/service/storagegateway/types"

	"github.com/andrewwormald/stepflow/provision"
)

type storageGatewayClient interface {
	ActivateGateway(ctx context.Context, in *storagegateway.ActivateGatewayInput, opts ...func(*storagegateway.Options)) (*storagegateway.ActivateGatewayOutput, error)
	ListLocalDisks(ctx context.Context, in *storagegateway.ListLocalDisksInput, opts ...func(*storagegateway.Options)) (*storagegateway.ListLocalDisksOutput, error)
	AddCache(ctx context.Context, in *storagegateway.AddCacheInput, opts ...func(*storagegateway.Options)) (*storagegateway.AddCacheOutput, error)
	DeleteGateway(ctx context.Context, in *storagegateway.DeleteGatewayInput, opts ...func(*storagegateway.Options)) (*storagegateway.DeleteGatewayOutput, error)
}

// Gateways implements provision.GatewayService.
type Gateways struct {
	client storageGatewayClient
}

func NewGateways(client storageGatewayClient) *Gateways {
	return &Gateways{client: client}
}

var _ provision.GatewayService = (*Gateways)(nil)

func (g *Gateways) Activate(ctx context.Context, req provision.ActivationRequest) (string, error) {
	in := &storagegateway.ActivateGatewayInput{
		ActivationKey:   aws.String(req.ActivationKey),
		GatewayName:     aws.String(req.Name),
		GatewayRegion:   aws.String(req.Region),
		GatewayTimezone: aws.String(req.Timezone),
		GatewayType:     aws.String(req.Type),
	}

	for _, t := range req.Tags {
		in.Tags = append(in.Tags, types.Tag{
			Key:   aws.String(t.Key),
			Value: aws.String(t.Value),
		})
	}

	out, err := g.client.ActivateGateway(ctx, in)
	if err != nil {
		return "", err
	}

	return aws.ToString(out.GatewayARN), nil
}

func (g *Gateways) ListLocalDisks(ctx context.Context, gatewayARN string) ([]provision.Disk, error) {
	out, err := g.client.ListLocalDisks(ctx, &storagegateway.ListLocalDisksInput{
		GatewayARN: aws.String(gatewayARN),
	})
	if err != nil {
		return nil, err
	}

	var disks []provision.Disk
	for _, d := range out.Disks {
		disks = append(disks, provision.Disk{
			ID:             aws.ToString(d.DiskId),
			Node:           aws.ToString(d.DiskNode),
			Path:           aws.ToString(d.DiskPath),
			Status:         aws.ToString(d.DiskStatus),
			AllocationType: aws.ToString(d.DiskAllocationType),
			SizeInBytes:    d.DiskSizeInBytes,
		})
	}

	return disks, nil
}

func (g *Gateways) AddCache(ctx context.Context, gatewayARN string, diskIDs []string) error {
	_, err := g.client.AddCache(ctx, &storagegateway.AddCacheInput{
		GatewayARN: aws.String(gatewayARN),
		DiskIds:    diskIDs,
	})
	return err
}

func (g *Gateways) Delete(ctx context.Context, gatewayARN string) error {
	_, err := g.client.DeleteGateway(ctx, &storagegateway.DeleteGatewayInput{
		GatewayARN: aws.String(gatewayARN),
	})
	return err
}
