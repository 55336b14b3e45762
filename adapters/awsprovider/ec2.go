package awsprovider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/andrewwormald/stepflow/provision"
)

type ec2Client interface {
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, opts ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, in *ec2.RevokeSecurityGroupIngressInput, opts ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
	DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, opts ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

// Compute implements provision.ComputeService with EC2.
type Compute struct {
	client ec2Client
}

func NewCompute(client ec2Client) *Compute {
	return &Compute{client: client}
}

var _ provision.ComputeService = (*Compute)(nil)

func toIpPermissions(rule provision.IngressRule) []types.IpPermission {
	return []types.IpPermission{
		{
			FromPort:   aws.Int32(rule.Port),
			ToPort:     aws.Int32(rule.Port),
			IpProtocol: aws.String(rule.Protocol),
			IpRanges: []types.IpRange{
				{
					CidrIp:      aws.String(rule.CIDR),
					Description: aws.String(rule.Description),
				},
			},
		},
	}
}

func (c *Compute) AuthorizeIngress(ctx context.Context, groupID string, rule provision.IngressRule) error {
	_, err := c.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: toIpPermissions(rule),
	})
	return err
}

func (c *Compute) RevokeIngress(ctx context.Context, groupID string, rule provision.IngressRule) error {
	_, err := c.client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: toIpPermissions(rule),
	})
	return err
}

func (c *Compute) DescribeVolumes(ctx context.Context, volumeIDs []string) ([]provision.Volume, error) {
	out, err := c.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: volumeIDs,
	})
	if err != nil {
		return nil, err
	}

	var volumes []provision.Volume
	for _, v := range out.Volumes {
		vol := provision.Volume{
			ID:      aws.ToString(v.VolumeId),
			SizeGiB: int64(aws.ToInt32(v.Size)),
		}

		for _, a := range v.Attachments {
			vol.Attachments = append(vol.Attachments, provision.VolumeAttachment{
				Device:     aws.ToString(a.Device),
				InstanceID: aws.ToString(a.InstanceId),
			})
		}

		volumes = append(volumes, vol)
	}

	return volumes, nil
}
