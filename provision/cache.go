package provision

import (
	"context"
	"strconv"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"golang.org/x/sync/errgroup"

	"github.com/andrewwormald/stepflow"
)

var (
	ErrNoMatchingDisk     = errors.New("no local disk matches the cache volume", j.C("ERR_5a1f8c3e7d9b2064"))
	ErrVolumeNotAttached  = errors.New("cache volume is not attached", j.C("ERR_b83d6e1a4c7f9025"))
	errVolumeNotDescribed = errors.New("cache volume not found", j.C("ERR_2c7a9e5d1f3b8046"))
)

const gibibyte = int64(1) << 30

// ValidateGateway reports whether the gateway accepts requests yet. The gateway is unusable until listing its
// disks succeeds so every error is treated as not ready.
func (s *Steps) ValidateGateway(ctx context.Context, r *stepflow.Run) (bool, error) {
	arn, err := r.State.String(KeyGatewayARN)
	if err != nil {
		return false, err
	}

	_, err = s.deps.Gateways.ListLocalDisks(ctx, arn)
	if err != nil {
		s.deps.Logger.Error(ctx, errors.Wrap(err, "gateway validation failed", j.MKV{
			"gateway_arn": arn,
			"attempt":     r.Attempt,
		}))
		return false, nil
	}

	return true, nil
}

// AddCacheToGateway adds the volume created by the network stack to the gateway as cache and records the
// provisioned gateway.
func (s *Steps) AddCacheToGateway(ctx context.Context, r *stepflow.Run) (stepflow.Outcome, error) {
	arn, err := r.State.String(KeyGatewayARN)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	volumeID, err := r.State.String(KeyVolumeID)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	var (
		volumes []Volume
		disks   []Disk
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		volumes, err = s.deps.Compute.DescribeVolumes(egCtx, []string{volumeID})
		if err != nil {
			return errors.Wrap(err, "describe volume", j.KV("volume_id", volumeID))
		}

		return nil
	})
	eg.Go(func() error {
		var err error
		disks, err = s.deps.Gateways.ListLocalDisks(egCtx, arn)
		if err != nil {
			return errors.Wrap(err, "list local disks", j.KV("gateway_arn", arn))
		}

		return nil
	})

	err = eg.Wait()
	if err != nil {
		return stepflow.Outcome{}, err
	}

	node, size, err := cacheVolumeShape(volumeID, volumes)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	disk, err := selectCacheDisk(disks, node, size)
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "", j.MKV{
			"gateway_arn": arn,
			"volume_id":   volumeID,
			"node":        node,
			"size":        strconv.FormatInt(size, 10),
		})
	}

	err = s.deps.Gateways.AddCache(ctx, arn, []string{disk.ID})
	if err != nil {
		return stepflow.Outcome{}, errors.Wrap(err, "add cache", j.MKV{
			"gateway_arn": arn,
			"disk_id":     disk.ID,
		})
	}

	s.deps.Logger.Info(ctx, "cache added to gateway", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"gateway_arn":  arn,
		"disk_id":      disk.ID,
	})

	record, err := s.newRecord(r, arn, volumeID)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	// The gateway exists at this point whether or not the record is written so a persistence failure must not
	// fail the execution and trigger compensation.
	_, err = s.deps.Records.CreateIfAbsent(ctx, arn, record)
	if err != nil {
		s.deps.Logger.Error(ctx, errors.Wrap(err, "save gateway record", j.KV("gateway_arn", arn)))
	}

	return stepflow.Done(record), nil
}

// cacheVolumeShape returns the device path and size in bytes of the cache volume as seen by the gateway host.
func cacheVolumeShape(volumeID string, volumes []Volume) (string, int64, error) {
	if len(volumes) == 0 {
		return "", 0, errors.Wrap(errVolumeNotDescribed, "", j.KV("volume_id", volumeID))
	}

	v := volumes[0]
	if len(v.Attachments) == 0 {
		return "", 0, errors.Wrap(ErrVolumeNotAttached, "", j.KV("volume_id", volumeID))
	}

	return v.Attachments[0].Device, v.SizeGiB * gibibyte, nil
}

// selectCacheDisk returns the first disk, in listing order, that is present, unallocated and matches the node and
// size of the cache volume.
func selectCacheDisk(disks []Disk, node string, size int64) (*Disk, error) {
	for i := range disks {
		d := disks[i]
		if !strings.EqualFold(d.Status, "present") {
			continue
		}

		if d.Node != node {
			continue
		}

		if !strings.EqualFold(d.AllocationType, "available") {
			continue
		}

		if d.SizeInBytes != size {
			continue
		}

		return &d, nil
	}

	return nil, ErrNoMatchingDisk
}

func (s *Steps) newRecord(r *stepflow.Run, arn, volumeID string) (GatewayRecord, error) {
	rc, err := r.RequestContext()
	if err != nil {
		return GatewayRecord{}, err
	}

	vpcID, err := r.State.String(KeyVPCID)
	if err != nil {
		return GatewayRecord{}, err
	}

	subnetID, err := r.State.String(KeySubnetID)
	if err != nil {
		return GatewayRecord{}, err
	}

	instanceID, err := r.State.String(KeyInstanceID)
	if err != nil {
		return GatewayRecord{}, err
	}

	publicIP, err := r.State.String(KeyPublicIP)
	if err != nil {
		return GatewayRecord{}, err
	}

	securityGroup, err := r.State.String(KeySecurityGroup)
	if err != nil {
		return GatewayRecord{}, err
	}

	iamRole, err := r.State.String(KeyIAMRole)
	if err != nil {
		return GatewayRecord{}, err
	}

	now := s.deps.Clock.Now()
	return GatewayRecord{
		ID:            arn,
		Rev:           0,
		VPCID:         vpcID,
		SubnetID:      subnetID,
		InstanceID:    instanceID,
		ElasticIP:     publicIP,
		SecurityGroup: securityGroup,
		IAMRole:       iamRole,
		VolumeIDs:     []string{volumeID},
		CreatedBy:     rc.PrincipalIdentifier.UID,
		UpdatedBy:     rc.PrincipalIdentifier.UID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
