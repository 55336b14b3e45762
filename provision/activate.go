package provision

import (
	"context"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow"
)

func newGatewayName() (string, error) {
	uid, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}

	return uid.String(), nil
}

// CreateStorageGateway activates a gateway on the host provisioned by the network stack and waits for it to
// become usable.
func (s *Steps) CreateStorageGateway(ctx context.Context, r *stepflow.Run) (stepflow.Outcome, error) {
	err := s.activateGateway(ctx, r)
	if err != nil {
		return stepflow.Outcome{}, err
	}

	return stepflow.WaitFor(s.config.GatewayPoll.IntervalSeconds).
		MaxAttempts(s.config.GatewayPoll.MaxAttempts).
		Until(StepValidateGateway).
		ThenCall(StepAddCacheToGateway), nil
}

// activateGateway opens the activation port on the host to this process only for as long as it takes to obtain
// the activation key and activate the gateway.
func (s *Steps) activateGateway(ctx context.Context, r *stepflow.Run) (err error) {
	publicIP, err := r.State.String(KeyPublicIP)
	if err != nil {
		return err
	}

	region, err := r.State.String(KeyRegion)
	if err != nil {
		return err
	}

	userID, err := r.State.String(KeyUserID)
	if err != nil {
		return err
	}

	securityGroup, err := r.State.String(KeySecurityGroup)
	if err != nil {
		return err
	}

	selfIP, err := s.deps.Addresses.PublicIP(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve public address")
	}

	s.deps.Logger.Debug(ctx, "resolved public address", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"address":      selfIP,
	})

	rule := IngressRule{
		Protocol:    "tcp",
		Port:        s.config.ActivationPort,
		CIDR:        selfIP + "/32",
		Description: "Temporary access for gateway activation",
	}

	err = s.deps.Compute.AuthorizeIngress(ctx, securityGroup, rule)
	if err != nil {
		return errors.Wrap(err, "authorize ingress", j.MKV{
			"security_group": securityGroup,
			"cidr":           rule.CIDR,
		})
	}

	defer func() {
		// Revoke even if ctx has been cancelled, the rule must not outlive the activation.
		revokeErr := s.deps.Compute.RevokeIngress(context.WithoutCancel(ctx), securityGroup, rule)
		if revokeErr == nil {
			return
		}

		revokeErr = errors.Wrap(revokeErr, "revoke ingress", j.MKV{
			"security_group": securityGroup,
			"cidr":           rule.CIDR,
		})

		if err != nil {
			s.deps.Logger.Error(ctx, revokeErr)
			return
		}

		err = revokeErr
	}()

	key, err := s.deps.Activation.ActivationKey(ctx, publicIP, region, s.config.GatewayType)
	if err != nil {
		return errors.Wrap(err, "fetch activation key", j.MKV{
			"host":   publicIP,
			"region": region,
		})
	}

	name, err := s.deps.NewGatewayName()
	if err != nil {
		return err
	}

	arn, err := s.deps.Gateways.Activate(ctx, ActivationRequest{
		ActivationKey: key,
		Name:          name,
		Region:        region,
		Timezone:      s.config.GatewayTimezone,
		Type:          s.config.GatewayType,
		Tags:          []Tag{{Key: "CreatedBy", Value: userID}},
	})
	if err != nil {
		return errors.Wrap(err, "activate gateway", j.KV("gateway_name", name))
	}

	err = r.State.SetKey(KeyGatewayARN, arn)
	if err != nil {
		return err
	}

	s.deps.Logger.Info(ctx, "gateway activated", stepflow.MKV{
		"execution_id": r.ExecutionID,
		"gateway_arn":  arn,
	})

	return nil
}
