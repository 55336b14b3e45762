package provision_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/adapters/memstore"
	"github.com/andrewwormald/stepflow/provision"
)

var rc = stepflow.RequestContext{
	PrincipalIdentifier: stepflow.PrincipalIdentifier{UID: "u-1", NS: "internal"},
}

type harness struct {
	wf    *stepflow.Workflow
	store *memstore.Store
	clock *clocktesting.FakeClock
}

func newHarness(t *testing.T, f *fakes, config provision.Config) *harness {
	clock := clocktesting.NewFakeClock(time.Date(2023, time.April, 1, 10, 0, 0, 0, time.UTC))
	store := memstore.New()

	deps := f.deps()
	deps.Clock = clock

	wf := provision.NewWorkflow(deps, config, store, stepflow.WithClock(clock))
	t.Cleanup(wf.Stop)

	return &harness{wf: wf, store: store, clock: clock}
}

func (h *harness) drive(t *testing.T, id string) *stepflow.Execution {
	return stepflow.Drive(t, h.wf, h.clock, id)
}

func (h *harness) steps(id string) []string {
	var steps []string
	for _, s := range h.store.Snapshots(id) {
		if len(steps) > 0 && steps[len(steps)-1] == s.Step {
			continue
		}

		steps = append(steps, s.Step)
	}

	return steps
}

func start(t *testing.T, h *harness) string {
	id, err := h.wf.Start(context.Background(), rc, nil)
	jtest.RequireNil(t, err)
	return id
}

func TestProvisionSucceeds(t *testing.T) {
	f := newFakes()
	h := newHarness(t, f, provision.DefaultConfig())

	id := start(t, h)
	e := h.drive(t, id)

	require.Equal(t, stepflow.StatusSucceeded, e.Status)
	require.Equal(t, []string{
		provision.StepCreateNetworkInfrastructure,
		provision.StepCreateStorageGateway,
		provision.StepAddCacheToGateway,
	}, h.steps(id))

	require.Equal(t, []string{"disk-cache"}, f.gateways.cached)
	require.Equal(t, 1, f.calls.get("AuthorizeIngress"))
	require.Equal(t, 1, f.calls.get("RevokeIngress"))
	require.Equal(t, f.compute.rules, f.compute.revoked)
	require.Equal(t, provision.IngressRule{
		Protocol:    "tcp",
		Port:        80,
		CIDR:        "203.0.113.7/32",
		Description: "Temporary access for gateway activation",
	}, f.compute.rules[0])
	require.Equal(t, 0, f.calls.get("DeleteStack"))
	require.Equal(t, 0, f.calls.get("DeleteGateway"))

	req := f.deployments.deployed
	require.Equal(t, "initial-stack-1680343200000", req.Name)
	require.Equal(t, []provision.Parameter{
		{Key: "Namespace", Value: "initial-stack-1680343200000"},
		{Key: "AmiId", Value: "ami-0123456789"},
	}, req.Parameters)
	require.Equal(t, []string{provision.CapabilityIAM, provision.CapabilityNamedIAM}, req.Capabilities)
	require.Contains(t, req.Tags, provision.Tag{Key: "CreatedBy", Value: "alice"})
	require.NotEmpty(t, req.Template)

	var result provision.GatewayRecord
	err := json.Unmarshal(e.Result, &result)
	jtest.RequireNil(t, err)

	stored, err := f.records.Lookup(context.Background(), "arn:gateway/gw-1")
	jtest.RequireNil(t, err)
	require.Equal(t, "vpc-1", stored.VPCID)
	require.Equal(t, "subnet-1", stored.SubnetID)
	require.Equal(t, "i-1", stored.InstanceID)
	require.Equal(t, "198.51.100.10", stored.ElasticIP)
	require.Equal(t, "sg-1", stored.SecurityGroup)
	require.Equal(t, "arn:role/gateway", stored.IAMRole)
	require.Equal(t, []string{"vol-1"}, stored.VolumeIDs)
	require.Equal(t, "u-1", stored.CreatedBy)
	require.Equal(t, int64(0), stored.Rev)
	require.Equal(t, stored.ID, result.ID)
}

func TestStackCompletesOnThirdAttempt(t *testing.T) {
	f := newFakes()
	f.deployments.statuses = []string{"CREATE_IN_PROGRESS", "CREATE_IN_PROGRESS", "CREATE_COMPLETE"}
	h := newHarness(t, f, provision.DefaultConfig())

	id := start(t, h)

	// Run the entry step and the three stack checks.
	for i := 0; i < 4; i++ {
		e, err := h.wf.Lookup(context.Background(), id)
		jtest.RequireNil(t, err)
		h.clock.SetTime(e.DueAt)

		err = h.wf.Invoke(context.Background(), id)
		jtest.RequireNil(t, err)
	}

	e, err := h.wf.Lookup(context.Background(), id)
	jtest.RequireNil(t, err)
	require.Equal(t, stepflow.StatusRunning, e.Status)
	require.Equal(t, provision.StepCreateStorageGateway, e.Step)
	require.Equal(t, 3, f.calls.get("DescribeStack"))
	require.Empty(t, e.Err)

	require.JSONEq(t, `"vol-1"`, string(e.State[provision.KeyVolumeID]))
	require.JSONEq(t, `"eu-west-1"`, string(e.State[provision.KeyRegion]))

	e = h.drive(t, id)
	require.Equal(t, stepflow.StatusSucceeded, e.Status)
}

func TestStackRollbackFailsImmediately(t *testing.T) {
	f := newFakes()
	f.deployments.statuses = []string{"ROLLBACK_COMPLETE"}
	f.deployments.reason = "The following resource(s) failed to create: [EC2Instance]."
	h := newHarness(t, f, provision.DefaultConfig())

	id := start(t, h)
	e := h.drive(t, id)

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, "Stack operation failed with message: The following resource(s) failed to create")
	require.Equal(t, 1, e.Wait.Attempts)
	require.True(t, e.Compensated)
	require.Empty(t, e.CompensationErr)

	// One describe from the predicate and one from the compensator.
	require.Equal(t, 2, f.calls.get("DescribeStack"))
	require.Equal(t, 1, f.calls.get("DeleteStack"))
	require.Equal(t, 0, f.calls.get("DeleteGateway"))
	require.Equal(t, 0, f.calls.get("Activate"))
}

func TestGatewayValidationTimesOut(t *testing.T) {
	f := newFakes()
	f.gateways.listErrs = -1
	h := newHarness(t, f, provision.DefaultConfig())

	id := start(t, h)
	e := h.drive(t, id)

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, stepflow.ErrConvergenceTimeout.Error())
	require.Equal(t, provision.StepCreateStorageGateway, e.Step)
	require.Equal(t, 5, e.Wait.Attempts)
	require.Equal(t, 5, f.calls.get("ListLocalDisks"))
	require.Equal(t, 1, f.calls.get("DeleteStack"))
	require.Equal(t, 1, f.calls.get("DeleteGateway"))
	require.Equal(t, 0, f.calls.get("AddCache"))

	jtest.Require(t, stepflow.ErrExecutionFailed, e.Failure())
}

func TestGatewayDeletedWhenStackDescribeFails(t *testing.T) {
	f := newFakes()
	f.gateways.listErrs = -1
	// The predicate's describe succeeds, the compensator's fails.
	f.deployments.describeErrAfter = 1
	f.deployments.describeErr = errors.New("throttled by cloudformation")
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.True(t, e.Compensated)
	require.Contains(t, e.Err, stepflow.ErrConvergenceTimeout.Error())
	require.Contains(t, e.CompensationErr, "throttled by cloudformation")
	require.Equal(t, 2, f.calls.get("DescribeStack"))
	require.Equal(t, 0, f.calls.get("DeleteStack"))
	require.Equal(t, 1, f.calls.get("DeleteGateway"))

	jtest.Require(t, stepflow.ErrExecutionFailed, e.Failure())
}

func TestGatewayValidationRecovers(t *testing.T) {
	f := newFakes()
	f.gateways.listErrs = 2
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusSucceeded, e.Status)
	// Two failed checks, one passing check and the listing for the cache.
	require.Equal(t, 4, f.calls.get("ListLocalDisks"))
}

func TestStackNeverSettles(t *testing.T) {
	f := newFakes()
	f.deployments.statuses = []string{"CREATE_IN_PROGRESS"}
	config := provision.DefaultConfig()
	config.StackPoll = provision.Poll{IntervalSeconds: 20, MaxAttempts: 3}
	h := newHarness(t, f, config)

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, stepflow.ErrConvergenceTimeout.Error())
	// Three checks and the compensator's describe.
	require.Equal(t, 4, f.calls.get("DescribeStack"))
	require.Equal(t, 1, f.calls.get("DeleteStack"))
}

func TestStackDeletedWhilePolling(t *testing.T) {
	f := newFakes()
	f.deployments.statuses = []string{"DELETE_COMPLETE"}
	config := provision.DefaultConfig()
	config.StackPoll = provision.Poll{IntervalSeconds: 20, MaxAttempts: 2}
	h := newHarness(t, f, config)

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, stepflow.ErrConvergenceTimeout.Error())
	require.Equal(t, 0, f.calls.get("DeleteStack"))
}

func TestMissingStackOutput(t *testing.T) {
	f := newFakes()
	delete(f.deployments.outputs, "VPC")
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, provision.ErrMissingStackOutput.Error())
	require.Equal(t, 1, f.calls.get("DeleteStack"))
}

func TestIngressRevokedWhenActivationKeyFails(t *testing.T) {
	f := newFakes()
	f.activation.err = errors.New("connection refused")
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, "connection refused")
	require.Equal(t, 1, f.calls.get("AuthorizeIngress"))
	require.Equal(t, 1, f.calls.get("RevokeIngress"))
	require.Equal(t, 0, f.calls.get("Activate"))
	require.Equal(t, 1, f.calls.get("DeleteStack"))
	require.Equal(t, 0, f.calls.get("DeleteGateway"))
}

func TestIngressRevokedWhenActivationFails(t *testing.T) {
	f := newFakes()
	f.gateways.activateErr = errors.New("invalid activation key")
	f.compute.revokeErr = errors.New("throttled")
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, "invalid activation key")
	require.NotContains(t, e.Err, "throttled")
	require.Equal(t, 1, f.calls.get("RevokeIngress"))
}

func TestRevokeFailureAfterActivationFailsStep(t *testing.T) {
	f := newFakes()
	f.compute.revokeErr = errors.New("throttled")
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, "throttled")
	require.Equal(t, 1, f.calls.get("Activate"))
	require.Equal(t, 1, f.calls.get("RevokeIngress"))
	require.Equal(t, 1, f.calls.get("DeleteStack"))
	require.Equal(t, 1, f.calls.get("DeleteGateway"))
}

func TestNoMatchingCacheDisk(t *testing.T) {
	f := newFakes()
	f.compute.volumes[0].SizeGiB = 200
	h := newHarness(t, f, provision.DefaultConfig())

	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, provision.ErrNoMatchingDisk.Error())
	require.Equal(t, 0, f.calls.get("AddCache"))
	require.Equal(t, 1, f.calls.get("DeleteGateway"))
}

func TestExistingRecordDoesNotFailExecution(t *testing.T) {
	f := newFakes()
	_, err := f.records.CreateIfAbsent(context.Background(), "arn:gateway/gw-1", provision.GatewayRecord{
		ID:    "arn:gateway/gw-1",
		VPCID: "vpc-original",
	})
	jtest.RequireNil(t, err)

	h := newHarness(t, f, provision.DefaultConfig())
	e := h.drive(t, start(t, h))

	require.Equal(t, stepflow.StatusSucceeded, e.Status)

	stored, err := f.records.Lookup(context.Background(), "arn:gateway/gw-1")
	jtest.RequireNil(t, err)
	require.Equal(t, "vpc-original", stored.VPCID)
}

func TestUnknownUser(t *testing.T) {
	f := newFakes()
	h := newHarness(t, f, provision.DefaultConfig())

	id, err := h.wf.Start(context.Background(), stepflow.RequestContext{
		PrincipalIdentifier: stepflow.PrincipalIdentifier{UID: "u-404"},
	}, nil)
	jtest.RequireNil(t, err)

	e := h.drive(t, id)
	require.Equal(t, stepflow.StatusFailed, e.Status)
	require.Contains(t, e.Err, provision.ErrUserNotFound.Error())
	require.Equal(t, 0, f.calls.get("Deploy"))
	require.Equal(t, 0, f.calls.get("DeleteStack"))
}
