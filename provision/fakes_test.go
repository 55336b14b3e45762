package provision_test

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"

	"github.com/andrewwormald/stepflow/adapters/memstore"
	"github.com/andrewwormald/stepflow/provision"
	"github.com/andrewwormald/stepflow/provision/templates"
)

type calls struct {
	mu sync.Mutex
	m  map[string]int
}

func (c *calls) inc(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.m == nil {
		c.m = make(map[string]int)
	}

	c.m[name]++
	return c.m[name]
}

func (c *calls) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.m[name]
}

type fakeParameters struct {
	calls *calls
}

func (f *fakeParameters) GetParameter(ctx context.Context, name string) (string, error) {
	f.calls.inc("GetParameter")
	return "ami-0123456789", nil
}

type fakeDeployments struct {
	calls    *calls
	statuses []string
	reason   string
	outputs  map[string]string
	deployed provision.DeploymentRequest
	// describeErr is returned by every Describe call after the first describeErrAfter calls.
	describeErr      error
	describeErrAfter int
}

func (f *fakeDeployments) Deploy(ctx context.Context, req provision.DeploymentRequest) (string, error) {
	f.calls.inc("Deploy")
	f.deployed = req
	return "arn:stack/" + req.Name, nil
}

func (f *fakeDeployments) Describe(ctx context.Context, stackID string) (*provision.Stack, error) {
	n := f.calls.inc("DescribeStack")
	if f.describeErr != nil && n > f.describeErrAfter {
		return nil, f.describeErr
	}

	i := n - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}

	return &provision.Stack{
		ID:           stackID,
		Status:       f.statuses[i],
		StatusReason: f.reason,
		Outputs:      f.outputs,
	}, nil
}

func (f *fakeDeployments) Delete(ctx context.Context, stackID string) error {
	f.calls.inc("DeleteStack")
	return nil
}

type fakeGateways struct {
	calls *calls
	disks []provision.Disk
	// listErrs is the number of ListLocalDisks calls that fail before they succeed, negative fails forever.
	listErrs    int
	activateErr error
	cached      []string
}

func (f *fakeGateways) Activate(ctx context.Context, req provision.ActivationRequest) (string, error) {
	f.calls.inc("Activate")
	if f.activateErr != nil {
		return "", f.activateErr
	}

	return "arn:gateway/" + req.Name, nil
}

func (f *fakeGateways) ListLocalDisks(ctx context.Context, gatewayARN string) ([]provision.Disk, error) {
	n := f.calls.inc("ListLocalDisks")
	if f.listErrs < 0 || n <= f.listErrs {
		return nil, errors.New("gateway is not connected")
	}

	return f.disks, nil
}

func (f *fakeGateways) AddCache(ctx context.Context, gatewayARN string, diskIDs []string) error {
	f.calls.inc("AddCache")
	f.cached = diskIDs
	return nil
}

func (f *fakeGateways) Delete(ctx context.Context, gatewayARN string) error {
	f.calls.inc("DeleteGateway")
	return nil
}

type fakeCompute struct {
	calls     *calls
	volumes   []provision.Volume
	revokeErr error
	rules     []provision.IngressRule
	revoked   []provision.IngressRule
}

func (f *fakeCompute) AuthorizeIngress(ctx context.Context, groupID string, rule provision.IngressRule) error {
	f.calls.inc("AuthorizeIngress")
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeCompute) RevokeIngress(ctx context.Context, groupID string, rule provision.IngressRule) error {
	f.calls.inc("RevokeIngress")
	f.revoked = append(f.revoked, rule)
	return f.revokeErr
}

func (f *fakeCompute) DescribeVolumes(ctx context.Context, volumeIDs []string) ([]provision.Volume, error) {
	f.calls.inc("DescribeVolumes")
	return f.volumes, nil
}

type fakeAddresses struct{}

func (fakeAddresses) PublicIP(ctx context.Context) (string, error) {
	return "203.0.113.7", nil
}

type fakeActivation struct {
	calls *calls
	err   error
}

func (f *fakeActivation) ActivationKey(ctx context.Context, host, region, gatewayType string) (string, error) {
	f.calls.inc("ActivationKey")
	if f.err != nil {
		return "", f.err
	}

	return "ABCDE-12345-FGHIJ-67890-KLMNO", nil
}

type fakes struct {
	calls       *calls
	deployments *fakeDeployments
	gateways    *fakeGateways
	compute     *fakeCompute
	activation  *fakeActivation
	records     *memstore.GatewayStore
}

func completeOutputs() map[string]string {
	return map[string]string{
		"CacheVolume":      "vol-1",
		"Region":           "eu-west-1",
		"ElasticIP":        "198.51.100.10",
		"SecurityGroup":    "sg-1",
		"VpcPublicSubnet1": "subnet-1",
		"VPC":              "vpc-1",
		"IAMRole":          "arn:role/gateway",
		"EC2Instance":      "i-1",
	}
}

// newFakes returns collaborators for a provisioning run that succeeds on the first poll of every predicate.
func newFakes() *fakes {
	c := &calls{}
	return &fakes{
		calls: c,
		deployments: &fakeDeployments{
			calls:    c,
			statuses: []string{"CREATE_COMPLETE"},
			outputs:  completeOutputs(),
		},
		gateways: &fakeGateways{
			calls: c,
			disks: []provision.Disk{
				{ID: "disk-root", Node: "/dev/sda1", Status: "present", AllocationType: "USED", SizeInBytes: 80 << 30},
				{ID: "disk-cache", Node: "/dev/sdf", Status: "PRESENT", AllocationType: "AVAILABLE", SizeInBytes: 150 << 30},
			},
		},
		compute: &fakeCompute{
			calls: c,
			volumes: []provision.Volume{
				{ID: "vol-1", SizeGiB: 150, Attachments: []provision.VolumeAttachment{{Device: "/dev/sdf", InstanceID: "i-1"}}},
			},
		},
		activation: &fakeActivation{calls: c},
		records:    memstore.NewGatewayStore(),
	}
}

func (f *fakes) deps() provision.Deps {
	return provision.Deps{
		Parameters:  &fakeParameters{calls: f.calls},
		Deployments: f.deployments,
		Gateways:    f.gateways,
		Compute:     f.compute,
		Users:       provision.StaticUsers{"u-1": "alice"},
		Templates:   templates.New(),
		Addresses:   fakeAddresses{},
		Activation:  f.activation,
		Records:     f.records,
		NewGatewayName: func() (string, error) {
			return "gw-1", nil
		},
	}
}
