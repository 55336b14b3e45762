package provision

import (
	"context"
)

// ParameterSource resolves named configuration parameters such as the latest gateway machine image.
type ParameterSource interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Parameter struct {
	Key   string
	Value string
}

type Tag struct {
	Key   string
	Value string
}

type DeploymentRequest struct {
	Name         string
	Template     string
	Parameters   []Parameter
	Capabilities []string
	Tags         []Tag
}

const (
	CapabilityIAM      = "CAPABILITY_IAM"
	CapabilityNamedIAM = "CAPABILITY_NAMED_IAM"
)

// Stack is the provider's view of a deployment.
type Stack struct {
	ID           string
	Status       string
	StatusReason string
	Outputs      map[string]string
}

// DeploymentService deploys infrastructure-as-code stacks.
type DeploymentService interface {
	Deploy(ctx context.Context, req DeploymentRequest) (stackID string, err error)
	Describe(ctx context.Context, stackID string) (*Stack, error)
	Delete(ctx context.Context, stackID string) error
}

type ActivationRequest struct {
	ActivationKey string
	Name          string
	Region        string
	Timezone      string
	Type          string
	Tags          []Tag
}

// Disk is a local disk as reported by an activated gateway.
type Disk struct {
	ID             string
	Node           string
	Path           string
	Status         string
	AllocationType string
	SizeInBytes    int64
}

// GatewayService manages gateways once their host is running.
type GatewayService interface {
	Activate(ctx context.Context, req ActivationRequest) (gatewayARN string, err error)
	ListLocalDisks(ctx context.Context, gatewayARN string) ([]Disk, error)
	AddCache(ctx context.Context, gatewayARN string, diskIDs []string) error
	Delete(ctx context.Context, gatewayARN string) error
}

// IngressRule is a single protocol, single port, single address rule.
type IngressRule struct {
	Protocol    string
	Port        int32
	CIDR        string
	Description string
}

type VolumeAttachment struct {
	Device     string
	InstanceID string
}

type Volume struct {
	ID          string
	SizeGiB     int64
	Attachments []VolumeAttachment
}

// ComputeService is the subset of the compute and network API used while activating and caching.
type ComputeService interface {
	AuthorizeIngress(ctx context.Context, groupID string, rule IngressRule) error
	RevokeIngress(ctx context.Context, groupID string, rule IngressRule) error
	DescribeVolumes(ctx context.Context, volumeIDs []string) ([]Volume, error)
}

type User struct {
	UID      string
	Username string
}

type UserDirectory interface {
	FindUser(ctx context.Context, uid string) (*User, error)
}

type TemplateProvider interface {
	GetTemplate(ctx context.Context, name string) (string, error)
}

// AddressResolver discovers the public address that outbound requests from this process originate from.
type AddressResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// ActivationKeyFetcher requests an activation key from a freshly started gateway host.
type ActivationKeyFetcher interface {
	ActivationKey(ctx context.Context, host, region, gatewayType string) (string, error)
}
