// Package provision implements the workflow that provisions a file gateway in a newly created account: it deploys
// the network infrastructure stack, activates a gateway against the provisioned host, attaches the cache disk and
// records the result.
package provision

import (
	"k8s.io/utils/clock"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/internal/logger"
)

const WorkflowName = "provision-storage-gateway"

// Step names. They are stored in executions and wait directives so they must not change between releases.
const (
	StepCreateNetworkInfrastructure = "createNetworkInfrastructure"
	StepCheckStackCompleted         = "checkStackCompleted"
	StepCreateStorageGateway        = "createStorageGateway"
	StepValidateGateway             = "validateGateway"
	StepAddCacheToGateway           = "addCacheToGateway"
)

// State keys written by the steps.
const (
	KeyAMI            = "STORAGE_GATEWAY_AMI"
	KeyRequestContext = "STATE_REQUEST_CONTEXT"
	KeyStackID        = "STATE_STACK_ID"
	KeyUserID         = "USER_ID"
	KeyVolumeID       = "VOLUME_ID"
	KeyRegion         = "REGION_ID"
	KeyPublicIP       = "PUBLIC_IP"
	KeySecurityGroup  = "SECURITY_GROUP"
	KeySubnetID       = "SUBNET_ID"
	KeyVPCID          = "VPC_ID"
	KeyIAMRole        = "IAM_ROLE"
	KeyInstanceID     = "EC2_INSTANCE_ID"
	KeyGatewayARN     = "GATEWAY_ARN"
)

// Poll describes how often and how many times a predicate is polled.
type Poll struct {
	IntervalSeconds int
	MaxAttempts     int
}

type Config struct {
	AMIParameter    string
	TemplateName    string
	StackNamePrefix string
	ActivationPort  int32
	GatewayType     string
	GatewayTimezone string
	StackPoll       Poll
	GatewayPoll     Poll
}

func DefaultConfig() Config {
	return Config{
		AMIParameter:    "/aws/service/storagegateway/ami/FILE_S3/latest",
		TemplateName:    "storage-gateway-network-infra",
		StackNamePrefix: "initial-stack-",
		ActivationPort:  80,
		GatewayType:     "FILE_S3",
		GatewayTimezone: "GMT",
		StackPoll:       Poll{IntervalSeconds: 20, MaxAttempts: 60},
		GatewayPoll:     Poll{IntervalSeconds: 5, MaxAttempts: 5},
	}
}

// Deps are the collaborators used by the steps. They are resolved once when the workflow is built.
type Deps struct {
	Parameters  ParameterSource
	Deployments DeploymentService
	Gateways    GatewayService
	Compute     ComputeService
	Users       UserDirectory
	Templates   TemplateProvider
	Addresses   AddressResolver
	Activation  ActivationKeyFetcher
	Records     RecordStore
	Logger      stepflow.Logger
	Clock       clock.Clock

	// NewGatewayName defaults to a time based UUID.
	NewGatewayName func() (string, error)
}

type Steps struct {
	deps   Deps
	config Config
}

func NewSteps(deps Deps, config Config) *Steps {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}

	if deps.Logger == nil {
		deps.Logger = logger.New(nil)
	}

	if deps.NewGatewayName == nil {
		deps.NewGatewayName = newGatewayName
	}

	return &Steps{deps: deps, config: config}
}

// Register adds the provisioning steps to b. The entrypoint is createNetworkInfrastructure.
func (s *Steps) Register(b *stepflow.Builder) *stepflow.Builder {
	return b.
		AddStep(StepCreateNetworkInfrastructure, s.CreateNetworkInfrastructure).
		AddPredicate(StepCheckStackCompleted, s.CheckStackCompleted).
		AddStep(StepCreateStorageGateway, s.CreateStorageGateway).
		AddPredicate(StepValidateGateway, s.ValidateGateway).
		AddStep(StepAddCacheToGateway, s.AddCacheToGateway).
		OnFail(s.OnFail)
}

// NewWorkflow builds the provisioning workflow on top of store.
func NewWorkflow(deps Deps, config Config, store stepflow.ExecutionStore, opts ...stepflow.BuildOption) *stepflow.Workflow {
	b := stepflow.NewBuilder(WorkflowName)
	NewSteps(deps, config).Register(b)
	return b.Build(store, opts...)
}
