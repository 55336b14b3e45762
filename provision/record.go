package provision

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// GatewayRecord is the durable result of a successful provisioning. ID is the gateway ARN.
type GatewayRecord struct {
	ID            string    `json:"id" dynamodbav:"id"`
	Rev           int64     `json:"rev" dynamodbav:"rev"`
	VPCID         string    `json:"vpcId" dynamodbav:"vpcId"`
	SubnetID      string    `json:"subnetId" dynamodbav:"subnetId"`
	InstanceID    string    `json:"ec2Instance" dynamodbav:"ec2Instance"`
	ElasticIP     string    `json:"elasticIP" dynamodbav:"elasticIP"`
	SecurityGroup string    `json:"securityGroup" dynamodbav:"securityGroup"`
	IAMRole       string    `json:"iamRoleEC2" dynamodbav:"iamRoleEC2"`
	VolumeIDs     []string  `json:"volumeIds" dynamodbav:"volumeIds"`
	CreatedBy     string    `json:"createdBy" dynamodbav:"createdBy"`
	UpdatedBy     string    `json:"updatedBy" dynamodbav:"updatedBy"`
	CreatedAt     time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

var ErrGatewayRecordExists = errors.New("storage gateway record already exists", j.C("ERR_7c2e9f4a1b6d3058"))

// RecordStore implementations should all be tested with adaptertest.RunGatewayRecordStoreTest.
type RecordStore interface {
	// CreateIfAbsent writes the record under id only if nothing has been written under id before. A second write
	// returns ErrGatewayRecordExists and leaves the first record untouched.
	CreateIfAbsent(ctx context.Context, id string, r GatewayRecord) (*GatewayRecord, error)

	Lookup(ctx context.Context, id string) (*GatewayRecord, error)
}

var ErrGatewayRecordNotFound = errors.New("storage gateway record not found", j.C("ERR_3e8a1d6f9c2b4071"))
