package adaptertest

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow/provision"
)

// RunGatewayRecordStoreTest runs the behaviour every provision.RecordStore must have. factory must return an empty
// store.
func RunGatewayRecordStoreTest(t *testing.T, factory func() provision.RecordStore) {
	tests := []func(t *testing.T, store provision.RecordStore){
		testCreateIfAbsent,
		testCreateIfAbsentDuplicate,
		testRecordNotFound,
	}

	for _, test := range tests {
		test(t, factory())
	}
}

func newGatewayRecord() provision.GatewayRecord {
	createdAt := time.Date(2023, time.April, 1, 10, 0, 0, 0, time.UTC)
	return provision.GatewayRecord{
		VPCID:         "vpc-1",
		SubnetID:      "subnet-1",
		InstanceID:    "i-1",
		ElasticIP:     "198.51.100.10",
		SecurityGroup: "sg-1",
		IAMRole:       "arn:aws:iam::123456789012:role/gateway",
		VolumeIDs:     []string{"vol-1"},
		CreatedBy:     "u-1",
		UpdatedBy:     "u-1",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

const gatewayARN = "arn:aws:storagegateway:eu-west-1:123456789012:gateway/sgw-12A3456B"

func testCreateIfAbsent(t *testing.T, store provision.RecordStore) {
	t.Run("CreateIfAbsent and Lookup", func(t *testing.T) {
		ctx := context.Background()

		created, err := store.CreateIfAbsent(ctx, gatewayARN, newGatewayRecord())
		jtest.RequireNil(t, err)
		require.Equal(t, gatewayARN, created.ID)

		actual, err := store.Lookup(ctx, gatewayARN)
		jtest.RequireNil(t, err)

		expected := newGatewayRecord()
		expected.ID = gatewayARN
		require.True(t, expected.CreatedAt.Equal(actual.CreatedAt))
		require.True(t, expected.UpdatedAt.Equal(actual.UpdatedAt))

		actual.CreatedAt = expected.CreatedAt
		actual.UpdatedAt = expected.UpdatedAt
		require.Equal(t, expected, *actual)
	})
}

func testCreateIfAbsentDuplicate(t *testing.T, store provision.RecordStore) {
	t.Run("CreateIfAbsent keeps the first record", func(t *testing.T) {
		ctx := context.Background()

		_, err := store.CreateIfAbsent(ctx, gatewayARN, newGatewayRecord())
		jtest.RequireNil(t, err)

		second := newGatewayRecord()
		second.VPCID = "vpc-2"
		_, err = store.CreateIfAbsent(ctx, gatewayARN, second)
		jtest.Require(t, provision.ErrGatewayRecordExists, err)

		actual, err := store.Lookup(ctx, gatewayARN)
		jtest.RequireNil(t, err)
		require.Equal(t, "vpc-1", actual.VPCID)
	})
}

func testRecordNotFound(t *testing.T, store provision.RecordStore) {
	t.Run("Lookup unknown record", func(t *testing.T) {
		_, err := store.Lookup(context.Background(), gatewayARN)
		jtest.Require(t, provision.ErrGatewayRecordNotFound, err)
	})
}
