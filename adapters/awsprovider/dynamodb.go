package awsprovider

import (
	"context"
	stderrors "errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/provision"
)

const DefaultRecordTable = "StorageGateway"

type dynamoDBClient interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RecordStore implements provision.RecordStore on a table keyed by id.
type RecordStore struct {
	client    dynamoDBClient
	tableName string
}

func NewRecordStore(client dynamoDBClient, tableName string) *RecordStore {
	if tableName == "" {
		tableName = DefaultRecordTable
	}

	return &RecordStore{client: client, tableName: tableName}
}

var _ provision.RecordStore = (*RecordStore)(nil)

func (s *RecordStore) CreateIfAbsent(ctx context.Context, id string, r provision.GatewayRecord) (*provision.GatewayRecord, error) {
	r.ID = id

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshal gateway record", j.KV("id", id))
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})

	var conditionFailed *types.ConditionalCheckFailedException
	if stderrors.As(err, &conditionFailed) {
		return nil, errors.Wrap(provision.ErrGatewayRecordExists, "", j.KV("id", id))
	} else if err != nil {
		return nil, errors.Wrap(err, "put gateway record", j.KV("id", id))
	}

	return &r, nil
}

func (s *RecordStore) Lookup(ctx context.Context, id string) (*provision.GatewayRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get gateway record", j.KV("id", id))
	}

	if len(out.Item) == 0 {
		return nil, errors.Wrap(provision.ErrGatewayRecordNotFound, "", j.KV("id", id))
	}

	var r provision.GatewayRecord
	err = attributevalue.UnmarshalMap(out.Item, &r)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal gateway record", j.KV("id", id))
	}

	return &r, nil
}
