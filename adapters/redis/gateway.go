package redis

import (
	"context"
	"encoding/json"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"

	"github.com/andrewwormald/stepflow/provision"
)

const gatewayKeyPrefix = "stepflow:gateway:"

type GatewayStore struct {
	client redis.UniversalClient
}

func NewGatewayStore(client redis.UniversalClient) *GatewayStore {
	return &GatewayStore{client: client}
}

var _ provision.RecordStore = (*GatewayStore)(nil)

func (g *GatewayStore) CreateIfAbsent(ctx context.Context, id string, r provision.GatewayRecord) (*provision.GatewayRecord, error) {
	r.ID = id

	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	ok, err := g.client.SetNX(ctx, gatewayKeyPrefix+id, b, 0).Result()
	if err != nil {
		return nil, errors.Wrap(err, "create gateway record", j.KV("id", id))
	}

	if !ok {
		return nil, errors.Wrap(provision.ErrGatewayRecordExists, "", j.KV("id", id))
	}

	return &r, nil
}

func (g *GatewayStore) Lookup(ctx context.Context, id string) (*provision.GatewayRecord, error) {
	b, err := g.client.Get(ctx, gatewayKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(provision.ErrGatewayRecordNotFound, "", j.KV("id", id))
	} else if err != nil {
		return nil, errors.Wrap(err, "lookup gateway record", j.KV("id", id))
	}

	var r provision.GatewayRecord
	err = json.Unmarshal(b, &r)
	if err != nil {
		return nil, err
	}

	return &r, nil
}
