package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"

	"github.com/andrewwormald/stepflow"
)

const roleKeyPrefix = "stepflow:role:"

// RoleScheduler holds roles as keys set with SET NX and a TTL. The holder refreshes the TTL while it holds the role
// so that a crashed holder loses the role once the TTL passes.
type RoleScheduler struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
}

type RoleSchedulerOption func(rs *RoleScheduler)

func WithRoleTTL(ttl time.Duration) RoleSchedulerOption {
	return func(rs *RoleScheduler) {
		rs.ttl = ttl
	}
}

func WithRolePollInterval(d time.Duration) RoleSchedulerOption {
	return func(rs *RoleScheduler) {
		rs.pollInterval = d
	}
}

func NewRoleScheduler(client redis.UniversalClient, opts ...RoleSchedulerOption) *RoleScheduler {
	rs := &RoleScheduler{
		client:       client,
		ttl:          10 * time.Second,
		pollInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(rs)
	}

	return rs
}

var _ stepflow.RoleScheduler = (*RoleScheduler)(nil)

// releaseScript only deletes the key if it is still held by the caller.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	else
		return 0
	end
`)

// refreshScript only extends the key if it is still held by the caller.
var refreshScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (rs *RoleScheduler) Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error) {
	key := roleKeyPrefix + role
	token := uuid.New().String()

	ticker := time.NewTicker(rs.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := rs.client.SetNX(ctx, key, token, rs.ttl).Result()
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		} else if err != nil {
			return nil, nil, errors.Wrap(err, "acquire role", j.KV("role", role))
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	go rs.hold(ctx, cancel, key, token)

	return ctx, cancel, nil
}

// hold refreshes the role until ctx is done and then releases it. Losing the role cancels ctx.
func (rs *RoleScheduler) hold(ctx context.Context, cancel context.CancelFunc, key, token string) {
	defer func() {
		releaseScript.Run(context.WithoutCancel(ctx), rs.client, []string{key}, token)
	}()

	ticker := time.NewTicker(rs.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, rs.client, []string{key}, token, rs.ttl.Milliseconds()).Int()
			if err != nil || n == 0 {
				cancel()
				return
			}
		}
	}
}
