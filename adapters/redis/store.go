// Package redis stores executions, gateway records and roles in Redis.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"

	"github.com/andrewwormald/stepflow"
)

const (
	defaultListLimit = 25

	executionKeyPrefix = "stepflow:execution:"
	dueKeyPrefix       = "stepflow:due:"
	listKeyPrefix      = "stepflow:list:"
	globalListKey      = "stepflow:list"
	seqKey             = "stepflow:seq"
)

type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{
		client: client,
	}
}

var _ stepflow.ExecutionStore = (*Store)(nil)

var (
	createScript = redis.NewScript(`
		local execution_key = KEYS[1]
		local list_key = KEYS[2]
		local global_list_key = KEYS[3]
		local seq_key = KEYS[4]
		local due_key = KEYS[5]

		local data = ARGV[1]
		local id = ARGV[2]
		local due_at = ARGV[3]
		local finished = ARGV[4]

		if redis.call('EXISTS', execution_key) == 1 then
			return 0
		end

		redis.call('SET', execution_key, data)

		local seq = redis.call('INCR', seq_key)
		redis.call('ZADD', list_key, seq, id)
		redis.call('ZADD', global_list_key, seq, id)

		if finished == '0' then
			redis.call('ZADD', due_key, due_at, id)
		end

		return 1
	`)

	// updateScript returns 1 on success, 0 if the execution does not exist and -1 on a version mismatch.
	updateScript = redis.NewScript(`
		local execution_key = KEYS[1]
		local due_key = KEYS[2]

		local data = ARGV[1]
		local id = ARGV[2]
		local due_at = ARGV[3]
		local finished = ARGV[4]
		local expected_version = tonumber(ARGV[5])

		local current = redis.call('GET', execution_key)
		if not current then
			return 0
		end

		if tonumber(cjson.decode(current).Version) ~= expected_version then
			return -1
		end

		redis.call('SET', execution_key, data)

		if finished == '0' then
			redis.call('ZADD', due_key, due_at, id)
		else
			redis.call('ZREM', due_key, id)
		end

		return 1
	`)
)

func executionKey(id string) string {
	return executionKeyPrefix + id
}

func dueScore(t time.Time) string {
	if t.IsZero() {
		return "0"
	}

	return strconv.FormatInt(t.UnixMilli(), 10)
}

func finishedFlag(s stepflow.Status) string {
	if s.Finished() {
		return "1"
	}

	return "0"
}

func (s *Store) Create(ctx context.Context, e *stepflow.Execution) error {
	c := e.Clone()
	c.Version = 1

	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode execution")
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{
			executionKey(e.ID),
			listKeyPrefix + e.WorkflowName,
			globalListKey,
			seqKey,
			dueKeyPrefix + e.WorkflowName,
		},
		b,
		e.ID,
		dueScore(e.DueAt),
		finishedFlag(e.Status),
	).Int()
	if err != nil {
		return errors.Wrap(err, "create execution", j.KV("execution_id", e.ID))
	}

	if created == 0 {
		return errors.New("execution already exists", j.KV("execution_id", e.ID))
	}

	e.Version = 1
	return nil
}

func (s *Store) Update(ctx context.Context, e *stepflow.Execution) error {
	c := e.Clone()
	c.Version = e.Version + 1

	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode execution")
	}

	res, err := updateScript.Run(ctx, s.client,
		[]string{
			executionKey(e.ID),
			dueKeyPrefix + e.WorkflowName,
		},
		b,
		e.ID,
		dueScore(e.DueAt),
		finishedFlag(e.Status),
		e.Version,
	).Int()
	if err != nil {
		return errors.Wrap(err, "update execution", j.KV("execution_id", e.ID))
	}

	switch res {
	case 0:
		return errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("execution_id", e.ID))
	case -1:
		return errors.Wrap(stepflow.ErrVersionConflict, "", j.MKV{
			"execution_id":     e.ID,
			"provided_version": e.Version,
		})
	}

	e.Version++
	return nil
}

func (s *Store) Lookup(ctx context.Context, id string) (*stepflow.Execution, error) {
	b, err := s.client.Get(ctx, executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("execution_id", id))
	} else if err != nil {
		return nil, errors.Wrap(err, "lookup execution", j.KV("execution_id", id))
	}

	return decodeExecution(id, b)
}

func (s *Store) ListDue(ctx context.Context, workflowName string, now time.Time, limit int) ([]stepflow.Execution, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids, err := s.client.ZRangeByScore(ctx, dueKeyPrefix+workflowName, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   dueScore(now),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list due executions", j.KV("workflow_name", workflowName))
	}

	return s.load(ctx, ids)
}

func (s *Store) List(ctx context.Context, workflowName string, offset, limit int, filters ...stepflow.ExecutionFilter) ([]stepflow.Execution, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	key := globalListKey
	if workflowName != "" {
		key = listKeyPrefix + workflowName
	}

	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list executions", j.KV("workflow_name", workflowName))
	}

	all, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	filter := stepflow.MakeFilter(filters...)

	var matched []stepflow.Execution
	for i := range all {
		if !filter.Matches(&all[i]) {
			continue
		}

		matched = append(matched, all[i])
	}

	if offset >= len(matched) {
		return nil, nil
	}

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], nil
}

func (s *Store) load(ctx context.Context, ids []string) ([]stepflow.Execution, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, executionKey(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load executions")
	}

	var res []stepflow.Execution
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("execution_id", ids[i]))
		}

		e, err := decodeExecution(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}

		res = append(res, *e)
	}

	return res, nil
}

func decodeExecution(id string, b []byte) (*stepflow.Execution, error) {
	var e stepflow.Execution
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, errors.Wrap(err, "decode execution", j.KV("execution_id", id))
	}

	// A missing result is encoded as null which decodes into a non-nil raw message.
	if string(e.Result) == "null" {
		e.Result = nil
	}

	return &e, nil
}
