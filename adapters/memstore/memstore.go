package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/provision"
)

const defaultListLimit = 25

// New constructs and returns an in-memory ExecutionStore. Every stored version of an execution is kept as a
// snapshot which tests can use to inspect how an execution progressed.
func New() *Store {
	return &Store{
		store:     make(map[string]*stepflow.Execution),
		snapshots: make(map[string][]*stepflow.Execution),
	}
}

var _ stepflow.ExecutionStore = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	store     map[string]*stepflow.Execution
	order     []string
	snapshots map[string][]*stepflow.Execution
}

func (s *Store) Create(ctx context.Context, e *stepflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store[e.ID]; ok {
		return errors.New("execution already exists", j.KV("execution_id", e.ID))
	}

	e.Version = 1
	s.put(e)
	s.order = append(s.order, e.ID)
	return nil
}

func (s *Store) Update(ctx context.Context, e *stepflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.store[e.ID]
	if !ok {
		return errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("execution_id", e.ID))
	}

	if current.Version != e.Version {
		return errors.Wrap(stepflow.ErrVersionConflict, "", j.MKV{
			"execution_id":     e.ID,
			"stored_version":   current.Version,
			"provided_version": e.Version,
		})
	}

	e.Version++
	s.put(e)
	return nil
}

func (s *Store) put(e *stepflow.Execution) {
	// Store a copy so that modifications by the caller don't affect the store.
	c := e.Clone()
	s.store[e.ID] = c
	s.snapshots[e.ID] = append(s.snapshots[e.ID], c.Clone())
}

func (s *Store) Lookup(ctx context.Context, id string) (*stepflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store[id]
	if !ok {
		return nil, errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("execution_id", id))
	}

	return e.Clone(), nil
}

func (s *Store) ListDue(ctx context.Context, workflowName string, now time.Time, limit int) ([]stepflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []stepflow.Execution
	for _, id := range s.order {
		e := s.store[id]
		if e.WorkflowName != workflowName {
			continue
		}

		if e.Status.Finished() {
			continue
		}

		if e.DueAt.After(now) {
			continue
		}

		due = append(due, *e.Clone())
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].DueAt.Before(due[j].DueAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (s *Store) List(ctx context.Context, workflowName string, offset, limit int, filters ...stepflow.ExecutionFilter) ([]stepflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit == 0 {
		limit = defaultListLimit
	}

	filter := stepflow.MakeFilter(filters...)

	var matched []stepflow.Execution
	for _, id := range s.order {
		e := s.store[id]
		if workflowName != "" && e.WorkflowName != workflowName {
			continue
		}

		if !filter.Matches(e) {
			continue
		}

		matched = append(matched, *e.Clone())
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

// Snapshots returns every stored version of the execution in the order they were written.
func (s *Store) Snapshots(executionID string) []*stepflow.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ls []*stepflow.Execution
	for _, e := range s.snapshots[executionID] {
		ls = append(ls, e.Clone())
	}

	return ls
}

// NewGatewayStore returns an in-memory provision.RecordStore.
func NewGatewayStore() *GatewayStore {
	return &GatewayStore{
		records: make(map[string]provision.GatewayRecord),
	}
}

var _ provision.RecordStore = (*GatewayStore)(nil)

type GatewayStore struct {
	mu      sync.Mutex
	records map[string]provision.GatewayRecord
}

func (g *GatewayStore) CreateIfAbsent(ctx context.Context, id string, r provision.GatewayRecord) (*provision.GatewayRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[id]; ok {
		return nil, errors.Wrap(provision.ErrGatewayRecordExists, "", j.KV("id", id))
	}

	r.ID = id
	r.VolumeIDs = append([]string(nil), r.VolumeIDs...)
	g.records[id] = r
	return &r, nil
}

func (g *GatewayStore) Lookup(ctx context.Context, id string) (*provision.GatewayRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[id]
	if !ok {
		return nil, errors.Wrap(provision.ErrGatewayRecordNotFound, "", j.KV("id", id))
	}

	return &r, nil
}
