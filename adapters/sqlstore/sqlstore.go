// Package sqlstore stores executions and gateway records with database/sql. The queries only use syntax shared by
// MySQL and SQLite so that the same store runs in production against MySQL and in tests against SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow"
)

const defaultListLimit = 25

// Table names used by schema.sql.
const (
	ExecutionTable = "executions"
	GatewayTable   = "storage_gateways"
)

type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	tableName    string
	selectPrefix string
}

func New(writer *sql.DB, reader *sql.DB, tableName string) *SQLStore {
	s := &SQLStore{
		writer:    writer,
		reader:    reader,
		tableName: tableName,
	}

	s.selectPrefix = " select " + strings.Join(executionCols, ", ") + " from " + tableName + " "

	return s
}

var _ stepflow.ExecutionStore = (*SQLStore)(nil)

var executionCols = []string{
	"id",
	"workflow_name",
	"step",
	"status",
	"payload",
	"state",
	"wait",
	"result",
	"err",
	"compensation_err",
	"compensated",
	"version",
	"due_at",
	"created_at",
	"updated_at",
}

func (s *SQLStore) Create(ctx context.Context, e *stepflow.Execution) error {
	r, err := toRow(e)
	if err != nil {
		return err
	}

	r.Version = 1

	_, err = s.writer.ExecContext(ctx, "insert into "+s.tableName+" ("+strings.Join(executionCols, ", ")+") "+
		"values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID,
		r.WorkflowName,
		r.Step,
		r.Status,
		r.Payload,
		r.State,
		r.Wait,
		r.Result,
		r.Err,
		r.CompensationErr,
		r.Compensated,
		r.Version,
		r.DueAt,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return errors.Wrap(err, "execution already exists", j.KV("execution_id", e.ID))
	} else if err != nil {
		return errors.Wrap(err, "failed to create execution", j.MKV{
			"execution_id":  e.ID,
			"workflow_name": e.WorkflowName,
		})
	}

	e.Version = 1
	return nil
}

func (s *SQLStore) Update(ctx context.Context, e *stepflow.Execution) error {
	r, err := toRow(e)
	if err != nil {
		return err
	}

	res, err := s.writer.ExecContext(ctx, "update "+s.tableName+" set "+
		" step=?, status=?, payload=?, state=?, wait=?, result=?, err=?, compensation_err=?, compensated=?, "+
		" version=?, due_at=?, updated_at=? where id=? and version=?",
		r.Step,
		r.Status,
		r.Payload,
		r.State,
		r.Wait,
		r.Result,
		r.Err,
		r.CompensationErr,
		r.Compensated,
		r.Version+1,
		r.DueAt,
		r.UpdatedAt,
		r.ID,
		r.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution", j.KV("execution_id", e.ID))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		// Either the execution does not exist or it has moved on since it was read.
		current, err := s.lookupWhere(ctx, s.writer, "id=?", e.ID)
		if err != nil {
			return err
		}

		return errors.Wrap(stepflow.ErrVersionConflict, "", j.MKV{
			"execution_id":     e.ID,
			"stored_version":   current.Version,
			"provided_version": e.Version,
		})
	}

	e.Version++
	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, id string) (*stepflow.Execution, error) {
	return s.lookupWhere(ctx, s.reader, "id=?", id)
}

func (s *SQLStore) ListDue(ctx context.Context, workflowName string, now time.Time, limit int) ([]stepflow.Execution, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	return s.listWhere(ctx, s.reader, "workflow_name=? and status in (?, ?) and due_at<=? order by due_at asc, seq asc limit ?",
		workflowName,
		int(stepflow.StatusRunning),
		int(stepflow.StatusWaiting),
		toNanos(now),
		limit,
	)
}

func (s *SQLStore) List(ctx context.Context, workflowName string, offset, limit int, filters ...stepflow.ExecutionFilter) ([]stepflow.Execution, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		where []string
		args  []any
	)

	if workflowName != "" {
		where = append(where, "workflow_name=?")
		args = append(args, workflowName)
	}

	filter := stepflow.MakeFilter(filters...)
	if filter.ByStatus().Enabled {
		where = append(where, "status=?")
		args = append(args, int(filter.ByStatus().Value))
	}

	if filter.ByStep().Enabled {
		where = append(where, "step=?")
		args = append(args, filter.ByStep().Value)
	}

	if len(where) == 0 {
		where = append(where, "1=1")
	}

	args = append(args, limit, offset)
	return s.listWhere(ctx, s.reader, strings.Join(where, " and ")+" order by seq asc limit ? offset ?", args...)
}

func (s *SQLStore) lookupWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) (*stepflow.Execution, error) {
	e, err := executionScan(dbc.QueryRowContext(ctx, s.selectPrefix+" where "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(stepflow.ErrExecutionNotFound, "", j.KV("where", where))
	} else if err != nil {
		return nil, errors.Wrap(err, "execution lookup", j.KV("where", where))
	}

	return e, nil
}

func (s *SQLStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]stepflow.Execution, error) {
	rows, err := dbc.QueryContext(ctx, s.selectPrefix+" where "+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list executions")
	}
	defer rows.Close()

	var res []stepflow.Execution
	for rows.Next() {
		e, err := executionScan(rows)
		if err != nil {
			return nil, err
		}

		res = append(res, *e)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}
