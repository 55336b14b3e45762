package sqlstore

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"

	"github.com/andrewwormald/stepflow"
)

type row struct {
	ID              string
	WorkflowName    string
	Step            string
	Status          int
	Payload         []byte
	State           []byte
	Wait            []byte
	Result          []byte
	Err             string
	CompensationErr string
	Compensated     bool
	Version         int64
	DueAt           int64
	CreatedAt       int64
	UpdatedAt       int64
}

func toRow(e *stepflow.Execution) (*row, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}

	state, err := json.Marshal(e.State)
	if err != nil {
		return nil, errors.Wrap(err, "encode state")
	}

	var wait []byte
	if e.Wait != nil {
		wait, err = json.Marshal(e.Wait)
		if err != nil {
			return nil, errors.Wrap(err, "encode wait")
		}
	}

	return &row{
		ID:              e.ID,
		WorkflowName:    e.WorkflowName,
		Step:            e.Step,
		Status:          int(e.Status),
		Payload:         payload,
		State:           state,
		Wait:            wait,
		Result:          e.Result,
		Err:             e.Err,
		CompensationErr: e.CompensationErr,
		Compensated:     e.Compensated,
		Version:         e.Version,
		DueAt:           toNanos(e.DueAt),
		CreatedAt:       toNanos(e.CreatedAt),
		UpdatedAt:       toNanos(e.UpdatedAt),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func executionScan(s scanner) (*stepflow.Execution, error) {
	var r row
	err := s.Scan(
		&r.ID,
		&r.WorkflowName,
		&r.Step,
		&r.Status,
		&r.Payload,
		&r.State,
		&r.Wait,
		&r.Result,
		&r.Err,
		&r.CompensationErr,
		&r.Compensated,
		&r.Version,
		&r.DueAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e := &stepflow.Execution{
		ID:              r.ID,
		WorkflowName:    r.WorkflowName,
		Step:            r.Step,
		Status:          stepflow.Status(r.Status),
		Err:             r.Err,
		CompensationErr: r.CompensationErr,
		Compensated:     r.Compensated,
		Version:         r.Version,
		DueAt:           fromNanos(r.DueAt),
		CreatedAt:       fromNanos(r.CreatedAt),
		UpdatedAt:       fromNanos(r.UpdatedAt),
	}

	err = json.Unmarshal(r.Payload, &e.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}

	err = json.Unmarshal(r.State, &e.State)
	if err != nil {
		return nil, errors.Wrap(err, "decode state")
	}

	if len(r.Wait) > 0 {
		e.Wait = new(stepflow.WaitState)
		err = json.Unmarshal(r.Wait, e.Wait)
		if err != nil {
			return nil, errors.Wrap(err, "decode wait")
		}
	}

	if len(r.Result) > 0 {
		e.Result = r.Result
	}

	return e, nil
}

// toNanos stores the zero time as 0 since it is outside the range of UnixNano.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

const (
	mysqlDuplicateEntry        = 1062
	sqlitePrimaryKeyConstraint = 1555
	sqliteUniqueConstraint     = 2067
)

// isDuplicateEntry reports whether err is a primary or unique key violation from MySQL or SQLite.
func isDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}

	var me *mysql.MySQLError
	if stderrors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}

	var coded interface{ Code() int }
	if stderrors.As(err, &coded) {
		return coded.Code() == sqlitePrimaryKeyConstraint || coded.Code() == sqliteUniqueConstraint
	}

	return false
}
