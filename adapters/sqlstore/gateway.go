package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/provision"
)

// GatewayStore implements provision.RecordStore on a table keyed by gateway ARN. The record is stored as JSON next
// to its key so that the table does not need to change with the record.
type GatewayStore struct {
	writer    *sql.DB
	reader    *sql.DB
	tableName string
}

func NewGatewayStore(writer *sql.DB, reader *sql.DB, tableName string) *GatewayStore {
	return &GatewayStore{
		writer:    writer,
		reader:    reader,
		tableName: tableName,
	}
}

var _ provision.RecordStore = (*GatewayStore)(nil)

func (g *GatewayStore) CreateIfAbsent(ctx context.Context, id string, r provision.GatewayRecord) (*provision.GatewayRecord, error) {
	r.ID = id

	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	_, err = g.writer.ExecContext(ctx, "insert into "+g.tableName+" (id, rev, record, created_at) values (?, ?, ?, ?)",
		id,
		r.Rev,
		b,
		toNanos(r.CreatedAt),
	)
	if isDuplicateEntry(err) {
		return nil, errors.Wrap(provision.ErrGatewayRecordExists, "", j.KV("id", id))
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to create gateway record", j.KV("id", id))
	}

	return &r, nil
}

func (g *GatewayStore) Lookup(ctx context.Context, id string) (*provision.GatewayRecord, error) {
	var b []byte
	err := g.reader.QueryRowContext(ctx, "select record from "+g.tableName+" where id=?", id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(provision.ErrGatewayRecordNotFound, "", j.KV("id", id))
	} else if err != nil {
		return nil, errors.Wrap(err, "gateway record lookup", j.KV("id", id))
	}

	var r provision.GatewayRecord
	err = json.Unmarshal(b, &r)
	if err != nil {
		return nil, err
	}

	return &r, nil
}
