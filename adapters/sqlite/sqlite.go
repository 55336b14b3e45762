// Package sqlite runs the sqlstore adapters on an embedded SQLite database.
package sqlite

import (
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	_ "modernc.org/sqlite"

	"github.com/andrewwormald/stepflow/adapters/sqlstore"
)

const (
	ExecutionTable = sqlstore.ExecutionTable
	GatewayTable   = sqlstore.GatewayTable
)

// Open creates a new SQLite database connection with settings suited to a single writer.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database", j.KV("path", path))
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to set pragma", j.KV("pragma", pragma))
		}
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// InitSchema creates the tables used by the stores.
func InitSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS executions (
    seq              INTEGER PRIMARY KEY AUTOINCREMENT,
    id               TEXT NOT NULL UNIQUE,
    workflow_name    TEXT NOT NULL,
    step             TEXT NOT NULL,
    status           INTEGER NOT NULL,
    payload          BLOB NOT NULL,
    state            BLOB NOT NULL,
    wait             BLOB,
    result           BLOB,
    err              TEXT NOT NULL,
    compensation_err TEXT NOT NULL,
    compensated      INTEGER NOT NULL,
    version          INTEGER NOT NULL,
    due_at           INTEGER NOT NULL,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_due
    ON executions (workflow_name, status, due_at);

CREATE TABLE IF NOT EXISTS storage_gateways (
    id         TEXT NOT NULL PRIMARY KEY,
    rev        INTEGER NOT NULL,
    record     BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
`

	_, err := db.Exec(schema)
	if err != nil {
		return errors.Wrap(err, "create schema")
	}

	return nil
}

func NewExecutionStore(db *sql.DB) *sqlstore.SQLStore {
	return sqlstore.New(db, db, ExecutionTable)
}

func NewGatewayStore(db *sql.DB) *sqlstore.GatewayStore {
	return sqlstore.NewGatewayStore(db, db, GatewayTable)
}
