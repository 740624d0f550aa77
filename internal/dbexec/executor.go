// Package dbexec provides the query execution abstraction loaders run on and
// the row scanning that turns result sets into column maps.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs a read query. Loaders never write, so this is the only
// capability they need from the data-access layer.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StandardExecutor executes queries directly against a database handle,
// connection or transaction.
type StandardExecutor struct {
	db Querier
}

// NewStandardExecutor creates an executor that runs queries directly against q.
func NewStandardExecutor(q Querier) *StandardExecutor {
	return &StandardExecutor{db: q}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e == nil || e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

// ExecutorFunc adapts a function to QueryExecutor.
type ExecutorFunc func(ctx context.Context, query string, args ...any) (Rows, error)

func (f ExecutorFunc) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return f(ctx, query, args...)
}
