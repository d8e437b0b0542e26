package postgres

import (
	"context"
	"database/sql"
)

// DB is the query surface the repositories run on. Both *sql.DB and the
// breaker-guarded connection in resilience/circuitbreaker satisfy it; the
// binaries pass the guarded one so a dead Postgres fails fast instead of
// tying up every worker in connection timeouts.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
