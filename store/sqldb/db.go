/*
Package sqldb implements generic.Querier on top of database/sql.

PURPOSE:
  The single place where statements meet the driver. Every statement the
  engine issues goes through Query / Exec here, so this is also where
  failures are logged (with statement and parameters) and classified
  (schema drift, missing conflict target, duplicate key, other).

ROW HANDLING:
  Query drains the cursor through the caller's scan callback and closes it
  before returning. Callers never hold an open cursor.

TRANSACTIONS:
  Tx wraps fn in a database transaction. The Querier handed to fn runs every
  statement on that transaction; nested Tx calls reuse it.

LOGGING:
  - schema drift: debug (the engine falls back, this is expected)
  - everything else: error, with statement + params

SEE ALSO:
  - generic/store.go: the contract
  - store/sqlite, store/postgres: dialects
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// DB implements generic.Querier.
type DB struct {
	db      *sql.DB
	dialect generic.Dialect
	log     *zap.Logger
}

// New wraps an open *sql.DB.
func New(db *sql.DB, dialect generic.Dialect, log *zap.Logger) *DB {
	if log == nil {
		log = zap.NewNop()
	}
	return &DB{db: db, dialect: dialect, log: log.Named("sql")}
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// SQL exposes the underlying pool (migrations, health checks).
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Dialect returns the store dialect.
func (d *DB) Dialect() generic.Dialect {
	return d.dialect
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Query runs a statement and scans each row.
func (d *DB) Query(ctx context.Context, query string, args []any, scan func(generic.RowScanner) error) error {
	return runQuery(ctx, d.db, d.dialect, d.log, query, args, scan)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (generic.Result, error) {
	return runExec(ctx, d.db, d.dialect, d.log, query, args)
}

// Tx runs fn inside a transaction.
func (d *DB) Tx(ctx context.Context, fn func(generic.Querier) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txQuerier{tx: sqlTx, parent: d}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// TRANSACTIONAL QUERIER
// =============================================================================

type txQuerier struct {
	tx     *sql.Tx
	parent *DB
}

func (t *txQuerier) Query(ctx context.Context, query string, args []any, scan func(generic.RowScanner) error) error {
	return runQuery(ctx, t.tx, t.parent.dialect, t.parent.log, query, args, scan)
}

func (t *txQuerier) Exec(ctx context.Context, query string, args ...any) (generic.Result, error) {
	return runExec(ctx, t.tx, t.parent.dialect, t.parent.log, query, args)
}

func (t *txQuerier) Tx(_ context.Context, fn func(generic.Querier) error) error {
	return fn(t)
}

func (t *txQuerier) Dialect() generic.Dialect {
	return t.parent.dialect
}

// =============================================================================
// EXECUTION
// =============================================================================

type conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func runQuery(ctx context.Context, c conn, dialect generic.Dialect, log *zap.Logger, query string, args []any, scan func(generic.RowScanner) error) error {
	rows, err := c.QueryContext(ctx, dialect.Rebind(query), args...)
	if err != nil {
		return wrap(dialect, log, query, args, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return wrap(dialect, log, query, args, err)
	}
	return nil
}

func runExec(ctx context.Context, c conn, dialect generic.Dialect, log *zap.Logger, query string, args []any) (generic.Result, error) {
	res, err := c.ExecContext(ctx, dialect.Rebind(query), args...)
	if err != nil {
		return generic.Result{}, wrap(dialect, log, query, args, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report it; the statement itself succeeded.
		return generic.Result{}, nil
	}
	return generic.Result{AffectedRows: affected}, nil
}

func wrap(dialect generic.Dialect, log *zap.Logger, query string, args []any, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind, code := dialect.Classify(err)
	storeErr := &generic.StoreError{
		Statement: query,
		Params:    args,
		Kind:      kind,
		Code:      code,
		Err:       err,
	}

	switch kind {
	case generic.KindSchemaDrift, generic.KindNoConflictTarget:
		log.Debug("statement rejected by schema",
			zap.String("statement", query), zap.Any("params", args), zap.Error(err))
	default:
		log.Error("statement failed",
			zap.String("statement", query), zap.Any("params", args),
			zap.String("code", code), zap.Error(err))
	}
	return storeErr
}
