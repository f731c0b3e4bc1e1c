/*
store.go - The generic query facility the engine runs on

PURPOSE:
  Defines the narrow contract between the engine and the relational store:
  run a parameterized statement and either scan the rows or get the number
  of affected rows. Everything else (connection pooling, driver, dialect)
  belongs to the implementation.

KEY INTERFACES:
  Querier: Query / Exec / Tx + the Dialect in use
  Dialect: placeholder rebinding, catalog introspection, driver error classification

ROWS:
  Query hands every row to a scan callback and closes the cursor before it
  returns. No engine code ever holds an open cursor while issuing another
  statement, so a single-connection pool (SQLite) cannot deadlock.

PLACEHOLDERS:
  Statements are written with '?' placeholders. Implementations rebind them
  for drivers that need '$1'-style parameters.

IMPLEMENTATIONS:
  - store/sqldb/db.go:      database/sql implementation
  - store/sqlite/sqlite.go: SQLite dialect + migrations
  - store/postgres:         PostgreSQL dialect (pgx)

SEE ALSO:
  - upsert.go: natural-key upserts built on Querier
  - schema/resolver.go: table/column resolution built on Querier + Dialect
*/
package generic

import (
	"context"
	"strings"
)

// =============================================================================
// QUERIER - Generic query facility
// =============================================================================

// RowScanner is the subset of *sql.Rows a scan callback needs.
type RowScanner interface {
	Scan(dest ...any) error
}

// Result reports the outcome of an Exec.
type Result struct {
	AffectedRows int64
}

// Querier runs parameterized statements against the store.
type Querier interface {
	// Query runs a statement and calls scan once per returned row.
	Query(ctx context.Context, query string, args []any, scan func(RowScanner) error) error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) (Result, error)

	// Tx runs fn inside a transaction. If fn returns an error the transaction
	// is rolled back. Calling Tx on a Querier that is already transactional
	// runs fn in the same transaction.
	Tx(ctx context.Context, fn func(Querier) error) error

	// Dialect returns the SQL dialect of the underlying store.
	Dialect() Dialect
}

// Dialect captures the differences between supported stores.
type Dialect interface {
	// Name is "sqlite" or "postgres".
	Name() string

	// Rebind converts '?' placeholders into the driver's native form.
	Rebind(query string) string

	// TablesQuery lists every table name visible to the engine.
	TablesQuery() string

	// ColumnsQuery lists the column names of one table.
	ColumnsQuery(table string) (string, []any)

	// QuoteIdent quotes a resolved identifier.
	QuoteIdent(name string) string

	// Classify maps a driver error to an ErrorKind plus its native code.
	Classify(err error) (ErrorKind, string)
}

// =============================================================================
// HELPERS
// =============================================================================

// QueryRow scans the first row of a query into dest. found is false when the
// query returned no rows.
func QueryRow(ctx context.Context, q Querier, query string, args []any, dest ...any) (found bool, err error) {
	err = q.Query(ctx, query, args, func(row RowScanner) error {
		if found {
			return nil
		}
		found = true
		return row.Scan(dest...)
	})
	return found, err
}

// Insert runs an INSERT and returns the id of the inserted row. The statement
// must not already end with a RETURNING clause.
func Insert(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	var id int64
	_, err := QueryRow(ctx, q, strings.TrimRight(query, " \n\t;")+" RETURNING id", args, &id)
	return id, err
}

// Placeholders returns "?, ?, ?" for n values.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
