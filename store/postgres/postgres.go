// Package postgres provides the PostgreSQL-backed query facility.
//
// The schema is managed outside this service; nothing here migrates. Names are
// resolved at runtime by the schema package, so the engine tolerates the
// casing and naming drift of the deployed database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/store/sqldb"
	"go.uber.org/zap"
)

// SQLSTATE codes the engine reacts to.
const (
	codeUndefinedColumn        = "42703"
	codeUndefinedTable         = "42P01"
	codeInvalidColumnReference = "42P10" // ON CONFLICT without a matching constraint
	codeUniqueViolation        = "23505"
)

// New opens a pgx-backed pool for dsn and verifies connectivity.
func New(ctx context.Context, dsn string, log *zap.Logger) (*sqldb.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return sqldb.New(db, Dialect{}, log), nil
}

// Dialect is the PostgreSQL generic.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

// Rebind turns '?' placeholders into $1, $2, ... leaving quoted text alone.
func (Dialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '?' && !inSingle && !inDouble:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (Dialect) TablesQuery() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()"
}

func (Dialect) ColumnsQuery(table string) (string, []any) {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position",
		[]any{table}
}

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Classify(err error) (generic.ErrorKind, string) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return generic.KindOther, ""
	}
	switch pgErr.Code {
	case codeUndefinedColumn, codeUndefinedTable:
		return generic.KindSchemaDrift, pgErr.Code
	case codeInvalidColumnReference:
		return generic.KindNoConflictTarget, pgErr.Code
	case codeUniqueViolation:
		return generic.KindDuplicateKey, pgErr.Code
	}
	return generic.KindOther, pgErr.Code
}
