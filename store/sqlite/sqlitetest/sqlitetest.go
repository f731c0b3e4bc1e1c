// Package sqlitetest provides a migrated in-memory database and fixture
// helpers for tests across the engine packages.
package sqlitetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite"
)

// New returns a migrated in-memory database closed at test cleanup.
func New(t testing.TB) *sqldb.DB {
	t.Helper()
	db, err := sqlite.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Empty returns an in-memory database with no tables, for legacy-shape tests.
func Empty(t testing.TB) *sqldb.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Exec runs a statement and fails the test on error.
func Exec(t testing.TB, q generic.Querier, query string, args ...any) {
	t.Helper()
	_, err := q.Exec(context.Background(), query, args...)
	require.NoError(t, err)
}

// Insert runs an INSERT and returns the new id.
func Insert(t testing.TB, q generic.Querier, query string, args ...any) int64 {
	t.Helper()
	id, err := generic.Insert(context.Background(), q, query, args...)
	require.NoError(t, err)
	return id
}

// =============================================================================
// CRM FIXTURES
// =============================================================================

func Salesperson(t testing.TB, q generic.Querier, name string) generic.SalespersonID {
	t.Helper()
	return generic.SalespersonID(Insert(t, q, "INSERT INTO comerciales (nombre) VALUES (?)", name))
}

func Brand(t testing.TB, q generic.Querier, name string) generic.BrandID {
	t.Helper()
	return generic.BrandID(Insert(t, q, "INSERT INTO marcas (nombre) VALUES (?)", name))
}

func Article(t testing.TB, q generic.Querier, name string, brand generic.BrandID) generic.ArticleID {
	t.Helper()
	return generic.ArticleID(Insert(t, q, "INSERT INTO articulos (nombre, marca_id) VALUES (?, ?)", name, int64(brand)))
}

func OrderType(t testing.TB, q generic.Querier, name string) generic.OrderTypeID {
	t.Helper()
	return generic.OrderTypeID(Insert(t, q, "INSERT INTO tipos_pedido (nombre) VALUES (?)", name))
}

// Order inserts an order dated date (YYYY-MM-DD).
func Order(t testing.TB, q generic.Querier, salesperson generic.SalespersonID, orderType generic.OrderTypeID, date string) generic.OrderID {
	t.Helper()
	return generic.OrderID(Insert(t, q,
		"INSERT INTO pedidos (comercial_id, tipo_pedido_id, fecha, estado) VALUES (?, ?, ?, 'Entregado')",
		int64(salesperson), int64(orderType), date))
}

// Line inserts an order line.
func Line(t testing.TB, q generic.Querier, order generic.OrderID, article generic.ArticleID, quantity, subtotal float64) {
	t.Helper()
	Exec(t, q, "INSERT INTO pedidos_articulos (pedido_id, articulo_id, cantidad, subtotal) VALUES (?, ?, ?, ?)",
		int64(order), int64(article), quantity, subtotal)
}
