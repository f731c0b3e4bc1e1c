/*
Package sqlite provides the SQLite-backed query facility.

PURPOSE:
  Opens a go-sqlite3 database, creates the engine schema and exposes it as a
  generic.Querier (store/sqldb). Used for development, tests and single-node
  deployments. Production deployments against an externally managed schema
  use store/postgres and never migrate.

KEY TABLES:
  CRM facts (normally owned by the CRUD side of the CRM):
    comerciales, marcas, articulos, tipos_pedido, pedidos, pedidos_articulos
  Configuration:
    config_comisiones, config_descuento_transporte, config_rapel_presupuesto,
    config_cuota_mensual, config_reparto_marcas, rapeles_configuracion,
    condiciones_especiales
  Ledgers:
    comisiones, comisiones_detalle, estado_comisiones, rapeles,
    objetivos_marca, fijos_mensuales_marca
  Operations:
    ejecuciones (batch run log)

NATURAL KEYS:
  Every natural key carries a UNIQUE index so upserts are a single
  INSERT ... ON CONFLICT DO UPDATE statement:
  - comisiones(comercial_id, mes, anio)
  - rapeles(comercial_id, marca_id, trimestre, anio)
  - objetivos_marca(comercial_id, marca_id, anio, mes, canal)
  - fijos_mensuales_marca(comercial_id, marca_id, anio, mes)
  - estado_comisiones(comision_id)

AMOUNTS:
  Engine money and percentage columns are TEXT holding decimal strings, so
  values round-trip exactly. Ordering, tier selection and sums over them are
  done with decimals in Go. The CRM fact amounts of pedidos_articulos stay
  REAL.

CONCURRENCY:
  The pool is limited to one connection. SQLite has a single writer anyway,
  and ":memory:" databases are per-connection.

USAGE:
  db, err := sqlite.New("./data/crm.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

SEE ALSO:
  - store/sqldb/db.go: Querier implementation
  - store/sqlite/sqlitetest: in-memory database for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/store/sqldb"
	"go.uber.org/zap"
)

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string, log *zap.Logger) (*sqldb.DB, error) {
	db, err := Open(dbPath, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Open opens the database without touching the schema.
func Open(dbPath string, log *zap.Logger) (*sqldb.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return sqldb.New(db, Dialect{}, log), nil
}

// Migrate creates the schema.
func Migrate(ctx context.Context, db *sqldb.DB) error {
	_, err := db.SQL().ExecContext(ctx, schema)
	return err
}

// =============================================================================
// DIALECT
// =============================================================================

// Dialect is the SQLite generic.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(query string) string { return query }

func (Dialect) TablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
}

func (Dialect) ColumnsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?)", []any{table}
}

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Classify(err error) (generic.ErrorKind, string) {
	var code string
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code = sqliteErr.ExtendedCode.Error()
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return generic.KindDuplicateKey, code
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column named"):
		return generic.KindSchemaDrift, code
	case strings.Contains(msg, "ON CONFLICT clause does not match"):
		return generic.KindNoConflictTarget, code
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return generic.KindDuplicateKey, code
	}
	return generic.KindOther, code
}

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
	-- CRM facts
	CREATE TABLE IF NOT EXISTS comerciales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL,
		email TEXT,
		activo INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS marcas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS articulos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL,
		marca_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS tipos_pedido (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pedidos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		tipo_pedido_id INTEGER,
		fecha TEXT NOT NULL,
		estado TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pedidos_comercial_fecha
		ON pedidos(comercial_id, fecha);

	CREATE TABLE IF NOT EXISTS pedidos_articulos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pedido_id INTEGER NOT NULL,
		articulo_id INTEGER NOT NULL,
		cantidad REAL NOT NULL DEFAULT 0,
		subtotal REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_pedidos_articulos_pedido
		ON pedidos_articulos(pedido_id);

	-- Commission rate configuration (brand is mandatory)
	CREATE TABLE IF NOT EXISTS config_comisiones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		marca_id INTEGER NOT NULL,
		tipo_pedido_id INTEGER,
		nombre_tipo_pedido TEXT,
		anio INTEGER,
		porcentaje_comision TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_config_comisiones_marca
		ON config_comisiones(marca_id, anio);

	CREATE TABLE IF NOT EXISTS config_descuento_transporte (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		marca_id INTEGER NOT NULL,
		anio INTEGER,
		porcentaje_descuento TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT
	);

	-- marca_id NULL = generic row for every brand
	CREATE TABLE IF NOT EXISTS config_rapel_presupuesto (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		marca_id INTEGER,
		anio INTEGER,
		porcentaje TEXT NOT NULL DEFAULT '1',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT
	);

	-- Budget templates
	CREATE TABLE IF NOT EXISTS config_cuota_mensual (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plan TEXT NOT NULL,
		anio INTEGER NOT NULL,
		mes INTEGER NOT NULL,
		canal TEXT NOT NULL,
		importe_por_comercial TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT,
		UNIQUE(plan, anio, mes, canal)
	);

	CREATE TABLE IF NOT EXISTS config_reparto_marcas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plan TEXT NOT NULL,
		anio INTEGER NOT NULL,
		canal TEXT NOT NULL,
		marca_id INTEGER NOT NULL,
		porcentaje TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT,
		UNIQUE(plan, anio, canal, marca_id)
	);

	CREATE TABLE IF NOT EXISTS objetivos_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		marca_id INTEGER NOT NULL,
		anio INTEGER NOT NULL,
		mes INTEGER NOT NULL DEFAULT 0,
		canal TEXT NOT NULL DEFAULT '',
		objetivo TEXT NOT NULL DEFAULT '0',
		porcentaje_marca TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT,
		UNIQUE(comercial_id, marca_id, anio, mes, canal)
	);

	-- Commission ledger
	CREATE TABLE IF NOT EXISTS comisiones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		mes INTEGER,
		anio INTEGER NOT NULL,
		fijo_mensual TEXT NOT NULL DEFAULT '0',
		comision_ventas TEXT NOT NULL DEFAULT '0',
		comision_presupuesto TEXT NOT NULL DEFAULT '0',
		total_ventas TEXT NOT NULL DEFAULT '0',
		total_comision TEXT NOT NULL DEFAULT '0',
		estado TEXT NOT NULL DEFAULT 'Pendiente',
		fecha_pago TEXT,
		pagado_por TEXT,
		fecha_pago_ventas TEXT,
		pagado_por_ventas TEXT,
		calculado_por TEXT,
		observaciones TEXT,
		UNIQUE(comercial_id, mes, anio)
	);

	CREATE TABLE IF NOT EXISTS comisiones_detalle (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comision_id INTEGER NOT NULL,
		pedido_id INTEGER,
		articulo_id INTEGER,
		cantidad TEXT NOT NULL DEFAULT '0',
		importe_venta TEXT NOT NULL DEFAULT '0',
		porcentaje_comision TEXT NOT NULL DEFAULT '0',
		importe_comision TEXT NOT NULL DEFAULT '0',
		tipo_concepto TEXT NOT NULL DEFAULT 'Venta',
		observaciones TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_comisiones_detalle_comision
		ON comisiones_detalle(comision_id);

	CREATE TABLE IF NOT EXISTS estado_comisiones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comision_id INTEGER NOT NULL,
		estado TEXT NOT NULL,
		fecha_estado TEXT,
		actualizado_por TEXT,
		observaciones TEXT,
		UNIQUE(comision_id)
	);

	-- Rebate (rapel) ledger
	CREATE TABLE IF NOT EXISTS rapeles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		marca_id INTEGER NOT NULL,
		trimestre INTEGER NOT NULL,
		anio INTEGER NOT NULL,
		ventas_trimestre TEXT NOT NULL DEFAULT '0',
		objetivo_trimestre TEXT NOT NULL DEFAULT '0',
		porcentaje_cumplimiento TEXT NOT NULL DEFAULT '0',
		porcentaje_rapel TEXT NOT NULL DEFAULT '0',
		importe_rapel TEXT NOT NULL DEFAULT '0',
		estado TEXT NOT NULL DEFAULT 'Pendiente',
		fecha_pago TEXT,
		observaciones TEXT,
		UNIQUE(comercial_id, marca_id, trimestre, anio)
	);

	CREATE TABLE IF NOT EXISTS rapeles_configuracion (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		marca_id INTEGER NOT NULL,
		porcentaje_cumplimiento_min TEXT NOT NULL DEFAULT '0',
		porcentaje_cumplimiento_max TEXT NOT NULL DEFAULT '0',
		porcentaje_rapel TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		observaciones TEXT
	);

	-- Fixed monthly pay per brand; anio = 0 AND mes = 0 is the global fallback
	CREATE TABLE IF NOT EXISTS fijos_mensuales_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		marca_id INTEGER NOT NULL,
		anio INTEGER NOT NULL DEFAULT 0,
		mes INTEGER NOT NULL DEFAULT 0,
		importe TEXT NOT NULL DEFAULT '0',
		activo INTEGER NOT NULL DEFAULT 1,
		UNIQUE(comercial_id, marca_id, anio, mes)
	);

	CREATE TABLE IF NOT EXISTS condiciones_especiales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER,
		articulo_id INTEGER,
		porcentaje_comision TEXT NOT NULL DEFAULT '0',
		descripcion TEXT,
		activo INTEGER NOT NULL DEFAULT 1,
		fecha_desde TEXT,
		fecha_hasta TEXT
	);

	-- Batch runs
	CREATE TABLE IF NOT EXISTS ejecuciones (
		id TEXT PRIMARY KEY,
		tipo TEXT NOT NULL,
		parametros TEXT,
		estado TEXT NOT NULL DEFAULT 'running',
		resultado TEXT,
		error TEXT,
		iniciado_en TEXT NOT NULL,
		completado_en TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ejecuciones_tipo
		ON ejecuciones(tipo, iniciado_en);
`
