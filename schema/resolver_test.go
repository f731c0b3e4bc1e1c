package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
)

func TestResolveTable_CaseAndAliases(t *testing.T) {
	// GIVEN: a legacy database with capitalised and alternate names
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, "CREATE TABLE Marcas (Id INTEGER PRIMARY KEY, Nombre TEXT)")
	sqlitetest.Exec(t, db, "CREATE TABLE pedidos_lineas (id INTEGER PRIMARY KEY)")
	cat := schema.NewCatalog(db, nil)
	ctx := context.Background()

	// WHEN / THEN
	name, err := cat.ResolveTable(ctx, schema.TableBrands)
	require.NoError(t, err)
	assert.Equal(t, "Marcas", name)

	name, err = cat.ResolveTable(ctx, schema.TableOrderLines)
	require.NoError(t, err)
	assert.Equal(t, "pedidos_lineas", name)

	_, err = cat.ResolveTable(ctx, schema.TableArticles)
	assert.True(t, generic.IsSchemaDrift(err))
}

func TestResolveTable_ReloadsOnMiss(t *testing.T) {
	db := sqlitetest.Empty(t)
	cat := schema.NewCatalog(db, nil)
	ctx := context.Background()

	_, err := cat.ResolveTable(ctx, "late_table")
	require.Error(t, err)

	sqlitetest.Exec(t, db, "CREATE TABLE late_table (id INTEGER)")

	name, err := cat.ResolveTable(ctx, "late_table")
	require.NoError(t, err)
	assert.Equal(t, "late_table", name)
}

func TestResolveColumn_AliasesAndUnderscores(t *testing.T) {
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, "CREATE TABLE articulos (id INTEGER, Id_Marca INTEGER, FechaAlta TEXT)")
	cat := schema.NewCatalog(db, nil)
	ctx := context.Background()

	col, err := cat.ResolveColumn(ctx, "articulos", "marca_id")
	require.NoError(t, err)
	assert.Equal(t, "Id_Marca", col)

	col, err = cat.ResolveColumn(ctx, "articulos", "fecha_alta")
	require.NoError(t, err)
	assert.Equal(t, "FechaAlta", col)

	_, err = cat.ResolveColumn(ctx, "articulos", "precio")
	assert.True(t, generic.IsSchemaDrift(err))
}

func TestHasColumns_CachedUntilInvalidated(t *testing.T) {
	// GIVEN: a fixed-amount table in the legacy (period-less) shape
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, "CREATE TABLE fijos (id INTEGER, comercial_id INTEGER)")
	cat := schema.NewCatalog(db, nil)
	ctx := context.Background()

	ok, err := cat.HasColumns(ctx, "fijos", "anio", "mes")
	require.NoError(t, err)
	assert.False(t, ok)

	// WHEN: the columns are added behind the cache's back
	sqlitetest.Exec(t, db, "ALTER TABLE fijos ADD COLUMN anio INTEGER")
	sqlitetest.Exec(t, db, "ALTER TABLE fijos ADD COLUMN mes INTEGER")

	// THEN: the cached answer stands until invalidated
	ok, err = cat.HasColumns(ctx, "fijos", "anio", "mes")
	require.NoError(t, err)
	assert.False(t, ok)

	cat.Invalidate("fijos")
	ok, err = cat.HasColumns(ctx, "FIJOS", "ANIO", "mes")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPick(t *testing.T) {
	cols := []string{"Id", "Nombre", "marca_id"}

	assert.Equal(t, "Nombre", schema.Pick(cols, "nombre"))
	assert.Equal(t, "marca_id", schema.Pick(cols, "MarcaId"))
	assert.Equal(t, "", schema.Pick(cols, "precio"))
	assert.Equal(t, "Id", schema.Pick(cols, "missing", "id"))
}
