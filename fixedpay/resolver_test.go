package fixedpay_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/fixedpay"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
)

func newResolver(db *sqldb.DB) *fixedpay.Resolver {
	return fixedpay.NewResolver(db, schema.NewCatalog(db, nil), nil)
}

func amount(person generic.SalespersonID, brand generic.BrandID, year, month int, v int64) fixedpay.Amount {
	return fixedpay.Amount{
		SalespersonID: person, BrandID: brand, Year: year, Month: month,
		Amount: decimal.NewFromInt(v), Active: true,
	}
}

func period(year, month int) fixedpay.Filter {
	return fixedpay.Filter{Year: &year, Month: &month}
}

func TestGet_SpecificPeriodWinsOverGlobal(t *testing.T) {
	// GIVEN: a specific (2025, 6) amount of 100 and a global amount of 50
	db := sqlitetest.New(t)
	r := newResolver(db)
	ctx := context.Background()
	_, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 100))
	require.NoError(t, err)
	_, err = r.Save(ctx, amount(1, 9, 0, 0, 50))
	require.NoError(t, err)

	// WHEN: June is requested
	rows, err := r.Get(ctx, period(2025, 6))

	// THEN: the specific amount, stamped with June
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2025, rows[0].Year)
	assert.Equal(t, 6, rows[0].Month)

	// WHEN: July has no specific row
	rows, err = r.Get(ctx, period(2025, 7))

	// THEN: the global amount, stamped with July
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 7, rows[0].Month)
}

func TestGet_YearOnlyIsUnmerged(t *testing.T) {
	db := sqlitetest.New(t)
	r := newResolver(db)
	ctx := context.Background()
	for _, a := range []fixedpay.Amount{
		amount(1, 9, 2025, 1, 10),
		amount(1, 9, 2025, 2, 20),
		amount(1, 9, 2024, 2, 99),
		amount(1, 9, 0, 0, 5),
	} {
		_, err := r.SaveForPeriod(ctx, a)
		require.NoError(t, err)
	}

	year := 2025
	rows, err := r.Get(ctx, fixedpay.Filter{Year: &year})

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 0, rows[0].Year) // global first
	assert.Equal(t, 1, rows[1].Month)
	assert.Equal(t, 2, rows[2].Month)
}

func TestSaveForPeriod_IsIdempotent(t *testing.T) {
	db := sqlitetest.New(t)
	r := newResolver(db)
	ctx := context.Background()

	id1, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 100))
	require.NoError(t, err)
	id2, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 120))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	total, err := r.MonthlyTotal(ctx, 1, 2025, 6)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(120)))
}

func TestSaveForPeriod_Validation(t *testing.T) {
	r := newResolver(sqlitetest.New(t))
	ctx := context.Background()

	_, err := r.SaveForPeriod(ctx, amount(0, 9, 2025, 6, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	_, err = r.SaveForPeriod(ctx, amount(1, 9, 2025, 13, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	_, err = r.SaveForPeriod(ctx, amount(1, 9, 0, 4, 1))
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
}

func TestDisableForPeriod_GlobalShowsThrough(t *testing.T) {
	// GIVEN: a June 2025 amount and a global amount for the same brand
	db := sqlitetest.New(t)
	r := newResolver(db)
	ctx := context.Background()
	_, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 100))
	require.NoError(t, err)
	_, err = r.Save(ctx, amount(1, 9, 0, 0, 50))
	require.NoError(t, err)

	// WHEN: the June row is disabled
	n, err := r.DisableForPeriod(ctx, 1, 9, 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// THEN: June falls back to the global amount
	total, err := r.MonthlyTotal(ctx, 1, 2025, 6)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(50)))

	// WHEN: June is saved active at 0 instead
	_, err = r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 0))
	require.NoError(t, err)

	// THEN: June pays nothing while other months keep the global amount
	total, err = r.MonthlyTotal(ctx, 1, 2025, 6)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), total.String())
	total, err = r.MonthlyTotal(ctx, 1, 2025, 7)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(50)))
}

func TestLegacyShape_BehavesAsGlobal(t *testing.T) {
	// GIVEN: the period-less table shape
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, `CREATE TABLE fijos_mensuales_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT, comercial_id INTEGER, marca_id INTEGER,
		importe REAL, activo INTEGER DEFAULT 1)`)
	r := newResolver(db)
	ctx := context.Background()

	ok, err := r.HasPeriodColumns(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// WHEN: a period-specific amount is saved twice
	id1, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 100))
	require.NoError(t, err)
	id2, err := r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 70))
	require.NoError(t, err)

	// THEN: one legacy row, returned for any requested period
	assert.Equal(t, id1, id2)
	rows, err := r.Get(ctx, period(2025, 8))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 8, rows[0].Month)

	n, err := r.DisableForPeriod(ctx, 1, 9, 2025, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	total, err := r.MonthlyTotal(ctx, 1, 2025, 8)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestUnknownColumn_FlipsToLegacy(t *testing.T) {
	// GIVEN: the shape is probed while period columns exist
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, `CREATE TABLE fijos_mensuales_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT, comercial_id INTEGER, marca_id INTEGER,
		anio INTEGER, mes INTEGER, importe REAL, activo INTEGER DEFAULT 1)`)
	r := newResolver(db)
	ctx := context.Background()
	ok, err := r.HasPeriodColumns(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// WHEN: the table is replaced by the legacy shape behind the cache
	sqlitetest.Exec(t, db, "DROP TABLE fijos_mensuales_marca")
	sqlitetest.Exec(t, db, `CREATE TABLE fijos_mensuales_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT, comercial_id INTEGER, marca_id INTEGER,
		importe REAL, activo INTEGER DEFAULT 1)`)
	_, err = r.SaveForPeriod(ctx, amount(1, 9, 2025, 6, 100))

	// THEN: the write lands in the legacy shape and the flag stays flipped
	require.NoError(t, err)
	ok, err = r.HasPeriodColumns(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := r.Get(ctx, period(2025, 6))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestGet_ResidualRowLosesToGlobal(t *testing.T) {
	db := sqlitetest.Empty(t)
	sqlitetest.Exec(t, db, `CREATE TABLE fijos_mensuales_marca (
		id INTEGER PRIMARY KEY AUTOINCREMENT, comercial_id INTEGER, marca_id INTEGER,
		anio INTEGER, mes INTEGER, importe REAL, activo INTEGER DEFAULT 1)`)
	sqlitetest.Exec(t, db, "INSERT INTO fijos_mensuales_marca (comercial_id, marca_id, anio, mes, importe) VALUES (1, 9, NULL, NULL, 30)")
	sqlitetest.Exec(t, db, "INSERT INTO fijos_mensuales_marca (comercial_id, marca_id, anio, mes, importe) VALUES (1, 9, 0, 0, 40)")
	r := newResolver(db)

	rows, err := r.Get(context.Background(), period(2025, 3))

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(40)))
}
