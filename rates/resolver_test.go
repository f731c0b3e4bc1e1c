package rates_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/rates"
	"github.com/warp/commission-engine/schema"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
)

func newResolver(t *testing.T) (*rates.Resolver, *sqldb.DB) {
	t.Helper()
	db := sqlitetest.New(t)
	return rates.NewResolver(db, schema.NewCatalog(db, nil), nil), db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCanonicalOrderType(t *testing.T) {
	assert.Equal(t, rates.OrderTypeTransfer, rates.CanonicalOrderType("Transfer Farmacia"))
	assert.Equal(t, rates.OrderTypeTransfer, rates.CanonicalOrderType("TRANSFER"))
	assert.Equal(t, rates.OrderTypeDirect, rates.CanonicalOrderType("Normal"))
	assert.Equal(t, rates.OrderTypeDirect, rates.CanonicalOrderType(""))
}

func TestCommissionRate_NilBrandFailsClosed(t *testing.T) {
	// GIVEN: a rate configured for brand 1
	r, db := newResolver(t)
	sqlitetest.Exec(t, db, `INSERT INTO config_comisiones (marca_id, nombre_tipo_pedido, anio, porcentaje_comision)
		VALUES (1, 'Directo', NULL, 5)`)

	// WHEN: the brand is omitted
	rate := r.CommissionRate(context.Background(), nil, "Directo", 2025, nil)

	// THEN: no rate, regardless of configured rows
	assert.Nil(t, rate)
}

func TestCommissionRate_YearIndependentTier(t *testing.T) {
	r, db := newResolver(t)
	sqlitetest.Exec(t, db, `INSERT INTO config_comisiones (marca_id, nombre_tipo_pedido, anio, porcentaje_comision)
		VALUES (1, 'Directo', NULL, 4.5)`)
	brand := generic.BrandID(1)

	rate := r.CommissionRate(context.Background(), &brand, "Pedido normal", 2025, nil)

	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("4.5")), rate.String())
}

func TestCommissionRate_Priority(t *testing.T) {
	// GIVEN: all four tiers for brand 1 / order type 7 ("Transfer")
	r, db := newResolver(t)
	ctx := context.Background()
	insert := func(typeID any, name any, year any, pct float64) int64 {
		return sqlitetest.Insert(t, db, `INSERT INTO config_comisiones
			(marca_id, tipo_pedido_id, nombre_tipo_pedido, anio, porcentaje_comision) VALUES (1, ?, ?, ?, ?)`,
			typeID, name, year, pct)
	}
	idYear := insert(7, nil, 2025, 1)
	nameYear := insert(nil, "Transfer", 2025, 2)
	idAny := insert(7, nil, nil, 3)
	insert(nil, "transfer", 0, 4)

	brand := generic.BrandID(1)
	typeID := generic.OrderTypeID(7)

	// THEN: (a) wins when everything matches
	rate := r.CommissionRate(ctx, &brand, "Transfer", 2025, &typeID)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("1")))

	// (b) once (a) is gone
	sqlitetest.Exec(t, db, "UPDATE config_comisiones SET activo = 0 WHERE id = ?", idYear)
	rate = r.CommissionRate(ctx, &brand, "Transfer", 2025, &typeID)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("2")))

	// (c)
	sqlitetest.Exec(t, db, "DELETE FROM config_comisiones WHERE id = ?", nameYear)
	rate = r.CommissionRate(ctx, &brand, "Transfer", 2025, &typeID)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("3")))

	// (d), matched case-insensitively on the canonical name
	sqlitetest.Exec(t, db, "DELETE FROM config_comisiones WHERE id = ?", idAny)
	rate = r.CommissionRate(ctx, &brand, "TRANSFER especial", 2025, &typeID)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("4")))

	// another brand has nothing
	other := generic.BrandID(2)
	assert.Nil(t, r.CommissionRate(ctx, &other, "Transfer", 2025, &typeID))
}

func TestCommissionRate_StoreFailureReturnsNil(t *testing.T) {
	// GIVEN: a database without the configuration table
	db := sqlitetest.Empty(t)
	r := rates.NewResolver(db, schema.NewCatalog(db, nil), nil)
	brand := generic.BrandID(1)

	assert.Nil(t, r.CommissionRate(context.Background(), &brand, "Directo", 2025, nil))
	assert.True(t, r.TransportDiscount(context.Background(), &brand, 2025).IsZero())
	assert.True(t, r.BudgetRebatePercentage(context.Background(), &brand, 2025).Equal(rates.DefaultBudgetRebatePercentage))
}

func TestTransportDiscount(t *testing.T) {
	r, db := newResolver(t)
	ctx := context.Background()
	brand := generic.BrandID(1)

	// unconfigured
	assert.True(t, r.TransportDiscount(ctx, &brand, 2025).IsZero())
	assert.True(t, r.TransportDiscount(ctx, nil, 2025).IsZero())

	// year-independent row
	sqlitetest.Exec(t, db, "INSERT INTO config_descuento_transporte (marca_id, anio, porcentaje_descuento) VALUES (1, NULL, 3)")
	assert.True(t, r.TransportDiscount(ctx, &brand, 2025).Equal(dec("3")))

	// exact year wins
	sqlitetest.Exec(t, db, "INSERT INTO config_descuento_transporte (marca_id, anio, porcentaje_descuento) VALUES (1, 2025, 5)")
	assert.True(t, r.TransportDiscount(ctx, &brand, 2025).Equal(dec("5")))

	// explicitly inactive exact-year row means no discount
	sqlitetest.Exec(t, db, "UPDATE config_descuento_transporte SET activo = 0 WHERE anio = 2025")
	assert.True(t, r.TransportDiscount(ctx, &brand, 2025).IsZero())
	assert.True(t, r.TransportDiscount(ctx, &brand, 2024).Equal(dec("3")))
}

func TestBudgetRebatePercentage(t *testing.T) {
	r, db := newResolver(t)
	ctx := context.Background()
	brand := generic.BrandID(1)

	assert.True(t, r.BudgetRebatePercentage(ctx, &brand, 2025).Equal(dec("1")))

	sqlitetest.Exec(t, db, "INSERT INTO config_rapel_presupuesto (marca_id, anio, porcentaje) VALUES (NULL, NULL, 1.5)")
	assert.True(t, r.BudgetRebatePercentage(ctx, &brand, 2025).Equal(dec("1.5")))
	assert.True(t, r.BudgetRebatePercentage(ctx, nil, 2025).Equal(dec("1.5")))

	sqlitetest.Exec(t, db, "INSERT INTO config_rapel_presupuesto (marca_id, anio, porcentaje) VALUES (1, NULL, 2)")
	assert.True(t, r.BudgetRebatePercentage(ctx, &brand, 2025).Equal(dec("2")))
	assert.True(t, r.BudgetRebatePercentage(ctx, nil, 2025).Equal(dec("1.5")))
}

func TestRebatePercentage_Tiers(t *testing.T) {
	r, db := newResolver(t)
	ctx := context.Background()
	sqlitetest.Exec(t, db, `INSERT INTO rapeles_configuracion
		(marca_id, porcentaje_cumplimiento_min, porcentaje_cumplimiento_max, porcentaje_rapel)
		VALUES (1, 80, 100, 1), (1, 100, 120, 2), (1, 120, 1000, 3)`)
	brand := generic.BrandID(1)

	assert.True(t, r.RebatePercentage(ctx, brand, dec("79.99")).IsZero())
	assert.True(t, r.RebatePercentage(ctx, brand, dec("80")).Equal(dec("1")))
	assert.True(t, r.RebatePercentage(ctx, brand, dec("100")).Equal(dec("2")))
	assert.True(t, r.RebatePercentage(ctx, brand, dec("150")).Equal(dec("3")))
	assert.True(t, r.RebatePercentage(ctx, generic.BrandID(2), dec("150")).IsZero())
}

func TestRebatePercentage_BoundsCompareAsNumbers(t *testing.T) {
	// GIVEN: tiers whose bounds sort differently as text and as numbers
	r, db := newResolver(t)
	ctx := context.Background()
	sqlitetest.Exec(t, db, `INSERT INTO rapeles_configuracion
		(marca_id, porcentaje_cumplimiento_min, porcentaje_cumplimiento_max, porcentaje_rapel)
		VALUES (1, '100', '150', '2'), (1, '9.5', '50', '0.25'), (1, '50', '100', '1.125')`)
	brand := generic.BrandID(1)

	// THEN: each achievement lands in its numeric range
	assert.True(t, r.RebatePercentage(ctx, brand, dec("75")).Equal(dec("1.125")))
	assert.True(t, r.RebatePercentage(ctx, brand, dec("10")).Equal(dec("0.25")))
	assert.True(t, r.RebatePercentage(ctx, brand, dec("120")).Equal(dec("2")))
	assert.True(t, r.RebatePercentage(ctx, brand, dec("9")).IsZero())
	assert.True(t, r.RebatePercentage(ctx, brand, dec("150")).IsZero())
}

func TestSaveAndListCommissionRates(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	_, err := r.SaveCommissionRate(ctx, rates.CommissionRateRow{Percentage: dec("3")})
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	id, err := r.SaveCommissionRate(ctx, rates.CommissionRateRow{
		BrandID: 1, OrderTypeName: "transfer hospital", Percentage: dec("3"), Active: true,
	})
	require.NoError(t, err)
	_, err = r.SaveCommissionRate(ctx, rates.CommissionRateRow{
		BrandID: 1, OrderTypeName: "Directo", Year: generic.Ptr(2025), Percentage: dec("6"), Active: true,
	})
	require.NoError(t, err)

	rows, err := r.ListCommissionRates(ctx, rates.RateFilter{BrandID: generic.Ptr(generic.BrandID(1))})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, rates.OrderTypeTransfer, rows[0].OrderTypeName)
	assert.Nil(t, rows[0].Year)
	assert.Equal(t, 2025, *rows[1].Year)

	// update by id
	_, err = r.SaveCommissionRate(ctx, rates.CommissionRateRow{
		ID: id, BrandID: 1, OrderTypeName: "Transfer", Percentage: dec("3.5"), Active: true,
	})
	require.NoError(t, err)
	brand := generic.BrandID(1)
	rate := r.CommissionRate(ctx, &brand, "Transfer", 2030, nil)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(dec("3.5")))
}

func TestSaveTransportDiscount_FallsBackWithoutUniqueKey(t *testing.T) {
	// config_descuento_transporte has no unique key on (marca_id, anio)
	r, _ := newResolver(t)
	ctx := context.Background()

	id1, err := r.SaveTransportDiscount(ctx, 1, 2025, dec("2"), true)
	require.NoError(t, err)
	id2, err := r.SaveTransportDiscount(ctx, 1, 2025, dec("4"), true)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	brand := generic.BrandID(1)
	assert.True(t, r.TransportDiscount(ctx, &brand, 2025).Equal(dec("4")))
}
