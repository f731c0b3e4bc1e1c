package rapels_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rapels"
	"github.com/warp/commission-engine/rates"
	"github.com/warp/commission-engine/sales"
	"github.com/warp/commission-engine/schema"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCalculator(db *sqldb.DB) *rapels.Calculator {
	sch := schema.NewCatalog(db, nil)
	return &rapels.Calculator{
		Ledger:     rapels.NewLedger(db, sch, nil),
		Sales:      sales.NewReader(db, sch, nil),
		Rates:      rates.NewResolver(db, sch, nil),
		Objectives: objectives.NewStore(db, sch, nil),
	}
}

func key(person generic.SalespersonID, brand generic.BrandID, quarter, year int) rapels.Input {
	return rapels.Input{SalespersonID: &person, BrandID: &brand, Quarter: &quarter, Year: &year}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestUpsert_IdempotentAndPartial(t *testing.T) {
	// GIVEN: an empty ledger
	db := sqlitetest.New(t)
	l := rapels.NewLedger(db, schema.NewCatalog(db, nil), nil)
	ctx := context.Background()

	in := key(1, 2, 1, 2025)
	in.RebateAmount = generic.Ptr(dec("120.5"))

	// WHEN: the same key is upserted twice, then notes are patched by id
	first, err := l.Upsert(ctx, in)
	require.NoError(t, err)
	second, err := l.Upsert(ctx, in)
	require.NoError(t, err)
	patched, err := l.Upsert(ctx, rapels.Input{ID: &first.ID, Notes: generic.Ptr("ok")})
	require.NoError(t, err)

	// THEN: one row, amount caller-supplied and kept
	assert.Equal(t, first.ID, second.ID)
	all, err := l.List(ctx, rapels.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, generic.StatePending, patched.State)
	assert.Equal(t, "ok", patched.Notes)
	assert.True(t, patched.RebateAmount.Equal(dec("120.5")))
}

func TestUpsert_Validation(t *testing.T) {
	db := sqlitetest.New(t)
	l := rapels.NewLedger(db, schema.NewCatalog(db, nil), nil)
	ctx := context.Background()

	for name, in := range map[string]rapels.Input{
		"missing key": {Year: generic.Ptr(2025)},
		"bad quarter": key(1, 2, 5, 2025),
		"bad brand":   key(1, 0, 1, 2025),
		"bad id":      {ID: generic.Ptr(int64(-1))},
	} {
		_, err := l.Upsert(ctx, in)
		assert.True(t, generic.IsClientError(err), name)
	}
}

func TestList_FiltersAndStateSynonyms(t *testing.T) {
	db := sqlitetest.New(t)
	l := rapels.NewLedger(db, schema.NewCatalog(db, nil), nil)
	ctx := context.Background()
	ana := sqlitetest.Salesperson(t, db, "Ana")
	acme := sqlitetest.Brand(t, db, "Acme")

	r1, err := l.Upsert(ctx, key(ana, acme, 1, 2025))
	require.NoError(t, err)
	_, err = l.Upsert(ctx, key(ana, acme, 2, 2025))
	require.NoError(t, err)
	_, err = l.SetState(ctx, r1.ID, generic.StatePaidF, "2025-04-10")
	require.NoError(t, err)

	paid, err := l.List(ctx, rapels.Filter{State: generic.StatePaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, generic.StatePaidF, paid[0].State)
	assert.Equal(t, "2025-04-10", paid[0].PaymentDate)
	assert.Equal(t, "Ana", paid[0].SalespersonName)
	assert.Equal(t, "Acme", paid[0].BrandName)

	q2, err := l.List(ctx, rapels.Filter{Quarter: generic.Ptr(2)})
	require.NoError(t, err)
	require.Len(t, q2, 1)
	assert.Equal(t, 2, q2[0].Quarter)
}

func TestDelete(t *testing.T) {
	db := sqlitetest.New(t)
	l := rapels.NewLedger(db, schema.NewCatalog(db, nil), nil)
	ctx := context.Background()
	rec, err := l.Upsert(ctx, key(1, 2, 1, 2025))
	require.NoError(t, err)

	n, err := l.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTiers(t *testing.T) {
	db := sqlitetest.New(t)
	l := rapels.NewLedger(db, schema.NewCatalog(db, nil), nil)
	ctx := context.Background()

	_, err := l.SaveTier(ctx, rapels.Tier{BrandID: 1, Min: dec("100"), Max: dec("9999"), Percentage: dec("3"), Active: true})
	require.NoError(t, err)
	_, err = l.SaveTier(ctx, rapels.Tier{BrandID: 1, Min: dec("90"), Max: dec("100"), Percentage: dec("1"), Active: false})
	require.NoError(t, err)
	_, err = l.SaveTier(ctx, rapels.Tier{BrandID: 1, Min: dec("50"), Max: dec("50"), Percentage: dec("1")})
	assert.True(t, generic.IsClientError(err))

	all, err := l.Tiers(ctx, generic.Ptr(generic.BrandID(1)), false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Min.Equal(dec("90")))

	active, err := l.Tiers(ctx, nil, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	n, err := l.DeleteTier(ctx, active[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// =============================================================================
// CALCULATOR
// =============================================================================

// seedQuarter gives Ana 1100 of Acme sales in Q1 2025 against a target of
// 1000 and a tier of 2% from 100% achievement.
func seedQuarter(t *testing.T, db *sqldb.DB, c *rapels.Calculator) (generic.SalespersonID, generic.BrandID) {
	t.Helper()
	ctx := context.Background()
	ana := sqlitetest.Salesperson(t, db, "Ana")
	acme := sqlitetest.Brand(t, db, "Acme")
	other := sqlitetest.Brand(t, db, "Other")
	typ := sqlitetest.OrderType(t, db, "Directo")

	crema := sqlitetest.Article(t, db, "Crema", acme)
	gel := sqlitetest.Article(t, db, "Gel", other)
	o := sqlitetest.Order(t, db, ana, typ, "2025-01-15")
	sqlitetest.Line(t, db, o, crema, 1, 600)
	sqlitetest.Line(t, db, o, gel, 1, 9000)
	o = sqlitetest.Order(t, db, ana, typ, "2025-03-31")
	sqlitetest.Line(t, db, o, crema, 1, 500)
	o = sqlitetest.Order(t, db, ana, typ, "2025-04-01")
	sqlitetest.Line(t, db, o, crema, 1, 7000)

	for month, target := range map[int]string{1: "300", 2: "300", 3: "400", 4: "5000"} {
		_, err := c.Objectives.SaveObjective(ctx, objectives.Objective{
			SalespersonID: ana, BrandID: acme, Year: 2025, Month: month, Channel: "Directo",
			Objective: dec(target), Active: true,
		})
		require.NoError(t, err)
	}
	_, err := c.Ledger.SaveTier(ctx, rapels.Tier{BrandID: acme, Min: dec("0"), Max: dec("100"), Percentage: dec("0.5"), Active: true})
	require.NoError(t, err)
	_, err = c.Ledger.SaveTier(ctx, rapels.Tier{BrandID: acme, Min: dec("100"), Max: dec("1000"), Percentage: dec("2"), Active: true})
	require.NoError(t, err)
	return ana, acme
}

func TestComputeQuarter(t *testing.T) {
	// GIVEN
	db := sqlitetest.New(t)
	c := newCalculator(db)
	ctx := context.Background()
	ana, acme := seedQuarter(t, db, c)

	// WHEN
	rec, err := c.ComputeQuarter(ctx, ana, acme, 1, 2025)

	// THEN: 1100 / 1000 = 110% -> 2% of 1100
	require.NoError(t, err)
	assert.True(t, rec.QuarterSales.Equal(dec("1100")), rec.QuarterSales.String())
	assert.True(t, rec.QuarterTarget.Equal(dec("1000")), rec.QuarterTarget.String())
	assert.True(t, rec.AchievementPercentage.Equal(dec("110")), rec.AchievementPercentage.String())
	assert.True(t, rec.RebatePercentage.Equal(dec("2")))
	assert.True(t, rec.RebateAmount.Equal(dec("22")), rec.RebateAmount.String())
	assert.Equal(t, generic.StatePending, rec.State)

	// WHEN: recomputed after being paid
	_, err = c.Ledger.SetState(ctx, rec.ID, generic.StatePaid, "2025-04-20")
	require.NoError(t, err)
	again, err := c.ComputeQuarter(ctx, ana, acme, 1, 2025)

	// THEN: same record, state kept
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, generic.StatePaid, again.State)
}

func TestComputeQuarter_NoTarget(t *testing.T) {
	db := sqlitetest.New(t)
	c := newCalculator(db)
	ctx := context.Background()
	ana, acme := seedQuarter(t, db, c)

	rec, err := c.ComputeQuarter(ctx, ana, acme, 3, 2025)

	require.NoError(t, err)
	assert.True(t, rec.AchievementPercentage.IsZero())
	assert.True(t, rec.RebatePercentage.Equal(dec("0.5")))
	assert.True(t, rec.RebateAmount.IsZero())
}

func TestComputeAll_BrandsWithSalesOrObjectives(t *testing.T) {
	db := sqlitetest.New(t)
	c := newCalculator(db)
	ctx := context.Background()
	seedQuarter(t, db, c)

	recs, err := c.ComputeAll(ctx, nil, 1, 2025)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Acme", recs[0].BrandName)
	assert.Equal(t, "Other", recs[1].BrandName)
	assert.True(t, recs[1].QuarterSales.Equal(dec("9000")))
	assert.True(t, recs[1].RebateAmount.IsZero())
}
