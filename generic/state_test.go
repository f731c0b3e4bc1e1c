package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/commission-engine/generic"
)

func TestState_LegacySpellingsAreSynonyms(t *testing.T) {
	assert.ElementsMatch(t, []generic.State{"Pagado", "Pagada"}, generic.StatePaid.Synonyms())
	assert.ElementsMatch(t, []generic.State{"Pagado", "Pagada"}, generic.StatePaidF.Synonyms())
	assert.ElementsMatch(t, []generic.State{"Calculado", "Calculada"}, generic.StateCalculatedF.Synonyms())
	assert.Equal(t, []generic.State{"Pendiente"}, generic.StatePending.Synonyms())

	assert.True(t, generic.State("Pagada").IsPaid())
	assert.True(t, generic.State("pagado").IsPaid())
	assert.False(t, generic.StateCalculated.IsPaid())
	assert.True(t, generic.State("").IsPending())
}

func TestState_UnknownMatchesOnlyItself(t *testing.T) {
	assert.Equal(t, []generic.State{"Anulado"}, generic.State("Anulado").Synonyms())
}

func TestPeriod_BoundsAndQuarters(t *testing.T) {
	from, to := generic.Period{Year: 2025, Month: 12}.Bounds()
	assert.Equal(t, "2025-12-01", from)
	assert.Equal(t, "2026-01-01", to)

	from, to = generic.Period{Year: 2025}.Bounds()
	assert.Equal(t, "2025-01-01", from)
	assert.Equal(t, "2026-01-01", to)

	assert.Equal(t, 2, generic.QuarterOf(6))
	assert.Equal(t, []int{10, 11, 12}, generic.QuarterMonths(4))

	from, to = generic.QuarterBounds(2025, 2)
	assert.Equal(t, "2025-04-01", from)
	assert.Equal(t, "2025-07-01", to)

	assert.Error(t, generic.Period{Year: 2025, Month: 13}.Validate())
	assert.Error(t, generic.Period{Year: 0, Month: 1}.Validate())
	assert.NoError(t, generic.Period{Year: 2025, Month: 0}.Validate())
}

func TestApplyPercent_IsExact(t *testing.T) {
	amount := decimal.RequireFromString("1234.57")
	pct := decimal.RequireFromString("33.3")

	got := generic.ApplyPercent(amount, pct)

	assert.True(t, got.Equal(decimal.RequireFromString("411.11181")), got.String())
	assert.True(t, generic.Ratio(decimal.NewFromInt(150), decimal.NewFromInt(200)).Equal(decimal.NewFromInt(75)))
	assert.True(t, generic.Ratio(decimal.NewFromInt(1), decimal.Zero).IsZero())
}
