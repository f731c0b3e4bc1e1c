package objectives_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/schema"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *objectives.Store {
	t.Helper()
	db := sqlitetest.New(t)
	return objectives.NewStore(db, schema.NewCatalog(db, nil), nil)
}

// seedPlan configures GEMAVIP 2026: Directo splits 60/40 over brands 1 and 2
// with a quota of 1000 + 100*month; Mayorista one brand at 100% and no quotas.
func seedPlan(t *testing.T, s *objectives.Store) {
	t.Helper()
	ctx := context.Background()
	for month := 1; month <= 12; month++ {
		_, err := s.SaveQuota(ctx, objectives.Quota{
			Plan: "GEMAVIP", Year: 2026, Month: month, Channel: "Directo",
			AmountPerSalesperson: decimal.NewFromInt(int64(1000 + 100*month)), Active: true,
		})
		require.NoError(t, err)
	}
	for _, sp := range []objectives.Split{
		{Plan: "GEMAVIP", Year: 2026, Channel: "Directo", BrandID: 1, Percentage: dec("60"), Active: true},
		{Plan: "GEMAVIP", Year: 2026, Channel: "Directo", BrandID: 2, Percentage: dec("40"), Active: true},
		{Plan: "GEMAVIP", Year: 2026, Channel: "Mayorista", BrandID: 1, Percentage: dec("100"), Active: true},
	} {
		_, err := s.SaveSplit(ctx, sp)
		require.NoError(t, err)
	}
}

func januaryPeople(rows []objectives.Objective) map[generic.SalespersonID]bool {
	out := make(map[generic.SalespersonID]bool)
	for _, o := range rows {
		if o.Month == 1 {
			out[o.SalespersonID] = true
		}
	}
	return out
}

func TestGenerate_JanuaryTransitionRule(t *testing.T) {
	// GIVEN: plan GEMAVIP configured for 2026
	s := newStore(t)
	seedPlan(t, s)
	a := objectives.NewApportioner(s, objectives.Options{}, nil)
	ctx := context.Background()

	// WHEN: generating for salespeople 2 and 3
	res, err := a.Generate(ctx, "GEMAVIP", 2026, []generic.SalespersonID{2, 3}, nil)

	// THEN: both get January rows; 2 people x 12 months x (2 Directo + 1 Mayorista brands)
	require.NoError(t, err)
	assert.Equal(t, 2*12*3, res.Upserts)
	assert.Equal(t, map[generic.SalespersonID]bool{2: true, 3: true}, januaryPeople(res.Objectives))

	// WHEN: salesperson 5 is added
	res, err = a.Generate(ctx, "GEMAVIP", 2026, []generic.SalespersonID{2, 3, 5}, nil)

	// THEN: 5 gets February..December only
	require.NoError(t, err)
	assert.Equal(t, map[generic.SalespersonID]bool{2: true, 3: true}, januaryPeople(res.Objectives))
	assert.Equal(t, 2, res.Skipped) // two channels for salesperson 5

	five := generic.SalespersonID(5)
	rows, err := s.ListObjectives(ctx, objectives.Filter{SalespersonID: &five})
	require.NoError(t, err)
	assert.Len(t, rows, 11*3)
	for _, o := range rows {
		assert.NotEqual(t, 1, o.Month)
	}

	// AND: regenerating did not duplicate rows for 2 and 3
	two := generic.SalespersonID(2)
	rows, err = s.ListObjectives(ctx, objectives.Filter{SalespersonID: &two})
	require.NoError(t, err)
	assert.Len(t, rows, 12*3)
}

func TestGenerate_OtherYearsHaveNoException(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveSplit(ctx, objectives.Split{Plan: "P", Year: 2027, Channel: "Directo", BrandID: 1, Percentage: dec("100"), Active: true})
	require.NoError(t, err)
	a := objectives.NewApportioner(s, objectives.Options{}, nil)

	res, err := a.Generate(ctx, "P", 2027, []generic.SalespersonID{5}, nil)

	require.NoError(t, err)
	assert.Equal(t, 12, res.Upserts)
	assert.True(t, januaryPeople(res.Objectives)[5])
}

func TestGenerate_ObjectiveIsExactQuotaShare(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveQuota(ctx, objectives.Quota{Plan: "P", Year: 2025, Month: 3, Channel: "Directo",
		AmountPerSalesperson: dec("1234.57"), Active: true})
	require.NoError(t, err)
	_, err = s.SaveSplit(ctx, objectives.Split{Plan: "P", Year: 2025, Channel: "Directo", BrandID: 7,
		Percentage: dec("33.3"), Active: true})
	require.NoError(t, err)
	a := objectives.NewApportioner(s, objectives.Options{Channels: []string{"Directo"}}, nil)

	res, err := a.Generate(ctx, "P", 2025, []generic.SalespersonID{1}, nil)

	require.NoError(t, err)
	require.Len(t, res.Objectives, 12)
	for _, o := range res.Objectives {
		quota := decimal.Zero
		if o.Month == 3 {
			quota = dec("1234.57")
		}
		want := quota.Mul(o.BrandPercentage).Div(decimal.NewFromInt(100))
		assert.True(t, o.Objective.Equal(want), "month %d: %s != %s", o.Month, o.Objective, want)
	}
	// missing quotas still produce rows, at 0
	assert.True(t, res.Objectives[0].Objective.IsZero())
}

func TestGenerate_StoredObjectiveIsExact(t *testing.T) {
	// GIVEN: a quota and split whose share needs more digits than a float holds
	s := newStore(t)
	ctx := context.Background()
	quota, pct := dec("12345678.91"), dec("12.345678")
	for month := 1; month <= 12; month++ {
		_, err := s.SaveQuota(ctx, objectives.Quota{Plan: "P", Year: 2026, Month: month, Channel: "Directo",
			AmountPerSalesperson: quota, Active: true})
		require.NoError(t, err)
	}
	_, err := s.SaveSplit(ctx, objectives.Split{Plan: "P", Year: 2026, Channel: "Directo", BrandID: 1,
		Percentage: pct, Active: true})
	require.NoError(t, err)
	a := objectives.NewApportioner(s, objectives.Options{Channels: []string{"Directo"}}, nil)

	// WHEN
	res, err := a.Generate(ctx, "P", 2026, []generic.SalespersonID{2, 3, 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 35, res.Upserts)

	// THEN: the rows read back from the store carry the exact share
	want := quota.Mul(pct).Div(decimal.NewFromInt(100))
	require.True(t, want.Equal(dec("1524157.7651425098")), want.String())
	rows, err := s.ListObjectives(ctx, objectives.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 35)
	for _, o := range rows {
		assert.True(t, o.Objective.Equal(want), "%d/%d: %s != %s", o.SalespersonID, o.Month, o.Objective, want)
		assert.True(t, o.BrandPercentage.Equal(pct), o.BrandPercentage.String())
	}

	// AND: group totals add the stored strings exactly
	groups, err := s.Groups(ctx, objectives.Filter{SalespersonID: generic.Ptr(generic.SalespersonID(2))})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Total.Equal(want.Mul(decimal.NewFromInt(12))), groups[0].Total.String())
}

func TestGenerate_ChannelWithoutSplitsProducesNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveQuota(ctx, objectives.Quota{Plan: "P", Year: 2025, Month: 1, Channel: "Mayorista",
		AmountPerSalesperson: dec("500"), Active: true})
	require.NoError(t, err)
	a := objectives.NewApportioner(s, objectives.Options{}, nil)

	res, err := a.Generate(ctx, "P", 2025, []generic.SalespersonID{1, 2}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Upserts)
	rows, err := s.ListObjectives(ctx, objectives.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGenerate_SplitPolicy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.SaveSplit(ctx, objectives.Split{Plan: "P", Year: 2025, Channel: "Directo", BrandID: 1, Percentage: dec("70"), Active: true})
	require.NoError(t, err)

	// warn: generation proceeds and reports the channel
	res, err := objectives.NewApportioner(s, objectives.Options{}, nil).
		Generate(ctx, "P", 2025, []generic.SalespersonID{1}, nil)
	require.NoError(t, err)
	require.Len(t, res.SplitWarnings, 1)
	assert.Equal(t, "Directo", res.SplitWarnings[0].Channel)
	assert.True(t, res.SplitWarnings[0].Total.Equal(dec("70")))

	// reject: nothing written
	rejecting := objectives.NewApportioner(s, objectives.Options{SplitPolicy: objectives.SplitPolicyReject}, nil)
	_, err = rejecting.Generate(ctx, "P", 2025, []generic.SalespersonID{2}, nil)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	two := generic.SalespersonID(2)
	rows, err := s.ListObjectives(ctx, objectives.Filter{SalespersonID: &two})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGenerate_Validation(t *testing.T) {
	a := objectives.NewApportioner(newStore(t), objectives.Options{}, nil)
	ctx := context.Background()

	_, err := a.Generate(ctx, "", 2025, nil, nil)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	_, err = a.Generate(ctx, "P", 0, nil, nil)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
	_, err = a.Generate(ctx, "P", 2025, []generic.SalespersonID{-1}, nil)
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)
}

func TestParseSplitPolicy(t *testing.T) {
	p, err := objectives.ParseSplitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, objectives.SplitPolicyWarn, p)

	p, err = objectives.ParseSplitPolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, objectives.SplitPolicyReject, p)

	_, err = objectives.ParseSplitPolicy("strict")
	assert.Error(t, err)
}

func TestGroupsAndDeleteGroup(t *testing.T) {
	// GIVEN: monthly objectives for one salesperson/brand/year plus an annual row
	s := newStore(t)
	ctx := context.Background()
	for month := 0; month <= 12; month++ {
		_, err := s.SaveObjective(ctx, objectives.Objective{
			SalespersonID: 4, BrandID: 9, Year: 2025, Month: month, Channel: "Directo",
			Objective: decimal.NewFromInt(10), Active: true,
		})
		require.NoError(t, err)
	}
	_, err := s.SaveObjective(ctx, objectives.Objective{
		SalespersonID: 4, BrandID: 9, Year: 2024, Month: 5, Channel: "Directo",
		Objective: decimal.NewFromInt(1), Active: true,
	})
	require.NoError(t, err)

	// WHEN
	groups, err := s.Groups(ctx, objectives.Filter{Year: generic.Ptr(2025)})

	// THEN
	require.NoError(t, err)
	require.Len(t, groups, 1)
	g := groups[0]
	for q := 0; q < 4; q++ {
		assert.True(t, g.Quarters[q].Equal(decimal.NewFromInt(30)), "quarter %d", q+1)
	}
	assert.True(t, g.Total.Equal(decimal.NewFromInt(130)))
	assert.Equal(t, 13, g.Rows)

	target, err := s.QuarterTarget(ctx, 4, 9, 2025, 2)
	require.NoError(t, err)
	assert.True(t, target.Equal(decimal.NewFromInt(30)))

	// WHEN: the group is deleted
	n, err := s.DeleteGroup(ctx, 4, 9, 2025)

	// THEN: every month row of that year goes, other years stay
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)
	rows, err := s.ListObjectives(ctx, objectives.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2024, rows[0].Year)
}

func TestMonthlyBrandTargets_SumsChannels(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, ch := range []string{"Directo", "Mayorista"} {
		_, err := s.SaveObjective(ctx, objectives.Objective{
			SalespersonID: 1, BrandID: 3, Year: 2025, Month: 6, Channel: ch,
			Objective: decimal.NewFromInt(250), Active: true,
		})
		require.NoError(t, err)
	}

	targets, err := s.MonthlyBrandTargets(ctx, 1, 2025, 6)

	require.NoError(t, err)
	assert.True(t, targets[3].Equal(decimal.NewFromInt(500)))
}
