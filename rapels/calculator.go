package rapels

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rates"
	"github.com/warp/commission-engine/sales"
	"go.uber.org/zap"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes quarterly rebates and writes them through the Ledger.
type Calculator struct {
	Ledger     *Ledger
	Sales      *sales.Reader
	Rates      *rates.Resolver
	Objectives *objectives.Store
	Log        *zap.Logger
}

// ComputeQuarter recomputes the rebate of (salesperson, brand, quarter, year).
//
// Sales are the brand's order lines in the quarter; the target is the sum of
// the brand objectives of the quarter's months. Achievement is sales over
// target in percent (0 without a target). The tier containing the
// achievement gives the rebate percentage, applied to the sales.
// The record's state is left as it is.
func (c *Calculator) ComputeQuarter(ctx context.Context, salesperson generic.SalespersonID, brand generic.BrandID, quarter, year int) (*Record, error) {
	if err := generic.RequirePositive("salesperson_id", int64(salesperson)); err != nil {
		return nil, err
	}
	if err := generic.RequirePositive("brand_id", int64(brand)); err != nil {
		return nil, err
	}
	if err := generic.ValidateQuarter(quarter); err != nil {
		return nil, err
	}

	from, to := generic.QuarterBounds(year, quarter)
	lines, err := c.Sales.Lines(ctx, salesperson, from, to, &brand)
	if err != nil {
		return nil, fmt.Errorf("reading order lines: %w", err)
	}
	sold := decimal.Zero
	for _, l := range lines {
		sold = sold.Add(l.Subtotal)
	}

	target, err := c.Objectives.QuarterTarget(ctx, salesperson, brand, year, quarter)
	if err != nil {
		return nil, fmt.Errorf("reading quarter target: %w", err)
	}
	achievement := generic.Ratio(sold, target)
	pct := c.Rates.RebatePercentage(ctx, brand, achievement)
	amount := generic.Money(generic.ApplyPercent(sold, pct))

	rec, err := c.Ledger.Upsert(ctx, Input{
		SalespersonID:         &salesperson,
		BrandID:               &brand,
		Quarter:               &quarter,
		Year:                  &year,
		QuarterSales:          &sold,
		QuarterTarget:         &target,
		AchievementPercentage: &achievement,
		RebatePercentage:      &pct,
		RebateAmount:          &amount,
	})
	if err != nil {
		return nil, err
	}

	c.logger().Info("rapel computed",
		zap.Int64("salesperson", int64(salesperson)),
		zap.Int64("brand", int64(brand)),
		zap.Int("quarter", quarter),
		zap.Int("year", year),
		zap.Stringer("achievement", achievement),
		zap.Stringer("amount", amount))
	return rec, nil
}

// ComputeAll computes the quarter for each salesperson (every active one
// when none are given) and every brand with sales or objectives in the
// quarter.
func (c *Calculator) ComputeAll(ctx context.Context, salespeople []generic.SalespersonID, quarter, year int) ([]Record, error) {
	if err := generic.ValidateQuarter(quarter); err != nil {
		return nil, err
	}
	if len(salespeople) == 0 {
		ids, err := c.Sales.SalespersonIDs(ctx)
		if err != nil {
			return nil, err
		}
		salespeople = ids
	}

	from, to := generic.QuarterBounds(year, quarter)
	out := []Record{}
	for _, person := range salespeople {
		brands, err := c.quarterBrands(ctx, person, year, from, to)
		if err != nil {
			return out, fmt.Errorf("salesperson %d: %w", person, err)
		}
		for _, brand := range brands {
			rec, err := c.ComputeQuarter(ctx, person, brand, quarter, year)
			if err != nil {
				return out, fmt.Errorf("salesperson %d brand %d: %w", person, brand, err)
			}
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (c *Calculator) quarterBrands(ctx context.Context, person generic.SalespersonID, year int, from, to string) ([]generic.BrandID, error) {
	seen := make(map[generic.BrandID]bool)
	totals, err := c.Sales.BrandTotals(ctx, person, from, to)
	if err != nil {
		return nil, err
	}
	for b := range totals {
		seen[b] = true
	}
	groups, err := c.Objectives.Groups(ctx, objectives.Filter{SalespersonID: &person, Year: &year})
	if err != nil && !generic.IsSchemaDrift(err) {
		return nil, err
	}
	for _, g := range groups {
		seen[g.BrandID] = true
	}

	brands := make([]generic.BrandID, 0, len(seen))
	for b := range seen {
		if b > 0 {
			brands = append(brands, b)
		}
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i] < brands[j] })
	return brands, nil
}

func (c *Calculator) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log.Named("rapels")
}
