package commissions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/fixedpay"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rates"
	"github.com/warp/commission-engine/sales"
	"go.uber.org/zap"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes the monthly commission of a salesperson from the order
// lines of the month and writes it through the Ledger.
type Calculator struct {
	Ledger     *Ledger
	Sales      *sales.Reader
	Rates      *rates.Resolver
	FixedPay   *fixedpay.Resolver
	Objectives *objectives.Store
	Log        *zap.Logger
}

type rateKey struct {
	brand  generic.BrandID
	typeID generic.OrderTypeID
	name   string
}

// Compute recomputes the commission record of (salesperson, year, month):
//
//  1. every non-cancelled order line of the month gets a percentage: the most
//     specific special condition, else the configured brand rate
//  2. the commissionable base is the subtotal less the brand's transport
//     discount; the line commission is rounded to cents
//  3. fixed pay is the resolved monthly total
//  4. each brand whose sales reach its positive monthly objective adds the
//     budget rebate percentage of its sales
//
// Detail lines are replaced wholesale. A pending or new record becomes
// Calculado; any other state is kept.
func (c *Calculator) Compute(ctx context.Context, salesperson generic.SalespersonID, year, month int, actor string) (*Record, error) {
	if err := generic.RequirePositive("salesperson_id", int64(salesperson)); err != nil {
		return nil, err
	}
	period := generic.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if month == 0 {
		return nil, generic.NewValidationError("month", "must be between 1 and 12")
	}
	log := c.logger().With(zap.Int64("salesperson", int64(salesperson)), zap.Stringer("period", period))

	from, to := period.Bounds()
	lines, err := c.Sales.Lines(ctx, salesperson, from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("reading order lines: %w", err)
	}
	special, err := c.Rates.SpecialConditions(ctx, salesperson)
	if err != nil {
		return nil, fmt.Errorf("reading special conditions: %w", err)
	}

	var (
		details          = make([]DetailLine, 0, len(lines))
		brandSales       = make(map[generic.BrandID]decimal.Decimal)
		rateCache        = make(map[rateKey]*decimal.Decimal)
		discountCache    = make(map[generic.BrandID]decimal.Decimal)
		totalSales       decimal.Decimal
		salesCommission  decimal.Decimal
		unconfiguredSeen = make(map[rateKey]bool)
	)
	for _, line := range lines {
		d := DetailLine{
			OrderID:     generic.Ptr(line.OrderID),
			ArticleID:   generic.Ptr(line.ArticleID),
			Quantity:    line.Quantity,
			SaleAmount:  line.Subtotal,
			ConceptType: ConceptSale,
		}

		var pct *decimal.Decimal
		if cond := rates.MatchSpecial(special, salesperson, line.ArticleID, line.Date); cond != nil {
			pct = &cond.Percentage
			d.Notes = fmt.Sprintf("special condition %d", cond.ID)
		} else {
			key := rateKey{name: rates.CanonicalOrderType(line.OrderTypeName)}
			if line.BrandID != nil {
				key.brand = *line.BrandID
			}
			if line.OrderTypeID != nil {
				key.typeID = *line.OrderTypeID
			}
			var cached bool
			if pct, cached = rateCache[key]; !cached {
				pct = c.Rates.CommissionRate(ctx, line.BrandID, line.OrderTypeName, year, line.OrderTypeID)
				rateCache[key] = pct
			}
			if pct == nil {
				d.Notes = "no commission rate configured"
				if !unconfiguredSeen[key] {
					unconfiguredSeen[key] = true
					log.Warn("no commission rate configured, line commission is 0",
						zap.Int64("brand", int64(key.brand)), zap.String("order_type", key.name),
						zap.Int64("order", int64(line.OrderID)))
				}
			}
		}

		if pct != nil {
			base := line.Subtotal
			if line.BrandID != nil {
				discount, ok := discountCache[*line.BrandID]
				if !ok {
					discount = c.Rates.TransportDiscount(ctx, line.BrandID, year)
					discountCache[*line.BrandID] = discount
				}
				base = base.Sub(generic.ApplyPercent(base, discount))
			}
			d.CommissionPercentage = *pct
			d.CommissionAmount = generic.Money(generic.ApplyPercent(base, *pct))
		}

		totalSales = totalSales.Add(line.Subtotal)
		salesCommission = salesCommission.Add(d.CommissionAmount)
		if line.BrandID != nil {
			brandSales[*line.BrandID] = brandSales[*line.BrandID].Add(line.Subtotal)
		}
		details = append(details, d)
	}

	fixed, err := c.FixedPay.MonthlyTotal(ctx, salesperson, year, month)
	if err != nil {
		return nil, fmt.Errorf("resolving fixed pay: %w", err)
	}
	budget, err := c.budgetCommission(ctx, salesperson, year, month, brandSales)
	if err != nil {
		return nil, err
	}
	total := fixed.Add(salesCommission).Add(budget)

	existing, err := c.Ledger.FindByKey(ctx, salesperson, month, year)
	if err != nil {
		return nil, err
	}
	in := Input{
		SalespersonID:    &salesperson,
		Month:            &month,
		Year:             &year,
		FixedMonthly:     &fixed,
		SalesCommission:  &salesCommission,
		BudgetCommission: &budget,
		TotalSales:       &totalSales,
		TotalCommission:  &total,
		CalculatedBy:     &actor,
	}
	if existing == nil || existing.State.IsPending() {
		in.State = generic.Ptr(generic.StateCalculated)
	}
	rec, err := c.Ledger.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("commission for salesperson %d %s vanished after upsert", salesperson, period)
	}

	if err := c.Ledger.ReplaceDetail(ctx, rec.ID, details); err != nil {
		return nil, fmt.Errorf("replacing detail: %w", err)
	}
	if _, err := c.Ledger.UpsertStatus(ctx, Status{CommissionID: rec.ID, State: rec.State, UpdatedBy: actor}); err != nil {
		if !generic.IsSchemaDrift(err) {
			return nil, err
		}
		log.Debug("status table unavailable", zap.Error(err))
	}

	log.Info("commission computed",
		zap.Int("lines", len(details)),
		zap.Stringer("total_sales", totalSales),
		zap.Stringer("total_commission", total))
	return c.Ledger.Get(ctx, rec.ID)
}

func (c *Calculator) budgetCommission(ctx context.Context, salesperson generic.SalespersonID, year, month int, brandSales map[generic.BrandID]decimal.Decimal) (decimal.Decimal, error) {
	if len(brandSales) == 0 {
		return decimal.Zero, nil
	}
	targets, err := c.Objectives.MonthlyBrandTargets(ctx, salesperson, year, month)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			c.logger().Debug("objectives unavailable, no budget commission", zap.Error(err))
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("reading brand objectives: %w", err)
	}

	budget := decimal.Zero
	for brand, sold := range brandSales {
		target := targets[brand]
		if !target.IsPositive() || sold.LessThan(target) {
			continue
		}
		pct := c.Rates.BudgetRebatePercentage(ctx, generic.Ptr(brand), year)
		budget = budget.Add(generic.Money(generic.ApplyPercent(sold, pct)))
	}
	return budget, nil
}

// ComputeAll computes the month for each salesperson, or for every
// salesperson when none are given. It stops at the first failure.
func (c *Calculator) ComputeAll(ctx context.Context, salespeople []generic.SalespersonID, year, month int, actor string) ([]Record, error) {
	if len(salespeople) == 0 {
		ids, err := c.Sales.SalespersonIDs(ctx)
		if err != nil {
			return nil, err
		}
		salespeople = ids
	}
	out := make([]Record, 0, len(salespeople))
	for _, id := range salespeople {
		rec, err := c.Compute(ctx, id, year, month, actor)
		if err != nil {
			return out, fmt.Errorf("salesperson %d: %w", id, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (c *Calculator) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log.Named("calculator")
}
