package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rapels"
	"github.com/warp/commission-engine/runs"
)

// =============================================================================
// TRACKED BATCH ACTIONS
// =============================================================================
//
// The HTTP API, the scheduler and cmd/batch run these; each records a row in
// the run log.

// ObjectivesParams are the recorded parameters of an objectives run.
type ObjectivesParams struct {
	Plan              string                  `json:"plan"`
	Year              int                     `json:"year"`
	Salespeople       []generic.SalespersonID `json:"salespeople,omitempty"`
	JanuaryExceptions []generic.SalespersonID `json:"january_exceptions,omitempty"`
}

// GenerateObjectives apportions (plan, year) to the given salespeople, or to
// every active salesperson when none are given.
func (e *Engine) GenerateObjectives(ctx context.Context, p ObjectivesParams) (objectives.Result, *runs.Run, error) {
	if len(p.Salespeople) == 0 {
		ids, err := e.Sales.SalespersonIDs(ctx)
		if err != nil {
			return objectives.Result{}, nil, err
		}
		p.Salespeople = ids
	}
	if p.JanuaryExceptions == nil {
		p.JanuaryExceptions = e.JanuaryExceptions
	}
	return runs.Track(ctx, e.Runs, runs.KindObjectives, p, func(ctx context.Context) (objectives.Result, error) {
		return e.Apportioner.Generate(ctx, p.Plan, p.Year, p.Salespeople, p.JanuaryExceptions)
	})
}

// CommissionParams are the recorded parameters of a commissions run.
type CommissionParams struct {
	Year        int                     `json:"year"`
	Month       int                     `json:"month"`
	Salespeople []generic.SalespersonID `json:"salespeople,omitempty"`
	Actor       string                  `json:"actor,omitempty"`
}

// CommissionSummary is the recorded result of a commissions run.
type CommissionSummary struct {
	Records         int             `json:"records"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// ComputeCommissions recomputes the month's commissions.
func (e *Engine) ComputeCommissions(ctx context.Context, p CommissionParams) ([]commissions.Record, *runs.Run, error) {
	var records []commissions.Record
	_, run, err := runs.Track(ctx, e.Runs, runs.KindCommissions, p, func(ctx context.Context) (CommissionSummary, error) {
		var err error
		records, err = e.Calculator.ComputeAll(ctx, p.Salespeople, p.Year, p.Month, p.Actor)
		sum := CommissionSummary{Records: len(records)}
		for _, r := range records {
			sum.TotalSales = sum.TotalSales.Add(r.TotalSales)
			sum.TotalCommission = sum.TotalCommission.Add(r.TotalCommission)
		}
		return sum, err
	})
	return records, run, err
}

// RapelParams are the recorded parameters of a rebates run.
type RapelParams struct {
	Quarter     int                     `json:"quarter"`
	Year        int                     `json:"year"`
	Salespeople []generic.SalespersonID `json:"salespeople,omitempty"`
}

// RapelSummary is the recorded result of a rebates run.
type RapelSummary struct {
	Records     int             `json:"records"`
	TotalRebate decimal.Decimal `json:"total_rebate"`
}

// ComputeRapels recomputes the quarter's rebates.
func (e *Engine) ComputeRapels(ctx context.Context, p RapelParams) ([]rapels.Record, *runs.Run, error) {
	var records []rapels.Record
	_, run, err := runs.Track(ctx, e.Runs, runs.KindRapels, p, func(ctx context.Context) (RapelSummary, error) {
		var err error
		records, err = e.RapelCalculator.ComputeAll(ctx, p.Salespeople, p.Quarter, p.Year)
		sum := RapelSummary{Records: len(records)}
		for _, r := range records {
			sum.TotalRebate = sum.TotalRebate.Add(r.RebateAmount)
		}
		return sum, err
	})
	return records, run, err
}

// ImportPlan imports a parsed plan document.
func (e *Engine) ImportPlan(ctx context.Context, doc *factory.PlanDocument) (factory.ImportResult, *runs.Run, error) {
	params := map[string]any{"plan": doc.Plan, "year": doc.Year, "channels": len(doc.Channels)}
	return runs.Track(ctx, e.Runs, runs.KindPlanImport, params, func(ctx context.Context) (factory.ImportResult, error) {
		return e.Plans.Import(ctx, doc)
	})
}
