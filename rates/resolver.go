/*
Package rates resolves period-scoped business configuration.

PURPOSE:
  Given a brand, an order type and a year, find the applicable commission
  percentage, transport discount, budget rebate percentage or rebate tier.
  Configuration is layered: exact-year rows beat year-independent rows,
  numeric order-type ids beat canonical type names.

LOOKUPS AND THEIR DEFAULTS:
  CommissionRate         brand mandatory; nil when unconfigured (fail closed)
  TransportDiscount      0 when unconfigured or explicitly inactive
  BudgetRebatePercentage brand optional; generic row fallback; 1% default
  RebatePercentage       first active tier [min, max) for the brand; 0 default

COMMISSION RATE PRIORITY (first match wins):
  (a) brand + order type id   + exact year
  (b) brand + canonical name  + exact year
  (c) brand + order type id   + year-independent row
  (d) brand + canonical name  + year-independent row

  There is no brand-less fallback: every brand must be configured
  explicitly.

FAILURE POLICY:
  Store failures never propagate out of a lookup. They are logged and the
  lookup returns its safe default. Callers treat a nil commission rate as
  "zero commission, record a diagnostic".

SEE ALSO:
  - commissions/calculator.go: consumer of CommissionRate / TransportDiscount
  - rapels/calculator.go: consumer of RebatePercentage
*/
package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// ORDER TYPES
// =============================================================================

// Canonical order type names.
const (
	OrderTypeTransfer = "Transfer"
	OrderTypeDirect   = "Directo"
)

// CanonicalOrderType reduces a free-form order type name to the closed
// vocabulary used by configuration rows.
func CanonicalOrderType(name string) string {
	if strings.Contains(strings.ToLower(name), "transfer") {
		return OrderTypeTransfer
	}
	return OrderTypeDirect
}

// DefaultBudgetRebatePercentage applies when no budget rebate row matches.
var DefaultBudgetRebatePercentage = decimal.NewFromInt(1)

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver answers configuration lookups.
type Resolver struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{q: q, schema: sch, log: log.Named("rates")}
}

type candidate struct {
	label string
	where string
	args  []any
}

// CommissionRate returns the commission percentage for a brand and order
// type, or nil when the brand is absent or nothing is configured.
func (r *Resolver) CommissionRate(ctx context.Context, brand *generic.BrandID, orderTypeName string, year int, orderTypeID *generic.OrderTypeID) *decimal.Decimal {
	if brand == nil {
		return nil
	}

	table, err := r.schema.ResolveTable(ctx, schema.TableCommissionCfg)
	if err != nil {
		r.log.Warn("commission configuration unavailable", zap.Error(err))
		return nil
	}

	b := int64(*brand)
	typeName := CanonicalOrderType(orderTypeName)
	yearless := "(anio IS NULL OR anio = 0)"

	var candidates []candidate
	if orderTypeID != nil {
		candidates = append(candidates, candidate{"type id + year",
			"marca_id = ? AND tipo_pedido_id = ? AND anio = ?", []any{b, int64(*orderTypeID), year}})
	}
	candidates = append(candidates, candidate{"type name + year",
		"marca_id = ? AND LOWER(nombre_tipo_pedido) = LOWER(?) AND anio = ?", []any{b, typeName, year}})
	if orderTypeID != nil {
		candidates = append(candidates, candidate{"type id",
			"marca_id = ? AND tipo_pedido_id = ? AND " + yearless, []any{b, int64(*orderTypeID)}})
	}
	candidates = append(candidates, candidate{"type name",
		"marca_id = ? AND LOWER(nombre_tipo_pedido) = LOWER(?) AND " + yearless, []any{b, typeName}})

	quoted := r.q.Dialect().QuoteIdent(table)
	for _, c := range candidates {
		var rate decimal.Decimal
		found, err := generic.QueryRow(ctx, r.q,
			fmt.Sprintf("SELECT porcentaje_comision FROM %s WHERE activo = 1 AND %s ORDER BY id LIMIT 1", quoted, c.where),
			c.args, &rate)
		if err != nil {
			r.log.Warn("commission rate lookup failed",
				zap.Int64("brand", b), zap.String("candidate", c.label), zap.Error(err))
			return nil
		}
		if found {
			return &rate
		}
	}
	return nil
}

// TransportDiscount returns the transport discount percentage for a brand.
// An inactive row shadows any less specific one and yields 0.
func (r *Resolver) TransportDiscount(ctx context.Context, brand *generic.BrandID, year int) decimal.Decimal {
	if brand == nil {
		return decimal.Zero
	}
	table, err := r.schema.ResolveTable(ctx, schema.TableTransportCfg)
	if err != nil {
		r.log.Debug("transport discount configuration unavailable", zap.Error(err))
		return decimal.Zero
	}

	var (
		pct    decimal.Decimal
		active bool
	)
	found, err := generic.QueryRow(ctx, r.q, fmt.Sprintf(`
		SELECT porcentaje_descuento, activo FROM %s
		WHERE marca_id = ? AND (anio = ? OR anio IS NULL OR anio = 0)
		ORDER BY CASE WHEN anio = ? THEN 0 ELSE 1 END, id
		LIMIT 1`, r.q.Dialect().QuoteIdent(table)),
		[]any{int64(*brand), year, year}, &pct, &active)
	if err != nil {
		r.log.Warn("transport discount lookup failed", zap.Int64("brand", int64(*brand)), zap.Error(err))
		return decimal.Zero
	}
	if !found || !active {
		return decimal.Zero
	}
	return pct
}

// BudgetRebatePercentage returns the budget rebate percentage. The brand is
// optional: a brand-specific row is preferred over a generic (NULL brand)
// row, an exact-year row over a year-independent one.
func (r *Resolver) BudgetRebatePercentage(ctx context.Context, brand *generic.BrandID, year int) decimal.Decimal {
	table, err := r.schema.ResolveTable(ctx, schema.TableBudgetRebate)
	if err != nil {
		r.log.Debug("budget rebate configuration unavailable", zap.Error(err))
		return DefaultBudgetRebatePercentage
	}

	brandCond := "marca_id IS NULL"
	args := []any{}
	if brand != nil {
		brandCond = "(marca_id = ? OR marca_id IS NULL)"
		args = append(args, int64(*brand))
	}
	args = append(args, year, year)

	var pct decimal.Decimal
	found, err := generic.QueryRow(ctx, r.q, fmt.Sprintf(`
		SELECT porcentaje FROM %s
		WHERE activo = 1 AND %s AND (anio = ? OR anio IS NULL OR anio = 0)
		ORDER BY CASE WHEN marca_id IS NULL THEN 1 ELSE 0 END,
		         CASE WHEN anio = ? THEN 0 ELSE 1 END, id
		LIMIT 1`, r.q.Dialect().QuoteIdent(table), brandCond),
		args, &pct)
	if err != nil {
		r.log.Warn("budget rebate lookup failed", zap.Error(err))
		return DefaultBudgetRebatePercentage
	}
	if !found {
		return DefaultBudgetRebatePercentage
	}
	return pct
}

// RebatePercentage returns the rebate percentage of the active tier whose
// [min, max) range contains achievement, or 0.
func (r *Resolver) RebatePercentage(ctx context.Context, brand generic.BrandID, achievement decimal.Decimal) decimal.Decimal {
	table, err := r.schema.ResolveTable(ctx, schema.TableRebateTiers)
	if err != nil {
		r.log.Debug("rebate tiers unavailable", zap.Error(err))
		return decimal.Zero
	}

	// Amounts are stored as text; bounds are compared as decimals here.
	var (
		pct     decimal.Decimal
		bestMin decimal.Decimal
		found   bool
	)
	err = r.q.Query(ctx, fmt.Sprintf(`
		SELECT porcentaje_cumplimiento_min, porcentaje_cumplimiento_max, porcentaje_rapel FROM %s
		WHERE activo = 1 AND marca_id = ?
		ORDER BY id`, r.q.Dialect().QuoteIdent(table)),
		[]any{int64(brand)},
		func(row generic.RowScanner) error {
			var lo, hi, p decimal.Decimal
			if err := row.Scan(&lo, &hi, &p); err != nil {
				return err
			}
			if lo.GreaterThan(achievement) || !achievement.LessThan(hi) {
				return nil
			}
			if !found || lo.GreaterThan(bestMin) {
				pct, bestMin, found = p, lo, true
			}
			return nil
		})
	if err != nil {
		r.log.Warn("rebate tier lookup failed", zap.Int64("brand", int64(brand)), zap.Error(err))
		return decimal.Zero
	}
	if !found {
		return decimal.Zero
	}
	return pct
}
