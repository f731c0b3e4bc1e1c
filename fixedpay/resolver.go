/*
Package fixedpay resolves the fixed monthly amount paid per salesperson and brand.

PURPOSE:
  A salesperson may earn a fixed amount per brand each month on top of sales
  commission. Amounts can be set for a specific (year, month) or once as a
  global fallback (year = 0, month = 0) that applies to every period without
  its own row.

MERGE RULE (period requested):
  For each (salesperson, brand) key:
    1. a row for the requested (year, month) wins
    2. else the global (0, 0) row
    3. else any residual row (NULL period columns left by old imports)
  Output rows are re-stamped with the requested period, so callers always see
  the period they asked for.

SCHEMA SHAPES:
  Current:  fijos_mensuales_marca(comercial_id, marca_id, anio, mes, importe, activo)
  Legacy:   fijos_mensuales_marca(comercial_id, marca_id, importe, activo)
  Legacy rows are implicitly global. The shape is probed once and cached; a
  later "unknown column" rejection flips the cached flag to legacy for the
  rest of the process.

SEE ALSO:
  - schema/resolver.go: HasColumns / Invalidate
  - commissions/calculator.go: MonthlyTotal feeds fixedMonthly
*/
package fixedpay

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// Amount is one fixed monthly amount.
type Amount struct {
	ID            int64                 `json:"id"`
	SalespersonID generic.SalespersonID `json:"salesperson_id"`
	BrandID       generic.BrandID       `json:"brand_id"`
	Year          int                   `json:"year"`
	Month         int                   `json:"month"`
	Amount        decimal.Decimal       `json:"amount"`
	Active        bool                  `json:"active"`
}

// Filter narrows Get. Nil fields are ignored.
type Filter struct {
	SalespersonID *generic.SalespersonID
	BrandID       *generic.BrandID
	Year          *int
	Month         *int
	Active        *bool
}

// Resolver reads and writes fixed amounts.
type Resolver struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger

	mu         sync.Mutex
	periodCols *bool // nil until probed
}

// NewResolver creates a Resolver.
func NewResolver(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{q: q, schema: sch, log: log.Named("fixedpay")}
}

// =============================================================================
// CAPABILITY
// =============================================================================

// HasPeriodColumns reports whether the table carries year/month columns.
// The first successful probe is cached.
func (r *Resolver) HasPeriodColumns(ctx context.Context) (bool, error) {
	r.mu.Lock()
	cached := r.periodCols
	r.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	table, err := r.table(ctx)
	if err != nil {
		return false, err
	}
	ok, err := r.schema.HasColumns(ctx, table, "anio", "mes")
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	r.periodCols = &ok
	r.mu.Unlock()
	if !ok {
		r.log.Info("fixed amounts table has no period columns, using legacy shape", zap.String("table", table))
	}
	return ok, nil
}

func (r *Resolver) degrade(table string, cause error) {
	r.mu.Lock()
	r.periodCols = generic.Ptr(false)
	r.mu.Unlock()
	r.schema.Invalidate(table)
	r.log.Warn("period columns rejected by store, falling back to legacy shape",
		zap.String("table", table), zap.Error(cause))
}

func (r *Resolver) table(ctx context.Context) (string, error) {
	return r.schema.ResolveTable(ctx, schema.TableFixedAmounts)
}

// =============================================================================
// READ
// =============================================================================

// Get returns fixed amounts matching f.
//
//   - Year and Month set: one merged row per (salesperson, brand), stamped
//     with the requested period
//   - Year only: that year's rows plus every global row, unmerged
//   - otherwise: every matching row
func (r *Resolver) Get(ctx context.Context, f Filter) ([]Amount, error) {
	if f.Month != nil && (*f.Month < 0 || *f.Month > 12) {
		return nil, generic.NewValidationError("month", "must be between 0 and 12")
	}
	table, err := r.table(ctx)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return []Amount{}, nil
		}
		return nil, err
	}

	period, err := r.HasPeriodColumns(ctx)
	if err != nil {
		return nil, err
	}
	if period {
		rows, err := r.getPeriod(ctx, table, f)
		if err == nil || !generic.IsSchemaDrift(err) {
			return rows, err
		}
		r.degrade(table, err)
	}
	return r.getLegacy(ctx, table, f)
}

func (r *Resolver) getPeriod(ctx context.Context, table string, f Filter) ([]Amount, error) {
	where, args := commonWhere(f)
	merge := f.Year != nil && f.Month != nil

	switch {
	case merge:
		where = append(where, "((anio = ? AND mes = ?) OR (anio = 0 AND mes = 0) OR anio IS NULL OR mes IS NULL)")
		args = append(args, *f.Year, *f.Month)
	case f.Year != nil:
		where = append(where, "(anio = ? OR (anio = 0 AND mes = 0))")
		args = append(args, *f.Year)
	}

	var rows []Amount
	err := r.q.Query(ctx, fmt.Sprintf(`
		SELECT id, comercial_id, marca_id, anio, mes, importe, activo
		FROM %s WHERE %s
		ORDER BY comercial_id, marca_id, COALESCE(anio, 0), COALESCE(mes, 0), id`,
		r.q.Dialect().QuoteIdent(table), strings.Join(where, " AND ")), args,
		func(row generic.RowScanner) error {
			var (
				a             Amount
				person, brand int64
				year, month   sql.NullInt64
				amount        decimal.NullDecimal
			)
			if err := row.Scan(&a.ID, &person, &brand, &year, &month, &amount, &a.Active); err != nil {
				return err
			}
			a.SalespersonID = generic.SalespersonID(person)
			a.BrandID = generic.BrandID(brand)
			a.Year = int(year.Int64)
			a.Month = int(month.Int64)
			a.Amount = amount.Decimal
			if !year.Valid || !month.Valid {
				a.Year, a.Month = -1, -1
			}
			rows = append(rows, a)
			return nil
		})
	if err != nil {
		return nil, err
	}

	if !merge {
		for i := range rows {
			if rows[i].Year < 0 {
				rows[i].Year, rows[i].Month = 0, 0
			}
		}
		if rows == nil {
			rows = []Amount{}
		}
		return rows, nil
	}
	return mergePeriod(rows, *f.Year, *f.Month), nil
}

func (r *Resolver) getLegacy(ctx context.Context, table string, f Filter) ([]Amount, error) {
	where, args := commonWhere(f)

	rows := []Amount{}
	err := r.q.Query(ctx, fmt.Sprintf(`
		SELECT id, comercial_id, marca_id, importe, activo
		FROM %s WHERE %s
		ORDER BY comercial_id, marca_id, id`,
		r.q.Dialect().QuoteIdent(table), strings.Join(where, " AND ")), args,
		func(row generic.RowScanner) error {
			var (
				a             Amount
				person, brand int64
				amount        decimal.NullDecimal
			)
			if err := row.Scan(&a.ID, &person, &brand, &amount, &a.Active); err != nil {
				return err
			}
			a.SalespersonID = generic.SalespersonID(person)
			a.BrandID = generic.BrandID(brand)
			a.Amount = amount.Decimal
			rows = append(rows, a)
			return nil
		})
	if err != nil {
		return nil, err
	}

	// Legacy rows are global: with a full period requested they are the
	// merged answer for it.
	if f.Year != nil && f.Month != nil {
		return mergePeriod(rows, *f.Year, *f.Month), nil
	}
	return rows, nil
}

type pairKey struct {
	person generic.SalespersonID
	brand  generic.BrandID
}

// mergePeriod keeps one row per (salesperson, brand): specific period first,
// then global, then residual. Input order is preserved for the output.
func mergePeriod(rows []Amount, year, month int) []Amount {
	rank := func(a Amount) int {
		switch {
		case a.Year == year && a.Month == month:
			return 0
		case a.Year == 0 && a.Month == 0:
			return 1
		default:
			return 2
		}
	}

	best := make(map[pairKey]int)
	var order []pairKey
	for i, a := range rows {
		k := pairKey{a.SalespersonID, a.BrandID}
		j, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if rank(a) < rank(rows[j]) {
			best[k] = i
		}
	}

	out := make([]Amount, 0, len(order))
	for _, k := range order {
		a := rows[best[k]]
		a.Year, a.Month = year, month
		out = append(out, a)
	}
	return out
}

func commonWhere(f Filter) ([]string, []any) {
	where := []string{"1 = 1"}
	var args []any
	if f.SalespersonID != nil {
		where = append(where, "comercial_id = ?")
		args = append(args, int64(*f.SalespersonID))
	}
	if f.BrandID != nil {
		where = append(where, "marca_id = ?")
		args = append(args, int64(*f.BrandID))
	}
	if f.Active != nil {
		where = append(where, "activo = ?")
		args = append(args, *f.Active)
	}
	return where, args
}

// MonthlyTotal sums the active merged amounts of a salesperson for a month.
func (r *Resolver) MonthlyTotal(ctx context.Context, salesperson generic.SalespersonID, year, month int) (decimal.Decimal, error) {
	rows, err := r.Get(ctx, Filter{
		SalespersonID: &salesperson,
		Year:          &year,
		Month:         &month,
		Active:        generic.Ptr(true),
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range rows {
		total = total.Add(a.Amount)
	}
	return total, nil
}

// =============================================================================
// WRITE
// =============================================================================

func validateKey(a Amount) error {
	if err := generic.RequirePositive("salesperson_id", int64(a.SalespersonID)); err != nil {
		return err
	}
	if err := generic.RequirePositive("brand_id", int64(a.BrandID)); err != nil {
		return err
	}
	if a.Year < 0 {
		return generic.NewValidationError("year", "must not be negative")
	}
	if a.Month < 0 || a.Month > 12 {
		return generic.NewValidationError("month", "must be between 0 and 12")
	}
	if a.Year == 0 && a.Month != 0 {
		return generic.NewValidationError("month", "must be 0 for the global row")
	}
	return nil
}

// SaveForPeriod upserts the amount keyed by (salesperson, brand, year, month).
// Without period columns it saves the legacy per-pair row instead.
func (r *Resolver) SaveForPeriod(ctx context.Context, a Amount) (int64, error) {
	if err := validateKey(a); err != nil {
		return 0, err
	}
	table, err := r.table(ctx)
	if err != nil {
		return 0, err
	}
	period, err := r.HasPeriodColumns(ctx)
	if err != nil {
		return 0, err
	}
	if period {
		id, err := generic.Upsert(ctx, r.q, generic.UpsertSpec{
			Table: table,
			Key: []generic.Column{
				generic.Col("comercial_id", int64(a.SalespersonID)),
				generic.Col("marca_id", int64(a.BrandID)),
				generic.Col("anio", a.Year),
				generic.Col("mes", a.Month),
			},
			Set: []generic.Column{
				generic.Col("importe", a.Amount),
				generic.Col("activo", a.Active),
			},
		})
		if err == nil || !generic.IsSchemaDrift(err) {
			return id, err
		}
		r.degrade(table, err)
	}
	return r.saveLegacy(ctx, table, a)
}

// Save writes the period-independent amount for (salesperson, brand).
func (r *Resolver) Save(ctx context.Context, a Amount) (int64, error) {
	a.Year, a.Month = 0, 0
	return r.SaveForPeriod(ctx, a)
}

func (r *Resolver) saveLegacy(ctx context.Context, table string, a Amount) (int64, error) {
	return generic.Upsert(ctx, r.q, generic.UpsertSpec{
		Table: table,
		Key: []generic.Column{
			generic.Col("comercial_id", int64(a.SalespersonID)),
			generic.Col("marca_id", int64(a.BrandID)),
		},
		Set: []generic.Column{
			generic.Col("importe", a.Amount),
			generic.Col("activo", a.Active),
		},
	})
}

// DisableForPeriod sets active = 0 on the row for the period, or on the
// legacy per-pair row. It returns the number of rows changed.
func (r *Resolver) DisableForPeriod(ctx context.Context, salesperson generic.SalespersonID, brand generic.BrandID, year, month int) (int64, error) {
	if err := validateKey(Amount{SalespersonID: salesperson, BrandID: brand, Year: year, Month: month}); err != nil {
		return 0, err
	}
	table, err := r.table(ctx)
	if err != nil {
		return 0, err
	}
	qt := r.q.Dialect().QuoteIdent(table)

	period, err := r.HasPeriodColumns(ctx)
	if err != nil {
		return 0, err
	}
	if period {
		res, err := r.q.Exec(ctx, fmt.Sprintf(
			"UPDATE %s SET activo = 0 WHERE comercial_id = ? AND marca_id = ? AND anio = ? AND mes = ?", qt),
			int64(salesperson), int64(brand), year, month)
		if err == nil || !generic.IsSchemaDrift(err) {
			return res.AffectedRows, err
		}
		r.degrade(table, err)
	}

	res, err := r.q.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET activo = 0 WHERE comercial_id = ? AND marca_id = ?", qt),
		int64(salesperson), int64(brand))
	return res.AffectedRows, err
}
