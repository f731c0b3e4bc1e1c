package commissions

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

// Column names of the commission header.
const (
	colSalesperson      = "comercial_id"
	colMonth            = "mes"
	colYear             = "anio"
	colFixed            = "fijo_mensual"
	colSalesCommission  = "comision_ventas"
	colBudgetCommission = "comision_presupuesto"
	colTotalSales       = "total_ventas"
	colTotalCommission  = "total_comision"
	colState            = "estado"
	colPaymentDate      = "fecha_pago"
	colPaidBy           = "pagado_por"
	colPaymentDateSales = "fecha_pago_ventas"
	colPaidBySales      = "pagado_por_ventas"
	colCalculatedBy     = "calculado_por"
	colNotes            = "observaciones"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger reads and writes commission records.
type Ledger struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger

	mu         sync.Mutex
	perConcept *bool // nil until probed
}

// NewLedger creates a Ledger.
func NewLedger(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{q: q, schema: sch, log: log.Named("commissions")}
}

func (l *Ledger) header(ctx context.Context) (string, error) {
	return l.schema.ResolveTable(ctx, schema.TableCommissions)
}

// HasPerConceptPayment reports whether the header has the sales-concept
// payment columns. The first successful probe is cached.
func (l *Ledger) HasPerConceptPayment(ctx context.Context) (bool, error) {
	l.mu.Lock()
	cached := l.perConcept
	l.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	table, err := l.header(ctx)
	if err != nil {
		return false, err
	}
	ok, err := l.schema.HasColumns(ctx, table, colPaymentDateSales, colPaidBySales)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	l.perConcept = &ok
	l.mu.Unlock()
	return ok, nil
}

func (l *Ledger) degradePerConcept(table string, cause error) {
	l.mu.Lock()
	l.perConcept = generic.Ptr(false)
	l.mu.Unlock()
	l.schema.Invalidate(table)
	l.log.Warn("per-concept payment columns rejected, using legacy payment pair",
		zap.String("table", table), zap.Error(cause))
}

// =============================================================================
// UPSERT
// =============================================================================

// Upsert creates or partially updates a commission record.
//
// With an id, only the fields present in the input are updated; a missing
// record yields (nil, nil). Without an id, salesperson, month and year are
// required and identify the record: an existing one is partially updated,
// otherwise a new one is inserted with absent amounts at 0 and state
// Pendiente. The write is a single statement keyed on the natural key. An
// annual record (month 0) also matches a legacy row with a NULL month.
func (l *Ledger) Upsert(ctx context.Context, in Input) (*Record, error) {
	if in.ID != nil {
		if err := generic.RequirePositive("id", *in.ID); err != nil {
			return nil, err
		}
	} else {
		if in.SalespersonID == nil || in.Month == nil || in.Year == nil {
			return nil, generic.NewValidationError("key", "salesperson_id, month and year are required without id")
		}
		if err := generic.RequirePositive("salesperson_id", int64(*in.SalespersonID)); err != nil {
			return nil, err
		}
		if err := (generic.Period{Year: *in.Year, Month: *in.Month}).Validate(); err != nil {
			return nil, err
		}
	}

	table, err := l.header(ctx)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT never matches a stored NULL month, so annual records are
	// resolved to their id first.
	var annualID *int64
	if in.ID == nil && *in.Month == 0 {
		existing, err := l.FindByKey(ctx, *in.SalespersonID, 0, *in.Year)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			annualID = generic.Ptr(int64(existing.ID))
		}
	}

	for attempt := 0; ; attempt++ {
		perConcept, err := l.HasPerConceptPayment(ctx)
		if err != nil {
			return nil, err
		}

		var id int64
		switch {
		case in.ID != nil:
			id = *in.ID
			_, err = generic.UpdateByID(ctx, l.q, table, id, presentColumns(in, perConcept, true))
		case annualID != nil:
			id = *annualID
			_, err = generic.UpdateByID(ctx, l.q, table, id, presentColumns(in, perConcept, false))
		default:
			id, err = generic.Upsert(ctx, l.q, generic.UpsertSpec{
				Table: table,
				Key: []generic.Column{
					generic.Col(colSalesperson, int64(*in.SalespersonID)),
					generic.Col(colMonth, *in.Month),
					generic.Col(colYear, *in.Year),
				},
				Set:      presentColumns(in, perConcept, false),
				Defaults: insertDefaults(in),
			})
		}

		if err != nil && generic.IsSchemaDrift(err) && perConcept && attempt == 0 && in.touchesSalesPayment() {
			l.degradePerConcept(table, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		return l.Get(ctx, generic.CommissionID(id))
	}
}

func (in Input) touchesSalesPayment() bool {
	return in.PaymentDateSales != nil || in.PaidBySales != nil
}

// presentColumns lists the fields present in the input. Key columns are
// included only for id-addressed updates.
func presentColumns(in Input, perConcept, withKey bool) []generic.Column {
	var cols []generic.Column
	add := func(name string, present bool, value func() any) {
		if present {
			cols = append(cols, generic.Col(name, value()))
		}
	}

	if withKey {
		add(colSalesperson, in.SalespersonID != nil, func() any { return int64(*in.SalespersonID) })
		add(colMonth, in.Month != nil, func() any { return *in.Month })
		add(colYear, in.Year != nil, func() any { return *in.Year })
	}
	add(colFixed, in.FixedMonthly != nil, func() any { return *in.FixedMonthly })
	add(colSalesCommission, in.SalesCommission != nil, func() any { return *in.SalesCommission })
	add(colBudgetCommission, in.BudgetCommission != nil, func() any { return *in.BudgetCommission })
	add(colTotalSales, in.TotalSales != nil, func() any { return *in.TotalSales })
	add(colTotalCommission, in.TotalCommission != nil, func() any { return *in.TotalCommission })
	add(colState, in.State != nil, func() any { return string(*in.State) })
	add(colPaymentDate, in.PaymentDate != nil, func() any { return nullString(*in.PaymentDate) })
	add(colPaidBy, in.PaidBy != nil, func() any { return nullString(*in.PaidBy) })

	if perConcept {
		add(colPaymentDateSales, in.PaymentDateSales != nil, func() any { return nullString(*in.PaymentDateSales) })
		add(colPaidBySales, in.PaidBySales != nil, func() any { return nullString(*in.PaidBySales) })
	} else {
		// Only the legacy pair exists: sales payment fields land there unless
		// the caller set the pair explicitly.
		add(colPaymentDate, in.PaymentDateSales != nil && in.PaymentDate == nil,
			func() any { return nullString(*in.PaymentDateSales) })
		add(colPaidBy, in.PaidBySales != nil && in.PaidBy == nil,
			func() any { return nullString(*in.PaidBySales) })
	}

	add(colCalculatedBy, in.CalculatedBy != nil, func() any { return nullString(*in.CalculatedBy) })
	add(colNotes, in.Notes != nil, func() any { return nullString(*in.Notes) })
	return cols
}

func insertDefaults(in Input) []generic.Column {
	var cols []generic.Column
	zero := func(name string, absent bool) {
		if absent {
			cols = append(cols, generic.Col(name, decimal.Zero))
		}
	}
	zero(colFixed, in.FixedMonthly == nil)
	zero(colSalesCommission, in.SalesCommission == nil)
	zero(colBudgetCommission, in.BudgetCommission == nil)
	zero(colTotalSales, in.TotalSales == nil)
	zero(colTotalCommission, in.TotalCommission == nil)
	if in.State == nil {
		cols = append(cols, generic.Col(colState, string(generic.StatePending)))
	}
	return cols
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// =============================================================================
// READ
// =============================================================================

// Get returns a record by id, or nil.
func (l *Ledger) Get(ctx context.Context, id generic.CommissionID) (*Record, error) {
	if err := generic.RequirePositive("id", int64(id)); err != nil {
		return nil, err
	}
	records, err := l.list(ctx, []string{"c.id = ?"}, []any{int64(id)})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// FindByKey returns the record of (salesperson, month, year), or nil. Month 0
// also matches a stored NULL month.
func (l *Ledger) FindByKey(ctx context.Context, salesperson generic.SalespersonID, month, year int) (*Record, error) {
	records, err := l.list(ctx,
		[]string{"c." + colSalesperson + " = ?", "COALESCE(c." + colMonth + ", 0) = ?", "c." + colYear + " = ?"},
		[]any{int64(salesperson), month, year})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// List returns records ordered by salesperson name, year descending, month
// ascending with annual (month 0 / NULL) records last within their year.
// A state filter matches every legacy spelling of the state.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.SalespersonID != nil {
		where = append(where, "c."+colSalesperson+" = ?")
		args = append(args, int64(*f.SalespersonID))
	}
	if f.Year != nil {
		where = append(where, "c."+colYear+" = ?")
		args = append(args, *f.Year)
	}
	if f.Month != nil {
		where = append(where, "COALESCE(c."+colMonth+", 0) = ?")
		args = append(args, *f.Month)
	}
	if f.State != "" {
		syn := f.State.SynonymArgs()
		where = append(where, fmt.Sprintf("c.%s IN (%s)", colState, generic.Placeholders(len(syn))))
		args = append(args, syn...)
	}
	return l.list(ctx, where, args)
}

func (l *Ledger) list(ctx context.Context, where []string, args []any) ([]Record, error) {
	table, err := l.header(ctx)
	if err != nil {
		return nil, err
	}
	perConcept, err := l.HasPerConceptPayment(ctx)
	if err != nil {
		return nil, err
	}
	records, err := l.listOnce(ctx, table, perConcept, where, args)
	if err != nil && perConcept && generic.IsSchemaDrift(err) {
		l.degradePerConcept(table, err)
		return l.listOnce(ctx, table, false, where, args)
	}
	return records, err
}

func (l *Ledger) listOnce(ctx context.Context, table string, perConcept bool, where []string, args []any) ([]Record, error) {
	qi := l.q.Dialect().QuoteIdent

	salesDate, salesBy := "NULL", "NULL"
	if perConcept {
		salesDate, salesBy = "c."+colPaymentDateSales, "c."+colPaidBySales
	}

	nameExpr, nameOrder, peopleJoin := "''", "c."+colSalesperson, ""
	if people, idCol, nameCol, ok := l.salespeopleNames(ctx); ok {
		nameExpr = "COALESCE(s." + qi(nameCol) + ", '')"
		nameOrder = "s." + qi(nameCol)
		peopleJoin = fmt.Sprintf(" LEFT JOIN %s s ON s.%s = c.%s", qi(people), qi(idCol), colSalesperson)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.%s, %s, COALESCE(c.%s, 0), c.%s,
		       COALESCE(c.%s, 0), COALESCE(c.%s, 0), COALESCE(c.%s, 0), COALESCE(c.%s, 0), COALESCE(c.%s, 0),
		       c.%s, c.%s, c.%s, %s, %s, c.%s, c.%s
		FROM %s c%s%s
		ORDER BY %s ASC, c.%s DESC,
		         CASE WHEN c.%s IS NULL OR c.%s = 0 THEN 13 ELSE c.%s END ASC, c.id`,
		colSalesperson, nameExpr, colMonth, colYear,
		colFixed, colSalesCommission, colBudgetCommission, colTotalSales, colTotalCommission,
		colState, colPaymentDate, colPaidBy, salesDate, salesBy, colCalculatedBy, colNotes,
		qi(table), peopleJoin, whereSQL,
		nameOrder, colYear,
		colMonth, colMonth, colMonth)

	records := []Record{}
	err := l.q.Query(ctx, query, args, func(row generic.RowScanner) error {
		var (
			r                                  Record
			id, person                         int64
			state                              sql.NullString
			payDate, paidBy, payDateS, paidByS sql.NullString
			calcBy, notes                      sql.NullString
		)
		if err := row.Scan(&id, &person, &r.SalespersonName, &r.Month, &r.Year,
			&r.FixedMonthly, &r.SalesCommission, &r.BudgetCommission, &r.TotalSales, &r.TotalCommission,
			&state, &payDate, &paidBy, &payDateS, &paidByS, &calcBy, &notes); err != nil {
			return err
		}
		r.ID = generic.CommissionID(id)
		r.SalespersonID = generic.SalespersonID(person)
		r.State = generic.State(state.String)
		if r.State == "" {
			r.State = generic.StatePending
		}
		r.PaymentDate, r.PaidBy = payDate.String, paidBy.String
		r.PaymentDateSales, r.PaidBySales = payDateS.String, paidByS.String
		r.CalculatedBy, r.Notes = calcBy.String, notes.String
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := l.attachDetailTotals(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// detailChunk bounds the ids bound into one IN list.
const detailChunk = 500

// attachDetailTotals sets the sale-line totals of each record that has
// detail lines. Amounts are stored as text, so they are added here rather
// than with SUM. A missing detail table leaves the totals unset.
func (l *Ledger) attachDetailTotals(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	detail, err := l.schema.ResolveTable(ctx, schema.TableDetail)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return nil
		}
		return err
	}

	index := make(map[int64]int, len(records))
	ids := make([]any, 0, len(records))
	for i, r := range records {
		index[int64(r.ID)] = i
		ids = append(ids, int64(r.ID))
	}

	for start := 0; start < len(ids); start += detailChunk {
		chunk := ids[start:min(start+detailChunk, len(ids))]
		query := fmt.Sprintf(`
			SELECT comision_id, COALESCE(importe_venta, 0), COALESCE(importe_comision, 0)
			FROM %s WHERE tipo_concepto = ? AND comision_id IN (%s)`,
			l.q.Dialect().QuoteIdent(detail), generic.Placeholders(len(chunk)))
		args := append([]any{ConceptSale}, chunk...)

		err := l.q.Query(ctx, query, args, func(row generic.RowScanner) error {
			var (
				id          int64
				sales, comm decimal.Decimal
			)
			if err := row.Scan(&id, &sales, &comm); err != nil {
				return err
			}
			r := &records[index[id]]
			if r.TotalSalesFromDetail == nil {
				r.TotalSalesFromDetail = &decimal.Decimal{}
				r.TotalCommissionFromDetail = &decimal.Decimal{}
			}
			*r.TotalSalesFromDetail = r.TotalSalesFromDetail.Add(sales)
			*r.TotalCommissionFromDetail = r.TotalCommissionFromDetail.Add(comm)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// salespeopleNames resolves the salesperson table for name joins.
func (l *Ledger) salespeopleNames(ctx context.Context) (table, idCol, nameCol string, ok bool) {
	return schema.NameColumns(ctx, l.schema, schema.TableSalespeople)
}
