/*
Package rapels is the quarterly rebate (rapel) ledger and calculator.

PURPOSE:
  A rapel is a volume rebate paid on top of the commission when a
  salesperson reaches the quarterly objective of a brand. One record per
  (salesperson, brand, quarter, year) holds the quarter's sales, target,
  achievement and the rebate granted.

KEY CONCEPTS:
  - Identity: addressed by id, or by the natural key when id is absent.
    The write is a single upsert on the natural key.
  - The ledger trusts the rebate amount it is given. Tier lookup happens in
    the calculator (or in the caller) before the upsert.
  - Tiers: per brand, [min, max) achievement ranges with a rebate
    percentage. Non-overlap is an authoring rule, not enforced here.
  - States follow commissions: Pendiente -> Calculado -> Pagado with legacy
    spellings matched on read and stored as given.

FILES:
  - ledger.go:     records, upsert / get / list / delete
  - tiers.go:      rapeles_configuracion maintenance
  - calculator.go: quarterly computation

SEE ALSO:
  - rates/resolver.go: RebatePercentage (tier lookup)
  - objectives/store.go: QuarterTarget
*/
package rapels

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// TYPES
// =============================================================================

// Record is a RebateRecord.
type Record struct {
	ID                    int64                 `json:"id"`
	SalespersonID         generic.SalespersonID `json:"salesperson_id"`
	SalespersonName       string                `json:"salesperson_name,omitempty"`
	BrandID               generic.BrandID       `json:"brand_id"`
	BrandName             string                `json:"brand_name,omitempty"`
	Quarter               int                   `json:"quarter"`
	Year                  int                   `json:"year"`
	QuarterSales          decimal.Decimal       `json:"quarter_sales"`
	QuarterTarget         decimal.Decimal       `json:"quarter_target"`
	AchievementPercentage decimal.Decimal       `json:"achievement_percentage"`
	RebatePercentage      decimal.Decimal       `json:"rebate_percentage"`
	RebateAmount          decimal.Decimal       `json:"rebate_amount"`
	State                 generic.State         `json:"state"`
	PaymentDate           string                `json:"payment_date,omitempty"`
	Notes                 string                `json:"notes,omitempty"`
}

// Input is a partial RebateRecord. Nil fields are absent.
type Input struct {
	ID                    *int64                 `json:"id,omitempty"`
	SalespersonID         *generic.SalespersonID `json:"salesperson_id,omitempty"`
	BrandID               *generic.BrandID       `json:"brand_id,omitempty"`
	Quarter               *int                   `json:"quarter,omitempty"`
	Year                  *int                   `json:"year,omitempty"`
	QuarterSales          *decimal.Decimal       `json:"quarter_sales,omitempty"`
	QuarterTarget         *decimal.Decimal       `json:"quarter_target,omitempty"`
	AchievementPercentage *decimal.Decimal       `json:"achievement_percentage,omitempty"`
	RebatePercentage      *decimal.Decimal       `json:"rebate_percentage,omitempty"`
	RebateAmount          *decimal.Decimal       `json:"rebate_amount,omitempty"`
	State                 *generic.State         `json:"state,omitempty"`
	PaymentDate           *string                `json:"payment_date,omitempty"`
	Notes                 *string                `json:"notes,omitempty"`
}

// Filter narrows List. Nil fields and an empty state are ignored.
type Filter struct {
	SalespersonID *generic.SalespersonID
	BrandID       *generic.BrandID
	Quarter       *int
	Year          *int
	State         generic.State
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger reads and writes rebate records.
type Ledger struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger
}

// NewLedger creates a Ledger.
func NewLedger(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{q: q, schema: sch, log: log.Named("rapels")}
}

// Upsert creates or partially updates a rebate record. With an id only the
// present fields are written and a missing record yields (nil, nil).
// Without an id, salesperson, brand, quarter and year are required.
func (l *Ledger) Upsert(ctx context.Context, in Input) (*Record, error) {
	if in.ID != nil {
		if err := generic.RequirePositive("id", *in.ID); err != nil {
			return nil, err
		}
	} else {
		if in.SalespersonID == nil || in.BrandID == nil || in.Quarter == nil || in.Year == nil {
			return nil, generic.NewValidationError("key", "salesperson_id, brand_id, quarter and year are required without id")
		}
		if err := generic.RequirePositive("salesperson_id", int64(*in.SalespersonID)); err != nil {
			return nil, err
		}
		if err := generic.RequirePositive("brand_id", int64(*in.BrandID)); err != nil {
			return nil, err
		}
		if err := generic.ValidateQuarter(*in.Quarter); err != nil {
			return nil, err
		}
		if *in.Year <= 0 {
			return nil, generic.NewValidationError("year", "must be positive")
		}
	}

	table, err := l.schema.ResolveTable(ctx, schema.TableRebates)
	if err != nil {
		return nil, err
	}

	var id int64
	if in.ID != nil {
		id = *in.ID
		_, err = generic.UpdateByID(ctx, l.q, table, id, in.columns(true))
	} else {
		id, err = generic.Upsert(ctx, l.q, generic.UpsertSpec{
			Table: table,
			Key: []generic.Column{
				generic.Col("comercial_id", int64(*in.SalespersonID)),
				generic.Col("marca_id", int64(*in.BrandID)),
				generic.Col("trimestre", *in.Quarter),
				generic.Col("anio", *in.Year),
			},
			Set:      in.columns(false),
			Defaults: in.defaults(),
		})
	}
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, id)
}

func (in Input) columns(withKey bool) []generic.Column {
	var cols []generic.Column
	add := func(name string, present bool, value func() any) {
		if present {
			cols = append(cols, generic.Col(name, value()))
		}
	}
	if withKey {
		add("comercial_id", in.SalespersonID != nil, func() any { return int64(*in.SalespersonID) })
		add("marca_id", in.BrandID != nil, func() any { return int64(*in.BrandID) })
		add("trimestre", in.Quarter != nil, func() any { return *in.Quarter })
		add("anio", in.Year != nil, func() any { return *in.Year })
	}
	add("ventas_trimestre", in.QuarterSales != nil, func() any { return *in.QuarterSales })
	add("objetivo_trimestre", in.QuarterTarget != nil, func() any { return *in.QuarterTarget })
	add("porcentaje_cumplimiento", in.AchievementPercentage != nil, func() any { return *in.AchievementPercentage })
	add("porcentaje_rapel", in.RebatePercentage != nil, func() any { return *in.RebatePercentage })
	add("importe_rapel", in.RebateAmount != nil, func() any { return *in.RebateAmount })
	add("estado", in.State != nil, func() any { return string(*in.State) })
	add("fecha_pago", in.PaymentDate != nil, func() any { return nullString(*in.PaymentDate) })
	add("observaciones", in.Notes != nil, func() any { return nullString(*in.Notes) })
	return cols
}

func (in Input) defaults() []generic.Column {
	var cols []generic.Column
	zero := func(name string, absent bool) {
		if absent {
			cols = append(cols, generic.Col(name, decimal.Zero))
		}
	}
	zero("ventas_trimestre", in.QuarterSales == nil)
	zero("objetivo_trimestre", in.QuarterTarget == nil)
	zero("porcentaje_cumplimiento", in.AchievementPercentage == nil)
	zero("porcentaje_rapel", in.RebatePercentage == nil)
	zero("importe_rapel", in.RebateAmount == nil)
	if in.State == nil {
		cols = append(cols, generic.Col("estado", string(generic.StatePending)))
	}
	return cols
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SetState writes state as given; paid states also stamp the payment date
// (today when empty).
func (l *Ledger) SetState(ctx context.Context, id int64, state generic.State, date string) (*Record, error) {
	if state == "" {
		return nil, generic.NewValidationError("state", "is required")
	}
	in := Input{ID: &id, State: &state}
	if state.IsPaid() {
		if date == "" {
			date = time.Now().Format(generic.DateLayout)
		}
		in.PaymentDate = &date
	}
	return l.Upsert(ctx, in)
}

// =============================================================================
// READ
// =============================================================================

// Get returns a record by id, or nil.
func (l *Ledger) Get(ctx context.Context, id int64) (*Record, error) {
	if err := generic.RequirePositive("id", id); err != nil {
		return nil, err
	}
	records, err := l.list(ctx, []string{"r.id = ?"}, []any{id})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// List returns records ordered by year descending, quarter, salesperson name
// and brand. A state filter matches every legacy spelling.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.SalespersonID != nil {
		where = append(where, "r.comercial_id = ?")
		args = append(args, int64(*f.SalespersonID))
	}
	if f.BrandID != nil {
		where = append(where, "r.marca_id = ?")
		args = append(args, int64(*f.BrandID))
	}
	if f.Quarter != nil {
		where = append(where, "r.trimestre = ?")
		args = append(args, *f.Quarter)
	}
	if f.Year != nil {
		where = append(where, "r.anio = ?")
		args = append(args, *f.Year)
	}
	if f.State != "" {
		syn := f.State.SynonymArgs()
		where = append(where, fmt.Sprintf("r.estado IN (%s)", generic.Placeholders(len(syn))))
		args = append(args, syn...)
	}
	return l.list(ctx, where, args)
}

func (l *Ledger) list(ctx context.Context, where []string, args []any) ([]Record, error) {
	table, err := l.schema.ResolveTable(ctx, schema.TableRebates)
	if err != nil {
		return nil, err
	}
	qi := l.q.Dialect().QuoteIdent

	var joins strings.Builder
	personName, personOrder := "''", "r.comercial_id"
	if people, idCol, nameCol, ok := schema.NameColumns(ctx, l.schema, schema.TableSalespeople); ok {
		personName = "COALESCE(s." + qi(nameCol) + ", '')"
		personOrder = "s." + qi(nameCol)
		fmt.Fprintf(&joins, " LEFT JOIN %s s ON s.%s = r.comercial_id", qi(people), qi(idCol))
	}
	brandName := "''"
	if brands, idCol, nameCol, ok := schema.NameColumns(ctx, l.schema, schema.TableBrands); ok {
		brandName = "COALESCE(b." + qi(nameCol) + ", '')"
		fmt.Fprintf(&joins, " LEFT JOIN %s b ON b.%s = r.marca_id", qi(brands), qi(idCol))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	records := []Record{}
	err = l.q.Query(ctx, fmt.Sprintf(`
		SELECT r.id, r.comercial_id, %s, r.marca_id, %s, r.trimestre, r.anio,
		       COALESCE(r.ventas_trimestre, 0), COALESCE(r.objetivo_trimestre, 0),
		       COALESCE(r.porcentaje_cumplimiento, 0), COALESCE(r.porcentaje_rapel, 0),
		       COALESCE(r.importe_rapel, 0), r.estado, r.fecha_pago, r.observaciones
		FROM %s r%s%s
		ORDER BY r.anio DESC, r.trimestre ASC, %s ASC, r.marca_id, r.id`,
		personName, brandName, qi(table), joins.String(), whereSQL, personOrder),
		args,
		func(row generic.RowScanner) error {
			var (
				r                  Record
				person, brand      int64
				state, paid, notes sql.NullString
			)
			if err := row.Scan(&r.ID, &person, &r.SalespersonName, &brand, &r.BrandName, &r.Quarter, &r.Year,
				&r.QuarterSales, &r.QuarterTarget, &r.AchievementPercentage, &r.RebatePercentage,
				&r.RebateAmount, &state, &paid, &notes); err != nil {
				return err
			}
			r.SalespersonID = generic.SalespersonID(person)
			r.BrandID = generic.BrandID(brand)
			r.State = generic.State(state.String)
			if r.State == "" {
				r.State = generic.StatePending
			}
			r.PaymentDate, r.Notes = paid.String, notes.String
			records = append(records, r)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a record and returns the number of rows deleted.
func (l *Ledger) Delete(ctx context.Context, id int64) (int64, error) {
	if err := generic.RequirePositive("id", id); err != nil {
		return 0, err
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableRebates)
	if err != nil {
		return 0, err
	}
	res, err := l.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", l.q.Dialect().QuoteIdent(table)), id)
	if err != nil {
		return 0, err
	}
	l.log.Info("rapel deleted", zap.Int64("id", id), zap.Int64("affected", res.AffectedRows))
	return res.AffectedRows, nil
}
