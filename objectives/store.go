/*
Package objectives stores budget templates and per-salesperson brand objectives,
and apportions the former into the latter.

PURPOSE:
  A plan ("GEMAVIP") defines how much one salesperson should sell per month
  and channel (ConfigMonthlyQuota) and how that amount splits across brands
  within the channel (ConfigBrandSplit). Generate expands both into concrete
  BrandObjective rows (salesperson x brand x month x channel).

KEY TYPES:
  - Quota:     (plan, year, month, channel) -> amount per salesperson
  - Split:     (plan, year, channel, brand) -> percentage
  - Objective: (salesperson, brand, year, month, channel) -> objective amount
  - Group:     objectives of one (salesperson, brand, year) with quarter sums

FILES:
  - store.go:      persistence of quotas, splits and objectives
  - apportion.go:  the apportionment engine
  - validation.go: split-sum validation policy

SEE ALSO:
  - factory/plan.go: plan documents -> quotas and splits
  - rapels/calculator.go: QuarterTarget
*/
package objectives

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// TYPES
// =============================================================================

// Quota is a ConfigMonthlyQuota row.
type Quota struct {
	ID                   int64           `json:"id"`
	Plan                 string          `json:"plan"`
	Year                 int             `json:"year"`
	Month                int             `json:"month"`
	Channel              string          `json:"channel"`
	AmountPerSalesperson decimal.Decimal `json:"amount_per_salesperson"`
	Active               bool            `json:"active"`
	Notes                string          `json:"notes,omitempty"`
}

// Split is a ConfigBrandSplit row.
type Split struct {
	ID         int64           `json:"id"`
	Plan       string          `json:"plan"`
	Year       int             `json:"year"`
	Channel    string          `json:"channel"`
	BrandID    generic.BrandID `json:"brand_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     bool            `json:"active"`
	Notes      string          `json:"notes,omitempty"`
}

// Objective is a BrandObjective row. Month 0 is an annual objective.
type Objective struct {
	ID              int64                 `json:"id"`
	SalespersonID   generic.SalespersonID `json:"salesperson_id"`
	BrandID         generic.BrandID       `json:"brand_id"`
	Year            int                   `json:"year"`
	Month           int                   `json:"month"`
	Channel         string                `json:"channel"`
	Objective       decimal.Decimal       `json:"objective"`
	BrandPercentage decimal.Decimal       `json:"brand_percentage"`
	Active          bool                  `json:"active"`
	Notes           string                `json:"notes,omitempty"`
}

// Group is the objectives of one (salesperson, brand, year).
type Group struct {
	SalespersonID generic.SalespersonID `json:"salesperson_id"`
	BrandID       generic.BrandID       `json:"brand_id"`
	Year          int                   `json:"year"`
	Quarters      [4]decimal.Decimal    `json:"quarters"`
	Total         decimal.Decimal       `json:"total"`
	Rows          int                   `json:"rows"`
}

// Filter narrows listings. Nil fields and empty strings are ignored.
type Filter struct {
	Plan          string
	SalespersonID *generic.SalespersonID
	BrandID       *generic.BrandID
	Year          *int
	Month         *int
	Channel       string
	Active        *bool
}

// =============================================================================
// STORE
// =============================================================================

// Store persists quotas, splits and objectives.
type Store struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger
}

// NewStore creates a Store.
func NewStore(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{q: q, schema: sch, log: log.Named("objectives")}
}

func (s *Store) table(ctx context.Context, logical string) (string, error) {
	return s.schema.ResolveTable(ctx, logical)
}

// SaveQuota upserts a quota by (plan, year, month, channel).
func (s *Store) SaveQuota(ctx context.Context, q Quota) (int64, error) {
	if q.Plan == "" || q.Channel == "" {
		return 0, generic.NewValidationError("plan", "plan and channel are required")
	}
	if err := (generic.Period{Year: q.Year, Month: q.Month}).Validate(); err != nil {
		return 0, err
	}
	if q.Month == 0 {
		return 0, generic.NewValidationError("month", "must be between 1 and 12")
	}
	table, err := s.table(ctx, schema.TableMonthlyQuota)
	if err != nil {
		return 0, err
	}
	return generic.Upsert(ctx, s.q, generic.UpsertSpec{
		Table: table,
		Key: []generic.Column{
			generic.Col("plan", q.Plan),
			generic.Col("anio", q.Year),
			generic.Col("mes", q.Month),
			generic.Col("canal", q.Channel),
		},
		Set: []generic.Column{
			generic.Col("importe_por_comercial", q.AmountPerSalesperson),
			generic.Col("activo", q.Active),
			generic.Col("observaciones", q.Notes),
		},
	})
}

// ListQuotas returns quotas ordered by plan, year, channel, month.
func (s *Store) ListQuotas(ctx context.Context, f Filter) ([]Quota, error) {
	table, err := s.table(ctx, schema.TableMonthlyQuota)
	if err != nil {
		return nil, err
	}
	f.BrandID = nil
	where, args := f.where(false)

	out := []Quota{}
	err = s.q.Query(ctx, fmt.Sprintf(`
		SELECT id, plan, anio, mes, canal, importe_por_comercial, activo, observaciones
		FROM %s WHERE %s ORDER BY plan, anio, canal, mes`,
		s.q.Dialect().QuoteIdent(table), where), args,
		func(row generic.RowScanner) error {
			var (
				q     Quota
				notes sql.NullString
			)
			if err := row.Scan(&q.ID, &q.Plan, &q.Year, &q.Month, &q.Channel,
				&q.AmountPerSalesperson, &q.Active, &notes); err != nil {
				return err
			}
			q.Notes = notes.String
			out = append(out, q)
			return nil
		})
	return out, err
}

// QuotaAmount returns the active quota amount for (plan, channel, month, year).
func (s *Store) QuotaAmount(ctx context.Context, plan, channel string, month, year int) (decimal.Decimal, bool, error) {
	table, err := s.table(ctx, schema.TableMonthlyQuota)
	if err != nil {
		return decimal.Zero, false, err
	}
	var amount decimal.Decimal
	found, err := generic.QueryRow(ctx, s.q, fmt.Sprintf(`
		SELECT importe_por_comercial FROM %s
		WHERE plan = ? AND canal = ? AND mes = ? AND anio = ? AND activo = 1
		ORDER BY id LIMIT 1`, s.q.Dialect().QuoteIdent(table)),
		[]any{plan, channel, month, year}, &amount)
	if err != nil || !found {
		return decimal.Zero, false, err
	}
	return amount, true, nil
}

// SaveSplit upserts a split by (plan, year, channel, brand).
func (s *Store) SaveSplit(ctx context.Context, sp Split) (int64, error) {
	if sp.Plan == "" || sp.Channel == "" {
		return 0, generic.NewValidationError("plan", "plan and channel are required")
	}
	if err := generic.RequirePositive("brand_id", int64(sp.BrandID)); err != nil {
		return 0, err
	}
	if sp.Year <= 0 {
		return 0, generic.NewValidationError("year", "must be a positive year")
	}
	table, err := s.table(ctx, schema.TableBrandSplit)
	if err != nil {
		return 0, err
	}
	return generic.Upsert(ctx, s.q, generic.UpsertSpec{
		Table: table,
		Key: []generic.Column{
			generic.Col("plan", sp.Plan),
			generic.Col("anio", sp.Year),
			generic.Col("canal", sp.Channel),
			generic.Col("marca_id", int64(sp.BrandID)),
		},
		Set: []generic.Column{
			generic.Col("porcentaje", sp.Percentage),
			generic.Col("activo", sp.Active),
			generic.Col("observaciones", sp.Notes),
		},
	})
}

// ListSplits returns splits ordered by plan, year, channel, brand.
func (s *Store) ListSplits(ctx context.Context, f Filter) ([]Split, error) {
	table, err := s.table(ctx, schema.TableBrandSplit)
	if err != nil {
		return nil, err
	}
	f.Month = nil
	where, args := f.where(false)

	out := []Split{}
	err = s.q.Query(ctx, fmt.Sprintf(`
		SELECT id, plan, anio, canal, marca_id, porcentaje, activo, observaciones
		FROM %s WHERE %s ORDER BY plan, anio, canal, marca_id`,
		s.q.Dialect().QuoteIdent(table), where), args,
		func(row generic.RowScanner) error {
			var (
				sp    Split
				brand int64
				notes sql.NullString
			)
			if err := row.Scan(&sp.ID, &sp.Plan, &sp.Year, &sp.Channel, &brand,
				&sp.Percentage, &sp.Active, &notes); err != nil {
				return err
			}
			sp.BrandID = generic.BrandID(brand)
			sp.Notes = notes.String
			out = append(out, sp)
			return nil
		})
	return out, err
}

// ActiveSplits returns the active splits of (plan, year, channel).
func (s *Store) ActiveSplits(ctx context.Context, plan string, year int, channel string) ([]Split, error) {
	return s.ListSplits(ctx, Filter{Plan: plan, Year: &year, Channel: channel, Active: generic.Ptr(true)})
}

// =============================================================================
// OBJECTIVES
// =============================================================================

// SaveObjective upserts an objective by (salesperson, brand, year, month, channel).
func (s *Store) SaveObjective(ctx context.Context, o Objective) (int64, error) {
	if err := validateObjectiveKey(o.SalespersonID, o.BrandID, o.Year); err != nil {
		return 0, err
	}
	if err := (generic.Period{Year: o.Year, Month: o.Month}).Validate(); err != nil {
		return 0, err
	}
	table, err := s.table(ctx, schema.TableObjectives)
	if err != nil {
		return 0, err
	}
	return generic.Upsert(ctx, s.q, generic.UpsertSpec{
		Table: table,
		Key: []generic.Column{
			generic.Col("comercial_id", int64(o.SalespersonID)),
			generic.Col("marca_id", int64(o.BrandID)),
			generic.Col("anio", o.Year),
			generic.Col("mes", o.Month),
			generic.Col("canal", o.Channel),
		},
		Set: []generic.Column{
			generic.Col("objetivo", o.Objective),
			generic.Col("porcentaje_marca", o.BrandPercentage),
			generic.Col("activo", o.Active),
			generic.Col("observaciones", o.Notes),
		},
	})
}

// ListObjectives returns objectives ordered by salesperson, brand, year, month, channel.
func (s *Store) ListObjectives(ctx context.Context, f Filter) ([]Objective, error) {
	table, err := s.table(ctx, schema.TableObjectives)
	if err != nil {
		return nil, err
	}
	where, args := f.where(true)

	out := []Objective{}
	err = s.q.Query(ctx, fmt.Sprintf(`
		SELECT id, comercial_id, marca_id, anio, mes, canal, objetivo, porcentaje_marca, activo, observaciones
		FROM %s WHERE %s ORDER BY comercial_id, marca_id, anio, mes, canal`,
		s.q.Dialect().QuoteIdent(table), where), args,
		func(row generic.RowScanner) error {
			var (
				o             Objective
				person, brand int64
				channel       sql.NullString
				notes         sql.NullString
			)
			if err := row.Scan(&o.ID, &person, &brand, &o.Year, &o.Month, &channel,
				&o.Objective, &o.BrandPercentage, &o.Active, &notes); err != nil {
				return err
			}
			o.SalespersonID = generic.SalespersonID(person)
			o.BrandID = generic.BrandID(brand)
			o.Channel = channel.String
			o.Notes = notes.String
			out = append(out, o)
			return nil
		})
	return out, err
}

// Groups aggregates objectives per (salesperson, brand, year) with quarter
// sums. Annual (month 0) rows count toward the total only.
func (s *Store) Groups(ctx context.Context, f Filter) ([]Group, error) {
	table, err := s.table(ctx, schema.TableObjectives)
	if err != nil {
		return nil, err
	}
	f.Month = nil
	where, args := f.where(true)

	out := []Group{}
	err = s.q.Query(ctx, fmt.Sprintf(`
		SELECT comercial_id, marca_id, anio, COALESCE(mes, 0), COALESCE(objetivo, 0)
		FROM %s WHERE %s
		ORDER BY comercial_id, marca_id, anio, mes`,
		s.q.Dialect().QuoteIdent(table), where), args,
		func(row generic.RowScanner) error {
			var (
				person, brand int64
				year, month   int
				objective     decimal.Decimal
			)
			if err := row.Scan(&person, &brand, &year, &month, &objective); err != nil {
				return err
			}
			n := len(out)
			if n == 0 || int64(out[n-1].SalespersonID) != person || int64(out[n-1].BrandID) != brand || out[n-1].Year != year {
				out = append(out, Group{SalespersonID: generic.SalespersonID(person), BrandID: generic.BrandID(brand), Year: year})
				n++
			}
			g := &out[n-1]
			if month >= 1 && month <= 12 {
				q := generic.QuarterOf(month) - 1
				g.Quarters[q] = g.Quarters[q].Add(objective)
			}
			g.Total = g.Total.Add(objective)
			g.Rows++
			return nil
		})
	return out, err
}

// DeleteGroup removes every objective row of (salesperson, brand, year).
func (s *Store) DeleteGroup(ctx context.Context, salesperson generic.SalespersonID, brand generic.BrandID, year int) (int64, error) {
	if err := validateObjectiveKey(salesperson, brand, year); err != nil {
		return 0, err
	}
	table, err := s.table(ctx, schema.TableObjectives)
	if err != nil {
		return 0, err
	}
	res, err := s.q.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE comercial_id = ? AND marca_id = ? AND anio = ?", s.q.Dialect().QuoteIdent(table)),
		int64(salesperson), int64(brand), year)
	return res.AffectedRows, err
}

// MonthlyBrandTargets sums the active objectives of a salesperson for a month
// per brand, across channels.
func (s *Store) MonthlyBrandTargets(ctx context.Context, salesperson generic.SalespersonID, year, month int) (map[generic.BrandID]decimal.Decimal, error) {
	return s.brandTargets(ctx, salesperson, year, []int{month}, nil)
}

// QuarterTarget sums the active objectives of the quarter's months for one
// salesperson and brand.
func (s *Store) QuarterTarget(ctx context.Context, salesperson generic.SalespersonID, brand generic.BrandID, year, quarter int) (decimal.Decimal, error) {
	if err := generic.ValidateQuarter(quarter); err != nil {
		return decimal.Zero, err
	}
	targets, err := s.brandTargets(ctx, salesperson, year, generic.QuarterMonths(quarter), &brand)
	if err != nil {
		return decimal.Zero, err
	}
	return targets[brand], nil
}

func (s *Store) brandTargets(ctx context.Context, salesperson generic.SalespersonID, year int, months []int, brand *generic.BrandID) (map[generic.BrandID]decimal.Decimal, error) {
	out := make(map[generic.BrandID]decimal.Decimal)
	table, err := s.table(ctx, schema.TableObjectives)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return out, nil
		}
		return nil, err
	}

	args := []any{int64(salesperson), year}
	monthArgs := make([]any, len(months))
	for i, m := range months {
		monthArgs[i] = m
	}
	args = append(args, monthArgs...)
	brandCond := ""
	if brand != nil {
		brandCond = " AND marca_id = ?"
		args = append(args, int64(*brand))
	}

	err = s.q.Query(ctx, fmt.Sprintf(`
		SELECT marca_id, COALESCE(objetivo, 0) FROM %s
		WHERE comercial_id = ? AND anio = ? AND mes IN (%s) AND activo = 1%s`,
		s.q.Dialect().QuoteIdent(table), generic.Placeholders(len(months)), brandCond), args,
		func(row generic.RowScanner) error {
			var (
				b      int64
				target decimal.Decimal
			)
			if err := row.Scan(&b, &target); err != nil {
				return err
			}
			out[generic.BrandID(b)] = out[generic.BrandID(b)].Add(target)
			return nil
		})
	return out, err
}

func validateObjectiveKey(salesperson generic.SalespersonID, brand generic.BrandID, year int) error {
	if err := generic.RequirePositive("salesperson_id", int64(salesperson)); err != nil {
		return err
	}
	if err := generic.RequirePositive("brand_id", int64(brand)); err != nil {
		return err
	}
	if year <= 0 {
		return generic.NewValidationError("year", "must be a positive year")
	}
	return nil
}

// where renders the filter. Objective tables key salespeople, quota and
// split tables key plans.
func (f Filter) where(objectives bool) (string, []any) {
	parts := []string{"1 = 1"}
	var args []any
	if !objectives && f.Plan != "" {
		parts = append(parts, "plan = ?")
		args = append(args, f.Plan)
	}
	if objectives && f.SalespersonID != nil {
		parts = append(parts, "comercial_id = ?")
		args = append(args, int64(*f.SalespersonID))
	}
	if f.BrandID != nil {
		parts = append(parts, "marca_id = ?")
		args = append(args, int64(*f.BrandID))
	}
	if f.Year != nil {
		parts = append(parts, "anio = ?")
		args = append(args, *f.Year)
	}
	if f.Month != nil {
		parts = append(parts, "mes = ?")
		args = append(args, *f.Month)
	}
	if f.Channel != "" {
		parts = append(parts, "canal = ?")
		args = append(args, f.Channel)
	}
	if f.Active != nil {
		parts = append(parts, "activo = ?")
		args = append(args, *f.Active)
	}
	return strings.Join(parts, " AND "), args
}
