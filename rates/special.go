package rates

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// SPECIAL CONDITIONS
// =============================================================================

// SpecialCondition overrides the configured commission rate. A nil
// salesperson or article applies to all of them.
type SpecialCondition struct {
	ID            int64                  `json:"id"`
	SalespersonID *generic.SalespersonID `json:"salesperson_id,omitempty"`
	ArticleID     *generic.ArticleID     `json:"article_id,omitempty"`
	Percentage    decimal.Decimal        `json:"percentage"`
	Description   string                 `json:"description,omitempty"`
	Active        bool                   `json:"active"`
	DateFrom      string                 `json:"date_from,omitempty"`
	DateTo        string                 `json:"date_to,omitempty"`
}

// specificity ranks a condition: lower is more specific.
func (c SpecialCondition) specificity() int {
	switch {
	case c.SalespersonID != nil && c.ArticleID != nil:
		return 0
	case c.ArticleID != nil:
		return 1
	case c.SalespersonID != nil:
		return 2
	default:
		return 3
	}
}

func (c SpecialCondition) covers(date string) bool {
	day := date
	if len(day) > len(generic.DateLayout) {
		day = day[:len(generic.DateLayout)]
	}
	if c.DateFrom != "" && day < c.DateFrom[:min(len(c.DateFrom), len(generic.DateLayout))] {
		return false
	}
	if c.DateTo != "" && day > c.DateTo[:min(len(c.DateTo), len(generic.DateLayout))] {
		return false
	}
	return true
}

// SpecialConditions returns the active conditions that can apply to a
// salesperson: their own and the salesperson-independent ones, ordered by id.
// A deployment without the table has none.
func (r *Resolver) SpecialConditions(ctx context.Context, salesperson generic.SalespersonID) ([]SpecialCondition, error) {
	table, err := r.schema.ResolveTable(ctx, schema.TableSpecial)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []SpecialCondition
	err = r.q.Query(ctx, fmt.Sprintf(`
		SELECT id, comercial_id, articulo_id, porcentaje_comision, descripcion, activo, fecha_desde, fecha_hasta
		FROM %s
		WHERE activo = 1 AND (comercial_id = ? OR comercial_id IS NULL)
		ORDER BY id`, r.q.Dialect().QuoteIdent(table)),
		[]any{int64(salesperson)},
		func(row generic.RowScanner) error {
			var (
				c               SpecialCondition
				person, article sql.NullInt64
				desc, from, to  sql.NullString
			)
			if err := row.Scan(&c.ID, &person, &article, &c.Percentage, &desc, &c.Active, &from, &to); err != nil {
				return err
			}
			if person.Valid {
				c.SalespersonID = generic.Ptr(generic.SalespersonID(person.Int64))
			}
			if article.Valid {
				c.ArticleID = generic.Ptr(generic.ArticleID(article.Int64))
			}
			c.Description, c.DateFrom, c.DateTo = desc.String, from.String, to.String
			out = append(out, c)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MatchSpecial returns the most specific condition covering (salesperson,
// article, date): salesperson+article, then article only, then salesperson
// only, then global. Among equally specific conditions the first one wins.
func MatchSpecial(conds []SpecialCondition, salesperson generic.SalespersonID, article generic.ArticleID, date string) *SpecialCondition {
	var best *SpecialCondition
	for i := range conds {
		c := &conds[i]
		if !c.Active || !c.covers(date) {
			continue
		}
		if c.SalespersonID != nil && *c.SalespersonID != salesperson {
			continue
		}
		if c.ArticleID != nil && *c.ArticleID != article {
			continue
		}
		if best == nil || c.specificity() < best.specificity() {
			best = c
		}
	}
	return best
}

// SaveSpecialCondition inserts a condition, or updates it when ID is set.
func (r *Resolver) SaveSpecialCondition(ctx context.Context, c SpecialCondition) (int64, error) {
	if c.Percentage.IsNegative() {
		return 0, generic.NewValidationError("percentage", "must not be negative")
	}
	table, err := r.schema.ResolveTable(ctx, schema.TableSpecial)
	if err != nil {
		return 0, err
	}

	var person, article any
	if c.SalespersonID != nil {
		person = int64(*c.SalespersonID)
	}
	if c.ArticleID != nil {
		article = int64(*c.ArticleID)
	}
	nullable := func(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }
	cols := []generic.Column{
		generic.Col("comercial_id", person),
		generic.Col("articulo_id", article),
		generic.Col("porcentaje_comision", c.Percentage),
		generic.Col("descripcion", c.Description),
		generic.Col("activo", c.Active),
		generic.Col("fecha_desde", nullable(c.DateFrom)),
		generic.Col("fecha_hasta", nullable(c.DateTo)),
	}

	if c.ID > 0 {
		_, err := generic.UpdateByID(ctx, r.q, table, c.ID, cols)
		return c.ID, err
	}
	id, err := generic.InsertColumns(ctx, r.q, table, cols)
	if err != nil {
		return 0, err
	}
	r.log.Info("special condition saved", zap.Int64("id", id))
	return id, nil
}
