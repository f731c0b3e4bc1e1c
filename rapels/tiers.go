package rapels

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// TIERS
// =============================================================================

// Tier is a RebateTierConfig row: achievement in [Min, Max) earns Percentage.
type Tier struct {
	ID         int64           `json:"id"`
	BrandID    generic.BrandID `json:"brand_id"`
	Min        decimal.Decimal `json:"min_achievement"`
	Max        decimal.Decimal `json:"max_achievement"`
	Percentage decimal.Decimal `json:"rebate_percentage"`
	Active     bool            `json:"active"`
	Notes      string          `json:"notes,omitempty"`
}

// SaveTier inserts a tier, or updates it when ID is set.
func (l *Ledger) SaveTier(ctx context.Context, t Tier) (int64, error) {
	if err := generic.RequirePositive("brand_id", int64(t.BrandID)); err != nil {
		return 0, err
	}
	if !t.Min.LessThan(t.Max) {
		return 0, generic.NewValidationError("max_achievement", "must be greater than min_achievement")
	}
	if t.Percentage.IsNegative() {
		return 0, generic.NewValidationError("rebate_percentage", "must not be negative")
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableRebateTiers)
	if err != nil {
		return 0, err
	}

	cols := []generic.Column{
		generic.Col("marca_id", int64(t.BrandID)),
		generic.Col("porcentaje_cumplimiento_min", t.Min),
		generic.Col("porcentaje_cumplimiento_max", t.Max),
		generic.Col("porcentaje_rapel", t.Percentage),
		generic.Col("activo", t.Active),
		generic.Col("observaciones", nullString(t.Notes)),
	}
	if t.ID > 0 {
		_, err := generic.UpdateByID(ctx, l.q, table, t.ID, cols)
		return t.ID, err
	}
	id, err := generic.InsertColumns(ctx, l.q, table, cols)
	if err != nil {
		return 0, err
	}
	l.log.Info("rapel tier saved", zap.Int64("id", id), zap.Int64("brand", int64(t.BrandID)))
	return id, nil
}

// Tiers lists tiers by brand and lower bound. A nil brand lists all brands;
// activeOnly drops inactive tiers.
func (l *Ledger) Tiers(ctx context.Context, brand *generic.BrandID, activeOnly bool) ([]Tier, error) {
	table, err := l.schema.ResolveTable(ctx, schema.TableRebateTiers)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return []Tier{}, nil
		}
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if brand != nil {
		where = append(where, "marca_id = ?")
		args = append(args, int64(*brand))
	}
	if activeOnly {
		where = append(where, "activo = 1")
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	tiers := []Tier{}
	err = l.q.Query(ctx, fmt.Sprintf(`
		SELECT id, marca_id, porcentaje_cumplimiento_min, porcentaje_cumplimiento_max,
		       porcentaje_rapel, activo, COALESCE(observaciones, '')
		FROM %s%s
		ORDER BY marca_id, id`, l.q.Dialect().QuoteIdent(table), whereSQL),
		args,
		func(row generic.RowScanner) error {
			var (
				t      Tier
				b      int64
				active int64
			)
			if err := row.Scan(&t.ID, &b, &t.Min, &t.Max, &t.Percentage, &active, &t.Notes); err != nil {
				return err
			}
			t.BrandID = generic.BrandID(b)
			t.Active = active != 0
			tiers = append(tiers, t)
			return nil
		})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].BrandID != tiers[j].BrandID {
			return tiers[i].BrandID < tiers[j].BrandID
		}
		return tiers[i].Min.LessThan(tiers[j].Min)
	})
	return tiers, nil
}

// DeleteTier removes a tier.
func (l *Ledger) DeleteTier(ctx context.Context, id int64) (int64, error) {
	if err := generic.RequirePositive("id", id); err != nil {
		return 0, err
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableRebateTiers)
	if err != nil {
		return 0, err
	}
	res, err := l.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", l.q.Dialect().QuoteIdent(table)), id)
	if err != nil {
		return 0, err
	}
	return res.AffectedRows, nil
}
