package rates

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
)

// =============================================================================
// COMMISSION RATE ROWS
// =============================================================================

// CommissionRateRow is one config_comisiones row. Year 0 or nil means the row
// applies to every year.
type CommissionRateRow struct {
	ID            int64                `json:"id"`
	BrandID       generic.BrandID      `json:"brand_id"`
	OrderTypeID   *generic.OrderTypeID `json:"order_type_id,omitempty"`
	OrderTypeName string               `json:"order_type_name,omitempty"`
	Year          *int                 `json:"year,omitempty"`
	Percentage    decimal.Decimal      `json:"percentage"`
	Active        bool                 `json:"active"`
	Notes         string               `json:"notes,omitempty"`
}

// RateFilter narrows ListCommissionRates. Zero values are ignored.
type RateFilter struct {
	BrandID *generic.BrandID
	Year    *int
	Active  *bool
}

// SaveCommissionRate inserts a row, or updates it when ID is set.
// The order type name is stored in canonical form.
func (r *Resolver) SaveCommissionRate(ctx context.Context, row CommissionRateRow) (int64, error) {
	if err := generic.RequirePositive("brand_id", int64(row.BrandID)); err != nil {
		return 0, err
	}
	if row.OrderTypeID == nil && row.OrderTypeName == "" {
		return 0, generic.NewValidationError("order_type", "either order_type_id or order_type_name is required")
	}
	table, err := r.schema.ResolveTable(ctx, schema.TableCommissionCfg)
	if err != nil {
		return 0, err
	}

	var typeID, year any
	if row.OrderTypeID != nil {
		typeID = int64(*row.OrderTypeID)
	}
	if row.Year != nil {
		year = *row.Year
	}
	typeName := sql.NullString{}
	if row.OrderTypeName != "" {
		typeName = sql.NullString{String: CanonicalOrderType(row.OrderTypeName), Valid: true}
	}

	cols := []generic.Column{
		generic.Col("marca_id", int64(row.BrandID)),
		generic.Col("tipo_pedido_id", typeID),
		generic.Col("nombre_tipo_pedido", typeName),
		generic.Col("anio", year),
		generic.Col("porcentaje_comision", row.Percentage),
		generic.Col("activo", row.Active),
		generic.Col("observaciones", row.Notes),
	}

	if row.ID > 0 {
		if _, err := generic.UpdateByID(ctx, r.q, table, row.ID, cols); err != nil {
			return 0, err
		}
		return row.ID, nil
	}

	return generic.InsertColumns(ctx, r.q, table, cols)
}

// ListCommissionRates returns configured rates ordered by brand, year, id.
func (r *Resolver) ListCommissionRates(ctx context.Context, f RateFilter) ([]CommissionRateRow, error) {
	table, err := r.schema.ResolveTable(ctx, schema.TableCommissionCfg)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return []CommissionRateRow{}, nil
		}
		return nil, err
	}

	where := []string{"1 = 1"}
	var args []any
	if f.BrandID != nil {
		where = append(where, "marca_id = ?")
		args = append(args, int64(*f.BrandID))
	}
	if f.Year != nil {
		where = append(where, "(anio = ? OR anio IS NULL OR anio = 0)")
		args = append(args, *f.Year)
	}
	if f.Active != nil {
		where = append(where, "activo = ?")
		args = append(args, *f.Active)
	}

	rows := []CommissionRateRow{}
	err = r.q.Query(ctx, fmt.Sprintf(`
		SELECT id, marca_id, tipo_pedido_id, nombre_tipo_pedido, anio,
		       porcentaje_comision, activo, observaciones
		FROM %s WHERE %s
		ORDER BY marca_id, COALESCE(anio, 0), id`,
		r.q.Dialect().QuoteIdent(table), strings.Join(where, " AND ")), args,
		func(row generic.RowScanner) error {
			var (
				rr       CommissionRateRow
				brand    int64
				typeID   sql.NullInt64
				typeName sql.NullString
				year     sql.NullInt64
				notes    sql.NullString
			)
			if err := row.Scan(&rr.ID, &brand, &typeID, &typeName, &year, &rr.Percentage, &rr.Active, &notes); err != nil {
				return err
			}
			rr.BrandID = generic.BrandID(brand)
			if typeID.Valid {
				rr.OrderTypeID = generic.Ptr(generic.OrderTypeID(typeID.Int64))
			}
			if year.Valid {
				rr.Year = generic.Ptr(int(year.Int64))
			}
			rr.OrderTypeName = typeName.String
			rr.Notes = notes.String
			rows = append(rows, rr)
			return nil
		})
	return rows, err
}

// =============================================================================
// TRANSPORT DISCOUNT AND BUDGET REBATE ROWS
// =============================================================================

// SaveTransportDiscount upserts the discount for (brand, year). Year 0 is the
// year-independent row.
func (r *Resolver) SaveTransportDiscount(ctx context.Context, brand generic.BrandID, year int, pct decimal.Decimal, active bool) (int64, error) {
	if err := generic.RequirePositive("brand_id", int64(brand)); err != nil {
		return 0, err
	}
	table, err := r.schema.ResolveTable(ctx, schema.TableTransportCfg)
	if err != nil {
		return 0, err
	}
	return generic.Upsert(ctx, r.q, generic.UpsertSpec{
		Table: table,
		Key:   []generic.Column{generic.Col("marca_id", int64(brand)), generic.Col("anio", year)},
		Set: []generic.Column{
			generic.Col("porcentaje_descuento", pct),
			generic.Col("activo", active),
		},
	})
}

// SaveBudgetRebatePercentage upserts the budget rebate percentage for
// (brand, year). A nil brand writes the generic row.
func (r *Resolver) SaveBudgetRebatePercentage(ctx context.Context, brand *generic.BrandID, year int, pct decimal.Decimal) (int64, error) {
	table, err := r.schema.ResolveTable(ctx, schema.TableBudgetRebate)
	if err != nil {
		return 0, err
	}
	var b any
	if brand != nil {
		b = int64(*brand)
	}
	return generic.Upsert(ctx, r.q, generic.UpsertSpec{
		Table: table,
		Key:   []generic.Column{generic.Col("marca_id", b), generic.Col("anio", year)},
		Set: []generic.Column{
			generic.Col("porcentaje", pct),
			generic.Col("activo", true),
		},
	})
}
