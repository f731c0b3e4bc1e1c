/*
Package sales reads the transactional facts the engine computes from.

PURPOSE:
  Orders, order lines, articles, brands and salespeople belong to the CRUD
  side of the CRM. The engine never writes them; it only reads order lines
  for a salesperson and a date range, grouped or flat.

SCHEMA DRIFT:
  Every table and column is resolved through schema.Resolver. Optional
  pieces degrade instead of failing:
  - no order-type table: lines carry the type id only, name ""
  - no order state column: no lines are excluded
  - no article brand column: lines carry a nil brand

CANCELLED ORDERS:
  Orders in state "Anulado" (any case) are never counted.

SEE ALSO:
  - commissions/calculator.go: monthly commission from lines
  - rapels/calculator.go: quarterly brand sales
*/
package sales

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

// CancelledState marks orders excluded from every total.
const CancelledState = "Anulado"

// Line is one order line as the engine sees it.
type Line struct {
	OrderID       generic.OrderID
	ArticleID     generic.ArticleID
	BrandID       *generic.BrandID
	OrderTypeID   *generic.OrderTypeID
	OrderTypeName string
	Date          string // YYYY-MM-DD
	Quantity      decimal.Decimal
	Subtotal      decimal.Decimal
}

// Salesperson is a CRM salesperson.
type Salesperson struct {
	ID     generic.SalespersonID `json:"id"`
	Name   string                `json:"name"`
	Active bool                  `json:"active"`
}

// Reader queries transactional facts.
type Reader struct {
	q      generic.Querier
	schema schema.Resolver
	log    *zap.Logger
}

// NewReader creates a Reader.
func NewReader(q generic.Querier, sch schema.Resolver, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{q: q, schema: sch, log: log.Named("sales")}
}

// =============================================================================
// ORDER LINES
// =============================================================================

// Lines returns the salesperson's order lines dated in [from, to). A non-nil
// brand restricts the result to that brand's articles.
func (r *Reader) Lines(ctx context.Context, salesperson generic.SalespersonID, from, to string, brand *generic.BrandID) ([]Line, error) {
	if err := generic.RequirePositive("salesperson_id", int64(salesperson)); err != nil {
		return nil, err
	}
	lq, err := r.linesQuery(ctx)
	if err != nil {
		return nil, err
	}

	query := lq.sql
	args := []any{int64(salesperson), from, to}
	if brand != nil {
		if lq.brandExpr == "NULL" {
			return []Line{}, nil
		}
		query += " AND " + lq.brandExpr + " = ?"
		args = append(args, int64(*brand))
	}
	query += " ORDER BY " + lq.orderBy

	lines := []Line{}
	err = r.q.Query(ctx, query, args, func(row generic.RowScanner) error {
		var (
			l        Line
			orderID  int64
			article  int64
			brandID  sql.NullInt64
			typeID   sql.NullInt64
			typeName sql.NullString
			date     sql.NullString
			qty      decimal.NullDecimal
		)
		if err := row.Scan(&orderID, &article, &brandID, &typeID, &typeName, &date, &qty, &l.Subtotal); err != nil {
			return err
		}
		l.OrderID = generic.OrderID(orderID)
		l.ArticleID = generic.ArticleID(article)
		if brandID.Valid {
			l.BrandID = generic.Ptr(generic.BrandID(brandID.Int64))
		}
		if typeID.Valid {
			l.OrderTypeID = generic.Ptr(generic.OrderTypeID(typeID.Int64))
		}
		l.OrderTypeName = typeName.String
		l.Date = truncateDate(date.String)
		l.Quantity = qty.Decimal
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// BrandTotals sums line subtotals per brand for the salesperson in [from, to).
// Lines without a brand are left out.
func (r *Reader) BrandTotals(ctx context.Context, salesperson generic.SalespersonID, from, to string) (map[generic.BrandID]decimal.Decimal, error) {
	lines, err := r.Lines(ctx, salesperson, from, to, nil)
	if err != nil {
		return nil, err
	}
	totals := make(map[generic.BrandID]decimal.Decimal)
	for _, l := range lines {
		if l.BrandID == nil {
			continue
		}
		totals[*l.BrandID] = totals[*l.BrandID].Add(l.Subtotal)
	}
	return totals, nil
}

type linesQuery struct {
	sql       string
	brandExpr string
	orderBy   string
}

// linesQuery assembles the order-line statement from resolved names. The
// statement ends with an open WHERE so callers can append conditions.
func (r *Reader) linesQuery(ctx context.Context) (linesQuery, error) {
	d := r.q.Dialect()
	qi := d.QuoteIdent

	orders, err := r.schema.ResolveTable(ctx, schema.TableOrders)
	if err != nil {
		return linesQuery{}, err
	}
	lines, err := r.schema.ResolveTable(ctx, schema.TableOrderLines)
	if err != nil {
		return linesQuery{}, err
	}
	articles, err := r.schema.ResolveTable(ctx, schema.TableArticles)
	if err != nil {
		return linesQuery{}, err
	}

	col := func(table, logical string) (string, error) {
		return r.schema.ResolveColumn(ctx, table, logical)
	}
	var (
		oID, oSalesperson, oType, oDate string
		lOrder, lArticle, lQty, lTotal  string
		aID                             string
	)
	for _, c := range []struct {
		dst          *string
		table, logic string
	}{
		{&oID, orders, "id"}, {&oSalesperson, orders, "comercial_id"},
		{&oDate, orders, "fecha"},
		{&lOrder, lines, "pedido_id"}, {&lArticle, lines, "articulo_id"},
		{&lQty, lines, "cantidad"}, {&lTotal, lines, "subtotal"},
		{&aID, articles, "id"},
	} {
		if *c.dst, err = col(c.table, c.logic); err != nil {
			return linesQuery{}, err
		}
	}

	typeExpr := "NULL"
	if oType, err = col(orders, "tipo_pedido_id"); err == nil {
		typeExpr = "o." + qi(oType)
	} else if !generic.IsSchemaDrift(err) {
		return linesQuery{}, err
	}

	brandExpr := "NULL"
	if c, err := col(articles, "marca_id"); err == nil {
		brandExpr = "a." + qi(c)
	} else if !generic.IsSchemaDrift(err) {
		return linesQuery{}, err
	}

	typeNameExpr, typeJoin := "NULL", ""
	if typeExpr != "NULL" {
		if types, err := r.schema.ResolveTable(ctx, schema.TableOrderTypes); err == nil {
			tID, err1 := col(types, "id")
			tName, err2 := col(types, "nombre")
			if err1 == nil && err2 == nil {
				typeNameExpr = "t." + qi(tName)
				typeJoin = fmt.Sprintf(" LEFT JOIN %s t ON t.%s = %s", qi(types), qi(tID), typeExpr)
			}
		}
	}

	where := []string{
		"o." + qi(oSalesperson) + " = ?",
		"o." + qi(oDate) + " >= ?",
		"o." + qi(oDate) + " < ?",
	}
	if state, err := col(orders, "estado"); err == nil {
		where = append(where, fmt.Sprintf("(o.%s IS NULL OR LOWER(o.%s) <> '%s')",
			qi(state), qi(state), strings.ToLower(CancelledState)))
	}

	query := fmt.Sprintf(`
		SELECT o.%s, l.%s, %s, %s, %s, o.%s, l.%s, COALESCE(l.%s, 0)
		FROM %s l
		JOIN %s o ON o.%s = l.%s
		LEFT JOIN %s a ON a.%s = l.%s%s
		WHERE %s`,
		qi(oID), qi(lArticle), brandExpr, typeExpr, typeNameExpr, qi(oDate), qi(lQty), qi(lTotal),
		qi(lines),
		qi(orders), qi(oID), qi(lOrder),
		qi(articles), qi(aID), qi(lArticle), typeJoin,
		strings.Join(where, " AND "))

	return linesQuery{
		sql:       query,
		brandExpr: brandExpr,
		orderBy:   fmt.Sprintf("o.%s, o.%s, l.%s", qi(oDate), qi(oID), qi(lArticle)),
	}, nil
}

// =============================================================================
// SALESPEOPLE
// =============================================================================

// Salespeople lists salespeople ordered by name. With activeOnly, rows whose
// active column is 0 are skipped (when the column exists).
func (r *Reader) Salespeople(ctx context.Context, activeOnly bool) ([]Salesperson, error) {
	table, err := r.schema.ResolveTable(ctx, schema.TableSalespeople)
	if err != nil {
		return nil, err
	}
	qi := r.q.Dialect().QuoteIdent
	id, err := r.schema.ResolveColumn(ctx, table, "id")
	if err != nil {
		return nil, err
	}
	name, err := r.schema.ResolveColumn(ctx, table, "nombre")
	if err != nil {
		return nil, err
	}

	activeExpr := "1"
	where := ""
	if active, err := r.schema.ResolveColumn(ctx, table, "activo"); err == nil {
		activeExpr = "COALESCE(" + qi(active) + ", 1)"
		if activeOnly {
			where = " WHERE " + activeExpr + " <> 0"
		}
	}

	out := []Salesperson{}
	err = r.q.Query(ctx, fmt.Sprintf("SELECT %s, %s, %s FROM %s%s ORDER BY %s",
		qi(id), qi(name), activeExpr, qi(table), where, qi(name)), nil,
		func(row generic.RowScanner) error {
			var (
				s      Salesperson
				sid    int64
				nm     sql.NullString
				active int64
			)
			if err := row.Scan(&sid, &nm, &active); err != nil {
				return err
			}
			s.ID = generic.SalespersonID(sid)
			s.Name = nm.String
			s.Active = active != 0
			out = append(out, s)
			return nil
		})
	return out, err
}

// SalespersonIDs returns the ids of the active salespeople.
func (r *Reader) SalespersonIDs(ctx context.Context) ([]generic.SalespersonID, error) {
	people, err := r.Salespeople(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]generic.SalespersonID, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}
	return ids, nil
}

func truncateDate(s string) string {
	if len(s) > len(generic.DateLayout) {
		return s[:len(generic.DateLayout)]
	}
	return s
}
