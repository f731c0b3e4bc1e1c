package commissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// =============================================================================
// DETAIL LINES
// =============================================================================

// ReplaceDetail deletes every detail line of a commission and inserts lines
// in one transaction. Detail is never patched line by line.
func (l *Ledger) ReplaceDetail(ctx context.Context, id generic.CommissionID, lines []DetailLine) error {
	if err := generic.RequirePositive("commission_id", int64(id)); err != nil {
		return err
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableDetail)
	if err != nil {
		return err
	}

	return l.q.Tx(ctx, func(tx generic.Querier) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE comision_id = ?",
			tx.Dialect().QuoteIdent(table)), int64(id)); err != nil {
			return err
		}
		for _, line := range lines {
			concept := line.ConceptType
			if concept == "" {
				concept = ConceptSale
			}
			var order, article any
			if line.OrderID != nil {
				order = int64(*line.OrderID)
			}
			if line.ArticleID != nil {
				article = int64(*line.ArticleID)
			}
			if _, err := generic.InsertColumns(ctx, tx, table, []generic.Column{
				generic.Col("comision_id", int64(id)),
				generic.Col("pedido_id", order),
				generic.Col("articulo_id", article),
				generic.Col("cantidad", line.Quantity),
				generic.Col("importe_venta", line.SaleAmount),
				generic.Col("porcentaje_comision", line.CommissionPercentage),
				generic.Col("importe_comision", line.CommissionAmount),
				generic.Col("tipo_concepto", concept),
				generic.Col("observaciones", nullString(line.Notes)),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Detail returns the detail lines of a commission in insertion order.
func (l *Ledger) Detail(ctx context.Context, id generic.CommissionID) ([]DetailLine, error) {
	if err := generic.RequirePositive("commission_id", int64(id)); err != nil {
		return nil, err
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableDetail)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return []DetailLine{}, nil
		}
		return nil, err
	}

	lines := []DetailLine{}
	err = l.q.Query(ctx, fmt.Sprintf(`
		SELECT id, comision_id, pedido_id, articulo_id,
		       COALESCE(cantidad, 0), COALESCE(importe_venta, 0),
		       COALESCE(porcentaje_comision, 0), COALESCE(importe_comision, 0),
		       tipo_concepto, observaciones
		FROM %s WHERE comision_id = ? ORDER BY id`, l.q.Dialect().QuoteIdent(table)),
		[]any{int64(id)},
		func(row generic.RowScanner) error {
			var (
				d              DetailLine
				commission     int64
				order, article sql.NullInt64
				concept, notes sql.NullString
			)
			if err := row.Scan(&d.ID, &commission, &order, &article,
				&d.Quantity, &d.SaleAmount, &d.CommissionPercentage, &d.CommissionAmount,
				&concept, &notes); err != nil {
				return err
			}
			d.CommissionID = generic.CommissionID(commission)
			if order.Valid {
				d.OrderID = generic.Ptr(generic.OrderID(order.Int64))
			}
			if article.Valid {
				d.ArticleID = generic.Ptr(generic.ArticleID(article.Int64))
			}
			d.ConceptType, d.Notes = concept.String, notes.String
			lines = append(lines, d)
			return nil
		})
	return lines, err
}

// DetailTotals sums the "Venta" lines of a commission.
func DetailTotals(lines []DetailLine) (sales, commission decimal.Decimal) {
	for _, d := range lines {
		if d.ConceptType != ConceptSale {
			continue
		}
		sales = sales.Add(d.SaleAmount)
		commission = commission.Add(d.CommissionAmount)
	}
	return sales, commission
}

// =============================================================================
// STATUS
// =============================================================================

// UpsertStatus writes a status row. With an id the row is updated in place;
// otherwise the row is keyed by commission id (last write wins).
func (l *Ledger) UpsertStatus(ctx context.Context, st Status) (int64, error) {
	if err := generic.RequirePositive("commission_id", int64(st.CommissionID)); err != nil {
		return 0, err
	}
	if st.State == "" {
		return 0, generic.NewValidationError("state", "is required")
	}
	table, err := l.schema.ResolveTable(ctx, schema.TableStatus)
	if err != nil {
		return 0, err
	}
	if st.StateDate == "" {
		st.StateDate = time.Now().Format(generic.DateLayout)
	}

	set := []generic.Column{
		generic.Col("estado", string(st.State)),
		generic.Col("fecha_estado", st.StateDate),
		generic.Col("actualizado_por", nullString(st.UpdatedBy)),
		generic.Col("observaciones", nullString(st.Notes)),
	}
	if st.ID > 0 {
		_, err := generic.UpdateByID(ctx, l.q, table, st.ID, set)
		return st.ID, err
	}
	return generic.Upsert(ctx, l.q, generic.UpsertSpec{
		Table: table,
		Key:   []generic.Column{generic.Col("comision_id", int64(st.CommissionID))},
		Set:   set,
	})
}

// Status returns the status row of a commission, or nil.
func (l *Ledger) Status(ctx context.Context, id generic.CommissionID) (*Status, error) {
	table, err := l.schema.ResolveTable(ctx, schema.TableStatus)
	if err != nil {
		if generic.IsSchemaDrift(err) {
			return nil, nil
		}
		return nil, err
	}
	var (
		st              Status
		commission      int64
		state           string
		date, by, notes sql.NullString
	)
	found, err := generic.QueryRow(ctx, l.q, fmt.Sprintf(`
		SELECT id, comision_id, estado, fecha_estado, actualizado_por, observaciones
		FROM %s WHERE comision_id = ? ORDER BY id DESC LIMIT 1`, l.q.Dialect().QuoteIdent(table)),
		[]any{int64(id)}, &st.ID, &commission, &state, &date, &by, &notes)
	if err != nil || !found {
		return nil, err
	}
	st.CommissionID = generic.CommissionID(commission)
	st.State = generic.State(state)
	st.StateDate, st.UpdatedBy, st.Notes = date.String, by.String, notes.String
	return &st, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a commission with its detail lines and status rows. Missing
// child tables are skipped. It returns the number of header rows deleted.
func (l *Ledger) Delete(ctx context.Context, id generic.CommissionID) (int64, error) {
	if err := generic.RequirePositive("id", int64(id)); err != nil {
		return 0, err
	}

	for _, child := range []string{schema.TableDetail, schema.TableStatus} {
		if err := l.deleteChildren(ctx, child, id); err != nil {
			return 0, err
		}
	}

	table, err := l.header(ctx)
	if err != nil {
		return 0, err
	}
	res, err := l.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", l.q.Dialect().QuoteIdent(table)), int64(id))
	if err != nil {
		return 0, err
	}
	l.log.Info("commission deleted", zap.Int64("id", int64(id)), zap.Int64("affected", res.AffectedRows))
	return res.AffectedRows, nil
}

func (l *Ledger) deleteChildren(ctx context.Context, logical string, id generic.CommissionID) error {
	table, err := l.schema.ResolveTable(ctx, logical)
	if err == nil {
		_, err = l.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE comision_id = ?", l.q.Dialect().QuoteIdent(table)), int64(id))
	}
	if err != nil && generic.IsSchemaDrift(err) {
		l.log.Debug("child table unavailable, skipped", zap.String("table", logical), zap.Error(err))
		return nil
	}
	return err
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// SetState writes state as given. Paid states also stamp the sales payment
// date and actor. The status row is upserted; a deployment without the
// status table only gets the header change. date defaults to today.
func (l *Ledger) SetState(ctx context.Context, id generic.CommissionID, state generic.State, actor, date string) (*Record, error) {
	if err := generic.RequirePositive("id", int64(id)); err != nil {
		return nil, err
	}
	if state == "" {
		return nil, generic.NewValidationError("state", "is required")
	}
	if date == "" {
		date = time.Now().Format(generic.DateLayout)
	}

	in := Input{ID: generic.Ptr(int64(id)), State: &state}
	if state.IsPaid() {
		in.PaymentDateSales = &date
		in.PaidBySales = &actor
	}
	rec, err := l.Upsert(ctx, in)
	if err != nil || rec == nil {
		return rec, err
	}

	if _, err := l.UpsertStatus(ctx, Status{CommissionID: id, State: state, StateDate: date, UpdatedBy: actor}); err != nil {
		if !generic.IsSchemaDrift(err) {
			return nil, err
		}
		l.log.Debug("status table unavailable", zap.Error(err))
	}
	return rec, nil
}
