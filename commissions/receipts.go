package commissions

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
)

// =============================================================================
// PAYMENT RECEIPTS
// =============================================================================

// ListPaymentReceipts groups paid sales commissions by (salesperson, payment
// day), summing sales and sales commission and collecting the distinct
// actors who paid them.
//
// With per-concept payment columns a commission counts once its sales
// payment date is set. With only the legacy pair it must also be in a paid
// state.
func (l *Ledger) ListPaymentReceipts(ctx context.Context, f ReceiptFilter) ([]Receipt, error) {
	table, err := l.header(ctx)
	if err != nil {
		return nil, err
	}
	perConcept, err := l.HasPerConceptPayment(ctx)
	if err != nil {
		return nil, err
	}
	receipts, err := l.receipts(ctx, table, perConcept, f)
	if err != nil && perConcept && generic.IsSchemaDrift(err) {
		l.degradePerConcept(table, err)
		return l.receipts(ctx, table, false, f)
	}
	return receipts, err
}

func (l *Ledger) receipts(ctx context.Context, table string, perConcept bool, f ReceiptFilter) ([]Receipt, error) {
	qi := l.q.Dialect().QuoteIdent

	dateCol, byCol := colPaymentDate, colPaidBy
	if perConcept {
		dateCol, byCol = colPaymentDateSales, colPaidBySales
	}
	day := fmt.Sprintf("SUBSTR(CAST(c.%s AS TEXT), 1, 10)", dateCol)

	where := []string{fmt.Sprintf("COALESCE(CAST(c.%s AS TEXT), '') <> ''", dateCol)}
	var args []any
	if !perConcept {
		paid := generic.StatePaid.SynonymArgs()
		where = append(where, fmt.Sprintf("c.%s IN (%s)", colState, generic.Placeholders(len(paid))))
		args = append(args, paid...)
	}
	if f.SalespersonID != nil {
		where = append(where, "c."+colSalesperson+" = ?")
		args = append(args, int64(*f.SalespersonID))
	}
	if f.Year != nil {
		where = append(where, "c."+colYear+" = ?")
		args = append(args, *f.Year)
	}
	if f.From != "" {
		where = append(where, day+" >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, day+" <= ?")
		args = append(args, f.To)
	}

	nameExpr, peopleJoin := "''", ""
	if people, idCol, nameCol, ok := l.salespeopleNames(ctx); ok {
		nameExpr = "COALESCE(s." + qi(nameCol) + ", '')"
		peopleJoin = fmt.Sprintf(" LEFT JOIN %s s ON s.%s = c.%s", qi(people), qi(idCol), colSalesperson)
	}

	// Amounts are summed here so decimal text columns add up exactly.
	query := fmt.Sprintf(`
		SELECT c.%s, %s, %s, COALESCE(c.%s, 0), COALESCE(c.%s, 0), c.%s
		FROM %s c%s
		WHERE %s
		ORDER BY c.id`,
		colSalesperson, nameExpr, day,
		colTotalSales, colSalesCommission, byCol,
		qi(table), peopleJoin,
		strings.Join(where, " AND "))

	type receiptKey struct {
		person generic.SalespersonID
		day    string
	}
	index := make(map[receiptKey]int)
	out := []Receipt{}
	err := l.q.Query(ctx, query, args, func(row generic.RowScanner) error {
		var (
			person       int64
			name, payDay string
			sales, comm  decimal.Decimal
			actor        sql.NullString
		)
		if err := row.Scan(&person, &name, &payDay, &sales, &comm, &actor); err != nil {
			return err
		}
		k := receiptKey{generic.SalespersonID(person), payDay}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Receipt{SalespersonID: k.person, SalespersonName: name, PaymentDate: payDay, PaidBy: []string{}})
		}
		r := &out[i]
		r.Commissions++
		r.TotalSales = r.TotalSales.Add(sales)
		r.TotalCommission = r.TotalCommission.Add(comm)
		r.PaidBy = addActor(r.PaidBy, actor.String)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PaymentDate != out[j].PaymentDate {
			return out[i].PaymentDate > out[j].PaymentDate
		}
		return out[i].SalespersonName < out[j].SalespersonName
	})
	return out, nil
}

// addActor inserts a into the sorted, distinct actor list.
func addActor(actors []string, a string) []string {
	a = strings.TrimSpace(a)
	if a == "" {
		return actors
	}
	i := sort.SearchStrings(actors, a)
	if i < len(actors) && actors[i] == a {
		return actors
	}
	return slices.Insert(actors, i, a)
}
