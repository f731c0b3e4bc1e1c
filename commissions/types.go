/*
Package commissions is the commission ledger and calculator.

PURPOSE:
  One CommissionRecord per (salesperson, month, year) holds the fixed pay,
  sales commission, budget commission and totals of the period. Detail lines
  (one per order line) back the sales figures; a status row tracks the last
  state change.

KEY CONCEPTS:
  - Identity: the composite key (salesperson, month, year) is natural; id is
    a surrogate assigned at first insert. Month 0 is an annual-only record.
  - Partial writes: Input uses pointer fields. Only non-nil fields are
    written on update; absent numeric fields default to 0 on insert.
  - Stored totals are authoritative. Listings also carry the live sum of
    "Venta" detail lines as secondary fields.
  - States: Pendiente -> Calculado/Calculada -> Pagado/Pagada. Writes keep the
    spelling given, reads match both.

PAYMENT COLUMNS:
  Newer schemas record the sales-concept payment separately
  (fecha_pago_ventas, pagado_por_ventas). Older ones only have the single
  pair (fecha_pago, pagado_por). The shape is probed once per Ledger; sales
  payment fields are written to the legacy pair when the split columns are
  missing.

FILES:
  - types.go:      records, inputs, filters
  - ledger.go:     upsert / get / list
  - detail.go:     detail lines, status rows, delete, state transitions
  - receipts.go:   payment receipts grouped by day
  - calculator.go: monthly computation from order lines

SEE ALSO:
  - rates/resolver.go: commission rate / transport discount / budget rebate
  - fixedpay/resolver.go: fixed monthly amounts
*/
package commissions

import (
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
)

// ConceptSale is the detail concept type of order-line commissions.
const ConceptSale = "Venta"

// Record is a CommissionRecord.
type Record struct {
	ID               generic.CommissionID  `json:"id"`
	SalespersonID    generic.SalespersonID `json:"salesperson_id"`
	SalespersonName  string                `json:"salesperson_name,omitempty"`
	Month            int                   `json:"month"`
	Year             int                   `json:"year"`
	FixedMonthly     decimal.Decimal       `json:"fixed_monthly"`
	SalesCommission  decimal.Decimal       `json:"sales_commission"`
	BudgetCommission decimal.Decimal       `json:"budget_commission"`
	TotalSales       decimal.Decimal       `json:"total_sales"`
	TotalCommission  decimal.Decimal       `json:"total_commission"`
	State            generic.State         `json:"state"`
	PaymentDate      string                `json:"payment_date,omitempty"`
	PaidBy           string                `json:"paid_by,omitempty"`
	PaymentDateSales string                `json:"payment_date_sales,omitempty"`
	PaidBySales      string                `json:"paid_by_sales,omitempty"`
	CalculatedBy     string                `json:"calculated_by,omitempty"`
	Notes            string                `json:"notes,omitempty"`

	// Live aggregate of "Venta" detail lines; nil when the record has none.
	TotalSalesFromDetail      *decimal.Decimal `json:"total_sales_from_detail,omitempty"`
	TotalCommissionFromDetail *decimal.Decimal `json:"total_commission_from_detail,omitempty"`
}

// Input is a partial CommissionRecord. Nil fields are absent.
type Input struct {
	ID               *int64                 `json:"id,omitempty"`
	SalespersonID    *generic.SalespersonID `json:"salesperson_id,omitempty"`
	Month            *int                   `json:"month,omitempty"`
	Year             *int                   `json:"year,omitempty"`
	FixedMonthly     *decimal.Decimal       `json:"fixed_monthly,omitempty"`
	SalesCommission  *decimal.Decimal       `json:"sales_commission,omitempty"`
	BudgetCommission *decimal.Decimal       `json:"budget_commission,omitempty"`
	TotalSales       *decimal.Decimal       `json:"total_sales,omitempty"`
	TotalCommission  *decimal.Decimal       `json:"total_commission,omitempty"`
	State            *generic.State         `json:"state,omitempty"`
	PaymentDate      *string                `json:"payment_date,omitempty"`
	PaidBy           *string                `json:"paid_by,omitempty"`
	PaymentDateSales *string                `json:"payment_date_sales,omitempty"`
	PaidBySales      *string                `json:"paid_by_sales,omitempty"`
	CalculatedBy     *string                `json:"calculated_by,omitempty"`
	Notes            *string                `json:"notes,omitempty"`
}

// Filter narrows List. Nil fields and an empty state are ignored.
type Filter struct {
	SalespersonID *generic.SalespersonID
	Year          *int
	Month         *int
	State         generic.State
}

// DetailLine is a CommissionDetailLine.
type DetailLine struct {
	ID                   int64                `json:"id"`
	CommissionID         generic.CommissionID `json:"commission_id"`
	OrderID              *generic.OrderID     `json:"order_id,omitempty"`
	ArticleID            *generic.ArticleID   `json:"article_id,omitempty"`
	Quantity             decimal.Decimal      `json:"quantity"`
	SaleAmount           decimal.Decimal      `json:"sale_amount"`
	CommissionPercentage decimal.Decimal      `json:"commission_percentage"`
	CommissionAmount     decimal.Decimal      `json:"commission_amount"`
	ConceptType          string               `json:"concept_type"`
	Notes                string               `json:"notes,omitempty"`
}

// Status is a CommissionStatus row.
type Status struct {
	ID           int64                `json:"id"`
	CommissionID generic.CommissionID `json:"commission_id"`
	State        generic.State        `json:"state"`
	StateDate    string               `json:"state_date,omitempty"`
	UpdatedBy    string               `json:"updated_by,omitempty"`
	Notes        string               `json:"notes,omitempty"`
}

// Receipt groups the sales commissions paid to one salesperson on one day.
type Receipt struct {
	SalespersonID   generic.SalespersonID `json:"salesperson_id"`
	SalespersonName string                `json:"salesperson_name"`
	PaymentDate     string                `json:"payment_date"`
	Commissions     int                   `json:"commissions"`
	TotalSales      decimal.Decimal       `json:"total_sales"`
	TotalCommission decimal.Decimal       `json:"total_commission"`
	PaidBy          []string              `json:"paid_by"`
}

// ReceiptFilter narrows ListPaymentReceipts. From/To are inclusive days.
type ReceiptFilter struct {
	SalespersonID *generic.SalespersonID
	Year          *int
	From          string
	To            string
}
