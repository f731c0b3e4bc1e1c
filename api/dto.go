/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies the API accepts where they differ from the
  engine types. Ledger records, config rows and runs are returned as the
  engine serializes them; only requests that trigger an action or need
  field validation get their own type here.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Struct tags are checked with go-playground/validator before the engine
  is called. The engine validates again; the tags only give earlier, more
  specific messages.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rapels"
	"github.com/warp/commission-engine/runs"
)

// =============================================================================
// COMMISSIONS
// =============================================================================

// SetStateRequest changes a commission or rebate state.
type SetStateRequest struct {
	State string `json:"state" validate:"required"`
	Actor string `json:"actor"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ComputeCommissionsRequest recomputes a month.
type ComputeCommissionsRequest struct {
	Year        int                     `json:"year" validate:"required,min=2000,max=2100"`
	Month       int                     `json:"month" validate:"required,min=1,max=12"`
	Salespeople []generic.SalespersonID `json:"salespeople" validate:"omitempty,dive,gt=0"`
	Actor       string                  `json:"actor"`
}

// ComputeCommissionsResponse is the outcome of a compute request.
type ComputeCommissionsResponse struct {
	Run         *runs.Run            `json:"run,omitempty"`
	Commissions []commissions.Record `json:"commissions"`
}

// CommissionDetailResponse is a record with its detail lines and status.
type CommissionDetailResponse struct {
	Commission *commissions.Record       `json:"commission"`
	Lines      []commissions.DetailLine `json:"lines"`
	Status     *commissions.Status      `json:"status,omitempty"`
}

// =============================================================================
// REBATES
// =============================================================================

// ComputeRapelsRequest recomputes a quarter. With a brand and exactly one
// salesperson only that record is computed.
type ComputeRapelsRequest struct {
	Year        int                     `json:"year" validate:"required,min=2000,max=2100"`
	Quarter     int                     `json:"quarter" validate:"required,min=1,max=4"`
	Salespeople []generic.SalespersonID `json:"salespeople" validate:"omitempty,dive,gt=0"`
	BrandID     *generic.BrandID        `json:"brand_id" validate:"omitempty,gt=0"`
}

// ComputeRapelsResponse is the outcome of a compute request.
type ComputeRapelsResponse struct {
	Run    *runs.Run       `json:"run,omitempty"`
	Rapels []rapels.Record `json:"rapels"`
}

// TierRequest creates or updates a rebate tier.
type TierRequest struct {
	ID         int64           `json:"id" validate:"gte=0"`
	BrandID    generic.BrandID `json:"brand_id" validate:"gt=0"`
	Min        decimal.Decimal `json:"min_achievement"`
	Max        decimal.Decimal `json:"max_achievement"`
	Percentage decimal.Decimal `json:"rebate_percentage"`
	Active     *bool           `json:"active"`
	Notes      string          `json:"notes"`
}

// =============================================================================
// OBJECTIVES
// =============================================================================

// GenerateObjectivesRequest apportions a plan year. Omitted salespeople
// means every active salesperson; omitted exceptions use the configured
// list.
type GenerateObjectivesRequest struct {
	Plan              string                  `json:"plan" validate:"required"`
	Year              int                     `json:"year" validate:"required,min=2000,max=2100"`
	Salespeople       []generic.SalespersonID `json:"salespeople" validate:"omitempty,dive,gt=0"`
	JanuaryExceptions []generic.SalespersonID `json:"january_exceptions" validate:"omitempty,dive,gt=0"`
}

// GenerateObjectivesResponse is the outcome of a generate request.
type GenerateObjectivesResponse struct {
	Run    *runs.Run         `json:"run,omitempty"`
	Result objectives.Result `json:"result"`
}

// QuotaRequest creates or updates a monthly quota.
type QuotaRequest struct {
	ID                   int64           `json:"id" validate:"gte=0"`
	Plan                 string          `json:"plan" validate:"required"`
	Year                 int             `json:"year" validate:"required,min=2000,max=2100"`
	Month                int             `json:"month" validate:"required,min=1,max=12"`
	Channel              string          `json:"channel" validate:"required"`
	AmountPerSalesperson decimal.Decimal `json:"amount_per_salesperson"`
	Active               *bool           `json:"active"`
	Notes                string          `json:"notes"`
}

// SplitRequest creates or updates a brand split.
type SplitRequest struct {
	ID         int64           `json:"id" validate:"gte=0"`
	Plan       string          `json:"plan" validate:"required"`
	Year       int             `json:"year" validate:"required,min=2000,max=2100"`
	Channel    string          `json:"channel" validate:"required"`
	BrandID    generic.BrandID `json:"brand_id" validate:"gt=0"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     *bool           `json:"active"`
	Notes      string          `json:"notes"`
}

// SplitValidationResponse reports the split sums of a plan year.
type SplitValidationResponse struct {
	Policy objectives.SplitPolicy `json:"policy"`
	Valid  bool                   `json:"valid"`
	Sums   []objectives.SplitSum  `json:"sums"`
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// CommissionRateRequest creates or updates a commission rate row.
type CommissionRateRequest struct {
	ID            int64                `json:"id" validate:"gte=0"`
	BrandID       generic.BrandID      `json:"brand_id" validate:"gt=0"`
	OrderTypeID   *generic.OrderTypeID `json:"order_type_id" validate:"omitempty,gt=0"`
	OrderTypeName string               `json:"order_type_name" validate:"required_without=OrderTypeID"`
	Year          *int                 `json:"year" validate:"omitempty,min=0,max=2100"`
	Percentage    decimal.Decimal      `json:"percentage"`
	Active        *bool                `json:"active"`
	Notes         string               `json:"notes"`
}

// ResolvedRatesResponse is the configuration that applies to a brand, year
// and order type.
type ResolvedRatesResponse struct {
	BrandID                *generic.BrandID `json:"brand_id,omitempty"`
	Year                   int              `json:"year"`
	OrderType              string           `json:"order_type,omitempty"`
	CommissionRate         *decimal.Decimal `json:"commission_rate"`
	TransportDiscount      decimal.Decimal  `json:"transport_discount"`
	BudgetRebatePercentage decimal.Decimal  `json:"budget_rebate_percentage"`
}

// TransportDiscountRequest sets a brand's transport discount for a year.
type TransportDiscountRequest struct {
	BrandID    generic.BrandID `json:"brand_id" validate:"gt=0"`
	Year       int             `json:"year" validate:"required,min=2000,max=2100"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     *bool           `json:"active"`
}

// BudgetRebateRequest sets the budget rebate percentage of a brand, or the
// year default when brand_id is omitted.
type BudgetRebateRequest struct {
	BrandID    *generic.BrandID `json:"brand_id" validate:"omitempty,gt=0"`
	Year       int              `json:"year" validate:"required,min=2000,max=2100"`
	Percentage decimal.Decimal  `json:"percentage"`
}

// SpecialConditionRequest creates or updates a special commission
// condition.
type SpecialConditionRequest struct {
	ID            int64                  `json:"id" validate:"gte=0"`
	SalespersonID *generic.SalespersonID `json:"salesperson_id" validate:"omitempty,gt=0"`
	ArticleID     *generic.ArticleID     `json:"article_id" validate:"omitempty,gt=0"`
	Percentage    decimal.Decimal        `json:"percentage"`
	Description   string                 `json:"description"`
	Active        *bool                  `json:"active"`
	DateFrom      string                 `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo        string                 `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
}

// FixedAmountRequest saves a fixed amount for one period. Month 0 is the
// whole year; year and month 0 is the global row.
type FixedAmountRequest struct {
	SalespersonID generic.SalespersonID `json:"salesperson_id" validate:"gt=0"`
	BrandID       generic.BrandID       `json:"brand_id" validate:"gt=0"`
	Year          int                   `json:"year" validate:"omitempty,min=2000,max=2100"`
	Month         int                   `json:"month" validate:"min=0,max=12"`
	Amount        decimal.Decimal       `json:"amount"`
	Active        *bool                 `json:"active"`
}

// DisableFixedAmountRequest disables the fixed amount of one period.
type DisableFixedAmountRequest struct {
	SalespersonID generic.SalespersonID `json:"salesperson_id" validate:"gt=0"`
	BrandID       generic.BrandID       `json:"brand_id" validate:"gt=0"`
	Year          int                   `json:"year" validate:"omitempty,min=2000,max=2100"`
	Month         int                   `json:"month" validate:"min=0,max=12"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CountResponse reports affected rows.
type CountResponse struct {
	Deleted int64 `json:"deleted"`
}

func activeOrDefault(b *bool) bool {
	return b == nil || *b
}
