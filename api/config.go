package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/fixedpay"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rates"
)

// =============================================================================
// QUOTAS AND SPLITS
// =============================================================================

// ListQuotas returns monthly quotas.
// GET /api/config/quotas?plan=&year=&month=&channel=&active=
func (h *Handler) ListQuotas(w http.ResponseWriter, r *http.Request) {
	f, err := objectivesFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Objectives.ListQuotas(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list quotas", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveQuota creates or updates a quota by (plan, year, month, channel).
// POST /api/config/quotas
func (h *Handler) SaveQuota(w http.ResponseWriter, r *http.Request) {
	var req QuotaRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	q := objectives.Quota{
		ID:                   req.ID,
		Plan:                 req.Plan,
		Year:                 req.Year,
		Month:                req.Month,
		Channel:              req.Channel,
		AmountPerSalesperson: req.AmountPerSalesperson,
		Active:               activeOrDefault(req.Active),
		Notes:                req.Notes,
	}
	id, err := h.Engine.Objectives.SaveQuota(r.Context(), q)
	if err != nil {
		h.fail(w, r, "Failed to save quota", err)
		return
	}
	q.ID = id
	writeJSON(w, http.StatusOK, q)
}

// ListSplits returns brand splits.
// GET /api/config/splits?plan=&year=&channel=&brand_id=&active=
func (h *Handler) ListSplits(w http.ResponseWriter, r *http.Request) {
	f, err := objectivesFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Objectives.ListSplits(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list splits", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveSplit creates or updates a split by (plan, year, channel, brand).
// POST /api/config/splits
func (h *Handler) SaveSplit(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	sp := objectives.Split{
		ID:         req.ID,
		Plan:       req.Plan,
		Year:       req.Year,
		Channel:    req.Channel,
		BrandID:    req.BrandID,
		Percentage: req.Percentage,
		Active:     activeOrDefault(req.Active),
		Notes:      req.Notes,
	}
	id, err := h.Engine.Objectives.SaveSplit(r.Context(), sp)
	if err != nil {
		h.fail(w, r, "Failed to save split", err)
		return
	}
	sp.ID = id
	writeJSON(w, http.StatusOK, sp)
}

// ValidateSplits reports whether each channel's active splits add up to
// 100. The policy parameter overrides the configured one for reporting.
// GET /api/config/splits/validate?plan=&year=&policy=
func (h *Handler) ValidateSplits(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	plan := strings.TrimSpace(r.URL.Query().Get("plan"))
	if err == nil && (plan == "" || year == nil) {
		err = generic.NewValidationError("key", "plan and year are required")
	}
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	policy := h.Engine.SplitPolicy
	if raw := r.URL.Query().Get("policy"); raw != "" {
		if policy, err = objectives.ParseSplitPolicy(raw); err != nil {
			h.fail(w, r, "Invalid query", err)
			return
		}
	}

	sums, err := h.Engine.Objectives.SplitSums(r.Context(), plan, *year)
	if err != nil {
		h.fail(w, r, "Failed to validate splits", err)
		return
	}
	resp := SplitValidationResponse{Policy: policy, Valid: true, Sums: sums}
	if policy != objectives.SplitPolicyOff {
		for _, s := range sums {
			if !s.Valid {
				resp.Valid = false
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RATES
// =============================================================================

// ListCommissionRates returns commission rate rows.
// GET /api/config/commission-rates?brand_id=&year=&active=
func (h *Handler) ListCommissionRates(w http.ResponseWriter, r *http.Request) {
	brand, err1 := queryID[generic.BrandID](r, "brand_id")
	year, err2 := queryInt(r, "year")
	active, err3 := queryBool(r, "active")
	if err := firstErr(err1, err2, err3); err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Rates.ListCommissionRates(r.Context(), rates.RateFilter{BrandID: brand, Year: year, Active: active})
	if err != nil {
		h.fail(w, r, "Failed to list commission rates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveCommissionRate creates or updates a commission rate row.
// POST /api/config/commission-rates
func (h *Handler) SaveCommissionRate(w http.ResponseWriter, r *http.Request) {
	var req CommissionRateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	row := rates.CommissionRateRow{
		ID:            req.ID,
		BrandID:       req.BrandID,
		OrderTypeID:   req.OrderTypeID,
		OrderTypeName: req.OrderTypeName,
		Year:          req.Year,
		Percentage:    req.Percentage,
		Active:        activeOrDefault(req.Active),
		Notes:         req.Notes,
	}
	id, err := h.Engine.Rates.SaveCommissionRate(r.Context(), row)
	if err != nil {
		h.fail(w, r, "Failed to save commission rate", err)
		return
	}
	row.ID = id
	if row.OrderTypeName != "" {
		row.OrderTypeName = rates.CanonicalOrderType(row.OrderTypeName)
	}
	writeJSON(w, http.StatusOK, row)
}

// ResolveRates returns the configuration that applies to a brand, year and
// order type, as the calculator would see it.
// GET /api/config/rates/resolve?brand_id=&year=&order_type=&order_type_id=
func (h *Handler) ResolveRates(w http.ResponseWriter, r *http.Request) {
	brand, err1 := queryID[generic.BrandID](r, "brand_id")
	year, err2 := queryInt(r, "year")
	typeID, err3 := queryID[generic.OrderTypeID](r, "order_type_id")
	err := firstErr(err1, err2, err3)
	if err == nil && year == nil {
		err = generic.NewValidationError("year", "is required")
	}
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	ctx := r.Context()
	orderType := strings.TrimSpace(r.URL.Query().Get("order_type"))
	writeJSON(w, http.StatusOK, ResolvedRatesResponse{
		BrandID:                brand,
		Year:                   *year,
		OrderType:              orderType,
		CommissionRate:         h.Engine.Rates.CommissionRate(ctx, brand, orderType, *year, typeID),
		TransportDiscount:      h.Engine.Rates.TransportDiscount(ctx, brand, *year),
		BudgetRebatePercentage: h.Engine.Rates.BudgetRebatePercentage(ctx, brand, *year),
	})
}

// SaveTransportDiscount sets a brand's transport discount.
// POST /api/config/transport-discounts
func (h *Handler) SaveTransportDiscount(w http.ResponseWriter, r *http.Request) {
	var req TransportDiscountRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	id, err := h.Engine.Rates.SaveTransportDiscount(r.Context(), req.BrandID, req.Year, req.Percentage, activeOrDefault(req.Active))
	if err != nil {
		h.fail(w, r, "Failed to save transport discount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// SaveBudgetRebate sets a budget rebate percentage.
// POST /api/config/budget-rebates
func (h *Handler) SaveBudgetRebate(w http.ResponseWriter, r *http.Request) {
	var req BudgetRebateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	id, err := h.Engine.Rates.SaveBudgetRebatePercentage(r.Context(), req.BrandID, req.Year, req.Percentage)
	if err != nil {
		h.fail(w, r, "Failed to save budget rebate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// ListSpecialConditions returns the conditions that can apply to a
// salesperson.
// GET /api/config/special-conditions?salesperson_id=
func (h *Handler) ListSpecialConditions(w http.ResponseWriter, r *http.Request) {
	person, err := queryID[generic.SalespersonID](r, "salesperson_id")
	if err == nil && person == nil {
		err = generic.NewValidationError("salesperson_id", "is required")
	}
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Rates.SpecialConditions(r.Context(), *person)
	if err != nil {
		h.fail(w, r, "Failed to list special conditions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveSpecialCondition creates or updates a special condition.
// POST /api/config/special-conditions
func (h *Handler) SaveSpecialCondition(w http.ResponseWriter, r *http.Request) {
	var req SpecialConditionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	c := rates.SpecialCondition{
		ID:            req.ID,
		SalespersonID: req.SalespersonID,
		ArticleID:     req.ArticleID,
		Percentage:    req.Percentage,
		Description:   req.Description,
		Active:        activeOrDefault(req.Active),
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
	}
	id, err := h.Engine.Rates.SaveSpecialCondition(r.Context(), c)
	if err != nil {
		h.fail(w, r, "Failed to save special condition", err)
		return
	}
	c.ID = id
	writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// PLANS
// =============================================================================

// ImportPlan imports a YAML or JSON plan document. The format comes from
// the format parameter, else the content type, else the body.
// POST /api/plans/import?format=yaml|json
func (h *Handler) ImportPlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		switch ct := r.Header.Get("Content-Type"); {
		case strings.Contains(ct, "yaml"):
			format = "yaml"
		case strings.Contains(ct, "json"):
			format = "json"
		}
	}
	doc, err := factory.ParsePlan(body, format)
	if err != nil {
		h.fail(w, r, "Invalid plan document", err)
		return
	}
	res, run, err := h.Engine.ImportPlan(r.Context(), doc)
	if err != nil {
		h.fail(w, r, "Failed to import plan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "result": res})
}

// =============================================================================
// FIXED AMOUNTS
// =============================================================================

// ListFixedAmounts returns fixed monthly amounts; with year and month the
// amounts in force that month are resolved.
// GET /api/fixed-amounts?salesperson_id=&brand_id=&year=&month=&active=
func (h *Handler) ListFixedAmounts(w http.ResponseWriter, r *http.Request) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	brand, err2 := queryID[generic.BrandID](r, "brand_id")
	year, err3 := queryInt(r, "year")
	month, err4 := queryInt(r, "month")
	active, err5 := queryBool(r, "active")
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.FixedPay.Get(r.Context(), fixedpay.Filter{
		SalespersonID: person, BrandID: brand, Year: year, Month: month, Active: active,
	})
	if err != nil {
		h.fail(w, r, "Failed to list fixed amounts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveFixedAmount saves the fixed amount of one month.
// POST /api/fixed-amounts
func (h *Handler) SaveFixedAmount(w http.ResponseWriter, r *http.Request) {
	var req FixedAmountRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	a := fixedpay.Amount{
		SalespersonID: req.SalespersonID,
		BrandID:       req.BrandID,
		Year:          req.Year,
		Month:         req.Month,
		Amount:        req.Amount,
		Active:        activeOrDefault(req.Active),
	}
	id, err := h.Engine.FixedPay.SaveForPeriod(r.Context(), a)
	if err != nil {
		h.fail(w, r, "Failed to save fixed amount", err)
		return
	}
	a.ID = id
	writeJSON(w, http.StatusOK, a)
}

// DisableFixedAmount disables the fixed amount of one month.
// POST /api/fixed-amounts/disable
func (h *Handler) DisableFixedAmount(w http.ResponseWriter, r *http.Request) {
	var req DisableFixedAmountRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	n, err := h.Engine.FixedPay.DisableForPeriod(r.Context(), req.SalespersonID, req.BrandID, req.Year, req.Month)
	if err != nil {
		h.fail(w, r, "Failed to disable fixed amount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"disabled": n})
}
