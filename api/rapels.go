package api

import (
	"net/http"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/rapels"
)

// =============================================================================
// REBATE HANDLERS
// =============================================================================

// ListRapels returns rebate records.
// GET /api/rapels?salesperson_id=&brand_id=&quarter=&year=&state=
func (h *Handler) ListRapels(w http.ResponseWriter, r *http.Request) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	brand, err2 := queryID[generic.BrandID](r, "brand_id")
	quarter, err3 := queryInt(r, "quarter")
	year, err4 := queryInt(r, "year")
	if err := firstErr(err1, err2, err3, err4); err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Rapels.List(r.Context(), rapels.Filter{
		SalespersonID: person,
		BrandID:       brand,
		Quarter:       quarter,
		Year:          year,
		State:         generic.State(r.URL.Query().Get("state")),
	})
	if err != nil {
		h.fail(w, r, "Failed to list rapels", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpsertRapel creates or updates a rebate record.
// POST /api/rapels
func (h *Handler) UpsertRapel(w http.ResponseWriter, r *http.Request) {
	var in rapels.Input
	if err := h.decode(w, r, &in); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	rec, err := h.Engine.Rapels.Upsert(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to save rapel", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Rapel not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRapel removes a rebate record.
// DELETE /api/rapels/{id}
func (h *Handler) DeleteRapel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid rapel id", err)
		return
	}
	n, err := h.Engine.Rapels.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete rapel", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Rapel not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Deleted: n})
}

// SetRapelState changes a rebate state.
// POST /api/rapels/{id}/state
func (h *Handler) SetRapelState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid rapel id", err)
		return
	}
	var req SetStateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	rec, err := h.Engine.Rapels.SetState(r.Context(), id, generic.State(req.State), req.Date)
	if err != nil {
		h.fail(w, r, "Failed to change rapel state", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Rapel not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ComputeRapels recomputes a quarter, or one (salesperson, brand) of it.
// POST /api/rapels/compute
func (h *Handler) ComputeRapels(w http.ResponseWriter, r *http.Request) {
	var req ComputeRapelsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}

	if req.BrandID != nil {
		if len(req.Salespeople) != 1 {
			h.fail(w, r, "Invalid request body",
				generic.NewValidationError("salespeople", "exactly one salesperson is required with brand_id"))
			return
		}
		rec, err := h.Engine.RapelCalculator.ComputeQuarter(r.Context(), req.Salespeople[0], *req.BrandID, req.Quarter, req.Year)
		if err != nil {
			h.fail(w, r, "Failed to compute rapel", err)
			return
		}
		writeJSON(w, http.StatusOK, ComputeRapelsResponse{Rapels: []rapels.Record{*rec}})
		return
	}

	records, run, err := h.Engine.ComputeRapels(r.Context(), engine.RapelParams{
		Quarter: req.Quarter, Year: req.Year, Salespeople: req.Salespeople,
	})
	if err != nil {
		h.fail(w, r, "Failed to compute rapels", err)
		return
	}
	writeJSON(w, http.StatusOK, ComputeRapelsResponse{Run: run, Rapels: records})
}

// =============================================================================
// TIERS
// =============================================================================

// ListTiers returns rebate tiers.
// GET /api/rapels/tiers?brand_id=&active=
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	brand, err1 := queryID[generic.BrandID](r, "brand_id")
	active, err2 := queryBool(r, "active")
	if err := firstErr(err1, err2); err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	tiers, err := h.Engine.Rapels.Tiers(r.Context(), brand, active != nil && *active)
	if err != nil {
		h.fail(w, r, "Failed to list tiers", err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

// SaveTier creates or updates a rebate tier.
// POST /api/rapels/tiers
func (h *Handler) SaveTier(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	tier := rapels.Tier{
		ID:         req.ID,
		BrandID:    req.BrandID,
		Min:        req.Min,
		Max:        req.Max,
		Percentage: req.Percentage,
		Active:     activeOrDefault(req.Active),
		Notes:      req.Notes,
	}
	id, err := h.Engine.Rapels.SaveTier(r.Context(), tier)
	if err != nil {
		h.fail(w, r, "Failed to save tier", err)
		return
	}
	tier.ID = id
	writeJSON(w, http.StatusOK, tier)
}

// DeleteTier removes a rebate tier.
// DELETE /api/rapels/tiers/{id}
func (h *Handler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid tier id", err)
		return
	}
	n, err := h.Engine.Rapels.DeleteTier(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete tier", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Tier not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Deleted: n})
}
