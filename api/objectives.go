package api

import (
	"net/http"
	"strings"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
)

// =============================================================================
// OBJECTIVE HANDLERS
// =============================================================================

// objectivesFilter reads the common listing parameters.
func objectivesFilter(r *http.Request) (objectives.Filter, error) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	brand, err2 := queryID[generic.BrandID](r, "brand_id")
	year, err3 := queryInt(r, "year")
	month, err4 := queryInt(r, "month")
	active, err5 := queryBool(r, "active")
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return objectives.Filter{}, err
	}
	q := r.URL.Query()
	return objectives.Filter{
		Plan:          strings.TrimSpace(q.Get("plan")),
		SalespersonID: person,
		BrandID:       brand,
		Year:          year,
		Month:         month,
		Channel:       strings.TrimSpace(q.Get("channel")),
		Active:        active,
	}, nil
}

// ListObjectives returns brand objectives.
// GET /api/objectives?salesperson_id=&brand_id=&year=&month=&channel=&active=
func (h *Handler) ListObjectives(w http.ResponseWriter, r *http.Request) {
	f, err := objectivesFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Objectives.ListObjectives(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list objectives", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GroupedObjectives returns objectives per (salesperson, brand, year) with
// quarter sums.
// GET /api/objectives/grouped
func (h *Handler) GroupedObjectives(w http.ResponseWriter, r *http.Request) {
	f, err := objectivesFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	groups, err := h.Engine.Objectives.Groups(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to group objectives", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// DeleteObjectiveGroup removes every month of (salesperson, brand, year).
// DELETE /api/objectives/group?salesperson_id=&brand_id=&year=
func (h *Handler) DeleteObjectiveGroup(w http.ResponseWriter, r *http.Request) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	brand, err2 := queryID[generic.BrandID](r, "brand_id")
	year, err3 := queryInt(r, "year")
	err := firstErr(err1, err2, err3)
	if err == nil && (person == nil || brand == nil || year == nil) {
		err = generic.NewValidationError("key", "salesperson_id, brand_id and year are required")
	}
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	n, err := h.Engine.Objectives.DeleteGroup(r.Context(), *person, *brand, *year)
	if err != nil {
		h.fail(w, r, "Failed to delete objectives", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Deleted: n})
}

// GenerateObjectives apportions a plan year into objectives.
// POST /api/objectives/generate
func (h *Handler) GenerateObjectives(w http.ResponseWriter, r *http.Request) {
	var req GenerateObjectivesRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	res, run, err := h.Engine.GenerateObjectives(r.Context(), engine.ObjectivesParams{
		Plan:              req.Plan,
		Year:              req.Year,
		Salespeople:       req.Salespeople,
		JanuaryExceptions: req.JanuaryExceptions,
	})
	if err != nil {
		h.fail(w, r, "Failed to generate objectives", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateObjectivesResponse{Run: run, Result: res})
}
