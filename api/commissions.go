package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/export"
	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// COMMISSION HANDLERS
// =============================================================================

// ListCommissions returns commission records.
// GET /api/commissions?salesperson_id=&year=&month=&state=
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	year, err2 := queryInt(r, "year")
	month, err3 := queryInt(r, "month")
	if err := firstErr(err1, err2, err3); err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	list, err := h.Engine.Commissions.List(r.Context(), commissions.Filter{
		SalespersonID: person,
		Year:          year,
		Month:         month,
		State:         generic.State(r.URL.Query().Get("state")),
	})
	if err != nil {
		h.fail(w, r, "Failed to list commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpsertCommission creates or updates a record. Absent fields are left as
// stored.
// POST /api/commissions
func (h *Handler) UpsertCommission(w http.ResponseWriter, r *http.Request) {
	var in commissions.Input
	if err := h.decode(w, r, &in); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	rec, err := h.Engine.Commissions.Upsert(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to save commission", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetCommission returns one record.
// GET /api/commissions/{id}
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid commission id", err)
		return
	}
	rec, err := h.Engine.Commissions.Get(r.Context(), generic.CommissionID(id))
	if err != nil {
		h.fail(w, r, "Failed to get commission", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteCommission removes a record with its detail and status rows.
// DELETE /api/commissions/{id}
func (h *Handler) DeleteCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid commission id", err)
		return
	}
	n, err := h.Engine.Commissions.Delete(r.Context(), generic.CommissionID(id))
	if err != nil {
		h.fail(w, r, "Failed to delete commission", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Deleted: n})
}

// CommissionDetail returns a record with its detail lines and status.
// GET /api/commissions/{id}/detail
func (h *Handler) CommissionDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid commission id", err)
		return
	}
	ctx := r.Context()
	rec, err := h.Engine.Commissions.Get(ctx, generic.CommissionID(id))
	if err != nil {
		h.fail(w, r, "Failed to get commission", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	lines, err := h.Engine.Commissions.Detail(ctx, rec.ID)
	if err != nil {
		h.fail(w, r, "Failed to get commission detail", err)
		return
	}
	status, err := h.Engine.Commissions.Status(ctx, rec.ID)
	if err != nil {
		h.fail(w, r, "Failed to get commission status", err)
		return
	}
	writeJSON(w, http.StatusOK, CommissionDetailResponse{Commission: rec, Lines: lines, Status: status})
}

// SetCommissionState changes a record's state; paid states stamp the
// payment date and actor.
// POST /api/commissions/{id}/state
func (h *Handler) SetCommissionState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Invalid commission id", err)
		return
	}
	var req SetStateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	rec, err := h.Engine.Commissions.SetState(r.Context(), generic.CommissionID(id), generic.State(req.State), req.Actor, req.Date)
	if err != nil {
		h.fail(w, r, "Failed to change commission state", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Commission not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ComputeCommissions recomputes a month.
// POST /api/commissions/compute
func (h *Handler) ComputeCommissions(w http.ResponseWriter, r *http.Request) {
	var req ComputeCommissionsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	records, run, err := h.Engine.ComputeCommissions(r.Context(), engine.CommissionParams{
		Year: req.Year, Month: req.Month, Salespeople: req.Salespeople, Actor: req.Actor,
	})
	if err != nil {
		h.fail(w, r, "Failed to compute commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, ComputeCommissionsResponse{Run: run, Commissions: records})
}

// =============================================================================
// RECEIPTS
// =============================================================================

func receiptFilter(r *http.Request) (commissions.ReceiptFilter, error) {
	person, err1 := queryID[generic.SalespersonID](r, "salesperson_id")
	year, err2 := queryInt(r, "year")
	if err := firstErr(err1, err2); err != nil {
		return commissions.ReceiptFilter{}, err
	}
	return commissions.ReceiptFilter{
		SalespersonID: person,
		Year:          year,
		From:          strings.TrimSpace(r.URL.Query().Get("from")),
		To:            strings.TrimSpace(r.URL.Query().Get("to")),
	}, nil
}

// ListReceipts returns sales commission payments grouped per salesperson
// and day.
// GET /api/commissions/receipts?salesperson_id=&year=&from=&to=
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	f, err := receiptFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	receipts, err := h.Engine.Commissions.ListPaymentReceipts(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// ExportReceipts downloads the receipts as an XLSX workbook.
// GET /api/commissions/receipts/export
func (h *Handler) ExportReceipts(w http.ResponseWriter, r *http.Request) {
	f, err := receiptFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	receipts, err := h.Engine.Commissions.ListPaymentReceipts(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list receipts", err)
		return
	}
	book, err := export.ReceiptsWorkbook(receipts)
	if err != nil {
		h.fail(w, r, "Failed to build workbook", err)
		return
	}
	defer book.Close()

	name := "recibos.xlsx"
	if f.Year != nil {
		name = fmt.Sprintf("recibos-%d.xlsx", *f.Year)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		h.log.Warn("writing receipts workbook failed", zap.Error(err))
	}
}
