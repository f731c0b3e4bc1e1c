/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the engine via a thin REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the engine packages.

ENDPOINTS:
  Commissions:
    GET    /api/commissions                  List (salesperson_id, year, month, state)
    POST   /api/commissions                  Upsert by id or (salesperson, month, year)
    GET    /api/commissions/{id}             Get
    DELETE /api/commissions/{id}             Delete with detail and status
    GET    /api/commissions/{id}/detail      Record, detail lines and status
    POST   /api/commissions/{id}/state       Change state
    POST   /api/commissions/compute          Recompute a month
    GET    /api/commissions/receipts         Payment receipts
    GET    /api/commissions/receipts/export  Payment receipts as XLSX

  Rebates:
    GET    /api/rapels                       List
    POST   /api/rapels                       Upsert
    DELETE /api/rapels/{id}                  Delete
    POST   /api/rapels/{id}/state            Change state
    POST   /api/rapels/compute               Recompute a quarter
    GET    /api/rapels/tiers                 List tiers
    POST   /api/rapels/tiers                 Save tier
    DELETE /api/rapels/tiers/{id}            Delete tier

  Objectives:
    GET    /api/objectives                   List
    GET    /api/objectives/grouped           Quarter and year sums
    DELETE /api/objectives/group             Delete (salesperson, brand, year)
    POST   /api/objectives/generate          Apportion a plan year

  Configuration, plans, fixed amounts, runs: see server.go.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Duplicate natural key
  - 500: Internal errors (logged)

SECURITY NOTE:
  No authentication or authorization here; sessions and roles belong to
  the surrounding CRM.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/: component wiring and tracked batch actions
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/runs"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies, plan documents included.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *engine.Engine
	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler creates a handler over e.
func NewHandler(e *engine.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:   e,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.Named("api"),
	}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns recent runs.
// GET /api/runs?kind=&status=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "Invalid query", err)
		return
	}
	f := runs.Filter{
		Kind:   runs.Kind(r.URL.Query().Get("kind")),
		Status: runs.Status(r.URL.Query().Get("status")),
	}
	if limit != nil {
		f.Limit = *limit
	}
	list, err := h.Engine.Runs.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetRun returns one run.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run id", err)
		return
	}
	run, err := h.Engine.Runs.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return generic.NewValidationError("body", err.Error())
	}
	return h.validate.Struct(dst)
}

// fail writes err with the status its kind maps to. Server errors are
// logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	var fields validator.ValidationErrors
	switch {
	case errors.As(err, &fields):
		writeError(w, http.StatusBadRequest, message, validationDetails(fields))
	case errors.Is(err, generic.ErrDuplicateKey):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.log.Error(message, zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func validationDetails(fields validator.ValidationErrors) error {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f.Param() != "" {
			parts[i] = fmt.Sprintf("%s: %s=%s", f.Field(), f.Tag(), f.Param())
		} else {
			parts[i] = fmt.Sprintf("%s: %s", f.Field(), f.Tag())
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, generic.NewValidationError("id", fmt.Sprintf("%q is not a positive number", raw))
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, generic.NewValidationError(name, fmt.Sprintf("%q is not a number", raw))
	}
	return &n, nil
}

// queryID parses an optional positive id query parameter.
func queryID[T ~int64](r *http.Request, name string) (*T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil, generic.NewValidationError(name, fmt.Sprintf("%q is not a positive number", raw))
	}
	id := T(n)
	return &id, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, generic.NewValidationError(name, fmt.Sprintf("%q is not a boolean", raw))
	}
	return &b, nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
