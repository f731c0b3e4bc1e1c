/*
handlers_test.go - HTTP tests for the API handlers

Tests drive the full router against a migrated in-memory database:
- Commission ledger round trip, state change, receipts and export
- Request validation and error statuses
- Compute and run log
- Plan import, split validation, objective generation and groups
- Rates, tiers and fixed amounts
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/export"
	"github.com/warp/commission-engine/fixedpay"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rapels"
	"github.com/warp/commission-engine/runs"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite/sqlitetest"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testServer struct {
	t      *testing.T
	db     *sqldb.DB
	engine *engine.Engine
	router http.Handler
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	db := sqlitetest.New(t)
	e := engine.New(db, engine.Options{Objectives: objectives.Options{Channels: []string{"Directo"}}}, nil)
	return &testServer{t: t, db: db, engine: e, router: api.NewRouter(api.NewHandler(e, nil), api.RouterOptions{})}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCommissions_RoundTrip(t *testing.T) {
	// GIVEN: a salesperson
	s := newServer(t)
	person := sqlitetest.Salesperson(t, s.db, "Ana")

	// WHEN: a record is upserted through the API
	rec := s.do(http.MethodPost, "/api/commissions",
		fmt.Sprintf(`{"salesperson_id": %d, "month": 3, "year": 2025, "total_sales": "1000", "total_commission": 50}`, person))

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody[commissions.Record](t, rec)
	assert.Equal(t, "Pendiente", string(created.State))
	assert.True(t, dec("50").Equal(created.TotalCommission))

	path := fmt.Sprintf("/api/commissions/%d", created.ID)
	rec = s.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana", decodeBody[commissions.Record](t, rec).SalespersonName)

	rec = s.do(http.MethodGet, "/api/commissions?year=2025&state=Pendiente", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]commissions.Record](t, rec), 1)

	// WHEN: the record is paid
	rec = s.do(http.MethodPost, path+"/state", `{"state": "Pagada", "actor": "admin", "date": "2025-04-01"}`)

	// THEN: the state is stored as given and the payment is stamped
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeBody[commissions.Record](t, rec)
	assert.Equal(t, "Pagada", string(paid.State))
	assert.Equal(t, "2025-04-01", paid.PaymentDateSales)
	assert.Equal(t, "admin", paid.PaidBySales)

	rec = s.do(http.MethodGet, path+"/detail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[api.CommissionDetailResponse](t, rec)
	require.NotNil(t, detail.Status)
	assert.Equal(t, "admin", detail.Status.UpdatedBy)

	rec = s.do(http.MethodGet, "/api/commissions/receipts?year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	receipts := decodeBody[[]commissions.Receipt](t, rec)
	require.Len(t, receipts, 1)
	assert.Equal(t, "2025-04-01", receipts[0].PaymentDate)
	assert.Equal(t, []string{"admin"}, receipts[0].PaidBy)

	// WHEN: deleting twice
	rec = s.do(http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommissions_ExportReceipts(t *testing.T) {
	s := newServer(t)
	person := sqlitetest.Salesperson(t, s.db, "Ana")
	rec := s.do(http.MethodPost, "/api/commissions",
		fmt.Sprintf(`{"salesperson_id": %d, "month": 1, "year": 2025, "total_sales": 200, "total_commission": 10,
			"state": "Pagado", "payment_date_sales": "2025-02-03", "paid_by_sales": "jefe"}`, person))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/commissions/receipts/export?year=2025", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "recibos-2025.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.ReceiptsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ana", rows[1][1])
}

func TestErrors(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"non-numeric id", http.MethodGet, "/api/commissions/abc", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/commissions/999", "", http.StatusNotFound},
		{"malformed body", http.MethodPost, "/api/commissions", "{", http.StatusBadRequest},
		{"missing key", http.MethodPost, "/api/commissions", `{"month": 3}`, http.StatusBadRequest},
		{"unknown id update", http.MethodPost, "/api/commissions", `{"id": 42, "notes": "x"}`, http.StatusNotFound},
		{"month out of range", http.MethodPost, "/api/commissions/compute", `{"year": 2025, "month": 13}`, http.StatusBadRequest},
		{"missing state", http.MethodPost, "/api/commissions/1/state", `{}`, http.StatusBadRequest},
		{"bad state date", http.MethodPost, "/api/commissions/1/state", `{"state": "Pagado", "date": "01/04/2025"}`, http.StatusBadRequest},
		{"bad query", http.MethodGet, "/api/commissions?year=abc", "", http.StatusBadRequest},
		{"brand with many salespeople", http.MethodPost, "/api/rapels/compute",
			`{"year": 2025, "quarter": 1, "brand_id": 1, "salespeople": [1, 2]}`, http.StatusBadRequest},
		{"group without key", http.MethodDelete, "/api/objectives/group?year=2025", "", http.StatusBadRequest},
		{"bad run id", http.MethodGet, "/api/runs/nope", "", http.StatusBadRequest},
		{"unknown split policy", http.MethodGet, "/api/config/splits/validate?plan=P&year=2025&policy=maybe", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody[api.ErrorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestErrors_ValidationDetailsNameTheField(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/commissions/compute", `{"year": 2025, "month": 13}`)

	body := decodeBody[api.ErrorResponse](t, rec)
	assert.Contains(t, body.Details, "Month: max=12")
}

func TestComputeCommissions_RecordsRun(t *testing.T) {
	// GIVEN: a 1000 direct sale at 5%
	s := newServer(t)
	person := sqlitetest.Salesperson(t, s.db, "Ana")
	brand := sqlitetest.Brand(t, s.db, "Acme")
	article := sqlitetest.Article(t, s.db, "Crema", brand)
	direct := sqlitetest.OrderType(t, s.db, "Directo")
	sqlitetest.Line(t, s.db, sqlitetest.Order(t, s.db, person, direct, "2025-03-10"), article, 1, 1000)
	rec := s.do(http.MethodPost, "/api/config/commission-rates",
		fmt.Sprintf(`{"brand_id": %d, "order_type_name": "Directo", "percentage": 5}`, brand))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN
	rec = s.do(http.MethodPost, "/api/commissions/compute", `{"year": 2025, "month": 3, "actor": "admin"}`)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[api.ComputeCommissionsResponse](t, rec)
	require.Len(t, resp.Commissions, 1)
	assert.True(t, dec("50").Equal(resp.Commissions[0].TotalCommission))
	assert.Equal(t, "Calculado", string(resp.Commissions[0].State))
	require.NotNil(t, resp.Run)

	rec = s.do(http.MethodGet, "/api/runs?kind=commissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]runs.Run](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, runs.StatusCompleted, list[0].Status)

	rec = s.do(http.MethodGet, "/api/runs/"+resp.Run.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/config/rates/resolve?brand_id=%d&year=2025&order_type=Directo", brand), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[api.ResolvedRatesResponse](t, rec)
	require.NotNil(t, resolved.CommissionRate)
	assert.True(t, dec("5").Equal(*resolved.CommissionRate))
	assert.True(t, resolved.TransportDiscount.IsZero())
	assert.True(t, dec("1").Equal(resolved.BudgetRebatePercentage))
}

const planYAML = `
plan: GEMAVIP
year: 2025
channels:
  - channel: Directo
    amount: 1000
    splits:
      - brand_id: 1
        percentage: 100
`

func TestObjectives_PlanToGroups(t *testing.T) {
	// GIVEN: an imported plan
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/plans/import", strings.NewReader(planYAML))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/config/splits/validate?plan=GEMAVIP&year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	validation := decodeBody[api.SplitValidationResponse](t, rec)
	assert.True(t, validation.Valid)
	assert.Equal(t, objectives.SplitPolicyWarn, validation.Policy)

	// WHEN: objectives are generated for one salesperson
	rec = s.do(http.MethodPost, "/api/objectives/generate", `{"plan": "GEMAVIP", "year": 2025, "salespeople": [7]}`)

	// THEN: twelve months, one group of 12000
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gen := decodeBody[api.GenerateObjectivesResponse](t, rec)
	assert.Equal(t, 12, gen.Result.Upserts)

	rec = s.do(http.MethodGet, "/api/objectives/grouped?year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeBody[[]objectives.Group](t, rec)
	require.Len(t, groups, 1)
	assert.True(t, dec("12000").Equal(groups[0].Total))
	assert.True(t, dec("3000").Equal(groups[0].Quarters[0]))

	rec = s.do(http.MethodGet, "/api/objectives?salesperson_id=7&month=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]objectives.Objective](t, rec), 1)

	rec = s.do(http.MethodDelete, "/api/objectives/group?salesperson_id=7&brand_id=1&year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), decodeBody[api.CountResponse](t, rec).Deleted)
}

func TestRapels_TiersAndCompute(t *testing.T) {
	// GIVEN: 1100 of brand sales in Q1 against a 1000 target and a 100-200% tier at 2%
	s := newServer(t)
	ctx := context.Background()
	person := sqlitetest.Salesperson(t, s.db, "Ana")
	brand := sqlitetest.Brand(t, s.db, "Acme")
	article := sqlitetest.Article(t, s.db, "Crema", brand)
	direct := sqlitetest.OrderType(t, s.db, "Directo")
	sqlitetest.Line(t, s.db, sqlitetest.Order(t, s.db, person, direct, "2025-02-10"), article, 1, 1100)
	_, err := s.engine.Objectives.SaveObjective(ctx, objectives.Objective{
		SalespersonID: person, BrandID: brand, Year: 2025, Month: 2, Channel: "Directo", Objective: dec("1000"), Active: true,
	})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/api/rapels/tiers",
		fmt.Sprintf(`{"brand_id": %d, "min_achievement": 100, "max_achievement": 200, "rebate_percentage": 2}`, brand))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tier := decodeBody[rapels.Tier](t, rec)
	assert.True(t, tier.Active)

	rec = s.do(http.MethodGet, "/api/rapels/tiers?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]rapels.Tier](t, rec), 1)

	// WHEN
	rec = s.do(http.MethodPost, "/api/rapels/compute",
		fmt.Sprintf(`{"year": 2025, "quarter": 1, "brand_id": %d, "salespeople": [%d]}`, brand, person))

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[api.ComputeRapelsResponse](t, rec)
	require.Len(t, resp.Rapels, 1)
	assert.True(t, dec("110").Equal(resp.Rapels[0].AchievementPercentage))
	assert.True(t, dec("22").Equal(resp.Rapels[0].RebateAmount))

	path := fmt.Sprintf("/api/rapels/%d", resp.Rapels[0].ID)
	rec = s.do(http.MethodPost, path+"/state", `{"state": "Pagado", "date": "2025-04-10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-04-10", decodeBody[rapels.Record](t, rec).PaymentDate)

	rec = s.do(http.MethodGet, "/api/rapels?state=Pagada", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]rapels.Record](t, rec), 1)

	rec = s.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/rapels/tiers/%d", tier.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFixedAmounts(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/fixed-amounts", `{"salesperson_id": 1, "brand_id": 2, "year": 2025, "month": 3, "amount": 300}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/fixed-amounts?salesperson_id=1&year=2025&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	amounts := decodeBody[[]fixedpay.Amount](t, rec)
	require.Len(t, amounts, 1)
	assert.True(t, dec("300").Equal(amounts[0].Amount))

	rec = s.do(http.MethodPost, "/api/fixed-amounts/disable", `{"salesperson_id": 1, "brand_id": 2, "year": 2025, "month": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"disabled": 1}, decodeBody[map[string]int64](t, rec))

	rec = s.do(http.MethodPost, "/api/fixed-amounts", `{"salesperson_id": 1, "brand_id": 2, "year": 0, "month": 3, "amount": 300}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/fixed-amounts", `{"salesperson_id": 1, "brand_id": 2, "amount": 50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
