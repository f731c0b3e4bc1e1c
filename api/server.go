/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Lightweight, context-based, RESTful route patterns, and the standard
  middleware set below.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     Request logging to zap
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the CRM frontend

ROUTE GROUPS:
  /api/commissions/*    Commission ledger, compute, receipts
  /api/rapels/*         Rebate ledger, compute, tiers
  /api/objectives/*     Objectives, grouped view, generation
  /api/config/*         Quotas, splits, rates, special conditions
  /api/plans/import     Plan documents
  /api/fixed-amounts/*  Fixed monthly pay
  /api/runs/*           Batch run log
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. The CRM in front of this service owns
  sessions and roles.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	Log         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		// Credentials cannot be combined with a wildcard origin.
		AllowCredentials: !containsWildcard(origins),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/commissions", func(r chi.Router) {
			r.Get("/", h.ListCommissions)
			r.Post("/", h.UpsertCommission)
			r.Post("/compute", h.ComputeCommissions)
			r.Get("/receipts", h.ListReceipts)
			r.Get("/receipts/export", h.ExportReceipts)
			r.Get("/{id}", h.GetCommission)
			r.Delete("/{id}", h.DeleteCommission)
			r.Get("/{id}/detail", h.CommissionDetail)
			r.Post("/{id}/state", h.SetCommissionState)
		})

		r.Route("/rapels", func(r chi.Router) {
			r.Get("/", h.ListRapels)
			r.Post("/", h.UpsertRapel)
			r.Post("/compute", h.ComputeRapels)
			r.Get("/tiers", h.ListTiers)
			r.Post("/tiers", h.SaveTier)
			r.Delete("/tiers/{id}", h.DeleteTier)
			r.Delete("/{id}", h.DeleteRapel)
			r.Post("/{id}/state", h.SetRapelState)
		})

		r.Route("/objectives", func(r chi.Router) {
			r.Get("/", h.ListObjectives)
			r.Get("/grouped", h.GroupedObjectives)
			r.Delete("/group", h.DeleteObjectiveGroup)
			r.Post("/generate", h.GenerateObjectives)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/quotas", h.ListQuotas)
			r.Post("/quotas", h.SaveQuota)
			r.Get("/splits", h.ListSplits)
			r.Post("/splits", h.SaveSplit)
			r.Get("/splits/validate", h.ValidateSplits)
			r.Get("/commission-rates", h.ListCommissionRates)
			r.Post("/commission-rates", h.SaveCommissionRate)
			r.Get("/rates/resolve", h.ResolveRates)
			r.Post("/transport-discounts", h.SaveTransportDiscount)
			r.Post("/budget-rebates", h.SaveBudgetRebate)
			r.Get("/special-conditions", h.ListSpecialConditions)
			r.Post("/special-conditions", h.SaveSpecialCondition)
		})

		r.Post("/plans/import", h.ImportPlan)

		r.Route("/fixed-amounts", func(r chi.Router) {
			r.Get("/", h.ListFixedAmounts)
			r.Post("/", h.SaveFixedAmount)
			r.Post("/disable", h.DisableFixedAmount)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
