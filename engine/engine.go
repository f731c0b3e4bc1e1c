// Package engine wires the commission engine components over one store.
package engine

import (
	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/fixedpay"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/rapels"
	"github.com/warp/commission-engine/rates"
	"github.com/warp/commission-engine/runs"
	"github.com/warp/commission-engine/sales"
	"github.com/warp/commission-engine/schema"
	"go.uber.org/zap"
)

// Options configures New.
type Options struct {
	Objectives objectives.Options
	// JanuaryExceptions is used when a generation request names none; nil
	// means objectives.DefaultJanuaryExceptions.
	JanuaryExceptions []generic.SalespersonID
}

// Engine holds every component, sharing one schema catalog.
type Engine struct {
	Store             generic.Querier
	Schema            *schema.Catalog
	Sales             *sales.Reader
	Rates             *rates.Resolver
	FixedPay          *fixedpay.Resolver
	Objectives        *objectives.Store
	Apportioner       *objectives.Apportioner
	Commissions       *commissions.Ledger
	Calculator        *commissions.Calculator
	Rapels            *rapels.Ledger
	RapelCalculator   *rapels.Calculator
	Plans             *factory.PlanImporter
	Runs              *runs.Log
	JanuaryExceptions []generic.SalespersonID
	SplitPolicy       objectives.SplitPolicy
	Log               *zap.Logger
}

// New builds an Engine over q.
func New(q generic.Querier, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Objectives.SplitPolicy == "" {
		opts.Objectives.SplitPolicy = objectives.SplitPolicyWarn
	}
	catalog := schema.NewCatalog(q, log)
	e := &Engine{
		Store:             q,
		Schema:            catalog,
		Sales:             sales.NewReader(q, catalog, log),
		Rates:             rates.NewResolver(q, catalog, log),
		FixedPay:          fixedpay.NewResolver(q, catalog, log),
		Objectives:        objectives.NewStore(q, catalog, log),
		Commissions:       commissions.NewLedger(q, catalog, log),
		Rapels:            rapels.NewLedger(q, catalog, log),
		Runs:              runs.NewLog(q, catalog, log),
		JanuaryExceptions: opts.JanuaryExceptions,
		SplitPolicy:       opts.Objectives.SplitPolicy,
		Log:               log,
	}
	e.Apportioner = objectives.NewApportioner(e.Objectives, opts.Objectives, log)
	e.Plans = factory.NewPlanImporter(e.Objectives, opts.Objectives.SplitPolicy, log)
	e.Calculator = &commissions.Calculator{
		Ledger:     e.Commissions,
		Sales:      e.Sales,
		Rates:      e.Rates,
		FixedPay:   e.FixedPay,
		Objectives: e.Objectives,
		Log:        log,
	}
	e.RapelCalculator = &rapels.Calculator{
		Ledger:     e.Rapels,
		Sales:      e.Sales,
		Rates:      e.Rates,
		Objectives: e.Objectives,
		Log:        log,
	}
	return e
}
