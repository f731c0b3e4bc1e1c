package objectives

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// APPORTIONMENT
// =============================================================================

// DefaultChannels are the sales channels quotas are defined for.
var DefaultChannels = []string{"Directo", "Mayorista"}

// DefaultJanuaryExceptions are the salespeople who keep January objectives in
// the transition year.
var DefaultJanuaryExceptions = []generic.SalespersonID{2, 3}

// DefaultTransitionYear is the year whose January is only apportioned to the
// exception list.
const DefaultTransitionYear = 2026

// Options configures an Apportioner. Zero values take the defaults.
type Options struct {
	Channels       []string
	TransitionYear int
	SplitPolicy    SplitPolicy
}

// Apportioner expands quotas and splits into objectives.
type Apportioner struct {
	store *Store
	opts  Options
	log   *zap.Logger
}

// NewApportioner creates an Apportioner.
func NewApportioner(store *Store, opts Options, log *zap.Logger) *Apportioner {
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.Channels) == 0 {
		opts.Channels = DefaultChannels
	}
	if opts.TransitionYear == 0 {
		opts.TransitionYear = DefaultTransitionYear
	}
	if opts.SplitPolicy == "" {
		opts.SplitPolicy = SplitPolicyWarn
	}
	return &Apportioner{store: store, opts: opts, log: log.Named("apportion")}
}

// Result summarizes a Generate call.
type Result struct {
	Plan          string      `json:"plan"`
	Year          int         `json:"year"`
	Upserts       int         `json:"upserts"`
	Skipped       int         `json:"skipped"`
	SplitWarnings []SplitSum  `json:"split_warnings,omitempty"`
	Objectives    []Objective `json:"-"`
}

// Generate writes one objective per salesperson, channel, month (1..12) and
// active brand split of the plan:
//
//	objective = quota amount * split percentage / 100
//
// A missing quota apportions 0. A channel with no active splits produces no
// rows. In the transition year, January is skipped for every salesperson not
// in januaryExceptions (nil means DefaultJanuaryExceptions).
//
// Each row is an independent upsert; a failure stops the run and leaves the
// rows already written in place.
func (a *Apportioner) Generate(ctx context.Context, plan string, year int, salespeople, januaryExceptions []generic.SalespersonID) (Result, error) {
	res := Result{Plan: plan, Year: year}
	if plan == "" {
		return res, generic.NewValidationError("plan", "is required")
	}
	if year <= 0 {
		return res, generic.NewValidationError("year", "must be a positive year")
	}
	for _, id := range salespeople {
		if err := generic.RequirePositive("salesperson_id", int64(id)); err != nil {
			return res, err
		}
	}
	if januaryExceptions == nil {
		januaryExceptions = DefaultJanuaryExceptions
	}
	excepted := make(map[generic.SalespersonID]bool, len(januaryExceptions))
	for _, id := range januaryExceptions {
		excepted[id] = true
	}

	warnings, err := a.store.CheckSplits(ctx, plan, year, a.opts.SplitPolicy)
	res.SplitWarnings = warnings
	if err != nil {
		return res, err
	}

	splits := make(map[string][]Split, len(a.opts.Channels))
	quotas := make(map[string][12]decimal.Decimal, len(a.opts.Channels))
	for _, channel := range a.opts.Channels {
		sp, err := a.store.ActiveSplits(ctx, plan, year, channel)
		if err != nil {
			return res, err
		}
		splits[channel] = sp
		if len(sp) == 0 {
			a.log.Info("no brand splits for channel, nothing to apportion",
				zap.String("plan", plan), zap.Int("year", year), zap.String("channel", channel))
			continue
		}

		var amounts [12]decimal.Decimal
		for month := 1; month <= 12; month++ {
			amount, found, err := a.store.QuotaAmount(ctx, plan, channel, month, year)
			if err != nil {
				return res, err
			}
			if !found {
				a.log.Debug("no quota, apportioning 0",
					zap.String("plan", plan), zap.String("channel", channel), zap.Int("month", month))
			}
			amounts[month-1] = amount
		}
		quotas[channel] = amounts
	}

	for _, person := range salespeople {
		for _, channel := range a.opts.Channels {
			if len(splits[channel]) == 0 {
				continue
			}
			for month := 1; month <= 12; month++ {
				if a.skip(year, month, excepted[person]) {
					res.Skipped++
					continue
				}
				amount := quotas[channel][month-1]
				for _, sp := range splits[channel] {
					o := Objective{
						SalespersonID:   person,
						BrandID:         sp.BrandID,
						Year:            year,
						Month:           month,
						Channel:         channel,
						Objective:       generic.ApplyPercent(amount, sp.Percentage),
						BrandPercentage: sp.Percentage,
						Active:          true,
						Notes:           fmt.Sprintf("plan %s", plan),
					}
					id, err := a.store.SaveObjective(ctx, o)
					if err != nil {
						return res, err
					}
					o.ID = id
					res.Upserts++
					res.Objectives = append(res.Objectives, o)
				}
			}
		}
	}

	a.log.Info("objectives generated",
		zap.String("plan", plan), zap.Int("year", year),
		zap.Int("salespeople", len(salespeople)),
		zap.Int("upserts", res.Upserts), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (a *Apportioner) skip(year, month int, excepted bool) bool {
	return year == a.opts.TransitionYear && month == 1 && !excepted
}
