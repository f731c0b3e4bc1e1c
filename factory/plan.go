/*
Package factory converts plan documents into quota and split rows.

PURPOSE:
  A budget plan (monthly amount per salesperson for each channel, and the
  percentage of that amount assigned to each brand) is authored as a YAML or
  JSON document and imported in one call. This keeps plan configuration out
  of code and out of hand-written SQL.

DOCUMENT:
  plan: GEMAVIP
  year: 2026
  channels:
    - channel: Directo
      amount: 12000          # every month...
      months: {1: 0, 8: 6000} # ...unless overridden
      splits:
        - {brand_id: 3, percentage: 40}
        - {brand_id: 5, percentage: 60}

  The same structure is accepted as JSON. Amounts and percentages may be
  written as numbers or strings; they are parsed as decimals.

KEY FEATURES:
  - Every channel yields 12 quota rows (amount, month overrides applied)
  - Rows are upserted by their natural keys, so re-importing is idempotent
  - Split sums are checked with the configured policy before any write

SEE ALSO:
  - objectives/store.go: SaveQuota / SaveSplit
  - objectives/validation.go: split policy
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Number is a decimal accepted as a YAML/JSON number or string.
type Number struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	n.Decimal = d
	return nil
}

// PlanDocument is the document form of a plan.
type PlanDocument struct {
	Plan     string            `json:"plan" yaml:"plan"`
	Year     int               `json:"year" yaml:"year"`
	Notes    string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	Inactive bool              `json:"inactive,omitempty" yaml:"inactive,omitempty"`
	Channels []ChannelDocument `json:"channels" yaml:"channels"`
}

// ChannelDocument is the quota and splits of one channel.
type ChannelDocument struct {
	Channel string          `json:"channel" yaml:"channel"`
	Amount  Number          `json:"amount" yaml:"amount"`
	Months  map[int]Number  `json:"months,omitempty" yaml:"months,omitempty"`
	Splits  []SplitDocument `json:"splits" yaml:"splits"`
}

// SplitDocument assigns a percentage of the channel amount to a brand.
type SplitDocument struct {
	BrandID    generic.BrandID `json:"brand_id" yaml:"brand_id"`
	Percentage Number          `json:"percentage" yaml:"percentage"`
	Notes      string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ParsePlan parses a YAML or JSON plan document. format is "yaml", "json",
// or "" to detect JSON by a leading '{'.
func ParsePlan(data []byte, format string) (*PlanDocument, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "yaml"
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = "json"
		}
	}

	var doc PlanDocument
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, generic.NewValidationError("document", fmt.Sprintf("failed to parse plan JSON: %v", err))
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, generic.NewValidationError("document", fmt.Sprintf("failed to parse plan YAML: %v", err))
		}
	default:
		return nil, generic.NewValidationError("format", fmt.Sprintf("unsupported format %q", format))
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document structure.
func (d *PlanDocument) Validate() error {
	if strings.TrimSpace(d.Plan) == "" {
		return generic.NewValidationError("plan", "is required")
	}
	if d.Year <= 0 {
		return generic.NewValidationError("year", "must be positive")
	}
	if len(d.Channels) == 0 {
		return generic.NewValidationError("channels", "at least one channel is required")
	}
	seen := make(map[string]bool)
	for _, ch := range d.Channels {
		name := strings.TrimSpace(ch.Channel)
		if name == "" {
			return generic.NewValidationError("channel", "name is required")
		}
		if seen[strings.ToLower(name)] {
			return generic.NewValidationError("channel", fmt.Sprintf("%q appears twice", name))
		}
		seen[strings.ToLower(name)] = true
		if ch.Amount.IsNegative() {
			return generic.NewValidationError("amount", fmt.Sprintf("channel %q: must not be negative", name))
		}
		for month, amount := range ch.Months {
			if month < 1 || month > 12 {
				return generic.NewValidationError("months", fmt.Sprintf("channel %q: month %d out of range", name, month))
			}
			if amount.IsNegative() {
				return generic.NewValidationError("months", fmt.Sprintf("channel %q: month %d is negative", name, month))
			}
		}
		brands := make(map[generic.BrandID]bool)
		for _, sp := range ch.Splits {
			if sp.BrandID <= 0 {
				return generic.NewValidationError("brand_id", fmt.Sprintf("channel %q: must be positive", name))
			}
			if brands[sp.BrandID] {
				return generic.NewValidationError("splits", fmt.Sprintf("channel %q: brand %d appears twice", name, sp.BrandID))
			}
			brands[sp.BrandID] = true
			if sp.Percentage.IsNegative() {
				return generic.NewValidationError("percentage", fmt.Sprintf("channel %q: must not be negative", name))
			}
		}
	}
	return nil
}

// MonthAmount returns the quota of a month: the override if present, else
// the channel amount.
func (c ChannelDocument) MonthAmount(month int) decimal.Decimal {
	if n, ok := c.Months[month]; ok {
		return n.Decimal
	}
	return c.Amount.Decimal
}

// SplitTotal sums the channel's split percentages.
func (c ChannelDocument) SplitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, sp := range c.Splits {
		total = total.Add(sp.Percentage.Decimal)
	}
	return total
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportResult counts the rows written by Import.
type ImportResult struct {
	Plan          string                `json:"plan"`
	Year          int                   `json:"year"`
	Quotas        int                   `json:"quotas"`
	Splits        int                   `json:"splits"`
	SplitWarnings []objectives.SplitSum `json:"split_warnings,omitempty"`
}

// PlanImporter writes plan documents through an objectives store.
type PlanImporter struct {
	store  *objectives.Store
	policy objectives.SplitPolicy
	log    *zap.Logger
}

// NewPlanImporter creates a PlanImporter.
func NewPlanImporter(store *objectives.Store, policy objectives.SplitPolicy, log *zap.Logger) *PlanImporter {
	if log == nil {
		log = zap.NewNop()
	}
	if policy == "" {
		policy = objectives.SplitPolicyWarn
	}
	return &PlanImporter{store: store, policy: policy, log: log.Named("factory")}
}

// Import upserts the quotas and splits of a document. Under the reject
// policy a channel whose splits do not add up to 100 fails the import
// before anything is written.
func (p *PlanImporter) Import(ctx context.Context, doc *PlanDocument) (ImportResult, error) {
	if err := doc.Validate(); err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Plan: doc.Plan, Year: doc.Year}

	if p.policy != objectives.SplitPolicyOff {
		for _, ch := range doc.Channels {
			if len(ch.Splits) == 0 {
				continue
			}
			total := ch.SplitTotal()
			if total.Equal(generic.Hundred()) {
				continue
			}
			sum := objectives.SplitSum{Plan: doc.Plan, Year: doc.Year, Channel: ch.Channel, Brands: len(ch.Splits), Total: total}
			if p.policy == objectives.SplitPolicyReject {
				return res, generic.NewValidationError("splits",
					fmt.Sprintf("channel %q of plan %q adds up to %s%%", ch.Channel, doc.Plan, total))
			}
			p.log.Warn("plan splits do not add up to 100",
				zap.String("plan", doc.Plan), zap.String("channel", ch.Channel), zap.Stringer("total", total))
			res.SplitWarnings = append(res.SplitWarnings, sum)
		}
	}

	active := !doc.Inactive
	for _, ch := range doc.Channels {
		for month := 1; month <= 12; month++ {
			if _, err := p.store.SaveQuota(ctx, objectives.Quota{
				Plan:                 doc.Plan,
				Year:                 doc.Year,
				Month:                month,
				Channel:              ch.Channel,
				AmountPerSalesperson: ch.MonthAmount(month),
				Active:               active,
				Notes:                doc.Notes,
			}); err != nil {
				return res, fmt.Errorf("quota %s/%d: %w", ch.Channel, month, err)
			}
			res.Quotas++
		}
		for _, sp := range ch.Splits {
			if _, err := p.store.SaveSplit(ctx, objectives.Split{
				Plan:       doc.Plan,
				Year:       doc.Year,
				Channel:    ch.Channel,
				BrandID:    sp.BrandID,
				Percentage: sp.Percentage.Decimal,
				Active:     active,
				Notes:      sp.Notes,
			}); err != nil {
				return res, fmt.Errorf("split %s/%d: %w", ch.Channel, sp.BrandID, err)
			}
			res.Splits++
		}
	}

	p.log.Info("plan imported",
		zap.String("plan", doc.Plan), zap.Int("year", doc.Year),
		zap.Int("quotas", res.Quotas), zap.Int("splits", res.Splits))
	return res, nil
}
