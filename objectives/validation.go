package objectives

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/generic"
	"go.uber.org/zap"
)

// SplitPolicy decides what happens when the active brand splits of a channel
// do not add up to 100%.
type SplitPolicy string

const (
	SplitPolicyOff    SplitPolicy = "off"
	SplitPolicyWarn   SplitPolicy = "warn"
	SplitPolicyReject SplitPolicy = "reject"
)

// ParseSplitPolicy parses a policy name; "" means warn.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch p := SplitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SplitPolicyWarn, nil
	case SplitPolicyOff, SplitPolicyWarn, SplitPolicyReject:
		return p, nil
	}
	return "", generic.NewValidationError("split_policy", fmt.Sprintf("unknown policy %q", s))
}

// SplitSum is the total active split percentage of one channel.
type SplitSum struct {
	Plan    string          `json:"plan"`
	Year    int             `json:"year"`
	Channel string          `json:"channel"`
	Brands  int             `json:"brands"`
	Total   decimal.Decimal `json:"total"`
	Valid   bool            `json:"valid"`
}

// SplitSums returns the active split total per channel of (plan, year),
// ordered by channel. Channels with no splits are not reported.
func (s *Store) SplitSums(ctx context.Context, plan string, year int) ([]SplitSum, error) {
	splits, err := s.ListSplits(ctx, Filter{Plan: plan, Year: &year, Active: generic.Ptr(true)})
	if err != nil {
		return nil, err
	}
	byChannel := make(map[string]*SplitSum)
	for _, sp := range splits {
		sum, ok := byChannel[sp.Channel]
		if !ok {
			sum = &SplitSum{Plan: plan, Year: year, Channel: sp.Channel}
			byChannel[sp.Channel] = sum
		}
		sum.Brands++
		sum.Total = sum.Total.Add(sp.Percentage)
	}

	out := make([]SplitSum, 0, len(byChannel))
	for _, sum := range byChannel {
		sum.Valid = sum.Total.Equal(generic.Hundred())
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

// CheckSplits applies policy to the split sums of (plan, year). Under
// "reject" any channel not adding up to 100 is a validation error; under
// "warn" it is logged and returned for display.
func (s *Store) CheckSplits(ctx context.Context, plan string, year int, policy SplitPolicy) ([]SplitSum, error) {
	if policy == SplitPolicyOff {
		return nil, nil
	}
	sums, err := s.SplitSums(ctx, plan, year)
	if err != nil {
		return nil, err
	}

	var invalid []SplitSum
	for _, sum := range sums {
		if sum.Valid {
			continue
		}
		invalid = append(invalid, sum)
		s.log.Warn("brand splits do not add up to 100",
			zap.String("plan", plan), zap.Int("year", year),
			zap.String("channel", sum.Channel), zap.String("total", sum.Total.String()))
	}
	if len(invalid) > 0 && policy == SplitPolicyReject {
		return invalid, generic.NewValidationError("splits",
			fmt.Sprintf("channel %q of plan %q adds up to %s%%", invalid[0].Channel, plan, invalid[0].Total))
	}
	return invalid, nil
}
