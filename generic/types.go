/*
Package generic provides the shared vocabulary of the commission engine.

PURPOSE:
  Every engine package (rates, commissions, rapels, objectives, fixedpay)
  speaks in the same identifiers, money helpers, periods and states. They
  live here so no domain package has to import another just to agree on
  what a salesperson id or a percentage is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: SalespersonID, BrandID, ... (int64 surrogate keys)
  - Money: decimal.Decimal everywhere, never float64
  - Percent math: amount * pct / 100 without intermediate rounding

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal avoids float drift in totals
  2. Type Safety: a brand id cannot be passed where a salesperson id is expected
  3. Nil means absent: optional dimensions are pointers, not zero values

SEE ALSO:
  - period.go: month/quarter math
  - state.go: commission/rebate states and legacy spellings
  - store.go: the query facility contract
  - upsert.go: natural-key upserts
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SalespersonID int64
type BrandID int64
type ArticleID int64
type OrderID int64
type OrderTypeID int64
type CommissionID int64

// =============================================================================
// MONEY
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ApplyPercent returns amount * pct / 100. The division is a decimal shift,
// so the result is exact.
func ApplyPercent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Shift(-2)
}

// Ratio returns part / whole * 100 rounded to 2 decimals, or zero when whole
// is not positive.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}

// Money rounds to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Hundred is 100 as a decimal.
func Hundred() decimal.Decimal { return hundred }

// MustParseDecimal parses s or returns zero.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalOrZero dereferences d, treating nil as zero.
func DecimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Int64Slice converts typed ids into []any for IN (...) arguments.
func Int64Slice[T ~int64](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
