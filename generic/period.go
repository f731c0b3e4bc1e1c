package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Month/quarter/year scoping for every periodic total
// =============================================================================

// Period is a (year, month) pair. Month 0 means the whole year: annual-only
// commissions and period-independent configuration use it.
//
// Examples:
//   - Period{Year: 2025, Month: 6}: June 2025
//   - Period{Year: 2025, Month: 0}: the year 2025 as a whole
//   - Period{Year: 0, Month: 0}:    global (period-independent) rows
type Period struct {
	Year  int
	Month int
}

// Global is the period-independent key used by fallback rows.
var Global = Period{}

// IsGlobal returns true for the (0, 0) fallback period.
func (p Period) IsGlobal() bool { return p.Year == 0 && p.Month == 0 }

// IsAnnual returns true when the period covers a whole year.
func (p Period) IsAnnual() bool { return p.Year > 0 && p.Month == 0 }

// Quarter returns 1..4 for a monthly period, 0 otherwise.
func (p Period) Quarter() int { return QuarterOf(p.Month) }

// Validate checks year > 0 and month in [0, 12].
func (p Period) Validate() error {
	if p.Year <= 0 {
		return NewValidationError("year", "must be a positive year")
	}
	if p.Month < 0 || p.Month > 12 {
		return NewValidationError("month", "must be between 0 and 12")
	}
	return nil
}

// Bounds returns the half-open date range [from, to) the period covers,
// formatted as YYYY-MM-DD so it compares correctly against TEXT and DATE columns.
func (p Period) Bounds() (from, to string) {
	if p.Month == 0 {
		start := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start.Format(DateLayout), start.AddDate(1, 0, 0).Format(DateLayout)
	}
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return start.Format(DateLayout), start.AddDate(0, 1, 0).Format(DateLayout)
}

func (p Period) String() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// DateLayout is the storage format for every date column the engine writes.
const DateLayout = "2006-01-02"

// =============================================================================
// QUARTERS
// =============================================================================

// QuarterOf returns the quarter (1..4) a month belongs to, or 0 for month 0.
func QuarterOf(month int) int {
	if month < 1 || month > 12 {
		return 0
	}
	return (month-1)/3 + 1
}

// QuarterMonths returns the three months of a quarter.
func QuarterMonths(quarter int) []int {
	if quarter < 1 || quarter > 4 {
		return nil
	}
	first := (quarter-1)*3 + 1
	return []int{first, first + 1, first + 2}
}

// QuarterBounds returns [from, to) for a quarter.
func QuarterBounds(year, quarter int) (from, to string) {
	months := QuarterMonths(quarter)
	if months == nil {
		return "", ""
	}
	from, _ = Period{Year: year, Month: months[0]}.Bounds()
	_, to = Period{Year: year, Month: months[2]}.Bounds()
	return from, to
}

// ValidateQuarter checks quarter in [1, 4].
func ValidateQuarter(quarter int) error {
	if quarter < 1 || quarter > 4 {
		return NewValidationError("quarter", "must be between 1 and 4")
	}
	return nil
}
