package scheme

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The month a scheme, quota or sales snapshot belongs to
// =============================================================================

// Period is a calendar month. Schemes, quotas and payroll runs are all
// scoped to one.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod validates and builds a Period.
func NewPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidPeriod, year, month)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first day of the period (UTC midnight).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period (UTC midnight).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return p.End().Day()
}

// Contains returns true if the day of t is within the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Previous returns the month before p.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Next returns the month after p.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodOf(t), nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
