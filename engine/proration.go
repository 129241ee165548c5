/*
proration.go - Quota proration for partial-month tenure

PURPOSE:
  Turns an advisor's nominal monthly quota into the effective quota the
  rest of the pipeline divides by. An advisor who started mid-month is
  measured against the share of the month they were active.

RULE:
  No tenure start, or start on/before the 1st   -> factor 1
  Start inside the period                        -> remaining days (inclusive) / days in month
  Start after the period                         -> ErrTenureAfterPeriod

  The factor is rounded to 4 decimal places before use; every scaled
  quota is rounded to 1 decimal place.

EXAMPLE:
  Quota 30, started 2025-04-16 (April has 30 days):
    remaining = 30 - 16 + 1 = 15
    factor    = 15 / 30 = 0.5
    effective = 15.0

  Selling 15 units now yields 100% fulfillment instead of 50%, which can
  flip a minimum-fulfillment gate, not just scale the payout.

SEE ALSO:
  - fulfillment.go: Target() applies EffectiveQuota to item quotas
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

const (
	factorPlaces = 4
	quotaPlaces  = 1
)

// EffectiveQuota is the prorated view of an advisor's quota for a period.
// It is derived, never stored.
type EffectiveQuota struct {
	BaseQuota       decimal.Decimal
	ProrationFactor decimal.Decimal
	EffectiveQuota  decimal.Decimal
	Breakdown       map[string]decimal.Decimal
}

// Scale applies the proration factor to a quota, rounded to 1dp.
func (e EffectiveQuota) Scale(q decimal.Decimal) decimal.Decimal {
	return q.Mul(e.factor()).Round(quotaPlaces)
}

// Metric returns the prorated breakdown value for a sub-metric.
func (e EffectiveQuota) Metric(name string) (decimal.Decimal, bool) {
	v, ok := e.Breakdown[name]
	return v, ok
}

// IsProrated reports whether the factor is below 1.
func (e EffectiveQuota) IsProrated() bool {
	return e.factor().LessThan(scheme.One)
}

func (e EffectiveQuota) factor() decimal.Decimal {
	if e.ProrationFactor.IsZero() {
		return scheme.One
	}
	return e.ProrationFactor
}

// Prorate computes the effective quota of q for period p.
func Prorate(q scheme.Quota, p scheme.Period) (EffectiveQuota, error) {
	factor, err := ProrationFactor(q.TenureStart, p)
	if err != nil {
		return EffectiveQuota{}, fmt.Errorf("prorate quota for %s in %s: %w", q.AdvisorID, p, err)
	}

	eq := EffectiveQuota{
		BaseQuota:       q.BaseQuota,
		ProrationFactor: factor,
		Breakdown:       make(map[string]decimal.Decimal, len(q.Breakdown)),
	}
	eq.EffectiveQuota = eq.Scale(q.BaseQuota)
	for metric, v := range q.Breakdown {
		eq.Breakdown[metric] = eq.Scale(v)
	}
	return eq, nil
}

// Unprorated wraps a quota with factor 1.
func Unprorated(q scheme.Quota) EffectiveQuota {
	eq := EffectiveQuota{
		BaseQuota:       q.BaseQuota,
		ProrationFactor: scheme.One,
		EffectiveQuota:  q.BaseQuota.Round(quotaPlaces),
		Breakdown:       make(map[string]decimal.Decimal, len(q.Breakdown)),
	}
	for metric, v := range q.Breakdown {
		eq.Breakdown[metric] = v.Round(quotaPlaces)
	}
	return eq
}

// ProrationFactor returns the share of period p an advisor starting on
// start was active, rounded to 4 decimal places.
func ProrationFactor(start *time.Time, p scheme.Period) (decimal.Decimal, error) {
	if start == nil {
		return scheme.One, nil
	}

	day := scheme.Day(*start)
	if !day.After(p.Start()) {
		return scheme.One, nil
	}
	if day.After(p.End()) {
		return decimal.Zero, fmt.Errorf("%w: %s after %s", scheme.ErrTenureAfterPeriod, day.Format(time.DateOnly), p)
	}

	total := p.Days()
	remaining := total - day.Day() + 1
	return decimal.NewFromInt(int64(remaining)).
		Div(decimal.NewFromInt(int64(total))).
		Round(factorPlaces), nil
}
