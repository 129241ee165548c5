package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// FULFILLMENT - Achievement ratio per item
// =============================================================================

// Fulfillment returns sold / target. A zero or negative target yields 0;
// the ratio is unbounded above.
func Fulfillment(sold, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	return sold.Div(target)
}

// Target returns the effective target of an item.
//
// Principal and additional quotas are prorated when a quota is supplied;
// a QuotaMetric found in the quota breakdown replaces the item quota.
// Amount-denominated items use QuotaAmount unprorated. The mix factor
// scales the result for sub-items sharing a pool.
func Target(item scheme.Item, quota *EffectiveQuota) decimal.Decimal {
	b := item.Base()
	if b.IsAmountDenominated() {
		return b.QuotaAmount.Mul(b.Mix())
	}

	target := b.Quota
	if prorates(item.Category()) && quota != nil {
		if v, ok := quota.Metric(b.QuotaMetric); ok && b.QuotaMetric != "" {
			target = v
		} else {
			target = quota.Scale(b.Quota)
		}
	}
	return target.Mul(b.Mix())
}

func prorates(c scheme.Category) bool {
	return c == scheme.CategoryPrincipal || c == scheme.CategoryAdditional
}

// ItemState is the restriction-adjusted snapshot of one item that locks
// and category strategies read.
type ItemState struct {
	Key       scheme.ItemKey
	Sold      int64
	Eligible  int64
	Target    decimal.Decimal
	UnitValue decimal.Decimal

	// Achieved is what fulfillment divides: eligible units, or their
	// currency value for amount-denominated items.
	Achieved    decimal.Decimal
	Fulfillment decimal.Decimal
}

// NewItemState computes the fulfillment of an item from its eligible units.
func NewItemState(item scheme.Item, sold, eligible int64, quota *EffectiveQuota) ItemState {
	b := item.Base()
	achieved := decimal.NewFromInt(eligible)
	if b.IsAmountDenominated() {
		achieved = achieved.Mul(b.UnitValue)
	}
	target := Target(item, quota)
	return ItemState{
		Key:         b.Key,
		Sold:        sold,
		Eligible:    eligible,
		Target:      target,
		UnitValue:   b.UnitValue,
		Achieved:    achieved,
		Fulfillment: Fulfillment(achieved, target),
	}
}

// AggregateFulfillment is the weighted fulfillment across active principal
// items: sum(w*f) / sum(w). When no weights are configured the plain mean
// is used; with no principal items it is 0.
func AggregateFulfillment(s scheme.Scheme, states map[scheme.ItemKey]ItemState) decimal.Decimal {
	weighted, weights, plain := decimal.Zero, decimal.Zero, decimal.Zero
	n := 0
	for _, it := range s.ActiveItems() {
		if it.Category() != scheme.CategoryPrincipal {
			continue
		}
		st := states[it.Base().Key]
		w := it.Base().Weight
		weighted = weighted.Add(w.Mul(st.Fulfillment))
		weights = weights.Add(w)
		plain = plain.Add(st.Fulfillment)
		n++
	}

	switch {
	case weights.IsPositive():
		return weighted.Div(weights)
	case n > 0:
		return plain.Div(decimal.NewFromInt(int64(n)))
	default:
		return decimal.Zero
	}
}
