package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// RESULT COMPOSER - Subtotals, total and per-item breakdown
// =============================================================================

const amountPlaces = 2

// Detail is the per-item breakdown shown to the advisor.
type Detail struct {
	ItemKey  scheme.ItemKey
	Name     string
	Category scheme.Category

	Target   decimal.Decimal
	Sold     int64
	Eligible int64

	Fulfillment    decimal.Decimal
	FulfillmentPct decimal.Decimal
	MinFulfillment *decimal.Decimal

	Locked bool
	Locks  []LockResult

	RestrictionApplied bool
	Restrictions       []RestrictionOutcome

	Tier *scheme.Tier

	Capped    bool
	RawAmount decimal.Decimal
	Amount    decimal.Decimal
	Reason    Reason
}

// Result is the full evaluation of one advisor against one scheme.
type Result struct {
	SchemeID scheme.SchemeID

	FixedSalary          decimal.Decimal
	VariableCommission   decimal.Decimal
	AdditionalCommission decimal.Decimal
	PxQCommission        decimal.Decimal
	BonusCommission      decimal.Decimal
	TotalNet             decimal.Decimal

	// PredictedPenalties is reported alongside TotalNet, never subtracted.
	PredictedPenalties decimal.Decimal

	ProrationFactor      decimal.Decimal
	AggregateFulfillment decimal.Decimal

	Details  []Detail
	Warnings []Warning
}

// TotalCommission is the sum of all category subtotals.
func (r Result) TotalCommission() decimal.Decimal {
	return r.VariableCommission.
		Add(r.AdditionalCommission).
		Add(r.PxQCommission).
		Add(r.BonusCommission)
}

// Compose rounds item amounts, sums them into category subtotals and adds
// the fixed salary. Details must already be in display order.
func Compose(s scheme.Scheme, details []Detail, penalties decimal.Decimal) Result {
	res := Result{
		SchemeID:             s.ID,
		FixedSalary:          s.FixedSalary,
		VariableCommission:   decimal.Zero,
		AdditionalCommission: decimal.Zero,
		PxQCommission:        decimal.Zero,
		BonusCommission:      decimal.Zero,
		PredictedPenalties:   penalties.Round(amountPlaces),
		Details:              make([]Detail, 0, len(details)),
	}

	for _, d := range details {
		d.Amount = d.Amount.Round(amountPlaces)
		d.RawAmount = d.RawAmount.Round(amountPlaces)
		switch d.Category {
		case scheme.CategoryPrincipal:
			res.VariableCommission = res.VariableCommission.Add(d.Amount)
		case scheme.CategoryAdditional:
			res.AdditionalCommission = res.AdditionalCommission.Add(d.Amount)
		case scheme.CategoryPxQ:
			res.PxQCommission = res.PxQCommission.Add(d.Amount)
		case scheme.CategoryBonus:
			res.BonusCommission = res.BonusCommission.Add(d.Amount)
		}
		res.Details = append(res.Details, d)
	}

	res.TotalNet = res.FixedSalary.Add(res.TotalCommission())
	return res
}
