package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// CAP ENFORCER - Ceilings on an item's payable commission
// =============================================================================

// CapResult is the clamped commission of an item.
type CapResult struct {
	Amount decimal.Decimal
	Capped bool

	// Ceiling is the tightest active ceiling, nil when none applied.
	Ceiling *decimal.Decimal
}

// ApplyCap clamps raw against the item's ceilings. Percentage and Amount
// are independent: the final value is the minimum of raw and every
// ceiling that is set. The percentage ceiling only exists for items with
// a positive nominal amount.
func ApplyCap(b scheme.ItemBase, raw decimal.Decimal) CapResult {
	res := CapResult{Amount: raw}
	if !b.Cap.Enabled {
		return res
	}

	var ceilings []decimal.Decimal
	if nominal := b.NominalAmount(); b.Cap.Percentage != nil && nominal.IsPositive() {
		ceilings = append(ceilings, b.Cap.Percentage.Mul(nominal))
	}
	if b.Cap.Amount != nil {
		ceilings = append(ceilings, *b.Cap.Amount)
	}
	if len(ceilings) == 0 {
		return res
	}

	tightest := ceilings[0]
	for _, c := range ceilings[1:] {
		tightest = scheme.MinDecimal(tightest, c)
	}
	if tightest.IsNegative() {
		tightest = decimal.Zero
	}
	res.Ceiling = &tightest

	if raw.GreaterThan(tightest) {
		res.Amount = tightest
		res.Capped = true
	}
	return res
}
