package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/scheme"
)

func TestApplyCap(t *testing.T) {
	base := principal("postpaid").ItemBase

	tests := []struct {
		name       string
		cap        scheme.Cap
		raw        string
		want       string
		wantCapped bool
	}{
		{"disabled", scheme.Cap{Percentage: decPtr("1")}, "450", "450", false},
		{"percentage only", scheme.Cap{Enabled: true, Percentage: decPtr("1.2")}, "450", "360", true},
		{"amount only", scheme.Cap{Enabled: true, Amount: decPtr("250")}, "300", "250", true},
		{"both, amount tighter", scheme.Cap{Enabled: true, Percentage: decPtr("1.5"), Amount: decPtr("400")}, "450", "400", true},
		{"both, percentage tighter", scheme.Cap{Enabled: true, Percentage: decPtr("1"), Amount: decPtr("400")}, "450", "300", true},
		{"under ceiling", scheme.Cap{Enabled: true, Amount: decPtr("400")}, "150", "150", false},
		{"enabled without ceilings", scheme.Cap{Enabled: true}, "450", "450", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base
			b.Cap = tt.cap
			res := engine.ApplyCap(b, dec(tt.raw))
			assertDecimal(t, tt.want, res.Amount)
			assert.Equal(t, tt.wantCapped, res.Capped)
		})
	}
}

func TestApplyCap_PercentageIgnoredWithoutNominal(t *testing.T) {
	// GIVEN: A PxQ item (no variable amount) with cap_percentage and cap_amount
	// WHEN: Clamped
	// THEN: Only cap_amount applies

	b := pxq("accessories").ItemBase
	b.Cap = scheme.Cap{Enabled: true, Percentage: decPtr("1"), Amount: decPtr("50")}

	res := engine.ApplyCap(b, dec("72"))

	assertDecimal(t, "50", res.Amount)
	require.NotNil(t, res.Ceiling)
	assertDecimal(t, "50", *res.Ceiling)
}

func TestCommissionStrategy_PxQBelowFirstTier(t *testing.T) {
	item := pxq("accessories")
	item.Tiers = item.Tiers[1:]

	c := engine.CommissionStrategy(item, engine.StrategyInput{
		State: engine.ItemState{Eligible: 3, Target: scheme.Money(10), Fulfillment: dec("0.3")},
	})

	assertDecimal(t, "0", c.Amount)
	assert.Equal(t, engine.ReasonBelowTier, c.Reason)
}

func TestCommissionStrategy_PxQExplicitMinimumGates(t *testing.T) {
	item := pxq("accessories")
	item.MinFulfillment = decPtr("0.6")

	c := engine.CommissionStrategy(item, engine.StrategyInput{
		State: engine.ItemState{Eligible: 5, Target: scheme.Money(10), Fulfillment: dec("0.5")},
	})

	assertDecimal(t, "0", c.Amount)
	assert.Equal(t, engine.ReasonBelowMinimum, c.Reason)
}

func TestCommissionStrategy_AdditionalUsesSchemeDefault(t *testing.T) {
	add := scheme.Additional{ItemBase: scheme.ItemBase{Key: "renewal", Quota: scheme.Money(10),
		VariableAmount: scheme.Money(100), Active: true}}

	below := engine.CommissionStrategy(add, engine.StrategyInput{
		State:                 engine.ItemState{Fulfillment: dec("0.49")},
		DefaultMinFulfillment: dec("0.5"),
	})
	above := engine.CommissionStrategy(add, engine.StrategyInput{
		State:                 engine.ItemState{Fulfillment: dec("1.3")},
		DefaultMinFulfillment: dec("0.5"),
	})

	assertDecimal(t, "0", below.Amount)
	assertDecimal(t, "100", above.Amount)
	assert.False(t, above.CeilingReached)
}

func TestFulfillment_ZeroOrNegativeTarget(t *testing.T) {
	assertDecimal(t, "0", engine.Fulfillment(scheme.Money(5), scheme.Money(0)))
	assertDecimal(t, "0", engine.Fulfillment(scheme.Money(5), scheme.Money(-3)))
	assertDecimal(t, "1.5", engine.Fulfillment(scheme.Money(15), scheme.Money(10)))
}
