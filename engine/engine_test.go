package engine_test

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal { return scheme.DecimalPtr(dec(s)) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func april2025() scheme.Period {
	return scheme.Period{Year: 2025, Month: time.April}
}

// principal returns the item used by the reference scenarios:
// quota 30, variable amount 300, min fulfillment 0.5.
func principal(key string) scheme.Principal {
	return scheme.Principal{ItemBase: scheme.ItemBase{
		Key:            scheme.ItemKey(key),
		Name:           key,
		Quota:          scheme.Money(30),
		VariableAmount: scheme.Money(300),
		MinFulfillment: decPtr("0.5"),
		Weight:         scheme.One,
		Active:         true,
	}}
}

func pxq(key string) scheme.PxQ {
	return scheme.PxQ{
		ItemBase: scheme.ItemBase{
			Key:    scheme.ItemKey(key),
			Name:   key,
			Quota:  scheme.Money(10),
			Active: true,
		},
		Tiers: []scheme.Tier{
			{Min: dec("0"), Max: decPtr("0.5"), AmountPerUnit: dec("2")},
			{Min: dec("0.5"), Max: decPtr("1.0"), AmountPerUnit: dec("4")},
			{Min: dec("1.0"), AmountPerUnit: dec("6")},
		},
	}
}

func newScheme(items ...scheme.Item) scheme.Scheme {
	return scheme.Scheme{
		ID:                    "scheme-test",
		Type:                  "store_advisor",
		Period:                april2025(),
		Status:                scheme.StatusApproved,
		FixedSalary:           scheme.Money(1000),
		VariableSalary:        scheme.Money(300),
		TotalQuota:            scheme.Money(30),
		DefaultMinFulfillment: scheme.DefaultMinFulfillment,
		Items:                 items,
	}
}

func sales(units map[string]int64) scheme.SalesSnapshot {
	snap := scheme.NewSalesSnapshot()
	for k, v := range units {
		snap.Units[scheme.ItemKey(k)] = v
	}
	return snap
}

func evaluate(s scheme.Scheme, units map[string]int64) engine.Result {
	return engine.Evaluate(engine.Input{Scheme: s, Sales: sales(units)})
}

func detail(t *testing.T, res engine.Result, key string) engine.Detail {
	t.Helper()
	for _, d := range res.Details {
		if d.ItemKey == scheme.ItemKey(key) {
			return d
		}
	}
	require.FailNow(t, "detail not found", key)
	return engine.Detail{}
}

// =============================================================================
// REFERENCE SCENARIOS
// =============================================================================

func TestEvaluate_PrincipalAtMinimum_PaysProportionally(t *testing.T) {
	// GIVEN: Principal item, quota 30, variable 300, min fulfillment 0.5
	// WHEN: 15 units sold (50%)
	// THEN: Commission = 150

	res := evaluate(newScheme(principal("postpaid")), map[string]int64{"postpaid": 15})

	d := detail(t, res, "postpaid")
	assertDecimal(t, "0.5", d.Fulfillment)
	assertDecimal(t, "50", d.FulfillmentPct)
	assertDecimal(t, "150", d.Amount)
	assertDecimal(t, "150", res.VariableCommission)
	assertDecimal(t, "1150", res.TotalNet)
}

func TestEvaluate_PrincipalBelowMinimum_PaysZero(t *testing.T) {
	// GIVEN: Same item
	// WHEN: 10 units sold (33%)
	// THEN: Below the 50% gate, commission = 0

	res := evaluate(newScheme(principal("postpaid")), map[string]int64{"postpaid": 10})

	d := detail(t, res, "postpaid")
	assertDecimal(t, "0", d.Amount)
	assert.Equal(t, engine.ReasonBelowMinimum, d.Reason)
	assertDecimal(t, "1000", res.TotalNet)
}

func TestEvaluate_CapPercentage_LimitsOverachievement(t *testing.T) {
	// GIVEN: Same item with cap_percentage = 1.0
	// WHEN: 45 units sold (150%)
	// THEN: Commission = 300, not 450, and the detail is flagged capped

	item := principal("postpaid")
	item.Cap = scheme.Cap{Enabled: true, Percentage: decPtr("1.0")}

	res := evaluate(newScheme(item), map[string]int64{"postpaid": 45})

	d := detail(t, res, "postpaid")
	assertDecimal(t, "1.5", d.Fulfillment)
	assertDecimal(t, "300", d.Amount)
	assert.True(t, d.Capped)
}

func TestEvaluate_PxQ_PicksTierContainingFulfillment(t *testing.T) {
	// GIVEN: PxQ tiers [0,0.5)->2, [0.5,1.0)->4, [1.0,inf)->6 and quota 10
	// WHEN: 12 units sold (120%)
	// THEN: Third tier applies, commission = 12 x 6 = 72

	res := evaluate(newScheme(pxq("accessories")), map[string]int64{"accessories": 12})

	d := detail(t, res, "accessories")
	assertDecimal(t, "72", d.Amount)
	require.NotNil(t, d.Tier)
	assertDecimal(t, "6", d.Tier.AmountPerUnit)
	assertDecimal(t, "72", res.PxQCommission)
}

func TestEvaluate_MinQuantityLockFails_ZeroesItem(t *testing.T) {
	// GIVEN: Item B requires min_quantity 5 of item X
	// WHEN: X sold 3, B well above its own target
	// THEN: B pays 0 and is reported locked

	b := principal("b")
	b.Locks = []scheme.Lock{scheme.MinQuantity{RequiredItem: "x", Value: scheme.Money(5)}}
	x := principal("x")

	res := evaluate(newScheme(b, x), map[string]int64{"b": 30, "x": 3})

	d := detail(t, res, "b")
	assert.True(t, d.Locked)
	assert.Equal(t, engine.ReasonLocked, d.Reason)
	assertDecimal(t, "0", d.Amount)
	require.Len(t, d.Locks, 1)
	assert.False(t, d.Locks[0].Passed)
	assertDecimal(t, "3", d.Locks[0].Actual)
}

func TestEvaluate_MaxPercentageRestriction_CapsEligibleUnits(t *testing.T) {
	// GIVEN: max_percentage 0.10 on plan P, total quota 30
	// WHEN: 5 units of P sold
	// THEN: Only 3 units enter fulfillment

	s := newScheme(principal("postpaid"))
	s.Restrictions = []scheme.Restriction{{
		ID: "r-1", Type: scheme.RestrictMaxPercentage, Scope: scheme.ScopeAdvisor,
		PlanCode: "P", Threshold: dec("0.10"), Active: true,
	}}
	snap := sales(map[string]int64{"postpaid": 5})
	snap.ByPlan["postpaid"] = map[string]int64{"P": 5}

	res := engine.Evaluate(engine.Input{Scheme: s, Sales: snap})

	d := detail(t, res, "postpaid")
	assert.Equal(t, int64(5), d.Sold)
	assert.Equal(t, int64(3), d.Eligible)
	assert.True(t, d.RestrictionApplied)
	assertDecimal(t, "0.1", d.Fulfillment)
	require.Len(t, d.Restrictions, 1)
	assert.Equal(t, int64(2), d.Restrictions[0].Excluded)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestEvaluate_ProrationChangesOutcome(t *testing.T) {
	// GIVEN: Quota 30, advisor started April 16 (factor 0.5)
	// WHEN: 15 units sold
	// THEN: Fulfillment is 100% against the effective quota of 15

	start := time.Date(2025, time.April, 16, 0, 0, 0, 0, time.UTC)
	eq, err := engine.Prorate(scheme.Quota{BaseQuota: scheme.Money(30), TenureStart: &start}, april2025())
	require.NoError(t, err)
	assertDecimal(t, "0.5", eq.ProrationFactor)

	res := engine.Evaluate(engine.Input{
		Scheme: newScheme(principal("postpaid")),
		Quota:  &eq,
		Sales:  sales(map[string]int64{"postpaid": 15}),
	})

	d := detail(t, res, "postpaid")
	assertDecimal(t, "15", d.Target)
	assertDecimal(t, "1", d.Fulfillment)
	assertDecimal(t, "300", d.Amount)
	assertDecimal(t, "0.5", res.ProrationFactor)
}

func TestEvaluate_ProrationCanPassGate(t *testing.T) {
	// GIVEN: 10 units sold, which fails the 50% gate unprorated
	// WHEN: The quota is prorated by 0.5
	// THEN: Fulfillment 66.67% passes the gate

	start := time.Date(2025, time.April, 16, 0, 0, 0, 0, time.UTC)
	eq, err := engine.Prorate(scheme.Quota{BaseQuota: scheme.Money(30), TenureStart: &start}, april2025())
	require.NoError(t, err)

	s := newScheme(principal("postpaid"))
	unprorated := evaluate(s, map[string]int64{"postpaid": 10})
	prorated := engine.Evaluate(engine.Input{Scheme: s, Quota: &eq, Sales: sales(map[string]int64{"postpaid": 10})})

	assertDecimal(t, "0", detail(t, unprorated, "postpaid").Amount)
	assertDecimal(t, "200", detail(t, prorated, "postpaid").Amount)
}

func TestEvaluate_Deterministic(t *testing.T) {
	// GIVEN: A scheme exercising every category, a lock and a restriction
	// WHEN: Evaluated twice with identical inputs
	// THEN: Serialized results are byte-identical

	b := scheme.Bonus{ItemBase: scheme.ItemBase{Key: "bonus", VariableAmount: scheme.Money(100), Active: true,
		Locks: []scheme.Lock{scheme.MinFulfillment{Value: dec("0.8")}}}}
	add := scheme.Additional{ItemBase: scheme.ItemBase{Key: "renewal", Quota: scheme.Money(8),
		VariableAmount: scheme.Money(80), Active: true, DisplayOrder: 2}}
	s := newScheme(principal("postpaid"), pxq("accessories"), add, b)
	s.Restrictions = []scheme.Restriction{{ID: "r", Type: scheme.RestrictMaxQuantity, Scope: scheme.ScopeAdvisor,
		PlanCode: "P", Threshold: dec("4"), Active: true}}

	in := func() engine.Input {
		snap := sales(map[string]int64{"postpaid": 27, "accessories": 7, "renewal": 9, "bonus": 1, "ghost": 4})
		snap.ByPlan["postpaid"] = map[string]int64{"P": 6, "Q": 21}
		return engine.Input{Scheme: s, Sales: snap, PredictedPenalties: dec("45.5")}
	}

	first, err := json.Marshal(engine.Evaluate(in()))
	require.NoError(t, err)
	second, err := json.Marshal(engine.Evaluate(in()))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestEvaluate_ZeroTarget_NoDivisionByZero(t *testing.T) {
	// GIVEN: Principal item with quota 0
	// WHEN: Units are sold
	// THEN: Fulfillment = 0 and the item pays 0

	item := principal("postpaid")
	item.Quota = decimal.Zero

	res := evaluate(newScheme(item), map[string]int64{"postpaid": 20})

	d := detail(t, res, "postpaid")
	assertDecimal(t, "0", d.Fulfillment)
	assertDecimal(t, "0", d.Amount)
}

func TestEvaluate_Monotonic(t *testing.T) {
	// GIVEN: Capped principal and PxQ items
	// WHEN: Sold units increase one at a time
	// THEN: Each item's amount never decreases

	capped := principal("postpaid")
	capped.Cap = scheme.Cap{Enabled: true, Percentage: decPtr("1.2"), Amount: decPtr("330")}
	s := newScheme(capped, pxq("accessories"))

	prevP, prevX := decimal.Zero, decimal.Zero
	for n := int64(0); n <= 60; n++ {
		res := evaluate(s, map[string]int64{"postpaid": n, "accessories": n})
		p := detail(t, res, "postpaid").Amount
		x := detail(t, res, "accessories").Amount
		assert.True(t, p.GreaterThanOrEqual(prevP), "principal decreased at %d", n)
		assert.True(t, x.GreaterThanOrEqual(prevX), "pxq decreased at %d", n)
		prevP, prevX = p, x
	}
}

func TestEvaluate_CapInvariant(t *testing.T) {
	// GIVEN: Item capped at 150% of 300 and at 400
	// WHEN: Evaluated across a range of sales
	// THEN: Amount never exceeds min(450, 400)

	item := principal("postpaid")
	item.Cap = scheme.Cap{Enabled: true, Percentage: decPtr("1.5"), Amount: decPtr("400")}
	s := newScheme(item)

	for n := int64(0); n <= 90; n += 3 {
		res := evaluate(s, map[string]int64{"postpaid": n})
		assert.True(t, detail(t, res, "postpaid").Amount.LessThanOrEqual(dec("400")), "sold %d", n)
	}
}

func TestEvaluate_LockBoundary(t *testing.T) {
	// GIVEN: min_quantity 5 lock on X
	// WHEN: X sold exactly 5, then 4
	// THEN: Passes at 5, fails at 4

	b := principal("b")
	b.Locks = []scheme.Lock{scheme.MinQuantity{RequiredItem: "x", Value: scheme.Money(5)}}
	s := newScheme(b, principal("x"))

	at5 := evaluate(s, map[string]int64{"b": 30, "x": 5})
	at4 := evaluate(s, map[string]int64{"b": 30, "x": 4})

	assert.False(t, detail(t, at5, "b").Locked)
	assertDecimal(t, "300", detail(t, at5, "b").Amount)
	assert.True(t, detail(t, at4, "b").Locked)
	assertDecimal(t, "0", detail(t, at4, "b").Amount)
}

func TestEvaluate_PxQTierEdge(t *testing.T) {
	// GIVEN: Tiers split at 0.5
	// WHEN: Fulfillment is exactly 0.5 (5 of 10)
	// THEN: The [0.5, 1.0) tier applies: 5 x 4 = 20

	res := evaluate(newScheme(pxq("accessories")), map[string]int64{"accessories": 5})

	assertDecimal(t, "20", detail(t, res, "accessories").Amount)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestEvaluate_EmptyScheme_ReturnsFixedSalary(t *testing.T) {
	res := evaluate(newScheme(), map[string]int64{"postpaid": 10})

	assertDecimal(t, "0", res.VariableCommission)
	assertDecimal(t, "1000", res.TotalNet)
	assert.Empty(t, res.Details)
}

func TestEvaluate_UnknownSalesKeysIgnored(t *testing.T) {
	res := evaluate(newScheme(principal("postpaid")), map[string]int64{"postpaid": 15, "unknown": 99})

	require.Len(t, res.Details, 1)
	assertDecimal(t, "150", res.VariableCommission)
	assert.Empty(t, res.Warnings)
}

func TestEvaluate_InactiveItemsExcluded(t *testing.T) {
	inactive := principal("legacy")
	inactive.Active = false

	res := evaluate(newScheme(principal("postpaid"), inactive), map[string]int64{"postpaid": 15, "legacy": 30})

	require.Len(t, res.Details, 1)
	assert.Equal(t, scheme.ItemKey("postpaid"), res.Details[0].ItemKey)
}

func TestEvaluate_DetailsFollowDisplayOrder(t *testing.T) {
	a := principal("zeta")
	a.DisplayOrder = 1
	b := principal("alpha")
	b.DisplayOrder = 2
	c := principal("beta")
	c.DisplayOrder = 1

	res := evaluate(newScheme(b, a, c), nil)

	keys := []scheme.ItemKey{res.Details[0].ItemKey, res.Details[1].ItemKey, res.Details[2].ItemKey}
	assert.Equal(t, []scheme.ItemKey{"beta", "zeta", "alpha"}, keys)
}

func TestEvaluate_LockOnUnknownItem_SkippedWithWarning(t *testing.T) {
	// GIVEN: A lock referencing an item that doesn't exist
	// WHEN: Evaluated
	// THEN: Item evaluated as unconstrained, warning reported

	item := principal("postpaid")
	item.Locks = []scheme.Lock{scheme.MinQuantity{RequiredItem: "ghost", Value: scheme.Money(5)}}

	res := evaluate(newScheme(item), map[string]int64{"postpaid": 15})

	d := detail(t, res, "postpaid")
	assert.False(t, d.Locked)
	assertDecimal(t, "150", d.Amount)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, engine.WarnUnknownItem, res.Warnings[0].Code)
}

func TestEvaluate_RestrictionOnUnknownItem_SkippedWithWarning(t *testing.T) {
	s := newScheme(principal("postpaid"))
	s.Restrictions = []scheme.Restriction{{ID: "r-ghost", Type: scheme.RestrictMaxQuantity,
		PlanCode: "P", ItemKey: "ghost", Threshold: dec("1"), Active: true}}
	snap := sales(map[string]int64{"postpaid": 15})
	snap.ByPlan["postpaid"] = map[string]int64{"P": 15}

	res := engine.Evaluate(engine.Input{Scheme: s, Sales: snap})

	assertDecimal(t, "150", detail(t, res, "postpaid").Amount)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "r-ghost", res.Warnings[0].Source)
}

func TestEvaluate_PenaltiesNotNetted(t *testing.T) {
	res := engine.Evaluate(engine.Input{
		Scheme:             newScheme(principal("postpaid")),
		Sales:              sales(map[string]int64{"postpaid": 15}),
		PredictedPenalties: dec("80"),
	})

	assertDecimal(t, "80", res.PredictedPenalties)
	assertDecimal(t, "1150", res.TotalNet)
}

func TestEvaluate_BonusRequiresFullFulfillment(t *testing.T) {
	b := scheme.Bonus{ItemBase: scheme.ItemBase{Key: "bonus", Quota: scheme.Money(10),
		VariableAmount: scheme.Money(200), Active: true}}
	s := newScheme(b)

	assertDecimal(t, "0", evaluate(s, map[string]int64{"bonus": 9}).BonusCommission)
	assertDecimal(t, "200", evaluate(s, map[string]int64{"bonus": 10}).BonusCommission)
}

func TestEvaluate_MinFulfillmentLock_UsesWeightedPrincipalFulfillment(t *testing.T) {
	// GIVEN: Two principal items weighted 0.75 / 0.25 and a bonus gated on 80%
	// WHEN: Fulfillments are 100% and 40% (weighted 85%)
	// THEN: The bonus pays

	a := principal("postpaid")
	a.Weight = dec("0.75")
	b := principal("portability")
	b.Weight = dec("0.25")
	bonus := scheme.Bonus{ItemBase: scheme.ItemBase{Key: "bonus", VariableAmount: scheme.Money(100), Active: true,
		Locks: []scheme.Lock{scheme.MinFulfillment{Value: dec("0.8")}}}}

	res := evaluate(newScheme(a, b, bonus), map[string]int64{"postpaid": 30, "portability": 12})

	assertDecimal(t, "0.85", res.AggregateFulfillment)
	assertDecimal(t, "100", detail(t, res, "bonus").Amount)
	assertDecimal(t, "0", detail(t, res, "portability").Amount)
}

func TestEvaluate_MixFactorScalesTargetAndAmount(t *testing.T) {
	// GIVEN: Two sub-items splitting quota 30 / variable 300 at 0.6 / 0.4
	// WHEN: Each hits its share exactly
	// THEN: They pay 180 and 120

	a := principal("postpaid_line")
	a.MixFactor = dec("0.6")
	b := principal("postpaid_equipment")
	b.MixFactor = dec("0.4")

	res := evaluate(newScheme(a, b), map[string]int64{"postpaid_line": 18, "postpaid_equipment": 12})

	assertDecimal(t, "180", detail(t, res, "postpaid_line").Amount)
	assertDecimal(t, "120", detail(t, res, "postpaid_equipment").Amount)
	assertDecimal(t, "300", res.VariableCommission)
}

func TestEvaluate_AmountDenominatedItem(t *testing.T) {
	item := principal("handsets")
	item.QuotaAmount = decPtr("5000")
	item.UnitValue = dec("250")

	res := evaluate(newScheme(item), map[string]int64{"handsets": 16})

	d := detail(t, res, "handsets")
	assertDecimal(t, "0.8", d.Fulfillment)
	assertDecimal(t, "240", d.Amount)
}

func TestEvaluate_BlockingOperatorOrigin_LocksItem(t *testing.T) {
	// GIVEN: Portability must have 50% of units from operator "movistar"
	// WHEN: Only 2 of 10 units come from it
	// THEN: The blocking restriction locks the item

	item := principal("portability")
	item.Quota = scheme.Money(10)
	s := newScheme(item)
	s.Restrictions = []scheme.Restriction{{ID: "r-op", Type: scheme.RestrictOperatorOrigin, Scope: scheme.ScopeAdvisor,
		OperatorCode: "movistar", Threshold: dec("0.5"), Blocking: true, Active: true}}
	snap := sales(map[string]int64{"portability": 10})
	snap.ByOperator["portability"] = map[string]int64{"movistar": 2, "claro": 8}

	res := engine.Evaluate(engine.Input{Scheme: s, Sales: snap})

	d := detail(t, res, "portability")
	assert.True(t, d.Locked)
	assert.Equal(t, engine.ReasonRestricted, d.Reason)
	assertDecimal(t, "0", d.Amount)
	assert.Equal(t, int64(10), d.Eligible)
}
