/*
Package engine evaluates a commission scheme against an advisor's sales.

PURPOSE:
  The single canonical evaluation. The authoritative call sites (payroll
  runs, /api/evaluate, the remote evaluator) and the what-if simulator
  all call Evaluate with the same Input and get the same Result.

PIPELINE:
  ┌──────────┐   ┌─────────────┐   ┌─────────────┐   ┌───────┐
  │ Prorate  │──▶│ Restrictions│──▶│ Fulfillment │──▶│ Locks │
  └──────────┘   └─────────────┘   └─────────────┘   └───────┘
   (caller)                                              │
                 ┌─────────┐   ┌───────┐   ┌──────────┐  │
                 │ Compose │◀──│  Cap  │◀──│ Strategy │◀─┘
                 └─────────┘   └───────┘   └──────────┘

PROPERTIES:
  - Pure: no I/O, no logging, no shared mutable state. Input is read only.
  - Deterministic: decimals throughout; every iteration that shapes the
    output walks scheme slices, never maps.
  - Total: malformed configuration becomes a Warning, never an error or
    panic. Callers log warnings.

EXAMPLE:
  res := engine.Evaluate(engine.Input{
      Scheme: s,
      Quota:  &eq,
      Sales:  snapshot,
  })
  fmt.Println(res.TotalNet)

SEE ALSO:
  - simulation/service.go: Resolves Input from the stores
  - proration.go: Builds the EffectiveQuota
*/
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// INPUT
// =============================================================================

// Input is the immutable snapshot one evaluation runs over.
type Input struct {
	Scheme scheme.Scheme

	// Quota is the advisor's prorated quota. Nil means item quotas are
	// used unprorated and max_percentage restrictions read TotalQuota.
	Quota *EffectiveQuota

	Sales      scheme.SalesSnapshot
	Aggregates scheme.ScopeAggregates

	// PredictedPenalties is computed by the caller and reported as is.
	PredictedPenalties decimal.Decimal
}

// totalQuota is the quota max_percentage restrictions are measured against.
func (in Input) totalQuota() decimal.Decimal {
	if in.Quota != nil && in.Quota.EffectiveQuota.IsPositive() {
		return in.Quota.EffectiveQuota
	}
	return in.Scheme.TotalQuota
}

// =============================================================================
// WARNINGS
// =============================================================================

type WarningCode string

const (
	WarnUnknownItem      WarningCode = "unknown_item"
	WarnMissingCode      WarningCode = "missing_code"
	WarnMissingAggregate WarningCode = "missing_aggregate"
	WarnUnknownScope     WarningCode = "unknown_scope"
	WarnUnknownType      WarningCode = "unknown_type"
)

// Warning reports configuration the engine skipped.
type Warning struct {
	Code    WarningCode
	ItemKey scheme.ItemKey

	// Source is the restriction ID or lock type that was skipped.
	Source  string
	Message string
}

// =============================================================================
// EVALUATE
// =============================================================================

// Evaluate runs the full pipeline.
func Evaluate(in Input) Result {
	s := in.Scheme

	filtered := ApplyRestrictions(RestrictionInput{
		Scheme:     s,
		Sales:      in.Sales,
		Aggregates: in.Aggregates,
		TotalQuota: in.totalQuota(),
	})
	warnings := append([]Warning(nil), filtered.Warnings...)

	// States cover inactive items too so locks can still read them.
	states := make(map[scheme.ItemKey]ItemState, len(s.Items))
	for _, it := range s.Items {
		key := it.Base().Key
		states[key] = NewItemState(it, nonNegative(in.Sales.Units[key]), filtered.Eligible[key], in.Quota)
	}
	lockCtx := LockContext{
		States:               states,
		AggregateFulfillment: AggregateFulfillment(s, states),
	}

	items := s.ActiveItems()
	details := make([]Detail, 0, len(items))
	for _, it := range items {
		b := it.Base()
		st := states[b.Key]

		locks := EvaluateLocks(it, lockCtx)
		warnings = append(warnings, locks.Warnings...)
		_, blocked := filtered.Blocked(b.Key)

		raw := CommissionStrategy(it, StrategyInput{
			State:                 st,
			DefaultMinFulfillment: s.DefaultMinFulfillment,
			Locked:                !locks.Passed,
			Restricted:            blocked,
		})
		capped := ApplyCap(b, raw.Amount)

		details = append(details, Detail{
			ItemKey:            b.Key,
			Name:               b.Name,
			Category:           it.Category(),
			Target:             st.Target,
			Sold:               st.Sold,
			Eligible:           st.Eligible,
			Fulfillment:        st.Fulfillment,
			FulfillmentPct:     st.Fulfillment.Mul(decimal.NewFromInt(100)).Round(amountPlaces),
			MinFulfillment:     raw.MinFulfillment,
			Locked:             !locks.Passed || blocked,
			Locks:              locks.Results,
			RestrictionApplied: filtered.Applied(b.Key),
			Restrictions:       filtered.Outcomes[b.Key],
			Tier:               raw.Tier,
			Capped:             capped.Capped || raw.CeilingReached,
			RawAmount:          raw.Amount,
			Amount:             capped.Amount,
			Reason:             raw.Reason,
		})
	}

	res := Compose(s, details, in.PredictedPenalties)
	res.ProrationFactor = scheme.One
	if in.Quota != nil {
		res.ProrationFactor = in.Quota.factor()
	}
	res.AggregateFulfillment = lockCtx.AggregateFulfillment
	res.Warnings = warnings
	return res
}
