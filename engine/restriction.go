/*
restriction.go - Restriction filter

PURPOSE:
  Reduces the raw sold units of restriction-scoped items to the units
  that are eligible to count. Runs before fulfillment so the ratio only
  reflects eligible sales.

RESTRICTION TYPES:
  max_percentage   ceiling = floor(threshold x total quota)
  max_quantity     ceiling = floor(threshold)
  min_percentage   soft: records whether plan units >= threshold x total quota
  operator_origin  soft: records whether operator units >= threshold x item units

  Ceilings exclude the excess from the item's sold count; excluded units
  are not reassigned to another item. Exclusions on different plans add
  up, as do exclusions on different operators; a plan ceiling and an
  operator ceiling over the same units combine by max. Soft restrictions never change
  counts. A soft restriction marked Blocking turns an unmet minimum into
  a lock failure on the item.

SCOPES:
  advisor          compared against the advisor's own units
  store / global   compared against collaborator-supplied aggregates.
                   When the aggregate exceeds the ceiling, the advisor's
                   units for the code are scaled down proportionally:
                   allowed = floor(units x ceiling / aggregate units)

MALFORMED CONFIGURATION:
  A restriction naming an unknown item, lacking a plan/operator code, or
  needing an aggregate that wasn't supplied is skipped and reported as a
  Warning. The item is evaluated as if unconstrained.

EXAMPLE:
  max_percentage 0.10 on plan "P" with total quota 30:
    ceiling = floor(0.10 x 30) = 3
    5 units of P sold -> 2 excluded, 3 eligible

SEE ALSO:
  - engine.go: Feeds Filtered.Eligible into NewItemState
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// RestrictionInput is what the filter reads.
type RestrictionInput struct {
	Scheme     scheme.Scheme
	Sales      scheme.SalesSnapshot
	Aggregates scheme.ScopeAggregates

	// TotalQuota is the advisor's effective total quota.
	TotalQuota decimal.Decimal
}

// RestrictionOutcome records how one restriction affected one item.
type RestrictionOutcome struct {
	RestrictionID string
	Type          scheme.RestrictionType
	Scope         scheme.RestrictionScope
	Code          string

	// Units of the code the item reported, and how many were excluded.
	Units    int64
	Excluded int64

	// Met is only meaningful for soft restrictions.
	Met      bool
	Blocking bool
}

// IsCeiling reports whether the outcome comes from a max_* restriction.
func (o RestrictionOutcome) IsCeiling() bool {
	return o.Type == scheme.RestrictMaxPercentage || o.Type == scheme.RestrictMaxQuantity
}

// Blocks reports whether the outcome locks the item.
func (o RestrictionOutcome) Blocks() bool {
	return !o.IsCeiling() && o.Blocking && !o.Met
}

// Filtered is the output of the restriction filter.
type Filtered struct {
	Eligible map[scheme.ItemKey]int64
	Outcomes map[scheme.ItemKey][]RestrictionOutcome
	Warnings []Warning
}

// Applied reports whether any ceiling excluded units of the item.
func (f Filtered) Applied(key scheme.ItemKey) bool {
	for _, o := range f.Outcomes[key] {
		if o.Excluded > 0 {
			return true
		}
	}
	return false
}

// Blocked returns the first blocking unmet restriction of the item.
func (f Filtered) Blocked(key scheme.ItemKey) (RestrictionOutcome, bool) {
	for _, o := range f.Outcomes[key] {
		if o.Blocks() {
			return o, true
		}
	}
	return RestrictionOutcome{}, false
}

// ApplyRestrictions runs every active restriction of the scheme over the
// sales snapshot.
func ApplyRestrictions(in RestrictionInput) Filtered {
	f := Filtered{
		Eligible: make(map[scheme.ItemKey]int64, len(in.Scheme.Items)),
		Outcomes: make(map[scheme.ItemKey][]RestrictionOutcome),
	}
	for _, it := range in.Scheme.Items {
		key := it.Base().Key
		f.Eligible[key] = nonNegative(in.Sales.Units[key])
	}

	// Per item and code, only the tightest ceiling's exclusion counts.
	excluded := make(map[scheme.ItemKey]map[dimension]int64)

	for _, r := range in.Scheme.Restrictions {
		if !r.Active {
			continue
		}
		code := r.Code()
		if code == "" {
			f.warn(WarnMissingCode, r.ItemKey, r.ID, "restriction has no plan or operator code")
			continue
		}

		var agg scheme.AggregateUnits
		switch r.Scope {
		case scheme.ScopeAdvisor, "":
		case scheme.ScopeStore, scheme.ScopeGlobal:
			v, ok := in.Aggregates.Lookup(r)
			if !ok {
				f.warn(WarnMissingAggregate, r.ItemKey, r.ID,
					fmt.Sprintf("no %s aggregate for %q", r.Scope, r.AggregateKey()))
				continue
			}
			agg = v
		default:
			f.warn(WarnUnknownScope, r.ItemKey, r.ID, fmt.Sprintf("unknown scope %q", r.Scope))
			continue
		}

		targets, ok := restrictionTargets(in, r)
		if !ok {
			f.warn(WarnUnknownItem, r.ItemKey, r.ID, fmt.Sprintf("restriction references unknown item %q", r.ItemKey))
			continue
		}

		dim := dimensionKey(r)
		for _, key := range targets {
			units := breakdownUnits(in.Sales, r, key)
			o := RestrictionOutcome{
				RestrictionID: r.ID,
				Type:          r.Type,
				Scope:         r.Scope,
				Code:          code,
				Units:         units,
				Blocking:      r.Blocking,
			}

			switch r.Type {
			case scheme.RestrictMaxPercentage, scheme.RestrictMaxQuantity:
				o.Excluded = excess(r, units, agg, in.TotalQuota)
				o.Met = o.Excluded == 0
				if o.Excluded > 0 {
					if excluded[key] == nil {
						excluded[key] = make(map[dimension]int64)
					}
					if o.Excluded > excluded[key][dim] {
						excluded[key][dim] = o.Excluded
					}
				}
			case scheme.RestrictMinPercentage, scheme.RestrictOperatorOrigin:
				o.Met = minimumMet(r, units, nonNegative(in.Sales.Units[key]), agg, in.TotalQuota)
			default:
				f.warn(WarnUnknownType, key, r.ID, fmt.Sprintf("unknown restriction type %q", r.Type))
				continue
			}
			f.Outcomes[key] = append(f.Outcomes[key], o)
		}
	}

	for key, byCode := range excluded {
		f.Eligible[key] = nonNegative(f.Eligible[key] - totalExcluded(byCode))
	}
	return f
}

// totalExcluded combines per-code exclusions of one item. Plan codes
// partition the item's units, as do operator codes, so exclusions add up
// within each family. Both families describe the same units, so the
// larger family total satisfies every ceiling.
func totalExcluded(byCode map[dimension]int64) int64 {
	var plans, operators int64
	for dim, n := range byCode {
		if dim.operator {
			operators += n
		} else {
			plans += n
		}
	}
	return max(plans, operators)
}

// restrictionTargets lists the items a restriction applies to, in scheme
// order. The bool is false when the restriction names an unknown item.
func restrictionTargets(in RestrictionInput, r scheme.Restriction) ([]scheme.ItemKey, bool) {
	if r.ItemKey != "" {
		if _, ok := in.Scheme.Item(r.ItemKey); !ok {
			return nil, false
		}
		return []scheme.ItemKey{r.ItemKey}, true
	}

	var keys []scheme.ItemKey
	for _, it := range in.Scheme.Items {
		key := it.Base().Key
		breakdown := in.Sales.ByPlan[key]
		if r.ByOperator() {
			breakdown = in.Sales.ByOperator[key]
		}
		if len(breakdown) > 0 {
			keys = append(keys, key)
		}
	}
	return keys, true
}

func breakdownUnits(sales scheme.SalesSnapshot, r scheme.Restriction, key scheme.ItemKey) int64 {
	if r.ByOperator() {
		return nonNegative(sales.OperatorUnits(key, r.Code()))
	}
	return nonNegative(sales.PlanUnits(key, r.Code()))
}

// dimension is a plan or operator code.
type dimension struct {
	operator bool
	code     string
}

func dimensionKey(r scheme.Restriction) dimension {
	return dimension{operator: r.ByOperator(), code: r.Code()}
}

// ceiling returns the unit ceiling of a max_* restriction against a quota.
func ceiling(r scheme.Restriction, quota decimal.Decimal) int64 {
	if r.Type == scheme.RestrictMaxQuantity {
		return nonNegative(r.Threshold.Floor().IntPart())
	}
	return nonNegative(r.Threshold.Mul(quota).Floor().IntPart())
}

// excess returns how many of units must be excluded.
func excess(r scheme.Restriction, units int64, agg scheme.AggregateUnits, totalQuota decimal.Decimal) int64 {
	if r.Scope == scheme.ScopeStore || r.Scope == scheme.ScopeGlobal {
		limit := ceiling(r, agg.Quota)
		if agg.Units <= limit || agg.Units == 0 {
			return 0
		}
		allowed := decimal.NewFromInt(units).
			Mul(decimal.NewFromInt(limit)).
			Div(decimal.NewFromInt(agg.Units)).
			Floor().IntPart()
		return nonNegative(units - allowed)
	}

	limit := ceiling(r, totalQuota)
	if units <= limit {
		return 0
	}
	return units - limit
}

// minimumMet evaluates a soft restriction.
func minimumMet(r scheme.Restriction, units, itemUnits int64, agg scheme.AggregateUnits, totalQuota decimal.Decimal) bool {
	if r.Scope == scheme.ScopeStore || r.Scope == scheme.ScopeGlobal {
		return decimal.NewFromInt(agg.Units).GreaterThanOrEqual(r.Threshold.Mul(agg.Quota))
	}
	base := totalQuota
	if r.Type == scheme.RestrictOperatorOrigin {
		base = decimal.NewFromInt(itemUnits)
	}
	return decimal.NewFromInt(units).GreaterThanOrEqual(r.Threshold.Mul(base))
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func (f *Filtered) warn(code WarningCode, key scheme.ItemKey, source, msg string) {
	f.Warnings = append(f.Warnings, Warning{Code: code, ItemKey: key, Source: source, Message: msg})
}
