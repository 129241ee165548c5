package telecom

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// SALES AGGREGATION - Raw sale lines to per-item units
// =============================================================================

// Aggregate folds raw sale lines into a per-item snapshot. A line counts
// toward every item whose sale-type mapping lists its code, as lines or
// equipment units depending on the mapping. Sale types no item maps are
// dropped.
func Aggregate(s scheme.Scheme, records []scheme.SaleRecord) scheme.SalesSnapshot {
	snap := scheme.NewSalesSnapshot()
	for _, rec := range records {
		for _, it := range s.Items {
			b := it.Base()
			mode, ok := b.CountsSaleType(rec.SaleType)
			if !ok {
				continue
			}
			n := Count(rec, scheme.ResolveCountMode(rec.SaleType, mode))
			if n == 0 {
				continue
			}
			snap.Units[b.Key] += n
			if rec.PlanCode != "" {
				addUnits(snap.ByPlan, b.Key, rec.PlanCode, n)
			}
			if rec.OperatorCode != "" {
				addUnits(snap.ByOperator, b.Key, rec.OperatorCode, n)
			}
		}
	}
	return snap
}

// Count returns how many units a sale line contributes under a mode.
func Count(rec scheme.SaleRecord, mode scheme.CountMode) int64 {
	if mode == scheme.CountEquipment {
		return rec.Equipment
	}
	return rec.Lines
}

func addUnits(m map[scheme.ItemKey]map[string]int64, key scheme.ItemKey, code string, n int64) {
	if m[key] == nil {
		m[key] = make(map[string]int64)
	}
	m[key][code] += n
}

// =============================================================================
// SCOPE AGGREGATES - Store and company totals for restrictions
// =============================================================================

// ScopeSales is every sale line of a scope (store or company) together
// with the scope's total quota.
type ScopeSales struct {
	Records []scheme.SaleRecord
	Quota   decimal.Decimal
}

// ScopeAggregates computes the totals store and global restrictions of s
// are measured against, keyed by Restriction.AggregateKey. Only keys
// referenced by active store/global restrictions are computed.
func ScopeAggregates(s scheme.Scheme, store, global ScopeSales) scheme.ScopeAggregates {
	out := scheme.ScopeAggregates{
		Store:  make(map[string]scheme.AggregateUnits),
		Global: make(map[string]scheme.AggregateUnits),
	}

	var storeSnap, globalSnap *scheme.SalesSnapshot
	for _, r := range s.Restrictions {
		if !r.Active || r.Code() == "" {
			continue
		}
		switch r.Scope {
		case scheme.ScopeStore:
			if storeSnap == nil {
				snap := Aggregate(s, store.Records)
				storeSnap = &snap
			}
			out.Store[r.AggregateKey()] = scheme.AggregateUnits{Units: restrictionUnits(s, *storeSnap, r), Quota: store.Quota}
		case scheme.ScopeGlobal:
			if globalSnap == nil {
				snap := Aggregate(s, global.Records)
				globalSnap = &snap
			}
			out.Global[r.AggregateKey()] = scheme.AggregateUnits{Units: restrictionUnits(s, *globalSnap, r), Quota: global.Quota}
		}
	}
	return out
}

// restrictionUnits sums a restriction's code across the items it targets.
func restrictionUnits(s scheme.Scheme, snap scheme.SalesSnapshot, r scheme.Restriction) int64 {
	unitsOf := func(key scheme.ItemKey) int64 {
		if r.ByOperator() {
			return snap.OperatorUnits(key, r.Code())
		}
		return snap.PlanUnits(key, r.Code())
	}

	if r.ItemKey != "" {
		return unitsOf(r.ItemKey)
	}
	total := int64(0)
	for _, it := range s.Items {
		total += unitsOf(it.Base().Key)
	}
	return total
}
