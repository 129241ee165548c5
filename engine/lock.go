package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// LOCK EVALUATOR - Cross-item eligibility gates
// =============================================================================

// LockResult is the outcome of one lock.
type LockResult struct {
	Type         scheme.LockType
	RequiredItem scheme.ItemKey
	Threshold    decimal.Decimal

	// Actual is the value compared against Threshold.
	Actual decimal.Decimal
	Passed bool

	// Skipped locks reference an item missing from the scheme and count
	// as passed.
	Skipped bool
}

// LockReport is the AND of every lock on an item.
type LockReport struct {
	Passed   bool
	Results  []LockResult
	Warnings []Warning
}

// Failed returns the locks that did not pass.
func (r LockReport) Failed() []LockResult {
	var out []LockResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// LockContext is the restriction-adjusted snapshot locks read. Locks
// never modify it.
type LockContext struct {
	States               map[scheme.ItemKey]ItemState
	AggregateFulfillment decimal.Decimal
}

// EvaluateLocks runs every lock of item against ctx.
func EvaluateLocks(item scheme.Item, ctx LockContext) LockReport {
	b := item.Base()
	ev := &lockEvaluator{ctx: ctx, owner: b.Key}
	report := LockReport{Passed: true}
	for _, l := range b.Locks {
		l.Accept(ev)
		if !ev.result.Passed {
			report.Passed = false
		}
		report.Results = append(report.Results, ev.result)
	}
	report.Warnings = ev.warnings
	return report
}

// lockEvaluator implements scheme.LockVisitor. Each Visit leaves its
// outcome in result.
type lockEvaluator struct {
	ctx      LockContext
	owner    scheme.ItemKey
	result   LockResult
	warnings []Warning
}

var _ scheme.LockVisitor = (*lockEvaluator)(nil)

func (e *lockEvaluator) VisitMinQuantity(l scheme.MinQuantity) {
	e.compare(l, func(st ItemState) decimal.Decimal {
		return decimal.NewFromInt(st.Eligible)
	})
}

func (e *lockEvaluator) VisitMinAmount(l scheme.MinAmount) {
	e.compare(l, func(st ItemState) decimal.Decimal {
		return decimal.NewFromInt(st.Eligible).Mul(st.UnitValue)
	})
}

func (e *lockEvaluator) VisitMinPercentage(l scheme.MinPercentage) {
	e.compare(l, func(st ItemState) decimal.Decimal {
		return st.Fulfillment
	})
}

func (e *lockEvaluator) VisitMinFulfillment(l scheme.MinFulfillment) {
	actual := e.ctx.AggregateFulfillment
	e.result = LockResult{
		Type:      l.Type(),
		Threshold: l.Value,
		Actual:    actual,
		Passed:    actual.GreaterThanOrEqual(l.Value),
	}
}

func (e *lockEvaluator) compare(l scheme.Lock, measure func(ItemState) decimal.Decimal) {
	e.result = LockResult{
		Type:         l.Type(),
		RequiredItem: l.Required(),
		Threshold:    l.Threshold(),
	}

	st, ok := e.ctx.States[l.Required()]
	if !ok {
		e.result.Passed = true
		e.result.Skipped = true
		e.warnings = append(e.warnings, Warning{
			Code:    WarnUnknownItem,
			ItemKey: e.owner,
			Source:  string(l.Type()),
			Message: fmt.Sprintf("lock references unknown item %q", l.Required()),
		})
		return
	}

	e.result.Actual = measure(st)
	e.result.Passed = e.result.Actual.GreaterThanOrEqual(l.Threshold())
}
