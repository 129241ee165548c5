package scheme

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADVISOR - The salesperson a commission is computed for
// =============================================================================

// Advisor is a sales advisor (HC). The scheme that applies to an advisor
// is the approved scheme of their SchemeType for the period; choosing it
// is the caller's job, not the engine's.
type Advisor struct {
	ID         AdvisorID
	Name       string
	StoreID    StoreID
	SchemeType SchemeType

	// TenureStart is the first active day. Nil for long-standing advisors.
	TenureStart *time.Time
	Active      bool
}

// =============================================================================
// QUOTA - Monthly target distributed to an advisor
// =============================================================================

// Quota is the nominal monthly target distributed to an advisor.
// Quotas are immutable once distributed.
type Quota struct {
	AdvisorID AdvisorID
	Period    Period
	BaseQuota decimal.Decimal

	// Breakdown splits the quota by sub-metric (e.g. "postpaid", "portability").
	Breakdown map[string]decimal.Decimal

	// TenureStart is copied from the advisor when the quota is resolved.
	TenureStart *time.Time
}

// =============================================================================
// SALES - Raw sale lines and their per-item aggregation
// =============================================================================

// SaleRecord is one raw sale line as reported by the sales feed.
type SaleRecord struct {
	SaleType     string
	PlanCode     string
	OperatorCode string
	Lines        int64
	Equipment    int64
}

// SalesSnapshot is an advisor's sales for a period, already folded into
// item keys. It is what both evaluation call sites receive.
type SalesSnapshot struct {
	Units      map[ItemKey]int64
	ByPlan     map[ItemKey]map[string]int64
	ByOperator map[ItemKey]map[string]int64
}

// NewSalesSnapshot returns an empty, ready-to-fill snapshot.
func NewSalesSnapshot() SalesSnapshot {
	return SalesSnapshot{
		Units:      make(map[ItemKey]int64),
		ByPlan:     make(map[ItemKey]map[string]int64),
		ByOperator: make(map[ItemKey]map[string]int64),
	}
}

// PlanUnits returns the units of an item attributed to a plan.
func (s SalesSnapshot) PlanUnits(key ItemKey, plan string) int64 {
	return s.ByPlan[key][plan]
}

// OperatorUnits returns the units of an item ported from an operator.
func (s SalesSnapshot) OperatorUnits(key ItemKey, operator string) int64 {
	return s.ByOperator[key][operator]
}

// =============================================================================
// SCOPE AGGREGATES - Cross-advisor totals for store/global restrictions
// =============================================================================

// AggregateUnits is the total sold for a plan/operator across a scope
// together with the scope's total quota.
type AggregateUnits struct {
	Units int64
	Quota decimal.Decimal
}

// ScopeAggregates carries store and company-wide totals keyed by
// Restriction.AggregateKey. The engine can't compute these; a collaborator
// supplies them.
type ScopeAggregates struct {
	Store  map[string]AggregateUnits
	Global map[string]AggregateUnits
}

// Lookup returns the aggregate a store or global restriction reads.
func (a ScopeAggregates) Lookup(r Restriction) (AggregateUnits, bool) {
	var m map[string]AggregateUnits
	switch r.Scope {
	case ScopeStore:
		m = a.Store
	case ScopeGlobal:
		m = a.Global
	}
	v, ok := m[r.AggregateKey()]
	return v, ok
}

// =============================================================================
// INCIDENTS - Inputs to predicted penalties
// =============================================================================

// Incident is a registered penalty event for an advisor (e.g. a
// fraudulent portability or an unpaid first invoice).
type Incident struct {
	ID        string
	AdvisorID AdvisorID
	Period    Period
	Code      string
	Count     int64
	Condoned  bool
	Note      string
	CreatedAt time.Time
}

// TransferEquivalence is the configured penalty amount per incident code.
type TransferEquivalence struct {
	Code   string
	Amount decimal.Decimal
}
