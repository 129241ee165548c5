/*
scheme.go - Scheme, item and lock definitions

PURPOSE:
  Defines the configuration a commission is computed from: a Scheme holds
  base salary figures and a list of commissionable Items; each Item may be
  gated by Locks on other items; Restrictions narrow which sold units count.

KEY CONCEPTS:
  - Scheme: period-scoped, versioned configuration (draft/approved/archived)
  - Item: sealed sum type, one variant per category
      Principal  - variable salary share, gated by min fulfillment
      Additional - same rule, outside the principal weight budget
      PxQ        - tiered price-times-quantity
      Bonus      - all-or-nothing payout
  - Lock: sealed sum type, one variant per lock kind (AND-combined)
  - Restriction: plan/operator scoped limits on countable units

WHY SUM TYPES:
  Each category reads a different subset of fields. Modelling them as one
  flat record with nullable fields pushes category checks into runtime
  branching. Variants + visitors make a missing case a compile error:
  a type that doesn't implement every Visit method isn't an ItemVisitor.

EXAMPLE:
  item := scheme.Principal{ItemBase: scheme.ItemBase{
      Key:            "postpaid",
      Quota:          scheme.Money(30),
      VariableAmount: scheme.Money(300),
      Active:         true,
  }}
  item.Accept(visitor) // calls visitor.VisitPrincipal(item)

SEE ALSO:
  - engine/strategy.go: ItemVisitor implementing the category rules
  - engine/lock.go: LockVisitor implementing the gates
  - factory/scheme.go: JSON to Scheme conversion
*/
package scheme

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEME
// =============================================================================

// Scheme is the complete commission configuration for one (type, period).
type Scheme struct {
	ID     SchemeID
	Name   string
	Type   SchemeType
	Period Period
	Status Status

	FixedSalary    decimal.Decimal
	VariableSalary decimal.Decimal
	TotalQuota     decimal.Decimal

	// DefaultMinFulfillment gates principal items that carry no override.
	DefaultMinFulfillment decimal.Decimal

	Items        []Item
	Restrictions []Restriction

	Version int
}

// IsEditable returns true while the scheme may still be mutated.
func (s Scheme) IsEditable() bool {
	return s.Status == StatusDraft || s.Status == ""
}

// ActiveItems returns active items in display order (DisplayOrder, then key).
// The returned slice is a copy; the scheme is not modified.
func (s Scheme) ActiveItems() []Item {
	items := make([]Item, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Base().Active {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Base(), items[j].Base()
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Key < b.Key
	})
	return items
}

// Item looks up an item by key, active or not.
func (s Scheme) Item(key ItemKey) (Item, bool) {
	for _, it := range s.Items {
		if it.Base().Key == key {
			return it, true
		}
	}
	return nil, false
}

// =============================================================================
// ITEM - Sealed sum type, one variant per category
// =============================================================================

// Item is a commissionable line of a scheme.
// The unexported method seals the interface to this package's variants.
type Item interface {
	Base() ItemBase
	Category() Category
	Accept(v ItemVisitor)
	sealedItem()
}

// ItemVisitor dispatches on the item variant.
type ItemVisitor interface {
	VisitPrincipal(Principal)
	VisitAdditional(Additional)
	VisitPxQ(PxQ)
	VisitBonus(Bonus)
}

// ItemBase holds the fields shared by every category.
type ItemBase struct {
	ID           string
	Key          ItemKey
	Name         string
	DisplayOrder int

	// Target in units. Principal and additional targets are prorated.
	Quota decimal.Decimal

	// QuotaAmount, when set, makes the item currency-denominated:
	// fulfillment = (units x UnitValue) / QuotaAmount.
	QuotaAmount *decimal.Decimal

	// QuotaMetric names an advisor quota breakdown entry. When the advisor
	// quota carries it, that (prorated) value replaces Quota.
	QuotaMetric string

	// UnitValue is the currency value of one sold unit.
	UnitValue decimal.Decimal

	// Weight is the share of variable salary (descriptive only).
	Weight decimal.Decimal

	// MixFactor splits a shared pool across sibling sub-items. Zero means 1.
	MixFactor decimal.Decimal

	// VariableAmount is payable at 100% fulfillment.
	VariableAmount decimal.Decimal

	// MinFulfillment overrides the scheme default gate.
	MinFulfillment *decimal.Decimal

	Cap    Cap
	Active bool

	SaleTypes []SaleTypeMapping
	Locks     []Lock
}

// Mix returns the effective mix factor (1 when unset).
func (b ItemBase) Mix() decimal.Decimal {
	if b.MixFactor.IsZero() {
		return One
	}
	return b.MixFactor
}

// NominalAmount returns the variable amount scaled by the mix factor.
func (b ItemBase) NominalAmount() decimal.Decimal {
	return b.VariableAmount.Mul(b.Mix())
}

// IsAmountDenominated returns true if the target is a currency amount.
func (b ItemBase) IsAmountDenominated() bool {
	return b.QuotaAmount != nil
}

// CountsSaleType returns the counting mode for a sale-type code and
// whether the item counts it at all.
func (b ItemBase) CountsSaleType(code string) (CountMode, bool) {
	for _, m := range b.SaleTypes {
		if m.Code == code {
			return m.Counts, true
		}
	}
	return "", false
}

// Cap configures ceilings on an item's payable commission.
// Percentage and Amount are independent; the tightest wins.
type Cap struct {
	Enabled    bool
	Percentage *decimal.Decimal
	Amount     *decimal.Decimal
}

// CountMode says whether a sale counts as a line or an equipment unit.
type CountMode string

const (
	CountLine      CountMode = "line"
	CountEquipment CountMode = "equipment"
)

// SaleTypeMapping maps a raw sale-type code onto an item.
type SaleTypeMapping struct {
	Code   string
	Counts CountMode
}

// Principal items share the scheme's variable salary by weight.
type Principal struct{ ItemBase }

// Additional items pay like principal items outside the weight budget.
type Additional struct{ ItemBase }

// Bonus items pay VariableAmount in full or nothing.
type Bonus struct{ ItemBase }

// PxQ items pay per unit at the rate of the tier containing fulfillment.
type PxQ struct {
	ItemBase
	Tiers []Tier
}

func (p Principal) Base() ItemBase  { return p.ItemBase }
func (a Additional) Base() ItemBase { return a.ItemBase }
func (x PxQ) Base() ItemBase        { return x.ItemBase }
func (b Bonus) Base() ItemBase      { return b.ItemBase }

func (Principal) Category() Category  { return CategoryPrincipal }
func (Additional) Category() Category { return CategoryAdditional }
func (PxQ) Category() Category        { return CategoryPxQ }
func (Bonus) Category() Category      { return CategoryBonus }

func (p Principal) Accept(v ItemVisitor)  { v.VisitPrincipal(p) }
func (a Additional) Accept(v ItemVisitor) { v.VisitAdditional(a) }
func (x PxQ) Accept(v ItemVisitor)        { v.VisitPxQ(x) }
func (b Bonus) Accept(v ItemVisitor)      { v.VisitBonus(b) }

func (Principal) sealedItem()  {}
func (Additional) sealedItem() {}
func (PxQ) sealedItem()        {}
func (Bonus) sealedItem()      {}

var (
	_ Item = Principal{}
	_ Item = Additional{}
	_ Item = PxQ{}
	_ Item = Bonus{}
)

// =============================================================================
// PXQ TIERS
// =============================================================================

// Tier is a half-open fulfillment band [Min, Max). A nil Max is open-ended.
type Tier struct {
	Min           decimal.Decimal
	Max           *decimal.Decimal
	AmountPerUnit decimal.Decimal
}

// TierFor returns the tier containing fulfillment f.
// Tiers are matched in ascending Min order; the last tier's upper bound
// is treated as +inf even if one is configured.
func (x PxQ) TierFor(f decimal.Decimal) (Tier, bool) {
	tiers := make([]Tier, len(x.Tiers))
	copy(tiers, x.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Min.LessThan(tiers[j].Min) })

	for i, t := range tiers {
		if f.LessThan(t.Min) {
			continue
		}
		last := i == len(tiers)-1
		if last || t.Max == nil || f.LessThan(*t.Max) {
			return t, true
		}
	}
	return Tier{}, false
}

// =============================================================================
// LOCK - Sealed sum type, one variant per lock kind
// =============================================================================

// LockType names a lock kind as stored.
type LockType string

const (
	LockMinQuantity    LockType = "min_quantity"
	LockMinAmount      LockType = "min_amount"
	LockMinPercentage  LockType = "min_percentage"
	LockMinFulfillment LockType = "min_fulfillment"
)

// Lock is a cross-item eligibility gate on an item's payout.
type Lock interface {
	Type() LockType
	// Required returns the item the lock reads; empty for scheme-wide locks.
	Required() ItemKey
	Threshold() decimal.Decimal
	Accept(v LockVisitor)
	sealedLock()
}

// LockVisitor dispatches on the lock variant.
type LockVisitor interface {
	VisitMinQuantity(MinQuantity)
	VisitMinAmount(MinAmount)
	VisitMinPercentage(MinPercentage)
	VisitMinFulfillment(MinFulfillment)
}

// MinQuantity passes when the required item's eligible units >= Value.
type MinQuantity struct {
	RequiredItem ItemKey
	Value        decimal.Decimal
}

// MinAmount passes when eligible units x unit value >= Value.
type MinAmount struct {
	RequiredItem ItemKey
	Value        decimal.Decimal
}

// MinPercentage passes when the required item's fulfillment ratio >= Value.
type MinPercentage struct {
	RequiredItem ItemKey
	Value        decimal.Decimal
}

// MinFulfillment passes when the scheme's weighted principal fulfillment >= Value.
type MinFulfillment struct {
	Value decimal.Decimal
}

func (MinQuantity) Type() LockType    { return LockMinQuantity }
func (MinAmount) Type() LockType      { return LockMinAmount }
func (MinPercentage) Type() LockType  { return LockMinPercentage }
func (MinFulfillment) Type() LockType { return LockMinFulfillment }

func (l MinQuantity) Required() ItemKey   { return l.RequiredItem }
func (l MinAmount) Required() ItemKey     { return l.RequiredItem }
func (l MinPercentage) Required() ItemKey { return l.RequiredItem }
func (MinFulfillment) Required() ItemKey  { return "" }

func (l MinQuantity) Threshold() decimal.Decimal    { return l.Value }
func (l MinAmount) Threshold() decimal.Decimal      { return l.Value }
func (l MinPercentage) Threshold() decimal.Decimal  { return l.Value }
func (l MinFulfillment) Threshold() decimal.Decimal { return l.Value }

func (l MinQuantity) Accept(v LockVisitor)    { v.VisitMinQuantity(l) }
func (l MinAmount) Accept(v LockVisitor)      { v.VisitMinAmount(l) }
func (l MinPercentage) Accept(v LockVisitor)  { v.VisitMinPercentage(l) }
func (l MinFulfillment) Accept(v LockVisitor) { v.VisitMinFulfillment(l) }

func (MinQuantity) sealedLock()    {}
func (MinAmount) sealedLock()      {}
func (MinPercentage) sealedLock()  {}
func (MinFulfillment) sealedLock() {}

// =============================================================================
// RESTRICTION - Limits on which sold units count
// =============================================================================

type RestrictionType string

const (
	RestrictMaxPercentage  RestrictionType = "max_percentage"
	RestrictMaxQuantity    RestrictionType = "max_quantity"
	RestrictMinPercentage  RestrictionType = "min_percentage"
	RestrictOperatorOrigin RestrictionType = "operator_origin"
)

type RestrictionScope string

const (
	ScopeAdvisor RestrictionScope = "advisor"
	ScopeStore   RestrictionScope = "store"
	ScopeGlobal  RestrictionScope = "global"
)

// Restriction narrows the countable units of a plan or donor operator.
type Restriction struct {
	ID           string
	Type         RestrictionType
	Scope        RestrictionScope
	PlanCode     string
	OperatorCode string
	Threshold    decimal.Decimal

	// ItemKey limits the restriction to one item. Empty means every item
	// reporting units for the plan/operator.
	ItemKey ItemKey

	// Blocking makes an unmet minimum (min_percentage, operator_origin)
	// lock the item. Ceilings ignore it.
	Blocking bool

	Active bool
}

// IsCeiling returns true for restrictions that exclude units.
func (r Restriction) IsCeiling() bool {
	return r.Type == RestrictMaxPercentage || r.Type == RestrictMaxQuantity
}

// ByOperator reports whether the restriction reads donor-operator
// breakdowns rather than plan breakdowns.
func (r Restriction) ByOperator() bool {
	return r.Type == RestrictOperatorOrigin || (r.PlanCode == "" && r.OperatorCode != "")
}

// Code returns the plan or operator code the restriction targets.
func (r Restriction) Code() string {
	if r.ByOperator() {
		return r.OperatorCode
	}
	return r.PlanCode
}

// AggregateKey names the scope total a store or global restriction is
// measured against, e.g. "plan:unlimited_99" or "operator:bitel@portability".
// Restrictions on the same code but different items get different keys.
func (r Restriction) AggregateKey() string {
	dim := "plan"
	if r.ByOperator() {
		dim = "operator"
	}
	key := dim + ":" + r.Code()
	if r.ItemKey != "" {
		key += "@" + string(r.ItemKey)
	}
	return key
}

// =============================================================================
// WEIGHT VALIDATION - Editor-side data quality report
// =============================================================================

// weightTolerance is the accepted deviation of principal weights from 1.
var weightTolerance = decimal.RequireFromString("0.001")

// WeightReport summarizes principal weights for the scheme editor.
type WeightReport struct {
	Sum   decimal.Decimal
	Valid bool
}

// ValidateWeights sums active principal weights. The engine never calls
// this; it is a warning surfaced by the editor.
func ValidateWeights(s Scheme) WeightReport {
	sum := decimal.Zero
	for _, it := range s.Items {
		if p, ok := it.(Principal); ok && p.Active {
			sum = sum.Add(p.Weight)
		}
	}
	return WeightReport{
		Sum:   sum,
		Valid: sum.Sub(One).Abs().LessThanOrEqual(weightTolerance),
	}
}
