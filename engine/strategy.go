/*
strategy.go - Category commission strategies

PURPOSE:
  One calculation rule per item category, dispatched through
  scheme.ItemVisitor. There is no shared formula: adding a category means
  adding a Visit method, and the compiler points at every visitor that
  lacks it.

RULES:
  principal    0 below the min fulfillment gate (item override, else the
               scheme default); else nominal x min(fulfillment, ceiling)
               where ceiling is the cap percentage when a cap sets one,
               else 1
  additional   same as principal; outside the weight budget and the
               scheme-wide aggregate
  pxq          eligible units x tier amount per unit x mix factor; tier
               chosen by fulfillment, half-open, last tier open-ended.
               Below the first tier pays 0. An explicit item min
               fulfillment gates it too.
  bonus        nominal amount when locks pass and, for bonuses with a
               target, fulfillment >= 1; else 0

  nominal = variable amount x mix factor

  Failed locks zero every category.

SEE ALSO:
  - cap.go: Applied to the strategy's raw amount
  - scheme/scheme.go: Item variants and ItemVisitor
*/
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// Reason explains a zero or reduced amount in the detail.
type Reason string

const (
	ReasonPaid             Reason = ""
	ReasonLocked           Reason = "locked"
	ReasonRestricted       Reason = "restriction_unmet"
	ReasonBelowMinimum     Reason = "below_min_fulfillment"
	ReasonBelowTier        Reason = "below_first_tier"
	ReasonTargetNotReached Reason = "target_not_reached"
)

// Commission is the raw (pre-cap) result of a category strategy.
type Commission struct {
	Amount decimal.Decimal
	Reason Reason

	// MinFulfillment is the gate that applied, if any.
	MinFulfillment *decimal.Decimal

	// Tier is the PxQ tier that paid.
	Tier *scheme.Tier

	// CeilingReached is set when a cap percentage limited the
	// fulfillment used in the formula.
	CeilingReached bool
}

// StrategyInput is what a category rule reads.
type StrategyInput struct {
	State                 ItemState
	DefaultMinFulfillment decimal.Decimal
	Locked                bool
	Restricted            bool
}

// CommissionStrategy computes the raw commission of item.
func CommissionStrategy(item scheme.Item, in StrategyInput) Commission {
	s := &strategy{in: in}
	item.Accept(s)
	return s.out
}

type strategy struct {
	in  StrategyInput
	out Commission
}

var _ scheme.ItemVisitor = (*strategy)(nil)

func (s *strategy) VisitPrincipal(p scheme.Principal) {
	s.variableShare(p.ItemBase)
}

func (s *strategy) VisitAdditional(a scheme.Additional) {
	s.variableShare(a.ItemBase)
}

func (s *strategy) VisitPxQ(x scheme.PxQ) {
	if s.gated() {
		return
	}
	f := s.in.State.Fulfillment
	if x.MinFulfillment != nil {
		s.out.MinFulfillment = x.MinFulfillment
		if f.LessThan(*x.MinFulfillment) {
			s.zero(ReasonBelowMinimum)
			return
		}
	}

	tier, ok := x.TierFor(f)
	if !ok {
		s.zero(ReasonBelowTier)
		return
	}
	s.out.Tier = &tier
	s.out.Amount = decimal.NewFromInt(s.in.State.Eligible).
		Mul(tier.AmountPerUnit).
		Mul(x.Mix())
}

func (s *strategy) VisitBonus(b scheme.Bonus) {
	if s.gated() {
		return
	}
	if s.in.State.Target.IsPositive() && s.in.State.Fulfillment.LessThan(scheme.One) {
		s.zero(ReasonTargetNotReached)
		return
	}
	s.out.Amount = b.NominalAmount()
}

// variableShare is the principal/additional rule.
func (s *strategy) variableShare(b scheme.ItemBase) {
	if s.gated() {
		return
	}

	gate := s.in.DefaultMinFulfillment
	if b.MinFulfillment != nil {
		gate = *b.MinFulfillment
	}
	s.out.MinFulfillment = &gate

	f := s.in.State.Fulfillment
	if f.LessThan(gate) {
		s.zero(ReasonBelowMinimum)
		return
	}

	ceil := scheme.One
	fromCap := b.Cap.Enabled && b.Cap.Percentage != nil
	if fromCap {
		ceil = *b.Cap.Percentage
	}
	if f.GreaterThan(ceil) {
		f = ceil
		s.out.CeilingReached = fromCap
	}
	s.out.Amount = b.NominalAmount().Mul(f)
}

func (s *strategy) gated() bool {
	switch {
	case s.in.Locked:
		s.zero(ReasonLocked)
	case s.in.Restricted:
		s.zero(ReasonRestricted)
	default:
		return false
	}
	return true
}

func (s *strategy) zero(r Reason) {
	s.out.Amount = decimal.Zero
	s.out.Reason = r
}
