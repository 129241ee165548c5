/*
Package scheme provides the commission scheme data model.

PURPOSE:
  This package contains the types every other package speaks: schemes,
  their commissionable items, the locks and restrictions attached to them,
  advisor quotas, sales records and incidents. It holds no evaluation
  logic; the engine package consumes these types as an immutable snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money / Ratio helpers over decimal.Decimal
  - Identifiers: SchemeID, ItemKey, AdvisorID, StoreID
  - Category: the four item categories (principal, additional, pxq, bonus)

DESIGN PRINCIPLES:
  1. Precision: every amount, quota and threshold is a decimal.Decimal
  2. Type Safety: distinct ID types prevent mixing advisors and stores
  3. Sum types: items and locks are sealed interfaces, one variant per kind
  4. Immutability: the engine never mutates a Scheme it is handed

USAGE:
  amount := scheme.Money(300)
  ratio := scheme.MustDecimal("0.5")

SEE ALSO:
  - scheme.go: Scheme, Item and Lock definitions
  - period.go: Year/month evaluation periods
  - engine/engine.go: Evaluation pipeline
*/
package scheme

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// Money returns a decimal for a currency amount given as an integer.
func Money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// Ratio returns a decimal for a ratio given as a float. Only use with
// literal values (tests, presets); parsed input goes through MustDecimal.
func Ratio(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// MustDecimal parses a decimal string, returning zero on malformed input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalPtr returns a pointer to d. Optional fields (caps, overrides)
// are modelled as *decimal.Decimal.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

var (
	// One is the 100% fulfillment ratio.
	One = decimal.NewFromInt(1)

	// DefaultMinFulfillment is used when a scheme leaves its fallback gate unset.
	DefaultMinFulfillment = decimal.RequireFromString("0.5")
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SchemeID string
type ItemKey string
type AdvisorID string
type StoreID string

// SchemeType identifies a family of schemes (e.g. "store_advisor",
// "corporate_advisor"). Exactly one scheme per (type, period) is approved.
type SchemeType string

// =============================================================================
// CATEGORY
// =============================================================================

// Category tags an item with the calculation rule that applies to it.
type Category string

const (
	CategoryPrincipal  Category = "principal"
	CategoryAdditional Category = "additional"
	CategoryPxQ        Category = "pxq"
	CategoryBonus      Category = "bonus"
)

// ParseCategory maps the stored category tag to a Category. The second
// return is false for unknown tags.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryPrincipal, CategoryAdditional, CategoryPxQ, CategoryBonus:
		return Category(s), true
	case "price_times_quantity", "price-times-quantity":
		return CategoryPxQ, true
	default:
		return "", false
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the scheme lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusArchived Status = "archived"
)
