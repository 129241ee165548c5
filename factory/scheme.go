/*
Package factory provides JSON to Go scheme conversion.

PURPOSE:
  Converts JSON scheme definitions into scheme.Scheme values with their
  sum-typed items and locks, and back. The admin editor, the stores and
  the presets all speak this JSON; the rest of the code only sees the
  typed model.

JSON SCHEMA:
  {
    "id": "store-2025-04",
    "name": "Store advisors April 2025",
    "type": "store_advisor",
    "year": 2025, "month": 4,
    "fixed_salary": 1025, "variable_salary": 600, "total_quota": 30,
    "default_min_fulfillment": 0.5,
    "items": [
      {
        "key": "postpaid", "category": "principal",
        "quota": 20, "weight": 0.6, "variable_amount": 360,
        "has_cap": true, "cap_percentage": 1.2,
        "sale_types": [{"code": "postpaid_line", "counts": "line"}],
        "locks": [{"type": "min_quantity", "required_item": "portability", "required_value": 2}]
      },
      {
        "key": "accessories", "category": "pxq", "quota": 10,
        "tiers": [
          {"min_fulfillment": 0,   "max_fulfillment": 0.5, "amount_per_unit": 2},
          {"min_fulfillment": 0.5, "amount_per_unit": 4}
        ]
      }
    ],
    "restrictions": [
      {"type": "max_percentage", "scope": "advisor", "plan_code": "unlimited_99", "threshold": 0.1}
    ]
  }

DEFAULTS:
  - status: draft
  - default_min_fulfillment: 0.5
  - is_active (items, restrictions): true
  - mix_factor: 1
  - restriction scope: advisor
  - sale-type counting mode: the registered default for the code

USAGE:
  f := factory.NewSchemeFactory()
  s, err := f.ParseScheme(data)

  // Presets from the domain package
  s, err := f.ParseScheme([]byte(telecom.StoreAdvisorSchemeJSON("store-2025-04", 2025, 4)))

SEE ALSO:
  - scheme/scheme.go: Scheme, Item and Lock definitions
  - telecom/presets.go: Preset scheme JSON
*/
package factory

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SchemeJSON is the JSON representation of a scheme.
type SchemeJSON struct {
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	Type                  string            `json:"type"`
	Year                  int               `json:"year"`
	Month                 int               `json:"month"`
	Status                string            `json:"status,omitempty"`
	FixedSalary           decimal.Decimal   `json:"fixed_salary"`
	VariableSalary        decimal.Decimal   `json:"variable_salary"`
	TotalQuota            decimal.Decimal   `json:"total_quota"`
	DefaultMinFulfillment *decimal.Decimal  `json:"default_min_fulfillment,omitempty"`
	Items                 []ItemJSON        `json:"items"`
	Restrictions          []RestrictionJSON `json:"restrictions,omitempty"`
	Version               int               `json:"version,omitempty"`
}

// ItemJSON is a flat item record; Category selects the variant.
type ItemJSON struct {
	ID             string           `json:"id,omitempty"`
	Key            string           `json:"key"`
	Name           string           `json:"name,omitempty"`
	Category       string           `json:"category"`
	DisplayOrder   int              `json:"display_order,omitempty"`
	Quota          decimal.Decimal  `json:"quota"`
	QuotaAmount    *decimal.Decimal `json:"quota_amount,omitempty"`
	QuotaMetric    string           `json:"quota_metric,omitempty"`
	UnitValue      decimal.Decimal  `json:"unit_value"`
	Weight         decimal.Decimal  `json:"weight"`
	MixFactor      *decimal.Decimal `json:"mix_factor,omitempty"`
	VariableAmount decimal.Decimal  `json:"variable_amount"`
	MinFulfillment *decimal.Decimal `json:"min_fulfillment,omitempty"`
	HasCap         bool             `json:"has_cap,omitempty"`
	CapPercentage  *decimal.Decimal `json:"cap_percentage,omitempty"`
	CapAmount      *decimal.Decimal `json:"cap_amount,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
	SaleTypes      []SaleTypeJSON   `json:"sale_types,omitempty"`
	Locks          []LockJSON       `json:"locks,omitempty"`
	Tiers          []TierJSON       `json:"tiers,omitempty"`
}

// SaleTypeJSON maps a raw sale code onto an item.
type SaleTypeJSON struct {
	Code   string `json:"code"`
	Counts string `json:"counts,omitempty"` // line, equipment
}

// LockJSON represents an item lock.
type LockJSON struct {
	Type          string          `json:"type"` // min_quantity, min_amount, min_percentage, min_fulfillment
	RequiredItem  string          `json:"required_item,omitempty"`
	RequiredValue decimal.Decimal `json:"required_value"`
}

// TierJSON represents a PxQ tier.
type TierJSON struct {
	MinFulfillment decimal.Decimal  `json:"min_fulfillment"`
	MaxFulfillment *decimal.Decimal `json:"max_fulfillment,omitempty"`
	AmountPerUnit  decimal.Decimal  `json:"amount_per_unit"`
}

// RestrictionJSON represents a scheme restriction.
type RestrictionJSON struct {
	ID           string          `json:"id,omitempty"`
	Type         string          `json:"type"`
	Scope        string          `json:"scope,omitempty"`
	PlanCode     string          `json:"plan_code,omitempty"`
	OperatorCode string          `json:"operator_code,omitempty"`
	Threshold    decimal.Decimal `json:"threshold"`
	ItemKey      string          `json:"item_key,omitempty"`
	Blocking     bool            `json:"blocking,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

// =============================================================================
// SCHEME FACTORY
// =============================================================================

// SchemeFactory converts JSON schemes to Go structs.
type SchemeFactory struct{}

// NewSchemeFactory creates a new scheme factory.
func NewSchemeFactory() *SchemeFactory {
	return &SchemeFactory{}
}

// ParseScheme parses JSON bytes into a Scheme.
func (f *SchemeFactory) ParseScheme(data []byte) (*scheme.Scheme, error) {
	var sj SchemeJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("%w: %v", scheme.ErrInvalidScheme, err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts SchemeJSON to scheme.Scheme.
func (f *SchemeFactory) FromJSON(sj SchemeJSON) (*scheme.Scheme, error) {
	period, err := scheme.NewPeriod(sj.Year, sj.Month)
	if err != nil {
		return nil, fmt.Errorf("%w: scheme %q: %v", scheme.ErrInvalidScheme, sj.ID, err)
	}

	status, err := parseStatus(sj.Status)
	if err != nil {
		return nil, err
	}

	s := &scheme.Scheme{
		ID:                    scheme.SchemeID(sj.ID),
		Name:                  sj.Name,
		Type:                  scheme.SchemeType(sj.Type),
		Period:                period,
		Status:                status,
		FixedSalary:           sj.FixedSalary,
		VariableSalary:        sj.VariableSalary,
		TotalQuota:            sj.TotalQuota,
		DefaultMinFulfillment: scheme.DefaultMinFulfillment,
		Version:               sj.Version,
	}
	if sj.DefaultMinFulfillment != nil {
		s.DefaultMinFulfillment = *sj.DefaultMinFulfillment
	}

	seen := make(map[string]bool, len(sj.Items))
	for i, ij := range sj.Items {
		if ij.Key == "" {
			return nil, invalid(sj.ID, "item %d has no key", i)
		}
		if seen[ij.Key] {
			return nil, invalid(sj.ID, "duplicate item key %q", ij.Key)
		}
		seen[ij.Key] = true

		item, err := parseItem(sj.ID, ij)
		if err != nil {
			return nil, err
		}
		s.Items = append(s.Items, item)
	}

	for i, rj := range sj.Restrictions {
		r, err := parseRestriction(sj.ID, i, rj)
		if err != nil {
			return nil, err
		}
		s.Restrictions = append(s.Restrictions, r)
	}

	return s, nil
}

func parseItem(schemeID string, ij ItemJSON) (scheme.Item, error) {
	category, ok := scheme.ParseCategory(ij.Category)
	if !ok {
		return nil, invalid(schemeID, "item %q: unknown category %q", ij.Key, ij.Category)
	}
	if name := negativeField(ij); name != "" {
		return nil, invalid(schemeID, "item %q: %s must not be negative", ij.Key, name)
	}

	base := scheme.ItemBase{
		ID:             ij.ID,
		Key:            scheme.ItemKey(ij.Key),
		Name:           ij.Name,
		DisplayOrder:   ij.DisplayOrder,
		Quota:          ij.Quota,
		QuotaAmount:    ij.QuotaAmount,
		QuotaMetric:    ij.QuotaMetric,
		UnitValue:      ij.UnitValue,
		Weight:         ij.Weight,
		MixFactor:      scheme.One,
		VariableAmount: ij.VariableAmount,
		MinFulfillment: ij.MinFulfillment,
		Cap: scheme.Cap{
			Enabled:    ij.HasCap,
			Percentage: ij.CapPercentage,
			Amount:     ij.CapAmount,
		},
		Active: ij.IsActive == nil || *ij.IsActive,
	}
	if base.Name == "" {
		base.Name = ij.Key
	}
	if ij.MixFactor != nil {
		base.MixFactor = *ij.MixFactor
	}

	for _, st := range ij.SaleTypes {
		counts, err := parseCountMode(st.Code, st.Counts)
		if err != nil {
			return nil, invalid(schemeID, "item %q: %v", ij.Key, err)
		}
		base.SaleTypes = append(base.SaleTypes, scheme.SaleTypeMapping{Code: st.Code, Counts: counts})
	}

	for _, lj := range ij.Locks {
		l, err := parseLock(lj)
		if err != nil {
			return nil, invalid(schemeID, "item %q: %v", ij.Key, err)
		}
		base.Locks = append(base.Locks, l)
	}

	if category != scheme.CategoryPxQ && len(ij.Tiers) > 0 {
		return nil, invalid(schemeID, "item %q: tiers are only valid on pxq items", ij.Key)
	}

	switch category {
	case scheme.CategoryPrincipal:
		return scheme.Principal{ItemBase: base}, nil
	case scheme.CategoryAdditional:
		return scheme.Additional{ItemBase: base}, nil
	case scheme.CategoryBonus:
		return scheme.Bonus{ItemBase: base}, nil
	default:
		if len(ij.Tiers) == 0 {
			return nil, invalid(schemeID, "pxq item %q has no tiers", ij.Key)
		}
		item := scheme.PxQ{ItemBase: base}
		for _, tj := range ij.Tiers {
			if tj.MinFulfillment.IsNegative() || tj.AmountPerUnit.IsNegative() {
				return nil, invalid(schemeID, "pxq item %q: tier values must not be negative", ij.Key)
			}
			if tj.MaxFulfillment != nil && !tj.MaxFulfillment.GreaterThan(tj.MinFulfillment) {
				return nil, invalid(schemeID, "pxq item %q: tier max %s not above min %s",
					ij.Key, tj.MaxFulfillment, tj.MinFulfillment)
			}
			item.Tiers = append(item.Tiers, scheme.Tier{
				Min:           tj.MinFulfillment,
				Max:           tj.MaxFulfillment,
				AmountPerUnit: tj.AmountPerUnit,
			})
		}
		return item, nil
	}
}

// negativeField returns the JSON name of the first negative amount, quota
// or ratio of an item, or "" when all are non-negative.
func negativeField(ij ItemJSON) string {
	fields := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"quota", &ij.Quota},
		{"quota_amount", ij.QuotaAmount},
		{"unit_value", &ij.UnitValue},
		{"weight", &ij.Weight},
		{"mix_factor", ij.MixFactor},
		{"variable_amount", &ij.VariableAmount},
		{"min_fulfillment", ij.MinFulfillment},
		{"cap_percentage", ij.CapPercentage},
		{"cap_amount", ij.CapAmount},
	}
	for _, f := range fields {
		if f.value != nil && f.value.IsNegative() {
			return f.name
		}
	}
	return ""
}

func parseLock(lj LockJSON) (scheme.Lock, error) {
	key := scheme.ItemKey(lj.RequiredItem)
	switch scheme.LockType(lj.Type) {
	case scheme.LockMinQuantity:
		return scheme.MinQuantity{RequiredItem: key, Value: lj.RequiredValue}, nil
	case scheme.LockMinAmount:
		return scheme.MinAmount{RequiredItem: key, Value: lj.RequiredValue}, nil
	case scheme.LockMinPercentage:
		return scheme.MinPercentage{RequiredItem: key, Value: lj.RequiredValue}, nil
	case scheme.LockMinFulfillment:
		return scheme.MinFulfillment{Value: lj.RequiredValue}, nil
	default:
		return nil, fmt.Errorf("unknown lock type %q", lj.Type)
	}
}

func parseRestriction(schemeID string, i int, rj RestrictionJSON) (scheme.Restriction, error) {
	r := scheme.Restriction{
		ID:           rj.ID,
		Type:         scheme.RestrictionType(rj.Type),
		Scope:        scheme.RestrictionScope(rj.Scope),
		PlanCode:     rj.PlanCode,
		OperatorCode: rj.OperatorCode,
		Threshold:    rj.Threshold,
		ItemKey:      scheme.ItemKey(rj.ItemKey),
		Blocking:     rj.Blocking,
		Active:       rj.IsActive == nil || *rj.IsActive,
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("%s-r%d", schemeID, i+1)
	}
	if r.Scope == "" {
		r.Scope = scheme.ScopeAdvisor
	}

	switch r.Type {
	case scheme.RestrictMaxPercentage, scheme.RestrictMaxQuantity,
		scheme.RestrictMinPercentage, scheme.RestrictOperatorOrigin:
	default:
		return r, invalid(schemeID, "restriction %s: unknown type %q", r.ID, rj.Type)
	}
	switch r.Scope {
	case scheme.ScopeAdvisor, scheme.ScopeStore, scheme.ScopeGlobal:
	default:
		return r, invalid(schemeID, "restriction %s: unknown scope %q", r.ID, rj.Scope)
	}
	if r.Threshold.IsNegative() {
		return r, invalid(schemeID, "restriction %s: negative threshold", r.ID)
	}
	return r, nil
}

func parseStatus(s string) (scheme.Status, error) {
	switch scheme.Status(s) {
	case "", scheme.StatusDraft:
		return scheme.StatusDraft, nil
	case scheme.StatusApproved, scheme.StatusArchived:
		return scheme.Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", scheme.ErrInvalidScheme, s)
	}
}

func parseCountMode(code, s string) (scheme.CountMode, error) {
	switch scheme.CountMode(s) {
	case "":
		return scheme.ResolveCountMode(code, ""), nil
	case scheme.CountLine, scheme.CountEquipment:
		return scheme.CountMode(s), nil
	default:
		return "", fmt.Errorf("sale type %q: unknown counting mode %q", code, s)
	}
}

func invalid(schemeID string, format string, args ...any) error {
	return fmt.Errorf("%w: scheme %q: %s", scheme.ErrInvalidScheme, schemeID, fmt.Sprintf(format, args...))
}

// =============================================================================
// SCHEME -> JSON
// =============================================================================

// ToJSON converts a Scheme back to its JSON representation.
func ToJSON(s scheme.Scheme) SchemeJSON {
	sj := SchemeJSON{
		ID:                    string(s.ID),
		Name:                  s.Name,
		Type:                  string(s.Type),
		Year:                  s.Period.Year,
		Month:                 int(s.Period.Month),
		Status:                string(s.Status),
		FixedSalary:           s.FixedSalary,
		VariableSalary:        s.VariableSalary,
		TotalQuota:            s.TotalQuota,
		DefaultMinFulfillment: scheme.DecimalPtr(s.DefaultMinFulfillment),
		Items:                 make([]ItemJSON, 0, len(s.Items)),
		Version:               s.Version,
	}

	for _, it := range s.Items {
		sj.Items = append(sj.Items, itemToJSON(it))
	}
	for _, r := range s.Restrictions {
		active := r.Active
		sj.Restrictions = append(sj.Restrictions, RestrictionJSON{
			ID:           r.ID,
			Type:         string(r.Type),
			Scope:        string(r.Scope),
			PlanCode:     r.PlanCode,
			OperatorCode: r.OperatorCode,
			Threshold:    r.Threshold,
			ItemKey:      string(r.ItemKey),
			Blocking:     r.Blocking,
			IsActive:     &active,
		})
	}
	return sj
}

// Marshal encodes a Scheme as JSON.
func Marshal(s scheme.Scheme) ([]byte, error) {
	return json.Marshal(ToJSON(s))
}

// itemEncoder is the ItemVisitor that fills variant-specific fields.
type itemEncoder struct {
	out ItemJSON
}

func (e *itemEncoder) VisitPrincipal(scheme.Principal)   {}
func (e *itemEncoder) VisitAdditional(scheme.Additional) {}
func (e *itemEncoder) VisitBonus(scheme.Bonus)           {}

func (e *itemEncoder) VisitPxQ(x scheme.PxQ) {
	for _, t := range x.Tiers {
		e.out.Tiers = append(e.out.Tiers, TierJSON{
			MinFulfillment: t.Min,
			MaxFulfillment: t.Max,
			AmountPerUnit:  t.AmountPerUnit,
		})
	}
}

func itemToJSON(it scheme.Item) ItemJSON {
	b := it.Base()
	active := b.Active
	mix := b.Mix()
	e := &itemEncoder{out: ItemJSON{
		ID:             b.ID,
		Key:            string(b.Key),
		Name:           b.Name,
		Category:       string(it.Category()),
		DisplayOrder:   b.DisplayOrder,
		Quota:          b.Quota,
		QuotaAmount:    b.QuotaAmount,
		QuotaMetric:    b.QuotaMetric,
		UnitValue:      b.UnitValue,
		Weight:         b.Weight,
		MixFactor:      &mix,
		VariableAmount: b.VariableAmount,
		MinFulfillment: b.MinFulfillment,
		HasCap:         b.Cap.Enabled,
		CapPercentage:  b.Cap.Percentage,
		CapAmount:      b.Cap.Amount,
		IsActive:       &active,
	}}

	for _, m := range b.SaleTypes {
		e.out.SaleTypes = append(e.out.SaleTypes, SaleTypeJSON{Code: m.Code, Counts: string(m.Counts)})
	}
	for _, l := range b.Locks {
		e.out.Locks = append(e.out.Locks, LockJSON{
			Type:          string(l.Type()),
			RequiredItem:  string(l.Required()),
			RequiredValue: l.Threshold(),
		})
	}

	it.Accept(e)
	return e.out
}
