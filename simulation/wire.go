/*
wire.go - Evaluation request and response contract

PURPOSE:
  The JSON contract shared by every evaluation call site: the HTTP API,
  the remote evaluator client and stored payroll results. Both the local
  and remote evaluators take a Request and return a Response, so the
  caller can't tell them apart except by Source.

REQUEST SHAPES:
  Counts are given one of three ways, checked in this order:
    1. salesData (+ planSales / operatorSales breakdowns) per item key
    2. sales: raw sale lines, folded with the scheme's sale-type mappings
    3. neither: the stored sales of userId for the scheme's period

RESPONSE:
  Amounts are float64 rounded to 2 places. Details follow display order.

SEE ALSO:
  - service.go: Resolves a Request into engine.Input
  - remote/client.go: Sends a Request over HTTP
*/
package simulation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// REQUEST
// =============================================================================

// Request asks for one advisor's commission under one scheme.
type Request struct {
	SchemeID string `json:"schemeId"`

	SalesData     map[string]int64            `json:"salesData,omitempty"`
	PlanSales     map[string]map[string]int64 `json:"planSales,omitempty"`
	OperatorSales map[string]map[string]int64 `json:"operatorSales,omitempty"`
	Sales         []SaleLine                  `json:"sales,omitempty"`

	IncludePenalties bool   `json:"includePenalties"`
	UserID           string `json:"userId,omitempty"`

	// HCQuota is a precomputed effective quota. When absent the advisor's
	// distributed quota is prorated by tenure.
	HCQuota *QuotaInput `json:"hcQuota,omitempty"`

	// Aggregates overrides the store/global totals read from the store.
	Aggregates *AggregatesInput `json:"aggregates,omitempty"`
}

// SaleLine is one raw sale line.
type SaleLine struct {
	SaleType     string `json:"saleType"`
	PlanCode     string `json:"planCode,omitempty"`
	OperatorCode string `json:"operatorCode,omitempty"`
	Lines        int64  `json:"lines"`
	Equipment    int64  `json:"equipment"`
}

// QuotaInput is an effective quota supplied by the caller.
type QuotaInput struct {
	BaseQuota       float64            `json:"baseQuota"`
	ProrationFactor float64            `json:"prorationFactor"`
	EffectiveQuota  float64            `json:"effectiveQuota"`
	Breakdown       map[string]float64 `json:"breakdown,omitempty"`
}

// AggregatesInput carries store and company totals keyed the way the
// restrictions name them: "plan:<code>" or "operator:<code>", suffixed
// with "@<itemKey>" for item-scoped restrictions.
type AggregatesInput struct {
	Store  map[string]AggregateInput `json:"store,omitempty"`
	Global map[string]AggregateInput `json:"global,omitempty"`
}

type AggregateInput struct {
	Units int64   `json:"units"`
	Quota float64 `json:"quota"`
}

// Validate rejects requests the engine must never see.
func (r Request) Validate() error {
	if r.SchemeID == "" {
		return fmt.Errorf("%w: schemeId is required", scheme.ErrInvalidRequest)
	}
	for key, n := range r.SalesData {
		if n < 0 {
			return fmt.Errorf("%w: negative count %d for %s", scheme.ErrInvalidRequest, n, key)
		}
	}
	for _, breakdown := range []map[string]map[string]int64{r.PlanSales, r.OperatorSales} {
		for key, codes := range breakdown {
			for code, n := range codes {
				if n < 0 {
					return fmt.Errorf("%w: negative count %d for %s/%s", scheme.ErrInvalidRequest, n, key, code)
				}
			}
		}
	}
	for i, l := range r.Sales {
		if l.Lines < 0 || l.Equipment < 0 {
			return fmt.Errorf("%w: negative quantity on sale line %d", scheme.ErrInvalidRequest, i)
		}
	}
	if q := r.HCQuota; q != nil && (q.ProrationFactor < 0 || q.ProrationFactor > 1) {
		return fmt.Errorf("%w: proration factor %v outside [0, 1]", scheme.ErrInvalidRequest, q.ProrationFactor)
	}
	return nil
}

// HasCounts reports whether the request carries its own sales.
func (r Request) HasCounts() bool {
	return r.SalesData != nil || len(r.Sales) > 0
}

// Snapshot converts the per-item counts into a sales snapshot.
func (r Request) Snapshot() scheme.SalesSnapshot {
	snap := scheme.NewSalesSnapshot()
	for key, n := range r.SalesData {
		snap.Units[scheme.ItemKey(key)] = n
	}
	copyBreakdown(snap.ByPlan, r.PlanSales)
	copyBreakdown(snap.ByOperator, r.OperatorSales)
	return snap
}

// Records converts raw sale lines into scheme records.
func (r Request) Records() []scheme.SaleRecord {
	out := make([]scheme.SaleRecord, len(r.Sales))
	for i, l := range r.Sales {
		out[i] = scheme.SaleRecord{
			SaleType:     l.SaleType,
			PlanCode:     l.PlanCode,
			OperatorCode: l.OperatorCode,
			Lines:        l.Lines,
			Equipment:    l.Equipment,
		}
	}
	return out
}

func copyBreakdown(dst map[scheme.ItemKey]map[string]int64, src map[string]map[string]int64) {
	for key, codes := range src {
		m := make(map[string]int64, len(codes))
		for code, n := range codes {
			m[code] = n
		}
		dst[scheme.ItemKey(key)] = m
	}
}

// Effective converts the supplied quota. A zero proration factor is
// read as unprorated.
func (q QuotaInput) Effective() engine.EffectiveQuota {
	eq := engine.EffectiveQuota{
		BaseQuota:       decimal.NewFromFloat(q.BaseQuota),
		ProrationFactor: decimal.NewFromFloat(q.ProrationFactor),
		EffectiveQuota:  decimal.NewFromFloat(q.EffectiveQuota),
		Breakdown:       make(map[string]decimal.Decimal, len(q.Breakdown)),
	}
	if q.ProrationFactor == 0 {
		eq.ProrationFactor = scheme.One
	}
	if q.EffectiveQuota == 0 {
		eq.EffectiveQuota = eq.Scale(eq.BaseQuota)
	}
	for metric, v := range q.Breakdown {
		eq.Breakdown[metric] = decimal.NewFromFloat(v)
	}
	return eq
}

// ScopeAggregates converts the supplied totals.
func (a AggregatesInput) ScopeAggregates() scheme.ScopeAggregates {
	convert := func(in map[string]AggregateInput) map[string]scheme.AggregateUnits {
		out := make(map[string]scheme.AggregateUnits, len(in))
		for key, v := range in {
			out[key] = scheme.AggregateUnits{Units: v.Units, Quota: decimal.NewFromFloat(v.Quota)}
		}
		return out
	}
	return scheme.ScopeAggregates{Store: convert(a.Store), Global: convert(a.Global)}
}

// =============================================================================
// RESPONSE
// =============================================================================

// Evaluation sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Response is one evaluated commission.
type Response struct {
	EvaluationID string `json:"evaluationId"`
	SchemeID     string `json:"schemeId"`
	UserID       string `json:"userId,omitempty"`
	Period       string `json:"period,omitempty"`

	// Source is "local" or "remote". Estimate is true when a local
	// evaluation stood in for a failed remote one.
	Source   string `json:"source"`
	Estimate bool   `json:"estimate"`

	FixedSalary          float64 `json:"fixedSalary"`
	VariableCommission   float64 `json:"variableCommission"`
	AdditionalCommission float64 `json:"additionalCommission"`
	PxQCommission        float64 `json:"pxqCommission"`
	BonusCommission      float64 `json:"bonusCommission"`
	TotalCommission      float64 `json:"totalCommission"`
	TotalNet             float64 `json:"totalNet"`
	PredictedPenalties   float64 `json:"predictedPenalties"`

	ProrationFactor      float64 `json:"prorationFactor"`
	AggregateFulfillment float64 `json:"aggregateFulfillment"`

	Details   []DetailDTO      `json:"details"`
	Penalties []PenaltyLineDTO `json:"penalties,omitempty"`
	Warnings  []WarningDTO     `json:"warnings,omitempty"`
}

// DetailDTO is the per-item breakdown.
type DetailDTO struct {
	ItemKey            string           `json:"itemKey"`
	Name               string           `json:"name,omitempty"`
	Category           string           `json:"category"`
	Target             float64          `json:"target"`
	Sold               int64            `json:"sold"`
	Eligible           int64            `json:"eligible"`
	Fulfillment        float64          `json:"fulfillment"`
	FulfillmentPct     float64          `json:"fulfillmentPct"`
	MinFulfillment     *float64         `json:"minFulfillment,omitempty"`
	Locked             bool             `json:"locked"`
	Locks              []LockDTO        `json:"locks,omitempty"`
	RestrictionApplied bool             `json:"restrictionApplied"`
	Restrictions       []RestrictionDTO `json:"restrictions,omitempty"`
	Tier               *TierDTO         `json:"tier,omitempty"`
	Capped             bool             `json:"capped"`
	RawAmount          float64          `json:"rawAmount"`
	Amount             float64          `json:"amount"`
	Reason             string           `json:"reason,omitempty"`
}

type LockDTO struct {
	Type         string  `json:"type"`
	RequiredItem string  `json:"requiredItem,omitempty"`
	Threshold    float64 `json:"threshold"`
	Actual       float64 `json:"actual"`
	Passed       bool    `json:"passed"`
	Skipped      bool    `json:"skipped,omitempty"`
}

type RestrictionDTO struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Scope    string `json:"scope"`
	Code     string `json:"code"`
	Units    int64  `json:"units"`
	Excluded int64  `json:"excluded"`
	Met      bool   `json:"met"`
	Blocking bool   `json:"blocking,omitempty"`
}

type TierDTO struct {
	Min           float64  `json:"min"`
	Max           *float64 `json:"max,omitempty"`
	AmountPerUnit float64  `json:"amountPerUnit"`
}

type PenaltyLineDTO struct {
	Code   string  `json:"code"`
	Count  int64   `json:"count"`
	Unit   float64 `json:"unit"`
	Amount float64 `json:"amount"`
}

type WarningDTO struct {
	Code    string `json:"code"`
	ItemKey string `json:"itemKey,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// FromResult converts an engine result into the wire response.
func FromResult(res engine.Result) Response {
	resp := Response{
		SchemeID:             string(res.SchemeID),
		FixedSalary:          money(res.FixedSalary),
		VariableCommission:   money(res.VariableCommission),
		AdditionalCommission: money(res.AdditionalCommission),
		PxQCommission:        money(res.PxQCommission),
		BonusCommission:      money(res.BonusCommission),
		TotalCommission:      money(res.TotalCommission()),
		TotalNet:             money(res.TotalNet),
		PredictedPenalties:   money(res.PredictedPenalties),
		ProrationFactor:      res.ProrationFactor.InexactFloat64(),
		AggregateFulfillment: res.AggregateFulfillment.Round(4).InexactFloat64(),
		Details:              make([]DetailDTO, 0, len(res.Details)),
	}

	for _, d := range res.Details {
		dto := DetailDTO{
			ItemKey:            string(d.ItemKey),
			Name:               d.Name,
			Category:           string(d.Category),
			Target:             d.Target.InexactFloat64(),
			Sold:               d.Sold,
			Eligible:           d.Eligible,
			Fulfillment:        d.Fulfillment.Round(4).InexactFloat64(),
			FulfillmentPct:     d.FulfillmentPct.InexactFloat64(),
			MinFulfillment:     floatPtr(d.MinFulfillment),
			Locked:             d.Locked,
			RestrictionApplied: d.RestrictionApplied,
			Capped:             d.Capped,
			RawAmount:          money(d.RawAmount),
			Amount:             money(d.Amount),
			Reason:             string(d.Reason),
		}
		for _, l := range d.Locks {
			dto.Locks = append(dto.Locks, LockDTO{
				Type:         string(l.Type),
				RequiredItem: string(l.RequiredItem),
				Threshold:    l.Threshold.InexactFloat64(),
				Actual:       l.Actual.Round(4).InexactFloat64(),
				Passed:       l.Passed,
				Skipped:      l.Skipped,
			})
		}
		for _, o := range d.Restrictions {
			dto.Restrictions = append(dto.Restrictions, RestrictionDTO{
				ID:       o.RestrictionID,
				Type:     string(o.Type),
				Scope:    string(o.Scope),
				Code:     o.Code,
				Units:    o.Units,
				Excluded: o.Excluded,
				Met:      o.Met,
				Blocking: o.Blocking,
			})
		}
		if d.Tier != nil {
			dto.Tier = &TierDTO{
				Min:           d.Tier.Min.InexactFloat64(),
				Max:           floatPtr(d.Tier.Max),
				AmountPerUnit: d.Tier.AmountPerUnit.InexactFloat64(),
			}
		}
		resp.Details = append(resp.Details, dto)
	}

	for _, w := range res.Warnings {
		resp.Warnings = append(resp.Warnings, WarningDTO{
			Code:    string(w.Code),
			ItemKey: string(w.ItemKey),
			Source:  w.Source,
			Message: w.Message,
		})
	}
	return resp
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
