/*
Package penalty predicts the penalties an advisor will be charged for a
period.

RULE:
  predicted = Σ count × equivalence(code)   over non-condoned incidents

  Incident codes without a configured transfer equivalence contribute
  nothing and are reported in MissingCodes so the back office can
  configure them.

The prediction is shown next to the commission, never subtracted from it.

SEE ALSO:
  - scheme/types.go: Incident, TransferEquivalence
  - simulation/service.go: Attaches the prediction to evaluations
*/
package penalty

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
)

// Line is the predicted penalty for one incident code.
type Line struct {
	Code   string
	Count  int64
	Unit   decimal.Decimal
	Amount decimal.Decimal
}

// Prediction is the penalty forecast for an advisor and period.
type Prediction struct {
	Total        decimal.Decimal
	Lines        []Line
	MissingCodes []string
}

// Compute folds incidents into a prediction. Lines are ordered by code.
func Compute(incidents []scheme.Incident, equivalences []scheme.TransferEquivalence) Prediction {
	units := make(map[string]decimal.Decimal, len(equivalences))
	for _, eq := range equivalences {
		units[eq.Code] = eq.Amount
	}

	counts := make(map[string]int64)
	for _, inc := range incidents {
		if inc.Condoned || inc.Count <= 0 {
			continue
		}
		counts[inc.Code] += inc.Count
	}

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	p := Prediction{Total: decimal.Zero}
	for _, code := range codes {
		unit, ok := units[code]
		if !ok {
			p.MissingCodes = append(p.MissingCodes, code)
			continue
		}
		amount := unit.Mul(decimal.NewFromInt(counts[code]))
		p.Lines = append(p.Lines, Line{Code: code, Count: counts[code], Unit: unit, Amount: amount})
		p.Total = p.Total.Add(amount)
	}
	p.Total = p.Total.Round(2)
	return p
}

// Predictor reads incidents and equivalences from the store.
type Predictor struct {
	Incidents scheme.IncidentStore
}

// Predict computes the prediction for one advisor and period.
func (p *Predictor) Predict(ctx context.Context, advisorID scheme.AdvisorID, period scheme.Period) (Prediction, error) {
	incidents, err := p.Incidents.ListIncidents(ctx, advisorID, period)
	if err != nil {
		return Prediction{}, fmt.Errorf("list incidents for %s: %w", advisorID, err)
	}
	eqs, err := p.Incidents.ListEquivalences(ctx)
	if err != nil {
		return Prediction{}, fmt.Errorf("list transfer equivalences: %w", err)
	}
	return Compute(incidents, eqs), nil
}
