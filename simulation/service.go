/*
Package simulation resolves evaluation requests and runs them through
the engine, locally or on the remote evaluator.

PURPOSE:
  The engine is pure and takes a complete snapshot. Everything it can't
  know (which quota applies, how far into the month the advisor started,
  store totals, incident penalties) is looked up here first.

CALL SITES:
  ┌──────────────┐        ┌──────────┐
  │ /api/simulate│──────▶ │ Fallback │──▶ remote.Client ──✗──┐
  └──────────────┘        └──────────┘                       │
                                │                            ▼
  ┌──────────────┐              └───────────────────────▶ Local ──▶ engine.Evaluate
  │ /api/evaluate│──────────────────────────────────────▶   ▲
  │ payroll runs │──────────────────────────────────────────┘
  └──────────────┘

SEE ALSO:
  - wire.go: Request / Response
  - fallback.go: Remote-first evaluation
*/
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/observability/metrics"
	"github.com/warp/commission-engine/penalty"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/telecom"
)

// Evaluator turns a request into an evaluated commission. Local, Fallback
// and remote.Client implement it.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (*Response, error)
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolved is a request with every collaborator lookup done.
type Resolved struct {
	Scheme    scheme.Scheme
	Advisor   *scheme.Advisor
	Input     engine.Input
	Penalties penalty.Prediction
}

// Local evaluates in process against the repository.
type Local struct {
	Repo    scheme.Repository
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewLocal creates a local evaluator. A nil logger discards output.
func NewLocal(repo scheme.Repository, logger *zap.Logger, m *metrics.Metrics) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{Repo: repo, Logger: logger, Metrics: m}
}

// Resolve looks up the scheme, advisor, quota, sales, scope totals and
// penalties a request needs.
func (l *Local) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sc, err := l.Repo.GetScheme(ctx, scheme.SchemeID(req.SchemeID))
	if err != nil {
		return nil, err
	}
	r := &Resolved{Scheme: *sc, Input: engine.Input{Scheme: *sc, PredictedPenalties: decimal.Zero}}

	if req.UserID != "" {
		a, err := l.Repo.GetAdvisor(ctx, scheme.AdvisorID(req.UserID))
		switch {
		case err == nil:
			r.Advisor = a
		case errors.Is(err, scheme.ErrAdvisorNotFound) && req.HasCounts():
			// What-if simulations may name advisors this instance doesn't know.
			l.Logger.Debug("simulating for unknown advisor", zap.String("user_id", req.UserID))
		default:
			return nil, err
		}
	}

	if r.Input.Sales, err = l.sales(ctx, req, r); err != nil {
		return nil, err
	}
	if r.Input.Quota, err = l.quota(ctx, req, r); err != nil {
		return nil, err
	}
	if r.Input.Aggregates, err = l.aggregates(ctx, req, r); err != nil {
		return nil, err
	}

	if req.IncludePenalties && r.Advisor != nil {
		pred, err := (&penalty.Predictor{Incidents: l.Repo}).Predict(ctx, r.Advisor.ID, sc.Period)
		if err != nil {
			return nil, err
		}
		r.Penalties = pred
		r.Input.PredictedPenalties = pred.Total
		if len(pred.MissingCodes) > 0 {
			l.Logger.Warn("incident codes without transfer equivalence",
				zap.String("user_id", req.UserID),
				zap.Strings("codes", pred.MissingCodes),
			)
		}
	}
	return r, nil
}

func (l *Local) sales(ctx context.Context, req Request, r *Resolved) (scheme.SalesSnapshot, error) {
	switch {
	case req.SalesData != nil:
		return req.Snapshot(), nil
	case len(req.Sales) > 0:
		return telecom.Aggregate(r.Scheme, req.Records()), nil
	case r.Advisor != nil:
		records, err := l.Repo.ListSales(ctx, r.Advisor.ID, r.Scheme.Period)
		if err != nil {
			return scheme.SalesSnapshot{}, fmt.Errorf("load sales for %s: %w", r.Advisor.ID, err)
		}
		return telecom.Aggregate(r.Scheme, records), nil
	default:
		return scheme.NewSalesSnapshot(), nil
	}
}

// quota returns nil when nothing was supplied or distributed; item
// quotas are then used unprorated.
func (l *Local) quota(ctx context.Context, req Request, r *Resolved) (*engine.EffectiveQuota, error) {
	if req.HCQuota != nil {
		eq := req.HCQuota.Effective()
		return &eq, nil
	}
	if r.Advisor == nil {
		return nil, nil
	}

	q, err := l.Repo.GetQuota(ctx, r.Advisor.ID, r.Scheme.Period)
	if errors.Is(err, scheme.ErrQuotaNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if q.TenureStart == nil {
		q.TenureStart = r.Advisor.TenureStart
	}
	eq, err := engine.Prorate(*q, r.Scheme.Period)
	if err != nil {
		return nil, err
	}
	return &eq, nil
}

func (l *Local) aggregates(ctx context.Context, req Request, r *Resolved) (scheme.ScopeAggregates, error) {
	if req.Aggregates != nil {
		return req.Aggregates.ScopeAggregates(), nil
	}
	needStore, needGlobal := scopesReferenced(r.Scheme)
	if r.Advisor == nil || (!needStore && !needGlobal) {
		return scheme.ScopeAggregates{}, nil
	}

	var store, global telecom.ScopeSales
	var err error
	if needStore {
		if store, err = l.scopeSales(ctx, r.Scheme.Period, r.Advisor.StoreID); err != nil {
			return scheme.ScopeAggregates{}, err
		}
	}
	if needGlobal {
		if global, err = l.scopeSales(ctx, r.Scheme.Period, ""); err != nil {
			return scheme.ScopeAggregates{}, err
		}
	}
	return telecom.ScopeAggregates(r.Scheme, store, global), nil
}

func (l *Local) scopeSales(ctx context.Context, p scheme.Period, storeID scheme.StoreID) (telecom.ScopeSales, error) {
	records, err := l.Repo.ListScopeSales(ctx, p, storeID)
	if err != nil {
		return telecom.ScopeSales{}, fmt.Errorf("load scope sales: %w", err)
	}
	quota, err := l.Repo.SumQuotas(ctx, p, storeID)
	if err != nil {
		return telecom.ScopeSales{}, fmt.Errorf("sum scope quotas: %w", err)
	}
	return telecom.ScopeSales{Records: records, Quota: quota}, nil
}

func scopesReferenced(s scheme.Scheme) (store, global bool) {
	for _, r := range s.Restrictions {
		if !r.Active {
			continue
		}
		switch r.Scope {
		case scheme.ScopeStore:
			store = true
		case scheme.ScopeGlobal:
			global = true
		}
	}
	return store, global
}

// =============================================================================
// LOCAL EVALUATION
// =============================================================================

// Evaluate resolves the request and runs the engine in process.
func (l *Local) Evaluate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	r, err := l.Resolve(ctx, req)
	if err != nil {
		l.Metrics.IncEvaluationError(SourceLocal)
		return nil, err
	}

	res := engine.Evaluate(r.Input)
	resp := FromResult(res)
	resp.EvaluationID = uuid.NewString()
	resp.UserID = req.UserID
	resp.Period = r.Scheme.Period.String()
	resp.Source = SourceLocal
	for _, line := range r.Penalties.Lines {
		resp.Penalties = append(resp.Penalties, PenaltyLineDTO{
			Code:   line.Code,
			Count:  line.Count,
			Unit:   line.Unit.InexactFloat64(),
			Amount: money(line.Amount),
		})
	}

	for _, w := range res.Warnings {
		l.Metrics.AddWarning(string(w.Code))
		l.Logger.Warn("scheme configuration skipped",
			zap.String("evaluation_id", resp.EvaluationID),
			zap.String("scheme_id", req.SchemeID),
			zap.String("code", string(w.Code)),
			zap.String("item_key", string(w.ItemKey)),
			zap.String("source", w.Source),
			zap.String("message", w.Message),
		)
	}
	l.Metrics.ObserveEvaluation(SourceLocal, false, time.Since(start))
	return &resp, nil
}
