package simulation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/commission-engine/observability/metrics"
	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// FALLBACK - Remote first, local on failure
// =============================================================================

// Fallback asks the remote evaluator first and substitutes the local
// evaluation when it fails. A substituted response is tagged
// Source "local", Estimate true. With no remote configured the local
// response is returned as is.
type Fallback struct {
	Remote  Evaluator
	Local   Evaluator
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Evaluate implements Evaluator.
func (f *Fallback) Evaluate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.Remote == nil {
		return f.Local.Evaluate(ctx, req)
	}

	start := time.Now()
	resp, err := f.Remote.Evaluate(ctx, req)
	if err == nil {
		resp.Source = SourceRemote
		resp.Estimate = false
		f.Metrics.ObserveEvaluation(SourceRemote, false, time.Since(start))
		return resp, nil
	}
	if errors.Is(err, scheme.ErrRemoteNotConfigured) {
		return f.Local.Evaluate(ctx, req)
	}

	f.logger().Warn("remote evaluation failed, using local estimate",
		zap.String("scheme_id", req.SchemeID),
		zap.String("user_id", req.UserID),
		zap.Error(err),
	)
	f.Metrics.IncEvaluationError(SourceRemote)
	f.Metrics.IncRemoteFallback()

	local, err := f.Local.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	local.Source = SourceLocal
	local.Estimate = true
	return local, nil
}

func (f *Fallback) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
