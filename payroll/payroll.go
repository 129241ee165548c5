/*
Package payroll runs the official monthly commission computation.

PURPOSE:
  Closes a month: every active advisor is evaluated against the approved
  scheme of their type for the period, and the responses are stored per
  run so payroll and advisors read the same frozen numbers.

FLOW:
  1. Record the run as running
  2. Load approved schemes for the period, one per scheme type
  3. Evaluate active advisors with bounded concurrency
  4. Store one AdvisorResult per advisor, success or not
  5. Record the run as completed, completed_with_errors or failed

  A failing advisor never stops the run; only store failures do.

SEE ALSO:
  - simulation/service.go: The evaluator each advisor goes through
  - api/scheduler.go: Triggers the run for the previous month
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/commission-engine/observability/metrics"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
)

// =============================================================================
// RUNS AND RESULTS
// =============================================================================

type Status string

const (
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Run is one payroll computation for a period.
type Run struct {
	ID         string
	Period     scheme.Period
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time

	Advisors  int
	Completed int
	Failed    int
	Skipped   int

	TotalNet decimal.Decimal
	Error    string
}

// AdvisorResult is one advisor's stored outcome within a run.
type AdvisorResult struct {
	RunID     string
	AdvisorID scheme.AdvisorID
	SchemeID  scheme.SchemeID
	Period    scheme.Period

	// Response is nil when the evaluation failed or was skipped.
	Response  *simulation.Response
	Error     string
	CreatedAt time.Time
}

// OK reports whether the advisor was evaluated.
func (r AdvisorResult) OK() bool { return r.Response != nil }

// RunStore persists payroll runs and their results.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	// GetRun returns ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns runs newest first, all periods when period is nil.
	ListRuns(ctx context.Context, period *scheme.Period) ([]Run, error)

	SaveResults(ctx context.Context, results []AdvisorResult) error
	ListResults(ctx context.Context, runID string) ([]AdvisorResult, error)
	// LatestResult returns the advisor's result from the most recent
	// completed run of the period, or ErrRunNotFound.
	LatestResult(ctx context.Context, advisorID scheme.AdvisorID, period scheme.Period) (*AdvisorResult, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// DefaultWorkers bounds concurrent evaluations when Workers is unset.
const DefaultWorkers = 4

// Service runs payroll for a period.
type Service struct {
	Repo      scheme.Repository
	Runs      RunStore
	Evaluator simulation.Evaluator
	Workers   int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// Now is overridable for tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Run computes and stores commissions for every active advisor.
func (s *Service) Run(ctx context.Context, period scheme.Period) (*Run, error) {
	start := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Period:    period,
		Status:    StatusRunning,
		StartedAt: s.now(),
		TotalNet:  decimal.Zero,
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record payroll run: %w", err)
	}
	log := s.logger().With(zap.String("run_id", run.ID), zap.String("period", period.String()))
	log.Info("payroll run started")

	results, err := s.evaluateAll(ctx, run)
	if err == nil {
		err = s.Runs.SaveResults(ctx, results)
	}
	finished := s.now()
	run.FinishedAt = &finished

	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		if serr := s.Runs.SaveRun(ctx, run); serr != nil {
			log.Error("record failed payroll run", zap.Error(serr))
		}
		s.Metrics.ObservePayrollRun(metrics.RunFailed, 0, 0, time.Since(start))
		log.Error("payroll run failed", zap.Error(err))
		return &run, err
	}

	run.Advisors = len(results)
	for _, r := range results {
		switch {
		case r.OK():
			run.Completed++
			run.TotalNet = run.TotalNet.Add(decimal.NewFromFloat(r.Response.TotalNet))
		case r.SchemeID == "":
			run.Skipped++
		default:
			run.Failed++
		}
	}
	run.Status = StatusCompleted
	if run.Failed > 0 {
		run.Status = StatusCompletedWithErrors
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record payroll run: %w", err)
	}

	s.Metrics.ObservePayrollRun(metrics.RunCompleted, run.Completed, run.Failed, time.Since(start))
	log.Info("payroll run finished",
		zap.String("status", string(run.Status)),
		zap.Int("completed", run.Completed),
		zap.Int("failed", run.Failed),
		zap.Int("skipped", run.Skipped),
		zap.String("total_net", run.TotalNet.StringFixed(2)),
	)
	return &run, nil
}

// evaluateAll returns results in advisor order. Per-advisor errors are
// recorded on the result; only lookups that affect every advisor fail.
func (s *Service) evaluateAll(ctx context.Context, run Run) ([]AdvisorResult, error) {
	schemes, err := s.approvedSchemes(ctx, run.Period)
	if err != nil {
		return nil, err
	}
	advisors, err := s.Repo.ListAdvisors(ctx, scheme.AdvisorFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list advisors: %w", err)
	}

	results := make([]AdvisorResult, len(advisors))
	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, a := range advisors {
		i, a := i, a
		g.Go(func() error {
			results[i] = s.evaluateOne(gctx, run, a, schemes)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) evaluateOne(ctx context.Context, run Run, a scheme.Advisor, schemes map[scheme.SchemeType]scheme.SchemeID) AdvisorResult {
	res := AdvisorResult{
		RunID:     run.ID,
		AdvisorID: a.ID,
		Period:    run.Period,
		CreatedAt: s.now(),
	}

	id, ok := schemes[a.SchemeType]
	if !ok {
		res.Error = fmt.Sprintf("no approved %s scheme for %s", a.SchemeType, run.Period)
		return res
	}
	res.SchemeID = id

	resp, err := s.Evaluator.Evaluate(ctx, simulation.Request{
		SchemeID:         string(id),
		UserID:           string(a.ID),
		IncludePenalties: true,
	})
	if err != nil {
		s.logger().Warn("advisor evaluation failed",
			zap.String("run_id", run.ID),
			zap.String("advisor_id", string(a.ID)),
			zap.Error(err),
		)
		res.Error = err.Error()
		return res
	}
	res.Response = resp
	return res
}

func (s *Service) approvedSchemes(ctx context.Context, p scheme.Period) (map[scheme.SchemeType]scheme.SchemeID, error) {
	list, err := s.Repo.ListSchemes(ctx, scheme.SchemeFilter{Period: &p, Status: scheme.StatusApproved})
	if err != nil {
		return nil, fmt.Errorf("list approved schemes: %w", err)
	}
	out := make(map[scheme.SchemeType]scheme.SchemeID, len(list))
	for _, sc := range list {
		out[sc.Type] = sc.ID
	}
	return out, nil
}
