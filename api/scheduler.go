/*
scheduler.go - Automated payroll scheduler

PURPOSE:
  Periodically checks whether the previous month has a completed payroll
  run and runs it when it doesn't. Commissions are paid for closed
  months, so the current month is never computed automatically.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips periods that already have a completed run (with or without
    per-advisor errors); failed runs are retried on the next tick
  - Runs are recorded by the payroll service for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active

USAGE:
  scheduler := api.NewPayrollScheduler(store, service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerPayrollRun endpoint (manual run)
  - payroll/payroll.go: Service
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
)

// RunLister reads past payroll runs.
type RunLister interface {
	ListRuns(ctx context.Context, period *scheme.Period) ([]payroll.Run, error)
}

// PayrollScheduler runs payroll for closed months.
type PayrollScheduler struct {
	Runs          RunLister
	Payroll       PayrollRunner
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	// Now is overridable for tests.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(runs RunLister, runner PayrollRunner, logger *zap.Logger) *PayrollScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayrollScheduler{
		Runs:          runs,
		Payroll:       runner,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Logger.Info("disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)
	go ps.run()

	ps.Logger.Info("started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker == nil {
		return
	}
	ps.ticker.Stop()
	close(ps.stop)
	ps.wg.Wait()
	ps.ticker = nil
	ps.Logger.Info("stopped")
}

func (ps *PayrollScheduler) run() {
	defer ps.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ps.stop
		cancel()
	}()

	// Run immediately on start
	ps.CheckAndRun(ctx)

	for {
		select {
		case <-ps.ticker.C:
			ps.CheckAndRun(ctx)
		case <-ps.stop:
			return
		}
	}
}

// CheckAndRun runs payroll for the previous month unless it already has a
// completed run. It reports whether a run was started.
func (ps *PayrollScheduler) CheckAndRun(ctx context.Context) bool {
	now := time.Now().UTC()
	if ps.Now != nil {
		now = ps.Now()
	}
	period := scheme.PeriodOf(now).Previous()
	log := ps.Logger.With(zap.String("period", period.String()))

	runs, err := ps.Runs.ListRuns(ctx, &period)
	if err != nil {
		log.Error("list payroll runs", zap.Error(err))
		return false
	}
	for _, r := range runs {
		if r.Status == payroll.StatusCompleted || r.Status == payroll.StatusCompletedWithErrors {
			log.Debug("period already computed", zap.String("run_id", r.ID))
			return false
		}
	}

	run, err := ps.Payroll.Run(ctx, period)
	if err != nil {
		log.Error("scheduled payroll run failed", zap.Error(err))
		return true
	}
	log.Info("scheduled payroll run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
	)
	return true
}

// NextRunTime returns when the next scheduled check will occur.
func (ps *PayrollScheduler) NextRunTime() time.Time {
	return time.Now().Add(ps.CheckInterval)
}
