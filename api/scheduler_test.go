package api_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/store/memory"
)

type recordingRunner struct {
	mu      sync.Mutex
	periods []scheme.Period
	err     error
}

func (r *recordingRunner) Run(_ context.Context, p scheme.Period) (*payroll.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.periods = append(r.periods, p)
	if r.err != nil {
		return nil, r.err
	}
	return &payroll.Run{ID: "run-1", Period: p, Status: payroll.StatusCompleted, TotalNet: decimal.Zero}, nil
}

func (r *recordingRunner) calls() []scheme.Period {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheme.Period(nil), r.periods...)
}

func TestScheduler_RunsPreviousMonthOnce(t *testing.T) {
	// GIVEN: No runs stored yet and "now" in May 2025
	// WHEN: The scheduler checks, then checks again after a completed run exists
	// THEN: April is run once

	ctx := context.Background()
	store := memory.New()
	runner := &recordingRunner{}
	sched := api.NewPayrollScheduler(store, runner, nil)
	sched.Now = func() time.Time { return fixedNow }

	assert.True(t, sched.CheckAndRun(ctx))
	require.Len(t, runner.calls(), 1)
	assert.Equal(t, scheme.Period{Year: 2025, Month: time.April}, runner.calls()[0])

	require.NoError(t, store.SaveRun(ctx, payroll.Run{
		ID: "done", Period: runner.calls()[0], Status: payroll.StatusCompletedWithErrors, StartedAt: fixedNow,
	}))
	assert.False(t, sched.CheckAndRun(ctx))
	assert.Len(t, runner.calls(), 1)
}

func TestScheduler_RetriesAfterFailedRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	april := scheme.Period{Year: 2025, Month: time.April}
	require.NoError(t, store.SaveRun(ctx, payroll.Run{ID: "failed", Period: april, Status: payroll.StatusFailed, StartedAt: fixedNow}))

	runner := &recordingRunner{err: errors.New("database locked")}
	sched := api.NewPayrollScheduler(store, runner, nil)
	sched.Now = func() time.Time { return fixedNow }

	assert.True(t, sched.CheckAndRun(ctx))
	assert.True(t, sched.CheckAndRun(ctx))
	assert.Len(t, runner.calls(), 2)
}

func TestScheduler_StartStop(t *testing.T) {
	runner := &recordingRunner{}
	sched := api.NewPayrollScheduler(memory.New(), runner, nil)
	sched.Now = func() time.Time { return fixedNow }
	sched.CheckInterval = time.Hour

	sched.Start()
	require.Eventually(t, func() bool { return len(runner.calls()) == 1 }, time.Second, 10*time.Millisecond)
	sched.Stop()
	sched.Stop()

	disabled := api.NewPayrollScheduler(memory.New(), runner, nil)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
	assert.Len(t, runner.calls(), 1)
}
