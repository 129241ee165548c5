package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
	"github.com/warp/commission-engine/store/memory"
)

var (
	march = scheme.Period{Year: 2025, Month: time.March}
	april = scheme.Period{Year: 2025, Month: time.April}
)

func TestSchemes_ListOrderedByPeriodThenID(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	require.NoError(t, m.SaveScheme(ctx, scheme.Scheme{ID: "b", Period: april}))
	require.NoError(t, m.SaveScheme(ctx, scheme.Scheme{ID: "a", Period: april}))
	require.NoError(t, m.SaveScheme(ctx, scheme.Scheme{ID: "z", Period: march}))

	got, err := m.ListSchemes(ctx, scheme.SchemeFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []scheme.SchemeID{"z", "a", "b"}, []scheme.SchemeID{got[0].ID, got[1].ID, got[2].ID})

	assert.True(t, errors.Is(m.DeleteScheme(ctx, "missing"), scheme.ErrSchemeNotFound))
}

func TestSchemes_ApplyStatusChangesAllOrNothing(t *testing.T) {
	// GIVEN: One approved scheme and one draft
	// WHEN: A batch carries a stale From for the second change
	// THEN: The first change is not applied either

	ctx := context.Background()
	m := memory.New()
	require.NoError(t, m.SaveScheme(ctx, scheme.Scheme{ID: "old", Period: april, Status: scheme.StatusApproved}))
	require.NoError(t, m.SaveScheme(ctx, scheme.Scheme{ID: "new", Period: april}))

	err := m.ApplyStatusChanges(ctx, []scheme.StatusChange{
		{SchemeID: "old", From: scheme.StatusApproved, To: scheme.StatusArchived},
		{SchemeID: "new", From: scheme.StatusApproved, To: scheme.StatusArchived},
	})
	var te *scheme.TransitionError
	require.ErrorAs(t, err, &te)

	old, err := m.GetScheme(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, old.Status)

	require.NoError(t, m.ApplyStatusChanges(ctx, []scheme.StatusChange{
		{SchemeID: "old", From: scheme.StatusApproved, To: scheme.StatusArchived},
		{SchemeID: "new", From: scheme.StatusDraft, To: scheme.StatusApproved},
	}))
	got, err := m.GetScheme(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, got.Status)
}

func TestQuotas_WriteOnceAndStoreSum(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	require.NoError(t, m.SaveAdvisor(ctx, scheme.Advisor{ID: "a1", StoreID: "lima-01", Active: true}))
	require.NoError(t, m.SaveAdvisor(ctx, scheme.Advisor{ID: "a2", StoreID: "cusco-01", Active: true}))

	require.NoError(t, m.SaveQuota(ctx, scheme.Quota{AdvisorID: "a1", Period: april, BaseQuota: scheme.Money(30)}))
	require.NoError(t, m.SaveQuota(ctx, scheme.Quota{AdvisorID: "a2", Period: april, BaseQuota: scheme.Money(12)}))
	require.NoError(t, m.SaveQuota(ctx, scheme.Quota{AdvisorID: "a1", Period: march, BaseQuota: scheme.Money(99)}))

	err := m.SaveQuota(ctx, scheme.Quota{AdvisorID: "a1", Period: april, BaseQuota: scheme.Money(1)})
	assert.True(t, errors.Is(err, scheme.ErrQuotaExists))

	lima, err := m.SumQuotas(ctx, april, "lima-01")
	require.NoError(t, err)
	assert.Equal(t, "30", lima.String())

	all, err := m.SumQuotas(ctx, april, "")
	require.NoError(t, err)
	assert.Equal(t, "42", all.String())
}

func TestSales_ScopeFollowsAdvisorStore(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	require.NoError(t, m.SaveAdvisor(ctx, scheme.Advisor{ID: "a1", StoreID: "lima-01"}))
	require.NoError(t, m.SaveAdvisor(ctx, scheme.Advisor{ID: "a2", StoreID: "cusco-01"}))

	require.NoError(t, m.RecordSales(ctx, "a1", april, []scheme.SaleRecord{{SaleType: "postpaid_line", Lines: 2}}))
	require.NoError(t, m.RecordSales(ctx, "a2", april, []scheme.SaleRecord{{SaleType: "renewal", Lines: 1}}))
	require.NoError(t, m.RecordSales(ctx, "a1", march, []scheme.SaleRecord{{SaleType: "renewal", Lines: 9}}))

	lima, err := m.ListScopeSales(ctx, april, "lima-01")
	require.NoError(t, err)
	require.Len(t, lima, 1)
	assert.Equal(t, "postpaid_line", lima[0].SaleType)

	all, err := m.ListScopeSales(ctx, april, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRuns_LatestResultAndReset(t *testing.T) {
	// GIVEN: A completed run and a newer failed run for April
	// WHEN: The latest result is requested, then the store is reset
	// THEN: The completed run answers, and nothing survives the reset

	ctx := context.Background()
	m := memory.New()
	started := time.Date(2025, 5, 1, 2, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveRun(ctx, payroll.Run{ID: "r1", Period: april, Status: payroll.StatusCompleted, StartedAt: started}))
	require.NoError(t, m.SaveResults(ctx, []payroll.AdvisorResult{{
		RunID: "r1", AdvisorID: "a1", Period: april,
		Response: &simulation.Response{TotalNet: 900, Source: simulation.SourceLocal},
	}}))
	require.NoError(t, m.SaveRun(ctx, payroll.Run{ID: "r2", Period: april, Status: payroll.StatusFailed, StartedAt: started.Add(time.Hour)}))

	latest, err := m.LatestResult(ctx, "a1", april)
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.RunID)

	require.NoError(t, m.Reset(ctx))
	runs, err := m.ListRuns(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = m.LatestResult(ctx, "a1", april)
	assert.True(t, errors.Is(err, scheme.ErrRunNotFound))
}
