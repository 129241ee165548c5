package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
	"github.com/warp/commission-engine/store/sqlite"
	"github.com/warp/commission-engine/telecom"
)

var april = scheme.Period{Year: 2025, Month: time.April}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storePreset(t *testing.T, id string) scheme.Scheme {
	t.Helper()
	sc, err := factory.NewSchemeFactory().ParseScheme([]byte(telecom.StoreAdvisorSchemeJSON(id, 2025, 4)))
	require.NoError(t, err)
	return *sc
}

// =============================================================================
// SCHEMES
// =============================================================================

func TestSchemes_SaveGetRoundTrip(t *testing.T) {
	// GIVEN: The store preset saved as a draft
	// WHEN: Read back
	// THEN: Items, restrictions and status survive the JSON column

	ctx := context.Background()
	s := newStore(t)
	sc := storePreset(t, "store-2025-04")
	require.NoError(t, s.SaveScheme(ctx, sc))

	got, err := s.GetScheme(ctx, "store-2025-04")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusDraft, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.Len(t, got.Items, 5)
	assert.Len(t, got.Restrictions, 2)
	assert.Equal(t, april, got.Period)

	_, err = s.GetScheme(ctx, "missing")
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotFound))
}

func TestSchemes_ListFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveScheme(ctx, storePreset(t, "store-a")))
	corp, err := factory.NewSchemeFactory().ParseScheme([]byte(telecom.CorporateAdvisorSchemeJSON("corp-a", 2025, 4)))
	require.NoError(t, err)
	require.NoError(t, s.SaveScheme(ctx, *corp))

	all, err := s.ListSchemes(ctx, scheme.SchemeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stores, err := s.ListSchemes(ctx, scheme.SchemeFilter{Type: telecom.SchemeStoreAdvisor, Period: &april})
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, scheme.SchemeID("store-a"), stores[0].ID)

	approved, err := s.ListSchemes(ctx, scheme.SchemeFilter{Status: scheme.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func TestSchemes_ApplyStatusChangesIsAtomic(t *testing.T) {
	// GIVEN: Two drafts
	// WHEN: A batch contains one valid change and one with a stale From
	// THEN: Nothing is applied and a TransitionError is returned

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveScheme(ctx, storePreset(t, "a")))
	require.NoError(t, s.SaveScheme(ctx, storePreset(t, "b")))

	err := s.ApplyStatusChanges(ctx, []scheme.StatusChange{
		{SchemeID: "a", From: scheme.StatusDraft, To: scheme.StatusApproved},
		{SchemeID: "b", From: scheme.StatusApproved, To: scheme.StatusArchived},
	})
	var te *scheme.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, scheme.SchemeID("b"), te.SchemeID)

	a, err := s.GetScheme(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusDraft, a.Status)

	require.NoError(t, s.ApplyStatusChanges(ctx, []scheme.StatusChange{
		{SchemeID: "a", From: scheme.StatusDraft, To: scheme.StatusApproved},
	}))
	a, err = s.GetScheme(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, a.Status)
}

func TestSchemes_UpdateDraftGuardsStatusAndVersion(t *testing.T) {
	// GIVEN: A draft at version 1
	// WHEN: Updated with a stale version, then approved and updated again
	// THEN: Both writes are refused and the approval is not reverted

	ctx := context.Background()
	s := newStore(t)
	sc := storePreset(t, "a")
	require.NoError(t, s.SaveScheme(ctx, sc))

	next := sc
	next.Name = "Renamed"
	next.Version = 2
	require.NoError(t, s.UpdateDraft(ctx, next, 1))

	err := s.UpdateDraft(ctx, next, 1)
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotDraft), "stale version: %v", err)

	require.NoError(t, s.ApplyStatusChanges(ctx, []scheme.StatusChange{
		{SchemeID: "a", From: scheme.StatusDraft, To: scheme.StatusApproved},
	}))
	next.Version = 3
	err = s.UpdateDraft(ctx, next, 2)
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotDraft), "approved: %v", err)

	got, err := s.GetScheme(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "Renamed", got.Name)

	missing := sc
	missing.ID = "nope"
	assert.True(t, errors.Is(s.UpdateDraft(ctx, missing, 1), scheme.ErrSchemeNotFound))
}

func TestSchemes_Delete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveScheme(ctx, storePreset(t, "a")))

	require.NoError(t, s.DeleteScheme(ctx, "a"))
	assert.True(t, errors.Is(s.DeleteScheme(ctx, "a"), scheme.ErrSchemeNotFound))
}

// =============================================================================
// ADVISORS, QUOTAS, SALES
// =============================================================================

func seedAdvisors(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	tenure := time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC)
	for _, a := range []scheme.Advisor{
		{ID: "a1", Name: "Ana", StoreID: "lima-01", SchemeType: telecom.SchemeStoreAdvisor, TenureStart: &tenure, Active: true},
		{ID: "a2", Name: "Beto", StoreID: "lima-01", SchemeType: telecom.SchemeStoreAdvisor, Active: true},
		{ID: "a3", Name: "Carla", StoreID: "cusco-01", SchemeType: telecom.SchemeStoreAdvisor, Active: false},
	} {
		require.NoError(t, s.SaveAdvisor(ctx, a))
	}
}

func TestAdvisors_GetAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedAdvisors(t, s)

	a1, err := s.GetAdvisor(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, a1.TenureStart)
	assert.Equal(t, 16, a1.TenureStart.Day())
	assert.True(t, a1.Active)

	a2, err := s.GetAdvisor(ctx, "a2")
	require.NoError(t, err)
	assert.Nil(t, a2.TenureStart)

	lima, err := s.ListAdvisors(ctx, scheme.AdvisorFilter{StoreID: "lima-01"})
	require.NoError(t, err)
	assert.Len(t, lima, 2)

	active, err := s.ListAdvisors(ctx, scheme.AdvisorFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.GetAdvisor(ctx, "zz")
	assert.True(t, errors.Is(err, scheme.ErrAdvisorNotFound))
}

func TestQuotas_WriteOnceAndSum(t *testing.T) {
	// GIVEN: Quotas for two lima advisors and one in cusco
	// WHEN: A quota is saved twice and totals are requested
	// THEN: The second save conflicts and sums respect the store filter

	ctx := context.Background()
	s := newStore(t)
	seedAdvisors(t, s)

	require.NoError(t, s.SaveQuota(ctx, scheme.Quota{
		AdvisorID: "a1", Period: april, BaseQuota: scheme.Money(30),
		Breakdown: map[string]decimal.Decimal{"postpaid": scheme.Money(20), "portability": scheme.Money(10)},
	}))
	require.NoError(t, s.SaveQuota(ctx, scheme.Quota{AdvisorID: "a2", Period: april, BaseQuota: scheme.MustDecimal("25.5")}))
	require.NoError(t, s.SaveQuota(ctx, scheme.Quota{AdvisorID: "a3", Period: april, BaseQuota: scheme.Money(10)}))

	err := s.SaveQuota(ctx, scheme.Quota{AdvisorID: "a1", Period: april, BaseQuota: scheme.Money(99)})
	assert.True(t, errors.Is(err, scheme.ErrQuotaExists), "got %v", err)

	q, err := s.GetQuota(ctx, "a1", april)
	require.NoError(t, err)
	assert.Equal(t, "30", q.BaseQuota.String())
	assert.Equal(t, "20", q.Breakdown["postpaid"].String())

	lima, err := s.SumQuotas(ctx, april, "lima-01")
	require.NoError(t, err)
	assert.Equal(t, "55.5", lima.String())

	all, err := s.SumQuotas(ctx, april, "")
	require.NoError(t, err)
	assert.Equal(t, "65.5", all.String())

	_, err = s.GetQuota(ctx, "a1", scheme.Period{Year: 2025, Month: time.May})
	assert.True(t, errors.Is(err, scheme.ErrQuotaNotFound))
}

func TestSales_RecordKeepsOrderAndScopes(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedAdvisors(t, s)

	require.NoError(t, s.RecordSales(ctx, "a1", april, []scheme.SaleRecord{
		{SaleType: "postpaid_line", PlanCode: telecom.PlanMax69, Lines: 3},
		{SaleType: "accessory", Equipment: 2},
	}))
	require.NoError(t, s.RecordSales(ctx, "a1", april, []scheme.SaleRecord{
		{SaleType: "portability", OperatorCode: telecom.OperatorBitel, Lines: 1},
	}))
	require.NoError(t, s.RecordSales(ctx, "a3", april, []scheme.SaleRecord{
		{SaleType: "postpaid_line", Lines: 7},
	}))

	sales, err := s.ListSales(ctx, "a1", april)
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.Equal(t, "postpaid_line", sales[0].SaleType)
	assert.Equal(t, int64(2), sales[1].Equipment)
	assert.Equal(t, telecom.OperatorBitel, sales[2].OperatorCode)

	lima, err := s.ListScopeSales(ctx, april, "lima-01")
	require.NoError(t, err)
	assert.Len(t, lima, 3)

	all, err := s.ListScopeSales(ctx, april, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

// =============================================================================
// INCIDENTS
// =============================================================================

func TestIncidents_RecordCondoneAndEquivalences(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.RecordIncident(ctx, scheme.Incident{ID: "i1", AdvisorID: "a1", Period: april, Code: "late_transfer", Count: 2}))
	require.NoError(t, s.RecordIncident(ctx, scheme.Incident{AdvisorID: "a1", Period: april, Code: "missing_doc", Count: 1}))

	require.NoError(t, s.CondoneIncident(ctx, "i1", "system outage"))
	assert.True(t, errors.Is(s.CondoneIncident(ctx, "nope", ""), scheme.ErrIncidentNotFound))

	incidents, err := s.ListIncidents(ctx, "a1", april)
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	byID := map[string]scheme.Incident{}
	for _, inc := range incidents {
		byID[inc.ID] = inc
	}
	assert.True(t, byID["i1"].Condoned)
	assert.Equal(t, "system outage", byID["i1"].Note)

	require.NoError(t, s.SaveEquivalence(ctx, scheme.TransferEquivalence{Code: "late_transfer", Amount: scheme.Money(50)}))
	require.NoError(t, s.SaveEquivalence(ctx, scheme.TransferEquivalence{Code: "late_transfer", Amount: scheme.MustDecimal("62.5")}))
	eqs, err := s.ListEquivalences(ctx)
	require.NoError(t, err)
	require.Len(t, eqs, 1)
	assert.Equal(t, "62.5", eqs[0].Amount.String())
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func TestRuns_LatestResultSkipsFailedRuns(t *testing.T) {
	// GIVEN: A completed run followed by a newer failed run
	// WHEN: The advisor's latest result is requested
	// THEN: The completed run's stored response is returned

	ctx := context.Background()
	s := newStore(t)
	started := time.Date(2025, 5, 1, 2, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	done := payroll.Run{ID: "r1", Period: april, Status: payroll.StatusCompleted, StartedAt: started,
		FinishedAt: &finished, Advisors: 1, Completed: 1, TotalNet: scheme.Money(1385)}
	require.NoError(t, s.SaveRun(ctx, done))
	require.NoError(t, s.SaveResults(ctx, []payroll.AdvisorResult{{
		RunID: "r1", AdvisorID: "a1", SchemeID: "store-2025-04", Period: april, CreatedAt: finished,
		Response: &simulation.Response{SchemeID: "store-2025-04", TotalNet: 1385, Source: simulation.SourceLocal},
	}}))
	require.NoError(t, s.SaveRun(ctx, payroll.Run{ID: "r2", Period: april, Status: payroll.StatusFailed,
		StartedAt: started.Add(time.Hour), TotalNet: decimal.Zero, Error: "store down"}))

	runs, err := s.ListRuns(ctx, &april)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID, "newest first")

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "1385", got.TotalNet.String())
	require.NotNil(t, got.FinishedAt)

	latest, err := s.LatestResult(ctx, "a1", april)
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.RunID)
	require.NotNil(t, latest.Response)
	assert.Equal(t, 1385.0, latest.Response.TotalNet)

	_, err = s.GetRun(ctx, "r9")
	assert.True(t, errors.Is(err, scheme.ErrRunNotFound))
	_, err = s.LatestResult(ctx, "a2", april)
	assert.True(t, errors.Is(err, scheme.ErrRunNotFound))
}

func TestReset_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedAdvisors(t, s)
	require.NoError(t, s.SaveScheme(ctx, storePreset(t, "a")))

	require.NoError(t, s.Reset(ctx))

	advisors, err := s.ListAdvisors(ctx, scheme.AdvisorFilter{})
	require.NoError(t, err)
	assert.Empty(t, advisors)
	schemes, err := s.ListSchemes(ctx, scheme.SchemeFilter{})
	require.NoError(t, err)
	assert.Empty(t, schemes)
}
