/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for demos. Each scenario creates schemes from the telecom presets,
  advisors, quotas, sales lines and incidents for the previous month, so
  a payroll run or a simulation can be tried immediately.

AVAILABLE SCENARIOS:
  store-month:      Store advisors, one hired mid-month, incidents
  corporate-month:  Corporate advisors with a store-level plan restriction
  scheme-revision:  Approved scheme plus a draft revision to approve

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create schemes via the factory and approve them
 3. Create advisors, distribute quotas
 4. Record sale lines and incidents

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "store-month"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - telecom/presets.go: Scheme JSON builders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/telecom"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "store-month",
		Name:        "Store Month",
		Description: "Three store advisors, one hired mid-month, with sales and incidents",
	},
	{
		ID:          "corporate-month",
		Name:        "Corporate Month",
		Description: "Corporate advisors with revenue targets and a store-wide plan restriction",
	},
	{
		ID:          "scheme-revision",
		Name:        "Scheme Revision",
		Description: "Approved store scheme and a draft revision waiting for approval",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context, scheme.Period) error
	switch req.ScenarioID {
	case "store-month":
		load = h.loadStoreMonthScenario
	case "corporate-month":
		load = h.loadCorporateMonthScenario
	case "scheme-revision":
		load = h.loadSchemeRevisionScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	period := scheme.PeriodOf(h.now()).Previous()
	if err := load(ctx, period); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"period":   period.String(),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStoreMonthScenario(ctx context.Context, p scheme.Period) error {
	if _, err := h.createScheme(ctx, telecom.StoreAdvisorSchemeJSON(schemeID("store", p), p.Year, int(p.Month)), true); err != nil {
		return err
	}

	hired := p.Start().AddDate(0, 0, 15)
	advisors := []scheme.Advisor{
		{ID: "adv-lucia", Name: "Lucia Ramos", StoreID: "lima-centro", SchemeType: telecom.SchemeStoreAdvisor, Active: true},
		{ID: "adv-mateo", Name: "Mateo Quispe", StoreID: "lima-centro", SchemeType: telecom.SchemeStoreAdvisor, Active: true},
		{ID: "adv-sofia", Name: "Sofia Huaman", StoreID: "lima-centro", SchemeType: telecom.SchemeStoreAdvisor, TenureStart: &hired, Active: true},
	}
	for _, a := range advisors {
		if err := h.seedAdvisor(ctx, a, p, 30, map[string]int64{"postpaid": 20, "portability": 10}); err != nil {
			return err
		}
	}

	sales := map[scheme.AdvisorID][]scheme.SaleRecord{
		"adv-lucia": {
			{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanMax69, Lines: 18},
			{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanUnlimited99, Lines: 6},
			{SaleType: telecom.SalePortability.Code, OperatorCode: telecom.OperatorBitel, Lines: 7},
			{SaleType: telecom.SalePortability.Code, OperatorCode: telecom.OperatorClaro, Lines: 4},
			{SaleType: telecom.SaleRenewal.Code, Lines: 9},
			{SaleType: telecom.SaleAccessory.Code, Equipment: 12},
		},
		"adv-mateo": {
			{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanBasic29, Lines: 9},
			{SaleType: telecom.SalePortability.Code, OperatorCode: telecom.OperatorEntel, Lines: 3},
			{SaleType: telecom.SaleRenewal.Code, Lines: 2},
			{SaleType: telecom.SaleAccessory.Code, Equipment: 3},
		},
		"adv-sofia": {
			{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanMax69, Lines: 8},
			{SaleType: telecom.SalePortability.Code, OperatorCode: telecom.OperatorBitel, Lines: 4},
		},
	}
	for id, records := range sales {
		if err := h.Store.RecordSales(ctx, id, p, records); err != nil {
			return err
		}
	}

	return h.seedIncidents(ctx, p, []scheme.Incident{
		{AdvisorID: "adv-mateo", Code: "late_activation", Count: 2},
		{AdvisorID: "adv-mateo", Code: "missing_contract", Count: 1},
		{AdvisorID: "adv-lucia", Code: "late_activation", Count: 1, Condoned: true, Note: "system outage"},
	})
}

func (h *Handler) loadCorporateMonthScenario(ctx context.Context, p scheme.Period) error {
	if _, err := h.createScheme(ctx, telecom.CorporateAdvisorSchemeJSON(schemeID("corporate", p), p.Year, int(p.Month)), true); err != nil {
		return err
	}

	for _, a := range []scheme.Advisor{
		{ID: "adv-carmen", Name: "Carmen Vega", StoreID: "empresas-lima", SchemeType: telecom.SchemeCorporateAdvisor, Active: true},
		{ID: "adv-diego", Name: "Diego Salas", StoreID: "empresas-lima", SchemeType: telecom.SchemeCorporateAdvisor, Active: true},
	} {
		if err := h.seedAdvisor(ctx, a, p, 40, nil); err != nil {
			return err
		}
	}

	if err := h.Store.RecordSales(ctx, "adv-carmen", p, []scheme.SaleRecord{
		{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanUnlimited99, Lines: 22},
		{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanMax69, Lines: 14},
		{SaleType: telecom.SalePortability.Code, OperatorCode: telecom.OperatorMovistar, Lines: 6},
		{SaleType: telecom.SaleHandset.Code, PlanCode: telecom.PlanMax69, Lines: 12, Equipment: 15},
	}); err != nil {
		return err
	}
	return h.Store.RecordSales(ctx, "adv-diego", p, []scheme.SaleRecord{
		{SaleType: telecom.SalePostpaidLine.Code, PlanCode: telecom.PlanMax69, Lines: 20},
		{SaleType: telecom.SaleHandset.Code, PlanCode: telecom.PlanBasic29, Lines: 6, Equipment: 6},
	})
}

func (h *Handler) loadSchemeRevisionScenario(ctx context.Context, p scheme.Period) error {
	if _, err := h.createScheme(ctx, telecom.StoreAdvisorSchemeJSON(schemeID("store", p), p.Year, int(p.Month)), true); err != nil {
		return err
	}
	revision, err := h.createScheme(ctx, telecom.StoreAdvisorSchemeJSON(schemeID("store", p)+"-rev2", p.Year, int(p.Month)), false)
	if err != nil {
		return err
	}
	revision.Name = "Store advisors (revised)"
	revision.FixedSalary = scheme.Money(1100)
	if err := h.Store.SaveScheme(ctx, *revision); err != nil {
		return err
	}

	return h.seedAdvisor(ctx, scheme.Advisor{
		ID: "adv-lucia", Name: "Lucia Ramos", StoreID: "lima-centro", SchemeType: telecom.SchemeStoreAdvisor, Active: true,
	}, p, 30, map[string]int64{"postpaid": 20, "portability": 10})
}

// =============================================================================
// HELPERS
// =============================================================================

func schemeID(prefix string, p scheme.Period) string {
	return fmt.Sprintf("%s-%s", prefix, p)
}

// createScheme parses preset JSON, stores it as a draft and optionally
// approves it.
func (h *Handler) createScheme(ctx context.Context, data string, approve bool) (*scheme.Scheme, error) {
	s, err := h.Schemes.ParseScheme([]byte(data))
	if err != nil {
		return nil, err
	}
	if err := h.Store.SaveScheme(ctx, *s); err != nil {
		return nil, fmt.Errorf("save scheme %s: %w", s.ID, err)
	}
	if !approve {
		return s, nil
	}
	return h.Lifecycle.Approve(ctx, s.ID)
}

func (h *Handler) seedAdvisor(ctx context.Context, a scheme.Advisor, p scheme.Period, quota int64, breakdown map[string]int64) error {
	if err := h.Store.SaveAdvisor(ctx, a); err != nil {
		return fmt.Errorf("save advisor %s: %w", a.ID, err)
	}
	q := scheme.Quota{AdvisorID: a.ID, Period: p, BaseQuota: scheme.Money(quota), TenureStart: a.TenureStart}
	if len(breakdown) > 0 {
		q.Breakdown = make(map[string]decimal.Decimal, len(breakdown))
		for metric, v := range breakdown {
			q.Breakdown[metric] = scheme.Money(v)
		}
	}
	if err := h.Store.SaveQuota(ctx, q); err != nil {
		return fmt.Errorf("save quota for %s: %w", a.ID, err)
	}
	return nil
}

func (h *Handler) seedIncidents(ctx context.Context, p scheme.Period, incidents []scheme.Incident) error {
	for _, eq := range []scheme.TransferEquivalence{
		{Code: "late_activation", Amount: scheme.Money(40)},
		{Code: "missing_contract", Amount: scheme.Money(80)},
	} {
		if err := h.Store.SaveEquivalence(ctx, eq); err != nil {
			return err
		}
	}

	for i, inc := range incidents {
		inc.ID = fmt.Sprintf("inc-%s-%d", p, i+1)
		inc.Period = p
		inc.CreatedAt = p.Start().Add(time.Duration(i+1) * 24 * time.Hour)
		if err := h.Store.RecordIncident(ctx, inc); err != nil {
			return err
		}
	}
	return nil
}
