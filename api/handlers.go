/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes scheme administration, evaluation inputs, the two evaluation
  call sites and payroll runs via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain services.

ENDPOINTS:
  Schemes:
    GET    /api/schemes                    List (type, period, status filters)
    POST   /api/schemes                    Create draft from scheme JSON
    GET    /api/schemes/{id}               Get definition + weight check
    PUT    /api/schemes/{id}               Replace a draft
    DELETE /api/schemes/{id}               Delete a draft
    POST   /api/schemes/{id}/approve       Approve (archives the previous one)
    POST   /api/schemes/{id}/archive       Archive
    GET    /api/schemes/{id}/weights       Principal weight report

  Advisors:
    GET    /api/advisors                   List (store_id, scheme_type, active)
    POST   /api/advisors                   Create or update
    GET    /api/advisors/{id}              Get
    POST   /api/advisors/{id}/quotas       Distribute a monthly quota
    GET    /api/advisors/{id}/quotas/{period}
    POST   /api/advisors/{id}/sales        Append sale lines
    GET    /api/advisors/{id}/sales        Sale lines + folded units
    GET    /api/advisors/{id}/incidents    Incidents of a period
    GET    /api/advisors/{id}/penalties    Predicted penalties
    GET    /api/advisors/{id}/commission   Latest payroll result

  Incidents:
    POST   /api/incidents                  Register
    POST   /api/incidents/{id}/condone     Forgive
    GET    /api/equivalences               Transfer equivalences
    PUT    /api/equivalences               Set one equivalence

  Evaluation:
    POST   /api/evaluate                   Authoritative, local engine
    POST   /api/simulate                   What-if, remote with local fallback

  Payroll:
    POST   /api/payroll/runs               Run a period
    GET    /api/payroll/runs               List runs
    GET    /api/payroll/runs/{id}          Get run
    GET    /api/payroll/runs/{id}/results  Per-advisor results

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (scheme.IsClientError)
  - 404: Resource not found (scheme.IsNotFound)
  - 409: Lifecycle conflicts, duplicate quotas (scheme.IsConflict)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/penalty"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
	"github.com/warp/commission-engine/telecom"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs. Both store implementations
// satisfy it.
type Store interface {
	scheme.Repository
	payroll.RunStore

	// Reset deletes all data (demo scenarios).
	Reset(ctx context.Context) error
}

// PayrollRunner computes the official commissions of a period.
type PayrollRunner interface {
	Run(ctx context.Context, period scheme.Period) (*payroll.Run, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Schemes   *factory.SchemeFactory
	Lifecycle *scheme.Lifecycle
	Penalties *penalty.Predictor

	// Evaluator answers /api/evaluate; Simulator answers /api/simulate.
	Evaluator simulation.Evaluator
	Simulator simulation.Evaluator
	Payroll   PayrollRunner

	Logger *zap.Logger
	Now    func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler around a store and the evaluation services.
func NewHandler(store Store, evaluator, simulator simulation.Evaluator, runner PayrollRunner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     store,
		Schemes:   factory.NewSchemeFactory(),
		Lifecycle: &scheme.Lifecycle{Schemes: store},
		Penalties: &penalty.Predictor{Incidents: store},
		Evaluator: evaluator,
		Simulator: simulator,
		Payroll:   runner,
		Logger:    logger,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// SCHEME HANDLERS
// =============================================================================

// ListSchemes returns schemes, optionally filtered.
func (h *Handler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scheme.SchemeFilter{
		Type:   scheme.SchemeType(q.Get("type")),
		Status: scheme.Status(q.Get("status")),
	}
	if raw := q.Get("period"); raw != "" {
		p, err := scheme.ParsePeriod(raw)
		if err != nil {
			writeDomainError(w, "Invalid period (use YYYY-MM)", err)
			return
		}
		filter.Period = &p
	}

	schemes, err := h.Store.ListSchemes(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schemes", err)
		return
	}

	dtos := make([]SchemeDTO, len(schemes))
	for i, s := range schemes {
		dtos[i] = toSchemeDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetScheme returns a single scheme.
func (h *Handler) GetScheme(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetScheme(r.Context(), scheme.SchemeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get scheme", err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemeDTO(*s))
}

// CreateScheme stores a new draft. A missing ID is generated.
func (h *Handler) CreateScheme(w http.ResponseWriter, r *http.Request) {
	var sj factory.SchemeJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if sj.ID == "" {
		sj.ID = uuid.NewString()
	}
	sj.Status = string(scheme.StatusDraft)
	sj.Version = 1

	s, err := h.Schemes.FromJSON(sj)
	if err != nil {
		writeDomainError(w, "Invalid scheme", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetScheme(ctx, s.ID); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("Scheme %s already exists", s.ID), nil)
		return
	} else if !errors.Is(err, scheme.ErrSchemeNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check scheme", err)
		return
	}

	if err := h.Store.SaveScheme(ctx, *s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create scheme", err)
		return
	}
	h.Logger.Info("scheme created", zap.String("scheme_id", string(s.ID)), zap.String("period", s.Period.String()))
	writeJSON(w, http.StatusCreated, toSchemeDTO(*s))
}

// UpdateScheme replaces a draft's definition.
func (h *Handler) UpdateScheme(w http.ResponseWriter, r *http.Request) {
	var sj factory.SchemeJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sj.ID = chi.URLParam(r, "id")
	sj.Status = ""

	s, err := h.Schemes.FromJSON(sj)
	if err != nil {
		writeDomainError(w, "Invalid scheme", err)
		return
	}
	updated, err := h.Lifecycle.Update(r.Context(), *s)
	if err != nil {
		writeDomainError(w, "Failed to update scheme", err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemeDTO(*updated))
}

// DeleteScheme removes a draft.
func (h *Handler) DeleteScheme(w http.ResponseWriter, r *http.Request) {
	if err := h.Lifecycle.Delete(r.Context(), scheme.SchemeID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete scheme", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveScheme approves a draft and archives the scheme it replaces.
func (h *Handler) ApproveScheme(w http.ResponseWriter, r *http.Request) {
	s, err := h.Lifecycle.Approve(r.Context(), scheme.SchemeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to approve scheme", err)
		return
	}
	h.Logger.Info("scheme approved", zap.String("scheme_id", string(s.ID)), zap.String("type", string(s.Type)))
	writeJSON(w, http.StatusOK, toSchemeDTO(*s))
}

// ArchiveScheme retires a scheme.
func (h *Handler) ArchiveScheme(w http.ResponseWriter, r *http.Request) {
	s, err := h.Lifecycle.Archive(r.Context(), scheme.SchemeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to archive scheme", err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemeDTO(*s))
}

// GetSchemeWeights reports the principal weight sum.
func (h *Handler) GetSchemeWeights(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetScheme(r.Context(), scheme.SchemeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get scheme", err)
		return
	}
	report := scheme.ValidateWeights(*s)
	writeJSON(w, http.StatusOK, WeightReportDTO{Sum: report.Sum, Valid: report.Valid})
}

// =============================================================================
// ADVISOR HANDLERS
// =============================================================================

// ListAdvisors returns advisors, optionally filtered.
func (h *Handler) ListAdvisors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	advisors, err := h.Store.ListAdvisors(r.Context(), scheme.AdvisorFilter{
		StoreID:    scheme.StoreID(q.Get("store_id")),
		SchemeType: scheme.SchemeType(q.Get("scheme_type")),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list advisors", err)
		return
	}

	dtos := make([]AdvisorDTO, len(advisors))
	for i, a := range advisors {
		dtos[i] = toAdvisorDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAdvisor returns a single advisor.
func (h *Handler) GetAdvisor(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAdvisor(r.Context(), scheme.AdvisorID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get advisor", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvisorDTO(*a))
}

// SaveAdvisor creates or updates an advisor.
func (h *Handler) SaveAdvisor(w http.ResponseWriter, r *http.Request) {
	var req AdvisorDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.SchemeType == "" {
		writeError(w, http.StatusBadRequest, "id and scheme_type are required", nil)
		return
	}

	a := scheme.Advisor{
		ID:         scheme.AdvisorID(req.ID),
		Name:       req.Name,
		StoreID:    scheme.StoreID(req.StoreID),
		SchemeType: scheme.SchemeType(req.SchemeType),
		Active:     req.Active == nil || *req.Active,
	}
	if req.TenureStart != nil && *req.TenureStart != "" {
		t, err := time.Parse(dateLayout, *req.TenureStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tenure_start format (use YYYY-MM-DD)", err)
			return
		}
		a.TenureStart = &t
	}

	if err := h.Store.SaveAdvisor(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save advisor", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdvisorDTO(a))
}

// =============================================================================
// QUOTA HANDLERS
// =============================================================================

// DistributeQuota stores an advisor's monthly quota. Quotas are write-once.
func (h *Handler) DistributeQuota(w http.ResponseWriter, r *http.Request) {
	var req QuotaDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := scheme.ParsePeriod(req.Period)
	if err != nil {
		writeDomainError(w, "Invalid period (use YYYY-MM)", err)
		return
	}
	if req.BaseQuota.IsNegative() {
		writeError(w, http.StatusBadRequest, "base_quota must not be negative", nil)
		return
	}

	ctx := r.Context()
	a, err := h.Store.GetAdvisor(ctx, scheme.AdvisorID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get advisor", err)
		return
	}

	q := scheme.Quota{
		AdvisorID:   a.ID,
		Period:      p,
		BaseQuota:   req.BaseQuota,
		Breakdown:   req.Breakdown,
		TenureStart: a.TenureStart,
	}
	if err := h.Store.SaveQuota(ctx, q); err != nil {
		writeDomainError(w, "Failed to distribute quota", err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuotaDTO(q))
}

// GetQuota returns an advisor's quota for a period.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	p, err := scheme.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		writeDomainError(w, "Invalid period (use YYYY-MM)", err)
		return
	}
	q, err := h.Store.GetQuota(r.Context(), scheme.AdvisorID(chi.URLParam(r, "id")), p)
	if err != nil {
		writeDomainError(w, "Failed to get quota", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaDTO(*q))
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// RecordSales appends sale lines.
func (h *Handler) RecordSales(w http.ResponseWriter, r *http.Request) {
	var req RecordSalesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := scheme.ParsePeriod(req.Period)
	if err != nil {
		writeDomainError(w, "Invalid period (use YYYY-MM)", err)
		return
	}

	records := make([]scheme.SaleRecord, 0, len(req.Sales))
	for i, l := range req.Sales {
		if l.SaleType == "" || l.Lines < 0 || l.Equipment < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid sale line %d", i), nil)
			return
		}
		records = append(records, scheme.SaleRecord{
			SaleType:     l.SaleType,
			PlanCode:     l.PlanCode,
			OperatorCode: l.OperatorCode,
			Lines:        l.Lines,
			Equipment:    l.Equipment,
		})
	}

	ctx := r.Context()
	advisorID := scheme.AdvisorID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetAdvisor(ctx, advisorID); err != nil {
		writeDomainError(w, "Failed to get advisor", err)
		return
	}
	if err := h.Store.RecordSales(ctx, advisorID, p, records); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record sales", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recorded": len(records)})
}

// ListSales returns an advisor's sale lines and, when an approved scheme
// exists for the advisor's type, the units they fold into.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.periodParam(w, r)
	if !ok {
		return
	}
	a, err := h.Store.GetAdvisor(ctx, scheme.AdvisorID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get advisor", err)
		return
	}
	records, err := h.Store.ListSales(ctx, a.ID, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sales", err)
		return
	}

	dto := SalesDTO{AdvisorID: string(a.ID), Period: p.String(), Sales: make([]simulation.SaleLine, len(records))}
	for i, rec := range records {
		dto.Sales[i] = simulation.SaleLine{
			SaleType:     rec.SaleType,
			PlanCode:     rec.PlanCode,
			OperatorCode: rec.OperatorCode,
			Lines:        rec.Lines,
			Equipment:    rec.Equipment,
		}
	}

	approved, err := h.Store.ListSchemes(ctx, scheme.SchemeFilter{Type: a.SchemeType, Period: &p, Status: scheme.StatusApproved})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schemes", err)
		return
	}
	if len(approved) > 0 {
		snap := telecom.Aggregate(approved[0], records)
		dto.SchemeID = string(approved[0].ID)
		dto.Units = make(map[string]int64, len(snap.Units))
		for key, n := range snap.Units {
			dto.Units[string(key)] = n
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// INCIDENT HANDLERS
// =============================================================================

// RecordIncident registers an incident.
func (h *Handler) RecordIncident(w http.ResponseWriter, r *http.Request) {
	var req IncidentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := scheme.ParsePeriod(req.Period)
	if err != nil {
		writeDomainError(w, "Invalid period (use YYYY-MM)", err)
		return
	}
	if req.AdvisorID == "" || req.Code == "" || req.Count <= 0 {
		writeError(w, http.StatusBadRequest, "advisor_id, code and a positive count are required", nil)
		return
	}

	inc := scheme.Incident{
		ID:        uuid.NewString(),
		AdvisorID: scheme.AdvisorID(req.AdvisorID),
		Period:    p,
		Code:      req.Code,
		Count:     req.Count,
		Note:      req.Note,
		CreatedAt: h.now(),
	}
	if err := h.Store.RecordIncident(r.Context(), inc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record incident", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncidentDTO(inc))
}

// ListIncidents returns an advisor's incidents for a period.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	p, ok := h.periodParam(w, r)
	if !ok {
		return
	}
	incidents, err := h.Store.ListIncidents(r.Context(), scheme.AdvisorID(chi.URLParam(r, "id")), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list incidents", err)
		return
	}
	dtos := make([]IncidentDTO, len(incidents))
	for i, inc := range incidents {
		dtos[i] = toIncidentDTO(inc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CondoneIncident forgives an incident so it no longer counts toward
// predicted penalties.
func (h *Handler) CondoneIncident(w http.ResponseWriter, r *http.Request) {
	var req CondoneRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	id := chi.URLParam(r, "id")
	if err := h.Store.CondoneIncident(r.Context(), id, req.Note); err != nil {
		writeDomainError(w, "Failed to condone incident", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "condoned", "id": id})
}

// ListEquivalences returns configured transfer equivalences.
func (h *Handler) ListEquivalences(w http.ResponseWriter, r *http.Request) {
	eqs, err := h.Store.ListEquivalences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list equivalences", err)
		return
	}
	dtos := make([]EquivalenceDTO, len(eqs))
	for i, eq := range eqs {
		dtos[i] = EquivalenceDTO{Code: eq.Code, Amount: eq.Amount}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveEquivalence sets the penalty amount for an incident code.
func (h *Handler) SaveEquivalence(w http.ResponseWriter, r *http.Request) {
	var req EquivalenceDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" || req.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "code and a non-negative amount are required", nil)
		return
	}
	if err := h.Store.SaveEquivalence(r.Context(), scheme.TransferEquivalence{Code: req.Code, Amount: req.Amount}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save equivalence", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetPenalties predicts an advisor's penalties for a period.
func (h *Handler) GetPenalties(w http.ResponseWriter, r *http.Request) {
	p, ok := h.periodParam(w, r)
	if !ok {
		return
	}
	advisorID := scheme.AdvisorID(chi.URLParam(r, "id"))
	pred, err := h.Penalties.Predict(r.Context(), advisorID, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to predict penalties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(advisorID, p, pred))
}

// =============================================================================
// EVALUATION HANDLERS
// =============================================================================

// Evaluate is the authoritative call site: always the local engine.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.Evaluator)
}

// Simulate is the what-if call site: remote evaluator with local fallback.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.Simulator)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, ev simulation.Evaluator) {
	var req simulation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, "Invalid evaluation request", err)
		return
	}

	resp, err := ev.Evaluate(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCommission returns the advisor's commission from the latest
// completed payroll run of a period.
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	p, ok := h.periodParam(w, r)
	if !ok {
		return
	}
	res, err := h.Store.LatestResult(r.Context(), scheme.AdvisorID(chi.URLParam(r, "id")), p)
	if err != nil {
		writeDomainError(w, "No commission computed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(*res))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// TriggerPayrollRun runs payroll synchronously for a period (default:
// the previous month).
func (h *Handler) TriggerPayrollRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	p := scheme.PeriodOf(h.now()).Previous()
	if req.Period != "" {
		var err error
		if p, err = scheme.ParsePeriod(req.Period); err != nil {
			writeDomainError(w, "Invalid period (use YYYY-MM)", err)
			return
		}
	}

	run, err := h.Payroll.Run(r.Context(), p)
	if err != nil && run == nil {
		writeError(w, http.StatusInternalServerError, "Payroll run failed", err)
		return
	}
	status := http.StatusCreated
	if run.Status == payroll.StatusFailed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toRunDTO(*run))
}

// ListPayrollRuns returns runs, newest first.
func (h *Handler) ListPayrollRuns(w http.ResponseWriter, r *http.Request) {
	var period *scheme.Period
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := scheme.ParsePeriod(raw)
		if err != nil {
			writeDomainError(w, "Invalid period (use YYYY-MM)", err)
			return
		}
		period = &p
	}
	runs, err := h.Store.ListRuns(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payroll runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayrollRun returns one run.
func (h *Handler) GetPayrollRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get payroll run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// ListPayrollResults returns the per-advisor results of a run.
func (h *Handler) ListPayrollResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetRun(ctx, id); err != nil {
		writeDomainError(w, "Failed to get payroll run", err)
		return
	}
	results, err := h.Store.ListResults(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list results", err)
		return
	}
	dtos := make([]RunResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toRunResultDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness and, for database stores, connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// periodParam reads the required ?period=YYYY-MM query parameter.
func (h *Handler) periodParam(w http.ResponseWriter, r *http.Request) (scheme.Period, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("period"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "period query parameter is required (YYYY-MM)", nil)
		return scheme.Period{}, false
	}
	p, err := scheme.ParsePeriod(raw)
	if err != nil {
		writeDomainError(w, "Invalid period (use YYYY-MM)", err)
		return scheme.Period{}, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case scheme.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case scheme.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	case scheme.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}
