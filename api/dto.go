/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Admin resources use
  snake_case like the scheme JSON; the evaluation contract
  (simulation.Request / simulation.Response) keeps its camelCase names
  because the remote evaluator speaks it too.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Schemes:     SchemeDTO (wraps factory.SchemeJSON), WeightReportDTO
  Advisors:    AdvisorDTO
  Quotas:      QuotaDTO
  Sales:       RecordSalesRequest
  Incidents:   IncidentDTO, CondoneRequest, EquivalenceDTO, PenaltyDTO
  Payroll:     RunDTO, RunResultDTO, TriggerRunRequest
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/scheme.go: SchemeJSON type
  - simulation/wire.go: Evaluation request and response
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/penalty"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
)

const dateLayout = "2006-01-02"

// =============================================================================
// SCHEMES
// =============================================================================

// SchemeDTO is a scheme definition plus the editor's weight check.
type SchemeDTO struct {
	factory.SchemeJSON
	Weights WeightReportDTO `json:"weights"`
}

// WeightReportDTO reports whether active principal weights sum to 1.
type WeightReportDTO struct {
	Sum   decimal.Decimal `json:"sum"`
	Valid bool            `json:"valid"`
}

func toSchemeDTO(s scheme.Scheme) SchemeDTO {
	report := scheme.ValidateWeights(s)
	return SchemeDTO{
		SchemeJSON: factory.ToJSON(s),
		Weights:    WeightReportDTO{Sum: report.Sum, Valid: report.Valid},
	}
}

// =============================================================================
// ADVISORS AND QUOTAS
// =============================================================================

// AdvisorDTO is used for both requests and responses.
type AdvisorDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	StoreID     string  `json:"store_id"`
	SchemeType  string  `json:"scheme_type"`
	TenureStart *string `json:"tenure_start,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

func toAdvisorDTO(a scheme.Advisor) AdvisorDTO {
	dto := AdvisorDTO{
		ID:         string(a.ID),
		Name:       a.Name,
		StoreID:    string(a.StoreID),
		SchemeType: string(a.SchemeType),
		Active:     &a.Active,
	}
	if a.TenureStart != nil {
		s := a.TenureStart.Format(dateLayout)
		dto.TenureStart = &s
	}
	return dto
}

// QuotaDTO is a distributed monthly quota.
type QuotaDTO struct {
	AdvisorID string                     `json:"advisor_id"`
	Period    string                     `json:"period"`
	BaseQuota decimal.Decimal            `json:"base_quota"`
	Breakdown map[string]decimal.Decimal `json:"breakdown,omitempty"`
}

func toQuotaDTO(q scheme.Quota) QuotaDTO {
	return QuotaDTO{
		AdvisorID: string(q.AdvisorID),
		Period:    q.Period.String(),
		BaseQuota: q.BaseQuota,
		Breakdown: q.Breakdown,
	}
}

// =============================================================================
// SALES
// =============================================================================

// RecordSalesRequest appends raw sale lines for an advisor and period.
type RecordSalesRequest struct {
	Period string                `json:"period"`
	Sales  []simulation.SaleLine `json:"sales"`
}

// SalesDTO lists an advisor's sale lines together with the per-item units
// they fold into under the approved scheme, when one exists.
type SalesDTO struct {
	AdvisorID string                `json:"advisor_id"`
	Period    string                `json:"period"`
	Sales     []simulation.SaleLine `json:"sales"`
	Units     map[string]int64      `json:"units,omitempty"`
	SchemeID  string                `json:"scheme_id,omitempty"`
}

// =============================================================================
// INCIDENTS AND PENALTIES
// =============================================================================

// IncidentDTO is used for both requests and responses.
type IncidentDTO struct {
	ID        string `json:"id,omitempty"`
	AdvisorID string `json:"advisor_id"`
	Period    string `json:"period"`
	Code      string `json:"code"`
	Count     int64  `json:"count"`
	Condoned  bool   `json:"condoned"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toIncidentDTO(inc scheme.Incident) IncidentDTO {
	dto := IncidentDTO{
		ID:        inc.ID,
		AdvisorID: string(inc.AdvisorID),
		Period:    inc.Period.String(),
		Code:      inc.Code,
		Count:     inc.Count,
		Condoned:  inc.Condoned,
		Note:      inc.Note,
	}
	if !inc.CreatedAt.IsZero() {
		dto.CreatedAt = inc.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// CondoneRequest forgives an incident.
type CondoneRequest struct {
	Note string `json:"note"`
}

// EquivalenceDTO is the penalty amount per incident code.
type EquivalenceDTO struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// PenaltyDTO is a penalty prediction for one advisor and period.
type PenaltyDTO struct {
	AdvisorID    string           `json:"advisor_id"`
	Period       string           `json:"period"`
	Total        decimal.Decimal  `json:"total"`
	Lines        []PenaltyLineDTO `json:"lines"`
	MissingCodes []string         `json:"missing_codes,omitempty"`
}

type PenaltyLineDTO struct {
	Code   string          `json:"code"`
	Count  int64           `json:"count"`
	Unit   decimal.Decimal `json:"unit"`
	Amount decimal.Decimal `json:"amount"`
}

func toPenaltyDTO(advisorID scheme.AdvisorID, p scheme.Period, pred penalty.Prediction) PenaltyDTO {
	dto := PenaltyDTO{
		AdvisorID:    string(advisorID),
		Period:       p.String(),
		Total:        pred.Total,
		Lines:        make([]PenaltyLineDTO, len(pred.Lines)),
		MissingCodes: pred.MissingCodes,
	}
	for i, l := range pred.Lines {
		dto.Lines[i] = PenaltyLineDTO{Code: l.Code, Count: l.Count, Unit: l.Unit, Amount: l.Amount}
	}
	return dto
}

// =============================================================================
// PAYROLL
// =============================================================================

// TriggerRunRequest starts a payroll run. Period defaults to the
// previous month.
type TriggerRunRequest struct {
	Period string `json:"period"`
}

// RunDTO is a payroll run summary.
type RunDTO struct {
	ID         string          `json:"id"`
	Period     string          `json:"period"`
	Status     string          `json:"status"`
	StartedAt  string          `json:"started_at"`
	FinishedAt *string         `json:"finished_at,omitempty"`
	Advisors   int             `json:"advisors"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	TotalNet   decimal.Decimal `json:"total_net"`
	Error      string          `json:"error,omitempty"`
}

func toRunDTO(run payroll.Run) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		Period:    run.Period.String(),
		Status:    string(run.Status),
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Advisors:  run.Advisors,
		Completed: run.Completed,
		Failed:    run.Failed,
		Skipped:   run.Skipped,
		TotalNet:  run.TotalNet,
		Error:     run.Error,
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		dto.FinishedAt = &s
	}
	return dto
}

// RunResultDTO is one advisor's stored commission.
type RunResultDTO struct {
	RunID      string               `json:"run_id"`
	AdvisorID  string               `json:"advisor_id"`
	SchemeID   string               `json:"scheme_id,omitempty"`
	Period     string               `json:"period"`
	Commission *simulation.Response `json:"commission,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func toRunResultDTO(r payroll.AdvisorResult) RunResultDTO {
	return RunResultDTO{
		RunID:      r.RunID,
		AdvisorID:  string(r.AdvisorID),
		SchemeID:   string(r.SchemeID),
		Period:     r.Period.String(),
		Commission: r.Response,
		Error:      r.Error,
	}
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
