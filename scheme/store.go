/*
store.go - Persistence interfaces for schemes and their inputs

PURPOSE:
  Defines the boundary between the domain and the database. The engine
  never touches these; the simulation service, payroll runs and the API
  resolve everything an evaluation needs through them first.

KEY INTERFACES:
  SchemeStore:   Scheme definitions and atomic status changes
  AdvisorStore:  Advisors and their scheme type / store
  QuotaStore:    Distributed monthly quotas (write-once)
  SalesStore:    Raw sale lines per advisor and period
  IncidentStore: Incidents and transfer equivalences for penalties

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite / PostgreSQL via database/sql
  - store/memory/memory.go: In-memory for tests

SEE ALSO:
  - lifecycle.go: Uses SchemeStore.ApplyStatusChanges
  - simulation/service.go: Resolves evaluation inputs
*/
package scheme

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEMES
// =============================================================================

// SchemeFilter narrows ListSchemes. Zero fields don't filter.
type SchemeFilter struct {
	Type   SchemeType
	Period *Period
	Status Status
}

// Matches reports whether s passes the filter.
func (f SchemeFilter) Matches(s Scheme) bool {
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Period != nil && s.Period != *f.Period {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

type SchemeStore interface {
	// SaveScheme inserts or replaces a scheme definition with its items,
	// locks, tiers and restrictions.
	SaveScheme(ctx context.Context, s Scheme) error

	// UpdateDraft replaces a definition only while the stored scheme is
	// still a draft at expectedVersion, and returns ErrSchemeNotDraft
	// otherwise. The check and the write are one step.
	UpdateDraft(ctx context.Context, s Scheme, expectedVersion int) error

	// GetScheme returns ErrSchemeNotFound for unknown IDs.
	GetScheme(ctx context.Context, id SchemeID) (*Scheme, error)

	// ListSchemes returns schemes ordered by period then ID.
	ListSchemes(ctx context.Context, filter SchemeFilter) ([]Scheme, error)

	DeleteScheme(ctx context.Context, id SchemeID) error

	// ApplyStatusChanges applies all changes atomically. A change whose
	// From doesn't match the stored status fails the whole batch with a
	// TransitionError.
	ApplyStatusChanges(ctx context.Context, changes []StatusChange) error
}

// =============================================================================
// ADVISORS AND QUOTAS
// =============================================================================

// AdvisorFilter narrows ListAdvisors. Zero fields don't filter.
type AdvisorFilter struct {
	StoreID    StoreID
	SchemeType SchemeType
	ActiveOnly bool
}

type AdvisorStore interface {
	SaveAdvisor(ctx context.Context, a Advisor) error
	// GetAdvisor returns ErrAdvisorNotFound for unknown IDs.
	GetAdvisor(ctx context.Context, id AdvisorID) (*Advisor, error)
	ListAdvisors(ctx context.Context, filter AdvisorFilter) ([]Advisor, error)
}

type QuotaStore interface {
	// SaveQuota returns ErrQuotaExists if the advisor already has a quota
	// for the period.
	SaveQuota(ctx context.Context, q Quota) error

	// GetQuota returns ErrQuotaNotFound when nothing was distributed.
	GetQuota(ctx context.Context, advisorID AdvisorID, period Period) (*Quota, error)

	// SumQuotas totals base quotas for a period, restricted to a store
	// when storeID is non-empty.
	SumQuotas(ctx context.Context, period Period, storeID StoreID) (decimal.Decimal, error)
}

// =============================================================================
// SALES
// =============================================================================

type SalesStore interface {
	// RecordSales appends sale lines for an advisor and period.
	RecordSales(ctx context.Context, advisorID AdvisorID, period Period, records []SaleRecord) error

	ListSales(ctx context.Context, advisorID AdvisorID, period Period) ([]SaleRecord, error)

	// ListScopeSales returns every sale line of the period, restricted to
	// advisors of a store when storeID is non-empty.
	ListScopeSales(ctx context.Context, period Period, storeID StoreID) ([]SaleRecord, error)
}

// =============================================================================
// INCIDENTS
// =============================================================================

type IncidentStore interface {
	RecordIncident(ctx context.Context, inc Incident) error
	ListIncidents(ctx context.Context, advisorID AdvisorID, period Period) ([]Incident, error)

	// CondoneIncident marks an incident as forgiven. Returns
	// ErrIncidentNotFound for unknown IDs.
	CondoneIncident(ctx context.Context, id string, note string) error

	SaveEquivalence(ctx context.Context, eq TransferEquivalence) error
	ListEquivalences(ctx context.Context) ([]TransferEquivalence, error)
}

// Repository is everything the services need; both store
// implementations satisfy it.
type Repository interface {
	SchemeStore
	AdvisorStore
	QuotaStore
	SalesStore
	IncidentStore
}
