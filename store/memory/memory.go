// Package memory provides an in-memory repository for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu           sync.RWMutex
	schemes      map[scheme.SchemeID]scheme.Scheme
	advisors     map[scheme.AdvisorID]scheme.Advisor
	quotas       map[quotaKey]scheme.Quota
	sales        map[quotaKey][]scheme.SaleRecord
	incidents    []scheme.Incident
	equivalences map[string]scheme.TransferEquivalence
	runs         map[string]payroll.Run
	results      map[string][]payroll.AdvisorResult
}

type quotaKey struct {
	AdvisorID scheme.AdvisorID
	Period    scheme.Period
}

var (
	_ scheme.Repository = (*Store)(nil)
	_ payroll.RunStore  = (*Store)(nil)
)

func New() *Store {
	m := &Store{}
	m.clearLocked()
	return m
}

// Reset drops all data.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return nil
}

func (m *Store) clearLocked() {
	m.schemes = make(map[scheme.SchemeID]scheme.Scheme)
	m.advisors = make(map[scheme.AdvisorID]scheme.Advisor)
	m.quotas = make(map[quotaKey]scheme.Quota)
	m.sales = make(map[quotaKey][]scheme.SaleRecord)
	m.incidents = nil
	m.equivalences = make(map[string]scheme.TransferEquivalence)
	m.runs = make(map[string]payroll.Run)
	m.results = make(map[string][]payroll.AdvisorResult)
}

// =============================================================================
// SCHEMES
// =============================================================================

func (m *Store) SaveScheme(_ context.Context, s scheme.Scheme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemes[s.ID] = s
	return nil
}

func (m *Store) UpdateDraft(_ context.Context, s scheme.Scheme, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.schemes[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, s.ID)
	}
	if statusOf(cur) != scheme.StatusDraft {
		return fmt.Errorf("%w: %s is %s", scheme.ErrSchemeNotDraft, s.ID, cur.Status)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: %s is at version %d, expected %d", scheme.ErrSchemeNotDraft, s.ID, cur.Version, expectedVersion)
	}
	m.schemes[s.ID] = s
	return nil
}

func (m *Store) GetScheme(_ context.Context, id scheme.SchemeID) (*scheme.Scheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, id)
	}
	return &s, nil
}

func (m *Store) ListSchemes(_ context.Context, filter scheme.SchemeFilter) ([]scheme.Scheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scheme.Scheme, 0, len(m.schemes))
	for _, s := range m.schemes {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.Start().Before(out[j].Period.Start())
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Store) DeleteScheme(_ context.Context, id scheme.SchemeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemes[id]; !ok {
		return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, id)
	}
	delete(m.schemes, id)
	return nil
}

// ApplyStatusChanges checks every change before applying any.
func (m *Store) ApplyStatusChanges(_ context.Context, changes []scheme.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range changes {
		s, ok := m.schemes[c.SchemeID]
		if !ok {
			return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, c.SchemeID)
		}
		if statusOf(s) != c.From {
			return &scheme.TransitionError{SchemeID: c.SchemeID, From: statusOf(s), To: c.To}
		}
	}
	for _, c := range changes {
		s := m.schemes[c.SchemeID]
		s.Status = c.To
		m.schemes[c.SchemeID] = s
	}
	return nil
}

func statusOf(s scheme.Scheme) scheme.Status {
	if s.Status == "" {
		return scheme.StatusDraft
	}
	return s.Status
}

// =============================================================================
// ADVISORS AND QUOTAS
// =============================================================================

func (m *Store) SaveAdvisor(_ context.Context, a scheme.Advisor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advisors[a.ID] = a
	return nil
}

func (m *Store) GetAdvisor(_ context.Context, id scheme.AdvisorID) (*scheme.Advisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.advisors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheme.ErrAdvisorNotFound, id)
	}
	return &a, nil
}

func (m *Store) ListAdvisors(_ context.Context, filter scheme.AdvisorFilter) ([]scheme.Advisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scheme.Advisor, 0, len(m.advisors))
	for _, a := range m.advisors {
		if filter.StoreID != "" && a.StoreID != filter.StoreID {
			continue
		}
		if filter.SchemeType != "" && a.SchemeType != filter.SchemeType {
			continue
		}
		if filter.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SaveQuota(_ context.Context, q scheme.Quota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := quotaKey{AdvisorID: q.AdvisorID, Period: q.Period}
	if _, ok := m.quotas[k]; ok {
		return fmt.Errorf("%w: %s %s", scheme.ErrQuotaExists, q.AdvisorID, q.Period)
	}
	m.quotas[k] = q
	return nil
}

func (m *Store) GetQuota(_ context.Context, advisorID scheme.AdvisorID, p scheme.Period) (*scheme.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotas[quotaKey{AdvisorID: advisorID, Period: p}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", scheme.ErrQuotaNotFound, advisorID, p)
	}
	return &q, nil
}

func (m *Store) SumQuotas(_ context.Context, p scheme.Period, storeID scheme.StoreID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for k, q := range m.quotas {
		if k.Period != p || !m.inStoreLocked(k.AdvisorID, storeID) {
			continue
		}
		total = total.Add(q.BaseQuota)
	}
	return total, nil
}

func (m *Store) inStoreLocked(id scheme.AdvisorID, storeID scheme.StoreID) bool {
	if storeID == "" {
		return true
	}
	a, ok := m.advisors[id]
	return ok && a.StoreID == storeID
}

// =============================================================================
// SALES
// =============================================================================

func (m *Store) RecordSales(_ context.Context, advisorID scheme.AdvisorID, p scheme.Period, records []scheme.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := quotaKey{AdvisorID: advisorID, Period: p}
	m.sales[k] = append(m.sales[k], records...)
	return nil
}

func (m *Store) ListSales(_ context.Context, advisorID scheme.AdvisorID, p scheme.Period) ([]scheme.SaleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]scheme.SaleRecord(nil), m.sales[quotaKey{AdvisorID: advisorID, Period: p}]...), nil
}

func (m *Store) ListScopeSales(_ context.Context, p scheme.Period, storeID scheme.StoreID) ([]scheme.SaleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]quotaKey, 0, len(m.sales))
	for k := range m.sales {
		if k.Period == p && m.inStoreLocked(k.AdvisorID, storeID) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AdvisorID < keys[j].AdvisorID })

	var out []scheme.SaleRecord
	for _, k := range keys {
		out = append(out, m.sales[k]...)
	}
	return out, nil
}

// =============================================================================
// INCIDENTS
// =============================================================================

func (m *Store) RecordIncident(_ context.Context, inc scheme.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, inc)
	return nil
}

func (m *Store) ListIncidents(_ context.Context, advisorID scheme.AdvisorID, p scheme.Period) ([]scheme.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheme.Incident
	for _, inc := range m.incidents {
		if inc.AdvisorID == advisorID && inc.Period == p {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (m *Store) CondoneIncident(_ context.Context, id string, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		if m.incidents[i].ID == id {
			m.incidents[i].Condoned = true
			m.incidents[i].Note = note
			return nil
		}
	}
	return fmt.Errorf("%w: %s", scheme.ErrIncidentNotFound, id)
}

func (m *Store) SaveEquivalence(_ context.Context, eq scheme.TransferEquivalence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equivalences[eq.Code] = eq
	return nil
}

func (m *Store) ListEquivalences(_ context.Context) ([]scheme.TransferEquivalence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]scheme.TransferEquivalence, 0, len(m.equivalences))
	for _, eq := range m.equivalences {
		out = append(out, eq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (m *Store) SaveRun(_ context.Context, run payroll.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Store) GetRun(_ context.Context, id string) (*payroll.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheme.ErrRunNotFound, id)
	}
	return &run, nil
}

func (m *Store) ListRuns(_ context.Context, p *scheme.Period) ([]payroll.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if p == nil || run.Period == *p {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Store) SaveResults(_ context.Context, results []payroll.AdvisorResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		m.results[r.RunID] = append(m.results[r.RunID], r)
	}
	return nil
}

func (m *Store) ListResults(_ context.Context, runID string) ([]payroll.AdvisorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.AdvisorResult(nil), m.results[runID]...), nil
}

func (m *Store) LatestResult(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period) (*payroll.AdvisorResult, error) {
	runs, err := m.ListRuns(ctx, &p)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range runs {
		if run.Status != payroll.StatusCompleted && run.Status != payroll.StatusCompletedWithErrors {
			continue
		}
		for _, r := range m.results[run.ID] {
			if r.AdvisorID == advisorID {
				return &r, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no result for %s in %s", scheme.ErrRunNotFound, advisorID, p)
}
