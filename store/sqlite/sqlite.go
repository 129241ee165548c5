/*
Package sqlite provides the database/sql implementation of the scheme
repository and the payroll run store.

PURPOSE:
  Persists everything an evaluation is resolved from (schemes, advisors,
  quotas, sales, incidents, transfer equivalences) and everything a
  payroll run produces. SQLite is the default; the same SQL runs on
  PostgreSQL through lib/pq with placeholders rebound.

INTERFACES IMPLEMENTED:
  scheme.Repository: SchemeStore, AdvisorStore, QuotaStore, SalesStore,
                     IncidentStore
  payroll.RunStore:  Runs and per-advisor results

KEY TABLES:
  schemes:              Definitions as factory JSON, status and version
                        in their own columns
  advisors:             Advisor, store and scheme type
  quotas:               Write-once monthly quotas (advisor, period unique)
  sales:                Raw sale lines per advisor and period
  incidents:            Penalty incidents, condonable
  transfer_equivalences: Penalty amount per incident code
  payroll_runs:         One row per run
  commission_results:   Stored evaluation response per run and advisor

STORAGE CONVENTIONS:
  - Periods are TEXT "YYYY-MM"
  - Decimals are TEXT so no precision is lost in either driver
  - Timestamps are fixed-width RFC3339 TEXT in UTC
  - Booleans are INTEGER 0/1

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Status changes run in a
  transaction so an approval and the archive it causes land together.

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  pg, err := sqlite.Open("postgres", "postgres://...")

SEE ALSO:
  - scheme/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/simulation"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements scheme.Repository and payroll.RunStore.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex

	factory *factory.SchemeFactory
}

var (
	_ scheme.Repository = (*Store)(nil)
	_ payroll.RunStore  = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with the given driver ("sqlite3" or "postgres") and
// migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	source := dsn
	if driver == DriverSQLite {
		source = dsn + "?_foreign_keys=on&_journal_mode=WAL"
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite && dsn == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, driver: driver, factory: factory.NewSchemeFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (used by the health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schemes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scheme_type TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		version INTEGER NOT NULL DEFAULT 1,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schemes_type_period
		ON schemes(scheme_type, period, status);

	CREATE TABLE IF NOT EXISTS advisors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		store_id TEXT NOT NULL DEFAULT '',
		scheme_type TEXT NOT NULL,
		tenure_start TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advisors_store
		ON advisors(store_id);

	-- Quotas are distributed once per advisor and month
	CREATE TABLE IF NOT EXISTS quotas (
		advisor_id TEXT NOT NULL,
		period TEXT NOT NULL,
		base_quota TEXT NOT NULL,
		breakdown_json TEXT,
		tenure_start TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(advisor_id, period)
	);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		advisor_id TEXT NOT NULL,
		period TEXT NOT NULL,
		seq INTEGER NOT NULL,
		sale_type TEXT NOT NULL,
		plan_code TEXT NOT NULL DEFAULT '',
		operator_code TEXT NOT NULL DEFAULT '',
		lines INTEGER NOT NULL DEFAULT 0,
		equipment INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_advisor_period
		ON sales(advisor_id, period);
	CREATE INDEX IF NOT EXISTS idx_sales_period
		ON sales(period);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		advisor_id TEXT NOT NULL,
		period TEXT NOT NULL,
		code TEXT NOT NULL,
		count INTEGER NOT NULL,
		condoned INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_advisor_period
		ON incidents(advisor_id, period);

	CREATE TABLE IF NOT EXISTS transfer_equivalences (
		code TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		advisors INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		total_net TEXT NOT NULL DEFAULT '0',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_runs_period
		ON payroll_runs(period, started_at);

	CREATE TABLE IF NOT EXISTS commission_results (
		run_id TEXT NOT NULL,
		advisor_id TEXT NOT NULL,
		scheme_id TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL,
		response_json TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY(run_id, advisor_id)
	);

	CREATE INDEX IF NOT EXISTS idx_results_advisor_period
		ON commission_results(advisor_id, period);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data (demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"commission_results", "payroll_runs", "transfer_equivalences", "incidents",
		"sales", "quotas", "advisors", "schemes",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// SCHEMES
// =============================================================================

func (s *Store) SaveScheme(ctx context.Context, sc scheme.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := factory.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode scheme %s: %w", sc.ID, err)
	}
	version := sc.Version
	if version <= 0 {
		version = 1
	}

	query := `
		INSERT INTO schemes (id, name, scheme_type, period, status, version, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			scheme_type = excluded.scheme_type,
			period = excluded.period,
			status = excluded.status,
			version = excluded.version,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`
	now := timestamp(time.Now())
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		string(sc.ID), sc.Name, string(sc.Type), sc.Period.String(), string(statusOf(sc.Status)),
		version, string(config), now, now,
	)
	return err
}

// UpdateDraft overwrites a scheme guarded by its stored status and
// version, so an approval that lands after the caller's read is not
// reverted to draft.
func (s *Store) UpdateDraft(ctx context.Context, sc scheme.Scheme, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := factory.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode scheme %s: %w", sc.ID, err)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE schemes
		SET name = ?, scheme_type = ?, period = ?, status = ?, version = ?, config_json = ?, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?
	`),
		sc.Name, string(sc.Type), sc.Period.String(), string(scheme.StatusDraft), sc.Version,
		string(config), timestamp(time.Now()),
		string(sc.ID), string(scheme.StatusDraft), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update scheme %s: %w", sc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	var version int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT status, version FROM schemes WHERE id = ?`), string(sc.ID)).
		Scan(&status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, sc.ID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s at version %d, expected draft at %d",
		scheme.ErrSchemeNotDraft, sc.ID, status, version, expectedVersion)
}

func (s *Store) GetScheme(ctx context.Context, id scheme.SchemeID) (*scheme.Scheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT status, version, config_json FROM schemes WHERE id = ?
	`), string(id))
	sc, err := s.scanScheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, id)
	}
	return sc, err
}

func (s *Store) ListSchemes(ctx context.Context, filter scheme.SchemeFilter) ([]scheme.Scheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.Type != "" {
		where = append(where, "scheme_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Period != nil {
		where = append(where, "period = ?")
		args = append(args, filter.Period.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := "SELECT status, version, config_json FROM schemes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period, id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheme.Scheme
	for rows.Next() {
		sc, err := s.scanScheme(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteScheme(ctx context.Context, id scheme.SchemeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM schemes WHERE id = ?"), string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, id)
	}
	return nil
}

// ApplyStatusChanges applies all changes in one transaction.
func (s *Store) ApplyStatusChanges(ctx context.Context, changes []scheme.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := timestamp(time.Now())
	for _, c := range changes {
		var current string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT status FROM schemes WHERE id = ?"), string(c.SchemeID)).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", scheme.ErrSchemeNotFound, c.SchemeID)
		}
		if err != nil {
			return err
		}
		if statusOf(scheme.Status(current)) != c.From {
			return &scheme.TransitionError{SchemeID: c.SchemeID, From: scheme.Status(current), To: c.To}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE schemes SET status = ?, updated_at = ? WHERE id = ?
		`), string(c.To), now, string(c.SchemeID)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanScheme parses the stored definition; the status and version
// columns win over whatever the JSON carries.
func (s *Store) scanScheme(row rowScanner) (*scheme.Scheme, error) {
	var status, config string
	var version int
	if err := row.Scan(&status, &version, &config); err != nil {
		return nil, err
	}
	sc, err := s.factory.ParseScheme([]byte(config))
	if err != nil {
		return nil, err
	}
	sc.Status = scheme.Status(status)
	sc.Version = version
	return sc, nil
}

func statusOf(st scheme.Status) scheme.Status {
	if st == "" {
		return scheme.StatusDraft
	}
	return st
}

// =============================================================================
// ADVISORS
// =============================================================================

func (s *Store) SaveAdvisor(ctx context.Context, a scheme.Advisor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO advisors (id, name, store_id, scheme_type, tenure_start, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			store_id = excluded.store_id,
			scheme_type = excluded.scheme_type,
			tenure_start = excluded.tenure_start,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		string(a.ID), a.Name, string(a.StoreID), string(a.SchemeType),
		nullTime(a.TenureStart), boolInt(a.Active), timestamp(time.Now()),
	)
	return err
}

func (s *Store) GetAdvisor(ctx context.Context, id scheme.AdvisorID) (*scheme.Advisor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, store_id, scheme_type, tenure_start, active FROM advisors WHERE id = ?
	`), string(id))
	a, err := scanAdvisor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrAdvisorNotFound, id)
	}
	return a, err
}

func (s *Store) ListAdvisors(ctx context.Context, filter scheme.AdvisorFilter) ([]scheme.Advisor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.StoreID != "" {
		where = append(where, "store_id = ?")
		args = append(args, string(filter.StoreID))
	}
	if filter.SchemeType != "" {
		where = append(where, "scheme_type = ?")
		args = append(args, string(filter.SchemeType))
	}
	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	query := "SELECT id, name, store_id, scheme_type, tenure_start, active FROM advisors"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheme.Advisor
	for rows.Next() {
		a, err := scanAdvisor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAdvisor(row rowScanner) (*scheme.Advisor, error) {
	var a scheme.Advisor
	var id, storeID, schemeType string
	var tenure sql.NullString
	if err := row.Scan(&id, &a.Name, &storeID, &schemeType, &tenure, &a.Active); err != nil {
		return nil, err
	}
	a.ID = scheme.AdvisorID(id)
	a.StoreID = scheme.StoreID(storeID)
	a.SchemeType = scheme.SchemeType(schemeType)
	a.TenureStart = parseNullTime(tenure)
	return &a, nil
}

// =============================================================================
// QUOTAS
// =============================================================================

func (s *Store) SaveQuota(ctx context.Context, q scheme.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakdown, err := json.Marshal(q.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode quota breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO quotas (advisor_id, period, base_quota, breakdown_json, tenure_start, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), string(q.AdvisorID), q.Period.String(), q.BaseQuota.String(), string(breakdown),
		nullTime(q.TenureStart), timestamp(time.Now()))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %s", scheme.ErrQuotaExists, q.AdvisorID, q.Period)
	}
	return err
}

func (s *Store) GetQuota(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period) (*scheme.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var base string
	var breakdown, tenure sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT base_quota, breakdown_json, tenure_start FROM quotas WHERE advisor_id = ? AND period = ?
	`), string(advisorID), p.String()).Scan(&base, &breakdown, &tenure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", scheme.ErrQuotaNotFound, advisorID, p)
	}
	if err != nil {
		return nil, err
	}

	q := &scheme.Quota{
		AdvisorID:   advisorID,
		Period:      p,
		BaseQuota:   scheme.MustDecimal(base),
		TenureStart: parseNullTime(tenure),
	}
	if breakdown.Valid && breakdown.String != "" && breakdown.String != "null" {
		if err := json.Unmarshal([]byte(breakdown.String), &q.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode quota breakdown: %w", err)
		}
	}
	return q, nil
}

// SumQuotas adds decimals in Go; the column is TEXT.
func (s *Store) SumQuotas(ctx context.Context, p scheme.Period, storeID scheme.StoreID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT q.base_quota FROM quotas q`
	args := []any{p.String()}
	if storeID != "" {
		query += ` JOIN advisors a ON a.id = q.advisor_id WHERE q.period = ? AND a.store_id = ?`
		args = append(args, string(storeID))
	} else {
		query += ` WHERE q.period = ?`
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(scheme.MustDecimal(v))
	}
	return total, rows.Err()
}

// =============================================================================
// SALES
// =============================================================================

func (s *Store) RecordSales(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period, records []scheme.SaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(MAX(seq), 0) FROM sales WHERE advisor_id = ? AND period = ?
	`), string(advisorID), p.String()).Scan(&next); err != nil {
		return err
	}

	now := timestamp(time.Now())
	insert := s.rebind(`
		INSERT INTO sales (id, advisor_id, period, seq, sale_type, plan_code, operator_code, lines, equipment, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, r := range records {
		next++
		if _, err := tx.ExecContext(ctx, insert,
			uuid.NewString(), string(advisorID), p.String(), next,
			r.SaleType, r.PlanCode, r.OperatorCode, r.Lines, r.Equipment, now,
		); err != nil {
			return fmt.Errorf("failed to record sale: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period) ([]scheme.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySales(ctx, `
		SELECT sale_type, plan_code, operator_code, lines, equipment
		FROM sales WHERE advisor_id = ? AND period = ?
		ORDER BY seq
	`, string(advisorID), p.String())
}

func (s *Store) ListScopeSales(ctx context.Context, p scheme.Period, storeID scheme.StoreID) ([]scheme.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if storeID == "" {
		return s.querySales(ctx, `
			SELECT sale_type, plan_code, operator_code, lines, equipment
			FROM sales WHERE period = ?
			ORDER BY advisor_id, seq
		`, p.String())
	}
	return s.querySales(ctx, `
		SELECT s.sale_type, s.plan_code, s.operator_code, s.lines, s.equipment
		FROM sales s JOIN advisors a ON a.id = s.advisor_id
		WHERE s.period = ? AND a.store_id = ?
		ORDER BY s.advisor_id, s.seq
	`, p.String(), string(storeID))
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]scheme.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheme.SaleRecord
	for rows.Next() {
		var r scheme.SaleRecord
		if err := rows.Scan(&r.SaleType, &r.PlanCode, &r.OperatorCode, &r.Lines, &r.Equipment); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// INCIDENTS
// =============================================================================

func (s *Store) RecordIncident(ctx context.Context, inc scheme.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	created := inc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO incidents (id, advisor_id, period, code, count, condoned, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), inc.ID, string(inc.AdvisorID), inc.Period.String(), inc.Code, inc.Count,
		boolInt(inc.Condoned), inc.Note, timestamp(created))
	return err
}

func (s *Store) ListIncidents(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period) ([]scheme.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, code, count, condoned, note, created_at
		FROM incidents WHERE advisor_id = ? AND period = ?
		ORDER BY created_at, id
	`), string(advisorID), p.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheme.Incident
	for rows.Next() {
		inc := scheme.Incident{AdvisorID: advisorID, Period: p}
		var created string
		if err := rows.Scan(&inc.ID, &inc.Code, &inc.Count, &inc.Condoned, &inc.Note, &created); err != nil {
			return nil, err
		}
		inc.CreatedAt = parseTime(created)
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *Store) CondoneIncident(ctx context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE incidents SET condoned = 1, note = ? WHERE id = ?
	`), note, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", scheme.ErrIncidentNotFound, id)
	}
	return nil
}

func (s *Store) SaveEquivalence(ctx context.Context, eq scheme.TransferEquivalence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO transfer_equivalences (code, amount) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET amount = excluded.amount
	`), eq.Code, eq.Amount.String())
	return err
}

func (s *Store) ListEquivalences(ctx context.Context) ([]scheme.TransferEquivalence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT code, amount FROM transfer_equivalences ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheme.TransferEquivalence
	for rows.Next() {
		var eq scheme.TransferEquivalence
		var amount string
		if err := rows.Scan(&eq.Code, &amount); err != nil {
			return nil, err
		}
		eq.Amount = scheme.MustDecimal(amount)
		out = append(out, eq)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payroll_runs (id, period, status, started_at, finished_at, advisors, completed, failed, skipped, total_net, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			advisors = excluded.advisors,
			completed = excluded.completed,
			failed = excluded.failed,
			skipped = excluded.skipped,
			total_net = excluded.total_net,
			error = excluded.error
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		run.ID, run.Period.String(), string(run.Status), timestamp(run.StartedAt), nullTime(run.FinishedAt),
		run.Advisors, run.Completed, run.Failed, run.Skipped, run.TotalNet.String(), run.Error,
	)
	return err
}

const runColumns = `id, period, status, started_at, finished_at, advisors, completed, failed, skipped, total_net, error`

func (s *Store) GetRun(ctx context.Context, id string) (*payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+runColumns+" FROM payroll_runs WHERE id = ?"), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrRunNotFound, id)
	}
	return run, err
}

func (s *Store) ListRuns(ctx context.Context, p *scheme.Period) ([]payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + runColumns + " FROM payroll_runs"
	var args []any
	if p != nil {
		query += " WHERE period = ?"
		args = append(args, p.String())
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*payroll.Run, error) {
	var run payroll.Run
	var period, status, started, total string
	var finished sql.NullString
	if err := row.Scan(&run.ID, &period, &status, &started, &finished,
		&run.Advisors, &run.Completed, &run.Failed, &run.Skipped, &total, &run.Error); err != nil {
		return nil, err
	}
	run.Period, _ = scheme.ParsePeriod(period)
	run.Status = payroll.Status(status)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseNullTime(finished)
	run.TotalNet = scheme.MustDecimal(total)
	return &run, nil
}

func (s *Store) SaveResults(ctx context.Context, results []payroll.AdvisorResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := s.rebind(`
		INSERT INTO commission_results (run_id, advisor_id, scheme_id, period, response_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for _, r := range results {
		var body sql.NullString
		if r.Response != nil {
			data, err := json.Marshal(r.Response)
			if err != nil {
				return fmt.Errorf("failed to encode result for %s: %w", r.AdvisorID, err)
			}
			body = nullString(string(data))
		}
		if _, err := tx.ExecContext(ctx, insert,
			r.RunID, string(r.AdvisorID), string(r.SchemeID), r.Period.String(),
			body, r.Error, timestamp(r.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to save result for %s: %w", r.AdvisorID, err)
		}
	}
	return tx.Commit()
}

const resultColumns = `run_id, advisor_id, scheme_id, period, response_json, error, created_at`

func (s *Store) ListResults(ctx context.Context, runID string) ([]payroll.AdvisorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+resultColumns+` FROM commission_results WHERE run_id = ? ORDER BY advisor_id
	`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.AdvisorResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) LatestResult(ctx context.Context, advisorID scheme.AdvisorID, p scheme.Period) (*payroll.AdvisorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT r.run_id, r.advisor_id, r.scheme_id, r.period, r.response_json, r.error, r.created_at
		FROM commission_results r JOIN payroll_runs pr ON pr.id = r.run_id
		WHERE r.advisor_id = ? AND r.period = ? AND pr.status IN (?, ?)
		ORDER BY pr.started_at DESC, pr.id DESC
		LIMIT 1
	`), string(advisorID), p.String(), string(payroll.StatusCompleted), string(payroll.StatusCompletedWithErrors))
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no result for %s in %s", scheme.ErrRunNotFound, advisorID, p)
	}
	return r, err
}

func scanResult(row rowScanner) (*payroll.AdvisorResult, error) {
	var r payroll.AdvisorResult
	var advisorID, schemeID, period, created string
	var body sql.NullString
	if err := row.Scan(&r.RunID, &advisorID, &schemeID, &period, &body, &r.Error, &created); err != nil {
		return nil, err
	}
	r.AdvisorID = scheme.AdvisorID(advisorID)
	r.SchemeID = scheme.SchemeID(schemeID)
	r.Period, _ = scheme.ParsePeriod(period)
	r.CreatedAt = parseTime(created)
	if body.Valid {
		var resp simulation.Response
		if err := json.Unmarshal([]byte(body.String), &resp); err != nil {
			return nil, fmt.Errorf("failed to decode result for %s: %w", advisorID, err)
		}
		r.Response = &resp
	}
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout is fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(timestamp(*t))
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
