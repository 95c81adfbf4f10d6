/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements custody.Store and custody.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  registers:         Cash drawer fleet (ordinary + the single central one)
  employees:         Directory records referenced by custody operations
  shifts:            Custody windows per register
  openings:          Declared floats, 1:1 with shifts
  reconciliations:   Close-out counts, 1:1 with shifts
  vendor_payments:   Disbursements recorded at close-out
  transfers:         Reconciled cash in motion, 1:1 with shifts
  receipts:          Arrival confirmations, 1:1 with transfers
  parameters:        Tunable thresholds
  document_counters: Monotonic per-prefix reference counters

INVARIANTS ENFORCED IN SCHEMA:
  - idx_shifts_one_open:     At most one open shift per register
  - idx_registers_central:   At most one active central register
  - UNIQUE(shift_id):        One opening/reconciliation/transfer per shift
  - UNIQUE(transfer_id):     One receipt per transfer

AMOUNTS:
  Stored as exact decimal strings, never floats. Parsed back through
  custody.MustParseAmount.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/custody.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  shifts := custody.NewShiftManager(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - custody/store.go: Interface definitions
  - custody/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/cash-custody/custody"
)

// Store implements custody.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT,
		kind TEXT NOT NULL DEFAULT 'ordinary',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- At most one active central register
	CREATE UNIQUE INDEX IF NOT EXISTS idx_registers_central
		ON registers(kind) WHERE kind = 'central' AND active = TRUE;

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		role TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		register_id TEXT NOT NULL REFERENCES registers(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one open shift per register
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_open
		ON shifts(register_id) WHERE state = 'open';
	CREATE INDEX IF NOT EXISTS idx_shifts_register
		ON shifts(register_id);

	CREATE TABLE IF NOT EXISTS openings (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL UNIQUE REFERENCES shifts(id),
		initial_amount TEXT NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reconciliations (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL UNIQUE REFERENCES shifts(id),
		counted_amount TEXT NOT NULL,
		final_amount TEXT NOT NULL,
		vendor_total TEXT NOT NULL,
		difference TEXT NOT NULL,
		comment TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vendor_payments (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		concept TEXT NOT NULL,
		amount TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vendor_payments_shift
		ON vendor_payments(shift_id);
	CREATE INDEX IF NOT EXISTS idx_vendor_payments_occurred
		ON vendor_payments(occurred_at);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL UNIQUE REFERENCES shifts(id),
		sender_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		destination_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		state TEXT NOT NULL,
		dispatched_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_state
		ON transfers(state);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		transfer_id TEXT NOT NULL UNIQUE REFERENCES transfers(id),
		receiver_id TEXT,
		received_amount TEXT NOT NULL,
		difference TEXT NOT NULL,
		comment TEXT,
		received_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS parameters (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_counters (
		prefix TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same helpers serve both
// direct calls and transactional views.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// REGISTERS
// =============================================================================

func (s *Store) InsertRegister(ctx context.Context, r custody.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRegister(ctx, s.db, r)
}

func insertRegister(ctx context.Context, q querier, r custody.Register) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO registers (id, name, location, kind, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Location, r.Kind, r.Active, r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return custody.ErrCentralRegisterExists
		}
		return fmt.Errorf("failed to insert register: %w", err)
	}
	return nil
}

const registerCols = `id, name, location, kind, active, created_at`

func scanRegister(row interface{ Scan(...any) error }) (*custody.Register, error) {
	var r custody.Register
	var location sql.NullString
	var createdAt string
	err := row.Scan(&r.ID, &r.Name, &location, &r.Kind, &r.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan register: %w", err)
	}
	r.Location = location.String
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func (s *Store) GetRegister(ctx context.Context, id custody.RegisterID) (*custody.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRegister(ctx, s.db, id)
}

func getRegister(ctx context.Context, q querier, id custody.RegisterID) (*custody.Register, error) {
	row := q.QueryRowContext(ctx, `SELECT `+registerCols+` FROM registers WHERE id = ?`, id)
	return scanRegister(row)
}

func (s *Store) ListRegisters(ctx context.Context) ([]custody.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRegisters(ctx, s.db)
}

func listRegisters(ctx context.Context, q querier) ([]custody.Register, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+registerCols+` FROM registers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Register
	for rows.Next() {
		r, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) CentralRegister(ctx context.Context) (*custody.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return centralRegister(ctx, s.db)
}

func centralRegister(ctx context.Context, q querier) (*custody.Register, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+registerCols+` FROM registers WHERE kind = 'central' AND active = TRUE LIMIT 1`)
	return scanRegister(row)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) InsertEmployee(ctx context.Context, e custody.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEmployee(ctx, s.db, e)
}

func insertEmployee(ctx context.Context, q querier, e custody.Employee) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO employees (id, full_name, role, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.FullName, e.Role, e.Active, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

func scanEmployee(row interface{ Scan(...any) error }) (*custody.Employee, error) {
	var e custody.Employee
	var role sql.NullString
	var createdAt string
	err := row.Scan(&e.ID, &e.FullName, &role, &e.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}
	e.Role = role.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func (s *Store) GetEmployee(ctx context.Context, id custody.EmployeeID) (*custody.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, q querier, id custody.EmployeeID) (*custody.Employee, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, full_name, role, active, created_at FROM employees WHERE id = ?`, id)
	return scanEmployee(row)
}

func (s *Store) ListEmployees(ctx context.Context) ([]custody.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db)
}

func listEmployees(ctx context.Context, q querier) ([]custody.Employee, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, full_name, role, active, created_at FROM employees ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// SHIFTS
// =============================================================================

const shiftCols = `id, register_id, employee_id, date, start_time, end_time, state, created_at`

func (s *Store) InsertShift(ctx context.Context, sh custody.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertShift(ctx, s.db, sh)
}

func insertShift(ctx context.Context, q querier, sh custody.Shift) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO shifts (`+shiftCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.RegisterID, sh.EmployeeID,
		sh.Date.Format("2006-01-02"), sh.StartTime, nullString(sh.EndTime),
		sh.State, sh.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return custody.ErrActiveShiftExists
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

func scanShift(row interface{ Scan(...any) error }) (*custody.Shift, error) {
	var sh custody.Shift
	var date, createdAt string
	var endTime sql.NullString
	err := row.Scan(&sh.ID, &sh.RegisterID, &sh.EmployeeID, &date, &sh.StartTime, &endTime, &sh.State, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	sh.Date, _ = time.Parse("2006-01-02", date)
	sh.EndTime = endTime.String
	sh.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &sh, nil
}

func (s *Store) GetShift(ctx context.Context, id custody.ShiftID) (*custody.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getShift(ctx, s.db, id)
}

func getShift(ctx context.Context, q querier, id custody.ShiftID) (*custody.Shift, error) {
	row := q.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE id = ?`, id)
	return scanShift(row)
}

func (s *Store) UpdateShift(ctx context.Context, sh custody.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateShift(ctx, s.db, sh)
}

func updateShift(ctx context.Context, q querier, sh custody.Shift) error {
	res, err := q.ExecContext(ctx,
		`UPDATE shifts SET register_id = ?, employee_id = ?, date = ?, start_time = ?, end_time = ?, state = ? WHERE id = ?`,
		sh.RegisterID, sh.EmployeeID, sh.Date.Format("2006-01-02"),
		sh.StartTime, nullString(sh.EndTime), sh.State, sh.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	return requireRow(res, "shift", string(sh.ID))
}

func (s *Store) ListShifts(ctx context.Context) ([]custody.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listShifts(ctx, s.db)
}

func listShifts(ctx context.Context, q querier) ([]custody.Shift, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+shiftCols+` FROM shifts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sh)
	}
	return out, rows.Err()
}

func (s *Store) OpenShift(ctx context.Context, registerID custody.RegisterID) (*custody.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openShift(ctx, s.db, registerID)
}

func openShift(ctx context.Context, q querier, registerID custody.RegisterID) (*custody.Shift, error) {
	row := q.QueryRowContext(ctx, `
		SELECT s.id, s.register_id, s.employee_id, s.date, s.start_time, s.end_time, s.state, s.created_at
		FROM shifts s
		JOIN openings o ON o.shift_id = s.id
		WHERE s.register_id = ? AND s.state = 'open' AND o.closed = FALSE
		LIMIT 1`, registerID)
	return scanShift(row)
}

// =============================================================================
// OPENINGS
// =============================================================================

func (s *Store) InsertOpening(ctx context.Context, o custody.Opening) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOpening(ctx, s.db, o)
}

func insertOpening(ctx context.Context, q querier, o custody.Opening) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO openings (id, shift_id, initial_amount, closed, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.ShiftID, o.InitialAmount.String(), o.Closed, o.Notes,
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert opening: %w", err)
	}
	return nil
}

func scanOpening(row interface{ Scan(...any) error }) (*custody.Opening, error) {
	var o custody.Opening
	var amount, createdAt string
	var notes sql.NullString
	err := row.Scan(&o.ID, &o.ShiftID, &amount, &o.Closed, &notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan opening: %w", err)
	}
	o.InitialAmount = custody.MustParseAmount(amount)
	o.Notes = notes.String
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &o, nil
}

func (s *Store) GetOpeningByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Opening, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOpeningByShift(ctx, s.db, shiftID)
}

func getOpeningByShift(ctx context.Context, q querier, shiftID custody.ShiftID) (*custody.Opening, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, shift_id, initial_amount, closed, notes, created_at FROM openings WHERE shift_id = ?`, shiftID)
	return scanOpening(row)
}

func (s *Store) UpdateOpening(ctx context.Context, o custody.Opening) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateOpening(ctx, s.db, o)
}

func updateOpening(ctx context.Context, q querier, o custody.Opening) error {
	res, err := q.ExecContext(ctx,
		`UPDATE openings SET initial_amount = ?, closed = ?, notes = ? WHERE id = ?`,
		o.InitialAmount.String(), o.Closed, o.Notes, o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update opening: %w", err)
	}
	return requireRow(res, "opening", string(o.ID))
}

func (s *Store) ListOpenings(ctx context.Context) ([]custody.Opening, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOpenings(ctx, s.db)
}

func listOpenings(ctx context.Context, q querier) ([]custody.Opening, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, shift_id, initial_amount, closed, notes, created_at FROM openings ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Opening
	for rows.Next() {
		o, err := scanOpening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// =============================================================================
// RECONCILIATIONS
// =============================================================================

const reconCols = `id, shift_id, counted_amount, final_amount, vendor_total, difference, comment, created_at`

func (s *Store) InsertReconciliation(ctx context.Context, r custody.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReconciliation(ctx, s.db, r)
}

func insertReconciliation(ctx context.Context, q querier, r custody.Reconciliation) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO reconciliations (`+reconCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ShiftID, r.CountedAmount.String(), r.FinalAmount.String(),
		r.VendorTotal.String(), r.Difference.String(), r.Comment,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reconciliation: %w", err)
	}
	return nil
}

func scanReconciliation(row interface{ Scan(...any) error }) (*custody.Reconciliation, error) {
	var r custody.Reconciliation
	var counted, final, vendorTotal, difference, createdAt string
	var comment sql.NullString
	err := row.Scan(&r.ID, &r.ShiftID, &counted, &final, &vendorTotal, &difference, &comment, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
	}
	r.CountedAmount = custody.MustParseAmount(counted)
	r.FinalAmount = custody.MustParseAmount(final)
	r.VendorTotal = custody.MustParseAmount(vendorTotal)
	r.Difference = custody.MustParseAmount(difference)
	r.Comment = comment.String
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func (s *Store) GetReconciliationByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReconciliationByShift(ctx, s.db, shiftID)
}

func getReconciliationByShift(ctx context.Context, q querier, shiftID custody.ShiftID) (*custody.Reconciliation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+reconCols+` FROM reconciliations WHERE shift_id = ?`, shiftID)
	return scanReconciliation(row)
}

func (s *Store) ListReconciliations(ctx context.Context) ([]custody.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReconciliations(ctx, s.db)
}

func listReconciliations(ctx context.Context, q querier) ([]custody.Reconciliation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+reconCols+` FROM reconciliations ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Reconciliation
	for rows.Next() {
		r, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) LatestDispatchableReconciliation(ctx context.Context) (*custody.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestDispatchableReconciliation(ctx, s.db)
}

func latestDispatchableReconciliation(ctx context.Context, q querier) (*custody.Reconciliation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT r.id, r.shift_id, r.counted_amount, r.final_amount, r.vendor_total, r.difference, r.comment, r.created_at
		FROM reconciliations r
		LEFT JOIN transfers t ON t.shift_id = r.shift_id
		WHERE t.id IS NULL
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT 1`)
	return scanReconciliation(row)
}

// =============================================================================
// VENDOR PAYMENTS
// =============================================================================

const paymentCols = `id, shift_id, concept, amount, occurred_at, created_at`

func (s *Store) InsertVendorPayment(ctx context.Context, p custody.VendorPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertVendorPayment(ctx, s.db, p)
}

func insertVendorPayment(ctx context.Context, q querier, p custody.VendorPayment) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO vendor_payments (`+paymentCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ShiftID, p.Concept, p.Amount.String(),
		p.OccurredAt.UTC().Format(time.RFC3339Nano),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vendor payment: %w", err)
	}
	return nil
}

func scanVendorPayment(row interface{ Scan(...any) error }) (*custody.VendorPayment, error) {
	var p custody.VendorPayment
	var amount, occurredAt, createdAt string
	err := row.Scan(&p.ID, &p.ShiftID, &p.Concept, &amount, &occurredAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vendor payment: %w", err)
	}
	p.Amount = custody.MustParseAmount(amount)
	p.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

func (s *Store) ListVendorPaymentsByShift(ctx context.Context, shiftID custody.ShiftID) ([]custody.VendorPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVendorPaymentsByShift(ctx, s.db, shiftID)
}

func listVendorPaymentsByShift(ctx context.Context, q querier, shiftID custody.ShiftID) ([]custody.VendorPayment, error) {
	return queryVendorPayments(ctx, q,
		`SELECT `+paymentCols+` FROM vendor_payments WHERE shift_id = ? ORDER BY created_at ASC, id ASC`, shiftID)
}

func (s *Store) ListVendorPaymentsInRange(ctx context.Context, from, to time.Time) ([]custody.VendorPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVendorPaymentsInRange(ctx, s.db, from, to)
}

func listVendorPaymentsInRange(ctx context.Context, q querier, from, to time.Time) ([]custody.VendorPayment, error) {
	return queryVendorPayments(ctx, q,
		`SELECT `+paymentCols+` FROM vendor_payments WHERE occurred_at >= ? AND occurred_at <= ? ORDER BY occurred_at ASC, id ASC`,
		from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
}

func queryVendorPayments(ctx context.Context, q querier, query string, args ...any) ([]custody.VendorPayment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.VendorPayment
	for rows.Next() {
		p, err := scanVendorPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSFERS
// =============================================================================

const transferCols = `id, shift_id, sender_id, source_id, destination_id, amount, state, dispatched_at, created_at`

func (s *Store) InsertTransfer(ctx context.Context, t custody.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransfer(ctx, s.db, t)
}

func insertTransfer(ctx context.Context, q querier, t custody.Transfer) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transfers (`+transferCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ShiftID, t.SenderID, t.SourceID, t.DestinationID,
		t.Amount.String(), t.State,
		t.DispatchedAt.UTC().Format(time.RFC3339Nano),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return custody.ErrTransferAlreadyExists
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func scanTransfer(row interface{ Scan(...any) error }) (*custody.Transfer, error) {
	var t custody.Transfer
	var amount, dispatchedAt, createdAt string
	err := row.Scan(&t.ID, &t.ShiftID, &t.SenderID, &t.SourceID, &t.DestinationID, &amount, &t.State, &dispatchedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}
	t.Amount = custody.MustParseAmount(amount)
	t.DispatchedAt, _ = time.Parse(time.RFC3339Nano, dispatchedAt)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &t, nil
}

func (s *Store) GetTransfer(ctx context.Context, id custody.TransferID) (*custody.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransfer(ctx, s.db, id)
}

func getTransfer(ctx context.Context, q querier, id custody.TransferID) (*custody.Transfer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transferCols+` FROM transfers WHERE id = ?`, id)
	return scanTransfer(row)
}

func (s *Store) GetTransferByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransferByShift(ctx, s.db, shiftID)
}

func getTransferByShift(ctx context.Context, q querier, shiftID custody.ShiftID) (*custody.Transfer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transferCols+` FROM transfers WHERE shift_id = ?`, shiftID)
	return scanTransfer(row)
}

func (s *Store) UpdateTransfer(ctx context.Context, t custody.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransfer(ctx, s.db, t)
}

func updateTransfer(ctx context.Context, q querier, t custody.Transfer) error {
	res, err := q.ExecContext(ctx,
		`UPDATE transfers SET state = ?, amount = ? WHERE id = ?`,
		t.State, t.Amount.String(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	return requireRow(res, "transfer", string(t.ID))
}

func (s *Store) ListTransfers(ctx context.Context, states []custody.TransferState) ([]custody.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransfers(ctx, s.db, states)
}

func listTransfers(ctx context.Context, q querier, states []custody.TransferState) ([]custody.Transfer, error) {
	query := `SELECT ` + transferCols + ` FROM transfers`
	var args []any
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` WHERE state IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY dispatched_at DESC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// =============================================================================
// RECEIPTS
// =============================================================================

const receiptCols = `id, transfer_id, receiver_id, received_amount, difference, comment, received_at, created_at`

func (s *Store) InsertReceipt(ctx context.Context, r custody.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReceipt(ctx, s.db, r)
}

func insertReceipt(ctx context.Context, q querier, r custody.Receipt) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO receipts (`+receiptCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TransferID, nullString(string(r.ReceiverID)),
		r.ReceivedAmount.String(), r.Difference.String(), r.Comment,
		nullTime(r.ReceivedAt),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func scanReceipt(row interface{ Scan(...any) error }) (*custody.Receipt, error) {
	var r custody.Receipt
	var amount, difference, createdAt string
	var receiver, comment, receivedAt sql.NullString
	err := row.Scan(&r.ID, &r.TransferID, &receiver, &amount, &difference, &comment, &receivedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}
	r.ReceiverID = custody.EmployeeID(receiver.String)
	r.ReceivedAmount = custody.MustParseAmount(amount)
	r.Difference = custody.MustParseAmount(difference)
	r.Comment = comment.String
	if receivedAt.Valid {
		r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt.String)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func (s *Store) GetReceiptByTransfer(ctx context.Context, transferID custody.TransferID) (*custody.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReceiptByTransfer(ctx, s.db, transferID)
}

func getReceiptByTransfer(ctx context.Context, q querier, transferID custody.TransferID) (*custody.Receipt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+receiptCols+` FROM receipts WHERE transfer_id = ?`, transferID)
	return scanReceipt(row)
}

func (s *Store) UpdateReceipt(ctx context.Context, r custody.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReceipt(ctx, s.db, r)
}

func updateReceipt(ctx context.Context, q querier, r custody.Receipt) error {
	res, err := q.ExecContext(ctx,
		`UPDATE receipts SET receiver_id = ?, received_amount = ?, difference = ?, comment = ?, received_at = ? WHERE id = ?`,
		nullString(string(r.ReceiverID)), r.ReceivedAmount.String(),
		r.Difference.String(), r.Comment, nullTime(r.ReceivedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	return requireRow(res, "receipt", string(r.ID))
}

func (s *Store) ListReceipts(ctx context.Context) ([]custody.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReceipts(ctx, s.db)
}

func listReceipts(ctx context.Context, q querier) ([]custody.Receipt, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+receiptCols+` FROM receipts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// =============================================================================
// PARAMETERS + DOCUMENT COUNTERS
// =============================================================================

func (s *Store) UpsertParameter(ctx context.Context, p custody.Parameter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertParameter(ctx, s.db, p)
}

func upsertParameter(ctx context.Context, q querier, p custody.Parameter) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO parameters (key, value, description, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		p.Key, p.Value, p.Description, p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert parameter: %w", err)
	}
	return nil
}

func scanParameter(row interface{ Scan(...any) error }) (*custody.Parameter, error) {
	var p custody.Parameter
	var description sql.NullString
	var updatedAt string
	err := row.Scan(&p.Key, &p.Value, &description, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan parameter: %w", err)
	}
	p.Description = description.String
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *Store) GetParameter(ctx context.Context, key string) (*custody.Parameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParameter(ctx, s.db, key)
}

func getParameter(ctx context.Context, q querier, key string) (*custody.Parameter, error) {
	row := q.QueryRowContext(ctx,
		`SELECT key, value, description, updated_at FROM parameters WHERE key = ?`, key)
	return scanParameter(row)
}

func (s *Store) ListParameters(ctx context.Context) ([]custody.Parameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listParameters(ctx, s.db)
}

func listParameters(ctx context.Context, q querier) ([]custody.Parameter, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value, description, updated_at FROM parameters ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []custody.Parameter
	for rows.Next() {
		p, err := scanParameter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) NextDocumentNumber(ctx context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextDocumentNumber(ctx, s.db, prefix)
}

func nextDocumentNumber(ctx context.Context, q querier, prefix string) (int64, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO document_counters (prefix, value) VALUES (?, 1)
		ON CONFLICT(prefix) DO UPDATE SET value = value + 1`, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to advance document counter: %w", err)
	}
	var n int64
	err = q.QueryRowContext(ctx, `SELECT value FROM document_counters WHERE prefix = ?`, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read document counter: %w", err)
	}
	return n, nil
}

// =============================================================================
// TRANSACTIONAL STORE (custody.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store custody.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store call through the open transaction; reads
// inside the transaction see its own writes.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertRegister(ctx context.Context, r custody.Register) error {
	return insertRegister(ctx, ts.tx, r)
}

func (ts *txStore) GetRegister(ctx context.Context, id custody.RegisterID) (*custody.Register, error) {
	return getRegister(ctx, ts.tx, id)
}

func (ts *txStore) ListRegisters(ctx context.Context) ([]custody.Register, error) {
	return listRegisters(ctx, ts.tx)
}

func (ts *txStore) CentralRegister(ctx context.Context) (*custody.Register, error) {
	return centralRegister(ctx, ts.tx)
}

func (ts *txStore) InsertEmployee(ctx context.Context, e custody.Employee) error {
	return insertEmployee(ctx, ts.tx, e)
}

func (ts *txStore) GetEmployee(ctx context.Context, id custody.EmployeeID) (*custody.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]custody.Employee, error) {
	return listEmployees(ctx, ts.tx)
}

func (ts *txStore) InsertShift(ctx context.Context, sh custody.Shift) error {
	return insertShift(ctx, ts.tx, sh)
}

func (ts *txStore) GetShift(ctx context.Context, id custody.ShiftID) (*custody.Shift, error) {
	return getShift(ctx, ts.tx, id)
}

func (ts *txStore) UpdateShift(ctx context.Context, sh custody.Shift) error {
	return updateShift(ctx, ts.tx, sh)
}

func (ts *txStore) ListShifts(ctx context.Context) ([]custody.Shift, error) {
	return listShifts(ctx, ts.tx)
}

func (ts *txStore) OpenShift(ctx context.Context, registerID custody.RegisterID) (*custody.Shift, error) {
	return openShift(ctx, ts.tx, registerID)
}

func (ts *txStore) InsertOpening(ctx context.Context, o custody.Opening) error {
	return insertOpening(ctx, ts.tx, o)
}

func (ts *txStore) GetOpeningByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Opening, error) {
	return getOpeningByShift(ctx, ts.tx, shiftID)
}

func (ts *txStore) UpdateOpening(ctx context.Context, o custody.Opening) error {
	return updateOpening(ctx, ts.tx, o)
}

func (ts *txStore) ListOpenings(ctx context.Context) ([]custody.Opening, error) {
	return listOpenings(ctx, ts.tx)
}

func (ts *txStore) InsertReconciliation(ctx context.Context, r custody.Reconciliation) error {
	return insertReconciliation(ctx, ts.tx, r)
}

func (ts *txStore) GetReconciliationByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Reconciliation, error) {
	return getReconciliationByShift(ctx, ts.tx, shiftID)
}

func (ts *txStore) ListReconciliations(ctx context.Context) ([]custody.Reconciliation, error) {
	return listReconciliations(ctx, ts.tx)
}

func (ts *txStore) LatestDispatchableReconciliation(ctx context.Context) (*custody.Reconciliation, error) {
	return latestDispatchableReconciliation(ctx, ts.tx)
}

func (ts *txStore) InsertVendorPayment(ctx context.Context, p custody.VendorPayment) error {
	return insertVendorPayment(ctx, ts.tx, p)
}

func (ts *txStore) ListVendorPaymentsByShift(ctx context.Context, shiftID custody.ShiftID) ([]custody.VendorPayment, error) {
	return listVendorPaymentsByShift(ctx, ts.tx, shiftID)
}

func (ts *txStore) ListVendorPaymentsInRange(ctx context.Context, from, to time.Time) ([]custody.VendorPayment, error) {
	return listVendorPaymentsInRange(ctx, ts.tx, from, to)
}

func (ts *txStore) InsertTransfer(ctx context.Context, t custody.Transfer) error {
	return insertTransfer(ctx, ts.tx, t)
}

func (ts *txStore) GetTransfer(ctx context.Context, id custody.TransferID) (*custody.Transfer, error) {
	return getTransfer(ctx, ts.tx, id)
}

func (ts *txStore) GetTransferByShift(ctx context.Context, shiftID custody.ShiftID) (*custody.Transfer, error) {
	return getTransferByShift(ctx, ts.tx, shiftID)
}

func (ts *txStore) UpdateTransfer(ctx context.Context, t custody.Transfer) error {
	return updateTransfer(ctx, ts.tx, t)
}

func (ts *txStore) ListTransfers(ctx context.Context, states []custody.TransferState) ([]custody.Transfer, error) {
	return listTransfers(ctx, ts.tx, states)
}

func (ts *txStore) InsertReceipt(ctx context.Context, r custody.Receipt) error {
	return insertReceipt(ctx, ts.tx, r)
}

func (ts *txStore) GetReceiptByTransfer(ctx context.Context, transferID custody.TransferID) (*custody.Receipt, error) {
	return getReceiptByTransfer(ctx, ts.tx, transferID)
}

func (ts *txStore) UpdateReceipt(ctx context.Context, r custody.Receipt) error {
	return updateReceipt(ctx, ts.tx, r)
}

func (ts *txStore) ListReceipts(ctx context.Context) ([]custody.Receipt, error) {
	return listReceipts(ctx, ts.tx)
}

func (ts *txStore) UpsertParameter(ctx context.Context, p custody.Parameter) error {
	return upsertParameter(ctx, ts.tx, p)
}

func (ts *txStore) GetParameter(ctx context.Context, key string) (*custody.Parameter, error) {
	return getParameter(ctx, ts.tx, key)
}

func (ts *txStore) ListParameters(ctx context.Context) ([]custody.Parameter, error) {
	return listParameters(ctx, ts.tx)
}

func (ts *txStore) NextDocumentNumber(ctx context.Context, prefix string) (int64, error) {
	return nextDocumentNumber(ctx, ts.tx, prefix)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &custody.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
