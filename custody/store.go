/*
store.go - Persistence interface for custody entities

PURPOSE:
  Defines the interface between the custody state machines and the
  database. Different implementations can use SQLite, PostgreSQL, or
  in-memory storage.

KEY INTERFACES:
  Store:   Per-entity create/read/update and filtered query
  TxStore: Store plus WithTx, the transactional boundary

TRANSACTIONAL BOUNDARY:
  Operations that read-then-write the same aggregate (Shift+Opening,
  Transfer+Receipt) run inside WithTx. This is the sole mandatory
  mutual-exclusion boundary: it is what prevents two concurrent
  OpenShift calls on the same register from both succeeding, and a
  Receive racing a second Receive on the same transfer.

READ SEMANTICS:
  Get* methods return (nil, nil) when the entity is absent; the managers
  turn that into typed NotFound errors. List* methods return results in
  creation order unless documented otherwise.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - custody/store/memory.go: In-memory for testing

SEE ALSO:
  - shift.go, transfer.go: The only writers
  - history.go: Read-only consumer
*/
package custody

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Per-entity persistence
// =============================================================================

type Store interface {
	// Registers
	InsertRegister(ctx context.Context, r Register) error
	GetRegister(ctx context.Context, id RegisterID) (*Register, error)
	ListRegisters(ctx context.Context) ([]Register, error)
	// CentralRegister returns the single active central register, or nil.
	CentralRegister(ctx context.Context) (*Register, error)

	// Employees
	InsertEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	// Shifts
	InsertShift(ctx context.Context, s Shift) error
	GetShift(ctx context.Context, id ShiftID) (*Shift, error)
	UpdateShift(ctx context.Context, s Shift) error
	ListShifts(ctx context.Context) ([]Shift, error)
	// OpenShift returns the register's shift in state open whose opening
	// is not yet closed, or nil when the register is idle.
	OpenShift(ctx context.Context, registerID RegisterID) (*Shift, error)

	// Openings
	InsertOpening(ctx context.Context, o Opening) error
	GetOpeningByShift(ctx context.Context, shiftID ShiftID) (*Opening, error)
	UpdateOpening(ctx context.Context, o Opening) error
	ListOpenings(ctx context.Context) ([]Opening, error)

	// Reconciliations
	InsertReconciliation(ctx context.Context, r Reconciliation) error
	GetReconciliationByShift(ctx context.Context, shiftID ShiftID) (*Reconciliation, error)
	ListReconciliations(ctx context.Context) ([]Reconciliation, error)
	// LatestDispatchableReconciliation returns the newest reconciliation
	// with no transfer, or nil.
	LatestDispatchableReconciliation(ctx context.Context) (*Reconciliation, error)

	// Vendor payments
	InsertVendorPayment(ctx context.Context, p VendorPayment) error
	ListVendorPaymentsByShift(ctx context.Context, shiftID ShiftID) ([]VendorPayment, error)
	ListVendorPaymentsInRange(ctx context.Context, from, to time.Time) ([]VendorPayment, error)

	// Transfers
	InsertTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, id TransferID) (*Transfer, error)
	GetTransferByShift(ctx context.Context, shiftID ShiftID) (*Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	// ListTransfers returns transfers whose state is in states; an empty
	// slice means all states. Newest dispatch first.
	ListTransfers(ctx context.Context, states []TransferState) ([]Transfer, error)

	// Receipts
	InsertReceipt(ctx context.Context, r Receipt) error
	GetReceiptByTransfer(ctx context.Context, transferID TransferID) (*Receipt, error)
	UpdateReceipt(ctx context.Context, r Receipt) error
	ListReceipts(ctx context.Context) ([]Receipt, error)

	// Parameters
	UpsertParameter(ctx context.Context, p Parameter) error
	GetParameter(ctx context.Context, key string) (*Parameter, error)
	ListParameters(ctx context.Context) ([]Parameter, error)

	// NextDocumentNumber increments and returns the persistent counter
	// for a document prefix (DNA, DEV, REC). Counters are globally
	// monotonic; call inside WithTx so a rolled-back reconciliation does
	// not burn numbers.
	NextDocumentNumber(ctx context.Context, prefix string) (int64, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-row writes
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store it received
// is rolled back; partial application is a correctness violation.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
