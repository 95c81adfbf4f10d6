/*
Package custody is the core cash-custody engine.

PURPOSE:
  This package contains the domain types and state machines for tracking
  physical cash as it moves through a retail operation: a register is
  opened with a float, operated through a shift, reconciled against
  expected sales and vendor disbursements, then transferred to the central
  register and received there.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with exact fixed-point arithmetic
  - Register: A physical cash drawer (ordinary or the single central one)
  - Shift / Opening: One operator's custody window and its declared float
  - Reconciliation / VendorPayment: The close-out count and disbursements
  - Transfer / Receipt: Movement of reconciled cash to the central register
  - Operation: A read-side history record merging all of the above

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift;
     the wire format is integer minor units (cents)
  2. Type Safety: Strong typing for IDs prevents mixing entity IDs
  3. No ambient actor: every operation takes an explicit employee identity

SEE ALSO:
  - shift.go:    Shift lifecycle state machine
  - transfer.go: Transfer workflow state machine
  - history.go:  Read-only operation log
  - store.go:    Persistence interface
*/
package custody

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity (single currency, fixed-point)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

// AmountFromCents builds an Amount from integer minor units.
// This is the only constructor API boundaries should use.
func AmountFromCents(cents int64) Amount {
	return Amount{Value: decimal.New(cents, -2)}
}

// ParseAmount parses a decimal string like "12.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &InvalidAmountError{Field: "amount"}
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Value: decimal.Zero}
	}
	return Amount{Value: d}
}

// Cents returns the amount in integer minor units, rounded half-up.
func (a Amount) Cents() int64 { return a.Value.Round(2).Shift(2).IntPart() }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) Abs() Amount               { return Amount{Value: a.Value.Abs()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

func (a Amount) String() string { return a.Value.StringFixed(2) }

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RegisterID string
type EmployeeID string
type ShiftID string
type OpeningID string
type ReconciliationID string
type VendorPaymentID string
type TransferID string
type ReceiptID string

// =============================================================================
// REGISTER - A physical cash drawer
// =============================================================================

type RegisterKind string

const (
	RegisterOrdinary RegisterKind = "ordinary"
	RegisterCentral  RegisterKind = "central" // exactly one active central register
)

type Register struct {
	ID        RegisterID
	Name      string
	Location  string
	Kind      RegisterKind
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// EMPLOYEE - Directory record referenced by custody operations
// =============================================================================

type Employee struct {
	ID        EmployeeID
	FullName  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// SHIFT + OPENING - One operator's custody window on a register
// =============================================================================

type ShiftState string

const (
	ShiftOpen   ShiftState = "open"
	ShiftClosed ShiftState = "closed"
)

type Shift struct {
	ID         ShiftID
	RegisterID RegisterID
	EmployeeID EmployeeID
	Date       time.Time // day granularity
	StartTime  string    // "15:04"
	EndTime    string    // set when the shift closes
	State      ShiftState
	CreatedAt  time.Time
}

// Opening is the float declared at shift start. It is created atomically
// with its Shift, and its Closed flag flips exactly once, when the shift's
// reconciliation completes.
type Opening struct {
	ID            OpeningID
	ShiftID       ShiftID
	InitialAmount Amount
	Closed        bool
	Notes         string
	CreatedAt     time.Time
}

// =============================================================================
// RECONCILIATION + VENDOR PAYMENT - Close-out count for a shift
// =============================================================================

// Reconciliation records the close-out count for a shift.
// Invariant: Difference = (FinalAmount - VendorTotal) - CountedAmount,
// and Comment is non-blank whenever Difference is non-zero.
type Reconciliation struct {
	ID            ReconciliationID
	ShiftID       ShiftID
	CountedAmount Amount // physical cash counted
	FinalAmount   Amount // expected sales total for the shift
	VendorTotal   Amount // sum of the shift's vendor payments
	Difference    Amount
	Comment       string
	CreatedAt     time.Time
}

// VendorPayment is a cash disbursement recorded against a shift.
type VendorPayment struct {
	ID         VendorPaymentID
	ShiftID    ShiftID
	Concept    string
	Amount     Amount
	OccurredAt time.Time
	CreatedAt  time.Time
}

// DocumentType classifies the paper trail behind a vendor payment.
// The last three have no external document, so the system assigns a
// sequential reference for them (see documents.go).
type DocumentType string

const (
	DocInvoice      DocumentType = "Factura"
	DocSalesNote    DocumentType = "Nota de venta"
	DocUnauthorized DocumentType = "Doc. no autorizado"
	DocReturn       DocumentType = "Devolución"
	DocReception    DocumentType = "Recepción"
)

// =============================================================================
// TRANSFER + RECEIPT - Reconciled cash moving to the central register
// =============================================================================

type TransferState string

const (
	TransferInTransit TransferState = "in_transit"
	TransferReceived  TransferState = "received"
	TransferObserved  TransferState = "observed" // received with a discrepancy
)

// Terminal reports whether the transfer state admits no further transitions.
func (s TransferState) Terminal() bool {
	return s == TransferReceived || s == TransferObserved
}

type Transfer struct {
	ID            TransferID
	ShiftID       ShiftID
	SenderID      EmployeeID
	SourceID      RegisterID
	DestinationID RegisterID // the central register
	Amount        Amount     // the reconciliation's counted amount
	State         TransferState
	DispatchedAt  time.Time
	CreatedAt     time.Time
}

// Receipt confirms a transfer's arrival. A placeholder row (zero amounts,
// no receiver) is created at dispatch to pre-allocate the 1:1 slot; the
// row is finalized by Receive. A transfer in state in_transit always has a
// placeholder receipt, never a finalized one.
type Receipt struct {
	ID             ReceiptID
	TransferID     TransferID
	ReceiverID     EmployeeID
	ReceivedAmount Amount
	Difference     Amount // ReceivedAmount - Transfer.Amount
	Comment        string
	ReceivedAt     time.Time
	CreatedAt      time.Time
}

// =============================================================================
// PARAMETER - Named configuration value
// =============================================================================

type Parameter struct {
	Key         string
	Value       string // numeric values stored as decimal strings
	Description string
	UpdatedAt   time.Time
}
