/*
shift.go - Shift lifecycle manager

PURPOSE:
  State machine per register: NoActiveShift -> ShiftOpen -> ShiftClosed.
  ShiftClosed is terminal per shift instance; a new shift starts the
  cycle again for the same register.

INVARIANTS:
  - At most one shift in state open per register at any time. The check
    runs inside the store transaction, so two concurrent OpenShift calls
    on the same register cannot both succeed.
  - A shift and its opening are created atomically; both or neither
    persist.
  - Reconciling writes the vendor payments, the reconciliation row, the
    opening's closed flag, and the shift's closed state in one logical
    transaction. Partial application is prevented by WithTx rollback.
  - A non-zero difference requires an explanatory comment.

SEE ALSO:
  - difference.go: Discrepancy computation
  - documents.go:  Vendor-payment document numbering
  - transfer.go:   Consumes the closed reconciliation
*/
package custody

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SHIFT MANAGER
// =============================================================================

type ShiftManager struct {
	Store TxStore

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewShiftManager(store TxStore) *ShiftManager {
	return &ShiftManager{Store: store, Now: time.Now}
}

func (m *ShiftManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// =============================================================================
// OPEN SHIFT
// =============================================================================

type OpenShiftInput struct {
	RegisterID    RegisterID
	EmployeeID    EmployeeID
	InitialAmount Amount
	Date          time.Time
	StartTime     string // "15:04"; defaults to now
	Notes         string
}

// OpenShiftResult pairs the two rows created atomically.
type OpenShiftResult struct {
	Shift   Shift
	Opening Opening
}

// OpenShift starts a custody window on a register. Fails with
// ErrActiveShiftExists if the register already has an open shift with an
// unclosed opening; the check and the inserts share one transaction.
func (m *ShiftManager) OpenShift(ctx context.Context, in OpenShiftInput) (*OpenShiftResult, error) {
	if in.RegisterID == "" {
		return nil, &ValidationError{Field: "register_id", Message: "a register must be selected"}
	}
	if in.EmployeeID == "" {
		return nil, &ValidationError{Field: "employee_id", Message: "an employee must be selected"}
	}
	if in.InitialAmount.IsNegative() {
		return nil, &InvalidAmountError{Field: "initial_amount", Amount: in.InitialAmount}
	}

	reg, err := m.Store.GetRegister(ctx, in.RegisterID)
	if err != nil {
		return nil, storeErr(err)
	}
	if reg == nil {
		return nil, &NotFoundError{Entity: "register", ID: string(in.RegisterID)}
	}
	if !reg.Active {
		return nil, &ValidationError{Field: "register_id", Message: "register is inactive"}
	}
	emp, err := m.Store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, storeErr(err)
	}
	if emp == nil {
		return nil, &NotFoundError{Entity: "employee", ID: string(in.EmployeeID)}
	}
	if !emp.Active {
		return nil, &ValidationError{Field: "employee_id", Message: "employee is inactive"}
	}

	now := m.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	startTime := in.StartTime
	if startTime == "" {
		startTime = now.Format("15:04")
	}

	result := &OpenShiftResult{
		Shift: Shift{
			ID:         ShiftID(uuid.NewString()),
			RegisterID: in.RegisterID,
			EmployeeID: in.EmployeeID,
			Date:       date,
			StartTime:  startTime,
			State:      ShiftOpen,
			CreatedAt:  now,
		},
		Opening: Opening{
			ID:            OpeningID(uuid.NewString()),
			InitialAmount: in.InitialAmount,
			Notes:         in.Notes,
			CreatedAt:     now,
		},
	}
	result.Opening.ShiftID = result.Shift.ID

	err = m.Store.WithTx(ctx, func(s Store) error {
		active, err := s.OpenShift(ctx, in.RegisterID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrActiveShiftExists
		}
		if err := s.InsertShift(ctx, result.Shift); err != nil {
			return err
		}
		return s.InsertOpening(ctx, result.Opening)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return result, nil
}

// =============================================================================
// RECONCILE AND CLOSE
// =============================================================================

// VendorPaymentInput is one disbursement declared at close-out. When the
// document type is auto-numbered and DocumentNumber is blank, the system
// assigns the next sequential reference.
type VendorPaymentInput struct {
	Vendor         string
	DocumentType   DocumentType
	DocumentNumber string
	Amount         Amount
}

type ReconcileInput struct {
	ShiftID        ShiftID
	EmployeeID     EmployeeID // responsible employee confirmed at close
	CountedAmount  Amount
	FinalAmount    Amount
	VendorPayments []VendorPaymentInput
	Comment        string
}

// ReconcileAndClose counts the drawer, records vendor payments, and closes
// the shift. Everything persists in one transaction: the payments, the
// reconciliation row, the opening's closed flag, and the shift's closed
// state with its end time.
func (m *ShiftManager) ReconcileAndClose(ctx context.Context, in ReconcileInput) (*Reconciliation, error) {
	if in.ShiftID == "" {
		return nil, &ValidationError{Field: "shift_id", Message: "a shift must be selected"}
	}
	if in.EmployeeID == "" {
		return nil, &ValidationError{Field: "employee_id", Message: "an employee must be selected"}
	}
	for _, p := range in.VendorPayments {
		if p.Amount.IsNegative() {
			return nil, &InvalidAmountError{Field: "vendor_payment.amount", Amount: p.Amount}
		}
		if strings.TrimSpace(p.Vendor) == "" {
			return nil, &ValidationError{Field: "vendor_payment.vendor", Message: "vendor name is required"}
		}
	}

	vendorTotal := ZeroAmount()
	for _, p := range in.VendorPayments {
		vendorTotal = vendorTotal.Add(p.Amount)
	}

	difference, err := ReconciliationDifference(in.FinalAmount, vendorTotal, in.CountedAmount)
	if err != nil {
		return nil, err
	}
	if !difference.IsZero() && strings.TrimSpace(in.Comment) == "" {
		return nil, &CommentRequiredError{Difference: difference}
	}

	now := m.now()
	recon := &Reconciliation{
		ID:            ReconciliationID(uuid.NewString()),
		ShiftID:       in.ShiftID,
		CountedAmount: in.CountedAmount,
		FinalAmount:   in.FinalAmount,
		VendorTotal:   vendorTotal,
		Difference:    difference,
		Comment:       in.Comment,
		CreatedAt:     now,
	}

	err = m.Store.WithTx(ctx, func(s Store) error {
		shift, err := s.GetShift(ctx, in.ShiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Entity: "shift", ID: string(in.ShiftID)}
		}
		if shift.State != ShiftOpen {
			return ErrNoActiveShift
		}
		opening, err := s.GetOpeningByShift(ctx, in.ShiftID)
		if err != nil {
			return err
		}
		if opening == nil || opening.Closed {
			return ErrNoActiveShift
		}

		for _, p := range in.VendorPayments {
			number := strings.TrimSpace(p.DocumentNumber)
			if number == "" && AutoNumbered(p.DocumentType) {
				number, err = nextDocumentReference(ctx, s, p.DocumentType)
				if err != nil {
					return err
				}
			}
			payment := VendorPayment{
				ID:         VendorPaymentID(uuid.NewString()),
				ShiftID:    in.ShiftID,
				Concept:    PaymentConcept(p.DocumentType, number, p.Vendor),
				Amount:     p.Amount,
				OccurredAt: now,
				CreatedAt:  now,
			}
			if err := s.InsertVendorPayment(ctx, payment); err != nil {
				return err
			}
		}

		if err := s.InsertReconciliation(ctx, *recon); err != nil {
			return err
		}

		opening.Closed = true
		if err := s.UpdateOpening(ctx, *opening); err != nil {
			return err
		}

		shift.State = ShiftClosed
		shift.EndTime = now.Format("15:04")
		shift.EmployeeID = in.EmployeeID
		return s.UpdateShift(ctx, *shift)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return recon, nil
}

// ActiveShift returns the register's open shift with its opening, or nil
// when the register is idle.
func (m *ShiftManager) ActiveShift(ctx context.Context, registerID RegisterID) (*Shift, *Opening, error) {
	shift, err := m.Store.OpenShift(ctx, registerID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if shift == nil {
		return nil, nil, nil
	}
	opening, err := m.Store.GetOpeningByShift(ctx, shift.ID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	return shift, opening, nil
}
