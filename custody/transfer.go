/*
transfer.go - Transfer workflow manager

PURPOSE:
  State machine per transfer: in_transit -> {received | observed}, both
  terminal. A transfer is created only from a closed reconciliation and
  always carries that reconciliation's counted amount toward the central
  register.

INVARIANTS:
  - One transfer per shift: a second dispatch fails with
    ErrTransferAlreadyExists instead of creating a duplicate.
  - A placeholder receipt (zero amounts, no receiver) is created with the
    transfer to pre-allocate the 1:1 slot; Receive finalizes it.
  - Receive is one-way: once received/observed, further calls fail with
    ErrTransferAlreadyFinalized.
  - A non-zero arrival difference requires an explanatory comment and
    lands the transfer in observed rather than received.

SEE ALSO:
  - shift.go:      Produces the closed reconciliation
  - difference.go: Arrival discrepancy computation
  - parameters.go: Transit alert threshold
*/
package custody

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TRANSFER MANAGER
// =============================================================================

type TransferManager struct {
	Store  TxStore
	Params *Parameters

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewTransferManager(store TxStore) *TransferManager {
	return &TransferManager{Store: store, Params: &Parameters{Store: store}, Now: time.Now}
}

func (m *TransferManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch sends the shift's reconciled cash toward the central register.
// The transfer amount is the reconciliation's counted amount, the sender
// is the shift's employee, and a placeholder receipt is created in the
// same transaction.
func (m *TransferManager) Dispatch(ctx context.Context, shiftID ShiftID) (*Transfer, error) {
	if shiftID == "" {
		return nil, &ValidationError{Field: "shift_id", Message: "a shift must be selected"}
	}

	now := m.now()
	var transfer *Transfer

	err := m.Store.WithTx(ctx, func(s Store) error {
		shift, err := s.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift == nil {
			return &NotFoundError{Entity: "shift", ID: string(shiftID)}
		}
		recon, err := s.GetReconciliationByShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if recon == nil {
			return ErrReconciliationNotFound
		}
		existing, err := s.GetTransferByShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrTransferAlreadyExists
		}
		central, err := s.CentralRegister(ctx)
		if err != nil {
			return err
		}
		if central == nil {
			return ErrNoCentralRegister
		}

		transfer = &Transfer{
			ID:            TransferID(uuid.NewString()),
			ShiftID:       shiftID,
			SenderID:      shift.EmployeeID,
			SourceID:      shift.RegisterID,
			DestinationID: central.ID,
			Amount:        recon.CountedAmount,
			State:         TransferInTransit,
			DispatchedAt:  now,
			CreatedAt:     now,
		}
		if err := s.InsertTransfer(ctx, *transfer); err != nil {
			return err
		}

		// Pre-allocate the 1:1 receipt slot. Receiver stays empty until
		// Receive supplies the caller identity.
		placeholder := Receipt{
			ID:             ReceiptID(uuid.NewString()),
			TransferID:     transfer.ID,
			ReceivedAmount: ZeroAmount(),
			Difference:     ZeroAmount(),
			CreatedAt:      now,
		}
		return s.InsertReceipt(ctx, placeholder)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return transfer, nil
}

// =============================================================================
// RECEIVE
// =============================================================================

type ReceiveInput struct {
	TransferID     TransferID
	EmployeeID     EmployeeID
	ReceivedAmount Amount
	Comment        string
}

// Receive confirms a transfer's arrival at the central register. The
// transfer lands in received when the amount matches exactly, observed
// otherwise; either way the state is terminal.
func (m *TransferManager) Receive(ctx context.Context, in ReceiveInput) (*Receipt, error) {
	if in.TransferID == "" {
		return nil, &ValidationError{Field: "transfer_id", Message: "a transfer must be selected"}
	}
	if in.EmployeeID == "" {
		return nil, &ValidationError{Field: "employee_id", Message: "an employee must be selected"}
	}

	now := m.now()
	var receipt *Receipt

	err := m.Store.WithTx(ctx, func(s Store) error {
		transfer, err := s.GetTransfer(ctx, in.TransferID)
		if err != nil {
			return err
		}
		if transfer == nil {
			return &NotFoundError{Entity: "transfer", ID: string(in.TransferID)}
		}
		if transfer.State.Terminal() {
			return &TransferFinalizedError{TransferID: transfer.ID, State: transfer.State}
		}
		if transfer.State != TransferInTransit {
			return ErrTransferNotPending
		}

		difference, err := ReceiptDifference(transfer.Amount, in.ReceivedAmount)
		if err != nil {
			return err
		}
		if !difference.IsZero() && strings.TrimSpace(in.Comment) == "" {
			return &CommentRequiredError{Difference: difference}
		}

		existing, err := s.GetReceiptByTransfer(ctx, in.TransferID)
		if err != nil {
			return err
		}
		if existing != nil {
			receipt = existing
		} else {
			receipt = &Receipt{
				ID:         ReceiptID(uuid.NewString()),
				TransferID: in.TransferID,
				CreatedAt:  now,
			}
		}
		receipt.ReceiverID = in.EmployeeID
		receipt.ReceivedAmount = in.ReceivedAmount
		receipt.Difference = difference
		receipt.Comment = in.Comment
		receipt.ReceivedAt = now

		if existing != nil {
			if err := s.UpdateReceipt(ctx, *receipt); err != nil {
				return err
			}
		} else {
			if err := s.InsertReceipt(ctx, *receipt); err != nil {
				return err
			}
		}

		if difference.IsZero() {
			transfer.State = TransferReceived
		} else {
			transfer.State = TransferObserved
		}
		return s.UpdateTransfer(ctx, *transfer)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return receipt, nil
}

// =============================================================================
// TRANSIT MONITORING (advisory, not state-changing)
// =============================================================================

// MinutesInTransit reports how long the transfer has been on the move.
func (m *TransferManager) MinutesInTransit(t Transfer) int {
	return int(m.now().Sub(t.DispatchedAt) / time.Minute)
}

// TransitAlert reports whether an in-transit transfer has exceeded the
// configured alert threshold.
func (m *TransferManager) TransitAlert(ctx context.Context, t Transfer) (bool, error) {
	if t.State != TransferInTransit {
		return false, nil
	}
	threshold, err := m.Params.Minutes(ctx, ParamTransitAlertMinutes, DefaultTransitAlertMinutes)
	if err != nil {
		return false, err
	}
	return m.MinutesInTransit(t) > threshold, nil
}

// Dispatchable returns the newest closed reconciliation that has no
// transfer yet, or nil when nothing is waiting.
func (m *TransferManager) Dispatchable(ctx context.Context) (*Reconciliation, error) {
	recon, err := m.Store.LatestDispatchableReconciliation(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return recon, nil
}
