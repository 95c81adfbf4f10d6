/*
errors.go - Centralized error types for the custody engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every rejected operation names the invariant it violated, so the
  caller can tell the operator what to do next (e.g. "close the
  existing shift first") instead of showing a generic failure.

ERROR CATEGORIES:
  1. State conflicts - lifecycle invariant violations
  2. Validation errors - missing/invalid input
  3. Store errors - collaborator failures (timeout, unavailable)

USAGE:
  Callers classify with errors.Is or the helpers below:

    if errors.Is(err, custody.ErrActiveShiftExists) { ... }
    if custody.IsConflict(err) { ... }

SEE ALSO:
  - shift.go, transfer.go: Produce these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package custody

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a monetary input is negative
	// where disallowed or otherwise not a valid amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrActiveShiftExists is returned when opening a shift on a register
	// that already has an open shift with an unclosed opening.
	ErrActiveShiftExists = errors.New("register already has an open shift")

	// ErrNoActiveShift is returned when reconciling a shift that is not
	// open or whose opening is already closed.
	ErrNoActiveShift = errors.New("shift has no active opening")

	// ErrCommentRequired is returned when a non-zero difference is
	// recorded without an explanatory comment.
	ErrCommentRequired = errors.New("comment required when difference is non-zero")

	// ErrReconciliationNotFound is returned when dispatching a shift
	// that has no completed reconciliation.
	ErrReconciliationNotFound = errors.New("shift has no completed reconciliation")

	// ErrTransferAlreadyExists is returned when dispatching a shift whose
	// reconciliation already produced a transfer.
	ErrTransferAlreadyExists = errors.New("transfer already exists for this shift")

	// ErrTransferNotPending is returned when receiving a transfer that is
	// not in transit.
	ErrTransferNotPending = errors.New("transfer is not in transit")

	// ErrTransferAlreadyFinalized is returned on repeated receive calls
	// once a transfer has reached a terminal state.
	ErrTransferAlreadyFinalized = errors.New("transfer already finalized")

	// ErrCentralRegisterExists is returned when creating a second active
	// central register.
	ErrCentralRegisterExists = errors.New("an active central register already exists")

	// ErrNoCentralRegister is returned when dispatching with no active
	// central register configured.
	ErrNoCentralRegister = errors.New("no active central register configured")

	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for missing or invalid required fields.
	ErrValidation = errors.New("validation failed")

	// ErrStoreTimeout is returned when the ledger store exceeds the
	// caller-supplied deadline. The core never retries; that decision
	// belongs to the caller.
	ErrStoreTimeout = errors.New("store timeout")

	// ErrStoreUnavailable is returned for other collaborator failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidAmountError reports a rejected monetary input.
type InvalidAmountError struct {
	Field  string
	Amount Amount
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s: invalid amount %s", e.Field, e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// CommentRequiredError carries the difference that demands an explanation.
type CommentRequiredError struct {
	Difference Amount
}

func (e *CommentRequiredError) Error() string {
	return fmt.Sprintf("difference of %s requires an explanatory comment", e.Difference)
}

func (e *CommentRequiredError) Unwrap() error { return ErrCommentRequired }

// TransferFinalizedError reports the terminal state blocking a receive.
type TransferFinalizedError struct {
	TransferID TransferID
	State      TransferState
}

func (e *TransferFinalizedError) Error() string {
	return fmt.Sprintf("transfer %s already finalized as %s", e.TransferID, e.State)
}

// Unwrap matches both ErrTransferAlreadyFinalized and ErrTransferNotPending:
// a finalized transfer is by definition not pending.
func (e *TransferFinalizedError) Unwrap() []error {
	return []error{ErrTransferAlreadyFinalized, ErrTransferNotPending}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true if the error is a lifecycle state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrActiveShiftExists) ||
		errors.Is(err, ErrNoActiveShift) ||
		errors.Is(err, ErrTransferAlreadyExists) ||
		errors.Is(err, ErrTransferNotPending) ||
		errors.Is(err, ErrTransferAlreadyFinalized) ||
		errors.Is(err, ErrCentralRegisterExists)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrReconciliationNotFound) ||
		errors.Is(err, ErrNoCentralRegister)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCommentRequired)
}

// storeErr normalizes collaborator failures: a deadline or cancellation on
// the store call surfaces as ErrStoreTimeout, anything else passes through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return err
}
