/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS ON THE WIRE:
  All monetary fields travel as integer minor units (*_cents). Clients
  never see floats; the engine never parses them.

VALIDATION:
  Request structs carry go-playground/validator tags, checked centrally
  in handlers.go before any domain call.

SEE ALSO:
  - handlers.go: Uses these types
  - custody/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/warp/cash-custody/custody"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RegisterDTO represents a cash register in API responses.
type RegisterDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Kind      string `json:"kind"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateRegisterRequest is the request to create a register.
type CreateRegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Location string `json:"location"`
	Kind     string `json:"kind" validate:"omitempty,oneof=ordinary central"`
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Role      string `json:"role,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role"`
}

// OpenShiftRequest starts a custody window on a register.
type OpenShiftRequest struct {
	RegisterID         string `json:"register_id" validate:"required"`
	EmployeeID         string `json:"employee_id" validate:"required"`
	InitialAmountCents int64  `json:"initial_amount_cents" validate:"gte=0"`
	Date               string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime          string `json:"start_time" validate:"omitempty,datetime=15:04"`
	Notes              string `json:"notes"`
}

// ShiftDTO represents a shift with its opening.
type ShiftDTO struct {
	ID                 string `json:"id"`
	RegisterID         string `json:"register_id"`
	EmployeeID         string `json:"employee_id"`
	Date               string `json:"date"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time,omitempty"`
	State              string `json:"state"`
	InitialAmountCents int64  `json:"initial_amount_cents"`
	Notes              string `json:"notes,omitempty"`
}

// VendorPaymentRequest is one disbursement declared at close-out.
type VendorPaymentRequest struct {
	Vendor         string `json:"vendor" validate:"required"`
	DocumentType   string `json:"document_type" validate:"required"`
	DocumentNumber string `json:"document_number"`
	AmountCents    int64  `json:"amount_cents" validate:"gte=0"`
}

// ReconcileRequest closes a shift with a counted drawer.
type ReconcileRequest struct {
	EmployeeID         string                 `json:"employee_id" validate:"required"`
	CountedAmountCents int64                  `json:"counted_amount_cents" validate:"gte=0"`
	FinalAmountCents   int64                  `json:"final_amount_cents" validate:"gte=0"`
	VendorPayments     []VendorPaymentRequest `json:"vendor_payments" validate:"dive"`
	Comment            string                 `json:"comment"`
}

// ReconciliationDTO represents a close-out count.
type ReconciliationDTO struct {
	ID                 string `json:"id"`
	ShiftID            string `json:"shift_id"`
	CountedAmountCents int64  `json:"counted_amount_cents"`
	FinalAmountCents   int64  `json:"final_amount_cents"`
	VendorTotalCents   int64  `json:"vendor_total_cents"`
	DifferenceCents    int64  `json:"difference_cents"`
	ReviewAlert        bool   `json:"review_alert,omitempty"`
	Comment            string `json:"comment,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// DispatchRequest sends a reconciled shift's cash to the central register.
type DispatchRequest struct {
	ShiftID string `json:"shift_id" validate:"required"`
}

// TransferDTO represents cash in motion.
type TransferDTO struct {
	ID               string `json:"id"`
	ShiftID          string `json:"shift_id"`
	SenderID         string `json:"sender_id"`
	SourceID         string `json:"source_id"`
	DestinationID    string `json:"destination_id"`
	AmountCents      int64  `json:"amount_cents"`
	State            string `json:"state"`
	DispatchedAt     string `json:"dispatched_at"`
	MinutesInTransit int    `json:"minutes_in_transit,omitempty"`
	TransitAlert     bool   `json:"transit_alert,omitempty"`
}

// ReceiveRequest confirms a transfer's arrival.
type ReceiveRequest struct {
	EmployeeID          string `json:"employee_id" validate:"required"`
	ReceivedAmountCents int64  `json:"received_amount_cents" validate:"gte=0"`
	Comment             string `json:"comment"`
}

// ReceiptDTO represents an arrival confirmation.
type ReceiptDTO struct {
	ID                  string `json:"id"`
	TransferID          string `json:"transfer_id"`
	ReceiverID          string `json:"receiver_id"`
	ReceivedAmountCents int64  `json:"received_amount_cents"`
	DifferenceCents     int64  `json:"difference_cents"`
	ReviewAlert         bool   `json:"review_alert,omitempty"`
	Comment             string `json:"comment,omitempty"`
	ReceivedAt          string `json:"received_at,omitempty"`
}

// OperationDTO is one row in the history feed.
type OperationDTO struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	KindLabel       string `json:"kind_label"`
	RegisterID      string `json:"register_id,omitempty"`
	ShiftID         string `json:"shift_id,omitempty"`
	EmployeeID      string `json:"employee_id,omitempty"`
	AmountCents     int64  `json:"amount_cents"`
	DifferenceCents int64  `json:"difference_cents"`
	Status          string `json:"status"`
	Comment         string `json:"comment,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

// ConceptSummaryDTO aggregates vendor payments by concept.
type ConceptSummaryDTO struct {
	Concept    string `json:"concept"`
	Count      int    `json:"count"`
	TotalCents int64  `json:"total_cents"`
}

// ParameterDTO represents a tunable threshold.
type ParameterDTO struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// UpdateParameterRequest sets a parameter value.
type UpdateParameterRequest struct {
	Value       string `json:"value" validate:"required"`
	Description string `json:"description"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse confirms a scenario load.
type LoadScenarioResponse struct {
	ScenarioID string `json:"scenario_id"`
	Message    string `json:"message"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRegisterDTO(r custody.Register) RegisterDTO {
	return RegisterDTO{
		ID:        string(r.ID),
		Name:      r.Name,
		Location:  r.Location,
		Kind:      string(r.Kind),
		Active:    r.Active,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

func toEmployeeDTO(e custody.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        string(e.ID),
		FullName:  e.FullName,
		Role:      e.Role,
		Active:    e.Active,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toShiftDTO(s custody.Shift, o *custody.Opening) ShiftDTO {
	dto := ShiftDTO{
		ID:         string(s.ID),
		RegisterID: string(s.RegisterID),
		EmployeeID: string(s.EmployeeID),
		Date:       s.Date.Format("2006-01-02"),
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		State:      string(s.State),
	}
	if o != nil {
		dto.InitialAmountCents = o.InitialAmount.Cents()
		dto.Notes = o.Notes
	}
	return dto
}

func toReconciliationDTO(r custody.Reconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		ID:                 string(r.ID),
		ShiftID:            string(r.ShiftID),
		CountedAmountCents: r.CountedAmount.Cents(),
		FinalAmountCents:   r.FinalAmount.Cents(),
		VendorTotalCents:   r.VendorTotal.Cents(),
		DifferenceCents:    r.Difference.Cents(),
		Comment:            r.Comment,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
	}
}

func toTransferDTO(t custody.Transfer) TransferDTO {
	return TransferDTO{
		ID:            string(t.ID),
		ShiftID:       string(t.ShiftID),
		SenderID:      string(t.SenderID),
		SourceID:      string(t.SourceID),
		DestinationID: string(t.DestinationID),
		AmountCents:   t.Amount.Cents(),
		State:         string(t.State),
		DispatchedAt:  t.DispatchedAt.Format(time.RFC3339),
	}
}

func toReceiptDTO(r custody.Receipt) ReceiptDTO {
	dto := ReceiptDTO{
		ID:                  string(r.ID),
		TransferID:          string(r.TransferID),
		ReceiverID:          string(r.ReceiverID),
		ReceivedAmountCents: r.ReceivedAmount.Cents(),
		DifferenceCents:     r.Difference.Cents(),
		Comment:             r.Comment,
	}
	if !r.ReceivedAt.IsZero() {
		dto.ReceivedAt = r.ReceivedAt.Format(time.RFC3339)
	}
	return dto
}

func toOperationDTO(op custody.Operation) OperationDTO {
	return OperationDTO{
		ID:              op.ID,
		Kind:            string(op.Kind),
		KindLabel:       op.KindLabel,
		RegisterID:      string(op.RegisterID),
		ShiftID:         string(op.ShiftID),
		EmployeeID:      string(op.EmployeeID),
		AmountCents:     op.Amount.Cents(),
		DifferenceCents: op.Difference.Cents(),
		Status:          op.Status,
		Comment:         op.Comment,
		OccurredAt:      op.OccurredAt.Format(time.RFC3339),
	}
}

func toParameterDTO(p custody.Parameter) ParameterDTO {
	return ParameterDTO{
		Key:         p.Key,
		Value:       p.Value,
		Description: p.Description,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}
