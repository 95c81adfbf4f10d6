/*
handlers.go - HTTP API handlers for the cash custody system

PURPOSE:
  Exposes the custody engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Registers:
    GET    /api/registers                List registers
    POST   /api/registers                Create register

  Employees:
    GET    /api/employees                List employees
    POST   /api/employees                Create employee

  Shifts:
    POST   /api/shifts                   Open a shift
    GET    /api/shifts/active            Active shift for ?register=
    POST   /api/shifts/{id}/reconcile    Reconcile and close

  Transfers:
    POST   /api/transfers                Dispatch to the central register
    GET    /api/transfers                List (filter ?state=, with alerts)
    GET    /api/transfers/dispatchable   Newest reconciliation awaiting dispatch
    POST   /api/transfers/{id}/receive   Confirm arrival

  History:
    GET    /api/history                  Operation feed (?kind=&status=&from=&to=)
    GET    /api/vendor-payments/summary  Concept totals (?from=&to=)

  Parameters:
    GET    /api/parameters               List thresholds
    PUT    /api/parameters/{key}         Update a threshold

  Scenarios (development only):
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call domain logic (managers, history)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Lifecycle conflict (open shift exists, transfer finalized, ...)
  - 422: Comment required for a non-zero difference
  - 500: Internal errors
  - 504: Store timeout

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Every mutating request names the acting employee explicitly.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/cash-custody/custody"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry  *custody.Registry
	Shifts    *custody.ShiftManager
	Transfers *custody.TransferManager
	History   *custody.History
	Params    *custody.Parameters
	Store     custody.TxStore

	log      *logrus.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler wired to the given store.
func NewHandler(store custody.TxStore, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Registry:  custody.NewRegistry(store),
		Shifts:    custody.NewShiftManager(store),
		Transfers: custody.NewTransferManager(store),
		History:   custody.NewHistory(store),
		Params:    &custody.Parameters{Store: store},
		Store:     store,
		log:       log,
		validate:  validator.New(),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// REGISTER HANDLERS
// =============================================================================

// ListRegisters returns the register fleet.
func (h *Handler) ListRegisters(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Registry.ListRegisters(r.Context())
	if err != nil {
		h.writeDomainError(w, "list registers", err)
		return
	}

	dtos := make([]RegisterDTO, len(regs))
	for i, reg := range regs {
		dtos[i] = toRegisterDTO(reg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRegister creates a new register.
func (h *Handler) CreateRegister(w http.ResponseWriter, r *http.Request) {
	var req CreateRegisterRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reg, err := h.Registry.CreateRegister(r.Context(), custody.CreateRegisterInput{
		Name:     req.Name,
		Location: req.Location,
		Kind:     custody.RegisterKind(req.Kind),
	})
	if err != nil {
		h.writeDomainError(w, "create register", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"register_id": reg.ID,
		"kind":        reg.Kind,
	}).Info("register created")
	writeJSON(w, http.StatusCreated, toRegisterDTO(*reg))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns the employee directory.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	emps, err := h.Registry.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, "list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(emps))
	for i, e := range emps {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates a directory record.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Registry.CreateEmployee(r.Context(), custody.CreateEmployeeInput{
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		h.writeDomainError(w, "create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// OpenShift starts a custody window.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := custody.OpenShiftInput{
		RegisterID:    custody.RegisterID(req.RegisterID),
		EmployeeID:    custody.EmployeeID(req.EmployeeID),
		InitialAmount: custody.AmountFromCents(req.InitialAmountCents),
		StartTime:     req.StartTime,
		Notes:         req.Notes,
	}
	if req.Date != "" {
		in.Date, _ = time.Parse("2006-01-02", req.Date)
	}

	result, err := h.Shifts.OpenShift(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "open shift", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"shift_id":    result.Shift.ID,
		"register_id": result.Shift.RegisterID,
		"employee_id": result.Shift.EmployeeID,
	}).Info("shift opened")
	writeJSON(w, http.StatusCreated, toShiftDTO(result.Shift, &result.Opening))
}

// ActiveShift returns the open shift for ?register=, or 404 when idle.
func (h *Handler) ActiveShift(w http.ResponseWriter, r *http.Request) {
	registerID := r.URL.Query().Get("register")
	if registerID == "" {
		writeError(w, http.StatusBadRequest, "register query parameter is required", nil)
		return
	}

	shift, opening, err := h.Shifts.ActiveShift(r.Context(), custody.RegisterID(registerID))
	if err != nil {
		h.writeDomainError(w, "active shift", err)
		return
	}
	if shift == nil {
		writeError(w, http.StatusNotFound, "No active shift for register", nil)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*shift, opening))
}

// Reconcile counts the drawer and closes the shift.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "id")

	var req ReconcileRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payments := make([]custody.VendorPaymentInput, len(req.VendorPayments))
	for i, p := range req.VendorPayments {
		payments[i] = custody.VendorPaymentInput{
			Vendor:         p.Vendor,
			DocumentType:   custody.DocumentType(p.DocumentType),
			DocumentNumber: p.DocumentNumber,
			Amount:         custody.AmountFromCents(p.AmountCents),
		}
	}

	recon, err := h.Shifts.ReconcileAndClose(r.Context(), custody.ReconcileInput{
		ShiftID:        custody.ShiftID(shiftID),
		EmployeeID:     custody.EmployeeID(req.EmployeeID),
		CountedAmount:  custody.AmountFromCents(req.CountedAmountCents),
		FinalAmount:    custody.AmountFromCents(req.FinalAmountCents),
		VendorPayments: payments,
		Comment:        req.Comment,
	})
	if err != nil {
		h.writeDomainError(w, "reconcile shift", err)
		return
	}

	alert, err := h.Params.DiscrepancyAlert(r.Context(), recon.Difference)
	if err != nil {
		h.writeDomainError(w, "reconcile shift", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"shift_id":         recon.ShiftID,
		"difference_cents": recon.Difference.Cents(),
		"review_alert":     alert,
	}).Info("shift reconciled")
	dto := toReconciliationDTO(*recon)
	dto.ReviewAlert = alert
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// Dispatch sends reconciled cash toward the central register.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	transfer, err := h.Transfers.Dispatch(r.Context(), custody.ShiftID(req.ShiftID))
	if err != nil {
		h.writeDomainError(w, "dispatch transfer", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"transfer_id":  transfer.ID,
		"amount_cents": transfer.Amount.Cents(),
	}).Info("transfer dispatched")
	writeJSON(w, http.StatusCreated, toTransferDTO(*transfer))
}

// ListTransfers returns transfers, optionally filtered by ?state=, a
// comma-separated list (the receive screen asks for
// in_transit,received,observed in one call). In-transit rows carry
// transit timing and the alert flag.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	var states []custody.TransferState
	for _, s := range strings.Split(r.URL.Query().Get("state"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			states = append(states, custody.TransferState(s))
		}
	}

	transfers, err := h.Store.ListTransfers(r.Context(), states)
	if err != nil {
		h.writeDomainError(w, "list transfers", err)
		return
	}

	dtos := make([]TransferDTO, len(transfers))
	for i, t := range transfers {
		dto := toTransferDTO(t)
		if t.State == custody.TransferInTransit {
			dto.MinutesInTransit = h.Transfers.MinutesInTransit(t)
			alert, err := h.Transfers.TransitAlert(r.Context(), t)
			if err != nil {
				h.writeDomainError(w, "list transfers", err)
				return
			}
			dto.TransitAlert = alert
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Dispatchable returns the newest reconciliation awaiting dispatch.
func (h *Handler) Dispatchable(w http.ResponseWriter, r *http.Request) {
	recon, err := h.Transfers.Dispatchable(r.Context())
	if err != nil {
		h.writeDomainError(w, "dispatchable reconciliation", err)
		return
	}
	if recon == nil {
		writeError(w, http.StatusNotFound, "No reconciliation awaiting dispatch", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(*recon))
}

// Receive confirms a transfer's arrival at the central register.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	var req ReceiveRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.Transfers.Receive(r.Context(), custody.ReceiveInput{
		TransferID:     custody.TransferID(transferID),
		EmployeeID:     custody.EmployeeID(req.EmployeeID),
		ReceivedAmount: custody.AmountFromCents(req.ReceivedAmountCents),
		Comment:        req.Comment,
	})
	if err != nil {
		h.writeDomainError(w, "receive transfer", err)
		return
	}

	alert, err := h.Params.DiscrepancyAlert(r.Context(), receipt.Difference)
	if err != nil {
		h.writeDomainError(w, "receive transfer", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"transfer_id":      receipt.TransferID,
		"difference_cents": receipt.Difference.Cents(),
		"review_alert":     alert,
	}).Info("transfer received")
	dto := toReceiptDTO(*receipt)
	dto.ReviewAlert = alert
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// ListHistory returns the operation feed, newest first.
// Filters: ?kind=, ?status=, ?from=YYYY-MM-DD, ?to=YYYY-MM-DD.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filter := custody.HistoryFilter{
		Kind:   custody.OperationKind(r.URL.Query().Get("kind")),
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		filter.To = t
	}

	ops, err := h.History.Operations(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "history", err)
		return
	}

	dtos := make([]OperationDTO, len(ops))
	for i, op := range ops {
		dtos[i] = toOperationDTO(op)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// VendorPaymentSummary returns vendor payment totals grouped by concept.
func (h *Handler) VendorPaymentSummary(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		to = t
	}

	summaries, err := h.History.VendorConceptSummary(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, "vendor payment summary", err)
		return
	}

	dtos := make([]ConceptSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = ConceptSummaryDTO{
			Concept:    s.Concept,
			Count:      s.Count,
			TotalCents: s.Total.Cents(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PARAMETER HANDLERS
// =============================================================================

// ListParameters returns all tunable thresholds.
func (h *Handler) ListParameters(w http.ResponseWriter, r *http.Request) {
	params, err := h.Store.ListParameters(r.Context())
	if err != nil {
		h.writeDomainError(w, "list parameters", err)
		return
	}

	dtos := make([]ParameterDTO, len(params))
	for i, p := range params {
		dtos[i] = toParameterDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateParameter sets a threshold value.
func (h *Handler) UpdateParameter(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateParameterRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	param := custody.Parameter{
		Key:         key,
		Value:       req.Value,
		Description: req.Description,
		UpdatedAt:   time.Now(),
	}
	if err := h.Store.UpsertParameter(r.Context(), param); err != nil {
		h.writeDomainError(w, "update parameter", err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"key":   key,
		"value": req.Value,
	}).Info("parameter updated")
	writeJSON(w, http.StatusOK, toParameterDTO(param))
}

// =============================================================================
// ERROR MAPPING + RESPONSE HELPERS
// =============================================================================

// writeDomainError translates custody errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, custody.ErrCommentRequired):
		writeError(w, http.StatusUnprocessableEntity, "A comment is required when the difference is non-zero", err)
	case custody.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case custody.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case custody.IsConflict(err):
		writeError(w, http.StatusConflict, "Operation conflicts with current state", err)
	case errors.Is(err, custody.ErrStoreTimeout):
		writeError(w, http.StatusGatewayTimeout, "Storage timed out", err)
	default:
		h.log.WithError(err).WithField("op", op).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
