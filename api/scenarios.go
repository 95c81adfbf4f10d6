/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates registers, employees
	and custody operations that demonstrate a specific slice of the flow.

AVAILABLE SCENARIOS:

	fresh-fleet:      Registers and employees only, nothing in motion
	mid-shift:        One shift open and counting
	full-cycle:       Open, reconcile, dispatch and receive in one pass
	overdue-transfer: A transfer stuck in transit past the alert threshold

HOW SCENARIOS WORK:
 1. Create the register fleet (reusing the central register if one exists)
 2. Create employees
 3. Run the custody operations the scenario calls for

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "full-cycle"}

NOTE:

	Scenarios add data on top of whatever is already stored. Load them
	against a fresh database. Only use in development/demo environments.

SEE ALSO:
  - server.go: Route wiring
  - custody/transfer.go: Dispatch/Receive used by the loaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/cash-custody/custody"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-fleet",
		Name:        "Fresh Fleet",
		Description: "Two ordinary registers, a central register and two employees",
	},
	{
		ID:          "mid-shift",
		Name:        "Mid Shift",
		Description: "A shift open on Caja 1 with a 50.00 float",
	},
	{
		ID:          "full-cycle",
		Name:        "Full Cycle",
		Description: "A complete day: opening, reconciliation with a vendor payment, dispatch and receipt",
	},
	{
		ID:          "overdue-transfer",
		Name:        "Overdue Transfer",
		Description: "Cash dispatched 45 minutes ago and still in transit",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario populates the store with one of the demo scenarios.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "fresh-fleet":
		_, err = h.loadFleet(ctx)
	case "mid-shift":
		err = h.loadMidShiftScenario(ctx)
	case "full-cycle":
		err = h.loadFullCycleScenario(ctx)
	case "overdue-transfer":
		err = h.loadOverdueTransferScenario(ctx)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, "load scenario", err)
		return
	}

	h.log.WithField("scenario_id", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		ScenarioID: req.ScenarioID,
		Message:    "Scenario loaded",
	})
}

// =============================================================================
// LOADERS
// =============================================================================

// demoFleet is what every scenario starts from.
type demoFleet struct {
	register *custody.Register
	central  *custody.Register
	cashier  *custody.Employee
	keeper   *custody.Employee
}

func (h *Handler) loadFleet(ctx context.Context) (*demoFleet, error) {
	register, err := h.Registry.CreateRegister(ctx, custody.CreateRegisterInput{
		Name: "Caja 1", Location: "Planta baja",
	})
	if err != nil {
		return nil, err
	}
	if _, err := h.Registry.CreateRegister(ctx, custody.CreateRegisterInput{
		Name: "Caja 2", Location: "Planta alta",
	}); err != nil {
		return nil, err
	}

	central, err := h.Store.CentralRegister(ctx)
	if err != nil {
		return nil, err
	}
	if central == nil {
		central, err = h.Registry.CreateRegister(ctx, custody.CreateRegisterInput{
			Name: "Caja Central", Location: "Oficina", Kind: custody.RegisterCentral,
		})
		if err != nil {
			return nil, err
		}
	}

	cashier, err := h.Registry.CreateEmployee(ctx, custody.CreateEmployeeInput{
		FullName: "Ana Lopez", Role: "Cajera",
	})
	if err != nil {
		return nil, err
	}
	keeper, err := h.Registry.CreateEmployee(ctx, custody.CreateEmployeeInput{
		FullName: "Luis Mora", Role: "Custodio",
	})
	if err != nil {
		return nil, err
	}

	return &demoFleet{register: register, central: central, cashier: cashier, keeper: keeper}, nil
}

func (h *Handler) loadMidShiftScenario(ctx context.Context) error {
	fleet, err := h.loadFleet(ctx)
	if err != nil {
		return err
	}
	_, err = h.Shifts.OpenShift(ctx, custody.OpenShiftInput{
		RegisterID:    fleet.register.ID,
		EmployeeID:    fleet.cashier.ID,
		InitialAmount: custody.AmountFromCents(5000),
		Notes:         "Fondo entregado completo",
	})
	return err
}

func (h *Handler) loadFullCycleScenario(ctx context.Context) error {
	fleet, err := h.loadFleet(ctx)
	if err != nil {
		return err
	}

	opened, err := h.Shifts.OpenShift(ctx, custody.OpenShiftInput{
		RegisterID:    fleet.register.ID,
		EmployeeID:    fleet.cashier.ID,
		InitialAmount: custody.AmountFromCents(5000),
	})
	if err != nil {
		return err
	}

	if _, err := h.Shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID:       opened.Shift.ID,
		EmployeeID:    fleet.cashier.ID,
		CountedAmount: custody.AmountFromCents(23000),
		FinalAmount:   custody.AmountFromCents(25000),
		VendorPayments: []custody.VendorPaymentInput{
			{Vendor: "Distribuidora Acme", DocumentType: custody.DocInvoice, DocumentNumber: "001-002-123", Amount: custody.AmountFromCents(2000)},
		},
	}); err != nil {
		return err
	}

	transfer, err := h.Transfers.Dispatch(ctx, opened.Shift.ID)
	if err != nil {
		return err
	}

	_, err = h.Transfers.Receive(ctx, custody.ReceiveInput{
		TransferID:     transfer.ID,
		EmployeeID:     fleet.keeper.ID,
		ReceivedAmount: custody.AmountFromCents(23000),
	})
	return err
}

func (h *Handler) loadOverdueTransferScenario(ctx context.Context) error {
	fleet, err := h.loadFleet(ctx)
	if err != nil {
		return err
	}

	opened, err := h.Shifts.OpenShift(ctx, custody.OpenShiftInput{
		RegisterID:    fleet.register.ID,
		EmployeeID:    fleet.cashier.ID,
		InitialAmount: custody.AmountFromCents(5000),
	})
	if err != nil {
		return err
	}

	if _, err := h.Shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID:       opened.Shift.ID,
		EmployeeID:    fleet.cashier.ID,
		CountedAmount: custody.AmountFromCents(18000),
		FinalAmount:   custody.AmountFromCents(18000),
	}); err != nil {
		return err
	}

	// Dispatch with the clock pinned 45 minutes back so the transfer is
	// already past the default alert threshold.
	tm := custody.NewTransferManager(h.Store)
	tm.Now = func() time.Time { return time.Now().Add(-45 * time.Minute) }
	_, err = tm.Dispatch(ctx, opened.Shift.ID)
	return err
}
