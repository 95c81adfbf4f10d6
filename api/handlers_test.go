package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cash-custody/api"
	"github.com/warp/cash-custody/custody/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := api.NewHandler(store.NewTxMemory(), log)
	return &testServer{router: api.NewRouter(h)}
}

// do sends a request with an optional JSON body and decodes the response
// into out when out is non-nil.
func (s *testServer) do(t *testing.T, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// seedFleet creates an ordinary register, the central register and one
// employee through the API, returning their ids.
func (s *testServer) seedFleet(t *testing.T) (registerID, centralID, employeeID string) {
	t.Helper()

	var reg api.RegisterDTO
	rec := s.do(t, http.MethodPost, "/api/registers", api.CreateRegisterRequest{Name: "Caja 1"}, &reg)
	require.Equal(t, http.StatusCreated, rec.Code)

	var central api.RegisterDTO
	rec = s.do(t, http.MethodPost, "/api/registers", api.CreateRegisterRequest{Name: "Caja Central", Kind: "central"}, &central)
	require.Equal(t, http.StatusCreated, rec.Code)

	var emp api.EmployeeDTO
	rec = s.do(t, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{FullName: "Ana Lopez"}, &emp)
	require.Equal(t, http.StatusCreated, rec.Code)

	return reg.ID, central.ID, emp.ID
}

func (s *testServer) openShift(t *testing.T, registerID, employeeID string, cents int64) api.ShiftDTO {
	t.Helper()
	var shift api.ShiftDTO
	rec := s.do(t, http.MethodPost, "/api/shifts", api.OpenShiftRequest{
		RegisterID:         registerID,
		EmployeeID:         employeeID,
		InitialAmountCents: cents,
	}, &shift)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return shift
}

// =============================================================================
// REGISTERS AND EMPLOYEES
// =============================================================================

func TestAPI_CreateAndListRegisters(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	var regs []api.RegisterDTO
	rec := s.do(t, http.MethodGet, "/api/registers", nil, &regs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, regs, 2)
}

func TestAPI_SecondCentralRegisterConflicts(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/registers", api.CreateRegisterRequest{Name: "Otra Central", Kind: "central"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_ValidationFailureReturns400(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/registers", api.CreateRegisterRequest{Kind: "ordinary"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/registers", api.CreateRegisterRequest{Name: "X", Kind: "weird"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SHIFTS
// =============================================================================

func TestAPI_OpenShift(t *testing.T) {
	// GIVEN: A register and an employee
	// WHEN: Opening a shift with a 50.00 float
	// THEN: 201 with the opening amount echoed back in cents

	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)

	shift := s.openShift(t, regID, empID, 5000)
	assert.Equal(t, regID, shift.RegisterID)
	assert.Equal(t, empID, shift.EmployeeID)
	assert.Equal(t, int64(5000), shift.InitialAmountCents)
	assert.Equal(t, "open", shift.State)
}

func TestAPI_SecondOpenShiftConflicts(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	s.openShift(t, regID, empID, 5000)

	rec := s.do(t, http.MethodPost, "/api/shifts", api.OpenShiftRequest{
		RegisterID: regID, EmployeeID: empID, InitialAmountCents: 1000,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_OpenShiftMissingEmployeeRejected(t *testing.T) {
	s := newTestServer(t)
	regID, _, _ := s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/shifts", api.OpenShiftRequest{
		RegisterID: regID, InitialAmountCents: 1000,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ActiveShift(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)

	rec := s.do(t, http.MethodGet, "/api/shifts/active?register="+regID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no active shift yet")

	rec = s.do(t, http.MethodGet, "/api/shifts/active", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "register parameter required")

	opened := s.openShift(t, regID, empID, 5000)

	var active api.ShiftDTO
	rec = s.do(t, http.MethodGet, "/api/shifts/active?register="+regID, nil, &active)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, opened.ID, active.ID)
	assert.Equal(t, int64(5000), active.InitialAmountCents)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestAPI_ReconcileBalancedDrawer(t *testing.T) {
	// GIVEN: Sales of 100.10, vendor payments of 20.03, drawer counted at 80.07
	// WHEN: Reconciling through the API
	// THEN: 201 with difference_cents 0, all amounts in cents

	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)

	var recon api.ReconciliationDTO
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/shifts/%s/reconcile", shift.ID), api.ReconcileRequest{
		EmployeeID:         empID,
		CountedAmountCents: 8007,
		FinalAmountCents:   10010,
		VendorPayments: []api.VendorPaymentRequest{
			{Vendor: "Acme", DocumentType: "Factura", DocumentNumber: "F-01", AmountCents: 2003},
		},
	}, &recon)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(8007), recon.CountedAmountCents)
	assert.Equal(t, int64(10010), recon.FinalAmountCents)
	assert.Equal(t, int64(2003), recon.VendorTotalCents)
	assert.Equal(t, int64(0), recon.DifferenceCents)
	assert.False(t, recon.ReviewAlert)

	rec = s.do(t, http.MethodGet, "/api/shifts/active?register="+regID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "shift closed by reconciliation")
}

func TestAPI_ReconcileLargeDiscrepancyFlagsReview(t *testing.T) {
	// A 25.10 surplus is well past the 2.00 review threshold.
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)

	var recon api.ReconciliationDTO
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/shifts/%s/reconcile", shift.ID), api.ReconcileRequest{
		EmployeeID:         empID,
		CountedAmountCents: 7500,
		FinalAmountCents:   10010,
		Comment:            "sobrante sin explicar",
	}, &recon)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2510), recon.DifferenceCents)
	assert.True(t, recon.ReviewAlert)
}

func TestAPI_ReconcileDiscrepancyWithoutComment422(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/shifts/%s/reconcile", shift.ID), api.ReconcileRequest{
		EmployeeID:         empID,
		CountedAmountCents: 7500,
		FinalAmountCents:   10010,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// The shift survives the rejection.
	rec = s.do(t, http.MethodGet, "/api/shifts/active?register="+regID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_ReconcileUnknownShift404(t *testing.T) {
	s := newTestServer(t)
	_, _, empID := s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/shifts/missing/reconcile", api.ReconcileRequest{
		EmployeeID: empID,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (s *testServer) closeShift(t *testing.T, shiftID, empID string, cents int64) {
	t.Helper()
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/shifts/%s/reconcile", shiftID), api.ReconcileRequest{
		EmployeeID:         empID,
		CountedAmountCents: cents,
		FinalAmountCents:   cents,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAPI_DispatchAndReceiveFlow(t *testing.T) {
	// GIVEN: A reconciled shift counted at 250.00
	// WHEN: Dispatching and then confirming arrival of the full amount
	// THEN: Transfer travels in_transit -> received with a zero-difference
	//       receipt

	s := newTestServer(t)
	regID, centralID, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, shift.ID, empID, 25000)

	var recon api.ReconciliationDTO
	rec := s.do(t, http.MethodGet, "/api/transfers/dispatchable", nil, &recon)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shift.ID, recon.ShiftID)

	var transfer api.TransferDTO
	rec = s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, &transfer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "in_transit", transfer.State)
	assert.Equal(t, int64(25000), transfer.AmountCents)
	assert.Equal(t, centralID, transfer.DestinationID)

	var receipt api.ReceiptDTO
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", transfer.ID), api.ReceiveRequest{
		EmployeeID:          empID,
		ReceivedAmountCents: 25000,
	}, &receipt)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), receipt.DifferenceCents)
	assert.Equal(t, empID, receipt.ReceiverID)

	var transfers []api.TransferDTO
	rec = s.do(t, http.MethodGet, "/api/transfers?state=received", nil, &transfers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, transfers, 1)
	assert.Equal(t, "received", transfers[0].State)

	rec = s.do(t, http.MethodGet, "/api/transfers/dispatchable", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing left to dispatch")
}

func TestAPI_ListTransfersMultiStateQuery(t *testing.T) {
	// GIVEN: One received transfer and one still in transit
	// WHEN: Querying ?state=in_transit,received
	// THEN: Both appear; a single-state query still narrows to one

	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)

	first := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, first.ID, empID, 25000)
	var received api.TransferDTO
	rec := s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: first.ID}, &received)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", received.ID), api.ReceiveRequest{
		EmployeeID:          empID,
		ReceivedAmountCents: 25000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	second := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, second.ID, empID, 18000)
	rec = s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: second.ID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var transfers []api.TransferDTO
	rec = s.do(t, http.MethodGet, "/api/transfers?state=in_transit,received", nil, &transfers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, transfers, 2)

	states := make(map[string]int)
	for _, tr := range transfers {
		states[tr.State]++
	}
	assert.Equal(t, 1, states["in_transit"])
	assert.Equal(t, 1, states["received"])

	// Blank segments from a trailing comma are ignored.
	rec = s.do(t, http.MethodGet, "/api/transfers?state=received,", nil, &transfers)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, transfers, 1)
	assert.Equal(t, "received", transfers[0].State)
}

func TestAPI_ReceiveShortageWithoutComment422(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, shift.ID, empID, 25000)

	var transfer api.TransferDTO
	rec := s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, &transfer)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", transfer.ID), api.ReceiveRequest{
		EmployeeID:          empID,
		ReceivedAmountCents: 24000,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_SecondDispatchConflicts(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, shift.ID, empID, 25000)

	rec := s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_ReceiveFinalizedTransferConflicts(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, shift.ID, empID, 25000)

	var transfer api.TransferDTO
	rec := s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, &transfer)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := api.ReceiveRequest{EmployeeID: empID, ReceivedAmountCents: 25000}
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", transfer.ID), body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", transfer.ID), body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestAPI_HistoryFeed(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)
	s.closeShift(t, shift.ID, empID, 25000)

	var transfer api.TransferDTO
	rec := s.do(t, http.MethodPost, "/api/transfers", api.DispatchRequest{ShiftID: shift.ID}, &transfer)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/transfers/%s/receive", transfer.ID), api.ReceiveRequest{
		EmployeeID:          empID,
		ReceivedAmountCents: 25000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ops []api.OperationDTO
	rec = s.do(t, http.MethodGet, "/api/history", nil, &ops)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ops, 4)

	var transfersOnly []api.OperationDTO
	rec = s.do(t, http.MethodGet, "/api/history?kind=transfer", nil, &transfersOnly)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, transfersOnly, 1)
	assert.Equal(t, "Traslado", transfersOnly[0].KindLabel)
	assert.Equal(t, "Recibido", transfersOnly[0].Status)

	rec = s.do(t, http.MethodGet, "/api/history?from=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_VendorPaymentSummary(t *testing.T) {
	s := newTestServer(t)
	regID, _, empID := s.seedFleet(t)
	shift := s.openShift(t, regID, empID, 5000)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/shifts/%s/reconcile", shift.ID), api.ReconcileRequest{
		EmployeeID:         empID,
		CountedAmountCents: 7000,
		FinalAmountCents:   10000,
		VendorPayments: []api.VendorPaymentRequest{
			{Vendor: "Acme", DocumentType: "Factura", DocumentNumber: "F-01", AmountCents: 3000},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var summaries []api.ConceptSummaryDTO
	rec = s.do(t, http.MethodGet, "/api/vendor-payments/summary", nil, &summaries)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Count)
	assert.Equal(t, int64(3000), summaries[0].TotalCents)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_ListScenarios(t *testing.T) {
	s := newTestServer(t)

	var list []api.ScenarioDTO
	rec := s.do(t, http.MethodGet, "/api/scenarios", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 4)
}

func TestAPI_LoadFullCycleScenario(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "full-cycle"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ops []api.OperationDTO
	rec = s.do(t, http.MethodGet, "/api/history", nil, &ops)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ops, 4)
}

func TestAPI_LoadUnknownScenario404(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PARAMETERS
// =============================================================================

func TestAPI_UpdateAndListParameters(t *testing.T) {
	s := newTestServer(t)

	var param api.ParameterDTO
	rec := s.do(t, http.MethodPut, "/api/parameters/transit_alert_minutes", api.UpdateParameterRequest{
		Value: "45",
	}, &param)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "transit_alert_minutes", param.Key)
	assert.Equal(t, "45", param.Value)

	var params []api.ParameterDTO
	rec = s.do(t, http.MethodGet, "/api/parameters", nil, &params)
	require.Equal(t, http.StatusOK, rec.Code)

	found := false
	for _, p := range params {
		if p.Key == "transit_alert_minutes" {
			found = true
			assert.Equal(t, "45", p.Value)
		}
	}
	assert.True(t, found)
}
