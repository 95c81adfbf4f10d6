// Package store provides custody.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/cash-custody/custody"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	registers []custody.Register
	employees []custody.Employee
	shifts    []custody.Shift
	openings  []custody.Opening
	recons    []custody.Reconciliation
	payments  []custody.VendorPayment
	transfers []custody.Transfer
	receipts  []custody.Receipt
	params    map[string]custody.Parameter
	counters  map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		params:   make(map[string]custody.Parameter),
		counters: make(map[string]int64),
	}
}

// -----------------------------------------------------------------------------
// Registers
// -----------------------------------------------------------------------------

func (m *Memory) InsertRegister(_ context.Context, r custody.Register) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRegisterLocked(r)
}

func (m *Memory) insertRegisterLocked(r custody.Register) error {
	m.registers = append(m.registers, r)
	return nil
}

func (m *Memory) GetRegister(_ context.Context, id custody.RegisterID) (*custody.Register, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRegisterLocked(id), nil
}

func (m *Memory) getRegisterLocked(id custody.RegisterID) *custody.Register {
	for i := range m.registers {
		if m.registers[i].ID == id {
			r := m.registers[i]
			return &r
		}
	}
	return nil
}

func (m *Memory) ListRegisters(_ context.Context) ([]custody.Register, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Register{}, m.registers...), nil
}

func (m *Memory) CentralRegister(_ context.Context) (*custody.Register, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.centralRegisterLocked(), nil
}

func (m *Memory) centralRegisterLocked() *custody.Register {
	for i := range m.registers {
		if m.registers[i].Kind == custody.RegisterCentral && m.registers[i].Active {
			r := m.registers[i]
			return &r
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Employees
// -----------------------------------------------------------------------------

func (m *Memory) InsertEmployee(_ context.Context, e custody.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = append(m.employees, e)
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id custody.EmployeeID) (*custody.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.employees {
		if m.employees[i].ID == id {
			e := m.employees[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]custody.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Employee{}, m.employees...), nil
}

// -----------------------------------------------------------------------------
// Shifts
// -----------------------------------------------------------------------------

func (m *Memory) InsertShift(_ context.Context, s custody.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts = append(m.shifts, s)
	return nil
}

func (m *Memory) GetShift(_ context.Context, id custody.ShiftID) (*custody.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShiftLocked(id), nil
}

func (m *Memory) getShiftLocked(id custody.ShiftID) *custody.Shift {
	for i := range m.shifts {
		if m.shifts[i].ID == id {
			s := m.shifts[i]
			return &s
		}
	}
	return nil
}

func (m *Memory) UpdateShift(_ context.Context, s custody.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShiftLocked(s)
}

func (m *Memory) updateShiftLocked(s custody.Shift) error {
	for i := range m.shifts {
		if m.shifts[i].ID == s.ID {
			m.shifts[i] = s
			return nil
		}
	}
	return &custody.NotFoundError{Entity: "shift", ID: string(s.ID)}
}

func (m *Memory) ListShifts(_ context.Context) ([]custody.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Shift{}, m.shifts...), nil
}

func (m *Memory) OpenShift(_ context.Context, registerID custody.RegisterID) (*custody.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openShiftLocked(registerID), nil
}

func (m *Memory) openShiftLocked(registerID custody.RegisterID) *custody.Shift {
	for i := range m.shifts {
		s := m.shifts[i]
		if s.RegisterID != registerID || s.State != custody.ShiftOpen {
			continue
		}
		o := m.getOpeningByShiftLocked(s.ID)
		if o != nil && !o.Closed {
			return &s
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Openings
// -----------------------------------------------------------------------------

func (m *Memory) InsertOpening(_ context.Context, o custody.Opening) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openings = append(m.openings, o)
	return nil
}

func (m *Memory) GetOpeningByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Opening, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOpeningByShiftLocked(shiftID), nil
}

func (m *Memory) getOpeningByShiftLocked(shiftID custody.ShiftID) *custody.Opening {
	for i := range m.openings {
		if m.openings[i].ShiftID == shiftID {
			o := m.openings[i]
			return &o
		}
	}
	return nil
}

func (m *Memory) UpdateOpening(_ context.Context, o custody.Opening) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateOpeningLocked(o)
}

func (m *Memory) updateOpeningLocked(o custody.Opening) error {
	for i := range m.openings {
		if m.openings[i].ID == o.ID {
			m.openings[i] = o
			return nil
		}
	}
	return &custody.NotFoundError{Entity: "opening", ID: string(o.ID)}
}

func (m *Memory) ListOpenings(_ context.Context) ([]custody.Opening, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Opening{}, m.openings...), nil
}

// -----------------------------------------------------------------------------
// Reconciliations
// -----------------------------------------------------------------------------

func (m *Memory) InsertReconciliation(_ context.Context, r custody.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recons = append(m.recons, r)
	return nil
}

func (m *Memory) GetReconciliationByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReconByShiftLocked(shiftID), nil
}

func (m *Memory) getReconByShiftLocked(shiftID custody.ShiftID) *custody.Reconciliation {
	for i := range m.recons {
		if m.recons[i].ShiftID == shiftID {
			r := m.recons[i]
			return &r
		}
	}
	return nil
}

func (m *Memory) ListReconciliations(_ context.Context) ([]custody.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Reconciliation{}, m.recons...), nil
}

func (m *Memory) LatestDispatchableReconciliation(_ context.Context) (*custody.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestDispatchableLocked(), nil
}

func (m *Memory) latestDispatchableLocked() *custody.Reconciliation {
	var latest *custody.Reconciliation
	for i := range m.recons {
		r := m.recons[i]
		if m.getTransferByShiftLocked(r.ShiftID) != nil {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = &r
		}
	}
	return latest
}

// -----------------------------------------------------------------------------
// Vendor payments
// -----------------------------------------------------------------------------

func (m *Memory) InsertVendorPayment(_ context.Context, p custody.VendorPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) ListVendorPaymentsByShift(_ context.Context, shiftID custody.ShiftID) ([]custody.VendorPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []custody.VendorPayment
	for _, p := range m.payments {
		if p.ShiftID == shiftID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListVendorPaymentsInRange(_ context.Context, from, to time.Time) ([]custody.VendorPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []custody.VendorPayment
	for _, p := range m.payments {
		if p.OccurredAt.Before(from) || p.OccurredAt.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Transfers
// -----------------------------------------------------------------------------

func (m *Memory) InsertTransfer(_ context.Context, t custody.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, t)
	return nil
}

func (m *Memory) GetTransfer(_ context.Context, id custody.TransferID) (*custody.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransferLocked(id), nil
}

func (m *Memory) getTransferLocked(id custody.TransferID) *custody.Transfer {
	for i := range m.transfers {
		if m.transfers[i].ID == id {
			t := m.transfers[i]
			return &t
		}
	}
	return nil
}

func (m *Memory) GetTransferByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransferByShiftLocked(shiftID), nil
}

func (m *Memory) getTransferByShiftLocked(shiftID custody.ShiftID) *custody.Transfer {
	for i := range m.transfers {
		if m.transfers[i].ShiftID == shiftID {
			t := m.transfers[i]
			return &t
		}
	}
	return nil
}

func (m *Memory) UpdateTransfer(_ context.Context, t custody.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransferLocked(t)
}

func (m *Memory) updateTransferLocked(t custody.Transfer) error {
	for i := range m.transfers {
		if m.transfers[i].ID == t.ID {
			m.transfers[i] = t
			return nil
		}
	}
	return &custody.NotFoundError{Entity: "transfer", ID: string(t.ID)}
}

func (m *Memory) ListTransfers(_ context.Context, states []custody.TransferState) ([]custody.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransfersLocked(states), nil
}

func (m *Memory) listTransfersLocked(states []custody.TransferState) []custody.Transfer {
	var out []custody.Transfer
	for _, t := range m.transfers {
		if len(states) > 0 {
			match := false
			for _, s := range states {
				if t.State == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DispatchedAt.After(out[j].DispatchedAt)
	})
	return out
}

// -----------------------------------------------------------------------------
// Receipts
// -----------------------------------------------------------------------------

func (m *Memory) InsertReceipt(_ context.Context, r custody.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *Memory) GetReceiptByTransfer(_ context.Context, transferID custody.TransferID) (*custody.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReceiptByTransferLocked(transferID), nil
}

func (m *Memory) getReceiptByTransferLocked(transferID custody.TransferID) *custody.Receipt {
	for i := range m.receipts {
		if m.receipts[i].TransferID == transferID {
			r := m.receipts[i]
			return &r
		}
	}
	return nil
}

func (m *Memory) UpdateReceipt(_ context.Context, r custody.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateReceiptLocked(r)
}

func (m *Memory) updateReceiptLocked(r custody.Receipt) error {
	for i := range m.receipts {
		if m.receipts[i].ID == r.ID {
			m.receipts[i] = r
			return nil
		}
	}
	return &custody.NotFoundError{Entity: "receipt", ID: string(r.ID)}
}

func (m *Memory) ListReceipts(_ context.Context) ([]custody.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]custody.Receipt{}, m.receipts...), nil
}

// -----------------------------------------------------------------------------
// Parameters + document counters
// -----------------------------------------------------------------------------

func (m *Memory) UpsertParameter(_ context.Context, p custody.Parameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[p.Key] = p
	return nil
}

func (m *Memory) GetParameter(_ context.Context, key string) (*custody.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.params[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) ListParameters(_ context.Context) ([]custody.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]custody.Parameter, 0, len(m.params))
	for _, p := range m.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) NextDocumentNumber(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextDocumentNumberLocked(prefix), nil
}

func (m *Memory) nextDocumentNumberLocked(prefix string) int64 {
	m.counters[prefix]++
	return m.counters[prefix]
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(custody.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	registers []custody.Register
	employees []custody.Employee
	shifts    []custody.Shift
	openings  []custody.Opening
	recons    []custody.Reconciliation
	payments  []custody.VendorPayment
	transfers []custody.Transfer
	receipts  []custody.Receipt
	params    map[string]custody.Parameter
	counters  map[string]int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	params := make(map[string]custody.Parameter, len(tm.params))
	for k, v := range tm.params {
		params[k] = v
	}
	counters := make(map[string]int64, len(tm.counters))
	for k, v := range tm.counters {
		counters[k] = v
	}
	return memorySnapshot{
		registers: append([]custody.Register{}, tm.registers...),
		employees: append([]custody.Employee{}, tm.employees...),
		shifts:    append([]custody.Shift{}, tm.shifts...),
		openings:  append([]custody.Opening{}, tm.openings...),
		recons:    append([]custody.Reconciliation{}, tm.recons...),
		payments:  append([]custody.VendorPayment{}, tm.payments...),
		transfers: append([]custody.Transfer{}, tm.transfers...),
		receipts:  append([]custody.Receipt{}, tm.receipts...),
		params:    params,
		counters:  counters,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.registers = s.registers
	tm.employees = s.employees
	tm.shifts = s.shifts
	tm.openings = s.openings
	tm.recons = s.recons
	tm.payments = s.payments
	tm.transfers = s.transfers
	tm.receipts = s.receipts
	tm.params = s.params
	tm.counters = s.counters
}

// txMemoryView operates on the parent's state while the parent's mutex is
// held by WithTx; reads inside the transaction see its own writes.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) InsertRegister(_ context.Context, r custody.Register) error {
	return tv.parent.insertRegisterLocked(r)
}

func (tv *txMemoryView) GetRegister(_ context.Context, id custody.RegisterID) (*custody.Register, error) {
	return tv.parent.getRegisterLocked(id), nil
}

func (tv *txMemoryView) ListRegisters(_ context.Context) ([]custody.Register, error) {
	return append([]custody.Register{}, tv.parent.registers...), nil
}

func (tv *txMemoryView) CentralRegister(_ context.Context) (*custody.Register, error) {
	return tv.parent.centralRegisterLocked(), nil
}

func (tv *txMemoryView) InsertEmployee(_ context.Context, e custody.Employee) error {
	tv.parent.employees = append(tv.parent.employees, e)
	return nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id custody.EmployeeID) (*custody.Employee, error) {
	for i := range tv.parent.employees {
		if tv.parent.employees[i].ID == id {
			e := tv.parent.employees[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (tv *txMemoryView) ListEmployees(_ context.Context) ([]custody.Employee, error) {
	return append([]custody.Employee{}, tv.parent.employees...), nil
}

func (tv *txMemoryView) InsertShift(_ context.Context, s custody.Shift) error {
	tv.parent.shifts = append(tv.parent.shifts, s)
	return nil
}

func (tv *txMemoryView) GetShift(_ context.Context, id custody.ShiftID) (*custody.Shift, error) {
	return tv.parent.getShiftLocked(id), nil
}

func (tv *txMemoryView) UpdateShift(_ context.Context, s custody.Shift) error {
	return tv.parent.updateShiftLocked(s)
}

func (tv *txMemoryView) ListShifts(_ context.Context) ([]custody.Shift, error) {
	return append([]custody.Shift{}, tv.parent.shifts...), nil
}

func (tv *txMemoryView) OpenShift(_ context.Context, registerID custody.RegisterID) (*custody.Shift, error) {
	return tv.parent.openShiftLocked(registerID), nil
}

func (tv *txMemoryView) InsertOpening(_ context.Context, o custody.Opening) error {
	tv.parent.openings = append(tv.parent.openings, o)
	return nil
}

func (tv *txMemoryView) GetOpeningByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Opening, error) {
	return tv.parent.getOpeningByShiftLocked(shiftID), nil
}

func (tv *txMemoryView) UpdateOpening(_ context.Context, o custody.Opening) error {
	return tv.parent.updateOpeningLocked(o)
}

func (tv *txMemoryView) ListOpenings(_ context.Context) ([]custody.Opening, error) {
	return append([]custody.Opening{}, tv.parent.openings...), nil
}

func (tv *txMemoryView) InsertReconciliation(_ context.Context, r custody.Reconciliation) error {
	tv.parent.recons = append(tv.parent.recons, r)
	return nil
}

func (tv *txMemoryView) GetReconciliationByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Reconciliation, error) {
	return tv.parent.getReconByShiftLocked(shiftID), nil
}

func (tv *txMemoryView) ListReconciliations(_ context.Context) ([]custody.Reconciliation, error) {
	return append([]custody.Reconciliation{}, tv.parent.recons...), nil
}

func (tv *txMemoryView) LatestDispatchableReconciliation(_ context.Context) (*custody.Reconciliation, error) {
	return tv.parent.latestDispatchableLocked(), nil
}

func (tv *txMemoryView) InsertVendorPayment(_ context.Context, p custody.VendorPayment) error {
	tv.parent.payments = append(tv.parent.payments, p)
	return nil
}

func (tv *txMemoryView) ListVendorPaymentsByShift(_ context.Context, shiftID custody.ShiftID) ([]custody.VendorPayment, error) {
	var out []custody.VendorPayment
	for _, p := range tv.parent.payments {
		if p.ShiftID == shiftID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tv *txMemoryView) ListVendorPaymentsInRange(_ context.Context, from, to time.Time) ([]custody.VendorPayment, error) {
	var out []custody.VendorPayment
	for _, p := range tv.parent.payments {
		if p.OccurredAt.Before(from) || p.OccurredAt.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (tv *txMemoryView) InsertTransfer(_ context.Context, t custody.Transfer) error {
	tv.parent.transfers = append(tv.parent.transfers, t)
	return nil
}

func (tv *txMemoryView) GetTransfer(_ context.Context, id custody.TransferID) (*custody.Transfer, error) {
	return tv.parent.getTransferLocked(id), nil
}

func (tv *txMemoryView) GetTransferByShift(_ context.Context, shiftID custody.ShiftID) (*custody.Transfer, error) {
	return tv.parent.getTransferByShiftLocked(shiftID), nil
}

func (tv *txMemoryView) UpdateTransfer(_ context.Context, t custody.Transfer) error {
	return tv.parent.updateTransferLocked(t)
}

func (tv *txMemoryView) ListTransfers(_ context.Context, states []custody.TransferState) ([]custody.Transfer, error) {
	return tv.parent.listTransfersLocked(states), nil
}

func (tv *txMemoryView) InsertReceipt(_ context.Context, r custody.Receipt) error {
	tv.parent.receipts = append(tv.parent.receipts, r)
	return nil
}

func (tv *txMemoryView) GetReceiptByTransfer(_ context.Context, transferID custody.TransferID) (*custody.Receipt, error) {
	return tv.parent.getReceiptByTransferLocked(transferID), nil
}

func (tv *txMemoryView) UpdateReceipt(_ context.Context, r custody.Receipt) error {
	return tv.parent.updateReceiptLocked(r)
}

func (tv *txMemoryView) ListReceipts(_ context.Context) ([]custody.Receipt, error) {
	return append([]custody.Receipt{}, tv.parent.receipts...), nil
}

func (tv *txMemoryView) UpsertParameter(_ context.Context, p custody.Parameter) error {
	tv.parent.params[p.Key] = p
	return nil
}

func (tv *txMemoryView) GetParameter(_ context.Context, key string) (*custody.Parameter, error) {
	if p, ok := tv.parent.params[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (tv *txMemoryView) ListParameters(_ context.Context) ([]custody.Parameter, error) {
	out := make([]custody.Parameter, 0, len(tv.parent.params))
	for _, p := range tv.parent.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (tv *txMemoryView) NextDocumentNumber(_ context.Context, prefix string) (int64, error) {
	return tv.parent.nextDocumentNumberLocked(prefix), nil
}
