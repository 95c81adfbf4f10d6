package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cash-custody/custody"
	"github.com/warp/cash-custody/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedFleet(t *testing.T, s *sqlite.Store) (custody.Register, custody.Employee) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	reg := custody.Register{ID: "reg-1", Name: "Caja 1", Kind: custody.RegisterOrdinary, Active: true, CreatedAt: now}
	require.NoError(t, s.InsertRegister(ctx, reg))
	emp := custody.Employee{ID: "emp-1", FullName: "Ana Lopez", Active: true, CreatedAt: now}
	require.NoError(t, s.InsertEmployee(ctx, emp))
	return reg, emp
}

func seedOpenShift(t *testing.T, s *sqlite.Store, id custody.ShiftID, registerID custody.RegisterID) custody.Shift {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	shift := custody.Shift{
		ID: id, RegisterID: registerID, EmployeeID: "emp-1",
		Date: now, StartTime: "09:00", State: custody.ShiftOpen, CreatedAt: now,
	}
	require.NoError(t, s.InsertShift(ctx, shift))
	require.NoError(t, s.InsertOpening(ctx, custody.Opening{
		ID: custody.OpeningID("op-" + string(id)), ShiftID: id,
		InitialAmount: custody.NewAmount(50), CreatedAt: now,
	}))
	return shift
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSQLite_RegisterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := custody.Register{
		ID: "reg-1", Name: "Caja 1", Location: "Planta baja",
		Kind: custody.RegisterOrdinary, Active: true, CreatedAt: time.Now(),
	}
	require.NoError(t, s.InsertRegister(ctx, reg))

	got, err := s.GetRegister(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, reg.Name, got.Name)
	assert.Equal(t, reg.Location, got.Location)
	assert.Equal(t, reg.Kind, got.Kind)

	missing, err := s.GetRegister(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_AmountsSurviveExactly(t *testing.T) {
	// Cent-precise amounts must come back byte-identical, no float drift.
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	recon := custody.Reconciliation{
		ID: "rec-1", ShiftID: "sh-1",
		CountedAmount: custody.AmountFromCents(8007),
		FinalAmount:   custody.AmountFromCents(10010),
		VendorTotal:   custody.AmountFromCents(2003),
		Difference:    custody.ZeroAmount(),
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.InsertReconciliation(ctx, recon))

	got, err := s.GetReconciliationByShift(ctx, "sh-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(8007), got.CountedAmount.Cents())
	assert.Equal(t, int64(10010), got.FinalAmount.Cents())
	assert.Equal(t, int64(2003), got.VendorTotal.Cents())
	assert.True(t, got.Difference.IsZero())
}

func TestSQLite_PlaceholderReceiptRoundTrip(t *testing.T) {
	// A placeholder receipt has no receiver and no received_at; both must
	// come back as zero values, not scan errors.
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	now := time.Now()
	require.NoError(t, s.InsertTransfer(ctx, custody.Transfer{
		ID: "tr-1", ShiftID: "sh-1", SenderID: "emp-1",
		SourceID: "reg-1", DestinationID: "reg-c",
		Amount: custody.NewAmount(250), State: custody.TransferInTransit,
		DispatchedAt: now, CreatedAt: now,
	}))
	require.NoError(t, s.InsertReceipt(ctx, custody.Receipt{
		ID: "rcpt-1", TransferID: "tr-1",
		ReceivedAmount: custody.ZeroAmount(), Difference: custody.ZeroAmount(),
		CreatedAt: now,
	}))

	got, err := s.GetReceiptByTransfer(ctx, "tr-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.ReceiverID)
	assert.True(t, got.ReceivedAt.IsZero())

	got.ReceiverID = "emp-1"
	got.ReceivedAmount = custody.NewAmount(250)
	got.ReceivedAt = now
	require.NoError(t, s.UpdateReceipt(ctx, *got))

	updated, err := s.GetReceiptByTransfer(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, custody.EmployeeID("emp-1"), updated.ReceiverID)
	assert.False(t, updated.ReceivedAt.IsZero())
}

// =============================================================================
// SCHEMA INVARIANTS
// =============================================================================

func TestSQLite_SecondOpenShiftPerRegisterRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	err := s.InsertShift(ctx, custody.Shift{
		ID: "sh-2", RegisterID: "reg-1", EmployeeID: "emp-1",
		Date: time.Now(), StartTime: "10:00", State: custody.ShiftOpen, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, custody.ErrActiveShiftExists)
}

func TestSQLite_SecondActiveCentralRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRegister(ctx, custody.Register{
		ID: "c-1", Name: "Central", Kind: custody.RegisterCentral, Active: true, CreatedAt: time.Now(),
	}))
	err := s.InsertRegister(ctx, custody.Register{
		ID: "c-2", Name: "Central 2", Kind: custody.RegisterCentral, Active: true, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, custody.ErrCentralRegisterExists)

	central, err := s.CentralRegister(ctx)
	require.NoError(t, err)
	require.NotNil(t, central)
	assert.Equal(t, custody.RegisterID("c-1"), central.ID)
}

func TestSQLite_SecondTransferPerShiftRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	now := time.Now()
	transfer := custody.Transfer{
		ID: "tr-1", ShiftID: "sh-1", SenderID: "emp-1",
		SourceID: "reg-1", DestinationID: "reg-c",
		Amount: custody.NewAmount(100), State: custody.TransferInTransit,
		DispatchedAt: now, CreatedAt: now,
	}
	require.NoError(t, s.InsertTransfer(ctx, transfer))

	transfer.ID = "tr-2"
	err := s.InsertTransfer(ctx, transfer)
	assert.ErrorIs(t, err, custody.ErrTransferAlreadyExists)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestSQLite_OpenShiftLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)

	none, err := s.OpenShift(ctx, "reg-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	shift := seedOpenShift(t, s, "sh-1", "reg-1")
	got, err := s.OpenShift(ctx, "reg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, shift.ID, got.ID)

	// Closing the opening hides the shift from the lookup.
	opening, err := s.GetOpeningByShift(ctx, "sh-1")
	require.NoError(t, err)
	opening.Closed = true
	require.NoError(t, s.UpdateOpening(ctx, *opening))

	none, err = s.OpenShift(ctx, "reg-1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_LatestDispatchableReconciliation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	base := time.Now()
	require.NoError(t, s.InsertReconciliation(ctx, custody.Reconciliation{
		ID: "rec-1", ShiftID: "sh-1",
		CountedAmount: custody.NewAmount(80), FinalAmount: custody.NewAmount(80),
		VendorTotal: custody.ZeroAmount(), Difference: custody.ZeroAmount(),
		CreatedAt: base,
	}))

	got, err := s.LatestDispatchableReconciliation(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, custody.ReconciliationID("rec-1"), got.ID)

	// Once a transfer exists for the shift, it is no longer dispatchable.
	require.NoError(t, s.InsertTransfer(ctx, custody.Transfer{
		ID: "tr-1", ShiftID: "sh-1", SenderID: "emp-1",
		SourceID: "reg-1", DestinationID: "reg-c",
		Amount: custody.NewAmount(80), State: custody.TransferInTransit,
		DispatchedAt: base, CreatedAt: base,
	}))

	none, err := s.LatestDispatchableReconciliation(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_ListTransfersByStateNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)
	seedOpenShift(t, s, "sh-1", "reg-1")

	base := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	mk := func(id custody.TransferID, shift custody.ShiftID, state custody.TransferState, at time.Time) {
		require.NoError(t, s.InsertTransfer(ctx, custody.Transfer{
			ID: id, ShiftID: shift, SenderID: "emp-1",
			SourceID: "reg-1", DestinationID: "reg-c",
			Amount: custody.NewAmount(10), State: state,
			DispatchedAt: at, CreatedAt: at,
		}))
	}
	seedOpenShiftClosed := func(id custody.ShiftID) {
		require.NoError(t, s.InsertShift(ctx, custody.Shift{
			ID: id, RegisterID: "reg-1", EmployeeID: "emp-1",
			Date: base, StartTime: "09:00", State: custody.ShiftClosed, CreatedAt: base,
		}))
	}
	seedOpenShiftClosed("sh-2")
	seedOpenShiftClosed("sh-3")

	mk("tr-1", "sh-1", custody.TransferReceived, base)
	mk("tr-2", "sh-2", custody.TransferInTransit, base.Add(time.Minute))
	mk("tr-3", "sh-3", custody.TransferInTransit, base.Add(2*time.Minute))

	pending, err := s.ListTransfers(ctx, []custody.TransferState{custody.TransferInTransit})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, custody.TransferID("tr-3"), pending[0].ID)
	assert.Equal(t, custody.TransferID("tr-2"), pending[1].ID)

	all, err := s.ListTransfers(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx custody.Store) error {
		if err := tx.InsertEmployee(ctx, custody.Employee{
			ID: "emp-2", FullName: "Luis", Active: true, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if _, err := tx.NextDocumentNumber(ctx, "DNA"); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	emp, err := s.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	assert.Nil(t, emp, "rolled-back insert must not persist")

	// The counter rolls back too; the first committed use yields 1.
	n, err := s.NextDocumentNumber(ctx, "DNA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_WithTxReadsOwnWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedFleet(t, s)

	err := s.WithTx(ctx, func(tx custody.Store) error {
		shift := custody.Shift{
			ID: "sh-1", RegisterID: "reg-1", EmployeeID: "emp-1",
			Date: time.Now(), StartTime: "09:00", State: custody.ShiftOpen, CreatedAt: time.Now(),
		}
		if err := tx.InsertShift(ctx, shift); err != nil {
			return err
		}
		got, err := tx.GetShift(ctx, "sh-1")
		if err != nil {
			return err
		}
		require.NotNil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_DocumentCountersPerPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.NextDocumentNumber(ctx, "DNA")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := s.NextDocumentNumber(ctx, "DEV")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "prefixes count independently")
}

// =============================================================================
// END TO END THROUGH THE MANAGERS
// =============================================================================

func TestSQLite_FullCycleThroughManagers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	registry := custody.NewRegistry(s)
	reg, err := registry.CreateRegister(ctx, custody.CreateRegisterInput{Name: "Caja 1"})
	require.NoError(t, err)
	_, err = registry.CreateRegister(ctx, custody.CreateRegisterInput{Name: "Central", Kind: custody.RegisterCentral})
	require.NoError(t, err)
	emp, err := registry.CreateEmployee(ctx, custody.CreateEmployeeInput{FullName: "Ana"})
	require.NoError(t, err)

	shifts := custody.NewShiftManager(s)
	opened, err := shifts.OpenShift(ctx, custody.OpenShiftInput{
		RegisterID: reg.ID, EmployeeID: emp.ID, InitialAmount: custody.NewAmount(50),
	})
	require.NoError(t, err)

	recon, err := shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID: opened.Shift.ID, EmployeeID: emp.ID,
		CountedAmount: custody.NewAmount(80), FinalAmount: custody.NewAmount(100),
		VendorPayments: []custody.VendorPaymentInput{
			{Vendor: "Acme", DocumentType: custody.DocUnauthorized, Amount: custody.NewAmount(20)},
		},
	})
	require.NoError(t, err)
	assert.True(t, recon.Difference.IsZero())

	tm := custody.NewTransferManager(s)
	transfer, err := tm.Dispatch(ctx, opened.Shift.ID)
	require.NoError(t, err)

	receipt, err := tm.Receive(ctx, custody.ReceiveInput{
		TransferID: transfer.ID, EmployeeID: emp.ID,
		ReceivedAmount: custody.NewAmount(80),
	})
	require.NoError(t, err)
	assert.True(t, receipt.Difference.IsZero())

	ops, err := custody.NewHistory(s).Operations(ctx, custody.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, ops, 4)
}
