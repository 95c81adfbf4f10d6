package custody_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cash-custody/custody"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fullCycle runs open -> reconcile -> dispatch -> receive and returns the
// history reader.
func fullCycle(t *testing.T, f *fixture) *custody.History {
	t.Helper()
	ctx := context.Background()
	tm := f.transfers()

	result := f.openShift(t, 50)
	_, err := f.shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID:       result.Shift.ID,
		EmployeeID:    f.employee.ID,
		CountedAmount: custody.NewAmount(75),
		FinalAmount:   custody.NewAmount(100),
		VendorPayments: []custody.VendorPaymentInput{
			{Vendor: "Acme", DocumentType: custody.DocInvoice, DocumentNumber: "F-01", Amount: custody.NewAmount(20)},
		},
		Comment: "sobrante de apertura",
	})
	require.NoError(t, err)

	transfer, err := tm.Dispatch(ctx, result.Shift.ID)
	require.NoError(t, err)

	_, err = tm.Receive(ctx, custody.ReceiveInput{
		TransferID:     transfer.ID,
		EmployeeID:     f.employee.ID,
		ReceivedAmount: custody.NewAmount(75),
	})
	require.NoError(t, err)

	return custody.NewHistory(f.store)
}

// =============================================================================
// FEED COMPLETENESS
// =============================================================================

func TestHistory_FullCycleProducesFourOperations(t *testing.T) {
	// GIVEN: One complete custody cycle
	// WHEN: Reading the unfiltered feed
	// THEN: Exactly opening, reconciliation, transfer and receipt appear

	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 4)

	kinds := make(map[custody.OperationKind]int)
	for _, op := range ops {
		kinds[op.Kind]++
	}
	assert.Equal(t, 1, kinds[custody.OpOpening])
	assert.Equal(t, 1, kinds[custody.OpReconciliation])
	assert.Equal(t, 1, kinds[custody.OpTransfer])
	assert.Equal(t, 1, kinds[custody.OpReceipt])
}

func TestHistory_NewestFirstOrdering(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{})
	require.NoError(t, err)
	for i := 1; i < len(ops); i++ {
		assert.False(t, ops[i-1].OccurredAt.Before(ops[i].OccurredAt),
			"feed must be newest first")
	}
}

func TestHistory_SameInstantRowsOrderByLifecycleStage(t *testing.T) {
	// GIVEN: A full cycle whose writes all share one pinned timestamp
	// WHEN: Reading the newest-first feed
	// THEN: Rows read backwards through the lifecycle instead of
	//       shuffling on random IDs

	f := newFixture(t)
	ctx := context.Background()
	tm := f.transfers()

	instant := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	f.shifts.Now = func() time.Time { return instant }
	tm.Now = func() time.Time { return instant }

	result := f.openShift(t, 50)
	f.closeShift(t, result.Shift.ID, 100)
	transfer, err := tm.Dispatch(ctx, result.Shift.ID)
	require.NoError(t, err)
	_, err = tm.Receive(ctx, custody.ReceiveInput{
		TransferID:     transfer.ID,
		EmployeeID:     f.employee.ID,
		ReceivedAmount: custody.NewAmount(100),
	})
	require.NoError(t, err)

	ops, err := custody.NewHistory(f.store).Operations(ctx, custody.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 4)

	want := []custody.OperationKind{
		custody.OpReceipt, custody.OpTransfer, custody.OpReconciliation, custody.OpOpening,
	}
	for i, kind := range want {
		assert.Equal(t, kind, ops[i].Kind)
		assert.True(t, ops[i].OccurredAt.Equal(instant))
	}
}

func TestHistory_StatusLabels(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{})
	require.NoError(t, err)

	byKind := make(map[custody.OperationKind]custody.Operation)
	for _, op := range ops {
		byKind[op.Kind] = op
	}

	assert.Equal(t, "Apertura", byKind[custody.OpOpening].KindLabel)
	assert.Equal(t, custody.StatusClosed, byKind[custody.OpOpening].Status)

	assert.Equal(t, "Arqueo", byKind[custody.OpReconciliation].KindLabel)
	assert.Equal(t, custody.StatusDifference, byKind[custody.OpReconciliation].Status)
	assert.Equal(t, "sobrante de apertura", byKind[custody.OpReconciliation].Comment)

	assert.Equal(t, "Traslado", byKind[custody.OpTransfer].KindLabel)
	assert.Equal(t, custody.StatusReceived, byKind[custody.OpTransfer].Status)

	assert.Equal(t, "Recepción", byKind[custody.OpReceipt].KindLabel)
	assert.Equal(t, custody.StatusNoDifference, byKind[custody.OpReceipt].Status)
}

func TestHistory_InTransitTransferShownWithoutReceipt(t *testing.T) {
	// GIVEN: A dispatched transfer not yet received
	// WHEN: Reading the feed
	// THEN: The transfer row shows "En tránsito"; the placeholder receipt
	//       is not listed

	f := newFixture(t)
	ctx := context.Background()

	result := f.openShift(t, 50)
	f.closeShift(t, result.Shift.ID, 100)
	_, err := f.transfers().Dispatch(ctx, result.Shift.ID)
	require.NoError(t, err)

	ops, err := custody.NewHistory(f.store).Operations(ctx, custody.HistoryFilter{})
	require.NoError(t, err)

	var sawTransfer bool
	for _, op := range ops {
		require.NotEqual(t, custody.OpReceipt, op.Kind, "placeholder receipt must not appear")
		if op.Kind == custody.OpTransfer {
			sawTransfer = true
			assert.Equal(t, custody.StatusInTransit, op.Status)
		}
	}
	assert.True(t, sawTransfer)
}

func TestHistory_ObservedTransferStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tm := f.transfers()

	result := f.openShift(t, 50)
	f.closeShift(t, result.Shift.ID, 100)
	transfer, err := tm.Dispatch(ctx, result.Shift.ID)
	require.NoError(t, err)
	_, err = tm.Receive(ctx, custody.ReceiveInput{
		TransferID:     transfer.ID,
		EmployeeID:     f.employee.ID,
		ReceivedAmount: custody.NewAmount(90),
		Comment:        "faltante en ruta",
	})
	require.NoError(t, err)

	ops, err := custody.NewHistory(f.store).Operations(ctx, custody.HistoryFilter{
		Kind: custody.OpTransfer,
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, custody.StatusObserved, ops[0].Status)

	receipts, err := custody.NewHistory(f.store).Operations(ctx, custody.HistoryFilter{
		Kind: custody.OpReceipt,
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, custody.StatusDifference, receipts[0].Status)
	assert.True(t, receipts[0].Difference.Equal(custody.NewAmount(-10)))
}

// =============================================================================
// FILTERS
// =============================================================================

func TestHistory_KindFilter(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{
		Kind: custody.OpOpening,
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, custody.OpOpening, ops[0].Kind)
}

func TestHistory_StatusFilter(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{
		Status: custody.StatusReceived,
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, custody.OpTransfer, ops[0].Kind)
}

func TestHistory_StatusFilterMatchesSubstring(t *testing.T) {
	// "diferencia" matches both "Sin diferencia" and "Con diferencia",
	// regardless of case.

	f := newFixture(t)
	history := fullCycle(t, f)

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{
		Status: "DIFERENCIA",
	})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Contains(t, []custody.OperationKind{custody.OpReconciliation, custody.OpReceipt}, op.Kind)
	}
}

func TestHistory_EmptyDateRangeYieldsNothing(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	past := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	ops, err := history.Operations(context.Background(), custody.HistoryFilter{
		From: past,
		To:   past.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestHistory_ToDateIsInclusiveThroughEndOfDay(t *testing.T) {
	f := newFixture(t)
	history := fullCycle(t, f)

	today := time.Now()
	startOfDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	ops, err := history.Operations(context.Background(), custody.HistoryFilter{
		From: startOfDay,
		To:   startOfDay,
	})
	require.NoError(t, err)
	assert.Len(t, ops, 4, "operations recorded today fall inside a today-to-today range")
}

// =============================================================================
// VENDOR CONCEPT SUMMARY
// =============================================================================

func TestVendorConceptSummary_GroupsNormalizedConcepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.openShift(t, 50)
	_, err := f.shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID:       first.Shift.ID,
		EmployeeID:    f.employee.ID,
		CountedAmount: custody.NewAmount(70),
		FinalAmount:   custody.NewAmount(100),
		VendorPayments: []custody.VendorPaymentInput{
			{Vendor: "Acme", DocumentType: custody.DocInvoice, DocumentNumber: "F-01", Amount: custody.NewAmount(30)},
		},
	})
	require.NoError(t, err)

	second := f.openShift(t, 50)
	_, err = f.shifts.ReconcileAndClose(ctx, custody.ReconcileInput{
		ShiftID:       second.Shift.ID,
		EmployeeID:    f.employee.ID,
		CountedAmount: custody.NewAmount(55),
		FinalAmount:   custody.NewAmount(100),
		VendorPayments: []custody.VendorPaymentInput{
			// Same concept up to case and spacing.
			{Vendor: "ACME", DocumentType: custody.DocInvoice, DocumentNumber: "F-01", Amount: custody.NewAmount(25)},
			{Vendor: "Bravo", DocumentType: custody.DocInvoice, DocumentNumber: "F-02", Amount: custody.NewAmount(20)},
		},
	})
	require.NoError(t, err)

	summaries, err := custody.NewHistory(f.store).VendorConceptSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Largest total first.
	assert.Equal(t, 2, summaries[0].Count)
	assert.True(t, summaries[0].Total.Equal(custody.NewAmount(55)))
	assert.Equal(t, 1, summaries[1].Count)
	assert.True(t, summaries[1].Total.Equal(custody.NewAmount(20)))
}

func TestNormalizeConcept(t *testing.T) {
	assert.Equal(t,
		custody.NormalizeConcept("Factura F-01 - ACME"),
		custody.NormalizeConcept("  factura   f-01 - acme "))
}
