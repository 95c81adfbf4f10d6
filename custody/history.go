/*
history.go - Read-only operation log

PURPOSE:
  Projects the write-side rows (openings, reconciliations, transfers,
  receipts) into a single chronological feed of Operation records, the
  way an auditor reads the day: what happened, when, by whom, with what
  amount, and in what terminal status.

GUARANTEES:
  - Read-only: building the feed never mutates custody state.
  - Complete: every persisted opening, reconciliation, transfer and
    finalized receipt appears exactly once.
  - Ordered: newest first. Equal timestamps tiebreak by lifecycle stage
    (receipt before transfer before reconciliation before opening, since
    the feed reads backwards), then by record ID, so repeated calls
    never shuffle rows.
  - Placeholder receipts (transfer still in transit) are not listed as
    operations; the transfer row itself carries the "En tránsito" status.

SEE ALSO:
  - shift.go, transfer.go: The writers whose rows are projected here
  - store.go: List* read methods
*/
package custody

import (
	"context"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// OPERATION - One row in the history feed
// =============================================================================

type OperationKind string

const (
	OpOpening        OperationKind = "opening"
	OpReconciliation OperationKind = "reconciliation"
	OpTransfer       OperationKind = "transfer"
	OpReceipt        OperationKind = "receipt"
)

// Display labels for the feed, matching the operator-facing vocabulary.
var kindLabels = map[OperationKind]string{
	OpOpening:        "Apertura",
	OpReconciliation: "Arqueo",
	OpTransfer:       "Traslado",
	OpReceipt:        "Recepción",
}

// kindRank orders same-instant rows by lifecycle stage, so a shift whose
// close-out writes share one timestamp still reads in creation order.
var kindRank = map[OperationKind]int{
	OpOpening:        0,
	OpReconciliation: 1,
	OpTransfer:       2,
	OpReceipt:        3,
}

// Status labels per kind.
const (
	StatusActive       = "Activa"
	StatusClosed       = "Cerrada"
	StatusNoDifference = "Sin diferencia"
	StatusDifference   = "Con diferencia"
	StatusInTransit    = "En tránsito"
	StatusReceived     = "Recibido"
	StatusObserved     = "Observado"
)

// Operation is one history row. Difference and Comment are only
// meaningful for reconciliation and receipt rows.
type Operation struct {
	ID         string
	Kind       OperationKind
	KindLabel  string
	RegisterID RegisterID
	ShiftID    ShiftID
	EmployeeID EmployeeID
	Amount     Amount
	Difference Amount
	Status     string
	Comment    string
	OccurredAt time.Time
}

// =============================================================================
// FILTERS
// =============================================================================

// HistoryFilter narrows the feed. Zero values mean "no constraint".
// To is inclusive through the end of its calendar day.
type HistoryFilter struct {
	Kind   OperationKind
	From   time.Time
	To     time.Time
	Status string // case-insensitive substring of the status label
}

func (f HistoryFilter) matches(op Operation) bool {
	if f.Kind != "" && op.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && op.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() {
		end := time.Date(f.To.Year(), f.To.Month(), f.To.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), f.To.Location())
		if op.OccurredAt.After(end) {
			return false
		}
	}
	if f.Status != "" && !strings.Contains(strings.ToLower(op.Status), strings.ToLower(f.Status)) {
		return false
	}
	return true
}

// =============================================================================
// HISTORY
// =============================================================================

type History struct {
	Store Store
}

func NewHistory(store Store) *History {
	return &History{Store: store}
}

// Operations builds the filtered feed, newest first.
func (h *History) Operations(ctx context.Context, filter HistoryFilter) ([]Operation, error) {
	shifts, err := h.Store.ListShifts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	shiftByID := make(map[ShiftID]Shift, len(shifts))
	for _, s := range shifts {
		shiftByID[s.ID] = s
	}

	var ops []Operation

	openings, err := h.Store.ListOpenings(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, o := range openings {
		shift := shiftByID[o.ShiftID]
		status := StatusActive
		if o.Closed {
			status = StatusClosed
		}
		ops = append(ops, Operation{
			ID:         string(o.ID),
			Kind:       OpOpening,
			KindLabel:  kindLabels[OpOpening],
			RegisterID: shift.RegisterID,
			ShiftID:    o.ShiftID,
			EmployeeID: shift.EmployeeID,
			Amount:     o.InitialAmount,
			Status:     status,
			Comment:    o.Notes,
			OccurredAt: o.CreatedAt,
		})
	}

	recons, err := h.Store.ListReconciliations(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, r := range recons {
		shift := shiftByID[r.ShiftID]
		status := StatusNoDifference
		if !r.Difference.IsZero() {
			status = StatusDifference
		}
		ops = append(ops, Operation{
			ID:         string(r.ID),
			Kind:       OpReconciliation,
			KindLabel:  kindLabels[OpReconciliation],
			RegisterID: shift.RegisterID,
			ShiftID:    r.ShiftID,
			EmployeeID: shift.EmployeeID,
			Amount:     r.CountedAmount,
			Difference: r.Difference,
			Status:     status,
			Comment:    r.Comment,
			OccurredAt: r.CreatedAt,
		})
	}

	transfers, err := h.Store.ListTransfers(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	transferByID := make(map[TransferID]Transfer, len(transfers))
	for _, t := range transfers {
		transferByID[t.ID] = t
		var status string
		switch t.State {
		case TransferInTransit:
			status = StatusInTransit
		case TransferReceived:
			status = StatusReceived
		case TransferObserved:
			status = StatusObserved
		}
		ops = append(ops, Operation{
			ID:         string(t.ID),
			Kind:       OpTransfer,
			KindLabel:  kindLabels[OpTransfer],
			RegisterID: t.SourceID,
			ShiftID:    t.ShiftID,
			EmployeeID: t.SenderID,
			Amount:     t.Amount,
			Status:     status,
			OccurredAt: t.DispatchedAt,
		})
	}

	receipts, err := h.Store.ListReceipts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, r := range receipts {
		// Placeholder rows have no receiver yet; the in-transit transfer
		// already represents the pending movement.
		if r.ReceiverID == "" {
			continue
		}
		transfer := transferByID[r.TransferID]
		status := StatusNoDifference
		if !r.Difference.IsZero() {
			status = StatusDifference
		}
		ops = append(ops, Operation{
			ID:         string(r.ID),
			Kind:       OpReceipt,
			KindLabel:  kindLabels[OpReceipt],
			RegisterID: transfer.DestinationID,
			ShiftID:    transfer.ShiftID,
			EmployeeID: r.ReceiverID,
			Amount:     r.ReceivedAmount,
			Difference: r.Difference,
			Status:     status,
			Comment:    r.Comment,
			OccurredAt: r.ReceivedAt,
		})
	}

	filtered := ops[:0]
	for _, op := range ops {
		if filter.matches(op) {
			filtered = append(filtered, op)
		}
	}
	ops = filtered

	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].OccurredAt.Equal(ops[j].OccurredAt) {
			return ops[i].OccurredAt.After(ops[j].OccurredAt)
		}
		if kindRank[ops[i].Kind] != kindRank[ops[j].Kind] {
			return kindRank[ops[i].Kind] > kindRank[ops[j].Kind]
		}
		return ops[i].ID < ops[j].ID
	})
	return ops, nil
}

// =============================================================================
// VENDOR PAYMENT REPORTING
// =============================================================================

// ConceptSummary aggregates vendor payments sharing a normalized concept.
type ConceptSummary struct {
	Concept string
	Count   int
	Total   Amount
}

// VendorConceptSummary groups vendor payments in [from, to] by normalized
// concept, largest total first. Zero from/to means unbounded on that side.
func (h *History) VendorConceptSummary(ctx context.Context, from, to time.Time) ([]ConceptSummary, error) {
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	} else {
		to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), to.Location())
	}
	payments, err := h.Store.ListVendorPaymentsInRange(ctx, from, to)
	if err != nil {
		return nil, storeErr(err)
	}

	byKey := make(map[string]*ConceptSummary)
	var order []string
	for _, p := range payments {
		key := NormalizeConcept(p.Concept)
		s, ok := byKey[key]
		if !ok {
			s = &ConceptSummary{Concept: p.Concept, Total: ZeroAmount()}
			byKey[key] = s
			order = append(order, key)
		}
		s.Count++
		s.Total = s.Total.Add(p.Amount)
	}

	out := make([]ConceptSummary, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Concept < out[j].Concept
	})
	return out, nil
}
