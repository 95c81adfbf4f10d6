/*
difference.go - Discrepancy calculator

PURPOSE:
  Pure functions computing expected vs. actual amounts and the sign and
  magnitude of any difference. Used by both the shift reconciliation and
  the transfer receipt; both follow the same sign convention.

SIGN CONVENTION:
  negative = shortage (less cash than expected)
  positive = surplus
  zero     = exact match

No side effects. The only failure mode is an invalid input (negative
where disallowed), rejected with an InvalidAmount error.
*/
package custody

// ReconciliationDifference computes the close-out discrepancy for a shift:
//
//	(finalAmount - vendorTotal) - countedAmount
//
// finalAmount is the expected sales total, vendorTotal the sum of vendor
// payments made from the drawer, countedAmount the physical cash counted.
func ReconciliationDifference(finalAmount, vendorTotal, countedAmount Amount) (Amount, error) {
	if finalAmount.IsNegative() {
		return Amount{}, &InvalidAmountError{Field: "final_amount", Amount: finalAmount}
	}
	if vendorTotal.IsNegative() {
		return Amount{}, &InvalidAmountError{Field: "vendor_total", Amount: vendorTotal}
	}
	if countedAmount.IsNegative() {
		return Amount{}, &InvalidAmountError{Field: "counted_amount", Amount: countedAmount}
	}
	return finalAmount.Sub(vendorTotal).Sub(countedAmount), nil
}

// ReceiptDifference computes the arrival discrepancy for a transfer:
//
//	receivedAmount - expectedAmount
//
// Negative means less arrived than was sent.
func ReceiptDifference(expectedAmount, receivedAmount Amount) (Amount, error) {
	if expectedAmount.IsNegative() {
		return Amount{}, &InvalidAmountError{Field: "expected_amount", Amount: expectedAmount}
	}
	if receivedAmount.IsNegative() {
		return Amount{}, &InvalidAmountError{Field: "received_amount", Amount: receivedAmount}
	}
	return receivedAmount.Sub(expectedAmount), nil
}
