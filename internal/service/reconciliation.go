package service

// Reconciliation is the pure arithmetic core of the close flow: no I/O, no
// side effects, deterministic. It works from the running totals the ledger
// already maintains — not a re-sum of raw operations — so the persisted totals
// and the reconciliation agree by construction.

// ReconciliationResult holds the terminal fields persisted at close time.
// All values are integer cents.
type ReconciliationResult struct {
	// ExpectedAmount = openingAmount + totalCashIn - totalCashOut.
	ExpectedAmount int64
	// Difference = closingAmount - ExpectedAmount.
	// Positive: counted surplus. Negative: shortage.
	Difference int64
	// In the daily-cash model revenue/expenses mirror the drawer totals;
	// finer categorization belongs to the financial-reports subsystem.
	TotalRevenue  int64
	TotalExpenses int64
}

// Reconcile computes the closing snapshot for a session. Adjustment entries
// never reach the running totals, so they are absent from this math as well.
func Reconcile(openingAmount, totalCashIn, totalCashOut, closingAmount int64) ReconciliationResult {
	expected := openingAmount + totalCashIn - totalCashOut
	return ReconciliationResult{
		ExpectedAmount: expected,
		Difference:     closingAmount - expected,
		TotalRevenue:   totalCashIn,
		TotalExpenses:  totalCashOut,
	}
}
