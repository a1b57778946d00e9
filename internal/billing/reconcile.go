package billing

import "math"

// reconcileTolerance is the maximum allowed gap, in currency units, between
// the computed invoice total and the platform's authoritative total.
const reconcileTolerance = 0.01

// Reconciliation is the corrector verdict.
type Reconciliation struct {
	// Discount is the final invoice-level discount percentage.
	Discount   float64
	Calculated float64
	Expected   float64
	// Corrected reports that the discount was recomputed to absorb drift;
	// Divergence is the gap that triggered it.
	Corrected  bool
	Divergence float64
}

// Reconcile guarantees the invoice total matches the expected tax-inclusive
// total within one cent. Per-line rounding and tax-tier approximation can
// never reproduce the platform total exactly, so any residual is absorbed
// into the single invoice-level discount instead of rejecting the invoice.
func Reconcile(totals Totals, globalDiscount, expected float64) Reconciliation {
	gross := totals.BaseExclTax + totals.BaseVAT
	calculated := gross * (1 - globalDiscount/100)
	divergence := math.Abs(calculated - expected)

	rec := Reconciliation{
		Discount:   Round4(globalDiscount),
		Calculated: calculated,
		Expected:   expected,
	}
	if divergence <= reconcileTolerance || gross <= 0 {
		return rec
	}

	rec.Discount = Round4(100 * (1 - expected/gross))
	rec.Calculated = gross * (1 - rec.Discount/100)
	rec.Corrected = true
	rec.Divergence = divergence
	return rec
}
