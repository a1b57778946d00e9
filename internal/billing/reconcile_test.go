package billing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileWithinTolerance(t *testing.T) {
	totals := Totals{BaseExclTax: 20, BaseVAT: 4.6}
	rec := Reconcile(totals, 0, 24.60)
	require.False(t, rec.Corrected)
	require.Equal(t, 0.0, rec.Discount)
	require.InDelta(t, 24.6, rec.Calculated, 1e-9)
}

func TestReconcileCorrectsDrift(t *testing.T) {
	// A 0.05 drift exceeds the cent tolerance and must be absorbed into the
	// invoice-level discount.
	totals := Totals{BaseExclTax: 100, BaseVAT: 23}
	rec := Reconcile(totals, 0, 122.95)
	require.True(t, rec.Corrected)
	require.InDelta(t, 0.05, rec.Divergence, 1e-9)
	require.InDelta(t, Round4(100*(1-122.95/123)), rec.Discount, 1e-9)
	require.LessOrEqual(t, math.Abs(rec.Calculated-122.95), 0.01)
}

func TestReconcileIdempotent(t *testing.T) {
	totals := Totals{BaseExclTax: 100, BaseVAT: 23}
	first := Reconcile(totals, 0, 122.95)
	second := Reconcile(totals, first.Discount, 122.95)
	require.False(t, second.Corrected)
	require.Equal(t, first.Discount, second.Discount)
}

func TestReconcileKeepsGlobalDiscount(t *testing.T) {
	// Order-level mode: the classifier's 10% survives when it already lands
	// on the expected total.
	totals := Totals{BaseExclTax: 81.301, BaseVAT: Round3(81.301 * 0.23)}
	rec := Reconcile(totals, 10, 90.00)
	require.False(t, rec.Corrected)
	require.Equal(t, 10.0, rec.Discount)
}

func TestReconcileZeroGross(t *testing.T) {
	rec := Reconcile(Totals{}, 0, 0)
	require.False(t, rec.Corrected)
	require.Equal(t, 0.0, rec.Discount)
}
