package billing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/billing"
)

func mapping(ids ...string) billing.ProductMapping {
	m := billing.ProductMapping{Products: map[string]int64{}, ShippingProductID: 900}
	for i, id := range ids {
		m.Products[id] = int64(i + 1)
	}
	return m
}

func TestGenerateNoDiscounts(t *testing.T) {
	order := billing.Order{
		OrderNumber: "#3001",
		Currency:    "EUR",
		TotalValue:  24.60,
		Country:     "PT",
		LineItems: []billing.LineItem{
			{Title: "Mug", ProductID: "p1", Quantity: 2, UnitPrice: 12.30, Taxable: true},
		},
	}
	inv, err := billing.Generate(order, mapping("p1"))
	require.NoError(t, err)

	require.Equal(t, "#3001", inv.OrderNumber)
	require.Len(t, inv.Lines, 1)
	require.Equal(t, 10.0, inv.Lines[0].Price)
	require.Equal(t, 0.0, inv.Lines[0].DiscountPercent)
	require.Equal(t, 0.0, inv.Discount)
	require.False(t, inv.Corrected)
	require.InDelta(t, 20.0, inv.Totals.BaseExclTax, 1e-9)
	require.InDelta(t, 4.6, inv.Totals.BaseVAT, 1e-9)
}

func TestGenerateOrderLevelDiscount(t *testing.T) {
	order := billing.Order{
		OrderNumber:    "#3002",
		Currency:       "EUR",
		TotalValue:     90.00,
		TotalDiscounts: 10.00,
		Country:        "PT",
		LineItems: []billing.LineItem{
			{Title: "A", ProductID: "p1", Quantity: 1, UnitPrice: 61.50, Taxable: true},
			{Title: "B", ProductID: "p2", Quantity: 1, UnitPrice: 38.50, Taxable: true},
		},
		DiscountApplications: []billing.DiscountApplication{
			{
				TargetType:       billing.TargetLineItem,
				TargetSelection:  billing.SelectionAll,
				AllocationMethod: billing.AllocationAcross,
				Value:            billing.DiscountValue{Kind: billing.ValuePercentage, Amount: 10},
			},
		},
	}
	inv, err := billing.Generate(order, mapping("p1", "p2"))
	require.NoError(t, err)

	require.InDelta(t, 10.0, inv.Discount, 1e-4)
	for _, line := range inv.Lines {
		require.Equal(t, 0.0, line.DiscountPercent)
	}
	gross := inv.Totals.BaseExclTax + inv.Totals.BaseVAT
	require.LessOrEqual(t, math.Abs(gross*(1-inv.Discount/100)-order.TotalValue), 0.01)
}

func TestGenerateProductSpecificDiscount(t *testing.T) {
	order := billing.Order{
		OrderNumber: "#3003",
		Currency:    "EUR",
		TotalValue:  25.00,
		Country:     "PT",
		LineItems: []billing.LineItem{
			{
				Title:               "Chair",
				ProductID:           "p1",
				Quantity:            1,
				UnitPrice:           30,
				Taxable:             true,
				DiscountAllocations: []float64{5},
			},
		},
	}
	inv, err := billing.Generate(order, mapping("p1"))
	require.NoError(t, err)

	require.InDelta(t, 16.6667, inv.Lines[0].DiscountPercent, 1e-9)
	// Product-specific mode never sets an order-wide percentage beyond what
	// reconciliation itself requires.
	gross := inv.Totals.BaseExclTax + inv.Totals.BaseVAT
	require.LessOrEqual(t, math.Abs(gross*(1-inv.Discount/100)-order.TotalValue), 0.01)
}

func TestGenerateFreeShipping(t *testing.T) {
	order := billing.Order{
		OrderNumber: "#3004",
		Currency:    "EUR",
		TotalValue:  24.60,
		Country:     "PT",
		LineItems: []billing.LineItem{
			{Title: "A", ProductID: "p1", Quantity: 1, UnitPrice: 24.60, Taxable: true},
		},
		Shipping: &billing.ShippingLine{Title: "Standard", Price: 5},
		DiscountApplications: []billing.DiscountApplication{
			{
				TargetType:       billing.TargetShippingLine,
				TargetSelection:  billing.SelectionAll,
				AllocationMethod: billing.AllocationAcross,
				Value:            billing.DiscountValue{Kind: billing.ValuePercentage, Amount: 100},
			},
		},
	}
	inv, err := billing.Generate(order, mapping("p1"))
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)

	ship := inv.Lines[1]
	require.Equal(t, billing.LineTypeShipping, ship.Type)
	require.Equal(t, 100.0, ship.DiscountPercent)
	require.Greater(t, ship.Price, 0.0)

	gross := inv.Totals.BaseExclTax + inv.Totals.BaseVAT
	require.LessOrEqual(t, math.Abs(gross*(1-inv.Discount/100)-order.TotalValue), 0.01)
}

func TestGenerateReconciliationAbsorbsDrift(t *testing.T) {
	// The platform total disagrees with the computed lines by a few cents;
	// the corrector must close the gap through the top-level discount.
	order := billing.Order{
		OrderNumber: "#3005",
		Currency:    "EUR",
		TotalValue:  24.55,
		Country:     "PT",
		LineItems: []billing.LineItem{
			{Title: "Mug", ProductID: "p1", Quantity: 2, UnitPrice: 12.30, Taxable: true},
		},
	}
	inv, err := billing.Generate(order, mapping("p1"))
	require.NoError(t, err)
	require.True(t, inv.Corrected)
	require.InDelta(t, 0.05, inv.Divergence, 1e-9)

	gross := inv.Totals.BaseExclTax + inv.Totals.BaseVAT
	require.LessOrEqual(t, math.Abs(gross*(1-inv.Discount/100)-order.TotalValue), 0.01)
}

func TestGenerateModesAreMutuallyExclusive(t *testing.T) {
	// Zero discounts: every line percentage and the order-wide figure stay 0.
	order := billing.Order{
		OrderNumber: "#3006",
		Currency:    "EUR",
		TotalValue:  36.90,
		Country:     "PT",
		LineItems: []billing.LineItem{
			{Title: "A", ProductID: "p1", Quantity: 1, UnitPrice: 12.30, Taxable: true},
			{Title: "B", ProductID: "p2", Quantity: 2, UnitPrice: 12.30, Taxable: true},
		},
	}
	inv, err := billing.Generate(order, mapping("p1", "p2"))
	require.NoError(t, err)
	require.Equal(t, 0.0, inv.Discount)
	for _, line := range inv.Lines {
		require.Equal(t, 0.0, line.DiscountPercent)
	}

	// Product-specific input: per-line percentages may be set but the
	// order-wide discount only ever carries the reconciliation residual.
	order.LineItems[0].DiscountAllocations = []float64{1.23}
	order.TotalValue = 35.67
	inv, err = billing.Generate(order, mapping("p1", "p2"))
	require.NoError(t, err)
	require.NotZero(t, inv.Lines[0].DiscountPercent)
	require.LessOrEqual(t, inv.Discount, 0.1)
}

func TestGenerateAbortsOnMissingIdentifier(t *testing.T) {
	order := billing.Order{
		OrderNumber: "#3007",
		LineItems:   []billing.LineItem{{Title: "Orphan", Quantity: 1, UnitPrice: 10}},
	}
	_, err := billing.Generate(order, mapping())
	var missing *billing.MissingIdentifierError
	require.ErrorAs(t, err, &missing)
}
