package billing

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestBuildLinesSingleItem(t *testing.T) {
	// 12.30 tax-inclusive at 23% resolves to a 10.000 unit price and a
	// 20.00 / 4.60 excl/VAT split over two units.
	order := Order{
		OrderNumber: "#2001",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "Mug", ProductID: "p1", Quantity: 2, UnitPrice: 12.30, Taxable: true},
		},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	mapping := ProductMapping{Products: map[string]int64{"p1": 42}}
	lines, totals, err := BuildLines(order, alloc, mapping)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	require.Equal(t, int64(42), line.ProductID)
	require.Equal(t, 10.0, line.Price)
	require.Equal(t, 2, line.Quantity)
	require.Equal(t, TaxTierNormal, line.TaxID)
	require.Equal(t, 0.0, line.DiscountPercent)
	require.Empty(t, line.ExemptionCode)
	require.Equal(t, LineTypeProduct, line.Type)

	require.InDelta(t, 20.0, totals.BaseExclTax, 1e-9)
	require.InDelta(t, 4.6, totals.BaseVAT, 1e-9)
	require.Equal(t, 0.0, totals.DiscountExclTax)
}

func TestBuildLinesAppliesDiscountMap(t *testing.T) {
	order := Order{
		OrderNumber: "#2002",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "Chair", ProductID: "p1", Quantity: 1, UnitPrice: 30, Taxable: true, DiscountAllocations: []float64{5}},
		},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	lines, totals, err := BuildLines(order, alloc, ProductMapping{Products: map[string]int64{"p1": 7}})
	require.NoError(t, err)
	require.InDelta(t, 16.6667, lines[0].DiscountPercent, 1e-9)

	gross := lines[0].Price
	require.InDelta(t, gross*(1-16.6667/100), totals.BaseExclTax, 1e-6)
	require.InDelta(t, gross*16.6667/100, totals.DiscountExclTax, 1e-6)
}

func TestBuildLinesTaxTiers(t *testing.T) {
	order := Order{
		OrderNumber: "#2003",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "Normal", ProductID: "p1", Quantity: 1, UnitPrice: 12.30, TaxLines: []TaxLine{{RatePercent: 0.23}}},
			{Title: "Intermediate", ProductID: "p2", Quantity: 1, UnitPrice: 11.30, TaxLines: []TaxLine{{RatePercent: 13}}},
			{Title: "Reduced", ProductID: "p3", Quantity: 1, UnitPrice: 10.60, TaxLines: []TaxLine{{RatePercent: 0.06}}},
			{Title: "Exempt", ProductID: "p4", Quantity: 1, UnitPrice: 10, Taxable: false},
		},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	mapping := ProductMapping{Products: map[string]int64{"p1": 1, "p2": 2, "p3": 3, "p4": 4}}
	lines, _, err := BuildLines(order, alloc, mapping)
	require.NoError(t, err)

	require.Equal(t, TaxTierNormal, lines[0].TaxID)
	require.Equal(t, TaxTierIntermediate, lines[1].TaxID)
	require.Equal(t, TaxTierReduced, lines[2].TaxID)
	require.Equal(t, TaxTierExempt, lines[3].TaxID)
	require.Equal(t, ExemptionCodeM16, lines[3].ExemptionCode)
	require.Empty(t, lines[0].ExemptionCode)
}

func TestBuildLinesShipping(t *testing.T) {
	order := Order{
		OrderNumber: "#2004",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "A", ProductID: "p1", Quantity: 1, UnitPrice: 24.60, Taxable: true},
		},
		Shipping: &ShippingLine{Title: "Standard", Price: 5},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	t.Run("without mapping the line is omitted", func(t *testing.T) {
		lines, _, err := BuildLines(order, alloc, ProductMapping{Products: map[string]int64{"p1": 1}})
		require.NoError(t, err)
		require.Len(t, lines, 1)
	})

	t.Run("with mapping", func(t *testing.T) {
		mapping := ProductMapping{Products: map[string]int64{"p1": 1}, ShippingProductID: 99}
		lines, _, err := BuildLines(order, alloc, mapping)
		require.NoError(t, err)
		require.Len(t, lines, 2)

		ship := lines[1]
		require.Equal(t, LineTypeShipping, ship.Type)
		require.Equal(t, int64(99), ship.ProductID)
		require.Equal(t, TaxTierNormal, ship.TaxID)
		require.InDelta(t, Round3(5.0/1.23), ship.Price, 1e-9)
	})
}

func TestBuildLinesShippingHarmonizedWhenAllExempt(t *testing.T) {
	// A taxable shipping line next to an all-exempt order would break the
	// invoice; the shipping VAT follows the products down to the exempt tier.
	order := Order{
		OrderNumber: "#2005",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "Book", ProductID: "p1", Quantity: 1, UnitPrice: 10, Taxable: false},
		},
		Shipping: &ShippingLine{Title: "Standard", Price: 5},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	mapping := ProductMapping{Products: map[string]int64{"p1": 1}, ShippingProductID: 99}
	lines, totals, err := BuildLines(order, alloc, mapping)
	require.NoError(t, err)

	ship := lines[1]
	require.Equal(t, TaxTierExempt, ship.TaxID)
	require.Equal(t, ExemptionCodeM16, ship.ExemptionCode)
	require.Equal(t, 5.0, ship.Price)
	require.Equal(t, 0.0, totals.BaseVAT)
}

func TestBuildLinesFreeShipping(t *testing.T) {
	order := Order{
		OrderNumber: "#2006",
		Country:     "PT",
		LineItems: []LineItem{
			{Title: "A", ProductID: "p1", Quantity: 1, UnitPrice: 24.60, Taxable: true},
		},
		Shipping: &ShippingLine{Title: "Standard", Price: 5},
		DiscountApplications: []DiscountApplication{
			{TargetType: TargetShippingLine, TargetSelection: SelectionAll, AllocationMethod: AllocationAcross, Value: DiscountValue{Kind: ValuePercentage, Amount: 100}},
		},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)
	require.True(t, alloc.FreeShipping)

	mapping := ProductMapping{Products: map[string]int64{"p1": 1}, ShippingProductID: 99}
	lines, _, err := BuildLines(order, alloc, mapping)
	require.NoError(t, err)

	ship := lines[1]
	require.Equal(t, 100.0, ship.DiscountPercent)
	require.InDelta(t, Round3(5.0/1.23), ship.Price, 1e-9)
}

func TestBuildLinesUnmappedProduct(t *testing.T) {
	order := Order{
		OrderNumber: "#2007",
		Country:     "PT",
		LineItems:   []LineItem{{Title: "Ghost", ProductID: "p1", Quantity: 1, UnitPrice: 10, Taxable: true}},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	_, _, err = BuildLines(order, alloc, ProductMapping{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Ghost")
}

func TestBuildLinesTruncatesDescription(t *testing.T) {
	long := strings.Repeat("x", 140)
	order := Order{
		OrderNumber: "#2008",
		Country:     "PT",
		LineItems:   []LineItem{{Title: long, ProductID: "p1", Quantity: 1, UnitPrice: 10, Taxable: true}},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	lines, _, err := BuildLines(order, alloc, ProductMapping{Products: map[string]int64{"p1": 1}})
	require.NoError(t, err)
	require.Len(t, lines[0].Description, 100)
}

func TestBuildLinesTruncatesOnRuneBoundary(t *testing.T) {
	// 99 ASCII bytes followed by a two-byte rune straddling the 100-byte cut.
	long := strings.Repeat("x", 99) + "çãozinho"
	order := Order{
		OrderNumber: "#2009",
		Country:     "PT",
		LineItems:   []LineItem{{Title: long, ProductID: "p1", Quantity: 1, UnitPrice: 10, Taxable: true}},
	}
	alloc, err := Allocate(order)
	require.NoError(t, err)

	lines, _, err := BuildLines(order, alloc, ProductMapping{Products: map[string]int64{"p1": 1}})
	require.NoError(t, err)
	require.True(t, utf8.ValidString(lines[0].Description))
	require.LessOrEqual(t, len(lines[0].Description), 100)
	require.Equal(t, strings.Repeat("x", 99), lines[0].Description)
}
