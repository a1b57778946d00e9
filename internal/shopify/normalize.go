package shopify

import (
	"strconv"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/billing"
)

// NormalizeOrder converts a Shopify order payload into the engine input. All
// monetary fields pass through the tolerant normalizer so malformed or absent
// amounts degrade to zero instead of failing the pipeline.
func NormalizeOrder(o *Order, fallbackCountry string) billing.Order {
	if o == nil {
		return billing.Order{}
	}

	out := billing.Order{
		OrderNumber: o.Name,
		Currency:    o.Currency,
		TotalValue:  billing.Amount(o.TotalPrice),
		Country:     orderCountry(o, fallbackCountry),
	}
	if out.OrderNumber == "" {
		out.OrderNumber = strconv.FormatInt(o.ID, 10)
	}

	if o.CurrentTotalDiscountsSet != nil {
		out.TotalDiscounts = billing.Amount(o.CurrentTotalDiscountsSet.ShopMoney.Amount)
	}
	if out.TotalDiscounts == 0 {
		out.TotalDiscounts = billing.Amount(o.TotalDiscounts)
	}

	for _, app := range o.DiscountApplications {
		out.DiscountApplications = append(out.DiscountApplications, normalizeApplication(app))
	}

	for _, li := range o.LineItems {
		item := billing.LineItem{
			Title:        li.Title,
			Quantity:     li.Quantity,
			UnitPrice:    billing.Amount(li.Price),
			PriceExclTax: billing.Amount(li.PreTaxPrice),
			Taxable:      li.Taxable,
		}
		if li.ProductID != 0 {
			item.ProductID = strconv.FormatInt(li.ProductID, 10)
		}
		if li.VariantID != 0 {
			item.VariantID = strconv.FormatInt(li.VariantID, 10)
		}
		for _, tl := range li.TaxLines {
			item.TaxLines = append(item.TaxLines, billing.TaxLine{RatePercent: tl.Rate})
		}
		for _, alloc := range li.DiscountAllocations {
			item.DiscountAllocations = append(item.DiscountAllocations, billing.Amount(alloc.Amount))
		}
		out.LineItems = append(out.LineItems, item)
	}

	if len(o.ShippingLines) > 0 {
		sl := o.ShippingLines[0]
		out.Shipping = &billing.ShippingLine{
			Title:        sl.Title,
			Price:        billing.Amount(sl.Price),
			PriceExclTax: billing.Amount(sl.PreTaxPrice),
		}
	}

	return out
}

func normalizeApplication(app DiscountApplication) billing.DiscountApplication {
	out := billing.DiscountApplication{
		TargetType:       billing.TargetLineItem,
		TargetSelection:  billing.SelectionAll,
		AllocationMethod: billing.AllocationAcross,
	}
	switch app.TargetType {
	case "shipping_line":
		out.TargetType = billing.TargetShippingLine
	case "line_item", "":
	}
	switch app.TargetSelection {
	case "entitled", "explicit":
		out.TargetSelection = billing.SelectionEntitled
	}
	if app.AllocationMethod == "each" {
		out.AllocationMethod = billing.AllocationEach
	}
	amount := billing.Amount(app.Value)
	if app.ValueType == "fixed_amount" {
		out.Value = billing.DiscountValue{Kind: billing.ValueFixedAmount, Amount: amount}
	} else {
		out.Value = billing.DiscountValue{Kind: billing.ValuePercentage, Amount: amount}
	}
	return out
}

// orderCountry resolves the destination country that drives the default VAT
// rate. Shipping address wins; billing address is only a fallback for orders
// without one (digital goods, pickup).
func orderCountry(o *Order, fallback string) string {
	if o.ShippingAddress != nil && o.ShippingAddress.CountryCode != "" {
		return o.ShippingAddress.CountryCode
	}
	if o.BillingAddress != nil && o.BillingAddress.CountryCode != "" {
		return o.BillingAddress.CountryCode
	}
	return fallback
}
