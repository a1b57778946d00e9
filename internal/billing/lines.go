package billing

import (
	"fmt"
	"unicode/utf8"
)

// maxDescriptionLen is the invoicing API limit for line descriptions.
const maxDescriptionLen = 100

// BuildLines turns the discount allocation into the ordered invoice lines and
// the running totals consumed by the reconciliation corrector. Product lines
// come first, in input order, followed by the optional shipping line.
func BuildLines(order Order, alloc Allocation, mapping ProductMapping) ([]InvoiceLine, Totals, error) {
	lines := make([]InvoiceLine, 0, len(order.LineItems)+1)
	var totals Totals

	allExempt := len(order.LineItems) > 0
	for _, li := range order.LineItems {
		productID, err := resolveProduct(mapping, li)
		if err != nil {
			return nil, Totals{}, err
		}
		rate := li.TaxRatePercent(order.Country)
		tier := TaxTierForRate(rate)
		if tier != TaxTierExempt {
			allExempt = false
		}
		price := Round3(li.UnitPriceExclTax(order.Country))
		percent := alloc.Discounts[lineKey(li)]

		lines = append(lines, InvoiceLine{
			ProductID:       productID,
			Description:     truncate(li.Title, maxDescriptionLen),
			Quantity:        li.Quantity,
			Price:           price,
			TaxID:           tier,
			DiscountPercent: Round4(percent),
			ExemptionCode:   exemptionFor(tier),
			Type:            LineTypeProduct,
		})
		totals = totals.fold(price*float64(li.Quantity), percent, rate)
	}

	if order.Shipping != nil && mapping.ShippingProductID != 0 {
		line, gross, rate := shippingInvoiceLine(order, alloc, mapping, allExempt)
		lines = append(lines, line)
		totals = totals.fold(gross, line.DiscountPercent, rate)
	}
	return lines, totals, nil
}

// fold accumulates one line into the totals, producing a new immutable record.
func (t Totals) fold(gross, percent, rate float64) Totals {
	discounted := gross * (1 - percent/100)
	return Totals{
		BaseExclTax:     t.BaseExclTax + discounted,
		BaseVAT:         t.BaseVAT + discounted*rate/100,
		DiscountExclTax: t.DiscountExclTax + gross*percent/100,
	}
}

// shippingInvoiceLine builds the shipping row. When every product line is VAT
// exempt the shipping VAT is harmonized to the exempt tier so the invoice does
// not mix a taxable shipping line into an all-exempt order.
func shippingInvoiceLine(order Order, alloc Allocation, mapping ProductMapping, allExempt bool) (InvoiceLine, float64, float64) {
	sl := order.Shipping
	rate := defaultVATRate
	tier := TaxTierNormal
	price := sl.PriceExclTax
	if allExempt {
		rate = 0
		tier = TaxTierExempt
		if price == 0 {
			price = sl.Price
		}
	} else if price == 0 {
		price = sl.Price / (1 + rate/100)
	}

	percent := alloc.Discounts[ShippingKey]
	if alloc.FreeShipping {
		percent = 100
	}

	title := sl.Title
	if title == "" {
		title = "Shipping"
	}
	price = Round3(price)
	return InvoiceLine{
		ProductID:       mapping.ShippingProductID,
		Description:     truncate(title, maxDescriptionLen),
		Quantity:        1,
		Price:           price,
		TaxID:           tier,
		DiscountPercent: Round4(percent),
		ExemptionCode:   exemptionFor(tier),
		Type:            LineTypeShipping,
	}, price, rate
}

func resolveProduct(mapping ProductMapping, li LineItem) (int64, error) {
	if id, ok := mapping.Products[li.ProductID]; ok && id != 0 {
		return id, nil
	}
	if id, ok := mapping.Products[li.VariantID]; ok && id != 0 {
		return id, nil
	}
	return 0, fmt.Errorf("billing: no invoicing product mapped for line %q", li.Title)
}

func exemptionFor(tier int) string {
	if tier == TaxTierExempt {
		return ExemptionCodeM16
	}
	return ""
}

// truncate cuts s to at most max bytes without splitting a multibyte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
