package billing

// ClampPercent rounds the percentage to 4 decimals and rejects values outside
// [0,100]. It is the sole gate before a discount enters an invoice line, so
// the invoicing API can never receive an out-of-range percentage.
func ClampPercent(value float64, context string) (float64, error) {
	if value < 0 || value > 100 {
		return 0, &InvalidDiscountError{Value: value, Context: context}
	}
	return Round4(value), nil
}

// Mode is the discount strategy selected for an order. The three modes are
// mutually exclusive.
type Mode int

const (
	// ModeNone means no discount of any kind applies.
	ModeNone Mode = iota
	// ModeOrderLevel means a single order-wide discount applies and every
	// per-product percentage is zero.
	ModeOrderLevel
	// ModeProductSpecific means discounts are attributed per line (and
	// optionally to shipping) and no order-wide percentage applies.
	ModeProductSpecific
)

// Allocation is the classifier output consumed by the line builder.
type Allocation struct {
	Mode      Mode
	Discounts DiscountMap
	// GlobalPercent is the invoice-level discount percentage. Non-zero only
	// in order-level mode.
	GlobalPercent float64
	// InvoiceLevelDiscount is the order-wide discount expressed as a
	// tax-exclusive amount. Non-zero only in order-level mode.
	InvoiceLevelDiscount float64
	FreeShipping         bool
	SubtotalExclTax      float64
	SubtotalWithTax      float64
}

// Allocate classifies the order's discount applications and computes the
// discount map. Strategy selection follows a strict priority: an order-wide
// discount only wins when no entitled, shipping or line-level discount
// coexists with it.
func Allocate(order Order) (Allocation, error) {
	alloc := Allocation{Mode: ModeNone, Discounts: DiscountMap{}}

	for _, li := range order.LineItems {
		if li.ProductID == "" && li.VariantID == "" {
			return Allocation{}, &MissingIdentifierError{OrderNumber: order.OrderNumber, Title: li.Title}
		}
		rate := li.TaxRatePercent(order.Country)
		lineExcl := li.UnitPriceExclTax(order.Country) * float64(li.Quantity)
		alloc.SubtotalExclTax += lineExcl
		alloc.SubtotalWithTax += lineExcl * (1 + rate/100)
		alloc.Discounts[lineKey(li)] = 0
	}

	var general, shipping *DiscountApplication
	hasEntitled := false
	for i := range order.DiscountApplications {
		app := &order.DiscountApplications[i]
		switch {
		case app.TargetType == TargetLineItem && app.TargetSelection == SelectionAll && app.AllocationMethod == AllocationAcross:
			if general == nil {
				general = app
			}
		case app.TargetType == TargetLineItem && app.TargetSelection == SelectionEntitled && app.AllocationMethod == AllocationEach:
			hasEntitled = true
		case app.TargetType == TargetShippingLine && app.TargetSelection == SelectionAll:
			if shipping == nil {
				shipping = app
			}
		}
	}

	hasLineAllocations := false
	for _, li := range order.LineItems {
		if allocationSum(li) > 0 {
			hasLineAllocations = true
			break
		}
	}

	switch {
	case general != nil && !hasEntitled && shipping == nil:
		if err := allocateOrderLevel(order, *general, &alloc); err != nil {
			return Allocation{}, err
		}
	case hasEntitled || shipping != nil || hasLineAllocations:
		if err := allocatePerProduct(order, shipping, &alloc); err != nil {
			return Allocation{}, err
		}
	}
	return alloc, nil
}

func allocateOrderLevel(order Order, general DiscountApplication, alloc *Allocation) error {
	alloc.Mode = ModeOrderLevel

	var percent float64
	switch general.Value.Kind {
	case ValuePercentage:
		percent = general.Value.Amount
	case ValueFixedAmount:
		if alloc.SubtotalWithTax > 0 {
			percent = general.Value.Amount / alloc.SubtotalWithTax * 100
		}
	}
	clamped, err := ClampPercent(percent, "order-level discount for order "+order.OrderNumber)
	if err != nil {
		return err
	}
	alloc.GlobalPercent = clamped

	// The order-wide discount amount arrives tax-inclusive; divide out the
	// weighted average tax rate so the totals stay tax-exclusive.
	expected := order.TotalDiscounts
	if expected == 0 {
		switch general.Value.Kind {
		case ValuePercentage:
			expected = alloc.SubtotalWithTax * clamped / 100
		case ValueFixedAmount:
			expected = general.Value.Amount
		}
	}
	avgRate := 0.0
	if alloc.SubtotalExclTax > 0 {
		avgRate = (alloc.SubtotalWithTax - alloc.SubtotalExclTax) / alloc.SubtotalExclTax
	}
	alloc.InvoiceLevelDiscount = expected / (1 + avgRate)
	return nil
}

func allocatePerProduct(order Order, shipping *DiscountApplication, alloc *Allocation) error {
	alloc.Mode = ModeProductSpecific

	for _, li := range order.LineItems {
		sum := allocationSum(li)
		if sum == 0 {
			continue
		}
		rate := li.TaxRatePercent(order.Country)
		lineExcl := li.UnitPriceExclTax(order.Country) * float64(li.Quantity)
		if lineExcl <= 0 {
			continue
		}
		exclSum := sum / (1 + rate/100)
		percent, err := ClampPercent(exclSum/lineExcl*100, "line "+li.Title)
		if err != nil {
			return err
		}
		alloc.Discounts[lineKey(li)] = percent
	}

	if shipping != nil && order.Shipping != nil {
		percent, free := shippingPercent(*shipping, *order.Shipping)
		clamped, err := ClampPercent(percent, "shipping for order "+order.OrderNumber)
		if err != nil {
			return err
		}
		alloc.Discounts[ShippingKey] = clamped
		alloc.FreeShipping = free
	}
	return nil
}

// shippingPercent resolves the shipping discount. A 100% percentage or a
// fixed amount covering the full shipping price means free shipping.
func shippingPercent(app DiscountApplication, line ShippingLine) (float64, bool) {
	switch app.Value.Kind {
	case ValuePercentage:
		if app.Value.Amount >= 100 {
			return 100, true
		}
		return app.Value.Amount, false
	case ValueFixedAmount:
		if line.Price <= 0 || app.Value.Amount >= line.Price {
			return 100, true
		}
		return app.Value.Amount / line.Price * 100, false
	}
	return 0, false
}

func allocationSum(li LineItem) float64 {
	var sum float64
	for _, a := range li.DiscountAllocations {
		sum += Amount(a)
	}
	return sum
}

func lineKey(li LineItem) string {
	if li.ProductID != "" {
		return li.ProductID
	}
	return li.VariantID
}
