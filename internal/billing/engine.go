package billing

// Generate runs the full invoice computation for one order: classify the
// discounts, build the lines, reconcile against the platform total. The
// computation is pure and sequential; any failure aborts with no partial
// invoice, and independent orders may be generated concurrently.
func Generate(order Order, mapping ProductMapping) (Invoice, error) {
	alloc, err := Allocate(order)
	if err != nil {
		return Invoice{}, err
	}
	lines, totals, err := BuildLines(order, alloc, mapping)
	if err != nil {
		return Invoice{}, err
	}
	rec := Reconcile(totals, alloc.GlobalPercent, order.TotalValue)

	return Invoice{
		OrderNumber: order.OrderNumber,
		Currency:    order.Currency,
		Lines:       lines,
		Discount:    rec.Discount,
		Totals:      totals,
		Corrected:   rec.Corrected,
		Divergence:  rec.Divergence,
	}, nil
}
