package billing

import "fmt"

// MissingIdentifierError reports a line item that carries neither a product
// nor a variant identifier. The order cannot be invoiced.
type MissingIdentifierError struct {
	OrderNumber string
	Title       string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("billing: order %s line %q has no product or variant identifier", e.OrderNumber, e.Title)
}

// InvalidDiscountError reports a computed discount percentage outside [0,100].
// It signals corrupt upstream discount data or a classification bug; the
// whole invoice generation is aborted.
type InvalidDiscountError struct {
	Value   float64
	Context string
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("billing: discount %.4f%% out of range for %s", e.Value, e.Context)
}
