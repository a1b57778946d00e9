package gesfaturacao

import "fmt"

// Product is an invoicing-service product record.
type Product struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	TaxID     int    `json:"tax_id"`
}

// ClientRecord is an invoicing-service customer record.
type ClientRecord struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	VAT     string `json:"vat"`
	Email   string `json:"email"`
	Country string `json:"country"`
}

// ClientInfo is the buyer data used to find or create a ClientRecord.
type ClientInfo struct {
	Name    string
	VAT     string
	Email   string
	Country string
}

// InvoiceLine is one row of the invoice creation payload.
type InvoiceLine struct {
	ProductID       int64   `json:"id" validate:"required"`
	Description     string  `json:"description"`
	Quantity        int     `json:"quantity" validate:"gt=0"`
	Price           float64 `json:"price" validate:"gte=0"`
	TaxID           int     `json:"tax" validate:"min=1,max=4"`
	DiscountPercent float64 `json:"discount" validate:"gte=0,lte=100"`
	ExemptionCode   string  `json:"exemption,omitempty"`
}

// InvoiceRequest is the invoice creation payload.
type InvoiceRequest struct {
	ClientID     int64         `json:"client" validate:"required"`
	SerieID      int64         `json:"serie" validate:"required"`
	Date         string        `json:"date" validate:"required"`
	Expiration   string        `json:"expiration" validate:"required"`
	Coin         string        `json:"coin" validate:"required"`
	Discount     float64       `json:"discount" validate:"gte=0,lte=100"`
	Observations string        `json:"observations,omitempty"`
	NeedsBank    bool          `json:"needsBank"`
	Lines        []InvoiceLine `json:"lines" validate:"min=1,dive"`
}

// InvoiceResult identifies a created invoice.
type InvoiceResult struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

// APIError is an error payload returned by the invoicing service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gesfaturacao: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gesfaturacao: status %d: %s", e.Status, e.Message)
}
