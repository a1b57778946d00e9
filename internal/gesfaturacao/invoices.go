package gesfaturacao

import (
	"context"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/billing"
)

var validate = validator.New()

// BuildInvoiceRequest maps a computed invoice onto the creation payload.
func BuildInvoiceRequest(inv billing.Invoice, clientID, serieID int64, issued time.Time) InvoiceRequest {
	req := InvoiceRequest{
		ClientID:     clientID,
		SerieID:      serieID,
		Date:         issued.Format("02/01/2006"),
		Expiration:   issued.Format("02/01/2006"),
		Coin:         inv.Currency,
		Discount:     inv.Discount,
		Observations: "Encomenda " + inv.OrderNumber,
		Lines:        make([]InvoiceLine, 0, len(inv.Lines)),
	}
	for _, line := range inv.Lines {
		req.Lines = append(req.Lines, InvoiceLine{
			ProductID:       line.ProductID,
			Description:     line.Description,
			Quantity:        line.Quantity,
			Price:           line.Price,
			TaxID:           line.TaxID,
			DiscountPercent: line.DiscountPercent,
			ExemptionCode:   line.ExemptionCode,
		})
	}
	return req
}

// CreateInvoice validates and submits an invoice and returns its identifier.
// Validation runs locally first so malformed payloads never reach the API,
// whose error messages are far less specific.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("gesfaturacao: invalid invoice request: %w", err)
	}
	var result struct {
		Invoice InvoiceResult `json:"invoice"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sales/invoices", req, &result); err != nil {
		return nil, err
	}
	if result.Invoice.ID == 0 {
		return nil, &APIError{Status: http.StatusInternalServerError, Message: "invoice created without id"}
	}
	return &result.Invoice, nil
}
