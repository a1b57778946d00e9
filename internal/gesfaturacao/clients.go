package gesfaturacao

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// consumerVAT is the Portuguese "final consumer" tax number used when the
// buyer supplied none.
const consumerVAT = "999999990"

// FindOrCreateClient resolves the invoicing-service customer for a buyer.
// Lookup goes by VAT number first, then by email; a missing record is created.
func (c *Client) FindOrCreateClient(ctx context.Context, info ClientInfo) (*ClientRecord, error) {
	if info.VAT == "" {
		info.VAT = consumerVAT
	}
	if info.Name == "" {
		info.Name = "Consumidor Final"
	}
	if info.Country == "" {
		info.Country = "PT"
	}

	if record, err := c.searchClient(ctx, url.Values{"vat": []string{info.VAT}}); err == nil {
		return record, nil
	} else if !errors.Is(err, errClientNotFound) {
		return nil, err
	}

	if info.Email != "" {
		if record, err := c.searchClient(ctx, url.Values{"email": []string{info.Email}}); err == nil {
			return record, nil
		} else if !errors.Is(err, errClientNotFound) {
			return nil, err
		}
	}

	return c.createClient(ctx, info)
}

var errClientNotFound = errors.New("gesfaturacao: client not found")

func (c *Client) searchClient(ctx context.Context, values url.Values) (*ClientRecord, error) {
	var result struct {
		Clients []ClientRecord `json:"clients"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/clients?"+values.Encode(), nil, &result); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, errClientNotFound
		}
		return nil, err
	}
	if len(result.Clients) == 0 {
		return nil, errClientNotFound
	}
	return &result.Clients[0], nil
}

func (c *Client) createClient(ctx context.Context, info ClientInfo) (*ClientRecord, error) {
	payload := map[string]string{
		"name":    info.Name,
		"vat":     info.VAT,
		"email":   info.Email,
		"country": info.Country,
	}
	var result struct {
		Client ClientRecord `json:"client"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/clients", payload, &result); err != nil {
		return nil, err
	}
	if result.Client.ID == 0 {
		return nil, &APIError{Status: http.StatusInternalServerError, Message: "client created without id"}
	}
	return &result.Client, nil
}
