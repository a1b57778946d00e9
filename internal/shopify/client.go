package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/resilience"
)

const defaultAPIVersion = "2024-10"

// APIError is a non-2xx response from the Shopify Admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: status %d: %s", e.Status, e.Message)
}

// Client talks to the Shopify Admin REST API for a single shop.
type Client struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	HTTP        resilience.HTTPClient
	Logger      zerolog.Logger

	// BaseURL overrides the shop domain scheme/host, used by tests.
	BaseURL string
}

// NewClient builds a client with the standard resilient transport.
func NewClient(shopDomain, accessToken, apiVersion string, breaker *resilience.Breaker, logger zerolog.Logger) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		ShopDomain:  shopDomain,
		AccessToken: accessToken,
		APIVersion:  apiVersion,
		Logger:      logger,
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   10 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     breaker,
			BaseBackoff: 500 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}

// GetOrder fetches a single order by id.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	endpoint := fmt.Sprintf("%s/orders/%d.json", c.apiRoot(), orderID)
	var payload struct {
		Order *Order `json:"order"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Order == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("order %d not found", orderID)}
	}
	return payload.Order, nil
}

// ListPaidOrders returns paid orders created at or after the given time.
func (c *Client) ListPaidOrders(ctx context.Context, since time.Time) ([]Order, error) {
	values := url.Values{}
	values.Set("status", "any")
	values.Set("financial_status", "paid")
	if !since.IsZero() {
		values.Set("created_at_min", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/orders.json?%s", c.apiRoot(), values.Encode())
	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Orders, nil
}

func (c *Client) apiRoot() string {
	base := c.BaseURL
	if base == "" {
		base = "https://" + c.ShopDomain
	}
	version := c.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(base, "/"), version)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		obs.RecordUpstreamRequest("shopify", "error")
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		obs.RecordUpstreamRequest("shopify", "error")
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		obs.RecordUpstreamRequest("shopify", "error")
		c.Logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("shopify request failed")
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	obs.RecordUpstreamRequest("shopify", "ok")
	return json.Unmarshal(body, out)
}
