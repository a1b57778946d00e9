package gesfaturacao

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/cache"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/resilience"
)

// ErrNotAuthenticated is returned when a session could not be established.
var ErrNotAuthenticated = errors.New("gesfaturacao: not authenticated")

// Client talks to the GesFaturação API. Sessions are token based: the client
// logs in lazily, caches the token until expiry, and retries once with a fresh
// session when the API answers 401.
type Client struct {
	BaseURL  string
	Username string
	Password string
	HTTP     resilience.HTTPClient
	Logger   zerolog.Logger

	// Cache, when set, memoises product lookups. Optional.
	Cache *cache.JSON

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient builds a client with the standard resilient transport.
func NewClient(baseURL, username, password string, breaker *resilience.Breaker, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		Logger:   logger,
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   15 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     breaker,
			BaseBackoff: 500 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.Username)
	form.Set("password", c.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/users/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		obs.RecordUpstreamRequest("gesfaturacao", "error")
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		obs.RecordUpstreamRequest("gesfaturacao", "error")
		return "", decodeAPIError(resp.StatusCode, body)
	}

	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return "", err
	}
	if login.Token == "" {
		return "", ErrNotAuthenticated
	}

	ttl := time.Duration(login.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 50 * time.Minute
	}
	c.token = login.Token
	c.tokenExp = time.Now().Add(ttl - time.Minute)
	obs.RecordUpstreamRequest("gesfaturacao", "ok")
	c.Logger.Debug().Time("expires", c.tokenExp).Msg("gesfaturacao session established")
	return c.token, nil
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

// doJSON performs an authenticated request, re-establishing the session once
// when the API reports the token expired.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.ensureSession(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", token)

		resp, err := c.HTTP.Do(ctx, req)
		if err != nil {
			obs.RecordUpstreamRequest("gesfaturacao", "error")
			return err
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateSession()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			obs.RecordUpstreamRequest("gesfaturacao", "error")
			c.Logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("gesfaturacao request failed")
			return decodeAPIError(resp.StatusCode, raw)
		}
		obs.RecordUpstreamRequest("gesfaturacao", "ok")
		if out == nil {
			return nil
		}
		return json.Unmarshal(raw, out)
	}
	return ErrNotAuthenticated
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
