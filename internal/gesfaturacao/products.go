package gesfaturacao

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/cache"
)

// ErrProductNotFound is returned when no lookup strategy produced a match.
var ErrProductNotFound = errors.New("gesfaturacao: product not found")

// productLookup is one way of resolving a product. Strategies return
// ErrProductNotFound to pass control to the next one.
type productLookup func(ctx context.Context, query ProductQuery) (*Product, error)

// ProductQuery carries the identifiers a product can be resolved by.
type ProductQuery struct {
	Reference string
	Name      string
}

// FindProduct resolves a product by trying each lookup strategy in order and
// short-circuiting on the first hit. Reference beats name so SKU collisions on
// generic titles cannot shadow the exact match. Resolved products are cached
// when a cache is wired; the catalog changes rarely compared to order volume.
func (c *Client) FindProduct(ctx context.Context, query ProductQuery) (*Product, error) {
	cacheKey := productCacheKey(query)
	if cacheKey != "" {
		var cached Product
		if hit, err := c.Cache.Get(ctx, cacheKey, &cached); err == nil && hit && cached.ID != 0 {
			return &cached, nil
		}
	}

	strategies := []productLookup{
		c.findProductByReference,
		c.findProductByName,
	}
	for _, lookup := range strategies {
		product, err := lookup(ctx, query)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if cacheKey != "" {
			if err := c.Cache.Set(ctx, cacheKey, product); err != nil {
				c.Logger.Warn().Err(err).Str("key", cacheKey).Msg("cache product failed")
			}
		}
		return product, nil
	}
	return nil, ErrProductNotFound
}

func productCacheKey(query ProductQuery) string {
	if strings.TrimSpace(query.Reference) != "" {
		return cache.ProductRefKey(query.Reference)
	}
	if strings.TrimSpace(query.Name) != "" {
		return cache.ProductNameKey(query.Name)
	}
	return ""
}

func (c *Client) findProductByReference(ctx context.Context, query ProductQuery) (*Product, error) {
	if query.Reference == "" {
		return nil, ErrProductNotFound
	}
	return c.searchProduct(ctx, url.Values{"reference": []string{query.Reference}})
}

func (c *Client) findProductByName(ctx context.Context, query ProductQuery) (*Product, error) {
	if query.Name == "" {
		return nil, ErrProductNotFound
	}
	return c.searchProduct(ctx, url.Values{"name": []string{query.Name}})
}

func (c *Client) searchProduct(ctx context.Context, values url.Values) (*Product, error) {
	var result struct {
		Products []Product `json:"products"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/products?"+values.Encode(), nil, &result); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if len(result.Products) == 0 {
		return nil, ErrProductNotFound
	}
	return &result.Products[0], nil
}
