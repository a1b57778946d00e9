package shopify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient("demo.myshopify.com", "shpat_token", "2024-10", nil, zerolog.New(io.Discard))
	client.BaseURL = srv.URL
	client.HTTP.BaseBackoff = time.Millisecond
	return client
}

func TestGetOrder(t *testing.T) {
	var gotToken, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order": ` + sampleOrderJSON + `}`))
	}))

	order, err := client.GetOrder(context.Background(), 450789469)
	require.NoError(t, err)
	require.Equal(t, "shpat_token", gotToken)
	require.Equal(t, "/admin/api/2024-10/orders/450789469.json", gotPath)
	require.Equal(t, int64(450789469), order.ID)
	require.Equal(t, "#1001", order.Name)
	require.Len(t, order.LineItems, 2)
}

func TestGetOrderNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
	}))

	_, err := client.GetOrder(context.Background(), 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestListPaidOrders(t *testing.T) {
	var gotQuery string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders": [` + sampleOrderJSON + `]}`))
	}))

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	orders, err := client.ListPaidOrders(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Contains(t, gotQuery, "financial_status=paid")
	require.Contains(t, gotQuery, "created_at_min=2024-06-01T00%3A00%3A00Z")
}

func TestGetOrderRetriesServerErrors(t *testing.T) {
	var calls int
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order": ` + sampleOrderJSON + `}`))
	}))

	order, err := client.GetOrder(context.Background(), 450789469)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "#1001", order.Name)
}
