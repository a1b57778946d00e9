package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/billing"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/common"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/queue"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/shopify"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/store"
)

const maxWebhookBody = 1 << 20

// Enqueuer abstracts the task queue for handler tests.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// OrderLister fetches batches of paid orders for backfills.
type OrderLister interface {
	ListPaidOrders(ctx context.Context, since time.Time) ([]shopify.Order, error)
}

// Handler serves the webhook and admin endpoints of the sync service.
type Handler struct {
	Service       *Service
	Queue         Enqueuer
	Orders        OrderLister
	WebhookSecret string
	MaxAttempts   int
	PageSize      int
	Logger        zerolog.Logger
}

// OrdersWebhook receives Shopify order webhooks, verifies the HMAC signature
// and queues a sync job. The response is always fast; invoicing happens in the
// worker.
func (h *Handler) OrdersWebhook(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get(shopify.HeaderTopic)
	if topic == "" {
		topic = "orders/paid"
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		obs.RecordWebhookReceived(topic, "error")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidPayload, "unreadable body", nil)
		return
	}

	if !shopify.VerifyWebhook(h.WebhookSecret, body, r.Header.Get(shopify.HeaderHMAC)) {
		obs.RecordWebhookReceived(topic, "rejected")
		h.Logger.Warn().Str("topic", topic).Str("ip", common.ClientIP(r)).Msg("webhook signature rejected")
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid webhook signature", nil)
		return
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ID == 0 {
		obs.RecordWebhookReceived(topic, "error")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidPayload, "missing order id", nil)
		return
	}

	task, err := NewOrderSyncTask(payload.ID, h.MaxAttempts)
	if err != nil {
		obs.RecordWebhookReceived(topic, "error")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "queue task", nil)
		return
	}
	if err := h.Queue.Enqueue(r.Context(), task); err != nil {
		obs.RecordWebhookReceived(topic, "error")
		h.Logger.Error().Err(err).Int64("order_id", payload.ID).Msg("enqueue order sync")
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "queue unavailable", nil)
		return
	}

	obs.RecordWebhookReceived(topic, "ok")
	common.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "order_id": payload.ID})
}

// AdminSyncOrder runs a synchronous (re)sync for one order.
func (h *Handler) AdminSyncOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidPayload, "invalid order id", nil)
		return
	}

	entry, err := h.Service.SyncOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error().Err(err).Int64("order_id", orderID).Msg("admin sync failed")
		writeSyncError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ledgerItem(entry)})
}

// AdminBackfill enqueues a sync job for every paid order created since the
// given time. Orders already invoiced are skipped by the worker, so replaying
// an interval is safe.
func (h *Handler) AdminBackfill(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "backfill source not configured", nil)
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeInvalidPayload, "since must be RFC3339", nil)
			return
		}
		since = parsed
	}

	orders, err := h.Orders.ListPaidOrders(r.Context(), since)
	if err != nil {
		h.Logger.Error().Err(err).Time("since", since).Msg("backfill list orders")
		writeSyncError(w, err)
		return
	}

	queued := 0
	for _, order := range orders {
		task, err := NewOrderSyncTask(order.ID, h.MaxAttempts)
		if err != nil {
			continue
		}
		if err := h.Queue.Enqueue(r.Context(), task); err != nil {
			h.Logger.Error().Err(err).Int64("order_id", order.ID).Msg("backfill enqueue")
			common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "queue unavailable", nil)
			return
		}
		queued++
	}

	h.Logger.Info().Int("queued", queued).Time("since", since).Msg("backfill queued")
	common.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "count": queued})
}

// AdminListOrders lists the invoice ledger, newest first.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	pageSize := h.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page, perPage := common.ParsePagination(r, pageSize)
	entries, total, err := h.Service.Ledger.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "list orders", nil)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, ledgerItem(entry))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

func ledgerItem(entry store.OrderInvoice) map[string]any {
	item := map[string]any{
		"order_id":     entry.OrderID,
		"order_number": entry.OrderNumber,
		"status":       entry.Status,
		"amount":       entry.Amount,
		"discount":     entry.Discount,
		"corrected":    entry.Corrected,
		"attempts":     entry.Attempts,
		"created_at":   entry.CreatedAt.Format(time.RFC3339),
		"updated_at":   entry.UpdatedAt.Format(time.RFC3339),
	}
	if entry.InvoiceID != 0 {
		item["invoice_id"] = entry.InvoiceID
		item["invoice_number"] = entry.InvoiceNumber
	}
	if entry.Error != nil {
		item["error"] = *entry.Error
	}
	return item
}

func writeSyncError(w http.ResponseWriter, err error) {
	var missingID *billing.MissingIdentifierError
	var invalidDiscount *billing.InvalidDiscountError
	switch {
	case errors.As(err, &missingID), errors.As(err, &invalidDiscount):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidPayload, err.Error(), nil)
	default:
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstream, err.Error(), nil)
	}
}
