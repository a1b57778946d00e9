package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/billing"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/gesfaturacao"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/lock"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/shopify"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/store"
)

// OrderSource fetches orders from the commerce platform.
type OrderSource interface {
	GetOrder(ctx context.Context, orderID int64) (*shopify.Order, error)
}

// Invoicer is the invoicing-service surface the orchestrator needs.
type Invoicer interface {
	FindProduct(ctx context.Context, query gesfaturacao.ProductQuery) (*gesfaturacao.Product, error)
	FindOrCreateClient(ctx context.Context, info gesfaturacao.ClientInfo) (*gesfaturacao.ClientRecord, error)
	CreateInvoice(ctx context.Context, req gesfaturacao.InvoiceRequest) (*gesfaturacao.InvoiceResult, error)
}

// Ledger records invoicing outcomes per order.
type Ledger interface {
	Get(ctx context.Context, orderID int64) (store.OrderInvoice, error)
	Upsert(ctx context.Context, entry store.OrderInvoice) error
	List(ctx context.Context, limit, offset int) ([]store.OrderInvoice, int64, error)
}

// Locker serialises work per lock key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// noopLocker runs the callback directly. Used when no Redis is wired (tests).
type noopLocker struct{}

func (noopLocker) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	return fn(ctx)
}

// Service turns paid Shopify orders into GesFaturação invoices exactly once.
type Service struct {
	Shopify        OrderSource
	Invoices       Invoicer
	Ledger         Ledger
	Locker         Locker
	LockPrefix     string
	LockTTL        time.Duration
	SerieID        int64
	ShippingRef    string
	DefaultCountry string
	Logger         zerolog.Logger
	Now            func() time.Time
}

// SyncOrder runs the full pipeline for one order: ledger idempotency check,
// per-order lock, fetch, normalize, compute, submit, record. Re-running a
// synced order returns the existing ledger entry without touching the
// invoicing service.
func (s *Service) SyncOrder(ctx context.Context, orderID int64) (store.OrderInvoice, error) {
	if entry, err := s.Ledger.Get(ctx, orderID); err == nil && entry.Status == store.StatusInvoiced {
		obs.RecordOrderSync("skipped")
		return entry, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.OrderInvoice{}, err
	}

	var result store.OrderInvoice
	key := lock.OrderSyncKey(s.lockPrefix(), orderID)
	err := s.locker().WithLock(ctx, key, s.lockTTL(), func(ctx context.Context) error {
		var err error
		result, err = s.syncLocked(ctx, orderID)
		return err
	})
	return result, err
}

func (s *Service) syncLocked(ctx context.Context, orderID int64) (store.OrderInvoice, error) {
	started := s.now()

	// another worker may have finished while this one waited for the lock
	if entry, err := s.Ledger.Get(ctx, orderID); err == nil && entry.Status == store.StatusInvoiced {
		obs.RecordOrderSync("skipped")
		return entry, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.OrderInvoice{}, err
	}

	order, err := s.Shopify.GetOrder(ctx, orderID)
	if err != nil {
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, fmt.Errorf("fetch order %d: %w", orderID, err)
	}

	normalized := shopify.NormalizeOrder(order, s.DefaultCountry)

	mapping, err := s.resolveMapping(ctx, order)
	if err != nil {
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, s.recordFailure(ctx, orderID, normalized.OrderNumber, err)
	}

	invoice, err := billing.Generate(normalized, mapping)
	if err != nil {
		obs.RecordInvoiceGenerated("", "error")
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, s.recordFailure(ctx, orderID, normalized.OrderNumber, err)
	}
	if invoice.Corrected {
		obs.RecordReconciliationCorrection()
		s.Logger.Warn().
			Str("order", invoice.OrderNumber).
			Float64("divergence", invoice.Divergence).
			Float64("discount", invoice.Discount).
			Msg("invoice total diverged, discount recomputed")
	}

	client, err := s.Invoices.FindOrCreateClient(ctx, clientInfo(order, s.DefaultCountry))
	if err != nil {
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, s.recordFailure(ctx, orderID, normalized.OrderNumber, err)
	}

	req := gesfaturacao.BuildInvoiceRequest(invoice, client.ID, s.SerieID, s.now())
	created, err := s.Invoices.CreateInvoice(ctx, req)
	if err != nil {
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, s.recordFailure(ctx, orderID, normalized.OrderNumber, err)
	}

	entry := store.OrderInvoice{
		OrderID:       orderID,
		OrderNumber:   normalized.OrderNumber,
		InvoiceID:     created.ID,
		InvoiceNumber: created.Number,
		Status:        store.StatusInvoiced,
		Amount:        normalized.TotalValue,
		Discount:      invoice.Discount,
		Corrected:     invoice.Corrected,
	}
	if err := s.Ledger.Upsert(ctx, entry); err != nil {
		obs.RecordOrderSync("error")
		return store.OrderInvoice{}, fmt.Errorf("record invoice for order %d: %w", orderID, err)
	}

	obs.RecordInvoiceGenerated(invoiceMode(invoice), "ok")
	obs.RecordOrderSync("ok")
	obs.ObserveOrderSyncDuration(time.Since(started))
	s.Logger.Info().
		Str("order", entry.OrderNumber).
		Int64("invoice_id", entry.InvoiceID).
		Str("invoice", entry.InvoiceNumber).
		Float64("amount", entry.Amount).
		Msg("order invoiced")
	return entry, nil
}

// resolveMapping looks every order line up in the invoicing-service catalog.
// SKU is the reference of record; the product title is the fallback query.
func (s *Service) resolveMapping(ctx context.Context, order *shopify.Order) (billing.ProductMapping, error) {
	mapping := billing.ProductMapping{Products: make(map[string]int64, len(order.LineItems))}
	for _, li := range order.LineItems {
		product, err := s.Invoices.FindProduct(ctx, gesfaturacao.ProductQuery{Reference: li.SKU, Name: li.Title})
		if err != nil {
			return billing.ProductMapping{}, fmt.Errorf("resolve product %q: %w", li.Title, err)
		}
		if li.ProductID != 0 {
			mapping.Products[strconv.FormatInt(li.ProductID, 10)] = product.ID
		}
		if li.VariantID != 0 {
			mapping.Products[strconv.FormatInt(li.VariantID, 10)] = product.ID
		}
	}
	if s.ShippingRef != "" && len(order.ShippingLines) > 0 {
		product, err := s.Invoices.FindProduct(ctx, gesfaturacao.ProductQuery{Reference: s.ShippingRef})
		if err != nil {
			return billing.ProductMapping{}, fmt.Errorf("resolve shipping product: %w", err)
		}
		mapping.ShippingProductID = product.ID
	}
	return mapping, nil
}

func (s *Service) recordFailure(ctx context.Context, orderID int64, orderNumber string, cause error) error {
	errText := cause.Error()
	entry := store.OrderInvoice{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Status:      store.StatusFailed,
		Error:       &errText,
	}
	if err := s.Ledger.Upsert(ctx, entry); err != nil {
		s.Logger.Error().Err(err).Int64("order_id", orderID).Msg("record sync failure")
	}
	return cause
}

func clientInfo(order *shopify.Order, fallbackCountry string) gesfaturacao.ClientInfo {
	info := gesfaturacao.ClientInfo{Country: fallbackCountry}
	if order.BillingAddress != nil && order.BillingAddress.CountryCode != "" {
		info.Country = order.BillingAddress.CountryCode
	}
	if order.Customer != nil {
		info.Email = order.Customer.Email
		name := order.Customer.FirstName
		if order.Customer.LastName != "" {
			if name != "" {
				name += " "
			}
			name += order.Customer.LastName
		}
		info.Name = name
	}
	return info
}

func invoiceMode(inv billing.Invoice) string {
	if inv.Discount > 0 {
		return "order_level"
	}
	for _, line := range inv.Lines {
		if line.DiscountPercent > 0 {
			return "product_specific"
		}
	}
	return "none"
}

func (s *Service) locker() Locker {
	if s.Locker == nil {
		return noopLocker{}
	}
	return s.Locker
}

func (s *Service) lockPrefix() string {
	if s.LockPrefix == "" {
		return "gessync"
	}
	return s.LockPrefix
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return time.Minute
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
