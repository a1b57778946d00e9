package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an order has no ledger entry yet.
var ErrNotFound = errors.New("store: order invoice not found")

// Status of an order in the invoice ledger.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInvoiced Status = "invoiced"
	StatusFailed   Status = "failed"
)

// OrderInvoice is one ledger row: the invoicing outcome for a Shopify order.
type OrderInvoice struct {
	OrderID       int64
	OrderNumber   string
	InvoiceID     int64
	InvoiceNumber string
	Status        Status
	Error         *string
	Amount        float64
	Discount      float64
	Corrected     bool
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store is the pgx-backed invoice ledger.
type Store struct {
	Pool *pgxpool.Pool
}

// NewStore wraps a connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const selectColumns = `order_id, order_number, invoice_id, invoice_number, status, error, amount, discount, corrected, attempts, created_at, updated_at`

// Get fetches the ledger entry for an order.
func (s *Store) Get(ctx context.Context, orderID int64) (OrderInvoice, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM order_invoices WHERE order_id = $1`, orderID)
	entry, err := scanOrderInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderInvoice{}, ErrNotFound
	}
	return entry, err
}

// Upsert records a sync outcome. Re-syncs of the same order update the row in
// place and bump the attempt counter.
func (s *Store) Upsert(ctx context.Context, entry OrderInvoice) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO order_invoices
  (order_id, order_number, invoice_id, invoice_number, status, error, amount, discount, corrected, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
ON CONFLICT (order_id) DO UPDATE SET
  order_number   = EXCLUDED.order_number,
  invoice_id     = EXCLUDED.invoice_id,
  invoice_number = EXCLUDED.invoice_number,
  status         = EXCLUDED.status,
  error          = EXCLUDED.error,
  amount         = EXCLUDED.amount,
  discount       = EXCLUDED.discount,
  corrected      = EXCLUDED.corrected,
  attempts       = order_invoices.attempts + 1,
  updated_at     = now()`,
		entry.OrderID, entry.OrderNumber, entry.InvoiceID, entry.InvoiceNumber,
		entry.Status, entry.Error, entry.Amount, entry.Discount, entry.Corrected)
	return err
}

// List returns ledger entries newest first, with the total row count for
// pagination.
func (s *Store) List(ctx context.Context, limit, offset int) ([]OrderInvoice, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+selectColumns+` FROM order_invoices ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]OrderInvoice, 0, limit)
	for rows.Next() {
		entry, err := scanOrderInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_invoices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanOrderInvoice(row pgx.Row) (OrderInvoice, error) {
	var entry OrderInvoice
	err := row.Scan(
		&entry.OrderID, &entry.OrderNumber, &entry.InvoiceID, &entry.InvoiceNumber,
		&entry.Status, &entry.Error, &entry.Amount, &entry.Discount, &entry.Corrected,
		&entry.Attempts, &entry.CreatedAt, &entry.UpdatedAt,
	)
	return entry, err
}
