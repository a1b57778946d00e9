package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/queue"
)

// TaskKindOrderSync is the queue kind consumed by the invoice worker.
const TaskKindOrderSync = "order-sync"

type orderSyncPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewOrderSyncTask builds the queue task for one order. The order id doubles
// as the idempotency key so duplicate webhook deliveries collapse into a
// single pending job.
func NewOrderSyncTask(orderID int64, maxAttempts int) (queue.Task, error) {
	payload, err := json.Marshal(orderSyncPayload{OrderID: orderID})
	if err != nil {
		return queue.Task{}, err
	}
	return queue.Task{
		Kind:           TaskKindOrderSync,
		Payload:        payload,
		IdempotencyKey: strconv.FormatInt(orderID, 10),
		MaxAttempts:    maxAttempts,
	}, nil
}

// HandleTask is the queue worker entry point.
func (s *Service) HandleTask(ctx context.Context, task queue.Task) error {
	var payload orderSyncPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode order sync payload: %w", err)
	}
	if payload.OrderID == 0 {
		return fmt.Errorf("order sync payload missing order id")
	}
	_, err := s.SyncOrder(ctx, payload.OrderID)
	return err
}
