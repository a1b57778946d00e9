package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/resilience"
)

// Task is one unit of asynchronous work, typically the sync of a single
// Shopify order. The idempotency key suppresses duplicate enqueues within
// the dedup window.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Attempt        int
	Delay          time.Duration
}

// taskMessage is the wire form stored in the Redis sorted set. AvailableAt
// doubles as the member score, which is what makes delayed delivery work.
type taskMessage struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

// Enqueuer publishes tasks onto the Redis delayed queue.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the task. A task carrying an idempotency key is silently
// dropped when the same key was enqueued within the dedup window, which is
// how webhook redeliveries and concurrent admin syncs collapse into one run.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}

	msg := taskMessage{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     t.Attempt,
		MaxAttempts: t.MaxAttempts,
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 10
	}
	msg.AvailableAt = time.Now().Add(t.Delay).UnixNano()

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, e.dedupKey(kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, e.queueKey(kind), redis.Z{
		Score:  float64(msg.AvailableAt),
		Member: raw,
	}).Err()
}

func (e Enqueuer) queueKey(kind string) string {
	if e.Prefix == "" {
		return "queue:" + kind
	}
	return e.Prefix + ":queue:" + kind
}

func (e Enqueuer) dedupKey(kind, key string) string {
	if e.Prefix == "" {
		return fmt.Sprintf("queue:dedup:%s:%s", kind, key)
	}
	return fmt.Sprintf("%s:dedup:%s:%s", e.Prefix, kind, key)
}

// sanitizeKind accepts lowercase alphanumerics plus -, _ and : so a kind can
// never smuggle key separators or glob characters into Redis keys.
func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return ""
		}
	}
	return kind
}

// queueLabel keeps metric cardinality bounded by reporting only the last
// segment of a namespaced kind.
func queueLabel(kind string) string {
	if idx := strings.LastIndexByte(kind, ':'); idx >= 0 {
		return kind[idx+1:]
	}
	return kind
}

// Worker pulls due tasks of one kind and runs them on a bounded goroutine
// pool. In-flight tasks sit in a processing set scored by their visibility
// deadline; a crashed worker's tasks become due there and get requeued.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	SoftDeadline      time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	Store             Store
	Logger            *zerolog.Logger
}

// Run consumes tasks until the context is cancelled, then waits for in-flight
// handlers to finish.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}

	queueKey := w.queueKey(kind)
	processingKey := w.processingKey(kind)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	reaper := time.NewTicker(time.Second)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-reaper.C:
			if err := w.requeueExpired(ctx, processingKey, queueKey); err != nil {
				return err
			}
		default:
		}

		res, err := w.R.ZPopMin(ctx, queueKey, 1).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if err == redis.Nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}
		if len(res) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		member, ok := res[0].Member.(string)
		if !ok {
			continue
		}
		msg, err := decodeMessage(member)
		if err != nil {
			continue
		}

		now := time.Now().UnixNano()
		if msg.AvailableAt > now {
			// Popped a task that is not due yet. Put it back and nap until
			// roughly its due time.
			w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: member})
			sleep := time.Duration(msg.AvailableAt - now)
			if sleep > time.Second {
				sleep = time.Second
			}
			time.Sleep(sleep)
			continue
		}

		msg.Attempt++
		rawBytes, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		raw := string(rawBytes)
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, processingKey, redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go w.process(ctx, &wg, sem, kind, queueKey, processingKey, raw, msg, retryBase)
	}
}

func (w Worker) process(ctx context.Context, wg *sync.WaitGroup, sem chan struct{}, kind, queueKey, processingKey, raw string, msg taskMessage, retryBase time.Duration) {
	defer func() { <-sem }()
	defer wg.Done()

	jobCtx := ctx
	var cancel context.CancelFunc
	if w.SoftDeadline > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	task := Task{
		Kind:           kind,
		Payload:        msg.Payload,
		IdempotencyKey: msg.Key,
		Attempt:        msg.Attempt,
		MaxAttempts:    msg.MaxAttempts,
	}
	if err := w.Handler(jobCtx, task); err != nil {
		// Bookkeeping must survive shutdown of the worker context.
		w.handleFailure(context.WithoutCancel(ctx), queueKey, processingKey, raw, msg, retryBase, err)
		return
	}
	w.ack(context.WithoutCancel(ctx), processingKey, raw, msg)
	QueueProcessedTotal.WithLabelValues(queueLabel(kind), "ok").Inc()
}

func (w Worker) handleFailure(ctx context.Context, queueKey, processingKey, raw string, msg taskMessage, base time.Duration, cause error) {
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}

	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		w.moveToDLQ(ctx, msg, cause)
		if msg.Key != "" {
			// Free the dedup slot so a later webhook for this order can
			// enqueue a fresh attempt.
			_ = w.R.Del(ctx, w.dedupKey(msg.Kind, msg.Key)).Err()
		}
		QueueProcessedTotal.WithLabelValues(queueLabel(msg.Kind), "dead").Inc()
		return
	}

	delay := resilience.Backoff(base, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	rawBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: string(rawBytes)}).Err()
	QueueProcessedTotal.WithLabelValues(queueLabel(msg.Kind), "retry").Inc()
	if w.Logger != nil {
		w.Logger.Warn().
			Str("kind", msg.Kind).
			Str("idem_key", msg.Key).
			Int("attempt", msg.Attempt).
			Dur("retry_in", delay).
			Err(cause).
			Msg("task failed, scheduled retry")
	}
}

func (w Worker) moveToDLQ(ctx context.Context, msg taskMessage, cause error) {
	rawBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if w.Store != nil {
		entry := DLQEntry{
			Kind:           msg.Kind,
			IdempotencyKey: msg.Key,
			Payload:        rawBytes,
			Attempts:       msg.Attempt,
		}
		if cause != nil {
			errText := cause.Error()
			entry.LastError = &errText
		}
		if _, err := w.Store.InsertQueueDlq(ctx, entry); err == nil {
			if w.Logger != nil {
				w.Logger.Error().
					Str("kind", msg.Kind).
					Str("idem_key", msg.Key).
					Int("attempts", msg.Attempt).
					Err(cause).
					Msg("task exhausted retries, moved to DLQ")
			}
			return
		}
	}
	// Postgres down or not wired. Park the task in a Redis list rather than
	// dropping it.
	_ = w.R.LPush(ctx, w.dlqKey(msg.Kind), rawBytes).Err()
}

func (w Worker) ack(ctx context.Context, processingKey, raw string, msg taskMessage) {
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}
	if msg.Key != "" {
		_ = w.R.Del(ctx, w.dedupKey(msg.Kind, msg.Key)).Err()
	}
}

// requeueExpired returns tasks whose visibility deadline passed to the ready
// queue. They become immediately due; the attempt counter already advanced
// when they were first picked up.
func (w Worker) requeueExpired(ctx context.Context, processingKey, queueKey string) error {
	now := float64(time.Now().UnixNano())
	due, err := w.R.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	for _, raw := range due {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, processingKey, raw).Err()
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

func (w Worker) queueKey(kind string) string {
	if w.Prefix == "" {
		return "queue:" + kind
	}
	return w.Prefix + ":queue:" + kind
}

func (w Worker) processingKey(kind string) string {
	if w.Prefix == "" {
		return "queue:" + kind + ":processing"
	}
	return w.Prefix + ":" + kind + ":processing"
}

func (w Worker) dlqKey(kind string) string {
	if w.Prefix == "" {
		return "queue:" + kind + ":dlq"
	}
	return w.Prefix + ":" + kind + ":dlq"
}

func (w Worker) dedupKey(kind, key string) string {
	if w.Prefix == "" {
		return fmt.Sprintf("queue:dedup:%s:%s", kind, key)
	}
	return fmt.Sprintf("%s:dedup:%s:%s", w.Prefix, kind, key)
}

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}
