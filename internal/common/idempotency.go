package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Dedup suppresses duplicate webhook deliveries using a Redis SetNX window.
// The platform redelivers webhooks aggressively; replays inside the window are
// acknowledged with 200 so the sender stops retrying, but never re-enqueued.
type Dedup struct {
	R      *redis.Client
	TTL    time.Duration
	Header string
}

func dedupKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "webhook:seen:" + hex.EncodeToString(sum[:])
}

// Middleware short-circuits requests whose delivery id was already seen.
func (d Dedup) Middleware(next http.Handler) http.Handler {
	header := d.Header
	if header == "" {
		header = "X-Shopify-Webhook-Id"
	}
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(header)
		if id == "" || d.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := d.R.SetNX(r.Context(), dedupKey(id), "seen", ttl).Result()
		if err != nil {
			// Redis being down must not drop deliveries; fall through.
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		defer func() {
			_ = d.R.Expire(context.Background(), dedupKey(id), ttl).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
