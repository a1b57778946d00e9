package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// JSON is a small Redis-backed cache for JSON-serialisable values. A nil
// receiver or missing client disables caching, so callers can wire it
// optionally.
type JSON struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

// Get loads the value stored under key into out. The boolean reports whether
// the key was present. Decode failures are treated as a miss so a stale or
// incompatible entry never breaks the caller.
func (c *JSON) Get(ctx context.Context, key string, out any) (bool, error) {
	if c == nil || c.R == nil {
		return false, nil
	}
	raw, err := c.R.Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, nil
	}
	return true, nil
}

// Set stores the value under key for the configured TTL.
func (c *JSON) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.R == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, c.fullKey(key), raw, c.ttl()).Err()
}

func (c *JSON) fullKey(key string) string {
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + ":" + key
}

func (c *JSON) ttl() time.Duration {
	if c.TTL <= 0 {
		return 15 * time.Minute
	}
	return c.TTL
}
