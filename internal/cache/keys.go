package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ProductRefKey returns the cache key for a product resolved by reference.
func ProductRefKey(reference string) string {
	return "product:ref:" + strings.ToLower(strings.TrimSpace(reference))
}

// ProductNameKey returns the cache key for a product resolved by name. Names
// are free-form text, so the key carries a hash rather than the raw value.
func ProductNameKey(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return "product:name:" + hex.EncodeToString(sum[:16])
}
