package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HeaderHMAC is the header Shopify signs webhook deliveries with.
const HeaderHMAC = "X-Shopify-Hmac-Sha256"

// HeaderWebhookID carries the unique delivery identifier used for dedup.
const HeaderWebhookID = "X-Shopify-Webhook-Id"

// HeaderTopic names the event topic, e.g. "orders/paid".
const HeaderTopic = "X-Shopify-Topic"

// VerifyWebhook checks the base64 HMAC-SHA256 signature Shopify computes over
// the raw request body with the app's shared secret.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeWebhookSignature produces the signature Shopify would attach to the
// body. Used by tests and local replay tooling.
func ComputeWebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
