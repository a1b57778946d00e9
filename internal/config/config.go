package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	RedisURL    string

	ShopifyShopDomain    string
	ShopifyAccessToken   string
	ShopifyWebhookSecret string
	ShopifyAPIVersion    string

	GESBaseURL            string
	GESUsername           string
	GESPassword           string
	GESSerieID            int64
	GESShippingProductRef string

	DefaultCountry string

	AdminJWTSecret   string
	AdminJWTIssuer   string
	AdminJWTAudience string

	CORSAllowedOrigins []string
	WebhookRateLimit   string
	WebhookDedupTTL    time.Duration

	OutboundTimeout    time.Duration
	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64

	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	QueueRedisPrefix       string
	QueueConcurrency       int
	QueueMaxAttempts       int
	QueueVisibilityTimeout time.Duration
	QueueBackoffBase       time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		ShopifyShopDomain:    strings.TrimSpace(k.String("SHOPIFY_SHOP_DOMAIN")),
		ShopifyAccessToken:   k.String("SHOPIFY_ACCESS_TOKEN"),
		ShopifyWebhookSecret: k.String("SHOPIFY_WEBHOOK_SECRET"),
		ShopifyAPIVersion:    valueOrDefault(k.String("SHOPIFY_API_VERSION"), "2024-10"),

		GESBaseURL:            strings.TrimRight(strings.TrimSpace(k.String("GES_BASE_URL")), "/"),
		GESUsername:           k.String("GES_USERNAME"),
		GESPassword:           k.String("GES_PASSWORD"),
		GESSerieID:            int64(parseInt(k.String("GES_SERIE_ID"), 1)),
		GESShippingProductRef: strings.TrimSpace(k.String("GES_SHIPPING_PRODUCT_REF")),

		DefaultCountry: valueOrDefault(strings.ToUpper(strings.TrimSpace(k.String("DEFAULT_COUNTRY"))), "PT"),

		AdminJWTSecret:   k.String("ADMIN_JWT_SECRET"),
		AdminJWTIssuer:   valueOrDefault(k.String("ADMIN_JWT_ISSUER"), "gesfaturacao-sync"),
		AdminJWTAudience: k.String("ADMIN_JWT_AUDIENCE"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		WebhookRateLimit:   valueOrDefault(k.String("WEBHOOK_RATE_LIMIT"), "120-M"),
		WebhookDedupTTL:    parseDuration(k.String("WEBHOOK_DEDUP_TTL"), "24h"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "15s"),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),

		CircuitMinRequests: parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		QueueRedisPrefix:       valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "gessync"),
		QueueConcurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueMaxAttempts:       parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 8),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "2m"),
		QueueBackoffBase:       parseDuration(k.String("QUEUE_BACKOFF_BASE"), "5s"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "60s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "100ms"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ShopifyShopDomain == "" {
		return nil, errors.New("SHOPIFY_SHOP_DOMAIN is required")
	}
	if cfg.ShopifyAccessToken == "" {
		return nil, errors.New("SHOPIFY_ACCESS_TOKEN is required")
	}
	if cfg.ShopifyWebhookSecret == "" {
		return nil, errors.New("SHOPIFY_WEBHOOK_SECRET is required")
	}
	if cfg.GESBaseURL == "" {
		return nil, errors.New("GES_BASE_URL is required")
	}
	if cfg.GESUsername == "" || cfg.GESPassword == "" {
		return nil, errors.New("GES_USERNAME and GES_PASSWORD are required")
	}
	if cfg.AdminJWTSecret == "" {
		return nil, errors.New("ADMIN_JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
