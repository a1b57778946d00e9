package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/cache"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/config"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/db"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/gesfaturacao"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/lock"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/queue"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/resilience"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/shopify"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/store"
	ordersync "github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "gessync")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := db.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	shopifyBreaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("shopify").WithLogger(logger)
	gesBreaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("gesfaturacao").WithLogger(logger)

	gesClient := gesfaturacao.NewClient(cfg.GESBaseURL, cfg.GESUsername, cfg.GESPassword, gesBreaker, logger)
	gesClient.Cache = &cache.JSON{R: redisClient, Prefix: "ges", TTL: 15 * time.Minute}

	syncService := &ordersync.Service{
		Shopify:        shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, cfg.ShopifyAPIVersion, shopifyBreaker, logger),
		Invoices:       gesClient,
		Ledger:         store.NewStore(pool),
		Locker:         lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockPrefix:     cfg.QueueRedisPrefix,
		LockTTL:        cfg.LockTTL,
		SerieID:        cfg.GESSerieID,
		ShippingRef:    cfg.GESShippingProductRef,
		DefaultCountry: cfg.DefaultCountry,
		Logger:         logger,
	}

	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              ordersync.TaskKindOrderSync,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		SoftDeadline:      cfg.LockTTL,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       cfg.RetryJitterPercent,
		Store:             queue.NewStore(pool),
		Logger:            &logger,
		Handler:           syncService.HandleTask,
	}

	logger.Info().
		Str("kind", ordersync.TaskKindOrderSync).
		Int("concurrency", cfg.QueueConcurrency).
		Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
