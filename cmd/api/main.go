package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/audit"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/auth"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/cache"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/common"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/config"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/db"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/gesfaturacao"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/health"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/lock"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/obs"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/queue"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/ratelimit"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/resilience"
	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/security"
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
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "gessync")
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_HTTP_BUCKETS_MS", "")), nil)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if envBool("OBS_TRACING_ENABLED", false) {
		shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   envOrDefault("OBS_SERVICE_NAME", "gesfaturacao-sync-api"),
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACE_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACE_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

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

	ledger := store.NewStore(pool)
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}
	enqueuer := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.QueueRedisPrefix,
		DedupTTL:    cfg.WebhookDedupTTL,
		MaxAttempts: cfg.QueueMaxAttempts,
	}

	shopifyBreaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("shopify").WithLogger(logger)
	gesBreaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("gesfaturacao").WithLogger(logger)

	shopClient := shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, cfg.ShopifyAPIVersion, shopifyBreaker, logger)
	gesClient := gesfaturacao.NewClient(cfg.GESBaseURL, cfg.GESUsername, cfg.GESPassword, gesBreaker, logger)
	gesClient.Cache = &cache.JSON{R: redisClient, Prefix: "ges", TTL: envDuration("GES_PRODUCT_CACHE_TTL", 15*time.Minute)}

	syncService := &ordersync.Service{
		Shopify:        shopClient,
		Invoices:       gesClient,
		Ledger:         ledger,
		Locker:         locker,
		LockPrefix:     cfg.QueueRedisPrefix,
		LockTTL:        cfg.LockTTL,
		SerieID:        cfg.GESSerieID,
		ShippingRef:    cfg.GESShippingProductRef,
		DefaultCountry: cfg.DefaultCountry,
		Logger:         logger,
	}
	syncHandler := &ordersync.Handler{
		Service:       syncService,
		Queue:         enqueuer,
		Orders:        shopClient,
		WebhookSecret: cfg.ShopifyWebhookSecret,
		MaxAttempts:   cfg.QueueMaxAttempts,
		Logger:        logger,
	}
	queueAdmin := &queue.AdminHandler{
		Store:             queue.NewStore(pool),
		Queue:             enqueuer,
		Logger:            logger,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}

	authService := auth.NewService([]byte(cfg.AdminJWTSecret), cfg.AdminJWTIssuer, cfg.AdminJWTAudience, envDuration("ADMIN_JWT_TTL", time.Hour))
	authMiddleware := auth.Middleware{Service: authService}

	webhookLimiter, err := newWebhookLimiter(redisClient, cfg.WebhookRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure webhook rate limit")
	}
	adminLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:admin:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: time.Minute,
			Max:    envInt("ADMIN_RATE_LIMIT_PER_MIN", 120),
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("admin rate limit check failed")
		},
	}
	dedup := common.Dedup{R: redisClient, TTL: cfg.WebhookDedupTTL, Header: shopify.HeaderWebhookID}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDuration("HEALTH_READY_DB_TIMEOUT", 500*time.Millisecond),
		RedisTimeout: envDuration("HEALTH_READY_REDIS_TIMEOUT", 300*time.Millisecond),
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(obs.RoutePatternMiddleware)
	router.Use(obs.TracingMiddleware)
	router.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	router.Use(obs.RequestLogger{Logger: logger}.Middleware)
	router.Use(security.Headers{
		Enable:     envBool("SECURITY_HEADERS_ENABLED", true),
		EnableHSTS: envBool("SECURITY_HSTS_ENABLED", cfg.AppEnv == "production"),
	}.Middleware)
	router.Use(security.BodyLimit{Max: int64(envInt("MAX_BODY_BYTES", 1<<20))}.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health/live", healthHandler.Live)
	router.Get("/health/ready", healthHandler.Ready)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Mount("/debug/pprof", protectPprof(newPprofMux()))

	router.Route("/v1", func(r chi.Router) {
		r.Route("/webhooks/shopify", func(r chi.Router) {
			r.Use(webhookLimiter.Handler)
			r.Use(dedup.Middleware)
			r.Post("/orders", syncHandler.OrdersWebhook)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Use(adminLimiter.Middleware)
			r.Use(audit.Middleware{Logger: logger}.Audit)
			r.Post("/orders/{orderID}/sync", syncHandler.AdminSyncOrder)
			r.Post("/orders/backfill", syncHandler.AdminBackfill)
			r.Get("/orders", syncHandler.AdminListOrders)
			r.Get("/queue/dlq", queueAdmin.ListDLQ)
			r.Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			r.Get("/queue/stats", queueAdmin.Stats)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		logger.Info().Msg("shutdown complete")
	}
}

func newWebhookLimiter(rdb *redis.Client, formatted string) (*limiterstdlib.Middleware, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit:webhook"})
	if err != nil {
		return nil, err
	}
	return limiterstdlib.NewMiddleware(limiter.New(limiterStore, rate)), nil
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(pingCtx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(pingCtx).Err()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	if cfg.AppEnv == "production" {
		return []string{}
	}
	return []string{"http://localhost:3000"}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

// protectPprof hides the profiler unless basic auth credentials are configured
// and presented.
func protectPprof(next http.Handler) http.Handler {
	user := envOrDefault("PPROF_USER", "")
	pass := envOrDefault("PPROF_PASSWORD", "")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user == "" || pass == "" {
			http.NotFound(w, r)
			return
		}
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
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

func envBool(key string, fallback bool) bool {
	raw := envOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	raw := envOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	raw := envOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := envOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
