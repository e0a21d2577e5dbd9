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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/express-checkout/internal/catalog"
	"github.com/noah-isme/express-checkout/internal/common"
	"github.com/noah-isme/express-checkout/internal/config"
	"github.com/noah-isme/express-checkout/internal/db"
	"github.com/noah-isme/express-checkout/internal/events"
	"github.com/noah-isme/express-checkout/internal/health"
	"github.com/noah-isme/express-checkout/internal/jobs"
	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/obs"
	"github.com/noah-isme/express-checkout/internal/paylater"
	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/pricing"
	"github.com/noah-isme/express-checkout/internal/ratelimit"
	"github.com/noah-isme/express-checkout/internal/receipt"
	"github.com/noah-isme/express-checkout/internal/resilience"
	"github.com/noah-isme/express-checkout/internal/security"
	"github.com/noah-isme/express-checkout/internal/shipping"
	"github.com/noah-isme/express-checkout/internal/storefront"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "checkout")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegister(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "express-checkout-api",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:    cfg.AppEnv,
			Merchant:       cfg.MerchantID,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	redisClient := mustInitRedis(startCtx, cfg, metricsEnabled, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var (
		pool    *pgxpool.Pool
		archive *receipt.Archive
	)
	if cfg.ArchiveEnabled() {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate receipt archive")
		}
		pool = mustInitDatabase(startCtx, cfg, logger)
		defer pool.Close()
		archive = receipt.NewArchive(pool)
	}

	taskClient := asynq.NewClientFromRedisClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	formatter := money.NewFormatter(cfg.CurrencyCode, cfg.Locale)
	merchant := payment.DefaultMerchant()
	merchant.ID = cfg.MerchantID
	merchant.DisplayName = cfg.MerchantName
	merchant.CountryCode = cfg.CountryCode
	merchant.CurrencyCode = cfg.CurrencyCode

	capability := payment.StaticCapability{Device: cfg.PaymentDeviceCapable}
	payLater, err := paylater.NewService(paylater.Config{
		Window:     paylater.Window{Min: cfg.PayLaterMin, Max: cfg.PayLaterMax},
		Capability: capability,
		Formatter:  formatter,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise pay later")
	}

	breaker := resilience.NewBreaker(resilience.Settings{
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Target:       "payment",
		Logger:       &logger,
	})
	orchestrator := payment.NewOrchestrator(merchant, payment.Guarded{
		Next: payment.Simulator{
			Delay:       cfg.PaymentSimDelay,
			Approve:     cfg.PaymentSimApprove,
			Presentable: cfg.PaymentSimPresentable,
		},
		Breaker: breaker,
	})
	orchestrator.PayLater = payLater
	orchestrator.Logger = logger.With().Str("component", "payment").Logger()

	receiptStore := receipt.NewRedisStore(redisClient, cfg.ReceiptTTL)
	bus := &events.Bus{
		Journal: events.RedisJournal{Client: redisClient, Stream: events.DefaultStream, MaxLen: 10000},
		Notifiers: []events.Notifier{
			events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()},
			events.NewCountingNotifier(obs.EventsEmittedTotal),
			jobs.ExportNotifier{
				Client:   taskClient,
				Queue:    cfg.ReceiptQueue,
				MaxRetry: cfg.ReceiptExportMaxRetry,
				Logger:   logger,
			},
		},
	}
	publisher := storefront.ReceiptPublisher{Store: receiptStore, Events: bus, Logger: logger}
	if archive != nil {
		publisher.Archive = archive
	}

	sessions := storefront.NewSessions(storefront.SessionConfig{
		Tax:      pricing.NewRateCalculator(cfg.TaxRate),
		Payments: orchestrator,
		Shipping: shipping.Demo(),
		Receipts: publisher,
		Events:   bus,
		Codes:    receipt.NewCodeGenerator(cfg.ConfirmationPrefix, nil),
		Logger:   logger,
	}, cfg.SessionMax, cfg.SessionIdleTTL)
	defer sessions.Close()
	go sessions.RunJanitor(ctx, cfg.SessionSweepInt)

	shop := &storefront.Handler{
		Sessions:   sessions,
		Catalog:    catalog.Demo(),
		PayLater:   payLater,
		Capability: capability,
		Networks:   merchant.Networks,
		Preview:    orchestrator,
		Receipts:   receiptStore,
		Formatter:  formatter,
		Validate:   validator.New(validator.WithRequiredStructEnabled()),
		Logger:     logger,
	}
	if archive != nil {
		shop.Archive = archive
	}

	limiterStore, err := ratelimit.NewRedisStore(redisClient, "")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	checkoutLimiter, err := ratelimit.New(limiterStore, cfg.CheckoutRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limit")
	}
	limit := ratelimit.Handler{
		Limiter: checkoutLimiter,
		Key:     common.SessionClientKey,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: 10 * time.Minute}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: envBool("SECURITY_ENABLE_HSTS", false)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURITY_MAX_BODY_BYTES", 0))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", obs.SessionHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{obs.SessionHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	var checker health.Checker = redisChecker{redis: redisClient}
	if pool != nil {
		checker = archiveChecker{redisChecker: redisChecker{redis: redisClient}, db: pool}
	}
	healthHandler := health.Handler{
		Checker:      checker,
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Mount("/api/v1", shop.Router(limit.Middleware, idem.Middleware))

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health.SetReady(true)
	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Bool("archive", archive != nil).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, metrics bool, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Component: "receipt_archive"}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "express-checkout-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type redisChecker struct {
	redis *redis.Client
}

func (c redisChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

type archiveChecker struct {
	redisChecker
	db *pgxpool.Pool
}

func (c archiveChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
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
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
