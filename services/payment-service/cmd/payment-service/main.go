package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arenatime/arenatime/libs/config"
	"github.com/arenatime/arenatime/libs/db"
	"github.com/arenatime/arenatime/libs/httpx"
	"github.com/arenatime/arenatime/libs/kafkax"
	otelx "github.com/arenatime/arenatime/libs/otel"
	"github.com/arenatime/arenatime/libs/runtime"
	"github.com/arenatime/arenatime/services/payment-service/internal/entitlements"
	"github.com/arenatime/arenatime/services/payment-service/internal/handlers"
	"github.com/arenatime/arenatime/services/payment-service/internal/mercadopago"
	"github.com/arenatime/arenatime/services/payment-service/internal/outbox"
	"github.com/arenatime/arenatime/services/payment-service/internal/reconcile"
	"github.com/arenatime/arenatime/services/payment-service/internal/seal"
	"github.com/arenatime/arenatime/services/payment-service/internal/storage"
	"github.com/arenatime/arenatime/services/payment-service/internal/sweeper"
)

func main() {
	service := config.String("SERVICE_NAME", "payment-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	credentialsKey, err := config.RequiredString("CREDENTIALS_KEY")
	if err != nil {
		panic(err)
	}
	sealer, err := seal.NewSealer(credentialsKey)
	if err != nil {
		logger.Error("invalid credentials key", "err", err)
		panic(err)
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	mpTimeout := 10 * time.Second
	if v, err := strconv.Atoi(config.String("MP_TIMEOUT_SECONDS", "10")); err == nil && v > 0 {
		mpTimeout = time.Duration(v) * time.Second
	}
	mpClient := mercadopago.NewClient(config.String("MP_BASE_URL", ""), mpTimeout)

	reconciler := reconcile.New(repo, outboxRepo, mpClient, sealer, logger)

	fallback := entitlements.Entitlements{
		Tier:           config.String("ENTITLEMENTS_FALLBACK_TIER", "pro"),
		OnlinePayments: isTruthy(config.String("ENTITLEMENTS_FALLBACK_ONLINE_PAYMENTS", "true")),
	}
	entProvider, err := entitlements.NewSubscriptionProvider(logger, fallback, config.String("SUBSCRIPTION_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("entitlements provider setup failed", "err", err)
		entProvider = entitlements.NewStaticProvider(fallback)
	}

	h := handlers.New(repo, outboxRepo, reconciler, mpClient, sealer, entProvider, logger, handlers.Config{
		PublicBaseURL:     config.String("PUBLIC_BASE_URL", ""),
		DefaultSuccessURL: config.String("CHECKOUT_SUCCESS_URL", ""),
		DefaultFailureURL: config.String("CHECKOUT_FAILURE_URL", ""),
		DefaultPendingURL: config.String("CHECKOUT_PENDING_URL", ""),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	// Webhook and result endpoints are exposed to the internet; everything
	// else sits behind the authenticating proxy.
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("/api/v1/payments/webhooks/mercadopago", h.MercadoPagoWebhook)
	publicMux.HandleFunc("/api/v1/payments/result", h.PaymentResult)
	mux.Handle("/api/v1/payments/webhooks/mercadopago", publicRateLimit(logger)(publicMux))
	mux.Handle("/api/v1/payments/result", publicRateLimit(logger)(publicMux))

	mux.HandleFunc("/api/v1/payments/preferences", h.CreatePreference)
	mux.HandleFunc("/api/v1/payments", h.ListPayments)
	mux.HandleFunc("/api/v1/payments/credentials", h.Credentials)
	mux.HandleFunc("/api/v1/appointments", h.ListAppointments)
	mux.HandleFunc("/api/v1/appointments/create", h.CreateAppointment)
	mux.HandleFunc("/api/v1/appointments/cancel", h.CancelAppointment)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "payment")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	// Appointment lifecycle sweeps: expire stale tentative bookings, age
	// confirmed-but-unpaid ones past their start time.
	if isTruthy(config.String("PAYMENTS_SWEEP_ENABLED", "true")) {
		intervalSeconds, _ := strconv.Atoi(config.String("PAYMENTS_SWEEP_INTERVAL_SECONDS", "300"))
		if intervalSeconds <= 0 {
			intervalSeconds = 300
		}
		ttlHours, _ := strconv.Atoi(config.String("PAYMENTS_TENTATIVE_TTL_HOURS", "24"))
		batchSize, _ := strconv.Atoi(config.String("PAYMENTS_SWEEP_BATCH_SIZE", "100"))
		lockKey, _ := strconv.ParseInt(config.String("PAYMENTS_SWEEP_LOCK_KEY", "7371002"), 10, 64)
		sw := sweeper.New(pool, repo, outboxRepo, logger, sweeper.Config{
			TentativeTTL:    time.Duration(ttlHours) * time.Hour,
			BatchSize:       batchSize,
			AdvisoryLockKey: lockKey,
		})
		go sw.Run(ctx, time.Duration(intervalSeconds)*time.Second)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// publicRateLimit builds the limiter applied to internet-facing endpoints.
// Redis-backed when REDIS_ADDR is set so limits hold across instances,
// in-memory otherwise.
func publicRateLimit(logger *slog.Logger) httpx.Middleware {
	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "payrl"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
		return rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
	}
	rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
	logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	return rl.Middleware()
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
