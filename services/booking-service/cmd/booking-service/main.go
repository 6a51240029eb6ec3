package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/libs/config"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/libs/grpcx"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func mustInt(key string, fallback int) int {
	v, err := config.Int(key, fallback)
	if err != nil {
		panic(err)
	}
	return v
}

func mustDuration(key string, fallback time.Duration) time.Duration {
	v, err := config.Duration(key, fallback)
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
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

	mode, err := availability.ParseMode(config.String("CONFLICT_MODE", "overlap"))
	if err != nil {
		panic(err)
	}
	gateway, err := payments.New(payments.Config{
		Provider:        config.String("PAYMENT_PROVIDER", "mock"),
		StripeSecretKey: config.String("STRIPE_SECRET_KEY", ""),
		MockLatency:     mustDuration("MOCK_PAYMENT_LATENCY", 0),
	})
	if err != nil {
		panic(err)
	}
	cal, err := calendar.New(config.String("CALENDAR_PROVIDER", "none"))
	if err != nil {
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	readyChecks := append([]runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}, kafkax.ReadyChecks(brokers)...)

	limitPerMinute := mustInt("RATE_LIMIT_PER_MINUTE", 60)
	var (
		holdStore   holds.Store
		publicCache cache.Cache
		rateLimitMW httpx.Middleware
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		holdStore = holds.NewRedisStore(rdb)
		publicCache = cache.NewRedis(rdb)
		rateLimitMW = httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, "rl:booking").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info("redis enabled", "redis_addr", addr)
	} else {
		holdStore = holds.NewMemoryStore()
		publicCache = cache.NewNoop()
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute).Middleware()
		logger.Info("redis disabled; using in-process holds and rate limiting")
	}

	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)

	engine := booking.NewEngine(bookingRepo, gateway, holdStore, cal, logger, booking.Config{
		Mode:        mode,
		StepMinutes: mustInt("SLOT_STEP_MINUTES", availability.DefaultStepMinutes),
		Currency:    config.String("PAYMENT_CURRENCY", "usd"),
		HoldTTL:     mustDuration("HOLD_TTL", 5*time.Minute),
		PendingTTL:  mustDuration("PENDING_PAYMENT_TTL", 30*time.Minute),
	})
	logger.Info("booking engine configured", "conflict_mode", string(mode), "payment_provider", config.String("PAYMENT_PROVIDER", "mock"))

	sweeper := booking.NewSweeper(engine, logger, mustDuration("SWEEP_INTERVAL", time.Minute), 100)
	go sweeper.Run(ctx)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	grpcServer := grpcx.NewServer(logger)
	health := grpcx.NewHealthReporter(logger, service, readyChecks...)
	health.Register(grpcServer)
	go health.Run(ctx, 10*time.Second)
	go func() {
		if err := grpcx.Serve(ctx, grpcServer, ":"+grpcPort, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	h := handlers.NewHandler(engine, bookingRepo, publicCache, logger, handlers.Config{
		JWTSecret:              config.String("JWT_SECRET", ""),
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: mustDuration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
		PublicCacheTTL:         mustDuration("PUBLIC_CACHE_TTL", time.Minute),
		PublicWriteLimit:       rateLimitMW,
	})
	if config.String("JWT_SECRET", "") == "" {
		logger.Warn("JWT_SECRET not set; provider routes trust the " + auth.ProviderIDHeader + " header")
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", h.Routes())

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultBookingCORS(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
