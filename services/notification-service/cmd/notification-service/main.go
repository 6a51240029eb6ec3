package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/config"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/libs/inbox"
	"github.com/md-rashed-zaman/bookly/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/handlers"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	smsSender, err := sms.New(
		config.String("SMS_PROVIDER", "noop"),
		config.String("SMS_WEBHOOK_URL", ""),
		config.String("SMS_WEBHOOK_TOKEN", ""),
	)
	if err != nil {
		panic(err)
	}
	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@bookly.local"),
	)

	notificationsRepo := storage.NewRepository(pool)
	notifier := notify.New(emailSender, smsSender, notificationsRepo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	maxAttempts, err := config.Int("NOTIFICATION_MAX_ATTEMPTS", 3)
	if err != nil {
		panic(err)
	}
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	} else {
		eventConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
			Brokers:     brokers,
			GroupID:     config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics:      notify.Topics,
			MaxAttempts: maxAttempts,
		}, notifier.Handle)
		go eventConsumer.Run(ctx)
	}

	readyChecks := append([]runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}, kafkax.ReadyChecks(brokers)...)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", handlers.NewHandler(notificationsRepo, logger, config.String("JWT_SECRET", "")).Routes())

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
