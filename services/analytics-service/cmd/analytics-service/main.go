package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/config"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"github.com/md-rashed-zaman/bookly/services/analytics-service/internal/handlers"
	"github.com/md-rashed-zaman/bookly/services/analytics-service/internal/metrics"
	"github.com/md-rashed-zaman/bookly/services/analytics-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
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

	repo := storage.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	} else {
		// Deduplication happens inside the metrics transaction, so no inbox.
		projector := metrics.NewProjector(repo, logger)
		eventConsumer := kafkax.NewConsumer(logger, nil, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
			Topics:  metrics.Topics,
		}, projector.Handle)
		go eventConsumer.Run(ctx)
	}

	readyChecks := append([]runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}, kafkax.ReadyChecks(brokers)...)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", handlers.NewHandler(repo, logger, config.String("JWT_SECRET", "")).Routes())

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
