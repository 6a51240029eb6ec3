package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/libs/config"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type upstreams struct {
	booking      *url.URL
	notification *url.URL
	analytics    *url.URL
}

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	up := upstreams{
		booking:      mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		notification: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
		analytics:    mustParseURL(config.String("ANALYTICS_URL", "http://analytics-service:8086")),
	}

	mux := runtime.NewBaseMuxWithReady()
	mux.Handle("/api/", newRouter(up, jwtSecret, otelhttp.NewTransport(http.DefaultTransport)))

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil || bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT_SECONDS", 10*time.Second)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil || limitPerMinute <= 0 {
		limitPerMinute = 120
	}

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil || redisDB < 0 {
			redisDB = 0
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:gw"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	cors := httpx.DefaultBookingCORS(config.List("CORS_ALLOWED_ORIGINS"))
	cors.AllowCredentials = config.Bool("CORS_ALLOW_CREDENTIALS", false)

	handler := httpx.Chain(mux,
		httpx.WithCORS(cors),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}

// newRouter proxies the public API to the owning service. Every request passes through
// identify, so upstreams can trust X-Provider-Id.
func newRouter(up upstreams, jwtSecret string, transport http.RoundTripper) http.Handler {
	proxy := func(target *url.URL) http.Handler {
		p := httputil.NewSingleHostReverseProxy(target)
		p.Transport = transport
		return p
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/appointments/{id}/notifications", proxy(up.notification))
	mux.Handle("/api/v1/analytics/", proxy(up.analytics))
	mux.Handle("/api/v1/", proxy(up.booking))
	return identify(mux, jwtSecret)
}

// identify replaces any client-sent X-Provider-Id with the subject of a valid bearer token.
// Requests without a token pass through anonymously; a token that does not verify is rejected.
func identify(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(auth.ProviderIDHeader)

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid Authorization header", nil)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), jwtSecret)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
			return
		}
		r.Header.Set(auth.ProviderIDHeader, claims.Sub)
		next.ServeHTTP(w, r)
	})
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
