package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/yhd-salon/salonbook/libs/auth"
	"github.com/yhd-salon/salonbook/libs/config"
	"github.com/yhd-salon/salonbook/libs/db"
	"github.com/yhd-salon/salonbook/libs/grpcx"
	"github.com/yhd-salon/salonbook/libs/httpx"
	"github.com/yhd-salon/salonbook/libs/kafkax"
	otelx "github.com/yhd-salon/salonbook/libs/otel"
	"github.com/yhd-salon/salonbook/libs/redisx"
	"github.com/yhd-salon/salonbook/libs/runtime"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/consumer"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/feed"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/handlers"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/outbox"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

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

	ctx, stop := runtime.SignalContext(logger)
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
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb, err := redisx.Open(ctx, redisx.Options{
		Addr:     config.String("REDIS_ADDR", ""),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	settingsRepo := storage.NewSettingsRepository(pool)
	menuRepo := storage.NewMenuRepository(pool)
	reservationRepo := storage.NewReservationRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	hub := feed.NewHub(reservationRepo, logger, feed.Config{
		PollEvery: time.Duration(config.Int("FEED_POLL_SECONDS", 15)) * time.Second,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if brokers != "" {
		startFeedConsumer(ctx, logger, brokers, hub)
	} else {
		logger.Warn("reservation event consumer disabled (no kafka brokers configured); feed relies on local notify and polling")
	}

	go func() {
		if err := serveGrpcHealth(ctx, logger, service, grpcPort, pool, brokers); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	slotsHandler := handlers.NewSlotsHandler(settingsRepo, menuRepo, reservationRepo, hub, logger)
	wizardHandler := handlers.NewWizardHandler(settingsRepo, menuRepo, reservationRepo)
	bookingHandler := handlers.NewBookingHandler(settingsRepo, menuRepo, reservationRepo, outboxRepo, hub, logger)
	adminHandler := handlers.NewAdminHandler(settingsRepo, menuRepo, reservationRepo, outboxRepo, hub, logger)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	mux := runtime.NewOpsMux(2*time.Second, checks...)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}
	requestTimeout := httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second)

	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, time.Duration(config.Int("JWKS_CACHE_SECONDS", 300))*time.Second)
	}
	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", ""), JWKS: jwksClient}
	if verifier.Secret == "" && jwksClient == nil {
		logger.Warn("admin routes will reject every request (neither JWT_SECRET nor JWKS_URL set)")
	}
	requireStaff := httpx.Middleware(auth.RequireRole(verifier, "owner", "admin"))

	route := func(pattern string, h http.HandlerFunc, mw ...httpx.Middleware) {
		mux.Handle(pattern, httpx.Chain(h, mw...))
	}
	route("/api/v1/public/menus", slotsHandler.Menus, rateLimitMW, requestTimeout)
	route("/api/v1/public/slots", slotsHandler.Slots, rateLimitMW, requestTimeout)
	// No timeout even for clients that omit Accept: text/event-stream.
	route("/api/v1/public/slots/stream", slotsHandler.Stream, rateLimitMW)
	route("/api/v1/public/wizard", wizardHandler.Advance, rateLimitMW, requestTimeout)
	route("/api/v1/public/book", bookingHandler.Create, rateLimitMW, requestTimeout)
	route("/api/v1/public/reservations", bookingHandler.History, rateLimitMW, requestTimeout)
	route("/api/v1/admin/settings", adminHandler.Settings, requireStaff, requestTimeout)
	route("/api/v1/admin/reservations", adminHandler.Reservations, requireStaff, requestTimeout)
	route("/api/v1/admin/blocks", adminHandler.Block, requireStaff, requestTimeout)
	route("/api/v1/admin/reservations/cancel", adminHandler.Cancel, requireStaff, requestTimeout)
	route("/api/v1/admin/reservations/complete", adminHandler.Complete, requireStaff, requestTimeout)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			ExposedHeaders: []string{httpx.RequestIDHeader, "Retry-After"},
			MaxAge:         time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// startFeedConsumer nudges the feed hub for every reservation or settings event, including
// those written by other replicas. Each replica uses its own group so all of them see every event.
func startFeedConsumer(ctx context.Context, logger *slog.Logger, brokers string, hub *feed.Hub) {
	host, _ := os.Hostname()
	topics := append([]string{outbox.SettingsUpdated}, outbox.ReservationTopics...)
	c := consumer.New(logger, consumer.Config{
		Brokers:       brokers,
		GroupID:       config.String("KAFKA_GROUP_ID", "booking-service-feed-"+host),
		Topics:        topics,
		StartAtLatest: true,
	}, consumer.FeedHandler(logger, hub.Notify))
	go c.Run(ctx)
}

func serveGrpcHealth(ctx context.Context, logger *slog.Logger, service, port string, pool *db.Pool, brokers string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	checks := []grpcx.Check{db.ReadyCheck(pool)}
	if brokers != "" {
		checks = append(checks, kafkax.ReadyCheck(brokers))
	}
	return grpcx.NewHealthServer(logger, service, checks...).Serve(ctx, lis, 10*time.Second)
}
