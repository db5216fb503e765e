package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/store/postgres"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

var version = "dev"

const webhookDedupeTTL = 72 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Env)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer provider", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, version)
	if err != nil {
		logger.Fatal("failed to init meter provider", zap.Error(err))
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.Meter("storefront"))
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	st := postgres.New(db)

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	provider, err := newPaymentProvider(cfg)
	if err != nil {
		logger.Fatal("failed to create payment provider", zap.Error(err))
	}

	paymentOpts := []payment.Option{
		payment.WithPublisher(publisher),
		payment.WithMetrics(metrics),
	}
	if cfg.RedisURL != "" {
		deduper, err := payment.NewRedisDeduper(ctx, cfg.RedisURL, webhookDedupeTTL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = deduper.Close() }()
		paymentOpts = append(paymentOpts, payment.WithDeduper(deduper))
	}

	cartService := cart.NewService(st, logger)
	orderService := orders.NewService(st, publisher, metrics, logger)
	paymentService := payment.NewService(st, provider, payment.Config{
		Currency:   cfg.Currency,
		SuccessURL: cfg.FrontendURL + "/orders/{order_id}?payment=success",
		CancelURL:  cfg.FrontendURL + "/orders/{order_id}?payment=cancelled",
	}, logger, paymentOpts...)

	authn := auth.Middleware([]byte(cfg.JWTSecret), logger)
	admin := auth.RequireAdmin(logger)

	mux := http.NewServeMux()
	catalog.NewHandler(st, logger).Register(mux, authn, admin)
	cart.NewHandler(cartService, logger).Register(mux, authn)
	orders.NewHandler(orderService, logger).Register(mux, authn, admin)
	payment.NewHandler(paymentService, logger).Register(mux, authn)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	handler := otelhttp.NewHandler(
		logging.Middleware(logger)(telemetry.WithHTTPRoute(mux)),
		"storefront",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/metrics" }),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront api",
			zap.String("port", cfg.Port), zap.String("payment_provider", provider.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newPaymentProvider(cfg *config.Config) (payment.Provider, error) {
	returnURL := cfg.PublicBaseURL + "/payments/return"
	cancelURL := cfg.PublicBaseURL + "/payments/cancel"

	if cfg.PaymentProvider == config.ProviderStripe {
		return payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookKey,
			ReturnURL:     returnURL,
			CancelURL:     cancelURL,
		}), nil
	}
	provider, err := payment.NewPayPalProvider(payment.PayPalConfig{
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		APIBase:      cfg.PayPalAPIBase,
		WebhookID:    cfg.PayPalWebhookID,
		ReturnURL:    returnURL,
		CancelURL:    cancelURL,
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
