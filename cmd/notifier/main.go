package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/logging"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/notify"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

var version = "dev"

const consumerGroup = "storefront-notifier"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.ServiceName+"-notifier", cfg.Env)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS environment variable is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName+"-notifier", version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer provider", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTP.Host != "" {
		smtp, err := notify.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			logger.Fatal("failed to create smtp mailer", zap.Error(err))
		}
		mailer = smtp
	} else {
		logger.Warn("SMTP_HOST not set, emails are only logged")
	}

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.OrderEventsTopic, consumerGroup,
		messaging.WithLogger(logger),
		messaging.WithRetries(5, time.Second),
	)
	defer func() { _ = consumer.Close() }()

	handler := notify.NewHandler(mailer, cfg.FrontendURL, logger)

	logger.Info("starting notifier",
		zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.OrderEventsTopic))

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", zap.Error(err))
		os.Exit(1)
	}
}
