// Package config loads runtime settings from the environment, after merging
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderPayPal = "paypal"
	ProviderStripe = "stripe"
)

type Config struct {
	ServiceName  string
	Env          string
	Port         string
	OTLPEndpoint string

	PostgresURL    string
	DBMaxOpenConns int

	KafkaBrokers     []string
	OrderEventsTopic string
	RedisURL         string

	JWTSecret string

	PaymentProvider    string
	Currency           string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalAPIBase      string
	PayPalWebhookID    string
	StripeSecretKey    string
	StripeWebhookKey   string

	// PublicBaseURL is where the payment provider sends the browser back to.
	PublicBaseURL string
	FrontendURL   string

	SMTP SMTP
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ServiceName:        getenv("SERVICE_NAME", "storefront"),
		Env:                getenv("ENV", "development"),
		Port:               getenv("PORT", "8080"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PostgresURL:        os.Getenv("POSTGRES_URL"),
		OrderEventsTopic:   getenv("ORDER_EVENTS_TOPIC", "storefront.orders"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PaymentProvider:    strings.ToLower(getenv("PAYMENT_PROVIDER", ProviderPayPal)),
		Currency:           strings.ToUpper(getenv("CURRENCY", "USD")),
		PayPalClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		PayPalAPIBase:      getenv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
		PayPalWebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
		StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookKey:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PublicBaseURL:      strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		FrontendURL:        strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getenv("SMTP_FROM", "no-reply@storefront.local"),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.DBMaxOpenConns, err = getint("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getint("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAPI checks the settings the HTTP API cannot start without.
func (c *Config) ValidateAPI() error {
	var errs []error
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.PaymentProvider {
	case ProviderPayPal:
		if c.PayPalClientID == "" || c.PayPalClientSecret == "" {
			errs = append(errs, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required"))
		}
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
