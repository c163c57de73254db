package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr            string
	MetricsAddr         string
	PostgresDSN         string
	RedisAddr           string
	KafkaBrokers        []string
	JWTSecret           string
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	PaymentTimeout      time.Duration
	DepartureLocation   *time.Location
	OTLPEndpoint        string
	LogLevel            string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		MetricsAddr:         getenv("METRICS_ADDR", ":9090"),
		PostgresDSN:         getenv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=ticketbari sslmode=disable"),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:        splitList(getenv("KAFKA_BROKER", "localhost:9092")),
		JWTSecret:           getenv("JWT_SECRET", "supersecret"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
		PaymentTimeout:      10 * time.Second,
		DepartureLocation:   time.UTC,
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("PAYMENT_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.PaymentTimeout = d
		} else {
			slog.Warn("invalid PAYMENT_TIMEOUT, using default", "value", raw, "default", cfg.PaymentTimeout)
		}
	}
	if tz := os.Getenv("DEPARTURE_TZ"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.DepartureLocation = loc
		} else {
			slog.Warn("invalid DEPARTURE_TZ, using UTC", "value", tz, "error", err)
		}
	}
	if cfg.StripeSecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY is not set, payment calls will fail")
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"currency", cfg.Currency,
		"payment_timeout", cfg.PaymentTimeout,
		"departure_tz", cfg.DepartureLocation.String())
	return cfg
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
