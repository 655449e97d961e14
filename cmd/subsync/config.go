package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	backendFirestore = "firestore"
	backendRedis     = "redis"
	backendPostgres  = "postgres"
	backendMemory    = "memory"
)

var errInvalidConfig = errors.New("invalid configuration")

// Config is the process configuration, read from the environment and an
// optional .env file.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR"`
	AdminToken  string `env:"ADMIN_TOKEN"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookRateLimit    int    `env:"WEBHOOK_RATE_LIMIT" envDefault:"0"`

	StoreBackend             string `env:"STORE_BACKEND" envDefault:"firestore"`
	FirestoreProjectID       string `env:"FIRESTORE_PROJECT_ID"`
	FirestoreCredentialsFile string `env:"FIRESTORE_CREDENTIALS_FILE"`
	FirestoreUsersCollection string `env:"FIRESTORE_USERS_COLLECTION" envDefault:"users"`
	RedisAddr                string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	PostgresDSN              string `env:"POSTGRES_DSN"`

	PostmarkServerToken   string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken  string `env:"POSTMARK_ACCOUNT_TOKEN"`
	BillingFromEmail      string `env:"BILLING_FROM_EMAIL"`
	PaymentFailedTemplate string `env:"PAYMENT_FAILED_TEMPLATE" envDefault:"payment-failed"`
}

// loadConfig loads .env when present, then parses the environment.
func loadConfig() (Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case backendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("%w: FIRESTORE_PROJECT_ID is required for the firestore backend", errInvalidConfig)
		}
	case backendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres backend", errInvalidConfig)
		}
	case backendRedis, backendMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", errInvalidConfig, c.StoreBackend)
	}
	if c.PostmarkServerToken != "" && c.BillingFromEmail == "" {
		return fmt.Errorf("%w: BILLING_FROM_EMAIL is required when Postmark is enabled", errInvalidConfig)
	}
	return nil
}

func (c Config) development() bool {
	return c.AppEnv == "development"
}

func (c Config) webhookEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}
