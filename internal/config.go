package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (Stripe redirect targets)
	BaseURL string

	// Usage counter backend: "postgres", "redis" or "memory"
	UsageStore string
	RedisURL   string

	// Storage Configuration (usage snapshots)
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2Endpoint        string // Optional override, e.g. a local S3-compatible server

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// Recurring jobs (cron, UTC)
	UsageExportSchedule string
	TokenPurgeSchedule  string

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Admin access control
	AdminEmails []string // List of email addresses with admin access

	// Stripe Billing Configuration
	// In development, billing endpoints answer 501 if the secret key is empty.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Stripe Price IDs for subscription plans
	StripeStarterMonthlyPriceID string
	StripeStarterYearlyPriceID  string
	StripeProMonthlyPriceID     string
	StripeProYearlyPriceID      string
	StripeAgencyMonthlyPriceID  string
	StripeAgencyYearlyPriceID   string

	// Per-client limit on /api/ai/* requests
	APIRateLimit  int
	APIRateWindow time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		UsageStore: strings.ToLower(getEnv("USAGE_STORE", "postgres")),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2Endpoint:        getEnv("R2_ENDPOINT", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),

		UsageExportSchedule: getEnv("USAGE_EXPORT_SCHEDULE", "5 0 1 * *"),
		TokenPurgeSchedule:  getEnv("TOKEN_PURGE_SCHEDULE", "30 3 * * *"),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 30*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		StripeStarterMonthlyPriceID: getEnv("STRIPE_STARTER_MONTHLY_PRICE_ID", ""),
		StripeStarterYearlyPriceID:  getEnv("STRIPE_STARTER_YEARLY_PRICE_ID", ""),
		StripeProMonthlyPriceID:     getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:      getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),
		StripeAgencyMonthlyPriceID:  getEnv("STRIPE_AGENCY_MONTHLY_PRICE_ID", ""),
		StripeAgencyYearlyPriceID:   getEnv("STRIPE_AGENCY_YEARLY_PRICE_ID", ""),

		APIRateLimit:  getEnvInt("API_RATE_LIMIT", 30),
		APIRateWindow: getEnvDuration("API_RATE_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	for _, email := range strings.Split(getEnv("ADMIN_EMAILS", ""), ",") {
		if trimmed := strings.TrimSpace(strings.ToLower(email)); trimmed != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
		}
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.UsageStore {
	case "postgres", "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when USAGE_STORE is 'redis'")
		}
	default:
		return fmt.Errorf("USAGE_STORE must be one of 'postgres', 'redis' or 'memory', got: %s", cfg.UsageStore)
	}
	if cfg.UsageStore == "memory" && cfg.Env != "development" {
		return fmt.Errorf("USAGE_STORE 'memory' is only allowed in development")
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" && cfg.R2Endpoint == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}
	if cfg.AIProvider == "mock" && cfg.Env == "production" {
		return fmt.Errorf("AI_PROVIDER 'mock' is not allowed in production")
	}

	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	if cfg.APIRateLimit < 1 {
		return fmt.Errorf("API_RATE_LIMIT must be at least 1, got: %d", cfg.APIRateLimit)
	}
	if cfg.APIRateWindow < time.Second {
		return fmt.Errorf("API_RATE_WINDOW must be at least 1s, got: %v", cfg.APIRateWindow)
	}

	return nil
}

// BillingEnabled reports whether Stripe is configured.
func (cfg *Config) BillingEnabled() bool {
	return cfg.StripeSecretKey != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
