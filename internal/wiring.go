package internal

import (
	"fmt"
	"log/slog"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/ai/anthropic"
	"github.com/DukeRupert/postpilot/internal/ai/mock"
	"github.com/DukeRupert/postpilot/internal/billing"
	"github.com/DukeRupert/postpilot/internal/storage"
	"github.com/DukeRupert/postpilot/internal/worker"
)

// NewStorage builds the snapshot store selected by STORAGE_PROVIDER.
func NewStorage(cfg *Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			Endpoint:        cfg.R2Endpoint,
		}, logger)
	case storage.ProviderLocal:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.StorageProvider)
	}
}

// NewGenerator builds the AI provider selected by AI_PROVIDER.
func NewGenerator(cfg *Config, logger *slog.Logger) (ai.Generator, error) {
	switch cfg.AIProvider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	case "mock":
		return mock.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}

// NewBilling returns nil when Stripe is not configured.
func NewBilling(cfg *Config) billing.Service {
	if !cfg.BillingEnabled() {
		return nil
	}
	return billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
		StarterMonthlyPriceID: cfg.StripeStarterMonthlyPriceID,
		StarterYearlyPriceID:  cfg.StripeStarterYearlyPriceID,
		ProMonthlyPriceID:     cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:      cfg.StripeProYearlyPriceID,
		AgencyMonthlyPriceID:  cfg.StripeAgencyMonthlyPriceID,
		AgencyYearlyPriceID:   cfg.StripeAgencyYearlyPriceID,
	})
}

// WorkerConfig maps the WORKER_* settings onto worker defaults.
func (cfg *Config) WorkerConfig() worker.Config {
	wc := worker.DefaultConfig()
	wc.Concurrency = cfg.WorkerConcurrency
	wc.PollInterval = cfg.WorkerPollInterval
	wc.JobTimeout = cfg.WorkerJobTimeout
	return wc
}

// SchedulerConfig returns the cron specs for recurring jobs.
func (cfg *Config) SchedulerConfig() worker.SchedulerConfig {
	return worker.SchedulerConfig{
		UsageExportSchedule: cfg.UsageExportSchedule,
		TokenPurgeSchedule:  cfg.TokenPurgeSchedule,
	}
}
