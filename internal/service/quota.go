// Package service contains the business logic layer.
//
// This file implements the quota ledger: the per-user monthly counter that is
// checked and incremented in one atomic step by the usage store.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/metrics"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines operations on the monthly usage ledger.
type QuotaService interface {
	// CheckAndConsume charges one unit against the tier's monthly quota.
	// A full quota yields ConsumeResult.Consumed == false and a nil error.
	// Store failures are returned as domain.StorageFailure and are never
	// reported as a rejection.
	CheckAndConsume(ctx context.Context, userID uuid.UUID, tier domain.Tier, now time.Time) (domain.ConsumeResult, error)

	// GetUsage summarizes the user's position in the current cycle.
	GetUsage(ctx context.Context, user *domain.User, now time.Time) (*domain.UsageSummary, error)

	// ResetUsage zeroes the user's counter. Admin only; not quota checked.
	ResetUsage(ctx context.Context, userID uuid.UUID, now time.Time) error

	// DeleteUsage drops the counter of a deleted account.
	DeleteUsage(ctx context.Context, userID uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  usage.Store
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService over the given usage store.
func NewQuotaService(store usage.Store, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		logger: logger,
	}
}

// CheckAndConsume charges one unit for userID at tier.
func (s *quotaService) CheckAndConsume(ctx context.Context, userID uuid.UUID, tier domain.Tier, now time.Time) (domain.ConsumeResult, error) {
	const op = "quota.check_and_consume"

	quota := domain.MonthlyQuota(tier)

	// A zero quota can never be consumed; report the current count without
	// touching the counter.
	if quota == 0 {
		rec, err := s.store.Get(ctx, userID)
		if err != nil {
			return domain.ConsumeResult{}, s.storageFailure(err, op, userID)
		}
		return domain.ConsumeResult{Used: rec.CurrentCount(now)}, nil
	}

	result, err := s.store.Consume(ctx, userID, quota, now)
	if err != nil {
		return domain.ConsumeResult{}, s.storageFailure(err, op, userID)
	}

	if result.RolledOver {
		metrics.UsageRollovers.Inc()
		s.logger.Debug("usage cycle rolled over", "user_id", userID, "monthly_reset", result.MonthlyReset)
	}

	if !result.Consumed {
		s.logger.Info("monthly quota exhausted",
			"user_id", userID,
			"tier", tier,
			"used", result.Used,
			"limit", quota,
		)
		return result, nil
	}

	metrics.UsageConsumed.WithLabelValues(string(tier)).Inc()
	return result, nil
}

// GetUsage summarizes the user's usage at now.
func (s *quotaService) GetUsage(ctx context.Context, user *domain.User, now time.Time) (*domain.UsageSummary, error) {
	const op = "quota.get_usage"

	rec, err := s.store.Get(ctx, user.ID)
	if err != nil {
		return nil, s.storageFailure(err, op, user.ID)
	}

	summary := domain.NewUsageSummary(user.Subscription, rec, now)
	return &summary, nil
}

// ResetUsage zeroes the user's counter and starts a new cycle at now.
func (s *quotaService) ResetUsage(ctx context.Context, userID uuid.UUID, now time.Time) error {
	const op = "quota.reset_usage"

	if err := s.store.Reset(ctx, userID, now); err != nil {
		return s.storageFailure(err, op, userID)
	}

	s.logger.Info("usage counter reset", "user_id", userID)
	return nil
}

func (s *quotaService) DeleteUsage(ctx context.Context, userID uuid.UUID) error {
	const op = "quota.delete_usage"

	if err := s.store.Delete(ctx, userID); err != nil {
		return s.storageFailure(err, op, userID)
	}
	return nil
}

func (s *quotaService) storageFailure(err error, op string, userID uuid.UUID) error {
	metrics.UsageStoreErrors.WithLabelValues(s.store.Backend()).Inc()
	s.logger.Error("usage store failure",
		"op", op,
		"backend", s.store.Backend(),
		"user_id", userID,
		"error", err,
	)
	return domain.StorageFailure(err, op)
}

// Ensure quotaService implements QuotaService
var _ QuotaService = (*quotaService)(nil)
