package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/metrics"
)

// Gate is the per-request authorization check for metered features.
type Gate interface {
	// Authorize runs BanCheck -> TierCheck -> QuotaCheck for one request.
	//
	// A denial is returned as a *domain.Decision with Allowed == false and a
	// nil error. A non-nil error is always a storage failure and carries no
	// decision; it must not be read as either a grant or a denial.
	Authorize(ctx context.Context, user *domain.User, feature domain.FeatureID, now time.Time) (*domain.Decision, error)
}

type gate struct {
	quota  QuotaService
	logger *slog.Logger
}

// NewGate creates a Gate that charges usage through quota.
func NewGate(quota QuotaService, logger *slog.Logger) Gate {
	return &gate{
		quota:  quota,
		logger: logger,
	}
}

func (g *gate) Authorize(ctx context.Context, user *domain.User, feature domain.FeatureID, now time.Time) (*domain.Decision, error) {
	tier := domain.ResolveEffectiveTier(user.Subscription, now)
	logger := g.logger.With("user_id", user.ID, "feature", feature, "tier", tier)

	// Banned users never reach the ledger.
	if user.IsBanned {
		logger.Info("gate denied", "reason", domain.DenyBanned)
		metrics.GateDenied(string(domain.DenyBanned))
		return domain.DenyBan(feature, tier), nil
	}

	if !domain.IsAuthorized(tier, feature) {
		required := domain.RequiredTier(feature)
		logger.Info("gate denied", "reason", domain.DenyPlanRequired, "required_tier", required)
		metrics.GateDenied(string(domain.DenyPlanRequired))
		return domain.DenyPlan(feature, tier, required), nil
	}

	result, err := g.quota.CheckAndConsume(ctx, user.ID, tier, now)
	if err != nil {
		metrics.GateErrored()
		return nil, err
	}

	limit := domain.MonthlyQuota(tier)
	if !result.Consumed {
		logger.Info("gate denied", "reason", domain.DenyLimitReached, "used", result.Used, "limit", limit)
		metrics.GateDenied(string(domain.DenyLimitReached))
		return domain.DenyLimit(feature, tier, limit, result.Used), nil
	}

	metrics.GateAllowed()
	logger.Debug("gate allowed", "used", result.Used, "limit", limit)
	return domain.Allow(feature, tier, limit, result.Used), nil
}

// Ensure gate implements Gate
var _ Gate = (*gate)(nil)
