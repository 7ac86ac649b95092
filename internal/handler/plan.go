package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
)

// PlanHandler exposes the plan catalog and the caller's quota position.
type PlanHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(quota service.QuotaService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		quota:  quota,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes registers plan routes on the provided mux.
func (h *PlanHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/plans", h.ListPlans)
	mux.Handle("GET /api/plan", requireUser(http.HandlerFunc(h.MyPlan)))
}

// PlanResponse is the caller's plan and usage for the current cycle.
type PlanResponse struct {
	Plan          domain.Tier               `json:"plan"`
	EffectiveTier domain.Tier               `json:"effective_tier"`
	Status        domain.SubscriptionStatus `json:"status"`
	Used          int64                     `json:"used"`
	Limit         int                       `json:"limit"`
	Remaining     int64                     `json:"remaining"`
	ResetsAt      time.Time                 `json:"resets_at"`
	Features      []domain.FeatureID        `json:"features"`
}

// MyPlan returns the authenticated user's plan summary.
func (h *PlanHandler) MyPlan(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.quota.GetUsage(r.Context(), user, h.now())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, PlanResponse{
		Plan:          summary.Plan,
		EffectiveTier: summary.EffectiveTier,
		Status:        summary.Status,
		Used:          summary.Used,
		Limit:         summary.Limit,
		Remaining:     summary.Remaining,
		ResetsAt:      summary.ResetsAt,
		Features:      domain.FeaturesFor(summary.EffectiveTier),
	})
}

// CatalogEntry describes one tier in the public plan listing.
type CatalogEntry struct {
	Tier         domain.Tier        `json:"tier"`
	Name         string             `json:"name"`
	MonthlyQuota int                `json:"monthly_quota"`
	Features     []domain.FeatureID `json:"features"`
}

// ListPlans returns the plan catalog in ascending tier order.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := make([]CatalogEntry, 0, len(domain.Tiers))
	for _, t := range domain.Tiers {
		plans = append(plans, CatalogEntry{
			Tier:         t,
			Name:         t.DisplayName(),
			MonthlyQuota: domain.MonthlyQuota(t),
			Features:     domain.FeaturesFor(t),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}
