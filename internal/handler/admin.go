package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/google/uuid"
)

// AdminHandler handles the admin API. None of these routes are metered.
type AdminHandler struct {
	users  service.UserService
	quota  service.QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users service.UserService, quota service.QuotaService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		quota:  quota,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("GET /api/admin/stats", requireAdmin(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/admin/users", requireAdmin(http.HandlerFunc(h.ListUsers)))
	mux.Handle("GET /api/admin/users/{id}", requireAdmin(http.HandlerFunc(h.UserDetail)))
	mux.Handle("DELETE /api/admin/users/{id}", requireAdmin(http.HandlerFunc(h.DeleteUser)))
	mux.Handle("PATCH /api/admin/users/{id}/plan", requireAdmin(http.HandlerFunc(h.SetPlan)))
	mux.Handle("PATCH /api/admin/users/{id}/ban", requireAdmin(http.HandlerFunc(h.SetBan)))
	mux.Handle("POST /api/admin/users/{id}/usage/reset", requireAdmin(http.HandlerFunc(h.ResetUsage)))
}

// StatsResponse is the body of GET /api/admin/stats.
type StatsResponse struct {
	TotalUsers  int64                 `json:"total_users"`
	BannedUsers int64                 `json:"banned_users"`
	PayingUsers int64                 `json:"paying_users"`
	ByPlan      map[domain.Tier]int64 `json:"by_plan"`
	// BillingEvents counts webhook events processed since BillingEventsSince.
	BillingEvents      map[string]int64 `json:"billing_events"`
	BillingEventsSince time.Time        `json:"billing_events_since"`
}

// Stats returns platform-wide counts.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	byPlan := make(map[domain.Tier]int64, len(domain.Tiers))
	for _, t := range domain.Tiers {
		byPlan[t] = stats.ByPlan[t]
	}

	events := stats.BillingEvents
	if events == nil {
		events = map[string]int64{}
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalUsers:         stats.TotalUsers,
		BannedUsers:        stats.BannedUsers,
		PayingUsers:        stats.PayingUsers,
		ByPlan:             byPlan,
		BillingEvents:      events,
		BillingEventsSince: stats.BillingEventsSince,
	})
}

// AdminUser is one user as shown to administrators.
type AdminUser struct {
	ID             uuid.UUID                 `json:"id"`
	Email          string                    `json:"email"`
	Name           string                    `json:"name"`
	IsAdmin        bool                      `json:"is_admin"`
	IsBanned       bool                      `json:"is_banned"`
	Plan           domain.Tier               `json:"plan"`
	Status         domain.SubscriptionStatus `json:"status"`
	GrantedByAdmin bool                      `json:"granted_by_admin"`
	PostsGenerated int64                     `json:"posts_generated"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// ListUsers returns users filtered by ?plan=starter,pro and ?banned=true.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	const op = "admin.list_users"

	filter, err := parseUserFilter(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items, err := h.users.List(r.Context(), filter)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	now := h.now()
	users := make([]AdminUser, 0, len(items))
	for _, u := range items {
		users = append(users, AdminUser{
			ID:             u.ID,
			Email:          u.Email,
			Name:           u.Name,
			IsAdmin:        u.IsAdmin,
			IsBanned:       u.IsBanned,
			Plan:           u.Plan,
			Status:         u.Status,
			GrantedByAdmin: u.GrantedByAdmin,
			PostsGenerated: u.Usage.CurrentCount(now),
			CreatedAt:      u.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func parseUserFilter(r *http.Request, op string) (domain.UserFilter, error) {
	q := r.URL.Query()
	filter := domain.UserFilter{Limit: 50}

	if raw := q.Get("plan"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			tier, err := domain.ParseTier(p)
			if err != nil {
				return filter, domain.Invalid(op, "Unknown plan "+strconv.Quote(p))
			}
			filter.Plans = append(filter.Plans, tier)
		}
	}
	if raw := q.Get("banned"); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, domain.Invalid(op, "banned must be true or false")
		}
		filter.BannedOnly = banned
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return filter, domain.Invalid(op, "limit must be between 1 and 500")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, domain.Invalid(op, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

// UserDetailResponse is a user with their current quota position.
type UserDetailResponse struct {
	AdminUser
	BanReason     string      `json:"ban_reason,omitempty"`
	EffectiveTier domain.Tier `json:"effective_tier"`
	Usage         UsageBody   `json:"usage"`
}

// UsageBody is a quota position for the current cycle.
type UsageBody struct {
	Used      int64     `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// UserDetail returns a single user with usage.
func (h *AdminHandler) UserDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUserID(w, r, "admin.user_detail")
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.writeUserDetail(w, r, user)
}

// DeleteUser removes an account. Tokens, usage counters and archived cycles
// go with it.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	const op = "admin.delete_user"

	id, ok := h.pathUserID(w, r, op)
	if !ok {
		return
	}

	if admin := auth.GetUser(r.Context()); admin != nil && admin.ID == id {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Administrators cannot delete themselves"))
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// The account is gone either way; a stale counter in redis only costs
	// memory until its TTL.
	if err := h.quota.DeleteUsage(r.Context(), id); err != nil {
		h.logger.Warn("usage counter not deleted", "user_id", id, "error", err)
	}

	h.audit(r, "user deleted", "target_user_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetPlanRequest is the body of PATCH /api/admin/users/{id}/plan.
type SetPlanRequest struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

// SetPlan grants a plan outside of billing.
func (h *AdminHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
	const op = "admin.set_plan"

	id, ok := h.pathUserID(w, r, op)
	if !ok {
		return
	}

	var req SetPlanRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tier, err := domain.ParseTier(req.Plan)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Plan must be one of free, starter, pro, agency"))
		return
	}
	grant := domain.AdminPlanGrant{UserID: id, Plan: tier}
	if req.Status != "" {
		status, err := domain.ParseSubscriptionStatus(req.Status)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
			return
		}
		grant.Status = status
	}

	user, err := h.users.SetPlan(r.Context(), grant)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.audit(r, "plan set", "target_user_id", id, "plan", tier, "status", user.Subscription.Status)
	h.writeUserDetail(w, r, user)
}

// SetBanRequest is the body of PATCH /api/admin/users/{id}/ban.
type SetBanRequest struct {
	Banned bool   `json:"banned"`
	Reason string `json:"reason"`
}

// SetBan bans or unbans a user.
func (h *AdminHandler) SetBan(w http.ResponseWriter, r *http.Request) {
	const op = "admin.set_ban"

	id, ok := h.pathUserID(w, r, op)
	if !ok {
		return
	}

	var req SetBanRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if admin := auth.GetUser(r.Context()); admin != nil && admin.ID == id && req.Banned {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Administrators cannot ban themselves"))
		return
	}

	user, err := h.users.SetBan(r.Context(), id, req.Banned, strings.TrimSpace(req.Reason))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.audit(r, "ban set", "target_user_id", id, "banned", req.Banned)
	h.writeUserDetail(w, r, user)
}

// ResetUsage zeroes a user's monthly counter.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	const op = "admin.reset_usage"

	id, ok := h.pathUserID(w, r, op)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.quota.ResetUsage(r.Context(), id, h.now()); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.audit(r, "usage reset", "target_user_id", id)
	h.writeUserDetail(w, r, user)
}

func (h *AdminHandler) pathUserID(w http.ResponseWriter, r *http.Request, op string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid user ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) writeUserDetail(w http.ResponseWriter, r *http.Request, user *domain.User) {
	summary, err := h.quota.GetUsage(r.Context(), user, h.now())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UserDetailResponse{
		AdminUser: AdminUser{
			ID:             user.ID,
			Email:          user.Email,
			Name:           user.Name,
			IsAdmin:        user.IsAdmin,
			IsBanned:       user.IsBanned,
			Plan:           user.Subscription.Plan,
			Status:         user.Subscription.Status,
			GrantedByAdmin: user.Subscription.GrantedByAdmin,
			PostsGenerated: summary.Used,
			CreatedAt:      user.CreatedAt,
		},
		BanReason:     user.BanReason,
		EffectiveTier: summary.EffectiveTier,
		Usage: UsageBody{
			Used:      summary.Used,
			Limit:     summary.Limit,
			Remaining: summary.Remaining,
			ResetsAt:  summary.ResetsAt,
		},
	})
}

func (h *AdminHandler) audit(r *http.Request, msg string, args ...any) {
	if admin := auth.GetUser(r.Context()); admin != nil {
		args = append(args, "admin_id", admin.ID)
	}
	h.logger.Info("admin: "+msg, args...)
}
