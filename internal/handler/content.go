// Package handler contains the JSON HTTP handlers for the PostPilot API.
//
// This file implements the metered generation endpoint.
//
// Route:
//   - POST /api/ai/{feature} -> Prepare -> (entitlement gate) -> Generate
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
)

type inputContextKey struct{}

// ContentHandler serves the generation features.
type ContentHandler struct {
	content service.ContentService
	logger  *slog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(content service.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		content: content,
		logger:  logger,
	}
}

// RegisterRoutes registers the generation route. gate is the entitlement
// middleware; everything in before runs ahead of Prepare.
func (h *ContentHandler) RegisterRoutes(mux *http.ServeMux, gate func(http.Handler) http.Handler, before ...func(http.Handler) http.Handler) {
	var next http.Handler = h.Prepare(gate(http.HandlerFunc(h.Generate)))
	for i := len(before) - 1; i >= 0; i-- {
		next = before[i](next)
	}
	mux.Handle("POST /api/ai/{feature}", next)
}

// Prepare decodes and validates the request body before the gate runs, so a
// malformed request never consumes quota.
func (h *ContentHandler) Prepare(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "content.prepare"

		feature := domain.FeatureID(r.PathValue("feature"))
		if !domain.IsRegistered(feature) {
			ErrorResponse(w, r, h.logger, domain.NotFound(op, "feature", string(feature)))
			return
		}

		var in ai.Input
		if err := decodeJSON(w, r, op, &in); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		if err := h.content.Validate(feature, &in); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), inputContextKey{}, in)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Generate runs the generator for an authorized request. Usage was charged
// by the gate and is not refunded if generation fails.
func (h *ContentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user := auth.GetUser(ctx)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	decision := auth.GetDecision(ctx)
	if decision == nil || !decision.Allowed {
		InternalErrorResponse(w, r, h.logger, domain.Internal(nil, "content.generate", "generation reached without an entitlement decision"))
		return
	}

	in, ok := ctx.Value(inputContextKey{}).(ai.Input)
	if !ok {
		InternalErrorResponse(w, r, h.logger, domain.Internal(nil, "content.generate", "generation reached without a prepared input"))
		return
	}

	content, err := h.content.Generate(ctx, user, decision.Feature, in)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	body := make(map[string]any, len(content.Result)+2)
	for k, v := range content.Result {
		body[k] = v
	}
	body["feature"] = content.Feature
	body["usage"] = newQuotaUsage(decision)

	writeJSON(w, http.StatusOK, body)
}

// quotaUsage is the usage block attached to a successful generation.
type quotaUsage struct {
	Tier      domain.Tier `json:"tier"`
	Used      int64       `json:"used"`
	Limit     int         `json:"limit"`
	Remaining int64       `json:"remaining"`
}

func newQuotaUsage(d *domain.Decision) quotaUsage {
	u := quotaUsage{
		Tier:      d.EffectiveTier,
		Used:      d.Used,
		Limit:     d.Limit,
		Remaining: domain.Unlimited,
	}
	if !domain.IsUnlimited(d.Limit) {
		u.Remaining = max(int64(d.Limit)-d.Used, 0)
	}
	return u
}
