package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/handler"
	"github.com/DukeRupert/postpilot/internal/service"
)

// EntitlementMiddleware runs the authorization gate in front of metered
// endpoints. An allowed request has already consumed one unit of quota when
// the wrapped handler runs; the decision is available via auth.GetDecision.
type EntitlementMiddleware struct {
	gate   service.Gate
	logger *slog.Logger
	now    func() time.Time
}

// NewEntitlementMiddleware creates a new EntitlementMiddleware.
func NewEntitlementMiddleware(gate service.Gate, logger *slog.Logger) *EntitlementMiddleware {
	return &EntitlementMiddleware{
		gate:   gate,
		logger: logger,
		now:    time.Now,
	}
}

// RequireFeature gates next behind a fixed feature id.
//
// IMPORTANT: This middleware must be used AFTER WithUser and RequireUser.
func (m *EntitlementMiddleware) RequireFeature(feature domain.FeatureID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.authorize(w, r, feature, next)
		})
	}
}

// RequirePathFeature gates next behind the feature named by the {feature}
// path wildcard. Feature ids outside the registry get 404 before the gate
// runs so they never consume quota.
func (m *EntitlementMiddleware) RequirePathFeature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feature := domain.FeatureID(r.PathValue("feature"))
		if !domain.IsRegistered(feature) {
			handler.ErrorResponse(w, r, m.logger,
				domain.NotFound("entitlement.require_feature", "feature", string(feature)))
			return
		}
		m.RequireFeature(feature)(next).ServeHTTP(w, r)
	})
}

func (m *EntitlementMiddleware) authorize(w http.ResponseWriter, r *http.Request, feature domain.FeatureID, next http.Handler) {
	user := auth.GetUser(r.Context())
	if user == nil {
		handler.UnauthorizedResponse(w, r, m.logger)
		return
	}

	decision, err := m.gate.Authorize(r.Context(), user, feature, m.now())
	if err != nil {
		handler.ErrorResponse(w, r, m.logger, err)
		return
	}
	if !decision.Allowed {
		handler.DenialResponse(w, r, m.logger, decision)
		return
	}

	ctx := auth.SetDecision(r.Context(), decision)
	next.ServeHTTP(w, r.WithContext(ctx))
}

var _ func(http.Handler) http.Handler = (&EntitlementMiddleware{}).RequirePathFeature
