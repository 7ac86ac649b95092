// Package handler contains the JSON HTTP handlers for the PostPilot API.
//
// This file implements billing handlers backed by Stripe.
//
// Routes handled:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/billing"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
)

// BillingHandler handles checkout and customer portal requests.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, userService service.UserService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
}

// CheckoutRequest is the body of POST /api/billing/checkout.
type CheckoutRequest struct {
	Plan     string           `json:"plan"`
	Interval billing.Interval `json:"interval"`
}

// RedirectResponse carries a Stripe-hosted URL for the client to open.
type RedirectResponse struct {
	URL string `json:"url"`
}

// CreateCheckout creates a Stripe Checkout session for a paid plan.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "billing.checkout"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tier, err := domain.ParseTier(req.Plan)
	if err != nil || tier == domain.TierFree {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Plan must be one of starter, pro, agency"))
		return
	}
	if req.Interval != "" && req.Interval != billing.IntervalMonthly && req.Interval != billing.IntervalYearly {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Interval must be monthly or yearly"))
		return
	}

	priceID, err := h.billing.PriceFor(tier, req.Interval)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.ENOTIMPL, op, "This plan is not available for purchase"))
		return
	}

	// Ensure user has a Stripe customer
	customerID := user.StripeCustomerID
	if customerID == "" {
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Upstream(err, op))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			h.logger.Error("failed to save stripe customer ID", "error", err, "user_id", user.ID)
		}
	}

	successURL := fmt.Sprintf("%s/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/pricing", h.baseURL)

	checkoutURL, err := h.billing.CreateCheckoutSession(customerID, priceID, successURL, cancelURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Upstream(err, op))
		return
	}

	h.logger.Info("checkout session created", "user_id", user.ID, "plan", tier, "interval", req.Interval)
	writeJSON(w, http.StatusOK, RedirectResponse{URL: checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.portal"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account yet. Start a checkout first."))
		return
	}

	returnURL := fmt.Sprintf("%s/account", h.baseURL)
	portalURL, err := h.billing.CreatePortalSession(user.StripeCustomerID, returnURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Upstream(err, op))
		return
	}

	writeJSON(w, http.StatusOK, RedirectResponse{URL: portalURL})
}
