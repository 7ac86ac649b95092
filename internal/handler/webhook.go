// Package handler contains the JSON HTTP handlers for the PostPilot API.
//
// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/postpilot/internal/billing"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/metrics"
	"github.com/DukeRupert/postpilot/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC; Stripe signs them instead.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and applies one Stripe event. Stripe retries
// any non-2xx response, so only failures worth retrying return 5xx.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEvent("unknown", "invalid_signature")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger := h.logger.With("type", event.Type, "event_id", event.ID)
	logger.Info("stripe webhook received")

	parsed, err := h.billing.ParseEvent(event)
	if err != nil {
		// A payload Stripe signed but we cannot read will not improve on retry.
		logger.Error("failed to parse webhook event", "error", err)
		metrics.WebhookEvent(string(event.Type), "error")
		w.WriteHeader(http.StatusOK)
		return
	}

	if parsed.Kind == domain.BillingIgnored {
		logger.Debug("unhandled webhook event type")
		metrics.WebhookEvent(parsed.Type, string(domain.BillingEventSkipped))
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := h.subscriptions.ApplyEvent(r.Context(), parsed)
	if err != nil {
		metrics.WebhookEvent(parsed.Type, "error")
		status := ErrorCodeToHTTPStatus(domain.ErrorCode(err))
		logError(logger, r, err, domain.ErrorCode(err), domain.ErrorOp(err), status)
		if status >= http.StatusInternalServerError {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		// Unknown customers and the like are acknowledged so Stripe stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.WebhookEvent(parsed.Type, string(result))
	logger.Info("stripe webhook handled", "result", result, "customer_id", parsed.CustomerID)
	w.WriteHeader(http.StatusOK)
}
