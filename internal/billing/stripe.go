// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Interval is the billing cadence of a paid plan.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PriceFor returns the configured price id for a paid tier and interval.
	PriceFor(tier domain.Tier, interval Interval) (string, error)

	// TierForPriceID returns the tier for a Stripe price ID, or "" if the
	// price is not configured.
	TierForPriceID(priceID string) domain.Tier

	// ParseEvent reduces a verified Stripe event to a domain.BillingEvent.
	ParseEvent(event stripe.Event) (domain.BillingEvent, error)
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	StarterMonthlyPriceID string
	StarterYearlyPriceID  string
	ProMonthlyPriceID     string
	ProYearlyPriceID      string
	AgencyMonthlyPriceID  string
	AgencyYearlyPriceID   string
}

type priceKey struct {
	tier     domain.Tier
	interval Interval
}

func (p PriceConfig) byKey() map[priceKey]string {
	return map[priceKey]string{
		{domain.TierStarter, IntervalMonthly}: p.StarterMonthlyPriceID,
		{domain.TierStarter, IntervalYearly}:  p.StarterYearlyPriceID,
		{domain.TierPro, IntervalMonthly}:     p.ProMonthlyPriceID,
		{domain.TierPro, IntervalYearly}:      p.ProYearlyPriceID,
		{domain.TierAgency, IntervalMonthly}:  p.AgencyMonthlyPriceID,
		{domain.TierAgency, IntervalYearly}:   p.AgencyYearlyPriceID,
	}
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        map[priceKey]string
	priceToTier   map[string]domain.Tier
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which tiers.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	byKey := prices.byKey()
	priceToTier := make(map[string]domain.Tier, len(byKey))
	for k, id := range byKey {
		if id != "" {
			priceToTier[id] = k.tier
		}
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        byKey,
		priceToTier:   priceToTier,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PriceFor(tier domain.Tier, interval Interval) (string, error) {
	if interval == "" {
		interval = IntervalMonthly
	}
	id, ok := s.prices[priceKey{tier, interval}]
	if !ok {
		return "", fmt.Errorf("no paid plan %q with interval %q", tier, interval)
	}
	if id == "" {
		return "", fmt.Errorf("price for %s/%s is not configured", tier, interval)
	}
	return id, nil
}

func (s *stripeService) TierForPriceID(priceID string) domain.Tier {
	return s.priceToTier[priceID]
}

// =============================================================================
// Event mapping
// =============================================================================

func (s *stripeService) ParseEvent(event stripe.Event) (domain.BillingEvent, error) {
	out := domain.BillingEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Kind: domain.BillingIgnored,
	}
	if event.Data == nil {
		return out, nil
	}
	out.Payload = event.Data.Raw

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("parse subscription: %w", err)
		}
		out.Kind = domain.BillingSubscriptionChanged
		out.CustomerID = customerID(sub.Customer)
		out.Update = s.subscriptionUpdate(&sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("parse subscription: %w", err)
		}
		out.Kind = domain.BillingSubscriptionDeleted
		out.CustomerID = customerID(sub.Customer)

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return out, fmt.Errorf("parse invoice: %w", err)
		}
		out.CustomerID = customerID(inv.Customer)
		out.Kind = domain.BillingPaymentSucceeded
		if event.Type == "invoice.payment_failed" {
			out.Kind = domain.BillingPaymentFailed
		}
	}

	return out, nil
}

func (s *stripeService) subscriptionUpdate(sub *stripe.Subscription) domain.SubscriptionUpdate {
	u := domain.SubscriptionUpdate{
		Status:               MapStatus(sub.Status),
		StripeSubscriptionID: sub.ID,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		u.Plan = s.TierForPriceID(sub.Items.Data[0].Price.ID)
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		u.CurrentPeriodEnd = &end
	}
	return u
}

// MapStatus converts a Stripe subscription status to the stored status.
// Statuses without a paid-access meaning collapse to inactive.
func MapStatus(status stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return domain.SubscriptionStatusCanceled
	default:
		return domain.SubscriptionStatusInactive
	}
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
