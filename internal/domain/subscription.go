package domain

import (
	"fmt"
	"time"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// ParseSubscriptionStatus validates a status string.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionStatusActive, SubscriptionStatusInactive, SubscriptionStatusCanceled,
		SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return st, nil
	}
	return "", fmt.Errorf("unknown subscription status %q", s)
}

// IsActive returns true for statuses that keep paid access.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// SubscriptionState is the billing state attached to a user.
//
// Status is authoritative for access. CurrentPeriodEnd is informational and
// is never consulted when resolving the effective tier.
type SubscriptionState struct {
	Plan             Tier
	Status           SubscriptionStatus
	GrantedByAdmin   bool
	CurrentPeriodEnd *time.Time
}

// ResolveEffectiveTier returns the tier actually granted to a subscriber.
//
// Lapsed, canceled and past-due payers are demoted to free rather than
// blocked. Admin grants bypass the billing status because they have no
// payment record behind them. The now argument is accepted so callers resolve
// every check of a request against the same instant.
func ResolveEffectiveTier(sub SubscriptionState, now time.Time) Tier {
	if sub.Plan == TierFree || !sub.Plan.Valid() {
		return TierFree
	}
	if sub.GrantedByAdmin {
		return sub.Plan
	}
	if sub.Status.IsActive() {
		return sub.Plan
	}
	return TierFree
}
