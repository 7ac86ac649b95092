// Package domain contains core business types and interfaces.
//
// This file defines the User domain type. It is separate from the repository
// models so the entitlement logic never deals with sql.Null* types.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. It is the principal the
// authorization gate evaluates.
type User struct {
	ID                   uuid.UUID
	Email                string
	Name                 string
	IsAdmin              bool
	IsBanned             bool
	BanReason            string
	Subscription         SubscriptionState
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EffectiveTier resolves the tier granted to the user at now.
func (u *User) EffectiveTier(now time.Time) Tier {
	return ResolveEffectiveTier(u.Subscription, now)
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// CreateUserParams contains the validated parameters for creating an account.
type CreateUserParams struct {
	Email   string
	Name    string
	IsAdmin bool
}

// SubscriptionUpdate is a billing-provider change to a user's subscription.
// Empty Plan leaves the stored plan untouched.
type SubscriptionUpdate struct {
	Plan                 Tier
	Status               SubscriptionStatus
	CurrentPeriodEnd     *time.Time
	StripeSubscriptionID string
}

// AdminPlanGrant is a privileged plan assignment made by an administrator.
type AdminPlanGrant struct {
	UserID uuid.UUID
	Plan   Tier
	Status SubscriptionStatus
}

// Normalize applies the grant rules: a paid plan is flagged as admin-granted,
// and a free plan is always inactive and never flagged.
func (g AdminPlanGrant) Normalize() (status SubscriptionStatus, granted bool) {
	if g.Plan == TierFree {
		return SubscriptionStatusInactive, false
	}
	status = g.Status
	if status == "" {
		status = SubscriptionStatusActive
	}
	return status, true
}

// AdminStats holds platform-wide counts for the admin dashboard.
type AdminStats struct {
	TotalUsers  int64
	BannedUsers int64
	PayingUsers int64
	ByPlan      map[Tier]int64
	// BillingEvents counts processed Stripe events by type since
	// BillingEventsSince.
	BillingEvents      map[string]int64
	BillingEventsSince time.Time
}

// UserFilter narrows the admin user listing. Empty Plans matches all plans.
type UserFilter struct {
	Plans      []Tier
	BannedOnly bool
	Limit      int
	Offset     int
}

// UserListItem is one row of the admin user listing.
type UserListItem struct {
	ID             uuid.UUID
	Email          string
	Name           string
	IsAdmin        bool
	IsBanned       bool
	Plan           Tier
	Status         SubscriptionStatus
	GrantedByAdmin bool
	Usage          UsageRecord
	CreatedAt      time.Time
}

// IssuedToken is returned once when an API token is created.
type IssuedToken struct {
	Token     string // Raw bearer token, never stored
	ExpiresAt time.Time
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
