package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is a user's metered consumption for the current cycle.
//
// MonthlyReset's UTC (year, month) is the cycle the counter belongs to. A
// record whose cycle is older than the current month counts as zero.
type UsageRecord struct {
	UserID         uuid.UUID
	PostsGenerated int64
	MonthlyReset   *time.Time
}

// NeedsRollover reports whether a counter last reset at lastReset belongs to
// a calendar month before now. A nil or zero lastReset always rolls over.
// Months are compared in UTC.
func NeedsRollover(lastReset *time.Time, now time.Time) bool {
	if lastReset == nil || lastReset.IsZero() {
		return true
	}
	ly, lm, _ := lastReset.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	if ly != ny {
		return ly < ny
	}
	return lm < nm
}

// CurrentCount returns the counter value as seen at now, treating a stale
// cycle as zero.
func (r UsageRecord) CurrentCount(now time.Time) int64 {
	if NeedsRollover(r.MonthlyReset, now) {
		return 0
	}
	return r.PostsGenerated
}

// CycleStart returns the first instant of the UTC month containing t.
func CycleStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// NextCycleStart returns the first instant of the UTC month after t.
func NextCycleStart(t time.Time) time.Time {
	return CycleStart(t).AddDate(0, 1, 0)
}

// ConsumeResult is the outcome of a single atomic check-and-increment.
type ConsumeResult struct {
	Consumed bool
	// Used is the counter after the operation when Consumed, or the
	// current-cycle count that caused the rejection otherwise.
	Used         int64
	MonthlyReset time.Time
	// RolledOver is true when this operation started a new cycle.
	RolledOver bool
}

// UsageSummary describes a user's quota position for display.
type UsageSummary struct {
	Plan          Tier
	EffectiveTier Tier
	Status        SubscriptionStatus
	Used          int64
	Limit         int
	Remaining     int64 // Unlimited (-1) when the tier has no cap
	ResetsAt      time.Time
}

// NewUsageSummary builds the summary for a user at now.
func NewUsageSummary(sub SubscriptionState, rec UsageRecord, now time.Time) UsageSummary {
	effective := ResolveEffectiveTier(sub, now)
	limit := MonthlyQuota(effective)
	used := rec.CurrentCount(now)

	remaining := int64(Unlimited)
	if !IsUnlimited(limit) {
		remaining = int64(limit) - used
		if remaining < 0 {
			remaining = 0
		}
	}

	return UsageSummary{
		Plan:          sub.Plan,
		EffectiveTier: effective,
		Status:        sub.Status,
		Used:          used,
		Limit:         limit,
		Remaining:     remaining,
		ResetsAt:      NextCycleStart(now),
	}
}
