// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the ordered subscription tiers and the
// monthly quota attached to each of them.
package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tier is an ordered subscription level gating feature access and quota size.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierAgency  Tier = "agency"
)

// Unlimited is the quota value for tiers without a monthly cap.
const Unlimited = -1

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierFree, TierStarter, TierPro, TierAgency}

var tierOrder = map[Tier]int{
	TierFree:    0,
	TierStarter: 1,
	TierPro:     2,
	TierAgency:  3,
}

// PlanLimits maps each tier to its monthly quota of metered actions.
// Unlimited tiers are still counted, but never rejected.
var PlanLimits = map[Tier]int{
	TierFree:    3,
	TierStarter: 50,
	TierPro:     Unlimited,
	TierAgency:  Unlimited,
}

// ParseTier converts user or database input into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return t, nil
}

// Valid returns true if t is one of the catalog tiers.
func (t Tier) Valid() bool {
	_, ok := tierOrder[t]
	return ok
}

// Rank returns the position of the tier in the total order.
// Unknown tiers rank below free so they never satisfy a requirement.
func (t Tier) Rank() int {
	if r, ok := tierOrder[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t is the same as or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// DisplayName returns the tier name as shown in plan listings ("Pro").
func (t Tier) DisplayName() string {
	return cases.Title(language.English).String(string(t))
}

// MonthlyQuota returns the quota for a tier, defaulting to the free tier
// quota for unknown tiers.
func MonthlyQuota(t Tier) int {
	if q, ok := PlanLimits[t]; ok {
		return q
	}
	return PlanLimits[TierFree]
}

// IsUnlimited reports whether quota denotes an uncapped tier.
func IsUnlimited(quota int) bool {
	return quota < 0
}
