package domain

import "fmt"

// DenyReason classifies why the authorization gate refused a request.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyBanned       DenyReason = EBANNED
	DenyPlanRequired DenyReason = EPLANREQUIRED
	DenyLimitReached DenyReason = ELIMITREACHED
)

// Decision is the terminal state of one pass through the gate:
// BanCheck -> TierCheck -> QuotaCheck -> Allow | Deny.
type Decision struct {
	Allowed bool
	Reason  DenyReason

	Feature       FeatureID
	EffectiveTier Tier

	// Set for DenyPlanRequired.
	RequiredTier Tier

	// Set for DenyLimitReached, and for Allow on metered tiers.
	Limit int
	Used  int64
}

// Allow builds an allowing decision.
func Allow(feature FeatureID, tier Tier, limit int, used int64) *Decision {
	return &Decision{
		Allowed:       true,
		Feature:       feature,
		EffectiveTier: tier,
		Limit:         limit,
		Used:          used,
	}
}

// DenyBan builds a Banned denial.
func DenyBan(feature FeatureID, tier Tier) *Decision {
	return &Decision{Reason: DenyBanned, Feature: feature, EffectiveTier: tier}
}

// DenyPlan builds a PlanRequired denial.
func DenyPlan(feature FeatureID, current, required Tier) *Decision {
	return &Decision{
		Reason:        DenyPlanRequired,
		Feature:       feature,
		EffectiveTier: current,
		RequiredTier:  required,
	}
}

// DenyLimit builds a LimitReached denial.
func DenyLimit(feature FeatureID, tier Tier, limit int, used int64) *Decision {
	return &Decision{
		Reason:        DenyLimitReached,
		Feature:       feature,
		EffectiveTier: tier,
		Limit:         limit,
		Used:          used,
	}
}

// Err converts a denial into a *Error for the HTTP boundary. It returns nil
// for an allowing decision.
func (d *Decision) Err(op string) *Error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case DenyBanned:
		return &Error{Code: EBANNED, Op: op, Message: "Account suspended. Contact support."}
	case DenyPlanRequired:
		return &Error{
			Code:    EPLANREQUIRED,
			Op:      op,
			Message: fmt.Sprintf("The %s plan is required for this feature", d.RequiredTier.DisplayName()),
		}
	case DenyLimitReached:
		return &Error{
			Code:    ELIMITREACHED,
			Op:      op,
			Message: fmt.Sprintf("Monthly limit reached (%d/month)", d.Limit),
		}
	}
	return &Error{Code: EFORBIDDEN, Op: op, Message: "Access denied"}
}
