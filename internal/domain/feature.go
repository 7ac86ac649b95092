package domain

import "sort"

// FeatureID identifies a metered generation feature (e.g. "caption").
type FeatureID string

// FeatureRequirements maps each registered feature to the minimum tier that
// unlocks it. Features absent from this table require TierFree.
var FeatureRequirements = map[FeatureID]Tier{
	// Free
	"caption":      TierFree,
	"hashtags":     TierFree,
	"caption-full": TierFree,
	"promo":        TierFree,
	"review-reply": TierFree,

	// Starter
	"week":           TierStarter,
	"bio":            TierStarter,
	"video-script":   TierStarter,
	"image":          TierStarter,
	"story-sequence": TierStarter,
	"persona":        TierStarter,

	// Pro
	"ideas30":             TierPro,
	"comment-replies":     TierPro,
	"strategy90":          TierPro,
	"launch-plan":         TierPro,
	"reengagement-email":  TierPro,
	"competitor-strategy": TierPro,
	"simulate-client":     TierPro,

	// Agency
	"audit-bio":   TierAgency,
	"post-series": TierAgency,
	"translate":   TierAgency,
	"viral-hook":  TierAgency,
}

// RequiredTier returns the minimum tier for a feature. Unregistered features
// are free-tier; they are never an error.
func RequiredTier(feature FeatureID) Tier {
	if t, ok := FeatureRequirements[feature]; ok {
		return t
	}
	return TierFree
}

// IsAuthorized reports whether a principal at the given effective tier may
// use the feature.
func IsAuthorized(effective Tier, feature FeatureID) bool {
	return effective.AtLeast(RequiredTier(feature))
}

// IsRegistered reports whether the feature has an explicit entry.
func IsRegistered(feature FeatureID) bool {
	_, ok := FeatureRequirements[feature]
	return ok
}

// FeaturesFor returns the sorted list of registered features unlocked at tier.
func FeaturesFor(t Tier) []FeatureID {
	features := make([]FeatureID, 0, len(FeatureRequirements))
	for f := range FeatureRequirements {
		if IsAuthorized(t, f) {
			features = append(features, f)
		}
	}
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })
	return features
}
