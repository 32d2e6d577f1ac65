package entities

import "strconv"

const (
	// TagNewbie is applied to every user on first contact
	TagNewbie = "newbie"

	// TagActiveReferrer is applied to a user whose invitation was accepted
	TagActiveReferrer = "active_referrer"

	// TagOneRefToGift marks users that need exactly one more referral
	TagOneRefToGift = "one_ref_to_gift"

	rewardTagPrefix = "lead_magnet_"
)

// RewardTag is the tag applied once the lead magnet has been delivered to a user.
func RewardTag(leadMagnetID int64) string {
	return rewardTagPrefix + strconv.FormatInt(leadMagnetID, 10)
}

// ConfigRequiredReferrals is the config key holding the referral threshold.
const ConfigRequiredReferrals = "required_referrals"
