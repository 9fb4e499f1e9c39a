package gateway

import "time"

// PlanCredits is the baseline credit grant per plan, applied on every reset.
var PlanCredits = map[Plan]int64{
	PlanFree:        125_000,
	PlanEconomy:     650_000,
	PlanBasic:       1_000_000,
	PlanPremium:     4_250_000,
	PlanContributor: 5_000_000,
	PlanPro:         8_500_000,
	PlanUltra:       12_500_000,
	PlanEnterprise:  80_000_000,
	PlanAdmin:       1_000_000_000_000_000,
}

// RPBonusCredits is added on reset for verified users whose bonus window is
// still open (RPVerified && RPBonusTokensExpires > now).
const RPBonusCredits int64 = 50_000

// CreditResetInterval is the minimum age of a balance before the daily reset
// cron refreshes it.
const CreditResetInterval = 24 * time.Hour

// ResetCredits returns the balance the user receives on a reset at the given
// instant: the plan baseline plus the verified-user bonus when applicable.
func ResetCredits(u *User, now time.Time) int64 {
	base := PlanCredits[u.Plan]
	if u.RPVerified && u.RPBonusTokensExpires != nil && u.RPBonusTokensExpires.After(now) {
		base += RPBonusCredits
	}
	return base
}
