package fraud

import "math"

// Rule weights. Tuned against the same labeled history the classifier was
// trained on; the sum of any realistic combination stays near [0, 1] and is
// clamped regardless.
const (
	weightRapidVoting  = 0.30
	weightManyLogins   = 0.20
	weightShortSession = 0.15
	weightManyIPs      = 0.20
	weightManyDevices  = 0.15
	weightNoMFA        = 0.10
	weightNotVerified  = 0.15
	weightUnusualHour  = 0.05
)

// RuleScorer is the deterministic fallback scorer. It only reads fields of
// RuleFeatures, treats zero values as non-triggering, and cannot fail.
type RuleScorer struct{}

// Score sums the weights of every fired rule and clamps to [0, 1].
// Details records the fired conditions and their weights.
func (RuleScorer) Score(f *RuleFeatures) (float64, map[string]float64) {
	details := make(map[string]float64)

	if f.RapidVoting {
		details["rapid_voting"] = weightRapidVoting
	}
	if f.LoginAttemptsDay > 5 {
		details["excessive_logins"] = weightManyLogins
	}
	if f.ShortSession {
		details["short_session"] = weightShortSession
	}
	if f.DistinctIPs > 3 {
		details["many_ip_addresses"] = weightManyIPs
	}
	if f.DistinctDevices > 3 {
		details["many_devices"] = weightManyDevices
	}
	if !f.MFAEnabled {
		details["mfa_disabled"] = weightNoMFA
	}
	if !f.IdentityVerified {
		details["identity_unverified"] = weightNotVerified
	}
	if f.UnusualHour {
		details["unusual_hour"] = weightUnusualHour
	}

	var score float64
	for _, w := range details {
		score += w
	}
	score = math.Min(math.Max(score, 0), 1)
	return math.Round(score*1000) / 1000, details
}
