package fraud

import "testing"

func TestRuleScorerCleanAttempt(t *testing.T) {
	f := &RuleFeatures{
		Hour:             14,
		IdentityVerified: true,
		MFAEnabled:       true,
		SessionDuration:  120,
		DistinctIPs:      1,
		DistinctDevices:  1,
	}

	score, details := RuleScorer{}.Score(f)
	if score != 0 {
		t.Errorf("clean attempt scored %f, want 0 (fired: %v)", score, details)
	}
	if len(details) != 0 {
		t.Errorf("clean attempt fired rules: %v", details)
	}
}

func TestRuleScorerAllRulesFired(t *testing.T) {
	f := &RuleFeatures{
		Hour:             3,
		LoginAttemptsDay: 10,
		SessionDuration:  5,
		DistinctIPs:      8,
		DistinctDevices:  6,
		VotesLastHour:    7,
		RapidVoting:      true,
		UnusualHour:      true,
		ShortSession:     true,
	}

	score, details := RuleScorer{}.Score(f)
	if score != 1.0 {
		t.Errorf("all-fired score = %f, want clamped 1.0", score)
	}
	if len(details) != 8 {
		t.Errorf("expected 8 fired rules, got %d: %v", len(details), details)
	}
}

func TestRuleScorerIndividualWeights(t *testing.T) {
	base := RuleFeatures{
		Hour:             14,
		IdentityVerified: true,
		MFAEnabled:       true,
		SessionDuration:  120,
	}

	cases := []struct {
		name   string
		mutate func(*RuleFeatures)
		rule   string
		weight float64
	}{
		{"rapid voting", func(f *RuleFeatures) { f.RapidVoting = true }, "rapid_voting", 0.30},
		{"excessive logins", func(f *RuleFeatures) { f.LoginAttemptsDay = 6 }, "excessive_logins", 0.20},
		{"short session", func(f *RuleFeatures) { f.ShortSession = true }, "short_session", 0.15},
		{"many ips", func(f *RuleFeatures) { f.DistinctIPs = 4 }, "many_ip_addresses", 0.20},
		{"many devices", func(f *RuleFeatures) { f.DistinctDevices = 4 }, "many_devices", 0.15},
		{"mfa disabled", func(f *RuleFeatures) { f.MFAEnabled = false }, "mfa_disabled", 0.10},
		{"identity unverified", func(f *RuleFeatures) { f.IdentityVerified = false }, "identity_unverified", 0.15},
		{"unusual hour", func(f *RuleFeatures) { f.UnusualHour = true }, "unusual_hour", 0.05},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base
			tc.mutate(&f)
			score, details := RuleScorer{}.Score(&f)
			if score != tc.weight {
				t.Errorf("score = %f, want %f", score, tc.weight)
			}
			if details[tc.rule] != tc.weight {
				t.Errorf("details[%s] = %f, want %f", tc.rule, details[tc.rule], tc.weight)
			}
		})
	}
}

func TestRuleScorerZeroValueFeatures(t *testing.T) {
	// A zero vector must not panic and must stay in [0, 1]. Only the two
	// "missing protection" rules fire on an otherwise empty vector.
	score, details := RuleScorer{}.Score(&RuleFeatures{})
	if score < 0 || score > 1 {
		t.Fatalf("score out of range: %f", score)
	}
	if score != 0.25 {
		t.Errorf("zero-value score = %f, want 0.25 (mfa + identity)", score)
	}
	if _, ok := details["mfa_disabled"]; !ok {
		t.Error("expected mfa_disabled to fire")
	}
	if _, ok := details["identity_unverified"]; !ok {
		t.Error("expected identity_unverified to fire")
	}
}
