package fraud

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
)

const historyWindow = 30 * 24 * time.Hour

// ModelFeatureNames is the column order the classifier artifact was trained
// against. The persisted artifact carries its own copy; a loaded model is
// only used when the two lists match.
var ModelFeatureNames = []string{
	"voter_id_hash",
	"age",
	"ip_hash",
	"device_hash",
	"login_attempts",
	"vote_duration_sec",
	"location_match",
	"previous_votes",
}

// ModelFeatures is the fixed vector consumed by the trained classifier.
type ModelFeatures struct {
	VoterIDHash   float64
	Age           float64
	IPHash        float64
	DeviceHash    float64
	LoginAttempts float64
	VoteDuration  float64
	LocationMatch float64 // 1 when the IP appears in history or this is the first attempt
	PreviousVotes float64
}

// Vector returns the features in ModelFeatureNames order.
func (f *ModelFeatures) Vector() []float64 {
	return []float64{
		f.VoterIDHash,
		f.Age,
		f.IPHash,
		f.DeviceHash,
		f.LoginAttempts,
		f.VoteDuration,
		f.LocationMatch,
		f.PreviousVotes,
	}
}

// RuleFeatures is the behavioral vector the rule scorer reads. Missing
// history leaves counts at zero, which never triggers a rule.
type RuleFeatures struct {
	Hour             int
	Weekday          time.Weekday
	Weekend          bool
	AccountAgeDays   float64
	IdentityVerified bool
	MFAEnabled       bool
	LoginAttemptsDay int
	SessionDuration  float64
	PageViews        int
	TimeOnPage       float64
	DistinctIPs      int
	DistinctDevices  int
	MeanVoteInterval float64 // seconds between historical votes
	StdVoteInterval  float64
	VotesLastHour    int

	// Derived anomaly flags.
	RapidVoting  bool // more than 3 votes in the last hour
	UnusualHour  bool // outside 06:00-22:00
	ShortSession bool // under 30s
	LongSession  bool // over 3600s
}

// VoteCounter reports how many votes an account has recorded.
type VoteCounter interface {
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// Extractor builds both feature vectors from an attempt and the account's
// last-30-day behavioral history.
type Extractor struct {
	history behavior.Store
	votes   VoteCounter
	now     func() time.Time
}

// NewExtractor creates a feature extractor.
func NewExtractor(history behavior.Store, votes VoteCounter) *Extractor {
	return &Extractor{history: history, votes: votes, now: time.Now}
}

// Extract derives the model and rule vectors for one vote attempt.
func (x *Extractor) Extract(ctx context.Context, acct *account.Account, attempt *Attempt) (*ModelFeatures, *RuleFeatures, error) {
	at := attempt.At
	if at.IsZero() {
		at = x.now()
	}

	entries, err := x.history.ListByAccount(ctx, acct.ID, at.Add(-historyWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("load behavioral history: %w", err)
	}

	priorVotes, err := x.votes.CountByAccount(ctx, acct.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("count prior votes: %w", err)
	}

	ips := make(map[string]bool)
	devices := make(map[string]bool)
	var loginsToday, votesLastHour int
	var voteTimes []time.Time

	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	hourAgo := at.Add(-time.Hour)

	for _, e := range entries {
		if ip := e.String("ip_address"); ip != "" {
			ips[ip] = true
		}
		if dev := e.String("device_fingerprint"); dev != "" {
			devices[dev] = true
		}
		switch e.Action {
		case behavior.ActionLogin:
			if !e.CreatedAt.Before(dayStart) {
				loginsToday++
			}
		case behavior.ActionCastVote:
			voteTimes = append(voteTimes, e.CreatedAt)
			if e.CreatedAt.After(hourAgo) {
				votesLastHour++
			}
		}
	}

	locationMatch := 0.0
	if ips[attempt.IPAddress] || len(entries) == 0 {
		locationMatch = 1.0
	}

	// Count the current attempt's fingerprints too.
	if attempt.IPAddress != "" {
		ips[attempt.IPAddress] = true
	}
	if attempt.DeviceFingerprint != "" {
		devices[attempt.DeviceFingerprint] = true
	}

	mean, std := voteIntervalStats(voteTimes)

	mf := &ModelFeatures{
		VoterIDHash:   featureHash(acct.ID),
		Age:           float64(acct.Age(at)),
		IPHash:        featureHash(attempt.IPAddress),
		DeviceHash:    featureHash(attempt.DeviceFingerprint),
		LoginAttempts: float64(loginsToday),
		VoteDuration:  attempt.SessionDuration,
		LocationMatch: locationMatch,
		PreviousVotes: float64(priorVotes),
	}

	rf := &RuleFeatures{
		Hour:             at.Hour(),
		Weekday:          at.Weekday(),
		Weekend:          at.Weekday() == time.Saturday || at.Weekday() == time.Sunday,
		AccountAgeDays:   float64(acct.AgeDays(at)),
		IdentityVerified: acct.IdentityVerified,
		MFAEnabled:       acct.MFAEnabled,
		LoginAttemptsDay: loginsToday,
		SessionDuration:  attempt.SessionDuration,
		PageViews:        attempt.PageViews,
		TimeOnPage:       attempt.TimeOnPage,
		DistinctIPs:      len(ips),
		DistinctDevices:  len(devices),
		MeanVoteInterval: mean,
		StdVoteInterval:  std,
		VotesLastHour:    votesLastHour,
		RapidVoting:      votesLastHour > 3,
		UnusualHour:      at.Hour() < 6 || at.Hour() >= 22,
		ShortSession:     attempt.SessionDuration > 0 && attempt.SessionDuration < 30,
		LongSession:      attempt.SessionDuration > 3600,
	}

	return mf, rf, nil
}

// featureHash maps an identifier into [0, 1e8) the way the training
// pipeline did. Empty strings hash to 0 rather than a sentinel bucket.
func featureHash(s string) float64 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32() % 100_000_000)
}

// voteIntervalStats returns the mean and stddev in seconds of the gaps
// between successive historical votes. Fewer than two votes yields zeros.
func voteIntervalStats(times []time.Time) (mean, std float64) {
	if len(times) < 2 {
		return 0, 0
	}
	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	for _, g := range gaps {
		std += (g - mean) * (g - mean)
	}
	std = math.Sqrt(std / float64(len(gaps)))
	return mean, std
}
