package fraud

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/idgen"
	"github.com/electio/votegate/internal/metrics"
)

// Engine runs the full risk pipeline for one vote attempt: feature
// extraction, scoring, and the decision gate.
type Engine struct {
	extractor *Extractor
	model     *ModelScorer
	rules     RuleScorer
	store     Store
	logger    *slog.Logger

	reviewThreshold float64
	blockThreshold  float64
	firstVoteCap    float64
	now             func() time.Time
}

// NewEngine creates a risk engine backed by the given audit store.
// model may be nil; the rule scorer then carries all traffic.
func NewEngine(extractor *Extractor, model *ModelScorer, store Store, logger *slog.Logger) *Engine {
	return &Engine{
		extractor:       extractor,
		model:           model,
		store:           store,
		logger:          logger,
		reviewThreshold: DefaultReviewThreshold,
		blockThreshold:  DefaultBlockThreshold,
		firstVoteCap:    FirstVoteCap,
		now:             time.Now,
	}
}

// WithReviewThreshold overrides the default review threshold.
func (e *Engine) WithReviewThreshold(t float64) *Engine {
	e.reviewThreshold = t
	return e
}

// WithBlockThreshold overrides the default block threshold.
func (e *Engine) WithBlockThreshold(t float64) *Engine {
	e.blockThreshold = t
	return e
}

// WithFirstVoteCap overrides the first-vote probability ceiling.
func (e *Engine) WithFirstVoteCap(c float64) *Engine {
	e.firstVoteCap = c
	return e
}

// Assess scores a vote attempt and returns the gate's verdict. The
// assessment is persisted asynchronously as an audit record; a storage
// failure never blocks the vote path.
func (e *Engine) Assess(ctx context.Context, acct *account.Account, attempt *Attempt) (*Assessment, error) {
	mf, rf, err := e.extractor.Extract(ctx, acct, attempt)
	if err != nil {
		return nil, err
	}

	probability, details, scorer := e.score(mf, rf)
	tier, action := e.decide(probability)

	firstVote := mf.PreviousVotes == 0
	if firstVote {
		// A voter with no history is never blocked by the scorer.
		tier, action = TierLow, ActionAllow
		if probability > e.firstVoteCap {
			probability = e.firstVoteCap
		}
	}

	assessment := &Assessment{
		ID:          idgen.WithPrefix("fraud_"),
		AccountID:   acct.ID,
		ElectionID:  attempt.ElectionID,
		Probability: math.Round(probability*1000) / 1000,
		Tier:        tier,
		Action:      action,
		Scorer:      scorer,
		Details:     details,
		FirstVote:   firstVote,
		EvaluatedAt: e.now(),
	}

	metrics.RiskScore.Observe(assessment.Probability)
	metrics.RiskDecisionsTotal.WithLabelValues(string(tier)).Inc()

	if e.store != nil {
		go func() {
			_ = e.store.Record(context.Background(), assessment)
		}()
	}

	return assessment, nil
}

// score prefers the classifier and falls back to rules on any model failure.
// The fallback never fails, so score never does either.
func (e *Engine) score(mf *ModelFeatures, rf *RuleFeatures) (float64, map[string]float64, string) {
	if e.model != nil && e.model.Ready() {
		p, details, err := e.model.Score(mf)
		if err == nil {
			return p, details, ScorerModel
		}
		if e.logger != nil {
			e.logger.Warn("model scoring failed, falling back to rules", "error", err)
		}
	}
	p, details := e.rules.Score(rf)
	return p, details, ScorerRules
}

// decide maps a probability to a tier and action. Pure step function.
func (e *Engine) decide(p float64) (Tier, Action) {
	switch {
	case p >= e.blockThreshold:
		return TierHigh, ActionBlock
	case p >= e.reviewThreshold:
		return TierMedium, ActionReview
	default:
		return TierLow, ActionAllow
	}
}
