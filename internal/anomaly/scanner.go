package anomaly

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/idgen"
	"github.com/electio/votegate/internal/metrics"
	"github.com/electio/votegate/internal/realtime"
)

const (
	DefaultMinEntries    = 10
	DefaultContamination = 0.05
	DefaultBatchLimit    = 5000
)

// Scanner runs outlier detection over the behavioral log.
type Scanner struct {
	logs   behavior.Store
	store  Store
	hub    *realtime.Hub
	logger *slog.Logger

	minEntries    int
	contamination float64
	batchLimit    int
	running       atomic.Bool
	now           func() time.Time
}

// NewScanner creates a scanner. store and hub may be nil.
func NewScanner(logs behavior.Store, store Store, hub *realtime.Hub, logger *slog.Logger) *Scanner {
	return &Scanner{
		logs:          logs,
		store:         store,
		hub:           hub,
		logger:        logger,
		minEntries:    DefaultMinEntries,
		contamination: DefaultContamination,
		batchLimit:    DefaultBatchLimit,
		now:           time.Now,
	}
}

// WithMinEntries overrides the minimum pool size per action group.
func (s *Scanner) WithMinEntries(n int) *Scanner {
	s.minEntries = n
	return s
}

// WithContamination overrides the expected outlier fraction.
func (s *Scanner) WithContamination(c float64) *Scanner {
	s.contamination = c
	return s
}

// Scan reads a snapshot of recent log entries, flags outliers, and persists
// the result. Only one scan runs at a time; flags set by earlier scans are
// never rescinded.
func (s *Scanner) Scan(ctx context.Context, trigger string) (*ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanRunning
	}
	defer s.running.Store(false)

	started := s.now()
	entries, err := s.logs.ListRecent(ctx, s.batchLimit)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*behavior.Entry)
	for _, e := range entries {
		switch e.Action {
		case behavior.ActionLogin, behavior.ActionCastVote, behavior.ActionIdentityCheck:
			groups[e.Action] = append(groups[e.Action], e)
		}
	}

	result := &ScanResult{
		ID:        idgen.WithPrefix("scan_"),
		Trigger:   trigger,
		StartedAt: started,
	}

	for action, group := range groups {
		if len(group) < s.minEntries {
			s.logger.Info("skipping action group below minimum pool size",
				"action", action, "entries", len(group), "min", s.minEntries)
			continue
		}
		result.Analyzed += len(group)
		result.FlaggedIDs = append(result.FlaggedIDs, s.detect(group)...)
	}

	if result.Analyzed == 0 {
		result.Result = ResultInsufficientData
		result.CompletedAt = s.now()
		metrics.AnomalyScansTotal.WithLabelValues(ResultInsufficientData).Inc()
		s.record(ctx, result)
		return result, nil
	}

	if len(result.FlaggedIDs) > 0 {
		if err := s.logs.MarkFlagged(ctx, result.FlaggedIDs); err != nil {
			return nil, err
		}
		metrics.AnomaliesFlaggedTotal.Add(float64(len(result.FlaggedIDs)))
	}

	result.Result = ResultCompleted
	result.CompletedAt = s.now()
	metrics.AnomalyScansTotal.WithLabelValues(ResultCompleted).Inc()

	s.logger.Info("anomaly scan completed",
		"scan_id", result.ID,
		"trigger", trigger,
		"analyzed", result.Analyzed,
		"flagged", len(result.FlaggedIDs),
		"duration", result.CompletedAt.Sub(started))

	s.record(ctx, result)
	s.broadcast(result)
	return result, nil
}

// Running reports whether a scan is in progress.
func (s *Scanner) Running() bool {
	return s.running.Load()
}

// detect featurizes one action group and returns the ids of the most
// anomalous entries.
func (s *Scanner) detect(group []*behavior.Entry) []string {
	rows := make([][]float64, len(group))
	for i, e := range group {
		rows[i] = featurize(e)
	}
	normalize(rows)

	// Seeded per batch so a rerun over the same snapshot flags the same
	// entries.
	forest := buildForest(rand.New(rand.NewSource(int64(len(rows)))), rows)

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(rows))
	for i, row := range rows {
		scores[i] = scored{idx: i, score: forest.score(row)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	k := int(math.Round(s.contamination * float64(len(rows))))
	if k < 1 {
		k = 1
	}

	ids := make([]string, 0, k)
	for _, sc := range scores[:k] {
		ids = append(ids, group[sc.idx].ID)
	}
	return ids
}

// featurize builds the per-action feature vector.
func featurize(e *behavior.Entry) []float64 {
	switch e.Action {
	case behavior.ActionLogin:
		return []float64{
			float64(e.CreatedAt.Hour()),
			e.Float("session_duration", 0),
		}
	case behavior.ActionCastVote:
		return []float64{
			e.Float("time_spent", 0),
			e.Float("page_views", 0),
			e.Float("session_duration", 0),
		}
	case behavior.ActionIdentityCheck:
		return []float64{
			e.Float("verification_time", 0),
			e.Float("face_distance", 0),
		}
	default:
		return []float64{0}
	}
}

// normalize z-scores each column in place. A zero-variance column becomes
// all zeros instead of NaN.
func normalize(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	for c := 0; c < cols; c++ {
		var mean float64
		for _, r := range rows {
			mean += r[c]
		}
		mean /= float64(len(rows))

		var variance float64
		for _, r := range rows {
			variance += (r[c] - mean) * (r[c] - mean)
		}
		std := math.Sqrt(variance / float64(len(rows)))

		for _, r := range rows {
			if std == 0 {
				r[c] = 0
				continue
			}
			r[c] = (r[c] - mean) / std
		}
	}
}

func (s *Scanner) record(ctx context.Context, r *ScanResult) {
	if s.store == nil {
		return
	}
	if err := s.store.Record(ctx, r); err != nil {
		s.logger.Warn("failed to persist scan result", "scan_id", r.ID, "error", err)
	}
}

func (s *Scanner) broadcast(r *ScanResult) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventScanCompleted,
		Timestamp: r.CompletedAt,
		Data: map[string]interface{}{
			"scanId":   r.ID,
			"trigger":  r.Trigger,
			"result":   r.Result,
			"analyzed": r.Analyzed,
			"flagged":  len(r.FlaggedIDs),
		},
	})
	for _, id := range r.FlaggedIDs {
		s.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventAnomalyFlagged,
			Timestamp: r.CompletedAt,
			Data:      map[string]interface{}{"entryId": id, "scanId": r.ID},
		})
	}
}
