package fraud

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/electio/votegate/internal/metrics"
)

// Model is a trained decision forest persisted as a JSON artifact together
// with the ordered feature list it was trained against. Instances are
// immutable once loaded; retraining replaces the whole artifact.
type Model struct {
	Version   int       `json:"version"`
	TrainedAt time.Time `json:"trainedAt"`
	Features  []string  `json:"features"`
	Trees     []Tree    `json:"trees"`
}

// Tree is one estimator of the forest, stored as a flat node array with
// index 0 as the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a binary split or, when Left is -1, a leaf holding the
// positive-class probability for samples that reach it.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Predict averages each tree's leaf probability for the vector.
func (m *Model) Predict(vector []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].predict(vector)
	}
	p := sum / float64(len(m.Trees))
	return math.Min(math.Max(p, 0), 1)
}

func (t *Tree) predict(vector []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if vector[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (m *Model) validate() error {
	if len(m.Features) != len(ModelFeatureNames) {
		return fmt.Errorf("artifact has %d features, expected %d", len(m.Features), len(ModelFeatureNames))
	}
	for i, name := range ModelFeatureNames {
		if m.Features[i] != name {
			return fmt.Errorf("feature %d is %q, expected %q", i, m.Features[i], name)
		}
	}
	if len(m.Trees) == 0 {
		return errors.New("artifact has no trees")
	}
	for ti, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= len(m.Features) {
				return fmt.Errorf("tree %d node %d references feature %d", ti, ni, n.Feature)
			}
			if n.Left >= len(tree.Nodes) || n.Right < 0 || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has out-of-range children", ti, ni)
			}
		}
	}
	return nil
}

// ModelScorer serves predictions from the artifact on disk. The loaded model
// is held behind an atomic pointer: requests read it lock-free, reloads swap
// it whole. A missing or invalid artifact just means the scorer reports not
// ready and the rule fallback carries the traffic.
type ModelScorer struct {
	path   string
	model  atomic.Pointer[Model]
	logger *slog.Logger
}

// NewModelScorer creates a scorer reading its artifact from path.
// Call TryLoad to actually load it.
func NewModelScorer(path string, logger *slog.Logger) *ModelScorer {
	return &ModelScorer{path: path, logger: logger}
}

// TryLoad reads, validates, and swaps in the artifact. Best-effort: callers
// treat an error as "keep whatever was loaded before".
func (s *ModelScorer) TryLoad() error {
	if s.path == "" {
		return errors.New("no model path configured")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read model artifact: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse model artifact: %w", err)
	}
	if err := m.validate(); err != nil {
		return fmt.Errorf("invalid model artifact: %w", err)
	}
	s.model.Store(&m)
	metrics.ModelLoaded.Set(1)
	if s.logger != nil {
		s.logger.Info("classifier artifact loaded",
			"path", s.path,
			"version", m.Version,
			"trees", len(m.Trees))
	}
	return nil
}

// Save validates the artifact, writes it to the configured path, and swaps
// it in as the serving model. Training happens out of process; this is the
// ingest side for a retrained forest. The write goes through a temp file and
// rename so a concurrent TryLoad never sees a half-written artifact.
func (s *ModelScorer) Save(m *Model) error {
	if s.path == "" {
		return errors.New("no model path configured")
	}
	if err := m.validate(); err != nil {
		return fmt.Errorf("invalid model artifact: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace model artifact: %w", err)
	}
	s.model.Store(m)
	metrics.ModelLoaded.Set(1)
	if s.logger != nil {
		s.logger.Info("classifier artifact saved",
			"path", s.path,
			"version", m.Version,
			"trees", len(m.Trees))
	}
	return nil
}

// Ready reports whether a model is loaded.
func (s *ModelScorer) Ready() bool {
	return s.model.Load() != nil
}

// Score runs the loaded model over the feature vector. Details records the
// feature values the model saw, keyed by feature name.
func (s *ModelScorer) Score(f *ModelFeatures) (float64, map[string]float64, error) {
	m := s.model.Load()
	if m == nil {
		return 0, nil, errors.New("model not loaded")
	}
	vector := f.Vector()
	details := make(map[string]float64, len(vector))
	for i, name := range m.Features {
		details[name] = vector[i]
	}
	p := m.Predict(vector)
	return math.Round(p*1000) / 1000, details, nil
}
