package anomaly

import (
	"math"
	"math/rand"
)

const (
	numTrees      = 100
	maxSampleSize = 256
)

// isolationForest is an unsupervised outlier detector: points that isolate
// in few random splits get scores near 1, dense-cluster points near 0.5 or
// below.
type isolationForest struct {
	trees      []*isoNode
	sampleSize int
}

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int // leaf only
}

// buildForest fits trees on random subsamples of the rows. The caller seeds
// rng, which makes a scan reproducible for a given batch.
func buildForest(rng *rand.Rand, rows [][]float64) *isolationForest {
	sampleSize := len(rows)
	if sampleSize > maxSampleSize {
		sampleSize = maxSampleSize
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	f := &isolationForest{sampleSize: sampleSize}
	for i := 0; i < numTrees; i++ {
		sample := make([][]float64, sampleSize)
		for j := range sample {
			sample[j] = rows[rng.Intn(len(rows))]
		}
		f.trees = append(f.trees, buildTree(rng, sample, 0, maxDepth))
	}
	return f
}

func buildTree(rng *rand.Rand, rows [][]float64, depth, maxDepth int) *isoNode {
	if depth >= maxDepth || len(rows) <= 1 {
		return &isoNode{size: len(rows)}
	}

	feature := rng.Intn(len(rows[0]))
	lo, hi := rows[0][feature], rows[0][feature]
	for _, r := range rows {
		if r[feature] < lo {
			lo = r[feature]
		}
		if r[feature] > hi {
			hi = r[feature]
		}
	}
	if lo == hi {
		return &isoNode{size: len(rows)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(rows)}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildTree(rng, left, depth+1, maxDepth),
		right:   buildTree(rng, right, depth+1, maxDepth),
	}
}

// score returns the anomaly score in (0, 1] for one row.
func (f *isolationForest) score(row []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/avgPathLength(f.sampleSize))
}

func pathLength(n *isoNode, row []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + avgPathLength(n.size)
	}
	if row[n.feature] < n.split {
		return pathLength(n.left, row, depth+1)
	}
	return pathLength(n.right, row, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST search
// over n points, the standard normalizer for isolation forests.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerGamma = 0.5772156649
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
