package models

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	dommodels "EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	"EthCast/internal/services/features"
	"EthCast/pkg/config"
)

const NameRandomForest = "random_forest"

// RandomForest bags variance-reduction regression trees over the indicator
// feature vectors. Each configured horizon gets its own forest trained
// against the close that many steps ahead, so longer horizons learn their
// own feature-to-price mapping instead of compounding one-step errors.
// Deterministic for a fixed seed.
type RandomForest struct {
	window     int
	estimators int
	maxDepth   int
	minLeaf    int
	seed       int64
	minSamples int
	columns    []string

	forests map[int]*forest
	latest  []float64
	score   float64
}

var _ domsvc.Regressor = (*RandomForest)(nil)

func NewRandomForest(cfg *config.Config) *RandomForest {
	return &RandomForest{
		window:     cfg.Forecast.FeatureWindow,
		estimators: cfg.Forecast.ForestEstimators,
		maxDepth:   cfg.Forecast.ForestMaxDepth,
		minLeaf:    cfg.Forecast.ForestMinLeaf,
		seed:       cfg.Forecast.ForestSeed,
		minSamples: cfg.Forecast.MinSamples,
		columns:    features.ModelColumns(),
	}
}

func (m *RandomForest) Name() string {
	return NameRandomForest
}

func (m *RandomForest) Fit(ctx context.Context, set *domsvc.TrainingSet) error {
	if set.Frame == nil || set.Frame.Len() == 0 {
		return &dommodels.ModelFitError{Model: m.Name(), Err: fmt.Errorf("empty feature frame")}
	}
	if len(set.Closes) != set.Frame.Len() {
		return &dommodels.ModelFitError{
			Model: m.Name(),
			Err:   fmt.Errorf("closes length %d does not match frame length %d", len(set.Closes), set.Frame.Len()),
		}
	}

	x := set.Frame.Matrix(m.columns)
	closes := set.Closes
	if len(x) > m.window {
		x = x[len(x)-m.window:]
		closes = closes[len(closes)-m.window:]
	}
	m.latest = x[len(x)-1]

	forests := make(map[int]*forest, len(set.Horizons))
	var scoreSum float64
	var scored int
	for hIdx, horizon := range set.Horizons {
		steps := horizon.Steps(set.Interval)
		if steps < 1 {
			return &dommodels.ModelFitError{
				Model: m.Name(),
				Err:   fmt.Errorf("horizon %s shorter than candle interval", horizon.Label()),
			}
		}
		if _, ok := forests[steps]; ok {
			continue
		}

		pairs := len(x) - steps
		if pairs < m.minSamples {
			return &dommodels.ModelFitError{
				Model: m.Name(),
				Err:   &dommodels.InsufficientHistoryError{Need: m.minSamples + steps, Got: len(x)},
			}
		}
		targets := closes[steps:]

		trainLen := pairs - set.Holdout
		if trainLen < 2*m.minLeaf {
			return &dommodels.ModelFitError{
				Model: m.Name(),
				Err:   fmt.Errorf("holdout %d leaves %d pairs for horizon %s", set.Holdout, trainLen, horizon.Label()),
			}
		}

		// Temporal split: score against the most recent pairs, which were
		// never sampled during the scoring fit.
		seed := m.seed + int64(hIdx)*1009
		scoring, err := m.grow(ctx, x[:trainLen], targets[:trainLen], seed)
		if err != nil {
			return &dommodels.ModelFitError{Model: m.Name(), Err: err}
		}
		predicted := make([]float64, pairs-trainLen)
		for i := range predicted {
			predicted[i] = scoring.predict(x[trainLen+i])
		}
		scoreSum += rSquared(targets[trainLen:pairs], predicted)
		scored++

		production, err := m.grow(ctx, x[:pairs], targets[:pairs], seed)
		if err != nil {
			return &dommodels.ModelFitError{Model: m.Name(), Err: err}
		}
		forests[steps] = production
	}

	if scored == 0 {
		return &dommodels.ModelFitError{Model: m.Name(), Err: fmt.Errorf("no horizons to train")}
	}
	m.forests = forests
	m.score = scoreSum / float64(scored)
	return nil
}

func (m *RandomForest) Forecast(steps int) (float64, error) {
	if m.forests == nil {
		return 0, fmt.Errorf("random forest not fitted")
	}
	f, ok := m.forests[steps]
	if !ok {
		return 0, fmt.Errorf("no forest trained for %d steps", steps)
	}
	return f.predict(m.latest), nil
}

func (m *RandomForest) Score() float64 {
	return m.score
}

func (m *RandomForest) grow(ctx context.Context, x [][]float64, y []float64, seed int64) (*forest, error) {
	rng := rand.New(rand.NewSource(seed))
	trees := make([]*treeNode, 0, m.estimators)
	sample := make([]int, len(y))
	for t := 0; t < m.estimators; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range sample {
			sample[i] = rng.Intn(len(y))
		}
		trees = append(trees, buildTree(x, y, sample, 0, m.maxDepth, m.minLeaf))
	}
	return &forest{trees: trees}, nil
}

type forest struct {
	trees []*treeNode
}

func (f *forest) predict(x []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees))
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// buildTree grows a regression tree greedily, choosing at each node the
// feature/threshold split with the largest reduction in the sum of squared
// deviations.
func buildTree(x [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf int) *treeNode {
	mean, ss := meanAndSS(y, idx)
	if depth >= maxDepth || len(idx) < 2*minLeaf || ss < 1e-12 {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, ok := bestSplit(x, y, idx, ss, minLeaf)
	if !ok {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < minLeaf || len(right) < minLeaf {
		return &treeNode{leaf: true, value: mean}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      buildTree(x, y, left, depth+1, maxDepth, minLeaf),
		right:     buildTree(x, y, right, depth+1, maxDepth, minLeaf),
	}
}

type splitPoint struct {
	value  float64
	target float64
}

// bestSplit scans every feature with prefix sums over value-sorted targets.
// Returns ok=false when no split beats the parent node.
func bestSplit(x [][]float64, y []float64, idx []int, parentSS float64, minLeaf int) (int, float64, bool) {
	nFeatures := len(x[idx[0]])
	points := make([]splitPoint, len(idx))

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0

	for f := 0; f < nFeatures; f++ {
		for i, id := range idx {
			points[i] = splitPoint{value: x[id][f], target: y[id]}
		}
		sort.Slice(points, func(a, b int) bool { return points[a].value < points[b].value })

		var totalSum, totalSum2 float64
		for _, p := range points {
			totalSum += p.target
			totalSum2 += p.target * p.target
		}

		var leftSum, leftSum2 float64
		n := len(points)
		for s := 1; s < n; s++ {
			p := points[s-1]
			leftSum += p.target
			leftSum2 += p.target * p.target
			if s < minLeaf || n-s < minLeaf {
				continue
			}
			if points[s-1].value == points[s].value {
				continue
			}

			nl, nr := float64(s), float64(n-s)
			rightSum := totalSum - leftSum
			rightSum2 := totalSum2 - leftSum2
			childSS := (leftSum2 - leftSum*leftSum/nl) + (rightSum2 - rightSum*rightSum/nr)
			if gain := parentSS - childSS; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (points[s-1].value + points[s].value) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func meanAndSS(y []float64, idx []int) (mean, ss float64) {
	var sum, sum2 float64
	for _, i := range idx {
		sum += y[i]
		sum2 += y[i] * y[i]
	}
	n := float64(len(idx))
	mean = sum / n
	ss = sum2 - sum*sum/n
	if ss < 0 {
		ss = 0
	}
	return mean, ss
}
