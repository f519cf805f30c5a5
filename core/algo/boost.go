package algo

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
)

// Loss selects the objective optimized by the booster.
type Loss int

const (
	// SquaredLoss fits real-valued targets.
	SquaredLoss Loss = iota
	// LogLoss fits binary 0/1 targets; predictions are log-odds.
	LogLoss
)

// BoostParams configures gradient boosting.
type BoostParams struct {
	Trees        int
	Depth        int
	LearningRate float64
	Lambda       float64 // L2 regularization on leaf weights
	MinLeaf      int     // minimum samples per leaf
	Loss         Loss
}

// DefaultBoostParams returns 200 trees of depth 3 with learning rate 0.1.
func DefaultBoostParams() BoostParams {
	return BoostParams{Trees: 200, Depth: 3, LearningRate: 0.1, Lambda: 1.0, MinLeaf: 2}
}

// node is either a split or a leaf of a regression tree.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	leaf      bool
	weight    float64
}

func (n *node) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.weight
}

// Booster is an ensemble of regression trees fitted on gradients and hessians.
type Booster struct {
	params   BoostParams
	base     float64
	trees    []*node
	features int
}

var errEmptyTraining = errors.New("empty training set")

// FitBooster trains a booster on rows x with targets y.
func FitBooster(x [][]float64, y []float64, params BoostParams) (*Booster, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errEmptyTraining
	}
	if params.Trees <= 0 || params.Depth <= 0 || params.LearningRate <= 0 {
		return nil, errors.Newf("invalid boosting parameters %+v", params)
	}
	params.MinLeaf = max(1, params.MinLeaf)
	features := len(x[0])
	for i, row := range x {
		if len(row) != features {
			return nil, errors.Newf("row %d has %d features, expected %d", i, len(row), features)
		}
	}

	b := &Booster{params: params, features: features, base: baseScore(y, params.Loss)}
	raw := make([]float64, len(y))
	for i := range raw {
		raw[i] = b.base
	}

	grad := make([]float64, len(y))
	hess := make([]float64, len(y))
	idx := make([]int, len(y))
	for t := 0; t < params.Trees; t++ {
		for i := range y {
			grad[i], hess[i] = gradients(raw[i], y[i], params.Loss)
			idx[i] = i
		}
		tree := b.grow(x, grad, hess, idx, 0)
		b.trees = append(b.trees, tree)
		for i, row := range x {
			raw[i] += params.LearningRate * tree.predict(row)
		}
	}

	if !Finite(raw...) {
		return nil, errors.New("boosting diverged to non-finite values")
	}
	return b, nil
}

// Raw returns the untransformed ensemble output for a row.
func (b *Booster) Raw(row []float64) float64 {
	out := b.base
	for _, t := range b.trees {
		out += b.params.LearningRate * t.predict(row)
	}
	return out
}

// Predict returns the prediction for a row: the value for squared loss, the
// probability of the positive class for log loss.
func (b *Booster) Predict(row []float64) float64 {
	if b.params.Loss == LogLoss {
		return Sigmoid(b.Raw(row))
	}
	return b.Raw(row)
}

// Features returns the number of columns the booster was trained on.
func (b *Booster) Features() int {
	return b.features
}

func baseScore(y []float64, loss Loss) float64 {
	m := Mean(y)
	if loss == LogLoss {
		p := max(1e-6, min(1-1e-6, m))
		return math.Log(p / (1 - p))
	}
	return m
}

func gradients(raw, target float64, loss Loss) (float64, float64) {
	if loss == LogLoss {
		p := Sigmoid(raw)
		return p - target, max(p*(1-p), 1e-12)
	}
	return raw - target, 1
}

// grow builds a tree greedily, choosing the split with the largest regularized gain.
func (b *Booster) grow(x [][]float64, grad, hess []float64, idx []int, depth int) *node {
	var g, h float64
	for _, i := range idx {
		g += grad[i]
		h += hess[i]
	}
	leaf := &node{leaf: true, weight: -g / (h + b.params.Lambda)}
	if depth >= b.params.Depth || len(idx) < 2*b.params.MinLeaf {
		return leaf
	}

	parentScore := g * g / (h + b.params.Lambda)
	bestGain := 1e-12
	bestFeature, bestPos := -1, 0
	var bestThreshold float64

	order := make([]int, len(idx))
	for f := 0; f < b.features; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(i, j int) bool { return x[order[i]][f] < x[order[j]][f] })

		var gl, hl float64
		for pos := 0; pos < len(order)-1; pos++ {
			i := order[pos]
			gl += grad[i]
			hl += hess[i]
			cur, next := x[i][f], x[order[pos+1]][f]
			if cur == next || pos+1 < b.params.MinLeaf || len(order)-pos-1 < b.params.MinLeaf {
				continue
			}
			gr, hr := g-gl, h-hl
			gain := gl*gl/(hl+b.params.Lambda) + gr*gr/(hr+b.params.Lambda) - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				bestPos = pos + 1
			}
		}
	}
	if bestFeature < 0 {
		return leaf
	}

	copy(order, idx)
	sort.SliceStable(order, func(i, j int) bool { return x[order[i]][bestFeature] < x[order[j]][bestFeature] })
	left := append([]int(nil), order[:bestPos]...)
	right := append([]int(nil), order[bestPos:]...)
	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      b.grow(x, grad, hess, left, depth+1),
		right:     b.grow(x, grad, hess, right, depth+1),
	}
}
