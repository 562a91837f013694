package bench

import (
	"sort"
)

// treeNode is one node of a fitted regression tree. Internal nodes route on
// feature <= threshold; leaves carry the mean target of their samples.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

type treeParams struct {
	maxDepth int // Leaves sit at most this deep below the root
	minSplit int // Nodes with fewer samples become leaves
}

// fitTree grows a regression tree by greedy variance reduction over the
// sampled row indexes. importance accumulates the squared-error reduction
// each feature's splits achieve, for ensemble-level feature ranking.
func fitTree(X [][]float64, y []float64, idx []int, params treeParams, importance []float64) *treeNode {
	return growNode(X, y, idx, 0, params, importance)
}

func growNode(X [][]float64, y []float64, idx []int, depth int, params treeParams, importance []float64) *treeNode {
	sum := 0.0
	sumSq := 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	node := &treeNode{value: sum / n, leaf: true}

	sse := sumSq - sum*sum/n
	if depth >= params.maxDepth || len(idx) < params.minSplit || sse <= 1e-12 {
		return node
	}

	feature, threshold, gain, ok := bestSplit(X, y, idx, sum, sumSq, sse)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}

	importance[feature] += gain
	node.leaf = false
	node.feature = feature
	node.threshold = threshold
	node.left = growNode(X, y, left, depth+1, params, importance)
	node.right = growNode(X, y, right, depth+1, params, importance)
	return node
}

// bestSplit scans every feature for the threshold with the largest
// squared-error reduction. Ties keep the first candidate in feature-then-
// threshold order, and value ties in the sort are broken by row index, so
// the chosen split is a pure function of the inputs.
func bestSplit(X [][]float64, y []float64, idx []int, totalSum, totalSq, parentSSE float64) (int, float64, float64, bool) {
	nFeatures := len(X[idx[0]])
	n := len(idx)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	order := make([]int, n)
	for f := 0; f < nFeatures; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			va, vb := X[order[a]][f], X[order[b]][f]
			if va != vb {
				return va < vb
			}
			return order[a] < order[b]
		})

		leftSum := 0.0
		leftSq := 0.0
		for k := 0; k < n-1; k++ {
			yv := y[order[k]]
			leftSum += yv
			leftSq += yv * yv

			if X[order[k]][f] == X[order[k+1]][f] {
				continue
			}

			nl := float64(k + 1)
			nr := float64(n - k - 1)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sseLeft := leftSq - leftSum*leftSum/nl
			sseRight := rightSq - rightSum*rightSum/nr

			gain := parentSSE - sseLeft - sseRight
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = (X[order[k]][f] + X[order[k+1]][f]) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

// predict routes an observation to its leaf
func (t *treeNode) predict(x []float64) float64 {
	node := t
	for !node.leaf {
		if x[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}
