package bench

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/ternarybob/auspex/internal/models"
)

// FitError reports a learned model that could not be fitted. The failing
// model is excluded from the result set; other models proceed.
type FitError struct {
	Model  string
	Reason string
}

func (e *FitError) Error() string {
	return fmt.Sprintf("model %s failed to fit: %s", e.Model, e.Reason)
}

// Forest is a bagged ensemble of regression trees
type Forest struct {
	trees      []*treeNode
	importance []float64 // Normalized, aligned with features
	features   []string
}

// FitForest trains the ensemble on the training matrix. The bagging RNG is
// seeded per fit and trees grow sequentially from it, so identical input and
// configuration reproduce identical trees bit for bit.
func FitForest(X [][]float64, y []float64, features []string, cfg ForestConfig) (*Forest, error) {
	if len(X) == 0 || len(y) != len(X) {
		return nil, &FitError{Model: string(ModelRandomForest), Reason: "empty or misaligned training data"}
	}
	if len(features) == 0 || len(X[0]) != len(features) {
		return nil, &FitError{Model: string(ModelRandomForest), Reason: "feature names do not match matrix width"}
	}
	if cfg.Trees <= 0 || cfg.MaxDepth <= 0 || cfg.MinSplit <= 1 {
		return nil, &FitError{Model: string(ModelRandomForest), Reason: fmt.Sprintf("invalid configuration %+v", cfg)}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := len(X)
	params := treeParams{maxDepth: cfg.MaxDepth, minSplit: cfg.MinSplit}

	rawImportance := make([]float64, len(features))
	trees := make([]*treeNode, cfg.Trees)
	idx := make([]int, n)
	for t := range trees {
		// Bootstrap sample: n draws with replacement
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees[t] = fitTree(X, y, idx, params, rawImportance)
	}

	total := 0.0
	for _, v := range rawImportance {
		total += v
	}
	if total > 0 {
		for i := range rawImportance {
			rawImportance[i] /= total
		}
	}

	return &Forest{trees: trees, importance: rawImportance, features: features}, nil
}

// Predict averages the trees' predictions for one observation
func (f *Forest) Predict(x []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees))
}

// Importance returns the feature ranking, heaviest first. Ties keep frame
// column order.
func (f *Forest) Importance() []models.FeatureWeight {
	out := make([]models.FeatureWeight, len(f.features))
	for i := range out {
		out[i] = models.FeatureWeight{Feature: f.features[i], Weight: f.importance[i]}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Weight > out[b].Weight
	})
	return out
}
