package bench

import "fmt"

// ModelKind tags one variant of the fixed forecasting roster. The roster is
// closed: adding a model means adding a variant here and a case in
// evaluateModel, not registering into a lookup table.
type ModelKind string

const (
	// ModelNaive predicts the last observed value
	ModelNaive ModelKind = "naive"
	// ModelSeasonalNaive predicts the value at the same phase one season back
	ModelSeasonalNaive ModelKind = "seasonal_naive"
	// ModelRollingMean predicts the trailing fixed-window mean
	ModelRollingMean ModelKind = "rolling_mean"
	// ModelRandomForest is the learned regressor, a bagged tree ensemble
	ModelRandomForest ModelKind = "random_forest"
)

// Roster returns the fixed model set evaluated in every run, in ranking
// tie-break order
func Roster() []ModelKind {
	return []ModelKind{ModelNaive, ModelSeasonalNaive, ModelRollingMean, ModelRandomForest}
}

// ForestConfig holds the tree-ensemble hyperparameters
type ForestConfig struct {
	Trees    int   // Ensemble size
	MaxDepth int   // Maximum tree depth
	MinSplit int   // Minimum samples required to split a node
	Seed     int64 // Bagging seed; fixed seed makes fits reproducible
}

// Config controls one benchmark run
type Config struct {
	SplitFraction float64 // Train share of the frame, in (0,1)
	Season        int     // seasonal_naive period in steps
	RollingWindow int     // rolling_mean window in steps
	MAPEEpsilon   float64 // |actual| <= epsilon excluded from MAPE
	Forest        ForestConfig
}

// Validate rejects configurations no model could run under
func (c Config) Validate() error {
	if c.SplitFraction <= 0 || c.SplitFraction >= 1 {
		return fmt.Errorf("split fraction must be in (0,1), got %v", c.SplitFraction)
	}
	if c.Season <= 0 {
		return fmt.Errorf("season must be positive, got %d", c.Season)
	}
	if c.RollingWindow <= 0 {
		return fmt.Errorf("rolling window must be positive, got %d", c.RollingWindow)
	}
	if c.MAPEEpsilon <= 0 {
		return fmt.Errorf("MAPE epsilon must be positive, got %v", c.MAPEEpsilon)
	}
	if c.Forest.Trees <= 0 || c.Forest.MaxDepth <= 0 || c.Forest.MinSplit <= 1 {
		return fmt.Errorf("invalid forest configuration %+v", c.Forest)
	}
	return nil
}
