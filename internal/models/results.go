package models

import (
	"time"
)

// SeriesSummary records what validation did to the raw series before any
// feature or model stage saw it
type SeriesSummary struct {
	Points      int       `json:"points"`       // Observations after gap handling
	Start       time.Time `json:"start"`        // First period start, UTC
	End         time.Time `json:"end"`          // Last period start, UTC
	Resolution  string    `json:"resolution"`   // "PT15M" or "PT60M"
	Currency    string    `json:"currency"`     // ISO 4217 code
	GapPolicy   string    `json:"gap_policy"`   // "drop", "forward_fill", or "flag"
	Gaps        int       `json:"gaps"`         // Missing intervals detected against the nominal grid
	Filled      int       `json:"filled"`       // Intervals synthesized by forward_fill
	Flagged     int       `json:"flagged"`      // Intervals flagged for exclusion downstream
	Duplicates  int       `json:"duplicates"`   // Duplicate timestamps collapsed (last value wins)
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	TotalIncome float64   `json:"total_income"` // Sum over the window, currency units
}

// FeatureSummary records the shape of the engineered feature frame
type FeatureSummary struct {
	Columns       []string `json:"columns"`        // Feature column names in frame order, target excluded
	Rows          int      `json:"rows"`           // Rows surviving the warmup drop
	WarmupDropped int      `json:"warmup_dropped"` // Leading rows removed for incomplete features
	Horizon       int      `json:"horizon"`        // Steps ahead the target leads the features
}

// ModelScore holds the evaluation of one roster model on the shared eval index.
//
// A metric that cannot be computed (a degenerate denominator, e.g. MASE on a
// constant training series) is reported by name in Undefined and its value is
// left at zero; consumers must check Undefined before comparing. A model whose
// fit failed has Error set and no metrics at all.
type ModelScore struct {
	Model        string   `json:"model"`               // Roster tag: "naive", "seasonal_naive", "rolling_mean", "random_forest"
	MAE          float64  `json:"mae"`
	RMSE         float64  `json:"rmse"`
	MAPE         float64  `json:"mape"`                // Percent, eligible points only
	MASE         float64  `json:"mase"`                // Scaled by the in-sample naive MAE
	Excluded     int      `json:"excluded"`            // Eval points with no prediction, dropped from all metrics
	MAPEExcluded int      `json:"mape_excluded"`       // Further points skipped by MAPE because |actual| <= epsilon
	Undefined    []string `json:"undefined,omitempty"` // Metric names that could not be computed
	Error        string   `json:"error,omitempty"`     // Fit failure reason; model was excluded from ranking
	FitDuration  int64    `json:"fit_duration_ms"`     // Wall time to fit and predict, milliseconds
}

// Failed reports whether the model was excluded from ranking
func (s *ModelScore) Failed() bool {
	return s.Error != ""
}

// MetricDefined reports whether the named metric carries a usable value
func (s *ModelScore) MetricDefined(name string) bool {
	for _, u := range s.Undefined {
		if u == name {
			return false
		}
	}
	return true
}

// FeatureWeight is one entry of a model's feature importance ranking
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"` // Normalized, weights sum to 1 across all features
}

// BenchResult holds the full benchmark outcome: every roster model scored on
// the identical eval index, plus the winner by MASE
type BenchResult struct {
	Scores        []ModelScore    `json:"scores"`                   // One per roster model, fit failures included
	Best          string          `json:"best"`                     // Model tag with the lowest defined MASE
	SplitIndex    int             `json:"split_index"`              // First eval row in the feature frame
	SplitFraction float64         `json:"split_fraction"`           // Train share of the frame
	TrainRows     int             `json:"train_rows"`
	EvalRows      int             `json:"eval_rows"`
	Importance    []FeatureWeight `json:"importance,omitempty"`     // Tree-ensemble importances, descending
}

// Score returns the entry for the given model tag, or nil if absent
func (b *BenchResult) Score(model string) *ModelScore {
	for i := range b.Scores {
		if b.Scores[i].Model == model {
			return &b.Scores[i]
		}
	}
	return nil
}

// ResidualDiagnostics summarizes the error structure of the best model's
// eval-window residuals (actual minus predicted)
type ResidualDiagnostics struct {
	Model           string    `json:"model"`             // Whose residuals these are
	Count           int       `json:"count"`
	Mean            float64   `json:"mean"`
	Std             float64   `json:"std"`
	Min             float64   `json:"min"`
	Max             float64   `json:"max"`
	Skewness        float64   `json:"skewness"`
	MaxAbsDeviation float64   `json:"max_abs_deviation"` // max |residual - mean(residuals)|
	Autocorr        []float64 `json:"autocorr"`          // Lags 1..k in order
	NoiseRatio      float64   `json:"noise_ratio"`       // Residual variance over eval-window actual variance
	LjungBoxStat    float64   `json:"ljung_box_stat"`    // Portmanteau statistic over the same lags
	LjungBoxPValue  float64   `json:"ljung_box_p"`
}

// NarrativeSection is one titled block of the generated report narrative
type NarrativeSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Narrative captures the grounding layer's output: the generated (or fallback)
// narrative together with how it was produced and verified
type Narrative struct {
	Sections       []NarrativeSection `json:"sections"`
	Grounded       bool               `json:"grounded"`             // True when every numeric claim verified against the payload
	Fallback       bool               `json:"fallback"`             // True when the deterministic template was used
	Attempts       int                `json:"attempts"`             // Generation attempts made (0 for pure fallback)
	Model          string             `json:"model,omitempty"`      // Generator model, empty for fallback
	Mismatches     []string           `json:"mismatches,omitempty"` // Failed claims from the final rejected attempt
	PayloadVersion string             `json:"payload_version"`
	GeneratedAt    time.Time          `json:"generated_at"`
}
