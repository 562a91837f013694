package bench

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/auspex/internal/features"
	"github.com/ternarybob/auspex/internal/models"
)

// ModelResult carries one model's evaluation-range predictions and score.
// Predictions align with the evaluation rows; NaN marks rows the model could
// not predict.
type ModelResult struct {
	Kind        ModelKind
	Score       models.ModelScore
	Predictions []float64
}

// Result is the full benchmark outcome over one frame and split
type Result struct {
	Split      SplitSpec
	Timestamps []time.Time // Evaluation rows
	Actuals    []float64   // Evaluation-range targets
	Models     []ModelResult
	Best       ModelKind // Lowest defined MASE; empty when no model qualifies
	Importance []models.FeatureWeight
}

// Evaluate fits and scores the fixed roster against a shared time split.
// Every model sees the identical evaluation range, so metrics compare
// directly. Models evaluate in parallel with no shared mutable state, and
// one model's failure never aborts the others.
func Evaluate(frame *features.Frame, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	split, err := NewSplit(frame.Rows(), cfg.SplitFraction)
	if err != nil {
		return nil, err
	}

	actuals := frame.Target[split.TrainEnd:]
	scale, scaleErr := naiveScale(frame.Target[:split.TrainEnd])

	roster := Roster()
	results := make([]ModelResult, len(roster))
	importances := make([][]models.FeatureWeight, len(roster))

	var wg sync.WaitGroup
	for i, kind := range roster {
		wg.Add(1)
		go func(slot int, kind ModelKind) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[slot] = ModelResult{
						Kind:  kind,
						Score: models.ModelScore{Model: string(kind), Error: fmt.Sprintf("panic during fit: %v", r)},
					}
				}
			}()
			results[slot], importances[slot] = evaluateModel(frame, split, kind, cfg, actuals, scale, scaleErr)
		}(i, kind)
	}
	wg.Wait()

	result := &Result{
		Split:      split,
		Timestamps: frame.Timestamps[split.TrainEnd:],
		Actuals:    actuals,
		Models:     results,
	}
	for _, imp := range importances {
		if imp != nil {
			result.Importance = imp
		}
	}

	// Best model: lowest defined MASE; roster order breaks exact ties
	bestIdx := -1
	for i := range results {
		s := &results[i].Score
		if s.Failed() || !s.MetricDefined("mase") {
			continue
		}
		if bestIdx == -1 || s.MASE < results[bestIdx].Score.MASE {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		result.Best = results[bestIdx].Kind
	}

	return result, nil
}

func evaluateModel(frame *features.Frame, split SplitSpec, kind ModelKind, cfg Config, actuals []float64, scale float64, scaleErr error) (ModelResult, []models.FeatureWeight) {
	started := time.Now()

	var preds []float64
	var importance []models.FeatureWeight

	switch kind {
	case ModelNaive:
		preds = predictNaive(frame.Target, split)
	case ModelSeasonalNaive:
		preds = predictSeasonalNaive(frame.Target, split, cfg.Season)
	case ModelRollingMean:
		preds = predictRollingMean(frame.Target, split, cfg.RollingWindow)
	case ModelRandomForest:
		forest, err := FitForest(frame.Data[:split.TrainEnd], frame.Target[:split.TrainEnd], frame.Columns, cfg.Forest)
		if err != nil {
			return ModelResult{
				Kind:  kind,
				Score: models.ModelScore{Model: string(kind), Error: err.Error()},
			}, nil
		}
		preds = make([]float64, split.EvalRows())
		for i := range preds {
			preds[i] = forest.Predict(frame.Data[split.TrainEnd+i])
		}
		importance = forest.Importance()
	default:
		return ModelResult{
			Kind:  kind,
			Score: models.ModelScore{Model: string(kind), Error: "unknown model kind"},
		}, nil
	}

	score := scoreModel(kind, actuals, preds, scale, scaleErr, cfg.MAPEEpsilon)
	score.FitDuration = time.Since(started).Milliseconds()

	return ModelResult{Kind: kind, Score: score, Predictions: preds}, importance
}

// Residuals returns actual minus predicted for one model over the rows it
// predicted, or nil if the model failed
func (r *Result) Residuals(kind ModelKind) []float64 {
	for _, mr := range r.Models {
		if mr.Kind != kind || mr.Score.Failed() {
			continue
		}
		residuals := make([]float64, 0, len(r.Actuals))
		for i, p := range mr.Predictions {
			if math.IsNaN(p) {
				continue
			}
			residuals = append(residuals, r.Actuals[i]-p)
		}
		return residuals
	}
	return nil
}

// PredictedActuals returns the actual values for the rows a model predicted,
// aligned with Residuals
func (r *Result) PredictedActuals(kind ModelKind) []float64 {
	for _, mr := range r.Models {
		if mr.Kind != kind || mr.Score.Failed() {
			continue
		}
		actuals := make([]float64, 0, len(r.Actuals))
		for i, p := range mr.Predictions {
			if math.IsNaN(p) {
				continue
			}
			actuals = append(actuals, r.Actuals[i])
		}
		return actuals
	}
	return nil
}

// Summary converts the in-memory result into its persisted form
func (r *Result) Summary() *models.BenchResult {
	scores := make([]models.ModelScore, len(r.Models))
	for i, mr := range r.Models {
		scores[i] = mr.Score
	}
	return &models.BenchResult{
		Scores:        scores,
		Best:          string(r.Best),
		SplitIndex:    r.Split.TrainEnd,
		SplitFraction: r.Split.Fraction,
		TrainRows:     r.Split.TrainRows(),
		EvalRows:      r.Split.EvalRows(),
		Importance:    r.Importance,
	}
}
