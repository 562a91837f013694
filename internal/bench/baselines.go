package bench

import "math"

// Baselines are pure functions of the target history: no fitting, and the
// prediction for an evaluation row reads strictly earlier target values.
// A row whose required history extends past the start of the frame gets NaN
// and is excluded from that model's metrics.

// predictNaive carries the previous value forward
func predictNaive(target []float64, split SplitSpec) []float64 {
	preds := make([]float64, split.EvalRows())
	for i := range preds {
		t := split.TrainEnd + i
		preds[i] = target[t-1]
	}
	return preds
}

// predictSeasonalNaive repeats the value at the same phase one season back
func predictSeasonalNaive(target []float64, split SplitSpec, season int) []float64 {
	preds := make([]float64, split.EvalRows())
	for i := range preds {
		t := split.TrainEnd + i
		if t-season < 0 {
			preds[i] = math.NaN()
			continue
		}
		preds[i] = target[t-season]
	}
	return preds
}

// predictRollingMean averages the trailing window of targets
func predictRollingMean(target []float64, split SplitSpec, window int) []float64 {
	preds := make([]float64, split.EvalRows())
	for i := range preds {
		t := split.TrainEnd + i
		if t-window < 0 {
			preds[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := t - window; j < t; j++ {
			sum += target[j]
		}
		preds[i] = sum / float64(window)
	}
	return preds
}
