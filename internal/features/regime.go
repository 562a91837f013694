package features

import "math"

// Volatility regimes are ordered buckets assigned per timestamp from the
// trailing-volatility percentile. With the default two thresholds the
// buckets read low (0), medium (1), high (2).

// classifyRegime maps a percentile in [0,1] onto an ordered regime index.
// Thresholds must be ascending; values below the first threshold land in
// regime 0, values at or above the last in regime len(thresholds).
func classifyRegime(percentile float64, thresholds []float64) float64 {
	if math.IsNaN(percentile) {
		return math.NaN()
	}
	for i, th := range thresholds {
		if percentile < th {
			return float64(i)
		}
	}
	return float64(len(thresholds))
}

// regimeSeries converts a shifted trailing-volatility track into regime
// labels using an expanding percentile, so the classification at index i
// depends only on volatility observed up to i
func regimeSeries(shiftedVol []float64, thresholds []float64) []float64 {
	percentiles := expandingPercentile(shiftedVol)
	out := nanSlice(len(shiftedVol))
	for i, p := range percentiles {
		out[i] = classifyRegime(p, thresholds)
	}
	return out
}
