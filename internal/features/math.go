package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// Kernels return slices aligned to the input: out[i] is the statistic over
// the window ending at index i (inclusive), NaN while the window is short.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rollingMean computes the trailing mean ending at each index
func rollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	result := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	for i, v := range result {
		out[i+window-1] = v
	}
	return out
}

// rollingStd computes the trailing sample standard deviation ending at each
// index (n-1 denominator, matching the convention used for series summaries)
func rollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 1 || len(values) < window {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		mean := 0.0
		for j := i - window + 1; j <= i; j++ {
			mean += values[j]
		}
		mean /= float64(window)

		sumSq := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := values[j] - mean
			sumSq += d * d
		}
		out[i] = math.Sqrt(sumSq / float64(window-1))
	}
	return out
}

// rollingMin computes the trailing minimum ending at each index
func rollingMin(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		min := values[i]
		for j := i - window + 1; j < i; j++ {
			if values[j] < min {
				min = values[j]
			}
		}
		out[i] = min
	}
	return out
}

// rollingMax computes the trailing maximum ending at each index
func rollingMax(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		max := values[i]
		for j := i - window + 1; j < i; j++ {
			if values[j] > max {
				max = values[j]
			}
		}
		out[i] = max
	}
	return out
}

// lagSeries returns values shifted back by k steps
func lagSeries(values []float64, k int) []float64 {
	out := nanSlice(len(values))
	for i := k; i < len(values); i++ {
		out[i] = values[i-k]
	}
	return out
}

// diffSpan computes values[i] - values[i-span]
func diffSpan(values []float64, span int) []float64 {
	out := nanSlice(len(values))
	for i := span; i < len(values); i++ {
		out[i] = values[i] - values[i-span]
	}
	return out
}

// rollingZScore standardizes each value against its own trailing window.
// A zero-variance window yields 0 rather than NaN so constant stretches do
// not knock rows out of the frame.
func rollingZScore(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 1 || len(values) < window {
		return out
	}

	means := rollingMean(values, window)
	stds := rollingStd(values, window)
	for i := window - 1; i < len(values); i++ {
		if stds[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (values[i] - means[i]) / stds[i]
	}
	return out
}

// shift lags a kernel output by one step so the feature at index i only sees
// observations up to i-1
func shift(aligned []float64) []float64 {
	out := nanSlice(len(aligned))
	for i := 1; i < len(aligned); i++ {
		out[i] = aligned[i-1]
	}
	return out
}

// expandingPercentile ranks each value within all values seen so far as the
// fraction of history strictly below it, so ties and cold starts rank low.
// NaN entries are skipped on both sides.
func expandingPercentile(values []float64) []float64 {
	out := nanSlice(len(values))
	seen := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		seen = append(seen, v)
		below := 0
		for _, s := range seen {
			if s < v {
				below++
			}
		}
		out[i] = float64(below) / float64(len(seen))
	}
	return out
}
