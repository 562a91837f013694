// Package diagnostics characterizes the error structure a benchmark leaves
// behind: per-model residual moments, autocorrelation, and a portmanteau
// whiteness test. Everything here is an exact function of the benchmark
// result; no sampling, no randomness.
package diagnostics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ternarybob/auspex/internal/bench"
	"github.com/ternarybob/auspex/internal/models"
)

// AnalysisError reports why residual diagnostics could not be computed for a
// model. Other models are unaffected.
type AnalysisError struct {
	Model  string
	Reason string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("diagnostics for %s: %s", e.Model, e.Reason)
}

// Diagnose computes residual diagnostics for one roster model over the rows
// it actually predicted: residual moments, bias-corrected skewness,
// autocorrelation at lags 1..lags, noise ratio against the evaluation
// actuals, and the Ljung-Box statistic over the same lags.
//
// Residuals follow the actual-minus-predicted convention, so a positive mean
// reads as systematic underprediction.
func Diagnose(result *bench.Result, kind bench.ModelKind, lags int) (*models.ResidualDiagnostics, error) {
	if lags < 1 {
		return nil, &AnalysisError{Model: string(kind), Reason: fmt.Sprintf("lags must be >= 1, got %d", lags)}
	}

	residuals := result.Residuals(kind)
	actuals := result.PredictedActuals(kind)
	if residuals == nil {
		return nil, &AnalysisError{Model: string(kind), Reason: "model not in result or fit failed"}
	}

	n := len(residuals)
	// Lag-k autocorrelation needs at least two overlapping pairs, and the
	// skewness correction divides by (n-1)(n-2).
	if n < 3 || n < lags+2 {
		return nil, &AnalysisError{
			Model:  string(kind),
			Reason: fmt.Sprintf("%d residuals is too few for %d lags", n, lags),
		}
	}

	diag := &models.ResidualDiagnostics{
		Model: string(kind),
		Count: n,
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}

	diag.Mean, diag.Std = stat.MeanStdDev(residuals, nil)
	for _, r := range residuals {
		diag.Min = math.Min(diag.Min, r)
		diag.Max = math.Max(diag.Max, r)
		diag.MaxAbsDeviation = math.Max(diag.MaxAbsDeviation, math.Abs(r-diag.Mean))
	}

	// Constant residuals have no third moment and nothing to correlate;
	// every shape statistic collapses to its null value.
	if diag.Std > 0 {
		diag.Skewness = stat.Skew(residuals, nil)
	}

	diag.Autocorr = make([]float64, lags)
	for lag := 1; lag <= lags; lag++ {
		diag.Autocorr[lag-1] = autocorrAt(residuals, lag)
	}

	diag.NoiseRatio = noiseRatio(residuals, actuals)
	diag.LjungBoxStat, diag.LjungBoxPValue = ljungBox(diag.Autocorr, n)

	return diag, nil
}

// DiagnoseAll runs Diagnose for every model that produced predictions, best
// model first, remaining models in roster order. A model whose fit failed or
// whose residual count is too small for the lag depth is skipped rather than
// failing the batch; an empty batch is an error.
func DiagnoseAll(result *bench.Result, lags int) ([]models.ResidualDiagnostics, error) {
	if lags < 1 {
		return nil, &AnalysisError{Model: "all", Reason: fmt.Sprintf("lags must be >= 1, got %d", lags)}
	}

	order := make([]bench.ModelKind, 0, len(bench.Roster()))
	if result.Best != "" {
		order = append(order, result.Best)
	}
	for _, kind := range bench.Roster() {
		if kind != result.Best {
			order = append(order, kind)
		}
	}

	reports := make([]models.ResidualDiagnostics, 0, len(order))
	for _, kind := range order {
		diag, err := Diagnose(result, kind, lags)
		if err != nil {
			var analysisErr *AnalysisError
			if errors.As(err, &analysisErr) {
				continue
			}
			return nil, err
		}
		reports = append(reports, *diag)
	}
	if len(reports) == 0 {
		return nil, &AnalysisError{Model: "all", Reason: "no model produced residuals"}
	}
	return reports, nil
}

// autocorrAt is the Pearson correlation of the series against its own copy
// shifted back by lag. A constant segment forces the coefficient to zero.
func autocorrAt(residuals []float64, lag int) float64 {
	head := residuals[:len(residuals)-lag]
	tail := residuals[lag:]
	if stat.Variance(head, nil) == 0 || stat.Variance(tail, nil) == 0 {
		return 0
	}
	r := stat.Correlation(head, tail, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// noiseRatio relates residual variance to the variance of the actuals the
// model was scored on. A perfect model scores 0; a model no better than the
// series mean scores about 1. A constant target with zero residuals is a
// solved window, ratio 0.
func noiseRatio(residuals, actuals []float64) float64 {
	varActual := stat.Variance(actuals, nil)
	varResidual := stat.Variance(residuals, nil)
	if varActual == 0 {
		return 0
	}
	return varResidual / varActual
}

// ljungBox computes the Ljung-Box portmanteau statistic over the supplied
// autocorrelations and its chi-squared survival probability with one degree
// of freedom per lag. Small p rejects residual whiteness.
func ljungBox(autocorr []float64, n int) (float64, float64) {
	q := 0.0
	for i, rho := range autocorr {
		lag := i + 1
		q += rho * rho / float64(n-lag)
	}
	q *= float64(n) * float64(n+2)

	dist := distuv.ChiSquared{K: float64(len(autocorr))}
	p := dist.Survival(q)
	if math.IsNaN(p) {
		p = 1
	}
	return q, p
}
