package bench

import (
	"fmt"
	"math"

	"github.com/ternarybob/auspex/internal/models"
)

// MetricUndefinedError reports a metric whose denominator degenerates for a
// particular series. The metric is reported as undefined; the run continues.
type MetricUndefinedError struct {
	Metric string
	Reason string
}

func (e *MetricUndefinedError) Error() string {
	return fmt.Sprintf("metric %s undefined: %s", e.Metric, e.Reason)
}

// naiveScale computes the in-sample one-step naive MAE over the training
// range. MASE divides by this scale, which makes it comparable across series
// with different units: rescaling the series rescales numerator and
// denominator alike.
func naiveScale(train []float64) (float64, error) {
	if len(train) < 2 {
		return 0, &MetricUndefinedError{Metric: "mase", Reason: "training range too short"}
	}
	sum := 0.0
	for i := 1; i < len(train); i++ {
		sum += math.Abs(train[i] - train[i-1])
	}
	scale := sum / float64(len(train)-1)
	if scale == 0 {
		return 0, &MetricUndefinedError{Metric: "mase", Reason: "constant training series"}
	}
	return scale, nil
}

// scoreModel computes the fixed metric set {MAE, RMSE, MAPE, MASE} over the
// evaluation range. Rows where the model produced no prediction (NaN) are
// excluded from every metric and counted, never zero-filled. MAPE further
// skips rows with |actual| <= epsilon and counts those separately.
func scoreModel(kind ModelKind, actuals, preds []float64, scale float64, scaleErr error, epsilon float64) models.ModelScore {
	score := models.ModelScore{Model: string(kind)}

	absSum := 0.0
	sqSum := 0.0
	mapeSum := 0.0
	mapeN := 0
	n := 0
	for i := range actuals {
		if math.IsNaN(preds[i]) {
			score.Excluded++
			continue
		}
		residual := actuals[i] - preds[i]
		absSum += math.Abs(residual)
		sqSum += residual * residual
		n++

		if math.Abs(actuals[i]) > epsilon {
			mapeSum += math.Abs(residual / actuals[i])
			mapeN++
		} else {
			score.MAPEExcluded++
		}
	}

	if n == 0 {
		score.Undefined = []string{"mae", "rmse", "mape", "mase"}
		return score
	}

	score.MAE = absSum / float64(n)
	score.RMSE = math.Sqrt(sqSum / float64(n))

	if mapeN > 0 {
		score.MAPE = 100 * mapeSum / float64(mapeN)
	} else {
		score.Undefined = append(score.Undefined, "mape")
	}

	if scaleErr != nil {
		score.Undefined = append(score.Undefined, "mase")
	} else {
		score.MASE = score.MAE / scale
	}

	return score
}
