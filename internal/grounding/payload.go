// Package grounding compiles computed run statistics into a flat payload of
// verifiable facts, prompts a generative backend to narrate them, and rejects
// any narrative whose numbers cannot be traced back to the payload. The
// payload is the single source of truth: text either quotes it or is thrown
// away.
package grounding

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ternarybob/auspex/internal/models"
)

// payloadVersion identifies the fact schema carried by a Payload. Bump when
// keys are added or renamed so persisted narratives stay interpretable.
const payloadVersion = "v1"

// Fact is one scalar statement the narrative backend is allowed to make.
// Numeric facts participate in verification; text facts (labels, dates,
// model names) do not.
type Fact struct {
	Key     string  `json:"key"`
	Text    string  `json:"text"` // Rendered form, quoted verbatim in prompts and fallback text
	Value   float64 `json:"value,omitempty"`
	Numeric bool    `json:"numeric"`
}

// Payload is the flat, ordered fact set for one run. Building it is
// deterministic: identical inputs produce an identical fact sequence.
type Payload struct {
	Version string `json:"version"`
	Facts   []Fact `json:"facts"`
}

func (p *Payload) addText(key, text string) {
	p.Facts = append(p.Facts, Fact{Key: key, Text: text})
}

func (p *Payload) addNumber(key string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	p.Facts = append(p.Facts, Fact{Key: key, Text: formatFact(value), Value: value, Numeric: true})
}

// Text returns the rendered form of a fact, or the empty string if absent
func (p *Payload) Text(key string) string {
	for _, f := range p.Facts {
		if f.Key == key {
			return f.Text
		}
	}
	return ""
}

// Has reports whether the payload carries the named fact
func (p *Payload) Has(key string) bool {
	for _, f := range p.Facts {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Numbers returns every numeric fact value, in payload order
func (p *Payload) Numbers() []float64 {
	out := make([]float64, 0, len(p.Facts))
	for _, f := range p.Facts {
		if f.Numeric {
			out = append(out, f.Value)
		}
	}
	return out
}

// Render serializes the payload as the fact list handed to the backend
func (p *Payload) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "payload_version = %s\n", p.Version)
	for _, f := range p.Facts {
		fmt.Fprintf(&b, "%s = %s\n", f.Key, f.Text)
	}
	return b.String()
}

// BuildPayload flattens the run's computed statistics into the fact set the
// narrative may discuss. Facts are appended in a fixed order (series, split,
// per-model metrics, ranking, comparisons, diagnostics, importances), so two
// builds over the same inputs are identical.
func BuildPayload(summary *models.SeriesSummary, bench *models.BenchResult, reports []models.ResidualDiagnostics, topFeatures int) (*Payload, error) {
	if summary == nil || bench == nil {
		return nil, fmt.Errorf("grounding payload requires a series summary and benchmark result")
	}
	if topFeatures < 0 {
		topFeatures = 0
	}

	p := &Payload{Version: payloadVersion}

	p.addText("window_start", summary.Start.UTC().Format("2006-01-02 15:04"))
	p.addText("window_end", summary.End.UTC().Format("2006-01-02 15:04"))
	p.addText("resolution", summary.Resolution)
	p.addText("currency", summary.Currency)
	p.addNumber("points", float64(summary.Points))
	p.addNumber("gaps", float64(summary.Gaps))
	p.addNumber("duplicates", float64(summary.Duplicates))
	p.addNumber("series_mean", summary.Mean)
	p.addNumber("series_std", summary.Std)
	p.addNumber("series_min", summary.Min)
	p.addNumber("series_max", summary.Max)
	p.addNumber("total_income", summary.TotalIncome)

	p.addNumber("train_rows", float64(bench.TrainRows))
	p.addNumber("eval_rows", float64(bench.EvalRows))
	p.addNumber("split_fraction", bench.SplitFraction)

	for i := range bench.Scores {
		s := &bench.Scores[i]
		if s.Failed() {
			p.addText(s.Model+"_error", s.Error)
			continue
		}
		for _, m := range []struct {
			name  string
			value float64
		}{
			{"mae", s.MAE},
			{"rmse", s.RMSE},
			{"mape", s.MAPE},
			{"mase", s.MASE},
		} {
			if s.MetricDefined(m.name) {
				p.addNumber(s.Model+"_"+m.name, m.value)
			}
		}
		p.addNumber(s.Model+"_excluded", float64(s.Excluded))
		if len(s.Undefined) > 0 {
			p.addText(s.Model+"_undefined", strings.Join(s.Undefined, ", "))
		}
	}

	p.addText("selection_rule", "lowest MASE on the shared evaluation range")
	if bench.Best != "" {
		p.addText("best_model", bench.Best)
		if best := bench.Score(bench.Best); best != nil && best.MetricDefined("mase") {
			p.addNumber("best_model_mase", best.MASE)
		}
	}

	addComparisons(p, bench)
	addDiagnostics(p, reports)
	addImportances(p, bench.Importance, topFeatures)

	return p, nil
}

// addComparisons records where the learned regressor stands against each
// baseline, metric by metric, as categorical labels. The narrative must take
// comparisons from here instead of doing its own arithmetic.
func addComparisons(p *Payload, bench *models.BenchResult) {
	forest := bench.Score("random_forest")
	if forest == nil || forest.Failed() {
		return
	}
	for _, baseline := range []string{"naive", "seasonal_naive", "rolling_mean"} {
		other := bench.Score(baseline)
		if other == nil || other.Failed() {
			continue
		}
		for _, m := range []struct {
			name    string
			forest  float64
			against float64
		}{
			{"mae", forest.MAE, other.MAE},
			{"rmse", forest.RMSE, other.RMSE},
			{"mape", forest.MAPE, other.MAPE},
			{"mase", forest.MASE, other.MASE},
		} {
			if !forest.MetricDefined(m.name) || !other.MetricDefined(m.name) {
				continue
			}
			p.addText("forest_vs_"+baseline+"_"+m.name, compareLabel(m.forest, m.against))
		}
	}
}

func compareLabel(forest, baseline float64) string {
	switch {
	case forest < baseline:
		return "smaller"
	case forest > baseline:
		return "larger"
	default:
		return "equal"
	}
}

func addDiagnostics(p *Payload, reports []models.ResidualDiagnostics) {
	for i := range reports {
		d := &reports[i]
		prefix := d.Model + "_residual"
		p.addNumber(prefix+"_count", float64(d.Count))
		p.addNumber(prefix+"_mean", d.Mean)
		p.addNumber(prefix+"_std", d.Std)
		p.addNumber(prefix+"_min", d.Min)
		p.addNumber(prefix+"_max", d.Max)
		p.addNumber(prefix+"_skewness", d.Skewness)
		p.addNumber(prefix+"_max_abs_deviation", d.MaxAbsDeviation)
		if len(d.Autocorr) > 0 {
			p.addNumber(prefix+"_autocorr_lag1", d.Autocorr[0])
		}
		p.addNumber(d.Model+"_noise_ratio", d.NoiseRatio)
		p.addNumber(d.Model+"_ljung_box_p", d.LjungBoxPValue)
	}
}

func addImportances(p *Payload, importance []models.FeatureWeight, topFeatures int) {
	for i, w := range importance {
		if i >= topFeatures {
			break
		}
		rank := strconv.Itoa(i + 1)
		p.addText("top_feature_"+rank, w.Feature)
		p.addNumber("top_feature_"+rank+"_weight", w.Weight)
	}
}

// formatFact renders a numeric fact the way it should be quoted: integers
// bare, ordinary magnitudes with two decimals, tiny magnitudes with enough
// significant digits to stay inside the verification tolerance.
func formatFact(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e12 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	if math.Abs(v) >= 0.01 {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}
