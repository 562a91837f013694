package grounding

import (
	"fmt"
	"strings"

	"github.com/ternarybob/auspex/internal/models"
)

// rosterTags mirrors the benchmark roster for payload lookups. The fallback
// template renders whichever of these the payload actually carries.
var rosterTags = []string{"naive", "seasonal_naive", "rolling_mean", "random_forest"}

var metricNames = []string{"mae", "rmse", "mape", "mase"}

// fallbackSections builds the labeled template narrative straight from the
// payload. Every figure is a fact text quoted verbatim, so the result passes
// the same verification applied to backend output.
func fallbackSections(payload *Payload) []models.NarrativeSection {
	sections := make([]models.NarrativeSection, 0, len(sectionTitles))
	for i := 1; i <= len(sectionTitles); i++ {
		var body string
		switch i {
		case 1:
			body = fallbackOverview(payload)
		case 2:
			body = fallbackDataWindow(payload)
		case 3:
			body = fallbackModelComparison(payload)
		case 4:
			body = fallbackBestModel(payload)
		case 5:
			body = fallbackResiduals(payload)
		case 6:
			body = fallbackVolatility(payload)
		case 7:
			body = fallbackCaveats(payload)
		}
		sections = append(sections, models.NarrativeSection{Title: sectionTitle(i), Body: body})
	}
	return sections
}

// section assembles prose plus the mandatory hard-facts block
func section(prose []string, facts []string) string {
	var b strings.Builder
	b.WriteString(strings.Join(prose, " "))
	b.WriteString("\n\n**Hard facts:**\n")
	if len(facts) == 0 {
		b.WriteString("- none applicable\n")
	}
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// fact renders "label: value" when the payload has the key, else ""
func fact(payload *Payload, label, key string) string {
	if !payload.Has(key) {
		return ""
	}
	return fmt.Sprintf("%s: %s", label, payload.Text(key))
}

func appendFact(facts []string, payload *Payload, label, key string) []string {
	if f := fact(payload, label, key); f != "" {
		facts = append(facts, f)
	}
	return facts
}

func modelLabel(tag string) string {
	return strings.ReplaceAll(tag, "_", " ")
}

func fallbackOverview(p *Payload) string {
	prose := []string{
		"This evaluation summarizes a congestion-income forecasting benchmark over the configured window.",
		"The narrative below was assembled directly from the computed statistics by a deterministic template; no generative model contributed text.",
	}
	if best := p.Text("best_model"); best != "" {
		prose = append(prose, fmt.Sprintf("The best-performing model was %s, selected by the %s.", modelLabel(best), p.Text("selection_rule")))
	} else {
		prose = append(prose, "No model qualified for ranking on this window; see the caveats section.")
	}

	var facts []string
	facts = appendFact(facts, p, "best model", "best_model")
	facts = appendFact(facts, p, "selection rule", "selection_rule")
	facts = appendFact(facts, p, "best model MASE", "best_model_mase")
	return section(prose, facts)
}

func fallbackDataWindow(p *Payload) string {
	prose := []string{
		fmt.Sprintf("The series spans %s to %s UTC at %s resolution with %s observations.",
			p.Text("window_start"), p.Text("window_end"), p.Text("resolution"), p.Text("points")),
		fmt.Sprintf("Income over the window totals %s %s with a mean of %s and a standard deviation of %s.",
			p.Text("total_income"), p.Text("currency"), p.Text("series_mean"), p.Text("series_std")),
		fmt.Sprintf("The benchmark trained on %s rows and evaluated on %s rows.",
			p.Text("train_rows"), p.Text("eval_rows")),
	}

	var facts []string
	facts = appendFact(facts, p, "window start", "window_start")
	facts = appendFact(facts, p, "window end", "window_end")
	facts = appendFact(facts, p, "observations", "points")
	facts = appendFact(facts, p, "total income", "total_income")
	facts = appendFact(facts, p, "series mean", "series_mean")
	facts = appendFact(facts, p, "series std", "series_std")
	facts = appendFact(facts, p, "train rows", "train_rows")
	facts = appendFact(facts, p, "eval rows", "eval_rows")
	return section(prose, facts)
}

func fallbackModelComparison(p *Payload) string {
	prose := []string{
		"Every model was scored on the identical evaluation range, so the metrics compare directly.",
	}
	var facts []string
	for _, tag := range rosterTags {
		if errText := p.Text(tag + "_error"); errText != "" {
			prose = append(prose, fmt.Sprintf("The %s model failed to fit and was excluded from ranking.", modelLabel(tag)))
			facts = append(facts, fmt.Sprintf("%s error: %s", modelLabel(tag), errText))
			continue
		}
		if !p.Has(tag + "_mae") {
			continue
		}
		prose = append(prose, fmt.Sprintf("The %s model reached an MAE of %s and an RMSE of %s.",
			modelLabel(tag), p.Text(tag+"_mae"), p.Text(tag+"_rmse")))
		for _, metric := range metricNames {
			facts = appendFact(facts, p, fmt.Sprintf("%s %s", modelLabel(tag), strings.ToUpper(metric)), tag+"_"+metric)
		}
	}
	return section(prose, facts)
}

func fallbackBestModel(p *Payload) string {
	var prose []string
	best := p.Text("best_model")
	if best == "" {
		prose = append(prose, "No model produced a defined MASE on this window, so no winner was declared.")
	} else {
		prose = append(prose, fmt.Sprintf("The %s model won under the %s with a MASE of %s.",
			modelLabel(best), p.Text("selection_rule"), p.Text("best_model_mase")))
	}

	var facts []string
	facts = appendFact(facts, p, "best model", "best_model")
	facts = appendFact(facts, p, "best model MASE", "best_model_mase")
	for _, baseline := range []string{"naive", "seasonal_naive", "rolling_mean"} {
		for _, metric := range metricNames {
			key := "forest_vs_" + baseline + "_" + metric
			if p.Has(key) {
				facts = append(facts, fmt.Sprintf("random forest %s vs %s: %s",
					strings.ToUpper(metric), modelLabel(baseline), p.Text(key)))
			}
		}
	}
	if len(facts) > 2 {
		prose = append(prose, "Categorical comparisons between the random forest and each baseline are listed below exactly as computed.")
	}
	return section(prose, facts)
}

func fallbackResiduals(p *Payload) string {
	best := p.Text("best_model")
	if best == "" || !p.Has(best+"_residual_mean") {
		return section([]string{"This cannot be determined from the provided statistics."}, nil)
	}
	prefix := best + "_residual"
	prose := []string{
		fmt.Sprintf("Residuals of the %s model over %s evaluated points have a mean of %s and a standard deviation of %s.",
			modelLabel(best), p.Text(prefix+"_count"), p.Text(prefix+"_mean"), p.Text(prefix+"_std")),
		fmt.Sprintf("Skewness is %s and the lag-one autocorrelation is %s.",
			p.Text(prefix+"_skewness"), p.Text(prefix+"_autocorr_lag1")),
		fmt.Sprintf("The Ljung-Box whiteness probability over the tested lags is %s.",
			p.Text(best+"_ljung_box_p")),
	}

	var facts []string
	facts = appendFact(facts, p, "residual count", prefix+"_count")
	facts = appendFact(facts, p, "residual mean", prefix+"_mean")
	facts = appendFact(facts, p, "residual std", prefix+"_std")
	facts = appendFact(facts, p, "residual skewness", prefix+"_skewness")
	facts = appendFact(facts, p, "lag-one autocorrelation", prefix+"_autocorr_lag1")
	facts = appendFact(facts, p, "Ljung-Box p-value", best+"_ljung_box_p")
	return section(prose, facts)
}

func fallbackVolatility(p *Payload) string {
	prose := []string{
		fmt.Sprintf("Observed income varies between %s and %s around a mean of %s.",
			p.Text("series_min"), p.Text("series_max"), p.Text("series_mean")),
	}
	var facts []string
	facts = appendFact(facts, p, "series min", "series_min")
	facts = appendFact(facts, p, "series max", "series_max")
	facts = appendFact(facts, p, "series std", "series_std")

	if best := p.Text("best_model"); best != "" && p.Has(best+"_noise_ratio") {
		prose = append(prose, fmt.Sprintf("After the %s model's fit, the residual-to-target variance ratio is %s, with a maximum absolute residual deviation of %s.",
			modelLabel(best), p.Text(best+"_noise_ratio"), p.Text(best+"_residual_max_abs_deviation")))
		facts = appendFact(facts, p, "noise ratio", best+"_noise_ratio")
		facts = appendFact(facts, p, "max abs residual deviation", best+"_residual_max_abs_deviation")
	}
	return section(prose, facts)
}

func fallbackCaveats(p *Payload) string {
	prose := []string{
		"This narrative is a deterministic template: it restates computed statistics and makes no interpretive claims.",
	}
	var facts []string
	if p.Has("gaps") {
		prose = append(prose, fmt.Sprintf("The validated series reported %s gaps and %s duplicate timestamps.",
			p.Text("gaps"), p.Text("duplicates")))
		facts = appendFact(facts, p, "gaps", "gaps")
		facts = appendFact(facts, p, "duplicates", "duplicates")
	}
	for _, tag := range rosterTags {
		if text := p.Text(tag + "_excluded"); text != "" && text != "0" {
			prose = append(prose, fmt.Sprintf("The %s model had %s evaluation points excluded for missing history.",
				modelLabel(tag), text))
			facts = appendFact(facts, p, modelLabel(tag)+" excluded points", tag+"_excluded")
		}
		if und := p.Text(tag + "_undefined"); und != "" {
			prose = append(prose, fmt.Sprintf("For the %s model the following metrics were undefined: %s.",
				modelLabel(tag), und))
			facts = append(facts, fmt.Sprintf("%s undefined metrics: %s", modelLabel(tag), und))
		}
	}
	return section(prose, facts)
}
