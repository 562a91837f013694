// Package report renders a run artifact into human-readable documents:
// markdown as the source of truth, HTML and PDF derived from it. Every
// number in the tables comes straight from the artifact; the narrative
// block is included as the grounding layer produced it, with its
// provenance labeled.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/auspex/internal/models"
)

const timeLayout = "2006-01-02 15:04"

// Assemble renders the artifact as a markdown report
func Assemble(run *models.RunArtifact) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run artifact is required")
	}
	if run.ID == "" {
		return "", fmt.Errorf("run artifact has no ID")
	}

	var b strings.Builder

	writeTitle(&b, run)
	if run.Status == models.RunStatusFailed {
		writeFailure(&b, run)
	}
	if run.Series != nil {
		writeSeries(&b, run)
	}
	if run.Hourly != nil {
		writeHourly(&b, run.Hourly)
	}
	if run.Features != nil {
		writeFeatures(&b, run)
	}
	if run.Bench != nil {
		writeBench(&b, run.Bench)
	}
	if len(run.Diagnostics) > 0 {
		writeDiagnostics(&b, run.Diagnostics)
	}
	if run.Bench != nil && len(run.Bench.Importance) > 0 {
		writeImportance(&b, run.Bench.Importance)
	}
	if run.Narrative != nil {
		writeNarrative(&b, run.Narrative)
	}
	writeFooter(&b, run)

	return b.String(), nil
}

func writeTitle(b *strings.Builder, run *models.RunArtifact) {
	fmt.Fprintf(b, "# Congestion Income Analysis: %s > %s\n\n", run.InDomain, run.OutDomain)
	fmt.Fprintf(b, "- **Run:** `%s`\n", run.ID)
	fmt.Fprintf(b, "- **Window:** %s to %s UTC\n",
		run.PeriodStart.UTC().Format(timeLayout),
		run.PeriodEnd.UTC().Format(timeLayout))
	fmt.Fprintf(b, "- **Resolution:** %s\n", run.Resolution)
	fmt.Fprintf(b, "- **Status:** %s\n", run.Status)
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(b, "- **Completed:** %s UTC", run.CompletedAt.UTC().Format(timeLayout))
		if d := run.Duration(); d > 0 {
			fmt.Fprintf(b, " (%s)", d.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeFailure(b *strings.Builder, run *models.RunArtifact) {
	b.WriteString("## Failure\n\n")
	if run.Error != "" {
		fmt.Fprintf(b, "The run stopped before completing: %s\n\n", run.Error)
	} else {
		b.WriteString("The run stopped before completing; no cause was recorded.\n\n")
	}
}

func writeSeries(b *strings.Builder, run *models.RunArtifact) {
	s := run.Series
	b.WriteString("## Series\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Points | %d |\n", s.Points)
	fmt.Fprintf(b, "| First period | %s UTC |\n", s.Start.UTC().Format(timeLayout))
	fmt.Fprintf(b, "| Last period | %s UTC |\n", s.End.UTC().Format(timeLayout))
	fmt.Fprintf(b, "| Gap policy | %s |\n", s.GapPolicy)
	fmt.Fprintf(b, "| Gaps detected | %d |\n", s.Gaps)
	if s.Filled > 0 {
		fmt.Fprintf(b, "| Intervals filled | %d |\n", s.Filled)
	}
	if s.Flagged > 0 {
		fmt.Fprintf(b, "| Intervals flagged | %d |\n", s.Flagged)
	}
	fmt.Fprintf(b, "| Duplicates collapsed | %d |\n", s.Duplicates)
	fmt.Fprintf(b, "| Mean | %s |\n", fmtAmount(s.Mean, s.Currency))
	fmt.Fprintf(b, "| Std dev | %s |\n", fmtAmount(s.Std, s.Currency))
	fmt.Fprintf(b, "| Min | %s |\n", fmtAmount(s.Min, s.Currency))
	fmt.Fprintf(b, "| Max | %s |\n", fmtAmount(s.Max, s.Currency))
	fmt.Fprintf(b, "| Total income | %s |\n", fmtAmount(s.TotalIncome, s.Currency))
	b.WriteString("\n")
}

func writeHourly(b *strings.Builder, h *models.SeriesSummary) {
	b.WriteString("## Hourly View\n\n")
	b.WriteString("Sub-hourly intervals summed onto the hourly grid; partial edge hours are dropped.\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Hours | %d |\n", h.Points)
	fmt.Fprintf(b, "| Mean | %s |\n", fmtAmount(h.Mean, h.Currency))
	fmt.Fprintf(b, "| Min | %s |\n", fmtAmount(h.Min, h.Currency))
	fmt.Fprintf(b, "| Max | %s |\n", fmtAmount(h.Max, h.Currency))
	fmt.Fprintf(b, "| Total income | %s |\n", fmtAmount(h.TotalIncome, h.Currency))
	b.WriteString("\n")
}

func writeFeatures(b *strings.Builder, run *models.RunArtifact) {
	f := run.Features
	b.WriteString("## Feature Frame\n\n")
	fmt.Fprintf(b, "- **Rows:** %d (%d warmup rows dropped)\n", f.Rows, f.WarmupDropped)
	fmt.Fprintf(b, "- **Columns:** %d\n", len(f.Columns))
	fmt.Fprintf(b, "- **Horizon:** %d step(s) ahead\n\n", f.Horizon)
}

func writeBench(b *strings.Builder, bench *models.BenchResult) {
	b.WriteString("## Model Comparison\n\n")
	fmt.Fprintf(b, "Shared evaluation range: %d train rows, %d eval rows (split fraction %s). Models are ranked by MASE.\n\n",
		bench.TrainRows, bench.EvalRows, fmtMetric(bench.SplitFraction))

	b.WriteString("| Model | MAE | RMSE | MAPE % | MASE | Excluded | Note |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i := range bench.Scores {
		score := &bench.Scores[i]
		name := score.Model
		if bench.Best != "" && score.Model == bench.Best {
			name += " (best)"
		}
		if score.Failed() {
			fmt.Fprintf(b, "| %s | n/a | n/a | n/a | n/a | n/a | %s |\n", name, score.Error)
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %d | %s |\n",
			name,
			metricCell(score, "mae", score.MAE),
			metricCell(score, "rmse", score.RMSE),
			metricCell(score, "mape", score.MAPE),
			metricCell(score, "mase", score.MASE),
			score.Excluded,
			scoreNote(score))
	}
	b.WriteString("\n")

	if bench.Best == "" {
		b.WriteString("No model qualified for ranking: MASE was undefined for the whole roster.\n\n")
	}
}

func metricCell(score *models.ModelScore, name string, value float64) string {
	if !score.MetricDefined(name) {
		return "n/a"
	}
	return fmtMetric(value)
}

func scoreNote(score *models.ModelScore) string {
	var parts []string
	if len(score.Undefined) > 0 {
		parts = append(parts, "undefined: "+strings.Join(score.Undefined, ", "))
	}
	if score.MAPEExcluded > 0 {
		parts = append(parts, fmt.Sprintf("MAPE skipped %d near-zero point(s)", score.MAPEExcluded))
	}
	return strings.Join(parts, "; ")
}

func writeDiagnostics(b *strings.Builder, reports []models.ResidualDiagnostics) {
	b.WriteString("## Residual Diagnostics\n\n")
	b.WriteString("Residuals are actual minus predicted over the evaluation range.\n\n")

	b.WriteString("| Statistic |")
	for i := range reports {
		fmt.Fprintf(b, " %s |", reports[i].Model)
	}
	b.WriteString("\n|---|")
	for range reports {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	row := func(label string, cell func(*models.ResidualDiagnostics) string) {
		fmt.Fprintf(b, "| %s |", label)
		for i := range reports {
			fmt.Fprintf(b, " %s |", cell(&reports[i]))
		}
		b.WriteString("\n")
	}

	row("Count", func(d *models.ResidualDiagnostics) string { return strconv.Itoa(d.Count) })
	row("Mean", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.Mean) })
	row("Std dev", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.Std) })
	row("Min", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.Min) })
	row("Max", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.Max) })
	row("Skewness", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.Skewness) })
	row("Max abs deviation", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.MaxAbsDeviation) })
	row("Autocorr lag 1", func(d *models.ResidualDiagnostics) string {
		if len(d.Autocorr) == 0 {
			return "n/a"
		}
		return fmtMetric(d.Autocorr[0])
	})
	row("Noise ratio", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.NoiseRatio) })
	row("Ljung-Box p", func(d *models.ResidualDiagnostics) string { return fmtMetric(d.LjungBoxPValue) })
	b.WriteString("\n")
}

func writeImportance(b *strings.Builder, importance []models.FeatureWeight) {
	b.WriteString("## Feature Importance\n\n")
	b.WriteString("| Rank | Feature | Weight |\n|---|---|---|\n")
	for i, w := range importance {
		fmt.Fprintf(b, "| %d | %s | %s |\n", i+1, w.Feature, fmtMetric(w.Weight))
	}
	b.WriteString("\n")
}

func writeNarrative(b *strings.Builder, narrative *models.Narrative) {
	b.WriteString("## Narrative\n\n")

	switch {
	case !narrative.Fallback:
		fmt.Fprintf(b, "*Generated by `%s` in %d attempt(s); every numeric claim verified against the computed statistics.*\n\n",
			narrative.Model, narrative.Attempts)
	case narrative.Attempts > 0:
		fmt.Fprintf(b, "*Deterministic template narrative: %d generation attempt(s) failed verification, so the text below quotes the computed statistics directly.*\n\n",
			narrative.Attempts)
	default:
		b.WriteString("*Deterministic template narrative: no generative backend was available, so the text below quotes the computed statistics directly.*\n\n")
	}

	for _, section := range narrative.Sections {
		fmt.Fprintf(b, "### %s\n\n%s\n\n", section.Title, section.Body)
	}
}

func writeFooter(b *strings.Builder, run *models.RunArtifact) {
	b.WriteString("---\n\n")
	version := run.Version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(b, "auspex %s | config `%s` | run `%s`\n", version, configFingerprint(run.ConfigSnapshot), run.ID)
}

// configFingerprint derives a short stable identifier from the config
// snapshot so two reports can be compared for identical pipeline knobs at
// a glance
func configFingerprint(snapshot string) string {
	if snapshot == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(snapshot))
	return hex.EncodeToString(sum[:])[:12]
}

// fmtMetric formats a statistic for tables: integers plainly, moderate
// magnitudes with two decimals, small values with four significant digits
func fmtMetric(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e12 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	if math.Abs(v) >= 0.01 {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

// fmtAmount formats a currency amount with exact two-decimal arithmetic
// and thousands grouping, e.g. "4,094,899.20 EUR"
func fmtAmount(v float64, currency string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	fixed := decimal.NewFromFloat(v).StringFixed(2)
	if currency == "" {
		return groupThousands(fixed)
	}
	return groupThousands(fixed) + " " + currency
}

// groupThousands inserts comma separators into the integer part of a
// fixed-point decimal string
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot:]
	}

	if len(intPart) <= 3 {
		return sign + intPart + fracPart
	}

	var grouped strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		grouped.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteString(intPart[i : i+3])
	}
	return sign + grouped.String() + fracPart
}
