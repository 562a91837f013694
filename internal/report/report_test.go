package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/models"
)

func sampleArtifact() *models.RunArtifact {
	run := &models.RunArtifact{
		ID:          "run_test",
		InDomain:    "10YDK-1--------W",
		OutDomain:   "10YDK-1--------W",
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC),
		Resolution:  "PT15M",
		Status:      models.RunStatusCompleted,
		Version:     "1.2.3",
		CreatedAt:   time.Date(2025, 6, 29, 6, 0, 0, 0, time.UTC),
		StartedAt:   time.Date(2025, 6, 29, 6, 0, 1, 0, time.UTC),
		CompletedAt: time.Date(2025, 6, 29, 6, 0, 9, 0, time.UTC),
	}
	run.Series = &models.SeriesSummary{
		Points:      2688,
		Start:       run.PeriodStart,
		End:         run.PeriodEnd.Add(-15 * time.Minute),
		Resolution:  "PT15M",
		Currency:    "EUR",
		GapPolicy:   "flag",
		Gaps:        3,
		Flagged:     3,
		Duplicates:  1,
		Mean:        1523.44,
		Std:         480.2,
		Min:         -12.5,
		Max:         3980.75,
		TotalIncome: 4094899.2,
	}
	run.Hourly = &models.SeriesSummary{
		Points:      672,
		Resolution:  "PT60M",
		Currency:    "EUR",
		Mean:        6093.6,
		Min:         120.4,
		Max:         14890.1,
		TotalIncome: 4094899.2,
	}
	run.Features = &models.FeatureSummary{
		Columns:       []string{"lag_1", "lag_96", "roll_mean_96", "intraday_pos"},
		Rows:          2592,
		WarmupDropped: 96,
		Horizon:       0,
	}
	run.Bench = &models.BenchResult{
		Scores: []models.ModelScore{
			{Model: "naive", MAE: 210.4, RMSE: 302.7, MAPE: 14.2, MASE: 1.0},
			{Model: "seasonal_naive", MAE: 180.9, RMSE: 260.3, MAPE: 12.1, MASE: 0.86},
			{Model: "rolling_mean", MAE: 195.0, RMSE: 275.8, MAPE: 13.0, MASE: 0.93, Undefined: []string{"mape"}, MAPEExcluded: 4},
			{Model: "random_forest", MAE: 149.6, RMSE: 221.4, MAPE: 10.4, MASE: 0.71},
		},
		Best:          "random_forest",
		SplitIndex:    2073,
		SplitFraction: 0.8,
		TrainRows:     2073,
		EvalRows:      519,
		Importance: []models.FeatureWeight{
			{Feature: "lag_1", Weight: 0.42},
			{Feature: "roll_mean_96", Weight: 0.31},
		},
	}
	run.Diagnostics = []models.ResidualDiagnostics{
		{
			Model: "random_forest", Count: 519, Mean: -2.4, Std: 220.9,
			Min: -840.1, Max: 790.3, Skewness: 0.34, MaxAbsDeviation: 837.7,
			Autocorr: []float64{0.21, 0.08}, NoiseRatio: 0.21,
			LjungBoxStat: 31.2, LjungBoxPValue: 0.0092,
		},
		{
			Model: "naive", Count: 519, Mean: 1.1, Std: 301.5,
			Min: -1010.0, Max: 960.2, Skewness: -0.12, MaxAbsDeviation: 1011.1,
			Autocorr: []float64{0.55, 0.30}, NoiseRatio: 0.41,
			LjungBoxStat: 120.8, LjungBoxPValue: 0.0,
		},
	}
	run.Narrative = &models.Narrative{
		Sections: []models.NarrativeSection{
			{Title: "Overview", Body: "The window covered 2688 points.\n\n**Hard facts:**\n- points = 2688"},
			{Title: "Caveats", Body: "3 gaps were flagged.\n\n**Hard facts:**\n- gaps = 3"},
		},
		Grounded:       true,
		Attempts:       1,
		Model:          "gemini-3-flash-preview",
		PayloadVersion: "v1",
		GeneratedAt:    time.Date(2025, 6, 29, 6, 0, 8, 0, time.UTC),
	}
	run.ConfigSnapshot = `{"split_fraction":0.8}`
	return run
}

func TestAssembleCompletedRun(t *testing.T) {
	markdown, err := Assemble(sampleArtifact())
	require.NoError(t, err)

	assert.Contains(t, markdown, "# Congestion Income Analysis: 10YDK-1--------W > 10YDK-1--------W")
	assert.Contains(t, markdown, "`run_test`")
	assert.Contains(t, markdown, "2025-06-01 00:00 to 2025-06-29 00:00 UTC")

	assert.Contains(t, markdown, "## Series")
	assert.Contains(t, markdown, "| Total income | 4,094,899.20 EUR |")
	assert.Contains(t, markdown, "| Duplicates collapsed | 1 |")

	assert.Contains(t, markdown, "## Hourly View")
	assert.Contains(t, markdown, "| Hours | 672 |")

	assert.Contains(t, markdown, "## Feature Frame")
	assert.Contains(t, markdown, "2592 (96 warmup rows dropped)")

	assert.Contains(t, markdown, "## Model Comparison")
	assert.Contains(t, markdown, "2073 train rows, 519 eval rows (split fraction 0.80)")
	assert.Contains(t, markdown, "random_forest (best)")
	assert.Contains(t, markdown, "undefined: mape")
	assert.Contains(t, markdown, "MAPE skipped 4 near-zero point(s)")

	assert.Contains(t, markdown, "## Residual Diagnostics")
	assert.Contains(t, markdown, "| Statistic | random_forest | naive |")
	assert.Contains(t, markdown, "| Ljung-Box p |")

	assert.Contains(t, markdown, "## Feature Importance")
	assert.Contains(t, markdown, "| 1 | lag_1 | 0.42 |")

	assert.Contains(t, markdown, "## Narrative")
	assert.Contains(t, markdown, "Generated by `gemini-3-flash-preview` in 1 attempt(s)")
	assert.Contains(t, markdown, "### Overview")
	assert.Contains(t, markdown, "### Caveats")

	assert.Contains(t, markdown, "auspex 1.2.3 | config `")
	assert.NotContains(t, markdown, "## Failure")
}

func TestAssembleFallbackLabel(t *testing.T) {
	run := sampleArtifact()
	run.Narrative.Fallback = true
	run.Narrative.Model = ""
	run.Narrative.Attempts = 2
	run.Narrative.Mismatches = []string{`section 1 (Overview): number "37.3%" not backed by any payload fact`}

	markdown, err := Assemble(run)
	require.NoError(t, err)
	assert.Contains(t, markdown, "Deterministic template narrative: 2 generation attempt(s) failed verification")

	run.Narrative.Attempts = 0
	markdown, err = Assemble(run)
	require.NoError(t, err)
	assert.Contains(t, markdown, "no generative backend was available")
}

func TestAssembleFailedRun(t *testing.T) {
	run := &models.RunArtifact{
		ID:          "run_broken",
		InDomain:    "10YDK-1--------W",
		OutDomain:   "10YDK-1--------W",
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC),
		Resolution:  "PT15M",
		Status:      models.RunStatusFailed,
		Error:       "features: window 96 exceeds series length 50",
	}

	markdown, err := Assemble(run)
	require.NoError(t, err)

	assert.Contains(t, markdown, "## Failure")
	assert.Contains(t, markdown, "features: window 96 exceeds series length 50")
	assert.NotContains(t, markdown, "## Model Comparison")
	assert.Contains(t, markdown, "config `none`")
}

func TestAssembleFailedModelRow(t *testing.T) {
	run := sampleArtifact()
	run.Bench.Scores[3].Error = "forest fit failed: no usable training rows"
	run.Bench.Best = "seasonal_naive"

	markdown, err := Assemble(run)
	require.NoError(t, err)
	assert.Contains(t, markdown, "| random_forest | n/a | n/a | n/a | n/a | n/a | forest fit failed: no usable training rows |")
	assert.Contains(t, markdown, "seasonal_naive (best)")
}

func TestAssembleRequiresRun(t *testing.T) {
	_, err := Assemble(nil)
	assert.Error(t, err)

	_, err = Assemble(&models.RunArtifact{})
	assert.Error(t, err)
}

func TestFmtAmount(t *testing.T) {
	tests := []struct {
		value    float64
		currency string
		want     string
	}{
		{4094899.2, "EUR", "4,094,899.20 EUR"},
		{999.99, "EUR", "999.99 EUR"},
		{-1234.5, "EUR", "-1,234.50 EUR"},
		{0, "EUR", "0.00 EUR"},
		{1000000, "", "1,000,000.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fmtAmount(tt.value, tt.currency))
	}
	assert.Equal(t, "n/a", fmtAmount(math.NaN(), "EUR"))
}

func TestFmtMetric(t *testing.T) {
	assert.Equal(t, "2", fmtMetric(2))
	assert.Equal(t, "0.71", fmtMetric(0.71))
	assert.Equal(t, "-12.50", fmtMetric(-12.5))
	assert.Equal(t, "0.0042", fmtMetric(0.0042))
	assert.Equal(t, "n/a", fmtMetric(math.NaN()))
}

func TestRenderHTML(t *testing.T) {
	markdown, err := Assemble(sampleArtifact())
	require.NoError(t, err)

	page, err := RenderHTML(markdown, "Congestion Income Analysis: A > B")
	require.NoError(t, err)

	html := string(page)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>Congestion Income Analysis: A &gt; B</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h2")
	assert.Contains(t, html, "4,094,899.20 EUR")
}

func TestRenderPDF(t *testing.T) {
	markdown, err := Assemble(sampleArtifact())
	require.NoError(t, err)

	pdfBytes, err := RenderPDF(markdown, "Congestion Income Analysis")
	require.NoError(t, err)
	require.NotEmpty(t, pdfBytes)

	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
	assert.Greater(t, len(pdfBytes), 500)
}

func TestWriterWritesConfiguredFormats(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(&common.ReportConfig{
		OutputDir: dir,
		Formats:   []string{"markdown", "html"},
	})

	paths, err := writer.Write(sampleArtifact())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, filepath.Join(dir, "run_test.md"), paths["markdown"])
	assert.Equal(t, filepath.Join(dir, "run_test.html"), paths["html"])
	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestWriterRejectsUnknownFormat(t *testing.T) {
	writer := NewWriter(&common.ReportConfig{
		OutputDir: t.TempDir(),
		Formats:   []string{"docx"},
	})

	_, err := writer.Write(sampleArtifact())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}
