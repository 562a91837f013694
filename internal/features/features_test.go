package features

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/ternarybob/auspex/internal/series"
)

var testStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func buildSeries(t *testing.T, values []float64) *series.Series {
	t.Helper()
	points := make([]series.Point, len(values))
	for i, v := range values {
		points[i] = series.Point{Timestamp: testStart.Add(time.Duration(i) * 15 * time.Minute), Value: v}
	}
	s, err := series.Load(points, series.Config{
		Interval:  15 * time.Minute,
		Tolerance: time.Second,
		GapPolicy: series.GapPolicyFlag,
		Currency:  "EUR",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func randomValues(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	level := 1000.0
	for i := range values {
		level += rng.NormFloat64() * 25
		values[i] = math.Abs(level)
	}
	return values
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildWeekScenario(t *testing.T) {
	// One week of 15-minute intervals
	values := randomValues(672, 7)
	s := buildSeries(t, values)

	frame, err := Build(s, Config{
		Lags:        []int{1},
		Windows:     []int{4},
		WindowStats: []string{"mean"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if frame.Rows() != 668 {
		t.Errorf("expected 668 rows, got %d", frame.Rows())
	}
	if frame.Warmup != 4 {
		t.Errorf("expected warmup 4, got %d", frame.Warmup)
	}
	want := []string{"lag_1", "roll_mean_4"}
	if !reflect.DeepEqual(frame.Columns, want) {
		t.Errorf("expected columns %v, got %v", want, frame.Columns)
	}

	// First surviving row is series index 4
	if !almostEqual(frame.Data[0][0], values[3]) {
		t.Errorf("lag_1 of first row: expected %v, got %v", values[3], frame.Data[0][0])
	}
	wantMean := (values[0] + values[1] + values[2] + values[3]) / 4
	if math.Abs(frame.Data[0][1]-wantMean) > 1e-6 {
		t.Errorf("roll_mean_4 of first row: expected %v, got %v", wantMean, frame.Data[0][1])
	}
	if !almostEqual(frame.Target[0], values[4]) {
		t.Errorf("target of first row: expected %v, got %v", values[4], frame.Target[0])
	}
	if !frame.Timestamps[0].Equal(testStart.Add(4 * 15 * time.Minute)) {
		t.Errorf("unexpected first row timestamp %v", frame.Timestamps[0])
	}
}

func TestBuildNoLeakage(t *testing.T) {
	values := randomValues(300, 11)
	cfg := Config{
		Lags:                  []int{1, 4},
		Windows:               []int{4, 24},
		WindowStats:           []string{"mean", "std"},
		DiffSpans:             []int{1},
		ZScoreWindow:          24,
		VolatilityWindow:      24,
		VolatilityPercentiles: []float64{0.33, 0.66},
	}

	base, err := Build(buildSeries(t, values), cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Perturb a single future observation and rebuild
	perturbAt := 250
	perturbed := make([]float64, len(values))
	copy(perturbed, values)
	perturbed[perturbAt] += 5000

	mutated, err := Build(buildSeries(t, perturbed), cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Every feature at or before the perturbed timestamp is unchanged; only
	// later rows may differ
	boundary := perturbAt - base.Warmup
	for r := 0; r <= boundary; r++ {
		if !reflect.DeepEqual(base.Data[r], mutated.Data[r]) {
			t.Fatalf("row %d features changed by a future perturbation", r)
		}
	}
	// Targets strictly before the perturbed timestamp are unchanged too
	for r := 0; r < boundary; r++ {
		if base.Target[r] != mutated.Target[r] {
			t.Fatalf("row %d target changed by a future perturbation", r)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	values := randomValues(500, 3)
	cfg := Config{
		Lags:                  []int{1, 2, 96},
		Windows:               []int{4, 96},
		WindowStats:           []string{"mean", "std", "min", "max"},
		DiffSpans:             []int{1, 4},
		ZScoreWindow:          96,
		VolatilityWindow:      96,
		VolatilityPercentiles: []float64{0.33, 0.66},
		SpreadWindow:          96,
		Intraday:              true,
	}

	a, err := Build(buildSeries(t, values), cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := Build(buildSeries(t, values), cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !reflect.DeepEqual(a.Columns, b.Columns) {
		t.Fatal("column order differs between identical builds")
	}
	if !reflect.DeepEqual(a.Data, b.Data) {
		t.Fatal("feature values differ between identical builds")
	}
	if !reflect.DeepEqual(a.Target, b.Target) {
		t.Fatal("targets differ between identical builds")
	}
}

func TestBuildWarmupIsMaxRequirement(t *testing.T) {
	values := randomValues(300, 5)
	frame, err := Build(buildSeries(t, values), Config{
		Lags:        []int{1, 2, 96},
		Windows:     []int{4},
		WindowStats: []string{"mean"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if frame.Warmup != 96 {
		t.Errorf("expected warmup 96, got %d", frame.Warmup)
	}
	if frame.Rows() != 204 {
		t.Errorf("expected 204 rows, got %d", frame.Rows())
	}
}

func TestBuildHorizon(t *testing.T) {
	values := randomValues(100, 9)
	frame, err := Build(buildSeries(t, values), Config{
		Lags:    []int{1},
		Horizon: 2,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if frame.Rows() != 97 {
		t.Errorf("expected 97 rows, got %d", frame.Rows())
	}
	// Row for series index 1 targets index 3
	if !almostEqual(frame.Target[0], values[3]) {
		t.Errorf("expected target %v, got %v", values[3], frame.Target[0])
	}
}

func TestBuildInsufficientHistory(t *testing.T) {
	values := randomValues(50, 2)
	_, err := Build(buildSeries(t, values), Config{
		Lags:        []int{1},
		Windows:     []int{96},
		WindowStats: []string{"mean"},
	})

	var cerr *ComputationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ComputationError, got %v", err)
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	values := randomValues(100, 2)
	s := buildSeries(t, values)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no features", Config{}},
		{"zero lag", Config{Lags: []int{0}}},
		{"window of one", Config{Windows: []int{1}, WindowStats: []string{"mean"}}},
		{"unknown stat", Config{Windows: []int{4}, WindowStats: []string{"median"}}},
		{"negative horizon", Config{Lags: []int{1}, Horizon: -1}},
		{"bad thresholds", Config{Lags: []int{1}, VolatilityWindow: 4, VolatilityPercentiles: []float64{0.66, 0.33}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(s, tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestZScoreZeroOnConstantSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 500
	}
	frame, err := Build(buildSeries(t, values), Config{
		Lags:         []int{1},
		ZScoreWindow: 24,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	zscores := frame.Column("zscore_24")
	for r, z := range zscores {
		if z != 0 {
			t.Fatalf("expected zero z-score on constant series, got %v at row %d", z, r)
		}
	}
}

func TestColumnOrderFullConfig(t *testing.T) {
	values := randomValues(400, 13)
	frame, err := Build(buildSeries(t, values), Config{
		Lags:                  []int{1, 2},
		Windows:               []int{4},
		WindowStats:           []string{"mean", "std"},
		DiffSpans:             []int{1},
		ZScoreWindow:          24,
		VolatilityWindow:      24,
		VolatilityPercentiles: []float64{0.33, 0.66},
		SpreadWindow:          24,
		Intraday:              true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{
		"lag_1", "lag_2",
		"roll_mean_4", "roll_std_4",
		"diff_1",
		"zscore_24",
		"vol_24", "vol_regime",
		"spread_24",
		"intraday_pos", "hour", "dow", "is_weekend",
	}
	if !reflect.DeepEqual(frame.Columns, want) {
		t.Errorf("expected columns %v, got %v", want, frame.Columns)
	}
}

func TestVolatilityRegimeOrdering(t *testing.T) {
	// Calm first half, turbulent second half
	rng := rand.New(rand.NewSource(21))
	values := make([]float64, 400)
	for i := range values {
		scale := 1.0
		if i >= 200 {
			scale = 50.0
		}
		values[i] = 1000 + rng.NormFloat64()*scale
	}

	frame, err := Build(buildSeries(t, values), Config{
		Lags:                  []int{1},
		VolatilityWindow:      24,
		VolatilityPercentiles: []float64{0.33, 0.66},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	regimes := frame.Column("vol_regime")
	for _, r := range regimes {
		if r != 0 && r != 1 && r != 2 {
			t.Fatalf("regime outside the ordered bucket set: %v", r)
		}
	}
	// The first classified row has no lower history, so it ranks low
	if regimes[0] != 0 {
		t.Errorf("expected low regime at the start, got %v", regimes[0])
	}
	// The turbulence spike must reach the high bucket somewhere
	sawHigh := false
	for _, r := range regimes {
		if r == 2 {
			sawHigh = true
			break
		}
	}
	if !sawHigh {
		t.Error("expected at least one high-regime classification in the turbulent half")
	}
}

func TestClassifyRegime(t *testing.T) {
	thresholds := []float64{0.33, 0.66}
	tests := []struct {
		percentile float64
		want       float64
	}{
		{0.0, 0},
		{0.32, 0},
		{0.33, 1},
		{0.5, 1},
		{0.66, 2},
		{1.0, 2},
	}
	for _, tt := range tests {
		if got := classifyRegime(tt.percentile, thresholds); got != tt.want {
			t.Errorf("classifyRegime(%v) = %v, want %v", tt.percentile, got, tt.want)
		}
	}
}

func TestRollingKernels(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	mean := rollingMean(values, 4)
	if !math.IsNaN(mean[2]) {
		t.Error("rolling mean should be NaN before the window fills")
	}
	if math.Abs(mean[3]-2.5) > 1e-9 || math.Abs(mean[4]-3.5) > 1e-9 {
		t.Errorf("unexpected rolling means %v", mean)
	}

	std := rollingStd(values, 4)
	wantStd := math.Sqrt(5.0 / 3.0) // sample variance of 1,2,3,4
	if math.Abs(std[3]-wantStd) > 1e-9 {
		t.Errorf("expected rolling std %v, got %v", wantStd, std[3])
	}

	min := rollingMin(values, 3)
	max := rollingMax(values, 3)
	if min[4] != 3 || max[4] != 5 {
		t.Errorf("expected min 3 max 5, got min=%v max=%v", min[4], max[4])
	}

	diff := diffSpan(values, 2)
	if !math.IsNaN(diff[1]) || diff[2] != 2 {
		t.Errorf("unexpected diffs %v", diff)
	}

	lagged := lagSeries(values, 1)
	if !math.IsNaN(lagged[0]) || lagged[1] != 1 || lagged[4] != 4 {
		t.Errorf("unexpected lags %v", lagged)
	}
}

func TestExpandingPercentile(t *testing.T) {
	values := []float64{10, 20, 5, 30}
	got := expandingPercentile(values)

	want := []float64{0, 0.5, 0, 0.75}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("percentile[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
