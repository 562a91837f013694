package features

import (
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/auspex/internal/models"
	"github.com/ternarybob/auspex/internal/series"
)

// Config enumerates the engineered feature set. Every feature is computed
// from observations strictly before its own timestamp, so a row's features
// never see the value they help predict.
type Config struct {
	Lags                  []int     // Step-backs, each yields column lag_<k>
	Windows               []int     // Rolling window lengths
	WindowStats           []string  // Statistics per window: "mean", "std", "min", "max"
	DiffSpans             []int     // Differencing spans, each yields diff_<d>
	ZScoreWindow          int       // 0 disables the zscore_<w> column
	VolatilityWindow      int       // 0 disables vol_<w> and vol_regime
	VolatilityPercentiles []float64 // Ascending regime thresholds in (0,1)
	SpreadWindow          int       // 0 disables the trailing max-min spread_<w>
	Intraday              bool      // Calendar position columns from timestamps
	Horizon               int       // Steps ahead the target leads the row, 0 predicts the row timestamp
}

// ComputationError reports a feature configuration the series cannot support.
// It is fatal for that configuration; shrinking lags or windows recovers.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "feature computation failed: " + e.Reason
}

// Frame is the engineered feature matrix: one row per surviving timestamp,
// a fixed column order, and the target aligned row-for-row. Treat instances
// as read-only; downstream stages derive new artifacts instead of mutating.
type Frame struct {
	Timestamps []time.Time
	Columns    []string    // Feature names in Data column order
	Data       [][]float64 // Row-major, len(Columns) per row
	Target     []float64
	Warmup     int // Leading observations dropped for incomplete history
	Horizon    int
}

// Rows returns the number of rows in the frame
func (f *Frame) Rows() int {
	return len(f.Data)
}

// Column returns the values of a named feature column, or nil if absent
func (f *Frame) Column(name string) []float64 {
	for c, col := range f.Columns {
		if col == name {
			out := make([]float64, len(f.Data))
			for r := range f.Data {
				out[r] = f.Data[r][c]
			}
			return out
		}
	}
	return nil
}

// Summary describes the frame shape for the run artifact
func (f *Frame) Summary() *models.FeatureSummary {
	columns := make([]string, len(f.Columns))
	copy(columns, f.Columns)
	return &models.FeatureSummary{
		Columns:       columns,
		Rows:          f.Rows(),
		WarmupDropped: f.Warmup,
		Horizon:       f.Horizon,
	}
}

// Build derives the feature frame from a validated series. The first
// max(lag, window) observations lack full history and are dropped rather
// than filled; with a positive horizon the trailing horizon rows drop too.
// Identical series and config always produce an identical frame.
func Build(s *series.Series, cfg Config) (*Frame, error) {
	n := s.Len()
	values := s.Values()
	timestamps := s.Timestamps()

	type column struct {
		name string
		data []float64 // Full-length, NaN during warmup
	}
	var cols []column

	warmup := 0
	track := func(w int) {
		if w > warmup {
			warmup = w
		}
	}

	for _, k := range cfg.Lags {
		if k <= 0 {
			return nil, &ComputationError{Reason: fmt.Sprintf("lag %d must be positive", k)}
		}
		cols = append(cols, column{fmt.Sprintf("lag_%d", k), lagSeries(values, k)})
		track(k)
	}

	for _, w := range cfg.Windows {
		if w <= 1 {
			return nil, &ComputationError{Reason: fmt.Sprintf("window %d must exceed 1", w)}
		}
		for _, statName := range cfg.WindowStats {
			var aligned []float64
			switch statName {
			case "mean":
				aligned = rollingMean(values, w)
			case "std":
				aligned = rollingStd(values, w)
			case "min":
				aligned = rollingMin(values, w)
			case "max":
				aligned = rollingMax(values, w)
			default:
				return nil, &ComputationError{Reason: fmt.Sprintf("unknown window statistic %q", statName)}
			}
			cols = append(cols, column{fmt.Sprintf("roll_%s_%d", statName, w), shift(aligned)})
		}
		track(w)
	}

	for _, d := range cfg.DiffSpans {
		if d <= 0 {
			return nil, &ComputationError{Reason: fmt.Sprintf("diff span %d must be positive", d)}
		}
		cols = append(cols, column{fmt.Sprintf("diff_%d", d), shift(diffSpan(values, d))})
		track(d + 1)
	}

	if cfg.ZScoreWindow > 0 {
		if cfg.ZScoreWindow <= 1 {
			return nil, &ComputationError{Reason: "zscore window must exceed 1"}
		}
		cols = append(cols, column{
			fmt.Sprintf("zscore_%d", cfg.ZScoreWindow),
			shift(rollingZScore(values, cfg.ZScoreWindow)),
		})
		track(cfg.ZScoreWindow)
	}

	if cfg.VolatilityWindow > 0 {
		if cfg.VolatilityWindow <= 1 {
			return nil, &ComputationError{Reason: "volatility window must exceed 1"}
		}
		if err := checkThresholds(cfg.VolatilityPercentiles); err != nil {
			return nil, err
		}
		vol := shift(rollingStd(values, cfg.VolatilityWindow))
		cols = append(cols, column{fmt.Sprintf("vol_%d", cfg.VolatilityWindow), vol})
		cols = append(cols, column{"vol_regime", regimeSeries(vol, cfg.VolatilityPercentiles)})
		track(cfg.VolatilityWindow)
	}

	if cfg.SpreadWindow > 0 {
		if cfg.SpreadWindow <= 1 {
			return nil, &ComputationError{Reason: "spread window must exceed 1"}
		}
		hi := rollingMax(values, cfg.SpreadWindow)
		lo := rollingMin(values, cfg.SpreadWindow)
		spread := nanSlice(n)
		for i := range spread {
			if !math.IsNaN(hi[i]) && !math.IsNaN(lo[i]) {
				spread[i] = hi[i] - lo[i]
			}
		}
		cols = append(cols, column{fmt.Sprintf("spread_%d", cfg.SpreadWindow), shift(spread)})
		track(cfg.SpreadWindow)
	}

	if cfg.Intraday {
		pos := make([]float64, n)
		hour := make([]float64, n)
		dow := make([]float64, n)
		weekend := make([]float64, n)
		for i, ts := range timestamps {
			secs := float64(ts.Hour()*3600 + ts.Minute()*60 + ts.Second())
			pos[i] = secs / 86400.0
			hour[i] = float64(ts.Hour())
			wd := ts.Weekday()
			dow[i] = float64(wd)
			if wd == time.Saturday || wd == time.Sunday {
				weekend[i] = 1
			}
		}
		cols = append(cols,
			column{"intraday_pos", pos},
			column{"hour", hour},
			column{"dow", dow},
			column{"is_weekend", weekend})
	}

	if len(cols) == 0 {
		return nil, &ComputationError{Reason: "no features configured"}
	}
	if cfg.Horizon < 0 {
		return nil, &ComputationError{Reason: "horizon must not be negative"}
	}

	rows := n - warmup - cfg.Horizon
	if rows <= 0 {
		return nil, &ComputationError{
			Reason: fmt.Sprintf("series of %d points too short for warmup %d and horizon %d", n, warmup, cfg.Horizon),
		}
	}

	frame := &Frame{
		Timestamps: make([]time.Time, 0, rows),
		Columns:    make([]string, len(cols)),
		Data:       make([][]float64, 0, rows),
		Target:     make([]float64, 0, rows),
		Warmup:     warmup,
		Horizon:    cfg.Horizon,
	}
	for c, col := range cols {
		frame.Columns[c] = col.name
	}

	for t := warmup; t < n-cfg.Horizon; t++ {
		row := make([]float64, len(cols))
		for c, col := range cols {
			v := col.data[t]
			if math.IsNaN(v) {
				return nil, &ComputationError{
					Reason: fmt.Sprintf("column %s undefined at row %d", col.name, t),
				}
			}
			row[c] = v
		}
		frame.Data = append(frame.Data, row)
		frame.Target = append(frame.Target, values[t+cfg.Horizon])
		frame.Timestamps = append(frame.Timestamps, timestamps[t])
	}

	return frame, nil
}

func checkThresholds(thresholds []float64) error {
	if len(thresholds) == 0 {
		return &ComputationError{Reason: "volatility thresholds required when volatility window is set"}
	}
	prev := 0.0
	for _, th := range thresholds {
		if th <= prev || th >= 1 {
			return &ComputationError{Reason: fmt.Sprintf("volatility thresholds must be ascending in (0,1), got %v", thresholds)}
		}
		prev = th
	}
	return nil
}
