package series

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/ternarybob/auspex/internal/models"
)

// Point is one raw observation from the data source
type Point struct {
	Timestamp time.Time
	Value     float64
}

// GapPolicy controls what Load does with missing intervals
type GapPolicy string

const (
	// GapPolicyDrop keeps only observed points; missing intervals stay missing
	GapPolicyDrop GapPolicy = "drop"
	// GapPolicyForwardFill synthesizes missing intervals from the previous value
	GapPolicyForwardFill GapPolicy = "forward_fill"
	// GapPolicyFlag forward-fills missing intervals and records their indexes
	GapPolicyFlag GapPolicy = "flag"
)

// Config controls series validation
type Config struct {
	Interval           time.Duration // Nominal sampling interval
	Tolerance          time.Duration // Allowed jitter around multiples of the interval
	GapPolicy          GapPolicy
	RequireNonNegative bool   // Congestion income is a revenue; negatives indicate bad data
	Currency           string // Carried through to the summary
}

// ValidationError reports malformed or irregular input that makes the series
// unusable for the run. It is never retried here; retry belongs to the
// upstream data source.
type ValidationError struct {
	Reason string
	Index  int // Offending input point, -1 when not point-specific
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("series validation failed at point %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("series validation failed: %s", e.Reason)
}

// Series is a validated, regularly sampled time series. Instances are
// immutable once built: accessors return defensive copies and every
// downstream stage produces a new artifact instead of mutating the store.
type Series struct {
	timestamps []time.Time
	values     []float64
	interval   time.Duration
	currency   string
	policy     GapPolicy
	flagged    []int // Indexes synthesized under GapPolicyFlag
	gaps       int   // Missing intervals detected
	filled     int   // Intervals synthesized by forward_fill
	duplicates int   // Duplicate timestamps collapsed
}

// Load validates raw points into a Series. Duplicate timestamps collapse to
// the last value seen. Decreasing timestamps, non-finite values, interval
// drift beyond the tolerance and (optionally) negative values are all fatal.
func Load(points []Point, cfg Config) (*Series, error) {
	if len(points) == 0 {
		return nil, &ValidationError{Reason: "empty series", Index: -1}
	}
	if cfg.Interval <= 0 {
		return nil, &ValidationError{Reason: "nominal interval must be positive", Index: -1}
	}
	switch cfg.GapPolicy {
	case GapPolicyDrop, GapPolicyForwardFill, GapPolicyFlag:
	case "":
		cfg.GapPolicy = GapPolicyFlag
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown gap policy %q", cfg.GapPolicy), Index: -1}
	}

	s := &Series{
		interval: cfg.Interval,
		currency: cfg.Currency,
		policy:   cfg.GapPolicy,
	}

	// First pass: order, duplicates and value domain
	ordered := make([]Point, 0, len(points))
	for i, p := range points {
		if p.Timestamp.IsZero() {
			return nil, &ValidationError{Reason: "zero timestamp", Index: i}
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, &ValidationError{Reason: "non-finite value", Index: i}
		}
		if cfg.RequireNonNegative && p.Value < 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf("negative value %v", p.Value), Index: i}
		}

		p.Timestamp = p.Timestamp.UTC()
		if len(ordered) > 0 {
			prev := ordered[len(ordered)-1].Timestamp
			if p.Timestamp.Equal(prev) {
				// Last value wins for republished intervals
				ordered[len(ordered)-1] = p
				s.duplicates++
				continue
			}
			if p.Timestamp.Before(prev) {
				return nil, &ValidationError{Reason: "timestamps not strictly increasing", Index: i}
			}
		}
		ordered = append(ordered, p)
	}

	// Second pass: regularity and gap handling
	s.timestamps = make([]time.Time, 0, len(ordered))
	s.values = make([]float64, 0, len(ordered))
	s.timestamps = append(s.timestamps, ordered[0].Timestamp)
	s.values = append(s.values, ordered[0].Value)

	for i := 1; i < len(ordered); i++ {
		prev := ordered[i-1]
		cur := ordered[i]
		delta := cur.Timestamp.Sub(prev.Timestamp)

		steps := int(math.Round(float64(delta) / float64(cfg.Interval)))
		if steps < 1 {
			steps = 1
		}
		drift := delta - time.Duration(steps)*cfg.Interval
		if drift < 0 {
			drift = -drift
		}
		if drift > cfg.Tolerance {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("interval %v is not a multiple of %v", delta, cfg.Interval),
				Index:  i,
			}
		}

		if steps > 1 {
			missing := steps - 1
			s.gaps += missing
			switch cfg.GapPolicy {
			case GapPolicyForwardFill:
				for k := 1; k <= missing; k++ {
					s.timestamps = append(s.timestamps, prev.Timestamp.Add(time.Duration(k)*cfg.Interval))
					s.values = append(s.values, prev.Value)
					s.filled++
				}
			case GapPolicyFlag:
				for k := 1; k <= missing; k++ {
					s.flagged = append(s.flagged, len(s.values))
					s.timestamps = append(s.timestamps, prev.Timestamp.Add(time.Duration(k)*cfg.Interval))
					s.values = append(s.values, prev.Value)
				}
			case GapPolicyDrop:
				// Observed points only
			}
		}

		s.timestamps = append(s.timestamps, cur.Timestamp)
		s.values = append(s.values, cur.Value)
	}

	return s, nil
}

// Len returns the number of observations
func (s *Series) Len() int {
	return len(s.values)
}

// Interval returns the nominal sampling interval
func (s *Series) Interval() time.Duration {
	return s.interval
}

// Currency returns the currency code the values are denominated in
func (s *Series) Currency() string {
	return s.currency
}

// Values returns a copy of the observation values in time order
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Timestamps returns a copy of the observation timestamps in time order
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.timestamps))
	copy(out, s.timestamps)
	return out
}

// At returns the observation at index i
func (s *Series) At(i int) (time.Time, float64) {
	return s.timestamps[i], s.values[i]
}

// Flagged returns a copy of the indexes synthesized under GapPolicyFlag
func (s *Series) Flagged() []int {
	out := make([]int, len(s.flagged))
	copy(out, s.flagged)
	return out
}

// Summary computes descriptive statistics over the validated series.
// The income total is accumulated in decimal to keep currency sums exact
// before the single conversion back to float.
func (s *Series) Summary() *models.SeriesSummary {
	min, max := s.values[0], s.values[0]
	total := decimal.Zero
	for _, v := range s.values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		total = total.Add(decimal.NewFromFloat(v))
	}

	std := 0.0
	if len(s.values) > 1 {
		std = stat.StdDev(s.values, nil)
	}

	return &models.SeriesSummary{
		Points:      len(s.values),
		Start:       s.timestamps[0],
		End:         s.timestamps[len(s.timestamps)-1],
		Resolution:  FormatResolution(s.interval),
		Currency:    s.currency,
		GapPolicy:   string(s.policy),
		Gaps:        s.gaps,
		Filled:      s.filled,
		Flagged:     len(s.flagged),
		Duplicates:  s.duplicates,
		Mean:        stat.Mean(s.values, nil),
		Std:         std,
		Min:         min,
		Max:         max,
		TotalIncome: total.InexactFloat64(),
	}
}

// Resample aggregates the series onto a coarser grid, producing a new
// Series sampled at the target interval. The target must be a multiple of
// the current interval; how selects "sum" (income totals) or "mean". Only
// buckets aligned to the target grid and fully covered by observations are
// emitted, so partial edge intervals and holes left by GapPolicyDrop never
// produce a misleading aggregate.
func (s *Series) Resample(interval time.Duration, how string) (*Series, error) {
	if interval <= 0 || interval%s.interval != 0 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("target interval %v is not a multiple of %v", interval, s.interval),
			Index:  -1,
		}
	}
	if how != "sum" && how != "mean" {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown aggregation %q", how), Index: -1}
	}

	ratio := int(interval / s.interval)
	out := &Series{
		interval: interval,
		currency: s.currency,
		policy:   s.policy,
	}

	for i := 0; i+ratio <= len(s.values); {
		start := s.timestamps[i]
		if !start.Equal(start.Truncate(interval)) {
			i++
			continue
		}
		// The grid is regular, so a matching last timestamp means the
		// bucket is contiguous
		if !s.timestamps[i+ratio-1].Equal(start.Add(time.Duration(ratio-1) * s.interval)) {
			i++
			continue
		}

		total := decimal.Zero
		for k := 0; k < ratio; k++ {
			total = total.Add(decimal.NewFromFloat(s.values[i+k]))
		}
		if how == "mean" {
			total = total.Div(decimal.NewFromInt(int64(ratio)))
		}
		out.timestamps = append(out.timestamps, start)
		out.values = append(out.values, total.InexactFloat64())
		i += ratio
	}

	if len(out.values) == 0 {
		return nil, &ValidationError{Reason: "no complete intervals to resample", Index: -1}
	}
	return out, nil
}

// ParseResolution converts an ISO 8601 duration code used by the market
// platform into a sampling interval
func ParseResolution(resolution string) (time.Duration, error) {
	switch resolution {
	case "PT15M":
		return 15 * time.Minute, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT60M", "PT1H":
		return time.Hour, nil
	case "P1D":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported resolution %q", resolution)
}

// FormatResolution converts a sampling interval back into its ISO 8601 code
func FormatResolution(interval time.Duration) string {
	switch interval {
	case 15 * time.Minute:
		return "PT15M"
	case 30 * time.Minute:
		return "PT30M"
	case time.Hour:
		return "PT60M"
	case 24 * time.Hour:
		return "P1D"
	}
	return fmt.Sprintf("PT%dM", int(interval.Minutes()))
}
