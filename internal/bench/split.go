package bench

import "fmt"

// SplitSpec partitions a feature frame into training and evaluation ranges
// by time. Training rows [0, TrainEnd) strictly precede evaluation rows
// [TrainEnd, Rows); time-ordered data is never shuffled.
type SplitSpec struct {
	TrainEnd int // First evaluation row
	Rows     int
	Fraction float64
}

// NewSplit derives the boundary from the configured training fraction
func NewSplit(rows int, fraction float64) (SplitSpec, error) {
	if fraction <= 0 || fraction >= 1 {
		return SplitSpec{}, fmt.Errorf("split fraction must be in (0,1), got %v", fraction)
	}
	trainEnd := int(float64(rows) * fraction)
	if trainEnd < 2 {
		return SplitSpec{}, fmt.Errorf("training range too small: %d rows at fraction %v", rows, fraction)
	}
	if trainEnd >= rows {
		return SplitSpec{}, fmt.Errorf("evaluation range empty: %d rows at fraction %v", rows, fraction)
	}
	return SplitSpec{TrainEnd: trainEnd, Rows: rows, Fraction: fraction}, nil
}

// TrainRows returns the size of the training range
func (s SplitSpec) TrainRows() int {
	return s.TrainEnd
}

// EvalRows returns the size of the evaluation range
func (s SplitSpec) EvalRows() int {
	return s.Rows - s.TrainEnd
}
