package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp layouts accepted in CSV input, tried in order
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ReadCSV parses raw points from a two-column CSV stream (timestamp, value).
// A header row is detected and skipped when the first field is not a parsable
// timestamp. Schema problems are fatal for the run.
func ReadCSV(r io.Reader) ([]Point, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed CSV: %v", err), Index: -1}
	}
	if len(records) == 0 {
		return nil, &ValidationError{Reason: "empty CSV input", Index: -1}
	}

	points := make([]Point, 0, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, &ValidationError{Reason: "expected columns: timestamp,value", Index: i}
		}

		ts, tsErr := parseCSVTime(record[0])
		if tsErr != nil {
			if i == 0 {
				// Header row
				continue
			}
			return nil, &ValidationError{Reason: fmt.Sprintf("unparsable timestamp %q", record[0]), Index: i}
		}

		// Values pass through decimal so malformed numerics are rejected at
		// the boundary rather than becoming NaN downstream
		d, dErr := decimal.NewFromString(strings.TrimSpace(record[1]))
		if dErr != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("unparsable value %q", record[1]), Index: i}
		}

		points = append(points, Point{Timestamp: ts, Value: d.InexactFloat64()})
	}

	if len(points) == 0 {
		return nil, &ValidationError{Reason: "CSV contains no data rows", Index: -1}
	}
	return points, nil
}

// ReadCSVFile parses raw points from a CSV file on disk
func ReadCSVFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseCSVTime(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, field); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", field)
}
