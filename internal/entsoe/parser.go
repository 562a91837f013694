package entsoe

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/auspex/internal/series"
)

// publicationNamespace is the schema of A25 publication documents. Responses
// under any other root are either acknowledgements or not ours to parse.
const publicationNamespace = "urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0"

type publicationDocument struct {
	XMLName    xml.Name        `xml:"Publication_MarketDocument"`
	Type       string          `xml:"type"`
	TimeSeries []timeSeriesXML `xml:"TimeSeries"`
}

type timeSeriesXML struct {
	BusinessType string      `xml:"businessType"`
	InDomain     string      `xml:"in_Domain.mRID"`
	OutDomain    string      `xml:"out_Domain.mRID"`
	Currency     string      `xml:"currency_Unit.name"`
	Periods      []periodXML `xml:"Period"`
}

type periodXML struct {
	Start      string     `xml:"timeInterval>start"`
	End        string     `xml:"timeInterval>end"`
	Resolution string     `xml:"resolution"`
	Points     []pointXML `xml:"Point"`
}

// pointXML lists every element the platform has been observed to carry the
// numeric value in; extraction tries them in declaration order
type pointXML struct {
	Position int    `xml:"position"`
	Quantity string `xml:"quantity"`
	Price    string `xml:"price.amount"`
	Flow     string `xml:"flowAmount"`
	Amount   string `xml:"amount"`
}

type acknowledgementDocument struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reasons []struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

// Interval timestamps come without seconds; accept the stricter forms too
var intervalLayouts = []string{
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05Z07:00",
}

// parsePublication decodes one API response body into raw points. Timestamps
// derive from each period's declared start and resolution: position p lands
// at start + (p-1) resolution steps. Returns (nil, "") for a "no matching
// data" acknowledgement.
func parsePublication(body []byte) (*CongestionIncome, error) {
	if ack, ok := parseAcknowledgement(body); ok {
		if strings.Contains(strings.ToLower(ack), "no matching data") {
			return &CongestionIncome{}, nil
		}
		return nil, fmt.Errorf("request rejected by the platform: %s", ack)
	}

	var doc publicationDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed publication document: %w", err)
	}
	if doc.XMLName.Space != publicationNamespace {
		return nil, fmt.Errorf("unexpected document namespace %q", doc.XMLName.Space)
	}
	if len(doc.TimeSeries) == 0 {
		return nil, fmt.Errorf("publication document carries no time series")
	}

	result := &CongestionIncome{}
	for _, ts := range doc.TimeSeries {
		if result.Currency == "" {
			result.Currency = ts.Currency
		}
		for _, period := range ts.Periods {
			start, err := parseInterval(period.Start)
			if err != nil {
				return nil, fmt.Errorf("unparsable period start %q: %w", period.Start, err)
			}
			step, err := series.ParseResolution(period.Resolution)
			if err != nil {
				return nil, fmt.Errorf("period at %s: %w", period.Start, err)
			}
			if result.Resolution == "" {
				result.Resolution = period.Resolution
			}

			for _, point := range period.Points {
				if point.Position < 1 {
					continue
				}
				value, ok := pointValue(point)
				if !ok {
					continue
				}
				result.Points = append(result.Points, series.Point{
					Timestamp: start.Add(time.Duration(point.Position-1) * step),
					Value:     value,
				})
			}
		}
	}

	if len(result.Points) == 0 {
		return nil, fmt.Errorf("publication document carries no numeric points")
	}
	return result, nil
}

// parseAcknowledgement reports whether the body is an acknowledgement
// document and returns its reason text
func parseAcknowledgement(body []byte) (string, bool) {
	var ack acknowledgementDocument
	if err := xml.Unmarshal(body, &ack); err != nil {
		return "", false
	}
	if ack.XMLName.Local != "Acknowledgement_MarketDocument" {
		return "", false
	}
	reasons := make([]string, 0, len(ack.Reasons))
	for _, r := range ack.Reasons {
		reasons = append(reasons, strings.TrimSpace(r.Text))
	}
	if len(reasons) == 0 {
		return "acknowledgement without reason", true
	}
	return strings.Join(reasons, "; "), true
}

// pointValue extracts the numeric amount from whichever candidate field is
// populated. Values pass through decimal so malformed numerics are rejected
// at the boundary rather than becoming NaN downstream.
func pointValue(point pointXML) (float64, bool) {
	for _, raw := range []string{point.Quantity, point.Price, point.Flow, point.Amount} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		return d.InexactFloat64(), true
	}
	return 0, false
}

func parseInterval(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	for _, layout := range intervalLayouts {
		if ts, err := time.Parse(layout, field); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", field)
}
