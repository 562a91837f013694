package entsoe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publicationFixture renders an A25 document with one PT15M period starting
// at the given interval and carrying the values at positions 1..n
func publicationFixture(start string, values ...string) string {
	var points strings.Builder
	for i, v := range values {
		fmt.Fprintf(&points, `
      <Point>
        <position>%d</position>
        <price.amount>%s</price.amount>
      </Point>`, i+1, v)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <type>A25</type>
  <TimeSeries>
    <businessType>B10</businessType>
    <in_Domain.mRID>10YDK-1--------W</in_Domain.mRID>
    <out_Domain.mRID>10YDK-1--------W</out_Domain.mRID>
    <currency_Unit.name>EUR</currency_Unit.name>
    <Period>
      <timeInterval>
        <start>%s</start>
        <end>2025-06-02T00:00Z</end>
      </timeInterval>
      <resolution>PT15M</resolution>%s
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`, start, points.String())
}

func acknowledgementFixture(reason string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Acknowledgement_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-1:acknowledgementdocument:8:1">
  <Reason>
    <code>999</code>
    <text>%s</text>
  </Reason>
</Acknowledgement_MarketDocument>`, reason)
}

func TestParsePublication(t *testing.T) {
	body := publicationFixture("2025-06-01T00:00Z", "1523.44", "980.1", "-12.5")

	result, err := parsePublication([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "PT15M", result.Resolution)
	assert.Equal(t, "EUR", result.Currency)
	require.Len(t, result.Points, 3)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, result.Points[0].Timestamp)
	assert.Equal(t, start.Add(15*time.Minute), result.Points[1].Timestamp)
	assert.Equal(t, start.Add(30*time.Minute), result.Points[2].Timestamp)
	assert.Equal(t, 1523.44, result.Points[0].Value)
	assert.Equal(t, 980.1, result.Points[1].Value)
	assert.Equal(t, -12.5, result.Points[2].Value)
}

func TestParsePublicationValuePriority(t *testing.T) {
	// When several candidate fields are populated, quantity wins
	body := `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <TimeSeries>
    <currency_Unit.name>EUR</currency_Unit.name>
    <Period>
      <timeInterval><start>2025-06-01T00:00Z</start><end>2025-06-01T01:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point>
        <position>1</position>
        <quantity>42.5</quantity>
        <price.amount>99.9</price.amount>
      </Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

	result, err := parsePublication([]byte(body))
	require.NoError(t, err)
	require.Len(t, result.Points, 1)
	assert.Equal(t, 42.5, result.Points[0].Value)
}

func TestParsePublicationGapPositions(t *testing.T) {
	// Position 2 absent from the document: the gap stays a gap, the later
	// point still lands at its own offset
	body := `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <TimeSeries>
    <currency_Unit.name>EUR</currency_Unit.name>
    <Period>
      <timeInterval><start>2025-06-01T00:00Z</start><end>2025-06-01T01:00Z</end></timeInterval>
      <resolution>PT15M</resolution>
      <Point><position>1</position><price.amount>10</price.amount></Point>
      <Point><position>3</position><price.amount>30</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

	result, err := parsePublication([]byte(body))
	require.NoError(t, err)
	require.Len(t, result.Points, 2)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, result.Points[0].Timestamp)
	assert.Equal(t, start.Add(30*time.Minute), result.Points[1].Timestamp)
}

func TestParsePublicationSkipsValuelessPoints(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <TimeSeries>
    <currency_Unit.name>EUR</currency_Unit.name>
    <Period>
      <timeInterval><start>2025-06-01T00:00Z</start><end>2025-06-01T01:00Z</end></timeInterval>
      <resolution>PT15M</resolution>
      <Point><position>1</position></Point>
      <Point><position>2</position><price.amount>not-a-number</price.amount></Point>
      <Point><position>3</position><price.amount>7.25</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

	result, err := parsePublication([]byte(body))
	require.NoError(t, err)
	require.Len(t, result.Points, 1)
	assert.Equal(t, 7.25, result.Points[0].Value)
}

func TestParsePublicationWrongNamespace(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:something:else:entirely">
  <TimeSeries></TimeSeries>
</Publication_MarketDocument>`

	_, err := parsePublication([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestParsePublicationNoMatchingData(t *testing.T) {
	body := acknowledgementFixture("No matching data found for Data item Congestion Income [12.1.E]")

	result, err := parsePublication([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, result.Points)
}

func TestParsePublicationRejection(t *testing.T) {
	body := acknowledgementFixture("Delivered time interval is not valid for this Data item")

	_, err := parsePublication([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid")
}

func TestParsePublicationNoPoints(t *testing.T) {
	body := publicationFixture("2025-06-01T00:00Z")

	_, err := parsePublication([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no numeric points")
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		field string
		want  time.Time
	}{
		{"2025-06-01T00:00Z", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-06-01T22:00:00Z", time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)},
		{"2025-06-01T00:00+02:00", time.Date(2025, 5, 31, 22, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseInterval(tt.field)
		require.NoError(t, err, tt.field)
		assert.True(t, got.Equal(tt.want), "%s parsed to %s", tt.field, got)
	}

	_, err := parseInterval("June 1st 2025")
	assert.Error(t, err)
}

func TestResolveDomain(t *testing.T) {
	tests := []struct {
		zone    string
		want    string
		wantErr bool
	}{
		{"DK_1", "10YDK-1--------W", false},
		{"dk_2", "10YDK-2--------M", false},
		{" SE_4 ", "10Y1001A1001A82H", false},
		{"10YDK-1--------W", "10YDK-1--------W", false},
		{"ATLANTIS", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveDomain(tt.zone)
		if tt.wantErr {
			assert.Error(t, err, tt.zone)
			continue
		}
		require.NoError(t, err, tt.zone)
		assert.Equal(t, tt.want, got)
	}
}

func TestChunkRange(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(900 * 24 * time.Hour)

	chunks := chunkRange(from, to, MaxRangeDays*24*time.Hour)
	require.Len(t, chunks, 3)
	assert.Equal(t, from, chunks[0].start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].end, chunks[i].start, "chunks must be contiguous")
	}
	assert.Equal(t, to, chunks[len(chunks)-1].end)

	short := chunkRange(from, from.Add(time.Hour), MaxRangeDays*24*time.Hour)
	require.Len(t, short, 1)
	assert.Equal(t, from.Add(time.Hour), short[0].end)
}

func TestClientGetCongestionIncome(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"securityToken": q.Get("securityToken"),
			"documentType":  q.Get("documentType"),
			"businessType":  q.Get("businessType"),
			"in_Domain":     q.Get("in_Domain"),
			"out_Domain":    q.Get("out_Domain"),
			"periodStart":   q.Get("periodStart"),
			"periodEnd":     q.Get("periodEnd"),
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, publicationFixture("2025-06-01T00:00Z", "150.20", "151.00"))
	}))
	defer server.Close()

	client := NewClient("test-token", WithBaseURL(server.URL))
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	result, err := client.GetCongestionIncome(context.Background(), "DK_1", "DK_1", from, to)
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotQuery["securityToken"])
	assert.Equal(t, "A25", gotQuery["documentType"])
	assert.Equal(t, "B10", gotQuery["businessType"])
	assert.Equal(t, "10YDK-1--------W", gotQuery["in_Domain"])
	assert.Equal(t, "10YDK-1--------W", gotQuery["out_Domain"])
	assert.Equal(t, "202506010000", gotQuery["periodStart"])
	assert.Equal(t, "202506020000", gotQuery["periodEnd"])

	require.Len(t, result.Points, 2)
	assert.Equal(t, "PT15M", result.Resolution)
	assert.Equal(t, "EUR", result.Currency)
	assert.Equal(t, 150.20, result.Points[0].Value)
}

func TestClientChunksLongRanges(t *testing.T) {
	var starts, ends []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		starts = append(starts, q.Get("periodStart"))
		ends = append(ends, q.Get("periodEnd"))
		// Hand each chunk a single point stamped with its own start so the
		// merge is observable
		fmt.Fprint(w, publicationFixture(q.Get("periodStart")[:4]+"-"+q.Get("periodStart")[4:6]+"-"+q.Get("periodStart")[6:8]+"T00:00Z", "1.0"))
	}))
	defer server.Close()

	client := NewClient("test-token", WithBaseURL(server.URL), WithRateLimit(100))
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(500 * 24 * time.Hour)

	result, err := client.GetCongestionIncome(context.Background(), "DK_1", "DK_1", from, to)
	require.NoError(t, err)

	require.Len(t, starts, 2)
	assert.Equal(t, "202401010000", starts[0])
	assert.Equal(t, ends[0], starts[1], "second chunk must resume where the first ended")
	assert.Equal(t, "202505150000", ends[1])

	require.Len(t, result.Points, 2)
	assert.True(t, result.Points[0].Timestamp.Before(result.Points[1].Timestamp), "merged points must be ordered")
}

func TestClientNoMatchingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, acknowledgementFixture("No matching data found for Data item Congestion Income [12.1.E]"))
	}))
	defer server.Close()

	client := NewClient("test-token", WithBaseURL(server.URL))
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	result, err := client.GetCongestionIncome(context.Background(), "DK_1", "DK_1", from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, result.Points)
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, acknowledgementFixture("Unauthorized. Missing or invalid security token"))
	}))
	defer server.Close()

	client := NewClient("bad-token", WithBaseURL(server.URL))
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.GetCongestionIncome(context.Background(), "DK_1", "DK_1", from, from.Add(24*time.Hour))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "security token")
}

func TestClientRejectsUnknownZone(t *testing.T) {
	client := NewClient("test-token")
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.GetCongestionIncome(context.Background(), "NOT_A_ZONE", "DK_1", from, from.Add(time.Hour))
	assert.Error(t, err)
}

func TestClientRejectsInvertedRange(t *testing.T) {
	client := NewClient("test-token")
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.GetCongestionIncome(context.Background(), "DK_1", "DK_1", from, from)
	assert.Error(t, err)
}
