// Package entsoe provides a client for the ENTSO-E Transparency Platform
// REST API, scoped to the flow-based congestion income publication (document
// type A25, business type B10). This package centralizes all upstream market
// data interactions for the application.
package entsoe

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/auspex/internal/series"
)

const (
	// DocumentTypeCongestionIncome is the ENTSO-E publication carrying
	// congestion income series
	DocumentTypeCongestionIncome = "A25"

	// BusinessTypeCongestionIncome narrows the publication to flow-based
	// congestion income
	BusinessTypeCongestionIncome = "B10"

	// MaxRangeDays is the widest window one API request may cover; longer
	// ranges are chunked
	MaxRangeDays = 370
)

// Domains maps human bidding-zone names to their EIC area codes. Callers may
// also pass a raw EIC code directly.
var Domains = map[string]string{
	"DK_1": "10YDK-1--------W",
	"DK_2": "10YDK-2--------M",
	"SE_4": "10Y1001A1001A82H",
}

// ResolveDomain turns a bidding-zone name or raw EIC code into the area code
// the API expects
func ResolveDomain(zone string) (string, error) {
	zone = strings.TrimSpace(zone)
	if code, ok := Domains[strings.ToUpper(zone)]; ok {
		return code, nil
	}
	// EIC area codes are 16 characters
	if len(zone) == 16 {
		return zone, nil
	}
	return "", fmt.Errorf("unknown bidding zone %q (use a known zone name or a 16-character EIC code)", zone)
}

// CongestionIncome is the parsed payload of one query: raw points in
// document order plus the series metadata the document declared
type CongestionIncome struct {
	Points     []series.Point
	Resolution string // ISO 8601 duration as published, e.g. "PT15M"
	Currency   string
}

// APIError represents a non-success response from the ENTSO-E API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ENTSO-E API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ENTSO-E rate limit exceeded, retry after %v", e.RetryAfter)
}
