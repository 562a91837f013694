package entsoe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the ENTSO-E Transparency Platform
	// REST API
	DefaultBaseURL = "https://web-api.tp.entsoe.eu/api"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	// The platform enforces a few hundred requests per minute per token;
	// staying well under keeps long backfills safe.
	DefaultRateLimit = 2
)

// Timestamps in query parameters use the platform's compact minute format
const periodFormat = "200601021504"

// Client is an ENTSO-E Transparency Platform API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new ENTSO-E API client authenticated by security token
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request against the API and returns the raw body
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RateLimitError{RetryAfter: time.Second}
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("securityToken", c.token)

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	if c.logger != nil {
		c.logger.Debug().
			Str("document_type", params.Get("documentType")).
			Str("period_start", params.Get("periodStart")).
			Str("period_end", params.Get("periodEnd")).
			Msg("ENTSO-E API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		message := resp.Status
		// Rejections arrive as acknowledgement documents with a reason text
		if reason, ok := parseAcknowledgement(body); ok {
			message = reason
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Endpoint:   "congestion-income",
		}
	}

	return body, nil
}

// GetCongestionIncome retrieves the flow-based congestion income series
// between the two domains over [from, to). Ranges wider than MaxRangeDays
// are split into sequential chunk requests and merged; points come back in
// timestamp order. A window with no published data yields an empty result,
// not an error.
func (c *Client) GetCongestionIncome(ctx context.Context, inDomain, outDomain string, from, to time.Time) (*CongestionIncome, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("period end %s is not after period start %s", to, from)
	}
	inArea, err := ResolveDomain(inDomain)
	if err != nil {
		return nil, err
	}
	outArea, err := ResolveDomain(outDomain)
	if err != nil {
		return nil, err
	}

	result := &CongestionIncome{}
	for _, chunk := range chunkRange(from.UTC(), to.UTC(), MaxRangeDays*24*time.Hour) {
		params := url.Values{}
		params.Set("documentType", DocumentTypeCongestionIncome)
		params.Set("businessType", BusinessTypeCongestionIncome)
		params.Set("in_Domain", inArea)
		params.Set("out_Domain", outArea)
		params.Set("periodStart", chunk.start.Format(periodFormat))
		params.Set("periodEnd", chunk.end.Format(periodFormat))

		body, err := c.get(ctx, params)
		if err != nil {
			return nil, err
		}
		parsed, err := parsePublication(body)
		if err != nil {
			return nil, err
		}

		result.Points = append(result.Points, parsed.Points...)
		if result.Resolution == "" {
			result.Resolution = parsed.Resolution
		}
		if result.Currency == "" {
			result.Currency = parsed.Currency
		}
	}

	sort.SliceStable(result.Points, func(i, j int) bool {
		return result.Points[i].Timestamp.Before(result.Points[j].Timestamp)
	})

	if c.logger != nil {
		c.logger.Info().
			Str("in_domain", inArea).
			Str("out_domain", outArea).
			Int("points", len(result.Points)).
			Str("resolution", result.Resolution).
			Msg("Congestion income retrieved")
	}

	return result, nil
}

type timeRange struct {
	start time.Time
	end   time.Time
}

// chunkRange splits [from, to) into consecutive windows no wider than max
func chunkRange(from, to time.Time, max time.Duration) []timeRange {
	var chunks []timeRange
	for cursor := from; cursor.Before(to); {
		end := cursor.Add(max)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, timeRange{start: cursor, end: end})
		cursor = end
	}
	return chunks
}
