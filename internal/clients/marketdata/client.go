// Package marketdata provides a client for the EOD price HTTP API
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// eodRow is the wire format of one bar.
type eodRow struct {
	Date     string      `json:"date"`
	Open     flexFloat64 `json:"open"`
	High     flexFloat64 `json:"high"`
	Low      flexFloat64 `json:"low"`
	Close    flexFloat64 `json:"close"`
	AdjClose flexFloat64 `json:"adjusted_close"`
	Volume   int64       `json:"volume"`
}

// Client implements the MarketDataClient interface against an EODHD-style
// price API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new market data client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// period maps a granularity to the API's period parameter.
func period(g models.Granularity) string {
	if g == models.GranularityWeekly {
		return "w"
	}
	return "d"
}

// FetchBars fetches raw EOD bars for the symbol over the closed range.
// Failures are classified into IngestionError reasons; the client never
// retries.
func (c *Client) FetchBars(ctx context.Context, symbol string, rng models.TimeRange, granularity models.Granularity) ([]models.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(symbol, err)
	}

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	params.Set("period", period(granularity))
	params.Set("from", rng.From.Format("2006-01-02"))
	params.Set("to", rng.To.Format("2006-01-02"))

	reqURL := fmt.Sprintf("%s/eod/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &models.IngestionError{Reason: models.IngestSourceUnavailable, Symbol: symbol, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(symbol, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("symbol", symbol).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("EOD request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &models.IngestionError{
			Reason: models.IngestNotFound, Symbol: symbol,
			Err: fmt.Errorf("symbol not known to source"),
		}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &models.IngestionError{
			Reason: models.IngestInvalidRange, Symbol: symbol,
			Err: fmt.Errorf("source rejected request (status %d)", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &models.IngestionError{
			Reason: models.IngestSourceUnavailable, Symbol: symbol,
			Err: fmt.Errorf("source returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(symbol, err)
	}

	var rows []eodRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &models.IngestionError{
			Reason: models.IngestSourceUnavailable, Symbol: symbol,
			Err: fmt.Errorf("malformed source response: %w", err),
		}
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			c.logger.Warn().Str("symbol", symbol).Str("date", row.Date).Msg("Skipping bar with bad date")
			continue
		}
		bars = append(bars, models.Bar{
			Date:     date,
			Open:     float64(row.Open),
			High:     float64(row.High),
			Low:      float64(row.Low),
			Close:    float64(row.Close),
			AdjClose: float64(row.AdjClose),
			Volume:   row.Volume,
		})
	}

	// Source usually returns oldest first, but don't rely on it.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	return bars, nil
}

// classify maps transport-level errors to ingestion reasons.
func classify(symbol string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &models.IngestionError{Reason: models.IngestTimeout, Symbol: symbol, Err: err}
	}
	return &models.IngestionError{Reason: models.IngestSourceUnavailable, Symbol: symbol, Err: err}
}

var _ interfaces.MarketDataClient = (*Client)(nil)
