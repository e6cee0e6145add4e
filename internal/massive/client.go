// Package massive wraps the Massive.com (formerly Polygon.io) REST API.
//
// Every call passes through the shared sliding-window rate limiter before it
// reaches the wire. Responses are classified into the pipeline's error
// taxonomy: 429 bumps the limiter and retries with the server's wait hint,
// 5xx and timeouts retry with backoff, and other 4xx responses surface as
// permanent errors so the caller can record the ticker as untrackable.
// A successful call with zero results is not an error.
package massive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/ratelimit"
	"github.com/quantlake/edgarsync/internal/resilience"
)

// Client is a Massive.com REST client with rate limiting and retries.
type Client struct {
	cfg     config.MassiveConfig
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a client sharing the given limiter. Callers running a
// single worker must reuse one client so throttling state carries across
// consecutive calls.
func NewClient(cfg config.MassiveConfig, limiter *ratelimit.Limiter) *Client {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = resilience.RetryLogger("massive", "request")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout()},
		limiter: limiter,
		retry:   retry,
	}
}

// Limiter exposes the shared rate limiter, mainly for run summaries.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

type aggsResponse struct {
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		Volume       float64 `json:"v"`
		VWAP         float64 `json:"vw"`
		Open         float64 `json:"o"`
		Close        float64 `json:"c"`
		High         float64 `json:"h"`
		Low          float64 `json:"l"`
		TimestampMS  int64   `json:"t"`
		Transactions int64   `json:"n"`
	} `json:"results"`
	Error string `json:"error"`
}

type detailsResponse struct {
	Status  string         `json:"status"`
	Results *TickerDetails `json:"results"`
	Error   string         `json:"error"`
}

// TickerDetails is the reference record for one ticker.
type TickerDetails struct {
	Ticker          string  `json:"ticker"`
	Name            string  `json:"name"`
	Market          string  `json:"market"`
	Locale          string  `json:"locale"`
	PrimaryExchange string  `json:"primary_exchange"`
	Type            string  `json:"type"`
	Active          bool    `json:"active"`
	CurrencyName    string  `json:"currency_name"`
	CIK             string  `json:"cik"`
	Description     string  `json:"description"`
	SICCode         string  `json:"sic_code"`
	SICDescription  string  `json:"sic_description"`
	MarketCap       float64 `json:"market_cap"`
	TotalEmployees  int64   `json:"total_employees"`
	ListDate        string  `json:"list_date"`
}

// Bar is one daily OHLCV observation.
type Bar struct {
	Ticker   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Aggregates fetches daily bars for the inclusive date range. A nil slice
// with nil error means the provider has no data for the range.
func (c *Client) Aggregates(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(ticker), start.Format("2006-01-02"), end.Format("2006-01-02"))
	params := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
	}

	var resp aggsResponse
	if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "ERROR" {
		return nil, eris.Errorf("massive: aggregates %s: %s", ticker, resp.Error)
	}
	if resp.ResultsCount == 0 || len(resp.Results) == 0 {
		return nil, nil
	}

	bars := make([]Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		day := time.UnixMilli(r.TimestampMS).UTC()
		bars = append(bars, Bar{
			Ticker:   ticker,
			Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.Close, // bars are split-adjusted upstream
			Volume:   int64(r.Volume),
		})
	}
	return bars, nil
}

// Details fetches the reference record for a ticker.
func (c *Client) Details(ctx context.Context, ticker string) (*TickerDetails, error) {
	endpoint := "/v3/reference/tickers/" + url.PathEscape(ticker)

	var resp detailsResponse
	if err := c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "ERROR" {
		return nil, eris.Errorf("massive: details %s: %s", ticker, resp.Error)
	}
	return resp.Results, nil
}

// PreviousClose fetches the prior trading day's bar for a ticker.
func (c *Client) PreviousClose(ctx context.Context, ticker string) (*Bar, error) {
	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(ticker))

	var resp aggsResponse
	if err := c.getJSON(ctx, endpoint, url.Values{"adjusted": {"true"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "ERROR" {
		return nil, eris.Errorf("massive: previous close %s: %s", ticker, resp.Error)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	r := resp.Results[0]
	day := time.UnixMilli(r.TimestampMS).UTC()
	return &Bar{
		Ticker:   ticker,
		Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		AdjClose: r.Close,
		Volume:   int64(r.Volume),
	}, nil
}

// CheckConnectivity verifies API reachability and authentication.
func (c *Client) CheckConnectivity(ctx context.Context) bool {
	bar, err := c.PreviousClose(ctx, "AAPL")
	if err != nil {
		zap.L().Error("massive: connectivity check failed", zap.Error(err))
		return false
	}
	return bar != nil
}

// getJSON performs a rate-limited GET with retries and decodes the body.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.cfg.APIKey)
	fullURL := c.cfg.BaseURL + endpoint + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.doOnce(ctx, fullURL)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "massive: decode %s", endpoint)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, fullURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "massive: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "massive: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "massive: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		hint := retryAfter(resp)
		// Widen the shared limiter so subsequent calls self-throttle.
		c.limiter.OnRateLimit(hint)
		zap.L().Warn("massive: rate limited (429)",
			zap.Duration("retry_after", hint),
		)
		return nil, &resilience.RateLimitedError{
			RetryAfter: hint,
			Err:        eris.New("massive: http 429"),
		}
	case resp.StatusCode >= 500:
		return nil, &resilience.ServerError{
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("massive: http %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &resilience.PermanentError{
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("massive: http %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "massive: read body")
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(ra, 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
