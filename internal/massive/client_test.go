package massive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/ratelimit"
	"github.com/quantlake/edgarsync/internal/resilience"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(config.MassiveConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		CallsPerMinute: 600,
		MaxRetries:     3,
		TimeoutSecs:    5,
	}, ratelimit.New(600))
	// No backoff sleeps in tests.
	c.retry.InitialBackoff = time.Millisecond
	c.retry.MaxBackoff = time.Millisecond
	c.retry.OnRetry = nil
	return c
}

func TestAggregatesParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		assert.Contains(t, r.URL.Path, "/v2/aggs/ticker/AAPL/range/1/day/2025-01-01/2025-01-31")
		w.Write([]byte(`{
			"status": "OK",
			"resultsCount": 2,
			"results": [
				{"v": 1000, "o": 10.5, "c": 11.0, "h": 11.2, "l": 10.1, "t": 1735776000000},
				{"v": 2000, "o": 11.0, "c": 11.5, "h": 11.6, "l": 10.9, "t": 1735862400000}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	bars, err := c.Aggregates(context.Background(), "AAPL",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "AAPL", bars[0].Ticker)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 10.5, bars[0].Open)
	assert.Equal(t, 11.0, bars[0].AdjClose)
	assert.Equal(t, int64(1000), bars[0].Volume)
}

func TestAggregatesEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "OK", "resultsCount": 0, "results": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	bars, err := c.Aggregates(context.Background(), "XXXX",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, bars)
}

func TestNotFoundIsPermanentAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Details(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load(), "permanent errors must not be retried")
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status": "OK", "results": {"ticker": "AAPL", "name": "Apple Inc.", "primary_exchange": "XNAS", "active": true}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	details, err := c.Details(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "Apple Inc.", details.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitBumpsSharedLimiter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"status": "OK", "resultsCount": 0, "results": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	// Single attempt: a retry would honor the widened 15s spacing and stall
	// the test; the bump itself is what matters here.
	c.retry.MaxAttempts = 1

	_, err := c.Aggregates(context.Background(), "AAPL",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.GreaterOrEqual(t, c.limiter.MinInterval(), 15*time.Second)
}

func TestRetriesExhaustedReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Details(context.Background(), "AAPL")
	require.Error(t, err)
	assert.False(t, resilience.IsPermanent(err))
	assert.Equal(t, int32(3), calls.Load())
}
