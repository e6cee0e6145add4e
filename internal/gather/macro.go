package gather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/model"
	"github.com/quantlake/edgarsync/internal/resilience"
)

// MacroGatherer pulls the configured FRED series. Macro tables load with the
// snapshot strategy, so every run fetches full histories and the staged
// batch replaces the live table wholesale.
type MacroGatherer struct {
	cfg   config.FREDConfig
	http  *http.Client
	retry resilience.RetryConfig
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

func NewMacroGatherer(cfg config.FREDConfig, parquetDir string) *MacroGatherer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("fred", "observations")
	return &MacroGatherer{
		cfg:   cfg,
		http:  &http.Client{Timeout: 60 * time.Second},
		retry: retry,
		dir:   parquetDir,
		log:   zap.L().Named("gather.macro"),
		now:   time.Now,
	}
}

type fredObservations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Run fetches every configured series and writes one snapshot batch. A
// series that fails does not abort the rest, but a run where every series
// failed returns an error instead of staging an empty snapshot.
func (g *MacroGatherer) Run(ctx context.Context) (*Summary, error) {
	started := g.now()
	sum := &Summary{}
	var rows []batchfile.MacroRow

	for _, series := range g.cfg.Series {
		sum.Attempted++
		points, err := g.fetchSeries(ctx, series)
		if err != nil {
			g.log.Warn("series fetch failed", zap.String("series", series), zap.Error(err))
			sum.Failed++
			continue
		}
		if len(points) == 0 {
			sum.Empty++
			continue
		}
		for _, p := range points {
			rows = append(rows, batchfile.FromMacroPoint(p))
		}
		sum.Succeeded++
	}

	if sum.Succeeded == 0 && sum.Attempted > 0 {
		return nil, eris.New("gather: every macro series failed")
	}
	if len(rows) > 0 {
		if _, err := batchfile.WriteBatch(g.dir, "macro_economic_data", rows, g.now()); err != nil {
			return nil, eris.Wrap(err, "gather: write macro batch")
		}
		sum.Batches = 1
	}
	sum.Rows = len(rows)
	sum.Elapsed = g.now().Sub(started)
	g.log.Info("macro gather finished", sum.logFields()...)
	return sum, nil
}

func (g *MacroGatherer) fetchSeries(ctx context.Context, series string) ([]model.MacroPoint, error) {
	params := url.Values{
		"series_id": {series},
		"api_key":   {g.cfg.APIKey},
		"file_type": {"json"},
	}
	fullURL := g.cfg.BaseURL + "/fred/series/observations?" + params.Encode()

	body, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]byte, error) {
		return g.getOnce(ctx, fullURL)
	})
	if err != nil {
		return nil, err
	}

	var resp fredObservations
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "gather: decode series %s", series)
	}

	points := make([]model.MacroPoint, 0, len(resp.Observations))
	for _, obs := range resp.Observations {
		// FRED publishes "." for days without an observation.
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		val, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			continue
		}
		points = append(points, model.MacroPoint{SeriesID: series, Date: date, Value: val})
	}
	return points, nil
}

func (g *MacroGatherer) getOnce(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gather: build fred request")
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gather: fred request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		hint := fredRetryAfter(resp)
		g.log.Warn("fred rate limited (429)", zap.Duration("retry_after", hint))
		return nil, &resilience.RateLimitedError{
			RetryAfter: hint,
			Err:        eris.New("gather: fred http 429"),
		}
	case resp.StatusCode >= 500:
		return nil, &resilience.ServerError{
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("gather: fred http %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &resilience.PermanentError{
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("gather: fred http %d", resp.StatusCode),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gather: read fred body")
	}
	return body, nil
}

func fredRetryAfter(resp *http.Response) time.Duration {
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
