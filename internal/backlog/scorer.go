package backlog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/coverage"
	"github.com/quantlake/edgarsync/internal/model"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// Raw need-score bands. The scale is deliberately concave: a cold-start
// ticker needs a full historical backfill and outranks any stale ticker,
// which in turn outranks a merely short history.
const (
	needNoHistory  = 1000.0
	needStaleBase  = 500.0
	needShortBase  = 250.0
	filingLookback = 365
)

// Scorer computes ranked backlogs from warehouse metrics.
type Scorer struct {
	w     *warehouse.Warehouse
	fresh config.FreshnessConfig

	lookbackYears int
	now           func() time.Time
}

func NewScorer(w *warehouse.Warehouse, fresh config.FreshnessConfig, lookbackYears int) *Scorer {
	return &Scorer{
		w:             w,
		fresh:         fresh,
		lookbackYears: lookbackYears,
		now:           time.Now,
	}
}

// Generate scores the candidates under a profile and replaces the profile's
// backlog table with the full ranked set.
func (s *Scorer) Generate(ctx context.Context, profile Profile, tickers []string, weights Weights) ([]model.BacklogEntry, error) {
	var (
		entries []model.BacklogEntry
		err     error
	)
	switch profile.Name {
	case StockProfile.Name:
		entries, err = s.BuildStock(ctx, tickers, weights)
	case InfoProfile.Name:
		entries, err = s.BuildInfo(ctx, tickers, weights)
	default:
		return nil, eris.Errorf("backlog: unknown profile %s", profile.Name)
	}
	if err != nil {
		return nil, err
	}

	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return nil, eris.Wrap(err, "backlog: marshal weights")
	}
	if err := s.w.ReplaceBacklog(ctx, profile.Name, entries, string(weightsJSON), s.now()); err != nil {
		return nil, err
	}

	zap.L().Info("backlog generated",
		zap.String("profile", profile.Name),
		zap.Int("candidates", len(tickers)),
		zap.Int("ranked", len(entries)))
	return entries, nil
}

// BuildStock ranks tickers for price-history gathering. Entries are returned
// in rank order; the component metrics are kept raw for auditing.
func (s *Scorer) BuildStock(ctx context.Context, tickers []string, weights Weights) ([]model.BacklogEntry, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	metrics, err := collectMetrics(ctx, s.w, tickers, filingLookback, s.now())
	if err != nil {
		return nil, err
	}

	today := coverage.Day(s.now())
	entries := make([]model.BacklogEntry, len(metrics))
	needs := make([]float64, len(metrics))
	for i, m := range metrics {
		staleness := s.stalenessDays(today, m.lastBarDate)
		needs[i] = s.needScore(m.lastBarDate, staleness, m.recordCount)
		start, end := s.suggestedRange(today, m.lastBarDate, staleness)
		entries[i] = model.BacklogEntry{
			Ticker:         m.ticker,
			UniqueTagCount: m.uniqueTags,
			KeyMetricCount: m.keyMetrics,
			RecentFilings:  m.recentFilings,
			NeedScore:      needs[i],
			StalenessDays:  staleness,
			RecordCount:    m.recordCount,
			SuggestedStart: &start,
			SuggestedEnd:   &end,
		}
	}

	maxTags := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.uniqueTags) })
	maxKey := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.keyMetrics) })
	maxFilings := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.recentFilings) })
	maxNeed := maxSlice(needs)

	for i, m := range metrics {
		entries[i].Score = weights[CompXBRLRichness]*norm(float64(m.uniqueTags), maxTags) +
			weights[CompKeyMetrics]*norm(float64(m.keyMetrics), maxKey) +
			weights[CompStockDataNeed]*norm(needs[i], maxNeed) +
			weights[CompFilingActivity]*norm(float64(m.recentFilings), maxFilings)
	}

	rank(entries)
	return entries, nil
}

// BuildInfo ranks tickers for reference-detail gathering.
func (s *Scorer) BuildInfo(ctx context.Context, tickers []string, weights Weights) ([]model.BacklogEntry, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	metrics, err := collectMetrics(ctx, s.w, tickers, filingLookback, s.now())
	if err != nil {
		return nil, err
	}

	today := coverage.Day(s.now())
	entries := make([]model.BacklogEntry, len(metrics))
	hasData := make([]float64, len(metrics))
	for i, m := range metrics {
		if m.recordCount > 0 {
			hasData[i] = 1
		}
		entries[i] = model.BacklogEntry{
			Ticker:         m.ticker,
			UniqueTagCount: m.uniqueTags,
			KeyMetricCount: m.keyMetrics,
			RecentFilings:  m.recentFilings,
			NeedScore:      hasData[i],
			StalenessDays:  s.stalenessDays(today, m.lastBarDate),
			RecordCount:    m.recordCount,
			ExchangeTier:   m.exchangeTier,
		}
	}

	maxTags := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.uniqueTags) })
	maxKey := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.keyMetrics) })
	maxFilings := maxOf(metrics, func(m rawMetrics) float64 { return float64(m.recentFilings) })
	maxData := maxSlice(hasData)
	maxExchange := maxOf(metrics, func(m rawMetrics) float64 { return m.exchangeTier })

	for i, m := range metrics {
		entries[i].Score = weights[CompXBRLRichness]*norm(float64(m.uniqueTags), maxTags) +
			weights[CompKeyMetrics]*norm(float64(m.keyMetrics), maxKey) +
			weights[CompHasStockData]*norm(hasData[i], maxData) +
			weights[CompFilingActivity]*norm(float64(m.recentFilings), maxFilings) +
			weights[CompExchangePriority]*norm(m.exchangeTier, maxExchange)
	}

	rank(entries)
	return entries, nil
}

// stalenessDays is -1 when the ticker has no stored history at all.
func (s *Scorer) stalenessDays(today time.Time, last *time.Time) int {
	if last == nil {
		return -1
	}
	return int(today.Sub(coverage.Day(*last)).Hours() / 24)
}

func (s *Scorer) needScore(last *time.Time, staleness, records int) float64 {
	switch {
	case last == nil:
		return needNoHistory
	case staleness > s.fresh.StaleDays:
		return needStaleBase + float64(staleness)
	case records < s.fresh.MinRecords:
		return needShortBase + float64(s.fresh.MinRecords-records)
	default:
		if staleness < 0 {
			return 0
		}
		return float64(staleness)
	}
}

// suggestedRange proposes the fetch window for a ranked ticker: resume from
// the day after the last bar when merely stale, otherwise a full lookback
// backfill. The end is yesterday, since today's bar may not be final.
func (s *Scorer) suggestedRange(today time.Time, last *time.Time, staleness int) (time.Time, time.Time) {
	end := today.AddDate(0, 0, -1)
	if last != nil && staleness > s.fresh.StaleDays {
		return coverage.Day(*last).AddDate(0, 0, 1), end
	}
	return today.AddDate(-s.lookbackYears, 0, 0), end
}

// rank sorts by score descending, stable so input order breaks ties, then
// assigns 1-based ranks.
func rank(entries []model.BacklogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func norm(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}

func maxOf(metrics []rawMetrics, f func(rawMetrics) float64) float64 {
	var max float64
	for _, m := range metrics {
		if v := f(m); v > max {
			max = v
		}
	}
	return max
}

func maxSlice(vals []float64) float64 {
	var max float64
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	return max
}
