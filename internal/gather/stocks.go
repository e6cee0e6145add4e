package gather

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/coverage"
	"github.com/quantlake/edgarsync/internal/massive"
	"github.com/quantlake/edgarsync/internal/model"
	"github.com/quantlake/edgarsync/internal/resilience"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// PriceAPI is the slice of the provider client the stock gatherer needs.
type PriceAPI interface {
	Aggregates(ctx context.Context, ticker string, start, end time.Time) ([]massive.Bar, error)
}

// StockGatherer backfills daily price bars for the ranked backlog.
type StockGatherer struct {
	w     *warehouse.Warehouse
	api   PriceAPI
	cfg   config.GatherConfig
	fresh config.FreshnessConfig
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

func NewStockGatherer(w *warehouse.Warehouse, api PriceAPI, cfg config.GatherConfig, fresh config.FreshnessConfig, parquetDir string) *StockGatherer {
	return &StockGatherer{
		w:     w,
		api:   api,
		cfg:   cfg,
		fresh: fresh,
		dir:   parquetDir,
		log:   zap.L().Named("gather.stocks"),
		now:   time.Now,
	}
}

// StockOptions narrows one run. An explicit range overrides the per-ticker
// suggested ranges from the backlog.
type StockOptions struct {
	Limit int
	Start *time.Time
	End   *time.Time
}

// Run executes one stock-gathering pass and reports the outcome. Failures on
// individual tickers are recorded and do not abort the run.
func (g *StockGatherer) Run(ctx context.Context, opts StockOptions) (*Summary, error) {
	started := g.now()
	deadline := time.Time{}
	if g.cfg.MaxRuntime() > 0 {
		deadline = started.Add(g.cfg.MaxRuntime())
	}

	candidates, err := g.candidates(ctx, opts.Limit)
	if err != nil {
		return nil, err
	}

	denied, err := g.w.Untrackable(ctx, g.fresh.ExpiryDays, started)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	bars := newBatcher[batchfile.BarRow](g.dir, "stock_history", g.cfg.BatchSize, g.now)
	errs := &errorLog{}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers(g.cfg))

	for _, entry := range candidates {
		if _, skip := denied[entry.Ticker]; skip {
			sum.Skipped++
			continue
		}
		if deadlineReached(gctx, deadline, g.now) {
			g.log.Warn("runtime budget reached, stopping new work",
				zap.Int("remaining", len(candidates)-sum.Attempted-sum.Skipped))
			break
		}
		sum.Attempted++
		entry := entry
		grp.Go(func() error {
			g.gatherOne(gctx, entry, opts, bars, errs, sum)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := bars.flush(); err != nil {
		return nil, err
	}
	if err := errs.write(g.dir, g.now()); err != nil {
		return nil, err
	}

	sum.Rows, sum.Batches = bars.stats()
	sum.Elapsed = g.now().Sub(started)
	g.log.Info("stock gather finished", sum.logFields()...)
	return sum, nil
}

// candidates returns the ranked backlog, falling back to the full ticker
// universe when no backlog has been generated yet.
func (g *StockGatherer) candidates(ctx context.Context, limit int) ([]model.BacklogEntry, error) {
	entries, err := g.w.Backlog(ctx, "stock_backlog", limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}

	g.log.Info("no backlog found, falling back to full ticker universe")
	tickers, err := g.w.ActiveTickers(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tickers) > limit {
		tickers = tickers[:limit]
	}
	entries = make([]model.BacklogEntry, 0, len(tickers))
	for _, t := range tickers {
		entries = append(entries, model.BacklogEntry{Ticker: t})
	}
	return entries, nil
}

func (g *StockGatherer) gatherOne(ctx context.Context, entry model.BacklogEntry, opts StockOptions, bars *batcher[batchfile.BarRow], errs *errorLog, sum *Summary) {
	start, end := g.fetchRange(entry, opts)
	start = coverage.ClampStart(start, end, g.cfg.ClampDays)
	if end.Before(start) {
		sum.inc(&sum.Empty)
		return
	}

	existing, err := g.w.ExistingBarDates(ctx, entry.Ticker, start, end)
	if err != nil {
		g.fail(ctx, entry.Ticker, err, errs, sum)
		return
	}
	gaps := coverage.MissingIntervals(existing, start, end)
	if len(gaps) == 0 {
		sum.inc(&sum.Empty)
		return
	}

	var fetched []batchfile.BarRow
	for _, gap := range gaps {
		result, err := g.api.Aggregates(ctx, entry.Ticker, gap.Start, gap.End)
		if err != nil {
			g.fail(ctx, entry.Ticker, err, errs, sum)
			return
		}
		for _, b := range result {
			fetched = append(fetched, batchfile.FromBar(model.StockBar{
				Ticker:   model.NormalizeTicker(b.Ticker),
				Date:     b.Date,
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
				Close:    b.Close,
				AdjClose: b.AdjClose,
				Volume:   b.Volume,
			}))
		}
	}

	if len(fetched) == 0 {
		sum.inc(&sum.Empty)
		return
	}
	if err := bars.add(fetched...); err != nil {
		g.fail(ctx, entry.Ticker, err, errs, sum)
		return
	}
	sum.inc(&sum.Succeeded)
}

// fetchRange resolves the date window for one ticker: explicit flags first,
// then the backlog's suggested range, then the default lookback window
// ending yesterday.
func (g *StockGatherer) fetchRange(entry model.BacklogEntry, opts StockOptions) (time.Time, time.Time) {
	today := coverage.Day(g.now())
	end := today.AddDate(0, 0, -1)
	start := today.AddDate(-g.cfg.LookbackYears, 0, 0)

	if entry.SuggestedStart != nil {
		start = coverage.Day(*entry.SuggestedStart)
	}
	if entry.SuggestedEnd != nil {
		end = coverage.Day(*entry.SuggestedEnd)
	}
	if opts.Start != nil {
		start = coverage.Day(*opts.Start)
	}
	if opts.End != nil {
		end = coverage.Day(*opts.End)
	}
	return start, end
}

func (g *StockGatherer) fail(ctx context.Context, ticker string, err error, errs *errorLog, sum *Summary) {
	now := g.now()
	if resilience.IsPermanent(err) {
		errs.record(ticker, "permanent", err, now)
		if merr := g.w.MarkUntrackable(ctx, ticker, err.Error(), now); merr != nil {
			g.log.Error("failed to mark ticker untrackable",
				zap.String("ticker", ticker), zap.Error(merr))
		}
		sum.inc(&sum.Untrackable)
		sum.inc(&sum.Failed)
		return
	}
	errs.record(ticker, "transient", err, now)
	g.log.Warn("fetch failed", zap.String("ticker", ticker), zap.Error(err))
	sum.inc(&sum.Failed)
}
