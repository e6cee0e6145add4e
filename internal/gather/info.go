package gather

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/config"
	"github.com/quantlake/edgarsync/internal/massive"
	"github.com/quantlake/edgarsync/internal/model"
	"github.com/quantlake/edgarsync/internal/resilience"
	"github.com/quantlake/edgarsync/internal/warehouse"
)

// DetailAPI is the slice of the provider client the info gatherer needs.
type DetailAPI interface {
	Details(ctx context.Context, ticker string) (*massive.TickerDetails, error)
}

// InfoGatherer refreshes ticker reference details for the ranked backlog.
type InfoGatherer struct {
	w     *warehouse.Warehouse
	api   DetailAPI
	cfg   config.GatherConfig
	fresh config.FreshnessConfig
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

func NewInfoGatherer(w *warehouse.Warehouse, api DetailAPI, cfg config.GatherConfig, fresh config.FreshnessConfig, parquetDir string) *InfoGatherer {
	return &InfoGatherer{
		w:     w,
		api:   api,
		cfg:   cfg,
		fresh: fresh,
		dir:   parquetDir,
		log:   zap.L().Named("gather.info"),
		now:   time.Now,
	}
}

// InfoOptions narrows one run. ForceRefresh ignores the recent-fetch window
// and re-pulls every candidate.
type InfoOptions struct {
	Limit        int
	ForceRefresh bool
}

// Run executes one detail-gathering pass. Tickers fetched within the refresh
// window are skipped unless ForceRefresh is set.
func (g *InfoGatherer) Run(ctx context.Context, opts InfoOptions) (*Summary, error) {
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
	fetchTimes, err := g.w.InfoFetchTimes(ctx)
	if err != nil {
		return nil, err
	}
	refreshCutoff := started.AddDate(0, 0, -g.fresh.InfoRefreshDays)

	sum := &Summary{}
	infos := newBatcher[batchfile.InfoRow](g.dir, "updated_ticker_info", g.cfg.BatchSize, g.now)
	errs := &errorLog{}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers(g.cfg))

	for _, ticker := range candidates {
		if _, skip := denied[ticker]; skip {
			sum.Skipped++
			continue
		}
		if !opts.ForceRefresh {
			if fetched, ok := fetchTimes[ticker]; ok && fetched.After(refreshCutoff) {
				sum.Skipped++
				continue
			}
		}
		if deadlineReached(gctx, deadline, g.now) {
			g.log.Warn("runtime budget reached, stopping new work",
				zap.Int("remaining", len(candidates)-sum.Attempted-sum.Skipped))
			break
		}
		sum.Attempted++
		ticker := ticker
		grp.Go(func() error {
			g.gatherOne(gctx, ticker, infos, errs, sum)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := infos.flush(); err != nil {
		return nil, err
	}
	if err := errs.write(g.dir, g.now()); err != nil {
		return nil, err
	}

	sum.Rows, sum.Batches = infos.stats()
	sum.Elapsed = g.now().Sub(started)
	g.log.Info("info gather finished", sum.logFields()...)
	return sum, nil
}

func (g *InfoGatherer) candidates(ctx context.Context, limit int) ([]string, error) {
	entries, err := g.w.Backlog(ctx, "ticker_info_backlog", limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Ticker)
		}
		return out, nil
	}

	g.log.Info("no backlog found, falling back to full ticker universe")
	tickers, err := g.w.ActiveTickers(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return tickers, nil
}

func (g *InfoGatherer) gatherOne(ctx context.Context, ticker string, infos *batcher[batchfile.InfoRow], errs *errorLog, sum *Summary) {
	details, err := g.api.Details(ctx, ticker)
	if err != nil {
		g.fail(ctx, ticker, err, errs, sum)
		return
	}
	if details == nil {
		sum.inc(&sum.Empty)
		return
	}

	row := batchfile.FromTickerInfo(model.TickerInfo{
		Ticker:          model.NormalizeTicker(details.Ticker),
		CIK:             details.CIK,
		Name:            details.Name,
		Market:          details.Market,
		Locale:          details.Locale,
		PrimaryExchange: details.PrimaryExchange,
		Type:            details.Type,
		Active:          details.Active,
		CurrencyName:    details.CurrencyName,
		Description:     details.Description,
		TotalEmployees:  details.TotalEmployees,
		ListDate:        details.ListDate,
		SICCode:         details.SICCode,
		SICDescription:  details.SICDescription,
		MarketCap:       details.MarketCap,
		FetchTime:       g.now(),
	})
	if err := infos.add(row); err != nil {
		g.fail(ctx, ticker, err, errs, sum)
		return
	}
	sum.inc(&sum.Succeeded)
}

func (g *InfoGatherer) fail(ctx context.Context, ticker string, err error, errs *errorLog, sum *Summary) {
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

func workers(cfg config.GatherConfig) int {
	if cfg.Workers <= 0 {
		return 1
	}
	return cfg.Workers
}
