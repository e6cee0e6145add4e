// Package gather runs the provider-facing collection stages: daily price
// bars, ticker reference details, macro series, and factor-model data.
//
// The gatherers share one shape: build a candidate list from the ranked
// backlog, drop tickers the untrackable ledger currently suppresses, narrow
// each candidate to the date ranges actually missing from the warehouse, and
// fan the remaining work across a bounded worker pool. Results stream into
// parquet batch files; nothing writes to live tables here. A wall-clock
// budget stops new work so an overnight run never collides with the next.
package gather

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quantlake/edgarsync/internal/batchfile"
	"github.com/quantlake/edgarsync/internal/model"
)

// Summary reports the outcome of one gather run.
type Summary struct {
	mu sync.Mutex

	Attempted   int
	Succeeded   int
	Empty       int
	Failed      int
	Untrackable int
	Skipped     int
	Rows        int
	Batches     int
	Elapsed     time.Duration
}

// inc bumps one counter field under the summary lock, for use from workers.
func (s *Summary) inc(field *int) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *Summary) logFields() []zap.Field {
	return []zap.Field{
		zap.Int("attempted", s.Attempted),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("empty", s.Empty),
		zap.Int("failed", s.Failed),
		zap.Int("untrackable", s.Untrackable),
		zap.Int("skipped", s.Skipped),
		zap.Int("rows", s.Rows),
		zap.Int("batches", s.Batches),
		zap.Duration("elapsed", s.Elapsed),
	}
}

// batcher accumulates rows for one table and flushes a parquet batch file
// whenever the buffer reaches the configured size. Safe for concurrent use.
type batcher[T any] struct {
	mu      sync.Mutex
	dir     string
	table   string
	size    int
	rows    []T
	batches int
	total   int
	now     func() time.Time
}

func newBatcher[T any](dir, table string, size int, now func() time.Time) *batcher[T] {
	if size <= 0 {
		size = 500
	}
	return &batcher[T]{dir: dir, table: table, size: size, now: now}
}

func (b *batcher[T]) add(rows ...T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, rows...)
	b.total += len(rows)
	if len(b.rows) < b.size {
		return nil
	}
	return b.flushLocked()
}

func (b *batcher[T]) flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *batcher[T]) flushLocked() error {
	if len(b.rows) == 0 {
		return nil
	}
	if _, err := batchfile.WriteBatch(b.dir, b.table, b.rows, b.now()); err != nil {
		return eris.Wrapf(err, "gather: flush %s batch", b.table)
	}
	b.batches++
	b.rows = b.rows[:0]
	return nil
}

func (b *batcher[T]) stats() (rows, batches int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.batches
}

// errorLog collects fetch failures for the append-only error table.
type errorLog struct {
	mu   sync.Mutex
	rows []batchfile.ErrorRow
}

func (l *errorLog) record(ticker, errorType string, err error, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, batchfile.FromFetchError(model.FetchError{
		Ticker:    ticker,
		Timestamp: now,
		ErrorType: errorType,
		Message:   err.Error(),
	}))
}

func (l *errorLog) write(dir string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rows) == 0 {
		return nil
	}
	if _, err := batchfile.WriteBatch(dir, "stock_fetch_errors", l.rows, now); err != nil {
		return eris.Wrap(err, "gather: write fetch errors")
	}
	return nil
}

// deadlineReached reports whether the run budget is spent. The context error
// wins when the caller cancelled outright.
func deadlineReached(ctx context.Context, deadline time.Time, now func() time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return !deadline.IsZero() && now().After(deadline)
}
