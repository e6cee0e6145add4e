// Package edgar implements the SEC bulk-data stage: downloading the
// submissions and company-facts archives, extracting their JSON members,
// and parsing them into typed records.
package edgar

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quantlake/edgarsync/internal/config"
)

// The SEC fair-access policy allows at most 10 requests per second and
// requires a descriptive User-Agent with contact information.
const secRequestsPerSecond = 10

// Fetcher downloads bulk archives with conditional freshness checks, so a
// multi-gigabyte zip is only pulled when the server copy is newer.
type Fetcher struct {
	cfg  config.EDGARConfig
	http *http.Client
	log  *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFetcher(cfg config.EDGARConfig) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Minute},
		log:      zap.L().Named("edgar"),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiter(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(secRequestsPerSecond), secRequestsPerSecond)
		f.limiters[host] = lim
	}
	return lim
}

// Download fetches srcURL into destPath unless the local copy is already
// current. It reports whether a new file was written.
func (f *Fetcher) Download(ctx context.Context, srcURL, destPath string) (bool, error) {
	current, err := f.localIsCurrent(ctx, srcURL, destPath)
	if err != nil {
		f.log.Warn("freshness check failed, downloading anyway",
			zap.String("url", srcURL), zap.Error(err))
	}
	if current {
		f.log.Info("local copy is current, skipping download",
			zap.String("url", srcURL), zap.String("path", destPath))
		return false, nil
	}

	if err := f.limiter(srcURL).Wait(ctx); err != nil {
		return false, eris.Wrap(err, "edgar: rate wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return false, eris.Wrapf(err, "edgar: build request %s", srcURL)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return false, eris.Wrapf(err, "edgar: get %s", srcURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, eris.Errorf("edgar: get %s: status %d", srcURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return false, eris.Wrap(err, "edgar: create download dir")
	}

	// Stream into a temp file first so a failed download never clobbers a
	// good local copy.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".partial-*")
	if err != nil {
		return false, eris.Wrap(err, "edgar: create temp file")
	}
	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return false, eris.Wrapf(err, "edgar: write %s", destPath)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		os.Remove(tmp.Name())
		return false, eris.Wrapf(err, "edgar: finalize %s", destPath)
	}

	if modified := parseLastModified(resp.Header); !modified.IsZero() {
		// Align mtime with the server so the next freshness check is exact.
		_ = os.Chtimes(destPath, modified, modified)
	}

	f.log.Info("downloaded archive",
		zap.String("url", srcURL),
		zap.String("path", destPath),
		zap.Int64("bytes", written))
	return true, nil
}

// localIsCurrent compares the local mtime against the server Last-Modified
// header via a HEAD request. Missing header or missing local file both mean
// a download is needed.
func (f *Fetcher) localIsCurrent(ctx context.Context, srcURL, destPath string) (bool, error) {
	info, err := os.Stat(destPath)
	if err != nil {
		return false, nil
	}

	if err := f.limiter(srcURL).Wait(ctx); err != nil {
		return false, eris.Wrap(err, "edgar: rate wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, srcURL, nil)
	if err != nil {
		return false, eris.Wrapf(err, "edgar: build head %s", srcURL)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return false, eris.Wrapf(err, "edgar: head %s", srcURL)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, eris.Errorf("edgar: head %s: status %d", srcURL, resp.StatusCode)
	}

	remote := parseLastModified(resp.Header)
	if remote.IsZero() {
		return false, nil
	}
	// Small slack absorbs filesystem timestamp rounding.
	return info.ModTime().Add(5 * time.Second).After(remote), nil
}

func parseLastModified(h http.Header) time.Time {
	raw := h.Get("Last-Modified")
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
