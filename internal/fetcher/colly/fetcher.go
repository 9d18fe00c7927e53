// Package collyfetcher implements harvest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Retries is the number of additional attempts after the first failure.
	Retries int
}

const (
	defaultTimeout = 20 * time.Second
	backoffStep    = 500 * time.Millisecond
)

// Fetcher issues single GETs through a Colly collector with linear retry
// backoff. A non-2xx response counts as a failure and is retried like a
// transport error.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// WithTransport overrides the underlying HTTP transport. Tests inject an
// httpmock transport here.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.transport = rt
	f.baseCollector.WithTransport(rt)
}

// Fetch executes an HTTP GET, retrying up to cfg.Retries additional times
// with linearly increasing delay. The last error is returned after the
// retries are exhausted; callers treat it as "page unreachable", fatal only
// to the row being processed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (harvest.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		f.logger.Debug("fetch retry",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if attempt < f.cfg.Retries {
			if sleepErr := sleepCtx(ctx, backoffStep*time.Duration(attempt+1)); sleepErr != nil {
				return harvest.Page{}, sleepErr
			}
		}
	}
	return harvest.Page{}, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (harvest.Page, error) {
	var (
		result   harvest.Page
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	// Clone does not carry the transport over.
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Cache-Control", "no-cache")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = harvest.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return harvest.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return harvest.Page{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return harvest.Page{}, fmt.Errorf("response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
