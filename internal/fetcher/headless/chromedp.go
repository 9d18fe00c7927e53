package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// ErrDisabled indicates headless fetching has been disabled via configuration.
var ErrDisabled = errors.New("headless fetcher disabled")

// Config controls the browser pool.
type Config struct {
	UserAgent   string
	MaxParallel int
	NavTimeout  time.Duration
}

const defaultNavTimeout = 25 * time.Second

// Fetcher renders pages with headless Chrome via chromedp and implements
// harvest.Fetcher.
type Fetcher struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	timeout         time.Duration
	logger          *zap.Logger
}

// New starts a shared browser and returns a Fetcher. ErrDisabled is returned
// when MaxParallel is zero or negative.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Fetcher{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxParallel),
		timeout:         cfg.NavTimeout,
		logger:          logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (f *Fetcher) Close() {
	if f == nil {
		return
	}
	f.browserCancel()
	f.allocatorCancel()
}

// Fetch navigates the URL in a fresh tab and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (harvest.Page, error) {
	if f == nil {
		return harvest.Page{}, ErrDisabled
	}
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return harvest.Page{}, fmt.Errorf("headless slot wait: %w", ctx.Err())
	}

	start := time.Now()
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTask()

	stop := context.AfterFunc(ctx, cancelTask)
	defer stop()

	statusCode := 0
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			statusCode = int(resp.Response.Status)
		}
	})

	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return harvest.Page{}, fmt.Errorf("headless fetch %s: %w", url, err)
	}
	if statusCode == 0 {
		statusCode = 200
	}
	f.logger.Debug("headless fetch done",
		zap.String("url", url),
		zap.Int("status", statusCode),
		zap.Duration("dur", time.Since(start)),
	)
	return harvest.Page{
		URL:        url,
		StatusCode: statusCode,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}
