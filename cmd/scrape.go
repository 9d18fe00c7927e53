package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/config"
	"github.com/aitoolsdir/harvester/internal/extractor"
	collyfetcher "github.com/aitoolsdir/harvester/internal/fetcher/colly"
	"github.com/aitoolsdir/harvester/internal/fetcher/headless"
	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/logging"
	"github.com/aitoolsdir/harvester/internal/pipeline"
	"github.com/aitoolsdir/harvester/internal/source"
	"github.com/aitoolsdir/harvester/internal/staging"
)

// detectorMinHTMLBytes is the probe-size floor below which a listing page is
// assumed to be a challenge interstitial and retried headless.
const detectorMinHTMLBytes = 2048

type scrapeFlags struct {
	perSource int
	rateLimit float64
	timeout   int
	verbose   bool
}

func newScrapeCmd() *cobra.Command {
	flags := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs the harvest pipeline and writes the staging CSV",
		Long: `Harvests every configured source, deduplicates candidates by
registrable domain, and writes the surviving records to the staging CSV.
Flags override the per-source page limit, the source pacing, and the per
request timeout from the config file for this run only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, flags)
		},
	}
	cmd.Flags().IntVar(&flags.perSource, "per-source", 0, "max pages per source (overrides config)")
	cmd.Flags().Float64Var(&flags.rateLimit, "rate-limit", 0, "sources per second pacing (overrides config)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "per-request timeout in seconds (overrides config)")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "force development logging")
	return cmd
}

func runScrape(cmd *cobra.Command, flags *scrapeFlags) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if flags.verbose && !cfg.Logging.Development {
		if logger, err = logging.New(true); err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
	}
	defer func() { _ = logger.Sync() }()

	applyScrapeOverrides(&cfg, flags)

	driver, headlessFetcher, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	if headlessFetcher != nil {
		defer headlessFetcher.Close()
	}

	out, err := staging.NewFileWriter(cfg.Pipeline.OutputCSV)
	if err != nil {
		return fmt.Errorf("open staging csv: %w", err)
	}

	stats, runErr := driver.Run(cmd.Context(), cfg.Sources, cfg.Pipeline.RateLimitPerSec, out)
	if closeErr := out.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("close staging csv: %w", closeErr)
	}
	if runErr != nil {
		return fmt.Errorf("run pipeline: %w", runErr)
	}

	logger.Info("scrape finished",
		zap.String("output_csv", cfg.Pipeline.OutputCSV),
		zap.Int("written", stats.Written),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("rejected", stats.Rejected),
	)
	return nil
}

func applyScrapeOverrides(cfg *config.Config, flags *scrapeFlags) {
	if flags.rateLimit > 0 {
		cfg.Pipeline.RateLimitPerSec = flags.rateLimit
	}
	if flags.timeout > 0 {
		cfg.Pipeline.RequestTimeoutSec = flags.timeout
	}
	if flags.perSource > 0 {
		for i := range cfg.Sources {
			cfg.Sources[i].Limit = flags.perSource
		}
	}
}

// buildPipeline assembles the fetchers, strategies, and driver for one run.
// The returned headless fetcher, when non-nil, must be closed by the caller.
func buildPipeline(cfg config.Config, logger *zap.Logger) (*pipeline.Driver, *headless.Fetcher, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Pipeline.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		Retries:   cfg.Pipeline.Retries,
	}, logger)

	var headlessFetcher *headless.Fetcher
	var detector harvest.Detector
	if cfg.Headless.Enabled {
		hf, err := headless.New(headless.Config{
			UserAgent:   cfg.Pipeline.UserAgent,
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, logger)
		switch {
		case err == nil:
			headlessFetcher = hf
			detector = headless.NewHeuristicDetector(detectorMinHTMLBytes)
		case errors.Is(err, headless.ErrDisabled):
			logger.Warn("headless enabled but max_parallel is zero; continuing without it")
		default:
			return nil, nil, fmt.Errorf("start headless browser: %w", err)
		}
	}

	var headlessIface harvest.Fetcher
	if headlessFetcher != nil {
		headlessIface = headlessFetcher
	}
	ext, err := extractor.New(fetcher, headlessIface, detector, extractor.Config{
		SearchFallback: cfg.Pipeline.SearchFallback,
	}, logger)
	if err != nil {
		if headlessFetcher != nil {
			headlessFetcher.Close()
		}
		return nil, nil, fmt.Errorf("build extractor: %w", err)
	}

	sitemap := source.NewSitemapStrategy(fetcher, ext, logger)
	selectors := source.NewSelectorStrategy(fetcher, logger)
	return pipeline.New(sitemap, selectors, logger), headlessFetcher, nil
}
