// Package pipeline drives a full harvest run: every configured source in
// order, candidate normalization, domain dedup, and staging output.
package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/metrics"
	"github.com/aitoolsdir/harvester/internal/urlnorm"
)

// Description length cap applied at staging time, wider than the extraction
// cap because selector sources feed through unclipped.
const maxStagedDescriptionLen = 300

// minRateLimit floors the configured rate so a zero or negative value cannot
// stall a run forever.
const minRateLimit = 0.1

// Strategy is implemented by the source package crawl strategies.
type Strategy interface {
	Harvest(ctx context.Context, src harvest.SourceConfig) ([]harvest.RawCandidate, error)
}

// RecordWriter receives the deduplicated staging rows.
type RecordWriter interface {
	Write(rec harvest.StagedRecord) error
}

// Driver runs sources sequentially through their strategies and stages the
// surviving records. A Driver is good for one Run at a time.
type Driver struct {
	strategies map[harvest.SourceMode]Strategy
	logger     *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New builds a driver over the two crawl strategies.
func New(sitemap, selectors Strategy, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Driver{
		strategies: map[harvest.SourceMode]Strategy{
			harvest.ModeSitemap:   sitemap,
			harvest.ModeSelectors: selectors,
		},
		logger: logger,
	}
}

// Run harvests every source in order. A source failure is logged and the run
// moves on; only context cancellation aborts the whole run. Consecutive
// sources are spaced at 1/rateLimit seconds.
func (d *Driver) Run(ctx context.Context, sources []harvest.SourceConfig, rateLimit float64, out RecordWriter) (harvest.PipelineStats, error) {
	if rateLimit < minRateLimit {
		rateLimit = minRateLimit
	}
	limiter := rate.NewLimiter(rate.Limit(rateLimit), 1)

	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()

	var stats harvest.PipelineStats
	for _, src := range sources {
		if err := limiter.Wait(ctx); err != nil {
			return stats, err
		}
		strategy, ok := d.strategies[src.Mode]
		if !ok {
			d.logger.Error("unknown source mode",
				zap.String("source", src.Name),
				zap.String("mode", string(src.Mode)),
			)
			continue
		}
		candidates, err := strategy.Harvest(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			d.logger.Error("source failed", zap.String("source", src.Name), zap.Error(err))
			continue
		}
		metrics.ObserveCandidates(src.Name, len(candidates))
		d.logger.Info("validating candidates",
			zap.String("source", src.Name),
			zap.Int("count", len(candidates)),
		)
		for _, cand := range candidates {
			d.stage(cand, out, &stats)
		}
	}
	d.logger.Info("pipeline run finished",
		zap.Int("written", stats.Written),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("rejected", stats.Rejected),
	)
	return stats, nil
}

// stage normalizes one candidate and writes it unless it is a duplicate or
// fails validation. Rejections are silent per record; only the tally moves.
func (d *Driver) stage(cand harvest.RawCandidate, out RecordWriter, stats *harvest.PipelineStats) {
	if cand.Website == "" {
		stats.Rejected++
		metrics.ObserveStaged("rejected")
		return
	}
	domain := urlnorm.RegistrableDomain(cand.Website)
	if domain == "" {
		stats.Rejected++
		metrics.ObserveStaged("rejected")
		return
	}

	d.mu.Lock()
	_, dup := d.seen[domain]
	d.mu.Unlock()
	if dup {
		stats.Duplicates++
		metrics.ObserveStaged("duplicate")
		return
	}

	rec := harvest.StagedRecord{
		Domain:      domain,
		Name:        cand.Name,
		Description: harvest.Truncate(cand.Description, maxStagedDescriptionLen),
		Website:     urlnorm.Clean(cand.Website),
		Category:    cand.Category,
		Pricing:     cand.Pricing,
		Logo:        urlnorm.Clean(cand.Logo),
		Source:      cand.Source,
	}
	// A rejected candidate does not claim the domain; a later candidate for
	// the same domain may still carry valid fields.
	if err := rec.Validate(); err != nil {
		stats.Rejected++
		metrics.ObserveStaged("rejected")
		return
	}
	if err := out.Write(rec); err != nil {
		d.logger.Error("staging write failed", zap.String("domain", domain), zap.Error(err))
		stats.Rejected++
		metrics.ObserveStaged("rejected")
		return
	}
	d.mu.Lock()
	d.seen[domain] = struct{}{}
	d.mu.Unlock()
	stats.Written++
	metrics.ObserveStaged("written")
}
