// Package source implements the two crawl strategies that turn a configured
// source into an ordered stream of raw candidates. Ordering matters: it
// determines dedup precedence downstream.
package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// MetadataExtractor narrows the extractor surface the strategies need.
type MetadataExtractor interface {
	Extract(ctx context.Context, pageURL, sourceName string) (harvest.RawCandidate, error)
}

const (
	defaultSitemapLimit = 500
	progressEvery       = 25
)

// SitemapStrategy enumerates tool pages from a sitemap (or sitemap index)
// and runs the metadata extractor against each one.
type SitemapStrategy struct {
	fetcher   harvest.Fetcher
	extractor MetadataExtractor
	logger    *zap.Logger
}

// NewSitemapStrategy builds the strategy.
func NewSitemapStrategy(fetcher harvest.Fetcher, extractor MetadataExtractor, logger *zap.Logger) *SitemapStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapStrategy{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
	}
}

// Harvest fetches the sitemap, flattens it to page URLs, and extracts a
// candidate per URL. A single page failure is logged and skipped; only a
// failure to read the sitemap itself fails the whole source.
func (s *SitemapStrategy) Harvest(ctx context.Context, src harvest.SourceConfig) ([]harvest.RawCandidate, error) {
	limit := src.Limit
	if limit <= 0 {
		limit = defaultSitemapLimit
	}
	urls, err := s.collectURLs(ctx, src.SitemapURL, limit)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	candidates := make([]harvest.RawCandidate, 0, len(urls))
	for i, pageURL := range urls {
		cand, exErr := s.extractor.Extract(ctx, pageURL, src.Name)
		if exErr != nil {
			s.logger.Debug("page extraction failed",
				zap.String("source", src.Name),
				zap.String("url", pageURL),
				zap.Error(exErr),
			)
			continue
		}
		if cand.Name != "" {
			candidates = append(candidates, cand)
		}
		if (i+1)%progressEvery == 0 {
			s.logger.Info("source progress",
				zap.String("source", src.Name),
				zap.Int("done", i+1),
				zap.Int("total", len(urls)),
			)
		}
	}
	return candidates, nil
}

// collectURLs flattens a sitemap or sitemap index into page URLs, hard
// stopping at limit. Nested sitemaps are only followed when their URL ends in
// ".xml"; leaf entries ending in ".xml" are skipped.
func (s *SitemapStrategy) collectURLs(ctx context.Context, sitemapURL string, limit int) ([]string, error) {
	page, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	if xmlquery.FindOne(doc, "//*[local-name()='sitemapindex']") == nil {
		return locValues(doc, limit), nil
	}

	urls := make([]string, 0, limit)
	for _, loc := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		nested := strings.TrimSpace(loc.InnerText())
		if !strings.HasSuffix(nested, ".xml") {
			continue
		}
		nestedPage, fetchErr := s.fetcher.Fetch(ctx, nested)
		if fetchErr != nil {
			s.logger.Warn("nested sitemap fetch failed", zap.String("sitemap", nested), zap.Error(fetchErr))
			continue
		}
		nestedDoc, parseErr := xmlquery.Parse(bytes.NewReader(nestedPage.Body))
		if parseErr != nil {
			s.logger.Warn("nested sitemap parse failed", zap.String("sitemap", nested), zap.Error(parseErr))
			continue
		}
		urls = append(urls, locValues(nestedDoc, limit-len(urls))...)
		if len(urls) >= limit {
			return urls[:limit], nil
		}
	}
	return urls, nil
}

func locValues(doc *xmlquery.Node, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := make([]string, 0, limit)
	for _, loc := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		u := strings.TrimSpace(loc.InnerText())
		if u == "" || strings.HasSuffix(u, ".xml") {
			continue
		}
		out = append(out, u)
		if len(out) >= limit {
			break
		}
	}
	return out
}
