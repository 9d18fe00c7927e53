// Package extractor derives normalized tool metadata from heterogeneous
// listing and homepage HTML via prioritized heuristic chains. Every chain is
// independently failure-tolerant: an unreachable homepage must not prevent
// the remaining heuristics from running against whatever page was fetched.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/urlnorm"
)

// Config controls extractor behavior.
type Config struct {
	// SearchFallback enables the web-search snippet chain when the homepage
	// yields no usable description.
	SearchFallback bool
	// HomepageCacheSize bounds the per-run homepage memoization cache.
	HomepageCacheSize int
}

const defaultCacheSize = 256

// Extractor resolves website, name, description, logo, and category for a
// listing page. A headless fetcher, when provided, is used as a fallback for
// pages the detector flags as challenge-walled.
type Extractor struct {
	fetcher  harvest.Fetcher
	headless harvest.Fetcher
	detector harvest.Detector
	cfg      Config
	logger   *zap.Logger

	// homepages memoizes parsed homepage documents per run so one domain's
	// homepage is fetched at most once. A nil entry records a failed fetch.
	homepages *lru.Cache[string, *goquery.Document]
}

// New builds an Extractor. headless and detector may be nil.
func New(fetcher harvest.Fetcher, headless harvest.Fetcher, detector harvest.Detector, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.HomepageCacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *goquery.Document](size)
	if err != nil {
		return nil, fmt.Errorf("homepage cache: %w", err)
	}
	return &Extractor{
		fetcher:   fetcher,
		headless:  headless,
		detector:  detector,
		cfg:       cfg,
		logger:    logger,
		homepages: cache,
	}, nil
}

// Extract fetches the listing page and produces a best-effort RawCandidate.
// The returned candidate always carries the canonical homepage as its
// website. An error is returned only when the listing page itself is
// unreachable.
func (e *Extractor) Extract(ctx context.Context, pageURL, sourceName string) (harvest.RawCandidate, error) {
	page, err := e.fetchPage(ctx, pageURL)
	if err != nil {
		return harvest.RawCandidate{}, fmt.Errorf("listing page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.RawCandidate{}, fmt.Errorf("parse listing page: %w", err)
	}

	website := findExternalWebsite(doc, pageURL)
	if website == "" {
		website = strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", ""))
	}
	if website == "" {
		website = pageURL
	}
	website = urlnorm.Clean(website)
	homepage := urlnorm.CanonicalHomepage(website)
	domain := urlnorm.RegistrableDomain(website)

	homeDoc := e.homepageDoc(ctx, homepage)

	name := ""
	if homeDoc != nil {
		name = nameFromDoc(homeDoc, domain)
	} else {
		name = acceptableName(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
		if name == "" {
			name = acceptableName(doc.Find("title").First().Text())
		}
		if name == "" {
			name = nameFromDoc(doc, domain)
		}
	}

	desc := ""
	if homeDoc != nil {
		desc = descriptionFromDoc(homeDoc)
	}
	if len(desc) < minDescriptionLen && e.cfg.SearchFallback {
		if snippet := e.searchSnippet(ctx, urlnorm.RegistrableDomain(homepage)); snippet != "" {
			desc = snippet
		}
	}

	logo := ""
	category := ""
	if homeDoc != nil {
		logo = logoFromDoc(homeDoc, homepage)
		category = categoryFromDoc(homeDoc)
	}

	return normalizeCandidate(harvest.RawCandidate{
		Name:        name,
		Description: desc,
		Website:     homepage,
		Category:    category,
		Logo:        logo,
		Source:      sourceName,
	}), nil
}

// fetchPage probes with the plain fetcher and promotes to the headless
// fetcher when the probe fails or the detector flags the response.
func (e *Extractor) fetchPage(ctx context.Context, url string) (harvest.Page, error) {
	page, err := e.fetcher.Fetch(ctx, url)
	if e.headless == nil {
		return page, err
	}
	promote := err != nil || (e.detector != nil && e.detector.NeedsHeadless(page))
	if !promote {
		return page, nil
	}
	rendered, hlErr := e.headless.Fetch(ctx, url)
	if hlErr != nil {
		e.logger.Debug("headless promotion failed", zap.String("url", url), zap.Error(hlErr))
		return page, err
	}
	return rendered, nil
}

// homepageDoc returns the parsed homepage, memoized per run. Failed fetches
// are memoized as nil so dead domains are hit once.
func (e *Extractor) homepageDoc(ctx context.Context, homepage string) *goquery.Document {
	if doc, ok := e.homepages.Get(homepage); ok {
		return doc
	}
	var doc *goquery.Document
	page, err := e.fetchPage(ctx, homepage)
	if err == nil {
		if parsed, parseErr := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); parseErr == nil {
			doc = parsed
		}
	} else {
		e.logger.Debug("homepage unreachable", zap.String("homepage", homepage), zap.Error(err))
	}
	e.homepages.Add(homepage, doc)
	return doc
}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// normalizeCandidate trims fields, title-cases pricing and category, forces a
// scheme onto the website, and strips tracking params from URL fields.
func normalizeCandidate(c harvest.RawCandidate) harvest.RawCandidate {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	c.Website = strings.TrimSpace(c.Website)
	c.Category = strings.TrimSpace(c.Category)
	c.Pricing = strings.TrimSpace(c.Pricing)
	c.Logo = strings.TrimSpace(c.Logo)

	if c.Pricing != "" {
		c.Pricing = harvest.TitleCase(c.Pricing)
	}
	if c.Category != "" {
		c.Category = harvest.TitleCase(c.Category)
	}
	if c.Website != "" {
		if strings.HasPrefix(c.Website, "//") {
			c.Website = "https:" + c.Website
		} else if !schemeRe.MatchString(c.Website) {
			c.Website = "https://" + c.Website
		}
		c.Website = urlnorm.Clean(c.Website)
	}
	if c.Logo != "" {
		c.Logo = urlnorm.Clean(c.Logo)
	}
	return c
}
