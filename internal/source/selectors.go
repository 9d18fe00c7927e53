package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

const maxSelectorFieldLen = 280

// SelectorStrategy scrapes a listing page with CSS selectors, one candidate
// per card. No per-page extraction happens here; the fields come straight
// from the configured selectors.
type SelectorStrategy struct {
	fetcher harvest.Fetcher
	logger  *zap.Logger
}

// NewSelectorStrategy builds the strategy.
func NewSelectorStrategy(fetcher harvest.Fetcher, logger *zap.Logger) *SelectorStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectorStrategy{fetcher: fetcher, logger: logger}
}

// Harvest fetches the source's base URL and maps each list_selector match
// through the field selectors. Cards that yield neither a name nor a website
// carry no signal and are dropped.
func (s *SelectorStrategy) Harvest(ctx context.Context, src harvest.SourceConfig) ([]harvest.RawCandidate, error) {
	page, err := s.fetcher.Fetch(ctx, src.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("source %s: fetch listing: %w", src.Name, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("source %s: parse listing: %w", src.Name, err)
	}

	cards := doc.Find(src.ListSelector)
	candidates := make([]harvest.RawCandidate, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		cand := harvest.RawCandidate{
			Name:        fieldValue(card, src.Fields.Name),
			Description: fieldValue(card, src.Fields.Description),
			Website:     fieldValue(card, src.Fields.Website),
			Category:    fieldValue(card, src.Fields.Category),
			Pricing:     fieldValue(card, src.Fields.Pricing),
			Logo:        fieldValue(card, src.Fields.Logo),
			Source:      src.Name,
		}
		if cand.Name != "" && cand.Website != "" {
			candidates = append(candidates, cand)
		}
	})
	s.logger.Debug("selector cards scraped",
		zap.String("source", src.Name),
		zap.Int("matched", cards.Length()),
		zap.Int("kept", len(candidates)),
	)
	return candidates, nil
}

// fieldValue resolves a field selector against a card. A "sel@attr" form
// reads the attribute, a bare selector reads the trimmed text, and an empty
// selector yields "". Values are capped at 280 characters.
func fieldValue(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	sel, attr, hasAttr := strings.Cut(selector, "@")
	node := card
	if sel != "" {
		node = card.Find(sel).First()
	}
	var value string
	if hasAttr {
		value, _ = node.Attr(attr)
	} else {
		value = node.Text()
	}
	return harvest.Truncate(strings.TrimSpace(value), maxSelectorFieldLen)
}
