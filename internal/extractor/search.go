package extractor

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

const searchEndpoint = "https://duckduckgo.com/html/?q="

// searchSnippet fetches a short result snippet for the domain from the
// DuckDuckGo HTML endpoint as a last-resort description. Failures return "".
func (e *Extractor) searchSnippet(ctx context.Context, domain string) string {
	page, err := e.fetcher.Fetch(ctx, searchEndpoint+url.QueryEscape(domain))
	if err != nil {
		e.logger.Debug("search snippet fetch failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return ""
	}
	txt := strings.Join(strings.Fields(doc.Find(".result__snippet").First().Text()), " ")
	if len(txt) < minDescriptionLen {
		return ""
	}
	return harvest.Truncate(txt, maxDescriptionLen)
}
